package session

import (
	cryptorand "crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu   sync.Mutex
	ulidEntropy = ulid.Monotonic(cryptorand.Reader, 0)
)

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String())
}

// NewConversationID returns a stable random conversation identifier.
func NewConversationID() string {
	return uuid.NewString()
}

// NewTurnID returns a lexically sortable turn identifier.
func NewTurnID() string {
	return fmt.Sprintf("turn-%s", newULID())
}

// NewCallID returns a lexically sortable tool-call identifier.
func NewCallID() string {
	return fmt.Sprintf("call-%s", newULID())
}

// NewConfirmationID returns a lexically sortable confirmation identifier.
func NewConfirmationID() string {
	return fmt.Sprintf("confirm-%s", newULID())
}

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9\-]`)

// GenerateScopedID returns a unique identifier using the provided base name.
// The base is lowercased and sanitized so the result is safe in file paths
// and bus subjects.
func GenerateScopedID(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "session"
	}
	base = strings.ToLower(strings.ReplaceAll(base, " ", "-"))
	base = nameSanitizer.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "session"
	}
	return fmt.Sprintf("%s-%s", base, newULID())
}
