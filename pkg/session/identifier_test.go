package session

import (
	"strings"
	"testing"
)

func TestIdentifiersArePrefixedAndUnique(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"turn", NewTurnID, "turn-"},
		{"call", NewCallID, "call-"},
		{"confirmation", NewConfirmationID, "confirm-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := tt.gen(), tt.gen()
			if !strings.HasPrefix(a, tt.prefix) {
				t.Errorf("%q missing prefix %q", a, tt.prefix)
			}
			if a == b {
				t.Errorf("expected unique ids, got %q twice", a)
			}
			if a > b {
				t.Errorf("expected sortable ids, %q > %q", a, b)
			}
		})
	}
}

func TestNewConversationID(t *testing.T) {
	a, b := NewConversationID(), NewConversationID()
	if a == b {
		t.Errorf("expected unique conversation ids, got %q twice", a)
	}
	if len(a) != 36 {
		t.Errorf("expected uuid format, got %q", a)
	}
}

func TestGenerateScopedID(t *testing.T) {
	tests := []struct {
		input      string
		wantPrefix string
	}{
		{"My Ledger", "my-ledger-"},
		{"", "session-"},
		{"幽灵", "session-"},
		{"a/b\\c", "a-b-c-"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := GenerateScopedID(tt.input)
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("GenerateScopedID(%q) = %q, want prefix %q", tt.input, got, tt.wantPrefix)
			}
		})
	}
}
