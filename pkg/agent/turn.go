package agent

import (
	"sync"
	"time"

	"github.com/tallyhq/tally/pkg/approval"
	"github.com/tallyhq/tally/pkg/intent"
	"github.com/tallyhq/tally/pkg/planner"
	"github.com/tallyhq/tally/pkg/reflection"
)

// Response is the final payload of a turn, rendered by the host.
type Response struct {
	Text             string                       `json:"text"`
	Results          []planner.CallResult         `json:"results,omitempty"`
	Dropped          []planner.DroppedCall        `json:"dropped,omitempty"`
	SuggestedActions []reflection.SuggestedAction `json:"suggested_actions,omitempty"`
	Aborted          bool                         `json:"aborted,omitempty"`
	AbortReason      string                       `json:"abort_reason,omitempty"`
}

// Turn is one user message moving through the state machine. All fields
// except State are written by the controller goroutine owning the turn;
// State is read concurrently by the host.
type Turn struct {
	ID             string
	ConversationID string
	Input          string
	StartedAt      time.Time
	EndedAt        time.Time

	Decision     *intent.Decision
	Plan         *planner.Plan
	Confirmation *approval.Request
	Results      []planner.CallResult
	Reflection   *reflection.Result
	Response     *Response

	mu    sync.RWMutex
	state State
}

// State returns the turn's current state.
func (t *Turn) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Turn) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Done reports whether the turn reached a terminal state.
func (t *Turn) Done() bool {
	return t.State().Terminal()
}
