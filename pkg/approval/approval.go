// Package approval implements the human confirmation gate. A plan yields at
// most one confirmation request covering every call at or above the user's
// effective threshold; nothing gated executes until the host resolves it.
package approval

import (
	"time"

	"github.com/tallyhq/tally/pkg/logging"
	"github.com/tallyhq/tally/pkg/planner"
	"github.com/tallyhq/tally/pkg/preferences"
	"github.com/tallyhq/tally/pkg/risk"
	"github.com/tallyhq/tally/pkg/session"
)

// Resolution is the host's verdict on a confirmation request.
type Resolution string

const (
	ResolutionApprove     Resolution = "approve"
	ResolutionReject      Resolution = "reject"
	ResolutionAlwaysAllow Resolution = "always_allow"
	ResolutionTimeout     Resolution = "timeout"
)

// Item is one gated call, presented to the human for review.
type Item struct {
	CallID string         `json:"call_id"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Risk   risk.Level     `json:"risk"`
}

// Request asks the human to confirm a set of gated calls from one plan.
type Request struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	TurnID         string     `json:"turn_id"`
	Items          []Item     `json:"items"`
	AggregateRisk  risk.Level `json:"aggregate_risk"`
	CreatedAt      time.Time  `json:"created_at"`
	Deadline       time.Time  `json:"deadline,omitempty"` // zero when unbounded
}

// Covers reports whether the request gates the given call.
func (r *Request) Covers(callID string) bool {
	if r == nil {
		return false
	}
	for _, item := range r.Items {
		if item.CallID == callID {
			return true
		}
	}
	return false
}

// Decision is a resolved confirmation.
type Decision struct {
	Resolution Resolution `json:"resolution"`
	ToolName   string     `json:"tool_name,omitempty"` // for always-allow
	Reason     string     `json:"reason,omitempty"`    // optional reject reason
}

// Approves reports whether the decision lets the gated calls run.
func (d Decision) Approves() bool {
	return d.Resolution == ResolutionApprove || d.Resolution == ResolutionAlwaysAllow
}

// Threshold derives the risk level at which calls require confirmation.
// Critical is always gated, so the loosest possible setting still confirms
// critical calls.
func Threshold(prefs preferences.Preferences) risk.Level {
	switch {
	case prefs.ConfirmMediumRisk:
		return risk.LevelMedium
	case prefs.ConfirmHighRisk:
		return risk.LevelHigh
	default:
		return risk.LevelCritical
	}
}

// Gate evaluates classified plans against user preferences.
type Gate struct {
	logger  *logging.Logger
	timeout time.Duration
}

// NewGate creates a gate. timeout bounds how long a request may stay
// unresolved; zero means the host imposes no deadline. logger may be nil.
func NewGate(logger *logging.Logger, timeout time.Duration) *Gate {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate{logger: logger, timeout: timeout}
}

// Evaluate returns the single confirmation request for the plan, or nil
// when every call is below the effective threshold. Calls must already
// carry their classified risk.
func (g *Gate) Evaluate(conversationID, turnID string, plan *planner.Plan, prefs preferences.Preferences) *Request {
	threshold := Threshold(prefs)

	var items []Item
	aggregate := risk.LevelLow
	for _, call := range plan.Calls {
		if call.Risk < threshold {
			continue
		}
		items = append(items, Item{
			CallID: call.ID,
			Tool:   call.Tool,
			Args:   call.Args,
			Risk:   call.Risk,
		})
		aggregate = risk.Max(aggregate, call.Risk)
	}
	if len(items) == 0 {
		return nil
	}

	req := &Request{
		ID:             session.NewConfirmationID(),
		ConversationID: conversationID,
		TurnID:         turnID,
		Items:          items,
		AggregateRisk:  aggregate,
		CreatedAt:      time.Now(),
	}
	if g.timeout > 0 {
		req.Deadline = req.CreatedAt.Add(g.timeout)
	}

	g.logger.Info(logging.CategoryApproval, "request_created", req.ID, map[string]any{
		"items":          len(items),
		"aggregate_risk": aggregate.String(),
	})
	return req
}

// ApplyAlwaysAllow adds toolName to the always-allow set when its static
// tag permits it. Critical tools are exempt: no preference can ever skip
// their confirmation. Reports whether the preference changed.
func ApplyAlwaysAllow(prefs preferences.Preferences, toolName string, tags risk.TagLookup) (preferences.Preferences, bool) {
	tag, ok := tags.RiskTag(toolName)
	if !ok || tag == risk.TagCritical {
		return prefs, false
	}
	if prefs.IsAlwaysAllowed(toolName) {
		return prefs, false
	}
	return prefs.WithAlwaysAllow(toolName), true
}
