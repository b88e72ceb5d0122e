// Package reflection decides how a turn ends: silently, with a clarifying
// question, or with suggested follow-ups. Outcome confidence is computed
// from structural signals alone, so reflection is synchronous and never
// re-invokes tools or the model.
package reflection

import (
	"fmt"

	"github.com/tallyhq/tally/pkg/intent"
	"github.com/tallyhq/tally/pkg/logging"
	"github.com/tallyhq/tally/pkg/planner"
	"github.com/tallyhq/tally/pkg/preferences"
)

// SuggestedAction is a canned follow-up the host can render as a shortcut.
type SuggestedAction struct {
	Label   string `json:"label"`
	Message string `json:"message"` // sent as if the user typed it
}

// Result is the reflector's verdict on a finished turn.
type Result struct {
	Confidence        float64           `json:"confidence"`
	ClarifyingMessage string            `json:"clarifying_message,omitempty"`
	SuggestedActions  []SuggestedAction `json:"suggested_actions,omitempty"`
}

// NeedsClarification reports whether the turn should end with a question.
func (r *Result) NeedsClarification() bool {
	return r != nil && r.ClarifyingMessage != ""
}

// Reflector annotates terminal responses.
type Reflector struct {
	logger *logging.Logger
}

// New creates a reflector. logger may be nil.
func New(logger *logging.Logger) *Reflector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reflector{logger: logger}
}

// Reflect evaluates the turn's outcome. A dependent-chain failure, or a
// caveat-flagged intent whose execution went ambiguous, drops confidence
// below the reflection threshold and attaches a clarifying message.
// Otherwise confidence is high and up to MaxSuggestions follow-ups are
// attached.
func (r *Reflector) Reflect(decision *intent.Decision, plan *planner.Plan, results []planner.CallResult, prefs preferences.Preferences) *Result {
	chainFailure := false
	failures := 0
	for _, res := range results {
		if res.Skipped {
			chainFailure = true
		}
		if res.Failed() {
			failures++
		}
	}
	ambiguous := failures > 0 || len(plan.Dropped) > 0

	out := &Result{}
	switch {
	case chainFailure:
		out.Confidence = prefs.Thresholds.ReflectionLow / 2
		out.ClarifyingMessage = "Part of that couldn't be completed because an earlier step failed. Want me to retry the rest once you've checked the details?"
	case decision.Caveat() && ambiguous:
		out.Confidence = prefs.Thresholds.ReflectionLow / 2
		out.ClarifyingMessage = fmt.Sprintf(
			"I wasn't fully sure I understood you as %q, and not everything went through. Did I get that right?",
			decision.Intent.Action)
	default:
		out.Confidence = 0.9
		out.SuggestedActions = r.suggest(decision.Intent, prefs.MaxSuggestions)
	}

	r.logger.Info(logging.CategoryReflection, "reflected", "", map[string]any{
		"confidence":    out.Confidence,
		"chain_failure": chainFailure,
		"failures":      failures,
	})
	return out
}

// suggest derives canned follow-ups from the action just performed.
func (r *Reflector) suggest(it intent.Intent, max int) []SuggestedAction {
	var actions []SuggestedAction
	switch it.Action {
	case intent.ActionRecordTransaction:
		actions = []SuggestedAction{
			{Label: "Today's spending", Message: "How much have I spent today?"},
			{Label: "This month so far", Message: "Show my expenses this month"},
			{Label: "Record another", Message: "Record another expense"},
		}
	case intent.ActionQueryTransactions:
		actions = []SuggestedAction{
			{Label: "Break down by category", Message: "Break that down by category"},
			{Label: "Record an expense", Message: "Record a new expense"},
		}
	case intent.ActionUpdateTransaction, intent.ActionDeleteTransaction, intent.ActionBulkDelete:
		actions = []SuggestedAction{
			{Label: "Show recent", Message: "Show my recent transactions"},
		}
	case intent.ActionListCategories, intent.ActionCreateCategory:
		actions = []SuggestedAction{
			{Label: "Record an expense", Message: "Record a new expense"},
		}
	}

	if max >= 0 && len(actions) > max {
		actions = actions[:max]
	}
	return actions
}
