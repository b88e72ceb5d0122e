// Package intent normalizes raw user text into a symbolic, confidence-scored
// action the planner can expand deterministically.
package intent

import (
	"fmt"
	"strings"
)

// Known actions the rewriter may emit. The planner maps each to tool calls;
// anything else is treated as ActionUnknown.
const (
	ActionRecordTransaction  = "record_transaction"
	ActionUpdateTransaction  = "update_transaction"
	ActionDeleteTransaction  = "delete_transaction"
	ActionBulkDelete         = "bulk_delete_transactions"
	ActionQueryTransactions  = "query_transactions"
	ActionListCategories     = "list_categories"
	ActionCreateCategory     = "create_category"
	ActionListPaymentMethods = "list_payment_methods"
	ActionChat               = "chat"
	ActionUnknown            = "unknown"
)

// KnownActions lists every action the rewriter is allowed to produce.
var KnownActions = []string{
	ActionRecordTransaction,
	ActionUpdateTransaction,
	ActionDeleteTransaction,
	ActionBulkDelete,
	ActionQueryTransactions,
	ActionListCategories,
	ActionCreateCategory,
	ActionListPaymentMethods,
	ActionChat,
	ActionUnknown,
}

// Intent is the normalized interpretation of one user message. Immutable
// once produced.
type Intent struct {
	Action     string         `json:"action"`
	Params     map[string]any `json:"params,omitempty"`
	Confidence float64        `json:"confidence"`
	Ambiguous  []string       `json:"ambiguous,omitempty"`
}

// Outcome is the rewriter's branch decision.
type Outcome int

const (
	// OutcomeAccept proceeds to planning with full confidence.
	OutcomeAccept Outcome = iota
	// OutcomeAcceptWithCaveat proceeds to planning but flags the turn so
	// reflection weights toward asking for confirmation of interpretation.
	OutcomeAcceptWithCaveat
	// OutcomeClarify terminates the turn with a clarifying question.
	// No tool is ever invoked on this branch.
	OutcomeClarify
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccept:
		return "accept"
	case OutcomeAcceptWithCaveat:
		return "accept_with_caveat"
	case OutcomeClarify:
		return "clarify"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision pairs an Intent with the threshold branch it landed on.
type Decision struct {
	Intent             Intent
	Outcome            Outcome
	ClarifyingQuestion string
}

// Caveat reports whether the decision carries the ambiguity caveat.
func (d *Decision) Caveat() bool {
	return d != nil && d.Outcome == OutcomeAcceptWithCaveat
}

// Unknown is the sentinel intent used when the language model is
// unavailable or returned garbage. Confidence 0 forces the clarify branch.
func Unknown() Intent {
	return Intent{Action: ActionUnknown, Confidence: 0}
}

func isKnownAction(action string) bool {
	for _, a := range KnownActions {
		if a == action {
			return true
		}
	}
	return false
}

// clarifyingQuestion derives a question from the ambiguous-parameter list
// when the model did not supply one.
func clarifyingQuestion(in Intent) string {
	if len(in.Ambiguous) > 0 {
		return fmt.Sprintf("I couldn't work out the %s. Could you fill that in?",
			strings.Join(in.Ambiguous, " and "))
	}
	return "I'm not sure what you'd like me to do. Could you rephrase that?"
}
