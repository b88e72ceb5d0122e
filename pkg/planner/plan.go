// Package planner deterministically expands a normalized intent into an
// ordered list of tool calls.
package planner

import "github.com/tallyhq/tally/pkg/risk"

// Binding wires one argument of a call to a field of another call's result.
// Bound arguments are injected at execution time, after the source call
// resolves.
type Binding struct {
	Param    string `json:"param"`     // argument name on the dependent call
	FromCall string `json:"from_call"` // source call ID
	Field    string `json:"field"`     // key in the source call's result data
}

// ToolCall is one planned tool invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Risk      risk.Level     `json:"risk"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Bindings  []Binding      `json:"bindings,omitempty"`
}

// DroppedCall records a plan entry discarded during schema validation.
type DroppedCall struct {
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

// Plan is an ordered set of tool calls derived from one intent. Calls with
// a data dependency appear after the call they depend on; results are
// presented in plan order regardless of completion order.
type Plan struct {
	Calls   []*ToolCall   `json:"calls"`
	Dropped []DroppedCall `json:"dropped,omitempty"`
	Note    string        `json:"note,omitempty"`
}

// Empty reports whether the plan has no calls to execute.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Calls) == 0
}

// Call returns the call with the given ID.
func (p *Plan) Call(id string) (*ToolCall, bool) {
	if p == nil {
		return nil, false
	}
	for _, c := range p.Calls {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// MutatingCount counts calls whose tool mutates ledger state, given the
// registry's tag lookup. Drives batch escalation.
func (p *Plan) MutatingCount(tags risk.TagLookup) int {
	if p == nil {
		return 0
	}
	n := 0
	for _, c := range p.Calls {
		if tag, ok := tags.RiskTag(c.Tool); ok && tag.Mutating() {
			n++
		}
	}
	return n
}

// MaxRisk returns the highest classified risk across all calls.
func (p *Plan) MaxRisk() risk.Level {
	level := risk.LevelLow
	if p == nil {
		return level
	}
	for _, c := range p.Calls {
		if c.Risk > level {
			level = c.Risk
		}
	}
	return level
}
