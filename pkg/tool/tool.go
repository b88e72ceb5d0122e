package tool

import (
	"context"

	"github.com/tallyhq/tally/pkg/risk"
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

// Tool represents a capability the agent can invoke against the ledger
// backend. Every tool declares a static risk tag that drives the
// confirmation policy.
type Tool interface {
	Name() string
	Description() string
	Parameters() builtin.ParameterSchema
	RiskTag() risk.Tag
	Execute(ctx context.Context, params map[string]any) (*builtin.Result, error)
}

// Definition is the wire-friendly description of a tool, handed to the
// language model so it can reference tools by name.
type Definition struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Parameters  builtin.ParameterSchema `json:"parameters"`
	RiskTag     risk.Tag                `json:"risk_tag"`
}

// Describe converts a tool to its definition.
func Describe(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
		RiskTag:     t.RiskTag(),
	}
}
