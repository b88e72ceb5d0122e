// Package preferences holds user-scoped agent configuration: confidence
// thresholds, confirmation policy, and per-tool always-allow overrides.
// Defaults are resolved once at load time; consumers never see optional
// fields.
package preferences

import (
	"strings"
)

// Default threshold and policy values applied when a stored preference
// leaves a field unset.
const (
	DefaultIntentHighConfidence = 0.7
	DefaultIntentLowConfidence  = 0.4
	DefaultReflectionLow        = 0.3
	DefaultBatchThreshold       = 5
	DefaultMaxSuggestions       = 3
)

// Thresholds is the fully-specified confidence configuration. Every field
// is meaningful at the point of use; there are no optional values.
type Thresholds struct {
	// IntentHigh is the confidence at or above which an intent is accepted
	// verbatim.
	IntentHigh float64 `json:"intent_high" yaml:"intent_high"`

	// IntentLow is the confidence below which the turn terminates with a
	// clarifying question instead of a plan.
	IntentLow float64 `json:"intent_low" yaml:"intent_low"`

	// ReflectionLow is the outcome confidence below which the reflector
	// attaches a clarifying message.
	ReflectionLow float64 `json:"reflection_low" yaml:"reflection_low"`
}

// Preferences is the per-user agent policy, shared across turns within a
// conversation. It is mutated only by the confirmation gate's always-allow
// outcome.
type Preferences struct {
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`

	// ConfirmHighRisk gates tool calls classified high or above.
	ConfirmHighRisk bool `json:"confirm_high_risk" yaml:"confirm_high_risk"`

	// ConfirmMediumRisk gates tool calls classified medium or above.
	ConfirmMediumRisk bool `json:"confirm_medium_risk" yaml:"confirm_medium_risk"`

	// BatchThreshold is the number of mutating calls in one plan above
	// which risk is escalated.
	BatchThreshold int `json:"batch_threshold" yaml:"batch_threshold"`

	// MaxSuggestions caps the suggested follow-up actions per turn.
	MaxSuggestions int `json:"max_suggestions" yaml:"max_suggestions"`

	// AlwaysAllow holds exact tool names the user has permanently approved.
	AlwaysAllow []string `json:"always_allow" yaml:"always_allow"`
}

// Defaults returns the fully-resolved default preferences.
func Defaults() Preferences {
	return Preferences{
		Thresholds: Thresholds{
			IntentHigh:    DefaultIntentHighConfidence,
			IntentLow:     DefaultIntentLowConfidence,
			ReflectionLow: DefaultReflectionLow,
		},
		ConfirmHighRisk:   true,
		ConfirmMediumRisk: false,
		BatchThreshold:    DefaultBatchThreshold,
		MaxSuggestions:    DefaultMaxSuggestions,
	}
}

// Resolve fills zero-valued fields with defaults. Stored preferences may
// predate new fields; resolution happens once here, not at call sites.
func Resolve(p Preferences) Preferences {
	defaults := Defaults()
	if p.Thresholds.IntentHigh <= 0 || p.Thresholds.IntentHigh > 1 {
		p.Thresholds.IntentHigh = defaults.Thresholds.IntentHigh
	}
	if p.Thresholds.IntentLow <= 0 || p.Thresholds.IntentLow > 1 {
		p.Thresholds.IntentLow = defaults.Thresholds.IntentLow
	}
	if p.Thresholds.IntentLow > p.Thresholds.IntentHigh {
		p.Thresholds.IntentLow = p.Thresholds.IntentHigh
	}
	if p.Thresholds.ReflectionLow <= 0 || p.Thresholds.ReflectionLow > 1 {
		p.Thresholds.ReflectionLow = defaults.Thresholds.ReflectionLow
	}
	if p.BatchThreshold <= 0 {
		p.BatchThreshold = defaults.BatchThreshold
	}
	if p.MaxSuggestions <= 0 {
		p.MaxSuggestions = defaults.MaxSuggestions
	}
	return p
}

// IsAlwaysAllowed reports whether the exact tool name is in the user's
// always-allow set.
func (p Preferences) IsAlwaysAllowed(toolName string) bool {
	toolName = strings.TrimSpace(toolName)
	for _, name := range p.AlwaysAllow {
		if name == toolName {
			return true
		}
	}
	return false
}

// WithAlwaysAllow returns a copy of the preferences with the tool name
// added to the always-allow set. Adding an existing name is a no-op.
func (p Preferences) WithAlwaysAllow(toolName string) Preferences {
	toolName = strings.TrimSpace(toolName)
	if toolName == "" || p.IsAlwaysAllowed(toolName) {
		return p
	}
	allowed := make([]string, 0, len(p.AlwaysAllow)+1)
	allowed = append(allowed, p.AlwaysAllow...)
	allowed = append(allowed, toolName)
	p.AlwaysAllow = allowed
	return p
}
