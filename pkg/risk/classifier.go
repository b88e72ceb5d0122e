package risk

import (
	"github.com/tallyhq/tally/pkg/preferences"
)

// TagLookup resolves a tool name to its static risk tag. The tool registry
// implements this; unknown tools report ok=false and classify as critical so
// a planner defect fails closed.
type TagLookup interface {
	RiskTag(name string) (Tag, bool)
}

// Classifier derives risk levels for prospective tool calls. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	tags TagLookup
}

// NewClassifier creates a classifier over the given tag lookup.
func NewClassifier(tags TagLookup) *Classifier {
	return &Classifier{tags: tags}
}

// Classify maps a tool name plus the mutating batch size of the surrounding
// plan to a risk level under the given preferences. Rules in order, first
// match wins:
//
//  1. critical-tagged tools are critical, always
//  2. destructive-tagged tools are high, unless always-allowed (then low)
//  3. a mutating batch larger than the batch threshold escalates the
//     computed level one step and to at least high
//  4. read-only and additive tools are low
func (c *Classifier) Classify(toolName string, args map[string]any, pendingBatchSize int, prefs preferences.Preferences) Level {
	tag, ok := c.tags.RiskTag(toolName)
	if !ok {
		// Tool the planner emitted but the registry does not know.
		// That is a programming defect upstream; fail closed here.
		return LevelCritical
	}

	if tag == TagCritical {
		return LevelCritical
	}

	var level Level
	switch {
	case tag == TagDestructive && prefs.IsAlwaysAllowed(toolName):
		level = LevelLow
	case tag == TagDestructive:
		level = LevelHigh
	default:
		level = LevelLow
	}

	if tag.Mutating() && pendingBatchSize > prefs.BatchThreshold {
		level = escalate(level)
	}

	return level
}

// escalate raises a level one step and to at least high. Bulk operations
// carry bulk consequences regardless of the per-call classification.
func escalate(level Level) Level {
	level++
	if level < LevelHigh {
		level = LevelHigh
	}
	if level > LevelCritical {
		level = LevelCritical
	}
	return level
}

// Max returns the higher of two levels.
func Max(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}
