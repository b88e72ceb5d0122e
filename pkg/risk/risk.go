// Package risk classifies tool calls by potential harm. Classification is a
// pure function over the registry's static risk tags, the user's always-allow
// set, and the size of the mutating batch in the current plan, so it can be
// tested without a model in the loop.
package risk

import (
	"fmt"
	"strings"
)

// Level is the ordinal classification of a tool call's potential harm.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a risk level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return LevelLow, nil
	case "medium":
		return LevelMedium, nil
	case "high":
		return LevelHigh, nil
	case "critical":
		return LevelCritical, nil
	default:
		return LevelLow, fmt.Errorf("unknown risk level: %s (valid: low, medium, high, critical)", s)
	}
}

// Tag is the static risk marking a tool carries in the registry.
type Tag string

const (
	// TagReadOnly marks query/list tools with no side effects.
	TagReadOnly Tag = "read_only"

	// TagAdditive marks tools that create records but never modify or
	// remove existing ones.
	TagAdditive Tag = "additive"

	// TagDestructive marks single-record deletes and updates.
	TagDestructive Tag = "destructive"

	// TagCritical marks irreversible bulk operations. Never downgradable
	// by always-allow.
	TagCritical Tag = "critical"
)

// Mutating reports whether a tool with this tag changes ledger state.
func (t Tag) Mutating() bool {
	return t == TagAdditive || t == TagDestructive || t == TagCritical
}
