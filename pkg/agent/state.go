// Package agent implements the turn controller: the state machine that
// takes one user message through intent rewriting, planning, risk gating,
// execution, and reflection.
package agent

import "fmt"

// State is the turn's position in the state machine.
type State int

const (
	StateIdle State = iota
	StateParsing
	StatePlanning
	StateExecuting
	StateAwaitingConfirmation
	StateReflecting
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateReflecting:
		return "reflecting"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state ends the turn.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}
