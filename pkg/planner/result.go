package planner

// CallResult is the recorded outcome of one planned call. Results are
// merged in plan order for presentation regardless of completion order.
type CallResult struct {
	CallID  string         `json:"call_id"`
	Tool    string         `json:"tool"`
	Success bool           `json:"success"`
	Skipped bool           `json:"skipped,omitempty"` // dependency failed, call never ran
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Failed reports whether the call ran and failed.
func (r CallResult) Failed() bool {
	return !r.Success && !r.Skipped
}
