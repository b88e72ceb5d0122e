package builtin

// ParameterSchema is a JSON-schema-like contract for tool arguments.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one tool parameter.
type Property struct {
	Type        string   `json:"type"` // "string", "number", "integer", "boolean", "object"
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Ok builds a successful result carrying the given payload.
func Ok(data map[string]any) *Result {
	return &Result{Success: true, Data: data}
}

// Fail builds a failed result with the given message.
func Fail(message string) *Result {
	return &Result{Success: false, Error: message}
}
