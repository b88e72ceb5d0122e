package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigParse   ErrorCode = "CONFIG_PARSE"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Language-model errors
	ErrCodeLMUnavailable ErrorCode = "LM_UNAVAILABLE"
	ErrCodeLMTimeout     ErrorCode = "LM_TIMEOUT"
	ErrCodeLMBadResponse ErrorCode = "LM_BAD_RESPONSE"
	ErrCodeLMRateLimit   ErrorCode = "LM_RATE_LIMIT"

	// Tool errors
	ErrCodeToolNotFound   ErrorCode = "TOOL_NOT_FOUND"
	ErrCodeToolArgInvalid ErrorCode = "TOOL_ARG_INVALID"
	ErrCodeToolExecution  ErrorCode = "TOOL_EXECUTION"
	ErrCodeToolTimeout    ErrorCode = "TOOL_TIMEOUT"
	ErrCodeToolSkipped    ErrorCode = "TOOL_SKIPPED"

	// Confirmation errors
	ErrCodeConfirmationRejected ErrorCode = "CONFIRMATION_REJECTED"
	ErrCodeConfirmationTimeout  ErrorCode = "CONFIRMATION_TIMEOUT"
	ErrCodeConfirmationUnknown  ErrorCode = "CONFIRMATION_UNKNOWN"

	// Turn errors
	ErrCodeTurnAborted ErrorCode = "TURN_ABORTED"
	ErrCodeTurnActive  ErrorCode = "TURN_ACTIVE"
	ErrCodePlanInvalid ErrorCode = "PLAN_INVALID"

	// Ledger backend errors
	ErrCodeLedgerRequest  ErrorCode = "LEDGER_REQUEST"
	ErrCodeLedgerNotFound ErrorCode = "LEDGER_NOT_FOUND"

	// Storage errors
	ErrCodeStorageRead  ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"

	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error represents a structured Tally error
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Stack       []Frame
	Retryable   bool
	UserMessage string
}

// Frame represents a stack frame
type Frame struct {
	Function string
	File     string
	Line     int
}

// New creates a new structured error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Context:   make(map[string]any),
		Stack:     captureStack(2), // Skip New and caller
		Retryable: false,
	}
}

// Wrap wraps an existing error with Tally error context
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
		Stack:      captureStack(2),
		Retryable:  false,
	}
}

// WithContext adds context key-value pairs to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithUserMessage attaches a user-facing explanation
func (e *Error) WithUserMessage(msg string) *Error {
	e.UserMessage = msg
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Underlying != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Underlying))
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As chains
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is supports matching against another *Error by code
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the structured code from an error chain.
// Returns ErrCodeInternal for errors that are not *Error.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if structured, ok := err.(*Error); ok {
			return structured.Code
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return ErrCodeInternal
}

// IsRetryable reports whether any error in the chain is marked retryable
func IsRetryable(err error) bool {
	for err != nil {
		if structured, ok := err.(*Error); ok && structured.Retryable {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// UserMessageOf returns the first user-facing message in the chain,
// falling back to a generic explanation.
func UserMessageOf(err error) string {
	for probe := err; probe != nil; {
		if structured, ok := probe.(*Error); ok && structured.UserMessage != "" {
			return structured.UserMessage
		}
		unwrapper, ok := probe.(interface{ Unwrap() error })
		if !ok {
			break
		}
		probe = unwrapper.Unwrap()
	}
	return "Something went wrong while handling your request."
}

func captureStack(skip int) []Frame {
	const maxFrames = 16
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var stack []Frame
	for {
		frame, more := frames.Next()
		stack = append(stack, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return stack
}
