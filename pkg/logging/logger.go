package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log
type Category string

const (
	CategoryTurn       Category = "turn"
	CategoryIntent     Category = "intent"
	CategoryPlan       Category = "plan"
	CategoryRisk       Category = "risk"
	CategoryApproval   Category = "approval"
	CategoryTool       Category = "tool"
	CategoryReflection Category = "reflection"
	CategoryModel      Category = "model"
	CategoryLedger     Category = "ledger"
	CategoryServer     Category = "server"
)

// Event represents a structured log event
type Event struct {
	Timestamp      time.Time      `json:"timestamp"`
	Level          Level          `json:"level"`
	Category       Category       `json:"category"`
	EventType      string         `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	TurnID         string         `json:"turn_id,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Message        string         `json:"message,omitempty"`
}

// Logger writes structured events to per-conversation JSONL files,
// with errors duplicated into a shared error log.
type Logger struct {
	conversationID string
	turnID         string
	baseDir        string
	sessionFile    *os.File
	errorFile      *os.File
	mu             sync.Mutex
	minLevel       Level
}

// NewLogger creates a new structured logger rooted at baseDir
func NewLogger(baseDir, conversationID string) (*Logger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	conversationsDir := filepath.Join(baseDir, "conversations")
	if err := os.MkdirAll(conversationsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}

	sessionFile, err := os.OpenFile(
		filepath.Join(conversationsDir, conversationID+".jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation log: %w", err)
	}

	errorFile, err := os.OpenFile(
		filepath.Join(baseDir, "errors.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		sessionFile.Close()
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	return &Logger{
		conversationID: conversationID,
		baseDir:        baseDir,
		sessionFile:    sessionFile,
		errorFile:      errorFile,
		minLevel:       LevelInfo,
	}, nil
}

// NewNop returns a logger that drops everything. Useful in tests.
func NewNop() *Logger {
	return &Logger{minLevel: LevelError, conversationID: "nop"}
}

// SetMinLevel sets the minimum log level
func (l *Logger) SetMinLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetTurnID sets the current turn ID for subsequent events
func (l *Logger) SetTurnID(turnID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turnID = turnID
}

// Log writes an event to appropriate destinations
func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ConversationID == "" {
		event.ConversationID = l.conversationID
	}
	if event.TurnID == "" && l.turnID != "" {
		event.TurnID = l.turnID
	}

	if !l.shouldLog(event.Level) {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	if l.sessionFile != nil {
		if _, err := l.sessionFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to conversation log: %w", err)
		}
	}

	if event.Level == LevelError && l.errorFile != nil {
		if _, err := l.errorFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to error log: %w", err)
		}
	}

	return nil
}

// shouldLog checks if event should be logged based on level
func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.minLevel]
}

// Debug logs a debug event
func (l *Logger) Debug(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelDebug,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Info logs an info event
func (l *Logger) Info(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelInfo,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Warn logs a warning event
func (l *Logger) Warn(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelWarn,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Error logs an error event
func (l *Logger) Error(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelError,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Close closes all log files
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.sessionFile != nil {
		if err := l.sessionFile.Close(); err != nil {
			errs = append(errs, err)
		}
		l.sessionFile = nil
	}
	if l.errorFile != nil {
		if err := l.errorFile.Close(); err != nil {
			errs = append(errs, err)
		}
		l.errorFile = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close log files: %v", errs)
	}
	return nil
}
