package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggerWritesConversationLog(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "conv-1")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.SetTurnID("turn-1")
	if err := logger.Info(CategoryTurn, "state_changed", "parsing", map[string]any{"state": "Parsing"}); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if err := logger.Error(CategoryTool, "execution_failed", "boom", nil); err != nil {
		t.Fatalf("Error: %v", err)
	}

	events := readEvents(t, filepath.Join(dir, "conversations", "conv-1.jsonl"))
	if len(events) != 2 {
		t.Fatalf("conversation log events = %d, want 2", len(events))
	}
	if events[0].TurnID != "turn-1" {
		t.Errorf("TurnID = %q, want turn-1", events[0].TurnID)
	}
	if events[0].ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1", events[0].ConversationID)
	}

	errorEvents := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	if len(errorEvents) != 1 {
		t.Fatalf("error log events = %d, want 1", len(errorEvents))
	}
	if errorEvents[0].Category != CategoryTool {
		t.Errorf("error category = %q, want tool", errorEvents[0].Category)
	}
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "conv-2")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.SetMinLevel(LevelWarn)
	logger.Info(CategoryIntent, "rewritten", "dropped", nil)
	logger.Warn(CategoryRisk, "escalated", "kept", nil)

	events := readEvents(t, filepath.Join(dir, "conversations", "conv-2.jsonl"))
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].EventType != "escalated" {
		t.Errorf("EventType = %q, want escalated", events[0].EventType)
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	logger := NewNop()
	if err := logger.Info(CategoryTurn, "ignored", "", nil); err != nil {
		t.Fatalf("nop Info: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("nop Close: %v", err)
	}
}

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		events = append(events, ev)
	}
	return events
}
