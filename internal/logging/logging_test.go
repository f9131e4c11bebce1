package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "JSON")
	logger.Debug("hidden")
	logger.Info("visit recorded", "chat_user_id", 111)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["msg"] != "visit recorded" || entry["chat_user_id"] != float64(111) {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewLoggerTextDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, " DEBUG ", "")
	logger.Debug("state transition")

	if !strings.Contains(buf.String(), "level=DEBUG") {
		t.Fatalf("expected debug text line, got %q", buf.String())
	}
}
