package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// TestParseLogLevel maps strings to levels
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{"info", INFO},
		{"warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
		{"nonsense", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestLogger_LevelFiltering suppresses entries below the level
func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  WARN,
		Output: &buf,
	})

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	logger.Warn("visible warning", nil)
	logger.Error("visible error", nil)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("entries below WARN must be suppressed")
	}
	if !strings.Contains(out, "visible warning") || !strings.Contains(out, "visible error") {
		t.Errorf("expected WARN and ERROR entries, got: %s", out)
	}
}

// TestLogger_TextFields verifies the text format carries fields
func TestLogger_TextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  INFO,
		Output: &buf,
	})

	logger.WithComponent("respcache").Info("swept", map[string]interface{}{
		"removed": 7,
	})

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("expected level marker, got: %s", out)
	}
	if !strings.Contains(out, "component=respcache") {
		t.Errorf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "removed=7") {
		t.Errorf("expected removed field, got: %s", out)
	}
}

// TestLogger_JSONFormat emits one JSON object per entry
func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  INFO,
		Format: FormatJSON,
		Output: &buf,
	})

	logger.Warn("pressure", map[string]interface{}{"heap": 123})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Message != "pressure" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["heap"] != float64(123) {
		t.Errorf("expected heap field, got %v", entry.Fields)
	}
}

// TestLogger_WithFieldIsolation verifies derived loggers don't mutate the
// parent.
func TestLogger_WithFieldIsolation(t *testing.T) {
	var buf bytes.Buffer
	parent := NewStructuredLogger(&StructuredLoggerConfig{Level: INFO, Output: &buf})
	child := parent.WithField("project", "novel-a")

	parent.Info("from parent", nil)
	if strings.Contains(buf.String(), "project=") {
		t.Error("parent logger must not inherit the child's field")
	}

	buf.Reset()
	child.Info("from child", nil)
	if !strings.Contains(buf.String(), "project=novel-a") {
		t.Error("child logger must carry its field")
	}
}

// TestLogger_SetLevel changes filtering at runtime
func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{Level: ERROR, Output: &buf})

	logger.Info("dropped", nil)
	logger.SetLevel(DEBUG)
	logger.Info("kept", nil)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("entry before SetLevel should be filtered")
	}
	if !strings.Contains(out, "kept") {
		t.Error("entry after SetLevel should appear")
	}
	if logger.GetLevel() != DEBUG {
		t.Errorf("expected DEBUG, got %v", logger.GetLevel())
	}
}
