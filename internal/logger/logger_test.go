package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	// Create a buffer to capture log output
	var buf bytes.Buffer

	logger := New(&Config{
		Level:       DEBUG,
		Format:      TEXT,
		Output:      &buf,
		DefaultTags: map[string]interface{}{"test": true},
	})

	logger.Debug("Loaded %d reference items", 20)
	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "Loaded 20 reference items") {
		t.Errorf("Expected debug message in log output, got: %s", buf.String())
	}

	// Test with context
	buf.Reset()
	logger.WithContext("orchestrator").Warn("Generation failed")
	if !strings.Contains(buf.String(), "WARN") || !strings.Contains(buf.String(), "[orchestrator]") {
		t.Errorf("Expected warning with context in log output, got: %s", buf.String())
	}

	// Fields are written in key order
	buf.Reset()
	logger.WithFields(map[string]interface{}{"run": "r1", "page": 2}).Error("Placeholder used")
	if !strings.Contains(buf.String(), "page=2 run=r1 test=true") {
		t.Errorf("Expected sorted fields in log output, got: %s", buf.String())
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: INFO, Format: JSON, Output: &buf})

	logger.WithContext("queue").WithField("label", "본문 \"1\"").Info("Task done")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON, got %s: %v", buf.String(), err)
	}
	if entry["level"] != "INFO" || entry["message"] != "Task done" {
		t.Errorf("Unexpected entry %v", entry)
	}
	if entry["context"] != "queue" || entry["label"] != "본문 \"1\"" {
		t.Errorf("Expected context and escaped field, got %v", entry)
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&Config{
		Level:  INFO,
		Format: TEXT,
		Output: &buf,
	})

	// DEBUG should not be logged when level is INFO
	logger.Debug("Should not appear")
	if buf.Len() > 0 {
		t.Errorf("DEBUG message should not have been logged, got: %s", buf.String())
	}

	buf.Reset()
	logger.Info("Should appear")
	if buf.Len() == 0 {
		t.Errorf("INFO message should have been logged")
	}

	buf.Reset()
	logger.SetLevel(DISABLED)
	logger.Error("Should not appear")
	if buf.Len() > 0 {
		t.Errorf("Disabled logger should not write, got: %s", buf.String())
	}

	tests := []struct {
		in   string
		want LogLevel
	}{
		{"DEBUG", DEBUG},
		{"warning", WARN},
		{"off", DISABLED},
		{"unknown", INFO},
	}
	for _, test := range tests {
		if got := ParseLevel(test.in); got != test.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", test.in, got, test.want)
		}
	}

	if ParseFormat("JSON") != JSON || ParseFormat("") != TEXT {
		t.Errorf("ParseFormat returned unexpected formats")
	}
}

func TestSlogBridge(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: WARN, Format: JSON, Output: &buf}).WithContext("cli")

	sl := logger.Slog()
	sl.Info("filtered")
	if buf.Len() > 0 {
		t.Errorf("INFO should be filtered at WARN level, got: %s", buf.String())
	}

	sl.Warn("queue paused", "pending", 3)
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %s: %v", buf.String(), err)
	}
	if entry["msg"] != "queue paused" || entry["context"] != "cli" || entry["pending"] != float64(3) {
		t.Errorf("Unexpected slog entry %v", entry)
	}
}

func ExampleLogger_WithContext() {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  DEBUG,
		Format: TEXT,
		Output: &buf,
	})

	// Create a component logger
	componentLogger := logger.WithContext("orchestrator", "drain")
	componentLogger.Info("Queue drained")

	fmt.Println("Contains context:", strings.Contains(buf.String(), "[orchestrator.drain]"))
	// Output: Contains context: true
}
