package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/richinex/docqa/config"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(config.LogConfig{Level: "warn", Format: "json"}, &buf, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	Component(logger, "planner").Info("dropped at warn level")
	Component(logger, "planner").Warn("fallback plan")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry["component"] != "planner" || entry["msg"] != "fallback plan" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetupDebugOverridesLevel(t *testing.T) {
	logger, err := Setup(config.LogConfig{Level: "error"}, &bytes.Buffer{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %s", logger.GetLevel())
	}
}

func TestSetupRejectsBadInput(t *testing.T) {
	if _, err := Setup(config.LogConfig{Level: "loud"}, &bytes.Buffer{}, false); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := Setup(config.LogConfig{Format: "xml"}, &bytes.Buffer{}, false); err == nil {
		t.Error("expected error for unknown format")
	}
}
