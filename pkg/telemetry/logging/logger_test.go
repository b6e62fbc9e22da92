package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Info("admission blocked", "identity", "tenant-a")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "admission blocked" {
		t.Errorf("expected message in output, got %v", entry["msg"])
	}
	if entry["identity"] != "tenant-a" {
		t.Errorf("expected identity attribute, got %v", entry["identity"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Warn("sweep completed")
	if !strings.Contains(buf.String(), "sweep completed") {
		t.Errorf("expected message in text output, got %q", buf.String())
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("expected info suppressed at warn level, got %q", buf.String())
	}

	logger.Error("should appear")
	if buf.Len() == 0 {
		t.Error("expected error to pass the warn level")
	}
}

func TestNew_Defaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Writer: &buf})
	if err != nil {
		t.Fatalf("expected empty level and format to default, got %v", err)
	}

	logger.Debug("hidden at default info level")
	if buf.Len() != 0 {
		t.Errorf("expected debug suppressed by default, got %q", buf.String())
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
