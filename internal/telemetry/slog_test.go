package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// ParseLevel
// ---------------------------------------------------------------------------

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// NewHandler
// ---------------------------------------------------------------------------

func TestNewHandler_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "JSON", slog.LevelInfo))
	logger.Info("build queued", "module", "aws")

	var obj map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &obj); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	if obj["msg"] != "build queued" {
		t.Errorf("msg = %v, want build queued", obj["msg"])
	}
	if obj["module"] != "aws" {
		t.Errorf("module = %v, want aws", obj["module"])
	}
	if _, ok := obj["source"]; ok {
		t.Error("source attribute present at info level")
	}
}

func TestNewHandler_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "text", slog.LevelInfo))
	logger.Info("text test", "env", "development")

	if !strings.Contains(buf.String(), "env=development") {
		t.Errorf("text output missing env=development: %q", buf.String())
	}
}

func TestNewHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "json", slog.LevelWarn))
	logger.Info("should be suppressed")
	logger.Warn("should appear")

	if strings.Contains(buf.String(), "should be suppressed") {
		t.Error("Info record appeared despite LevelWarn filter")
	}
	if !strings.Contains(buf.String(), "should appear") {
		t.Error("Warn record was unexpectedly suppressed")
	}
}

func TestNewHandler_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "json", slog.LevelDebug))
	logger.Debug("with source")

	if !strings.Contains(buf.String(), `"source"`) {
		t.Errorf("debug output missing source attribute: %s", buf.String())
	}
}

func TestSetupLogger_DoesNotPanic(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		for _, level := range []string{"debug", "info", "bogus"} {
			SetupLogger(format, level)
		}
	}
	SetupLogger("text", "error")
}
