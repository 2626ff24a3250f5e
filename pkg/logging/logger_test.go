package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()

	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level (info is higher)")
	}

	if logger == Default() {
		t.Error("Default() returned the same instance twice - expected new instances")
	}
}

func TestWithConversationAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).WithConversation("conv-1")
	logger.Info("emergency activated", "decision", "activate_emergency")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if line["conversation_id"] != "conv-1" {
		t.Fatalf("expected conversation_id attribute, got %v", line["conversation_id"])
	}
	if line["decision"] != "activate_emergency" {
		t.Fatalf("expected decision attribute, got %v", line["decision"])
	}
}

func TestDiscardDropsErrors(t *testing.T) {
	logger := Discard()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("Discard() should not enable any level")
	}
}
