package common

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewColorHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := NewColorHandler(&buf, nil)

	if handler.masker == nil {
		t.Error("Masker not initialized")
	}
	if handler.useColor {
		t.Error("colors must be off for non-terminal writers")
	}
}

func TestColorHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		name    string
		level   slog.Level
		opts    *slog.HandlerOptions
		enabled bool
	}{
		{"default level (info)", slog.LevelInfo, nil, true},
		{"debug level with info handler", slog.LevelDebug, nil, false},
		{"error level", slog.LevelError, nil, true},
		{"debug handler with debug level", slog.LevelDebug, &slog.HandlerOptions{Level: slog.LevelDebug}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewColorHandler(&buf, tt.opts)
			if got := h.Enabled(context.Background(), tt.level); got != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", got, tt.enabled)
			}
		})
	}
}

func TestColorHandler_HandleFormatsAndMasks(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorHandler(&buf, nil)
	logger := slog.New(h).With("worker", 2)

	logger.Info("request sent", "status", 200, "cookie", "MUID=abc", "elapsed", 15*time.Millisecond)

	out := buf.String()
	for _, want := range []string{"[INFO ]", "request sent", "worker=2", "status=200", "cookie=\"" + MaskedValue + "\"", "elapsed=15ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "MUID=abc") {
		t.Errorf("cookie value leaked: %q", out)
	}
}

func TestColorHandler_Colorize(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorHandler(&buf, nil)
	h.SetColorEnabled(true)

	slog.New(h).Error("step failed")
	if !strings.Contains(buf.String(), Red+"[ERROR]"+Reset) {
		t.Errorf("expected red error badge, got %q", buf.String())
	}
}

func TestColorHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorHandler(&buf, nil)
	slog.New(h.WithGroup("runner")).Warn("slow")

	if !strings.Contains(buf.String(), "[runner]") {
		t.Errorf("expected group prefix, got %q", buf.String())
	}
}
