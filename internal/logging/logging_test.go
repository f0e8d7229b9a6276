package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEV", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"prod", slog.LevelError},
		{"", slog.LevelWarn},
		{"verbose", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, slog.LevelWarn); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitHonoursLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FILE", "")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	closeFn := Init(Options{DefaultLevel: slog.LevelDebug, Output: &buf})
	defer closeFn()

	slog.Info("hidden")
	slog.Error("shown", "room", "study")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at error level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "room=study") {
		t.Errorf("error line missing: %q", out)
	}
}
