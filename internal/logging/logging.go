package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls where logs go and the level used when LOG_LEVEL is
// not set.
type Options struct {
	DefaultLevel slog.Level

	// Output is used unless LOG_FILE names a file.
	Output io.Writer
}

// Init installs the default slog logger. It returns a close function for
// the log file, if one was opened.
func Init(opts Options) func() {
	level := ParseLevel(os.Getenv("LOG_LEVEL"), opts.DefaultLevel)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	closeFn := func() {}
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = f
			closeFn = func() { f.Close() }
		}
	}

	logger := slog.New(
		slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return closeFn
}

// ParseLevel maps a LOG_LEVEL value to a slog level, falling back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return def
	}
}
