package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how Setup builds the process logger.
type Options struct {
	// Level is one of debug, info, warn, error (case-insensitive).
	Level string
	// Output defaults to os.Stdout.
	Output io.Writer
	// Component, when set, is attached to every record as "service".
	Component string
}

// ParseLevel converts a level name into a slog.Level. The second result is
// false when the name is not recognized, in which case info is returned.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup builds a JSON logger at the configured level and installs it as the
// slog default so package-level slog calls share the same output.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level, ok := ParseLevel(opts.Level)
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})

	logger := slog.New(handler)
	if opts.Component != "" {
		logger = logger.With("service", opts.Component)
	}

	if !ok {
		logger.Warn("invalid log level configured, using default level",
			"configured_level", opts.Level,
			"default_level", "info")
	}

	slog.SetDefault(logger)
	return logger
}
