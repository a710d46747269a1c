package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/jobpipe/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := logger.ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
	}
}

// Setup replaces the slog default, so these cases do not run in parallel.
func TestSetup(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	t.Run("filters below level", func(t *testing.T) {
		buf := &logger.TestLogBuffer{}
		log := logger.Setup(logger.Options{Level: "warn", Output: buf, Component: "worker"})

		log.Info("hidden")
		log.Warn("shown", "job_id", "j1")

		entries, err := buf.GetLogEntries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "shown", entries[0]["msg"])
		assert.Equal(t, "worker", entries[0]["service"])
		assert.Equal(t, "j1", entries[0]["job_id"])
		assert.Same(t, log, slog.Default())
	})

	t.Run("invalid level warns and uses info", func(t *testing.T) {
		buf := &logger.TestLogBuffer{}
		log := logger.Setup(logger.Options{Level: "loud", Output: buf})

		log.Debug("hidden")
		log.Info("shown")

		logger.AssertLogContains(t, buf, "invalid log level configured")
		logger.AssertLogField(t, buf, "configured_level", "loud")
		assert.Len(t, buf.EntriesWithMessage("shown"), 1)
		assert.Empty(t, buf.EntriesWithMessage("hidden"))
	})
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	log, buf := logger.GetTestLogger(t)
	ctx := logger.WithLogger(context.Background(), log.With("trace_id", "abc"))

	logger.FromContext(ctx).Info("hello")
	logger.AssertLogField(t, buf, "trace_id", "abc")

	assert.Equal(t, slog.Default(), logger.FromContext(context.Background()))

	fallback, _ := logger.GetTestLogger(t)
	assert.Same(t, fallback, logger.FromContextOr(context.Background(), fallback))
}
