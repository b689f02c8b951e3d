// Package logging wraps slog with the field names used across the engine.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with engine-specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a Logger with the given handler. A nil handler writes text
// records at Info level to stderr.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that writes JSON records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Noop returns a Logger that discards everything.
func Noop() *Logger {
	return New(slog.DiscardHandler)
}

// With returns a Logger with the given attributes attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithComponent tags records with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithCount tags records with the requested flip count.
func (l *Logger) WithCount(count uint64) *Logger {
	return l.With("count", count)
}

// LogRun records the outcome of one request on a given path.
func (l *Logger) LogRun(ctx context.Context, path string, count, heads uint64, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "run failed",
			"path", path,
			"count", count,
			"elapsed", elapsed,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "run completed",
		"path", path,
		"count", count,
		"heads", heads,
		"elapsed", elapsed,
	)
}

// LogFallback records a device failure that was absorbed by the CPU path.
func (l *Logger) LogFallback(ctx context.Context, count uint64, err error) {
	l.WarnContext(ctx, "device path unavailable, falling back to cpu",
		"count", count,
		"error", err,
	)
}

// LogProgress records how far a run has come.
func (l *Logger) LogProgress(ctx context.Context, done, total uint64) {
	pct := 100.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	l.InfoContext(ctx, "progress",
		"done", done,
		"total", total,
		"percent", pct,
	)
}
