package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).WithComponent("test")

	ctx := context.Background()
	l.LogRun(ctx, "cpu", 100, 48, time.Millisecond, nil)
	l.LogFallback(ctx, 1<<40, errors.New("no adapter"))
	l.LogProgress(ctx, 50, 200)

	out := buf.String()
	require.Contains(t, out, `"msg":"run completed"`)
	require.Contains(t, out, `"heads":48`)
	require.Contains(t, out, `"component":"test"`)
	require.Contains(t, out, `"error":"no adapter"`)
	require.Contains(t, out, `"percent":25`)
}

func TestNoopDiscards(t *testing.T) {
	l := Noop()
	require.False(t, l.Enabled(context.Background(), slog.LevelError))
	require.Equal(t, slog.DiscardHandler, l.Handler())
}
