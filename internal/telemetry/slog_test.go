package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_TraceCorrelation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "info")

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "with span")
	logger.Info("without span")
	logger.Debug("filtered")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, sc.TraceID().String(), lines[0]["trace_id"])
	assert.Equal(t, sc.SpanID().String(), lines[0]["span_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestTeeHandler(t *testing.T) {
	t.Parallel()

	var primary, debug bytes.Buffer
	extra := slog.NewJSONHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewLogger(&primary, "warn", extra).With("component", "pool")

	logger.Debug("debug only")
	logger.Warn("both")

	p := decodeLines(t, &primary)
	d := decodeLines(t, &debug)
	require.Len(t, p, 1)
	require.Len(t, d, 2)
	assert.Equal(t, "both", p[0]["msg"])
	assert.Equal(t, "pool", p[0]["component"])
	assert.Equal(t, "pool", d[0]["component"])
}

func TestFileHandler_TeesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "benchd.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"msg":"earlier"}`+"\n"), 0o644))

	h, closer, err := FileHandler(path, "info")
	require.NoError(t, err)

	var stdout bytes.Buffer
	logger := NewLogger(&stdout, "info", h)
	logger.Info("launched", "workerPool", 8)
	logger.Debug("filtered")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, "existing content is appended to")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "launched", rec["msg"])
	assert.Equal(t, float64(8), rec["workerPool"])
	assert.Len(t, decodeLines(t, &stdout), 1)
}

func TestFileHandler_OpenError(t *testing.T) {
	t.Parallel()

	_, _, err := FileHandler(filepath.Join(t.TempDir(), "missing", "benchd.log"), "info")
	assert.ErrorContains(t, err, "opening log file")
}
