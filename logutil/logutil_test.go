package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)

	logger.Log(t.Context(), LevelTrace, "dispatch", "mode", "causal")

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "source=logutil_test.go:")
	assert.Contains(t, out, "mode=causal")
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	slog.SetDefault(NewLogger(&buf, slog.LevelDebug))
	Trace("hidden")
	assert.Empty(t, buf.String())

	slog.SetDefault(NewLogger(&buf, LevelTrace))
	Trace("visible", "masks", 1)
	assert.Contains(t, buf.String(), "msg=visible")
	assert.Contains(t, buf.String(), "masks=1")
}

func TestDiagnosticSink(t *testing.T) {
	var buf bytes.Buffer
	sink := DiagnosticSink(NewLogger(&buf, slog.LevelInfo))

	sink("[broadcast_shapes] Shapes (2,3) and (4,5) cannot be broadcast.\n")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `msg="mlx error"`)
	assert.True(t, strings.Contains(out, `error="[broadcast_shapes]`), out)
	assert.True(t, strings.Contains(out, `cannot be broadcast."`), out)
}
