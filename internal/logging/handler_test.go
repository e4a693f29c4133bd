package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestNew_AddsServiceAndTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := New("authkeeper", "info", "json", &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log.Info(ctx, "signed in", "user_id", "u1")

	m := decodeLine(t, &buf)
	assert.Equal(t, "authkeeper", m["service"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", m["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", m["span_id"])
	assert.Equal(t, "u1", m["user_id"])
}

func TestNew_NoSpanNoTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := New("", "info", "json", &buf)

	log.With("component", "store").Warn(context.Background(), "slow query")

	m := decodeLine(t, &buf)
	assert.NotContains(t, m, "trace_id")
	assert.NotContains(t, m, "service")
	assert.Equal(t, "store", m["component"])
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New("svc", "warn", "text", &buf)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden too")
	assert.Empty(t, buf.String())

	log.Error(context.Background(), "shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestErrorAttrs(t *testing.T) {
	assert.Nil(t, ErrorAttrs(nil))

	plain := ErrorAttrs(errors.New("boom"))
	assert.Equal(t, []any{"error", "boom"}, plain)

	err := oops.Code("DB_QUERY").With("operation", "rotate").Errorf("connection reset")
	attrs := ErrorAttrs(err)
	require.Len(t, attrs, 6)
	assert.Equal(t, "code", attrs[2])
	assert.Equal(t, "DB_QUERY", attrs[3])
	assert.Equal(t, "context", attrs[4])
	assert.Equal(t, "rotate", attrs[5].(map[string]any)["operation"])
}

func TestNop_SatisfiesLogger(t *testing.T) {
	var l Logger = Nop{}
	l.With("k", "v").Info(context.Background(), "ignored")
}
