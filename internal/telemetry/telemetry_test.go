package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("debug", "json", &buf)
	log.Debug("queue.job.completed", "job_id", "7")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "queue.job.completed", rec["msg"])
	assert.Equal(t, "7", rec["job_id"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewTracerProvider(t *testing.T) {
	tp, shutdown, err := NewTracerProvider("none", nil)
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))

	var buf bytes.Buffer
	tp, shutdown, err = NewTracerProvider("stdout", &buf)
	require.NoError(t, err)
	_, span := Tracer(tp).Start(context.Background(), "extract.invoke")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "extract.invoke")

	_, _, err = NewTracerProvider("jaeger", nil)
	assert.Error(t, err)
}
