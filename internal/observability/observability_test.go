package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("alert dispatched", "alert_id", "a-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "alert dispatched", line["msg"])
	assert.Equal(t, "a-1", line["alert_id"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "text")

	logger.Debug("catalog lookup", "event_id", "eq-1")

	assert.Contains(t, buf.String(), "msg=\"catalog lookup\"")
	assert.Contains(t, buf.String(), "event_id=eq-1")
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()

	require.NoError(t, reg.Register(m.MessagesConsumed))
	for _, c := range m.collectors()[1:] {
		require.NoError(t, reg.Register(c))
	}

	m.DeliveryOutcomes.WithLabelValues("sms", "failed").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryOutcomes.WithLabelValues("sms", "failed")))
}
