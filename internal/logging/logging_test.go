package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "info", "json")
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("shown", "stop_id", "U1252Z2")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "shown", entry["msg"])
		assert.Equal(t, "U1252Z2", entry["stop_id"])
		assert.Equal(t, "INFO", entry["level"])
	})

	t.Run("text output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "debug", "text")
		require.NoError(t, err)

		logger.Debug("details", "count", 2)
		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "count=2")
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := New(&bytes.Buffer{}, "loud", "json")
		assert.Error(t, err)
		_, err = New(&bytes.Buffer{}, "info", "xml")
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	for in, expected := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		level, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, expected, level, in)
	}
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	require.NoError(t, err)

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestLogHTTPRequest(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	require.NoError(t, err)

	LogHTTPRequest(logger, "GET", "/api/board", 200, 1.5, slog.String("request_id", "abc"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http_request", entry["msg"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/board", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, 1.5, entry["duration_ms"])
	assert.Equal(t, "abc", entry["request_id"])

	buf.Reset()
	LogHTTPRequest(logger, "GET", "/api/board", 503, 0.1)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)

	LogHTTPRequest(nil, "GET", "/", 200, 0)
}
