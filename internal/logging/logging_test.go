package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphi/backend/internal/config"
)

func TestJSONLoggerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.Log{Format: config.LogFormatJSON, Level: slog.LevelInfo})

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	logger.With(slog.String("component", "test")).InfoContext(ctx, "hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "test", line["component"])
}

func TestLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.Log{Format: config.LogFormatText, Level: slog.LevelWarn})

	logger.Info("quiet")
	assert.Zero(t, buf.Len())

	logger.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}
