package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelDebug), WithService("test-svc"))

	logger.Info("token refreshed", "user_id", "user-1", "token", TokenPreview("secret-token"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "test-svc", entry["service"])
	require.Equal(t, "token refreshed", entry["message"])

	fields := entry["fields"].(map[string]interface{})
	require.Equal(t, "user-1", fields["user_id"])
	require.NotContains(t, buf.String(), "secret-token")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelWarn))

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("also kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "kept")
}

func TestLoggerCorrelationIDFromFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))

	logger.Info("hello", "correlation_id", "abc-123", "other", 42)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "abc-123", entry["correlation_id"])

	fields := entry["fields"].(map[string]interface{})
	require.NotContains(t, fields, "correlation_id")
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))

	ctx := WithCorrelationID(context.Background(), "ctx-id")
	logger.InfoWithContext(ctx, "from context")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "ctx-id", entry["correlation_id"])
}

func TestTokenPreview(t *testing.T) {
	require.Equal(t, "empty", TokenPreview(""))
	require.Equal(t, "redacted(len=6)", TokenPreview("abcdef"))
	require.NotContains(t, TokenPreview("supersecret"), "supersecret")
}
