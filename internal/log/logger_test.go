package log

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, &Config{Level: "info", Format: "text", Output: "stderr"}, DefaultConfig())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestInit(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	assert.ErrorContains(t, Init(&Config{Level: "info", Format: "xml"}), "unknown log format")

	require.NoError(t, Init(&Config{Level: "debug", Format: "json", Output: "stdout"}))
	assert.True(t, Logger().Enabled(context.Background(), slog.LevelDebug))

	require.NoError(t, Init(&Config{Level: "error"}))
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelWarn))
}

func TestFromContext_AddsRequestID(t *testing.T) {
	buf := captureLogs(t)

	FromContext(WithRequestID(context.Background(), "abcd1234")).Info("tagged")
	FromContext(context.Background()).Info("plain")

	out := buf.String()
	assert.Contains(t, out, "msg=tagged request_id=abcd1234")
	assert.Contains(t, out, "msg=plain\n")
}
