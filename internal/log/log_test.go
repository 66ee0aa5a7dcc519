package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestComponent_TextHandler(t *testing.T) {
	t.Setenv(EnvLogFormat, "")
	var buf bytes.Buffer
	InitWriter("info", &buf)

	Component("link").Info("connected", "session", "abc")
	Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "component=link")
	assert.Contains(t, out, "session=abc")
	assert.NotContains(t, out, "hidden")
}

func TestJSONHandler(t *testing.T) {
	t.Setenv(EnvLogFormat, "json")
	var buf bytes.Buffer
	InitWriter("debug", &buf)

	With("component", "roles").Debug("updated device assignments", "controllers", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "roles", rec["component"])
	assert.Equal(t, float64(2), rec["controllers"])
	assert.Equal(t, "DEBUG", rec["level"])
}
