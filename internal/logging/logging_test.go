package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestSetupWritesServiceAttrs(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := setup(&buf, "info", "skymiles-app", "test")
	logger.Info("hello", "flight_id", 7)
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `"service":"skymiles-app"`)
	assert.Contains(t, out, `"env":"test"`)
	assert.Contains(t, out, `"severity":"INFO"`)
	assert.Contains(t, out, `"message":"hello"`)
	assert.NotContains(t, out, "hidden")
}
