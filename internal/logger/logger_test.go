package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-transport/config"
)

func TestNewLoggerStdout(t *testing.T) {
	log, err := NewLogger(&config.LogConfig{
		Level:      "debug",
		OutputPath: "stdout",
		Encoding:   "json",
	})
	require.NoError(t, err)
	assert.NotNil(t, log)

	log.Debug("debug message", "key", "value")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message", "error", "boom")
}

func TestNewLoggerConsoleEncoding(t *testing.T) {
	log, err := NewLogger(&config.LogConfig{
		Level:    "info",
		Encoding: "console",
	})
	require.NoError(t, err)
	log.Info("console line", "n", 1)
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transport.log")
	log, err := NewLogger(&config.LogConfig{
		Level:      "info",
		OutputPath: path,
		Encoding:   "json",
		MaxSize:    1,
	})
	require.NoError(t, err)

	log.Info("to file", "key", "value")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNewLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	log, err := NewLogger(&config.LogConfig{Level: "verbose"})
	require.NoError(t, err)
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Info("dropped")
}
