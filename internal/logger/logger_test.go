package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arlens/internal/config"
)

func TestNewWithWriter_LevelsAndFormatting(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.Info("frame %d queued", 7)
	log.Warning("queue %s full", "detection")
	log.Error("detector failed: %v", os.ErrClosed)

	out := buf.String()
	assert.Contains(t, out, "frame 7 queued")
	assert.Contains(t, out, "queue detection full")
	assert.Contains(t, out, "detector failed: file already closed")
	assert.Contains(t, out, "[WARN]")
}

func TestNewLogger_WritesPerLevelFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)

	log.Info("hello info")
	log.Error("hello error")

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "hello info")

	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "hello error")
	assert.NotContains(t, string(errs), "hello info")
}

func TestCleanLogs(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)

	log.Warning("something to clear")
	require.NoError(t, log.CleanLogs("warning.log"))

	data, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	require.NoError(t, err)
	assert.Empty(t, data)

	assert.Error(t, log.CleanLogs("../secret.log"))
}
