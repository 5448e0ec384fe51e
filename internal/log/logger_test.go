package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"follow-mm/internal/config"
)

func TestNewLogger_FileIsReleasedOnClose(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoggingConfig{
		Level:       "info",
		Encoding:    "json",
		Dir:         dir,
		MaxSizeMB:   5,
		MaxBackups:  5,
		OutputPaths: []string{filepath.Join(dir, "console.log")},
	}

	for _, msg := range []string{"第一次运行", "第二次运行"} {
		logger, closeLog, err := NewLogger(cfg, "mm_bid")
		require.NoError(t, err)
		logger.Info(msg)
		closeLog()
		closeLog()
	}

	data, err := os.ReadFile(filepath.Join(dir, "mm_bid.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "第一次运行")
	assert.Contains(t, string(data), "第二次运行")
	assert.Contains(t, string(data), `"logger":"mm_bid"`)

	backups, err := filepath.Glob(filepath.Join(dir, "mm_bid-*.log"))
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestNewLogger_NoFileWithoutName(t *testing.T) {
	dir := t.TempDir()
	logger, closeLog, err := NewLogger(config.LoggingConfig{
		Level:       "debug",
		Dir:         dir,
		OutputPaths: []string{filepath.Join(dir, "console.log")},
	}, "")
	require.NoError(t, err)
	logger.Debug("console only")
	closeLog()

	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "console.log")}, matches)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, _, err := NewLogger(config.LoggingConfig{Level: "loud"}, "")
	require.Error(t, err)
}
