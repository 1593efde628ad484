package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"WARNING":  slog.LevelWarn,
		"warn":     slog.LevelWarn,
		"ERROR":    slog.LevelError,
		"CRITICAL": slog.LevelError,
		"":         slog.LevelInfo,
		"bogus":    slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), "level %q", name)
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := setup(config.Logging{Level: "INFO", JSONFormat: true}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("measurement", "subject", "load")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "measurement", record["msg"])
	assert.Equal(t, "load", record["subject"])
	assert.Equal(t, "INFO", record["level"])
}

func TestSetupTextWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.log")
	var buf bytes.Buffer

	logger, closer, err := setup(config.Logging{Level: "DEBUG", LogFile: path}, &buf)
	require.NoError(t, err)

	logger.Debug("written twice", "k", "v")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=\"written twice\" k=v")
	assert.Equal(t, buf.String(), string(data))
}

func TestSetupBadLogFile(t *testing.T) {
	_, _, err := Setup(config.Logging{LogFile: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
