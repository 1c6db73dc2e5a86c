package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicequeue/internal/infra/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{input: "debug", expected: zerolog.DebugLevel},
		{input: "INFO", expected: zerolog.InfoLevel},
		{input: "", expected: zerolog.InfoLevel},
		{input: "warning", expected: zerolog.WarnLevel},
		{input: "error", expected: zerolog.ErrorLevel},
		{input: "verbose", expected: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	require.NoError(t, Init(Config{Output: path, Level: "info", Rotation: config.LogConfig{MaxSizeMB: 1}}))
	zlog.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestInit_CreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", "server.log")

	require.NoError(t, Init(Config{Output: path, Level: "debug"}))
	zlog.Debug().Msg("nested")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"caller":`)
}

func TestInit_BlankFilePath(t *testing.T) {
	assert.Error(t, Init(Config{Output: "   "}))
}

func TestNewConfig(t *testing.T) {
	rotation := config.LogConfig{MaxSizeMB: 10, MaxBackups: 2}

	tests := []struct {
		name     string
		logfile  string
		verbose  bool
		expected Config
	}{
		{name: "console", expected: Config{Output: "stdout", Level: "info", Rotation: rotation}},
		{name: "verbose", verbose: true, expected: Config{Output: "stdout", Level: "debug", Rotation: rotation}},
		{name: "file", logfile: "/var/log/vq.log", expected: Config{Output: "/var/log/vq.log", Level: "info", Rotation: rotation}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewConfig(tt.logfile, tt.verbose, rotation))
		})
	}
}
