// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/osa030/voicequeue/internal/infra/config"
)

// Config represents logger configuration.
type Config struct {
	Output string // "stdout", "stderr", or a log file path
	Level  string // "debug", "info", "warn", "error"

	// Rotation of file output
	Rotation config.LogConfig
}

// NewConfig builds the logger configuration of the server: console output
// unless logfile is set, debug level when verbose.
func NewConfig(logfile string, verbose bool, rotation config.LogConfig) Config {
	cfg := Config{Output: "stdout", Level: "info", Rotation: rotation}
	if logfile != "" {
		cfg.Output = logfile
	}
	if verbose {
		cfg.Level = "debug"
	}
	return cfg
}

// Init initializes the global zerolog logger with the given configuration.
func Init(cfg Config) error {
	writer, err := newWriter(cfg)
	if err != nil {
		return err
	}
	level := parseLevel(cfg.Level)

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.TimeOnly
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	logger := newLogger(writer, isFile(cfg.Output), level == zerolog.DebugLevel)
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger

	return nil
}

// newWriter opens the output. Files are rotated by size and age.
func newWriter(cfg Config) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if strings.TrimSpace(cfg.Output) == "" {
		return nil, errors.New("log file path is required for file output")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create log directory for %s", cfg.Output)
	}
	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.Rotation.MaxSizeMB,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAgeDays,
		Compress:   cfg.Rotation.Compress,
	}, nil
}

// newLogger writes colored console lines to a terminal and JSON to files.
// The caller is added only at debug level.
func newLogger(w io.Writer, file, withCaller bool) zerolog.Logger {
	if file {
		ctx := zerolog.New(w).With().Timestamp()
		if withCaller {
			ctx = ctx.Caller()
		}
		return ctx.Logger()
	}

	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	if !withCaller {
		return zerolog.New(console).With().Timestamp().Logger()
	}
	console.PartsOrder = []string{"time", "level", "message", "caller"}
	console.FormatCaller = func(i any) string {
		return "(" + i.(string) + ")"
	}
	return zerolog.New(console).With().Timestamp().Caller().Logger()
}

// shortCaller keeps the last directory and the file name.
func shortCaller(_ uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// isFile reports whether output names a log file.
func isFile(output string) bool {
	switch strings.ToLower(output) {
	case "stdout", "stderr", "":
		return false
	}
	return true
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
