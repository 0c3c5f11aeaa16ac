// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// FileConfig enables a rotating log file next to the console output.
type FileConfig struct {
	// Path is the log file path. Empty disables file logging.
	Path string

	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int

	// MaxAge is the number of days to keep rotated files.
	MaxAge int

	// Compress gzips rotated files.
	Compress bool
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File optionally duplicates every record into a rotating file.
	File FileConfig
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
		File: FileConfig{
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var output io.Writer = out
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: out}
	}

	// File records are always JSON, regardless of console formatting.
	if cfg.File.Path != "" {
		output = io.MultiWriter(output, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		})
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Individual fetch attempts that succeed on the first try
//   - Worker start/stop
//
// Info: Normal operation events
//   - Harvest run start/finish with counts
//   - Pagination discovery results
//   - Files written by the sink
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and backoff
//   - Pager text that cannot be parsed (assumes 1 page)
//   - Failed work items (recorded in the failure manifest)
//   - Cache or politeness-store errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Retries exhausted
//   - Persistence failures
//   - Configuration errors
//
// Context Fields:
//   - url: page URL
//   - attempt: 1-based attempt number
//   - status_code: HTTP status code
//   - failure_kind: network, timeout, http_status, too_large, cancelled, extraction
//   - run_id: harvest run identifier
//   - source: site/listing pair, e.g. "azquotes/quotes"
//   - duration: elapsed time
