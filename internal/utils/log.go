package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerOptions configures the logger.
type LoggerOptions struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer
	// Prefix is the component name prefix
	Prefix          string
	ReportTimestamp bool
}

// DefaultLoggerOptions returns the options used by the CLI.
func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		Level:           "info",
		Output:          os.Stderr,
		ReportTimestamp: true,
	}
}

// ParseLevel converts a string level to log.Level. Unknown names map to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// InitLogger creates a new logger with the given options.
func InitLogger(opts LoggerOptions) *log.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	return log.NewWithOptions(opts.Output, log.Options{
		Level:           ParseLevel(opts.Level),
		Prefix:          opts.Prefix,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: opts.ReportTimestamp,
	})
}

// InitDefaultLogger creates a logger with default options, respecting DOCMASK_LOG_LEVEL.
func InitDefaultLogger() *log.Logger {
	opts := DefaultLoggerOptions()
	if level := os.Getenv("DOCMASK_LOG_LEVEL"); level != "" {
		opts.Level = level
	}
	return InitLogger(opts)
}

var defaultLogger = InitDefaultLogger()

// SetDefaultLogger replaces the process-wide logger.
func SetDefaultLogger(logger *log.Logger) {
	defaultLogger = logger
}

// Logger returns the process-wide logger.
func Logger() *log.Logger {
	return defaultLogger
}

// WithPrefix returns a component logger, e.g. "server" or "worker".
func WithPrefix(prefix string) *log.Logger {
	return defaultLogger.WithPrefix(prefix)
}
