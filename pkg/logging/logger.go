// Package logging configures zerolog for the command and hands out component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs every page request.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs query and page progress.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries and rate limit warnings.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed queries only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
// Logs go to stderr so stdout carries only the rankings.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Context Fields:
//   - component: emitting package (funda-client, paginator, agents, ratelimit, retry)
//   - search_path: feed search, e.g. /amsterdam/tuin/
//   - page: 1-based page number
//   - status: HTTP status code of a failed request
//   - error_class: auth, rate_limit, server, client, network, decode
//   - attempt / delay: retry number and backoff before it
//   - listings / agents: counts for a page or a finished query
