// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
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
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
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
//   - Route selection and pacing delays
//   - Per-attempt request flow
//
// Info: Normal operation events
//   - Successful page and detail fetches
//   - Route pool construction (route counts, validation results)
//   - Scrape run start/finish
//
// Warn: Warning conditions that don't prevent operation
//   - Route cooldowns after failures
//   - Retry attempts on alternate routes
//   - Cache errors (fallback to direct fetch)
//   - Provider sources skipped (missing file, API error)
//
// Error: Error conditions requiring attention
//   - Fetches that exhausted all attempts
//   - All routes cooling down beyond the wait limit
//   - Configuration errors
//
// Context Fields:
//   - url: Target URL being fetched (proxy credentials redacted)
//   - route: Route identifier ("direct" or redacted proxy URI)
//   - status_code: HTTP status code
//   - duration: Request duration
//   - kind: Failure classification (timeout, connection, http_status, other)
//   - attempt: Attempt number within a fetch
//   - cooldown: Cooldown duration applied to a route
//   - cache_hit: Boolean indicating cache hit
