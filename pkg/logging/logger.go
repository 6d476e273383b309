// Package logging configures structured zerolog output for the crawler.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs every page, request and rate limit observation.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs fetch summaries, throttling and absent subjects.
	LevelInfo LogLevel = "info"

	// LevelWarn logs unexpected responses and header anomalies.
	LevelWarn LogLevel = "warn"

	// LevelError logs exhausted retries only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer logs go to (default: os.Stderr). Stdout is
	// reserved for fetched records.
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
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Second

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidateLevel reports whether level names a known log level.
func ValidateLevel(level LogLevel) error {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
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
//   - Every signed request (endpoint, query)
//   - Timeline pages collected (page, collected, max_id)
//   - Rate limit observations and window backoffs
//
// Info: Normal operation events
//   - Fetch summaries (pages, tweets)
//   - Throttled (400) responses
//   - Absent subjects (401/403/404 per operation)
//
// Warn: Conditions that cost a retry
//   - Unexpected statuses and transport failures
//   - Missing or malformed rate limit headers
//   - Undecodable 200 bodies
//   - Rate limit store failures
//
// Error: Conditions ending an operation
//   - Maximum retries exhausted
//
// Context Fields:
//   - component: crawler-client, ratelimit, ratelimit-store, cli
//   - operation: user_timeline, users_lookup, users_show
//   - endpoint: API endpoint path
//   - status: HTTP status code
//   - attempt: consecutive failed attempts so far
//   - user_id: subject of the operation
//   - remaining: X-Rate-Limit-Remaining value
//   - sleep: backoff duration in seconds
