// Package logging configures structured zerolog output for the gateway.
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
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentGateway      = "gateway"
	ComponentController   = "offline-controller"
	ComponentHost         = "offline-host"
	ComponentUpstream     = "upstream"
	ComponentPrecache     = "precache"
	ComponentConnectivity = "connectivity"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `yaml:"level"`

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool `yaml:"pretty"`

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Validate rejects unknown levels. An empty level means info.
func (c Config) Validate() error {
	switch strings.ToLower(string(c.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", c.Level)
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
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
//   - Cache lookups and fallbacks taken while offline
//   - Ignored sync tags
//   - Precache worker progress
//
// Info: Normal operation events
//   - Install, activate and replay sweep summaries
//   - Reports queued while offline, reports replayed
//   - Origin reachable again
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Origin unreachable (serving offline responses)
//   - Cache write failures (response still returned)
//   - Retry attempts
//   - A queued report that failed to replay (kept for the next sweep)
//
// Error: Error conditions requiring attention
//   - A report that could not be queued
//   - Replay sweep failures
//   - Signal handler failures
//   - Configuration errors
//
// Context Fields:
//   - component: emitting component (see Component* constants)
//   - url / key: request URL or cache key
//   - cache: cache generation name
//   - status: HTTP status code
//   - duration: operation duration
//   - error_class: upstream error classification (client, server, network)
//   - signal: host signal ("install", "activate", "sync:<tag>")
//   - attempted / replayed / failed: replay sweep counts
