// Package logger configures the process-wide zerolog instance and hands out
// component-scoped child loggers.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var root zerolog.Logger

func init() {
	root = zerolog.New(os.Stdout).With().Timestamp().Str("service", "matcher").Logger()
}

// Init sets the global level and output format. pretty enables the console
// writer for local development; production stays JSON.
func Init(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(level))

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	root = zerolog.New(out).With().Timestamp().Str("service", "matcher").Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

// Cycle returns a child logger tagged with a match cycle ID. All pipeline
// stages log through this so a cycle's records can be pulled as one stream.
func Cycle(cycleID string) zerolog.Logger {
	return root.With().Str("cycle_id", cycleID).Logger()
}

// Root returns the process logger.
func Root() zerolog.Logger {
	return root
}
