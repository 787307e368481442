// Package logx configures the process-wide zerolog logger and hands out
// component-scoped children, following the pattern used throughout the
// controller for every log line: one structured line per event, timestamp
// first.
package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance, set up by this package's init so it
// is ready to use before Initialize (which refines formatting/level but is
// not required before first use).
var Log zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Log = log.With().Str("component", "controller").Logger()
}

// Initialize sets up the global logger with the requested level and
// console/JSON formatting.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	Log = log.With().
		Str("component", "controller").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// Component returns a child logger tagged with the given component name,
// e.g. logx.Component("store") or logx.Component("plugin:firewall").
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}
