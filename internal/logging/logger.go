// Package logging configures the global zerolog logger and emits the
// cold-start summary event.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv names the variable read by Init.
const LevelEnv = "LOG_LEVEL"

// Init configures the global logger from LOG_LEVEL. Inside Lambda the output
// is JSON on stdout; elsewhere a console writer on stderr.
func Init() {
	Setup(os.Getenv(LevelEnv), os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "", nil)
}

// Setup sets the global level and output. A nil w selects the default stream
// for the mode.
func Setup(level string, structured bool, w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	if structured {
		if w == nil {
			w = os.Stdout
		}
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	if w == nil {
		w = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

// ParseLevel maps debug, info, warn and error. Anything else is info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
