package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const envLogLevel = "JASTON_LOG_LEVEL"

// New returns a zerolog logger configured for stdout.
// The level is taken from JASTON_LOG_LEVEL (debug/info/warn/error), defaulting to info.
func New() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(levelFromEnv()).With().Timestamp().Logger()
}

// NewConsole returns a logger with human-readable console output, used for
// interactive runs of the setup CLI.
func NewConsole() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stdout}
	return zerolog.New(writer).Level(levelFromEnv()).With().Timestamp().Logger()
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envLogLevel))) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
