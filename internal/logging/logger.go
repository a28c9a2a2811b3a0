package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv overrides the configured log level when set
const LevelEnv = "DERMDX_LOG_LEVEL"

// Init initializes the global logger. The level is one of debug, info, warn,
// error (default: info); DERMDX_LOG_LEVEL takes precedence when set.
func Init(level string) {
	InitWithWriter(level, zerolog.ConsoleWriter{Out: os.Stderr})
}

// InitWithWriter is Init with a custom output
func InitWithWriter(level string, w io.Writer) {
	if env := os.Getenv(LevelEnv); env != "" {
		level = env
	}
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = log.Output(w)
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
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
