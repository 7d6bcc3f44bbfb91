package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps the names accepted by --log-level and LOG_LEVEL to zerolog levels.
// Unknown names fall back to def.
func ParseLevel(name string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	case "off", "none", "disabled":
		return zerolog.Disabled
	default:
		return def
	}
}

// Init configures the global zerolog logger. The explicit level wins over
// LOG_LEVEL; with neither set the logger only shows errors.
func Init(level string, out io.Writer) zerolog.Logger {
	lvl := zerolog.ErrorLevel
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		lvl = ParseLevel(l, lvl)
	}
	if level != "" {
		lvl = ParseLevel(level, lvl)
	}

	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    out != os.Stderr && out != os.Stdout,
	}).Level(lvl).With().Timestamp().Logger()

	log.Logger = logger
	return logger
}

// Module returns a child logger tagged with the component name.
func Module(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str("module", name).Logger()
}
