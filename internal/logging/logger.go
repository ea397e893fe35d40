// Package logging configures the process-wide zerolog logger.
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

// Config holds logging configuration
type Config struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, pretty
}

// Setup configures the global logger. Output defaults to stdout and an
// unrecognised level falls back to info.
func Setup(cfg Config, output io.Writer) error {
	level, levelErr := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if levelErr != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if output == nil {
		output = os.Stdout
	}
	switch cfg.Format {
	case "pretty":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	case "", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	if levelErr != nil {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
	}
	return nil
}

// Component returns a logger tagged with the component name
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
