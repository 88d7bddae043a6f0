// Package logging builds the zerolog loggers shared by every binary.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"market-predictor/pkg/tracing"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration. Level and Format come from
// LOG_LEVEL and LOG_FORMAT.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
	Caller     bool   `mapstructure:"caller"`

	// Output defaults to stdout. The MCP stdio server points it at stderr
	// so log lines never interleave with protocol frames.
	Output io.Writer `mapstructure:"-"`
}

// NewLogger constructs a zerolog logger from config. Unknown or empty levels
// fall back to info. Every line carries the service name so the server, ssh,
// mcp and predictor binaries can share one log sink.
func NewLogger(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil && cfg.Level != "" {
		level = parsed
	}

	builder := zerolog.New(writer(cfg)).Level(level).With().
		Timestamp().
		Str("service", tracing.ServiceName)
	if cfg.Caller {
		builder = builder.Caller()
	}
	return builder.Logger()
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func writer(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}
	return out
}
