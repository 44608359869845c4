package fragments

import (
	"fmt"
	"io"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-fragments/pkg/activity"
	"github.com/goliatone/go-fragments/pkg/state"
	"github.com/rs/zerolog"
)

// Config is the environment-driven configuration of a Store.
type Config struct {
	LogLevel  string             `env:"FRAGMENTS_LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat string             `env:"FRAGMENTS_LOG_FORMAT" envDefault:"json" yaml:"log_format"`
	Activity  activity.Config    `envPrefix:"FRAGMENTS_ACTIVITY_" yaml:"activity"`
	SQLite    state.SQLiteConfig `envPrefix:"FRAGMENTS_SQLITE_" yaml:"sqlite"`
}

// ConfigFromEnv loads Config from the process environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ConfigFromMap loads Config from vars instead of the process environment.
func ConfigFromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Logger builds a zerolog logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if strings.TrimSpace(c.LogLevel) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("fragments: log level: %w", err)
		}
		level = parsed
	}
	if c.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
