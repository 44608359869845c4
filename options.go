package fragments

import (
	"io"

	"github.com/goliatone/go-fragments/pkg/activity"
	"github.com/goliatone/go-fragments/pkg/state"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	logger      zerolog.Logger
	hooks       activity.Hooks
	activity    activity.Config
	persistence state.Store[map[string]any]
	idGenerator func() string
}

func applyOptions(opts []Option) storeConfig {
	cfg := storeConfig{
		logger:      zerolog.Nop(),
		activity:    activity.Config{Enabled: true, Channel: activity.DefaultChannel},
		idGenerator: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger sets the logger used for lifecycle debugging and hook failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *storeConfig) {
		cfg.logger = logger
	}
}

// WithActivityHooks attaches hooks notified of record lifecycle events. Nil
// entries are dropped.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *storeConfig) {
		cfg.hooks = cfg.hooks.With(hooks...)
	}
}

// WithActivityConfig controls whether events are emitted and their channel.
func WithActivityConfig(config activity.Config) Option {
	return func(cfg *storeConfig) {
		cfg.activity = config
	}
}

// WithPersistence sets the adapter used by Store.Save and Store.Find.
func WithPersistence(persistence state.Store[map[string]any]) Option {
	return func(cfg *storeConfig) {
		cfg.persistence = persistence
	}
}

// WithIDGenerator replaces the UUID generator used for new records.
func WithIDGenerator(fn func() string) Option {
	return func(cfg *storeConfig) {
		if fn != nil {
			cfg.idGenerator = fn
		}
	}
}

// WithConfig applies an environment-driven Config, logging to w.
func WithConfig(config Config, w io.Writer) Option {
	return func(cfg *storeConfig) {
		cfg.activity = config.Activity
		if w == nil {
			return
		}
		logger, err := config.Logger(w)
		if err != nil {
			cfg.logger = zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
			cfg.logger.Warn().Err(err).Msg("invalid log level, using info")
			return
		}
		cfg.logger = logger
	}
}
