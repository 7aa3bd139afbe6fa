// Package config loads application configuration from a YAML file,
// environment variables and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// EnvPrefix is the prefix for environment variables. Nested keys use
	// a double underscore: KIOKU_SCHEDULER__MAXIMUM_INTERVAL.
	EnvPrefix = "KIOKU_"
	delimiter = "."
)

// Config is the application configuration.
type Config struct {
	// DB is the SQLite database path.
	DB string `koanf:"db" validate:"required"`
	// Addr is the HTTP listen address.
	Addr string `koanf:"addr" validate:"required,hostname_port"`
	// Sources lists card sources (local directories or git URLs) to
	// register on startup.
	Sources   []string        `koanf:"sources"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

// SchedulerConfig tunes the memory model.
type SchedulerConfig struct {
	// DesiredRetention is the recall probability the scheduler targets.
	DesiredRetention float64 `koanf:"desired_retention" validate:"gt=0,lte=1"`
	// MaximumInterval caps the scheduling interval in days.
	MaximumInterval int `koanf:"maximum_interval" validate:"gte=1"`
	// LearningSteps are the intra-day steps for cards in Learning.
	LearningSteps []time.Duration `koanf:"learning_steps"`
	// RelearningSteps are the steps for lapsed cards in Relearning.
	RelearningSteps []time.Duration `koanf:"relearning_steps"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB:   "kioku.db",
		Addr: "localhost:8484",
		Scheduler: SchedulerConfig{
			DesiredRetention: 0.9,
			MaximumInterval:  36500,
			LearningSteps:    []time.Duration{time.Minute, 10 * time.Minute},
			RelearningSteps:  []time.Duration{10 * time.Minute},
		},
	}
}

var validate = validator.New()

// Load builds the configuration: defaults, then the YAML file at path (if
// path is empty, "kioku.yaml" is used when present), then KIOKU_*
// environment variables, then the given flag set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(delimiter)

	if path == "" {
		if _, err := os.Stat("kioku.yaml"); err == nil {
			path = "kioku.yaml"
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, delimiter, envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, delimiter, k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envToKey maps KIOKU_SCHEDULER__DESIRED_RETENTION to
// scheduler.desired_retention.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", delimiter)
}
