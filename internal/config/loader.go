// Package config loads daemon configuration from the process environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config captures environment driven configuration values for the daemon.
type Config struct {
	// SQLiteDSN locates the schedule database.
	SQLiteDSN string `env:"NETLOCK_SQLITE_DSN" envDefault:"file:netlock.db"`

	// SeedPath points at a YAML schedule document imported at startup.
	// Empty disables seeding.
	SeedPath string `env:"NETLOCK_SEED_PATH"`
	// SeedMode is "merge" or "replace".
	SeedMode string `env:"NETLOCK_SEED_MODE" envDefault:"merge"`
	// SeedWatch re-imports the document whenever the file changes.
	SeedWatch bool `env:"NETLOCK_SEED_WATCH" envDefault:"false"`

	// ExecutorInterval is the spacing between evaluation ticks.
	ExecutorInterval time.Duration `env:"NETLOCK_EXECUTOR_INTERVAL" envDefault:"1m"`
	// DispatchRate caps lock commands per second.
	DispatchRate float64 `env:"NETLOCK_DISPATCH_RATE" envDefault:"5"`

	LogLevel  string `env:"NETLOCK_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"NETLOCK_LOG_FORMAT" envDefault:"console"`
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the tag parser cannot express.
func (c Config) Validate() error {
	if c.SQLiteDSN == "" {
		return fmt.Errorf("config: NETLOCK_SQLITE_DSN must not be empty")
	}
	if c.SeedMode != "merge" && c.SeedMode != "replace" {
		return fmt.Errorf("config: NETLOCK_SEED_MODE must be merge or replace, got %q", c.SeedMode)
	}
	if c.SeedWatch && c.SeedPath == "" {
		return fmt.Errorf("config: NETLOCK_SEED_WATCH requires NETLOCK_SEED_PATH")
	}
	if c.ExecutorInterval <= 0 {
		return fmt.Errorf("config: NETLOCK_EXECUTOR_INTERVAL must be positive")
	}
	if c.DispatchRate <= 0 {
		return fmt.Errorf("config: NETLOCK_DISPATCH_RATE must be positive")
	}
	return nil
}
