package config

import "time"

// RegistryConfig selects and tunes the Agent Registry backend (spec §4.5:
// memory, sqlite, or postgres).
type RegistryConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `yaml:"backend"`

	// DSN is the sqlite file path or postgres connection string; unused
	// for the memory backend.
	DSN string `yaml:"dsn"`

	// GCRetention is how long an ended/errored agent's record survives
	// before the reconciler purges it.
	GCRetention time.Duration `yaml:"gc_retention"`

	// GCSchedule is a 5-field cron expression for the retention sweep.
	GCSchedule string `yaml:"gc_schedule"`
}

func applyRegistryDefaults(cfg *RegistryConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "sqlite"
	}
	if cfg.GCRetention == 0 {
		cfg.GCRetention = 72 * time.Hour
	}
	if cfg.GCSchedule == "" {
		cfg.GCSchedule = "0 * * * *"
	}
}
