package config

import "time"

// SessionConfig tunes the Agent Manager's lifecycle and the Session Hub's
// fan-out behavior (spec §3/§4.1, §4.4).
type SessionConfig struct {
	// AutoWakeWindow is how long an idle agent's stream pump is kept alive
	// before it's allowed to sleep (spec §4.1).
	AutoWakeWindow time.Duration `yaml:"auto_wake_window"`

	// SubscriberQueueSize is defaulted and validated here but not read by
	// the agent package: each subscription's event channel has a fixed
	// 1024-slot buffer; once full a subscriber is marked lagged and
	// resynced (spec §3).
	SubscriberQueueSize int `yaml:"subscriber_queue_size"`

	// PidLockGCSchedule is a 5-field cron expression for the stale
	// PID-lock sweep (spec §4.5).
	PidLockGCSchedule string `yaml:"pid_lock_gc_schedule"`
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.AutoWakeWindow == 0 {
		cfg.AutoWakeWindow = 10 * time.Minute
	}
	if cfg.SubscriberQueueSize == 0 {
		cfg.SubscriberQueueSize = 1024
	}
	if cfg.PidLockGCSchedule == "" {
		cfg.PidLockGCSchedule = "*/5 * * * *"
	}
}
