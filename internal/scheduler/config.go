package scheduler

import "time"

// Config controls sweep intervals and batch sizes.
type Config struct {
	RunInterval        time.Duration
	BatchSize          int
	StaleCallbackAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        time.Minute,
		BatchSize:          50,
		StaleCallbackAfter: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.StaleCallbackAfter <= 0 {
		c.StaleCallbackAfter = defaults.StaleCallbackAfter
	}
	return c
}
