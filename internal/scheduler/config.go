package scheduler

import (
	"os"
	"strings"
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval        time.Duration
	TotalsRefreshBatch int
	EnabledJobs        []string
	LeaderLockKey      string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        5 * time.Second,
		TotalsRefreshBatch: 100,
		LeaderLockKey:      "fundway:relay:leader",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.TotalsRefreshBatch <= 0 {
		c.TotalsRefreshBatch = defaults.TotalsRefreshBatch
	}
	if strings.TrimSpace(c.LeaderLockKey) == "" {
		c.LeaderLockKey = defaults.LeaderLockKey
	}
	return c
}

func ProvideConfig() Config {
	cfg := DefaultConfig()
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_RUN_INTERVAL")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			cfg.RunInterval = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED_JOBS")); raw != "" {
		for _, job := range strings.Split(raw, ",") {
			if job = strings.TrimSpace(job); job != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, job)
			}
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_LEADER_LOCK_KEY")); raw != "" {
		cfg.LeaderLockKey = raw
	}
	return cfg
}
