package config

import (
	"time"
)

// SchedulerConfig controls the cadence of the reconciliation jobs and the
// windows they act on. Defaults match the production cadences: backfill every
// 10 minutes, reaping hourly with a 2 hour staleness window, SOS auto-resolve
// daily with a 3 day inactivity window, score recomputation daily.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`

	LocationBackfillInterval time.Duration `yaml:"location_backfill_interval"`

	StaleTripReapInterval time.Duration `yaml:"stale_trip_reap_interval"`
	TripStalenessWindow   time.Duration `yaml:"trip_staleness_window"`

	SOSAutoResolveInterval time.Duration `yaml:"sos_auto_resolve_interval"`
	SOSInactivityWindow    time.Duration `yaml:"sos_inactivity_window"`

	SafetyScoreInterval time.Duration `yaml:"safety_score_interval"`

	BatchLimit int `yaml:"batch_limit"`
}

func loadSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Enabled:                  getEnvAsBool("SCHEDULER_ENABLED", true),
		LocationBackfillInterval: getEnvAsDuration("SCHEDULER_LOCATION_BACKFILL_INTERVAL", 10*time.Minute),
		StaleTripReapInterval:    getEnvAsDuration("SCHEDULER_STALE_TRIP_REAP_INTERVAL", time.Hour),
		TripStalenessWindow:      getEnvAsDuration("SCHEDULER_TRIP_STALENESS_WINDOW", 2*time.Hour),
		SOSAutoResolveInterval:   getEnvAsDuration("SCHEDULER_SOS_AUTO_RESOLVE_INTERVAL", 24*time.Hour),
		SOSInactivityWindow:      getEnvAsDuration("SCHEDULER_SOS_INACTIVITY_WINDOW", 72*time.Hour),
		SafetyScoreInterval:      getEnvAsDuration("SCHEDULER_SAFETY_SCORE_INTERVAL", 24*time.Hour),
		BatchLimit:               getEnvAsInt("SCHEDULER_BATCH_LIMIT", 500),
	}
}
