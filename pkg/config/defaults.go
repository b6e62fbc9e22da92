package config

import "time"

// ApplyDefaults fills unset fields with default values. Explicitly
// configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:8181"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// Limits defaults: a permissive but bounded starting point.
	if cfg.Limits.TokenBucket.Capacity == 0 {
		cfg.Limits.TokenBucket.Capacity = 100
	}
	if cfg.Limits.TokenBucket.RefillRate == 0 {
		cfg.Limits.TokenBucket.RefillRate = 10
	}
	if cfg.Limits.SlidingWindow.Window == 0 {
		cfg.Limits.SlidingWindow.Window = time.Minute
	}
	if cfg.Limits.SlidingWindow.MaxRequests == 0 {
		cfg.Limits.SlidingWindow.MaxRequests = 600
	}
	if cfg.Limits.Quota.Window == 0 {
		cfg.Limits.Quota.Window = 24 * time.Hour
	}
	if cfg.Limits.Quota.MaxRequests == 0 {
		cfg.Limits.Quota.MaxRequests = 10000
	}
	if cfg.Limits.MaxIdle == 0 {
		cfg.Limits.MaxIdle = 24 * time.Hour
	}
	if cfg.Limits.MaxEntries == 0 {
		cfg.Limits.MaxEntries = 100000
	}

	// History defaults
	if cfg.History.Backend == "" {
		cfg.History.Backend = "memory"
	}
	if cfg.History.BufferSize == 0 {
		cfg.History.BufferSize = 1024
	}
	if cfg.History.MaxEvents == 0 {
		cfg.History.MaxEvents = 10000
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
}

// DefaultConfig returns a fully defaulted configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Telemetry.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}
