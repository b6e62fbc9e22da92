package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention WARDEN_SECTION_FIELD (e.g., WARDEN_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format WARDEN_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("WARDEN_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("WARDEN_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("WARDEN_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("WARDEN_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("WARDEN_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Limits overrides
	if val := os.Getenv("WARDEN_LIMITS_TOKEN_BUCKET_CAPACITY"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Limits.TokenBucket.Capacity = f
		}
	}
	if val := os.Getenv("WARDEN_LIMITS_TOKEN_BUCKET_REFILL_RATE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Limits.TokenBucket.RefillRate = f
		}
	}
	if val := os.Getenv("WARDEN_LIMITS_SLIDING_WINDOW_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Limits.SlidingWindow.Window = d
		}
	}
	if val := os.Getenv("WARDEN_LIMITS_SLIDING_WINDOW_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Limits.SlidingWindow.MaxRequests = i
		}
	}
	if val := os.Getenv("WARDEN_LIMITS_QUOTA_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Limits.Quota.Window = d
		}
	}
	if val := os.Getenv("WARDEN_LIMITS_QUOTA_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Limits.Quota.MaxRequests = i
		}
	}
	if val := os.Getenv("WARDEN_LIMITS_MAX_IDLE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Limits.MaxIdle = d
		}
	}
	if val := os.Getenv("WARDEN_LIMITS_MAX_ENTRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Limits.MaxEntries = i
		}
	}
	if val := os.Getenv("WARDEN_LIMITS_SWEEP_SCHEDULE"); val != "" {
		cfg.Limits.SweepSchedule = val
	}

	// History overrides
	if val := os.Getenv("WARDEN_HISTORY_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.History.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_HISTORY_BACKEND"); val != "" {
		cfg.History.Backend = val
	}
	if val := os.Getenv("WARDEN_HISTORY_SQLITE_PATH"); val != "" {
		cfg.History.SQLitePath = val
	}
	if val := os.Getenv("WARDEN_HISTORY_BUFFER_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.History.BufferSize = i
		}
	}
	if val := os.Getenv("WARDEN_HISTORY_MAX_EVENTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.History.MaxEvents = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("WARDEN_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("WARDEN_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("WARDEN_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
