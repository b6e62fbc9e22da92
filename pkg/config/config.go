package config

import (
	"time"

	"warden-hq/warden/pkg/admission"
)

// Config is the root configuration structure for Warden.
type Config struct {
	// Server contains the admin HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Limits contains the default per-algorithm admission limits and the
	// state eviction policy.
	Limits LimitsConfig `yaml:"limits"`

	// History contains configuration for the decision history archive.
	History HistoryConfig `yaml:"history"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the admin HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port". Default: "127.0.0.1:8181"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout. Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LimitsConfig contains the global default limits for each algorithm kind
// and the eviction policy for idle identity state. Per-identity overrides
// are installed at runtime through the Configure operation and are not part
// of the file config.
type LimitsConfig struct {
	// TokenBucket is the default token bucket config (capacity, refill_rate).
	TokenBucket admission.Config `yaml:"token_bucket"`

	// SlidingWindow is the default sliding window config (window, max_requests).
	SlidingWindow admission.Config `yaml:"sliding_window"`

	// Quota is the default fixed-window quota config (window, max_requests).
	Quota admission.Config `yaml:"quota"`

	// MaxIdle is how long an identity may sit untouched before the sweeper
	// evicts its state. Default: 24h
	MaxIdle time.Duration `yaml:"max_idle"`

	// MaxEntries caps the number of tracked identity states.
	// Default: 100000
	MaxEntries int `yaml:"max_entries"`

	// SweepSchedule is a standard cron expression for the idle-state sweep
	// (e.g. "*/5 * * * *"). Empty disables scheduled sweeping.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// HistoryConfig contains configuration for the decision history archive.
type HistoryConfig struct {
	// Enabled turns decision archiving on. Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the archive backend: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// BufferSize is the async write buffer; events are dropped, not
	// blocked on, when it is full. Default: 1024
	BufferSize int `yaml:"buffer_size"`

	// MaxEvents bounds the memory backend's ring. Default: 10000
	MaxEvents int `yaml:"max_events"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json" or "text". Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns the /metrics endpoint on. Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path. Default: "/metrics"
	Path string `yaml:"path"`
}
