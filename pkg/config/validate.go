package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates the admin server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	return errs
}

// validateLimits validates the default admission limits.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.TokenBucket.Capacity <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.token_bucket.capacity",
			Message: "capacity must be greater than zero",
		})
	}
	if cfg.TokenBucket.RefillRate <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.token_bucket.refill_rate",
			Message: "refill rate must be greater than zero",
		})
	}
	if cfg.SlidingWindow.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.sliding_window.window",
			Message: "window must be greater than zero",
		})
	}
	if cfg.SlidingWindow.MaxRequests <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.sliding_window.max_requests",
			Message: "max requests must be greater than zero",
		})
	}
	if cfg.Quota.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.quota.window",
			Message: "window must be greater than zero",
		})
	}
	if cfg.Quota.MaxRequests <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.quota.max_requests",
			Message: "max requests must be greater than zero",
		})
	}
	if cfg.MaxIdle <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.max_idle",
			Message: "max idle must be greater than zero",
		})
	}
	if cfg.MaxEntries <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.max_entries",
			Message: "max entries must be greater than zero",
		})
	}

	return errs
}

// validateHistory validates the decision history configuration.
func validateHistory(cfg *HistoryConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "memory":
		if cfg.MaxEvents <= 0 {
			errs = append(errs, FieldError{
				Field:   "history.max_events",
				Message: "max events must be greater than zero",
			})
		}
	case "sqlite":
		if cfg.SQLitePath == "" {
			errs = append(errs, FieldError{
				Field:   "history.sqlite_path",
				Message: "sqlite path is required for sqlite backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "history.backend",
			Message: fmt.Sprintf("backend must be one of: memory, sqlite (got %q)", cfg.Backend),
		})
	}

	if cfg.BufferSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "history.buffer_size",
			Message: "buffer size must be greater than zero",
		})
	}

	return errs
}

// validateTelemetry validates the telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("format must be one of: json, text (got %q)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	return errs
}
