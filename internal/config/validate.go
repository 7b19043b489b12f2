package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.EntryName == "" {
		errs = append(errs, ValidationError{
			Field:   "entry",
			Message: "entry script name must not be empty",
		})
	}

	// Extra env entries must be KEY=VALUE
	for _, kv := range cfg.ExtraEnv {
		if !strings.Contains(kv, "=") {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("must be KEY=VALUE (got %q)", kv),
			})
		}
	}

	// Watch and the dashboard only make sense when something restarts the bot
	if cfg.Watch && !cfg.Supervise {
		errs = append(errs, ValidationError{
			Field:   "watch",
			Message: "-watch requires -supervise",
		})
	}
	if cfg.TUIEnabled && !cfg.Supervise {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "-tui requires -supervise",
		})
	}

	// Restart policy
	if cfg.MaxRestarts < 0 {
		errs = append(errs, ValidationError{
			Field:   "max_restarts",
			Message: "must be >= 0 (0 = unlimited)",
		})
	}
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}
	if cfg.StopTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout",
			Message: "must be positive",
		})
	}

	// Capture
	if cfg.CaptureBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "capture_buffer",
			Message: "must be at least 1",
		})
	}
	if cfg.CaptureDropThreshold < 0 || cfg.CaptureDropThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "capture_drop_threshold",
			Message: "must be between 0 and 1",
		})
	}

	// Observability
	if cfg.BotMetricsURL != "" {
		if err := validateURL(cfg.BotMetricsURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "bot_metrics",
				Message: err.Error(),
			})
		}
		if cfg.BotMetricsInterval <= 0 {
			errs = append(errs, ValidationError{
				Field:   "bot_metrics_interval",
				Message: "must be positive",
			})
		}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
