// Package config provides configuration management for go-bot-launcher.
package config

import "time"

// Config holds all configuration options for the launcher.
type Config struct {
	// Paths
	BaseDir   string   `yaml:"base_dir"`   // "" = directory of the launcher binary
	EntryName string   `yaml:"entry"`      // entry script name, relative to BaseDir
	EntryArgs []string `yaml:"entry_args"` // extra args passed to the entry script
	ExtraEnv  []string `yaml:"extra_env"`  // KEY=VALUE pairs for the child

	// Modes
	Supervise    bool `yaml:"supervise"`     // keep the bot alive across crashes
	Watch        bool `yaml:"watch"`         // restart when the entry script changes
	TUIEnabled   bool `yaml:"tui"`           // live dashboard (supervise mode only)
	CheckRunning bool `yaml:"-"`             // scan for a running bot and exit
	PrintCmd     bool `yaml:"-"`             // print the python command and exit
	SkipPreflight bool `yaml:"skip_preflight"`
	SkipVersionCheck bool `yaml:"skip_version_check"`

	// Restart policy (supervise mode)
	MaxRestarts     int           `yaml:"max_restarts"` // 0 = unlimited
	BackoffInitial  time.Duration `yaml:"backoff_initial"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
	BackoffMultiply float64       `yaml:"backoff_multiply"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`

	// Capture
	CaptureBuffer        int     `yaml:"capture_buffer"`         // lines per stream
	CaptureDropThreshold float64 `yaml:"capture_drop_threshold"` // degraded above this

	// Observability
	StatusAddr         string        `yaml:"status_addr"` // "" = disabled
	BotMetricsURL      string        `yaml:"bot_metrics_url"`
	BotMetricsInterval time.Duration `yaml:"bot_metrics_interval"`
	Verbose            bool          `yaml:"verbose"`
	LogFormat          string        `yaml:"log_format"` // json, text
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Paths
		EntryName: "bot.py",

		// Restart policy
		MaxRestarts:     0, // Unlimited
		BackoffInitial:  1 * time.Second,
		BackoffMax:      60 * time.Second,
		BackoffMultiply: 2.0,
		StopTimeout:     10 * time.Second,

		// Capture
		CaptureBuffer:        1000,
		CaptureDropThreshold: 0.01,

		// Observability
		BotMetricsInterval: 15 * time.Second,
		LogFormat:          "text",
	}
}
