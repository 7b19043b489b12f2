package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// stringList is a custom flag type for repeatable flags.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// ParseFlags parses command-line flags and returns a Config.
// An optional launcher.yaml beside the executable is loaded first; flags
// override file values.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	// Config file lives next to the executable, matching the rule that all
	// launcher paths anchor at the install directory.
	if exe, err := os.Executable(); err == nil {
		if err := LoadFile(filepath.Join(filepath.Dir(exe), FileName), cfg); err != nil {
			return nil, err
		}
	}

	fs := flag.CommandLine
	registerFlags(fs, cfg)
	fs.Usage = usageFunc(fs)
	fs.Parse(os.Args[1:])

	return cfg, nil
}

// ParseInto registers flags on fs and parses args into cfg.
// Split out from ParseFlags for tests.
func ParseInto(fs *flag.FlagSet, cfg *Config, args []string) error {
	registerFlags(fs, cfg)
	return fs.Parse(args)
}

// registerFlags defines every flag with the current cfg values as defaults.
func registerFlags(fs *flag.FlagSet, cfg *Config) {
	// Paths
	fs.StringVar(&cfg.BaseDir, "dir", cfg.BaseDir, "Base directory (default: directory of the launcher binary)")
	fs.StringVar(&cfg.EntryName, "entry", cfg.EntryName, "Entry script, relative to the base directory")
	fs.Var((*stringList)(&cfg.EntryArgs), "entry-arg", "Extra argument for the entry script (can repeat)")
	fs.Var((*stringList)(&cfg.ExtraEnv), "env", "Extra KEY=VALUE for the child environment (can repeat)")

	// Modes
	fs.BoolVar(&cfg.Supervise, "supervise", cfg.Supervise, "Keep the bot alive across crashes with backoff")
	fs.BoolVar(&cfg.Watch, "watch", cfg.Watch, "Restart the bot when the entry script changes (requires -supervise)")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Live terminal dashboard (requires -supervise)")
	fs.BoolVar(&cfg.CheckRunning, "check-running", cfg.CheckRunning, "Scan for a running bot process and exit")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the python command and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.SkipVersionCheck, "skip-version-check", cfg.SkipVersionCheck, "Skip the interpreter version probe")

	// Restart policy
	fs.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "Max restart attempts in supervise mode (0 = unlimited)")
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "Initial restart backoff")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum restart backoff")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Backoff multiplier per attempt")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "Grace period before SIGKILL on shutdown")

	// Capture
	fs.IntVar(&cfg.CaptureBuffer, "capture-buffer", cfg.CaptureBuffer, "Lines to buffer per output stream")
	// Empty usage string: printFlagCategory leaves capture-drop-threshold
	// out of the help text.
	fs.Float64Var(&cfg.CaptureDropThreshold, "capture-drop-threshold", cfg.CaptureDropThreshold, "")

	// Observability
	fs.StringVar(&cfg.StatusAddr, "status", cfg.StatusAddr, "Status/metrics HTTP address (empty = disabled)")
	fs.StringVar(&cfg.BotMetricsURL, "bot-metrics", cfg.BotMetricsURL, "Bot Prometheus endpoint to scrape (empty = disabled)")
	fs.DurationVar(&cfg.BotMetricsInterval, "bot-metrics-interval", cfg.BotMetricsInterval, "Interval for scraping the bot metrics endpoint")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
}

// usageFunc returns a categorized usage message printer.
func usageFunc(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, `go-bot-launcher - run a Python bot with captured logs and forwarded exit codes

Usage:
  go-bot-launcher [flags]

Paths:
`)
		printFlagCategory(fs, []string{"dir", "entry", "entry-arg", "env"})

		fmt.Fprintf(os.Stderr, "\nModes:\n")
		printFlagCategory(fs, []string{"supervise", "watch", "tui", "check-running", "print-cmd", "skip-preflight", "skip-version-check"})

		fmt.Fprintf(os.Stderr, "\nRestart Policy:\n")
		printFlagCategory(fs, []string{"max-restarts", "backoff-initial", "backoff-max", "backoff-multiply", "stop-timeout"})

		fmt.Fprintf(os.Stderr, "\nCapture:\n")
		printFlagCategory(fs, []string{"capture-buffer"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory(fs, []string{"status", "bot-metrics", "bot-metrics-interval", "v", "log-format"})

		fmt.Fprintf(os.Stderr, `
Exit Codes:
  0   bot ran and exited cleanly (bot's code is forwarded verbatim)
  1   entry script missing
  2   interpreter could not be spawned
  3   -check-running found no bot process

Examples:
  # One-shot launch (default), exit code forwarded from bot.py
  go-bot-launcher

  # Keep the bot alive with a status endpoint
  go-bot-launcher -supervise -status 127.0.0.1:8400

  # Restart on code changes during development
  go-bot-launcher -supervise -watch -tui

`)
	}
}

// printFlagCategory prints the named flags in definition style.
func printFlagCategory(fs *flag.FlagSet, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil || f.Usage == "" {
			continue
		}
		fmt.Fprintf(os.Stderr, "  -%-22s %s\n", name, f.Usage)
	}
}
