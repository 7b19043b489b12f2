// Package main provides the go-bot-launcher CLI entry point.
//
// go-bot-launcher runs a Python bot from the directory the launcher binary
// lives in: it resolves an interpreter, captures the bot's output to log
// files, and forwards the bot's exit code. With -supervise it keeps the bot
// alive across crashes with exponential backoff.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fleetops/go-bot-launcher/internal/config"
	"github.com/fleetops/go-bot-launcher/internal/daemon"
	"github.com/fleetops/go-bot-launcher/internal/launch"
	"github.com/fleetops/go-bot-launcher/internal/logging"
	"github.com/fleetops/go-bot-launcher/internal/preflight"
	"github.com/fleetops/go-bot-launcher/internal/python"
	"github.com/fleetops/go-bot-launcher/internal/status"
	"github.com/fleetops/go-bot-launcher/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-bot-launcher
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-bot-launcher %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When the TUI owns the terminal, logs would corrupt the display.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// -check-running needs no paths or interpreter: scan and exit.
	if cfg.CheckRunning {
		return checkRunning(cfg.EntryName)
	}

	baseDir := cfg.BaseDir
	if baseDir == "" {
		baseDir, err = launch.ResolveBaseDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error locating launcher directory: %v\n", err)
			return 1
		}
	}
	paths := launch.NewPaths(baseDir, cfg.EntryName)

	if cfg.PrintCmd {
		printPythonCommand(cfg, paths)
		return 0
	}

	if !cfg.SkipPreflight {
		runPreflight(paths)
	}

	logger.Info("starting",
		"version", version,
		"base_dir", paths.BaseDir,
		"entry", paths.Entry,
		"supervise", cfg.Supervise,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Supervise {
		return runSupervised(ctx, cfg, paths, logger)
	}
	return runOnce(ctx, cfg, paths, logger)
}

// runOnce performs the default single launch and forwards the exit code.
func runOnce(ctx context.Context, cfg *config.Config, paths launch.Paths, logger *slog.Logger) int {
	launcher := launch.New(launch.Options{
		Paths:            paths,
		Logger:           logger,
		RunID:            launch.NewRunID(),
		EntryArgs:        cfg.EntryArgs,
		ExtraEnv:         cfg.ExtraEnv,
		SkipVersionCheck: cfg.SkipVersionCheck,
	})

	result := launcher.Run(ctx)
	return result.ExitCode
}

// runSupervised runs the daemon, optionally under the TUI.
func runSupervised(ctx context.Context, cfg *config.Config, paths launch.Paths, logger *slog.Logger) int {
	d, err := daemon.New(cfg, paths, logger, version)
	if err != nil {
		if errors.Is(err, daemon.ErrMissingEntry) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return launch.ExitMissingEntry
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return launch.ExitSpawnFailure
	}

	if !cfg.TUIEnabled {
		if err := d.Run(ctx); err != nil {
			logger.Error("supervisor_failed", "error", err)
			return 1
		}
		return 0
	}

	// TUI mode: the daemon runs in the background; quitting the dashboard
	// stops the daemon and vice versa.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(
		tui.New(tui.Config{
			Entry:      cfg.EntryName,
			StatusAddr: cfg.StatusAddr,
			Source:     d,
		}),
		tea.WithAltScreen(),
	)

	daemonDone := make(chan error, 1)
	go func() {
		daemonDone <- d.Run(ctx)
		tui.SendQuit(program)
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
	}
	cancel()

	if err := <-daemonDone; err != nil {
		return 1
	}
	return 0
}

// checkRunning scans for a live bot process and maps the result to an
// exit code: 0 when found, 3 when not.
func checkRunning(entryName string) int {
	matches, err := status.ScanForBot(entryName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return launch.ExitNotRunning
	}
	if status.PrintMatches(entryName, matches) {
		return 0
	}
	return launch.ExitNotRunning
}

// runPreflight prints the preflight report. Failures are informational;
// the launch sequence produces the authoritative exit code.
func runPreflight(paths launch.Paths) {
	interp := "python"
	if resolved, err := python.NewResolver(paths.BaseDir).Resolve(); err == nil {
		interp = resolved.Path
	}
	preflight.PrintResults(preflight.RunAll(interp, paths.Entry, paths.LogsDir))
}

// printPythonCommand prints the python invocation that would be used.
func printPythonCommand(cfg *config.Config, paths launch.Paths) {
	interp := "python"
	if resolved, err := python.NewResolver(paths.BaseDir).Resolve(); err == nil {
		interp = resolved.Path
	}

	runner := python.NewRunner(&python.Config{
		InterpreterPath: interp,
		EntryPath:       paths.Entry,
		WorkDir:         paths.BaseDir,
		Unbuffered:      true,
		Args:            cfg.EntryArgs,
	})

	fmt.Println("# Command that would be run:")
	fmt.Println()
	fmt.Println(runner.CommandString())
}
