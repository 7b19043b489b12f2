// Package daemon wires the supervise-mode components together: supervisor,
// capture sinks, file watcher, metrics, and the status server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fleetops/go-bot-launcher/internal/config"
	"github.com/fleetops/go-bot-launcher/internal/launch"
	"github.com/fleetops/go-bot-launcher/internal/logging"
	"github.com/fleetops/go-bot-launcher/internal/metrics"
	"github.com/fleetops/go-bot-launcher/internal/python"
	"github.com/fleetops/go-bot-launcher/internal/stats"
	"github.com/fleetops/go-bot-launcher/internal/status"
	"github.com/fleetops/go-bot-launcher/internal/stream"
	"github.com/fleetops/go-bot-launcher/internal/supervisor"
	"github.com/fleetops/go-bot-launcher/internal/tui"
	"github.com/fleetops/go-bot-launcher/internal/watcher"
)

// ErrMissingEntry is returned when the entry script is absent at startup.
// The supervisor never starts in that case; there is nothing to supervise.
var ErrMissingEntry = errors.New("entry script not found")

// lineRateWindow is the rolling window for the output-rate display.
const lineRateWindow = 10 * time.Second

// uptimeTickInterval is how often the live uptime gauge is refreshed.
const uptimeTickInterval = 5 * time.Second

// Daemon runs the bot under supervision until its context is cancelled.
type Daemon struct {
	cfg    *config.Config
	paths  launch.Paths
	logger *slog.Logger

	diag    *logging.DiagLog
	version string

	interp    python.Interpreter
	pyVersion string

	stdoutFile *os.File
	stderrFile *os.File

	stdoutCap  *stream.Capture
	stderrCap  *stream.Capture
	stdoutRate *stats.LineRate
	stderrRate *stats.LineRate

	collector *metrics.Collector
	history   *stats.History
	sup       *supervisor.Supervisor
	watch     *watcher.Watcher
	scraper   *metrics.BotScraper
	server    *status.Server

	// Per-run bookkeeping for history records.
	runMu       sync.Mutex
	runID       string
	runPID      int
	runStart    time.Time
	spawnFailed bool
}

// New builds a fully wired daemon. version is the launcher build version
// used for the info metric.
func New(cfg *config.Config, paths launch.Paths, logger *slog.Logger, version string) (*Daemon, error) {
	if err := paths.EnsureLogsDir(); err != nil {
		return nil, err
	}
	if !paths.EntryExists() {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, paths.Entry)
	}

	diag, err := logging.OpenDiagLog(paths.DiagLog, launch.NewRunID())
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:        cfg,
		paths:      paths,
		logger:     logger,
		diag:       diag,
		version:    version,
		history:    stats.NewHistory(),
		stdoutRate: stats.NewLineRate(lineRateWindow),
		stderrRate: stats.NewLineRate(lineRateWindow),
	}

	// Interpreter resolution follows the same ladder as a single run; with
	// nothing resolvable we still supervise with a bare "python" so spawn
	// failures show up in the history instead of aborting the daemon.
	resolver := python.NewResolver(paths.BaseDir)
	interp, err := resolver.Resolve()
	if err != nil {
		logger.Warn("interpreter_not_found", "error", err)
		diag.Logf("WARNING: %v", err)
		interp = python.Interpreter{Path: "python", Tier: python.TierPath}
	}
	d.interp = interp
	diag.Logf("supervising with python: %s (%s)", interp.Path, interp.Tier)

	if err := d.openCaptureLogs(); err != nil {
		diag.Close()
		return nil, err
	}

	if !cfg.SkipVersionCheck {
		if v, err := python.VersionCheck(context.Background(), interp.Path, d.stdoutFile, d.stderrFile); err != nil {
			logger.Warn("version_check_failed", "error", err)
			diag.Logf("WARNING: python version check failed: %v", err)
		} else if v != "" {
			d.pyVersion = v
			diag.Logf("python version: %s", v)
		}
	}

	d.collector = metrics.NewCollector()
	d.collector.SetInfo(version, cfg.EntryName, interp.Path)

	d.stdoutCap = stream.NewCapture("stdout", d.stdoutFile, logger, cfg.Verbose, d.onOutputLine)
	d.stderrCap = stream.NewCapture("stderr", d.stderrFile, logger, cfg.Verbose, d.onOutputLine)

	runner := python.NewRunner(&python.Config{
		InterpreterPath: interp.Path,
		EntryPath:       paths.Entry,
		WorkDir:         paths.BaseDir,
		Unbuffered:      true,
		ExtraEnv:        cfg.ExtraEnv,
		Args:            cfg.EntryArgs,
	})

	d.sup = supervisor.New(supervisor.Config{
		Builder: runner,
		Backoff: supervisor.NewBackoff(time.Now().UnixNano(), supervisor.BackoffConfig{
			Initial:    cfg.BackoffInitial,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiply,
			JitterPct:  supervisor.DefaultBackoffConfig().JitterPct,
		}),
		Logger:        logger,
		MaxRestarts:   cfg.MaxRestarts,
		StopTimeout:   cfg.StopTimeout,
		StdoutSink:    d.stdoutCap,
		StderrSink:    d.stderrCap,
		BufferSize:    cfg.CaptureBuffer,
		DropThreshold: cfg.CaptureDropThreshold,
		Callbacks: supervisor.Callbacks{
			OnStart:        d.onStart,
			OnExit:         d.onExit,
			OnSpawnFailure: d.onSpawnFailure,
			OnRestart:      d.onRestart,
		},
	})

	if cfg.Watch {
		w, err := watcher.New(paths.Entry, logger, d.sup.Restart)
		if err != nil {
			diag.Close()
			return nil, err
		}
		d.watch = w
	}

	if cfg.BotMetricsURL != "" {
		d.scraper = metrics.NewBotScraper(cfg.BotMetricsURL, cfg.BotMetricsInterval, logger, nil)
	}

	if cfg.StatusAddr != "" {
		d.server = status.NewServer(cfg.StatusAddr, d, paths.ManagedLogs(), nil, logger)
	}

	return d, nil
}

// openCaptureLogs opens the stdout/stderr capture files in append mode.
func (d *Daemon) openCaptureLogs() error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND

	stdout, err := os.OpenFile(d.paths.StdoutLog, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open stdout log: %w", err)
	}
	stderr, err := os.OpenFile(d.paths.StderrLog, flags, 0o644)
	if err != nil {
		stdout.Close()
		return fmt.Errorf("open stderr log: %w", err)
	}

	d.stdoutFile = stdout
	d.stderrFile = stderr
	return nil
}

// Run blocks until the context is cancelled or the supervisor gives up.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.close()

	// Side loops (scraper, watcher, uptime ticker) must unwind when the
	// supervisor gives up, not only when the caller cancels.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			d.server.Shutdown(shutdownCtx)
		}()
	}

	var wg sync.WaitGroup

	if d.scraper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.scraper.Run(ctx)
		}()
	}

	if d.watch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.watch.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.uptimeLoop(ctx)
	}()

	err := d.sup.Run(ctx)
	cancel()

	// Supervisor loop is done; make sure the child is gone before the
	// capture files close.
	d.sup.Stop(d.cfg.StopTimeout)

	wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// uptimeLoop keeps the live uptime gauge current while the bot runs.
func (d *Daemon) uptimeLoop(ctx context.Context) {
	ticker := time.NewTicker(uptimeTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.sup.State() == supervisor.StateRunning {
				d.collector.SetChildUptime(d.sup.Uptime())
			}
		}
	}
}

// close releases the daemon's file handles.
func (d *Daemon) close() {
	d.diag.Logf("supervisor shutting down")
	d.diag.Close()
	if d.stdoutFile != nil {
		d.stdoutFile.Close()
	}
	if d.stderrFile != nil {
		d.stderrFile.Close()
	}
}

// onStart records a new run.
func (d *Daemon) onStart(pid int) {
	d.runMu.Lock()
	d.runID = launch.NewRunID()
	d.runPID = pid
	d.runStart = time.Now()
	d.spawnFailed = false
	d.runMu.Unlock()

	d.collector.ChildStarted()
	d.diag.Logf("bot started, pid %d", pid)
}

// onExit records the completed run and publishes uptime percentiles.
func (d *Daemon) onExit(exitCode int, uptime time.Duration) {
	d.runMu.Lock()
	rec := stats.RunRecord{
		RunID:     d.runID,
		PID:       d.runPID,
		ExitCode:  exitCode,
		StartTime: d.runStart,
		EndTime:   time.Now(),
		Uptime:    uptime,
	}
	d.runMu.Unlock()

	d.history.Record(rec)
	d.collector.ChildExited(exitCode, uptime)

	summary := d.history.Snapshot()
	d.collector.SetUptimePercentiles(summary.UptimeP50, summary.UptimeP90, summary.UptimeP99)

	d.diag.Logf("bot exited with code %d after %s", exitCode, uptime.Round(time.Second))
}

// onSpawnFailure records a run that never started.
func (d *Daemon) onSpawnFailure(err error) {
	d.runMu.Lock()
	rec := stats.RunRecord{
		RunID:       launch.NewRunID(),
		SpawnFailed: true,
		ExitCode:    launch.ExitSpawnFailure,
		StartTime:   time.Now(),
		EndTime:     time.Now(),
	}
	d.runMu.Unlock()

	d.history.Record(rec)
	d.collector.SpawnFailed()
	d.diag.Logf("ERROR: failed to start python: %v", err)
}

// onRestart counts scheduled restarts.
func (d *Daemon) onRestart(attempt int, delay time.Duration) {
	d.collector.Restarted()
	d.diag.Logf("restart %d scheduled in %s", attempt, delay.Round(time.Millisecond))
}

// onOutputLine feeds the metrics counter and the rate trackers.
func (d *Daemon) onOutputLine(streamName string) {
	d.collector.OutputLine(streamName)
	switch streamName {
	case "stdout":
		d.stdoutRate.Mark()
	case "stderr":
		d.stderrRate.Mark()
	}
}

// Status implements status.Source for the /status endpoint.
func (d *Daemon) Status() status.BotStatus {
	state := d.sup.State()
	return status.BotStatus{
		Running:       state == supervisor.StateRunning,
		State:         state.String(),
		PID:           d.sup.PID(),
		Interpreter:   d.interp.Path,
		PythonVersion: d.pyVersion,
		Uptime:        d.sup.Uptime().Round(time.Second).String(),
		Restarts:      d.sup.Restarts(),
		History:       d.history.Snapshot(),
		RecentStdout:  d.stdoutCap.RecentLines(10),
		RecentStderr:  d.stderrCap.RecentLines(10),
	}
}

// DashboardSnapshot implements tui.Source for the live dashboard.
func (d *Daemon) DashboardSnapshot() tui.Snapshot {
	return tui.Snapshot{
		State:           d.sup.State().String(),
		PID:             d.sup.PID(),
		Uptime:          d.sup.Uptime(),
		Restarts:        d.sup.Restarts(),
		Interpreter:     d.interp.Path,
		PythonVersion:   d.pyVersion,
		Entry:           d.cfg.EntryName,
		CaptureDegraded: d.sup.IsCaptureDegraded(),
		StdoutRate:      d.stdoutRate.Rate(),
		StderrRate:      d.stderrRate.Rate(),
		History:         d.history.Snapshot(),
		RecentStdout:    d.stdoutCap.RecentLines(stream.MaxBufferedLines),
		RecentStderr:    d.stderrCap.RecentLines(stream.MaxBufferedLines),
	}
}
