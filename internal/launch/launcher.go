package launch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fleetops/go-bot-launcher/internal/logging"
	"github.com/fleetops/go-bot-launcher/internal/python"
)

// Callbacks contains optional hooks for launch events.
type Callbacks struct {
	// OnStart is called after the child process starts.
	OnStart func(pid int)

	// OnExit is called when the child process exits.
	OnExit func(exitCode int, uptime time.Duration)

	// OnSpawnFailure is called when the spawn itself fails.
	OnSpawnFailure func(err error)
}

// Options configures a Launcher.
type Options struct {
	Paths     Paths
	Logger    *slog.Logger
	RunID     string
	Callbacks Callbacks

	// EntryArgs are extra arguments passed to the entry script.
	EntryArgs []string

	// ExtraEnv entries (KEY=VALUE) appended to the child environment.
	ExtraEnv []string

	// SkipVersionCheck disables the interpreter version probe.
	SkipVersionCheck bool
}

// Launcher performs one launch: prepare logs, resolve the interpreter,
// verify the entry script, spawn, and wait.
type Launcher struct {
	opts     Options
	logger   *slog.Logger
	resolver *python.Resolver
}

// New creates a Launcher.
func New(opts Options) *Launcher {
	logger := opts.Logger
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}
	return &Launcher{
		opts:     opts,
		logger:   logger,
		resolver: python.NewResolver(opts.Paths.BaseDir),
	}
}

// Run executes the launch sequence and blocks until the child exits.
// The returned Result's ExitCode is what the launcher process should exit
// with: 1 for a missing entry script, 2 for a pre-spawn failure, and the
// child's own code forwarded verbatim otherwise.
func (l *Launcher) Run(ctx context.Context) Result {
	paths := l.opts.Paths

	// Log directory must exist before any log write.
	if err := paths.EnsureLogsDir(); err != nil {
		l.logger.Error("logs_dir_failed", "dir", paths.LogsDir, "error", err)
		return Result{ExitCode: ExitSpawnFailure, Phase: PhaseSetup, Err: err}
	}

	diag, err := logging.OpenDiagLog(paths.DiagLog, l.opts.RunID)
	if err != nil {
		l.logger.Error("diag_log_failed", "path", paths.DiagLog, "error", err)
		return Result{ExitCode: ExitSpawnFailure, Phase: PhaseSetup, Err: err}
	}
	defer diag.Close()

	diag.Logf("launcher start (base dir %s)", paths.BaseDir)

	// Resolve the interpreter. Resolution failure is deliberately not fatal
	// here: the entry-script check still runs first, and the spawn attempt
	// itself produces the sentinel exit code.
	interpreter := l.resolveInterpreter(diag)

	// Open the capture logs in append mode. The version probe seeds them
	// and confirms the interpreter is runnable; its result is not fatal.
	stdoutLog, stderrLog, err := l.openCaptureLogs()
	if err != nil {
		diag.Logf("ERROR opening capture logs: %v", err)
		l.logger.Error("capture_logs_failed", "error", err)
		return Result{ExitCode: ExitSpawnFailure, Phase: PhaseSetup, Err: err}
	}
	defer stdoutLog.Close()
	defer stderrLog.Close()

	if !l.opts.SkipVersionCheck {
		l.versionCheck(ctx, interpreter, stdoutLog, stderrLog, diag)
	}

	// The entry script must exist or nothing is spawned at all.
	if !paths.EntryExists() {
		diag.Logf("ERROR entry script missing: %s", paths.Entry)
		l.logger.Error("entry_missing", "path", paths.Entry)
		return Result{
			ExitCode: ExitMissingEntry,
			Phase:    PhaseSetup,
			Err:      fmt.Errorf("entry script missing: %s", paths.Entry),
		}
	}

	runner := python.NewRunner(&python.Config{
		InterpreterPath: interpreter,
		EntryPath:       paths.Entry,
		WorkDir:         paths.BaseDir,
		Unbuffered:      true,
		ExtraEnv:        l.opts.ExtraEnv,
		Args:            l.opts.EntryArgs,
	})

	cmd, err := runner.BuildCommand(ctx)
	if err != nil {
		diag.Logf("ERROR building command: %v", err)
		return Result{ExitCode: ExitSpawnFailure, Phase: PhasePreSpawn, Err: err}
	}
	cmd.Stdout = stdoutLog
	cmd.Stderr = stderrLog

	diag.Logf("running %s", runner.CommandString())

	start := time.Now()
	if err := cmd.Start(); err != nil {
		diag.Logf("ERROR invocation failed: %v", err)
		l.logger.Error("spawn_failed", "error", err)
		if l.opts.Callbacks.OnSpawnFailure != nil {
			l.opts.Callbacks.OnSpawnFailure(err)
		}
		return Result{
			ExitCode:  ExitSpawnFailure,
			Phase:     PhasePreSpawn,
			StartTime: start,
			EndTime:   time.Now(),
			Err:       err,
		}
	}

	pid := cmd.Process.Pid
	l.logger.Info("bot_started", "pid", pid, "entry", paths.Entry)
	if l.opts.Callbacks.OnStart != nil {
		l.opts.Callbacks.OnStart(pid)
	}

	waitErr := cmd.Wait()
	end := time.Now()
	exitCode := ExitCodeFromWait(waitErr)
	uptime := end.Sub(start)

	diag.Logf("bot exited with code %d (uptime %s)", exitCode, uptime.Round(time.Millisecond))
	l.logger.Info("bot_exited", "pid", pid, "exit_code", exitCode, "uptime", uptime.String())
	if l.opts.Callbacks.OnExit != nil {
		l.opts.Callbacks.OnExit(exitCode, uptime)
	}

	var resultErr error
	if waitErr != nil {
		resultErr = waitErr
	}
	return Result{
		ExitCode:  exitCode,
		Phase:     PhasePostSpawn,
		PID:       pid,
		StartTime: start,
		EndTime:   end,
		Err:       resultErr,
	}
}

// resolveInterpreter picks the interpreter and records the choice in the
// diagnostic log. Falls back to bare "python" when nothing resolves, so the
// later spawn attempt (not resolution) decides the exit code.
func (l *Launcher) resolveInterpreter(diag *logging.DiagLog) string {
	resolved, err := l.resolver.Resolve()
	if err != nil {
		diag.Logf("WARNING %v; falling back to 'python'", err)
		l.logger.Warn("interpreter_not_found", "error", err)
		return "python"
	}

	diag.Logf("using python %s (%s)", resolved.Path, resolved.Tier)
	l.logger.Info("interpreter_resolved", "path", resolved.Path, "tier", resolved.Tier.String())
	return resolved.Path
}

// versionCheck probes the interpreter and logs the outcome. Never fatal.
func (l *Launcher) versionCheck(ctx context.Context, interpreter string, stdoutLog, stderrLog *os.File, diag *logging.DiagLog) {
	version, err := python.VersionCheck(ctx, interpreter, stdoutLog, stderrLog)
	if err != nil {
		diag.Logf("WARNING python version check failed: %v", err)
		l.logger.Warn("version_check_failed", "interpreter", interpreter, "error", err)
		return
	}
	if version != "" {
		diag.Logf("python version %s", version)
	} else {
		diag.Logf("python version check ok (unrecognized output)")
	}
}

// openCaptureLogs opens both capture files in append mode.
func (l *Launcher) openCaptureLogs() (stdout, stderr *os.File, err error) {
	const flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND

	stdout, err = os.OpenFile(l.opts.Paths.StdoutLog, flags, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open stdout log: %w", err)
	}
	stderr, err = os.OpenFile(l.opts.Paths.StderrLog, flags, 0o644)
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("open stderr log: %w", err)
	}
	return stdout, stderr, nil
}
