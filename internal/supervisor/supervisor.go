package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/fleetops/go-bot-launcher/internal/stream"
)

// ProcessBuilder creates executable commands for the bot.
// This interface keeps the supervisor decoupled from Python specifics.
type ProcessBuilder interface {
	// BuildCommand returns a ready-to-start command. Not yet started.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the bot state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called when the bot process starts.
	OnStart func(pid int)

	// OnExit is called when the bot process exits.
	OnExit func(exitCode int, uptime time.Duration)

	// OnSpawnFailure is called when a spawn attempt fails outright.
	OnSpawnFailure func(err error)

	// OnRestart is called before a restart attempt.
	OnRestart func(attempt int, delay time.Duration)
}

// Config holds configuration for creating a Supervisor.
type Config struct {
	Builder   ProcessBuilder
	Backoff   *Backoff
	Logger    *slog.Logger
	Callbacks Callbacks

	// MaxRestarts limits restart attempts (0 = unlimited).
	MaxRestarts int

	// StopTimeout is the grace period between SIGTERM and SIGKILL when the
	// run context is cancelled. Defaults to 10s.
	StopTimeout time.Duration

	// StdoutSink / StderrSink receive every captured output line.
	// Defaults to a NoopSink.
	StdoutSink stream.LineSink
	StderrSink stream.LineSink

	// BufferSize is the per-stream pipeline buffer in lines.
	BufferSize int

	// DropThreshold marks capture as degraded above this drop fraction.
	DropThreshold float64
}

// Supervisor manages the lifecycle of the bot process: start, capture,
// wait, and restart with backoff. One Supervisor manages one bot.
type Supervisor struct {
	builder   ProcessBuilder
	backoff   *Backoff
	logger    *slog.Logger
	callbacks Callbacks

	state     State
	stateMu   sync.RWMutex
	startTime time.Time

	cmd   *exec.Cmd
	cmdMu sync.Mutex

	maxRestarts int
	stopTimeout time.Duration

	// restarts is guarded by stateMu: the Run loop writes it while the
	// status server and TUI read it concurrently.
	restarts int

	stdoutSink stream.LineSink
	stderrSink stream.LineSink
	bufferSize int
	dropThresh float64

	// kick requests an immediate restart (watch mode).
	kick chan struct{}

	stdoutPipeline *stream.Pipeline
	stderrPipeline *stream.Pipeline
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	stdoutSink := cfg.StdoutSink
	if stdoutSink == nil {
		stdoutSink = stream.NoopSink{}
	}
	stderrSink := cfg.StderrSink
	if stderrSink == nil {
		stderrSink = stream.NoopSink{}
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	threshold := cfg.DropThreshold
	if threshold <= 0 {
		threshold = 0.01
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}

	return &Supervisor{
		builder:     cfg.Builder,
		backoff:     cfg.Backoff,
		logger:      cfg.Logger,
		callbacks:   cfg.Callbacks,
		state:       StateCreated,
		maxRestarts: cfg.MaxRestarts,
		stopTimeout: stopTimeout,
		stdoutSink:  stdoutSink,
		stderrSink:  stderrSink,
		bufferSize:  bufferSize,
		dropThresh:  threshold,
		kick:        make(chan struct{}, 1),
	}
}

// Run starts the supervision loop. It blocks until the context is
// cancelled or MaxRestarts is reached.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Debug("supervisor_starting", "process", s.builder.Name())

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			s.logger.Debug("supervisor_stopped", "reason", "context_cancelled")
			return ctx.Err()
		default:
		}

		if s.maxRestarts > 0 && s.Restarts() >= s.maxRestarts {
			s.setState(StateStopped)
			s.logger.Warn("max_restarts_reached",
				"restarts", s.Restarts(),
				"max", s.maxRestarts,
			)
			return errors.New("max restarts reached")
		}

		exitCode, uptime, _ := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateStopped)
			return ctx.Err()
		}

		if ShouldReset(uptime, exitCode) {
			s.backoff.Reset()
		}

		delay := s.backoff.Next()
		s.stateMu.Lock()
		s.restarts++
		restarts := s.restarts
		s.stateMu.Unlock()

		if s.callbacks.OnRestart != nil {
			s.callbacks.OnRestart(restarts, delay)
		}

		s.logger.Info("bot_restart_scheduled",
			"attempt", restarts,
			"delay", delay.String(),
		)

		s.setState(StateBackoff)
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return ctx.Err()
		case <-s.kick:
			// Restart requested; skip the remaining backoff.
			s.backoff.Reset()
		case <-time.After(delay):
		}
	}
}

// runOnce runs the bot once and waits for it to exit.
func (s *Supervisor) runOnce(ctx context.Context) (exitCode int, uptime time.Duration, err error) {
	s.setState(StateStarting)

	s.stateMu.Lock()
	s.stdoutPipeline = stream.NewPipeline("stdout", s.bufferSize, s.dropThresh)
	s.stderrPipeline = stream.NewPipeline("stderr", s.bufferSize, s.dropThresh)
	s.stateMu.Unlock()

	cmd, err := s.builder.BuildCommand(ctx)
	if err != nil {
		s.logger.Error("failed_to_build_command", "error", err)
		return 1, 0, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.logger.Error("failed_to_create_stdout_pipe", "error", err)
		return 1, 0, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.logger.Error("failed_to_create_stderr_pipe", "error", err)
		return 1, 0, err
	}

	// Own process group so shutdown can signal bot and any children it forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	// Context cancellation must not hard-kill the bot: SIGTERM the group
	// first and let WaitDelay escalate to SIGKILL after the grace period.
	cmd.Cancel = func() error {
		if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
			return syscall.Kill(-pgid, syscall.SIGTERM)
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = s.stopTimeout

	s.cmdMu.Lock()
	s.cmd = cmd
	s.cmdMu.Unlock()

	started := time.Now()
	s.stateMu.Lock()
	s.startTime = started
	s.stateMu.Unlock()

	if err := cmd.Start(); err != nil {
		s.logger.Error("failed_to_start_process", "error", err)
		if s.callbacks.OnSpawnFailure != nil {
			s.callbacks.OnSpawnFailure(err)
		}
		return 1, 0, err
	}

	pid := cmd.Process.Pid
	s.setState(StateRunning)

	s.logger.Info("bot_started", "pid", pid, "process", s.builder.Name())

	// Layer 1: readers. Layer 2: sinks.
	go stream.NewPipeReader(stdout, s.stdoutPipeline).Run()
	go stream.NewPipeReader(stderr, s.stderrPipeline).Run()

	var sinkWg sync.WaitGroup
	sinkWg.Add(2)
	go func() {
		defer sinkWg.Done()
		s.stdoutPipeline.RunSink(s.stdoutSink)
	}()
	go func() {
		defer sinkWg.Done()
		s.stderrPipeline.RunSink(s.stderrSink)
	}()

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(pid)
	}

	waitErr := cmd.Wait()
	uptime = time.Since(started)
	exitCode = exitCodeFromWait(cmd.ProcessState, waitErr)

	// Reap anything left in the group after a forced kill.
	if ctx.Err() != nil {
		syscall.Kill(-pid, syscall.SIGKILL)
	}

	s.drainSinks(&sinkWg)

	s.logger.Info("bot_exited",
		"pid", pid,
		"exit_code", exitCode,
		"uptime", uptime.String(),
	)

	s.cmdMu.Lock()
	s.cmd = nil
	s.cmdMu.Unlock()

	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(exitCode, uptime)
	}

	return exitCode, uptime, waitErr
}

// drainSinks waits for the capture sinks to finish with a timeout.
func (s *Supervisor) drainSinks(sinkWg *sync.WaitGroup) {
	const drainTimeout = 5 * time.Second

	done := make(chan struct{})
	go func() {
		sinkWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logPipelineStats()
	case <-time.After(drainTimeout):
		s.logger.Warn("capture_drain_timeout",
			"timeout", drainTimeout.String(),
		)
		s.logPipelineStats()
	}
}

// logPipelineStats logs capture health after a run.
func (s *Supervisor) logPipelineStats() {
	for _, p := range []*stream.Pipeline{s.stdoutPipeline, s.stderrPipeline} {
		if p == nil {
			continue
		}
		read, dropped, handled := p.Stats()
		if dropped > 0 || s.logger.Enabled(nil, slog.LevelDebug) {
			s.logger.Info("capture_stats",
				"stream", p.StreamName(),
				"lines_read", read,
				"lines_dropped", dropped,
				"lines_handled", handled,
				"degraded", p.IsDegraded(),
			)
		}
	}
}

// Restart asks the supervisor to bounce the bot: the current child gets
// SIGTERM and the restart loop skips its backoff. Used by watch mode.
func (s *Supervisor) Restart() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
	s.signalCurrent(syscall.SIGTERM)
}

// Stop gracefully stops the bot: SIGTERM to the process group, SIGKILL
// after the timeout.
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.cmdMu.Lock()
	cmd := s.cmd
	s.cmdMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	s.signalCurrent(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		s.logger.Warn("force_killing_process", "pid", cmd.Process.Pid)
		s.signalCurrent(syscall.SIGKILL)
		return errors.New("process did not exit gracefully")
	}
}

// signalCurrent sends sig to the current child's process group.
func (s *Supervisor) signalCurrent(sig syscall.Signal) {
	s.cmdMu.Lock()
	cmd := s.cmd
	s.cmdMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		syscall.Kill(-pgid, sig)
	} else {
		cmd.Process.Signal(sig)
	}
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(oldState, newState)
	}
}

// Restarts returns the number of restarts that have occurred.
func (s *Supervisor) Restarts() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.restarts
}

// PID returns the current child PID, or 0 if not running.
func (s *Supervisor) PID() int {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Uptime returns the current uptime if running, or 0 if not.
func (s *Supervisor) Uptime() time.Duration {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.state != StateRunning {
		return 0
	}
	return time.Since(s.startTime)
}

// IsCaptureDegraded returns true if either stream dropped too many lines.
func (s *Supervisor) IsCaptureDegraded() bool {
	s.stateMu.RLock()
	stdout, stderr := s.stdoutPipeline, s.stderrPipeline
	s.stateMu.RUnlock()

	if stdout != nil && stdout.IsDegraded() {
		return true
	}
	if stderr != nil && stderr.IsDegraded() {
		return true
	}
	return false
}

// exitCodeFromWait prefers the recorded wait status over the Wait error:
// after a context cancel Wait reports ctx.Err() even when the child caught
// SIGTERM and exited cleanly.
func exitCodeFromWait(state *os.ProcessState, err error) int {
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok {
			switch {
			case ws.Signaled():
				return 128 + int(ws.Signal())
			case ws.Exited():
				return ws.ExitStatus()
			}
		}
	}
	return extractExitCode(err)
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
