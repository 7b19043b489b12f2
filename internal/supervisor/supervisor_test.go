package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockBuilder implements ProcessBuilder for testing.
type mockBuilder struct {
	name       string
	buildFn    func(ctx context.Context) (*exec.Cmd, error)
	buildError error
}

func (m *mockBuilder) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	if m.buildError != nil {
		return nil, m.buildError
	}
	if m.buildFn != nil {
		return m.buildFn(ctx)
	}
	return exec.CommandContext(ctx, "echo", "hello"), nil
}

func (m *mockBuilder) Name() string {
	if m.name != "" {
		return m.name
	}
	return "mock"
}

// newEchoBuilder creates a builder that prints output and exits.
func newEchoBuilder(output string) *mockBuilder {
	return &mockBuilder{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "echo", output), nil
		},
	}
}

// newSleepBuilder creates a builder that sleeps for the given duration.
func newSleepBuilder(duration time.Duration) *mockBuilder {
	return &mockBuilder{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "sleep", fmt.Sprintf("%.3f", duration.Seconds())), nil
		},
	}
}

// newExitCodeBuilder creates a builder that exits with the given code.
func newExitCodeBuilder(code int) *mockBuilder {
	return &mockBuilder{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "bash", "-c", fmt.Sprintf("exit %d", code)), nil
		},
	}
}

// collectSink records handled lines.
type collectSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *collectSink) HandleLine(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

func (s *collectSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastBackoff() *Backoff {
	return NewBackoff(1, BackoffConfig{
		Initial:    time.Millisecond,
		Max:        10 * time.Millisecond,
		Multiplier: 2.0,
	})
}

func TestRun_MaxRestarts(t *testing.T) {
	var exits atomic.Int64

	s := New(Config{
		Builder:     newEchoBuilder("hi"),
		Backoff:     fastBackoff(),
		Logger:      testLogger(),
		MaxRestarts: 3,
		Callbacks: Callbacks{
			OnExit: func(code int, uptime time.Duration) { exits.Add(1) },
		},
	})

	err := s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "max restarts") {
		t.Errorf("Run error = %v, want max restarts", err)
	}
	if s.State() != StateStopped {
		t.Errorf("final state = %v, want stopped", s.State())
	}
	if exits.Load() != 3 {
		t.Errorf("bot ran %d times, want 3", exits.Load())
	}
	if s.Restarts() != 3 {
		t.Errorf("Restarts = %d, want 3", s.Restarts())
	}
}

func TestRun_ContextCancel(t *testing.T) {
	s := New(Config{
		Builder: newSleepBuilder(10 * time.Second),
		Backoff: fastBackoff(),
		Logger:  testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Wait for the bot to come up, then cancel.
	waitForState(t, s, StateRunning, 2*time.Second)
	cancel()
	s.Stop(time.Second)

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if s.State() != StateStopped {
		t.Errorf("final state = %v", s.State())
	}
}

func TestRun_CapturesOutput(t *testing.T) {
	stdout := &collectSink{}

	s := New(Config{
		Builder:     newEchoBuilder("captured line"),
		Backoff:     fastBackoff(),
		Logger:      testLogger(),
		MaxRestarts: 1,
		StdoutSink:  stdout,
	})

	s.Run(context.Background())

	lines := stdout.Lines()
	if len(lines) != 1 || lines[0] != "captured line" {
		t.Errorf("captured = %v", lines)
	}
}

func TestRun_StderrCapture(t *testing.T) {
	stderr := &collectSink{}

	builder := &mockBuilder{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "bash", "-c", "echo oops >&2"), nil
		},
	}

	s := New(Config{
		Builder:     builder,
		Backoff:     fastBackoff(),
		Logger:      testLogger(),
		MaxRestarts: 1,
		StderrSink:  stderr,
	})

	s.Run(context.Background())

	lines := stderr.Lines()
	if len(lines) != 1 || lines[0] != "oops" {
		t.Errorf("stderr captured = %v", lines)
	}
}

func TestRun_ExitCodeReported(t *testing.T) {
	var lastCode atomic.Int64

	s := New(Config{
		Builder:     newExitCodeBuilder(42),
		Backoff:     fastBackoff(),
		Logger:      testLogger(),
		MaxRestarts: 1,
		Callbacks: Callbacks{
			OnExit: func(code int, uptime time.Duration) { lastCode.Store(int64(code)) },
		},
	})

	s.Run(context.Background())

	if lastCode.Load() != 42 {
		t.Errorf("reported exit code = %d, want 42", lastCode.Load())
	}
}

func TestRun_SpawnFailureCallback(t *testing.T) {
	var spawnFailures atomic.Int64

	builder := &mockBuilder{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "/nonexistent/interpreter"), nil
		},
	}

	s := New(Config{
		Builder:     builder,
		Backoff:     fastBackoff(),
		Logger:      testLogger(),
		MaxRestarts: 2,
		Callbacks: Callbacks{
			OnSpawnFailure: func(err error) { spawnFailures.Add(1) },
		},
	})

	s.Run(context.Background())

	if spawnFailures.Load() != 2 {
		t.Errorf("OnSpawnFailure called %d times, want 2", spawnFailures.Load())
	}
}

func TestRun_StateTransitions(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	s := New(Config{
		Builder:     newEchoBuilder("hi"),
		Backoff:     fastBackoff(),
		Logger:      testLogger(),
		MaxRestarts: 1,
		Callbacks: Callbacks{
			OnStateChange: func(oldState, newState State) {
				mu.Lock()
				transitions = append(transitions, newState)
				mu.Unlock()
			},
		},
	})

	s.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()

	want := []State{StateStarting, StateRunning, StateBackoff, StateStopped}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i, state := range want {
		if transitions[i] != state {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], state)
		}
	}
}

func TestRestart_KicksBackoff(t *testing.T) {
	var starts atomic.Int64

	s := New(Config{
		Builder: newSleepBuilder(10 * time.Second),
		// Absurd backoff: only the kick can get past it quickly.
		Backoff: NewBackoff(1, BackoffConfig{
			Initial:    time.Hour,
			Max:        time.Hour,
			Multiplier: 2.0,
		}),
		Logger: testLogger(),
		Callbacks: Callbacks{
			OnStart: func(pid int) { starts.Add(1) },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)
	waitForState(t, s, StateRunning, 2*time.Second)

	s.Restart()

	// The kick bypasses the one-hour backoff.
	deadline := time.After(5 * time.Second)
	for starts.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("bot not restarted after kick (starts=%d)", starts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	s.Stop(time.Second)
}

func TestStop_NoProcess(t *testing.T) {
	s := New(Config{
		Builder: newEchoBuilder("hi"),
		Backoff: fastBackoff(),
		Logger:  testLogger(),
	})

	// Stopping before anything started is a no-op.
	if err := s.Stop(time.Second); err != nil {
		t.Errorf("Stop = %v", err)
	}
}

func TestPID_Uptime(t *testing.T) {
	s := New(Config{
		Builder: newSleepBuilder(10 * time.Second),
		Backoff: fastBackoff(),
		Logger:  testLogger(),
	})

	if s.PID() != 0 {
		t.Errorf("PID before start = %d", s.PID())
	}
	if s.Uptime() != 0 {
		t.Errorf("Uptime before start = %v", s.Uptime())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)
	waitForState(t, s, StateRunning, 2*time.Second)

	if s.PID() == 0 {
		t.Error("PID = 0 while running")
	}

	cancel()
	s.Stop(time.Second)
}

func TestExtractExitCode(t *testing.T) {
	if got := extractExitCode(nil); got != 0 {
		t.Errorf("extractExitCode(nil) = %d", got)
	}

	cmd := exec.Command("bash", "-c", "exit 7")
	err := cmd.Run()
	if got := extractExitCode(err); got != 7 {
		t.Errorf("extractExitCode = %d, want 7", got)
	}

	if got := extractExitCode(errors.New("not an exit error")); got != 1 {
		t.Errorf("extractExitCode(generic) = %d, want 1", got)
	}
}

// waitForState polls until the supervisor reaches the state or the timeout.
func waitForState(t *testing.T, s *Supervisor, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("supervisor never reached %v (current %v)", want, s.State())
}

// newTrapBuilder creates a builder whose child catches SIGTERM and exits
// cleanly instead of dying on the signal.
func newTrapBuilder() *mockBuilder {
	return &mockBuilder{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "sh", "-c",
				`trap 'exit 0' TERM; while :; do sleep 0.05; done`), nil
		},
	}
}

func TestRun_GracefulStopOnCancel(t *testing.T) {
	exitCodes := make(chan int, 1)

	s := New(Config{
		Builder:     newTrapBuilder(),
		Backoff:     fastBackoff(),
		Logger:      testLogger(),
		StopTimeout: 5 * time.Second,
		Callbacks: Callbacks{
			OnExit: func(code int, uptime time.Duration) { exitCodes <- code },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitForState(t, s, StateRunning, 5*time.Second)
	start := time.Now()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	// The trap must have run: a hard kill would report 128+SIGKILL.
	select {
	case code := <-exitCodes:
		if code != 0 {
			t.Errorf("exit code = %d, want 0 (SIGTERM not delivered to the child)", code)
		}
	default:
		t.Fatal("no exit recorded")
	}

	// Clean shutdown must not wait out the SIGKILL escalation.
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("stop took %s", elapsed)
	}
}

// Exercises the status-read surface while the Run loop is mutating its
// bookkeeping, the access pattern of the status server and the TUI tick.
func TestRun_ConcurrentStatusReads(t *testing.T) {
	s := New(Config{
		Builder:     newEchoBuilder("hi"),
		Backoff:     fastBackoff(),
		Logger:      testLogger(),
		MaxRestarts: 5,
	})

	readsDone := make(chan struct{})
	stopReads := make(chan struct{})
	go func() {
		defer close(readsDone)
		for {
			select {
			case <-stopReads:
				return
			default:
				s.State()
				s.PID()
				s.Uptime()
				s.Restarts()
				s.IsCaptureDegraded()
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Run(ctx); err == nil {
		t.Error("Run returned nil, want max restarts")
	}

	close(stopReads)
	<-readsDone

	if got := s.Restarts(); got != 5 {
		t.Errorf("Restarts = %d, want 5", got)
	}
}

func TestExitCodeFromWaitStatus(t *testing.T) {
	// After a context cancel Wait reports the context error; the recorded
	// wait status still carries the child's real exit.
	cmd := exec.Command("sh", "-c", "exit 5")
	waitErr := cmd.Run()

	if got := exitCodeFromWait(cmd.ProcessState, waitErr); got != 5 {
		t.Errorf("exitCodeFromWait = %d, want 5", got)
	}
	if got := exitCodeFromWait(cmd.ProcessState, context.Canceled); got != 5 {
		t.Errorf("exitCodeFromWait with ctx error = %d, want 5", got)
	}
	if got := exitCodeFromWait(nil, context.Canceled); got != 1 {
		t.Errorf("exitCodeFromWait without state = %d, want 1", got)
	}
}
