package launch

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a short unique ID stamped on every diagnostic log line
// of a run, so interleaved runs in the append-only log stay attributable.
func NewRunID() string {
	return uuid.NewString()[:8]
}

// Launcher exit codes. The child's own exit code is forwarded verbatim and
// therefore has no constant here.
const (
	// ExitOK means the child ran and exited cleanly.
	ExitOK = 0

	// ExitMissingEntry means the entry script was absent; nothing was spawned.
	ExitMissingEntry = 1

	// ExitSpawnFailure is the sentinel for a pre-spawn failure: the
	// interpreter could not be started at all.
	ExitSpawnFailure = 2

	// ExitNotRunning is used by -check-running when no bot process is found.
	ExitNotRunning = 3
)

// Phase distinguishes where in the launch sequence a failure occurred.
// Pre-spawn failures (interpreter missing, Start error) get the sentinel
// exit code; post-spawn failures belong to the child and are forwarded.
type Phase int

const (
	// PhaseSetup covers everything before the spawn attempt.
	PhaseSetup Phase = iota

	// PhasePreSpawn means the spawn itself failed (cmd.Start error).
	PhasePreSpawn

	// PhasePostSpawn means the child started; its exit code is authoritative.
	PhasePostSpawn
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhasePreSpawn:
		return "pre-spawn"
	case PhasePostSpawn:
		return "post-spawn"
	default:
		return "unknown"
	}
}

// Result captures the outcome of one launch.
type Result struct {
	ExitCode  int
	Phase     Phase
	PID       int // 0 when the child never started
	StartTime time.Time
	EndTime   time.Time
	Err       error // nil on a clean child exit
}

// Uptime returns how long the child ran, or 0 if it never started.
func (r Result) Uptime() time.Duration {
	if r.Phase != PhasePostSpawn || r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// ExitCodeFromWait extracts the child's exit code from a cmd.Wait error.
// Signal deaths map to 128 + signal number, matching shell convention.
func ExitCodeFromWait(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Wait failed for a non-exit reason; treat as generic failure.
	return 1
}
