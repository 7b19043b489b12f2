package launch

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseSetup, "setup"},
		{PhasePreSpawn, "pre-spawn"},
		{PhasePostSpawn, "post-spawn"},
		{Phase(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestResultUptime(t *testing.T) {
	start := time.Now()
	end := start.Add(5 * time.Second)

	r := Result{Phase: PhasePostSpawn, StartTime: start, EndTime: end}
	if got := r.Uptime(); got != 5*time.Second {
		t.Errorf("Uptime = %v, want 5s", got)
	}

	// A child that never spawned has no uptime.
	r = Result{Phase: PhasePreSpawn, StartTime: start, EndTime: end}
	if got := r.Uptime(); got != 0 {
		t.Errorf("pre-spawn Uptime = %v, want 0", got)
	}
}

func TestExitCodeFromWait_Nil(t *testing.T) {
	if got := ExitCodeFromWait(nil); got != 0 {
		t.Errorf("ExitCodeFromWait(nil) = %d, want 0", got)
	}
}

func TestExitCodeFromWait_NonZeroExit(t *testing.T) {
	cmd := exec.Command("bash", "-c", "exit 42")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected non-nil error from exit 42")
	}
	if got := ExitCodeFromWait(err); got != 42 {
		t.Errorf("ExitCodeFromWait = %d, want 42", got)
	}
}

func TestExitCodeFromWait_Signal(t *testing.T) {
	cmd := exec.Command("sleep", "10")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	cmd.Process.Signal(syscall.SIGKILL)
	err := cmd.Wait()
	if err == nil {
		t.Fatal("expected error from killed process")
	}

	// Shell convention: 128 + signal number.
	want := 128 + int(syscall.SIGKILL)
	if got := ExitCodeFromWait(err); got != want {
		t.Errorf("ExitCodeFromWait = %d, want %d", got, want)
	}
}

func TestNewRunID(t *testing.T) {
	a := NewRunID()
	b := NewRunID()

	if len(a) != 8 {
		t.Errorf("run ID length = %d, want 8", len(a))
	}
	if a == b {
		t.Errorf("consecutive run IDs collided: %q", a)
	}
}
