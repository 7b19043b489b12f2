package python

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// Config holds everything needed to run the bot under a Python interpreter.
// Working directory and environment are explicit fields rather than ambient
// process state, so a launch is fully described by its Config.
type Config struct {
	// InterpreterPath is the resolved Python interpreter.
	InterpreterPath string

	// EntryPath is the bot entry script.
	EntryPath string

	// WorkDir is the child's working directory (the launcher base dir).
	WorkDir string

	// Unbuffered sets PYTHONUNBUFFERED=1 in the child environment so
	// output reaches the capture logs immediately.
	Unbuffered bool

	// ExtraEnv entries (KEY=VALUE) appended to the inherited environment.
	ExtraEnv []string

	// Args are extra arguments passed to the entry script.
	Args []string
}

// Runner builds executable commands for the bot process.
type Runner struct {
	config *Config
}

// NewRunner creates a Runner with the given configuration.
func NewRunner(cfg *Config) *Runner {
	return &Runner{config: cfg}
}

// Name returns "python".
func (r *Runner) Name() string {
	return "python"
}

// Config returns the runner configuration.
func (r *Runner) Config() *Config {
	return r.config
}

// BuildCommand creates an exec.Cmd that runs the entry script.
// The command is not started; stdout/stderr wiring is left to the caller.
func (r *Runner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	args := append([]string{r.config.EntryPath}, r.config.Args...)
	cmd := exec.CommandContext(ctx, r.config.InterpreterPath, args...)
	cmd.Dir = r.config.WorkDir
	cmd.Env = r.environ()
	return cmd, nil
}

// environ assembles the child environment from the parent environment plus
// the configured overrides. The parent's own environment is never mutated.
func (r *Runner) environ() []string {
	env := os.Environ()
	if r.config.Unbuffered {
		env = append(env, "PYTHONUNBUFFERED=1")
	}
	env = append(env, r.config.ExtraEnv...)
	return env
}

// CommandString returns the command that would be executed (for -print-cmd).
func (r *Runner) CommandString() string {
	parts := append([]string{r.config.InterpreterPath, r.config.EntryPath}, r.config.Args...)
	return strings.Join(parts, " ")
}
