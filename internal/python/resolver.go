// Package python locates a Python interpreter and builds commands for
// running the bot entry script with it.
package python

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Tier identifies which rung of the fallback ladder produced an interpreter.
// The order is fixed and first-match-wins: a project virtualenv always beats
// any system installation.
type Tier int

const (
	// TierVenv is the project-local virtual environment interpreter.
	TierVenv Tier = iota

	// TierSystem is the platform's Python launcher (py / python3).
	TierSystem

	// TierPath is a bare "python" resolved via the search path.
	TierPath
)

// String returns a human-readable name for the tier.
func (t Tier) String() string {
	switch t {
	case TierVenv:
		return "venv"
	case TierSystem:
		return "system"
	case TierPath:
		return "path"
	default:
		return "unknown"
	}
}

// Interpreter is a resolved Python interpreter.
type Interpreter struct {
	Path string
	Tier Tier
}

// Resolver finds a Python interpreter for a given base directory.
// The zero value is not usable; construct with NewResolver.
type Resolver struct {
	baseDir string
	goos    string

	// lookPath is swappable for tests.
	lookPath func(file string) (string, error)
}

// NewResolver creates a Resolver anchored at baseDir.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{
		baseDir:  baseDir,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
}

// VenvPython returns the path the virtualenv interpreter would have for
// this platform, whether or not it exists.
func (r *Resolver) VenvPython() string {
	if r.goos == "windows" {
		return filepath.Join(r.baseDir, ".venv", "Scripts", "python.exe")
	}
	return filepath.Join(r.baseDir, ".venv", "bin", "python")
}

// systemLauncher returns the platform's preferred system interpreter name.
func (r *Resolver) systemLauncher() string {
	if r.goos == "windows" {
		return "py"
	}
	return "python3"
}

// Resolve walks the fallback ladder and returns the first interpreter found:
// project venv, then the system launcher, then bare "python" on the search
// path. Returns an error only when every rung misses.
func (r *Resolver) Resolve() (Interpreter, error) {
	// Tier 1: project virtualenv
	venv := r.VenvPython()
	if info, err := os.Stat(venv); err == nil && !info.IsDir() {
		return Interpreter{Path: venv, Tier: TierVenv}, nil
	}

	// Tier 2: system launcher
	if path, err := r.lookPath(r.systemLauncher()); err == nil {
		return Interpreter{Path: path, Tier: TierSystem}, nil
	}

	// Tier 3: bare python on PATH
	if path, err := r.lookPath("python"); err == nil {
		return Interpreter{Path: path, Tier: TierPath}, nil
	}

	return Interpreter{}, fmt.Errorf("no python interpreter found (tried %s, %s, python)",
		venv, r.systemLauncher())
}
