// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(interpreterPath, entryPath, logsDir string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	for _, check := range []Check{
		checkInterpreter(interpreterPath),
		checkEntry(entryPath),
		checkLogsDir(logsDir),
		checkFileDescriptors(),
	} {
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.Passed = false
		}
	}

	return result
}

// checkInterpreter verifies the interpreter is present and runnable.
func checkInterpreter(path string) Check {
	cmd := exec.Command(path, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Check{
			Name:    "python",
			Passed:  false,
			Message: fmt.Sprintf("not runnable at %s: %v", path, err),
		}
	}

	version := strings.TrimSpace(string(output))
	return Check{
		Name:    "python",
		Passed:  true,
		Message: fmt.Sprintf("%s (%s)", path, version),
	}
}

// checkEntry verifies the entry script exists.
func checkEntry(path string) Check {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Check{
			Name:    "entry_script",
			Passed:  false,
			Message: fmt.Sprintf("missing: %s", path),
		}
	}
	return Check{
		Name:    "entry_script",
		Passed:  true,
		Message: path,
	}
}

// checkLogsDir verifies the logs directory exists (or can be created) and
// is writable.
func checkLogsDir(dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "logs_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return Check{
			Name:    "logs_dir",
			Passed:  false,
			Message: fmt.Sprintf("not writable: %s: %v", dir, err),
		}
	}
	os.Remove(probe)

	return Check{
		Name:    "logs_dir",
		Passed:  true,
		Message: dir,
	}
}

// checkFileDescriptors verifies a sane descriptor limit. The launcher
// itself needs few, but the bot inherits the limit.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to check",
		}
	}

	const recommended = 256
	actual := int(limit.Cur)
	return Check{
		Name:    "file_descriptors",
		Passed:  true,
		Warning: actual < recommended,
		Message: fmt.Sprintf("ulimit -n %d (recommend >= %d)", actual, recommended),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "python":
		return "install python3 or create .venv next to the launcher"
	case "entry_script":
		return "place bot.py next to the launcher (or set -entry)"
	case "logs_dir":
		return "fix permissions on the launcher directory"
	default:
		return "see documentation"
	}
}
