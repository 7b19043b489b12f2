// Package launch implements the single-run launch sequence: resolve the
// interpreter, prepare the log files, run the bot entry script, and map the
// outcome to a process exit code.
package launch

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// LogsDirName is the subdirectory holding all launcher-managed logs.
	LogsDirName = "logs"

	// DiagLogName is the launcher's own diagnostic log.
	DiagLogName = "launcher_diag.log"

	// StdoutLogName captures the bot's standard output.
	StdoutLogName = "bot_stdout.log"

	// StderrLogName captures the bot's standard error.
	StderrLogName = "bot_stderr.log"

	// DefaultEntryName is the bot entry script the launcher runs.
	DefaultEntryName = "bot.py"
)

// Paths holds every filesystem location the launcher touches.
// All paths are absolute, anchored at the launcher's base directory, so
// behavior is identical whether the launcher is started by an operator,
// a cron job, or a service manager.
type Paths struct {
	BaseDir   string // directory containing the launcher binary
	LogsDir   string // <base>/logs
	DiagLog   string // <base>/logs/launcher_diag.log
	StdoutLog string // <base>/logs/bot_stdout.log
	StderrLog string // <base>/logs/bot_stderr.log
	Entry     string // <base>/bot.py (or configured override)
}

// NewPaths computes the launcher paths rooted at baseDir.
// entryName falls back to DefaultEntryName when empty.
func NewPaths(baseDir, entryName string) Paths {
	if entryName == "" {
		entryName = DefaultEntryName
	}
	logsDir := filepath.Join(baseDir, LogsDirName)
	return Paths{
		BaseDir:   baseDir,
		LogsDir:   logsDir,
		DiagLog:   filepath.Join(logsDir, DiagLogName),
		StdoutLog: filepath.Join(logsDir, StdoutLogName),
		StderrLog: filepath.Join(logsDir, StderrLogName),
		Entry:     filepath.Join(baseDir, entryName),
	}
}

// ResolveBaseDir returns the directory containing the running executable.
// Symlinks are followed so a symlinked deployment still anchors at the
// real install directory.
func ResolveBaseDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		// Fall back to the unresolved path; EvalSymlinks can fail on
		// exotic mounts even when the path itself is usable.
		resolved = exe
	}
	return filepath.Dir(resolved), nil
}

// EnsureLogsDir creates the logs directory if it does not exist.
// Existing files are never touched.
func (p Paths) EnsureLogsDir() error {
	if err := os.MkdirAll(p.LogsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	return nil
}

// EntryExists reports whether the entry script is present.
func (p Paths) EntryExists() bool {
	info, err := os.Stat(p.Entry)
	return err == nil && !info.IsDir()
}

// ManagedLogs maps the public log names served by the status server to
// their absolute paths. Only these three files are ever exposed.
func (p Paths) ManagedLogs() map[string]string {
	return map[string]string{
		DiagLogName:   p.DiagLog,
		StdoutLogName: p.StdoutLog,
		StderrLogName: p.StderrLog,
	}
}
