package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrProcUnsupported is returned where /proc is unavailable (non-Linux).
var ErrProcUnsupported = errors.New("process scan requires /proc (Linux only)")

// ProcMatch is one live process whose command line mentions the entry script.
type ProcMatch struct {
	PID     int
	Cmdline string
}

// ScanForBot walks /proc looking for a running process whose command line
// contains the given entry script name (e.g. "bot.py"). Processes that
// disappear mid-scan are skipped.
func ScanForBot(entryName string) ([]ProcMatch, error) {
	return scanProc("/proc", entryName)
}

// scanProc is the testable core of ScanForBot.
func scanProc(procDir, entryName string) ([]ProcMatch, error) {
	entries, err := os.ReadDir(procDir)
	if err != nil {
		return nil, ErrProcUnsupported
	}

	var matches []ProcMatch
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue // not a process directory
		}

		data, err := os.ReadFile(filepath.Join(procDir, entry.Name(), "cmdline"))
		if err != nil {
			continue // process exited or access denied
		}

		cmdline := strings.ReplaceAll(string(data), "\x00", " ")
		cmdline = strings.TrimSpace(cmdline)
		if cmdline == "" {
			continue
		}

		if strings.Contains(cmdline, entryName) {
			matches = append(matches, ProcMatch{PID: pid, Cmdline: cmdline})
		}
	}
	return matches, nil
}

// PrintMatches writes a human-readable scan result to stdout and reports
// whether any process was found.
func PrintMatches(entryName string, matches []ProcMatch) bool {
	if len(matches) == 0 {
		fmt.Printf("no running process matching %q found\n", entryName)
		return false
	}

	fmt.Printf("bot is running (%d match(es)):\n", len(matches))
	for _, m := range matches {
		fmt.Printf("  pid %-7d %s\n", m.PID, m.Cmdline)
	}
	return true
}
