package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// DiagTimeFormat is the timestamp prefix used for diagnostic log lines.
const DiagTimeFormat = "2006-01-02 15:04:05"

// DiagLog is the launcher's append-only diagnostic log file.
// Every line is prefixed with a wall-clock timestamp and the run ID,
// so repeated runs interleave cleanly in a single file.
//
// DiagLog records launcher-internal events only; the child's stdout and
// stderr go to their own capture files.
type DiagLog struct {
	mu    sync.Mutex
	f     *os.File
	runID string
	now   func() time.Time
}

// OpenDiagLog opens (creating if necessary) the diagnostic log in append mode.
// The file is never truncated.
func OpenDiagLog(path, runID string) (*DiagLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostic log: %w", err)
	}
	return &DiagLog{
		f:     f,
		runID: runID,
		now:   time.Now,
	}, nil
}

// Logf appends a single formatted line to the diagnostic log.
// Write errors are returned but callers typically ignore them: a failing
// diagnostic log must never abort the launch sequence itself.
func (d *DiagLog) Logf(format string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return fmt.Errorf("diagnostic log closed")
	}

	line := fmt.Sprintf("%s | run %s | %s\n",
		d.now().Format(DiagTimeFormat),
		d.runID,
		fmt.Sprintf(format, args...),
	)
	_, err := d.f.WriteString(line)
	return err
}

// RunID returns the run ID stamped on every line.
func (d *DiagLog) RunID() string {
	return d.runID
}

// Close closes the underlying file. Logf after Close returns an error.
func (d *DiagLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
