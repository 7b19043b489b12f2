// Package stats tracks child run history and output activity for the
// status endpoint, the dashboard, and the metrics exporter.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// MaxRecords is the number of recent runs kept in the history ring.
const MaxRecords = 50

// RunRecord describes one completed child run (or spawn failure).
type RunRecord struct {
	RunID       string        `json:"run_id"`
	PID         int           `json:"pid"`
	ExitCode    int           `json:"exit_code"`
	SpawnFailed bool          `json:"spawn_failed"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary is a point-in-time aggregate of the run history.
type Summary struct {
	TotalRuns     int64         `json:"total_runs"`
	SpawnFailures int64         `json:"spawn_failures"`
	CleanExits    int64         `json:"clean_exits"`
	LastExitCode  int           `json:"last_exit_code"`
	UptimeP50     time.Duration `json:"uptime_p50"`
	UptimeP90     time.Duration `json:"uptime_p90"`
	UptimeP99     time.Duration `json:"uptime_p99"`
	UptimeMax     time.Duration `json:"uptime_max"`
	Recent        []RunRecord   `json:"recent"`
}

// History accumulates run records. Uptimes feed a t-digest so percentiles
// stay cheap no matter how long the supervisor runs.
type History struct {
	mu sync.Mutex

	records []RunRecord // ring, newest at records[next-1]
	next    int
	full    bool

	totalRuns     int64
	spawnFailures int64
	cleanExits    int64
	lastExitCode  int
	uptimeMax     time.Duration
	uptimes       *tdigest.TDigest
}

// NewHistory creates an empty run history.
func NewHistory() *History {
	return &History{
		records: make([]RunRecord, MaxRecords),
		uptimes: tdigest.NewWithCompression(100),
	}
}

// Record adds a completed run to the history.
func (h *History) Record(rec RunRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[h.next] = rec
	h.next = (h.next + 1) % MaxRecords
	if h.next == 0 {
		h.full = true
	}

	h.totalRuns++
	h.lastExitCode = rec.ExitCode
	if rec.SpawnFailed {
		h.spawnFailures++
		return
	}
	if rec.ExitCode == 0 {
		h.cleanExits++
	}
	h.uptimes.Add(rec.Uptime.Seconds(), 1)
	if rec.Uptime > h.uptimeMax {
		h.uptimeMax = rec.Uptime
	}
}

// Snapshot returns the current summary, recent runs newest first.
func (h *History) Snapshot() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := h.next
	if h.full {
		count = MaxRecords
	}

	recent := make([]RunRecord, 0, count)
	for i := 0; i < count; i++ {
		idx := (h.next - 1 - i + MaxRecords) % MaxRecords
		recent = append(recent, h.records[idx])
	}

	s := Summary{
		TotalRuns:     h.totalRuns,
		SpawnFailures: h.spawnFailures,
		CleanExits:    h.cleanExits,
		LastExitCode:  h.lastExitCode,
		UptimeMax:     h.uptimeMax,
		Recent:        recent,
	}

	// Quantile on an empty digest returns NaN; guard with the run count.
	if h.totalRuns > h.spawnFailures {
		s.UptimeP50 = secondsToDuration(h.uptimes.Quantile(0.50))
		s.UptimeP90 = secondsToDuration(h.uptimes.Quantile(0.90))
		s.UptimeP99 = secondsToDuration(h.uptimes.Quantile(0.99))
	}
	return s
}

// TotalRuns returns the number of recorded runs.
func (h *History) TotalRuns() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalRuns
}

func secondsToDuration(s float64) time.Duration {
	if s != s || s < 0 { // NaN or negative
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
