package stats

import (
	"sync"
	"time"
)

// LineRate tracks output lines per second over a rolling window.
// Used to show whether the bot is actually doing anything: a healthy bot
// logs steadily, a wedged one goes silent.
type LineRate struct {
	mu      sync.Mutex
	window  time.Duration
	samples []time.Time
	now     func() time.Time
}

// NewLineRate creates a tracker with the given rolling window.
// Windows below one second are clamped to one second.
func NewLineRate(window time.Duration) *LineRate {
	if window < time.Second {
		window = time.Second
	}
	return &LineRate{
		window: window,
		now:    time.Now,
	}
}

// Mark records one line at the current time.
func (lr *LineRate) Mark() {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	now := lr.now()
	lr.samples = append(lr.samples, now)
	lr.trim(now)
}

// Rate returns lines per second over the window.
func (lr *LineRate) Rate() float64 {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	now := lr.now()
	lr.trim(now)
	return float64(len(lr.samples)) / lr.window.Seconds()
}

// trim drops samples older than the window. Caller holds the lock.
func (lr *LineRate) trim(now time.Time) {
	cutoff := now.Add(-lr.window)
	i := 0
	for i < len(lr.samples) && lr.samples[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		lr.samples = append(lr.samples[:0], lr.samples[i:]...)
	}
}
