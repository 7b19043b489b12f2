package stats

import (
	"testing"
	"time"
)

func TestLineRate(t *testing.T) {
	lr := NewLineRate(10 * time.Second)

	// Pin the clock.
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	lr.now = func() time.Time { return now }

	for i := 0; i < 20; i++ {
		lr.Mark()
	}

	if got := lr.Rate(); got != 2.0 {
		t.Errorf("Rate = %v, want 2.0 (20 lines / 10s window)", got)
	}
}

func TestLineRate_WindowExpiry(t *testing.T) {
	lr := NewLineRate(10 * time.Second)

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	lr.now = func() time.Time { return now }

	lr.Mark()
	lr.Mark()

	// Advance past the window: old samples fall out.
	now = now.Add(11 * time.Second)
	if got := lr.Rate(); got != 0 {
		t.Errorf("Rate after expiry = %v, want 0", got)
	}
}

func TestLineRate_Empty(t *testing.T) {
	lr := NewLineRate(5 * time.Second)
	if got := lr.Rate(); got != 0 {
		t.Errorf("Rate = %v, want 0", got)
	}
}

func TestNewLineRate_ClampsWindow(t *testing.T) {
	lr := NewLineRate(100 * time.Millisecond)
	if lr.window != time.Second {
		t.Errorf("window = %v, want clamped to 1s", lr.window)
	}
}
