package stream

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// collectSink records every line it handles.
type collectSink struct {
	mu    sync.Mutex
	lines []string
	delay time.Duration
}

func (s *collectSink) HandleLine(line string) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

func (s *collectSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func TestPipeline_DeliversLines(t *testing.T) {
	p := NewPipeline("stdout", 10, 0.01)
	sink := &collectSink{}

	done := make(chan struct{})
	go func() {
		p.RunSink(sink)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		if !p.FeedLine(fmt.Sprintf("line %d", i)) {
			t.Errorf("line %d dropped with empty buffer", i)
		}
	}
	p.CloseChannel()
	<-done

	lines := sink.Lines()
	if len(lines) != 5 {
		t.Fatalf("delivered %d lines, want 5", len(lines))
	}
	if lines[0] != "line 0" || lines[4] != "line 4" {
		t.Errorf("lines out of order: %v", lines)
	}

	read, dropped, handled := p.Stats()
	if read != 5 || dropped != 0 || handled != 5 {
		t.Errorf("Stats = (%d, %d, %d), want (5, 0, 5)", read, dropped, handled)
	}
}

func TestPipeline_DropsWhenFull(t *testing.T) {
	// No sink running: the channel fills and overflow is dropped.
	p := NewPipeline("stdout", 2, 0.01)

	results := []bool{
		p.FeedLine("a"),
		p.FeedLine("b"),
		p.FeedLine("c"),
	}

	if !results[0] || !results[1] {
		t.Error("lines dropped before the buffer was full")
	}
	if results[2] {
		t.Error("overflow line not dropped")
	}

	read, dropped, _ := p.Stats()
	if read != 3 || dropped != 1 {
		t.Errorf("Stats read=%d dropped=%d, want 3/1", read, dropped)
	}
	if !p.IsDegraded() {
		t.Error("pipeline with 33%% drops not marked degraded")
	}
}

func TestPipeline_DropRate(t *testing.T) {
	p := NewPipeline("stderr", 1, 0.5)

	if p.DropRate() != 0 {
		t.Error("empty pipeline has non-zero drop rate")
	}

	p.FeedLine("kept")
	p.FeedLine("dropped")

	if got := p.DropRate(); got != 0.5 {
		t.Errorf("DropRate = %v, want 0.5", got)
	}
	// Exactly at the threshold is not degraded; only above.
	if p.IsDegraded() {
		t.Error("drop rate equal to threshold marked degraded")
	}
}

func TestPipeline_CloseChannelIdempotent(t *testing.T) {
	p := NewPipeline("stdout", 1, 0.01)
	p.CloseChannel()
	p.CloseChannel() // must not panic
}

func TestPipeReader(t *testing.T) {
	p := NewPipeline("stdout", 100, 0.01)
	sink := &collectSink{}

	done := make(chan struct{})
	go func() {
		p.RunSink(sink)
		close(done)
	}()

	input := "first\nsecond\nthird\n"
	NewPipeReader(strings.NewReader(input), p).Run()
	<-done // Run closed the channel at EOF

	lines := sink.Lines()
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[2] != "third" {
		t.Errorf("lines = %v", lines)
	}
}

func TestPipeReader_LongLines(t *testing.T) {
	p := NewPipeline("stdout", 10, 0.01)
	sink := &collectSink{}

	done := make(chan struct{})
	go func() {
		p.RunSink(sink)
		close(done)
	}()

	// Longer than the default bufio.Scanner limit, shorter than ours.
	long := strings.Repeat("x", 128*1024)
	NewPipeReader(strings.NewReader(long+"\n"), p).Run()
	<-done

	lines := sink.Lines()
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if len(lines[0]) != 128*1024 {
		t.Errorf("line length = %d", len(lines[0]))
	}
}

func TestDefaults(t *testing.T) {
	p := NewPipeline("stdout", 0, 0)
	if p.bufferSize != 1000 {
		t.Errorf("default buffer = %d, want 1000", p.bufferSize)
	}
	if p.dropThreshold != 0.01 {
		t.Errorf("default threshold = %v, want 0.01", p.dropThreshold)
	}
	if p.StreamName() != "stdout" {
		t.Errorf("StreamName = %q", p.StreamName())
	}
}
