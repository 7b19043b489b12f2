// Package stream moves child process output from pipes into the capture
// logs without ever blocking the child.
//
// Two-layer, lossy-by-design architecture:
//
//	Layer 1 (Reader): reads lines fast, drops if the channel is full
//	Layer 2 (Sink):   consumes from the channel at its own pace
//
// A chatty bot (a stack-trace loop, debug logging left on) must not be able
// to stall the launcher by filling a pipe, so the reader never blocks on the
// channel send.
package stream

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// LineSink consumes one line of child output at a time.
type LineSink interface {
	HandleLine(line string)
}

// Pipeline is a bounded channel between a pipe reader and a line sink.
// If the sink cannot keep up, lines are dropped and counted rather than
// blocking the writer.
type Pipeline struct {
	streamName string // "stdout" or "stderr"
	bufferSize int

	lineChan  chan string
	closeOnce sync.Once

	// Health counters (atomic for concurrent access)
	linesRead    atomic.Int64
	linesDropped atomic.Int64
	linesHandled atomic.Int64

	dropThreshold float64
}

// NewPipeline creates a lossy line pipeline.
// bufferSize defaults to 1000 lines, dropThreshold to 1%.
func NewPipeline(streamName string, bufferSize int, dropThreshold float64) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	if dropThreshold <= 0 {
		dropThreshold = 0.01
	}
	return &Pipeline{
		streamName:    streamName,
		bufferSize:    bufferSize,
		lineChan:      make(chan string, bufferSize),
		dropThreshold: dropThreshold,
	}
}

// FeedLine queues a line for the sink. Returns false if the line was
// dropped because the channel is full.
func (p *Pipeline) FeedLine(line string) bool {
	p.linesRead.Add(1)

	select {
	case p.lineChan <- line:
		return true
	default:
		p.linesDropped.Add(1)
		return false
	}
}

// CloseChannel closes the line channel, signaling the sink loop to stop.
// The reader MUST call this exactly once when its source is exhausted;
// it is the sole termination mechanism for the sink goroutine.
// Safe to call multiple times.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		close(p.lineChan)
	})
}

// RunSink consumes lines until the channel is closed.
// Must run in its own goroutine.
func (p *Pipeline) RunSink(sink LineSink) {
	for line := range p.lineChan {
		sink.HandleLine(line)
		p.linesHandled.Add(1)
	}
}

// Stats returns (read, dropped, handled) line counts.
func (p *Pipeline) Stats() (read, dropped, handled int64) {
	return p.linesRead.Load(), p.linesDropped.Load(), p.linesHandled.Load()
}

// DropRate returns the fraction of read lines that were dropped.
func (p *Pipeline) DropRate() float64 {
	read := p.linesRead.Load()
	if read == 0 {
		return 0
	}
	return float64(p.linesDropped.Load()) / float64(read)
}

// IsDegraded reports whether the drop rate exceeds the threshold, meaning
// the capture logs may be missing lines.
func (p *Pipeline) IsDegraded() bool {
	return p.DropRate() > p.dropThreshold
}

// StreamName returns "stdout" or "stderr".
func (p *Pipeline) StreamName() string {
	return p.streamName
}

// PipeReader reads lines from a child process pipe and feeds the pipeline.
type PipeReader struct {
	reader   io.Reader
	pipeline *Pipeline

	bytesRead atomic.Int64
}

// NewPipeReader creates a reader for cmd.StdoutPipe() / cmd.StderrPipe().
func NewPipeReader(r io.Reader, pipeline *Pipeline) *PipeReader {
	return &PipeReader{reader: r, pipeline: pipeline}
}

// Run reads lines until EOF, then closes the pipeline channel.
// Must run in its own goroutine.
func (pr *PipeReader) Run() {
	defer pr.pipeline.CloseChannel()

	scanner := bufio.NewScanner(pr.reader)

	// Allow long lines (stack traces, JSON log records)
	const maxLineSize = 64 * 1024
	scanner.Buffer(make([]byte, maxLineSize), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		pr.bytesRead.Add(int64(len(line) + 1))
		pr.pipeline.FeedLine(line)
	}
}

// BytesRead returns the number of bytes consumed from the pipe.
func (pr *PipeReader) BytesRead() int64 {
	return pr.bytesRead.Load()
}

// NoopSink discards every line (for testing and placeholder wiring).
type NoopSink struct{}

// HandleLine does nothing.
func (NoopSink) HandleLine(string) {}
