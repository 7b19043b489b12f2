package stream

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single captured line before
	// truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept for the exit
	// summary and the /status endpoint.
	MaxBufferedLines = 100
)

// Capture is a LineSink that appends child output to a capture log file,
// keeps a circular buffer of recent lines, and surfaces error-looking lines
// through the launcher's structured log.
type Capture struct {
	stream  string // "stdout" or "stderr"
	w       io.Writer
	logger  *slog.Logger
	verbose bool

	// onLine is an optional counter hook (metrics).
	onLine func(stream string)

	mu     sync.Mutex
	buffer []string
	bufIdx int
}

// NewCapture creates a capture sink writing to w (normally the append-mode
// log file). onLine may be nil.
func NewCapture(stream string, w io.Writer, logger *slog.Logger, verbose bool, onLine func(stream string)) *Capture {
	return &Capture{
		stream:  stream,
		w:       w,
		logger:  logger,
		verbose: verbose,
		onLine:  onLine,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// HandleLine processes a single line of child output.
func (c *Capture) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	// Append to the capture log. A write failure must not stop capture;
	// the line still lands in the ring buffer.
	if c.w != nil {
		io.WriteString(c.w, line+"\n")
	}

	c.mu.Lock()
	c.buffer[c.bufIdx] = line
	c.bufIdx = (c.bufIdx + 1) % MaxBufferedLines
	c.mu.Unlock()

	if c.onLine != nil {
		c.onLine(c.stream)
	}

	c.logLine(line)
}

// logLine surfaces the line through slog at a level based on content.
func (c *Capture) logLine(line string) {
	level := classifyLine(line)

	// In non-verbose mode only error-looking lines reach the launcher log;
	// everything is in the capture file regardless.
	if !c.verbose && level == slog.LevelDebug {
		return
	}

	c.logger.Log(nil, level, "bot_output",
		"stream", c.stream,
		"line", line,
	)
}

// classifyLine picks a log level from the line content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "traceback") ||
		strings.Contains(lower, "critical") ||
		strings.Contains(line, "ERROR") ||
		strings.Contains(lower, "exception") {
		return slog.LevelWarn
	}

	if strings.Contains(line, "WARNING") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "reconnect") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (c *Capture) RecentLines(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (c.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if c.buffer[idx] != "" {
			lines = append(lines, c.buffer[idx])
		}
	}
	return lines
}

// Stream returns "stdout" or "stderr".
func (c *Capture) Stream() string {
	return c.stream
}
