// Package status serves launcher health, bot status, and log tails over HTTP.
package status

import (
	"os"
	"strings"
	"unicode/utf8"
)

// MaxTailLines caps how many lines a single tail request may return.
const MaxTailLines = 3000

// TailFile returns the last n lines of a file without reading the whole
// thing: blocks are read backwards from the end until enough newlines have
// been seen. Invalid UTF-8 bytes are dropped.
func TailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > MaxTailLines {
		n = MaxTailLines
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	const blockSize = 1024

	var buffer []byte
	linesFound := 0

	for size > 0 && linesFound <= n {
		readSize := int64(blockSize)
		if readSize > size {
			readSize = size
		}
		size -= readSize

		block := make([]byte, readSize)
		if _, err := f.ReadAt(block, size); err != nil {
			return nil, err
		}
		buffer = append(block, buffer...)
		linesFound = strings.Count(string(buffer), "\n")
	}

	lines := strings.Split(strings.TrimRight(string(buffer), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" && len(lines) == 1 {
			continue // empty file
		}
		out = append(out, sanitizeUTF8(line))
	}
	return out, nil
}

// sanitizeUTF8 drops invalid byte sequences from a line.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r != utf8.RuneError {
			b.WriteRune(r)
		}
	}
	return b.String()
}
