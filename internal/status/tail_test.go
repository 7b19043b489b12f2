package status

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLines(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")

	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTailFile(t *testing.T) {
	path := writeLines(t, 10)

	lines, err := TailFile(path, 3)
	if err != nil {
		t.Fatalf("TailFile: %v", err)
	}
	want := []string{"line 8", "line 9", "line 10"}
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %v", len(lines), lines)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], w)
		}
	}
}

func TestTailFile_FewerLinesThanRequested(t *testing.T) {
	path := writeLines(t, 2)

	lines, err := TailFile(path, 100)
	if err != nil {
		t.Fatalf("TailFile: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("got %d lines, want 2", len(lines))
	}
}

func TestTailFile_CrossesBlockBoundary(t *testing.T) {
	// Enough lines that the tail spans multiple 1KB read blocks.
	path := writeLines(t, 500)

	lines, err := TailFile(path, 200)
	if err != nil {
		t.Fatalf("TailFile: %v", err)
	}
	if len(lines) != 200 {
		t.Fatalf("got %d lines, want 200", len(lines))
	}
	if lines[0] != "line 301" || lines[199] != "line 500" {
		t.Errorf("window = %q .. %q", lines[0], lines[199])
	}
}

func TestTailFile_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	lines, err := TailFile(path, 10)
	if err != nil {
		t.Fatalf("TailFile: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("got %v from empty file", lines)
	}
}

func TestTailFile_Missing(t *testing.T) {
	if _, err := TailFile(filepath.Join(t.TempDir(), "nope.log"), 10); err == nil {
		t.Error("missing file did not error")
	}
}

func TestTailFile_ZeroLines(t *testing.T) {
	path := writeLines(t, 5)
	lines, err := TailFile(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if lines != nil {
		t.Errorf("TailFile(0) = %v", lines)
	}
}

func TestTailFile_CapsAtMax(t *testing.T) {
	path := writeLines(t, MaxTailLines+100)

	lines, err := TailFile(path, MaxTailLines+50)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != MaxTailLines {
		t.Errorf("got %d lines, want cap %d", len(lines), MaxTailLines)
	}
}

func TestSanitizeUTF8(t *testing.T) {
	if got := sanitizeUTF8("clean line"); got != "clean line" {
		t.Errorf("clean input changed: %q", got)
	}

	dirty := "ok\xff\xfebad"
	got := sanitizeUTF8(dirty)
	if strings.ContainsRune(got, '�') {
		t.Errorf("replacement runes left in output: %q", got)
	}
	if !strings.Contains(got, "ok") || !strings.Contains(got, "bad") {
		t.Errorf("valid bytes dropped: %q", got)
	}
}
