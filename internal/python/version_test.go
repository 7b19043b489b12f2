package python

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Python 3.11.4\n", "3.11.4"},
		{"Python 3.12.0rc1\n", "3.12.0rc1"},
		{"Python 2.7.18\n", "2.7.18"},
		{"warning: something\nPython 3.10.2\n", "3.10.2"},
		{"not python output\n", ""},
		{"", ""},
		{"Python\n", ""},
	}

	for _, tt := range tests {
		if got := ParseVersion(tt.in); got != tt.want {
			t.Errorf("ParseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionCheck(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "python")
	script := "#!/bin/sh\necho \"Python 3.11.4\"\n"
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	version, err := VersionCheck(context.Background(), fake, &stdout, &stderr)
	if err != nil {
		t.Fatalf("VersionCheck: %v", err)
	}
	if version != "3.11.4" {
		t.Errorf("version = %q, want 3.11.4", version)
	}

	// The probe output must land in the capture writer.
	if !strings.Contains(stdout.String(), "Python 3.11.4") {
		t.Errorf("stdout capture = %q", stdout.String())
	}
}

func TestVersionCheck_StderrOutput(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "python")
	// Python 2 printed its version on stderr.
	script := "#!/bin/sh\necho \"Python 2.7.18\" >&2\n"
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	version, err := VersionCheck(context.Background(), fake, &stdout, &stderr)
	if err != nil {
		t.Fatalf("VersionCheck: %v", err)
	}
	if version != "2.7.18" {
		t.Errorf("version = %q, want 2.7.18", version)
	}
	if !strings.Contains(stderr.String(), "Python 2.7.18") {
		t.Errorf("stderr capture = %q", stderr.String())
	}
}

func TestVersionCheck_MissingInterpreter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	_, err := VersionCheck(context.Background(),
		filepath.Join(t.TempDir(), "nope"), &stdout, &stderr)
	if err == nil {
		t.Error("expected error for missing interpreter")
	}
}
