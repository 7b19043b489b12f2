package python

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// VersionCheck runs "<python> --version" with stdout/stderr directed at the
// given writers (normally the append-mode capture logs). Its purpose is to
// confirm the interpreter is runnable and to seed the capture files; a
// failure here is an environment error, not a fatal one.
//
// Returns the parsed version string ("3.11.4") when the output is
// recognizable, or "" with a nil error when it is not.
func VersionCheck(ctx context.Context, interpreterPath string, stdout, stderr io.Writer) (string, error) {
	var combined bytes.Buffer

	cmd := exec.CommandContext(ctx, interpreterPath, "--version")
	cmd.Stdout = io.MultiWriter(stdout, &combined)
	// Python 2 printed the version on stderr; capture both.
	cmd.Stderr = io.MultiWriter(stderr, &combined)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("version check: %w", err)
	}

	return ParseVersion(combined.String()), nil
}

// ParseVersion extracts "X.Y.Z" from output like "Python 3.11.4".
// Returns "" when the output doesn't match.
func ParseVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) >= 2 && fields[0] == "Python" {
			return fields[1]
		}
	}
	return ""
}
