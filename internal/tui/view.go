package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// render builds the full dashboard frame.
func (m Model) render() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderProcess())
	b.WriteString("\n")
	b.WriteString(m.renderHistory())
	b.WriteString("\n")
	b.WriteString(m.renderOutput())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m Model) renderHeader() string {
	title := headerStyle.Render(" go-bot-launcher ")
	entry := mutedStyle.Render(m.entry)
	elapsed := dimStyle.Render("up " + formatDuration(m.Elapsed()))
	return lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", entry, "  ", elapsed)
}

func (m Model) renderProcess() string {
	s := m.snap

	lines := []string{
		sectionHeaderStyle.Render("Bot Process"),
		RenderKeyValueStyled("state", StateStyle(s.State).Render(s.State)),
	}

	if s.PID > 0 {
		lines = append(lines, RenderKeyValue("pid", fmt.Sprintf("%d", s.PID)))
		lines = append(lines, RenderKeyValue("uptime", formatDuration(s.Uptime)))
	}
	lines = append(lines, RenderKeyValue("restarts", fmt.Sprintf("%d", s.Restarts)))

	if s.Interpreter != "" {
		interp := s.Interpreter
		if s.PythonVersion != "" {
			interp += " (" + s.PythonVersion + ")"
		}
		lines = append(lines, RenderKeyValue("python", interp))
	}

	lines = append(lines, RenderKeyValueStyled("capture", CaptureLabel(s.CaptureDegraded)))
	lines = append(lines, RenderKeyValue("stdout", formatRate(s.StdoutRate)))
	lines = append(lines, RenderKeyValue("stderr", formatRate(s.StderrRate)))

	return strings.Join(lines, "\n")
}

func (m Model) renderHistory() string {
	h := m.snap.History

	lines := []string{
		sectionHeaderStyle.Render("Run History"),
		RenderKeyValue("runs", fmt.Sprintf("%d", h.TotalRuns)),
		RenderKeyValue("clean exits", fmt.Sprintf("%d", h.CleanExits)),
	}

	if h.SpawnFailures > 0 {
		lines = append(lines, RenderKeyValueStyled("spawn failures",
			valueBadStyle.Render(fmt.Sprintf("%d", h.SpawnFailures))))
	}
	if h.TotalRuns > 0 {
		lines = append(lines, RenderKeyValueStyled("last exit",
			ExitCodeStyle(h.LastExitCode).Render(fmt.Sprintf("%d", h.LastExitCode))))
		lines = append(lines, RenderKeyValue("uptime p50/p90",
			fmt.Sprintf("%s / %s", formatDuration(h.UptimeP50), formatDuration(h.UptimeP90))))
	}

	// Most recent few runs, newest first.
	const maxRows = 5
	for i, rec := range h.Recent {
		if i >= maxRows {
			break
		}
		code := ExitCodeStyle(rec.ExitCode).Render(fmt.Sprintf("exit %d", rec.ExitCode))
		if rec.SpawnFailed {
			code = valueBadStyle.Render("spawn failed")
		}
		row := fmt.Sprintf("  %s  %s  %s",
			dimStyle.Render(rec.RunID),
			code,
			mutedStyle.Render(formatDuration(rec.Uptime)),
		)
		lines = append(lines, row)
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderOutput() string {
	name := "Recent stdout"
	recent := m.snap.RecentStdout
	if m.showStderr {
		name = "Recent stderr"
		recent = m.snap.RecentStderr
	}

	lines := []string{sectionHeaderStyle.Render(name)}

	// Fit the tail into whatever height is left.
	rows := m.height - 20
	if rows < 3 {
		rows = 3
	}
	if rows > len(recent) {
		rows = len(recent)
	}

	if len(recent) == 0 {
		lines = append(lines, dimStyle.Render("  (no output yet)"))
	}
	for _, line := range recent[len(recent)-rows:] {
		if m.width > 4 && len(line) > m.width-4 {
			line = line[:m.width-4]
		}
		lines = append(lines, "  "+mutedStyle.Render(line))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	parts := []string{"q: quit", "e: stdout/stderr", "r: refresh"}
	if m.statusAddr != "" {
		parts = append(parts, "status: http://"+m.statusAddr+"/status")
	}
	return footerStyle.Render(strings.Join(parts, "  •  "))
}
