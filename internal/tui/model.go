package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fleetops/go-bot-launcher/internal/stats"
)

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// Snapshot is everything the dashboard renders in one frame.
type Snapshot struct {
	State           string
	PID             int
	Uptime          time.Duration
	Restarts        int
	Interpreter     string
	PythonVersion   string
	Entry           string
	CaptureDegraded bool
	StdoutRate      float64
	StderrRate      float64
	History         stats.Summary
	RecentStdout    []string
	RecentStderr    []string
}

// Source provides the current dashboard snapshot.
type Source interface {
	DashboardSnapshot() Snapshot
}

// Config holds TUI configuration.
type Config struct {
	Entry      string
	StatusAddr string
	Source     Source
}

// Model represents the TUI state.
type Model struct {
	entry      string
	statusAddr string
	source     Source

	snap       Snapshot
	startTime  time.Time
	lastUpdate time.Time
	showStderr bool

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		entry:      cfg.Entry,
		statusAddr: cfg.StatusAddr,
		source:     cfg.Source,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
		width:      80,
		height:     24,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "e":
			m.showStderr = !m.showStderr
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.snap = m.source.DashboardSnapshot()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Elapsed returns the time since the launcher started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
