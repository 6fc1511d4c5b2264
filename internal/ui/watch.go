package ui

import (
	"strings"
	"time"

	"github.com/bnema/eiscreen/internal/ipc"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// StatusFunc fetches one status report from a running client
type StatusFunc func() (*ipc.StatusReport, error)

// StatusMsg carries the result of one poll
type StatusMsg struct {
	Report *ipc.StatusReport
	Err    error
}

type refreshMsg struct{}

// WatchModel polls the control socket and renders the live status
type WatchModel struct {
	fetch      StatusFunc
	interval   time.Duration
	socketPath string
	spinner    spinner.Model

	report  *ipc.StatusReport
	err     error
	updated time.Time
	polls   int
}

// NewWatchModel creates a status watcher polling every interval
func NewWatchModel(socketPath string, interval time.Duration, fetch StatusFunc) *WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerFrames,
		FPS:    time.Second / 10,
	}
	s.Style = SpinnerStyle

	return &WatchModel{
		fetch:      fetch,
		interval:   interval,
		socketPath: socketPath,
		spinner:    s,
	}
}

func (m *WatchModel) poll() tea.Cmd {
	return func() tea.Msg {
		report, err := m.fetch()
		return StatusMsg{Report: report, Err: err}
	}
}

// Init implements tea.Model
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

// Update implements tea.Model
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.poll()
		}

	case StatusMsg:
		m.polls++
		m.err = msg.Err
		if msg.Err == nil {
			m.report = msg.Report
			m.updated = time.Now()
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return refreshMsg{} })

	case refreshMsg:
		return m, m.poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m *WatchModel) View() string {
	var output strings.Builder

	switch {
	case m.err != nil:
		output.WriteString(m.spinner.View() + " " + WarningStyle.Render("Waiting for eiscreen client"))
		output.WriteString("\n")
		output.WriteString(MutedStyle.Render(m.err.Error()))
	case m.report == nil:
		output.WriteString(m.spinner.View() + " " + SubtleStyle.Render("Connecting to "+m.socketPath))
	default:
		output.WriteString(RenderStatus(m.report, m.socketPath))
		output.WriteString("\n")
		output.WriteString(MutedStyle.Render("updated " + m.updated.Format("15:04:05")))
	}

	output.WriteString("\n\n")
	output.WriteString(Separator(0))
	output.WriteString("\n")
	output.WriteString(FormatControl("r", "Refresh") + "  " + FormatControl("q", "Quit"))
	output.WriteString("\n")
	return output.String()
}
