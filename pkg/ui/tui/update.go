package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// LookupStartMsg is sent when a worker picks up entry Index
type LookupStartMsg struct {
	Index int
	At    time.Time
}

// LookupDoneMsg is sent when entry Index has finished
type LookupDoneMsg struct {
	Index     int
	Outcome   string
	ContentID string
	Elapsed   time.Duration
	Err       error
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 20; w > 10 && w < 60 {
			m.progress.Width = w
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case LookupStartMsg:
		m.start(msg.Index, msg.At)
		return m, nil

	case LookupDoneMsg:
		m.finish(msg)
		if m.Done() {
			return m, tea.Quit
		}
		return m, nil
	}

	return m, nil
}
