package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// State of one URL in a warm run
type State int

const (
	StatePending State = iota
	StateActive
	StateDone
	StateFailed
)

// Entry is one URL being warmed
type Entry struct {
	URL       string
	State     State
	Outcome   string
	ContentID string
	Err       error
	Started   time.Time
	Elapsed   time.Duration
}

// Model renders a batch of lookups as they run
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	entries  []Entry
	finished int
	failed   int

	width    int
	quitting bool
	// cancel stops the workers when the user quits early
	cancel func()
}

// NewModel creates a model with one pending entry per URL
func NewModel(urls []string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(cyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	entries := make([]Entry, len(urls))
	for i, u := range urls {
		entries[i] = Entry{URL: u}
	}
	if cancel == nil {
		cancel = func() {}
	}

	return Model{
		spinner:  s,
		progress: p,
		entries:  entries,
		cancel:   cancel,
	}
}

// Entries returns a copy of the current entries
func (m Model) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Done reports whether every entry has finished
func (m Model) Done() bool {
	return m.finished == len(m.entries)
}

// Failed returns the number of failed entries
func (m Model) Failed() int {
	return m.failed
}

func (m Model) percent() float64 {
	if len(m.entries) == 0 {
		return 1
	}
	return float64(m.finished) / float64(len(m.entries))
}

func (m *Model) start(i int, at time.Time) {
	if i < 0 || i >= len(m.entries) || m.entries[i].State != StatePending {
		return
	}
	m.entries[i].State = StateActive
	m.entries[i].Started = at
}

func (m *Model) finish(msg LookupDoneMsg) {
	i := msg.Index
	if i < 0 || i >= len(m.entries) {
		return
	}
	e := &m.entries[i]
	if e.State == StateDone || e.State == StateFailed {
		return
	}
	e.Elapsed = msg.Elapsed
	e.ContentID = msg.ContentID
	e.Outcome = msg.Outcome
	e.Err = msg.Err
	if msg.Err != nil {
		e.State = StateFailed
		m.failed++
	} else {
		e.State = StateDone
	}
	m.finished++
}
