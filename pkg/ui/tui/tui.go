package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI drives a warm run's progress view. Workers report through Started and
// Finished from any goroutine.
type TUI struct {
	program *tea.Program
	model   *Model
}

// New creates the view for urls. cancel is called if the user quits early.
func New(urls []string, cancel func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(urls, cancel)
	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
	}
}

// Run blocks until every entry finished or the user quit, returning the
// final entries
func (t *TUI) Run() ([]Entry, error) {
	final, err := t.program.Run()
	if err != nil {
		return nil, fmt.Errorf("progress view: %w", err)
	}
	m, ok := final.(*Model)
	if !ok {
		return t.model.Entries(), nil
	}
	return m.Entries(), nil
}

func (t *TUI) Started(index int) {
	t.program.Send(LookupStartMsg{Index: index, At: time.Now()})
}

func (t *TUI) Finished(index int, outcome, contentID string, elapsed time.Duration, err error) {
	t.program.Send(LookupDoneMsg{
		Index:     index,
		Outcome:   outcome,
		ContentID: contentID,
		Elapsed:   elapsed,
		Err:       err,
	})
}

// Quit stops the program without waiting for pending entries
func (t *TUI) Quit() {
	t.program.Quit()
}
