package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the title, one line per URL, and the overall progress bar
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sharetok warm"))
	b.WriteString("\n\n")

	for _, e := range m.entries {
		b.WriteString(m.renderEntry(e))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.progress.ViewAs(m.percent()))
	b.WriteString(summaryStyle.Render(fmt.Sprintf("\n%d/%d done, %d failed", m.finished, len(m.entries), m.failed)))
	b.WriteByte('\n')
	if !m.Done() && !m.quitting {
		b.WriteString(helpStyle.Render("q to stop"))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m Model) renderEntry(e Entry) string {
	url := truncate(e.URL, m.urlWidth())
	switch e.State {
	case StateActive:
		return fmt.Sprintf("%s %s", m.spinner.View(), activeStyle.Render(url))
	case StateDone:
		return fmt.Sprintf("%s %s %s", outcomeStyle(e.Outcome).Render(padRight(e.Outcome, 8)), url,
			pendingStyle.Render(fmt.Sprintf("%s %s", e.ContentID, e.Elapsed.Round(time.Millisecond))))
	case StateFailed:
		return fmt.Sprintf("%s %s %s", failedStyle.Render(padRight("failed", 8)), url, failedStyle.Render(e.Err.Error()))
	default:
		return pendingStyle.Render("  " + url)
	}
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "fetched":
		return fetchedStyle
	case "restored":
		return restoreStyle
	default:
		return hitStyle
	}
}

func (m Model) urlWidth() int {
	if m.width > 40 {
		return m.width / 2
	}
	return 60
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
