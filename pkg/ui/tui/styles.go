package tui

import "github.com/charmbracelet/lipgloss"

var (
	cyan  = lipgloss.Color("#25F4EE")
	red   = lipgloss.Color("#FE2C55")
	green = lipgloss.Color("#3DDC84")
	amber = lipgloss.Color("#FFB020")
	grey  = lipgloss.Color("#8A8A8A")

	titleStyle = lipgloss.NewStyle().
			Background(red).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	pendingStyle = lipgloss.NewStyle().Foreground(grey)
	activeStyle  = lipgloss.NewStyle().Foreground(cyan).Bold(true)
	hitStyle     = lipgloss.NewStyle().Foreground(grey)
	fetchedStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(red).Bold(true)
	restoreStyle = lipgloss.NewStyle().Foreground(amber).Bold(true)

	summaryStyle = lipgloss.NewStyle().Foreground(grey).PaddingTop(1)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)
