package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accent = lipgloss.Color("#25F4EE")
	brand  = lipgloss.Color("#FE2C55")
	muted  = lipgloss.Color("#8A8A8A")

	labelStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3DDC84")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB020")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(brand).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(muted)
	headerStyle  = lipgloss.NewStyle().Foreground(brand).Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Out is where the Print helpers write
var Out io.Writer = os.Stdout

// PrintError prints an error message, with an optional cause
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf("%s: %v", msg, args[0])
	}
	fmt.Fprintln(Out, errorStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Fprintln(Out, successStyle.Render(msg))
}

func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf("%s: %v", msg, args[0])
	}
	fmt.Fprintln(Out, warningStyle.Render(msg))
}

// PrintInfo prints one "label: value" line
func PrintInfo(label string, value string) {
	fmt.Fprintf(Out, "%s: %s\n", labelStyle.Render(label), valueStyle.Render(value))
}

func PrintDim(msg string) {
	fmt.Fprintln(Out, dimStyle.Render(msg))
}

// Table renders rows under headers with a rounded border
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(muted)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func PrintTable(headers []string, rows [][]string) {
	fmt.Fprintln(Out, Table(headers, rows))
}

// HumanBytes formats a byte count with a binary unit
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
