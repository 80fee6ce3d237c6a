// Package tui renders build reports and the interactive dev dashboard.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	PendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	SucceededStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	WarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	ReloadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	URLStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Underline(true)
	HelpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	NameStyle    = lipgloss.NewStyle().Width(10)
	CounterStyle = lipgloss.NewStyle().Width(12).Align(lipgloss.Right)
)

// RowStatus is the display state of a task row.
type RowStatus int

const (
	RowPending RowStatus = iota
	RowRunning
	RowSucceeded
	RowFailed
)

func (s RowStatus) String() string {
	switch s {
	case RowRunning:
		return "running"
	case RowSucceeded:
		return "ok"
	case RowFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Icon returns the single-glyph marker for s.
func (s RowStatus) Icon() string {
	switch s {
	case RowRunning:
		return "●"
	case RowSucceeded:
		return "✓"
	case RowFailed:
		return "✗"
	default:
		return "○"
	}
}

// StyleForStatus returns the style a row in status s is drawn with.
func StyleForStatus(s RowStatus) lipgloss.Style {
	switch s {
	case RowRunning:
		return RunningStyle
	case RowSucceeded:
		return SucceededStyle
	case RowFailed:
		return FailedStyle
	default:
		return PendingStyle
	}
}
