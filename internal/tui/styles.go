package tui

import "github.com/charmbracelet/lipgloss"

const (
	IconPassed  = "✅"
	IconFailed  = "❌"
	IconError   = "💥"
	IconSkipped = "⏭"
	IconPending = "·"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}).
			Background(lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#303030"}).
			Padding(0, 2)

	caseStyle = lipgloss.NewStyle().Bold(true)

	phaseStyle = lipgloss.NewStyle().PaddingLeft(4)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"})

	passedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"})

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})

	logPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#404040"}).
			Padding(0, 1)
)
