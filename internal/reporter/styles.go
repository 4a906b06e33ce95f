package reporter

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("#F5C2E7")
	colorMuted  = lipgloss.Color("#6B7280")
	colorInfo   = lipgloss.Color("#06B6D4")
	colorWarn   = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Background(lipgloss.Color("#313244")).
			Padding(0, 2).
			MarginBottom(1)

	introStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginBottom(1)

	ratioStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWarn)

	captionStyle = lipgloss.NewStyle().
			Foreground(colorInfo).
			Italic(true)

	bulletStyle = lipgloss.NewStyle().Foreground(colorInfo)
)
