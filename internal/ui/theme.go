package ui

import "github.com/charmbracelet/lipgloss"

// accentColor is the single accent used across the TUI and status view.
const accentColor = "75" // steel blue

// Theme is the small style set shared by the live and status views.
type Theme struct {
	Title  lipgloss.Style
	Accent lipgloss.Style
	Muted  lipgloss.Style
	Good   lipgloss.Style
	Warn   lipgloss.Style
	Bad    lipgloss.Style
}

// NewTheme builds the styles; with noColor every style is a no-op.
func NewTheme(noColor bool) Theme {
	if noColor {
		return Theme{}
	}
	return Theme{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentColor)),
		Accent: lipgloss.NewStyle().Foreground(lipgloss.Color(accentColor)),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		Good:   lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		Warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}
