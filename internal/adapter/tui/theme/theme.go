// Package theme provides the visual design system for the TUI.
// All styles use adaptive colors that work on both light and dark terminals.
package theme

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}

	ColorBorder = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextMuted = lipgloss.NewStyle().Foreground(ColorMuted)

	PickerCursor = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)

	UserLabel      = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
	AssistantLabel = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)

	ErrorBanner = lipgloss.NewStyle().
			Foreground(ColorError).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorError).
			Padding(0, 1)

	Chip = lipgloss.NewStyle().
		Foreground(ColorInfo).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)

	StaleChip = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			Faint(true)

	StatusBar = lipgloss.NewStyle().Foreground(ColorMuted)
)
