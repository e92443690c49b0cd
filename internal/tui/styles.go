package tui

import "github.com/charmbracelet/lipgloss"

// Shared styles for the picker and loading screens.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("170")).
				Bold(true)

	NormalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// Update markers shown before each card and in the help legend.
const (
	markUpdated = "●"
	markBlamed  = "!"
	markNone    = "·"
)

var (
	updatedMarkStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34")) // Green

	blamedMarkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red
)

// updateMark returns the styled marker for an item's resolution.
func updateMark(blamed bool, updates int) string {
	switch {
	case blamed:
		return blamedMarkStyle.Render(markBlamed)
	case updates > 0:
		return updatedMarkStyle.Render(markUpdated)
	default:
		return dimStyle.Render(markNone)
	}
}
