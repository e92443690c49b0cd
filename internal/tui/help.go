package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
)

var helpOverlayStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("62")).
	Padding(1, 2).
	MarginTop(2)

// HelpModel renders the board's key bindings and the update marker legend.
type HelpModel struct {
	help   help.Model
	keymap KeyMap
}

func NewHelpModel(keymap KeyMap) HelpModel {
	h := help.New()
	h.ShowAll = true

	return HelpModel{
		help:   h,
		keymap: keymap,
	}
}

func (m HelpModel) View(width int) string {
	m.help.Width = width - 8 // padding and border
	var b strings.Builder
	b.WriteString(m.help.View(m.keymap))
	b.WriteString("\n\n")
	b.WriteString(legend())
	return helpOverlayStyle.Render(b.String())
}

func legend() string {
	rows := []string{
		updateMark(false, 1) + " has an update",
		updateMark(true, 0) + " missing update",
		updateMark(false, 0) + " no update",
	}
	return strings.Join(rows, "   ")
}
