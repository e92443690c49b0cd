package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/h0rv/rollup/internal/domain"
)

// builtinGroupFields can group any item list.
var builtinGroupFields = []string{"state", "labels", "assignees", "type", "author", "repository"}

// fieldItem wraps a grouping choice for use in bubbles/list.
type fieldItem struct {
	name    string
	kind    string
	options int
}

func (i fieldItem) FilterValue() string {
	return i.name
}

func (i fieldItem) Title() string {
	return i.name
}

func (i fieldItem) Description() string {
	if i.options > 0 {
		return fmt.Sprintf("Type: %s, Options: %d", i.kind, i.options)
	}
	return "Type: " + i.kind
}

// fieldDelegate is a custom item delegate for field items.
type fieldDelegate struct{}

func (d fieldDelegate) Height() int                             { return 2 }
func (d fieldDelegate) Spacing() int                            { return 1 }
func (d fieldDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d fieldDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(fieldItem)
	if !ok {
		return
	}

	str := fmt.Sprintf("%d. %s", index+1, i.Title())
	desc := i.Description()

	if index == m.Index() {
		fmt.Fprint(w, SelectedItemStyle.Render("> "+str))
		fmt.Fprint(w, "\n  "+NormalItemStyle.Render(desc))
	} else {
		fmt.Fprint(w, NormalItemStyle.Render("  "+str))
		fmt.Fprint(w, "\n  "+lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(desc))
	}
}

// GroupFieldPickerModel lists the custom fields seen on the items followed by
// the built-in item attributes.
type GroupFieldPickerModel struct {
	list list.Model
	err  error
}

// NewGroupFieldPickerModel creates a picker over fields plus the built-ins.
func NewGroupFieldPickerModel(fields []*domain.FieldDef) GroupFieldPickerModel {
	items := make([]list.Item, 0, len(fields)+len(builtinGroupFields))
	for _, f := range fields {
		items = append(items, fieldItem{name: f.Name, kind: f.Type, options: len(f.Options)})
	}
	for _, name := range builtinGroupFields {
		items = append(items, fieldItem{name: name, kind: "built-in"})
	}

	l := list.New(items, fieldDelegate{}, 80, 20)
	l.Title = "Select a Grouping Field"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle

	return GroupFieldPickerModel{
		list: l,
	}
}

// Init initializes the model.
func (m GroupFieldPickerModel) Init() tea.Cmd {
	return tea.WindowSize()
}

// Update handles messages and updates the model state.
func (m GroupFieldPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, func() tea.Msg {
				return QuitMsg{}
			}
		case "enter":
			if item, ok := m.list.SelectedItem().(fieldItem); ok {
				return m, func() tea.Msg {
					return FieldSelectedMsg{Field: item.name}
				}
			}
		}

	case ErrorMsg:
		m.err = msg.Err
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the model.
func (m GroupFieldPickerModel) View() string {
	view := m.list.View()

	if m.err != nil {
		view += ErrorStyle.Render(fmt.Sprintf("\nError: %v", m.err))
	}

	return view
}
