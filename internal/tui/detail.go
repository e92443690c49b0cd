package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/update"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pkg/browser"
)

// Layout constants
const (
	leftPanelRatio = 0.35 // Left panel takes 35% of width
	minLeftWidth   = 30
	maxLeftWidth   = 50
	headerHeight   = 1
	footerHeight   = 1
	borderSize     = 2 // Top + bottom border
)

// Detail view styles
var (
	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	detailValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	commentAuthorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("212")).
				Bold(true)

	commentTimeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	commentBodyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	strategyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228")).
			Italic(true)

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	focusedPanelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("205"))

	scrollIndicatorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228")).
			Bold(true)
)

// DetailModel shows one item's metadata beside its resolved updates and
// comment history.
type DetailModel struct {
	item       *domain.Item
	resolution update.Resolution
	now        func() time.Time

	viewport viewport.Model

	// View dimensions
	width  int
	height int
}

// NewDetailModel creates a new detail view model
func NewDetailModel(item *domain.Item, res update.Resolution) DetailModel {
	vp := viewport.New(40, 10) // Will be resized in WindowSizeMsg
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	m := DetailModel{
		item:       item,
		resolution: res,
		now:        time.Now,
		viewport:   vp,
	}
	m.updateViewportContent()
	return m
}

// Init initializes the detail model
func (m DetailModel) Init() tea.Cmd {
	return tea.WindowSize()
}

// Update handles messages
func (m DetailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeComponents()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

// resizeComponents calculates and sets component dimensions
func (m *DetailModel) resizeComponents() {
	leftWidth := int(float64(m.width) * leftPanelRatio)
	if leftWidth < minLeftWidth {
		leftWidth = minLeftWidth
	}
	if leftWidth > maxLeftWidth {
		leftWidth = maxLeftWidth
	}

	rightWidth := m.width - leftWidth - 3 // 3 = gap between panels
	if rightWidth < 30 {
		rightWidth = 30
	}

	contentHeight := m.height - headerHeight - footerHeight - borderSize
	if contentHeight < 10 {
		contentHeight = 10
	}

	m.viewport.Width = rightWidth - borderSize - 2 // -2 for padding
	m.viewport.Height = contentHeight - borderSize - 1
	m.updateViewportContent()
}

// handleKeyPress processes keyboard input
func (m DetailModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc":
		return m, func() tea.Msg { return closeDetailMsg{} }
	case "o":
		if m.item.URL != "" {
			_ = browser.OpenURL(m.item.URL)
		}
		return m, nil
	case "g":
		m.viewport.GotoTop()
		return m, nil
	case "G":
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail screen
func (m DetailModel) View() string {
	width := m.width
	height := m.height
	if width == 0 {
		width = 100
	}
	if height == 0 {
		height = 30
	}

	leftWidth := int(float64(width) * leftPanelRatio)
	if leftWidth < minLeftWidth {
		leftWidth = minLeftWidth
	}
	if leftWidth > maxLeftWidth {
		leftWidth = maxLeftWidth
	}
	rightWidth := width - leftWidth - 1 // 1 char gap

	contentHeight := height - headerHeight - footerHeight
	if contentHeight < 10 {
		contentHeight = 10
	}

	header := dimStyle.Render("[q]back [o]open [j/k]scroll [g/G]top/bottom")

	leftPanel := panelBorderStyle.
		Width(leftWidth - borderSize).
		Height(contentHeight - borderSize).
		Render(m.renderLeftPanel(leftWidth-borderSize, contentHeight-borderSize))

	rightPanel := focusedPanelBorderStyle.
		Width(rightWidth - borderSize).
		Height(contentHeight - borderSize).
		Render(m.renderRightPanel())

	panels := lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, " ", rightPanel)
	return lipgloss.JoinVertical(lipgloss.Left, header, panels, m.renderFooter(width))
}

// renderFooter renders the bottom status bar
func (m DetailModel) renderFooter(width int) string {
	var left, right string

	switch {
	case m.resolution.Blamed:
		left = warningStyle.Render("No update in the configured window")
	case m.resolution.Skipped:
		left = "Skipped"
	default:
		left = fmt.Sprintf("%d updates, %d comments", len(m.resolution.Updates), len(m.item.Comments))
	}

	if m.viewport.TotalLineCount() > m.viewport.Height {
		switch {
		case m.viewport.AtTop():
			right = "TOP"
		case m.viewport.AtBottom():
			right = "END"
		default:
			right = fmt.Sprintf("%d%%", int(m.viewport.ScrollPercent()*100))
		}
	}

	padding := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return dimStyle.Render(left) + strings.Repeat(" ", padding) + dimStyle.Render(right)
}

// renderLeftPanel renders the item metadata panel
func (m DetailModel) renderLeftPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(detailLabelStyle.Render(fmt.Sprintf("%s %s", m.item.Kind, m.item.Key)))
	b.WriteString("\n\n")

	b.WriteString(detailTitleStyle.Render(wordwrap.String(m.item.Title, width-2)))
	b.WriteString("\n\n")

	row := func(label, value string) {
		if value == "" {
			return
		}
		if len(value) > width-len(label)-2 && width-len(label)-5 > 0 {
			value = value[:width-len(label)-5] + "..."
		}
		b.WriteString(detailLabelStyle.Render(label + ": "))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteString("\n")
	}

	if m.item.State != "" {
		stateStyle := detailValueStyle
		switch m.item.State {
		case domain.StateOpen:
			stateStyle = stateStyle.Foreground(lipgloss.Color("34"))
		case domain.StateClosed:
			stateStyle = stateStyle.Foreground(lipgloss.Color("196"))
		}
		b.WriteString(detailLabelStyle.Render("State: "))
		b.WriteString(stateStyle.Render(m.item.State))
		b.WriteString("\n")
	}
	row("Type", m.item.Type)
	row("Author", m.item.Author)
	row("Assigned", strings.Join(m.item.Assignees, ", "))
	row("Labels", strings.Join(m.item.Labels, ", "))

	for _, name := range sortedFieldNames(m.item.ProjectFields) {
		fv := m.item.ProjectFields[name]
		row(fv.Name, fv.String())
	}
	for _, name := range sortedFieldNames(m.item.IssueFields) {
		if _, shadowed := m.item.ProjectFields[name]; shadowed {
			continue
		}
		fv := m.item.IssueFields[name]
		row(fv.Name, fv.String())
	}

	if m.item.Body != "" {
		b.WriteString("\n")
		b.WriteString(detailLabelStyle.Render("Description:"))
		b.WriteString("\n")
		maxBodyLines := height - strings.Count(b.String(), "\n") - 2
		if maxBodyLines > 0 {
			lines := strings.Split(wordwrap.String(m.item.Body, width-2), "\n")
			if len(lines) > maxBodyLines {
				lines = append(lines[:maxBodyLines-1], "...")
			}
			b.WriteString(strings.Join(lines, "\n"))
		}
	}

	return b.String()
}

// renderRightPanel renders the updates panel with viewport
func (m DetailModel) renderRightPanel() string {
	title := fmt.Sprintf("Updates (%d)", len(m.resolution.Updates))

	scrollHint := ""
	if m.viewport.TotalLineCount() > m.viewport.Height {
		switch {
		case m.viewport.AtTop():
			scrollHint = " ↓"
		case m.viewport.AtBottom():
			scrollHint = " ↑"
		default:
			scrollHint = " ↕"
		}
	}

	return detailLabelStyle.Render(title) + scrollIndicatorStyle.Render(scrollHint) + "\n" + m.viewport.View()
}

// updateViewportContent formats updates then the remaining comments
func (m *DetailModel) updateViewportContent() {
	var b strings.Builder
	wrapWidth := m.viewport.Width - 4
	if wrapWidth < 30 {
		wrapWidth = 30
	}
	separator := dimStyle.Render(strings.Repeat("─", min(20, wrapWidth)))

	used := make(map[*domain.Comment]bool)
	switch {
	case m.resolution.Blamed:
		b.WriteString(warningStyle.Render("Missing update"))
		b.WriteString("\n")
	case len(m.resolution.Updates) == 0:
		b.WriteString(dimStyle.Render("No update"))
		b.WriteString("\n")
	}
	for i, u := range m.resolution.Updates {
		if i > 0 {
			b.WriteString("\n" + separator + "\n\n")
		}
		if u.Comment != nil {
			used[u.Comment] = true
			b.WriteString(m.commentHeader(u.Comment))
		}
		if u.Strategy.Kind != "" {
			b.WriteString(" ")
			b.WriteString(strategyStyle.Render(u.Strategy.String()))
		}
		b.WriteString("\n")
		b.WriteString(commentBodyStyle.Render(wordwrap.String(u.Content, wrapWidth)))
		b.WriteString("\n")
	}

	if rest := m.remainingComments(used); len(rest) > 0 {
		b.WriteString("\n")
		b.WriteString(detailLabelStyle.Render(fmt.Sprintf("── %d other comments ──", len(rest))))
		b.WriteString("\n")
		for _, c := range rest {
			b.WriteString("\n")
			b.WriteString(m.commentHeader(c))
			b.WriteString("\n")
			b.WriteString(commentBodyStyle.Render(wordwrap.String(c.Body, wrapWidth)))
			b.WriteString("\n")
		}
	}

	m.viewport.SetContent(b.String())
}

func (m DetailModel) commentHeader(c *domain.Comment) string {
	author := c.Author
	if author == "" {
		author = "(deleted)"
	}
	return commentAuthorStyle.Render(author) + " " + commentTimeStyle.Render(formatTimeAgo(c.CreatedAt, m.now()))
}

// remainingComments returns the comments not shown as updates, newest first.
func (m DetailModel) remainingComments(used map[*domain.Comment]bool) []*domain.Comment {
	var out []*domain.Comment
	for _, c := range m.item.CommentsNewestFirst() {
		if !used[c] {
			out = append(out, c)
		}
	}
	return out
}

// formatTimeAgo renders t relative to now
func formatTimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	case duration < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(duration.Hours()/24/7))
	case duration < 365*24*time.Hour:
		return fmt.Sprintf("%dmo ago", int(duration.Hours()/24/30))
	default:
		return fmt.Sprintf("%dy ago", int(duration.Hours()/24/365))
	}
}

func sortedFieldNames(fields map[string]domain.FieldValue) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Message types for detail view
type closeDetailMsg struct{}
