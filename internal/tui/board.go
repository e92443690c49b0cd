package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/query"
	"github.com/h0rv/rollup/internal/store"
	"github.com/h0rv/rollup/internal/update"
	"github.com/pkg/browser"
)

// Layout constants
const (
	minColumnWidth = 20
	maxColumnWidth = 35
	headerLines    = 1  // Single header line with title + status
	pageJumpSize   = 10 // Number of items to jump with Ctrl+D/U
)

// Styles for the board view - base styles without width/height (set dynamically)
var (
	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedCardStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	titleStyle = lipgloss.NewStyle().
			Bold(true)
)

// BoardModel shows the report's items as columns, one per group value.
type BoardModel struct {
	report     *Report
	parser     *query.Parser
	groupField string

	// UI components
	keymap      KeyMap
	help        HelpModel
	spinner     spinner.Model
	filterInput textinput.Model

	// Board state
	columns        []string                  // Group keys in order
	filteredItems  map[string][]*domain.Item // Group key -> visible items
	selectedColumn int                       // Currently selected column
	columnOffset   int                       // Horizontal scroll offset (first visible column index)
	selectedCard   map[string]int            // Group key -> selected card index
	scrollOffset   map[string]int            // Group key -> scroll offset

	// View state
	width       int
	height      int
	showHelp    bool
	filterMode  bool
	filterText  string
	missingOnly bool // Show only items the chain blamed
	refreshing  bool
	errorToast  string
}

// NewBoardModel creates a board grouped by groupField.
func NewBoardModel(r *Report, parser *query.Parser, groupField string) BoardModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "state:open label:bug ..."
	ti.Prompt = "/ "

	if parser == nil {
		parser = query.NewParser(nil, nil)
	}

	m := BoardModel{
		report:        r,
		parser:        parser,
		groupField:    groupField,
		keymap:        DefaultKeyMap(),
		help:          NewHelpModel(DefaultKeyMap()),
		spinner:       sp,
		filterInput:   ti,
		filteredItems: make(map[string][]*domain.Item),
		selectedCard:  make(map[string]int),
		scrollOffset:  make(map[string]int),
	}
	m.rebuildColumns()
	return m
}

// Init initializes the board
func (m BoardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.WindowSize())
}

// Update handles messages
func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	return m, nil
}

// handleKeyPress processes keyboard input
func (m BoardModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	// Help overlay
	if m.showHelp {
		if msg.String() == "?" || msg.String() == "q" || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	// Filter mode
	if m.filterMode {
		switch msg.String() {
		case "enter":
			m.filterMode = false
			m.filterText = m.filterInput.Value()
			(&m).applyFilter()
			return m, nil
		case "esc":
			m.filterMode = false
			m.filterInput.SetValue(m.filterText)
			return m, nil
		default:
			var cmd tea.Cmd
			m.filterInput, cmd = m.filterInput.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "?":
		m.showHelp = true
	case "/":
		m.filterMode = true
		m.filterInput.Focus()
	case "h", "left":
		if m.selectedColumn > 0 {
			m.selectedColumn--
			(&m).adjustColumnScroll()
		}
	case "l", "right":
		if m.selectedColumn < len(m.columns)-1 {
			m.selectedColumn++
			(&m).adjustColumnScroll()
		}
	case "j", "down":
		(&m).moveCardSelection(1)
	case "k", "up":
		(&m).moveCardSelection(-1)
	case "g":
		(&m).jumpToCard(0)
	case "G":
		(&m).jumpToCard(-1)
	case "ctrl+d":
		(&m).moveCardSelection(pageJumpSize)
	case "ctrl+u":
		(&m).moveCardSelection(-pageJumpSize)
	case "o":
		item := m.selectedItem()
		if item != nil && item.URL != "" {
			_ = browser.OpenURL(item.URL)
		}
	case "r":
		m.refreshing = true
		return m, func() tea.Msg { return refreshMsg{} }
	case "f":
		return m, func() tea.Msg { return changeGroupFieldMsg{} }
	case "u":
		m.missingOnly = !m.missingOnly
		(&m).applyFilter()
	case "enter":
		item := m.selectedItem()
		if item != nil {
			res := m.report.Updates[item.Key]
			return m, func() tea.Msg { return openDetailMsg{item: item, resolution: res} }
		}
	}

	return m, nil
}

// View renders the board - fills entire terminal exactly
func (m BoardModel) View() string {
	width := m.width
	height := m.height
	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}

	sections := []string{m.renderHeader(width), m.renderSecondHeader(width)}
	if m.filterMode {
		sections = append(sections, m.filterInput.View())
	}

	boardHeight := height - 2
	if m.filterMode {
		boardHeight--
	}
	if boardHeight < 5 {
		boardHeight = 5
	}

	var mainContent string
	switch {
	case m.showHelp:
		helpLines := strings.Split(m.help.View(width), "\n")
		if len(helpLines) > boardHeight {
			helpLines = helpLines[:boardHeight]
		}
		mainContent = strings.Join(helpLines, "\n")
	case len(m.columns) == 0:
		mainContent = lipgloss.Place(width, boardHeight, lipgloss.Center, lipgloss.Center, "No items. Press 'r' to refresh.")
	default:
		mainContent = m.renderBoard(width, boardHeight)
	}
	sections = append(sections, mainContent)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderSecondHeader renders navigation hints and position info
func (m BoardModel) renderSecondHeader(width int) string {
	left := "h/l:col j/k:item o:open enter:view u:missing f:group"

	right := ""
	if m.errorToast != "" {
		right = errorStyle.Render(m.errorToast)
	} else if len(m.columns) > 0 {
		colID := m.columns[m.selectedColumn]
		items := m.filteredItems[colID]
		colPos := fmt.Sprintf("col %d/%d", m.selectedColumn+1, len(m.columns))
		if len(items) > 0 {
			right = fmt.Sprintf("%s | item %d/%d", colPos, m.selectedCard[colID]+1, len(items))
		} else {
			right = colPos
		}
	}

	padding := width - len(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return dimStyle.Render(left) + strings.Repeat(" ", padding) + right
}

// renderHeader renders a single header line with title on left and status on right
func (m BoardModel) renderHeader(width int) string {
	title := m.report.Title
	if title == "" {
		title = "rollup"
	}
	if m.groupField != "" {
		title = fmt.Sprintf("%s (by %s)", title, m.groupField)
	}

	var statusParts []string
	if m.refreshing {
		statusParts = append(statusParts, m.spinner.View()+"refreshing")
	}
	total := 0
	seen := make(map[domain.ItemKey]bool)
	for _, items := range m.filteredItems {
		for _, item := range items {
			if !seen[item.Key] {
				seen[item.Key] = true
				total++
			}
		}
	}
	statusParts = append(statusParts, fmt.Sprintf("%d items", total))
	if m.missingOnly {
		statusParts = append(statusParts, "missing")
	}
	if m.filterText != "" {
		statusParts = append(statusParts, "/"+m.filterText)
	}
	statusParts = append(statusParts, "[?]help")
	status := strings.Join(statusParts, " | ")

	padding := width - len(title) - lipgloss.Width(status) - 2
	if padding < 1 {
		padding = 1
	}
	return titleStyle.Render(title) + strings.Repeat(" ", padding) + dimStyle.Render(status)
}

// renderBoard renders the columns within the given dimensions, scrolling
// horizontally when they overflow.
func (m BoardModel) renderBoard(totalWidth, totalHeight int) string {
	numCols := len(m.columns)
	if numCols == 0 {
		return ""
	}

	// Border adds 2 lines to the content height
	colContentHeight := totalHeight - 2
	if colContentHeight < 3 {
		colContentHeight = 3
	}

	visibleCols := totalWidth / minColumnWidth
	if visibleCols < 1 {
		visibleCols = 1
	}
	if visibleCols > numCols {
		visibleCols = numCols
	}

	colWidth := totalWidth / visibleCols
	if colWidth > maxColumnWidth {
		colWidth = maxColumnWidth
	}
	if colWidth < minColumnWidth {
		colWidth = minColumnWidth
	}

	// 2 border + 2 padding
	innerWidth := colWidth - 4
	if innerWidth < 10 {
		innerWidth = 10
	}

	maxCardLines := colContentHeight - 1
	if maxCardLines < 1 {
		maxCardLines = 1
	}

	startCol := m.columnOffset
	endCol := startCol + visibleCols
	if endCol > numCols {
		endCol = numCols
		startCol = endCol - visibleCols
		if startCol < 0 {
			startCol = 0
		}
	}

	columnViews := make([]string, 0, visibleCols+2)
	indicator := lipgloss.NewStyle().
		Width(2).
		Height(colContentHeight+2).
		Foreground(lipgloss.Color("205")).
		Align(lipgloss.Center, lipgloss.Center)
	if startCol > 0 {
		columnViews = append(columnViews, indicator.Render("◀"))
	}
	for i := startCol; i < endCol; i++ {
		columnViews = append(columnViews, m.renderColumn(m.columns[i], i == m.selectedColumn, colWidth, colContentHeight, innerWidth, maxCardLines, i+1))
	}
	if endCol < numCols {
		columnViews = append(columnViews, indicator.Render("▶"))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, columnViews...)
}

// renderColumn renders a single column. innerHeight excludes the border;
// maxCardLines excludes the header.
func (m BoardModel) renderColumn(colID string, selected bool, width, innerHeight, innerWidth, maxCardLines, colNum int) string {
	items := m.filteredItems[colID]

	headerText := fmt.Sprintf("[%d] %s (%d)", colNum, m.columnName(colID), len(items))
	if len(headerText) > innerWidth {
		headerText = headerText[:innerWidth-1] + "…"
	}

	scrollOffset := m.scrollOffset[colID]
	selectedIdx := m.selectedCard[colID]

	cardSlots := maxCardLines - 1
	if cardSlots < 1 {
		cardSlots = 1
	}

	needUpIndicator := scrollOffset > 0
	needDownIndicator := false
	availableSlots := cardSlots
	if needUpIndicator {
		availableSlots--
	}
	endIdx := scrollOffset + availableSlots
	if endIdx > len(items) {
		endIdx = len(items)
	}
	if endIdx < len(items) {
		needDownIndicator = true
		availableSlots--
		endIdx = scrollOffset + availableSlots
		if endIdx > len(items) {
			endIdx = len(items)
		}
	}

	lines := []string{columnHeaderStyle.Render(headerText)}
	if needUpIndicator {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("↑ %d more", scrollOffset)))
	}
	for i := scrollOffset; i < endIdx; i++ {
		cardText := m.formatCardText(items[i], innerWidth-3) // 3 for "> " or "  " prefix
		if selected && i == selectedIdx {
			lines = append(lines, selectedCardStyle.Render("> ")+cardText)
		} else {
			lines = append(lines, cardStyle.Render("  ")+cardText)
		}
	}
	if remaining := len(items) - endIdx; needDownIndicator && remaining > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("↓ %d more", remaining)))
	}
	if len(items) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
	}

	borderColor := lipgloss.Color("240")
	if selected {
		borderColor = lipgloss.Color("205")
	}

	// DO NOT use MaxHeight - it truncates the border!
	colStyle := lipgloss.NewStyle().
		Width(width-2).
		Height(innerHeight).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor)

	return colStyle.Render(strings.Join(lines, "\n"))
}

// formatCardText renders an update marker, the title, and a right-aligned
// item number within maxWidth.
func (m BoardModel) formatCardText(item *domain.Item, maxWidth int) string {
	res := m.report.Updates[item.Key]
	mark := updateMark(res.Blamed, len(res.Updates))
	maxWidth -= 2 // marker + space

	title := item.Title
	suffix := fmt.Sprintf("#%d", item.Key.Number)

	availableForTitle := maxWidth - len(suffix) - 1
	if availableForTitle < 5 {
		availableForTitle = 5
	}
	if len(title) > availableForTitle {
		title = title[:availableForTitle-1] + "…"
	}

	padding := maxWidth - lipgloss.Width(title) - len(suffix)
	if padding < 1 {
		padding = 1
	}

	return mark + " " + cardStyle.Render(title) + strings.Repeat(" ", padding) + dimStyle.Render(suffix)
}

func (m BoardModel) columnName(colID string) string {
	if colID == store.NoValueKey {
		return "No " + m.groupField
	}
	return colID
}

// rebuildColumns regroups the report's items and reapplies the filter.
func (m *BoardModel) rebuildColumns() {
	m.columns = m.columns[:0]
	if m.report == nil || m.report.List == nil {
		m.filteredItems = make(map[string][]*domain.Item)
		return
	}
	for _, g := range m.report.List.GroupBy(m.groupField) {
		m.columns = append(m.columns, g.Key)
	}
	if m.selectedColumn >= len(m.columns) {
		m.selectedColumn = 0
	}
	m.applyFilter()
}

// applyFilter evaluates the filter query against every group.
func (m *BoardModel) applyFilter() {
	m.errorToast = ""
	var q *query.Query
	if strings.TrimSpace(m.filterText) != "" {
		parsed, err := m.parser.Parse(m.filterText)
		if err != nil {
			m.errorToast = err.Error()
		} else {
			q = parsed
		}
	}

	m.filteredItems = make(map[string][]*domain.Item, len(m.columns))
	if m.report == nil || m.report.List == nil {
		return
	}
	for _, g := range m.report.List.GroupBy(m.groupField) {
		filtered := make([]*domain.Item, 0, len(g.Items))
		for _, item := range g.Items {
			res := m.report.Updates[item.Key]
			if res.Skipped {
				continue
			}
			if m.missingOnly && !res.Blamed {
				continue
			}
			if q != nil && !query.Matches(item, q) {
				continue
			}
			filtered = append(filtered, item)
		}
		m.filteredItems[g.Key] = filtered
	}

	// Reset scroll offsets and clamp selection
	for _, colID := range m.columns {
		m.scrollOffset[colID] = 0
		n := len(m.filteredItems[colID])
		if m.selectedCard[colID] >= n {
			if n > 0 {
				m.selectedCard[colID] = n - 1
			} else {
				m.selectedCard[colID] = 0
			}
		}
	}
}

// moveCardSelection moves the card selection up or down by delta
func (m *BoardModel) moveCardSelection(delta int) {
	if len(m.columns) == 0 {
		return
	}
	colID := m.columns[m.selectedColumn]
	items := m.filteredItems[colID]
	if len(items) == 0 {
		return
	}

	newIdx := m.selectedCard[colID] + delta
	if newIdx < 0 {
		newIdx = 0
	}
	if newIdx >= len(items) {
		newIdx = len(items) - 1
	}
	m.selectedCard[colID] = newIdx
	m.adjustScroll(colID)
}

// jumpToCard jumps to a specific card index. Use -1 to jump to last card.
func (m *BoardModel) jumpToCard(idx int) {
	if len(m.columns) == 0 {
		return
	}
	colID := m.columns[m.selectedColumn]
	items := m.filteredItems[colID]
	if len(items) == 0 {
		return
	}
	if idx < 0 || idx >= len(items) {
		idx = len(items) - 1
	}
	m.selectedCard[colID] = idx
	m.adjustScroll(colID)
}

// adjustScroll ensures the selected card is visible
func (m *BoardModel) adjustScroll(colID string) {
	selectedIdx := m.selectedCard[colID]
	scrollOffset := m.scrollOffset[colID]

	contentHeight := m.height - headerLines - 2 // 2 for column borders
	if m.filterMode {
		contentHeight--
	}
	visibleCards := contentHeight - 3 // header + potential scroll indicators
	if visibleCards < 3 {
		visibleCards = 3
	}

	if selectedIdx < scrollOffset {
		m.scrollOffset[colID] = selectedIdx
	}
	if selectedIdx >= scrollOffset+visibleCards {
		m.scrollOffset[colID] = selectedIdx - visibleCards + 1
	}
}

// adjustColumnScroll ensures the selected column is visible (horizontal carousel)
func (m *BoardModel) adjustColumnScroll() {
	if len(m.columns) == 0 || m.width == 0 {
		return
	}
	visibleCols := m.width / minColumnWidth
	if visibleCols < 1 {
		visibleCols = 1
	}
	if visibleCols > len(m.columns) {
		visibleCols = len(m.columns)
	}
	if m.selectedColumn < m.columnOffset {
		m.columnOffset = m.selectedColumn
	}
	if m.selectedColumn >= m.columnOffset+visibleCols {
		m.columnOffset = m.selectedColumn - visibleCols + 1
	}
}

// selectedItem returns the item under the cursor
func (m BoardModel) selectedItem() *domain.Item {
	if len(m.columns) == 0 {
		return nil
	}
	colID := m.columns[m.selectedColumn]
	items := m.filteredItems[colID]
	if len(items) == 0 {
		return nil
	}
	idx := m.selectedCard[colID]
	if idx >= len(items) {
		idx = 0
	}
	return items[idx]
}

// Message types
type (
	refreshMsg          struct{}
	changeGroupFieldMsg struct{}
	openDetailMsg       struct {
		item       *domain.Item
		resolution update.Resolution
	}
)
