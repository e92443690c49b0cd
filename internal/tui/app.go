package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/query"
	"github.com/h0rv/rollup/internal/store"
	"github.com/h0rv/rollup/internal/update"
)

// Report is a resolved item list ready for display.
type Report struct {
	Title   string
	List    *store.ItemList
	Updates map[domain.ItemKey]update.Resolution
}

// Loader builds a fresh Report. It runs off the UI goroutine.
type Loader func(ctx context.Context) (*Report, error)

// AppScreen represents the different screens in the application flow.
type AppScreen int

const (
	ScreenLoading AppScreen = iota
	ScreenFieldPicker
	ScreenBoard
	ScreenDetail
)

// AppModel is the root Bubble Tea model that manages screen transitions:
// loading -> optional field selection -> board <-> detail.
type AppModel struct {
	ctx    context.Context
	load   Loader
	parser *query.Parser

	// Pre-selected grouping field; empty runs the selection heuristic
	groupFieldFlag string

	currentScreen AppScreen
	currentModel  tea.Model
	err           error
	loadingMsg    string

	report     *Report
	groupField string

	// Cached to preserve cursor state across screen transitions
	boardModel *BoardModel
}

// NewAppModel creates the root model. parser resolves filter queries typed
// on the board and may be nil.
func NewAppModel(ctx context.Context, load Loader, parser *query.Parser, groupField string) AppModel {
	return AppModel{
		ctx:            ctx,
		load:           load,
		parser:         parser,
		groupFieldFlag: groupField,
		currentScreen:  ScreenLoading,
		loadingMsg:     "Loading items and updates...",
	}
}

// Init starts the first load.
func (m AppModel) Init() tea.Cmd {
	return m.loadReport()
}

// Update handles messages and transitions between screens.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && m.currentScreen != ScreenBoard {
			return m, tea.Quit
		}

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case QuitMsg:
		if m.currentScreen == ScreenFieldPicker && m.boardModel != nil {
			m.currentScreen = ScreenBoard
			m.currentModel = *m.boardModel
			return m, tea.WindowSize()
		}
		return m, tea.Quit

	case reportLoadedMsg:
		m.report = msg.report
		if m.groupField == "" {
			field, candidates, err := m.chooseGroupField()
			if err != nil {
				m.err = err
				return m, nil
			}
			if field == "" {
				m.currentScreen = ScreenFieldPicker
				picker := NewGroupFieldPickerModel(candidates)
				m.currentModel = picker
				return m, picker.Init()
			}
			m.groupField = field
		}
		return m, m.showBoard()

	case FieldSelectedMsg:
		m.groupField = msg.Field
		return m, m.showBoard()

	case changeGroupFieldMsg:
		m.currentScreen = ScreenFieldPicker
		picker := NewGroupFieldPickerModel(m.report.List.Fields())
		m.currentModel = picker
		return m, picker.Init()

	case refreshMsg:
		return m, m.loadReport()

	case openDetailMsg:
		m.currentScreen = ScreenDetail
		detail := NewDetailModel(msg.item, msg.resolution)
		m.currentModel = detail
		return m, detail.Init()

	case closeDetailMsg:
		m.currentScreen = ScreenBoard
		m.currentModel = *m.boardModel
		return m, tea.WindowSize()
	}

	if m.currentModel != nil {
		var cmd tea.Cmd
		m.currentModel, cmd = m.currentModel.Update(msg)
		if m.currentScreen == ScreenBoard {
			if bm, ok := m.currentModel.(BoardModel); ok {
				m.boardModel = &bm
			}
		}
		return m, cmd
	}

	return m, nil
}

// View renders the current screen.
func (m AppModel) View() string {
	if m.err != nil {
		return ErrorStyle.Render(fmt.Sprintf("Error: %v\n\nPress Ctrl+C to quit", m.err))
	}
	if m.currentModel != nil {
		return m.currentModel.View()
	}
	return m.loadingMsg + "\n\nPress Ctrl+C to quit"
}

// chooseGroupField returns the flag value, the heuristic pick, or the
// candidates to offer when neither settles it. Lists without choice fields
// fall back to grouping by state.
func (m AppModel) chooseGroupField() (string, []*domain.FieldDef, error) {
	if m.groupFieldFlag != "" {
		return m.groupFieldFlag, nil, nil
	}
	fields := m.report.List.Fields()
	selected, candidates, err := store.SelectGroupField(fields)
	switch {
	case errors.Is(err, store.ErrNoGroupField):
		return "state", nil, nil
	case err != nil:
		return "", nil, err
	case selected != nil:
		return selected.Name, nil, nil
	}
	return "", candidates, nil
}

func (m *AppModel) showBoard() tea.Cmd {
	board := NewBoardModel(m.report, m.parser, m.groupField)
	if m.boardModel != nil {
		board.filterText = m.boardModel.filterText
		board.filterInput.SetValue(m.boardModel.filterText)
		board.missingOnly = m.boardModel.missingOnly
		board.width, board.height = m.boardModel.width, m.boardModel.height
		(&board).applyFilter()
	}
	m.boardModel = &board
	m.currentScreen = ScreenBoard
	m.currentModel = board
	return board.Init()
}

// loadReport runs the loader in the background.
func (m AppModel) loadReport() tea.Cmd {
	return func() tea.Msg {
		r, err := m.load(m.ctx)
		if err != nil {
			return ErrorMsg{Err: fmt.Errorf("failed to load report: %w", err)}
		}
		return reportLoadedMsg{report: r}
	}
}

type reportLoadedMsg struct {
	report *Report
}
