package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/undo"
)

// Source is the history the browser shows and steps through.
type Source interface {
	History(ctx context.Context) (undo.HistoryView, error)
	Undo(ctx context.Context) (undo.Outcome, error)
	Redo(ctx context.Context) (undo.Outcome, error)
}

// ServiceSource binds an undo service to one scope.
type ServiceSource struct {
	Service  *undo.Service
	Exec     *execctx.Context
	TableID  ids.TableID
	WindowID *ids.WindowID
}

// History returns the full log of the scope.
func (s ServiceSource) History(ctx context.Context) (undo.HistoryView, error) {
	return s.Service.History(ctx, s.Exec, s.TableID, s.WindowID, undo.Page{})
}

// Undo steps the scope back.
func (s ServiceSource) Undo(ctx context.Context) (undo.Outcome, error) {
	return s.Service.Undo(ctx, s.Exec, s.TableID, s.WindowID)
}

// Redo steps the scope forward.
func (s ServiceSource) Redo(ctx context.Context) (undo.Outcome, error) {
	return s.Service.Redo(ctx, s.Exec, s.TableID, s.WindowID)
}

// tickMsg is sent when the timer ticks.
type tickMsg time.Time

// refreshMsg carries a freshly loaded history.
type refreshMsg struct {
	view undo.HistoryView
}

// stepMsg reports a finished undo or redo.
type stepMsg struct {
	op      string
	outcome undo.Outcome
}

// errMsg is sent when an error occurs.
type errMsg struct {
	err error
}

// BrowserModel is the bubbletea model of the history browser.
type BrowserModel struct {
	ctx    context.Context
	source Source

	view     undo.HistoryView
	selected int
	loaded   bool

	// UI state
	width      int
	height     int
	err        error
	message    string
	messageExp time.Time
	busy       bool

	refreshInterval time.Duration
	now             func() time.Time
}

// BrowserConfig holds configuration for the browser.
type BrowserConfig struct {
	Source Source
	// RefreshInterval reloads the history so steps recorded by other
	// processes show up. Default: 2s
	RefreshInterval time.Duration
	Now             func() time.Time
}

// NewBrowserModel creates a new browser model.
func NewBrowserModel(ctx context.Context, config BrowserConfig) *BrowserModel {
	if config.RefreshInterval == 0 {
		config.RefreshInterval = 2 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &BrowserModel{
		ctx:             ctx,
		source:          config.Source,
		refreshInterval: config.RefreshInterval,
		now:             config.Now,
	}
}

// Init initializes the model.
func (m *BrowserModel) Init() tea.Cmd {
	return tea.Batch(
		m.tickCmd(),
		m.refreshCmd(),
	)
}

// Update handles messages and updates the model.
func (m *BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if !m.messageExp.IsZero() && m.now().After(m.messageExp) {
			m.message = ""
			m.messageExp = time.Time{}
		}
		if m.busy {
			return m, m.tickCmd()
		}
		return m, tea.Batch(m.tickCmd(), m.refreshCmd())

	case refreshMsg:
		m.setView(msg.view)
		m.err = nil
		return m, nil

	case stepMsg:
		m.busy = false
		if msg.outcome.Status == undo.StatusEmpty {
			m.setMessage("Nothing to "+msg.op, 2*time.Second)
		} else {
			m.setMessage(fmt.Sprintf("Applied %s: %s", msg.op, msg.outcome.Entry.RedoCommand.Type), 2*time.Second)
		}
		return m, m.refreshCmd()

	case errMsg:
		m.busy = false
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input.
func (m *BrowserModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if m.selected < len(m.view.Entries)-1 {
			m.selected++
		}
		return m, nil

	case "u":
		return m, m.stepCmd("undo")

	case "r":
		return m, m.stepCmd("redo")

	case "R":
		m.setMessage("Refreshed", time.Second)
		return m, m.refreshCmd()
	}

	return m, nil
}

// setView replaces the shown history. The selection follows the cursor when
// the history changed length, and is clamped otherwise.
func (m *BrowserModel) setView(view undo.HistoryView) {
	changed := !m.loaded || view.Position != m.view.Position
	m.view = view
	m.loaded = true
	if changed {
		m.selected = view.Position.Cursor - 1
	}
	if m.selected >= len(view.Entries) {
		m.selected = len(view.Entries) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// View renders the browser.
func (m *BrowserModel) View() string {
	if m.width == 0 || !m.loaded {
		return "Loading..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	if m.err != nil {
		sections = append(sections, StyleError.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	if m.message != "" {
		sections = append(sections, StyleWarning.Render(m.message))
	}

	sections = append(sections, NewPositionComponent(m.view.Scope, m.view.Position, m.width).View())

	entries := &EntriesComponent{
		Entries:  m.view.Entries,
		Cursor:   m.view.Position.Cursor,
		Selected: m.selected,
		Width:    m.width,
		Height:   m.listHeight(),
		Now:      m.now(),
	}
	sections = append(sections, entries.View())

	if e := m.Selected(); e != nil {
		sections = append(sections, (&DetailComponent{Entry: e, Width: m.width}).View())
	}

	sections = append(sections, HelpBar())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// listHeight leaves room for the header, position, detail and help boxes.
func (m *BrowserModel) listHeight() int {
	h := m.height - 20
	if h < 3 {
		h = 3
	}
	return h
}

// Selected returns the selected entry, nil when the history is empty.
func (m *BrowserModel) Selected() *undo.Entry {
	if m.selected < 0 || m.selected >= len(m.view.Entries) {
		return nil
	}
	return &m.view.Entries[m.selected]
}

func (m *BrowserModel) renderHeader() string {
	title := StyleTitle.Render("Tabula History")
	now := StyleSubtitle.Render(m.now().Format("Mon Jan 2, 15:04:05"))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", now) + "\n"
}

// setMessage sets a temporary message.
func (m *BrowserModel) setMessage(msg string, duration time.Duration) {
	m.message = msg
	m.messageExp = m.now().Add(duration)
}

// tickCmd returns a command that sends a tick message.
func (m *BrowserModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refreshCmd loads the history.
func (m *BrowserModel) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		view, err := m.source.History(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		return refreshMsg{view}
	}
}

// stepCmd runs an undo or redo. Keys pressed while a step runs are ignored.
func (m *BrowserModel) stepCmd(op string) tea.Cmd {
	if m.busy {
		return nil
	}
	m.busy = true
	step := m.source.Undo
	if op == "redo" {
		step = m.source.Redo
	}
	return func() tea.Msg {
		out, err := step(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		return stepMsg{op: op, outcome: out}
	}
}

// Run starts the history browser.
func Run(ctx context.Context, config BrowserConfig) error {
	p := tea.NewProgram(NewBrowserModel(ctx, config), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
