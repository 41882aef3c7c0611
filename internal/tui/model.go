// Package tui is the full-screen bubbletea interface: conversation pane,
// session sidebar and input line.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"NewsletterChat/internal/chat"
	"NewsletterChat/internal/health"
	"NewsletterChat/internal/render"
	"NewsletterChat/internal/session"
)

const (
	sidebarWidth = 32
	// header, banner, input and footer lines
	chromeHeight = 4
)

// Model is the bubbletea model for the chat screen
type Model struct {
	ctx      context.Context
	chat     Chat
	probe    Prober
	renderer *render.Terminal
	logger   *slog.Logger

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int

	sidebarOpen bool
	sessions    []session.Summary
	cursor      int

	sending bool
	// loadGen is bumped for every switch/create; older results are dropped
	loadGen uint64

	checking   bool
	showHealth bool
	report     *health.Report

	status string
}

// New creates the model. The controller must already be initialized.
func New(ctx context.Context, c Chat, probe Prober, renderer *render.Terminal, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}

	ti := textinput.New()
	ti.Placeholder = "Describe the newsletter you want to build..."
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		ctx:      ctx,
		chat:     c,
		probe:    probe,
		renderer: renderer,
		logger:   logger,
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  sp,
		width:    80,
		height:   24,
	}
	m.layout()
	m.refresh()
	return m
}

// Run starts the program on the alternate screen and blocks until it exits
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run terminal ui: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.sending && !m.checking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// picks up the optimistic user message while the reply is pending
		m.refresh()
		return m, cmd

	case sendDoneMsg:
		m.sending = false
		if msg.err != nil {
			m.logger.Debug("send finished with error", "error", msg.err)
		}
		m.refresh()
		return m, m.input.Focus()

	case sessionsMsg:
		if msg.err == nil {
			m.sessions = msg.list
			m.clampCursor()
		}
		return m, nil

	case loadedMsg:
		if msg.gen != m.loadGen || errors.Is(msg.err, chat.ErrStale) {
			m.logger.Debug("dropping stale session load", "gen", msg.gen, "current", m.loadGen)
			return m, nil
		}
		m.showHealth = false
		m.refresh()
		if msg.err == nil && m.sidebarOpen {
			return m, m.listCmd()
		}
		return m, nil

	case deletedMsg:
		if msg.err == nil {
			m.status = "Deleted session " + msg.id
			m.refresh()
			return m, m.listCmd()
		}
		return m, nil

	case healthMsg:
		m.checking = false
		r := msg.report
		m.report = &r
		m.showHealth = true
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	if !m.sending {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		if m.showHealth {
			m.showHealth = false
			return m, nil
		}
		m.chat.DismissError()
		m.status = ""
		return m, nil

	case "ctrl+s":
		m.sidebarOpen = !m.sidebarOpen
		m.layout()
		m.refresh()
		if m.sidebarOpen {
			return m, m.listCmd()
		}
		return m, nil

	case "ctrl+n":
		m.loadGen++
		m.status = ""
		return m, m.createCmd(m.loadGen)

	case "ctrl+t":
		if m.probe == nil || m.checking {
			return m, nil
		}
		m.checking = true
		return m, tea.Batch(m.healthCmd(), m.spinner.Tick)

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.sidebarOpen {
		return m.handleSidebarKey(msg)
	}

	if msg.Type == tea.KeyEnter {
		text := m.input.Value()
		if m.sending || m.chat.Busy() || strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		m.input.Blur()
		m.sending = true
		m.status = ""
		return m, tea.Batch(m.sendCmd(text), m.spinner.Tick)
	}

	if m.sending {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.sessions)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.sessions) == 0 {
			return m, nil
		}
		m.loadGen++
		m.status = ""
		return m, m.switchCmd(m.loadGen, m.sessions[m.cursor].ID)
	case "r":
		return m, m.listCmd()
	case "d":
		if len(m.sessions) == 0 {
			return m, nil
		}
		return m, m.deleteCmd(m.sessions[m.cursor].ID)
	}
	return m, nil
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.sessions) {
		m.cursor = len(m.sessions) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) layout() {
	w := m.width
	if m.sidebarOpen {
		w -= sidebarWidth + 2
	}
	if w < 10 {
		w = 10
	}
	h := m.height - chromeHeight
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = max(m.width-4, 10)
}

// refresh redraws the conversation pane from the controller
func (m *Model) refresh() {
	msgs := m.chat.Messages()
	if len(msgs) == 0 {
		m.viewport.SetContent(dimStyle.Render("Start the conversation below."))
		return
	}
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, m.renderer.Message(msg))
	}
	m.viewport.SetContent(strings.Join(parts, "\n\n"))
	m.viewport.GotoBottom()
}
