package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"NewsletterChat/internal/chat"
	"NewsletterChat/internal/health"
	"NewsletterChat/internal/session"
)

// Chat is the controller surface the TUI drives
type Chat interface {
	SessionID() string
	Messages() []session.Message
	Busy() bool
	CreateSession(ctx context.Context) error
	SwitchSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
	SendMessage(ctx context.Context, text string) (session.Message, error)
	ListSessions(ctx context.Context) ([]session.Summary, error)
	Err() *chat.ErrorState
	DismissError()
}

// Prober runs a health check
type Prober interface {
	Check(ctx context.Context) health.Report
}

type sendDoneMsg struct {
	err error
}

type sessionsMsg struct {
	list []session.Summary
	err  error
}

// loadedMsg reports a session switch or creation issued as load gen
type loadedMsg struct {
	gen uint64
	err error
}

type deletedMsg struct {
	id  string
	err error
}

type healthMsg struct {
	report health.Report
}

func (m Model) sendCmd(text string) tea.Cmd {
	ctx, c := m.ctx, m.chat
	return func() tea.Msg {
		_, err := c.SendMessage(ctx, text)
		return sendDoneMsg{err: err}
	}
}

func (m Model) listCmd() tea.Cmd {
	ctx, c := m.ctx, m.chat
	return func() tea.Msg {
		list, err := c.ListSessions(ctx)
		return sessionsMsg{list: list, err: err}
	}
}

func (m Model) switchCmd(gen uint64, id string) tea.Cmd {
	ctx, c := m.ctx, m.chat
	return func() tea.Msg {
		return loadedMsg{gen: gen, err: c.SwitchSession(ctx, id)}
	}
}

func (m Model) createCmd(gen uint64) tea.Cmd {
	ctx, c := m.ctx, m.chat
	return func() tea.Msg {
		return loadedMsg{gen: gen, err: c.CreateSession(ctx)}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	ctx, c := m.ctx, m.chat
	return func() tea.Msg {
		return deletedMsg{id: id, err: c.DeleteSession(ctx, id)}
	}
}

func (m Model) healthCmd() tea.Cmd {
	ctx, p := m.ctx, m.probe
	return func() tea.Msg {
		return healthMsg{report: p.Check(ctx)}
	}
}
