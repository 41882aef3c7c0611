package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"NewsletterChat/internal/health"
	"NewsletterChat/internal/session"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("124")).Padding(0, 1)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))

	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.bannerView())
	b.WriteString("\n")

	body := m.viewport.View()
	if m.showHealth && m.report != nil {
		body = m.healthView()
	}
	if m.sidebarOpen {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), body)
	}
	b.WriteString(body)
	b.WriteString("\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) headerView() string {
	header := titleStyle.Render("Newsletter Builder")
	if id := m.chat.SessionID(); id != "" {
		header += "  " + dimStyle.Render("session "+id)
	}
	switch {
	case m.sending:
		header += "  " + m.spinner.View() + " waiting for reply"
	case m.checking:
		header += "  " + m.spinner.View() + " checking health"
	}
	return header
}

func (m Model) bannerView() string {
	if e := m.chat.Err(); e != nil {
		return bannerStyle.Render(e.Message + "  (esc to dismiss)")
	}
	if m.status != "" {
		return statusStyle.Render(m.status)
	}
	return ""
}

func (m Model) sidebarView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sessions"))
	b.WriteString("\n")

	if len(m.sessions) == 0 {
		b.WriteString(dimStyle.Render("No previous sessions"))
		return sidebarStyle.Height(m.viewport.Height).Render(b.String())
	}

	current := m.chat.SessionID()
	for i, s := range m.sessions {
		label := session.Truncate(s.Label(), sidebarWidth-6)
		if s.ID == current {
			label = "• " + label
		}
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + label))
		} else {
			b.WriteString("  " + label)
		}
		b.WriteString("\n")
		if d := session.FormatDate(s.CreatedAt); d != "" {
			b.WriteString("  " + dimStyle.Render(d) + "\n")
		}
	}
	return sidebarStyle.Height(m.viewport.Height).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) healthView() string {
	r := *m.report
	state := "degraded"
	if r.Healthy() {
		state = "healthy"
	}
	content := fmt.Sprintf("%s\n\n%s\n%s",
		titleStyle.Render("Backend health: "+state),
		strings.TrimRight(health.Format(r), "\n"),
		dimStyle.Render("checked "+r.CheckedAt.Local().Format("3:04:05 PM")+"  (esc to close)"),
	)
	return panelStyle.Width(m.viewport.Width - 4).Render(content)
}

func (m Model) footerView() string {
	if m.sidebarOpen {
		return dimStyle.Render("↑/↓ move • enter open • d delete • r refresh • ctrl+s close • ctrl+c quit")
	}
	return dimStyle.Render("enter send • ctrl+s sessions • ctrl+n new • ctrl+t health • esc dismiss • ctrl+c quit")
}
