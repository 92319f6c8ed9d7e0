package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"studybuddy-backend/internal/chat"
	"studybuddy-backend/internal/models"
)

type styles struct {
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	meta      lipgloss.Style
	notice    lipgloss.Style
	err       lipgloss.Style
	input     lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		meta:      lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		notice:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		err:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		input:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1),
	}
}

// refresh re-renders the conversation into the viewport.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) conversation() []models.Message {
	if m.loading {
		return m.pending
	}
	return m.shell.Messages()
}

func (m Model) renderHistory() string {
	if m.shell.State() == chat.StateCredentialEntry && !m.loading {
		return m.styles.meta.Render("Sign in with your own API key to start studying. The key never leaves this machine except to call the model.")
	}

	var b strings.Builder
	for _, msg := range m.conversation() {
		if msg.Role == models.RoleUser {
			b.WriteString(m.styles.user.Render("You"))
		} else {
			b.WriteString(m.styles.assistant.Render("Axon"))
		}
		b.WriteString("\n")
		if msg.Attachment != nil {
			b.WriteString(m.styles.meta.Render("📎 " + msg.Attachment.Name + " (" + msg.Attachment.Type + ")"))
			b.WriteString("\n")
		}
		b.WriteString(m.renderMarkdown(msg.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil || content == "" {
		return content + "\n"
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.styles.title.Render("AI Study Buddy")

	var status string
	switch {
	case m.loading:
		status = m.spinner.View() + " Axon is thinking..."
	case m.notice != "" && m.isError:
		status = m.styles.err.Render(m.notice)
	case m.notice != "":
		status = m.styles.notice.Render(m.notice)
	case m.staged != nil:
		status = m.styles.meta.Render("📎 " + m.staged.Name + " staged")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.styles.input.Width(m.width-4).Render(m.input.View()),
	)
}
