// Package tui is the terminal front end of the study buddy. It drives a chat.Shell:
// an API key entry screen, then a scrolling conversation rendered as markdown.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"studybuddy-backend/internal/chat"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
)

const (
	keyPlaceholder  = "Paste your Gemini API key and press Enter"
	chatPlaceholder = "Ask anything... (Enter to send, /help for commands, Ctrl+C to quit)"
)

// replyMsg carries the outcome of one Shell.Submit.
type replyMsg struct {
	reply string
	err   error
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	shell   *chat.Shell
	timeout time.Duration

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   styles

	staged  *models.Attachment
	pending []models.Message // what to show while a reply is outstanding
	loading bool
	notice  string
	isError bool

	width  int
	height int
	ready  bool
}

// New returns a model for shell. timeout bounds each model call.
func New(shell *chat.Shell, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		shell:   shell,
		timeout: timeout,
		input:   ti,
		spinner: sp,
		styles:  defaultStyles(),
	}
	m.syncInputMode()
	return m
}

// Run starts the program on the alternate screen and blocks until the user quits.
func Run(shell *chat.Shell, timeout time.Duration) error {
	p := tea.NewProgram(New(shell, timeout), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			if m.shell.State() == chat.StateCredentialEntry {
				return m.handleKeyEntry()
			}
			return m.handleSubmit()
		}
		if !m.loading {
			m.input, tiCmd = m.input.Update(msg)
		}
		// typed characters must not scroll the viewport
		return m, tiCmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case spinner.TickMsg:
		var spCmd tea.Cmd
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, spCmd

	case replyMsg:
		m.loading = false
		m.pending = nil
		if msg.err != nil {
			m.setError(describeError(msg.err))
		} else {
			m.notice, m.isError = "", false
		}
		m.syncInputMode()
		m.refresh()
		return m, nil
	}

	m.input, tiCmd = m.input.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	headerHeight := 2
	footerHeight := 4
	vpHeight := height - headerHeight - footerHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(width-2, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width - 2
		m.viewport.Height = vpHeight
	}
	m.input.Width = width - 6

	wrap := width - 6
	if wrap < 20 {
		wrap = 20
	}
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap)); err == nil {
		m.renderer = r
	}
	m.refresh()
}

// syncInputMode switches the input between key entry (masked) and chat.
func (m *Model) syncInputMode() {
	if m.shell.State() == chat.StateCredentialEntry {
		m.input.EchoMode = textinput.EchoPassword
		m.input.EchoCharacter = '•'
		m.input.Placeholder = keyPlaceholder
		return
	}
	m.input.EchoMode = textinput.EchoNormal
	m.input.Placeholder = chatPlaceholder
}

func (m *Model) setNotice(s string) { m.notice, m.isError = s, false }
func (m *Model) setError(s string)  { m.notice, m.isError = s, true }

func (m Model) handleKeyEntry() (tea.Model, tea.Cmd) {
	key := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if err := m.shell.SignIn(key); err != nil {
		switch {
		case errors.Is(err, chat.ErrPlaceholderKey):
			m.setError("That is the sample placeholder, not a real API key.")
		case errors.Is(err, chat.ErrEmptyAPIKey):
			m.setError("Please paste an API key.")
		default:
			m.setError(err.Error())
		}
		return m, nil
	}
	m.staged = nil
	m.setNotice("Signed in. The key is kept in memory for this session only.")
	m.syncInputMode()
	m.refresh()
	return m, nil
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(input, "/") {
		m.input.Reset()
		return m.handleCommand(input)
	}
	if input == "" && m.staged == nil {
		return m, nil
	}

	att := m.staged
	m.staged = nil
	m.input.Reset()

	m.pending = append(m.shell.Messages(), models.Message{Role: models.RoleUser, Content: input, Attachment: att.Stored()})
	m.loading = true
	m.notice = ""
	m.refresh()

	return m, tea.Batch(m.spinner.Tick, m.submit(input, att))
}

func (m Model) submit(text string, att *models.Attachment) tea.Cmd {
	shell, timeout := m.shell, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		reply, err := shell.Submit(ctx, text, att)
		return replyMsg{reply: reply, err: err}
	}
}

func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/help":
		m.setNotice("/attach <path> stages a file for the next message · /new starts over · /logout forgets the key · /quit exits")
	case "/new":
		if err := m.shell.Reset(); err != nil {
			m.setError(err.Error())
			break
		}
		m.staged = nil
		m.setNotice("Started a new conversation.")
	case "/logout":
		m.shell.SignOut()
		m.staged = nil
		m.setNotice("API key cleared.")
		m.syncInputMode()
	case "/attach":
		if arg == "" {
			m.setError("Usage: /attach <path>")
			break
		}
		att, err := LoadAttachment(arg)
		if err != nil {
			m.setError(err.Error())
			break
		}
		m.staged = att
		m.setNotice(fmt.Sprintf("Attached %s (%s). It will be sent with your next message.", att.Name, att.Type))
	default:
		m.setError(fmt.Sprintf("Unknown command %s. Type /help.", name))
	}
	m.refresh()
	return m, nil
}

// describeError turns a Submit failure into the line shown under the conversation.
func describeError(err error) string {
	var upstream *llm.UpstreamError
	switch {
	case errors.Is(err, llm.ErrAuthentication):
		return "Your API key was rejected. Please enter a valid key."
	case errors.Is(err, llm.ErrRateLimited):
		return "Too many requests right now. Wait a moment and send your message again."
	case errors.Is(err, llm.ErrConfiguration):
		return "The model is not configured."
	case errors.Is(err, llm.ErrInvalidAttachment):
		return "That attachment could not be read."
	case errors.Is(err, context.DeadlineExceeded):
		return "The model took too long to answer. Try again."
	case errors.As(err, &upstream):
		return "The model returned an error: " + upstream.Message
	case errors.Is(err, chat.ErrBusy):
		return "Still waiting for the previous reply."
	}
	return err.Error()
}
