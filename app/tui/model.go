// Package tui is the terminal chat: transcript on the left, example
// questions on the right and a single input line below.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ustawy/app/chat"
	"ustawy/types"
)

const panelWidth = 38

type replyMsg struct {
	reply types.ChatMessage
	err   error
}

type Model struct {
	ctx      context.Context
	session  *chat.Session
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	pending string // question being answered, shown until the session records it
	sent    int    // transcript length when pending was submitted
	errText string
	busy    bool
	ready   bool
	width   int
}

func New(ctx context.Context, session *chat.Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Zadaj pytanie i naciśnij Enter"
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		session:  session,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, fh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-panelWidth-4)
		m.viewport.Height = max(3, msg.Height-fh-ih-3)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case replyMsg:
		m.busy = false
		m.pending = ""
		var turnErr *chat.TurnError
		switch {
		case msg.err == nil:
			m.errText = ""
		case errors.As(msg.err, &turnErr):
			m.errText = turnErr.Message()
		default:
			m.errText = "Błąd: " + msg.err.Error()
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.Reset()
	m.busy = true
	m.pending = text
	m.sent = len(m.session.Transcript())
	m.errText = ""
	m.refresh()

	ctx, session := m.ctx, m.session
	ask := func() tea.Msg {
		reply, err := session.Submit(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
	return m, tea.Batch(m.spinner.Tick, ask)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	width := max(20, m.viewport.Width-2)
	body := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	msgs := m.session.Transcript()
	for _, msg := range msgs {
		writeMessage(&b, body, msg.Role, msg.Content)
	}
	if m.pending != "" && len(msgs) == m.sent {
		writeMessage(&b, body, types.RoleUser, m.pending)
	}
	if m.errText != "" {
		b.WriteString(errorStyle.Render(body.Render(m.errText)))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeMessage(b *strings.Builder, body lipgloss.Style, role types.Role, content string) {
	if role == types.RoleUser {
		b.WriteString(userStyle.Render("Użytkownik:"))
	} else {
		b.WriteString(assistantStyle.Render("Asystent:"))
	}
	b.WriteString("\n")
	b.WriteString(body.Render(content))
	b.WriteString("\n\n")
}

func (m Model) View() string {
	if !m.ready {
		return "Ładowanie..."
	}

	header := headerStyle.Render("Asystent prawny: pomoc obywatelom Ukrainy")
	transcript := transcriptStyle.Render(m.viewport.View())
	panel := panelStyle.Height(lipgloss.Height(transcript) - 2).Render(examplesPanel())
	status := statusStyle.Render("Enter: wyślij · PgUp/PgDn: przewijanie · Esc: wyjście")
	if m.busy {
		status = m.spinner.View() + " Szukam odpowiedzi..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, transcript, panel),
		inputStyle.Width(max(20, m.width-2)).Render(m.input.View()),
		status,
	)
}

func examplesPanel() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Przykładowe pytania"))
	b.WriteString("\n\n")
	for _, q := range chat.Examples {
		b.WriteString("• " + q + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	panelStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(panelWidth - 2)
	panelTitleStyle = lipgloss.NewStyle().Bold(true)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)
