package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

const (
	cmdQuit    = "/quit"
	cmdHistory = "/history"

	headerHeight = 3
	inputHeight  = 3
	nameWidth    = 12
)

var (
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	activeStyle = boxStyle.BorderForeground(lipgloss.Color("12"))
)

// Backend is what the terminal UI needs from a Session.
type Backend interface {
	Events() <-chan Event
	Submit(e chat.Envelope) error
	History(ctx context.Context) ([]chat.Envelope, error)
}

type mode int

const (
	modeLogin mode = iota
	modeChat
	modeExit
)

type (
	eventMsg        struct{ event Event }
	sessionEndedMsg struct{}
	submitErrMsg    struct{ err error }
	historyMsg      struct {
		envelopes []chat.Envelope
		err       error
	}
)

// Model is the full-screen chat view: a login popup first, then a header
// with the user's name, the scrolling chat list and an input box.
//
// Outside the input box, Enter or i starts editing and q quits. While
// editing, Enter sends and Esc stops editing.
type Model struct {
	backend  Backend
	renderer Renderer
	now      func() time.Time

	mode   mode
	name   string
	status string
	input  textinput.Model
	chat   viewport.Model
	lines  []string
	width  int
	height int
}

// NewModel builds the view over backend. An empty name starts at the login
// popup.
func NewModel(backend Backend, renderer Renderer, name string) Model {
	input := textinput.New()
	input.Prompt = ""

	m := Model{
		backend:  backend,
		renderer: renderer,
		now:      time.Now,
		mode:     modeLogin,
		status:   "connecting",
		input:    input,
		chat:     viewport.New(1, 1),
		width:    80,
		height:   24,
	}
	if name != "" {
		m.name = name
		m.mode = modeChat
	} else {
		m.input.Focus()
	}
	m.layout()
	return m
}

// Init starts listening to the backend.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.backend.Events()))
}

func waitForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return sessionEndedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// Update handles keys, window resizes and backend results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.apply(msg.event)
		return m, waitForEvent(m.backend.Events())

	case sessionEndedMsg:
		return m.quit()

	case submitErrMsg:
		m.notice("message not sent: " + msg.err.Error())
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.notice(msg.err.Error())
			return m, nil
		}
		var table strings.Builder
		m.renderer.Table(&table, msg.envelopes)
		m.appendLines(strings.Split(strings.TrimRight(table.String(), "\n"), "\n")...)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.input.Focused() {
		switch msg.Type {
		case tea.KeyEnter:
			if m.mode == modeLogin {
				return m.login()
			}
			return m.submit()
		case tea.KeyEsc:
			if m.mode == modeChat {
				m.input.Blur()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m.quit()
	case "enter", "i":
		cmd := m.input.Focus()
		return m, cmd
	}
	var cmd tea.Cmd
	m.chat, cmd = m.chat.Update(msg)
	return m, cmd
}

func (m Model) login() (tea.Model, tea.Cmd) {
	m.name = strings.TrimSpace(m.input.Value())
	m.input.Reset()
	m.input.Blur()
	m.mode = modeChat
	m.layout()
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()
	m.input.Blur()

	switch strings.TrimSpace(line) {
	case cmdQuit:
		return m.quit()
	case cmdHistory:
		return m, fetchHistory(m.backend)
	}

	e, err := chat.NewEnvelope(m.name, line, m.now())
	if errors.Is(err, chat.ErrEmptyText) {
		return m, nil
	}
	if err != nil {
		m.notice(err.Error())
		return m, nil
	}

	backend := m.backend
	return m, func() tea.Msg {
		if err := backend.Submit(e); err != nil {
			return submitErrMsg{err: err}
		}
		return nil
	}
}

func fetchHistory(backend Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		envelopes, err := backend.History(ctx)
		return historyMsg{envelopes: envelopes, err: err}
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.mode = modeExit
	return m, tea.Quit
}

func (m *Model) apply(ev Event) {
	switch ev := ev.(type) {
	case EnvelopeEvent:
		m.appendLines(m.renderer.Line(ev.Envelope))
	case StatusEvent:
		m.status = ev.Text
		m.notice(ev.Text)
	}
}

func (m *Model) notice(msg string) {
	m.appendLines(m.renderer.Notice(msg))
}

func (m *Model) appendLines(lines ...string) {
	m.lines = append(m.lines, lines...)
	m.chat.SetContent(strings.Join(m.lines, "\n"))
	m.chat.GotoBottom()
}

func (m *Model) layout() {
	m.chat.Width = max(m.width-boxStyle.GetHorizontalFrameSize(), 1)
	m.chat.Height = max(m.height-headerHeight-inputHeight-boxStyle.GetVerticalFrameSize(), 1)
	if m.mode == modeLogin {
		m.input.Width = max(m.popupWidth()-1, 1)
	} else {
		m.input.Width = max(m.width-boxStyle.GetHorizontalFrameSize()-1, 1)
	}
	m.chat.SetContent(strings.Join(m.lines, "\n"))
	m.chat.GotoBottom()
}

func (m Model) popupWidth() int {
	return max(m.width/2, 20)
}

// View renders the whole screen.
func (m Model) View() string {
	if m.mode == modeExit {
		return ""
	}
	if m.mode == modeLogin {
		popup := activeStyle.Width(m.popupWidth()).Render("Login\n" + m.input.View())
		body := lipgloss.Place(m.width, max(m.height-headerHeight, inputHeight), lipgloss.Center, lipgloss.Center, popup)
		return lipgloss.JoinVertical(lipgloss.Left, m.header(), body)
	}

	inputBox := boxStyle
	if m.input.Focused() {
		inputBox = activeStyle
	}
	innerWidth := max(m.width-boxStyle.GetHorizontalFrameSize(), 1)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		boxStyle.Width(innerWidth).Render(m.chat.View()),
		inputBox.Width(innerWidth).Render(m.input.View()),
	)
}

func (m Model) header() string {
	border := boxStyle.GetHorizontalBorderSize()
	titleWidth := max(m.width-nameWidth-2*border, 1)
	title := boxStyle.Width(titleWidth).Render("chat relay | " + m.status)
	name := boxStyle.Width(nameWidth).Render(m.name)
	return lipgloss.JoinHorizontal(lipgloss.Top, title, name)
}
