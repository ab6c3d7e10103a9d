// Package tui is the terminal front end: a transcript viewport, an input box
// and slash commands for attaching images.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/lenschat/pkg/completion"
	"github.com/papercomputeco/lenschat/pkg/session"
	"github.com/papercomputeco/lenschat/pkg/transcript"
)

const (
	headerHeight = 3
	inputHeight  = 3
	wrapWidth    = 80
)

var (
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
)

// Options configures the chat model.
type Options struct {
	// Model is shown in the header.
	Model string

	// ReadFile loads /image attachments. Nil uses os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// note is a local system message shown after the first `after` turns of
// the transcript. Notes are never part of the conversation.
type note struct {
	after int
	text  string
}

// Model is the bubbletea model for a single chat session.
type Model struct {
	ctx     context.Context
	session *session.Session
	replier session.Replier
	opts    Options

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	notes        []note
	pendingName  string
	inFlight     string
	inFlightAt   int
	isProcessing bool
	width        int
	height       int
	ready        bool
}

// exchangeMsg carries the outcome of a background Submit.
type exchangeMsg struct {
	exchange session.Exchange
	err      error
}

// New creates the chat model.
func New(ctx context.Context, sess *session.Session, replier session.Replier, opts Options) Model {
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}

	ta := textarea.New()
	ta.Placeholder = "Ask about an image, or /image <path> to attach one..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false) // Enter sends message

	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(wrapWidth),
	)

	return Model{
		ctx:      ctx,
		session:  sess,
		replier:  replier,
		opts:     opts,
		textarea: ta,
		spinner:  s,
		renderer: renderer,
	}
}

// Run starts a full-screen program and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, sess *session.Session, replier session.Replier, opts Options) error {
	p := tea.NewProgram(New(ctx, sess, replier, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := max(1, msg.Height-headerHeight-inputHeight-1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(max(10, msg.Width-4))
		m.textarea.SetHeight(inputHeight)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit

		case tea.KeyEnter:
			if m.isProcessing {
				return m, nil
			}
			value := m.textarea.Value()
			m.textarea.Reset()
			return m, m.handleInput(value)
		}

	case exchangeMsg:
		m.isProcessing = false
		m.inFlight = ""
		m.handleExchange(msg)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.isProcessing {
			s, cmd := m.spinner.Update(msg)
			m.spinner = s
			cmds = append(cmds, cmd)
		}
	}

	if !m.isProcessing {
		ta, cmd := m.textarea.Update(msg)
		m.textarea = ta
		cmds = append(cmds, cmd)
	}

	vp, cmd := m.viewport.Update(msg)
	m.viewport = vp
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.ready {
		return "\nInitializing..."
	}

	var b strings.Builder

	header := fmt.Sprintf("lenschat | Model: %s", m.opts.Model)
	b.WriteString(headerStyle.Render(header) + "\n")
	if m.pendingName != "" {
		b.WriteString(systemStyle.Render("Attached: "+m.pendingName) + "\n")
	} else {
		b.WriteString(systemStyle.Render("Commands: /image <path>, /clear-image, /help, /quit") + "\n")
	}
	b.WriteString(strings.Repeat("─", max(0, m.width)) + "\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.isProcessing {
		b.WriteString(fmt.Sprintf("%s Waiting for the model...\n", m.spinner.View()))
	} else {
		b.WriteString(m.textarea.View())
	}

	return b.String()
}

// handleInput dispatches slash commands or submits the text with the
// pending image.
func (m *Model) handleInput(input string) tea.Cmd {
	trimmed := strings.TrimSpace(input)

	if strings.HasPrefix(trimmed, "/") {
		return m.handleCommand(trimmed)
	}

	if trimmed == "" && m.session.PendingImage() == nil {
		m.addNote(completion.EmptyInputMessage)
		m.refresh()
		return nil
	}

	// Shown until Submit records the user turn.
	m.inFlight = userLine(trimmed, m.pendingName != "")
	m.inFlightAt = m.session.Transcript().Len()
	m.refresh()

	m.isProcessing = true
	return tea.Batch(m.spinner.Tick, m.submit(trimmed))
}

func (m *Model) handleCommand(input string) tea.Cmd {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return tea.Quit

	case "/help":
		m.addNote(helpText)

	case "/image":
		if arg == "" {
			m.addNote("Usage: /image <path>")
			break
		}
		data, err := m.opts.ReadFile(arg)
		if err != nil {
			m.addNote(fmt.Sprintf("Could not read %s: %v", arg, err))
			break
		}
		if err := m.session.SetImage(data); err != nil {
			m.addNote(fmt.Sprintf("Could not attach %s: %v", arg, err))
			break
		}
		m.pendingName = filepath.Base(arg)
		m.addNote("Attached " + m.pendingName + ". It will be sent with your next message.")

	case "/clear-image":
		m.session.ClearImage()
		m.pendingName = ""
		m.addNote("Image removed.")

	default:
		m.addNote(fmt.Sprintf("Unknown command %s. Type /help for commands.", name))
	}

	m.refresh()
	return nil
}

func (m *Model) submit(text string) tea.Cmd {
	ctx, sess, replier := m.ctx, m.session, m.replier
	return func() tea.Msg {
		exchange, err := sess.Submit(ctx, replier, text)
		return exchangeMsg{exchange: exchange, err: err}
	}
}

func (m *Model) handleExchange(msg exchangeMsg) {
	if msg.err != nil {
		m.addNote("Error: " + msg.err.Error())
		return
	}
	if !msg.exchange.Appended() {
		m.addNote(msg.exchange.Result.Display())
		return
	}

	m.pendingName = ""
}

func (m *Model) addNote(text string) {
	m.notes = append(m.notes, note{after: m.session.Transcript().Len(), text: text})
}

func userLine(text string, hasImage bool) string {
	if hasImage {
		text = strings.TrimSpace(text + " [image]")
	}
	return "> " + text
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}

	turns := m.session.Transcript().All()

	var content strings.Builder
	next := 0
	for i := 0; i <= len(turns); i++ {
		for next < len(m.notes) && m.notes[next].after <= i {
			content.WriteString("\n" + systemStyle.Render(m.notes[next].text) + "\n")
			next++
		}
		if i == len(turns) {
			break
		}

		turn := turns[i]
		switch turn.Role {
		case transcript.RoleUser:
			content.WriteString("\n" + userStyle.Render(userLine(turn.Text, turn.HasImage())) + "\n")
		case transcript.RoleAssistant:
			content.WriteString("\n" + m.renderMarkdown(turn.Text) + "\n")
		}
	}

	if m.inFlight != "" && len(turns) == m.inFlightAt {
		content.WriteString("\n" + userStyle.Render(m.inFlight) + "\n")
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	rendered, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(rendered, "\n")
}

const helpText = `Available commands:
/image <path>  - Attach a PNG or JPEG to the next message
/clear-image   - Remove the attached image
/help          - Show this help message
/quit          - Exit (also Ctrl+C)`
