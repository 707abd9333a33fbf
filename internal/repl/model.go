// Package repl implements the interactive script playground. It runs the same
// invocation pipeline as an ACP prompt turn, but renders the update stream in
// a terminal UI instead of forwarding it over a session.
package repl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/atinylittleshell/gojacp/internal/script"
)

type entryKind int

const (
	entryScript entryKind = iota
	entryText
	entryToolCall
	entryError
	entrySystem
)

// transcriptEntry is one rendered line group in the playground transcript.
type transcriptEntry struct {
	kind entryKind
	text string
}

// scriptTextMsg carries one say() fragment from a running script.
type scriptTextMsg struct {
	text string
}

// toolCallMsg carries a tool-call lifecycle notice from a running script.
type toolCallMsg struct {
	call script.ToolCallUpdate
}

// scriptDoneMsg reports that the invocation finished.
type scriptDoneMsg struct {
	outcome *script.Outcome
}

// updateAvailableMsg reports that a newer release was found in the background.
type updateAvailableMsg struct {
	version string
}

// setProgramMsg hands the model its running program so the sink can deliver
// messages from the invocation goroutine.
type setProgramMsg struct {
	program *tea.Program
}

// ScriptRunner executes one script and streams its updates through the sink.
// The playground swaps in a fake for tests.
type ScriptRunner interface {
	Run(ctx context.Context, source string, sink script.UpdateSink) *script.Outcome
}

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is the bubbletea model for the playground.
type Model struct {
	viewport viewport.Model
	textarea textarea.Model

	entries    []transcriptEntry
	lastResult string

	running   bool
	cancelRun context.CancelFunc

	// activeCalls maps in-flight tool call ids to their titles so terminal
	// updates, which omit the title, can still be labelled.
	activeCalls map[string]string

	runner  ScriptRunner
	program *tea.Program

	status string
	width  int
	height int
	ready  bool
}

// NewModel builds a playground model around a script runner.
func NewModel(runner ScriptRunner) Model {
	ta := textarea.New()
	ta.Placeholder = `say("hello")`
	ta.Prompt = "> "
	ta.SetHeight(3)
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.Focus()

	vp := viewport.New(80, 20)

	return Model{
		viewport:    vp,
		textarea:    ta,
		activeCalls: make(map[string]string),
		runner:      runner,
		entries: []transcriptEntry{
			{kind: entrySystem, text: "Type a script and press enter to run it. Press ctrl+c to quit."},
		},
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case setProgramMsg:
		m.program = msg.program
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := 2
		inputHeight := m.textarea.Height() + 1
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.textarea.SetWidth(msg.Width - 2)
		m.ready = true
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case scriptTextMsg:
		m.entries = append(m.entries, transcriptEntry{kind: entryText, text: msg.text})
		m.lastResult = msg.text
		m.refreshViewport()
		return m, nil

	case toolCallMsg:
		m.entries = append(m.entries, transcriptEntry{kind: entryToolCall, text: m.describeToolCall(msg.call)})
		m.refreshViewport()
		return m, nil

	case scriptDoneMsg:
		m.running = false
		m.cancelRun = nil
		m.activeCalls = make(map[string]string)
		if err := msg.outcome.Err; err != nil {
			if msg.outcome.Cancelled() {
				m.entries = append(m.entries, transcriptEntry{kind: entrySystem, text: "cancelled"})
			} else {
				m.entries = append(m.entries, transcriptEntry{kind: entryError, text: err.Error()})
			}
		}
		m.status = fmt.Sprintf("finished in %s", msg.outcome.Duration.Round(time.Millisecond))
		m.refreshViewport()
		return m, nil

	case updateAvailableMsg:
		m.entries = append(m.entries, transcriptEntry{
			kind: entrySystem,
			text: fmt.Sprintf("gojacp %s is available, run `gojacp update` to install it", msg.version),
		})
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.cancelRun != nil {
			m.cancelRun()
		}
		return m, tea.Quit

	case tea.KeyEsc:
		if m.running {
			if m.cancelRun != nil {
				m.cancelRun()
			}
			m.status = "cancelling"
			return m, nil
		}
		m.textarea.Reset()
		return m, nil

	case tea.KeyCtrlY:
		if m.lastResult == "" {
			m.status = "nothing to copy yet"
			return m, nil
		}
		if err := clipboard.WriteAll(m.lastResult); err != nil {
			m.status = "copy failed: " + err.Error()
			return m, nil
		}
		m.status = "copied last output"
		return m, nil

	case tea.KeyEnter:
		// Alt+enter inserts a newline for multi-line scripts.
		if msg.Alt {
			break
		}
		return m.submit()

	case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.running {
		m.status = "a script is already running, press esc to cancel it"
		return m, nil
	}
	source := strings.TrimSpace(m.textarea.Value())
	if source == "" {
		return m, nil
	}

	m.entries = append(m.entries, transcriptEntry{kind: entryScript, text: source})
	m.textarea.Reset()
	m.running = true
	m.status = "running"
	m.refreshViewport()

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancelRun = cancel
	return m, m.startRun(runCtx, source)
}

// startRun launches the invocation on its own goroutine via the returned
// command. Stream updates arrive through the program sink while the command
// itself only delivers the terminal outcome.
func (m Model) startRun(ctx context.Context, source string) tea.Cmd {
	runner := m.runner
	program := m.program
	return func() tea.Msg {
		outcome := runner.Run(ctx, source, &programSink{program: program})
		return scriptDoneMsg{outcome: outcome}
	}
}

func (m Model) describeToolCall(call script.ToolCallUpdate) string {
	title := call.Title
	if title == "" {
		title = m.activeCalls[call.ID]
	}
	if title == "" {
		title = call.ID
	}

	switch call.Status {
	case script.ToolCallStatusInProgress:
		m.activeCalls[call.ID] = title
		return fmt.Sprintf("⚙ %s", title)
	case script.ToolCallStatusCompleted:
		delete(m.activeCalls, call.ID)
		if call.Output != "" {
			return fmt.Sprintf("✓ %s: %s", title, firstLine(call.Output))
		}
		return fmt.Sprintf("✓ %s", title)
	case script.ToolCallStatusFailed:
		delete(m.activeCalls, call.ID)
		if call.Output != "" {
			return fmt.Sprintf("✗ %s: %s", title, firstLine(call.Output))
		}
		return fmt.Sprintf("✗ %s", title)
	}
	return title
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	for _, entry := range m.entries {
		var line string
		switch entry.kind {
		case entryScript:
			line = promptStyle.Render("> ") + entry.text
		case entryText:
			line = textStyle.Render(entry.text)
		case entryToolCall:
			line = toolStyle.Render(entry.text)
		case entryError:
			line = errorStyle.Render(entry.text)
		case entrySystem:
			line = systemStyle.Render(entry.text)
		}
		b.WriteString(wordwrap.String(line, width))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Starting playground..."
	}

	header := headerStyle.Render("gojacp playground")
	if m.running {
		header += systemStyle.Render("  (running)")
	}

	footer := footerStyle.Render("enter run · alt+enter newline · esc cancel/clear · ctrl+y copy output · ctrl+c quit")
	if m.status != "" {
		footer += footerStyle.Render("  |  " + m.status)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		m.viewport.View(),
		"",
		m.textarea.View(),
		footer,
	)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
