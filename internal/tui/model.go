package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/card"
	"copilot-chat/internal/session"
)

// ─── App mode ───────────────────────────────────────────────────────────────

type appMode int

const (
	modeConnecting appMode = iota
	modeIdle
	modeStreaming
)

const (
	defaultPlaceholder = "Message Copilot... (/help for commands)"
	partialLines       = 6
	maxInputHistory    = 1000
)

// ─── Slash command registry ─────────────────────────────────────────────────

type slashCmd struct {
	name string
	desc string
}

var slashCommands = []slashCmd{
	{"/clear", "Clear the screen"},
	{"/help", "Show all commands"},
	{"/new", "Start a new conversation"},
	{"/quit", "Exit"},
}

// ─── Model ──────────────────────────────────────────────────────────────────

type model struct {
	width  int
	height int

	// Bubble Tea components
	input   textinput.Model
	spinner spinner.Model

	// App state
	mode      appMode
	sess      *session.Session
	cards     *card.Renderer
	version   string
	agentName string
	user      string
	mdStyle   string

	// Turn state
	turnCh     <-chan tea.Msg
	cancelTurn context.CancelFunc
	cancelled  bool
	status     string
	thoughts   []agent.Thought
	partial    string

	// UI state
	ready        bool
	cmdMenuIdx   int
	cmdMenuOpen  bool
	lastInputVal string

	// Input history
	history      []string
	historyIdx   int // -1 when not browsing
	historySaved string
}

func initialModel(opts Options) model {
	ti := textinput.New()
	ti.Placeholder = defaultPlaceholder
	ti.Focus()
	ti.CharLimit = 4096
	ti.Prompt = "❯ "
	ti.PromptStyle = promptSymbol
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(colorAccent)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	return model{
		input:      ti,
		spinner:    sp,
		mode:       modeConnecting,
		sess:       opts.Session,
		cards:      card.NewRenderer(opts.Logger),
		version:    opts.Version,
		agentName:  opts.Agent,
		user:       opts.User,
		mdStyle:    opts.Style,
		history:    make([]string, 0),
		historyIdx: -1,
	}
}

// ─── Init ───────────────────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		connect(m.sess),
	)
}

// ─── Update ─────────────────────────────────────────────────────────────────

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = m.width - 6

		if !m.ready {
			m.ready = true
			cmds = append(cmds, tea.Println(renderWelcome(m.version, m.agentName, m.user)))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.mode == modeStreaming {
				return m.cancelActiveTurn()
			}
			return m, tea.Quit

		case tea.KeyEsc:
			if m.mode == modeStreaming {
				return m.cancelActiveTurn()
			}
			if m.cmdMenuOpen {
				m.cmdMenuOpen = false
				m.cmdMenuIdx = 0
				return m, nil
			}

		case tea.KeyUp:
			if m.mode != modeStreaming {
				if m.cmdMenuOpen {
					if matches := matchCommands(m.input.Value()); len(matches) > 0 {
						m.cmdMenuIdx--
						if m.cmdMenuIdx < 0 {
							m.cmdMenuIdx = len(matches) - 1
						}
						return m, nil
					}
				} else if len(m.history) > 0 {
					if m.historyIdx == -1 {
						m.historySaved = m.input.Value()
						m.historyIdx = len(m.history) - 1
					} else if m.historyIdx > 0 {
						m.historyIdx--
					}
					m.input.SetValue(m.history[m.historyIdx])
					m.input.CursorEnd()
					return m, nil
				}
			}

		case tea.KeyDown:
			if m.mode != modeStreaming {
				if m.cmdMenuOpen {
					if matches := matchCommands(m.input.Value()); len(matches) > 0 {
						m.cmdMenuIdx++
						if m.cmdMenuIdx >= len(matches) {
							m.cmdMenuIdx = 0
						}
						return m, nil
					}
				} else if m.historyIdx != -1 {
					m.historyIdx++
					if m.historyIdx >= len(m.history) {
						m.historyIdx = -1
						m.input.SetValue(m.historySaved)
						m.historySaved = ""
					} else {
						m.input.SetValue(m.history[m.historyIdx])
					}
					m.input.CursorEnd()
					return m, nil
				}
			}

		case tea.KeyTab:
			if m.mode != modeStreaming && m.cmdMenuOpen {
				if matches := matchCommands(m.input.Value()); len(matches) > 0 {
					idx := m.cmdMenuIdx
					if idx < 0 || idx >= len(matches) {
						idx = 0
					}
					m.input.SetValue(matches[idx].name)
					m.input.CursorEnd()
					m.cmdMenuOpen = false
					m.cmdMenuIdx = 0
				}
				return m, nil
			}

		case tea.KeyEnter:
			if m.mode == modeStreaming {
				return m, nil
			}
			if m.cmdMenuOpen && m.cmdMenuIdx >= 0 {
				matches := matchCommands(m.input.Value())
				if m.cmdMenuIdx < len(matches) && matches[m.cmdMenuIdx].name != strings.TrimSpace(m.input.Value()) {
					m.input.SetValue(matches[m.cmdMenuIdx].name)
					m.input.CursorEnd()
					m.cmdMenuOpen = false
					m.cmdMenuIdx = 0
					return m, nil
				}
			}

			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil
			}

			if len(m.history) == 0 || m.history[len(m.history)-1] != value {
				m.history = append(m.history, value)
				if len(m.history) > maxInputHistory {
					m.history = m.history[len(m.history)-maxInputHistory:]
				}
			}
			m.historyIdx = -1
			m.historySaved = ""

			m.input.SetValue("")
			m.cmdMenuOpen = false
			m.cmdMenuIdx = 0

			return m.dispatchInput(value)
		}

	// ── Connection ────────────────────────────────────────────────────
	case connectedMsg:
		m.mode = modeIdle
		cmds = append(cmds, tea.Println(successMsgStyle.Render("  ✓ Connected to Copilot Studio")))
		if strings.TrimSpace(msg.greeting) != "" {
			cmds = append(cmds, tea.Println(renderMarkdown(msg.greeting, m.mdStyle, m.wrapWidth())))
		}
		return m, tea.Sequence(cmds...)

	case connectErrMsg:
		m.mode = modeIdle
		return m, tea.Sequence(
			tea.Println(errorMsgStyle.Render("  ✗ "+connectHeadline(msg.err))),
			tea.Println(dimStyle.Render("    "+connectHint(msg.err))),
			tea.Println(dimStyle.Render("    Type /new to try again.")),
		)

	// ── Turn messages ─────────────────────────────────────────────────
	case turnStatusMsg:
		m.status = msg.text
		return m, m.keepReading()

	case turnThoughtsMsg:
		m.thoughts = msg.thoughts
		if msg.complete && !m.cancelled {
			return m, tea.Sequence(tea.Println(renderThoughts(msg.thoughts)), m.keepReading())
		}
		return m, m.keepReading()

	case turnPartialMsg:
		m.partial = msg.text
		return m, m.keepReading()

	case turnErrorMsg:
		if m.cancelled {
			return m, m.keepReading()
		}
		return m, tea.Sequence(tea.Println(errorMsgStyle.Render("  ✗ "+msg.message)), m.keepReading())

	case turnDoneMsg:
		return m.finishTurn(msg)
	}

	// Update sub-components
	var cmd tea.Cmd

	if m.mode != modeStreaming {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	newVal := m.input.Value()
	if newVal != m.lastInputVal {
		m.lastInputVal = newVal
		if m.historyIdx != -1 && m.historyIdx < len(m.history) && m.history[m.historyIdx] != newVal {
			m.historyIdx = -1
			m.historySaved = ""
		}
		m.cmdMenuOpen = strings.HasPrefix(newVal, "/")
		m.cmdMenuIdx = 0
	}

	return m, tea.Batch(cmds...)
}

func (m model) keepReading() tea.Cmd {
	if m.turnCh == nil {
		return nil
	}
	return waitForTurn(m.turnCh)
}

// cancelActiveTurn stops the turn but keeps reading until the session
// reports it done, so the goroutine never blocks on a full channel.
func (m model) cancelActiveTurn() (tea.Model, tea.Cmd) {
	if m.cancelled {
		return m, nil
	}
	m.cancelled = true
	if m.cancelTurn != nil {
		m.cancelTurn()
	}
	return m, tea.Println(warnMsgStyle.Render("  ! Turn cancelled."))
}

func (m model) finishTurn(msg turnDoneMsg) (tea.Model, tea.Cmd) {
	cancelled := m.cancelled
	if m.cancelTurn != nil {
		m.cancelTurn()
	}
	m.mode = modeIdle
	m.resetTurnState()

	if msg.err != nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ " + turnErrorText(msg.err)))
	}
	if cancelled {
		return m, nil
	}
	out := RenderResult(msg.result, RenderOptions{Width: m.wrapWidth(), Style: m.mdStyle, Cards: m.cards})
	return m, tea.Println(out)
}

// ─── View ───────────────────────────────────────────────────────────────────
//
// Inline mode: View() shows only the live area. Finished output is printed
// above it via tea.Println.

func (m model) View() string {
	if !m.ready {
		return ""
	}

	var s strings.Builder

	switch m.mode {
	case modeConnecting:
		s.WriteString(m.spinner.View() + " " + statusStyle.Render("Connecting to Copilot Studio..."))
	case modeStreaming:
		if m.partial != "" {
			wrapped := lipgloss.NewStyle().Width(m.wrapWidth()).Render(m.partial)
			s.WriteString(partialStyle.Render(indentText(tail(wrapped, partialLines), "  ")))
			s.WriteString("\n")
		}
		if line := liveThought(m.thoughts); line != "" {
			s.WriteString(thoughtStyle.Render("  " + line))
			s.WriteString("\n")
		}
		status := "Thinking..."
		if m.status != "" {
			status = m.status
		}
		s.WriteString(m.spinner.View() + " " + statusStyle.Render(status))
	default:
		s.WriteString(m.input.View())
	}
	s.WriteString("\n")

	sepWidth := min(m.width, 80)
	if sepWidth < 20 {
		sepWidth = 20
	}
	s.WriteString(separatorStyle.Render(strings.Repeat("─", sepWidth)))
	s.WriteString("\n")

	s.WriteString(m.renderHints())

	return s.String()
}

// ─── Hint bar ───────────────────────────────────────────────────────────────

func (m model) renderHints() string {
	if m.mode == modeStreaming {
		return hintBarStyle.Render("  Esc cancel")
	}

	if m.cmdMenuOpen {
		if matches := matchCommands(m.input.Value()); len(matches) > 0 {
			return m.renderCommandMenu(matches)
		}
	}

	return hintBarStyle.Render("  ? for help")
}

// renderCommandMenu renders a vertical list of matching commands.
func (m model) renderCommandMenu(matches []slashCmd) string {
	maxLen := 0
	for _, c := range matches {
		if len(c.name) > maxLen {
			maxLen = len(c.name)
		}
	}

	var lines []string
	for i, c := range matches {
		padded := c.name + strings.Repeat(" ", maxLen-len(c.name))
		if i == m.cmdMenuIdx {
			lines = append(lines, "  "+cmdSelectedNameStyle.Render(padded)+"  "+cmdSelectedDescStyle.Render(c.desc))
		} else {
			lines = append(lines, "  "+cmdNameStyle.Render(padded)+"  "+cmdDescStyle.Render(c.desc))
		}
	}
	lines = append(lines, hintBarStyle.Render("  ↑↓ navigate  Tab/Enter select"))

	return strings.Join(lines, "\n")
}

// matchCommands returns all slash commands matching a prefix.
func matchCommands(prefix string) []slashCmd {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "/" {
		return slashCommands
	}
	var matches []slashCmd
	for _, c := range slashCommands {
		if strings.HasPrefix(c.name, prefix) {
			matches = append(matches, c)
		}
	}
	return matches
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (m *model) resetTurnState() {
	m.turnCh = nil
	m.cancelTurn = nil
	m.cancelled = false
	m.status = ""
	m.thoughts = nil
	m.partial = ""
}

func (m model) wrapWidth() int {
	if m.width <= 0 {
		return 80
	}
	return min(m.width-2, 100)
}
