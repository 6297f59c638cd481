package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"copilot-chat/internal/session"
)

// ─── Input dispatcher ───────────────────────────────────────────────────────

func (m model) dispatchInput(input string) (tea.Model, tea.Cmd) {
	if input == "?" {
		return m.cmdHelp()
	}
	if strings.HasPrefix(input, "/") {
		return m.dispatchCommand(input)
	}
	return m.cmdAsk(input)
}

func (m model) dispatchCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}

	switch cmd := strings.ToLower(parts[0]); cmd {
	case "/help", "/h":
		return m.cmdHelp()
	case "/new", "/reset":
		return m.cmdNew()
	case "/clear":
		return m.cmdClear()
	case "/quit", "/exit", "/q":
		return m, tea.Quit
	default:
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Unknown command: %s. Type /help", cmd)))
	}
}

// ─── /help ──────────────────────────────────────────────────────────────────

func (m model) cmdHelp() (tea.Model, tea.Cmd) {
	pad := func(s string, w int) string {
		return s + strings.Repeat(" ", max(w-len(s), 0))
	}

	lines := []tea.Cmd{
		tea.Println(""),
		tea.Println(dimStyle.Render("  Commands:")),
		tea.Println(""),
	}
	for _, c := range slashCommands {
		lines = append(lines, tea.Println("  "+hintKeyStyle.Render(pad(c.name, 12))+dimStyle.Render(c.desc)))
	}
	lines = append(lines,
		tea.Println(""),
		tea.Println(dimStyle.Render("  Esc cancels a reply in progress. ↑↓ browse earlier messages.")),
		tea.Println(dimStyle.Render("  Or just type a message to chat with the agent.")),
		tea.Println(""),
	)
	return m, tea.Sequence(lines...)
}

// ─── /new ───────────────────────────────────────────────────────────────────

func (m model) cmdNew() (tea.Model, tea.Cmd) {
	if m.mode == modeStreaming {
		return m, tea.Println(warnMsgStyle.Render("  ! Wait for the reply to finish, or press Esc."))
	}
	m.sess.Reset()
	m.mode = modeConnecting
	return m, tea.Sequence(
		tea.Println(dimStyle.Render("  Starting a new conversation...")),
		connect(m.sess),
	)
}

// ─── /clear ─────────────────────────────────────────────────────────────────

func (m model) cmdClear() (tea.Model, tea.Cmd) {
	return m, tea.ClearScreen
}

// ─── Chat ───────────────────────────────────────────────────────────────────

func (m model) cmdAsk(prompt string) (tea.Model, tea.Cmd) {
	if m.mode == modeConnecting {
		return m, tea.Println(warnMsgStyle.Render("  ! Still connecting, try again in a moment."))
	}
	if m.sess.State() == session.StateUninitialized {
		return m, tea.Println(errorMsgStyle.Render("  ✗ Not connected. Type /new to reconnect."))
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.resetTurnState()
	m.mode = modeStreaming
	m.cancelTurn = cancel
	m.turnCh = beginTurn(ctx, m.sess, prompt)

	return m, tea.Sequence(
		tea.Println(""),
		tea.Println(userPromptStyle.Render("  ❯ "+prompt)),
		tea.Println(""),
		waitForTurn(m.turnCh),
	)
}

// ─── Error text ─────────────────────────────────────────────────────────────

func connectHeadline(err error) string {
	if errors.Is(err, session.ErrConnectTimeout) {
		return "Connection to Copilot Studio timed out."
	}
	var ce *session.ConnectError
	if errors.As(err, &ce) {
		err = ce.Err
	}
	return "Failed to connect to Copilot Studio: " + err.Error()
}

func connectHint(err error) string {
	if errors.Is(err, session.ErrConnectTimeout) {
		return "Please check your network connection and try again."
	}
	return "Please check your configuration and ensure the agent is published in Copilot Studio."
}

func turnErrorText(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return "Not connected. Type /new to reconnect."
	case errors.Is(err, session.ErrTurnInProgress):
		return "A reply is still in progress."
	default:
		return err.Error()
	}
}
