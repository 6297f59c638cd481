package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/session"
	"copilot-chat/internal/stream"
)

// ─── Messages sent from the turn goroutine to Bubble Tea ────────────────────

type connectedMsg struct {
	greeting string
}

type connectErrMsg struct {
	err error
}

type turnStatusMsg struct {
	text string
}

type turnThoughtsMsg struct {
	thoughts []agent.Thought
	complete bool
}

type turnPartialMsg struct {
	text string
}

type turnErrorMsg struct {
	message string
}

type turnDoneMsg struct {
	result stream.Result
	err    error
}

// ─── Connect ────────────────────────────────────────────────────────────────

func connect(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		if err := sess.Connect(context.Background()); err != nil {
			return connectErrMsg{err: err}
		}
		var greeting string
		for _, m := range sess.History() {
			if m.Role == session.RoleAssistant {
				greeting = m.Content
			}
		}
		return connectedMsg{greeting: greeting}
	}
}

// ─── Turn ───────────────────────────────────────────────────────────────────
//
// The turn runs in a goroutine. Observer callbacks become tea messages on
// a channel, and the model keeps re-issuing waitForTurn until turnDoneMsg.

// chanObserver forwards aggregator updates to the program.
type chanObserver struct {
	ch chan<- tea.Msg
}

func (o chanObserver) Status(text string) { o.ch <- turnStatusMsg{text: text} }
func (o chanObserver) ClearStatus()       { o.ch <- turnStatusMsg{} }
func (o chanObserver) Partial(text string) {
	o.ch <- turnPartialMsg{text: text}
}
func (o chanObserver) Error(message string) {
	o.ch <- turnErrorMsg{message: message}
}
func (o chanObserver) Thoughts(thoughts []agent.Thought, complete bool) {
	o.ch <- turnThoughtsMsg{thoughts: thoughts, complete: complete}
}

// beginTurn submits prompt and returns the channel carrying its progress.
// The channel is closed after turnDoneMsg.
func beginTurn(ctx context.Context, sess *session.Session, prompt string) <-chan tea.Msg {
	ch := make(chan tea.Msg, 64)
	go func() {
		defer close(ch)
		res, err := sess.Submit(ctx, prompt, chanObserver{ch: ch})
		ch <- turnDoneMsg{result: res, err: err}
	}()
	return ch
}

// waitForTurn reads the next message from the channel.
func waitForTurn(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
