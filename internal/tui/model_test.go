package tui

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/session"
	"copilot-chat/internal/stream"
)

// fakeClient replays a fixed set of events.
type fakeClient struct {
	greeting string
	events   []agent.Event
	// hold, if set, blocks SendMessage until closed or ctx is done.
	hold chan struct{}
}

func (f *fakeClient) StartConversation(ctx context.Context) (string, error) {
	return f.greeting, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, text string) iter.Seq2[agent.Event, error] {
	return func(yield func(agent.Event, error) bool) {
		if f.hold != nil {
			select {
			case <-f.hold:
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
		}
		for _, ev := range f.events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func newTestSession(t *testing.T, c agent.Client, connect bool) *session.Session {
	t.Helper()
	s := session.New(session.Options{
		Factory:    func(ctx context.Context) (agent.Client, error) { return c, nil },
		Aggregator: stream.New(5*time.Second, nil),
	})
	if connect {
		require.NoError(t, s.Connect(context.Background()))
	}
	return s
}

func newTestModel(sess *session.Session) model {
	m := initialModel(Options{Session: sess, Version: "test", Style: "notty"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(model)
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

// drain feeds the turn's messages to the model until the turn is done.
func drain(t *testing.T, m model) model {
	t.Helper()
	ch := m.turnCh
	require.NotNil(t, ch)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return m
			}
			m = update(t, m, msg)
			if _, done := msg.(turnDoneMsg); done {
				return m
			}
		case <-timeout:
			t.Fatal("turn did not finish")
		}
	}
}

func TestMatchCommands(t *testing.T) {
	tests := []struct {
		prefix string
		want   []string
	}{
		{"/", []string{"/clear", "/help", "/new", "/quit"}},
		{"/n", []string{"/new"}},
		{"/Q", []string{"/quit"}},
		{"/zzz", nil},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			var got []string
			for _, c := range matchCommands(tt.prefix) {
				got = append(got, c.name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectMessages(t *testing.T) {
	m := newTestModel(newTestSession(t, &fakeClient{}, false))
	assert.Equal(t, modeConnecting, m.mode)
	assert.Contains(t, m.View(), "Connecting")

	m = update(t, m, connectedMsg{greeting: "Hello!"})
	assert.Equal(t, modeIdle, m.mode)
	assert.NotContains(t, m.View(), "Connecting")

	m.mode = modeConnecting
	m = update(t, m, connectErrMsg{err: &session.ConnectError{Err: errors.New("401")}})
	assert.Equal(t, modeIdle, m.mode)
}

func TestConnectCommand(t *testing.T) {
	sess := newTestSession(t, &fakeClient{greeting: "Hi there"}, false)

	msg := connect(sess)()
	got, ok := msg.(connectedMsg)
	require.True(t, ok, "connect() = %T", msg)
	assert.Equal(t, "Hi there", got.greeting)
	assert.Equal(t, session.StateConnected, sess.State())
}

func TestTurnFlow(t *testing.T) {
	client := &fakeClient{events: []agent.Event{
		agent.StatusEvent{Text: "Searching..."},
		agent.ThoughtEvent{Thought: agent.Thought{Task: "Search", Text: "looking up docs"}},
		agent.ContentEvent{Text: "Go is "},
		agent.ContentEvent{Text: "fast."},
		agent.SuggestionEvent{Text: "Ask about generics"},
	}}
	sess := newTestSession(t, client, true)
	m := newTestModel(sess)
	m = update(t, m, connectedMsg{})

	m.input.SetValue("Is Go fast?")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, modeStreaming, m.mode)
	assert.Contains(t, m.View(), "Esc cancel")

	m = drain(t, m)

	assert.Equal(t, modeIdle, m.mode)
	assert.Nil(t, m.turnCh)
	assert.Empty(t, m.partial)
	assert.Equal(t, []string{"Is Go fast?"}, m.history)

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "Go is fast.", hist[1].Content)
	assert.Equal(t, "Ask about generics", hist[1].Suggestion)
}

func TestStreamingView(t *testing.T) {
	m := newTestModel(newTestSession(t, &fakeClient{}, true))
	m.mode = modeStreaming

	m = update(t, m, turnStatusMsg{text: "Searching the web..."})
	m = update(t, m, turnPartialMsg{text: "partial answer"})
	m = update(t, m, turnThoughtsMsg{thoughts: []agent.Thought{{Task: "Plan", Text: "step one"}}})

	view := m.View()
	assert.Contains(t, view, "Searching the web...")
	assert.Contains(t, view, "partial answer")
	assert.Contains(t, view, "Plan: step one")

	m = update(t, m, turnStatusMsg{})
	assert.Contains(t, m.View(), "Thinking...")
}

func TestCancelTurn(t *testing.T) {
	client := &fakeClient{
		events: []agent.Event{agent.ContentEvent{Text: "never shown"}},
		hold:   make(chan struct{}),
	}
	sess := newTestSession(t, client, true)
	m := newTestModel(sess)
	m = update(t, m, connectedMsg{})

	m2, _ := m.cmdAsk("slow question")
	m = m2.(model)
	require.Equal(t, modeStreaming, m.mode)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, m.cancelled)

	m = drain(t, m)
	assert.Equal(t, modeIdle, m.mode)
	assert.False(t, m.cancelled)
	assert.Equal(t, session.StateIdle, sess.State())
}

func TestAskNotConnected(t *testing.T) {
	m := newTestModel(newTestSession(t, &fakeClient{}, false))
	m.mode = modeIdle

	m2, cmd := m.cmdAsk("hello")
	m = m2.(model)
	assert.Equal(t, modeIdle, m.mode)
	assert.Nil(t, m.turnCh)
	assert.NotNil(t, cmd)
}

func TestNewCommandResets(t *testing.T) {
	client := &fakeClient{greeting: "hi", events: []agent.Event{agent.FinalContentEvent{Text: "ok"}}}
	sess := newTestSession(t, client, true)
	m := newTestModel(sess)
	m = update(t, m, connectedMsg{})

	m2, _ := m.cmdAsk("q")
	m = drain(t, m2.(model))
	require.Len(t, sess.History(), 3)

	m2, cmd := m.dispatchCommand("/new")
	m = m2.(model)
	assert.NotNil(t, cmd)
	assert.Equal(t, modeConnecting, m.mode)
	assert.Equal(t, session.StateUninitialized, sess.State())
	assert.Empty(t, sess.History())
}

func TestInputHistoryNavigation(t *testing.T) {
	m := newTestModel(newTestSession(t, &fakeClient{}, false))
	m.mode = modeIdle
	m.history = []string{"first", "second"}
	m.input.SetValue("draft")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "second", m.input.Value())
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "first", m.input.Value())
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "second", m.input.Value())
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "draft", m.input.Value())
}

func TestTurnErrorText(t *testing.T) {
	assert.True(t, strings.Contains(turnErrorText(session.ErrNotConnected), "/new"))
	assert.Equal(t, "boom", turnErrorText(errors.New("boom")))
}
