// Package session holds one user's conversation: connection state, message
// history and the turn currently in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/citation"
	"copilot-chat/internal/stream"
)

const DefaultConnectTimeout = 30 * time.Second

var (
	ErrNotConnected   = errors.New("not connected")
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrConnectTimeout = errors.New("timed out connecting to the agent")
)

// ConnectError wraps a failure to create a client or start a conversation.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return "failed to connect to agent: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// State is the session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateTurnInProgress
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateTurnInProgress:
		return "turn_in_progress"
	case StateIdle:
		return "idle"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry. User content is the literal prompt;
// assistant content is markdown with HTML citation markup.
type Message struct {
	ID         string              `json:"id"`
	Role       Role                `json:"role"`
	Content    string              `json:"content"`
	Citations  []citation.Citation `json:"citations,omitempty"`
	Cards      []agent.CardPayload `json:"cards,omitempty"`
	Suggestion string              `json:"suggestion,omitempty"`
	At         time.Time           `json:"at"`
}

// ClientFactory creates the agent client used by Connect.
type ClientFactory func(ctx context.Context) (agent.Client, error)

type Options struct {
	Factory        ClientFactory
	Aggregator     *stream.Aggregator
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Session is safe for concurrent use. At most one turn runs at a time.
type Session struct {
	factory        ClientFactory
	aggregator     *stream.Aggregator
	connectTimeout time.Duration
	logger         *zap.Logger

	mu         sync.Mutex
	state      State
	client     agent.Client
	history    []Message
	generation int
	cancelTurn context.CancelFunc
}

func New(opts Options) *Session {
	s := &Session{
		factory:        opts.Factory,
		aggregator:     opts.Aggregator,
		connectTimeout: opts.ConnectTimeout,
		logger:         opts.Logger,
	}
	if s.aggregator == nil {
		s.aggregator = stream.New(0, opts.Logger)
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = DefaultConnectTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// Connect creates a client and starts a conversation. It is a no-op when
// already connected. The agent's greeting, if any, becomes the first
// assistant message.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return nil
	}
	if s.factory == nil {
		return &ConnectError{Err: errors.New("no client factory configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	client, err := s.factory(ctx)
	if err != nil {
		return s.connectFailed(ctx, err)
	}
	greeting, err := client.StartConversation(ctx)
	if err != nil {
		return s.connectFailed(ctx, err)
	}

	s.client = client
	s.state = StateConnected
	if greeting != "" {
		s.history = append(s.history, newMessage(RoleAssistant, greeting))
	}
	s.logger.Info("session connected")
	return nil
}

func (s *Session) connectFailed(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("connect timed out", zap.Duration("timeout", s.connectTimeout))
		return ErrConnectTimeout
	}
	s.logger.Warn("connect failed", zap.Error(err))
	return &ConnectError{Err: err}
}

// Submit runs one turn. The prompt is recorded before the agent is called
// and the reply is recorded exactly once when the turn ends, whether it
// succeeded or fell back to an error message. The returned error covers
// only preconditions; turn failures are reported in Result.Err.
func (s *Session) Submit(ctx context.Context, prompt string, obs stream.Observer) (stream.Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateUninitialized:
		s.mu.Unlock()
		return stream.Result{}, ErrNotConnected
	case StateTurnInProgress:
		s.mu.Unlock()
		return stream.Result{}, ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.state = StateTurnInProgress
	s.cancelTurn = cancel
	s.history = append(s.history, newMessage(RoleUser, prompt))
	client, gen := s.client, s.generation
	s.mu.Unlock()

	s.logger.Debug("turn started", zap.Int("prompt_chars", len(prompt)))
	res := s.aggregator.Run(turnCtx, client.SendMessage(turnCtx, prompt), obs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		// Reset while the turn ran; the reply belongs to a discarded conversation.
		return res, nil
	}
	reply := newMessage(RoleAssistant, res.Text)
	reply.Citations = res.Citations
	reply.Cards = res.Cards
	reply.Suggestion = res.Suggestion
	s.history = append(s.history, reply)
	s.state = StateIdle
	s.cancelTurn = nil
	return res, nil
}

// Reset discards the conversation and returns to Uninitialized. A turn in
// flight is cancelled and its reply dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelTurn != nil {
		s.cancelTurn()
		s.cancelTurn = nil
	}
	s.state = StateUninitialized
	s.client = nil
	s.history = nil
	s.generation++
	s.logger.Info("session reset")
}

func newMessage(role Role, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		At:      time.Now(),
	}
}
