// Package agent talks to a Copilot Studio agent and turns its activity
// stream into typed events.
package agent

import (
	"context"
	"iter"
)

// Client is a conversation with one agent.
// *HTTPClient satisfies this interface. Session and tests can use fakes.
type Client interface {
	// StartConversation opens a conversation and returns the agent's
	// greeting, which may be empty.
	StartConversation(ctx context.Context) (string, error)

	// SendMessage sends one user message. The returned sequence yields the
	// turn's events in arrival order; a non-nil error ends the sequence.
	// Stopping iteration early abandons the response.
	SendMessage(ctx context.Context, text string) iter.Seq2[Event, error]
}
