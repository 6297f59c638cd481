package stream

import "copilot-chat/internal/agent"

// Observer receives live updates while a turn streams. Calls come from the
// goroutine running Aggregator.Run, in event order.
type Observer interface {
	// Status shows a transient progress line, replacing the previous one.
	Status(text string)
	// ClearStatus removes the progress line. Called once the turn ends.
	ClearStatus()
	// Thoughts shows the reasoning steps so far. complete is true once the
	// answer has started and no more thoughts will be added.
	Thoughts(thoughts []agent.Thought, complete bool)
	// Partial shows the answer so far with citation markers stripped.
	Partial(text string)
	// Error reports a turn failure with a short, user-facing message.
	Error(message string)
}

// NopObserver ignores all updates.
type NopObserver struct{}

func (NopObserver) Status(string)                  {}
func (NopObserver) ClearStatus()                   {}
func (NopObserver) Thoughts([]agent.Thought, bool) {}
func (NopObserver) Partial(string)                 {}
func (NopObserver) Error(string)                   {}
