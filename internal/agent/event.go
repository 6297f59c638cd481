package agent

import (
	"encoding/json"

	"copilot-chat/internal/citation"
)

// Event kinds, as reported by Event.Kind.
const (
	KindStatus       = "status"
	KindThought      = "thought"
	KindContent      = "content"
	KindFinalContent = "final_content"
	KindCitations    = "citations"
	KindSearchResult = "search_result"
	KindAdaptiveCard = "adaptive_card"
	KindAttachment   = "attachment"
	KindSuggestion   = "suggestion"
)

// Event is one item of a turn's response stream. The implementations in
// this package are the complete set.
type Event interface {
	Kind() string
	isEvent()
}

// Thought is one reasoning step the agent reports while planning.
type Thought struct {
	Task string `json:"task,omitempty"`
	Text string `json:"text"`
}

// CardPayload is a rich attachment: adaptive-card JSON or an HTML fragment.
type CardPayload struct {
	JSON json.RawMessage `json:"json,omitempty"`
	HTML string          `json:"html,omitempty"`
}

// IsHTML reports whether the payload is an HTML fragment.
func (p CardPayload) IsHTML() bool { return p.HTML != "" }

// StatusEvent is a transient progress line ("Searching...").
type StatusEvent struct{ Text string }

// ThoughtEvent appends a reasoning step.
type ThoughtEvent struct{ Thought Thought }

// ContentEvent is an incremental text fragment.
type ContentEvent struct{ Text string }

// FinalContentEvent is the complete answer text, used only if nothing streamed.
type FinalContentEvent struct{ Text string }

// CitationsEvent carries citation metadata keyed by citation ID.
type CitationsEvent struct{ Entries citation.Map }

// SearchResultEvent announces a search hit that citations may point at.
type SearchResultEvent struct{ Result citation.SearchResult }

// AdaptiveCardEvent carries a card to render after the text.
type AdaptiveCardEvent struct{ Card CardPayload }

// AttachmentEvent is any attachment not recognized as a card.
type AttachmentEvent struct {
	ContentType string
	Name        string
	Content     json.RawMessage
}

// SuggestionEvent is a follow-up suggestion line.
type SuggestionEvent struct{ Text string }

func (StatusEvent) Kind() string       { return KindStatus }
func (ThoughtEvent) Kind() string      { return KindThought }
func (ContentEvent) Kind() string      { return KindContent }
func (FinalContentEvent) Kind() string { return KindFinalContent }
func (CitationsEvent) Kind() string    { return KindCitations }
func (SearchResultEvent) Kind() string { return KindSearchResult }
func (AdaptiveCardEvent) Kind() string { return KindAdaptiveCard }
func (AttachmentEvent) Kind() string   { return KindAttachment }
func (SuggestionEvent) Kind() string   { return KindSuggestion }

func (StatusEvent) isEvent()       {}
func (ThoughtEvent) isEvent()      {}
func (ContentEvent) isEvent()      {}
func (FinalContentEvent) isEvent() {}
func (CitationsEvent) isEvent()    {}
func (SearchResultEvent) isEvent() {}
func (AdaptiveCardEvent) isEvent() {}
func (AttachmentEvent) isEvent()   {}
func (SuggestionEvent) isEvent()   {}
