package agent

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"copilot-chat/internal/citation"
)

// ─── Wire types ───

// Activity is a Bot Framework activity as sent by Copilot Studio.
type Activity struct {
	Type             string            `json:"type"`
	ID               string            `json:"id,omitempty"`
	Timestamp        string            `json:"timestamp,omitempty"`
	From             *ChannelAccount   `json:"from,omitempty"`
	Conversation     *ConversationRef  `json:"conversation,omitempty"`
	Text             string            `json:"text,omitempty"`
	TextFormat       string            `json:"textFormat,omitempty"`
	Locale           string            `json:"locale,omitempty"`
	Name             string            `json:"name,omitempty"`
	ValueType        string            `json:"valueType,omitempty"`
	Value            json.RawMessage   `json:"value,omitempty"`
	ChannelData      *ChannelData      `json:"channelData,omitempty"`
	Entities         []Entity          `json:"entities,omitempty"`
	Attachments      []Attachment      `json:"attachments,omitempty"`
	SuggestedActions *SuggestedActions `json:"suggestedActions,omitempty"`
}

type ChannelAccount struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type ConversationRef struct {
	ID string `json:"id"`
}

type ChannelData struct {
	StreamType string `json:"streamType,omitempty"`
	StreamID   string `json:"streamId,omitempty"`
}

// Entity covers the entity shapes we read: "streaminfo" and schema.org
// Message entities carrying citation claims.
type Entity struct {
	Type       string  `json:"type,omitempty"`
	AtType     string  `json:"@type,omitempty"`
	StreamType string  `json:"streamType,omitempty"`
	StreamID   string  `json:"streamId,omitempty"`
	Citation   []Claim `json:"citation,omitempty"`
}

type Claim struct {
	AtType     string      `json:"@type,omitempty"`
	AtID       string      `json:"@id,omitempty"`
	Position   flexString  `json:"position,omitempty"`
	Appearance *Appearance `json:"appearance,omitempty"`
}

type Appearance struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	Abstract string `json:"abstract,omitempty"`
	Text     string `json:"text,omitempty"`
}

type Attachment struct {
	ContentType string          `json:"contentType"`
	ContentURL  string          `json:"contentUrl,omitempty"`
	Name        string          `json:"name,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
}

type SuggestedActions struct {
	Actions []CardAction `json:"actions"`
}

type CardAction struct {
	Type  string          `json:"type"`
	Title string          `json:"title"`
	Value json.RawMessage `json:"value,omitempty"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

const (
	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"
	ContentTypeHTML         = "text/html"

	streamTypeStreaming   = "streaming"
	streamTypeInformative = "informative"
	streamTypeFinal       = "final"
)

// ─── Decoding ───

// Decoder maps activities of one turn to events. Streaming chunks may carry
// cumulative text or deltas; each stream is locked into one of the two on
// its second chunk and only new text is emitted.
type Decoder struct {
	streams map[string]*chunkStream
}

type chunkMode int

const (
	modeUnknown chunkMode = iota
	modeCumulative
	modeDelta
)

type chunkStream struct {
	text string
	mode chunkMode
}

// NewDecoder returns a decoder for a single turn.
func NewDecoder() *Decoder {
	return &Decoder{streams: make(map[string]*chunkStream)}
}

// Decode returns the events carried by a. Activities we don't display
// decode to nothing.
func (d *Decoder) Decode(a *Activity) []Event {
	switch a.Type {
	case "typing":
		return d.decodeTyping(a)
	case "message":
		return d.decodeMessage(a)
	case "event":
		return decodeEvent(a)
	default:
		return nil
	}
}

func (d *Decoder) decodeTyping(a *Activity) []Event {
	if a.Text == "" {
		return nil
	}
	streamType, streamID := streamInfo(a)
	switch streamType {
	case streamTypeInformative:
		return []Event{StatusEvent{Text: a.Text}}
	case streamTypeStreaming, "":
		if delta := d.delta(streamID, a.Text); delta != "" {
			return []Event{ContentEvent{Text: delta}}
		}
	}
	return nil
}

func (d *Decoder) delta(streamID, text string) string {
	st, ok := d.streams[streamID]
	if !ok {
		d.streams[streamID] = &chunkStream{text: text}
		return text
	}
	if st.mode == modeUnknown {
		// A cumulative stream's second chunk strictly extends the first.
		if len(text) > len(st.text) && strings.HasPrefix(text, st.text) {
			st.mode = modeCumulative
		} else {
			st.mode = modeDelta
		}
	}
	if st.mode == modeDelta {
		st.text += text
		return text
	}
	if strings.HasPrefix(text, st.text) {
		delta := text[len(st.text):]
		st.text = text
		return delta
	}
	// The producer rewrote earlier text. Keep the new chunk whole and track
	// from there.
	st.text = text
	return text
}

func (d *Decoder) decodeMessage(a *Activity) []Event {
	var events []Event

	if entries := claims(a.Entities); len(entries) > 0 {
		events = append(events, CitationsEvent{Entries: entries})
	}
	if a.Text != "" {
		events = append(events, FinalContentEvent{Text: a.Text})
	}
	for _, att := range a.Attachments {
		events = append(events, attachmentEvent(att))
	}
	if a.SuggestedActions != nil {
		var titles []string
		for _, act := range a.SuggestedActions.Actions {
			if act.Title != "" {
				titles = append(titles, act.Title)
			}
		}
		if len(titles) > 0 {
			events = append(events, SuggestionEvent{Text: strings.Join(titles, " · ")})
		}
	}
	return events
}

func streamInfo(a *Activity) (streamType, streamID string) {
	if a.ChannelData != nil && a.ChannelData.StreamType != "" {
		return a.ChannelData.StreamType, a.ChannelData.StreamID
	}
	for _, e := range a.Entities {
		if strings.EqualFold(e.Type, "streaminfo") {
			return e.StreamType, e.StreamID
		}
	}
	return "", ""
}

// claims collects citation entries from schema.org Claim lists, keyed by
// claim position (falling back to @id).
func claims(entities []Entity) citation.Map {
	out := make(citation.Map)
	for _, e := range entities {
		for _, c := range e.Citation {
			key := string(c.Position)
			if key == "" {
				key = c.AtID
			}
			if key == "" || c.Appearance == nil {
				continue
			}
			out[key] = &citation.Entry{
				URL:   c.Appearance.URL,
				Title: c.Appearance.Name,
				Text:  c.Appearance.Abstract,
			}
		}
	}
	return out
}

func attachmentEvent(att Attachment) Event {
	switch strings.ToLower(att.ContentType) {
	case ContentTypeAdaptiveCard:
		if len(att.Content) > 0 {
			return AdaptiveCardEvent{Card: CardPayload{JSON: att.Content}}
		}
	case ContentTypeHTML:
		var html string
		if err := json.Unmarshal(att.Content, &html); err == nil && html != "" {
			return AdaptiveCardEvent{Card: CardPayload{HTML: html}}
		}
	}
	return AttachmentEvent{ContentType: att.ContentType, Name: att.Name, Content: att.Content}
}

// ─── Plan events ───

type planStep struct {
	TaskDialogID string          `json:"taskDialogId"`
	StepID       string          `json:"stepId"`
	Thought      string          `json:"thought"`
	Observation  json.RawMessage `json:"observation"`
}

func decodeEvent(a *Activity) []Event {
	kind := a.ValueType
	if kind == "" {
		kind = a.Name
	}
	switch kind {
	case "DynamicPlanReceived":
		return []Event{StatusEvent{Text: "Planning..."}}
	case "DynamicPlanStepTriggered":
		var step planStep
		if err := json.Unmarshal(a.Value, &step); err != nil {
			return nil
		}
		task := taskName(step.TaskDialogID)
		var events []Event
		if task != "" {
			events = append(events, StatusEvent{Text: "Running " + task + "..."})
		}
		if step.Thought != "" {
			events = append(events, ThoughtEvent{Thought: Thought{Task: task, Text: step.Thought}})
		}
		return events
	case "DynamicPlanStepFinished":
		var step planStep
		if err := json.Unmarshal(a.Value, &step); err != nil || len(step.Observation) == 0 {
			return nil
		}
		var events []Event
		for _, r := range searchResults(step.Observation) {
			events = append(events, SearchResultEvent{Result: r})
		}
		return events
	default:
		return nil
	}
}

// taskName turns "P:UniversalSearchTool" or "cr3b1_agent.topic.Search"
// into the last segment.
func taskName(id string) string {
	if i := strings.LastIndexAny(id, ":."); i >= 0 {
		return id[i+1:]
	}
	return id
}

// searchResults walks an observation for arrays of objects with a "url"
// field. An object's "index" field wins over its array position.
func searchResults(raw json.RawMessage) []citation.SearchResult {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var out []citation.SearchResult
	var walk func(any)
	walk = func(v any) {
		switch v := v.(type) {
		case map[string]any:
			for _, k := range slices.Sorted(maps.Keys(v)) {
				walk(v[k])
			}
		case []any:
			for i, el := range v {
				obj, ok := el.(map[string]any)
				if !ok {
					walk(el)
					continue
				}
				url, _ := obj["url"].(string)
				if url == "" {
					walk(obj)
					continue
				}
				r := citation.SearchResult{Index: i, URL: url}
				if idx, ok := obj["index"].(float64); ok {
					r.Index = int(idx)
				}
				if title, ok := obj["title"].(string); ok {
					r.Title = title
				} else if name, ok := obj["name"].(string); ok {
					r.Title = name
				}
				out = append(out, r)
			}
		}
	}
	walk(v)
	return out
}
