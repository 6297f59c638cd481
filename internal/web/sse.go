package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"copilot-chat/internal/agent"
)

type sseEvent struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	HTML       string          `json:"html,omitempty"`
	Thoughts   []agent.Thought `json:"thoughts,omitempty"`
	Complete   bool            `json:"complete,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
	Cards      []cardView      `json:"cards,omitempty"`
	Failed     bool            `json:"failed,omitempty"`
}

// sseWriter frames events as "data: {json}\n\n". Headers go out with the
// first event so a handler can still return a plain HTTP error before that.
type sseWriter struct {
	rw      http.ResponseWriter
	started bool
}

func newSSEWriter(rw http.ResponseWriter) *sseWriter {
	return &sseWriter{rw: rw}
}

func (w *sseWriter) emit(ev sseEvent) {
	if !w.started {
		h := w.rw.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.rw.WriteHeader(http.StatusOK)
		w.started = true
	}
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w.rw, "data: %s\n\n", data)
	if f, ok := w.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// sseObserver forwards live turn progress to the browser.
type sseObserver struct {
	w *sseWriter
}

func (o *sseObserver) Status(text string) {
	o.w.emit(sseEvent{Type: "status", Text: text})
}

func (o *sseObserver) ClearStatus() {
	o.w.emit(sseEvent{Type: "status"})
}

func (o *sseObserver) Thoughts(thoughts []agent.Thought, complete bool) {
	o.w.emit(sseEvent{Type: "thoughts", Thoughts: thoughts, Complete: complete})
}

func (o *sseObserver) Partial(text string) {
	o.w.emit(sseEvent{Type: "partial", Text: text})
}

func (o *sseObserver) Error(message string) {
	o.w.emit(sseEvent{Type: "error", Text: message})
}
