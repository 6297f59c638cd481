// Package stream folds a turn's event stream into a final answer while
// reporting progress to an Observer.
package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/citation"
)

const (
	DefaultTimeout = 5 * time.Minute

	FallbackText = "Sorry, I encountered an error while processing your request. Please try again."
	TimeoutText  = "Sorry, the request timed out. The agent took too long to respond."

	errorPrefix    = "Error during conversation: "
	timeoutMessage = "Please try again with a simpler question or start a new conversation."

	maxDiagnosticRunes = 200
)

var (
	ErrTimeout   = errors.New("turn timed out")
	ErrStreaming = errors.New("streaming failed")
)

// Result is the outcome of one turn. Run always returns one; on failure
// Text holds a fallback message and Err says why.
type Result struct {
	// Text is the answer as markdown with HTML citation superscripts and a
	// references block appended.
	Text string
	// Raw is the answer before citation processing.
	Raw        string
	Citations  []citation.Citation
	Metadata   citation.Map
	Thoughts   []agent.Thought
	Cards      []agent.CardPayload
	Suggestion string
	Err        error
}

// Aggregator runs turns.
type Aggregator struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// New returns an Aggregator with the given turn timeout (DefaultTimeout if zero).
func New(timeout time.Duration, logger *zap.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{Timeout: timeout, Logger: logger}
}

type item struct {
	ev  agent.Event
	err error
}

// Run consumes events until the stream ends, fails, or the timeout passes.
// It never returns an error directly; failures are folded into the Result.
// The status line is always cleared before Run returns.
func (a *Aggregator) Run(ctx context.Context, events iter.Seq2[agent.Event, error], obs Observer) Result {
	if obs == nil {
		obs = NopObserver{}
	}
	log := a.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan item)
	go pump(ctx, events, ch)

	t := newTurn(obs)
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return a.fail(t, ctx.Err(), log)
		case it, ok := <-ch:
			if !ok {
				res := t.finish()
				log.Info("turn complete",
					zap.Duration("elapsed", time.Since(start)),
					zap.Int("chars", len(res.Raw)),
					zap.Int("citations", len(res.Citations)),
					zap.Int("cards", len(res.Cards)))
				return res
			}
			if it.err != nil {
				if ctx.Err() != nil {
					return a.fail(t, ctx.Err(), log)
				}
				return a.fail(t, it.err, log)
			}
			if err := t.safeApply(it.ev); err != nil {
				return a.fail(t, err, log)
			}
		}
	}
}

// pump forwards events until the stream ends or ctx is done. The sequence
// is abandoned (yield returns false) once ctx is done.
func pump(ctx context.Context, events iter.Seq2[agent.Event, error], ch chan<- item) {
	defer close(ch)
	defer func() {
		if r := recover(); r != nil {
			select {
			case ch <- item{err: fmt.Errorf("event source panicked: %v", r)}:
			case <-ctx.Done():
			}
		}
	}()
	for ev, err := range events {
		select {
		case ch <- item{ev: ev, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (a *Aggregator) fail(t *turn, err error, log *zap.Logger) Result {
	t.obs.ClearStatus()

	res := Result{Text: FallbackText, Thoughts: t.thoughts}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("turn timed out", zap.Error(err))
		res.Text = TimeoutText
		res.Err = ErrTimeout
		t.obs.Error(timeoutMessage)
		return res
	}

	log.Warn("turn failed", zap.Error(err))
	res.Err = fmt.Errorf("%w: %w", ErrStreaming, err)
	t.obs.Error(errorPrefix + diagnostic(err))
	return res
}

func diagnostic(err error) string {
	r := []rune(err.Error())
	if len(r) <= maxDiagnosticRunes {
		return string(r)
	}
	return string(r[:maxDiagnosticRunes]) + "..."
}

// ─── Turn state ───

type turn struct {
	obs        Observer
	content    strings.Builder
	streamed   bool
	final      string
	meta       citation.Map
	results    []citation.SearchResult
	thoughts   []agent.Thought
	cards      []agent.CardPayload
	suggestion string
}

func newTurn(obs Observer) *turn {
	return &turn{obs: obs, meta: make(citation.Map)}
}

func (t *turn) safeApply(ev agent.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handling %s event: %v", ev.Kind(), r)
		}
	}()
	t.apply(ev)
	return nil
}

func (t *turn) apply(ev agent.Event) {
	switch ev := ev.(type) {
	case agent.StatusEvent:
		t.obs.Status(ev.Text)
	case agent.ThoughtEvent:
		t.thoughts = append(t.thoughts, ev.Thought)
		t.obs.Thoughts(t.thoughtList(), false)
	case agent.ContentEvent:
		t.streamed = true
		t.content.WriteString(ev.Text)
		partial, _ := citation.Clean(t.content.String(), citation.ModePlain, t.meta)
		t.obs.Partial(partial)
	case agent.FinalContentEvent:
		if t.streamed {
			return
		}
		t.final = ev.Text
		partial, _ := citation.Clean(ev.Text, citation.ModePlain, t.meta)
		t.obs.Partial(partial)
	case agent.CitationsEvent:
		for id, e := range ev.Entries {
			if e != nil {
				citation.Backfill(id, e, t.results)
			}
		}
		citation.Merge(t.meta, ev.Entries)
	case agent.SearchResultEvent:
		t.results = append(t.results, ev.Result)
		citation.Resolve(t.meta, []citation.SearchResult{ev.Result})
	case agent.AdaptiveCardEvent:
		t.cards = append(t.cards, ev.Card)
	case agent.AttachmentEvent:
		// not displayed
	case agent.SuggestionEvent:
		t.suggestion = ev.Text
	}
}

func (t *turn) thoughtList() []agent.Thought {
	return append([]agent.Thought(nil), t.thoughts...)
}

func (t *turn) finish() Result {
	if len(t.thoughts) > 0 {
		t.obs.Thoughts(t.thoughtList(), true)
	}
	t.obs.ClearStatus()

	raw := t.final
	if t.streamed {
		raw = t.content.String()
	}
	text, cites := citation.Clean(raw, citation.ModeHTML, t.meta)
	return Result{
		Text:       text + citation.FormatReferencesHTML(cites),
		Raw:        raw,
		Citations:  cites,
		Metadata:   t.meta,
		Thoughts:   t.thoughts,
		Cards:      t.cards,
		Suggestion: t.suggestion,
	}
}
