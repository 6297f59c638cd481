package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	apiVersion = "2022-03-01-preview"

	conversationIDHeader = "x-ms-conversationid"
)

var (
	ErrNoConversation = errors.New("no conversation started")
	ErrUnauthorized   = errors.New("unauthorized")
)

// EnvironmentURL builds the Copilot Studio endpoint for an agent from its
// environment ID and schema name.
func EnvironmentURL(environmentID, agentIdentifier string) (string, error) {
	id := strings.ToLower(strings.ReplaceAll(environmentID, "-", ""))
	if len(id) < 3 {
		return "", fmt.Errorf("invalid environment id %q", environmentID)
	}
	if agentIdentifier == "" {
		return "", errors.New("agent identifier is required")
	}
	prefix, suffix := id[:len(id)-2], id[len(id)-2:]
	return fmt.Sprintf("https://%s.%s.environment.api.powerplatform.com/copilotstudio/dataverse-backed/authenticated/bots/%s",
		prefix, suffix, url.PathEscape(agentIdentifier)), nil
}

// Options configures an HTTPClient.
type Options struct {
	// BaseURL is the agent endpoint, normally from EnvironmentURL.
	BaseURL    string
	Tokens     oauth2.TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTPClient talks to the Copilot Studio conversations API over SSE.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	logger     *zap.Logger

	mu             sync.Mutex
	conversationID string
}

func NewHTTPClient(opts Options) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		tokens:     opts.Tokens,
		logger:     opts.Logger,
	}
	// No client timeout: turns are bounded by the caller's context.
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// ConversationID returns the current conversation, or "" before StartConversation.
func (c *HTTPClient) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *HTTPClient) setHeaders(req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.tokens == nil {
		return nil
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("getting access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return nil
}

// ─── Conversation ───

type startRequest struct {
	EmitStartConversationEvent bool `json:"emitStartConversationEvent"`
}

type executeTurnRequest struct {
	Activity *Activity `json:"activity"`
}

func (c *HTTPClient) StartConversation(ctx context.Context) (string, error) {
	resp, err := c.post(ctx, "/conversations", startRequest{EmitStartConversationEvent: true})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	convID := resp.Header.Get(conversationIDHeader)
	var greeting []string
	err = c.readActivities(resp.Body, func(a *Activity) bool {
		if convID == "" && a.Conversation != nil {
			convID = a.Conversation.ID
		}
		if a.Type == "message" && a.Text != "" {
			greeting = append(greeting, a.Text)
		}
		return true
	})
	if err != nil {
		return "", fmt.Errorf("reading conversation start: %w", err)
	}
	if convID == "" {
		return "", errors.New("server did not return a conversation id")
	}

	c.mu.Lock()
	c.conversationID = convID
	c.mu.Unlock()
	c.logger.Info("conversation started", zap.String("conversation_id", convID))

	return strings.Join(greeting, "\n\n"), nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, text string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		convID := c.ConversationID()
		if convID == "" {
			yield(nil, ErrNoConversation)
			return
		}

		req := executeTurnRequest{Activity: &Activity{
			Type:         "message",
			ID:           uuid.NewString(),
			Text:         text,
			TextFormat:   "plain",
			Conversation: &ConversationRef{ID: convID},
			From:         &ChannelAccount{Role: "user"},
		}}
		resp, err := c.post(ctx, "/conversations/"+url.PathEscape(convID), req)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		dec := NewDecoder()
		stopped := false
		err = c.readActivities(resp.Body, func(a *Activity) bool {
			for _, ev := range dec.Decode(a) {
				if !yield(ev, nil) {
					stopped = true
					return false
				}
			}
			return true
		})
		if err != nil && !stopped {
			yield(nil, fmt.Errorf("reading response stream: %w", err))
		}
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path+"?api-version="+apiVersion, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if err := c.setHeaders(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: server returned %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}
	return resp, nil
}

// ─── SSE ───

// readActivities parses an SSE stream of "activity" events and calls fn for
// each decoded activity until fn returns false or the stream ends.
// Bare JSON lines are accepted too. Unparseable payloads are skipped.
func (c *HTTPClient) readActivities(r io.Reader, fn func(*Activity) bool) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer for large activities (adaptive cards)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var (
		event string
		data  strings.Builder
	)
	dispatch := func() bool {
		defer func() {
			event = ""
			data.Reset()
		}()
		if event == "end" {
			return false
		}
		if data.Len() == 0 {
			return true
		}
		return c.emit(data.String(), fn)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !dispatch() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(strings.TrimSpace(line), "{"):
			if !c.emit(line, fn) {
				return nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	dispatch()
	return nil
}

func (c *HTTPClient) emit(payload string, fn func(*Activity) bool) bool {
	var a Activity
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		c.logger.Debug("skipping unparseable activity", zap.Error(err))
		return true
	}
	return fn(&a)
}
