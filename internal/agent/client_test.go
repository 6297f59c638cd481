package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func sse(activities ...string) string {
	var b strings.Builder
	for _, a := range activities {
		fmt.Fprintf(&b, "event: activity\ndata: %s\n\n", a)
	}
	b.WriteString("event: end\ndata: end\n\n")
	return b.String()
}

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Options{
		BaseURL: srv.URL + "/bots/agent",
		Tokens:  oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
	})
}

func TestEnvironmentURL(t *testing.T) {
	got, err := EnvironmentURL("Default-1234abcd-56EF", "cr3b1_agent")
	require.NoError(t, err)
	assert.Equal(t,
		"https://default1234abcd56.ef.environment.api.powerplatform.com/copilotstudio/dataverse-backed/authenticated/bots/cr3b1_agent",
		got)

	_, err = EnvironmentURL("ab", "x")
	assert.Error(t, err)
	_, err = EnvironmentURL("abcdef", "")
	assert.Error(t, err)
}

func TestStartConversation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bots/agent/conversations", r.URL.Path)
		assert.Equal(t, apiVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]bool
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body["emitStartConversationEvent"])

		w.Header().Set("x-ms-conversationid", "conv-1")
		io.WriteString(w, sse(
			`{"type":"message","text":"Hi, I'm your agent."}`,
			`{"type":"message","text":"Ask me anything."}`,
		))
	})

	greeting, err := c.StartConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi, I'm your agent.\n\nAsk me anything.", greeting)
	assert.Equal(t, "conv-1", c.ConversationID())
}

func TestStartConversation_IDFromActivity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sse(`{"type":"event","conversation":{"id":"conv-2"}}`))
	})

	_, err := c.StartConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conv-2", c.ConversationID())
}

func TestStartConversation_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.StartConversation(context.Background())
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bots/agent/conversations" {
			w.Header().Set("x-ms-conversationid", "conv-1")
			io.WriteString(w, sse())
			return
		}
		assert.Equal(t, "/bots/agent/conversations/conv-1", r.URL.Path)

		var req executeTurnRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "message", req.Activity.Type)
		assert.Equal(t, "what is go?", req.Activity.Text)

		io.WriteString(w, ": keep-alive\n\n")
		io.WriteString(w, sse(
			`{"type":"typing","text":"Searching","channelData":{"streamType":"informative"}}`,
			`{"type":"typing","text":"Go is","channelData":{"streamType":"streaming","streamId":"1"}}`,
			`not json`,
			`{"type":"typing","text":"Go is great","channelData":{"streamType":"streaming","streamId":"1"}}`,
			`{"type":"message","text":"Go is great"}`,
		))
	})
	require.NoError(t, mustStart(c))

	var kinds []string
	var text string
	for ev, err := range c.SendMessage(context.Background(), "what is go?") {
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind())
		if ce, ok := ev.(ContentEvent); ok {
			text += ce.Text
		}
	}
	assert.Equal(t, []string{KindStatus, KindContent, KindContent, KindFinalContent}, kinds)
	assert.Equal(t, "Go is great", text)
}

func TestSendMessage_StopEarly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-conversationid", "conv-1")
		io.WriteString(w, sse(
			`{"type":"typing","text":"a","channelData":{"streamType":"streaming"}}`,
			`{"type":"typing","text":"ab","channelData":{"streamType":"streaming"}}`,
		))
	})
	require.NoError(t, mustStart(c))

	n := 0
	for range c.SendMessage(context.Background(), "x") {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestSendMessage_NoConversation(t *testing.T) {
	c := NewHTTPClient(Options{BaseURL: "http://127.0.0.1:0"})
	for _, err := range c.SendMessage(context.Background(), "hi") {
		assert.ErrorIs(t, err, ErrNoConversation)
	}
}

func TestSendMessage_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bots/agent/conversations" {
			w.Header().Set("x-ms-conversationid", "conv-1")
			io.WriteString(w, sse())
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	require.NoError(t, mustStart(c))

	var gotErr error
	for _, err := range c.SendMessage(context.Background(), "hi") {
		gotErr = err
	}
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "server returned 500: boom")
}

func mustStart(c *HTTPClient) error {
	_, err := c.StartConversation(context.Background())
	return err
}
