package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreytim/dreamytin-ai/internal/config"
	"github.com/andreytim/dreamytin-ai/pkg/agent"
	"github.com/andreytim/dreamytin-ai/pkg/commandqueue"
	"github.com/andreytim/dreamytin-ai/pkg/conversation"
	"github.com/andreytim/dreamytin-ai/pkg/provider"
	"github.com/andreytim/dreamytin-ai/pkg/toolexecutor"
)

// echoClient streams a fixed reply for every call.
type echoClient struct {
	reply string
}

func (c *echoClient) Name() string { return config.ProviderOpenAI }

func (c *echoClient) Stream(ctx context.Context, req provider.Request, emit func(provider.Fragment) error) error {
	for _, chunk := range []string{c.reply[:len(c.reply)/2], c.reply[len(c.reply)/2:]} {
		if err := emit(provider.Fragment{Content: chunk}); err != nil {
			return err
		}
	}
	return nil
}

func (c *echoClient) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	return &provider.Completion{Content: c.reply}, nil
}

type stubSource struct {
	client provider.Client
}

func (s stubSource) ClientFor(providerName string) (provider.Client, error) {
	return s.client, nil
}

func newTestServer(t *testing.T) (*Server, *conversation.Store) {
	t.Helper()

	store, err := conversation.New(t.TempDir())
	require.NoError(t, err)

	queue := commandqueue.New()
	t.Cleanup(func() { _ = queue.Close() })

	runner, err := agent.NewRunner(agent.Config{
		Store:       store,
		Executor:    toolexecutor.New(),
		Queue:       queue,
		Clients:     stubSource{client: &echoClient{reply: "Hello there"}},
		Logger:      zerolog.Nop(),
		Temperature: 0.7,
	})
	require.NoError(t, err)

	server, err := NewServer(Config{
		Host:         "127.0.0.1",
		Port:         8080,
		Runner:       runner,
		Store:        store,
		Providers:    map[string]bool{config.ProviderOpenAI: true},
		DefaultModel: "gpt-4.1",
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	return server, store
}

func TestNewServer(t *testing.T) {
	t.Run("should require runner and store", func(t *testing.T) {
		_, err := NewServer(Config{Port: 8080})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent runner is required")
	})

	t.Run("should reject invalid ports", func(t *testing.T) {
		_, err := NewServer(Config{Port: -1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid port")
	})
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestModelsEndpoint(t *testing.T) {
	t.Run("should only list models for configured providers", func(t *testing.T) {
		server, _ := newTestServer(t)
		ts := httptest.NewServer(server.Handler())
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/models")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body modelsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

		assert.Equal(t, "gpt-4.1", body.Default)
		require.NotEmpty(t, body.Models)
		for _, m := range body.Models {
			assert.Equal(t, config.ProviderOpenAI, m.Provider)
		}
	})
}

func TestConversationEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	t.Run("should create a conversation", func(t *testing.T) {
		payload, _ := json.Marshal(createConversationRequest{ID: "conv-1"})
		resp, err := http.Post(ts.URL+"/conversations", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var conv conversation.Conversation
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
		assert.Equal(t, "conv-1", conv.ID)
		assert.Equal(t, "gpt-4.1", conv.Model)
	})

	t.Run("should reject creation without an id", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/conversations", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should list conversations", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/conversations")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Conversations []conversation.IndexEntry `json:"conversations"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Conversations, 1)
		assert.Equal(t, "conv-1", body.Conversations[0].ID)
	})

	t.Run("should fetch a conversation by id", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/conversations/conv-1")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("should return 404 for a missing conversation", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/conversations/no-such")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("should delete a conversation once", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/conversations/conv-1", nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func dialSocket(t *testing.T, tsURL, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(tsURL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvents(t *testing.T, conn *websocket.Conn, until string) []agent.Event {
	t.Helper()
	events := []agent.Event{}
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var event agent.Event
		require.NoError(t, conn.ReadJSON(&event))
		events = append(events, event)
		if event.Type == until || event.Type == agent.EventError {
			return events
		}
	}
}

func TestWebSocket(t *testing.T) {
	t.Run("should stream a turn over the socket", func(t *testing.T) {
		server, store := newTestServer(t)
		ts := httptest.NewServer(server.Handler())
		defer ts.Close()

		conn := dialSocket(t, ts.URL, "session-ws")
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "message", Content: "hi"}))

		events := readEvents(t, conn, agent.EventStreamEnd)
		require.NotEmpty(t, events)

		content := ""
		for _, event := range events {
			if event.Type == agent.EventStream {
				content += event.Content
			}
			assert.Equal(t, "gpt-4.1", event.Model)
		}
		assert.Equal(t, "Hello there", content)
		assert.Equal(t, agent.EventStreamEnd, events[len(events)-1].Type)

		messages, err := store.Messages(context.Background(), "session-ws", 0)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "hi", messages[0].TextContent())
	})

	t.Run("should run back-to-back frames in arrival order", func(t *testing.T) {
		server, store := newTestServer(t)
		ts := httptest.NewServer(server.Handler())
		defer ts.Close()

		conn := dialSocket(t, ts.URL, "session-order")
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "message", Content: "first question"}))
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "message", Content: "second question"}))

		// Both turns complete, each with its own terminal event.
		ends := 0
		deadline := time.Now().Add(5 * time.Second)
		for ends < 2 {
			require.NoError(t, conn.SetReadDeadline(deadline))
			var event agent.Event
			require.NoError(t, conn.ReadJSON(&event))
			require.NotEqual(t, agent.EventError, event.Type)
			if event.Type == agent.EventStreamEnd {
				ends++
			}
		}

		messages, err := store.Messages(context.Background(), "session-order", 0)
		require.NoError(t, err)
		require.Len(t, messages, 4)
		assert.Equal(t, "user", messages[0].Role)
		assert.Equal(t, "first question", messages[0].TextContent())
		assert.Equal(t, "assistant", messages[1].Role)
		assert.Equal(t, "user", messages[2].Role)
		assert.Equal(t, "second question", messages[2].TextContent())
		assert.Equal(t, "assistant", messages[3].Role)
	})

	t.Run("should answer an unknown frame type with an error event", func(t *testing.T) {
		server, _ := newTestServer(t)
		ts := httptest.NewServer(server.Handler())
		defer ts.Close()

		conn := dialSocket(t, ts.URL, "session-bad")
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "bogus"}))

		events := readEvents(t, conn, agent.EventError)
		require.Len(t, events, 1)
		assert.Contains(t, events[0].Error, "unknown message type")
	})

	t.Run("should require message content", func(t *testing.T) {
		server, _ := newTestServer(t)
		ts := httptest.NewServer(server.Handler())
		defer ts.Close()

		conn := dialSocket(t, ts.URL, "session-empty")
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "message"}))

		events := readEvents(t, conn, agent.EventError)
		require.Len(t, events, 1)
		assert.Contains(t, events[0].Error, "content is required")
	})
}
