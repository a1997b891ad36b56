package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatsync/internal/middleware"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/internal/timestamp"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

const (
	me     = "me"
	secret = "handler-secret"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	history   map[string][]model.RawMessage
	sendErr   error
	nextID    int64
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) History(_ context.Context, participantID string) ([]model.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.RawMessage(nil), f.history[participantID]...), nil
}

func (f *fakeTransport) Send(_ context.Context, participantID, content, imageRef string) (model.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return model.RawMessage{}, f.sendErr
	}
	f.nextID++
	return model.RawMessage{
		ID:         f.nextID,
		SenderID:   me,
		ReceiverID: participantID,
		Content:    content,
		ImageRef:   imageRef,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

type testServer struct {
	*httptest.Server
	inbox     *service.Inbox
	transport *fakeTransport
	token     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ft := &fakeTransport{
		connected: true,
		nextID:    100,
		history: map[string][]model.RawMessage{
			"7": {
				{ID: 2, SenderID: "7", ReceiverID: me, Content: "second", CreatedAt: time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)},
				{ID: 1, SenderID: "7", ReceiverID: me, Content: "first", CreatedAt: time.Now().Add(-2 * time.Minute).UTC().Format(time.RFC3339)},
			},
		},
	}

	log := logger.NewNop()
	inbox := service.NewInbox(model.UserContext{UserID: me}, ft, ft, nil, timestamp.NewNormalizer(log), log)
	t.Cleanup(inbox.Close)

	srv := httptest.NewServer(NewRouter(inbox, RouterConfig{
		JWTSecret:         secret,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		Transport:         ft,
	}, log))
	t.Cleanup(srv.Close)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   me,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	return &testServer{Server: srv, inbox: inbox, transport: ft, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(s.URL + "/ready")
	require.NoError(t, err)
	var ready map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "history-only", ready["mode"])

	s.transport.mu.Lock()
	s.transport.connected = false
	s.transport.mu.Unlock()

	resp, err = http.Get(s.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/api/v1/conversations")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConversationFlow(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/api/v1/conversations/7", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))

	resp, body = s.do(t, http.MethodPost, "/api/v1/conversations/7/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var summary model.ConversationSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.True(t, summary.HistoryLoaded)
	assert.Equal(t, "second", summary.Preview)
	assert.Equal(t, 2, summary.UnreadCount)

	resp, body = s.do(t, http.MethodGet, "/api/v1/conversations/7/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs model.ListMessagesResponse
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, "first", msgs.Messages[0].Content)
	assert.Equal(t, model.ShapeFirst, msgs.Messages[0].Hints.Shape)
	assert.True(t, msgs.Messages[1].Hints.ShowAvatar)
	assert.Equal(t, "1 minute ago", msgs.Messages[1].Label)

	resp, body = s.do(t, http.MethodPost, "/api/v1/conversations/7/read", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 0, summary.UnreadCount)
	assert.True(t, summary.Active)

	resp, body = s.do(t, http.MethodPost, "/api/v1/conversations/7/messages", model.SendMessageRequest{Content: "reply"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var sent model.Message
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, int64(101), sent.ID)

	resp, body = s.do(t, http.MethodPost, "/api/v1/conversations/7/messages/101/reactions", model.ToggleReactionRequest{Emoji: "👍"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var reaction model.ToggleReactionResponse
	require.NoError(t, json.Unmarshal(body, &reaction))
	assert.True(t, reaction.Added)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/conversations/7/messages/999/reactions", model.ToggleReactionRequest{Emoji: "👍"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list model.ListConversationsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "reply", list.Conversations[0].Preview)
	assert.Equal(t, "just now", list.Conversations[0].PreviewLabel)

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/conversations/7/read", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, s.inbox.Active())

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/conversations/7", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(t, http.MethodDelete, "/api/v1/conversations/7", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendValidationAndFailure(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/api/v1/conversations/7/messages", model.SendMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/conversations/a.b/messages", model.SendMessageRequest{Content: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/conversations/7/messages/abc/reactions", model.ToggleReactionRequest{Emoji: "👍"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	s.transport.mu.Lock()
	s.transport.sendErr = errors.New("upstream down")
	s.transport.mu.Unlock()

	resp, body := s.do(t, http.MethodPost, "/api/v1/conversations/7/messages", model.SendMessageRequest{Content: "lost"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode, string(body))

	conv, err := s.inbox.Get("7")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, model.DefaultPreview, conv.Preview)
}

func sseReader(t *testing.T, body io.Reader) func() (string, string) {
	reader := bufio.NewReader(body)
	return func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}
}

func openStream(t *testing.T, s *testServer) (*http.Response, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+"/api/v1/events?access_token="+s.token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, cancel
}

func TestEventStreamEndsOnClose(t *testing.T) {
	s := newTestServer(t)

	resp, cancel := openStream(t, s)
	defer cancel()
	defer resp.Body.Close()

	next := sseReader(t, resp.Body)
	event, _ := next()
	require.Equal(t, "snapshot", event)

	s.inbox.Close()

	event, data := next()
	assert.Equal(t, "error", event)
	assert.Contains(t, data, "inbox_closed")
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t)

	resp, cancel := openStream(t, s)
	defer cancel()
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	next := sseReader(t, resp.Body)

	event, _ := next()
	require.Equal(t, "snapshot", event)

	_, err := s.inbox.Merge(model.RawMessage{ID: 9, SenderID: "8", ReceiverID: me, Content: "hey", CreatedAt: time.Now().UTC().Format(time.RFC3339)})
	require.NoError(t, err)

	event, data := next()
	require.Equal(t, string(model.EventTypeConversationUpdated), event)

	var ev model.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "8", ev.ParticipantID)
	require.NotNil(t, ev.Conversation)
	assert.Equal(t, "hey", ev.Conversation.Preview)
	assert.Equal(t, 1, ev.Conversation.UnreadCount)
}
