package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatty/internal/delivery"
	"chatty/internal/middleware"
	"chatty/internal/mocks"
	"chatty/internal/models"
	"chatty/internal/realtime"
	"chatty/internal/repositories"
	"chatty/internal/roster"
)

type handlerMocks struct {
	messenger *mocks.MessengerMock
	roster    *mocks.RosterMock
	presence  *mocks.PresenceMock
}

func setupMessageRouter(t *testing.T) (*gin.Engine, handlerMocks) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := handlerMocks{
		messenger: new(mocks.MessengerMock),
		roster:    new(mocks.RosterMock),
		presence:  new(mocks.PresenceMock),
	}
	handler := NewMessageHandler(m.messenger, m.roster, m.presence, nil)

	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, "alice")
		c.Next()
	})
	handler.Register(api)
	return r, m
}

func serve(r *gin.Engine, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListRoster(t *testing.T) {
	r, m := setupMessageRouter(t)
	last := &models.Message{ID: "m1", SenderID: "bob", ReceiverID: "alice", Text: "hi"}
	m.roster.On("Build", mock.Anything, "alice").Return([]roster.Entry{
		{User: models.User{ID: "bob", FullName: "Bob"}, LastMessage: last, UnreadCount: 2, Online: true},
	}, nil).Once()

	rec := serve(r, http.MethodGet, "/api/messages/users", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "bob", resp[0]["id"])
	assert.Equal(t, float64(2), resp[0]["unreadCount"])
	assert.Equal(t, true, resp[0]["online"])
	assert.Equal(t, "hi", resp[0]["lastMessage"].(map[string]any)["text"])
	m.roster.AssertExpectations(t)
}

func TestListRosterError(t *testing.T) {
	r, m := setupMessageRouter(t)
	m.roster.On("Build", mock.Anything, "alice").Return(nil, assert.AnError).Once()

	rec := serve(r, http.MethodGet, "/api/messages/users", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetConversation(t *testing.T) {
	r, m := setupMessageRouter(t)
	m.messenger.On("Conversation", mock.Anything, "alice", "bob").Return([]models.Message{
		{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hi", CreatedAt: time.Now()},
	}, nil).Once()

	rec := serve(r, http.MethodGet, "/api/messages/bob", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "m1", resp[0].ID)
	m.messenger.AssertExpectations(t)
}

func TestSendMessage(t *testing.T) {
	r, m := setupMessageRouter(t)
	m.messenger.On("Send", mock.Anything, delivery.SendRequest{SenderID: "alice", ReceiverID: "bob", Text: "hi"}).
		Return(models.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hi", Delivered: true}, nil).Once()

	rec := serve(r, http.MethodPost, "/api/messages/send/bob", `{"text":"hi"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "m1", resp["id"])
	assert.Equal(t, "alice", resp["senderId"])
	assert.Equal(t, true, resp["delivered"])
	m.messenger.AssertExpectations(t)
}

func TestSendMessageErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{delivery.ErrEmptyMessage, http.StatusBadRequest},
		{delivery.ErrSelfMessage, http.StatusBadRequest},
		{fmt.Errorf("lookup receiver: %w", repositories.ErrUserNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: quota", delivery.ErrImageUpload), http.StatusBadGateway},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			r, m := setupMessageRouter(t)
			m.messenger.On("Send", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			rec := serve(r, http.MethodPost, "/api/messages/send/bob", `{"text":"hi"}`)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestSendMessageBadBody(t *testing.T) {
	r, m := setupMessageRouter(t)
	rec := serve(r, http.MethodPost, "/api/messages/send/bob", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	m.messenger.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestMarkRead(t *testing.T) {
	r, m := setupMessageRouter(t)
	m.messenger.On("MarkRead", mock.Anything, "alice", "bob").Return(int64(3), nil).Once()

	rec := serve(r, http.MethodPost, "/api/messages/mark-read/bob", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"updated":3}`, rec.Body.String())
	m.messenger.AssertExpectations(t)
}

func TestGetPresence(t *testing.T) {
	r, m := setupMessageRouter(t)
	at := time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)
	m.presence.On("PresenceOf", mock.Anything, "bob").Return(realtime.Presence{UserID: "bob", LastSeenAt: &at}, nil).Once()

	rec := serve(r, http.MethodGet, "/api/presence/bob", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"bob","online":false,"lastSeen":"2024-06-01T18:30:00Z"}`, rec.Body.String())
}

func TestGetPresenceUnknownUser(t *testing.T) {
	r, m := setupMessageRouter(t)
	m.presence.On("PresenceOf", mock.Anything, "ghost").Return(nil, repositories.ErrUserNotFound).Once()

	rec := serve(r, http.MethodGet, "/api/presence/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
