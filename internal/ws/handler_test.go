package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatty/internal/realtime"
)

type tokenAuth struct{}

// Authenticate treats the token query parameter as the user id.
func (tokenAuth) Authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return "", errors.New("missing token")
	}
	return token, nil
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type testServer struct {
	registry *realtime.Registry
	router   *realtime.Router
	url      string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := realtime.NewRegistry(realtime.RegistryConfig{AnnounceOnlineUsers: true})
	router := realtime.NewRouter(registry, nil)
	realtime.NewPresenceTracker(registry, router, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		registry.Run(ctx)
		close(done)
	}()

	handler := NewHandler(HandlerConfig{
		Registry:      registry,
		Authenticator: tokenAuth{},
		PingInterval:  time.Second,
	})
	engine := gin.New()
	engine.GET("/ws", handler.Handle)
	srv := httptest.NewServer(engine)

	t.Cleanup(func() {
		registry.Close()
		cancel()
		<-done
		srv.Close()
	})
	return &testServer{
		registry: registry,
		router:   router,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (s *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.url+"?token="+userID, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt wireEvent
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestHandleRejectsUnauthenticated(t *testing.T) {
	srv := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(srv.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleSendsSnapshotAndPresence(t *testing.T) {
	srv := newTestServer(t)

	alice := srv.dial(t, "alice")
	evt := readEvent(t, alice)
	assert.Equal(t, string(realtime.EventOnlineUsers), evt.Event)
	assert.JSONEq(t, `{"userIds":["alice"]}`, string(evt.Data))

	bob := srv.dial(t, "bob")
	evt = readEvent(t, bob)
	assert.Equal(t, string(realtime.EventOnlineUsers), evt.Event)
	assert.JSONEq(t, `{"userIds":["alice","bob"]}`, string(evt.Data))

	evt = readEvent(t, alice)
	assert.Equal(t, string(realtime.EventUserOnline), evt.Event)
	assert.JSONEq(t, `{"userId":"bob"}`, string(evt.Data))

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	evt = readEvent(t, alice)
	assert.Equal(t, string(realtime.EventUserOffline), evt.Event)
	assert.Contains(t, string(evt.Data), `"userId":"bob"`)
	assert.Eventually(t, func() bool { return !srv.registry.IsOnline("bob") }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlePreservesEventOrder(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "alice")
	readEvent(t, conn)

	for i := 0; i < 20; i++ {
		sent := srv.router.Emit("alice", realtime.EventMessageDelivered, realtime.MessageDeliveredPayload{MessageID: fmt.Sprint(i)})
		require.Equal(t, 1, sent)
	}
	for i := 0; i < 20; i++ {
		evt := readEvent(t, conn)
		assert.JSONEq(t, fmt.Sprintf(`{"messageId":"%d"}`, i), string(evt.Data))
	}
}

func TestHandleMultipleDevices(t *testing.T) {
	srv := newTestServer(t)
	phone := srv.dial(t, "alice")
	readEvent(t, phone)
	laptop := srv.dial(t, "alice")
	readEvent(t, laptop)

	require.Eventually(t, func() bool { return srv.registry.Count("alice") == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, srv.router.Emit("alice", realtime.EventMessagesSeen, realtime.MessagesSeenPayload{ByUserID: "bob"}))
	for _, conn := range []*websocket.Conn{phone, laptop} {
		evt := readEvent(t, conn)
		assert.Equal(t, string(realtime.EventMessagesSeen), evt.Event)
	}

	require.NoError(t, phone.Close())
	require.Eventually(t, func() bool { return srv.registry.Count("alice") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, srv.registry.IsOnline("alice"))
}

func TestServerCloseDisconnectsClient(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "alice")
	readEvent(t, conn)

	srv.registry.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodGet, "http://api.local/ws", nil)

	assert.True(t, check(req))
	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://api.local")
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}

func TestClientSendAfterClose(t *testing.T) {
	client := NewClient(nil, 1, time.Second, nil)
	require.NoError(t, client.Send(realtime.Event{Kind: realtime.EventUserOnline}))
	assert.ErrorIs(t, client.Send(realtime.Event{Kind: realtime.EventUserOnline}), ErrSendBufferFull)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Send(realtime.Event{Kind: realtime.EventUserOnline}), realtime.ErrConnClosed)
}
