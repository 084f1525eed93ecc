package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chatty/internal/observability"
	"chatty/internal/realtime"
)

// Registry is the part of realtime.Registry the transport needs.
type Registry interface {
	Register(userID string, conn realtime.Conn) (*realtime.Handle, error)
	Unregister(h *realtime.Handle) bool
}

type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type HandlerConfig struct {
	Registry       Registry
	Authenticator  Authenticator
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
	Logger         *zap.Logger
}

// Handler upgrades authenticated requests and registers the resulting connection
// until the peer goes away.
type Handler struct {
	registry     Registry
	auth         Authenticator
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration
	logger       *zap.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: cfg.Registry,
		auth:     cfg.Authenticator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		sendBuffer:   cfg.SendBuffer,
		pingInterval: cfg.PingInterval,
		logger:       logger,
	}
}

// originChecker allows same-origin requests, requests without an Origin header and
// the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

// Handle upgrades the connection and registers client.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chatty/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.auth.Authenticate(c.Request)
	if err != nil || userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	span.SetAttributes(attribute.String("user_id", userID))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := NewClient(conn, h.sendBuffer, h.pingInterval, h.logger)
	go client.writePump()

	handle, err := h.registry.Register(userID, client)
	if err != nil {
		h.logger.Warn("websocket register failed", zap.String("user_id", userID), zap.Error(err))
		_ = client.Close()
		return
	}

	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      handle.ID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.logger.Info("websocket connected", zap.String("user_id", userID), zap.String("conn_id", info.ConnID))
	observability.IncWSActive()
	publishLifecycle(ctx, info, "ws_connect", "")

	// The request context ends with Handle; lifecycle events outlive it.
	go h.serve(context.WithoutCancel(ctx), client, handle, info)
}

func (h *Handler) serve(ctx context.Context, client *Client, handle *realtime.Handle, info ConnInfo) {
	err := client.readLoop()

	var reason string
	if err != nil {
		reason = err.Error()
		select {
		case <-client.Done():
			// closed by the server side
		default:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishLifecycle(ctx, info, "ws_error", reason)
			}
		}
	}

	h.registry.Unregister(handle)
	_ = client.Close()
	observability.DecWSActive()
	publishLifecycle(ctx, info, "ws_disconnect", reason)
	h.logger.Info("websocket disconnected",
		zap.String("user_id", info.UserID),
		zap.String("conn_id", info.ConnID),
		zap.String("reason", reason))
}
