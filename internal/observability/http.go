package observability

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ClientMeta identifies the device behind a request for lifecycle events.
type ClientMeta struct {
	RequestID string
	DeviceID  string
	IP        string
}

func ClientMetaFromRequest(r *http.Request) ClientMeta {
	return ClientMeta{
		RequestID: RequestIDFromRequest(r),
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        IPFromRequest(r),
	}
}

// RequestIDFromRequest returns the caller's X-Request-Id or a fresh one.
func RequestIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func IPFromRequest(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

type requestIDKey struct{}

// WithRequestID stores the request id for code below the HTTP layer.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
