package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type stubPublisher struct {
	err   error
	calls int
	key   string
}

func (p *stubPublisher) Publish(_ context.Context, routingKey string, _ any, _ map[string]string) error {
	p.calls++
	p.key = routingKey
	return p.err
}

func TestPublishEventCountsFailures(t *testing.T) {
	t.Cleanup(func() { SetPublisher(nil) })
	assert.NoError(t, PublishEvent(context.Background(), WSRoutingKey, nil, nil))

	stub := &stubPublisher{err: errors.New("down")}
	SetPublisher(stub)
	before := testutil.ToFloat64(amqpPublishErrorsTotal)
	assert.Error(t, PublishEvent(context.Background(), WSRoutingKey, EventEnvelope{}, BuildHeaders("r", "t")))
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, WSRoutingKey, stub.key)
	assert.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))
}

func TestBuildHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
	assert.Empty(t, BuildHeaders("", ""))
}

func TestClientMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Device-Id", "phone")
	req.Header.Set("X-Request-Id", "req-1")
	meta := ClientMetaFromRequest(req)
	assert.Equal(t, ClientMeta{RequestID: "req-1", DeviceID: "phone", IP: "10.0.0.1"}, meta)

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", IPFromRequest(req))

	req.Header.Del("X-Request-Id")
	assert.NotEmpty(t, RequestIDFromRequest(req))
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	assert.Equal(t, "req-9", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/ping/:id", "204"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping/1", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/ping/:id", "204")))
}
