package ws

import (
	"context"
	"time"

	"chatty/internal/observability"
)

type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// publishLifecycle mirrors a connection lifecycle event to the broker and counts it.
func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, observability.WSRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.ConnectionPayload{
			ConnID:     info.ConnID,
			UserID:     info.UserID,
			DeviceID:   info.DeviceID,
			IP:         info.IP,
			Event:      event,
			DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
			Reason:     reason,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
