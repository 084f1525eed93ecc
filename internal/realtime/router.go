package realtime

import (
	"go.uber.org/zap"

	"chatty/internal/observability"
)

// Router fans server events out to live connections. Events for users without a
// live connection are dropped; there is no offline buffer.
type Router struct {
	registry *Registry
	logger   *zap.Logger
}

// NewRouter builds a Router on top of registry.
func NewRouter(registry *Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{registry: registry, logger: logger}
}

// Emit sends an independent copy of the event to every live connection of userID
// and returns how many accepted it.
func (r *Router) Emit(userID string, kind EventKind, payload any) int {
	return r.deliver(r.registry.ConnectionsFor(userID), Event{Kind: kind, Payload: payload})
}

// Broadcast sends the event to every live connection except those of exceptUserID.
func (r *Router) Broadcast(kind EventKind, payload any, exceptUserID string) int {
	return r.deliver(r.registry.ConnectionsExcept(exceptUserID), Event{Kind: kind, Payload: payload})
}

// deliver treats a failed push as a disconnect of that one connection.
func (r *Router) deliver(handles []*Handle, evt Event) int {
	sent := 0
	for _, h := range handles {
		if err := h.Send(evt); err != nil {
			r.logger.Warn("event push failed, dropping connection",
				zap.String("event", string(evt.Kind)),
				zap.String("user_id", h.UserID()),
				zap.String("conn_id", h.ID()),
				zap.Error(err))
			observability.IncFanoutFailure(string(evt.Kind))
			r.registry.Unregister(h)
			continue
		}
		sent++
	}
	observability.AddEventsEmitted(string(evt.Kind), sent)
	return sent
}
