package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chatty/internal/models"
	"chatty/internal/observability"
)

const defaultPersistTimeout = 5 * time.Second

// LastSeenStore persists the single timestamp presence keeps across restarts.
type LastSeenStore interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Presence is a user's derived online state.
type Presence struct {
	UserID     string     `json:"userId"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"lastSeen"`
}

// PresenceTracker derives presence from the registry and announces transitions to
// every connected user.
type PresenceTracker struct {
	registry *Registry
	router   *Router
	store    LastSeenStore
	logger   *zap.Logger
	timeout  time.Duration
}

// NewPresenceTracker wires a tracker to the registry's transition stream. store may
// be nil, in which case last-seen only lives in memory.
func NewPresenceTracker(registry *Registry, router *Router, store LastSeenStore, logger *zap.Logger) *PresenceTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &PresenceTracker{
		registry: registry,
		router:   router,
		store:    store,
		logger:   logger,
		timeout:  defaultPersistTimeout,
	}
	registry.OnTransition(t.handleTransition)
	return t
}

func (t *PresenceTracker) handleTransition(tr Transition) {
	observability.SetOnlineUsers(t.registry.Stats().Users)

	if tr.Online {
		t.logger.Debug("user online", zap.String("user_id", tr.UserID))
		t.router.Broadcast(EventUserOnline, UserOnlinePayload{UserID: tr.UserID}, tr.UserID)
		return
	}

	t.logger.Debug("user offline", zap.String("user_id", tr.UserID), zap.Time("at", tr.At))
	if t.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		if err := t.store.UpdateLastSeen(ctx, tr.UserID, tr.At); err != nil {
			t.logger.Warn("persist last seen failed", zap.String("user_id", tr.UserID), zap.Error(err))
		}
		cancel()
	}
	t.router.Broadcast(EventUserOffline, UserOfflinePayload{UserID: tr.UserID, At: tr.At}, tr.UserID)
}

// PresenceOf returns the presence of userID, reading the stored last-seen when the
// user has not disconnected during this process lifetime.
func (t *PresenceTracker) PresenceOf(ctx context.Context, userID string) (Presence, error) {
	if t.store == nil {
		return t.Resolve(models.User{ID: userID}), nil
	}
	user, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return Presence{}, err
	}
	return t.Resolve(user), nil
}

// Resolve combines a directory entry with live registry state.
func (t *PresenceTracker) Resolve(user models.User) Presence {
	p := Presence{UserID: user.ID, Online: t.registry.IsOnline(user.ID), LastSeenAt: user.LastSeen}
	if at, ok := t.registry.LastSeen(user.ID); ok {
		if p.LastSeenAt == nil || at.After(*p.LastSeenAt) {
			seen := at
			p.LastSeenAt = &seen
		}
	}
	return p
}
