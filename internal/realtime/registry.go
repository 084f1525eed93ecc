package realtime

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRegistryClosed = errors.New("realtime: registry closed")
	ErrInvalidConn    = errors.New("realtime: user id and connection are required")
)

// Handle is one registered connection. Callers get handles from ConnectionsFor and
// must not keep them past a single dispatch.
type Handle struct {
	id     string
	userID string
	conn   Conn
}

// ID returns the connection identifier assigned at registration.
func (h *Handle) ID() string { return h.id }

// UserID returns the owner of the connection.
func (h *Handle) UserID() string { return h.userID }

// Send queues an event on the underlying connection.
func (h *Handle) Send(evt Event) error { return h.conn.Send(evt) }

// Transition is a change of a user's online state: the first connection opened or
// the last one closed.
type Transition struct {
	UserID string
	Online bool
	At     time.Time
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Clock  func() time.Time
	Logger *zap.Logger
	// AnnounceOnlineUsers makes every new connection receive an onlineUsers event
	// before any other event.
	AnnounceOnlineUsers bool
}

// Registry maps users to their live connections and reports online/offline
// transitions, in order, to its observers.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]*Handle
	lastSeen map[string]time.Time
	closed   bool
	announce bool

	clock  func() time.Time
	logger *zap.Logger

	qmu       sync.Mutex
	pending   []Transition
	observers []func(Transition)
	wake      chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewRegistry builds an empty registry. Transitions are only delivered while Run is
// executing.
func NewRegistry(cfg RegistryConfig) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byUser:   make(map[string]map[string]*Handle),
		lastSeen: make(map[string]time.Time),
		announce: cfg.AnnounceOnlineUsers,
		clock:    clock,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// OnTransition adds an observer. Observers run one at a time on the Run goroutine.
func (r *Registry) OnTransition(fn func(Transition)) {
	r.qmu.Lock()
	r.observers = append(r.observers, fn)
	r.qmu.Unlock()
}

// Register adds a live connection for userID. The first connection of a user
// produces an online transition.
func (r *Registry) Register(userID string, conn Conn) (*Handle, error) {
	if userID == "" || conn == nil {
		return nil, ErrInvalidConn
	}
	h := &Handle{id: uuid.NewString(), userID: userID, conn: conn}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]*Handle)
		r.byUser[userID] = conns
	}
	conns[h.id] = h
	if len(conns) == 1 {
		r.enqueue(Transition{UserID: userID, Online: true, At: r.clock()})
	}
	if r.announce {
		// Sent under the lock so no broadcast can overtake the snapshot.
		snapshot := Event{Kind: EventOnlineUsers, Payload: OnlineUsersPayload{UserIDs: r.onlineUsersLocked()}}
		if err := conn.Send(snapshot); err != nil {
			r.logger.Debug("online snapshot push failed", zap.String("conn_id", h.id), zap.Error(err))
		}
	}
	return h, nil
}

// Unregister removes the connection and closes it. It reports false when the handle
// was already gone, so a disconnect is processed once however many paths observe it.
func (r *Registry) Unregister(h *Handle) bool {
	if h == nil {
		return false
	}

	r.mu.Lock()
	conns := r.byUser[h.userID]
	if conns[h.id] != h {
		r.mu.Unlock()
		return false
	}
	delete(conns, h.id)
	if len(conns) == 0 {
		delete(r.byUser, h.userID)
		at := r.clock()
		r.lastSeen[h.userID] = at
		r.enqueue(Transition{UserID: h.userID, Online: false, At: at})
	}
	r.mu.Unlock()

	if err := h.conn.Close(); err != nil {
		r.logger.Debug("connection close failed", zap.String("conn_id", h.id), zap.Error(err))
	}
	return true
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID string) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Handle, 0, len(conns))
	for _, h := range conns {
		out = append(out, h)
	}
	return out
}

// ConnectionsExcept returns a snapshot of every live connection not owned by userID.
func (r *Registry) ConnectionsExcept(userID string) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Handle
	for owner, conns := range r.byUser {
		if owner == userID {
			continue
		}
		for _, h := range conns {
			out = append(out, h)
		}
	}
	return out
}

// Count returns the number of open connections held by userID.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// IsOnline reports whether userID holds at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	return r.Count(userID) > 0
}

// LastSeen returns when userID's last connection closed during this process lifetime.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.lastSeen[userID]
	return at, ok
}

// OnlineUsers lists the users with at least one live connection, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineUsersLocked()
}

func (r *Registry) onlineUsersLocked() []string {
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// RegistryStats is a point-in-time size of the registry.
type RegistryStats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// Stats returns the current number of online users and open connections.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := RegistryStats{Users: len(r.byUser)}
	for _, conns := range r.byUser {
		stats.Connections += len(conns)
	}
	return stats
}

// Run delivers transitions to observers until ctx is cancelled or Close is called,
// then flushes whatever is still queued.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-r.wake:
			r.dispatch()
		case <-r.stop:
			r.dispatch()
			return
		case <-ctx.Done():
			r.dispatch()
			return
		}
	}
}

// Close rejects further registrations, closes every live connection and records
// each remaining user as offline.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	at := r.clock()
	var handles []*Handle
	for userID, conns := range r.byUser {
		for _, h := range conns {
			handles = append(handles, h)
		}
		r.lastSeen[userID] = at
		r.enqueue(Transition{UserID: userID, Online: false, At: at})
	}
	r.byUser = make(map[string]map[string]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		_ = h.conn.Close()
	}
	r.stopOnce.Do(func() { close(r.stop) })
}

// enqueue must be called with r.mu held so queue order matches mutation order.
func (r *Registry) enqueue(t Transition) {
	r.qmu.Lock()
	r.pending = append(r.pending, t)
	r.qmu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Registry) dispatch() {
	for {
		r.qmu.Lock()
		batch := r.pending
		r.pending = nil
		observers := slices.Clone(r.observers)
		r.qmu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, t := range batch {
			for _, fn := range observers {
				fn(t)
			}
		}
	}
}
