// Package testsupport holds fixtures shared by package tests: an in-memory store and
// a recording connection.
package testsupport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatty/internal/db"
	"chatty/internal/models"
	"chatty/internal/realtime"
	"chatty/internal/repositories"
)

// StepClock returns a clock that advances by step on every call, so rows created
// one after another get strictly increasing timestamps.
func StepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

// NewStore opens a private in-memory SQLite store for one test.
func NewStore(t *testing.T, clock func() time.Time) *repositories.GormStore {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := db.OpenSQLite(dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repositories.NewGormStore(gdb, clock)
}

// SeededAt is the creation time of every user stored by SeedUsers.
var SeededAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SeedUsers stores one user per id with FullName equal to the id. Users carry an
// explicit CreatedAt so seeding leaves the store clock untouched.
func SeedUsers(t *testing.T, store repositories.UserWriter, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.SaveUser(context.Background(), models.User{
			ID:        id,
			FullName:  id,
			Email:     id + "@example.com",
			CreatedAt: SeededAt,
		}))
	}
}

// RecordingConn is a realtime.Conn that keeps every event it is sent.
type RecordingConn struct {
	mu     sync.Mutex
	events []realtime.Event
	closed bool
	fail   bool
}

func NewRecordingConn() *RecordingConn { return &RecordingConn{} }

// FailSends makes every later Send return an error.
func (c *RecordingConn) FailSends() {
	c.mu.Lock()
	c.fail = true
	c.mu.Unlock()
}

func (c *RecordingConn) Send(evt realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return realtime.ErrConnClosed
	}
	if c.fail {
		return errors.New("write failed")
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *RecordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns a copy of everything received so far.
func (c *RecordingConn) Events() []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Event(nil), c.events...)
}

// Kinds lists the kinds of the received events in order.
func (c *RecordingConn) Kinds() []realtime.EventKind {
	events := c.Events()
	kinds := make([]realtime.EventKind, 0, len(events))
	for _, evt := range events {
		kinds = append(kinds, evt.Kind)
	}
	return kinds
}

// OfKind returns the received events of one kind.
func (c *RecordingConn) OfKind(kind realtime.EventKind) []realtime.Event {
	var out []realtime.Event
	for _, evt := range c.Events() {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}
