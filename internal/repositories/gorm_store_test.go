package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatty/internal/models"
	"chatty/internal/repositories"
	"chatty/internal/testsupport"
)

var start = time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *repositories.GormStore {
	t.Helper()
	store := testsupport.NewStore(t, testsupport.StepClock(start, time.Second))
	testsupport.SeedUsers(t, store, "alice", "bob", "carol")
	return store
}

func create(t *testing.T, store *repositories.GormStore, from, to, text string) models.Message {
	t.Helper()
	msg, err := store.CreateMessage(context.Background(), models.NewMessage{SenderID: from, ReceiverID: to, Text: text})
	require.NoError(t, err)
	return msg
}

func TestCreateMessageAssignsIdentity(t *testing.T) {
	store := newStore(t)
	msg, err := store.CreateMessage(context.Background(), models.NewMessage{
		SenderID: "alice", ReceiverID: "bob", Text: "hi", ImageURL: "/uploads/x.png", Delivered: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.True(t, start.Equal(msg.CreatedAt), "created at %s", msg.CreatedAt)
	assert.True(t, msg.Delivered)
	assert.False(t, msg.Read)
	assert.False(t, msg.Seen)
	assert.Equal(t, "/uploads/x.png", msg.ImageURL)
}

func TestFindConversationIsChronologicalAndScoped(t *testing.T) {
	store := newStore(t)
	first := create(t, store, "alice", "bob", "1")
	create(t, store, "alice", "carol", "other")
	second := create(t, store, "bob", "alice", "2")

	conv, err := store.FindConversation(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, first.ID, conv[0].ID)
	assert.Equal(t, second.ID, conv[1].ID)
	for _, msg := range conv {
		assert.ElementsMatch(t, []string{"alice", "bob"}, []string{msg.SenderID, msg.ReceiverID})
	}
}

func TestLatestBetween(t *testing.T) {
	store := newStore(t)
	latest, err := store.LatestBetween(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, latest)

	create(t, store, "alice", "bob", "1")
	want := create(t, store, "bob", "alice", "2")
	create(t, store, "alice", "carol", "3")

	latest, err = store.LatestBetween(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, want.ID, latest.ID)
}

func TestBulkMarkReadTouchesExactlyTheUnreadFromPeer(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	create(t, store, "alice", "bob", "1")
	create(t, store, "alice", "bob", "2")
	create(t, store, "bob", "alice", "mine")
	create(t, store, "carol", "bob", "other")

	n, err := store.BulkMarkRead(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.BulkMarkRead(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Zero(t, n)

	conv, err := store.FindConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	for _, msg := range conv {
		fromAlice := msg.SenderID == "alice"
		assert.Equal(t, fromAlice, msg.Read, msg.Text)
		assert.Equal(t, fromAlice, msg.Seen, msg.Text)
	}

	unread, err := store.CountUnread(ctx, "carol", "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestReadAlwaysImpliesSeenUnderConcurrency(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.CreateMessage(ctx, models.NewMessage{SenderID: "alice", ReceiverID: "bob", Text: "x", Delivered: i%2 == 0})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := store.BulkMarkRead(ctx, "alice", "bob")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	conv, err := store.FindConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, conv, 20)
	for _, msg := range conv {
		assert.Equal(t, msg.Read, msg.Seen)
	}
}

func TestUsers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
	assert.ErrorIs(t, store.UpdateLastSeen(ctx, "ghost", start), repositories.ErrUserNotFound)

	peers, err := store.ListUsersExcept(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "bob", peers[0].ID)
	assert.Equal(t, "carol", peers[1].ID)

	require.NoError(t, store.UpdateLastSeen(ctx, "bob", start))
	bob, err := store.GetUser(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, bob.LastSeen)
	assert.True(t, start.Equal(*bob.LastSeen))

	require.NoError(t, store.SaveUser(ctx, models.User{ID: "bob", FullName: "Bobby", Email: "bob@example.com"}))
	bob, err = store.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bobby", bob.FullName)
	require.NotNil(t, bob.LastSeen)
}

func TestSaveUserStampsCreatedAtOnlyWhenMissing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	alice, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, testsupport.SeededAt.Equal(alice.CreatedAt))

	require.NoError(t, store.SaveUser(ctx, models.User{ID: "dave", FullName: "Dave", Email: "dave@example.com"}))
	dave, err := store.GetUser(ctx, "dave")
	require.NoError(t, err)
	assert.True(t, start.Equal(dave.CreatedAt), "created at %s", dave.CreatedAt)

	msg := create(t, store, "alice", "dave", "hi")
	assert.True(t, start.Add(time.Second).Equal(msg.CreatedAt), "created at %s", msg.CreatedAt)
}
