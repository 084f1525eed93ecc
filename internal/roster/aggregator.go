package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"chatty/internal/models"
	"chatty/internal/realtime"
	"chatty/internal/repositories"
)

const defaultConcurrency = 8

// Entry is one peer in a viewer's sidebar.
type Entry struct {
	models.User
	LastMessage *models.Message `json:"lastMessage"`
	UnreadCount int             `json:"unreadCount"`
	Online      bool            `json:"online"`
}

// PresenceResolver overlays live state on a directory entry.
type PresenceResolver interface {
	Resolve(user models.User) realtime.Presence
}

type Directory interface {
	ListUsersExcept(ctx context.Context, userID string) ([]models.User, error)
}

// Config configures an Aggregator.
type Config struct {
	Users       Directory
	Messages    repositories.MessageRepository
	Presence    PresenceResolver
	Concurrency int
	Logger      *zap.Logger
}

// Aggregator computes the roster on every call. Nothing is cached, so unread counts
// always equal what the store holds.
type Aggregator struct {
	users       Directory
	messages    repositories.MessageRepository
	presence    PresenceResolver
	concurrency int
	logger      *zap.Logger
}

func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Users == nil || cfg.Messages == nil {
		return nil, errors.New("roster: users and messages are required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		users:       cfg.Users,
		messages:    cfg.Messages,
		presence:    cfg.Presence,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Build returns every other user with the latest message of the pair and the
// viewer's unread count from that user. Peers with recent messages come first;
// peers never talked to follow by name.
func (a *Aggregator) Build(ctx context.Context, viewerID string) ([]Entry, error) {
	peers, err := a.users.ListUsersExcept(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	entries := make([]Entry, len(peers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			entry, err := a.entryFor(gctx, viewerID, peer)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Warn("roster build failed", zap.String("viewer_id", viewerID), zap.Error(err))
		return nil, err
	}

	sortEntries(entries)
	return entries, nil
}

func (a *Aggregator) entryFor(ctx context.Context, viewerID string, peer models.User) (Entry, error) {
	last, err := a.messages.LatestBetween(ctx, viewerID, peer.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("latest message with %s: %w", peer.ID, err)
	}
	unread, err := a.messages.CountUnread(ctx, peer.ID, viewerID)
	if err != nil {
		return Entry{}, fmt.Errorf("unread from %s: %w", peer.ID, err)
	}

	entry := Entry{User: peer, LastMessage: last, UnreadCount: unread}
	if a.presence != nil {
		p := a.presence.Resolve(peer)
		entry.Online = p.Online
		entry.LastSeen = p.LastSeenAt
	}
	return entry, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		li, lj := entries[i].LastMessage, entries[j].LastMessage
		switch {
		case li != nil && lj != nil:
			if !li.CreatedAt.Equal(lj.CreatedAt) {
				return li.CreatedAt.After(lj.CreatedAt)
			}
		case li != nil:
			return true
		case lj != nil:
			return false
		}
		return strings.ToLower(entries[i].FullName) < strings.ToLower(entries[j].FullName)
	})
}
