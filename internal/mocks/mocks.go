package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chatty/internal/delivery"
	"chatty/internal/models"
	"chatty/internal/realtime"
	"chatty/internal/roster"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) BulkMarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	args := m.Called(ctx, senderID, receiverID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) FindConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) LatestBetween(ctx context.Context, userA, userB string) (*models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var msg *models.Message
	if val := args.Get(0); val != nil {
		msg = val.(*models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CountUnread(ctx context.Context, senderID, receiverID string) (int, error) {
	args := m.Called(ctx, senderID, receiverID)
	return args.Int(0), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListUsersExcept(ctx context.Context, userID string) ([]models.User, error) {
	args := m.Called(ctx, userID)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

func (m *UserRepositoryMock) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, data string) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, action, requestID, userID string, fields map[string]any) {
	m.Called(ctx, action, requestID, userID, fields)
}

type MessengerMock struct {
	mock.Mock
}

func (m *MessengerMock) Send(ctx context.Context, req delivery.SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessengerMock) MarkRead(ctx context.Context, viewerID, peerID string) (int64, error) {
	args := m.Called(ctx, viewerID, peerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessengerMock) Conversation(ctx context.Context, viewerID, peerID string) ([]models.Message, error) {
	args := m.Called(ctx, viewerID, peerID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

type RosterMock struct {
	mock.Mock
}

func (m *RosterMock) Build(ctx context.Context, viewerID string) ([]roster.Entry, error) {
	args := m.Called(ctx, viewerID)
	var list []roster.Entry
	if val := args.Get(0); val != nil {
		list = val.([]roster.Entry)
	}
	return list, args.Error(1)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) PresenceOf(ctx context.Context, userID string) (realtime.Presence, error) {
	args := m.Called(ctx, userID)
	var p realtime.Presence
	if val := args.Get(0); val != nil {
		p = val.(realtime.Presence)
	}
	return p, args.Error(1)
}
