package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"chatty/internal/models"
	"chatty/internal/observability"
	"chatty/internal/realtime"
	"chatty/internal/repositories"
)

var (
	ErrEmptyMessage = errors.New("delivery: message needs text or an image")
	ErrSelfMessage  = errors.New("delivery: cannot message yourself")
	ErrMissingUser  = errors.New("delivery: sender and receiver are required")
	ErrImageUpload  = errors.New("delivery: image upload failed")
)

var tracer = otel.Tracer("chatty/delivery")

// Reachability answers whether a user currently holds a live connection.
type Reachability interface {
	IsOnline(userID string) bool
}

// Emitter pushes an event to every live connection of a user.
type Emitter interface {
	Emit(userID string, kind realtime.EventKind, payload any) int
}

// ImageUploader turns raw image data into a stable URL.
type ImageUploader interface {
	Upload(ctx context.Context, data string) (string, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
}

// Auditor records completed state changes.
type Auditor interface {
	Emit(ctx context.Context, action, requestID, userID string, fields map[string]any)
}

type ServiceConfig struct {
	Messages     repositories.MessageRepository
	Users        UserLookup
	Reachability Reachability
	Emitter      Emitter
	Uploader     ImageUploader
	Auditor      Auditor
	Logger       *zap.Logger
}

// Service advances messages through sent, delivered and seen, and tells the
// affected users' live connections about each step.
type Service struct {
	messages     repositories.MessageRepository
	users        UserLookup
	reachability Reachability
	emitter      Emitter
	uploader     ImageUploader
	auditor      Auditor
	logger       *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Messages == nil || cfg.Users == nil || cfg.Reachability == nil || cfg.Emitter == nil {
		return nil, errors.New("delivery: messages, users, reachability and emitter are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		messages:     cfg.Messages,
		users:        cfg.Users,
		reachability: cfg.Reachability,
		emitter:      cfg.Emitter,
		uploader:     cfg.Uploader,
		auditor:      cfg.Auditor,
		logger:       logger,
	}, nil
}

// SendRequest is one logical send. Image is a base64 data URL.
type SendRequest struct {
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
}

// Send persists a message and pushes it to the receiver. The message is stored as
// delivered when the receiver is reachable at creation time, in which case the
// sender's connections get a messageDelivered event. Nothing is stored or emitted
// when validation or the image upload fails.
func (s *Service) Send(ctx context.Context, req SendRequest) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "delivery.Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("sender_id", req.SenderID),
		attribute.String("receiver_id", req.ReceiverID),
	)

	text := strings.TrimSpace(req.Text)
	image := strings.TrimSpace(req.Image)
	switch {
	case req.SenderID == "" || req.ReceiverID == "":
		return models.Message{}, ErrMissingUser
	case req.SenderID == req.ReceiverID:
		return models.Message{}, ErrSelfMessage
	case text == "" && image == "":
		return models.Message{}, ErrEmptyMessage
	}

	if _, err := s.users.GetUser(ctx, req.ReceiverID); err != nil {
		span.RecordError(err)
		return models.Message{}, fmt.Errorf("lookup receiver: %w", err)
	}

	var imageURL string
	if image != "" {
		if s.uploader == nil {
			return models.Message{}, fmt.Errorf("%w: no uploader configured", ErrImageUpload)
		}
		url, err := s.uploader.Upload(ctx, image)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "image upload")
			return models.Message{}, fmt.Errorf("%w: %w", ErrImageUpload, err)
		}
		imageURL = url
	}

	// Delivered is fixed at insert; no later write touches it.
	delivered := s.reachability.IsOnline(req.ReceiverID)

	msg, err := s.messages.CreateMessage(ctx, models.NewMessage{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Text:       text,
		ImageURL:   imageURL,
		Delivered:  delivered,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create message")
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	observability.IncMessageCreated(msg.Delivered)
	span.SetAttributes(attribute.String("message_id", msg.ID), attribute.Bool("delivered", msg.Delivered))

	pushed := s.emitter.Emit(msg.ReceiverID, realtime.EventNewMessage, realtime.NewMessagePayload{Message: msg})
	if msg.Delivered {
		s.emitter.Emit(msg.SenderID, realtime.EventMessageDelivered, realtime.MessageDeliveredPayload{MessageID: msg.ID})
	}
	s.logger.Debug("message sent",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", msg.SenderID),
		zap.String("receiver_id", msg.ReceiverID),
		zap.Bool("delivered", msg.Delivered),
		zap.Int("pushed", pushed))

	s.audit(ctx, "message_sent", msg.SenderID, map[string]any{
		"message_id":  msg.ID,
		"receiver_id": msg.ReceiverID,
		"delivered":   msg.Delivered,
		"has_image":   msg.ImageURL != "",
	})
	return msg, nil
}

// MarkRead marks every unread message from peer to viewer as read and seen in one
// batch. The peer gets a single messagesSeen event, and only when something changed,
// so repeating the call is a silent no-op.
func (s *Service) MarkRead(ctx context.Context, viewerID, peerID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "delivery.MarkRead")
	defer span.End()
	span.SetAttributes(attribute.String("viewer_id", viewerID), attribute.String("peer_id", peerID))

	if viewerID == "" || peerID == "" {
		return 0, ErrMissingUser
	}

	updated, err := s.messages.BulkMarkRead(ctx, peerID, viewerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk mark read")
		return 0, fmt.Errorf("mark read: %w", err)
	}
	span.SetAttributes(attribute.Int64("updated", updated))
	if updated == 0 {
		return 0, nil
	}

	observability.AddMessagesSeen(updated)
	s.emitter.Emit(peerID, realtime.EventMessagesSeen, realtime.MessagesSeenPayload{ByUserID: viewerID})
	s.audit(ctx, "messages_seen", viewerID, map[string]any{
		"peer_id": peerID,
		"updated": updated,
	})
	return updated, nil
}

// Conversation returns the messages between viewer and peer, oldest first.
func (s *Service) Conversation(ctx context.Context, viewerID, peerID string) ([]models.Message, error) {
	if viewerID == "" || peerID == "" {
		return nil, ErrMissingUser
	}
	msgs, err := s.messages.FindConversation(ctx, viewerID, peerID)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func (s *Service) audit(ctx context.Context, action, userID string, fields map[string]any) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, action, observability.RequestIDFromContext(ctx), userID, fields)
}
