package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatty/internal/delivery"
	"chatty/internal/models"
	"chatty/internal/realtime"
	"chatty/internal/repositories"
	"chatty/internal/roster"
)

// Messenger is the delivery state machine as seen by HTTP.
type Messenger interface {
	Send(ctx context.Context, req delivery.SendRequest) (models.Message, error)
	MarkRead(ctx context.Context, viewerID, peerID string) (int64, error)
	Conversation(ctx context.Context, viewerID, peerID string) ([]models.Message, error)
}

type RosterBuilder interface {
	Build(ctx context.Context, viewerID string) ([]roster.Entry, error)
}

type PresenceReader interface {
	PresenceOf(ctx context.Context, userID string) (realtime.Presence, error)
}

// MessageHandler serves the sidebar, conversation, send and mark-read endpoints.
type MessageHandler struct {
	messenger Messenger
	roster    RosterBuilder
	presence  PresenceReader
	logger    *zap.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messenger Messenger, roster RosterBuilder, presence PresenceReader, logger *zap.Logger) *MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageHandler{messenger: messenger, roster: roster, presence: presence, logger: logger}
}

// Register mounts the routes on an authenticated group.
func (h *MessageHandler) Register(api *gin.RouterGroup) {
	api.GET("/messages/users", h.ListRoster)
	api.GET("/messages/:id", h.GetConversation)
	api.POST("/messages/send/:id", h.SendMessage)
	api.POST("/messages/mark-read/:id", h.MarkRead)
	api.GET("/presence/:id", h.GetPresence)
}

// ListRoster returns every other user with the last message and unread count.
func (h *MessageHandler) ListRoster(c *gin.Context) {
	viewerID := userIDFromContext(c)
	entries, err := h.roster.Build(c.Request.Context(), viewerID)
	if err != nil {
		h.logger.Error("roster failed", zap.String("user_id", viewerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	if entries == nil {
		entries = []roster.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// GetConversation returns the messages between the caller and :id, oldest first.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	viewerID := userIDFromContext(c)
	msgs, err := h.messenger.Conversation(c.Request.Context(), viewerID, c.Param("id"))
	if err != nil {
		h.respondError(c, "conversation failed", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// SendMessage stores a message to :id and pushes it to the receiver.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.messenger.Send(requestContext(c), delivery.SendRequest{
		SenderID:   userIDFromContext(c),
		ReceiverID: c.Param("id"),
		Text:       req.Text,
		Image:      req.Image,
	})
	if err != nil {
		h.respondError(c, "send failed", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks every unread message from :id to the caller as read and seen.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	updated, err := h.messenger.MarkRead(requestContext(c), userIDFromContext(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "mark read failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

// GetPresence returns whether :id is online and when it was last seen.
func (h *MessageHandler) GetPresence(c *gin.Context) {
	p, err := h.presence.PresenceOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "presence failed", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *MessageHandler) respondError(c *gin.Context, msg string, err error) {
	status, text := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("user_id", userIDFromContext(c)), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": text})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, delivery.ErrEmptyMessage):
		return http.StatusBadRequest, "message needs text or an image"
	case errors.Is(err, delivery.ErrSelfMessage):
		return http.StatusBadRequest, "cannot message yourself"
	case errors.Is(err, delivery.ErrMissingUser):
		return http.StatusBadRequest, "invalid user id"
	case errors.Is(err, repositories.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, delivery.ErrImageUpload):
		return http.StatusBadGateway, "image upload failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
