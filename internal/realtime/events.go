package realtime

import (
	"time"

	"chatty/internal/models"
)

// EventKind names a server-originated push.
type EventKind string

const (
	EventNewMessage       EventKind = "newMessage"
	EventMessageDelivered EventKind = "messageDelivered"
	EventMessagesSeen     EventKind = "messagesSeen"
	EventUserOnline       EventKind = "userOnline"
	EventUserOffline      EventKind = "userOffline"
	EventOnlineUsers      EventKind = "onlineUsers"
)

// Event is the unit of fan-out. It is encoded as {"event": kind, "data": payload}.
type Event struct {
	Kind    EventKind `json:"event"`
	Payload any       `json:"data"`
}

type NewMessagePayload struct {
	Message models.Message `json:"message"`
}

type MessageDeliveredPayload struct {
	MessageID string `json:"messageId"`
}

type MessagesSeenPayload struct {
	ByUserID string `json:"by"`
}

type UserOnlinePayload struct {
	UserID string `json:"userId"`
}

type UserOfflinePayload struct {
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

type OnlineUsersPayload struct {
	UserIDs []string `json:"userIds"`
}
