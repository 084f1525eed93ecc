package models

import "time"

// Message is a direct message between two users. Identity fields never change after
// creation; Delivered, Read and Seen only ever move from false to true.
type Message struct {
	ID         string    `db:"id" json:"id"`
	SenderID   string    `db:"sender_id" json:"senderId"`
	ReceiverID string    `db:"receiver_id" json:"receiverId"`
	Text       string    `db:"text" json:"text,omitempty"`
	ImageURL   string    `db:"image_url" json:"image,omitempty"`
	Delivered  bool      `db:"delivered" json:"delivered"`
	Read       bool      `db:"read" json:"read"`
	Seen       bool      `db:"seen" json:"seen"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// NewMessage carries the fields a store needs to persist a message. The store assigns
// the id and creation time.
type NewMessage struct {
	SenderID   string
	ReceiverID string
	Text       string
	ImageURL   string
	Delivered  bool
}
