package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chatty/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// pq error code for foreign_key_violation.
const pqForeignKeyViolation = "23503"

const messageColumns = `id, sender_id, receiver_id, text, image_url, delivered, read, seen, created_at`

// MessageRepository is the durable message store. Delivery fields are only ever
// advanced by the store, never reverted.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	BulkMarkRead(ctx context.Context, senderID, receiverID string) (int64, error)
	FindConversation(ctx context.Context, userA, userB string) ([]models.Message, error)
	LatestBetween(ctx context.Context, userA, userB string) (*models.Message, error)
	CountUnread(ctx context.Context, senderID, receiverID string) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and returns it with its id and creation time.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, sender_id, receiver_id, text, image_url, delivered)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		uuid.NewString(), in.SenderID, in.ReceiverID, in.Text, in.ImageURL, in.Delivered).
		StructScan(&msg)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return models.Message{}, fmt.Errorf("create message: %w", ErrUserNotFound)
		}
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// BulkMarkRead sets read and seen together on every unread message from sender to
// receiver in one statement and returns how many rows changed.
func (r *MessageRepo) BulkMarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE, seen = TRUE
        WHERE sender_id=$1 AND receiver_id=$2 AND read = FALSE`, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

// FindConversation returns the messages exchanged by the two users, oldest first.
func (r *MessageRepo) FindConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC`
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, query, userA, userB); err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return msgs, nil
}

// LatestBetween returns the newest message of the conversation or nil when there is none.
func (r *MessageRepo) LatestBetween(ctx context.Context, userA, userB string) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+`
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at DESC LIMIT 1`, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	return &msg, nil
}

// CountUnread counts messages from sender to receiver that the receiver has not read.
func (r *MessageRepo) CountUnread(ctx context.Context, senderID, receiverID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE sender_id=$1 AND receiver_id=$2 AND read = FALSE`, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
