package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chatty/internal/models"
)

// UserRecord is the gorm row for the user directory.
type UserRecord struct {
	ID         string `gorm:"primaryKey;size:190"`
	FullName   string `gorm:"not null"`
	Email      string `gorm:"uniqueIndex;size:320;not null"`
	ProfilePic string `gorm:"not null"`
	LastSeen   *time.Time
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName pins the table shared with the Postgres schema.
func (UserRecord) TableName() string { return "users" }

// MessageRecord is the gorm row for a message.
type MessageRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	SenderID   string    `gorm:"size:190;not null;index:idx_messages_pair,priority:1"`
	ReceiverID string    `gorm:"size:190;not null;index:idx_messages_pair,priority:2"`
	Text       string    `gorm:"not null"`
	ImageURL   string    `gorm:"not null"`
	Delivered  bool      `gorm:"not null"`
	Read       bool      `gorm:"not null"`
	Seen       bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index:idx_messages_pair,priority:3"`
}

// TableName pins the table shared with the Postgres schema.
func (MessageRecord) TableName() string { return "messages" }

func (r MessageRecord) toModel() models.Message {
	return models.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Text:       r.Text,
		ImageURL:   r.ImageURL,
		Delivered:  r.Delivered,
		Read:       r.Read,
		Seen:       r.Seen,
		CreatedAt:  r.CreatedAt,
	}
}

func (r UserRecord) toModel() models.User {
	return models.User{
		ID:         r.ID,
		FullName:   r.FullName,
		Email:      r.Email,
		ProfilePic: r.ProfilePic,
		LastSeen:   r.LastSeen,
		CreatedAt:  r.CreatedAt,
	}
}

// GormStore implements MessageRepository and UserRepository on gorm. It backs the
// embedded SQLite deployment and the store tests.
type GormStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewGormStore wraps an opened gorm handle. A nil clock defaults to time.Now.
func NewGormStore(db *gorm.DB, clock func() time.Time) *GormStore {
	if clock == nil {
		clock = time.Now
	}
	return &GormStore{db: db, clock: clock}
}

// CreateMessage stores a message and returns it with its id and creation time.
func (s *GormStore) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	record := MessageRecord{
		ID:         uuid.NewString(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
		ImageURL:   in.ImageURL,
		Delivered:  in.Delivered,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	return record.toModel(), nil
}

// BulkMarkRead sets read and seen together on every unread message from sender to
// receiver in a single UPDATE.
func (s *GormStore) BulkMarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&MessageRecord{}).
		Where("sender_id = ? AND receiver_id = ? AND read = ?", senderID, receiverID, false).
		Updates(map[string]any{"read": true, "seen": true})
	if res.Error != nil {
		return 0, fmt.Errorf("mark read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) conversation(ctx context.Context, userA, userB string) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&MessageRecord{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA)
}

// FindConversation returns the messages exchanged by the two users, oldest first.
func (s *GormStore) FindConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	var records []MessageRecord
	if err := s.conversation(ctx, userA, userB).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	msgs := make([]models.Message, 0, len(records))
	for _, record := range records {
		msgs = append(msgs, record.toModel())
	}
	return msgs, nil
}

// LatestBetween returns the newest message of the conversation or nil when there is none.
func (s *GormStore) LatestBetween(ctx context.Context, userA, userB string) (*models.Message, error) {
	var record MessageRecord
	err := s.conversation(ctx, userA, userB).Order("created_at DESC").Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	msg := record.toModel()
	return &msg, nil
}

// CountUnread counts messages from sender to receiver that the receiver has not read.
func (s *GormStore) CountUnread(ctx context.Context, senderID, receiverID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&MessageRecord{}).
		Where("sender_id = ? AND receiver_id = ? AND read = ?", senderID, receiverID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return int(count), nil
}

// GetUser fetches a user by id.
func (s *GormStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	var record UserRecord
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return record.toModel(), nil
}

// ListUsersExcept returns every user other than userID ordered by name.
func (s *GormStore) ListUsersExcept(ctx context.Context, userID string) ([]models.User, error) {
	var records []UserRecord
	if err := s.db.WithContext(ctx).Where("id <> ?", userID).Order("full_name ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]models.User, 0, len(records))
	for _, record := range records {
		users = append(users, record.toModel())
	}
	return users, nil
}

// UpdateLastSeen records when the user's last connection closed.
func (s *GormStore) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&UserRecord{}).Where("id = ?", userID).Update("last_seen", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("update last seen: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveUser inserts or refreshes a directory entry. The identity collaborator owns
// accounts; this is how they reach the embedded store.
func (s *GormStore) SaveUser(ctx context.Context, user models.User) error {
	record := UserRecord{
		ID:         user.ID,
		FullName:   user.FullName,
		Email:      user.Email,
		ProfilePic: user.ProfilePic,
		LastSeen:   user.LastSeen,
		CreatedAt:  user.CreatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "email", "profile_pic"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
