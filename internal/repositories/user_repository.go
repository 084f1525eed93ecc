package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"chatty/internal/models"
)

const userColumns = `id, full_name, email, profile_pic, last_seen, created_at`

// UserRepository is the read side of the user directory plus the last-seen timestamp,
// the only presence state that outlives a process.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUsersExcept(ctx context.Context, userID string) ([]models.User, error)
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsersExcept returns every user other than userID ordered by name.
func (r *UserRepo) ListUsersExcept(ctx context.Context, userID string) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id<>$1 ORDER BY full_name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateLastSeen records when the user's last connection closed.
func (r *UserRepo) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_seen=$2 WHERE id=$1`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UserWriter is implemented by stores that accept directory entries from the identity
// collaborator.
type UserWriter interface {
	SaveUser(ctx context.Context, user models.User) error
}

// SaveUser inserts or refreshes a directory entry.
func (r *UserRepo) SaveUser(ctx context.Context, user models.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, full_name, email, profile_pic) VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, email = EXCLUDED.email, profile_pic = EXCLUDED.profile_pic`,
		user.ID, user.FullName, user.Email, user.ProfilePic)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
