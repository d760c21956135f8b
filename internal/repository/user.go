package repository

import (
	"context"
	"errors"
	"time"

	"community_hub/internal/domain"
	apperrors "community_hub/pkg/errors"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetDisplayName(ctx context.Context, id uuid.UUID) (string, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, email, display_name, avatar_url, global_role, is_active, last_seen_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &domain.User{}
	var lastSeenAt *time.Time
	var avatarURL *string

	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.DisplayName, &avatarURL,
		&user.GlobalRole, &user.IsActive, &lastSeenAt,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		r.log.Error("Failed to get user by ID", "error", err)
		return nil, err
	}

	user.LastSeenAt = lastSeenAt
	user.AvatarURL = avatarURL
	return user, nil
}

func (r *userRepository) GetDisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	query := `SELECT display_name FROM users WHERE id = $1`

	var displayName string
	err := r.db.QueryRow(ctx, query, id).Scan(&displayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrUserNotFound
		}
		r.log.Error("Failed to get display name", "error", err, "user_id", id)
		return "", err
	}

	return displayName, nil
}

func (r *userRepository) UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	query := `UPDATE users SET last_seen_at = $2 WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, seenAt)
	if err != nil {
		r.log.Error("Failed to update last seen", "error", err, "user_id", id)
		return err
	}

	return nil
}
