package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"community_hub/internal/domain"
	apperrors "community_hub/pkg/errors"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, messageID int64) (*domain.Message, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	UpdateBody(ctx context.Context, messageID int64, body string) (time.Time, error)
	SoftDelete(ctx context.Context, messageID int64) error
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (room_id, author_id, body, type, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		message.RoomID, message.AuthorID, message.Body,
		message.Type, message.ReplyTo, message.CreatedAt,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		r.log.Error("Failed to create message", "error", err, "room_id", message.RoomID)
		return err
	}

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, messageID int64) (*domain.Message, error) {
	query := `
		SELECT id, room_id, author_id, body, type, reply_to, created_at, updated_at, deleted_at
		FROM messages
		WHERE id = $1
	`

	message := &domain.Message{}
	var updatedAt, deletedAt sql.NullTime

	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&message.ID, &message.RoomID, &message.AuthorID, &message.Body,
		&message.Type, &message.ReplyTo, &message.CreatedAt, &updatedAt, &deletedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err, "message_id", messageID)
		return nil, err
	}

	if updatedAt.Valid {
		message.UpdatedAt = &updatedAt.Time
	}
	if deletedAt.Valid {
		message.DeletedAt = &deletedAt.Time
	}

	return message, nil
}

// ListByRoom возвращает страницу сообщений от новых к старым,
// удаленные исключаются
func (r *messageRepository) ListByRoom(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT id, room_id, author_id, body, type, reply_to, created_at, updated_at
		FROM messages
		WHERE room_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, roomID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message := &domain.Message{}
		var updatedAt sql.NullTime
		err := rows.Scan(
			&message.ID, &message.RoomID, &message.AuthorID, &message.Body,
			&message.Type, &message.ReplyTo, &message.CreatedAt, &updatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		if updatedAt.Valid {
			message.UpdatedAt = &updatedAt.Time
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

func (r *messageRepository) UpdateBody(ctx context.Context, messageID int64, body string) (time.Time, error) {
	query := `
		UPDATE messages
		SET body = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`

	var updatedAt time.Time
	err := r.db.QueryRow(ctx, query, messageID, body, time.Now()).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to update message", "error", err, "message_id", messageID)
		return time.Time{}, err
	}

	return updatedAt, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID int64) error {
	query := `
		UPDATE messages
		SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, messageID, time.Now())
	if err != nil {
		r.log.Error("Failed to delete message", "error", err, "message_id", messageID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}
