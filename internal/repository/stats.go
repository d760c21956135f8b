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

type StatsRepository interface {
	RoomActivity(ctx context.Context, roomID uuid.UUID) (*domain.RoomActivityStats, error)
	MessagesSince(ctx context.Context, since time.Time) (int64, error)
	ActiveRoomsSince(ctx context.Context, since time.Time) (int, error)
	UnreadNotifications(ctx context.Context) (int64, error)
}

type statsRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewStatsRepository(db *pgxpool.Pool, log logger.Logger) StatsRepository {
	return &statsRepository{db: db, log: log}
}

func (r *statsRepository) RoomActivity(ctx context.Context, roomID uuid.UUID) (*domain.RoomActivityStats, error) {
	query := `
		SELECT r.id,
		       (SELECT COUNT(*) FROM room_members rm WHERE rm.room_id = r.id),
		       (SELECT COUNT(*) FROM messages m WHERE m.room_id = r.id AND m.deleted_at IS NULL),
		       (SELECT MAX(m.created_at) FROM messages m WHERE m.room_id = r.id AND m.deleted_at IS NULL)
		FROM rooms r
		WHERE r.id = $1
	`

	stats := &domain.RoomActivityStats{}
	err := r.db.QueryRow(ctx, query, roomID).Scan(
		&stats.RoomID, &stats.MemberCount, &stats.MessageCount, &stats.LastMessageAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room activity stats", "error", err, "room_id", roomID)
		return nil, err
	}

	return stats, nil
}

func (r *statsRepository) MessagesSince(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE created_at >= $1 AND deleted_at IS NULL`

	var count int64
	if err := r.db.QueryRow(ctx, query, since).Scan(&count); err != nil {
		r.log.Error("Failed to count messages", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *statsRepository) ActiveRoomsSince(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(DISTINCT room_id) FROM messages WHERE created_at >= $1 AND deleted_at IS NULL`

	var count int
	if err := r.db.QueryRow(ctx, query, since).Scan(&count); err != nil {
		r.log.Error("Failed to count active rooms", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *statsRepository) UnreadNotifications(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE is_read = FALSE`

	var count int64
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		r.log.Error("Failed to count unread notifications", "error", err)
		return 0, err
	}
	return count, nil
}
