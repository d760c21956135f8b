package repository

import (
	"context"
	"errors"

	"community_hub/internal/domain"
	apperrors "community_hub/pkg/errors"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	AddMember(ctx context.Context, member *domain.RoomMember) error
	ListRoomIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

func (r *roomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	query := `
		SELECT id, type, title, description, created_by_user_id, created_at, updated_at
		FROM rooms
		WHERE id = $1
	`

	room := &domain.Room{}
	var description *string

	err := r.db.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Type, &room.Title, &description,
		&room.CreatedByUserID, &room.CreatedAt, &room.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room by ID", "error", err)
		return nil, err
	}

	room.Description = description
	return room, nil
}

func (r *roomRepository) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, roomID, userID).Scan(&exists); err != nil {
		r.log.Error("Failed to check room membership", "error", err, "room_id", roomID, "user_id", userID)
		return false, err
	}

	return exists, nil
}

func (r *roomRepository) AddMember(ctx context.Context, member *domain.RoomMember) error {
	query := `
		INSERT INTO room_members (room_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, member.RoomID, member.UserID, member.Role, member.JoinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			r.log.Error("Database error adding room member", "error", err, "code", pgErr.Code, "room_id", member.RoomID)
			return err
		}
		r.log.Error("Failed to add room member", "error", err, "room_id", member.RoomID, "user_id", member.UserID)
		return err
	}

	return nil
}

func (r *roomRepository) ListRoomIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT room_id FROM room_members WHERE user_id = $1`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list rooms for user", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var roomIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			r.log.Error("Failed to scan room ID", "error", err)
			return nil, err
		}
		roomIDs = append(roomIDs, id)
	}

	return roomIDs, rows.Err()
}
