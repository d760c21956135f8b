package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"community_hub/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:online:"

	// Ключ живет дольше heartbeat-интервала, чтобы пережить один потерянный ping
	presenceScanCount = 200
)

type PresenceRepository interface {
	SetOnline(ctx context.Context, userID uuid.UUID, ttl time.Duration) error
	Refresh(ctx context.Context, userID uuid.UUID, ttl time.Duration) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	OnlineUsers(ctx context.Context) ([]uuid.UUID, error)
}

type presenceRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewPresenceRepository(rdb *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{rdb: rdb, log: log}
}

func presenceKey(userID uuid.UUID) string {
	return presenceKeyPrefix + userID.String()
}

func (r *presenceRepository) SetOnline(ctx context.Context, userID uuid.UUID, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, presenceKey(userID), time.Now().Unix(), ttl).Err(); err != nil {
		r.log.Error("Failed to set presence", "error", err, "user_id", userID)
		return err
	}
	return nil
}

func (r *presenceRepository) Refresh(ctx context.Context, userID uuid.UUID, ttl time.Duration) error {
	if err := r.rdb.Expire(ctx, presenceKey(userID), ttl).Err(); err != nil {
		r.log.Warn("Failed to refresh presence TTL", "error", err, "user_id", userID)
		return err
	}
	return nil
}

func (r *presenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if err := r.rdb.Del(ctx, presenceKey(userID)).Err(); err != nil {
		r.log.Error("Failed to clear presence", "error", err, "user_id", userID)
		return err
	}
	return nil
}

func (r *presenceRepository) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := r.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		r.log.Error("Failed to check presence", "error", err, "user_id", userID)
		return false, err
	}
	return n > 0, nil
}

func (r *presenceRepository) OnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	var users []uuid.UUID
	var cursor uint64

	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, presenceKeyPrefix+"*", presenceScanCount).Result()
		if err != nil {
			r.log.Error("Failed to scan presence keys", "error", err)
			return nil, fmt.Errorf("scan presence keys: %w", err)
		}

		for _, key := range keys {
			idStr := strings.TrimPrefix(key, presenceKeyPrefix)
			id, err := uuid.Parse(idStr)
			if err != nil {
				r.log.Warn("Skipping malformed presence key", "key", key)
				continue
			}
			users = append(users, id)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return users, nil
}
