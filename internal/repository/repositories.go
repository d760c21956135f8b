package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"community_hub/pkg/logger"
)

type Repositories struct {
	User         UserRepository
	Room         RoomRepository
	Message      MessageRepository
	Notification NotificationRepository
	Presence     PresenceRepository
	RateLimit    RateLimitRepository
	Stats        StatsRepository
	Audit        AuditRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db, log),
		Room:         NewRoomRepository(db, log),
		Message:      NewMessageRepository(db, log),
		Notification: NewNotificationRepository(db, rdb, log),
		Presence:     NewPresenceRepository(rdb, log),
		RateLimit:    NewRateLimitRepository(rdb, log),
		Stats:        NewStatsRepository(db, log),
		Audit:        NewAuditRepository(db, log),
	}
}
