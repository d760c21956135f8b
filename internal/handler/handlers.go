package handler

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"community_hub/internal/realtime"
	"community_hub/internal/service"
	"community_hub/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	WebSocket    *WebSocketHandler
	Chat         *ChatHandler
	Notification *NotificationHandler
	Presence     *PresenceHandler
	Stats        *StatsHandler
}

func NewHandlers(services *service.Services, hub *realtime.Hub, db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(db, rdb, hub),
		WebSocket:    NewWebSocketHandler(hub, log),
		Chat:         NewChatHandler(services.Chat, log),
		Notification: NewNotificationHandler(services.Notification, log),
		Presence:     NewPresenceHandler(services.Presence, log),
		Stats:        NewStatsHandler(services.Stats, log),
	}
}
