package service

import (
	"community_hub/internal/config"
	"community_hub/internal/repository"
	"community_hub/pkg/logger"
)

type Services struct {
	Auth         AuthService
	User         UserService
	Chat         ChatService
	Notification NotificationService
	Presence     PresenceService
	RateLimit    RateLimitService
	Stats        StatsService
	Audit        AuditService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	return &Services{
		Auth:         NewAuthService(repos.User, cfg.JWT, log),
		User:         NewUserService(repos.User, log),
		Chat:         NewChatService(repos.Message, repos.Room, log),
		Notification: NewNotificationService(repos.Notification, cfg.Notification, log),
		Presence:     NewPresenceService(repos.Presence, repos.User, cfg.WebSocket, log),
		RateLimit:    NewRateLimitService(repos.RateLimit, cfg.WebSocket, log),
		Stats:        NewStatsService(repos.Stats, log),
		Audit:        NewAuditService(repos.Audit, log),
	}
}
