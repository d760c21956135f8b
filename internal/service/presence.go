package service

import (
	"context"
	"time"

	"community_hub/internal/config"
	"community_hub/internal/repository"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
)

type PresenceService interface {
	MarkOnline(ctx context.Context, userID uuid.UUID) error
	Heartbeat(ctx context.Context, userID uuid.UUID)
	MarkOffline(ctx context.Context, userID uuid.UUID) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	OnlineUsers(ctx context.Context) ([]uuid.UUID, error)
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	userRepo     repository.UserRepository
	ttl          time.Duration
	log          logger.Logger
}

func NewPresenceService(presenceRepo repository.PresenceRepository, userRepo repository.UserRepository, wsCfg config.WebSocketConfig, log logger.Logger) PresenceService {
	return &presenceService{
		presenceRepo: presenceRepo,
		userRepo:     userRepo,
		ttl:          wsCfg.PresenceTTL,
		log:          log,
	}
}

func (s *presenceService) MarkOnline(ctx context.Context, userID uuid.UUID) error {
	return s.presenceRepo.SetOnline(ctx, userID, s.ttl)
}

// Heartbeat продлевает presence-ключ; вызывается из ping-цикла соединения
func (s *presenceService) Heartbeat(ctx context.Context, userID uuid.UUID) {
	_ = s.presenceRepo.Refresh(ctx, userID, s.ttl)
}

func (s *presenceService) MarkOffline(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.UpdateLastSeen(ctx, userID, time.Now()); err != nil {
		s.log.Warn("Failed to record last seen", "error", err, "user_id", userID)
	}
	return s.presenceRepo.SetOffline(ctx, userID)
}

func (s *presenceService) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.presenceRepo.IsOnline(ctx, userID)
}

func (s *presenceService) OnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	return s.presenceRepo.OnlineUsers(ctx)
}
