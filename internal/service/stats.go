package service

import (
	"context"
	"sync"
	"time"

	"community_hub/internal/domain"
	"community_hub/internal/repository"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
)

// OnlineCounter отдает число живых привязанных соединений.
// Реализуется realtime-слоем, подключается через SetOnlineCounter.
type OnlineCounter interface {
	OnlineCount() int
}

type StatsService interface {
	Overview(ctx context.Context) (*domain.DeliveryStats, error)
	RoomActivity(ctx context.Context, roomID uuid.UUID) (*domain.RoomActivityStats, error)
	SetOnlineCounter(c OnlineCounter)
}

type statsService struct {
	statsRepo repository.StatsRepository
	log       logger.Logger

	mu      sync.RWMutex
	counter OnlineCounter
}

func NewStatsService(statsRepo repository.StatsRepository, log logger.Logger) StatsService {
	return &statsService{
		statsRepo: statsRepo,
		log:       log,
	}
}

func (s *statsService) SetOnlineCounter(c OnlineCounter) {
	s.mu.Lock()
	s.counter = c
	s.mu.Unlock()
}

func (s *statsService) Overview(ctx context.Context) (*domain.DeliveryStats, error) {
	since := time.Now().Add(-24 * time.Hour)

	messages, err := s.statsRepo.MessagesSince(ctx, since)
	if err != nil {
		return nil, err
	}

	rooms, err := s.statsRepo.ActiveRoomsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	unread, err := s.statsRepo.UnreadNotifications(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.DeliveryStats{
		ActiveRoomsLastDay:  rooms,
		MessagesLastDay:     messages,
		UnreadNotifications: unread,
	}

	s.mu.RLock()
	if s.counter != nil {
		stats.OnlineConnections = s.counter.OnlineCount()
	}
	s.mu.RUnlock()

	return stats, nil
}

func (s *statsService) RoomActivity(ctx context.Context, roomID uuid.UUID) (*domain.RoomActivityStats, error) {
	return s.statsRepo.RoomActivity(ctx, roomID)
}
