package service

import (
	"context"
	"fmt"
	"time"

	"community_hub/internal/config"
	"community_hub/internal/repository"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
)

type RateLimitService interface {
	// AllowHTTP ограничивает REST-запросы по клиентскому ключу (обычно IP)
	AllowHTTP(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// AllowMessage ограничивает входящие message.send на пользователя
	AllowMessage(ctx context.Context, userID uuid.UUID) (bool, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	wsCfg         config.WebSocketConfig
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, wsCfg config.WebSocketConfig, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		wsCfg:         wsCfg,
		log:           log,
	}
}

func (s *rateLimitService) AllowHTTP(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.rateLimitRepo.Allow(ctx, "http:"+key, limit, window)
}

func (s *rateLimitService) AllowMessage(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("ws:msg:%s", userID.String())
	return s.rateLimitRepo.Allow(ctx, key, s.wsCfg.MessageRateLimit, s.wsCfg.MessageRateWindow)
}
