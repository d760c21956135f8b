package service

import (
	"context"

	"community_hub/internal/domain"
	"community_hub/internal/repository"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
)

type UserService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	DisplayName(ctx context.Context, id uuid.UUID) string
}

type userService struct {
	userRepo repository.UserRepository
	log      logger.Logger
}

func NewUserService(userRepo repository.UserRepository, log logger.Logger) UserService {
	return &userService{userRepo: userRepo, log: log}
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// DisplayName возвращает имя отправителя для подстановки в события чата.
// Недоставленное имя не должно ронять рассылку, поэтому ошибка деградирует
// в пустую строку.
func (s *userService) DisplayName(ctx context.Context, id uuid.UUID) string {
	name, err := s.userRepo.GetDisplayName(ctx, id)
	if err != nil {
		s.log.Warn("Failed to resolve display name", "error", err, "user_id", id)
		return ""
	}
	return name
}
