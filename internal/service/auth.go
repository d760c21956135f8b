package service

import (
	"context"
	"strings"

	"community_hub/internal/config"
	"community_hub/internal/domain"
	"community_hub/internal/repository"
	apperrors "community_hub/pkg/errors"
	"community_hub/pkg/jwt"
	"community_hub/pkg/logger"
)

// AuthService проверяет access token на handshake. Выпуск токенов живет
// в CRUD-слое приложения и сюда не входит.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.User, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, apperrors.ErrInvalidToken
	}

	claims, err := jwt.ValidateToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	if !user.IsActive {
		return nil, apperrors.ErrUnauthorized
	}

	return user, nil
}
