package service

import (
	"context"
	"time"

	"community_hub/internal/domain"
	"community_hub/internal/repository"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
)

// AuditService пишет журнал событий сессий и модерации сообщений.
// Запись best-effort: ошибка логируется и не прерывает само событие.
type AuditService interface {
	LogEvent(ctx context.Context, actorUserID *uuid.UUID, actorRole string, roomID *uuid.UUID, eventType string, payload map[string]interface{})
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actorUserID *uuid.UUID, actorRole string, roomID *uuid.UUID, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime:   time.Now(),
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		RoomID:      roomID,
		EventType:   eventType,
		Payload:     payload,
	}

	if err := s.auditRepo.CreateLog(ctx, auditLog); err != nil {
		s.log.Warn("Audit log write failed", "error", err, "event_type", eventType)
	}
}
