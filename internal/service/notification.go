package service

import (
	"context"
	"sync"
	"time"

	"community_hub/internal/config"
	"community_hub/internal/domain"
	"community_hub/internal/repository"
	"community_hub/pkg/logger"
	"community_hub/pkg/protocol"

	"github.com/google/uuid"
)

// Pusher доставляет событие в живое соединение пользователя.
// Возвращает false, если пользователь офлайн или доставка не удалась;
// durable-запись к этому моменту уже выполнена, догонит catch-up.
type Pusher interface {
	PushToUser(userID uuid.UUID, event string, payload any) bool
}

type DispatchInput struct {
	RecipientID uuid.UUID
	SenderID    uuid.UUID
	Type        string
	Title       string
	Body        string
	PostID      *uuid.UUID
	CommentID   *uuid.UUID
}

type NotificationService interface {
	// Dispatch сохраняет уведомление и пытается доставить его онлайн-получателю.
	// Самоуведомления подавляются: возвращается (nil, nil)
	Dispatch(ctx context.Context, in DispatchInput) (*domain.Notification, error)
	List(ctx context.Context, recipientID uuid.UUID, page, limit int) ([]*domain.Notification, int, int, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	Delete(ctx context.Context, recipientID, notificationID uuid.UUID) error
	SetPusher(p Pusher)
	StartRetentionSweep(ctx context.Context)
}

type notificationService struct {
	notificationRepo repository.NotificationRepository
	cfg              config.NotificationConfig
	log              logger.Logger

	mu     sync.RWMutex
	pusher Pusher
}

func NewNotificationService(notificationRepo repository.NotificationRepository, cfg config.NotificationConfig, log logger.Logger) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		cfg:              cfg,
		log:              log,
	}
}

// SetPusher подключает realtime-доставку. До вызова Dispatch работает
// в режиме только durable-записи.
func (s *notificationService) SetPusher(p Pusher) {
	s.mu.Lock()
	s.pusher = p
	s.mu.Unlock()
}

func (s *notificationService) currentPusher() Pusher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pusher
}

func (s *notificationService) Dispatch(ctx context.Context, in DispatchInput) (*domain.Notification, error) {
	if in.RecipientID == in.SenderID {
		return nil, nil
	}

	notification := &domain.Notification{
		ID:          uuid.New(),
		RecipientID: in.RecipientID,
		SenderID:    in.SenderID,
		Type:        in.Type,
		Title:       in.Title,
		Body:        in.Body,
		PostID:      in.PostID,
		CommentID:   in.CommentID,
		IsRead:      false,
		CreatedAt:   time.Now(),
	}

	// Сначала durable-запись - граница гарантии доставки.
	// Живой push после нее best-effort.
	if err := s.notificationRepo.Create(ctx, notification); err != nil {
		return nil, err
	}

	if p := s.currentPusher(); p != nil {
		delivered := p.PushToUser(in.RecipientID, protocol.EventNotificationPush, toWireNotification(notification))
		if !delivered {
			s.log.Debug("Recipient offline, notification deferred to catch-up", "recipient_id", in.RecipientID)
		}
	}

	return notification, nil
}

func (s *notificationService) List(ctx context.Context, recipientID uuid.UUID, page, limit int) ([]*domain.Notification, int, int, error) {
	if limit <= 0 || limit > s.cfg.CatchupPageSize {
		limit = s.cfg.CatchupPageSize
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	items, total, err := s.notificationRepo.List(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, 0, 0, err
	}

	unread, err := s.notificationRepo.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, 0, 0, err
	}

	return items, total, unread, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.notificationRepo.CountUnread(ctx, recipientID)
}

func (s *notificationService) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if err := s.notificationRepo.MarkRead(ctx, recipientID, notificationID); err != nil {
		return err
	}

	// Коррекция для остальных активных сессий получателя
	if p := s.currentPusher(); p != nil {
		p.PushToUser(recipientID, protocol.EventNotificationReadAck, protocol.NotificationReadPayload{NotificationID: notificationID})
	}

	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	count, err := s.notificationRepo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		if p := s.currentPusher(); p != nil {
			p.PushToUser(recipientID, protocol.EventNotificationAllRead, nil)
		}
	}

	return count, nil
}

func (s *notificationService) Delete(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	return s.notificationRepo.Delete(ctx, recipientID, notificationID)
}

// StartRetentionSweep запускает фоновую очистку устаревших уведомлений.
// Ошибки sweep логируются и не влияют на живую доставку.
func (s *notificationService) StartRetentionSweep(ctx context.Context) {
	if s.cfg.Retention <= 0 || s.cfg.SweepInterval <= 0 {
		s.log.Warn("Notification retention sweep disabled", "retention", s.cfg.Retention, "interval", s.cfg.SweepInterval)
		return
	}

	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				horizon := time.Now().Add(-s.cfg.Retention)
				purged, err := s.notificationRepo.DeleteOlderThan(ctx, horizon)
				if err != nil {
					s.log.Error("Notification retention sweep failed", "error", err)
					continue
				}
				if purged > 0 {
					s.log.Info("Purged old notifications", "count", purged, "horizon", horizon)
				}
			}
		}
	}()
}

func toWireNotification(n *domain.Notification) protocol.Notification {
	return protocol.Notification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        n.Type,
		Title:       n.Title,
		Body:        n.Body,
		PostID:      n.PostID,
		CommentID:   n.CommentID,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}
