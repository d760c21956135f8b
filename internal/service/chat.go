package service

import (
	"context"
	"strings"
	"time"

	"community_hub/internal/domain"
	"community_hub/internal/repository"
	apperrors "community_hub/pkg/errors"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
)

type ChatService interface {
	// JoinRoom проверяет (и для открытых комнат создает) durable-членство.
	// In-memory подписка строится вызывающей стороной поверх этого вызова.
	JoinRoom(ctx context.Context, roomID, userID uuid.UUID) error
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	SendMessage(ctx context.Context, roomID, authorID uuid.UUID, body, messageType string, replyTo *int64) (*domain.Message, error)
	EditMessage(ctx context.Context, messageID int64, userID uuid.UUID, body string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID int64, userID uuid.UUID) (*domain.Message, error)
	History(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*domain.Message, error)
}

type chatService struct {
	messageRepo repository.MessageRepository
	roomRepo    repository.RoomRepository
	log         logger.Logger
}

func NewChatService(messageRepo repository.MessageRepository, roomRepo repository.RoomRepository, log logger.Logger) ChatService {
	return &chatService{
		messageRepo: messageRepo,
		roomRepo:    roomRepo,
		log:         log,
	}
}

func (s *chatService) JoinRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}

	isMember, err := s.roomRepo.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if isMember {
		return nil
	}

	// Открытые комнаты: членство создается при первом входе.
	// Остальные типы требуют существующей записи.
	if room.Type != domain.RoomTypeOpen {
		return apperrors.ErrNotAMember
	}

	member := &domain.RoomMember{
		RoomID:   roomID,
		UserID:   userID,
		Role:     domain.MemberRoleMember,
		JoinedAt: time.Now(),
	}
	return s.roomRepo.AddMember(ctx, member)
}

func (s *chatService) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	return s.roomRepo.IsMember(ctx, roomID, userID)
}

func (s *chatService) SendMessage(ctx context.Context, roomID, authorID uuid.UUID, body, messageType string, replyTo *int64) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.ErrEmptyBody
	}

	isMember, err := s.roomRepo.IsMember(ctx, roomID, authorID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperrors.ErrNotAMember
	}

	if messageType == "" {
		messageType = domain.MessageTypeText
	}

	message := &domain.Message{
		RoomID:    roomID,
		AuthorID:  authorID,
		Body:      body,
		Type:      messageType,
		ReplyTo:   replyTo,
		CreatedAt: time.Now(),
	}

	// Durable insert - точка сериализации порядка сообщений комнаты.
	// Рассылка живым подписчикам происходит строго после успешной записи.
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	return message, nil
}

func (s *chatService) EditMessage(ctx context.Context, messageID int64, userID uuid.UUID, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.ErrEmptyBody
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.DeletedAt != nil {
		return nil, apperrors.ErrMessageNotFound
	}

	if message.AuthorID != userID {
		return nil, apperrors.ErrNotAuthor
	}

	updatedAt, err := s.messageRepo.UpdateBody(ctx, messageID, body)
	if err != nil {
		return nil, err
	}

	message.Body = body
	message.UpdatedAt = &updatedAt
	return message, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID int64, userID uuid.UUID) (*domain.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.DeletedAt != nil {
		return nil, apperrors.ErrMessageNotFound
	}

	if message.AuthorID != userID {
		return nil, apperrors.ErrNotAuthor
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		return nil, err
	}

	now := time.Now()
	message.DeletedAt = &now
	return message, nil
}

// History возвращает страницу истории в хронологическом порядке.
// Пейджинг идет от новых к старым, ответ разворачивается.
func (s *chatService) History(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.messageRepo.ListByRoom(ctx, roomID, limit, offset)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
