package repository

import (
	"context"
	"fmt"
	"time"

	"community_hub/internal/domain"
	apperrors "community_hub/pkg/errors"
	"community_hub/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	// Ключ кеша непрочитанных уведомлений
	unreadCountKeyPrefix = "notif:unread:%s"

	// TTL кеша счетчика
	unreadCountTTL = 10 * time.Minute
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	List(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*domain.Notification, int, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	Delete(ctx context.Context, recipientID, notificationID uuid.UUID) error
	DeleteOlderThan(ctx context.Context, horizon time.Time) (int64, error)
}

type notificationRepository struct {
	db  *pgxpool.Pool
	rdb *redis.Client
	log logger.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) NotificationRepository {
	return &notificationRepository{db: db, rdb: rdb, log: log}
}

func (r *notificationRepository) unreadKey(recipientID uuid.UUID) string {
	return fmt.Sprintf(unreadCountKeyPrefix, recipientID.String())
}

func (r *notificationRepository) invalidateUnread(ctx context.Context, recipientID uuid.UUID) {
	if err := r.rdb.Del(ctx, r.unreadKey(recipientID)).Err(); err != nil {
		// Потеря кеша не критична, следующий запрос пересчитает из БД
		r.log.Warn("Failed to invalidate unread cache", "error", err, "recipient_id", recipientID)
	}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_id, sender_id, type, title, body, post_id, comment_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		notification.ID, notification.RecipientID, notification.SenderID,
		notification.Type, notification.Title, notification.Body,
		notification.PostID, notification.CommentID, notification.IsRead, notification.CreatedAt,
	).Scan(&notification.CreatedAt)

	if err != nil {
		r.log.Error("Failed to create notification", "error", err, "recipient_id", notification.RecipientID)
		return err
	}

	r.invalidateUnread(ctx, notification.RecipientID)
	return nil
}

func (r *notificationRepository) List(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*domain.Notification, int, error) {
	query := `
		SELECT id, recipient_id, sender_id, type, title, body, post_id, comment_id, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, recipientID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list notifications", "error", err, "recipient_id", recipientID)
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		err := rows.Scan(
			&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Body,
			&n.PostID, &n.CommentID, &n.IsRead, &n.CreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan notification", "error", err)
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`
	if err := r.db.QueryRow(ctx, countQuery, recipientID).Scan(&total); err != nil {
		r.log.Error("Failed to count notifications", "error", err, "recipient_id", recipientID)
		return nil, 0, err
	}

	return notifications, total, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	// Сначала пробуем кеш
	cached, err := r.rdb.Get(ctx, r.unreadKey(recipientID)).Int()
	if err == nil {
		return cached, nil
	}
	if err != redis.Nil {
		r.log.Warn("Failed to read unread cache", "error", err, "recipient_id", recipientID)
	}

	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`

	var count int
	if err := r.db.QueryRow(ctx, query, recipientID).Scan(&count); err != nil {
		r.log.Error("Failed to count unread notifications", "error", err, "recipient_id", recipientID)
		return 0, err
	}

	if err := r.rdb.Set(ctx, r.unreadKey(recipientID), count, unreadCountTTL).Err(); err != nil {
		r.log.Warn("Failed to cache unread count", "error", err, "recipient_id", recipientID)
	}

	return count, nil
}

// MarkRead переводит флаг только false -> true, повторная пометка - no-op
func (r *notificationRepository) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2
	`

	tag, err := r.db.Exec(ctx, query, notificationID, recipientID)
	if err != nil {
		r.log.Error("Failed to mark notification read", "error", err, "notification_id", notificationID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotificationNotFound
	}

	r.invalidateUnread(ctx, recipientID)
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE recipient_id = $1 AND is_read = FALSE
	`

	tag, err := r.db.Exec(ctx, query, recipientID)
	if err != nil {
		r.log.Error("Failed to mark all notifications read", "error", err, "recipient_id", recipientID)
		return 0, err
	}

	r.invalidateUnread(ctx, recipientID)
	return tag.RowsAffected(), nil
}

func (r *notificationRepository) Delete(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	query := `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`

	tag, err := r.db.Exec(ctx, query, notificationID, recipientID)
	if err != nil {
		r.log.Error("Failed to delete notification", "error", err, "notification_id", notificationID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotificationNotFound
	}

	r.invalidateUnread(ctx, recipientID)
	return nil
}

// DeleteOlderThan удаляет уведомления старше горизонта хранения (maintenance sweep)
func (r *notificationRepository) DeleteOlderThan(ctx context.Context, horizon time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE created_at < $1`

	tag, err := r.db.Exec(ctx, query, horizon)
	if err != nil {
		r.log.Error("Failed to purge old notifications", "error", err)
		return 0, err
	}

	return tag.RowsAffected(), nil
}
