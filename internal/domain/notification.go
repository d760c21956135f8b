package domain

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID          uuid.UUID  `json:"id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	PostID      *uuid.UUID `json:"post_id,omitempty"`
	CommentID   *uuid.UUID `json:"comment_id,omitempty"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
}

const (
	NotificationTypeComment = "comment"
	NotificationTypeReply   = "reply"
	NotificationTypeLike    = "like"
)
