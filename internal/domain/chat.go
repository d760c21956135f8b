package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID        int64      `json:"id"`
	RoomID    uuid.UUID  `json:"room_id"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Body      string     `json:"body"`
	Type      string     `json:"type"`
	ReplyTo   *int64     `json:"reply_to,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)
