package domain

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID              uuid.UUID `json:"id"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	Description     *string   `json:"description,omitempty"`
	CreatedByUserID uuid.UUID `json:"created_by_user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RoomMember struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

const (
	// Открытые комнаты: членство создается при первом join
	RoomTypeOpen = "open"
	// Закрытые комнаты: join только при существующем членстве
	RoomTypePrivate = "private"
	RoomTypeDirect  = "direct"
)

const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)
