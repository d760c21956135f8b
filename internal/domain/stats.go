package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoomActivityStats - сводка активности одной комнаты
type RoomActivityStats struct {
	RoomID        uuid.UUID  `json:"room_id"`
	MemberCount   int        `json:"member_count"`
	MessageCount  int64      `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// DeliveryStats - сводка по подсистеме доставки в целом
type DeliveryStats struct {
	OnlineConnections    int   `json:"online_connections"`
	ActiveRoomsLastDay   int   `json:"active_rooms_last_day"`
	MessagesLastDay      int64 `json:"messages_last_day"`
	UnreadNotifications  int64 `json:"unread_notifications"`
}
