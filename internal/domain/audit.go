package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog - запись журнала событий realtime-слоя. Пишется best-effort:
// сбой записи не влияет на само событие.
type AuditLog struct {
	ID          int64                  `json:"id"`
	EventTime   time.Time              `json:"event_time"`
	ActorUserID *uuid.UUID             `json:"actor_user_id,omitempty"`
	ActorRole   string                 `json:"actor_role"`
	RoomID      *uuid.UUID             `json:"room_id,omitempty"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
}

const (
	ActorRoleUser   = "user"
	ActorRoleSystem = "system"
)

const (
	EventTypeSessionConnected    = "SESSION_CONNECTED"
	EventTypeSessionReplaced     = "SESSION_REPLACED"
	EventTypeSessionDisconnected = "SESSION_DISCONNECTED"
	EventTypeRoomJoined          = "ROOM_JOINED"
	EventTypeRoomLeft            = "ROOM_LEFT"
	EventTypeMessageDeleted      = "MESSAGE_DELETED"
)
