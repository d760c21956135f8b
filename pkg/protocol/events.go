// Package protocol описывает wire-контракт realtime-канала: закрытый набор
// типизированных событий клиент<->сервер поверх JSON envelope.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// События клиент -> сервер
const (
	EventAuthenticate        = "authenticate"
	EventRoomJoin            = "room.join"
	EventRoomLeave           = "room.leave"
	EventMessageSend         = "message.send"
	EventMessageEdit         = "message.edit"
	EventMessageDelete       = "message.delete"
	EventTyping              = "typing"
	EventNotificationRead    = "notification.read"
	EventNotificationReadAll = "notification.readAll"
)

// События сервер -> клиент
const (
	EventAuthenticated       = "authenticated"
	EventRoomJoined          = "room.joined"
	EventMessageNew          = "message.new"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventUserTyping          = "user.typing"
	EventUserOnline          = "user.online"
	EventUserOffline         = "user.offline"
	EventNotificationPush    = "notification.push"
	EventNotificationReadAck = "notification.read"
	EventNotificationAllRead = "notification.allRead"
	EventError               = "error"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedEvent = errors.New("malformed event")
)

// CloseReplaced - код закрытия при принудительном вытеснении соединения
// новой сессией того же пользователя (вне диапазона стандартных 1xxx)
const CloseReplaced = 4001

// Envelope - транспортная обертка: имя события + полезная нагрузка
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message - wire-представление сообщения чата (контракт catch-up REST и ws)
type Message struct {
	ID        int64      `json:"id"`
	RoomID    uuid.UUID  `json:"room_id"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Body      string     `json:"body"`
	Type      string     `json:"type"`
	ReplyTo   *int64     `json:"reply_to,omitempty"`
	Deleted   bool       `json:"deleted"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Notification - wire-представление уведомления
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

// Полезные нагрузки клиент -> сервер

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type RoomJoinPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

type RoomLeavePayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

type MessageSendPayload struct {
	RoomID  uuid.UUID `json:"room_id"`
	Body    string    `json:"body"`
	Type    string    `json:"type"`
	ReplyTo *int64    `json:"reply_to,omitempty"`
}

type MessageEditPayload struct {
	MessageID int64  `json:"message_id"`
	Body      string `json:"body"`
}

type MessageDeletePayload struct {
	MessageID int64 `json:"message_id"`
}

type TypingPayload struct {
	RoomID   uuid.UUID `json:"room_id"`
	IsTyping bool      `json:"is_typing"`
}

type NotificationReadPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

// Полезные нагрузки сервер -> клиент

type AuthenticatedPayload struct {
	Success     bool       `json:"success"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	UnreadCount int        `json:"unread_count"`
}

type RoomJoinedPayload struct {
	RoomID uuid.UUID `json:"room_id"`
	UserID uuid.UUID `json:"user_id"`
	// История отдается только самому вошедшему, у остальных пустая
	History []Message `json:"history,omitempty"`
}

type MessageNewPayload struct {
	Message
	SenderDisplayName string `json:"sender_display_name"`
}

type MessageEditedPayload struct {
	MessageID int64     `json:"message_id"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MessageDeletedPayload struct {
	MessageID int64 `json:"message_id"`
}

type UserTypingPayload struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
}

type PresencePayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode упаковывает событие в envelope
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// MustEncode - вариант Encode для заведомо сериализуемых структур
func MustEncode(event string, payload any) []byte {
	data, err := Encode(event, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// DecodeClientEvent разбирает входящий кадр от клиента. Неизвестное имя
// события или битый JSON отклоняются типизированной ошибкой на границе,
// до того как кадр попадет в обработку.
func DecodeClientEvent(raw []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var payload any
	switch env.Event {
	case EventAuthenticate:
		payload = &AuthenticatePayload{}
	case EventRoomJoin:
		payload = &RoomJoinPayload{}
	case EventRoomLeave:
		payload = &RoomLeavePayload{}
	case EventMessageSend:
		payload = &MessageSendPayload{}
	case EventMessageEdit:
		payload = &MessageEditPayload{}
	case EventMessageDelete:
		payload = &MessageDeletePayload{}
	case EventTyping:
		payload = &TypingPayload{}
	case EventNotificationRead:
		payload = &NotificationReadPayload{}
	case EventNotificationReadAll:
		return env.Event, nil, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return "", nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Event, err)
		}
	}

	return env.Event, payload, nil
}

// DecodeServerEvent разбирает входящий кадр на стороне клиента
func DecodeServerEvent(raw []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var payload any
	switch env.Event {
	case EventAuthenticated:
		payload = &AuthenticatedPayload{}
	case EventRoomJoined:
		payload = &RoomJoinedPayload{}
	case EventMessageNew:
		payload = &MessageNewPayload{}
	case EventMessageEdited:
		payload = &MessageEditedPayload{}
	case EventMessageDeleted:
		payload = &MessageDeletedPayload{}
	case EventUserTyping:
		payload = &UserTypingPayload{}
	case EventUserOnline, EventUserOffline:
		payload = &PresencePayload{}
	case EventNotificationPush:
		payload = &Notification{}
	case EventNotificationReadAck:
		payload = &NotificationReadPayload{}
	case EventNotificationAllRead:
		return env.Event, nil, nil
	case EventError:
		payload = &ErrorPayload{}
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return "", nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Event, err)
		}
	}

	return env.Event, payload, nil
}
