package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"community_hub/internal/config"
	"community_hub/internal/domain"
	"community_hub/internal/service"
	apperrors "community_hub/pkg/errors"
	"community_hub/pkg/logger"
	"community_hub/pkg/protocol"
)

// Размер страницы истории, отдаваемой при входе в комнату
const joinHistorySize = 50

// Таймаут на операции с хранилищем внутри обработчиков событий
const opTimeout = 5 * time.Second

// Hub связывает реестр сессий, индекс комнат и бизнес-логику.
// Каждый inbound-кадр обрабатывается синхронно в горутине своего
// соединения; рассылка подписчикам - независимые неблокирующие enqueue.
type Hub struct {
	registry *SessionRegistry
	rooms    *RoomIndex
	services *service.Services
	cfg      config.WebSocketConfig
	log      logger.Logger

	// Замки порядка доставки, по одному на комнату
	orderMu   sync.Mutex
	roomOrder map[uuid.UUID]*sync.Mutex

	ctx context.Context
}

func NewHub(ctx context.Context, services *service.Services, cfg config.WebSocketConfig, log logger.Logger) *Hub {
	h := &Hub{
		registry:  NewSessionRegistry(),
		rooms:     NewRoomIndex(),
		services:  services,
		cfg:       cfg,
		log:       log,
		roomOrder: make(map[uuid.UUID]*sync.Mutex),
		ctx:       ctx,
	}

	// Notification dispatcher доставляет через реестр сессий
	services.Notification.SetPusher(h)

	// Статистика читает число живых соединений из реестра
	services.Stats.SetOnlineCounter(h)

	return h
}

// HandleConnection принимает апгрейднутое соединение и запускает его pumps.
// Соединение, не прошедшее authenticate за AuthTimeout, закрывается.
func (h *Hub) HandleConnection(conn *websocket.Conn) {
	c := newClient(h, conn)

	c.mu.Lock()
	c.authTimer = time.AfterFunc(h.cfg.AuthTimeout, func() {
		if !c.isAuthenticated() {
			h.log.Debug("Closing unauthenticated connection", "connection_id", c.id)
			c.closeWithCode(websocket.ClosePolicyViolation, "authentication timeout")
		}
	})
	c.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// PushToUser доставляет событие в живое соединение пользователя.
// Реализует service.Pusher.
func (h *Hub) PushToUser(userID uuid.UUID, event string, payload any) bool {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}

	data, err := protocol.Encode(event, payload)
	if err != nil {
		h.log.Error("Failed to encode push event", "error", err, "event", event)
		return false
	}

	return h.deliver(c, data)
}

// OnlineCount возвращает число привязанных соединений (для health/статистики)
func (h *Hub) OnlineCount() int {
	return h.registry.Len()
}

// Shutdown закрывает все живые соединения going-away кадром
func (h *Hub) Shutdown() {
	for _, c := range h.registry.Snapshot() {
		c.closeWithCode(websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *Hub) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, opTimeout)
}

// handleEvent - единая точка входа inbound-кадров соединения
func (h *Hub) handleEvent(c *Client, raw []byte) {
	event, payload, err := protocol.DecodeClientEvent(raw)
	if err != nil {
		h.sendError(c, "bad_event", err.Error())
		return
	}

	if event != protocol.EventAuthenticate && !c.isAuthenticated() {
		h.sendError(c, "unauthorized", "authenticate first")
		return
	}

	switch event {
	case protocol.EventAuthenticate:
		h.handleAuthenticate(c, payload.(*protocol.AuthenticatePayload))
	case protocol.EventRoomJoin:
		h.handleRoomJoin(c, payload.(*protocol.RoomJoinPayload))
	case protocol.EventRoomLeave:
		h.handleRoomLeave(c, payload.(*protocol.RoomLeavePayload))
	case protocol.EventMessageSend:
		h.handleMessageSend(c, payload.(*protocol.MessageSendPayload))
	case protocol.EventMessageEdit:
		h.handleMessageEdit(c, payload.(*protocol.MessageEditPayload))
	case protocol.EventMessageDelete:
		h.handleMessageDelete(c, payload.(*protocol.MessageDeletePayload))
	case protocol.EventTyping:
		h.handleTyping(c, payload.(*protocol.TypingPayload))
	case protocol.EventNotificationRead:
		h.handleNotificationRead(c, payload.(*protocol.NotificationReadPayload))
	case protocol.EventNotificationReadAll:
		h.handleNotificationReadAll(c)
	}
}

func (h *Hub) handleAuthenticate(c *Client, p *protocol.AuthenticatePayload) {
	// Повторный authenticate на привязанном соединении отклоняется:
	// перепривязка под другую личность оставила бы в реестре запись
	// прежнего пользователя, указывающую на чужое соединение
	if c.isAuthenticated() {
		h.send(c, protocol.EventAuthenticated, protocol.AuthenticatedPayload{
			Success: false,
			Error:   "already authenticated",
		})
		return
	}

	ctx, cancel := h.opCtx()
	defer cancel()

	user, err := h.services.Auth.ValidateToken(ctx, p.Token)
	if err != nil {
		// Ошибка аутентификации видна только этому соединению,
		// реестр не трогаем
		h.send(c, protocol.EventAuthenticated, protocol.AuthenticatedPayload{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.setAuthenticated(user.ID)

	// Last-writer-wins: старое соединение того же пользователя
	// закрывается с отдельным кодом до привязки нового
	if replaced := h.registry.Bind(user.ID, c); replaced != nil {
		h.log.Info("Replacing live connection", "user_id", user.ID, "old_connection_id", replaced.id)
		replaced.closeWithCode(protocol.CloseReplaced, "replaced by newer connection")
		h.audit(&user.ID, nil, domain.EventTypeSessionReplaced, map[string]interface{}{
			"old_connection_id": replaced.id.String(),
			"new_connection_id": c.id.String(),
		})
	} else {
		h.audit(&user.ID, nil, domain.EventTypeSessionConnected, map[string]interface{}{
			"connection_id": c.id.String(),
		})
	}

	if err := h.services.Presence.MarkOnline(ctx, user.ID); err != nil {
		h.log.Warn("Failed to mark user online", "error", err, "user_id", user.ID)
	}

	unread, err := h.services.Notification.UnreadCount(ctx, user.ID)
	if err != nil {
		h.log.Warn("Failed to load unread count", "error", err, "user_id", user.ID)
	}

	userID := user.ID
	h.send(c, protocol.EventAuthenticated, protocol.AuthenticatedPayload{
		Success:     true,
		UserID:      &userID,
		UnreadCount: unread,
	})

	h.broadcastAll(protocol.MustEncode(protocol.EventUserOnline, protocol.PresencePayload{UserID: user.ID}), c)
}

func (h *Hub) handleRoomJoin(c *Client, p *protocol.RoomJoinPayload) {
	ctx, cancel := h.opCtx()
	defer cancel()

	userID := c.UserID()

	if err := h.services.Chat.JoinRoom(ctx, p.RoomID, userID); err != nil {
		h.sendError(c, errorCode(err), err.Error())
		return
	}

	// In-memory подписка строится заново на каждом join;
	// durable-членство уже зафиксировано выше
	h.rooms.Add(p.RoomID, c)
	c.addRoom(p.RoomID)

	history, err := h.services.Chat.History(ctx, p.RoomID, joinHistorySize, 0)
	if err != nil {
		h.log.Warn("Failed to load room history on join", "error", err, "room_id", p.RoomID)
	}

	h.send(c, protocol.EventRoomJoined, protocol.RoomJoinedPayload{
		RoomID:  p.RoomID,
		UserID:  userID,
		History: toWireMessages(history),
	})

	// Пирам в комнате сообщаем о входе без истории
	peerEvent := protocol.MustEncode(protocol.EventRoomJoined, protocol.RoomJoinedPayload{
		RoomID: p.RoomID,
		UserID: userID,
	})
	h.broadcastRoom(p.RoomID, peerEvent, c)

	h.audit(&userID, &p.RoomID, domain.EventTypeRoomJoined, nil)
}

func (h *Hub) handleRoomLeave(c *Client, p *protocol.RoomLeavePayload) {
	// Идемпотентно: выход из неподписанной комнаты - no-op
	h.rooms.Remove(p.RoomID, c)
	c.removeRoom(p.RoomID)

	userID := c.UserID()
	h.audit(&userID, &p.RoomID, domain.EventTypeRoomLeft, nil)
}

func (h *Hub) handleMessageSend(c *Client, p *protocol.MessageSendPayload) {
	ctx, cancel := h.opCtx()
	defer cancel()

	userID := c.UserID()

	allowed, err := h.services.RateLimit.AllowMessage(ctx, userID)
	if err != nil {
		h.log.Warn("Rate limit check failed, allowing message", "error", err, "user_id", userID)
	} else if !allowed {
		h.sendError(c, "rate_limited", apperrors.ErrRateLimited.Error())
		return
	}

	// Durable-запись и enqueue подписчикам идут под замком комнаты:
	// сообщение, записанное раньше, раньше попадает в очереди получателей,
	// даже когда отправители шлют с разных соединений одновременно
	order := h.roomOrderLock(p.RoomID)
	order.Lock()
	defer order.Unlock()

	message, err := h.services.Chat.SendMessage(ctx, p.RoomID, userID, p.Body, p.Type, p.ReplyTo)
	if err != nil {
		h.sendError(c, errorCode(err), err.Error())
		return
	}

	displayName := h.services.User.DisplayName(ctx, userID)

	data := protocol.MustEncode(protocol.EventMessageNew, protocol.MessageNewPayload{
		Message:           toWireMessage(message),
		SenderDisplayName: displayName,
	})

	// Fan-out всем живым подписчикам, включая сессию отправителя
	h.broadcastRoom(p.RoomID, data, nil)
}

func (h *Hub) roomOrderLock(roomID uuid.UUID) *sync.Mutex {
	h.orderMu.Lock()
	defer h.orderMu.Unlock()
	l, ok := h.roomOrder[roomID]
	if !ok {
		l = &sync.Mutex{}
		h.roomOrder[roomID] = l
	}
	return l
}

func (h *Hub) handleMessageEdit(c *Client, p *protocol.MessageEditPayload) {
	ctx, cancel := h.opCtx()
	defer cancel()

	message, err := h.services.Chat.EditMessage(ctx, p.MessageID, c.UserID(), p.Body)
	if err != nil {
		h.sendError(c, errorCode(err), err.Error())
		return
	}

	// Клиенты патчат сообщение на месте, полный кадр не пересылаем
	data := protocol.MustEncode(protocol.EventMessageEdited, protocol.MessageEditedPayload{
		MessageID: message.ID,
		Body:      message.Body,
		UpdatedAt: *message.UpdatedAt,
	})
	h.broadcastRoom(message.RoomID, data, nil)
}

func (h *Hub) handleMessageDelete(c *Client, p *protocol.MessageDeletePayload) {
	ctx, cancel := h.opCtx()
	defer cancel()

	message, err := h.services.Chat.DeleteMessage(ctx, p.MessageID, c.UserID())
	if err != nil {
		h.sendError(c, errorCode(err), err.Error())
		return
	}

	data := protocol.MustEncode(protocol.EventMessageDeleted, protocol.MessageDeletedPayload{
		MessageID: message.ID,
	})
	h.broadcastRoom(message.RoomID, data, nil)

	userID := c.UserID()
	h.audit(&userID, &message.RoomID, domain.EventTypeMessageDeleted, map[string]interface{}{
		"message_id": message.ID,
	})
}

// handleTyping ретранслирует индикатор набора остальным подписчикам.
// Состояние нигде не хранится: получатели сами гасят индикатор по таймеру.
func (h *Hub) handleTyping(c *Client, p *protocol.TypingPayload) {
	if !c.inRoom(p.RoomID) {
		return
	}

	data := protocol.MustEncode(protocol.EventUserTyping, protocol.UserTypingPayload{
		RoomID:   p.RoomID,
		UserID:   c.UserID(),
		IsTyping: p.IsTyping,
	})
	h.broadcastRoom(p.RoomID, data, c)
}

func (h *Hub) handleNotificationRead(c *Client, p *protocol.NotificationReadPayload) {
	ctx, cancel := h.opCtx()
	defer cancel()

	if err := h.services.Notification.MarkRead(ctx, c.UserID(), p.NotificationID); err != nil {
		h.sendError(c, errorCode(err), err.Error())
	}
}

func (h *Hub) handleNotificationReadAll(c *Client) {
	ctx, cancel := h.opCtx()
	defer cancel()

	if _, err := h.services.Notification.MarkAllRead(ctx, c.UserID()); err != nil {
		h.sendError(c, errorCode(err), err.Error())
	}
}

// heartbeat продлевает presence-ключ по pong-кадру соединения
func (h *Hub) heartbeat(c *Client) {
	userID := c.UserID()
	if userID == uuid.Nil {
		return
	}

	go func() {
		ctx, cancel := h.opCtx()
		defer cancel()
		h.services.Presence.Heartbeat(ctx, userID)
	}()
}

// disconnect выполняет очистку соединения; вызывается ровно один раз
// из defer readPump
func (h *Hub) disconnect(c *Client) {
	c.mu.Lock()
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	c.closed = true
	c.mu.Unlock()

	userID := c.UserID()
	if userID == uuid.Nil {
		return
	}

	h.rooms.DropClient(c, c.joinedRooms())

	// Remove сработает только если в реестре все еще это соединение;
	// при вытеснении новым соединением offline не объявляется
	if !h.registry.Remove(c) {
		return
	}

	ctx, cancel := h.opCtx()
	defer cancel()

	if err := h.services.Presence.MarkOffline(ctx, userID); err != nil {
		h.log.Warn("Failed to mark user offline", "error", err, "user_id", userID)
	}

	h.audit(&userID, nil, domain.EventTypeSessionDisconnected, map[string]interface{}{
		"connection_id": c.id.String(),
	})

	h.broadcastAll(protocol.MustEncode(protocol.EventUserOffline, protocol.PresencePayload{UserID: userID}), nil)
}

// audit пишет журнальную запись в фоне, вне пути обработки события
func (h *Hub) audit(actorUserID *uuid.UUID, roomID *uuid.UUID, eventType string, payload map[string]interface{}) {
	go func() {
		ctx, cancel := h.opCtx()
		defer cancel()
		h.services.Audit.LogEvent(ctx, actorUserID, domain.ActorRoleUser, roomID, eventType, payload)
	}()
}

// deliver - однократная best-effort доставка; переполнение очереди
// закрывает соединение, рассылающий никогда не ждет получателя
func (h *Hub) deliver(c *Client, data []byte) bool {
	if c.enqueue(data) {
		return true
	}

	h.log.Warn("Send queue overflow, dropping connection", "connection_id", c.id, "user_id", c.UserID())
	c.closeWithCode(websocket.ClosePolicyViolation, "send queue overflow")
	return false
}

func (h *Hub) broadcastRoom(roomID uuid.UUID, data []byte, except *Client) {
	for _, sub := range h.rooms.Subscribers(roomID) {
		if sub == except {
			continue
		}
		h.deliver(sub, data)
	}
}

func (h *Hub) broadcastAll(data []byte, except *Client) {
	for _, c := range h.registry.Snapshot() {
		if c == except {
			continue
		}
		h.deliver(c, data)
	}
}

func (h *Hub) send(c *Client, event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		h.log.Error("Failed to encode event", "error", err, "event", event)
		return
	}
	h.deliver(c, data)
}

func (h *Hub) sendError(c *Client, code, message string) {
	h.send(c, protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, apperrors.ErrNotAuthor):
		return "not_author"
	case errors.Is(err, apperrors.ErrEmptyBody):
		return "empty_body"
	case errors.Is(err, apperrors.ErrRoomNotFound),
		errors.Is(err, apperrors.ErrMessageNotFound),
		errors.Is(err, apperrors.ErrNotificationNotFound),
		errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidToken),
		errors.Is(err, apperrors.ErrTokenExpired),
		errors.Is(err, apperrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperrors.ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}

func toWireMessage(m *domain.Message) protocol.Message {
	return protocol.Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		AuthorID:  m.AuthorID,
		Body:      m.Body,
		Type:      m.Type,
		ReplyTo:   m.ReplyTo,
		Deleted:   m.DeletedAt != nil,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toWireMessages(messages []*domain.Message) []protocol.Message {
	if len(messages) == 0 {
		return nil
	}
	wire := make([]protocol.Message, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, toWireMessage(m))
	}
	return wire
}
