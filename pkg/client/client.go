// Package client реализует клиентскую сторону realtime-канала: жизненный
// цикл соединения, реконнект с экспоненциальным backoff, повторный вход в
// комнаты и докачку пропущенных уведомлений после восстановления связи.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"community_hub/pkg/logger"
	"community_hub/pkg/protocol"
)

// State - состояние машины соединения
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateOnline
	StateReconnecting
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOnline:
		return "online"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

var ErrNotConnected = errors.New("client: not connected")

// Handlers - колбэки приложения. Любое поле может быть nil.
// Колбэки вызываются из горутины чтения (гашение чужого typing - из
// таймера), блокировать их нельзя.
type Handlers struct {
	OnStateChange    func(State)
	OnRoomJoined     func(protocol.RoomJoinedPayload)
	OnMessage        func(protocol.MessageNewPayload)
	OnMessageEdited  func(protocol.MessageEditedPayload)
	OnMessageDeleted func(protocol.MessageDeletedPayload)
	OnTyping         func(protocol.UserTypingPayload)
	OnPresence       func(userID uuid.UUID, online bool)
	OnNotification   func(protocol.Notification)
	OnUnreadChange   func(int)
	OnServerError    func(protocol.ErrorPayload)
}

// Options - параметры клиента
type Options struct {
	WSURL  string // ws://host/ws
	APIURL string // http://host - база catch-up REST endpoints
	Token  string

	Backoff           Backoff
	HTTPClient        *http.Client
	Log               logger.Logger
	CatchupLimit      int           // размер страницы докачки уведомлений
	StoreLimit        int           // емкость локального списка уведомлений
	TypingIdle        time.Duration // авто-сброс typing после паузы ввода
	TypingExpiry      time.Duration // гашение чужого индикатора без стоп-кадра
	HandshakeTimeout  time.Duration
	WriteWait         time.Duration
	ReadIdleTimeout   time.Duration // ожидание ping от сервера
}

func (o *Options) defaults() {
	if o.Backoff.Initial == 0 {
		o.Backoff = DefaultBackoff()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if o.Log == nil {
		o.Log = logger.NewNop()
	}
	if o.CatchupLimit <= 0 {
		o.CatchupLimit = 50
	}
	if o.StoreLimit <= 0 {
		o.StoreLimit = 100
	}
	if o.TypingIdle <= 0 {
		o.TypingIdle = 3 * time.Second
	}
	if o.TypingExpiry <= 0 {
		o.TypingExpiry = 5 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.ReadIdleTimeout <= 0 {
		o.ReadIdleTimeout = 90 * time.Second
	}
}

// Client - менеджер соединения. Все таймеры реконнекта и typing живут
// внутри него, прикладной код снаружи машины состояний их не видит.
type Client struct {
	opts  Options
	h     Handlers
	log   logger.Logger
	store *notificationStore

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	gen            int // поколение попытки: выигрывает только последняя
	attempt        int
	reconnectTimer *time.Timer
	rooms          map[uuid.UUID]struct{}
	typingTimers   map[uuid.UUID]*time.Timer
	typingPeers    map[typingKey]*time.Timer
	userID         uuid.UUID
	closed         bool

	writeMu sync.Mutex
}

// New создает клиента. Соединение устанавливается вызовом Connect.
func New(opts Options, handlers Handlers) *Client {
	opts.defaults()
	return &Client{
		opts:         opts,
		h:            handlers,
		log:          opts.Log,
		store:        newNotificationStore(opts.StoreLimit),
		state:        StateDisconnected,
		rooms:        make(map[uuid.UUID]struct{}),
		typingTimers: make(map[uuid.UUID]*time.Timer),
		typingPeers:  make(map[typingKey]*time.Timer),
	}
}

// typingKey идентифицирует чужой индикатор набора
type typingKey struct {
	roomID uuid.UUID
	userID uuid.UUID
}

// State возвращает текущее состояние машины
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID возвращает идентификатор, подтвержденный сервером
func (c *Client) UserID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Notifications возвращает снимок локального списка уведомлений
func (c *Client) Notifications() []protocol.Notification {
	return c.store.List()
}

// UnreadCount пересчитывается из флагов списка, а не копится отдельно
func (c *Client) UnreadCount() int {
	return c.store.UnreadCount()
}

// Connect запускает попытку соединения. Повторный вызов из StateGivenUp
// сбрасывает счетчик попыток и начинает заново.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.state == StateConnecting || c.state == StateAuthenticating || c.state == StateOnline {
		return
	}
	c.attempt = 0
	c.startAttemptLocked()
}

// NotifyNetworkUp сигнализирует о восстановлении сети: ожидающий backoff
// отменяется и попытка запускается немедленно. В StateGivenUp не действует,
// выход оттуда только явным Connect.
func (c *Client) NotifyNetworkUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state == StateOnline || c.state == StateGivenUp || c.state == StateDisconnected {
		return
	}
	c.startAttemptLocked()
}

// Close закрывает соединение и останавливает машину насовсем
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	for _, t := range c.typingTimers {
		t.Stop()
	}
	for _, t := range c.typingPeers {
		t.Stop()
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// startAttemptLocked обрывает текущую попытку (если есть) и запускает новую.
// Инкремент поколения делает все висящие горутины прошлых попыток
// устаревшими: их результаты будут отброшены.
func (c *Client) startAttemptLocked() {
	c.gen++
	gen := c.gen

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.setStateLocked(StateConnecting)
	go c.run(gen)
}

func (c *Client) run(gen int) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.Dial(c.opts.WSURL, nil)
	if err != nil {
		c.log.Warn("Dial failed", "url", c.opts.WSURL, "error", err)
		c.attemptFailed(gen)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.setStateLocked(StateAuthenticating)
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.opts.ReadIdleTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadIdleTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteWait))
	})

	if err := c.write(conn, protocol.EventAuthenticate, &protocol.AuthenticatePayload{Token: c.opts.Token}); err != nil {
		c.log.Warn("Failed to send authenticate", "error", err)
		conn.Close()
		c.attemptFailed(gen)
		return
	}

	c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen int, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.connLost(gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadIdleTimeout))
		c.handleFrame(gen, conn, raw)
	}
}

// attemptFailed - неудача на этапе dial/handshake: планируем следующую
// попытку либо сдаемся, если лимит исчерпан
func (c *Client) attemptFailed(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return
	}
	c.attempt++
	c.scheduleLocked(gen)
}

// connLost - обрыв уже установленного соединения
func (c *Client) connLost(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return
	}
	c.log.Warn("Connection lost", "error", err)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	// Сервер закрыл соединение из-за новой сессии того же пользователя:
	// реконнект отсюда устроил бы дуэль двух клиентов, останавливаемся
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == protocol.CloseReplaced {
		c.setStateLocked(StateDisconnected)
		return
	}

	// Обрыв живого соединения начинает отсчет попыток заново
	c.attempt = 1
	c.scheduleLocked(gen)
}

func (c *Client) scheduleLocked(gen int) {
	if c.opts.Backoff.Exhausted(c.attempt) {
		c.log.Error("Reconnect attempts exhausted", "attempts", c.attempt)
		c.setStateLocked(StateGivenUp)
		return
	}

	delay := c.opts.Backoff.Delay(c.attempt - 1)
	c.setStateLocked(StateReconnecting)
	c.log.Info("Scheduling reconnect", "attempt", c.attempt, "delay", delay)

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.closed {
			return
		}
		c.startAttemptLocked()
	})
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.h.OnStateChange != nil {
		go c.h.OnStateChange(s)
	}
}

// handleFrame разбирает серверный кадр и раздает его по колбэкам
func (c *Client) handleFrame(gen int, conn *websocket.Conn, raw []byte) {
	event, payload, err := protocol.DecodeServerEvent(raw)
	if err != nil {
		// Незнакомое событие от более нового сервера не фатально
		c.log.Warn("Skipping server frame", "error", err)
		return
	}

	switch event {
	case protocol.EventAuthenticated:
		c.onAuthenticated(gen, conn, payload.(*protocol.AuthenticatedPayload))

	case protocol.EventRoomJoined:
		if c.h.OnRoomJoined != nil {
			c.h.OnRoomJoined(*payload.(*protocol.RoomJoinedPayload))
		}

	case protocol.EventMessageNew:
		if c.h.OnMessage != nil {
			c.h.OnMessage(*payload.(*protocol.MessageNewPayload))
		}

	case protocol.EventMessageEdited:
		if c.h.OnMessageEdited != nil {
			c.h.OnMessageEdited(*payload.(*protocol.MessageEditedPayload))
		}

	case protocol.EventMessageDeleted:
		if c.h.OnMessageDeleted != nil {
			c.h.OnMessageDeleted(*payload.(*protocol.MessageDeletedPayload))
		}

	case protocol.EventUserTyping:
		c.trackTyping(*payload.(*protocol.UserTypingPayload))

	case protocol.EventUserOnline:
		if c.h.OnPresence != nil {
			c.h.OnPresence(payload.(*protocol.PresencePayload).UserID, true)
		}

	case protocol.EventUserOffline:
		if c.h.OnPresence != nil {
			c.h.OnPresence(payload.(*protocol.PresencePayload).UserID, false)
		}

	case protocol.EventNotificationPush:
		n := *payload.(*protocol.Notification)
		c.store.Merge(n)
		if c.h.OnNotification != nil {
			c.h.OnNotification(n)
		}
		c.notifyUnread()

	case protocol.EventNotificationReadAck:
		c.store.MarkRead(payload.(*protocol.NotificationReadPayload).NotificationID)
		c.notifyUnread()

	case protocol.EventNotificationAllRead:
		c.store.MarkAllRead()
		c.notifyUnread()

	case protocol.EventError:
		if c.h.OnServerError != nil {
			c.h.OnServerError(*payload.(*protocol.ErrorPayload))
		}
	}
}

// trackTyping пересылает индикатор приложению и заводит таймер его
// гашения: стоп-кадр пира может потеряться вместе с его соединением
func (c *Client) trackTyping(p protocol.UserTypingPayload) {
	key := typingKey{roomID: p.RoomID, userID: p.UserID}

	c.mu.Lock()
	if t, ok := c.typingPeers[key]; ok {
		t.Stop()
		delete(c.typingPeers, key)
	}
	if p.IsTyping && !c.closed {
		c.typingPeers[key] = time.AfterFunc(c.opts.TypingExpiry, func() {
			c.expireTyping(key)
		})
	}
	c.mu.Unlock()

	if c.h.OnTyping != nil {
		c.h.OnTyping(p)
	}
}

// expireTyping синтезирует стоп-сигнал по истечении таймера
func (c *Client) expireTyping(key typingKey) {
	c.mu.Lock()
	_, ok := c.typingPeers[key]
	if ok {
		delete(c.typingPeers, key)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if c.h.OnTyping != nil {
		c.h.OnTyping(protocol.UserTypingPayload{
			RoomID:   key.roomID,
			UserID:   key.userID,
			IsTyping: false,
		})
	}
}

// onAuthenticated - вход в StateOnline: сброс счетчика попыток, возврат в
// прежние комнаты и однократная докачка пропущенных уведомлений
func (c *Client) onAuthenticated(gen int, conn *websocket.Conn, p *protocol.AuthenticatedPayload) {
	if !p.Success {
		c.log.Error("Authentication rejected", "error", p.Error)
		c.mu.Lock()
		if c.gen == gen && !c.closed {
			if c.conn != nil {
				c.conn.Close()
				c.conn = nil
			}
			// Повтор с тем же токеном бессмыслен
			c.setStateLocked(StateGivenUp)
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		return
	}
	if p.UserID != nil {
		c.userID = *p.UserID
	}
	c.attempt = 0
	c.setStateLocked(StateOnline)
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	c.mu.Unlock()

	for _, roomID := range rooms {
		if err := c.write(conn, protocol.EventRoomJoin, &protocol.RoomJoinPayload{RoomID: roomID}); err != nil {
			c.log.Warn("Room rejoin failed", "room_id", roomID, "error", err)
		}
	}

	go c.catchUp()
}

// catchUp однократно выбирает свежую страницу уведомлений через REST и
// сливает ее с локальным списком по id
func (c *Client) catchUp() {
	url := fmt.Sprintf("%s/api/v1/notifications?page=1&limit=%d", c.opts.APIURL, c.opts.CatchupLimit)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		c.log.Error("Catch-up request failed", "error", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		c.log.Error("Catch-up fetch failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.log.Error("Catch-up fetch rejected", "status", resp.StatusCode, "body", string(body))
		return
	}

	var page struct {
		Items       []protocol.Notification `json:"items"`
		TotalCount  int                     `json:"total_count"`
		UnreadCount int                     `json:"unread_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		c.log.Error("Catch-up decode failed", "error", err)
		return
	}

	c.store.MergeAll(page.Items)
	c.notifyUnread()
}

func (c *Client) notifyUnread() {
	if c.h.OnUnreadChange != nil {
		c.h.OnUnreadChange(c.store.UnreadCount())
	}
}

// JoinRoom подписывает на комнату. Комната запоминается и будет
// переподписана автоматически после каждого реконнекта.
func (c *Client) JoinRoom(roomID uuid.UUID) error {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
	return c.send(protocol.EventRoomJoin, &protocol.RoomJoinPayload{RoomID: roomID})
}

// LeaveRoom снимает подписку и убирает комнату из списка переподписки
func (c *Client) LeaveRoom(roomID uuid.UUID) error {
	c.mu.Lock()
	delete(c.rooms, roomID)
	if t, ok := c.typingTimers[roomID]; ok {
		t.Stop()
		delete(c.typingTimers, roomID)
	}
	c.mu.Unlock()
	return c.send(protocol.EventRoomLeave, &protocol.RoomLeavePayload{RoomID: roomID})
}

// SendMessage отправляет сообщение в комнату
func (c *Client) SendMessage(roomID uuid.UUID, body, messageType string, replyTo *int64) error {
	c.stopTyping(roomID)
	return c.send(protocol.EventMessageSend, &protocol.MessageSendPayload{
		RoomID:  roomID,
		Body:    body,
		Type:    messageType,
		ReplyTo: replyTo,
	})
}

// EditMessage правит свое сообщение
func (c *Client) EditMessage(messageID int64, body string) error {
	return c.send(protocol.EventMessageEdit, &protocol.MessageEditPayload{
		MessageID: messageID,
		Body:      body,
	})
}

// DeleteMessage удаляет свое сообщение
func (c *Client) DeleteMessage(messageID int64) error {
	return c.send(protocol.EventMessageDelete, &protocol.MessageDeletePayload{MessageID: messageID})
}

// SetTyping сигнализирует о наборе текста. Стоп-сигнал уйдет сам после
// паузы ввода, каждый вызов перезаводит таймер.
func (c *Client) SetTyping(roomID uuid.UUID) error {
	c.mu.Lock()
	if t, ok := c.typingTimers[roomID]; ok {
		t.Stop()
	}
	c.typingTimers[roomID] = time.AfterFunc(c.opts.TypingIdle, func() {
		c.stopTyping(roomID)
	})
	c.mu.Unlock()

	return c.send(protocol.EventTyping, &protocol.TypingPayload{RoomID: roomID, IsTyping: true})
}

func (c *Client) stopTyping(roomID uuid.UUID) {
	c.mu.Lock()
	t, ok := c.typingTimers[roomID]
	if ok {
		t.Stop()
		delete(c.typingTimers, roomID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := c.send(protocol.EventTyping, &protocol.TypingPayload{RoomID: roomID, IsTyping: false}); err != nil {
		c.log.Debug("Stop-typing send skipped", "room_id", roomID, "error", err)
	}
}

// MarkRead помечает уведомление прочитанным локально и на сервере
func (c *Client) MarkRead(notificationID uuid.UUID) error {
	c.store.MarkRead(notificationID)
	c.notifyUnread()
	return c.send(protocol.EventNotificationRead, &protocol.NotificationReadPayload{NotificationID: notificationID})
}

// MarkAllRead помечает все уведомления прочитанными
func (c *Client) MarkAllRead() error {
	c.store.MarkAllRead()
	c.notifyUnread()
	return c.send(protocol.EventNotificationReadAll, nil)
}

// send отправляет событие через текущее соединение в StateOnline
func (c *Client) send(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	online := c.state == StateOnline
	c.mu.Unlock()

	if conn == nil || !online {
		return ErrNotConnected
	}
	return c.write(conn, event, payload)
}

func (c *Client) write(conn *websocket.Conn, event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
