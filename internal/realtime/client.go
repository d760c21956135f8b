package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client - одно живое WebSocket-соединение. Владеет им реестр:
// создается на апгрейде, уничтожается на закрытии транспорта или
// при вытеснении более новым соединением того же пользователя.
type Client struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn

	// Исходящая очередь; переполнение закрывает соединение,
	// медленный получатель не задерживает рассылку остальным
	send chan []byte

	mu              sync.Mutex
	userID          uuid.UUID
	authenticatedAt time.Time
	rooms           map[uuid.UUID]struct{}
	closed          bool

	authTimer *time.Timer
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.New(),
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, hub.cfg.SendQueueSize),
		rooms: make(map[uuid.UUID]struct{}),
	}
}

func (c *Client) ID() uuid.UUID {
	return c.id
}

func (c *Client) UserID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) isAuthenticated() bool {
	return c.UserID() != uuid.Nil
}

func (c *Client) setAuthenticated(userID uuid.UUID) {
	c.mu.Lock()
	c.userID = userID
	c.authenticatedAt = time.Now()
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	c.mu.Unlock()
}

func (c *Client) addRoom(roomID uuid.UUID) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(roomID uuid.UUID) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (c *Client) inRoom(roomID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Client) joinedRooms() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// enqueue - неблокирующая постановка кадра в исходящую очередь.
// false означает, что соединение закрыто или очередь переполнена.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeWithCode отправляет close-кадр и рвет транспорт. Идемпотентен.
func (c *Client) closeWithCode(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	c.mu.Unlock()

	deadline := time.Now().Add(c.hub.cfg.WriteWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}

// readPump читает входящие кадры и отдает их hub'у. Выход из цикла -
// единственная точка, где запускается очистка соединения.
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
		c.hub.heartbeat(c)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("Unexpected websocket close", "error", err, "connection_id", c.id)
			}
			return
		}

		c.hub.handleEvent(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
