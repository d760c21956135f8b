package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// RoomIndex - in-memory множества живых подписчиков по комнатам.
// Это кеш поверх durable-членства: перестраивается на каждом (re)join
// и никогда не считается источником истины о членстве.
type RoomIndex struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[*Client]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{
		subscribers: make(map[uuid.UUID]map[*Client]struct{}),
	}
}

func (ri *RoomIndex) Add(roomID uuid.UUID, c *Client) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	set, ok := ri.subscribers[roomID]
	if !ok {
		set = make(map[*Client]struct{})
		ri.subscribers[roomID] = set
	}
	set[c] = struct{}{}
}

// Remove идемпотентен: отписка неподписанного соединения - no-op
func (ri *RoomIndex) Remove(roomID uuid.UUID, c *Client) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	ri.removeLocked(roomID, c)
}

func (ri *RoomIndex) removeLocked(roomID uuid.UUID, c *Client) {
	set, ok := ri.subscribers[roomID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(ri.subscribers, roomID)
	}
}

// Subscribers возвращает срез текущих живых подписчиков комнаты;
// пересчитывается на каждый вызов и не кешируется
func (ri *RoomIndex) Subscribers(roomID uuid.UUID) []*Client {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	set, ok := ri.subscribers[roomID]
	if !ok {
		return nil
	}

	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// DropClient убирает соединение из всех его комнат. Обходим только
// joined-список самого соединения, а не все комнаты.
func (ri *RoomIndex) DropClient(c *Client, joined []uuid.UUID) {
	if len(joined) == 0 {
		return
	}

	ri.mu.Lock()
	defer ri.mu.Unlock()

	for _, roomID := range joined {
		ri.removeLocked(roomID, c)
	}
}
