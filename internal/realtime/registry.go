// Package realtime реализует живой слой доставки: реестр сессий,
// подписки комнат и мультиплексирование событий по WebSocket-соединениям.
package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Количество шардов реестра; контеншн ограничен шардом,
// инвариант "одно живое соединение на пользователя" сохраняется,
// так как пользователь всегда попадает в один и тот же шард
const registryShards = 16

// SessionRegistry - авторитетная карта userID -> живое соединение.
// Все мутации идут через Bind/Remove, снаружи карта не трогается.
type SessionRegistry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Client
}

func NewSessionRegistry() *SessionRegistry {
	r := &SessionRegistry{}
	for i := range r.shards {
		r.shards[i].sessions = make(map[uuid.UUID]*Client)
	}
	return r
}

func (r *SessionRegistry) shard(userID uuid.UUID) *registryShard {
	return &r.shards[int(userID[0])%registryShards]
}

// Bind привязывает соединение к пользователю (last-writer-wins).
// Возвращает вытесненное соединение, если оно было; закрыть его -
// обязанность вызывающего.
func (r *SessionRegistry) Bind(userID uuid.UUID, c *Client) *Client {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := s.sessions[userID]
	if replaced == c {
		return nil
	}
	s.sessions[userID] = c
	return replaced
}

func (r *SessionRegistry) Lookup(userID uuid.UUID) (*Client, bool) {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sessions[userID]
	return c, ok
}

// Remove снимает привязку только если в реестре все еще это соединение:
// запоздавший close старого соединения не должен вытеснить новое
func (r *SessionRegistry) Remove(c *Client) bool {
	userID := c.UserID()
	if userID == uuid.Nil {
		return false
	}

	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.sessions[userID]; ok && current == c {
		delete(s.sessions, userID)
		return true
	}
	return false
}

// Snapshot возвращает срез всех привязанных соединений
func (r *SessionRegistry) Snapshot() []*Client {
	var clients []*Client
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, c := range s.sessions {
			clients = append(clients, c)
		}
		s.mu.RUnlock()
	}
	return clients
}

func (r *SessionRegistry) Len() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		total += len(s.sessions)
		s.mu.RUnlock()
	}
	return total
}
