package client

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"community_hub/pkg/protocol"
)

// notificationStore хранит ограниченный список последних уведомлений.
// Live push и catch-up fetch сливаются по id, поэтому дубликаты из гонки
// push/fetch схлопываются в одну запись. Счетчик непрочитанных всегда
// пересчитывается из флагов списка, отдельный счетчик не ведется.
type notificationStore struct {
	mu    sync.Mutex
	limit int
	items map[uuid.UUID]protocol.Notification
}

func newNotificationStore(limit int) *notificationStore {
	if limit <= 0 {
		limit = 100
	}
	return &notificationStore{
		limit: limit,
		items: make(map[uuid.UUID]protocol.Notification),
	}
}

// Merge вливает уведомление в список. Уже известная запись обновляется:
// прочитанность не откатывается назад, если локально уведомление уже
// отмечено прочитанным, а catch-up принес устаревший снимок.
func (s *notificationStore) Merge(n protocol.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.items[n.ID]; ok && prev.IsRead {
		n.IsRead = true
	}
	s.items[n.ID] = n
	s.trimLocked()
}

// MergeAll вливает страницу catch-up fetch
func (s *notificationStore) MergeAll(list []protocol.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range list {
		if prev, ok := s.items[n.ID]; ok && prev.IsRead {
			n.IsRead = true
		}
		s.items[n.ID] = n
	}
	s.trimLocked()
}

// MarkRead помечает одно уведомление прочитанным
func (s *notificationStore) MarkRead(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.items[id]; ok {
		n.IsRead = true
		s.items[id] = n
	}
}

// MarkAllRead помечает все уведомления прочитанными
func (s *notificationStore) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range s.items {
		n.IsRead = true
		s.items[id] = n
	}
}

// Remove удаляет уведомление из списка
func (s *notificationStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// UnreadCount пересчитывает число непрочитанных из флагов списка
func (s *notificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// List возвращает снимок списка, новые сверху
func (s *notificationStore) List() []protocol.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// trimLocked выбрасывает самые старые записи сверх лимита
func (s *notificationStore) trimLocked() {
	if len(s.items) <= s.limit {
		return
	}
	sorted := s.sortedLocked()
	for _, n := range sorted[s.limit:] {
		delete(s.items, n.ID)
	}
}

func (s *notificationStore) sortedLocked() []protocol.Notification {
	out := make([]protocol.Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
