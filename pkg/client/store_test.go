package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community_hub/pkg/protocol"
)

func testNotification(createdAt time.Time) protocol.Notification {
	return protocol.Notification{
		ID:          uuid.New(),
		RecipientID: uuid.New(),
		SenderID:    uuid.New(),
		Type:        "comment",
		Title:       "t",
		Body:        "b",
		CreatedAt:   createdAt,
	}
}

func TestStoreMergeByID(t *testing.T) {
	s := newNotificationStore(10)
	n := testNotification(time.Now())

	// Live push и catch-up приносят одну и ту же запись
	s.Merge(n)
	s.MergeAll([]protocol.Notification{n})

	assert.Len(t, s.List(), 1)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestStoreReadFlagNotRolledBack(t *testing.T) {
	s := newNotificationStore(10)
	n := testNotification(time.Now())

	s.Merge(n)
	s.MarkRead(n.ID)
	require.Equal(t, 0, s.UnreadCount())

	// Catch-up принес устаревший непрочитанный снимок той же записи
	stale := n
	stale.IsRead = false
	s.MergeAll([]protocol.Notification{stale})

	assert.Equal(t, 0, s.UnreadCount())
}

func TestStoreBounded(t *testing.T) {
	s := newNotificationStore(5)
	base := time.Now()

	var oldest uuid.UUID
	for i := 0; i < 8; i++ {
		n := testNotification(base.Add(time.Duration(i) * time.Minute))
		n.Title = fmt.Sprintf("n%d", i)
		if i == 0 {
			oldest = n.ID
		}
		s.Merge(n)
	}

	list := s.List()
	require.Len(t, list, 5)

	// Выживают самые свежие, порядок от новых к старым
	assert.Equal(t, "n7", list[0].Title)
	assert.Equal(t, "n3", list[4].Title)
	for _, n := range list {
		assert.NotEqual(t, oldest, n.ID)
	}
}

func TestStoreUnreadRecomputed(t *testing.T) {
	s := newNotificationStore(10)
	base := time.Now()

	first := testNotification(base)
	second := testNotification(base.Add(time.Second))
	third := testNotification(base.Add(2 * time.Second))
	s.MergeAll([]protocol.Notification{first, second, third})
	require.Equal(t, 3, s.UnreadCount())

	s.MarkRead(second.ID)
	assert.Equal(t, 2, s.UnreadCount())

	// Повторный MarkRead ничего не накручивает
	s.MarkRead(second.ID)
	assert.Equal(t, 2, s.UnreadCount())

	s.MarkAllRead()
	assert.Equal(t, 0, s.UnreadCount())

	s.Remove(first.ID)
	assert.Len(t, s.List(), 2)
}
