package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(userID uuid.UUID) *Client {
	return &Client{
		id:     uuid.New(),
		userID: userID,
		rooms:  make(map[uuid.UUID]struct{}),
	}
}

func TestRegistryBind(t *testing.T) {
	t.Run("first bind has nothing to replace", func(t *testing.T) {
		r := NewSessionRegistry()
		userID := uuid.New()
		c := testClient(userID)

		assert.Nil(t, r.Bind(userID, c))

		got, ok := r.Lookup(userID)
		require.True(t, ok)
		assert.Same(t, c, got)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("second bind evicts the first", func(t *testing.T) {
		r := NewSessionRegistry()
		userID := uuid.New()
		first := testClient(userID)
		second := testClient(userID)

		require.Nil(t, r.Bind(userID, first))
		replaced := r.Bind(userID, second)
		assert.Same(t, first, replaced)

		// В любой момент привязано ровно одно соединение
		got, ok := r.Lookup(userID)
		require.True(t, ok)
		assert.Same(t, second, got)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("rebind of the same connection is a no-op", func(t *testing.T) {
		r := NewSessionRegistry()
		userID := uuid.New()
		c := testClient(userID)

		require.Nil(t, r.Bind(userID, c))
		assert.Nil(t, r.Bind(userID, c))
		assert.Equal(t, 1, r.Len())
	})
}

func TestRegistryRemove(t *testing.T) {
	t.Run("removes own binding", func(t *testing.T) {
		r := NewSessionRegistry()
		userID := uuid.New()
		c := testClient(userID)
		r.Bind(userID, c)

		assert.True(t, r.Remove(c))
		_, ok := r.Lookup(userID)
		assert.False(t, ok)
	})

	t.Run("stale connection cannot evict the newer one", func(t *testing.T) {
		r := NewSessionRegistry()
		userID := uuid.New()
		old := testClient(userID)
		fresh := testClient(userID)

		r.Bind(userID, old)
		r.Bind(userID, fresh)

		// Запоздавший close старого соединения
		assert.False(t, r.Remove(old))

		got, ok := r.Lookup(userID)
		require.True(t, ok)
		assert.Same(t, fresh, got)
	})

	t.Run("unauthenticated connection is not registered", func(t *testing.T) {
		r := NewSessionRegistry()
		assert.False(t, r.Remove(testClient(uuid.Nil)))
	})
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewSessionRegistry()
	for i := 0; i < 20; i++ {
		userID := uuid.New()
		r.Bind(userID, testClient(userID))
	}

	assert.Len(t, r.Snapshot(), 20)
	assert.Equal(t, 20, r.Len())
}
