package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoomIndexAddRemove(t *testing.T) {
	ri := NewRoomIndex()
	roomID := uuid.New()
	a := testClient(uuid.New())
	b := testClient(uuid.New())

	ri.Add(roomID, a)
	ri.Add(roomID, b)
	assert.Len(t, ri.Subscribers(roomID), 2)

	// Повторный Add не плодит дубликатов
	ri.Add(roomID, a)
	assert.Len(t, ri.Subscribers(roomID), 2)

	ri.Remove(roomID, a)
	subs := ri.Subscribers(roomID)
	assert.Len(t, subs, 1)
	assert.Same(t, b, subs[0])

	// Remove неподписанного - no-op
	ri.Remove(roomID, a)
	assert.Len(t, ri.Subscribers(roomID), 1)

	ri.Remove(roomID, b)
	assert.Nil(t, ri.Subscribers(roomID))
}

func TestRoomIndexUnknownRoom(t *testing.T) {
	ri := NewRoomIndex()
	assert.Nil(t, ri.Subscribers(uuid.New()))
	ri.Remove(uuid.New(), testClient(uuid.New()))
}

func TestRoomIndexDropClient(t *testing.T) {
	ri := NewRoomIndex()
	roomA := uuid.New()
	roomB := uuid.New()
	c := testClient(uuid.New())
	peer := testClient(uuid.New())

	ri.Add(roomA, c)
	ri.Add(roomB, c)
	ri.Add(roomA, peer)

	ri.DropClient(c, []uuid.UUID{roomA, roomB})

	subs := ri.Subscribers(roomA)
	assert.Len(t, subs, 1)
	assert.Same(t, peer, subs[0])
	assert.Nil(t, ri.Subscribers(roomB))
}
