package protocol

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientEvent(t *testing.T) {
	t.Run("message.send", func(t *testing.T) {
		roomID := uuid.New()
		raw := MustEncode(EventMessageSend, &MessageSendPayload{
			RoomID: roomID,
			Body:   "hello",
			Type:   "text",
		})

		event, payload, err := DecodeClientEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, EventMessageSend, event)

		p, ok := payload.(*MessageSendPayload)
		require.True(t, ok)
		assert.Equal(t, roomID, p.RoomID)
		assert.Equal(t, "hello", p.Body)
	})

	t.Run("payload-less event", func(t *testing.T) {
		event, payload, err := DecodeClientEvent([]byte(`{"event":"notification.readAll"}`))
		require.NoError(t, err)
		assert.Equal(t, EventNotificationReadAll, event)
		assert.Nil(t, payload)
	})

	t.Run("unknown event rejected", func(t *testing.T) {
		_, _, err := DecodeClientEvent([]byte(`{"event":"room.explode","data":{}}`))
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		_, _, err := DecodeClientEvent([]byte(`{"event":`))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("malformed payload rejected", func(t *testing.T) {
		_, _, err := DecodeClientEvent([]byte(`{"event":"room.join","data":{"room_id":42}}`))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("server event is unknown on the server side", func(t *testing.T) {
		_, _, err := DecodeClientEvent([]byte(`{"event":"message.new","data":{}}`))
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})
}

func TestDecodeServerEvent(t *testing.T) {
	t.Run("notification.push", func(t *testing.T) {
		n := Notification{
			ID:          uuid.New(),
			RecipientID: uuid.New(),
			SenderID:    uuid.New(),
			Type:        "comment",
			Title:       "New comment",
			Body:        "look",
		}
		raw := MustEncode(EventNotificationPush, n)

		event, payload, err := DecodeServerEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, EventNotificationPush, event)

		got, ok := payload.(*Notification)
		require.True(t, ok)
		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, n.Title, got.Title)
	})

	t.Run("presence events share a payload", func(t *testing.T) {
		userID := uuid.New()

		for _, name := range []string{EventUserOnline, EventUserOffline} {
			raw := MustEncode(name, &PresencePayload{UserID: userID})
			event, payload, err := DecodeServerEvent(raw)
			require.NoError(t, err)
			assert.Equal(t, name, event)
			assert.Equal(t, userID, payload.(*PresencePayload).UserID)
		}
	})

	t.Run("unknown event rejected", func(t *testing.T) {
		_, _, err := DecodeServerEvent([]byte(`{"event":"metrics.tick"}`))
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})
}

func TestEncodeEmptyPayload(t *testing.T) {
	raw, err := Encode(EventNotificationAllRead, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"notification.allRead"}`, string(raw))
}
