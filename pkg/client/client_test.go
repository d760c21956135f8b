package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community_hub/pkg/protocol"
)

// testServer - минимальный сервер канала: принимает authenticate,
// подтверждает, остальные кадры складывает в канал
type testServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	userID uuid.UUID
	events chan protocol.Envelope
	conns  chan *websocket.Conn

	catchup []protocol.Notification
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		userID: uuid.New(),
		events: make(chan protocol.Envelope, 64),
		conns:  make(chan *websocket.Conn, 8),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ts.handleWS)
	mux.HandleFunc("/api/v1/notifications", ts.handleNotifications)

	ts.srv = httptest.NewServer(mux)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
}

func (ts *testServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ts.conns <- conn

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env protocol.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			if env.Event == protocol.EventAuthenticate {
				userID := ts.userID
				frame := protocol.MustEncode(protocol.EventAuthenticated, &protocol.AuthenticatedPayload{
					Success: true,
					UserID:  &userID,
				})
				_ = conn.WriteMessage(websocket.TextMessage, frame)
				continue
			}
			ts.events <- env
		}
	}()
}

func (ts *testServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"items":        ts.catchup,
		"total_count":  len(ts.catchup),
		"unread_count": len(ts.catchup),
	})
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %s not reached, stuck at %s", want, c.State())
}

func waitEvent(t *testing.T, ts *testServer, want string) protocol.Envelope {
	t.Helper()
	for {
		select {
		case env := <-ts.events:
			if env.Event == want {
				return env
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("event %s not received", want)
		}
	}
}

func newTestClient(ts *testServer) *Client {
	return New(Options{
		WSURL:  ts.wsURL(),
		APIURL: ts.srv.URL,
		Token:  "test-token",
		Backoff: Backoff{
			Initial:     10 * time.Millisecond,
			Max:         50 * time.Millisecond,
			Multiplier:  2,
			MaxAttempts: 3,
		},
		TypingIdle: 50 * time.Millisecond,
	}, Handlers{})
}

func TestClientConnectsAndCatchesUp(t *testing.T) {
	ts := newTestServer(t)
	ts.catchup = []protocol.Notification{
		{ID: uuid.New(), Type: "comment", CreatedAt: time.Now()},
		{ID: uuid.New(), Type: "reply", CreatedAt: time.Now()},
	}

	c := newTestClient(ts)
	defer c.Close()

	c.Connect()
	waitState(t, c, StateOnline)
	assert.Equal(t, ts.userID, c.UserID())

	// Докачка слилась в локальный список
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && c.UnreadCount() != 2 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 2, c.UnreadCount())
}

func TestClientRejoinsRoomsAfterReconnect(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(ts)
	defer c.Close()

	c.Connect()
	waitState(t, c, StateOnline)
	serverConn := <-ts.conns

	roomID := uuid.New()
	require.NoError(t, c.JoinRoom(roomID))
	waitEvent(t, ts, protocol.EventRoomJoin)

	// Обрыв: сервер рвет соединение, клиент возвращается сам
	serverConn.Close()
	waitState(t, c, StateOnline)

	// И комната переподписана без участия приложения
	env := waitEvent(t, ts, protocol.EventRoomJoin)
	var p protocol.RoomJoinPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, roomID, p.RoomID)
}

func TestClientGivesUpAfterBoundedAttempts(t *testing.T) {
	ts := newTestServer(t)
	url := ts.wsURL()
	ts.srv.Close()

	c := New(Options{
		WSURL:  url,
		APIURL: "http://127.0.0.1:1",
		Token:  "test-token",
		Backoff: Backoff{
			Initial:     5 * time.Millisecond,
			Max:         20 * time.Millisecond,
			Multiplier:  2,
			MaxAttempts: 3,
		},
	}, Handlers{})
	defer c.Close()

	c.Connect()
	waitState(t, c, StateGivenUp)

	// Из терминального состояния не выходим по сетевому сигналу
	c.NotifyNetworkUp()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateGivenUp, c.State())
}

func TestClientStopsOnReplacement(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(ts)
	defer c.Close()

	c.Connect()
	waitState(t, c, StateOnline)
	serverConn := <-ts.conns

	// Сервер вытесняет сессию новой: реконнект устроил бы дуэль клиентов
	msg := websocket.FormatCloseMessage(protocol.CloseReplaced, "replaced by newer connection")
	_ = serverConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	serverConn.Close()

	waitState(t, c, StateDisconnected)
}

func TestClientTypingAutoStop(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(ts)
	defer c.Close()

	c.Connect()
	waitState(t, c, StateOnline)

	roomID := uuid.New()
	require.NoError(t, c.SetTyping(roomID))

	env := waitEvent(t, ts, protocol.EventTyping)
	var p protocol.TypingPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.True(t, p.IsTyping)

	// Стоп-сигнал уходит сам по таймеру паузы
	env = waitEvent(t, ts, protocol.EventTyping)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.False(t, p.IsTyping)
}

func TestClientTypingIndicatorExpires(t *testing.T) {
	ts := newTestServer(t)

	typing := make(chan protocol.UserTypingPayload, 8)
	c := New(Options{
		WSURL:        ts.wsURL(),
		APIURL:       ts.srv.URL,
		Token:        "test-token",
		Backoff:      Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2, MaxAttempts: 3},
		TypingExpiry: 50 * time.Millisecond,
	}, Handlers{
		OnTyping: func(p protocol.UserTypingPayload) { typing <- p },
	})
	defer c.Close()

	c.Connect()
	waitState(t, c, StateOnline)
	serverConn := <-ts.conns

	roomID := uuid.New()
	peerID := uuid.New()
	frame := protocol.MustEncode(protocol.EventUserTyping, &protocol.UserTypingPayload{
		RoomID:   roomID,
		UserID:   peerID,
		IsTyping: true,
	})
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, frame))

	select {
	case p := <-typing:
		assert.True(t, p.IsTyping)
		assert.Equal(t, peerID, p.UserID)
	case <-time.After(3 * time.Second):
		t.Fatal("typing indicator not delivered")
	}

	// Стоп-кадр от пира потерян: индикатор гаснет сам по таймеру
	select {
	case p := <-typing:
		assert.False(t, p.IsTyping)
		assert.Equal(t, peerID, p.UserID)
		assert.Equal(t, roomID, p.RoomID)
	case <-time.After(3 * time.Second):
		t.Fatal("typing indicator never expired")
	}
}

func TestClientSendRequiresOnline(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(ts)

	err := c.SendMessage(uuid.New(), "hello", "text", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}
