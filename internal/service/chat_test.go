package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community_hub/internal/domain"
	apperrors "community_hub/pkg/errors"
	"community_hub/pkg/logger"
)

// fakeMessageRepo - in-memory замена MessageRepository
type fakeMessageRepo struct {
	nextID   int64
	messages map[int64]*domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{nextID: 1, messages: make(map[int64]*domain.Message)}
}

func (r *fakeMessageRepo) Create(_ context.Context, m *domain.Message) error {
	m.ID = r.nextID
	r.nextID++
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	m, ok := r.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

// ListByRoom отдает страницу от новых к старым, как SQL-реализация
func (r *fakeMessageRepo) ListByRoom(_ context.Context, roomID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	var all []*domain.Message
	for id := r.nextID - 1; id >= 1; id-- {
		m, ok := r.messages[id]
		if !ok || m.RoomID != roomID || m.DeletedAt != nil {
			continue
		}
		cp := *m
		all = append(all, &cp)
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeMessageRepo) UpdateBody(_ context.Context, id int64, body string) (time.Time, error) {
	m, ok := r.messages[id]
	if !ok {
		return time.Time{}, apperrors.ErrMessageNotFound
	}
	now := time.Now()
	m.Body = body
	m.UpdatedAt = &now
	return now, nil
}

func (r *fakeMessageRepo) SoftDelete(_ context.Context, id int64) error {
	m, ok := r.messages[id]
	if !ok {
		return apperrors.ErrMessageNotFound
	}
	now := time.Now()
	m.DeletedAt = &now
	return nil
}

// fakeRoomRepo - in-memory замена RoomRepository
type fakeRoomRepo struct {
	rooms   map[uuid.UUID]*domain.Room
	members map[uuid.UUID]map[uuid.UUID]bool
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:   make(map[uuid.UUID]*domain.Room),
		members: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (r *fakeRoomRepo) addRoom(roomType string) uuid.UUID {
	id := uuid.New()
	r.rooms[id] = &domain.Room{ID: id, Type: roomType, Title: "room"}
	r.members[id] = make(map[uuid.UUID]bool)
	return id
}

func (r *fakeRoomRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Room, error) {
	room, ok := r.rooms[id]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return room, nil
}

func (r *fakeRoomRepo) IsMember(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	return r.members[roomID][userID], nil
}

func (r *fakeRoomRepo) AddMember(_ context.Context, m *domain.RoomMember) error {
	r.members[m.RoomID][m.UserID] = true
	return nil
}

func (r *fakeRoomRepo) ListRoomIDsForUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for roomID, members := range r.members {
		if members[userID] {
			out = append(out, roomID)
		}
	}
	return out, nil
}

func newChatFixture() (ChatService, *fakeMessageRepo, *fakeRoomRepo) {
	messageRepo := newFakeMessageRepo()
	roomRepo := newFakeRoomRepo()
	svc := NewChatService(messageRepo, roomRepo, logger.NewNop())
	return svc, messageRepo, roomRepo
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("empty body rejected", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)
		userID := uuid.New()
		roomRepo.members[roomID][userID] = true

		_, err := svc.SendMessage(ctx, roomID, userID, "   \n\t ", "", nil)
		assert.ErrorIs(t, err, apperrors.ErrEmptyBody)
	})

	t.Run("non-member rejected", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)

		_, err := svc.SendMessage(ctx, roomID, uuid.New(), "hello", "", nil)
		assert.ErrorIs(t, err, apperrors.ErrNotAMember)
	})

	t.Run("persisted with defaults", func(t *testing.T) {
		svc, messageRepo, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)
		userID := uuid.New()
		roomRepo.members[roomID][userID] = true

		msg, err := svc.SendMessage(ctx, roomID, userID, "  hello  ", "", nil)
		require.NoError(t, err)
		assert.Equal(t, "hello", msg.Body)
		assert.Equal(t, domain.MessageTypeText, msg.Type)
		assert.NotZero(t, msg.ID)

		stored, err := messageRepo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello", stored.Body)
	})
}

func TestEditMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("only author can edit", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)
		author := uuid.New()
		roomRepo.members[roomID][author] = true

		msg, err := svc.SendMessage(ctx, roomID, author, "original", "", nil)
		require.NoError(t, err)

		_, err = svc.EditMessage(ctx, msg.ID, uuid.New(), "hacked")
		assert.ErrorIs(t, err, apperrors.ErrNotAuthor)

		// Сообщение не изменилось
		history, err := svc.History(ctx, roomID, 50, 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "original", history[0].Body)
	})

	t.Run("author edit updates body", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)
		author := uuid.New()
		roomRepo.members[roomID][author] = true

		msg, err := svc.SendMessage(ctx, roomID, author, "original", "", nil)
		require.NoError(t, err)

		edited, err := svc.EditMessage(ctx, msg.ID, author, "edited")
		require.NoError(t, err)
		assert.Equal(t, "edited", edited.Body)
		require.NotNil(t, edited.UpdatedAt)

		// История отражает только новый текст
		history, err := svc.History(ctx, roomID, 50, 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "edited", history[0].Body)
	})

	t.Run("deleted message cannot be edited", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)
		author := uuid.New()
		roomRepo.members[roomID][author] = true

		msg, err := svc.SendMessage(ctx, roomID, author, "bye", "", nil)
		require.NoError(t, err)

		_, err = svc.DeleteMessage(ctx, msg.ID, author)
		require.NoError(t, err)

		_, err = svc.EditMessage(ctx, msg.ID, author, "resurrect")
		assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
	})
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("only author can delete", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)
		author := uuid.New()
		roomRepo.members[roomID][author] = true

		msg, err := svc.SendMessage(ctx, roomID, author, "keep me", "", nil)
		require.NoError(t, err)

		_, err = svc.DeleteMessage(ctx, msg.ID, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrNotAuthor)
	})

	t.Run("deleted message leaves history", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)
		author := uuid.New()
		roomRepo.members[roomID][author] = true

		first, err := svc.SendMessage(ctx, roomID, author, "first", "", nil)
		require.NoError(t, err)
		_, err = svc.SendMessage(ctx, roomID, author, "second", "", nil)
		require.NoError(t, err)

		_, err = svc.DeleteMessage(ctx, first.ID, author)
		require.NoError(t, err)

		history, err := svc.History(ctx, roomID, 50, 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "second", history[0].Body)
	})
}

func TestHistoryChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	svc, _, roomRepo := newChatFixture()
	roomID := roomRepo.addRoom(domain.RoomTypeOpen)
	author := uuid.New()
	roomRepo.members[roomID][author] = true

	for _, body := range []string{"one", "two", "three"} {
		_, err := svc.SendMessage(ctx, roomID, author, body, "", nil)
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, roomID, 50, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Body)
	assert.Equal(t, "two", history[1].Body)
	assert.Equal(t, "three", history[2].Body)
}

func TestJoinRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("open room admits on first join", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypeOpen)
		userID := uuid.New()

		require.NoError(t, svc.JoinRoom(ctx, roomID, userID))

		isMember, err := svc.IsMember(ctx, roomID, userID)
		require.NoError(t, err)
		assert.True(t, isMember)
	})

	t.Run("private room requires existing membership", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypePrivate)

		err := svc.JoinRoom(ctx, roomID, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrNotAMember)
	})

	t.Run("existing member join is a no-op", func(t *testing.T) {
		svc, _, roomRepo := newChatFixture()
		roomID := roomRepo.addRoom(domain.RoomTypePrivate)
		userID := uuid.New()
		roomRepo.members[roomID][userID] = true

		assert.NoError(t, svc.JoinRoom(ctx, roomID, userID))
	})

	t.Run("unknown room", func(t *testing.T) {
		svc, _, _ := newChatFixture()
		err := svc.JoinRoom(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
	})
}
