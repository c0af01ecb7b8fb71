package server

import (
	"context"
	"testing"
	"time"

	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/stats"
	"github.com/chatlink-app/chatlink/internal/testutil"
	"github.com/chatlink-app/chatlink/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newTestChatServer creates a ChatServer for tests. Presence tracking is
// disabled.
func newTestChatServer(t *testing.T, db database.ChatLinkRepository, su *stats.MockStatsUpdater) *ChatServer {
	t.Helper()
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(6)

	cs, err := NewChatServer(testutil.TestLogger(t), db, su, nil)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockChatLinkRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(6)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su, nil)
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, db, cs.db, "expected database repository to be set")
	assert.NotNil(t, cs.joinChan, "expected joinChan to be initialized")
	assert.NotNil(t, cs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, cs.membershipChan, "expected membershipChan to be initialized")
	assert.NotNil(t, cs.notifyChan, "expected notifyChan to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.rooms, "expected rooms map to be initialized")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

		// Run is never started, so done is never closed
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected deadline exceeded error")
	})
}

func Test_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("Incr", stats.ActiveConnections).Once()
	su.On("Decr", stats.ActiveConnections).Once()

	cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

	c := &Client{user: types.User{Id: 1, Username: "testuser"}}
	cs.addClient(c)
	assert.Contains(t, cs.clients, c, "expected clients map to contain client")

	cs.removeClient(c)
	assert.NotContains(t, cs.clients, c, "expected clients map to not contain client after removal")
}

func Test_deliverToUser(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.ActiveConnections).Times(2)

	cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

	target := &Client{user: types.User{Id: 1}, send: make(chan *ServerMessage, 1), log: testutil.TestLogger(t)}
	other := &Client{user: types.User{Id: 2}, send: make(chan *ServerMessage, 1), log: testutil.TestLogger(t)}
	cs.addClient(target)
	cs.addClient(other)

	cs.deliverToUser(&ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{DirectMessage: &types.DirectMessage{Id: 9, Content: "hi"}},
		UserId:       1,
	})

	select {
	case msg := <-target.send:
		assert.NotNil(t, msg.Notification, "expected a notification")
		assert.Equal(t, 9, msg.Notification.DirectMessage.Id, "expected the direct message payload")
	default:
		t.Error("expected target client to receive the notification")
	}

	select {
	case <-other.send:
		t.Error("expected other users' clients to receive nothing")
	default:
	}
}

func TestPublishMembershipChange(t *testing.T) {
	t.Run("queues the change", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

		event := &types.Event{Table: types.TableMembers, Action: types.ActionInsert, RoomId: "room-1"}
		err := cs.PublishMembershipChange("room-1", event, 0)
		assert.NoError(t, err, "expected no error queueing membership change")

		select {
		case change := <-cs.membershipChan:
			assert.Equal(t, "room-1", change.roomId, "expected room id to match")
			assert.Equal(t, event, change.event, "expected event to match")
		default:
			t.Error("expected membership change to be queued")
		}
	})

	t.Run("fails when the channel is full", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)
		cs.membershipChan = make(chan membershipChange)

		err := cs.PublishMembershipChange("room-1", nil, 0)
		assert.Error(t, err, "expected an error when the channel is full")
	})
}

func TestNotifyUser(t *testing.T) {
	t.Run("queues the notification", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

		cs.NotifyUser(7, &ServerMessage{BaseMessage: BaseMessage{Timestamp: Now()}})

		select {
		case msg := <-cs.notifyChan:
			assert.Equal(t, 7, msg.UserId, "expected the target user id to be set")
		default:
			t.Error("expected notification to be queued")
		}
	})

	t.Run("drops when the channel is full", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)
		cs.notifyChan = make(chan *ServerMessage)

		// must not block
		cs.NotifyUser(7, &ServerMessage{BaseMessage: BaseMessage{Timestamp: Now()}})
	})
}

func TestUnloadRoom(t *testing.T) {
	t.Run("unknown room completes immediately", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

		go cs.Run()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			cs.Shutdown(ctx)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.UnloadRoom(ctx, "no-such-room", false)
		assert.NoError(t, err, "expected unloading an unknown room to succeed")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

		// Run is never started, so the request is queued but never served
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := cs.UnloadRoom(ctx, "room-1", false)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected deadline exceeded error")
	})
}

func Test_handleJoinRequest(t *testing.T) {
	t.Run("routes to a loaded room", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

		room := &Room{externalId: "room-1", joinChan: make(chan *ClientMessage, 1)}
		cs.rooms["room-1"] = room

		join := &ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Join:        &Join{RoomId: "room-1"},
			client:      &Client{send: make(chan *ServerMessage, 1), log: testutil.TestLogger(t)},
		}
		cs.handleJoinRequest(join)

		select {
		case got := <-room.joinChan:
			assert.Equal(t, join, got, "expected join message to be routed to the room")
		default:
			t.Error("expected join message on the room's join channel")
		}
	})

	t.Run("responds with not found for unknown rooms", func(t *testing.T) {
		db := &database.MockChatLinkRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "missing").Return(database.Room{}, assert.AnError).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)

		client := &Client{send: make(chan *ServerMessage, 1), log: testutil.TestLogger(t)}
		cs.handleJoinRequest(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Join:        &Join{RoomId: "missing"},
			client:      client,
		})

		select {
		case msg := <-client.send:
			assert.Equal(t, 404, msg.Response.ResponseCode, "expected room not found response")
		default:
			t.Error("expected an error response for the client")
		}
	})
}
