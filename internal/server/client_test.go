package server

import (
	"testing"

	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/stats"
	"github.com/chatlink-app/chatlink/internal/testutil"
	"github.com/chatlink-app/chatlink/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be queued")
		default:
			t.Error("expected a message to be queued, but none was")
		}
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}

	// a second stop must not panic
	c.stopClient()
}

func Test_addRoom_getRoom_delRoom(t *testing.T) {
	c := &Client{rooms: make(map[string]*Room)}
	room := &Room{externalId: "room-1"}

	c.addRoom(room)
	assert.Equal(t, room, c.getRoom("room-1"), "expected to retrieve the added room")

	c.delRoom("room-1")
	assert.Nil(t, c.getRoom("room-1"), "expected the room to be forgotten")
}

func Test_routeToRoom(t *testing.T) {
	t.Run("routes publishes to the message channel", func(t *testing.T) {
		room := &Room{externalId: "room-1", clientMsgChan: make(chan *ClientMessage, 1), leaveChan: make(chan *ClientMessage, 1)}
		c := &Client{
			user:  types.User{Id: 1},
			send:  make(chan *ServerMessage, 1),
			rooms: map[string]*Room{"room-1": room},
			log:   testutil.TestLogger(t),
		}

		msg := &ClientMessage{Publish: &Publish{RoomId: "room-1", Content: "hello"}}
		c.routeToRoom(msg, "room-1", false)

		select {
		case got := <-room.clientMsgChan:
			assert.Equal(t, msg, got, "expected the message on the room's message channel")
		default:
			t.Error("expected the message to be routed to the room")
		}
	})

	t.Run("routes leaves to the leave channel", func(t *testing.T) {
		room := &Room{externalId: "room-1", clientMsgChan: make(chan *ClientMessage, 1), leaveChan: make(chan *ClientMessage, 1)}
		c := &Client{
			user:  types.User{Id: 1},
			send:  make(chan *ServerMessage, 1),
			rooms: map[string]*Room{"room-1": room},
			log:   testutil.TestLogger(t),
		}

		msg := &ClientMessage{Leave: &Leave{RoomId: "room-1"}}
		c.routeToRoom(msg, "room-1", true)

		select {
		case got := <-room.leaveChan:
			assert.Equal(t, msg, got, "expected the message on the room's leave channel")
		default:
			t.Error("expected the leave to be routed to the room")
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		c := &Client{
			user:  types.User{Id: 1},
			send:  make(chan *ServerMessage, 1),
			rooms: make(map[string]*Room),
			log:   testutil.TestLogger(t),
		}

		c.routeToRoom(&ClientMessage{BaseMessage: BaseMessage{Id: 1}}, "missing", false)

		select {
		case msg := <-c.send:
			assert.Equal(t, 404, msg.Response.ResponseCode, "expected a room not found response")
		default:
			t.Error("expected an error response")
		}
	})

	t.Run("room channel full", func(t *testing.T) {
		room := &Room{externalId: "room-1", clientMsgChan: make(chan *ClientMessage)}
		c := &Client{
			user:  types.User{Id: 1},
			send:  make(chan *ServerMessage, 1),
			rooms: map[string]*Room{"room-1": room},
			log:   testutil.TestLogger(t),
		}

		c.routeToRoom(&ClientMessage{BaseMessage: BaseMessage{Id: 1}}, "room-1", false)

		select {
		case msg := <-c.send:
			assert.Equal(t, 503, msg.Response.ResponseCode, "expected a service unavailable response")
		default:
			t.Error("expected an error response")
		}
	})
}

func Test_joinRoom(t *testing.T) {
	t.Run("queues the join on the hub", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)

		c := &Client{
			user:       types.User{Id: 1},
			chatServer: cs,
			send:       make(chan *ServerMessage, 1),
			log:        testutil.TestLogger(t),
		}

		msg := &ClientMessage{Join: &Join{RoomId: "room-1"}}
		c.joinRoom(msg)

		select {
		case got := <-cs.joinChan:
			assert.Equal(t, msg, got, "expected the join on the hub channel")
		default:
			t.Error("expected the join to be queued")
		}
	})

	t.Run("hub channel full", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatLinkRepository{}, su)
		cs.joinChan = make(chan *ClientMessage)

		c := &Client{
			user:       types.User{Id: 1},
			chatServer: cs,
			send:       make(chan *ServerMessage, 1),
			log:        testutil.TestLogger(t),
		}

		c.joinRoom(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{RoomId: "room-1"}})

		select {
		case msg := <-c.send:
			assert.Equal(t, 503, msg.Response.ResponseCode, "expected a service unavailable response")
		default:
			t.Error("expected an error response")
		}
	})
}

func Test_leaveAllRooms(t *testing.T) {
	room := &Room{externalId: "room-1", leaveChan: make(chan *ClientMessage, 1)}
	c := &Client{
		user:  types.User{Id: 1},
		rooms: map[string]*Room{"room-1": room},
		log:   testutil.TestLogger(t),
	}

	c.leaveAllRooms()

	select {
	case msg := <-room.leaveChan:
		assert.NotNil(t, msg.Leave, "expected a leave message")
		assert.Equal(t, 1, msg.UserId, "expected the user id to be set")
	default:
		t.Error("expected a leave message for each joined room")
	}
}
