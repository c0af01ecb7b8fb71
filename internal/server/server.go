package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/presence"
	"github.com/chatlink-app/chatlink/internal/stats"
	"github.com/chatlink-app/chatlink/internal/types"
)

type unloadRoomRequest struct {
	roomId  string
	deleted bool
	done    chan struct{}
}

// membershipChange carries a membership event originating outside the room
// loop (HTTP join/leave/kick/ban/role updates) into the loaded room.
type membershipChange struct {
	roomId       string
	event        *types.Event
	removeUserId int
}

type ChatServer struct {
	log            *log.Logger
	db             database.ChatLinkRepository
	stats          stats.StatsProvider
	presence       *presence.Tracker
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	membershipChan chan membershipChange
	notifyChan     chan *ServerMessage
	rooms          map[string]*Room
	stop           chan struct{}
	done           chan struct{}
}

// NewChatServer creates the hub. The presence tracker may be nil, in which
// case online status is not tracked.
func NewChatServer(logger *log.Logger, db database.ChatLinkRepository, sp stats.StatsProvider, tracker *presence.Tracker) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          sp,
		presence:       tracker,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan unloadRoomRequest, 64),
		membershipChan: make(chan membershipChange, 256),
		notifyChan:     make(chan *ServerMessage, 256),
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, m := range []string{
		stats.ActiveConnections,
		stats.ActiveRooms,
		stats.MessagesSent,
		stats.RateLimitRejected,
		stats.ReceiptsUpdated,
		stats.EventsBroadcast,
	} {
		cs.stats.RegisterMetric(m)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoinRequest(joinMsg)
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection from %q", client.user.Username)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Username)
			cs.removeClient(client)
		case change := <-cs.membershipChan:
			if room, ok := cs.rooms[change.roomId]; ok {
				select {
				case room.serverEventChan <- change:
				default:
					cs.log.Printf("event channel full on room %q", room.externalId)
				}
			}
		case msg := <-cs.notifyChan:
			cs.deliverToUser(msg)
		case req := <-cs.unloadRoomChan:
			if r, ok := cs.rooms[req.roomId]; ok {
				cs.unloadRoom(r.externalId)
				r.exit <- exitReq{deleted: req.deleted}
				<-r.done
			}
			if req.done != nil {
				close(req.done)
			}
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				close(r.exit)
				<-r.done
			}

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoinRequest(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.Join.RoomId]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.externalId)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	dbRoom, err := cs.db.GetRoomByExternalId(joinMsg.Join.RoomId)
	if err != nil {
		joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
		return
	}

	room := newRoom(cs, dbRoom)
	cs.rooms[room.externalId] = room
	cs.stats.Incr(stats.ActiveRooms)
	room.joinChan <- joinMsg

	go room.start()
}

// RegisterClient hands a freshly upgraded connection to the hub.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

// UnloadRoom evicts a loaded room, notifying its clients when the room was
// deleted. It blocks until the room has exited or the context expires.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string, deleted bool) error {
	done := make(chan struct{})
	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomId: roomId, deleted: deleted, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishMembershipChange pushes a membership event produced outside the
// room loop (HTTP joins, kicks, bans, role changes) into the change feed.
// removeUserId, when non-zero, also drops that user's live connections from
// the room.
func (cs *ChatServer) PublishMembershipChange(roomId string, event *types.Event, removeUserId int) error {
	select {
	case cs.membershipChan <- membershipChange{roomId: roomId, event: event, removeUserId: removeUserId}:
		return nil
	default:
		return fmt.Errorf("membership channel full")
	}
}

// NotifyUser queues a notification for every live connection of one user.
func (cs *ChatServer) NotifyUser(userId int, msg *ServerMessage) {
	msg.UserId = userId
	select {
	case cs.notifyChan <- msg:
	default:
		cs.log.Printf("notify channel full, dropping notification for user %d", userId)
	}
}

func (cs *ChatServer) deliverToUser(msg *ServerMessage) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.clients {
		if c.user.Id == msg.UserId {
			c.queueMessage(msg)
		}
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	cs.clients[c] = struct{}{}
	cs.clientsLock.Unlock()

	cs.stats.Incr(stats.ActiveConnections)
	if cs.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cs.presence.Connected(ctx, c.user.Id); err != nil {
			cs.log.Println("presence connect:", err)
		}
	}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	delete(cs.clients, c)
	cs.clientsLock.Unlock()

	cs.stats.Decr(stats.ActiveConnections)
	if cs.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cs.presence.Disconnected(ctx, c.user.Id); err != nil {
			cs.log.Println("presence disconnect:", err)
		}
	}
}

// touchPresence refreshes the user's online TTL; called from pong handlers.
func (cs *ChatServer) touchPresence(userId int) {
	if cs.presence == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cs.presence.Heartbeat(ctx, userId); err != nil {
		cs.log.Println("presence heartbeat:", err)
	}
}

func (cs *ChatServer) unloadRoom(roomId string) {
	if _, ok := cs.rooms[roomId]; ok {
		cs.log.Printf("removing room %q", roomId)
		delete(cs.rooms, roomId)
		cs.stats.Decr(stats.ActiveRooms)
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
