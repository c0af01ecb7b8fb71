package server

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/stats"
	"github.com/chatlink-app/chatlink/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	deleted bool
}

type Room struct {
	id              int
	externalId      string
	cs              *ChatServer
	joinChan        chan *ClientMessage
	leaveChan       chan *ClientMessage
	clientMsgChan   chan *ClientMessage
	serverEventChan chan membershipChange
	clients         map[*Client]struct{}
	userMap         map[int]map[*Client]struct{}
	clientLock      sync.RWMutex
	log             *log.Logger
	// killTimer unloads the room once it has been idle with no clients
	killTimer *time.Timer
	// exit signals the room loop to stop
	exit chan exitReq
	done chan struct{}
}

func newRoom(cs *ChatServer, dbRoom database.Room) *Room {
	return &Room{
		id:              dbRoom.Id,
		externalId:      dbRoom.ExternalId,
		cs:              cs,
		joinChan:        make(chan *ClientMessage, 256),
		leaveChan:       make(chan *ClientMessage, 256),
		clientMsgChan:   make(chan *ClientMessage, 256),
		serverEventChan: make(chan membershipChange, 64),
		clients:         make(map[*Client]struct{}),
		userMap:         make(map[int]map[*Client]struct{}),
		log:             cs.log,
		exit:            make(chan exitReq),
		done:            make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.Publish != nil:
				r.handlePublish(msg)
			case msg.Edit != nil:
				r.handleEdit(msg)
			case msg.Delete != nil:
				r.handleDelete(msg)
			case msg.Read != nil:
				r.handleRead(msg)
			}
		case change := <-r.serverEventChan:
			r.handleServerEvent(change)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.externalId}:
	default:
		// hub is busy; try again on the next idle period
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)
	if e.deleted {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomId: r.externalId},
			},
		})
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clientLock.Unlock()

	close(r.done)
}

func (r *Room) handleJoin(join *ClientMessage) {
	// stop the kill timer since we have a client
	r.killTimer.Stop()
	c := join.client

	resetIfEmpty := func() {
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
	}

	banned, err := r.cs.db.IsBanned(r.id, c.user.Id)
	if err != nil {
		r.log.Println("IsBanned:", err)
		resetIfEmpty()
		c.queueMessage(ErrInternalError(join.Id))
		return
	}
	if banned {
		resetIfEmpty()
		c.queueMessage(ErrForbidden(join.Id, "you are banned from this room"))
		return
	}

	member, err := r.cs.db.GetMember(r.id, c.user.Id)
	if errors.Is(err, sql.ErrNoRows) {
		member, err = r.admitNewMember(join)
		if err != nil {
			resetIfEmpty()
			return
		}
	} else if err != nil {
		r.log.Println("GetMember:", err)
		resetIfEmpty()
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	dbRoom, err := r.cs.db.GetRoomByExternalId(r.externalId)
	if err != nil {
		r.log.Println("GetRoomByExternalId:", err)
		resetIfEmpty()
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	members, err := r.cs.db.ListMembers(r.id)
	if err != nil {
		r.log.Println("ListMembers:", err)
		resetIfEmpty()
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	r.addClient(c)

	role := types.Role(member.Role)
	room := toRoom(dbRoom, members)
	if !role.AtLeast(types.RoleAdmin) {
		// invite codes are only shown to admins and the owner
		room.InviteCode = ""
	}

	c.queueMessage(NoErrOK(join.Id, types.RoomSnapshot{Room: room, Role: role}))
}

// admitNewMember creates a membership row for a first-time joiner, checking
// the room password for private rooms. Errors are reported to the client.
func (r *Room) admitNewMember(join *ClientMessage) (database.Member, error) {
	c := join.client

	dbRoom, err := r.cs.db.GetRoomByExternalId(r.externalId)
	if err != nil {
		r.log.Println("GetRoomByExternalId:", err)
		c.queueMessage(ErrInternalError(join.Id))
		return database.Member{}, err
	}

	if dbRoom.IsPrivate && dbRoom.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(dbRoom.PasswordHash), []byte(join.Join.Password)) != nil {
			err := errors.New("invalid room password")
			c.queueMessage(ErrForbidden(join.Id, err.Error()))
			return database.Member{}, err
		}
	}

	r.log.Printf("adding member %q to room %q", c.user.Username, r.externalId)
	member, err := r.cs.db.AddMember(r.id, c.user.Id, string(types.RoleMember))
	if err != nil {
		r.log.Println("AddMember:", err)
		c.queueMessage(ErrInternalError(join.Id))
		return database.Member{}, err
	}

	m := toMember(member)
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Event: &types.Event{
			Table:  types.TableMembers,
			Action: types.ActionInsert,
			RoomId: r.externalId,
			Member: &m,
		},
	})

	return member, nil
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	client := leaveMsg.client

	if leaveMsg.Leave.Unsubscribe {
		r.log.Printf("removing membership of %q in room %q", client.user.Username, r.externalId)
		member, err := r.cs.db.GetMember(r.id, leaveMsg.UserId)
		if err != nil {
			r.log.Println("GetMember:", err)
			client.queueMessage(ErrInternalError(leaveMsg.Id))
			return
		}

		if err := r.cs.db.RemoveMember(r.id, leaveMsg.UserId); err != nil {
			r.log.Println("RemoveMember:", err)
			client.queueMessage(ErrInternalError(leaveMsg.Id))
			return
		}

		r.removeAllClientsForUser(leaveMsg.UserId)
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))

		m := toMember(member)
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Event: &types.Event{
				Table:  types.TableMembers,
				Action: types.ActionDelete,
				RoomId: r.externalId,
				Member: &m,
			},
		})
		return
	}

	r.removeClient(client)
	client.queueMessage(NoErrOK(leaveMsg.Id, nil))
}

// handlePublish runs the send pipeline: validate, rate-check, insert,
// broadcast. The sender sees the message only through the insert event.
func (r *Room) handlePublish(msg *ClientMessage) {
	content, errStr := buildContent(msg.Publish.Content, msg.Publish.AttachmentName)
	if errStr != "" {
		msg.client.queueMessage(ErrInvalidMessage(msg.Id, errStr))
		return
	}

	if _, err := r.cs.db.GetMember(r.id, msg.UserId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			msg.client.queueMessage(ErrForbidden(msg.Id, "join the room before sending messages"))
		} else {
			r.log.Println("GetMember:", err)
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	allowed, err := r.cs.db.AllowMessage(msg.UserId, r.id, msg.Timestamp)
	if err != nil {
		r.log.Println("AllowMessage:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}
	if !allowed {
		r.cs.stats.Incr(stats.RateLimitRejected)
		msg.client.queueMessage(ErrTooManyRequests(msg.Id))
		return
	}

	dbMsg, err := r.cs.db.CreateMessage(database.CreateMessageParams{
		RoomId:         r.id,
		UserId:         msg.UserId,
		Content:        content,
		Type:           types.MessageTypeChat,
		AttachmentUrl:  msg.Publish.AttachmentUrl,
		AttachmentName: msg.Publish.AttachmentName,
		AttachmentType: msg.Publish.AttachmentType,
		CreatedAt:      msg.Timestamp,
	})
	if err != nil {
		r.log.Println("CreateMessage:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	msg.client.queueMessage(NoErrAccepted(msg.Id))
	r.cs.stats.Incr(stats.MessagesSent)

	m := toMessage(dbMsg, r.externalId)
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: msg.Timestamp},
		Event: &types.Event{
			Table:   types.TableMessages,
			Action:  types.ActionInsert,
			RoomId:  r.externalId,
			Message: &m,
		},
	})
}

func (r *Room) handleEdit(msg *ClientMessage) {
	content, errStr := buildContent(msg.Edit.Content, "")
	if errStr != "" {
		msg.client.queueMessage(ErrInvalidMessage(msg.Id, errStr))
		return
	}

	dbMsg, err := r.cs.db.EditMessage(msg.Edit.MessageId, msg.UserId, content, Now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// missing, deleted, or not the author
			msg.client.queueMessage(ErrForbidden(msg.Id, "cannot edit this message"))
		} else {
			r.log.Println("EditMessage:", err)
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, nil))

	m := toMessage(dbMsg, r.externalId)
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Event: &types.Event{
			Table:   types.TableMessages,
			Action:  types.ActionUpdate,
			RoomId:  r.externalId,
			Message: &m,
		},
	})
}

func (r *Room) handleDelete(msg *ClientMessage) {
	dbMsg, err := r.cs.db.GetMessageById(msg.Delete.MessageId)
	if err != nil || dbMsg.RoomId != r.id {
		msg.client.queueMessage(ErrNotFound(msg.Id, "message not found"))
		return
	}

	if dbMsg.UserId != msg.UserId {
		member, err := r.cs.db.GetMember(r.id, msg.UserId)
		if err != nil || !types.Role(member.Role).Privileged() {
			msg.client.queueMessage(ErrForbidden(msg.Id, "only moderators can delete messages from others"))
			return
		}
	}

	deleted, err := r.cs.db.DeleteMessage(dbMsg.Id, Now())
	if err != nil {
		r.log.Println("DeleteMessage:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, nil))

	// the broadcast row is already a tombstone; the original content does
	// not leave the server
	m := toMessage(deleted, r.externalId)
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Event: &types.Event{
			Table:   types.TableMessages,
			Action:  types.ActionDelete,
			RoomId:  r.externalId,
			Message: &m,
		},
	})
}

func (r *Room) handleRead(msg *ClientMessage) {
	if err := r.cs.db.UpsertReadReceipt(r.id, msg.UserId, msg.Read.MessageId, Now()); err != nil {
		r.log.Println("UpsertReadReceipt:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	r.cs.stats.Incr(stats.ReceiptsUpdated)
	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

func (r *Room) handleServerEvent(change membershipChange) {
	if change.removeUserId > 0 {
		r.removeAllClientsForUser(change.removeUserId)
	}

	if change.event != nil {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Event:       change.event,
		})
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.externalId)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) removeAllClientsForUser(userId int) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if userClients, ok := r.userMap[userId]; ok {
		for client := range userClients {
			delete(r.clients, client)
			client.delRoom(r.externalId)
		}
		delete(r.userMap, userId)
	}

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	r.cs.stats.Incr(stats.EventsBroadcast)
	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
