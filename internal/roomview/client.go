package roomview

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chatlink-app/chatlink/internal/server"
	"github.com/chatlink-app/chatlink/internal/types"
	"github.com/gorilla/websocket"
)

// Client speaks the chat server's protocol: history pages over HTTP and
// everything live over one websocket. It implements Querier, Feed, Sender
// and ReceiptWriter.
type Client struct {
	log           *log.Logger
	baseURL       string
	httpc         *http.Client
	conn          *websocket.Conn
	sessionCookie *http.Cookie

	writeMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]*clientSub
	nextSub int
	nextId  int

	// pending holds one channel per in-flight request, keyed by the request
	// id the server echoes back on its response
	pendMu  sync.Mutex
	pending map[int]chan *server.ServerMessage

	snapMu sync.Mutex
	snaps  map[string]types.RoomSnapshot

	done chan struct{}
}

type clientSub struct {
	id      int
	roomId  string
	handler func(*types.Event)
	client  *Client
	once    sync.Once
}

func (s *clientSub) Close() error {
	s.once.Do(func() {
		s.client.subMu.Lock()
		delete(s.client.subs, s.id)
		s.client.subMu.Unlock()
	})
	return nil
}

// Dial connects to a chat server. baseURL is the HTTP origin
// (http://host:port); the websocket endpoint is derived from it. The
// session cookie obtained from login is replayed on both transports.
func Dial(ctx context.Context, logger *log.Logger, baseURL string, sessionCookie *http.Cookie) (*Client, error) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"

	header := http.Header{}
	if sessionCookie != nil {
		header.Set("Cookie", sessionCookie.String())
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Client{
		log:           logger,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpc:         &http.Client{Timeout: 30 * time.Second},
		conn:          conn,
		sessionCookie: sessionCookie,
		subs:          make(map[int]*clientSub),
		pending:       make(map[int]chan *server.ServerMessage),
		snaps:         make(map[string]types.RoomSnapshot),
		done:          make(chan struct{}),
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.failPending()
	for {
		var msg server.ServerMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.log.Printf("read: %v", err)
			return
		}

		if msg.Response != nil {
			c.pendMu.Lock()
			ch, ok := c.pending[msg.Id]
			if ok {
				delete(c.pending, msg.Id)
			}
			c.pendMu.Unlock()
			if ok {
				ch <- &msg
			}
			continue
		}

		if msg.Event == nil {
			continue
		}

		c.subMu.Lock()
		handlers := make([]func(*types.Event), 0, len(c.subs))
		for _, sub := range c.subs {
			if sub.roomId == msg.Event.RoomId {
				handlers = append(handlers, sub.handler)
			}
		}
		c.subMu.Unlock()

		for _, h := range handlers {
			h(msg.Event)
		}
	}
}

// Subscribe registers a handler for one room's events.
func (c *Client) Subscribe(roomId string, handler func(*types.Event)) (Subscription, error) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSub++
	sub := &clientSub{
		id:      c.nextSub,
		roomId:  roomId,
		handler: handler,
		client:  c,
	}
	c.subs[sub.id] = sub
	return sub, nil
}

// failPending closes every in-flight request channel so waiters unblock
// once the connection is gone.
func (c *Client) failPending() {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Join enters a room on the live connection and waits for the server's
// answer. On success it returns the room snapshot the server sends back,
// which RoomSnapshot serves from then on.
func (c *Client) Join(ctx context.Context, roomId, password string) (types.RoomSnapshot, error) {
	id := c.requestId()
	ch := make(chan *server.ServerMessage, 1)

	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()

	err := c.send(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: id, Timestamp: server.Now()},
		Join:        &server.Join{RoomId: roomId, Password: password},
	})
	if err != nil {
		c.dropPending(id)
		return types.RoomSnapshot{}, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return types.RoomSnapshot{}, fmt.Errorf("join %s: connection closed", roomId)
		}
		if msg.Response.ResponseCode >= http.StatusBadRequest {
			return types.RoomSnapshot{}, fmt.Errorf("join %s: %s", roomId, msg.Response.Error)
		}

		// Data came off the wire as a generic map; round-trip it through
		// json to get the typed snapshot back
		var snap types.RoomSnapshot
		raw, err := json.Marshal(msg.Response.Data)
		if err != nil {
			return types.RoomSnapshot{}, err
		}
		if err := json.Unmarshal(raw, &snap); err != nil {
			return types.RoomSnapshot{}, err
		}

		c.snapMu.Lock()
		c.snaps[roomId] = snap
		c.snapMu.Unlock()
		return snap, nil
	case <-ctx.Done():
		c.dropPending(id)
		return types.RoomSnapshot{}, ctx.Err()
	}
}

func (c *Client) dropPending(id int) {
	c.pendMu.Lock()
	delete(c.pending, id)
	c.pendMu.Unlock()
}

// RoomSnapshot returns the snapshot captured when the room was joined. For
// rooms never joined on this connection it falls back to the HTTP room
// endpoint, which carries no role.
func (c *Client) RoomSnapshot(ctx context.Context, roomId string) (types.RoomSnapshot, error) {
	c.snapMu.Lock()
	snap, ok := c.snaps[roomId]
	c.snapMu.Unlock()
	if ok {
		return snap, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/rooms?id="+url.QueryEscape(roomId), nil)
	if err != nil {
		return types.RoomSnapshot{}, err
	}
	if c.sessionCookie != nil {
		req.AddCookie(c.sessionCookie)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return types.RoomSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.RoomSnapshot{}, fmt.Errorf("fetch room %s: unexpected status %d", roomId, resp.StatusCode)
	}

	var room types.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return types.RoomSnapshot{}, err
	}

	return types.RoomSnapshot{Room: room}, nil
}

// Leave exits a room; with unsubscribe the membership itself is dropped.
func (c *Client) Leave(roomId string, unsubscribe bool) error {
	return c.send(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: c.requestId(), Timestamp: server.Now()},
		Leave:       &server.Leave{RoomId: roomId, Unsubscribe: unsubscribe},
	})
}

// Publish sends a chat message.
func (c *Client) Publish(_ context.Context, roomId, content string) error {
	return c.send(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: c.requestId(), Timestamp: server.Now()},
		Publish:     &server.Publish{RoomId: roomId, Content: content},
	})
}

// MarkRead records the read position on the server.
func (c *Client) MarkRead(_ context.Context, roomId, messageId string) error {
	return c.send(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: c.requestId(), Timestamp: server.Now()},
		Read:        &server.Read{RoomId: roomId, MessageId: messageId},
	})
}

// Messages fetches one page of history over HTTP.
func (c *Client) Messages(ctx context.Context, roomId string, before time.Time, limit int) ([]types.Message, bool, error) {
	q := url.Values{}
	q.Set("room_id", roomId)
	q.Set("limit", strconv.Itoa(limit))
	if !before.IsZero() {
		q.Set("before", before.Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	if c.sessionCookie != nil {
		req.AddCookie(c.sessionCookie)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("fetch messages: unexpected status %d", resp.StatusCode)
	}

	var page struct {
		Messages []types.Message `json:"messages"`
		HasMore  bool            `json:"has_more"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, false, err
	}

	return page.Messages, page.HasMore, nil
}

// Close shuts the live connection down.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) send(msg *server.ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *Client) requestId() int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.nextId++
	return c.nextId
}
