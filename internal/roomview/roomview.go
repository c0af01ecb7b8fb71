// Package roomview maintains a client-side view of a single chat room: a
// windowed slice of history that grows backwards through pagination and
// forwards through the live change feed, with sends and read receipts
// funneled through the same view.
package roomview

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chatlink-app/chatlink/internal/types"
)

const (
	// DefaultPageSize is the number of messages requested per history page.
	DefaultPageSize = 50

	maxContentLen = 5000

	// Advisory client-side send window. The server enforces its own limit;
	// this one exists to fail fast without a round trip.
	sendWindow    = time.Minute
	sendWindowMax = 10
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrRateLimited    = errors.New("sending too quickly, wait a moment")
	ErrNoRoom         = errors.New("no room loaded")
	ErrLoadInFlight   = errors.New("an older page is already loading")
)

// RoomLoader fetches the snapshot shown on entering a room: the room with
// its member list and the caller's own role. A caller with no membership
// gets the zero Role.
type RoomLoader interface {
	RoomSnapshot(ctx context.Context, roomId string) (types.RoomSnapshot, error)
}

// Querier fetches pages of room history, newest first. hasMore reports
// whether history extends beyond the returned page.
type Querier interface {
	Messages(ctx context.Context, roomId string, before time.Time, limit int) (msgs []types.Message, hasMore bool, err error)
}

// Feed delivers live room events. Implementations invoke the handler from
// their own goroutine until the subscription is closed.
type Feed interface {
	Subscribe(roomId string, handler func(*types.Event)) (Subscription, error)
}

// Subscription is a live event stream handle. Close is idempotent.
type Subscription interface {
	Close() error
}

// Sender publishes new messages to a room.
type Sender interface {
	Publish(ctx context.Context, roomId, content string) error
}

// ReceiptWriter records how far into a room the user has read.
type ReceiptWriter interface {
	MarkRead(ctx context.Context, roomId, messageId string) error
}

// View is a live, windowed view of one room. All methods are safe for
// concurrent use.
type View struct {
	log      *log.Logger
	loader   RoomLoader
	querier  Querier
	feed     Feed
	sender   Sender
	receipts ReceiptWriter
	pageSize int
	selfId   int
	now      func() time.Time

	mu     sync.Mutex
	roomId string
	// generation increments on every Load. Events and page results carrying
	// a stale generation are discarded, so a slow fetch for a previous room
	// can never bleed into the current one.
	generation int
	sub        Subscription
	room       types.Room
	members    map[int]types.Member
	// removed tracks members deleted through the feed this generation, so
	// a concurrently fetched snapshot cannot resurrect them
	removed    map[int]struct{}
	role       types.Role
	byId       map[string]types.Message
	ordered    []string
	hasMore    bool
	loading    bool
	sendTimes  []time.Time
	lastReadId string
}

type Option func(*View)

// WithPageSize overrides the history page size.
func WithPageSize(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.pageSize = n
		}
	}
}

// WithClock overrides the view's time source.
func WithClock(now func() time.Time) Option {
	return func(v *View) {
		v.now = now
	}
}

// WithSelf tells the view which member is the caller, so role changes and
// removals arriving through the feed update Role. Without it the role stays
// whatever the load snapshot reported.
func WithSelf(userId int) Option {
	return func(v *View) {
		v.selfId = userId
	}
}

func New(logger *log.Logger, loader RoomLoader, querier Querier, feed Feed, sender Sender, receipts ReceiptWriter, opts ...Option) *View {
	v := &View{
		log:      logger,
		loader:   loader,
		querier:  querier,
		feed:     feed,
		sender:   sender,
		receipts: receipts,
		pageSize: DefaultPageSize,
		now:      time.Now,
		members:  make(map[int]types.Member),
		removed:  make(map[int]struct{}),
		byId:     make(map[string]types.Message),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Load switches the view to a room: it resets the window, subscribes to the
// live feed, then fetches the room snapshot and the newest page of history.
// Loading a new room invalidates everything belonging to the previous one.
func (v *View) Load(ctx context.Context, roomId string) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	prevSub := v.sub
	v.sub = nil
	v.roomId = roomId
	v.room = types.Room{}
	v.members = make(map[int]types.Member)
	v.removed = make(map[int]struct{})
	v.role = ""
	v.byId = make(map[string]types.Message)
	v.ordered = nil
	v.hasMore = false
	v.loading = false
	v.lastReadId = ""
	v.mu.Unlock()

	if prevSub != nil {
		if err := prevSub.Close(); err != nil {
			v.log.Printf("close previous subscription: %v", err)
		}
	}

	// subscribe before fetching so a message or membership change landing
	// while the fetches are in flight still arrives through the feed; the
	// id-keyed merges drop the overlap
	sub, err := v.feed.Subscribe(roomId, func(e *types.Event) {
		v.apply(gen, e)
	})
	if err != nil {
		return err
	}

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		// a newer Load raced us; hand the subscription straight back
		sub.Close()
		return nil
	}
	v.sub = sub
	v.mu.Unlock()

	snap, err := v.loader.RoomSnapshot(ctx, roomId)
	if err != nil {
		return v.failLoad(gen, sub, err)
	}

	msgs, hasMore, err := v.querier.Messages(ctx, roomId, time.Time{}, v.pageSize)
	if err != nil {
		return v.failLoad(gen, sub, err)
	}

	v.mu.Lock()
	if gen == v.generation {
		v.room = snap.Room
		v.room.Members = nil
		// feed events applied while the snapshot was in flight are fresher
		// than the snapshot; they win
		if v.role == "" {
			if _, gone := v.removed[v.selfId]; !gone {
				v.role = snap.Role
			}
		}
		for _, m := range snap.Room.Members {
			if _, ok := v.members[m.UserId]; ok {
				continue
			}
			if _, gone := v.removed[m.UserId]; gone {
				continue
			}
			v.members[m.UserId] = m
		}
		v.mergeLocked(msgs)
		v.hasMore = hasMore
	}
	v.mu.Unlock()
	return nil
}

// failLoad tears down a partially loaded view after a fetch error.
func (v *View) failLoad(gen int, sub Subscription, err error) error {
	v.mu.Lock()
	if gen == v.generation {
		v.sub = nil
	}
	v.mu.Unlock()

	sub.Close()
	return err
}

// Close tears the view down and stops the live feed.
func (v *View) Close() error {
	v.mu.Lock()
	v.generation++
	sub := v.sub
	v.sub = nil
	v.roomId = ""
	v.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}

// RoomId returns the currently loaded room, or "".
func (v *View) RoomId() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roomId
}

// Room returns the loaded room's metadata without its member list.
func (v *View) Room() types.Room {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.room
}

// Role returns the caller's role in the loaded room, or the zero Role when
// no room is loaded or the caller is not a member.
func (v *View) Role() types.Role {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.role
}

// Members returns the current member list, oldest join first.
func (v *View) Members() []types.Member {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]types.Member, 0, len(v.members))
	for _, m := range v.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserId < out[j].UserId
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Messages returns the window oldest first.
func (v *View) Messages() []types.Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]types.Message, 0, len(v.ordered))
	for _, id := range v.ordered {
		out = append(out, v.byId[id])
	}
	return out
}

// HasMore reports whether older history exists beyond the window. It
// reflects what the server said, never a guess from page fullness.
func (v *View) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasMore
}

// LoadOlder extends the window one page further into the past. Only one
// LoadOlder may be in flight at a time.
func (v *View) LoadOlder(ctx context.Context) error {
	v.mu.Lock()
	if v.roomId == "" {
		v.mu.Unlock()
		return ErrNoRoom
	}
	if v.loading {
		v.mu.Unlock()
		return ErrLoadInFlight
	}
	if !v.hasMore {
		v.mu.Unlock()
		return nil
	}

	v.loading = true
	gen := v.generation
	roomId := v.roomId
	var before time.Time
	if len(v.ordered) > 0 {
		before = v.byId[v.ordered[0]].CreatedAt
	}
	v.mu.Unlock()

	msgs, hasMore, err := v.querier.Messages(ctx, roomId, before, v.pageSize)

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.generation {
		// the room changed while we were fetching; drop the stale page
		return nil
	}

	v.loading = false
	if err != nil {
		return err
	}

	v.mergeLocked(msgs)
	v.hasMore = hasMore
	return nil
}

// Send validates and publishes a message. Validation failures and the
// advisory rate limit never reach the transport.
func (v *View) Send(ctx context.Context, content string) error {
	v.mu.Lock()
	roomId := v.roomId
	v.mu.Unlock()

	if roomId == "" {
		return ErrNoRoom
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	// the cap counts characters, not bytes, matching what the server enforces
	if utf8.RuneCountInString(content) > maxContentLen {
		return ErrMessageTooLong
	}

	if !v.allowSend() {
		return ErrRateLimited
	}

	return v.sender.Publish(ctx, roomId, content)
}

// allowSend applies the sliding advisory window.
func (v *View) allowSend() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	cutoff := now.Add(-sendWindow)

	kept := v.sendTimes[:0]
	for _, t := range v.sendTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	v.sendTimes = kept

	if len(v.sendTimes) >= sendWindowMax {
		return false
	}

	v.sendTimes = append(v.sendTimes, now)
	return true
}

// MarkRead records the newest message in the window as read. It is a no-op
// when the window is empty or the newest message is already recorded.
func (v *View) MarkRead(ctx context.Context) error {
	v.mu.Lock()
	if v.roomId == "" {
		v.mu.Unlock()
		return ErrNoRoom
	}
	if len(v.ordered) == 0 {
		v.mu.Unlock()
		return nil
	}

	newest := v.ordered[len(v.ordered)-1]
	if newest == v.lastReadId {
		v.mu.Unlock()
		return nil
	}
	roomId := v.roomId
	v.mu.Unlock()

	if err := v.receipts.MarkRead(ctx, roomId, newest); err != nil {
		return err
	}

	v.mu.Lock()
	v.lastReadId = newest
	v.mu.Unlock()
	return nil
}

// apply folds one live event into the view. Events for other rooms or
// stale generations are dropped.
func (v *View) apply(gen int, e *types.Event) {
	if e == nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.generation || e.RoomId != v.roomId {
		return
	}

	switch e.Table {
	case types.TableMessages:
		if e.Message == nil {
			return
		}
		switch e.Action {
		case types.ActionInsert, types.ActionUpdate, types.ActionDelete:
			// deletes arrive as tombstoned rows and replace the original in
			// place, so all three actions reduce to an id-keyed merge
			v.upsertLocked(*e.Message)
		}
	case types.TableMembers:
		if e.Member == nil {
			return
		}
		switch e.Action {
		case types.ActionInsert, types.ActionUpdate:
			v.members[e.Member.UserId] = *e.Member
			delete(v.removed, e.Member.UserId)
			if v.selfId != 0 && e.Member.UserId == v.selfId {
				v.role = e.Member.Role
			}
		case types.ActionDelete:
			delete(v.members, e.Member.UserId)
			v.removed[e.Member.UserId] = struct{}{}
			if v.selfId != 0 && e.Member.UserId == v.selfId {
				v.role = ""
			}
		}
	}
}

// mergeLocked folds a page of history into the window. Messages already
// present (delivered by the live feed while the page was in flight) are
// overwritten in place, never duplicated.
func (v *View) mergeLocked(msgs []types.Message) {
	for _, m := range msgs {
		v.upsertLocked(m)
	}
}

func (v *View) upsertLocked(m types.Message) {
	if _, ok := v.byId[m.Id]; ok {
		v.byId[m.Id] = m
		return
	}

	v.byId[m.Id] = m
	v.ordered = append(v.ordered, m.Id)
	sort.SliceStable(v.ordered, func(i, j int) bool {
		a, b := v.byId[v.ordered[i]], v.byId[v.ordered[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.Id < b.Id
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
