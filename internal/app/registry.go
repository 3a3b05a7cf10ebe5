package app

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ripchat/relay/internal/config"
	"github.com/ripchat/relay/internal/domain"
)

// Sender delivers one named event to one connection. Implemented by the
// websocket adapter; delivery is best-effort and must never block.
type Sender interface {
	Send(sid domain.SessionID, event string, data any)
}

// MemberInfo is the per-member view carried by room-joined and
// user-joined events, so peers can address each other.
type MemberInfo struct {
	ID       domain.SessionID `json:"id"`
	Username string           `json:"username"`
	Muted    bool             `json:"muted"`
}

// MemberState is the identifier-free view served by room snapshots.
type MemberState struct {
	Username string `json:"username"`
	Muted    bool   `json:"muted"`
}

type RoomInfo struct {
	Code        domain.RoomCode `json:"roomCode"`
	MemberCount int             `json:"memberCount"`
	Members     []MemberState   `json:"members"`
}

type CreateRoomResult struct {
	Code     domain.RoomCode
	Username string
}

type JoinRoomResult struct {
	Code            domain.RoomCode
	Username        string
	ExistingMembers []MemberInfo
}

// room pairs room meta with its membership. The order slice preserves
// join order for the existing-members snapshot.
type room struct {
	meta    *domain.Room
	order   []domain.SessionID
	members map[domain.SessionID]*domain.Connection
}

func (rm *room) add(conn *domain.Connection) {
	rm.members[conn.ID] = conn
	rm.order = append(rm.order, conn.ID)
}

func (rm *room) remove(sid domain.SessionID) {
	delete(rm.members, sid)
	for i, id := range rm.order {
		if id == sid {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
}

// pendingEvent is a notification computed under the lock and dispatched
// after it is released, so slow transports never stall a mutation.
type pendingEvent struct {
	to    domain.SessionID
	event string
	data  any
}

// Registry owns all room and connection state. Every mutation runs under
// one mutex so membership invariants hold at every observable boundary;
// nested operations (a join that first leaves the prior room) go through
// unexported *Locked helpers instead of re-acquiring the lock.
type Registry struct {
	mu    sync.Mutex
	rooms map[domain.RoomCode]*room
	conns map[domain.SessionID]*domain.Connection

	limiter *RateLimiter
	sender  Sender

	maxRooms        int
	maxUsersPerRoom int
	idleTimeout     time.Duration
	now             func() time.Time
}

func NewRegistry(cfg *config.Config, limiter *RateLimiter, sender Sender) *Registry {
	return &Registry{
		rooms:           make(map[domain.RoomCode]*room),
		conns:           make(map[domain.SessionID]*domain.Connection),
		limiter:         limiter,
		sender:          sender,
		maxRooms:        cfg.MaxRooms,
		maxUsersPerRoom: cfg.MaxUsersPerRoom,
		idleTimeout:     cfg.RoomIdleTimeout,
		now:             time.Now,
	}
}

// CreateRoom allocates a fresh room with sid as its sole, unmuted
// member. A connection already in a room leaves it first, with
// notification, so membership stays at most one room per connection.
func (r *Registry) CreateRoom(sid domain.SessionID, rawUsername string) (CreateRoomResult, error) {
	if !r.limiter.Allow(sid) {
		return CreateRoomResult{}, ErrRateLimited
	}
	username, err := domain.SanitizeUsername(rawUsername)
	if err != nil {
		return CreateRoomResult{}, err
	}

	r.mu.Lock()
	pending := r.leaveLocked(sid, true)

	if len(r.rooms) >= r.maxRooms {
		r.mu.Unlock()
		r.dispatch(pending)
		return CreateRoomResult{}, ErrServerFull
	}
	code, err := generateRoomCode(func(c domain.RoomCode) bool {
		_, taken := r.rooms[c]
		return taken
	})
	if err != nil {
		r.mu.Unlock()
		r.dispatch(pending)
		return CreateRoomResult{}, err
	}

	now := r.now()
	conn := &domain.Connection{ID: sid, Username: username, RoomCode: code, JoinedAt: now}
	rm := &room{
		meta:    &domain.Room{Code: code, CreatedAt: now, LastActivityAt: now},
		members: make(map[domain.SessionID]*domain.Connection),
	}
	rm.add(conn)
	r.rooms[code] = rm
	r.conns[sid] = conn
	r.mu.Unlock()

	r.dispatch(pending)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(code)).Str("username", username).Msg("room created")
	return CreateRoomResult{Code: code, Username: username}, nil
}

// JoinRoom adds sid to an existing room. The returned snapshot is taken
// before insertion and never contains the joiner; the rest of the room
// is notified with a user-joined event.
func (r *Registry) JoinRoom(sid domain.SessionID, rawCode, rawUsername string) (JoinRoomResult, error) {
	if !r.limiter.Allow(sid) {
		return JoinRoomResult{}, ErrRateLimited
	}
	code, err := domain.NormalizeRoomCode(rawCode)
	if err != nil {
		return JoinRoomResult{}, err
	}
	username, err := domain.SanitizeUsername(rawUsername)
	if err != nil {
		return JoinRoomResult{}, err
	}

	r.mu.Lock()
	if _, ok := r.rooms[code]; !ok {
		r.mu.Unlock()
		return JoinRoomResult{}, ErrRoomNotFound
	}

	pending := r.leaveLocked(sid, true)

	// Re-fetch: leaving could have emptied and deleted the very room
	// being rejoined.
	rm, ok := r.rooms[code]
	if !ok {
		r.mu.Unlock()
		r.dispatch(pending)
		return JoinRoomResult{}, ErrRoomNotFound
	}
	if len(rm.members) >= r.maxUsersPerRoom {
		r.mu.Unlock()
		r.dispatch(pending)
		return JoinRoomResult{}, ErrRoomFull
	}
	for _, member := range rm.members {
		if strings.EqualFold(member.Username, username) {
			r.mu.Unlock()
			r.dispatch(pending)
			return JoinRoomResult{}, ErrUsernameTaken
		}
	}

	existing := make([]MemberInfo, 0, len(rm.order))
	for _, mid := range rm.order {
		m := rm.members[mid]
		existing = append(existing, MemberInfo{ID: m.ID, Username: m.Username, Muted: m.Muted})
	}

	now := r.now()
	conn := &domain.Connection{ID: sid, Username: username, RoomCode: code, JoinedAt: now}
	rm.add(conn)
	rm.meta.LastActivityAt = now
	r.conns[sid] = conn

	joined := MemberInfo{ID: sid, Username: username}
	for _, mid := range rm.order {
		if mid == sid {
			continue
		}
		pending = append(pending, pendingEvent{to: mid, event: "user-joined", data: joined})
	}
	r.mu.Unlock()

	r.dispatch(pending)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(code)).Str("username", username).Msg("joined room")
	return JoinRoomResult{Code: code, Username: username, ExistingMembers: existing}, nil
}

// Leave removes sid from its room, deleting the room if that empties it,
// and drops the connection and its rate state. No-op for unknown sids;
// safe to call at any point of the connection's life.
func (r *Registry) Leave(sid domain.SessionID, notify bool) {
	r.mu.Lock()
	pending := r.leaveLocked(sid, notify)
	r.mu.Unlock()

	r.limiter.Forget(sid)
	r.dispatch(pending)
}

// leaveLocked removes sid's membership and connection entry, returning
// the user-left notifications to dispatch once the lock is released.
// Callers hold r.mu.
func (r *Registry) leaveLocked(sid domain.SessionID, notify bool) []pendingEvent {
	conn, ok := r.conns[sid]
	if !ok {
		return nil
	}

	var pending []pendingEvent
	if rm, found := r.rooms[conn.RoomCode]; found {
		rm.remove(sid)
		if notify {
			left := MemberInfo{ID: sid, Username: conn.Username}
			for _, mid := range rm.order {
				pending = append(pending, pendingEvent{to: mid, event: "user-left", data: left})
			}
		}
		if len(rm.members) == 0 {
			delete(r.rooms, conn.RoomCode)
			log.Info().Str("module", "app.registry").Str("room", string(conn.RoomCode)).Msg("room deleted (empty)")
		} else {
			rm.meta.LastActivityAt = r.now()
		}
	}
	delete(r.conns, sid)
	return pending
}

// SetMuted updates sid's mute flag and broadcasts the new state to the
// whole room, the caller included, as state confirmation. No-op when sid
// is unknown or roomless.
func (r *Registry) SetMuted(sid domain.SessionID, muted bool) error {
	if !r.limiter.Allow(sid) {
		return ErrRateLimited
	}

	r.mu.Lock()
	conn, ok := r.conns[sid]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	rm, found := r.rooms[conn.RoomCode]
	if !found {
		r.mu.Unlock()
		return nil
	}
	conn.Muted = muted
	rm.meta.LastActivityAt = r.now()

	changed := MemberInfo{ID: sid, Username: conn.Username, Muted: muted}
	var pending []pendingEvent
	for _, mid := range rm.order {
		pending = append(pending, pendingEvent{to: mid, event: "user-mute-changed", data: changed})
	}
	r.mu.Unlock()

	r.dispatch(pending)
	return nil
}

// Snapshot reports sid's room without leaking other members' ids.
func (r *Registry) Snapshot(sid domain.SessionID) (RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[sid]
	if !ok {
		return RoomInfo{}, ErrNotInRoom
	}
	rm, found := r.rooms[conn.RoomCode]
	if !found {
		return RoomInfo{}, ErrNotInRoom
	}

	info := RoomInfo{
		Code:        rm.meta.Code,
		MemberCount: len(rm.members),
		Members:     make([]MemberState, 0, len(rm.order)),
	}
	for _, mid := range rm.order {
		m := rm.members[mid]
		info.Members = append(info.Members, MemberState{Username: m.Username, Muted: m.Muted})
	}
	return info, nil
}

// ReapIdleRooms force-closes rooms that are empty or inactive past the
// idle timeout. No notifications: such rooms are assumed to have no live
// connections left. Returns the number of rooms reaped.
func (r *Registry) ReapIdleRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTimeout)
	reaped := 0
	for code, rm := range r.rooms {
		if len(rm.members) > 0 && rm.meta.LastActivityAt.After(cutoff) {
			continue
		}
		for _, mid := range rm.order {
			delete(r.conns, mid)
		}
		delete(r.rooms, code)
		reaped++
		log.Info().Str("module", "app.registry").Str("room", string(code)).Msg("room reaped (idle)")
	}
	return reaped
}

// Counts reports aggregate room and connection totals for the status
// endpoint.
func (r *Registry) Counts() (rooms, connections int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.conns)
}

func (r *Registry) dispatch(pending []pendingEvent) {
	for _, ev := range pending {
		r.sender.Send(ev.to, ev.event, ev.data)
	}
}
