package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripchat/relay/internal/config"
	"github.com/ripchat/relay/internal/domain"
)

type sentEvent struct {
	to    domain.SessionID
	event string
	data  any
}

// recorder is an in-memory Sender for asserting notifications.
type recorder struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recorder) Send(sid domain.SessionID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{to: sid, event: event, data: data})
}

func (r *recorder) byEvent(name string) []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentEvent
	for _, ev := range r.events {
		if ev.event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxRooms:        10,
		MaxUsersPerRoom: 10,
		RoomIdleTimeout: time.Hour,
	}
}

func newTestRegistry(cfg *config.Config) (*Registry, *recorder) {
	rec := &recorder{}
	limiter := NewRateLimiter(1000, time.Minute)
	return NewRegistry(cfg, limiter, rec), rec
}

// checkInvariants asserts bidirectional membership consistency and that
// no empty room survived the last operation.
func checkInvariants(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	for sid, conn := range r.conns {
		rm, ok := r.rooms[conn.RoomCode]
		require.True(t, ok, "connection %s references missing room %s", sid, conn.RoomCode)
		_, member := rm.members[sid]
		require.True(t, member, "connection %s not a member of its room", sid)
	}
	for code, rm := range r.rooms {
		require.NotEmpty(t, rm.members, "room %s is empty", code)
		require.Len(t, rm.order, len(rm.members), "room %s order out of sync", code)
		for sid := range rm.members {
			conn, ok := r.conns[sid]
			require.True(t, ok, "room %s holds unknown connection %s", code, sid)
			require.Equal(t, code, conn.RoomCode)
		}
	}
}

func TestCreateRoom(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())

	res, err := reg.CreateRoom("a", "  alice ")
	require.NoError(t, err)
	assert.Len(t, string(res.Code), domain.RoomCodeLen)
	assert.Equal(t, "alice", res.Username)

	info, err := reg.Snapshot("a")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MemberCount)
	assert.Equal(t, []MemberState{{Username: "alice"}}, info.Members)

	assert.Empty(t, rec.events, "creating a first room notifies nobody")
	checkInvariants(t, reg)
}

func TestCreateRoom_ServerFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRooms = 1
	reg, _ := newTestRegistry(cfg)

	_, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)

	_, err = reg.CreateRoom("b", "bob")
	assert.ErrorIs(t, err, ErrServerFull)

	rooms, conns := reg.Counts()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, conns)
	checkInvariants(t, reg)
}

func TestJoinRoom_CodeCaseInsensitive(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())

	created, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)

	res, err := reg.JoinRoom("b", "  "+string(lower(created.Code))+" ", "bob")
	require.NoError(t, err)
	assert.Equal(t, created.Code, res.Code)
	require.Len(t, res.ExistingMembers, 1)
	assert.Equal(t, domain.SessionID("a"), res.ExistingMembers[0].ID)
	assert.Equal(t, "alice", res.ExistingMembers[0].Username)

	joins := rec.byEvent("user-joined")
	require.Len(t, joins, 1)
	assert.Equal(t, domain.SessionID("a"), joins[0].to)
	assert.Equal(t, MemberInfo{ID: "b", Username: "bob"}, joins[0].data)
	checkInvariants(t, reg)
}

func TestJoinRoom_NotFound(t *testing.T) {
	reg, _ := newTestRegistry(testConfig())

	_, err := reg.JoinRoom("b", "ZZZZZZ", "bob")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinRoom_Full(t *testing.T) {
	cfg := testConfig()
	reg, _ := newTestRegistry(cfg)

	created, err := reg.CreateRoom("host", "host")
	require.NoError(t, err)
	for i := 1; i < cfg.MaxUsersPerRoom; i++ {
		_, err := reg.JoinRoom(domain.SessionID(rune('a'+i)), string(created.Code), "user"+string(rune('0'+i)))
		require.NoError(t, err)
	}

	_, err = reg.JoinRoom("late", string(created.Code), "late")
	assert.ErrorIs(t, err, ErrRoomFull)

	info, err := reg.Snapshot("host")
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxUsersPerRoom, info.MemberCount)
	checkInvariants(t, reg)
}

func TestJoinRoom_UsernameTakenCaseInsensitive(t *testing.T) {
	reg, _ := newTestRegistry(testConfig())

	created, err := reg.CreateRoom("a", "Bob")
	require.NoError(t, err)

	_, err = reg.JoinRoom("b", string(created.Code), "bob")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	info, err := reg.Snapshot("a")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MemberCount)
	_, err = reg.Snapshot("b")
	assert.ErrorIs(t, err, ErrNotInRoom)
	checkInvariants(t, reg)
}

func TestJoinRoom_SnapshotOrderExcludesJoiner(t *testing.T) {
	reg, _ := newTestRegistry(testConfig())

	created, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)
	_, err = reg.JoinRoom("b", string(created.Code), "bob")
	require.NoError(t, err)

	res, err := reg.JoinRoom("c", string(created.Code), "carol")
	require.NoError(t, err)
	require.Len(t, res.ExistingMembers, 2)
	assert.Equal(t, "alice", res.ExistingMembers[0].Username)
	assert.Equal(t, "bob", res.ExistingMembers[1].Username)
	for _, m := range res.ExistingMembers {
		assert.NotEqual(t, domain.SessionID("c"), m.ID)
	}
}

func TestLeave_LastMemberDeletesRoom(t *testing.T) {
	reg, _ := newTestRegistry(testConfig())

	created, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)

	reg.Leave("a", true)

	_, err = reg.JoinRoom("b", string(created.Code), "bob")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	rooms, conns := reg.Counts()
	assert.Zero(t, rooms)
	assert.Zero(t, conns)
	checkInvariants(t, reg)
}

func TestLeave_NotifiesRemaining(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())

	created, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)
	_, err = reg.JoinRoom("b", string(created.Code), "bob")
	require.NoError(t, err)
	rec.reset()

	reg.Leave("b", true)

	left := rec.byEvent("user-left")
	require.Len(t, left, 1)
	assert.Equal(t, domain.SessionID("a"), left[0].to)
	assert.Equal(t, MemberInfo{ID: "b", Username: "bob"}, left[0].data)
	checkInvariants(t, reg)
}

func TestLeave_SilentWhenNotifyFalse(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())

	created, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)
	_, err = reg.JoinRoom("b", string(created.Code), "bob")
	require.NoError(t, err)
	rec.reset()

	reg.Leave("b", false)
	assert.Empty(t, rec.byEvent("user-left"))
	checkInvariants(t, reg)
}

func TestLeave_UnknownConnectionIsNoop(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())
	reg.Leave("ghost", true)
	assert.Empty(t, rec.events)
}

func TestCreateRoom_LeavesPriorRoom(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())

	first, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)
	_, err = reg.JoinRoom("b", string(first.Code), "bob")
	require.NoError(t, err)
	rec.reset()

	second, err := reg.CreateRoom("b", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)

	left := rec.byEvent("user-left")
	require.Len(t, left, 1)
	assert.Equal(t, domain.SessionID("a"), left[0].to)

	info, err := reg.Snapshot("a")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MemberCount)
	info, err = reg.Snapshot("b")
	require.NoError(t, err)
	assert.Equal(t, second.Code, info.Code)
	checkInvariants(t, reg)
}

func TestJoinRoom_RejoinSameRoom(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())

	created, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)
	_, err = reg.JoinRoom("b", string(created.Code), "bob")
	require.NoError(t, err)
	rec.reset()

	res, err := reg.JoinRoom("b", string(created.Code), "bobby")
	require.NoError(t, err)
	require.Len(t, res.ExistingMembers, 1)
	assert.Equal(t, "alice", res.ExistingMembers[0].Username)

	// a sees b leave, then rejoin.
	require.Len(t, rec.byEvent("user-left"), 1)
	require.Len(t, rec.byEvent("user-joined"), 1)
	checkInvariants(t, reg)
}

func TestSetMuted_BroadcastsToWholeRoom(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())

	created, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)
	_, err = reg.JoinRoom("b", string(created.Code), "bob")
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, reg.SetMuted("a", true))

	changed := rec.byEvent("user-mute-changed")
	require.Len(t, changed, 2, "mute state goes to the whole room, sender included")
	targets := map[domain.SessionID]bool{}
	for _, ev := range changed {
		targets[ev.to] = true
		assert.Equal(t, MemberInfo{ID: "a", Username: "alice", Muted: true}, ev.data)
	}
	assert.True(t, targets["a"])
	assert.True(t, targets["b"])

	info, err := reg.Snapshot("b")
	require.NoError(t, err)
	assert.Contains(t, info.Members, MemberState{Username: "alice", Muted: true})
}

func TestSetMuted_NoopWhenRoomless(t *testing.T) {
	reg, rec := newTestRegistry(testConfig())
	require.NoError(t, reg.SetMuted("ghost", true))
	assert.Empty(t, rec.events)
}

func TestSetMuted_RateLimited(t *testing.T) {
	cfg := testConfig()
	rec := &recorder{}
	limiter := NewRateLimiter(10, 5*time.Second)
	now := time.Unix(0, 0)
	limiter.now = func() time.Time { return now }
	reg := NewRegistry(cfg, limiter, rec)

	_, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)
	now = now.Add(6 * time.Second) // fresh window after the create
	rec.reset()

	for i := 0; i < 10; i++ {
		require.NoError(t, reg.SetMuted("a", i%2 == 0))
	}
	err = reg.SetMuted("a", true)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, rec.byEvent("user-mute-changed"), 10, "throttled call must not broadcast")
}

func TestSnapshot_NotInRoom(t *testing.T) {
	reg, _ := newTestRegistry(testConfig())
	_, err := reg.Snapshot("nobody")
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestReapIdleRooms(t *testing.T) {
	reg, _ := newTestRegistry(testConfig())
	start := time.Unix(0, 0)
	reg.now = func() time.Time { return start }

	_, err := reg.CreateRoom("a", "alice")
	require.NoError(t, err)

	reg.now = func() time.Time { return start.Add(30 * time.Minute) }
	_, err = reg.CreateRoom("b", "bob")
	require.NoError(t, err)

	reg.now = func() time.Time { return start.Add(70 * time.Minute) }
	assert.Equal(t, 1, reg.ReapIdleRooms(), "only the hour-idle room is reaped")

	rooms, conns := reg.Counts()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, conns)
	_, err = reg.Snapshot("a")
	assert.ErrorIs(t, err, ErrNotInRoom)
	checkInvariants(t, reg)
}

func TestConcurrentJoinLeave(t *testing.T) {
	reg, _ := newTestRegistry(&config.Config{
		MaxRooms:        10,
		MaxUsersPerRoom: 100,
		RoomIdleTimeout: time.Hour,
	})

	created, err := reg.CreateRoom("host", "host")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := domain.SessionID(string(rune('A' + i%26)))
			name := "user" + string(rune('A'+i%26))
			if _, err := reg.JoinRoom(sid, string(created.Code), name); err != nil {
				return
			}
			if i%3 == 0 {
				reg.Leave(sid, true)
			}
		}(i)
	}
	wg.Wait()

	checkInvariants(t, reg)
}

func lower(code domain.RoomCode) domain.RoomCode {
	out := []rune(string(code))
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + 32
		}
	}
	return domain.RoomCode(out)
}
