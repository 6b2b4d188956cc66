package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/app/live"
	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/core/coretest"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/store/memory"
)

func newOrch() *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(context.Background(), nil),
		Queue:    app.NewMatchQueue(),
		Live:     live.NewRelayManager(),
	}
}

func connect(o *Orchestrator, sid core.SessionID) *coretest.Conn {
	conn := coretest.NewConn()
	o.Connect(sid, conn, func() {})
	return conn
}

func send(t *testing.T, o *Orchestrator, sid core.SessionID, typ string, payload any) error {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = b
	}
	return o.Handle(sid, core.Envelope{Type: typ, Payload: raw})
}

func join(t *testing.T, o *Orchestrator, sid core.SessionID, room string) {
	t.Helper()
	require.NoError(t, send(t, o, sid, InJoinRoom, map[string]any{"room": room}))
}

func cmd(id string, x float64) map[string]any {
	return map[string]any{"id": id, "kind": domain.KindStroke, "x": x}
}

func peerIDs(room core.RoomService) []core.SessionID {
	var out []core.SessionID
	for _, p := range room.Peers("") {
		out = append(out, p.SID)
	}
	return out
}

func ids(cmds []domain.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.ID
	}
	return out
}

func TestHandle_UnknownEvent(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	err := send(t, o, "a", "teleport", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Equal(t, "unknown_event", ErrorCode(err))
	assert.False(t, Handles("teleport"))
	assert.True(t, Handles(InJoinRoom))
}

func TestJoin_RejectsInvalidCode(t *testing.T) {
	tests := []struct {
		name    string
		payload any
	}{
		{"empty", map[string]any{"room": ""}},
		{"blank", map[string]any{"room": "   "}},
		{"not a string", map[string]any{"room": 42}},
		{"missing", map[string]any{}},
		{"control char", map[string]any{"room": "a\nb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrch()
			a := connect(o, "a")
			join(t, o, "a", "R")
			a.Reset()

			err := send(t, o, "a", InJoinRoom, tt.payload)
			assert.ErrorIs(t, err, ErrInvalidRoomCode)
			assert.Equal(t, "invalid_room", ErrorCode(err))

			code, _, ok := o.Registry.RoomOf("a")
			assert.True(t, ok, "no state change")
			assert.Equal(t, domain.RoomCode("R"), code)
			assert.Zero(t, a.Count(core.EventPresence))
		})
	}
}

func TestJoin_PresenceAndReplay(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")

	join(t, o, "a", "R")
	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a1", 1)))
	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a2", 2)))
	join(t, o, "b", "R")

	var replay core.LogPayload
	require.True(t, b.Last(core.EventHistory, &replay))
	assert.Equal(t, []string{"a1", "a2"}, ids(replay.Commands))

	var presence core.PresencePayload
	require.True(t, a.Last(core.EventPresence, &presence))
	assert.Equal(t, core.PresencePayload{Room: "R", Count: 2}, presence)
}

func TestJoin_SwitchingRoomsKeepsSingleMembership(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R1")
	join(t, o, "b", "R1")
	b.Reset()

	join(t, o, "a", "R2")

	var presence core.PresencePayload
	require.True(t, b.Last(core.EventPresence, &presence))
	assert.Equal(t, 1, presence.Count, "old room is recounted")

	r1, _ := o.Rooms.Get("R1")
	r2, _ := o.Rooms.Get("R2")
	assert.Equal(t, []core.SessionID{"b"}, peerIDs(r1))
	assert.Equal(t, []core.SessionID{"a"}, peerIDs(r2))
	assert.Equal(t, 2, a.Count(core.EventHistory))
}

func TestJoin_EmptyRoomIsDestroyed(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	join(t, o, "a", "R1")
	join(t, o, "a", "R2")

	_, ok := o.Rooms.Get("R1")
	assert.False(t, ok)
}

func TestJoin_SameRoomIsIdempotent(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	join(t, o, "a", "R")
	join(t, o, "a", "R")

	room, ok := o.Rooms.Get("R")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, 2, a.Count(core.EventHistory), "replay is resent")

	var presence core.PresencePayload
	require.True(t, a.Last(core.EventPresence, &presence))
	assert.Equal(t, 1, presence.Count)
}

func TestLeave(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")
	b.Reset()

	require.NoError(t, send(t, o, "a", InLeaveRoom, nil))

	var left RoomPayload
	require.True(t, a.Last(EventLeft, &left))
	assert.Equal(t, domain.RoomCode("R"), left.Room)
	var presence core.PresencePayload
	require.True(t, b.Last(core.EventPresence, &presence))
	assert.Equal(t, 1, presence.Count)

	a.Reset()
	require.NoError(t, send(t, o, "a", InLeaveRoom, nil))
	assert.Zero(t, a.Count(EventLeft), "leave outside a room is a no-op")
}

func TestAppend_RequiresRoom(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	err := send(t, o, "a", InAppendCommand, cmd("a1", 1))
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestAppend_BroadcastsToWholeRoom(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")

	require.NoError(t, send(t, o, "a", InAppendCommand, map[string]any{"kind": "text", "text": "hi"}))

	var fromA, fromB domain.Command
	require.True(t, a.Last(EventCommand, &fromA), "author gets the server-assigned id")
	require.True(t, b.Last(EventCommand, &fromB))
	assert.NotEmpty(t, fromA.ID)
	assert.Equal(t, fromA.ID, fromB.ID)
	assert.Equal(t, "hi", fromB.Fields["text"])
}

func TestAppend_OriginIsServerOwned(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	b := connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")

	c := cmd("a1", 1)
	c["origin"] = "b"
	require.NoError(t, send(t, o, "a", InAppendCommand, c))

	var got map[string]any
	require.True(t, b.Last(EventCommand, &got))
	assert.Equal(t, "a", got["origin"])
}

func TestAppend_DuplicateIDRejected(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	join(t, o, "a", "R")
	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a1", 1)))

	err := send(t, o, "a", InAppendCommand, cmd("a1", 2))
	assert.ErrorIs(t, err, ErrDuplicateCommand)
	assert.Equal(t, "duplicate_id", ErrorCode(err))
	assert.Equal(t, 1, a.Count(EventCommand))
}

func TestAppend_BadPayload(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	join(t, o, "a", "R")

	err := o.Handle("a", core.Envelope{Type: InAppendCommand, Payload: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, ErrBadPayload)
	err = o.Handle("a", core.Envelope{Type: InAppendCommand})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestMove_LiveUpdateSkipsSender(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")
	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a1", 1)))

	require.NoError(t, send(t, o, "a", InMoveCommands, map[string]any{"commands": []any{cmd("a1", 7)}}))

	assert.Zero(t, a.Count(EventCommandMoved))
	var moved MovedPayload
	require.True(t, b.Last(EventCommandMoved, &moved))
	require.Len(t, moved.Commands, 1)
	assert.Equal(t, 7.0, moved.Commands[0].Fields["x"])
	assert.Equal(t, core.SessionID("a"), moved.From)
}

func TestFinalize_BroadcastsSnapshot(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")
	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a0", 0)))
	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a1", 1)))

	require.NoError(t, send(t, o, "b", InFinalizeMove, map[string]any{"commands": []any{cmd("a1", 9)}}))

	for _, c := range []*coretest.Conn{a, b} {
		var snap core.LogPayload
		require.True(t, c.Last(EventSnapshot, &snap))
		assert.Equal(t, []string{"a0", "a1"}, ids(snap.Commands), "update keeps log position")
		assert.Equal(t, 9.0, snap.Commands[1].Fields["x"])
	}
}

func TestUpdateMissPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy app.MissPolicy
		want   []string
	}{
		{"discard", app.MissDiscard, []string{"a0"}},
		{"append", app.MissAppend, []string{"a0", "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrch()
			o.Miss = tt.policy
			a := connect(o, "a")
			join(t, o, "a", "R")
			require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a0", 0)))

			require.NoError(t, send(t, o, "a", InFinalizeMove, map[string]any{"commands": []any{cmd("ghost", 3)}}))

			var snap core.LogPayload
			require.True(t, a.Last(EventSnapshot, &snap))
			assert.Equal(t, tt.want, ids(snap.Commands))
		})
	}
}

func TestUpdateMissPolicy_LiveMissIsNotPersisted(t *testing.T) {
	store := memory.New()
	o := newOrch()
	o.Rooms = app.NewRoomManager(context.Background(), store)
	o.Miss = app.MissAppend
	connect(o, "a")
	join(t, o, "a", "R")

	require.NoError(t, send(t, o, "a", InMoveCommands, map[string]any{"commands": []any{cmd("ghost", 3)}}))
	room, ok := o.Rooms.Get("R")
	require.True(t, ok)
	assert.Equal(t, 1, room.Info().Commands)
	stored, err := store.Load(context.Background(), "R")
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, send(t, o, "a", InFinalizeMove, map[string]any{"commands": []any{cmd("ghost", 4)}}))
	stored, err = store.Load(context.Background(), "R")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "ghost", stored[0].ID)
	assert.Equal(t, 4.0, stored[0].Fields["x"])
}

func TestUndo_BroadcastsShortenedLog(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")
	for i, id := range []string{"cmd1", "cmd2", "cmd3"} {
		require.NoError(t, send(t, o, "a", InAppendCommand, cmd(id, float64(i))))
	}

	require.NoError(t, send(t, o, "b", InUndo, nil))

	for _, c := range []*coretest.Conn{a, b} {
		var snap core.LogPayload
		require.True(t, c.Last(EventSnapshot, &snap))
		assert.Equal(t, []string{"cmd1", "cmd2"}, ids(snap.Commands))
	}
}

func TestUndo_EmptyLogIsSilent(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	join(t, o, "a", "R")

	require.NoError(t, send(t, o, "a", InUndo, nil))
	assert.Zero(t, a.Count(EventSnapshot))
}

func TestClear(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")
	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a1", 1)))

	require.NoError(t, send(t, o, "b", InClearCanvas, nil))
	assert.Equal(t, 1, a.Count(EventCleared))
	assert.Equal(t, 1, b.Count(EventCleared))

	c := connect(o, "c")
	join(t, o, "c", "R")
	var replay core.LogPayload
	require.True(t, c.Last(core.EventHistory, &replay))
	assert.Empty(t, replay.Commands)
}

func TestRedoAndChat(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")
	require.NoError(t, send(t, o, "a", InSetName, map[string]any{"name": "Ann"}))

	require.NoError(t, send(t, o, "a", InRedo, nil))
	require.NoError(t, send(t, o, "a", InChatMessage, map[string]any{"text": " hello "}))
	require.NoError(t, send(t, o, "a", InChatMessage, map[string]any{"text": "   "}))

	assert.Equal(t, 1, a.Count(EventRedo))
	assert.Equal(t, 1, b.Count(EventRedo))
	var chat ChatPayload
	require.True(t, b.Last(EventChat, &chat))
	assert.Equal(t, ChatPayload{Room: "R", From: "a", Name: "Ann", Text: "hello"}, chat)
	assert.Equal(t, 1, a.Count(EventChat), "blank chat is dropped")
}

func TestPartial_NeverEchoedNorLogged(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	join(t, o, "a", "R")
	join(t, o, "b", "R")

	seg := domain.Segment{From: domain.Point{X: 1}, To: domain.Point{X: 2}}
	require.NoError(t, send(t, o, "a", InPartialStroke, seg))

	assert.Zero(t, a.Count(live.EventPartial))
	var got live.PartialPayload
	require.True(t, b.Last(live.EventPartial, &got))
	assert.Equal(t, seg, got.Segment)

	room, _ := o.Rooms.Get("R")
	assert.Zero(t, room.Info().Commands)
}

func TestWhoAmI(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	join(t, o, "a", "R")

	require.NoError(t, send(t, o, "a", InWhoAmI, nil))
	var who WhoAmIPayload
	require.True(t, a.Last(EventWhoAmI, &who))
	assert.Equal(t, WhoAmIPayload{ID: "a", Name: domain.DefaultDisplayName, Room: "R"}, who)
}

func TestWhoAmI_ReportsQueued(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	require.NoError(t, send(t, o, "a", InFindPartner, map[string]any{"name": "Ann"}))

	require.NoError(t, send(t, o, "a", InWhoAmI, nil))
	var who WhoAmIPayload
	require.True(t, a.Last(EventWhoAmI, &who))
	assert.True(t, who.Queued)
	assert.Empty(t, who.Room)
}

func TestFindPartner_PairsTwoConnections(t *testing.T) {
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")

	require.NoError(t, send(t, o, "a", InFindPartner, map[string]any{"name": "Ann"}))
	var waiting WaitingPayload
	require.True(t, a.Last(EventWaiting, &waiting))
	assert.Equal(t, 1, waiting.Position)

	require.NoError(t, send(t, o, "b", InFindPartner, map[string]any{"name": "Bob"}))

	require.Equal(t, 1, a.Count(EventMatchFound))
	require.Equal(t, 1, b.Count(EventMatchFound))
	var foundA, foundB MatchFoundPayload
	a.Last(EventMatchFound, &foundA)
	b.Last(EventMatchFound, &foundB)
	assert.Equal(t, foundA.Room, foundB.Room)
	assert.Len(t, string(foundA.Room), domain.RoomCodeLen)
	assert.Equal(t, "Bob", foundA.Partner)
	assert.Equal(t, "Ann", foundB.Partner)

	room, ok := o.Rooms.Get(foundA.Room)
	require.True(t, ok)
	assert.Equal(t, 2, room.MemberCount())
	assert.Zero(t, o.Queue.Len())
	assert.Equal(t, 1, b.Count(core.EventHistory))
}

func TestFindPartner_TwiceEnqueuesOnce(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")

	require.NoError(t, send(t, o, "a", InFindPartner, map[string]any{"name": "Ann"}))
	require.NoError(t, send(t, o, "a", InFindPartner, map[string]any{"name": "Ann"}))

	assert.Equal(t, 1, o.Queue.Len())
	assert.Zero(t, a.Count(EventMatchFound))
}

func TestFindPartner_LeavesCurrentRoom(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	join(t, o, "a", "R")

	require.NoError(t, send(t, o, "a", InFindPartner, nil))
	_, _, ok := o.Registry.RoomOf("a")
	assert.False(t, ok)
	_, ok = o.Rooms.Get("R")
	assert.False(t, ok)
}

func TestCancelMatch(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	require.NoError(t, send(t, o, "a", InFindPartner, nil))

	require.NoError(t, send(t, o, "a", InCancelMatch, nil))
	assert.Zero(t, o.Queue.Len())
	assert.Equal(t, 1, a.Count(EventMatchCancelled))

	require.NoError(t, send(t, o, "a", InCancelMatch, nil))
	assert.Equal(t, 1, a.Count(EventMatchCancelled), "second cancel is silent")
}

func TestJoinRoom_LeavesQueue(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	require.NoError(t, send(t, o, "a", InFindPartner, nil))
	join(t, o, "a", "R")
	assert.Zero(t, o.Queue.Len())
}

func TestOnDisconnect_CleansEverything(t *testing.T) {
	o := newOrch()
	aConn, b := coretest.NewConn(), connect(o, "b")
	sessA := o.Connect("a", aConn, func() {})
	join(t, o, "a", "R")
	join(t, o, "b", "R")
	b.Reset()

	o.OnDisconnect("a", sessA)

	var presence core.PresencePayload
	require.True(t, b.Last(core.EventPresence, &presence))
	assert.Equal(t, 1, presence.Count)
	_, ok := o.Registry.GetSession("a")
	assert.False(t, ok)

	o.OnDisconnect("a", sessA)
}

func TestOnDisconnect_RemovesFromQueue(t *testing.T) {
	o := newOrch()
	sess := o.Connect("a", coretest.NewConn(), func() {})
	require.NoError(t, send(t, o, "a", InFindPartner, nil))

	o.OnDisconnect("a", sess)
	assert.Zero(t, o.Queue.Len())

	b := connect(o, "b")
	require.NoError(t, send(t, o, "b", InFindPartner, nil))
	assert.Zero(t, b.Count(EventMatchFound), "departed connection is never matched")
}

func TestOnDisconnect_StaleSocketIgnored(t *testing.T) {
	o := newOrch()
	old := o.Connect("a", coretest.NewConn(), func() {})
	o.Connect("a", coretest.NewConn(), func() {})
	join(t, o, "a", "R")

	o.OnDisconnect("a", old)
	_, _, ok := o.Registry.RoomOf("a")
	assert.True(t, ok)
}

func TestReconnect_SameIDTakesOverRoomMembership(t *testing.T) {
	o := newOrch()
	b := connect(o, "b")
	var oldCancelled atomic.Bool
	first := coretest.NewConn()
	oldSess := o.Connect("a", first, func() { oldCancelled.Store(true) })
	join(t, o, "b", "R")
	join(t, o, "a", "R")

	second := coretest.NewConn()
	newSess := o.Connect("a", second, func() {})
	assert.True(t, oldCancelled.Load(), "superseded socket is shut down")
	assert.Equal(t, 1, second.Count(core.EventHistory), "new socket gets the replay")
	first.Reset()

	require.NoError(t, send(t, o, "b", InAppendCommand, cmd("b1", 1)))
	assert.Equal(t, 1, second.Count(EventCommand))
	assert.Zero(t, first.Count(EventCommand))

	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a1", 2)))
	assert.Equal(t, 2, second.Count(EventCommand), "author sees its own append")
	assert.Equal(t, 2, b.Count(EventCommand))

	room, ok := o.Rooms.Get("R")
	require.True(t, ok)
	o.OnDisconnect("a", oldSess)
	assert.Equal(t, 2, room.MemberCount(), "late close of the old socket changes nothing")
	assert.Equal(t, o.Registry.CountInRoom("R"), room.MemberCount())

	o.OnDisconnect("a", newSess)
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, o.Registry.CountInRoom("R"), room.MemberCount())
	var p core.PresencePayload
	require.True(t, b.Last(core.EventPresence, &p))
	assert.Equal(t, 1, p.Count)
}

func TestBackpressure_KickCancelsSlowMember(t *testing.T) {
	o := newOrch()
	o.Policy = app.SimplePolicy{Action: app.KickMember}
	connect(o, "a")

	var kicked atomic.Bool
	slow := coretest.NewConn()
	o.Connect("b", slow, func() { kicked.Store(true) })
	join(t, o, "a", "R")
	join(t, o, "b", "R")
	slow.SetFail(true)

	require.NoError(t, send(t, o, "a", InAppendCommand, cmd("a1", 1)))
	assert.True(t, kicked.Load())
}

func TestConcurrentJoinsKeepCountsConsistent(t *testing.T) {
	o := newOrch()
	const n = 24
	rooms := []string{"R1", "R2", "R3"}
	for i := range n {
		connect(o, core.SessionID(fmt.Sprintf("s%d", i)))
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := core.SessionID(fmt.Sprintf("s%d", i))
			for range 40 {
				switch rand.IntN(4) {
				case 0:
					_, _ = o.Leave(sid)
				case 1:
					_ = o.FindPartner(sid, "x")
				default:
					_ = o.Join(sid, domain.RoomCode(rooms[rand.IntN(len(rooms))]))
				}
			}
		}(i)
	}
	wg.Wait()

	for _, info := range o.Rooms.List() {
		assert.Equal(t, o.Registry.CountInRoom(info.Code), info.MemberCount, "room %s", info.Code)
	}
	for i := range n {
		sid := core.SessionID(fmt.Sprintf("s%d", i))
		if o.Queue.Contains(sid) {
			_, _, inRoom := o.Registry.RoomOf(sid)
			assert.False(t, inRoom, "%s is queued and in a room", sid)
		}
	}
}
