package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/core/coretest"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/store/memory"
)

func session(id string) core.MemberSession {
	u := domain.NewUser(domain.UserID(id), id)
	return core.NewMemberSession(domain.NewMember(u)).UpdateSignal(coretest.NewConn())
}

func TestRoomManager_GetOrCreateIsLazyAndShared(t *testing.T) {
	m := NewRoomManager(context.Background(), nil)

	_, ok := m.Get("R")
	assert.False(t, ok)

	a := m.GetOrCreate("R")
	b := m.GetOrCreate("R")
	assert.Same(t, a, b)
	assert.Equal(t, domain.RoomCode("R"), a.Code())
}

func TestRoomManager_ReleaseOnlyEmpty(t *testing.T) {
	m := NewRoomManager(context.Background(), nil)
	room := m.Attach("R", "a", session("a"))

	assert.False(t, m.Release("R", room), "occupied")
	room.Leave("a")
	assert.True(t, m.Release("R", room))
	_, ok := m.Get("R")
	assert.False(t, ok)

	assert.False(t, m.Release("R", room), "already gone")
}

func TestRoomManager_AttachAfterReleaseGetsFreshRoom(t *testing.T) {
	m := NewRoomManager(context.Background(), nil)
	old := m.Attach("R", "a", session("a"))
	old.Leave("a")
	require.True(t, m.Release("R", old))

	fresh := m.Attach("R", "b", session("b"))
	assert.NotSame(t, old, fresh)
	assert.Equal(t, 1, fresh.MemberCount())
}

func TestRoomManager_ReserveUsesFreshCodes(t *testing.T) {
	m := NewRoomManager(context.Background(), nil)
	seen := make(map[domain.RoomCode]bool)
	for range 50 {
		r := m.Reserve()
		assert.Len(t, string(r.Code()), domain.RoomCodeLen)
		assert.False(t, seen[r.Code()])
		seen[r.Code()] = true
	}
	assert.Len(t, m.List(), 50)
}

func TestRoomManager_ListIsSorted(t *testing.T) {
	m := NewRoomManager(context.Background(), nil)
	m.Attach("b", "1", session("1"))
	m.Attach("a", "2", session("2"))
	m.Attach("a", "3", session("3"))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.RoomInfo{Code: "a", MemberCount: 2}, list[0])
	assert.Equal(t, domain.RoomInfo{Code: "b", MemberCount: 1}, list[1])
}

func TestRoomManager_ConcurrentJoinLeave(t *testing.T) {
	m := NewRoomManager(context.Background(), nil)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := core.SessionID(fmt.Sprintf("s%d", i))
			for range 50 {
				room := m.Attach("R", sid, session(string(sid)))
				if remaining, _ := room.Leave(sid); remaining == 0 {
					m.Release("R", room)
				}
			}
		}(i)
	}
	wg.Wait()

	if room, ok := m.Get("R"); ok {
		assert.Zero(t, room.MemberCount())
	}
}

func TestRoomManager_StoredSkipsLiveRooms(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Append(ctx, "idle", domain.Command{ID: "c1", Kind: domain.KindStroke}))
	require.NoError(t, store.Append(ctx, "busy", domain.Command{ID: "c2", Kind: domain.KindStroke}))

	m := NewRoomManager(ctx, store)
	m.Attach("busy", "a", session("a"))

	stored, err := m.Stored(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.RoomCode{"idle"}, stored)

	none, err := NewRoomManager(ctx, nil).Stored(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}
