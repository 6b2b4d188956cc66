package app

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
)

type RoomManagerImpl struct {
	ctx   context.Context
	store core.HistoryStore

	mu    sync.RWMutex
	rooms map[domain.RoomCode]core.RoomService
}

// NewRoomManager creates rooms lazily. store may be nil for a purely
// in-memory log.
func NewRoomManager(ctx context.Context, store core.HistoryStore) *RoomManagerImpl {
	return &RoomManagerImpl{
		ctx:   ctx,
		store: store,
		rooms: make(map[domain.RoomCode]core.RoomService),
	}
}

func (f *RoomManagerImpl) GetOrCreate(code domain.RoomCode) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[code]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[code]; ok {
		return room
	}
	return f.createLocked(code)
}

func (f *RoomManagerImpl) createLocked(code domain.RoomCode) core.RoomService {
	room := core.NewRoomService(f.ctx, code, f.store)
	f.rooms[code] = room
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(code domain.RoomCode) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[code]
	return room, ok
}

func (f *RoomManagerImpl) Attach(code domain.RoomCode, sid core.SessionID, ms core.MemberSession) core.RoomService {
	for {
		room := f.GetOrCreate(code)
		if room.Join(sid, ms) {
			return room
		}
		// Closed between lookup and join; Release already unmapped it.
		log.Debug().Str("module", "app.rooms").Str("room", string(code)).Msg("attach retry on closed room")
	}
}

func (f *RoomManagerImpl) Release(code domain.RoomCode, room core.RoomService) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rooms[code]; !ok || cur != room {
		return false
	}
	if !room.TryClose() {
		return false
	}
	delete(f.rooms, code)
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room destroyed")
	return true
}

func (f *RoomManagerImpl) Reserve() core.RoomService {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		code := domain.NewRoomCode()
		if _, taken := f.rooms[code]; taken {
			continue
		}
		return f.createLocked(code)
	}
}

func (f *RoomManagerImpl) List() []domain.RoomInfo {
	f.mu.RLock()
	rooms := make([]core.RoomService, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.mu.RUnlock()

	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	slices.SortFunc(out, func(a, b domain.RoomInfo) int {
		return strings.Compare(string(a.Code), string(b.Code))
	})
	return out
}

func (f *RoomManagerImpl) Stored(ctx context.Context) ([]domain.RoomCode, error) {
	lister, ok := f.store.(core.RoomLister)
	if !ok {
		return nil, nil
	}
	codes, err := lister.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.DeleteFunc(codes, func(c domain.RoomCode) bool {
		_, live := f.rooms[c]
		return live
	}), nil
}
