package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/domain"
)

type PresencePayload struct {
	Room  domain.RoomCode `json:"room"`
	Count int             `json:"count"`
}

type LogPayload struct {
	Room     domain.RoomCode  `json:"room"`
	Commands []domain.Command `json:"commands"`
}

const (
	EventPresence = "presence"
	EventHistory  = "history"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	code domain.RoomCode

	mu      sync.Mutex
	members map[SessionID]MemberSession
	history *History
	closed  bool
}

func NewRoomService(ctx context.Context, code domain.RoomCode, store HistoryStore) RoomService {
	return &roomImpl{
		code:    code,
		members: make(map[SessionID]MemberSession),
		history: NewHistory(ctx, code, store),
	}
}

func (r *roomImpl) Code() domain.RoomCode { return r.code }

func (r *roomImpl) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *roomImpl) Info() domain.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomInfo{Code: r.code, MemberCount: len(r.members), Commands: r.history.Len()}
}

func (r *roomImpl) Join(sid SessionID, ms MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.members[sid] = ms
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Str("room", string(r.code)).Int("members", len(r.members)).Msg("member added")

	r.deliverLocked(
		Broadcast(EventPresence, PresencePayload{Room: r.code, Count: len(r.members)}),
		Reply(sid, EventHistory, LogPayload{Room: r.code, Commands: r.history.Snapshot()}),
	)
	return true
}

func (r *roomImpl) Leave(sid SessionID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[sid]; !ok {
		return len(r.members), false
	}
	delete(r.members, sid)
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Str("room", string(r.code)).Int("members", len(r.members)).Msg("member removed")
	if len(r.members) > 0 {
		r.deliverLocked(Broadcast(EventPresence, PresencePayload{Room: r.code, Count: len(r.members)}))
	}
	return len(r.members), true
}

func (r *roomImpl) Exec(fn func(h *History) []Outbound) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliverLocked(fn(r.history)...)
}

func (r *roomImpl) Peers(except SessionID) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Peer, 0, len(r.members))
	for sid, ms := range r.members {
		if sid == except {
			continue
		}
		out = append(out, Peer{SID: sid, Session: ms})
	}
	return out
}

func (r *roomImpl) TryClose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *roomImpl) deliverLocked(outs ...Outbound) PublishResult {
	res := PublishResult{}
	for _, out := range outs {
		res.merge(deliver(r.members, out))
	}
	return res
}
