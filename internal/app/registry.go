package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
)

type sessionEntry struct {
	Room    domain.RoomCode
	Session core.MemberSession
	Cancel  context.CancelFunc

	// membership serializes join/leave/disconnect of this connection.
	membership sync.Mutex
}

// Registry maps connection ids to their signal session, user record and
// current room. Display names are only read and written under mu.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[core.SessionID]*domain.User
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[core.SessionID]*domain.User),
	}
}

func (r *Registry) GetOrCreateUser(sid core.SessionID) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[sid]; ok {
		return u
	}
	u := domain.NewUser(domain.UserID(sid), domain.DefaultDisplayName)
	r.users[sid] = u
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("created new user")
	return u
}

// SetDisplayName stores the normalized name and returns it.
func (r *Registry) SetDisplayName(sid core.SessionID, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[sid]
	if !ok {
		u = domain.NewUser(domain.UserID(sid), name)
		r.users[sid] = u
	} else {
		u.SetDisplayName(name)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("name", u.DisplayName).Msg("updated display name")
	return u.DisplayName
}

func (r *Registry) DisplayName(sid core.SessionID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[sid]; ok {
		return u.DisplayName
	}
	return domain.DefaultDisplayName
}

// BindSignal attaches sess to sid. When sid was already bound, as with a
// second socket carrying the same client token, the entry and its room
// pointer are kept and the superseded socket's cancel is returned.
func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) (prev context.CancelFunc, rebound bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[sid]; ok {
		prev = old.Cancel
		old.Session = sess
		old.Cancel = cancel
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("rebound signal")
		return prev, true
	}
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
	return nil, false
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind drops the session only if it is still sess, so a stale socket
// closing late cannot evict its replacement.
func (r *Registry) Unbind(sid core.SessionID, sess core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || (sess != nil && e.Session != sess) {
		return false
	}
	delete(r.sessions, sid)
	delete(r.users, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

// LockMembership takes the per-connection membership lock. ok is false
// for unknown sessions and the returned unlock is then a no-op.
func (r *Registry) LockMembership(sid core.SessionID) (unlock func(), ok bool) {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return func() {}, false
	}
	e.membership.Lock()
	return e.membership.Unlock, true
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomCode, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.Room == "" {
		return "", nil, false
	}
	return entry.Room, entry.Session, true
}

func (r *Registry) UpdateRoom(sid core.SessionID, code domain.RoomCode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.Room = code
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(code)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok {
		entry.Room = ""
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed room association")
}

// CountInRoom reports how many bound sessions point at code.
func (r *Registry) CountInRoom(code domain.RoomCode) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.sessions {
		if e.Room == code {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
