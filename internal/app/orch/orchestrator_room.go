package orch

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
)

// Connect registers a freshly established connection and returns the
// session the transport should hand back to OnDisconnect. A socket that
// reuses a bound sid takes over its room membership and the previous
// socket is cancelled.
func (o *Orchestrator) Connect(sid core.SessionID, sc core.SignalConnection, cancel context.CancelFunc) core.MemberSession {
	user := o.Registry.GetOrCreateUser(sid)
	sess := core.NewMemberSession(domain.NewMember(user)).UpdateSignal(sc)
	prev, rebound := o.Registry.BindSignal(sid, sess, cancel)
	if !rebound {
		return sess
	}

	if unlock, ok := o.Registry.LockMembership(sid); ok {
		// Re-join with whatever session is current now, in case another
		// socket rebound in between. The room swaps the member entry and
		// replays the log to it.
		if code, cur, ok := o.Registry.RoomOf(sid); ok {
			if room, ok := o.Rooms.Get(code); ok {
				room.Join(sid, cur)
			}
		}
		if o.Live != nil {
			o.Live.RemoveOutlet(sid)
		}
		unlock()
	}
	if prev != nil {
		prev()
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("socket superseded")
	return sess
}

// OnDisconnect drops every trace of sess: queue entry, room membership,
// live outlet and registry binding. A stale socket whose sid was rebound
// to a newer session is ignored.
func (o *Orchestrator) OnDisconnect(sid core.SessionID, sess core.MemberSession) {
	if cur, ok := o.Registry.GetSession(sid); !ok || cur != sess {
		return
	}
	o.Queue.Remove(sid)

	unlock, ok := o.Registry.LockMembership(sid)
	if ok {
		o.leaveLocked(sid)
		unlock()
	}
	if o.Live != nil {
		o.Live.RemoveOutlet(sid)
	}
	o.Registry.Unbind(sid, sess)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}

// Join moves sid into code, leaving its current room first.
func (o *Orchestrator) Join(sid core.SessionID, code domain.RoomCode) error {
	if !code.Valid() {
		return ErrInvalidRoomCode
	}
	o.Queue.Remove(sid)

	unlock, ok := o.Registry.LockMembership(sid)
	if !ok {
		return ErrUnknownSession
	}
	defer unlock()
	_, err := o.joinLocked(sid, code)
	return err
}

// Leave is a no-op when sid is in no room.
func (o *Orchestrator) Leave(sid core.SessionID) (domain.RoomCode, bool) {
	unlock, ok := o.Registry.LockMembership(sid)
	if !ok {
		return "", false
	}
	defer unlock()
	return o.leaveLocked(sid)
}

// joinLocked expects the membership lock of sid.
func (o *Orchestrator) joinLocked(sid core.SessionID, code domain.RoomCode) (core.RoomService, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, ErrUnknownSession
	}
	if cur, _, ok := o.Registry.RoomOf(sid); ok {
		if cur == code {
			// Re-join resends presence and replay.
			if room, ok := o.Rooms.Get(code); ok && room.Join(sid, sess) {
				return room, nil
			}
		}
		o.leaveLocked(sid)
	}

	room := o.Rooms.Attach(code, sid, sess)
	o.Registry.UpdateRoom(sid, code)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(code)).Msg("added to room")
	return room, nil
}

// leaveLocked expects the membership lock of sid.
func (o *Orchestrator) leaveLocked(sid core.SessionID) (domain.RoomCode, bool) {
	code, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return "", false
	}
	if room, ok := o.Rooms.Get(code); ok {
		if remaining, _ := room.Leave(sid); remaining == 0 {
			o.Rooms.Release(code, room)
		}
	}
	o.Registry.RemoveRoom(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(code)).Msg("left room")
	return code, true
}

func (o *Orchestrator) handleSetName(sid core.SessionID, payload json.RawMessage) error {
	var p namePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	o.Registry.SetDisplayName(sid, p.Name)
	return nil
}

func (o *Orchestrator) handleJoin(sid core.SessionID, payload json.RawMessage) error {
	var p roomRequest
	if err := json.Unmarshal(payload, &p); err != nil {
		// A non-string room is an invalid code, not a protocol error.
		return ErrInvalidRoomCode
	}
	return o.Join(sid, domain.RoomCode(p.Room))
}

func (o *Orchestrator) handleLeave(sid core.SessionID, _ json.RawMessage) error {
	if code, ok := o.Leave(sid); ok {
		o.reply(sid, EventLeft, RoomPayload{Room: code})
	}
	return nil
}

func (o *Orchestrator) handleWhoAmI(sid core.SessionID, _ json.RawMessage) error {
	resp := WhoAmIPayload{ID: sid, Name: o.Registry.DisplayName(sid), Queued: o.Queue.Contains(sid)}
	if code, _, ok := o.Registry.RoomOf(sid); ok {
		resp.Room = code
	}
	o.reply(sid, EventWhoAmI, resp)
	return nil
}
