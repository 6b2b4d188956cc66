package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/core"
)

// FindPartner pairs sid with the oldest waiting connection or queues it.
// A queued connection is in no room; a match moves both sides into a
// freshly reserved room through the regular join path.
func (o *Orchestrator) FindPartner(sid core.SessionID, name string) error {
	if _, ok := o.Registry.GetSession(sid); !ok {
		return ErrUnknownSession
	}
	name = o.Registry.SetDisplayName(sid, name)

	self := app.WaitingEntry{SID: sid, DisplayName: name}
	out, _, pos := o.Queue.Pair(self, func(partner app.WaitingEntry) {
		o.match(self, partner)
	}, func() {
		if _, ok := o.Leave(sid); ok {
			log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("left room to look for a partner")
		}
	})
	switch out {
	case app.PairQueued:
		o.reply(sid, EventWaiting, WaitingPayload{Position: pos})
	case app.PairAlreadyQueued, app.PairMatched:
	}
	return nil
}

// match runs under the queue lock.
func (o *Orchestrator) match(self, partner app.WaitingEntry) {
	room := o.Rooms.Reserve()
	code := room.Code()

	for _, side := range []app.WaitingEntry{partner, self} {
		unlock, ok := o.Registry.LockMembership(side.SID)
		if !ok {
			continue
		}
		if _, err := o.joinLocked(side.SID, code); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("sid", string(side.SID)).Str("room", string(code)).Msg("match join")
		}
		unlock()
	}
	o.reply(self.SID, EventMatchFound, MatchFoundPayload{Room: code, Partner: partner.DisplayName})
	o.reply(partner.SID, EventMatchFound, MatchFoundPayload{Room: code, Partner: self.DisplayName})

	// Nobody made it in; do not leak the reservation.
	if room.MemberCount() == 0 {
		o.Rooms.Release(code, room)
	}
}

func (o *Orchestrator) CancelMatch(sid core.SessionID) bool {
	if !o.Queue.Remove(sid) {
		return false
	}
	o.reply(sid, EventMatchCancelled, nil)
	return true
}

func (o *Orchestrator) handleFindPartner(sid core.SessionID, payload json.RawMessage) error {
	var p namePayload
	if len(payload) > 0 {
		if err := decode(payload, &p); err != nil {
			return err
		}
	}
	return o.FindPartner(sid, p.Name)
}

func (o *Orchestrator) handleCancelMatch(sid core.SessionID, _ json.RawMessage) error {
	o.CancelMatch(sid)
	return nil
}
