package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/app/live"
	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
)

// BindLiveHandlers wires a live connection of sid into the relay. Frames
// the client sends over it are treated like partial-stroke events.
func (o *Orchestrator) BindLiveHandlers(lc core.LiveConnection, sid core.SessionID) {
	if o.Live == nil {
		return
	}
	ot := o.Live.AddOutlet(sid, lc)
	lc.OnOpen(func() { o.Live.Open(sid) })
	lc.OnMessage(func(f core.Frame) {
		var env core.Envelope
		if err := json.Unmarshal(f, &env); err != nil || env.Type != InPartialStroke {
			return
		}
		if err := o.handlePartial(sid, env.Payload); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("live partial dropped")
		}
	})
	lc.OnClosed(func() {
		ot.MarkDelete()
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("live connection closed")
	})
}

// handlePartial fans a segment out to the other members. Nothing is
// logged and losses are not reported to the sender.
func (o *Orchestrator) handlePartial(sid core.SessionID, payload json.RawMessage) error {
	var seg domain.Segment
	if err := decode(payload, &seg); err != nil {
		return err
	}
	code, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return ErrNotInRoom
	}
	room, ok := o.Rooms.Get(code)
	if !ok {
		return ErrNotInRoom
	}
	peers := room.Peers(sid)
	if len(peers) == 0 {
		return nil
	}
	if o.Live == nil {
		room.Exec(func(*core.History) []core.Outbound {
			return []core.Outbound{core.BroadcastExcept(sid, live.EventPartial, live.PartialPayload{From: sid, Segment: seg})}
		})
		return nil
	}
	o.Live.Forward(sid, peers, seg)
	return nil
}
