package orch

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
)

// withRoom runs fn against the room of sid with the membership lock held,
// so a concurrent match cannot move sid out from under the mutation.
func (o *Orchestrator) withRoom(sid core.SessionID, fn func(room core.RoomService) error) error {
	unlock, ok := o.Registry.LockMembership(sid)
	if !ok {
		return ErrUnknownSession
	}
	defer unlock()
	code, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return ErrNotInRoom
	}
	room, ok := o.Rooms.Get(code)
	if !ok {
		return ErrNotInRoom
	}
	return fn(room)
}

func (o *Orchestrator) handleAppend(sid core.SessionID, payload json.RawMessage) error {
	var cmd domain.Command
	if err := decode(payload, &cmd); err != nil {
		return err
	}
	cmd.Origin = string(sid)

	return o.withRoom(sid, func(room core.RoomService) error {
		var err error
		res := room.Exec(func(h *core.History) []core.Outbound {
			stored, e := h.Append(cmd)
			if e != nil {
				err = e
				return nil
			}
			return []core.Outbound{core.Broadcast(EventCommand, stored)}
		})
		o.applyPolicy(room, res)
		return err
	})
}

// updateAll applies upd by id under the miss policy. Misses that get
// appended are returned separately so they can be announced as new. A
// live miss is appended without write-through.
func (o *Orchestrator) updateAll(h *core.History, sid core.SessionID, code domain.RoomCode, upds []domain.Command, durable bool) (moved, appended []domain.Command) {
	for _, upd := range upds {
		if upd.ID == "" {
			continue
		}
		if cmd, ok := h.UpdateByID(upd, durable); ok {
			moved = append(moved, cmd)
			continue
		}
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(code)).
			Str("id", upd.ID).Str("policy", o.Miss.String()).Msg("update for unknown command")
		if o.Miss != app.MissAppend {
			continue
		}
		upd.Origin = string(sid)
		appendFn := h.AppendLive
		if durable {
			appendFn = h.Append
		}
		if cmd, err := appendFn(upd); err == nil {
			appended = append(appended, cmd)
		}
	}
	return moved, appended
}

func (o *Orchestrator) handleMove(sid core.SessionID, payload json.RawMessage) error {
	var p commandsPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	return o.withRoom(sid, func(room core.RoomService) error {
		res := room.Exec(func(h *core.History) []core.Outbound {
			moved, appended := o.updateAll(h, sid, room.Code(), p.Commands, false)
			outs := make([]core.Outbound, 0, len(appended)+1)
			for _, cmd := range appended {
				outs = append(outs, core.Broadcast(EventCommand, cmd))
			}
			if len(moved) > 0 {
				outs = append(outs, core.BroadcastExcept(sid, EventCommandMoved, MovedPayload{Room: room.Code(), From: sid, Commands: moved}))
			}
			return outs
		})
		o.applyPolicy(room, res)
		return nil
	})
}

func snapshot(h *core.History, code domain.RoomCode) core.Outbound {
	return core.Broadcast(EventSnapshot, core.LogPayload{Room: code, Commands: h.Snapshot()})
}

// handleFinalize commits a drag. The full log goes to everyone so clients
// that missed live moves converge.
func (o *Orchestrator) handleFinalize(sid core.SessionID, payload json.RawMessage) error {
	var p commandsPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	return o.withRoom(sid, func(room core.RoomService) error {
		res := room.Exec(func(h *core.History) []core.Outbound {
			o.updateAll(h, sid, room.Code(), p.Commands, true)
			return []core.Outbound{snapshot(h, room.Code())}
		})
		o.applyPolicy(room, res)
		return nil
	})
}

func (o *Orchestrator) handleClear(sid core.SessionID, _ json.RawMessage) error {
	return o.withRoom(sid, func(room core.RoomService) error {
		res := room.Exec(func(h *core.History) []core.Outbound {
			n := h.Clear()
			log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.Code())).Int("dropped", n).Msg("canvas cleared")
			return []core.Outbound{core.Broadcast(EventCleared, RoomPayload{Room: room.Code()})}
		})
		o.applyPolicy(room, res)
		return nil
	})
}

func (o *Orchestrator) handleUndo(sid core.SessionID, _ json.RawMessage) error {
	return o.withRoom(sid, func(room core.RoomService) error {
		res := room.Exec(func(h *core.History) []core.Outbound {
			if _, ok := h.Undo(); !ok {
				return nil
			}
			return []core.Outbound{snapshot(h, room.Code())}
		})
		o.applyPolicy(room, res)
		return nil
	})
}

// handleRedo relays a stateless signal; there is no server-side redo stack.
func (o *Orchestrator) handleRedo(sid core.SessionID, _ json.RawMessage) error {
	return o.withRoom(sid, func(room core.RoomService) error {
		res := room.Exec(func(*core.History) []core.Outbound {
			return []core.Outbound{core.Broadcast(EventRedo, SignalPayload{Room: room.Code(), From: sid})}
		})
		o.applyPolicy(room, res)
		return nil
	})
}

func (o *Orchestrator) handleChat(sid core.SessionID, payload json.RawMessage) error {
	var p textPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) > MaxChatLen {
		text = string([]rune(text)[:MaxChatLen])
	}
	name := o.Registry.DisplayName(sid)

	return o.withRoom(sid, func(room core.RoomService) error {
		res := room.Exec(func(*core.History) []core.Outbound {
			return []core.Outbound{core.Broadcast(EventChat, ChatPayload{Room: room.Code(), From: sid, Name: name, Text: text})}
		})
		o.applyPolicy(room, res)
		return nil
	})
}
