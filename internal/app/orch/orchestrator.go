package orch

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/app/live"
	"github.com/dkeye/Canvas/internal/core"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Queue    *app.MatchQueue
	Live     *live.RelayManager
	Policy   app.Policy
	Miss     app.MissPolicy
}

type handlerFunc func(o *Orchestrator, sid core.SessionID, payload json.RawMessage) error

var handlers = map[string]handlerFunc{
	InSetName:       (*Orchestrator).handleSetName,
	InJoinRoom:      (*Orchestrator).handleJoin,
	InLeaveRoom:     (*Orchestrator).handleLeave,
	InWhoAmI:        (*Orchestrator).handleWhoAmI,
	InAppendCommand: (*Orchestrator).handleAppend,
	InMoveCommands:  (*Orchestrator).handleMove,
	InFinalizeMove:  (*Orchestrator).handleFinalize,
	InClearCanvas:   (*Orchestrator).handleClear,
	InUndo:          (*Orchestrator).handleUndo,
	InRedo:          (*Orchestrator).handleRedo,
	InChatMessage:   (*Orchestrator).handleChat,
	InPartialStroke: (*Orchestrator).handlePartial,
	InFindPartner:   (*Orchestrator).handleFindPartner,
	InCancelMatch:   (*Orchestrator).handleCancelMatch,
}

// Handles reports whether typ is an event the orchestrator dispatches.
func Handles(typ string) bool {
	_, ok := handlers[typ]
	return ok
}

// Handle dispatches one inbound envelope. Events of a connection must be
// handed in arrival order from a single goroutine.
func (o *Orchestrator) Handle(sid core.SessionID, env core.Envelope) error {
	h, ok := handlers[env.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if err := h(o, sid, env.Payload); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", env.Type).Msg("handler failed")
		return err
	}
	return nil
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// reply sends a direct frame to sid outside any room.
func (o *Orchestrator) reply(sid core.SessionID, typ string, payload any) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	if err := core.SendDirect(sess, typ, payload); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", typ).Msg("direct send failed")
	}
}

// applyPolicy hands members a broadcast could not reach to the policy.
func (o *Orchestrator) applyPolicy(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow)).Str("room", string(room.Code())).Msg("kicking slow member")
			o.Registry.Cancel(slow)
		case app.NoAction:
		}
	}
}
