package orch

import (
	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
)

// Inbound event types.
const (
	InSetName       = "set-name"
	InJoinRoom      = "join-room"
	InLeaveRoom     = "leave-room"
	InAppendCommand = "append-command"
	InMoveCommands  = "move-commands"
	InFinalizeMove  = "finalize-move"
	InClearCanvas   = "clear-canvas"
	InUndo          = "undo"
	InRedo          = "redo"
	InPartialStroke = "partial-stroke"
	InChatMessage   = "chat-message"
	InFindPartner   = "find-partner"
	InCancelMatch   = "cancel-match"
	InWhoAmI        = "whoami"
)

// Outbound event types not owned by core or live.
const (
	EventSnapshot       = "snapshot"
	EventCommand        = "command"
	EventCommandMoved   = "command-moved"
	EventCleared        = "cleared"
	EventRedo           = "redo"
	EventChat           = "chat"
	EventMatchFound     = "match-found"
	EventWaiting        = "waiting"
	EventMatchCancelled = "match-cancelled"
	EventLeft           = "left"
	EventWhoAmI         = "whoami"
	EventError          = "error"
)

// MaxChatLen bounds a chat message in runes.
const MaxChatLen = 1000

type namePayload struct {
	Name string `json:"name"`
}

type roomRequest struct {
	Room string `json:"room"`
}

type commandsPayload struct {
	Commands []domain.Command `json:"commands"`
}

type textPayload struct {
	Text string `json:"text"`
}

type RoomPayload struct {
	Room domain.RoomCode `json:"room"`
}

type SignalPayload struct {
	Room domain.RoomCode `json:"room"`
	From core.SessionID  `json:"from"`
}

type MovedPayload struct {
	Room     domain.RoomCode  `json:"room"`
	From     core.SessionID   `json:"from"`
	Commands []domain.Command `json:"commands"`
}

type ChatPayload struct {
	Room domain.RoomCode `json:"room"`
	From core.SessionID  `json:"from"`
	Name string          `json:"name"`
	Text string          `json:"text"`
}

type MatchFoundPayload struct {
	Room    domain.RoomCode `json:"room"`
	Partner string          `json:"partner"`
}

type WaitingPayload struct {
	Position int `json:"position"`
}

type WhoAmIPayload struct {
	ID     core.SessionID  `json:"id"`
	Name   string          `json:"name"`
	Room   domain.RoomCode `json:"room,omitempty"`
	Queued bool            `json:"queued,omitempty"`
}
