package orch

import (
	"errors"

	"github.com/dkeye/Canvas/internal/core"
)

var (
	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrNotInRoom       = errors.New("not in a room")
	ErrUnknownSession  = errors.New("unknown session")
	ErrBadPayload      = errors.New("bad payload")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrRateLimited     = errors.New("rate limited")

	ErrDuplicateCommand = core.ErrDuplicateCommand
)

// ErrorPayload is the body of an error frame sent to the originator.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ErrorCode maps a handler error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRoomCode):
		return "invalid_room"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrUnknownSession):
		return "unknown_session"
	case errors.Is(err, ErrDuplicateCommand):
		return "duplicate_id"
	case errors.Is(err, ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}

func NewErrorPayload(err error) ErrorPayload {
	return ErrorPayload{Code: ErrorCode(err), Message: err.Error()}
}
