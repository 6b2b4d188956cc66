package app

import (
	"fmt"

	"github.com/dkeye/Canvas/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

func ParseBackpressure(s string) (BackpressureAction, error) {
	switch s {
	case "", "none":
		return NoAction, nil
	case "kick":
		return KickMember, nil
	}
	return NoAction, fmt.Errorf("unknown backpressure policy %q", s)
}

type Policy interface {
	OnBackPressure(room core.RoomService, sid core.SessionID) BackpressureAction
}

// SimplePolicy applies the same action to every slow member.
type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(core.RoomService, core.SessionID) BackpressureAction {
	return p.Action
}

// MissPolicy decides what an update for an unknown command id does.
type MissPolicy int

const (
	MissDiscard MissPolicy = iota
	MissAppend
)

func ParseMissPolicy(s string) (MissPolicy, error) {
	switch s {
	case "", "discard":
		return MissDiscard, nil
	case "append":
		return MissAppend, nil
	}
	return MissDiscard, fmt.Errorf("unknown update_miss policy %q", s)
}

func (m MissPolicy) String() string {
	if m == MissAppend {
		return "append"
	}
	return "discard"
}
