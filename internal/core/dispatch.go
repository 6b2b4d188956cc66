package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// DeliveryMode is fixed per event type; callers never pick it ad hoc.
type DeliveryMode int

const (
	ToRoom DeliveryMode = iota
	ToRoomExceptSender
	Direct
)

func (m DeliveryMode) String() string {
	switch m {
	case ToRoom:
		return "to_room"
	case ToRoomExceptSender:
		return "to_room_except_sender"
	case Direct:
		return "direct"
	default:
		return "unknown"
	}
}

// Outbound describes one notification a handler wants delivered.
// Peer is the originator for ToRoomExceptSender and the recipient for
// Direct; it is ignored for ToRoom.
type Outbound struct {
	Mode    DeliveryMode
	Peer    SessionID
	Type    string
	Payload any
}

func Broadcast(typ string, payload any) Outbound {
	return Outbound{Mode: ToRoom, Type: typ, Payload: payload}
}

func BroadcastExcept(sender SessionID, typ string, payload any) Outbound {
	return Outbound{Mode: ToRoomExceptSender, Peer: sender, Type: typ, Payload: payload}
}

func Reply(to SessionID, typ string, payload any) Outbound {
	return Outbound{Mode: Direct, Peer: to, Type: typ, Payload: payload}
}

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EncodeFrame wraps payload into an Envelope frame.
func EncodeFrame(typ string, payload any) (Frame, error) {
	return json.Marshal(outEnvelope{Type: typ, Payload: payload})
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

func (p *PublishResult) merge(o PublishResult) {
	p.SendTo += o.SendTo
	p.Dropped = append(p.Dropped, o.Dropped...)
}

// deliver fans one Outbound out over members. The frame is encoded once.
func deliver(members map[SessionID]MemberSession, out Outbound) PublishResult {
	res := PublishResult{}
	frame, err := EncodeFrame(out.Type, out.Payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.dispatch").Str("type", out.Type).Msg("encode frame")
		return res
	}

	send := func(sid SessionID, ms MemberSession) {
		sc := ms.Signal()
		if sc == nil {
			res.Dropped = append(res.Dropped, sid)
			return
		}
		if err := sc.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, sid)
			return
		}
		res.SendTo++
	}

	switch out.Mode {
	case Direct:
		if ms, ok := members[out.Peer]; ok {
			send(out.Peer, ms)
		}
	case ToRoomExceptSender:
		for sid, ms := range members {
			if sid == out.Peer {
				continue
			}
			send(sid, ms)
		}
	default:
		for sid, ms := range members {
			send(sid, ms)
		}
	}
	log.Debug().Str("module", "core.dispatch").Str("type", out.Type).Str("mode", out.Mode.String()).
		Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// SendDirect encodes and pushes one frame to a single session.
func SendDirect(ms MemberSession, typ string, payload any) error {
	frame, err := EncodeFrame(typ, payload)
	if err != nil {
		return err
	}
	sc := ms.Signal()
	if sc == nil {
		return ErrNoSignal
	}
	return sc.TrySend(frame)
}
