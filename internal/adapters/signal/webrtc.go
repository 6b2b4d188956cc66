package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/adapters/rtc"
	"github.com/dkeye/Canvas/internal/app/orch"
	"github.com/dkeye/Canvas/internal/core"
)

type sdpPayload struct {
	SDP string `json:"sdp"`
}

type candidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (ctl *SignalWSController) sendCandidate(c *WsSignalConn, ci webrtc.ICECandidateInit) {
	ctl.sendJSON(c, evCandidate, candidatePayload{
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

// handleOffer opens the live data channel of sid. A second offer
// replaces the first connection.
func (ctl *SignalWSController) handleOffer(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data json.RawMessage) {
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SDP == "" {
		ctl.sendError(conn, fmt.Errorf("%w: offer without sdp", orch.ErrBadPayload))
		return
	}

	if conn.live != nil {
		conn.live.Close()
		conn.live = nil
	}

	wc, err := rtc.NewWebRTCConnection(ctl.opts.ICE, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc new pc")
		ctl.sendError(conn, err)
		return
	}

	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(conn, ci)
	})
	ctl.Orch.BindLiveHandlers(wc, sid)

	if err = wc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc start")
		wc.Close()
		return
	}

	answer, err := wc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc apply offer")
		wc.Close()
		ctl.sendError(conn, fmt.Errorf("%w: %v", orch.ErrBadPayload, err))
		return
	}
	conn.live = wc

	ctl.sendJSON(conn, evAnswer, sdpPayload{SDP: answer.SDP})
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, conn *WsSignalConn, data json.RawMessage) {
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, fmt.Errorf("%w: %v", orch.ErrBadPayload, err))
		return
	}
	if conn.live == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no live connection")
		return
	}
	cand := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if err := conn.live.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("add ice candidate")
	}
}
