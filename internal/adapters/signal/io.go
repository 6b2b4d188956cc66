package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/app/orch"
	"github.com/dkeye/Canvas/internal/core"
)

const (
	evPing      = "ping"
	evPong      = "pong"
	evOffer     = "offer"
	evAnswer    = "answer"
	evCandidate = "candidate"
)

func (ctl *SignalWSController) writePump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(ctl.opts.WriteWait))
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
	}()

	if ctl.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, sid, c, data)
	}
}

// handleSignal decodes one envelope. Transport events stay in the
// adapter, everything else goes to the orchestrator.
func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", orch.ErrBadPayload, err))
		return
	}
	if env.Type == "" {
		ctl.sendError(c, fmt.Errorf("%w: missing type", orch.ErrBadPayload))
		return
	}

	switch env.Type {
	case evPing:
		ctl.handlePing(c)
		return
	case evOffer:
		ctl.handleOffer(ctx, sid, c, env.Payload)
		return
	case evCandidate:
		ctl.handleCandidate(sid, c, env.Payload)
		return
	case orch.InJoinRoom:
		if !ctl.limiter.Allow(sid) {
			log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
			ctl.sendError(c, orch.ErrRateLimited)
			return
		}
	}

	if err := ctl.Orch.Handle(sid, env); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, err error) {
	ctl.sendJSON(c, orch.EventError, orch.NewErrorPayload(err))
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, typ string, payload any) {
	f, err := core.EncodeFrame(typ, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(f)
}
