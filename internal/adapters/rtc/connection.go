// Package rtc runs the WebRTC data channel a client may open next to its
// WebSocket. The channel carries live partial strokes only.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/core"
)

// LiveLabel is the data channel label clients must use.
const LiveLabel = "live"

// maxBuffered caps queued bytes; past it frames are dropped.
const maxBuffered = 256 * 1024

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	sid    core.SessionID
	cancel context.CancelFunc

	mu        sync.RWMutex
	dc        *webrtc.DataChannel
	onICE     func(webrtc.ICECandidateInit)
	onOpen    func()
	onMessage func(core.Frame)
	onClosed  func()

	closeOnce  sync.Once
	closedOnce sync.Once
}

var _ core.LiveConnection = (*WebRTCConnection)(nil)

func ConfigFromServers(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, sid core.SessionID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &WebRTCConnection{pc: pc, sid: sid}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.fireClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != LiveLabel {
			log.Warn().Str("module", "webrtc").Str("sid", string(c.sid)).Str("label", dc.Label()).Msg("ignoring data channel")
			return
		}
		c.attach(dc)
	})

	return nil
}

func (c *WebRTCConnection) attach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("live channel open")
		c.mu.RLock()
		fn := c.onOpen
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.RLock()
		fn := c.onMessage
		c.mu.RUnlock()
		if fn != nil && msg.IsString {
			fn(core.Frame(msg.Data))
		}
	})
	dc.OnClose(c.fireClosed)
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

// TrySend never blocks. A channel that is not open or is congested
// reports core.ErrBackpressure.
func (c *WebRTCConnection) TrySend(f core.Frame) error {
	c.mu.RLock()
	dc := c.dc
	c.mu.RUnlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return core.ErrBackpressure
	}
	if dc.BufferedAmount() > maxBuffered {
		return core.ErrBackpressure
	}
	if err := dc.SendText(string(f)); err != nil {
		return fmt.Errorf("data channel send: %w", err)
	}
	return nil
}

// Close is idempotent.
func (c *WebRTCConnection) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
		} else {
			log.Debug().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
		}
		c.fireClosed()
	})
}

func (c *WebRTCConnection) fireClosed() {
	c.closedOnce.Do(func() {
		c.mu.RLock()
		fn := c.onClosed
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

// OnMessage receives text frames the client sends on the live channel.
func (c *WebRTCConnection) OnMessage(fn func(core.Frame)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnClosed fires once, whichever side closes first.
func (c *WebRTCConnection) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}
