package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Canvas/internal/adapters/rtc"
	"github.com/dkeye/Canvas/internal/app/orch"
	"github.com/dkeye/Canvas/internal/config"
	"github.com/dkeye/Canvas/internal/core"
)

var ErrClosed = errors.New("connection closed")

// Options tune one WebSocket connection and the join limiter.
type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	JoinLimit    int
	JoinInterval time.Duration
	ICE          webrtc.Configuration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		JoinLimit:    cfg.JoinRateLimit,
		JoinInterval: cfg.JoinRateInterval,
		ICE:          rtc.ConfigFromServers(cfg.ICEServers),
	}
}

// SignalWSController owns every WebSocket connection of the process.
// One controller is shared by all requests so the join limiter sees
// every attempt.
type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *RoomRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewRoomRateLimiter(opts.JoinLimit, opts.JoinInterval),
	}
}

// WsSignalConn is the core.SignalConnection of one socket. Frames are
// queued on send and written by the write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool

	// live is touched only by the read pump.
	live core.LiveConnection
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	if buffer < 1 {
		buffer = 1
	}
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close is idempotent.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves the socket until either
// side goes away or ctx is done.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString(ClientTokenKey))
	if sid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess := ctl.Orch.Connect(sid, conn, cancel)

	var wg conc.WaitGroup
	wg.Go(func() { ctl.writePump(ctx, cancel, sid, conn) })
	wg.Go(func() { ctl.readPump(ctx, cancel, sid, conn) })
	wg.Wait()

	ctl.Orch.OnDisconnect(sid, sess)
	ctl.limiter.Forget(sid)
	if conn.live != nil {
		conn.live.Close()
	}
	conn.Close()
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("WS connection closed")
}

// ClientTokenKey is the gin context key holding the connection id.
const ClientTokenKey = "client_token"
