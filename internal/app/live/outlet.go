package live

import (
	"sync/atomic"

	"github.com/dkeye/Canvas/internal/core"
)

type OutletState int32

const (
	OutletStateOk OutletState = iota
	OutletStatePaused
	OutletStateDelete
)

// Outlet is a lossy side channel to one member, usually a WebRTC data
// channel. A new outlet starts paused until its channel opens.
type Outlet struct {
	Conn  core.SignalConnection
	state atomic.Int32
}

func NewOutlet(conn core.SignalConnection) *Outlet {
	ot := &Outlet{Conn: conn}
	ot.MarkPaused()
	return ot
}

func (ot *Outlet) GetState() OutletState {
	return OutletState(ot.state.Load())
}

func (ot *Outlet) MarkOk() {
	ot.state.Store(int32(OutletStateOk))
}

func (ot *Outlet) MarkPaused() {
	ot.state.Store(int32(OutletStatePaused))
}

func (ot *Outlet) MarkDelete() {
	ot.state.Store(int32(OutletStateDelete))
}
