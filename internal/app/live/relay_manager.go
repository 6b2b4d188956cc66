package live

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
)

const EventPartial = "partial"

type PartialPayload struct {
	From    core.SessionID `json:"from"`
	Segment domain.Segment `json:"segment"`
}

// RelayManager tracks the live outlet of every member that opened one.
type RelayManager struct {
	mu      sync.RWMutex
	outlets map[core.SessionID]*Outlet
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		outlets: make(map[core.SessionID]*Outlet),
	}
}

// AddOutlet registers conn as the live outlet of sid, replacing any
// previous one. The outlet stays paused until Open.
func (m *RelayManager) AddOutlet(sid core.SessionID, conn core.SignalConnection) *Outlet {
	ot := NewOutlet(conn)

	m.mu.Lock()
	old, ok := m.outlets[sid]
	m.outlets[sid] = ot
	m.mu.Unlock()

	if ok {
		log.Info().Str("module", "live").Str("sid", string(sid)).Msg("replacing existing outlet")
		old.MarkDelete()
		old.Conn.Close()
	}
	return ot
}

// Open marks the outlet of sid usable.
func (m *RelayManager) Open(sid core.SessionID) {
	if ot, ok := m.Outlet(sid); ok && ot.GetState() == OutletStatePaused {
		ot.MarkOk()
		log.Info().Str("module", "live").Str("sid", string(sid)).Msg("outlet open")
	}
}

// RemoveOutlet unmaps and closes the outlet of sid.
func (m *RelayManager) RemoveOutlet(sid core.SessionID) {
	m.mu.Lock()
	ot, ok := m.outlets[sid]
	if ok {
		delete(m.outlets, sid)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ot.MarkDelete()
	ot.Conn.Close()
	log.Info().Str("module", "live").Str("sid", string(sid)).Msg("outlet removed")
}

func (m *RelayManager) Outlet(sid core.SessionID) (*Outlet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ot, ok := m.outlets[sid]
	return ot, ok
}
