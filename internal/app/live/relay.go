package live

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
)

// ForwardResult counts where a partial went. Losses are never retried.
type ForwardResult struct {
	ViaOutlet int
	ViaSignal int
	Lost      int
}

// Forward fans a partial stroke out to peers, never back to from.
// Peers with an open outlet get it there; a failed outlet is marked for
// deletion and the peer falls back to its signal connection.
func (m *RelayManager) Forward(from core.SessionID, peers []core.Peer, seg domain.Segment) ForwardResult {
	res := ForwardResult{}
	frame, err := core.EncodeFrame(EventPartial, PartialPayload{From: from, Segment: seg})
	if err != nil {
		log.Error().Err(err).Str("module", "live").Str("sid", string(from)).Msg("encode partial")
		return res
	}

	m.mu.RLock()
	snapshot := make(map[core.SessionID]*Outlet, len(peers))
	for _, p := range peers {
		if ot, ok := m.outlets[p.SID]; ok {
			snapshot[p.SID] = ot
		}
	}
	m.mu.RUnlock()

	dirty := make([]core.SessionID, 0)
	for _, p := range peers {
		if p.SID == from {
			continue
		}
		if ot, ok := snapshot[p.SID]; ok {
			switch ot.GetState() {
			case OutletStateOk:
				if err := ot.Conn.TrySend(frame); err == nil {
					res.ViaOutlet++
					continue
				}
				log.Debug().Str("module", "live").Str("dst_sid", string(p.SID)).Msg("outlet write failed, marking delete")
				ot.MarkDelete()
				dirty = append(dirty, p.SID)
			case OutletStateDelete:
				dirty = append(dirty, p.SID)
			case OutletStatePaused:
			}
		}
		if sc := p.Session.Signal(); sc != nil && sc.TrySend(frame) == nil {
			res.ViaSignal++
			continue
		}
		res.Lost++
	}

	if len(dirty) > 0 {
		m.cleanupDeleted(dirty)
	}
	return res
}

// cleanupDeleted unmaps outlets that are still flagged; a replacement
// added meanwhile is left alone.
func (m *RelayManager) cleanupDeleted(dirty []core.SessionID) {
	closed := make([]*Outlet, 0, len(dirty))
	m.mu.Lock()
	for _, sid := range dirty {
		if ot, ok := m.outlets[sid]; ok && ot.GetState() == OutletStateDelete {
			delete(m.outlets, sid)
			closed = append(closed, ot)
		}
	}
	m.mu.Unlock()
	for _, ot := range closed {
		ot.Conn.Close()
	}
}
