package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/core"
)

type WaitingEntry struct {
	SID         core.SessionID
	DisplayName string
}

type PairOutcome int

const (
	PairQueued PairOutcome = iota
	PairAlreadyQueued
	PairMatched
)

// MatchQueue is a FIFO of connections waiting for a partner.
// A session id appears at most once.
type MatchQueue struct {
	mu      sync.Mutex
	waiting []WaitingEntry
}

func NewMatchQueue() *MatchQueue {
	return &MatchQueue{}
}

// Pair matches e with the oldest other waiting entry, or enqueues it.
// Both callbacks run with the queue lock held: onMatch after the partner
// is removed, onQueue right before e is appended.
func (q *MatchQueue) Pair(e WaitingEntry, onMatch func(partner WaitingEntry), onQueue func()) (out PairOutcome, partner WaitingEntry, position int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(e.SID); i >= 0 {
		return PairAlreadyQueued, WaitingEntry{}, i + 1
	}
	for i, w := range q.waiting {
		if w.SID == e.SID {
			continue
		}
		q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
		log.Info().Str("module", "app.match").Str("sid", string(e.SID)).Str("partner", string(w.SID)).Msg("paired")
		if onMatch != nil {
			onMatch(w)
		}
		return PairMatched, w, 0
	}
	if onQueue != nil {
		onQueue()
	}
	q.waiting = append(q.waiting, e)
	log.Info().Str("module", "app.match").Str("sid", string(e.SID)).Int("position", len(q.waiting)).Msg("queued")
	return PairQueued, WaitingEntry{}, len(q.waiting)
}

// Remove drops sid from the queue and reports whether it was there.
func (q *MatchQueue) Remove(sid core.SessionID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(sid)
	if i < 0 {
		return false
	}
	q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
	log.Info().Str("module", "app.match").Str("sid", string(sid)).Msg("dequeued")
	return true
}

func (q *MatchQueue) Contains(sid core.SessionID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(sid) >= 0
}

func (q *MatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

func (q *MatchQueue) indexLocked(sid core.SessionID) int {
	for i, w := range q.waiting {
		if w.SID == sid {
			return i
		}
	}
	return -1
}
