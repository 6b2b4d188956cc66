package core

import (
	"context"

	"github.com/dkeye/Canvas/internal/domain"
)

// Peer is a member snapshot taken for out-of-lock delivery.
type Peer struct {
	SID     SessionID
	Session MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set and command log but never touches transport resources.
type RoomService interface {
	Code() domain.RoomCode
	Info() domain.RoomInfo
	MemberCount() int

	// Join adds the member, announces presence and replays the log to the
	// joiner. It returns false if the room was closed concurrently.
	Join(sid SessionID, ms MemberSession) bool
	// Leave removes the member, announces presence to the rest and
	// returns how many members remain.
	Leave(sid SessionID) (remaining int, ok bool)
	// Exec runs fn with the room lock held and delivers what it returns
	// before releasing the lock, so members see mutations in order.
	Exec(fn func(h *History) []Outbound) PublishResult
	// Peers snapshots every member except the given one.
	Peers(except SessionID) []Peer

	// TryClose marks an empty room closed. Closed rooms reject Join.
	TryClose() bool
}

type RoomManager interface {
	GetOrCreate(code domain.RoomCode) RoomService
	Get(code domain.RoomCode) (RoomService, bool)
	// Attach joins sid to the live room under code, creating it if needed.
	Attach(code domain.RoomCode, sid SessionID, ms MemberSession) RoomService
	// Release destroys room if it is still registered under code and empty.
	Release(code domain.RoomCode, room RoomService) bool
	// Reserve registers a fresh room under a code no live room uses.
	Reserve() RoomService
	List() []domain.RoomInfo
	// Stored lists codes with durable history but no live room.
	Stored(ctx context.Context) ([]domain.RoomCode, error)
}
