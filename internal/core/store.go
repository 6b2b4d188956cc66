package core

import (
	"context"

	"github.com/dkeye/Canvas/internal/domain"
)

// HistoryStore is the optional durable backing of a room's command log.
// Rows are keyed by (room code, command id); Load returns them in append
// order. A nil store means the log lives only as long as the room.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type HistoryStore interface {
	Load(ctx context.Context, code domain.RoomCode) ([]domain.Command, error)
	Append(ctx context.Context, code domain.RoomCode, cmd domain.Command) error
	Update(ctx context.Context, code domain.RoomCode, cmd domain.Command) error
	Delete(ctx context.Context, code domain.RoomCode, id string) error
	Clear(ctx context.Context, code domain.RoomCode) error
}

// RoomLister is implemented by stores that can enumerate the rooms they
// hold history for.
type RoomLister interface {
	Rooms(ctx context.Context) ([]domain.RoomCode, error)
}
