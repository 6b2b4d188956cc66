package core

import "errors"

var (
	// ErrBackpressure is returned by TrySend when the outbound queue is full.
	ErrBackpressure = errors.New("backpressure")
	ErrNoSignal     = errors.New("no signal connection")
)

// Frame is a raw encoded payload.
type Frame []byte

// SessionID identifies one client connection for its whole lifetime.
type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
//
//go:generate mockgen -source=signal_iface.go -destination=mocks/mock_signal.go -package=mocks
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
