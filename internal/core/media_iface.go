package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// LiveConnection is a peer connection carrying the lossy live channel.
// It is also a SignalConnection: TrySend writes to the live data channel.
type LiveConnection interface {
	SignalConnection
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// ApplyOfferAndCreateAnswer returns the local answer once gathering completes.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnOpen fires once the live data channel is usable.
	OnOpen(func())
	// OnMessage delivers frames the client sent over the data channel.
	OnMessage(func(Frame))
	// OnClosed sets a callback for cleanup of the live session.
	OnClosed(func())
}
