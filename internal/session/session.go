// Package session negotiates one peer-to-peer transport over the signaling
// relay: offer/answer exchange, trickle ICE and the connection state machine.
package session

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// Role is the side a peer takes in a negotiation.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// State is the negotiation state.
type State string

const (
	StateIdle      State = "idle"
	StateOffering  State = "offering"
	StateAnswering State = "answering"
	StateConnected State = "connected"
	StateClosed    State = "closed"
	StateFailed    State = "failed"
)

// active reports whether a negotiation or session is in progress.
func (s State) active() bool {
	return s == StateOffering || s == StateAnswering || s == StateConnected
}

var (
	// ErrNegotiationFailure wraps any failure creating or applying
	// descriptions or candidates.
	ErrNegotiationFailure = errors.New("negotiation failure")

	// ErrBusy is returned by Initiate while another session is active.
	ErrBusy = errors.New("negotiation already in progress")

	// ErrConnectionLost is returned by Run when the control connection ends
	// before a transport is established.
	ErrConnectionLost = errors.New("control connection lost")

	// ErrStopped is returned by Initiate when the negotiator is not running.
	ErrStopped = errors.New("negotiator stopped")
)

// PeerContext is the transport-negotiation capability for one session.
type PeerContext interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sd webrtc.SessionDescription) error
	SetRemoteDescription(sd webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))

	// Ready is closed when the data channel opens.
	Ready() <-chan struct{}
	// Done is closed when the data channel or connection goes away.
	Done() <-chan struct{}
	Close() error
}

// Factory creates the PeerContext for a new session. Initiator contexts
// create the data channel; responder contexts adopt the remote one.
type Factory[P PeerContext] func(ctx context.Context, role Role) (P, error)

// Signaler sends negotiation messages to a peer through the relay.
type Signaler interface {
	SendOffer(target string, offer webrtc.SessionDescription) error
	SendAnswer(target string, answer webrtc.SessionDescription) error
	SendCandidate(target string, candidate webrtc.ICECandidateInit) error
}
