package core

import "github.com/pion/webrtc/v4"

// LinkState is the condensed connectivity state of one peer link.
type LinkState int

const (
	LinkConnecting LinkState = iota
	LinkConnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// RemoteTrack is an incoming media track from a remote peer.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() TrackKind
}

// Sender is the attachment point of one outgoing track; screen-share
// substitutes tracks through it without a new offer/answer round.
// ReplaceTrack(nil) stops sending on this sender.
type Sender interface {
	Kind() TrackKind
	ReplaceTrack(LocalTrack) error
}

// PeerLink abstracts one native peer connection. Callbacks run on the
// implementation's own goroutines; callers must hop back onto their
// own dispatch loop before touching session state.
type PeerLink interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(LocalTrack) (Sender, error)
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(RemoteTrack))
	OnStateChange(func(LinkState))
	Close() error
}

// PeerLinkProvider creates peer links against the configured ICE
// servers (STUN only; unreachable peers fail soft, per link).
type PeerLinkProvider interface {
	NewLink() (PeerLink, error)
}
