package session

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

// PeerPhase is the negotiation state machine of one remote participant:
// NEW -> NEGOTIATING -> CONNECTED -> CLOSED, with FAILED terminal from
// NEGOTIATING or CONNECTED. A failure here is scoped to this one peer
// and never tears down the session.
type PeerPhase int

const (
	PeerNew PeerPhase = iota
	PeerNegotiating
	PeerConnected
	PeerFailed
	PeerClosed
)

func (p PeerPhase) String() string {
	switch p {
	case PeerNew:
		return "new"
	case PeerNegotiating:
		return "negotiating"
	case PeerConnected:
		return "connected"
	case PeerFailed:
		return "failed"
	case PeerClosed:
		return "closed"
	}
	return "unknown"
}

// peerState is loop-owned; all mutation happens on the dispatch
// goroutine, so negotiation steps per peer are strictly sequential.
type peerState struct {
	id    domain.ParticipantID
	link  core.PeerLink
	phase PeerPhase

	// Remote ICE candidates that arrived before the remote description
	// was set, flushed in arrival order right after it is.
	pending   []webrtc.ICECandidateInit
	remoteSet bool

	// CONNECTED needs both the connectivity check and a remote stream.
	linkUp    bool
	hasRemote bool

	videoSender core.Sender
	audioSender core.Sender

	remoteTracks []core.RemoteTrack
}

func (p *peerState) bufferCandidate(ci webrtc.ICECandidateInit) {
	p.pending = append(p.pending, ci)
}

// flushPending applies buffered candidates in arrival order; none are
// dropped. Call only after the remote description is set.
func (p *peerState) flushPending(logger zerolog.Logger) {
	for _, ci := range p.pending {
		if err := p.link.AddICECandidate(ci); err != nil {
			logger.Error().Err(err).Str("peer", string(p.id)).Msg("flush buffered candidate")
		}
	}
	p.pending = nil
}

// close releases the native handle and clears buffered candidates.
// Idempotent; a close error is logged, never propagated, so teardown
// always runs to completion.
func (p *peerState) close(logger zerolog.Logger) {
	if p.phase == PeerClosed {
		return
	}
	p.phase = PeerClosed
	p.pending = nil
	if p.link != nil {
		if err := p.link.Close(); err != nil {
			logger.Error().Err(err).Str("peer", string(p.id)).Msg("close peer link")
		}
	}
	logger.Info().Str("peer", string(p.id)).Msg("peer closed")
}
