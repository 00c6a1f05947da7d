package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lexsuite/meet/internal/core"
)

// Provider builds pion peer links against the configured STUN servers.
type Provider struct {
	cfg webrtc.Configuration
}

func NewProvider(stunServers []string) *Provider {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return &Provider{
		cfg: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
		},
	}
}

func (p *Provider) NewLink() (core.PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &Link{pc: pc}, nil
}

// Link adapts *webrtc.PeerConnection to core.PeerLink. Pion invokes
// the callbacks on its own goroutines; the session hops them back onto
// its dispatch loop.
type Link struct {
	pc *webrtc.PeerConnection
}

func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return offer, nil
}

func (l *Link) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return answer, nil
}

func (l *Link) SetLocalDescription(sd webrtc.SessionDescription) error {
	return l.pc.SetLocalDescription(sd)
}

func (l *Link) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(sd)
}

func (l *Link) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

func (l *Link) AddTrack(t core.LocalTrack) (core.Sender, error) {
	sender, err := l.pc.AddTrack(t.Native())
	if err != nil {
		return nil, fmt.Errorf("add %s track: %w", t.Kind(), err)
	}
	return &rtpSender{sender: sender, kind: t.Kind()}, nil
}

func (l *Link) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil {
			fn(cand.ToJSON())
		}
	})
}

func (l *Link) OnTrack(fn func(core.RemoteTrack)) {
	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track received")
		fn(&remoteTrack{track: track})
	})
}

func (l *Link) OnStateChange(fn func(core.LinkState)) {
	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			fn(core.LinkConnected)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			fn(core.LinkFailed)
		case webrtc.PeerConnectionStateClosed:
			fn(core.LinkClosed)
		}
	})
}

func (l *Link) Close() error {
	if err := l.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

type rtpSender struct {
	sender *webrtc.RTPSender
	kind   core.TrackKind
}

func (s *rtpSender) Kind() core.TrackKind { return s.kind }

func (s *rtpSender) ReplaceTrack(t core.LocalTrack) error {
	if t == nil {
		return s.sender.ReplaceTrack(nil)
	}
	return s.sender.ReplaceTrack(t.Native())
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (t *remoteTrack) ID() string       { return t.track.ID() }
func (t *remoteTrack) StreamID() string { return t.track.StreamID() }

func (t *remoteTrack) Kind() core.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeAudio {
		return core.TrackKindAudio
	}
	return core.TrackKindVideo
}

var _ core.PeerLinkProvider = (*Provider)(nil)
