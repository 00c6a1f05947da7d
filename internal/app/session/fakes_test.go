package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

// ---- signal channel ----

type fakeChannel struct {
	mu     sync.Mutex
	sent   []domain.Envelope
	events chan domain.Envelope
	closed bool
	once   sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan domain.Envelope, 64)}
}

func (c *fakeChannel) Send(env domain.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeChannel) Events() <-chan domain.Envelope { return c.events }

func (c *fakeChannel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drop simulates the transport dying.
func (c *fakeChannel) drop() {
	c.once.Do(func() { close(c.events) })
}

func (c *fakeChannel) deliver(env domain.Envelope) {
	c.events <- env
}

func (c *fakeChannel) sentOfType(t domain.MessageType) []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Envelope
	for _, env := range c.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// ---- peer link ----

type fakeSender struct {
	mu      sync.Mutex
	kind    core.TrackKind
	current core.LocalTrack
	err     error
}

func (s *fakeSender) Kind() core.TrackKind { return s.kind }

func (s *fakeSender) ReplaceTrack(t core.LocalTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.current = t
	return nil
}

func (s *fakeSender) currentTrack() core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

type fakeLink struct {
	mu sync.Mutex

	tracks         []core.LocalTrack
	senders        []*fakeSender
	tracksAtAnswer int
	tracksAtOffer  int

	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
	onState func(core.LinkState)

	closed   bool
	closeErr error

	offerErr  error
	answerErr error
	remoteErr error
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offerErr != nil {
		return webrtc.SessionDescription{}, l.offerErr
	}
	l.tracksAtOffer = len(l.tracks)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.answerErr != nil {
		return webrtc.SessionDescription{}, l.answerErr
	}
	l.tracksAtAnswer = len(l.tracks)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (l *fakeLink) SetLocalDescription(sd webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.localDesc = &sd
	return nil
}

func (l *fakeLink) SetRemoteDescription(sd webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remoteErr != nil {
		return l.remoteErr
	}
	l.remoteDesc = &sd
	return nil
}

func (l *fakeLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, ci)
	return nil
}

func (l *fakeLink) AddTrack(t core.LocalTrack) (core.Sender, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(l.tracks, t)
	s := &fakeSender{kind: t.Kind(), current: t}
	l.senders = append(l.senders, s)
	return s, nil
}

func (l *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onICE = fn
}

func (l *fakeLink) OnTrack(fn func(core.RemoteTrack)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTrack = fn
}

func (l *fakeLink) OnStateChange(fn func(core.LinkState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return l.closeErr
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) appliedCandidates() []webrtc.ICECandidateInit {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(l.candidates))
	copy(out, l.candidates)
	return out
}

func (l *fakeLink) videoSender() *fakeSender {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.senders {
		if s.kind == core.TrackKindVideo {
			return s
		}
	}
	return nil
}

func (l *fakeLink) audioSender() *fakeSender {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.senders {
		if s.kind == core.TrackKindAudio {
			return s
		}
	}
	return nil
}

func (l *fakeLink) fireState(st core.LinkState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (l *fakeLink) fireTrack(t core.RemoteTrack) {
	l.mu.Lock()
	fn := l.onTrack
	l.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (l *fakeLink) fireCandidate(ci webrtc.ICECandidateInit) {
	l.mu.Lock()
	fn := l.onICE
	l.mu.Unlock()
	if fn != nil {
		fn(ci)
	}
}

type fakeRemoteTrack struct {
	id   string
	kind core.TrackKind
}

func (t fakeRemoteTrack) ID() string           { return t.id }
func (t fakeRemoteTrack) StreamID() string     { return "stream-" + t.id }
func (t fakeRemoteTrack) Kind() core.TrackKind { return t.kind }

type fakeProvider struct {
	mu      sync.Mutex
	links   []*fakeLink
	nextErr error
}

func (p *fakeProvider) NewLink() (core.PeerLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nextErr != nil {
		err := p.nextErr
		p.nextErr = nil
		return nil, err
	}
	l := &fakeLink{}
	p.links = append(p.links, l)
	return l, nil
}

func (p *fakeProvider) linkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.links)
}

func (p *fakeProvider) link(i int) *fakeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links[i]
}

// ---- media devices ----

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    core.TrackKind
	enabled bool
	stopped bool
	onEnded func()
}

func newFakeTrack(id string, kind core.TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string           { return t.id }
func (t *fakeTrack) Kind() core.TrackKind { return t.kind }

func (t *fakeTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *fakeTrack) fireEnded() {
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *fakeTrack) Native() webrtc.TrackLocal { return nil }

type fakeDevices struct {
	mu        sync.Mutex
	camErr    error
	screenErr error
	cameras   int
	screens   int

	lastCamVideo *fakeTrack
	lastCamAudio *fakeTrack
	lastScreen   *fakeTrack
}

func (d *fakeDevices) OpenCamera(ctx context.Context) (core.LocalTrack, core.LocalTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.camErr != nil {
		return nil, nil, d.camErr
	}
	d.cameras++
	d.lastCamVideo = newFakeTrack(fmt.Sprintf("cam-video-%d", d.cameras), core.TrackKindVideo)
	d.lastCamAudio = newFakeTrack(fmt.Sprintf("cam-audio-%d", d.cameras), core.TrackKindAudio)
	return d.lastCamVideo, d.lastCamAudio, nil
}

func (d *fakeDevices) OpenScreen(ctx context.Context) (core.LocalTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.screenErr != nil {
		return nil, d.screenErr
	}
	d.screens++
	d.lastScreen = newFakeTrack(fmt.Sprintf("screen-%d", d.screens), core.TrackKindVideo)
	return d.lastScreen, nil
}

func (d *fakeDevices) camVideo() *fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCamVideo
}

func (d *fakeDevices) camAudio() *fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCamAudio
}

func (d *fakeDevices) screen() *fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastScreen
}

var errDeviceBusy = errors.New("device busy")
