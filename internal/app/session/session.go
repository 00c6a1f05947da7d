// Package session implements the client side of a conference room: a
// full mesh of peer links, one negotiation state machine per remote
// participant, driven by a single dispatch loop so callback
// interleavings never race on session state.
package session

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

// Phase is the session lifecycle: JOINING -> ACTIVE -> LEAVING ->
// TERMINATED.
type Phase int

const (
	PhaseJoining Phase = iota
	PhaseActive
	PhaseLeaving
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseJoining:
		return "joining"
	case PhaseActive:
		return "active"
	case PhaseLeaving:
		return "leaving"
	case PhaseTerminated:
		return "terminated"
	}
	return "unknown"
}

// Dialer connects the signaling channel. The channel itself never
// retries; the session does one reconnect attempt at start and then
// gives up.
type Dialer func(ctx context.Context) (core.SignalChannel, error)

// Notice is a non-blocking, user-visible remark about a scoped
// failure, e.g. one peer's connection being lost.
type Notice struct {
	Peer domain.ParticipantID
	Text string
}

// Callbacks surface session output to the embedding UI layer. All run
// on the dispatch goroutine; keep them fast.
type Callbacks struct {
	OnChat        func(domain.ChatMessage)
	OnNotice      func(Notice)
	OnRemoteTrack func(domain.ParticipantID, core.RemoteTrack)
	OnRecording   func(domain.RecordingState)
}

// Summary is a consistent snapshot of session state for callers
// outside the loop.
type Summary struct {
	Phase        Phase
	Peers        map[domain.ParticipantID]PeerPhase
	Roster       []domain.Participant
	Chat         []domain.ChatMessage
	Recording    domain.RecordingState
	Source       core.SourceKind
	VideoEnabled bool
	AudioEnabled bool
}

// Session is the top-level owner: it wires roster, media, chat and
// recording together and is the only component that creates or
// destroys peer state.
type Session struct {
	self   domain.Participant
	roomID domain.RoomID

	dial     Dialer
	provider core.PeerLinkProvider
	channel  core.SignalChannel

	media     *mediaPipeline
	roster    *roster
	chat      *chatLog
	recording *recordingMirror
	peers     map[domain.ParticipantID]*peerState

	phase Phase
	inbox chan event
	done  chan struct{}
	ctx   context.Context

	cb     Callbacks
	logger zerolog.Logger
}

func New(self domain.Participant, roomID domain.RoomID, dial Dialer, provider core.PeerLinkProvider, devices core.MediaDevices, cb Callbacks) *Session {
	logger := log.With().
		Str("module", "session").
		Str("room", string(roomID)).
		Str("self", string(self.ID)).
		Logger()
	return &Session{
		self:      self,
		roomID:    roomID,
		dial:      dial,
		provider:  provider,
		media:     newMediaPipeline(devices, logger),
		roster:    newRoster(),
		chat:      &chatLog{},
		recording: &recordingMirror{state: domain.RecordingState{RoomID: roomID}},
		peers:     make(map[domain.ParticipantID]*peerState),
		phase:     PhaseJoining,
		inbox:     make(chan event, 256),
		done:      make(chan struct{}),
		cb:        cb,
		logger:    logger,
	}
}

// Start acquires local media, connects signaling (one retry) and
// launches the dispatch loop. Both failure modes are session-fatal;
// anything acquired before the failure is released.
func (s *Session) Start(ctx context.Context) error {
	if err := s.media.acquireCamera(ctx); err != nil {
		return err
	}

	ch, err := s.dial(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("signaling connect failed, retrying once")
		ch, err = s.dial(ctx)
	}
	if err != nil {
		s.media.stopAll()
		return err
	}
	s.channel = ch
	s.ctx = ctx
	s.phase = PhaseActive
	s.logger.Info().Msg("session active")

	go s.run(ctx)
	return nil
}

// Done closes once teardown has run to completion.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run(ctx context.Context) {
	defer s.teardown()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-s.channel.Events():
			if !ok {
				// Unrecoverable channel failure mid-session.
				s.logger.Warn().Msg("signaling channel lost")
				s.notice("", "signaling connection lost")
				return
			}
			s.handleEnvelope(env)
		case ev := <-s.inbox:
			s.handleEvent(ev)
		}
		if s.phase == PhaseLeaving {
			return
		}
	}
}

// post hands an event to the loop; dropped once the session is done.
func (s *Session) post(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// ---- user commands (safe from any goroutine) ----

func (s *Session) Leave() {
	s.post(evCommand{func() { s.phase = PhaseLeaving }})
}

func (s *Session) ToggleVideo() {
	s.post(evCommand{func() { s.media.toggleVideo() }})
}

func (s *Session) ToggleAudio() {
	s.post(evCommand{func() { s.media.toggleAudio() }})
}

func (s *Session) StartScreenShare() {
	s.post(evCommand{s.startScreenShare})
}

func (s *Session) StopScreenShare() {
	s.post(evCommand{s.stopScreenShare})
}

func (s *Session) SendChat(text string) {
	s.post(evCommand{func() { s.sendChat(text) }})
}

func (s *Session) ToggleRecording() {
	s.post(evCommand{func() { s.toggleRecording() }})
}

// Snapshot returns a consistent view of session state. While the loop
// runs the query executes on it; after termination the state is
// frozen and read directly.
func (s *Session) Snapshot() Summary {
	reply := make(chan Summary, 1)
	select {
	case s.inbox <- evCommand{func() { reply <- s.summary() }}:
		select {
		case sum := <-reply:
			return sum
		case <-s.done:
			return s.summary()
		}
	case <-s.done:
		return s.summary()
	}
}

func (s *Session) summary() Summary {
	peers := make(map[domain.ParticipantID]PeerPhase, len(s.peers))
	for id, p := range s.peers {
		peers[id] = p.phase
	}
	return Summary{
		Phase:        s.phase,
		Peers:        peers,
		Roster:       s.roster.snapshot(),
		Chat:         s.chat.snapshot(),
		Recording:    s.recording.state,
		Source:       s.media.source,
		VideoEnabled: s.media.videoEnabled(),
		AudioEnabled: s.media.audioEnabled(),
	}
}

// ---- dispatch ----

func (s *Session) handleEnvelope(env domain.Envelope) {
	switch env.Type {
	case domain.TypeUserJoined:
		s.handleUserJoined(env)
	case domain.TypeUserLeft:
		s.handleUserLeft(env)
	case domain.TypeOffer:
		s.handleOffer(env)
	case domain.TypeAnswer:
		s.handleAnswer(env)
	case domain.TypeICECandidate:
		s.handleCandidate(env)
	case domain.TypeChatMessage:
		s.handleChat(env)
	case domain.TypeParticipantsUpdate:
		s.handleParticipants(env)
	case domain.TypeRecordingStarted, domain.TypeRecordingStopped:
		s.handleRecording(env)
	default:
		s.logger.Warn().Str("type", string(env.Type)).Msg("unknown signal")
	}
}

func (s *Session) handleEvent(ev event) {
	switch e := ev.(type) {
	case evCommand:
		e.run()
	case evLocalCandidate:
		s.handleLocalCandidate(e)
	case evLinkState:
		s.handleLinkState(e)
	case evRemoteTrack:
		s.handleRemoteTrack(e)
	case evScreenEnded:
		// Same path as an explicit stop.
		s.logger.Info().Msg("screen track ended by source")
		s.stopScreenShare()
	}
}

func (s *Session) handleUserJoined(env domain.Envelope) {
	p, err := env.User()
	if err != nil {
		s.logger.Error().Err(err).Msg("bad user-joined payload")
		return
	}
	if p.ID == s.self.ID {
		return
	}
	s.roster.add(p)
	s.logger.Info().Str("peer", string(p.ID)).Str("name", p.DisplayName).Msg("user joined")
	// Glare rule: every existing participant initiates toward the
	// newcomer; the newcomer only answers. Offer direction is a pure
	// function of (existing vs new), so double-offers cannot happen.
	s.initiate(p.ID)
}

func (s *Session) handleUserLeft(env domain.Envelope) {
	p, err := env.User()
	if err != nil {
		s.logger.Error().Err(err).Msg("bad user-left payload")
		return
	}
	s.roster.remove(p.ID)
	if peer, ok := s.peers[p.ID]; ok {
		peer.close(s.logger)
		delete(s.peers, p.ID)
	}
	s.logger.Info().Str("peer", string(p.ID)).Msg("user left")
}

// initiate runs the offering side of negotiation toward a newcomer.
func (s *Session) initiate(id domain.ParticipantID) {
	if _, exists := s.peers[id]; exists {
		s.logger.Warn().Str("peer", string(id)).Msg("peer state already exists, not re-initiating")
		return
	}
	peer, err := s.newPeer(id)
	if err != nil {
		s.failSetup(id, nil, err)
		return
	}

	offer, err := peer.link.CreateOffer()
	if err != nil {
		s.failSetup(id, peer, err)
		return
	}
	if err := peer.link.SetLocalDescription(offer); err != nil {
		s.failSetup(id, peer, err)
		return
	}
	env, err := domain.NewEnvelope(domain.TypeOffer, s.roomID, offer)
	if err != nil {
		s.failSetup(id, peer, err)
		return
	}
	env.From = s.self.ID
	env.To = id
	if err := s.channel.Send(env); err != nil {
		s.failSetup(id, peer, err)
		return
	}
	peer.phase = PeerNegotiating
	s.peers[id] = peer
	s.logger.Info().Str("peer", string(id)).Msg("offer sent")
}

func (s *Session) handleOffer(env domain.Envelope) {
	from := env.From
	if _, exists := s.peers[from]; exists {
		// At most one peer state per participant: a second offer for a
		// live peer is rejected, never replaces the existing state.
		s.logger.Warn().Str("peer", string(from)).Msg("duplicate offer rejected")
		return
	}
	sd, err := env.SDP()
	if err != nil {
		s.logger.Error().Err(err).Str("peer", string(from)).Msg("bad offer payload")
		return
	}
	if !s.roster.has(from) {
		// Unexpected offer: the peer is ahead of our roster view.
		s.roster.add(domain.Participant{ID: from})
	}

	peer, err := s.newPeer(from)
	if err != nil {
		s.failSetup(from, nil, err)
		return
	}
	if err := peer.link.SetRemoteDescription(sd); err != nil {
		s.failSetup(from, peer, err)
		return
	}
	peer.remoteSet = true
	peer.flushPending(s.logger)

	answer, err := peer.link.CreateAnswer()
	if err != nil {
		s.failSetup(from, peer, err)
		return
	}
	if err := peer.link.SetLocalDescription(answer); err != nil {
		s.failSetup(from, peer, err)
		return
	}
	reply, err := domain.NewEnvelope(domain.TypeAnswer, s.roomID, answer)
	if err != nil {
		s.failSetup(from, peer, err)
		return
	}
	reply.From = s.self.ID
	reply.To = from
	if err := s.channel.Send(reply); err != nil {
		s.failSetup(from, peer, err)
		return
	}
	peer.phase = PeerNegotiating
	s.peers[from] = peer
	s.logger.Info().Str("peer", string(from)).Msg("answer sent")
}

func (s *Session) handleAnswer(env domain.Envelope) {
	peer, ok := s.peers[env.From]
	if !ok || peer.phase != PeerNegotiating || peer.remoteSet {
		// Stale or out-of-order answer; the peer is gone or already
		// has a remote description.
		s.logger.Warn().Str("peer", string(env.From)).Msg("ignoring stale answer")
		return
	}
	sd, err := env.SDP()
	if err != nil {
		s.logger.Error().Err(err).Str("peer", string(env.From)).Msg("bad answer payload")
		return
	}
	if err := peer.link.SetRemoteDescription(sd); err != nil {
		s.failPeer(env.From, err)
		return
	}
	peer.remoteSet = true
	peer.flushPending(s.logger)
}

func (s *Session) handleCandidate(env domain.Envelope) {
	peer, ok := s.peers[env.From]
	if !ok {
		// Peer already closed or never existed; candidates for it are
		// no longer relevant.
		return
	}
	ci, err := env.Candidate()
	if err != nil {
		s.logger.Error().Err(err).Str("peer", string(env.From)).Msg("bad candidate payload")
		return
	}
	if !peer.remoteSet {
		peer.bufferCandidate(ci)
		return
	}
	if err := peer.link.AddICECandidate(ci); err != nil {
		s.logger.Error().Err(err).Str("peer", string(env.From)).Msg("add ice candidate")
	}
}

func (s *Session) handleChat(env domain.Envelope) {
	msg, err := env.Chat()
	if err != nil {
		s.logger.Error().Err(err).Msg("bad chat payload")
		return
	}
	s.chat.append(msg)
	if s.cb.OnChat != nil {
		s.cb.OnChat(msg)
	}
}

func (s *Session) handleParticipants(env domain.Envelope) {
	ps, err := env.Participants()
	if err != nil {
		s.logger.Error().Err(err).Msg("bad participants payload")
		return
	}
	s.roster.replace(ps, s.self.ID)
	s.logger.Info().Int("count", len(ps)).Msg("participants snapshot")
}

func (s *Session) handleRecording(env domain.Envelope) {
	rs, err := env.Recording()
	if err != nil {
		s.logger.Error().Err(err).Msg("bad recording payload")
		return
	}
	s.recording.apply(rs)
	s.logger.Info().Bool("active", rs.Active).Msg("recording state")
	if s.cb.OnRecording != nil {
		s.cb.OnRecording(rs)
	}
}

// ---- link events ----

func (s *Session) handleLocalCandidate(e evLocalCandidate) {
	if _, ok := s.peers[e.peer]; !ok {
		// Link already closed; its late candidates are irrelevant.
		return
	}
	env, err := domain.NewEnvelope(domain.TypeICECandidate, s.roomID, e.cand)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode candidate")
		return
	}
	env.From = s.self.ID
	env.To = e.peer
	if err := s.channel.Send(env); err != nil {
		s.logger.Error().Err(err).Str("peer", string(e.peer)).Msg("send candidate")
	}
}

func (s *Session) handleLinkState(e evLinkState) {
	peer, ok := s.peers[e.peer]
	if !ok {
		return
	}
	switch e.state {
	case core.LinkConnected:
		peer.linkUp = true
		s.maybeConnected(peer)
	case core.LinkFailed:
		s.failPeer(e.peer, nil)
	case core.LinkClosed:
		// Close initiated by us; nothing left to do.
	}
}

func (s *Session) handleRemoteTrack(e evRemoteTrack) {
	peer, ok := s.peers[e.peer]
	if !ok {
		return
	}
	peer.hasRemote = true
	peer.remoteTracks = append(peer.remoteTracks, e.track)
	if s.cb.OnRemoteTrack != nil {
		s.cb.OnRemoteTrack(e.peer, e.track)
	}
	s.maybeConnected(peer)
}

// maybeConnected declares CONNECTED once the remote stream is observed
// and the connectivity check succeeded.
func (s *Session) maybeConnected(peer *peerState) {
	if peer.phase == PeerNegotiating && peer.linkUp && peer.hasRemote {
		peer.phase = PeerConnected
		s.logger.Info().Str("peer", string(peer.id)).Msg("peer connected")
	}
}

// ---- peer construction and scoped failure ----

// newPeer builds link + callbacks and attaches local tracks before any
// offer/answer is created.
func (s *Session) newPeer(id domain.ParticipantID) (*peerState, error) {
	link, err := s.provider.NewLink()
	if err != nil {
		return nil, err
	}
	peer := &peerState{id: id, link: link, phase: PeerNew}

	video, audio, err := s.media.attach(link)
	if err != nil {
		_ = link.Close()
		return nil, err
	}
	peer.videoSender = video
	peer.audioSender = audio

	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		s.post(evLocalCandidate{peer: id, cand: ci})
	})
	link.OnTrack(func(t core.RemoteTrack) {
		s.post(evRemoteTrack{peer: id, track: t})
	})
	link.OnStateChange(func(st core.LinkState) {
		s.post(evLinkState{peer: id, state: st})
	})
	return peer, nil
}

// failSetup handles an error before the peer ever entered the map.
func (s *Session) failSetup(id domain.ParticipantID, peer *peerState, err error) {
	s.logger.Error().Err(err).Str("peer", string(id)).Msg("peer setup failed")
	if peer != nil {
		peer.close(s.logger)
	}
	s.notice(id, s.lostText(id))
}

// failPeer moves one connection to FAILED and closes it. The rest of
// the session continues unaffected; this is never session-fatal.
func (s *Session) failPeer(id domain.ParticipantID, err error) {
	peer, ok := s.peers[id]
	if !ok {
		return
	}
	peer.phase = PeerFailed
	s.logger.Warn().Err(err).Str("peer", string(id)).Msg("peer failed")
	peer.close(s.logger)
	delete(s.peers, id)
	s.notice(id, s.lostText(id))
}

func (s *Session) lostText(id domain.ParticipantID) string {
	if p, ok := s.roster.get(id); ok && p.DisplayName != "" {
		return "connection to " + p.DisplayName + " lost"
	}
	return "connection to participant lost"
}

func (s *Session) notice(id domain.ParticipantID, text string) {
	if s.cb.OnNotice != nil {
		s.cb.OnNotice(Notice{Peer: id, Text: text})
	}
}

// ---- commands run on the loop ----

func (s *Session) startScreenShare() {
	screen, err := s.media.startScreenShare(s.ctx)
	if err != nil {
		// Soft failure: fall back silently to the prior source.
		s.logger.Warn().Err(err).Msg("screen share unavailable")
		return
	}
	if screen == nil {
		return // already sharing
	}
	screen.OnEnded(func() { s.post(evScreenEnded{}) })
	s.substituteVideo(screen)
}

func (s *Session) stopScreenShare() {
	if s.media.source != core.SourceScreen {
		return
	}
	camera, err := s.media.stopScreenShare(s.ctx)
	if err != nil {
		// Soft: continue audio-only for video.
		s.substituteVideo(nil)
		return
	}
	s.substituteVideo(camera)
}

// substituteVideo swaps the outgoing video track on every CONNECTED
// peer in one dispatch step, so substitution is a single logical
// operation and can never apply to only some peers across interleaved
// events. The audio track is untouched.
func (s *Session) substituteVideo(track core.LocalTrack) {
	for id, peer := range s.peers {
		if peer.phase != PeerConnected || peer.videoSender == nil {
			continue
		}
		if err := peer.videoSender.ReplaceTrack(track); err != nil {
			s.logger.Error().Err(err).Str("peer", string(id)).Msg("replace video track")
		}
	}
}

func (s *Session) sendChat(text string) {
	msg, err := domain.NewChatMessage(&s.self, text)
	if err != nil {
		s.logger.Warn().Err(err).Msg("chat rejected")
		return
	}
	env, err := domain.NewEnvelope(domain.TypeChatMessage, s.roomID, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode chat")
		return
	}
	env.From = s.self.ID
	// At-most-once, best-effort: no ack, no retry.
	if err := s.channel.Send(env); err != nil {
		s.logger.Warn().Err(err).Msg("chat send failed")
		return
	}
	s.chat.append(*msg)
}

func (s *Session) toggleRecording() {
	env := domain.Envelope{Type: s.recording.commandType(), RoomID: s.roomID, From: s.self.ID}
	if err := s.channel.Send(env); err != nil {
		s.logger.Error().Err(err).Msg("recording command failed")
	}
}

// teardown releases every owned resource exactly once, running to
// completion even when individual steps fail: peer close errors are
// logged and the walk continues, then local tracks stop, then the
// channel closes.
func (s *Session) teardown() {
	if s.phase == PhaseTerminated {
		return
	}
	s.phase = PhaseLeaving
	for id, peer := range s.peers {
		peer.close(s.logger)
		delete(s.peers, id)
	}
	s.media.stopAll()
	s.channel.Close()
	s.phase = PhaseTerminated
	s.logger.Info().Msg("session terminated")
	close(s.done)
}
