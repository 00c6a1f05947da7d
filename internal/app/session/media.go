package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexsuite/meet/internal/core"
)

// ErrMediaUnavailable means local camera/mic acquisition failed. The
// session cannot start without local media.
var ErrMediaUnavailable = errors.New("local media unavailable")

// mediaPipeline owns the local capture tracks. Exactly one per
// session; it is the only component allowed to talk to the devices.
// Loop-owned, no locking.
type mediaPipeline struct {
	devices core.MediaDevices

	video  core.LocalTrack // current outgoing video (camera or screen)
	audio  core.LocalTrack
	camera core.LocalTrack // paused camera while screen sharing
	source core.SourceKind

	logger zerolog.Logger
}

func newMediaPipeline(devices core.MediaDevices, logger zerolog.Logger) *mediaPipeline {
	return &mediaPipeline{devices: devices, source: core.SourceCamera, logger: logger}
}

func (m *mediaPipeline) acquireCamera(ctx context.Context) error {
	video, audio, err := m.devices.OpenCamera(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	m.video = video
	m.audio = audio
	m.source = core.SourceCamera
	return nil
}

// attach adds the current local tracks to a fresh link. Always happens
// before the offer/answer is created.
func (m *mediaPipeline) attach(link core.PeerLink) (video, audio core.Sender, err error) {
	if m.video != nil {
		if video, err = link.AddTrack(m.video); err != nil {
			return nil, nil, err
		}
	}
	if m.audio != nil {
		if audio, err = link.AddTrack(m.audio); err != nil {
			return nil, nil, err
		}
	}
	return video, audio, nil
}

// toggleVideo flips the enabled flag in place. The track is never
// removed or recreated, so mute needs no renegotiation.
func (m *mediaPipeline) toggleVideo() bool {
	if m.video == nil {
		return false
	}
	next := !m.video.Enabled()
	m.video.SetEnabled(next)
	m.logger.Info().Bool("enabled", next).Msg("video toggled")
	return next
}

func (m *mediaPipeline) toggleAudio() bool {
	if m.audio == nil {
		return false
	}
	next := !m.audio.Enabled()
	m.audio.SetEnabled(next)
	m.logger.Info().Bool("enabled", next).Msg("audio toggled")
	return next
}

// startScreenShare swaps the outgoing video source to a screen track.
// The camera track is paused, not released, so stopping the share can
// restore it without a new device request.
func (m *mediaPipeline) startScreenShare(ctx context.Context) (core.LocalTrack, error) {
	if m.source == core.SourceScreen {
		return nil, nil
	}
	screen, err := m.devices.OpenScreen(ctx)
	if err != nil {
		return nil, fmt.Errorf("open screen: %w", err)
	}
	m.camera = m.video
	if m.camera != nil {
		m.camera.SetEnabled(false)
	}
	m.video = screen
	m.source = core.SourceScreen
	m.logger.Info().Msg("screen share started")
	return screen, nil
}

// stopScreenShare restores the camera as the outgoing video source.
// The paused camera track is reused when still alive; otherwise the
// camera is re-acquired. A re-acquisition failure is soft: the caller
// keeps the session running audio-only for video.
func (m *mediaPipeline) stopScreenShare(ctx context.Context) (core.LocalTrack, error) {
	if m.source != core.SourceScreen {
		return nil, nil
	}
	screen := m.video
	m.video = nil
	m.source = core.SourceCamera
	if screen != nil {
		screen.Stop()
	}

	if m.camera != nil {
		m.camera.SetEnabled(true)
		m.video = m.camera
		m.camera = nil
		m.logger.Info().Msg("screen share stopped, camera restored")
		return m.video, nil
	}

	video, audio, err := m.devices.OpenCamera(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("camera re-acquisition failed, continuing audio-only")
		return nil, err
	}
	// The mic never went away; drop the extra audio track.
	if audio != nil {
		audio.Stop()
	}
	m.video = video
	m.logger.Info().Msg("screen share stopped, camera re-acquired")
	return video, nil
}

// stopAll releases every capture resource. Each track gets exactly one
// Stop regardless of the others; Stop is idempotent.
func (m *mediaPipeline) stopAll() {
	for _, t := range []core.LocalTrack{m.video, m.audio, m.camera} {
		if t != nil {
			t.Stop()
		}
	}
	m.video, m.audio, m.camera = nil, nil, nil
}

func (m *mediaPipeline) videoEnabled() bool {
	return m.video != nil && m.video.Enabled()
}

func (m *mediaPipeline) audioEnabled() bool {
	return m.audio != nil && m.audio.Enabled()
}
