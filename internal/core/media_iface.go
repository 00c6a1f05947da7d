package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

type SourceKind string

const (
	SourceCamera SourceKind = "camera"
	SourceScreen SourceKind = "screen"
)

// LocalTrack is one locally-captured outgoing track. Muting flips the
// enabled flag in place; the track itself is never removed or
// recreated, so no renegotiation happens on mute.
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	SetEnabled(bool)
	Enabled() bool
	// Stop releases the underlying capture source. Idempotent.
	Stop()
	// OnEnded fires when the source dies on its own, e.g. the user
	// closes the OS-level screen-share UI.
	OnEnded(func())
	// Native exposes the pion track to the rtc adapter. Test fakes
	// return nil.
	Native() webrtc.TrackLocal
}

// MediaDevices hands out capture tracks. The media pipeline is the
// only component allowed to call it; nothing else may request device
// access, so capture requests never compete.
type MediaDevices interface {
	OpenCamera(ctx context.Context) (video LocalTrack, audio LocalTrack, err error)
	OpenScreen(ctx context.Context) (video LocalTrack, err error)
}
