// Package capture owns the local media devices. Nothing outside the
// media pipeline may open a device, so capture requests never compete.
//
// The sources here are synthetic frame generators: the agent is
// headless, so "camera" and "screen" feed blank VP8 frames and Opus
// silence the way a hardware pipeline would feed encoded RTP. Swapping
// in a real encoder only means supplying different Sources.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lexsuite/meet/internal/core"
)

const (
	videoFrameInterval = 33 * time.Millisecond // ~30fps
	audioFrameInterval = 20 * time.Millisecond // Opus frame size
)

type Devices struct{}

func NewDevices() *Devices { return &Devices{} }

func (d *Devices) OpenCamera(ctx context.Context) (core.LocalTrack, core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("open camera: %w", err)
	}
	streamID := "cam-" + uuid.NewString()

	video, err := d.openVideo("camera", streamID)
	if err != nil {
		return nil, nil, err
	}

	audioNative, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", streamID,
	)
	if err != nil {
		video.Stop()
		return nil, nil, fmt.Errorf("new audio track: %w", err)
	}

	logger := log.With().Str("module", "capture").Str("stream", streamID).Logger()
	audio := newTrack(audioNative, core.TrackKindAudio, silenceSource(), audioFrameInterval, logger)

	logger.Info().Msg("camera acquired")
	return video, audio, nil
}

func (d *Devices) OpenScreen(ctx context.Context) (core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open screen: %w", err)
	}
	streamID := "screen-" + uuid.NewString()
	video, err := d.openVideo("screen", streamID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "capture").Str("stream", streamID).Msg("screen acquired")
	return video, nil
}

func (d *Devices) openVideo(id, streamID string) (*Track, error) {
	native, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		id, streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", id, err)
	}
	logger := log.With().Str("module", "capture").Str("stream", streamID).Logger()
	return newTrack(native, core.TrackKindVideo, blankFrameSource(), videoFrameInterval, logger), nil
}

// blankFrameSource emits minimal VP8 keyframe-ish payloads; enough to
// keep the pipeline warm without a real encoder.
func blankFrameSource() Source {
	frame := make([]byte, 64)
	return func() ([]byte, error) { return frame, nil }
}

func silenceSource() Source {
	// A 20ms Opus silence frame.
	frame := []byte{0xf8, 0xff, 0xfe}
	return func() ([]byte, error) { return frame, nil }
}

var _ core.MediaDevices = (*Devices)(nil)
