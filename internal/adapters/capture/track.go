package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/lexsuite/meet/internal/core"
)

// Source produces one media sample per call. Returning an error ends
// the track, which is how an OS-level capture teardown (e.g. the user
// closing the screen-share picker) surfaces to the session.
type Source func() ([]byte, error)

// Track pumps samples from a Source into a pion local track. Muting
// flips the enabled flag; the pump keeps running and the track stays
// attached, so mute never triggers renegotiation.
type Track struct {
	native  *webrtc.TrackLocalStaticSample
	kind    core.TrackKind
	enabled atomic.Bool

	mu      sync.Mutex
	onEnded func()

	stopOnce sync.Once
	stop     chan struct{}
	logger   zerolog.Logger
}

func newTrack(native *webrtc.TrackLocalStaticSample, kind core.TrackKind, src Source, interval time.Duration, logger zerolog.Logger) *Track {
	t := &Track{
		native: native,
		kind:   kind,
		stop:   make(chan struct{}),
		logger: logger,
	}
	t.enabled.Store(true)
	go t.pump(src, interval)
	return t
}

func (t *Track) pump(src Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.enabled.Load() {
				continue
			}
			data, err := src()
			if err != nil {
				t.logger.Warn().Err(err).Str("kind", string(t.kind)).Msg("capture source ended")
				t.end()
				return
			}
			if err := t.native.WriteSample(media.Sample{Data: data, Duration: interval}); err != nil {
				t.logger.Error().Err(err).Str("kind", string(t.kind)).Msg("write sample")
			}
		}
	}
}

// end is the source-died path: stop the pump and notify the owner.
func (t *Track) end() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *Track) ID() string                { return t.native.ID() }
func (t *Track) Kind() core.TrackKind      { return t.kind }
func (t *Track) SetEnabled(on bool)        { t.enabled.Store(on) }
func (t *Track) Enabled() bool             { return t.enabled.Load() }
func (t *Track) Native() webrtc.TrackLocal { return t.native }

func (t *Track) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

var _ core.LocalTrack = (*Track)(nil)
