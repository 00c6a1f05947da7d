package session

import "github.com/lexsuite/meet/internal/domain"

// recordingMirror reflects the room's recording status as broadcast by
// the coordinator. Toggle never flips state optimistically; only the
// recording-started/recording-stopped broadcasts do, which keeps the
// operation idempotent under message loss.
type recordingMirror struct {
	state domain.RecordingState
}

// commandType picks the request to send based on last-known state.
func (r *recordingMirror) commandType() domain.MessageType {
	if r.state.Active {
		return domain.TypeStopRecording
	}
	return domain.TypeStartRecording
}

func (r *recordingMirror) apply(rs domain.RecordingState) {
	r.state = rs
}
