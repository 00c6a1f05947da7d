package hub

import (
	"time"

	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

// member binds a participant's meta to its transport endpoint. The
// adapter owns and closes the connection; the hub never does.
type member struct {
	participant domain.Participant
	conn        core.SignalConnection
}

// room is the coordinator-side membership set plus the authoritative
// recording state for one room. Guarded by the hub mutex.
type room struct {
	id        domain.RoomID
	members   map[domain.ParticipantID]*member
	recording domain.RecordingState
}

func newRoom(id domain.RoomID) *room {
	return &room{
		id:        id,
		members:   make(map[domain.ParticipantID]*member),
		recording: domain.RecordingState{RoomID: id},
	}
}

func (r *room) participants() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.participant)
	}
	return out
}

// startRecording flips state only on a real transition; a duplicate
// start is a no-op so the caller emits no duplicate broadcast.
func (r *room) startRecording() bool {
	if r.recording.Active {
		return false
	}
	r.recording.Active = true
	r.recording.StartedAt = time.Now().UTC()
	return true
}

func (r *room) stopRecording() bool {
	if !r.recording.Active {
		return false
	}
	r.recording.Active = false
	r.recording.StartedAt = time.Time{}
	return true
}
