package domain

import "time"

// RecordingState mirrors the room's recording status as broadcast by
// the coordinator. Clients never flip it locally; only the
// recording-started/recording-stopped broadcasts do.
type RecordingState struct {
	RoomID    RoomID    `json:"roomId"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"startedAt,omitzero"`
}
