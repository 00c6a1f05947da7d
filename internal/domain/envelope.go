package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	TypeJoinRoom           MessageType = "join-room"
	TypeUserJoined         MessageType = "user-joined"
	TypeUserLeft           MessageType = "user-left"
	TypeOffer              MessageType = "offer"
	TypeAnswer             MessageType = "answer"
	TypeICECandidate       MessageType = "ice-candidate"
	TypeChatMessage        MessageType = "chat-message"
	TypeParticipantsUpdate MessageType = "participants-update"
	TypeRecordingStarted   MessageType = "recording-started"
	TypeRecordingStopped   MessageType = "recording-stopped"
	TypeStartRecording     MessageType = "start-recording"
	TypeStopRecording      MessageType = "stop-recording"
)

var ErrNoPayload = errors.New("envelope has no payload")

// Envelope is the signaling wire format: one JSON object per message.
// From/To carry participant ids; To is present only for the unicast
// types (offer, answer, ice-candidate).
type Envelope struct {
	Type    MessageType     `json:"type"`
	RoomID  RoomID          `json:"roomId"`
	From    ParticipantID   `json:"from,omitempty"`
	To      ParticipantID   `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(t MessageType, room RoomID, payload any) (Envelope, error) {
	env := Envelope{Type: t, RoomID: room}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	env.Payload = raw
	return env, nil
}

func (e Envelope) decode(v any) error {
	if len(e.Payload) == 0 {
		return ErrNoPayload
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// SDP decodes the offer/answer payload.
func (e Envelope) SDP() (webrtc.SessionDescription, error) {
	var sd webrtc.SessionDescription
	err := e.decode(&sd)
	return sd, err
}

// Candidate decodes an ice-candidate payload.
func (e Envelope) Candidate() (webrtc.ICECandidateInit, error) {
	var ci webrtc.ICECandidateInit
	err := e.decode(&ci)
	return ci, err
}

// Chat decodes a chat-message payload.
func (e Envelope) Chat() (ChatMessage, error) {
	var msg ChatMessage
	err := e.decode(&msg)
	return msg, err
}

// User decodes a join-room/user-joined/user-left payload.
func (e Envelope) User() (Participant, error) {
	var p Participant
	err := e.decode(&p)
	return p, err
}

// Participants decodes a participants-update payload.
func (e Envelope) Participants() ([]Participant, error) {
	var ps []Participant
	err := e.decode(&ps)
	return ps, err
}

// Recording decodes a recording-started/recording-stopped payload.
func (e Envelope) Recording() (RecordingState, error) {
	var rs RecordingState
	err := e.decode(&rs)
	return rs, err
}
