// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 64

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type ParticipantID string

// Participant is one member of a conference room as seen by the roster.
type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"displayName"`
	JoinedAt    time.Time     `json:"joinedAt"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(displayName string) (*Participant, error) {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Participant{
		ID:          ParticipantID(uuid.NewString()),
		DisplayName: displayName,
		JoinedAt:    time.Now().UTC(),
	}, nil
}
