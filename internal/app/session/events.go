package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

// Internal events posted into the dispatch loop. Link callbacks run on
// pion goroutines and user commands on caller goroutines; both hop
// onto the loop through these, turning scattered callbacks into one
// ordered event stream.
type event interface{ isEvent() }

type evLocalCandidate struct {
	peer domain.ParticipantID
	cand webrtc.ICECandidateInit
}

type evLinkState struct {
	peer  domain.ParticipantID
	state core.LinkState
}

type evRemoteTrack struct {
	peer  domain.ParticipantID
	track core.RemoteTrack
}

type evScreenEnded struct{}

// evCommand carries a user action into the loop.
type evCommand struct{ run func() }

func (evLocalCandidate) isEvent() {}
func (evLinkState) isEvent()      {}
func (evRemoteTrack) isEvent()    {}
func (evScreenEnded) isEvent()    {}
func (evCommand) isEvent()        {}
