package session

import (
	"sort"

	"github.com/lexsuite/meet/internal/domain"
)

// roster is the authoritative list of who is in the room. It is owned
// by the dispatch loop and never touched from other goroutines.
type roster struct {
	byID map[domain.ParticipantID]domain.Participant
}

func newRoster() *roster {
	return &roster{byID: make(map[domain.ParticipantID]domain.Participant)}
}

func (r *roster) add(p domain.Participant) {
	r.byID[p.ID] = p
}

func (r *roster) remove(id domain.ParticipantID) {
	delete(r.byID, id)
}

func (r *roster) has(id domain.ParticipantID) bool {
	_, ok := r.byID[id]
	return ok
}

func (r *roster) get(id domain.ParticipantID) (domain.Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// replace swaps the whole membership for a coordinator snapshot,
// skipping the local participant.
func (r *roster) replace(ps []domain.Participant, self domain.ParticipantID) {
	r.byID = make(map[domain.ParticipantID]domain.Participant, len(ps))
	for _, p := range ps {
		if p.ID == self {
			continue
		}
		r.byID[p.ID] = p
	}
}

func (r *roster) snapshot() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
