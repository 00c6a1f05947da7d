// Package hub is the signaling coordinator core: room membership,
// unicast relay of negotiation messages, broadcast of room events and
// the authoritative recording switch.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

type Hub struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*room
	presence *Presence
}

// New builds a hub; presence may be nil to disable the Redis mirror.
func New(presence *Presence) *Hub {
	return &Hub{rooms: make(map[domain.RoomID]*room), presence: presence}
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
	Recording   bool          `json:"recording"`
}

func (h *Hub) List() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for id, r := range h.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(r.members), Recording: r.recording.Active})
	}
	return out
}

// Join adds a member, sends the joiner a participants-update snapshot
// (plus the current recording state when active) and announces
// user-joined to everyone else.
func (h *Hub) Join(roomID domain.RoomID, p domain.Participant, conn core.SignalConnection) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = newRoom(roomID)
		h.rooms[roomID] = r
	}
	r.members[p.ID] = &member{participant: p, conn: conn}
	snapshot := r.participants()
	recording := r.recording
	h.mu.Unlock()

	log.Info().Str("module", "hub").Str("room", string(roomID)).Str("peer", string(p.ID)).Msg("member joined")

	if env, err := domain.NewEnvelope(domain.TypeParticipantsUpdate, roomID, snapshot); err == nil {
		h.sendTo(conn, env)
	}
	if recording.Active {
		if env, err := domain.NewEnvelope(domain.TypeRecordingStarted, roomID, recording); err == nil {
			h.sendTo(conn, env)
		}
	}

	joined, err := domain.NewEnvelope(domain.TypeUserJoined, roomID, p)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("encode user-joined")
		return
	}
	joined.From = p.ID
	h.broadcast(roomID, joined, p.ID)

	h.presence.Add(roomID, p.ID)
}

// Leave removes a member, announces user-left and drops the room when
// it empties.
func (h *Hub) Leave(roomID domain.RoomID, pid domain.ParticipantID) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	m, present := r.members[pid]
	delete(r.members, pid)
	empty := len(r.members) == 0
	if empty {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	if !present {
		return
	}
	log.Info().Str("module", "hub").Str("room", string(roomID)).Str("peer", string(pid)).Msg("member left")

	if !empty {
		left, err := domain.NewEnvelope(domain.TypeUserLeft, roomID, m.participant)
		if err == nil {
			left.From = pid
			h.broadcast(roomID, left, pid)
		}
	}

	h.presence.Remove(roomID, pid)
}

// Relay forwards a unicast envelope (offer/answer/ice-candidate) to
// its addressee, stamping the sender server-side.
func (h *Hub) Relay(roomID domain.RoomID, from domain.ParticipantID, env domain.Envelope) {
	env.From = from
	env.RoomID = roomID

	h.mu.RLock()
	r, ok := h.rooms[roomID]
	var target *member
	if ok {
		target = r.members[env.To]
	}
	h.mu.RUnlock()

	if target == nil {
		log.Warn().Str("module", "hub").Str("room", string(roomID)).Str("to", string(env.To)).Str("type", string(env.Type)).Msg("relay target not in room")
		return
	}
	h.sendTo(target.conn, env)
}

// Chat fans a chat-message out to every other member. Best-effort; a
// full send buffer just drops that copy.
func (h *Hub) Chat(roomID domain.RoomID, from domain.ParticipantID, env domain.Envelope) {
	env.From = from
	env.RoomID = roomID
	h.broadcast(roomID, env, from)
}

// ToggleRecording applies a start/stop-recording request. State flips
// only on a real transition and the resulting broadcast goes to the
// whole room, requester included; duplicates produce nothing.
func (h *Hub) ToggleRecording(roomID domain.RoomID, from domain.ParticipantID, start bool) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	var changed bool
	if start {
		changed = r.startRecording()
	} else {
		changed = r.stopRecording()
	}
	state := r.recording
	h.mu.Unlock()

	if !changed {
		return
	}
	t := domain.TypeRecordingStopped
	if start {
		t = domain.TypeRecordingStarted
	}
	log.Info().Str("module", "hub").Str("room", string(roomID)).Str("peer", string(from)).Bool("active", state.Active).Msg("recording toggled")
	env, err := domain.NewEnvelope(t, roomID, state)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("encode recording state")
		return
	}
	h.broadcast(roomID, env, "")
}

// broadcast sends to every member except skip ("" skips nobody).
func (h *Hub) broadcast(roomID domain.RoomID, env domain.Envelope, skip domain.ParticipantID) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("marshal envelope")
		return
	}

	h.mu.RLock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	conns := make(map[domain.ParticipantID]core.SignalConnection, len(r.members))
	for id, m := range r.members {
		if id == skip {
			continue
		}
		conns[id] = m.conn
	}
	h.mu.RUnlock()

	for id, conn := range conns {
		if err := conn.TrySend(data); err != nil {
			log.Warn().Err(err).Str("module", "hub").Str("peer", string(id)).Msg("broadcast drop")
		}
	}
}

func (h *Hub) sendTo(conn core.SignalConnection, env domain.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("marshal envelope")
		return
	}
	if err := conn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "hub").Str("type", string(env.Type)).Msg("unicast drop")
	}
}
