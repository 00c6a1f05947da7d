package hub

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/lexsuite/meet/internal/domain"
)

const presenceTTL = 24 * time.Hour

// Presence mirrors room membership into Redis so ops tooling can see
// who is where. Best-effort: failures are logged and ignored, and a
// nil *Presence disables the mirror entirely.
type Presence struct {
	client *redis.Client
}

func NewPresence(addr string) *Presence {
	if addr == "" {
		return nil
	}
	return &Presence{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func key(roomID domain.RoomID) string {
	return "room:" + string(roomID) + ":peers"
}

func (p *Presence) Add(roomID domain.RoomID, pid domain.ParticipantID) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.client.SAdd(ctx, key(roomID), string(pid)).Err(); err != nil {
		log.Warn().Err(err).Str("module", "hub.presence").Msg("presence add")
		return
	}
	if err := p.client.Expire(ctx, key(roomID), presenceTTL).Err(); err != nil {
		log.Warn().Err(err).Str("module", "hub.presence").Msg("presence expire")
	}
}

func (p *Presence) Remove(roomID domain.RoomID, pid domain.ParticipantID) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.client.SRem(ctx, key(roomID), string(pid)).Err(); err != nil {
		log.Warn().Err(err).Str("module", "hub.presence").Msg("presence remove")
	}
}
