package signal

import (
	"sync"
	"time"

	"github.com/lexsuite/meet/internal/domain"
)

// joinRateLimiter caps join-room attempts per participant in a sliding
// window, so a reconnect loop cannot hammer the hub.
type joinRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ParticipantID][]time.Time
	limit    int
	interval time.Duration
}

func newJoinRateLimiter(limit int, interval time.Duration) *joinRateLimiter {
	return &joinRateLimiter{
		history:  make(map[domain.ParticipantID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *joinRateLimiter) Allow(pid domain.ParticipantID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[pid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		return false
	}

	fresh = append(fresh, now)
	rl.history[pid] = fresh
	return true
}
