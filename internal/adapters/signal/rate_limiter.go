package signal

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/Parlor/internal/domain"
)

// RateLimiter keeps one token bucket per connection id, shared by every
// socket of that id so reconnecting does not refill it.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[domain.ParticipantID]*limiterEntry
	limit rate.Limit
	burst int
}

type limiterEntry struct {
	l    *rate.Limiter
	refs int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		m:     make(map[domain.ParticipantID]*limiterEntry),
		limit: rate.Limit(rps),
		burst: burst,
	}
}

// Acquire returns the bucket for sid. Every Acquire needs a matching Release.
func (rl *RateLimiter) Acquire(sid domain.ParticipantID) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	e, ok := rl.m[sid]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(rl.limit, rl.burst)}
		rl.m[sid] = e
	}
	e.refs++
	return e.l
}

func (rl *RateLimiter) Release(sid domain.ParticipantID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	e, ok := rl.m[sid]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(rl.m, sid)
	}
}
