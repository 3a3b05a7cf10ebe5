package app

import (
	"sync"
	"time"

	"github.com/ripchat/relay/internal/domain"
)

// rateState is one connection's current throttle window.
type rateState struct {
	windowStart time.Time
	actionCount int
}

// RateLimiter is a per-connection fixed-window action throttle. The
// window resets transparently once it elapses. It gates mutating and
// signaling operations, never idempotent reads.
type RateLimiter struct {
	mu     sync.Mutex
	states map[domain.SessionID]*rateState
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		states: make(map[domain.SessionID]*rateState),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records one action for sid and reports whether it stays within
// the ceiling for the current window.
func (rl *RateLimiter) Allow(sid domain.SessionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	st, ok := rl.states[sid]
	if !ok || now.Sub(st.windowStart) >= rl.window {
		rl.states[sid] = &rateState{windowStart: now, actionCount: 1}
		return true
	}
	st.actionCount++
	return st.actionCount <= rl.limit
}

// Forget drops sid's window when the connection goes away.
func (rl *RateLimiter) Forget(sid domain.SessionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.states, sid)
}

// Sweep evicts windows stale by more than twice the window length, to
// bound memory, and returns how many were dropped.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * rl.window)
	n := 0
	for sid, st := range rl.states {
		if st.windowStart.Before(cutoff) {
			delete(rl.states, sid)
			n++
		}
	}
	return n
}
