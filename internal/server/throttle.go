package server

import (
	"sync"
	"time"
)

// CommandThrottle caps how many commands one session may send inside a
// sliding window. A zero limit disables it.
type CommandThrottle struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	times  []time.Time
	now    func() time.Time
}

// NewCommandThrottle creates a throttle allowing limit commands per window.
func NewCommandThrottle(limit int, window time.Duration) *CommandThrottle {
	return &CommandThrottle{
		limit:  limit,
		window: window,
		times:  make([]time.Time, 0, max(limit, 0)),
		now:    time.Now,
	}
}

// Allow records a command and reports whether it fits in the window. When
// it doesn't, wait is how long until the oldest command expires.
func (t *CommandThrottle) Allow() (ok bool, wait time.Duration) {
	if t.limit <= 0 || t.window <= 0 {
		return true, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)
	kept := t.times[:0]
	for _, at := range t.times {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	t.times = kept

	if len(t.times) >= t.limit {
		return false, t.times[0].Add(t.window).Sub(now)
	}
	t.times = append(t.times, now)
	return true, 0
}
