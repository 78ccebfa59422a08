package server

import (
	"sync"
	"time"

	"github.com/fitnessquest/server/internal/config"
)

// RejectLimiter locks out clients that keep sending malformed commands.
// Lockouts double on each repeat, up to a maximum.
type RejectLimiter struct {
	mu          sync.Mutex
	clients     map[string]*rejectInfo
	maxRejects  int
	lockout     time.Duration
	maxLockout  time.Duration
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type rejectInfo struct {
	rejects      int
	lockedUntil  time.Time
	lockoutCount int
}

// NewRejectLimiter creates a limiter and starts its cleanup goroutine.
func NewRejectLimiter(cfg config.RateLimitConfig) *RejectLimiter {
	rl := &RejectLimiter{
		clients:     make(map[string]*rejectInfo),
		maxRejects:  cfg.MaxRejections,
		lockout:     time.Duration(cfg.LockoutSeconds) * time.Second,
		maxLockout:  time.Duration(cfg.MaxLockoutSeconds) * time.Second,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if rl.maxRejects <= 0 {
		rl.maxRejects = 20
	}
	if rl.lockout <= 0 {
		rl.lockout = 30 * time.Second
	}
	if rl.maxLockout < rl.lockout {
		rl.maxLockout = rl.lockout
	}

	go rl.cleanupLoop(5 * time.Minute)
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RejectLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// Locked reports whether ip is locked out and for how much longer.
func (rl *RejectLimiter) Locked(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	info, ok := rl.clients[ip]
	if !ok {
		return false, 0
	}
	if now := rl.now(); now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}
	return false, 0
}

// Reject counts a malformed command from ip. It reports whether ip is now
// locked out and for how long.
func (rl *RejectLimiter) Reject(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	info := rl.clients[ip]
	if info == nil {
		info = &rejectInfo{}
		rl.clients[ip] = info
	}
	now := rl.now()
	if now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}

	info.rejects++
	if info.rejects < rl.maxRejects {
		return false, 0
	}

	info.lockoutCount++
	d := rl.lockout
	for i := 1; i < info.lockoutCount && d < rl.maxLockout; i++ {
		d *= 2
	}
	d = min(d, rl.maxLockout)
	info.lockedUntil = now.Add(d)
	info.rejects = 0
	return true, d
}

// Rejects returns the rejects counted toward ip's next lockout.
func (rl *RejectLimiter) Rejects(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if info, ok := rl.clients[ip]; ok {
		return info.rejects
	}
	return 0
}

func (rl *RejectLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops clients unlocked for ten minutes with nothing pending.
func (rl *RejectLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-10 * time.Minute)
	for ip, info := range rl.clients {
		if info.lockedUntil.Before(cutoff) && info.rejects == 0 {
			delete(rl.clients, ip)
		}
	}
}
