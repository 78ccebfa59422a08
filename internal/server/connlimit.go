package server

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/fitnessquest/server/internal/config"
)

// ConnLimiter caps concurrent websocket connections per IP and overall.
type ConnLimiter struct {
	mu       sync.Mutex
	ipCounts map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

// ConnStats is a snapshot of the limiter's counters.
type ConnStats struct {
	Total     int
	UniqueIPs int
}

// NewConnLimiter creates a limiter. Zero limits mean unlimited.
func NewConnLimiter(cfg config.ConnectionsConfig) *ConnLimiter {
	return &ConnLimiter{
		ipCounts: make(map[string]int),
		maxPerIP: cfg.MaxPerIP,
		maxTotal: cfg.MaxTotal,
	}
}

// Acquire takes a slot for ip. When ok is false nothing was taken; otherwise
// release must be called exactly once when the connection ends.
func (c *ConnLimiter) Acquire(ip string) (release func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxTotal > 0 && c.total >= c.maxTotal {
		return nil, false
	}
	if c.maxPerIP > 0 && c.ipCounts[ip] >= c.maxPerIP {
		return nil, false
	}
	c.ipCounts[ip]++
	c.total++

	var once sync.Once
	return func() { once.Do(func() { c.release(ip) }) }, true
}

func (c *ConnLimiter) release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ipCounts[ip] > 0 {
		c.ipCounts[ip]--
		if c.ipCounts[ip] == 0 {
			delete(c.ipCounts, ip)
		}
	}
	if c.total > 0 {
		c.total--
	}
}

// Stats returns the current connection counters.
func (c *ConnLimiter) Stats() ConnStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnStats{Total: c.total, UniqueIPs: len(c.ipCounts)}
}

// Count returns the open connections for one IP.
func (c *ConnLimiter) Count(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ipCounts[ip]
}

// extractIP extracts the IP address from a remote address string (ip:port format).
func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// getRealIP returns the client IP, trusting X-Forwarded-For and X-Real-IP
// from a reverse proxy before falling back to the socket address.
func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// "client, proxy1, proxy2": the first entry is the client
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return extractIP(r.RemoteAddr)
}
