package feed

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

// Limiter tracks and limits subscribers per IP and total.
type Limiter struct {
	mu         sync.Mutex
	ipCounts   map[string]int
	totalCount int
	maxPerIP   int
	maxTotal   int
}

// NewLimiter creates a limiter. A zero limit disables that check.
func NewLimiter(maxPerIP, maxTotal int) *Limiter {
	return &Limiter{
		ipCounts: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// TryAcquire attempts to take a subscriber slot for ip.
// Returns false if it would exceed either limit.
func (l *Limiter) TryAcquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTotal > 0 && l.totalCount >= l.maxTotal {
		return false
	}
	if l.maxPerIP > 0 && l.ipCounts[ip] >= l.maxPerIP {
		return false
	}

	l.ipCounts[ip]++
	l.totalCount++
	return true
}

// Release gives back a slot taken for ip.
func (l *Limiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ipCounts[ip] > 0 {
		l.ipCounts[ip]--
		if l.ipCounts[ip] == 0 {
			delete(l.ipCounts, ip)
		}
	}
	if l.totalCount > 0 {
		l.totalCount--
	}
}

// Stats returns the number of held slots and distinct IPs holding them.
func (l *Limiter) Stats() (total int, ips int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalCount, len(l.ipCounts)
}

// IPCount returns the number of slots held by ip.
func (l *Limiter) IPCount(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ipCounts[ip]
}

// clientIP returns the caller's address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// "client, proxy1, proxy2"
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
