package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientRateLimiter keeps one token bucket per client address.
type clientRateLimiter struct {
	mu            sync.Mutex
	entries       map[string]*clientRateEntry
	limit         rate.Limit
	burst         int
	staleAfter    time.Duration
	opCount       int
	cleanupEveryN int
}

type clientRateEntry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

func newClientRateLimiter(perMinute, burst int) *clientRateLimiter {
	if perMinute <= 0 || burst <= 0 {
		return nil
	}
	return &clientRateLimiter{
		entries:       make(map[string]*clientRateEntry),
		limit:         rate.Limit(float64(perMinute) / 60.0),
		burst:         burst,
		staleAfter:    10 * time.Minute,
		cleanupEveryN: 64,
	}
}

// Allow reports whether key may proceed at now.
func (l *clientRateLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &clientRateEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeenAt = now
	l.maybeCleanupLocked(now)
	return entry.limiter.AllowN(now, 1)
}

func (l *clientRateLimiter) maybeCleanupLocked(now time.Time) {
	l.opCount++
	if l.cleanupEveryN <= 0 {
		l.cleanupEveryN = 64
	}
	if l.opCount%l.cleanupEveryN != 0 {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeenAt) > l.staleAfter {
			delete(l.entries, key)
		}
	}
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.allowRate(w, r) {
			return
		}
		next(w, r)
	}
}

// allowRate spends one token for the client and answers 429 when none is
// left. Handlers that check the method themselves call it after that check.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter != nil && !s.limiter.Allow(requestClientIP(r), s.now()) {
		s.writeErrorReq(w, r, http.StatusTooManyRequests, tooManyRequests(errTooManyRequests))
		return false
	}
	return true
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
