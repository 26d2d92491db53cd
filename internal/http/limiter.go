package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SessionLimiter hands out one token bucket per visitor, keyed by session cookie, or by
// client address before a session exists. Buckets idle longer than idleTTL are dropped.
type SessionLimiter struct {
	limit      rate.Limit
	burst      int
	idleTTL    time.Duration
	cookieName string
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSessionLimiter returns a limiter allowing rps requests per second with the given
// burst for each visitor. rps <= 0 returns nil, which disables limiting.
func NewSessionLimiter(rps float64, burst int, idleTTL time.Duration, cookieName string) *SessionLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if cookieName == "" {
		cookieName = "wf_session"
	}
	return &SessionLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		idleTTL:    idleTTL,
		cookieName: cookieName,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// Allow reports whether the visitor behind r may proceed.
func (l *SessionLimiter) Allow(r *http.Request) bool {
	key := l.key(r)
	now := l.now()

	l.mu.Lock()
	l.pruneLocked(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Len returns the number of buckets held.
func (l *SessionLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *SessionLimiter) key(r *http.Request) string {
	if c, err := r.Cookie(l.cookieName); err == nil && c.Value != "" {
		return "session:" + c.Value
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// pruneLocked drops idle buckets, at most once per idleTTL.
func (l *SessionLimiter) pruneLocked(now time.Time) {
	if l.idleTTL <= 0 || now.Sub(l.lastPrune) < l.idleTTL {
		return
	}
	l.lastPrune = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, k)
		}
	}
}
