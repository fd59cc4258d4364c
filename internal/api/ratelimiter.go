package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 4096
	clientIdleTTL     = 10 * time.Minute
)

type rateLimiter interface {
	Allow(client string) bool
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientRateLimiter keeps one token bucket per client. Once maxClients are
// tracked, idle buckets are swept and, if none are idle, the least recently
// seen bucket is evicted, so the table never grows past maxClients.
type clientRateLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	maxClients int
	clients    map[string]*clientLimiter
	now        func() time.Time
}

func newClientRateLimiter(ratePerSecond float64, burst int) *clientRateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &clientRateLimiter{
		limit:      rate.Limit(ratePerSecond),
		burst:      burst,
		maxClients: maxTrackedClients,
		clients:    make(map[string]*clientLimiter),
		now:        time.Now,
	}
}

func (l *clientRateLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	now := l.now()
	entry, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.sweep(now)
		}
		if len(l.clients) >= l.maxClients {
			l.evictOldest()
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = entry
	}
	entry.lastSeen = now
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// sweep drops idle buckets. Caller holds l.mu.
func (l *clientRateLimiter) sweep(now time.Time) {
	for key, entry := range l.clients {
		if now.Sub(entry.lastSeen) > clientIdleTTL {
			delete(l.clients, key)
		}
	}
}

// evictOldest drops the least recently seen bucket. Caller holds l.mu.
func (l *clientRateLimiter) evictOldest() {
	var (
		oldestKey  string
		oldestSeen time.Time
		found      bool
	)
	for key, entry := range l.clients {
		if !found || entry.lastSeen.Before(oldestSeen) {
			oldestKey, oldestSeen, found = key, entry.lastSeen, true
		}
	}
	if found {
		delete(l.clients, oldestKey)
	}
}

func (l *clientRateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func rateLimitMiddleware(limiter rateLimiter, key func(*http.Request) string, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	if key == nil {
		key = clientKey
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow(key(r)) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
	})
}

// clientKey identifies the caller by the connection's remote host.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedClientKey prefers the first X-Forwarded-For hop. Only use it behind
// a proxy that overwrites the header.
func forwardedClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return clientKey(r)
}
