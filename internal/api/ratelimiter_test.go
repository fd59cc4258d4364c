package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticLimiter struct {
	allow bool
}

func (s *staticLimiter) Allow(string) bool {
	return s.allow
}

func TestRateLimitMiddlewareBlocksWhenLimiterDenies(t *testing.T) {
	middleware := rateLimitMiddleware(&staticLimiter{allow: false}, nil, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("handler should not execute when rate limited")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	middleware.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimitMiddlewarePassesWhenLimiterAllows(t *testing.T) {
	var called bool
	middleware := rateLimitMiddleware(&staticLimiter{allow: true}, nil, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	middleware.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to execute when limiter allows")
	}
}

func TestNewClientRateLimiterUsesDefaults(t *testing.T) {
	limiter := newClientRateLimiter(0, 0)
	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected burst of one to block the second request")
	}
}

func TestClientRateLimiterIsolatesClients(t *testing.T) {
	limiter := newClientRateLimiter(1, 1)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }

	if !limiter.Allow("a") || limiter.Allow("a") {
		t.Fatalf("expected client a to get exactly one request")
	}
	if !limiter.Allow("b") {
		t.Fatalf("expected client b to have its own bucket")
	}

	fixed = fixed.Add(time.Second)
	if !limiter.Allow("a") {
		t.Fatalf("expected client a to refill after one second")
	}
}

func TestClientRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := newClientRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("stale")
	now = now.Add(clientIdleTTL + time.Minute)
	limiter.mu.Lock()
	limiter.sweep(now)
	limiter.mu.Unlock()

	if got := limiter.tracked(); got != 0 {
		t.Fatalf("expected idle client to be swept, still tracking %d", got)
	}
}

func TestClientRateLimiterEvictsLeastRecentlySeenWhenFull(t *testing.T) {
	limiter := newClientRateLimiter(1, 1)
	limiter.maxClients = 3
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for _, client := range []string{"a", "b", "c"} {
		limiter.Allow(client)
		now = now.Add(time.Second)
	}
	limiter.Allow("a")
	now = now.Add(time.Second)

	// Nothing is idle long enough to be swept, so "b" is evicted.
	limiter.Allow("d")

	if got := limiter.tracked(); got != 3 {
		t.Fatalf("expected table capped at 3 clients, got %d", got)
	}
	limiter.mu.Lock()
	_, hasB := limiter.clients["b"]
	_, hasA := limiter.clients["a"]
	limiter.mu.Unlock()
	if hasB || !hasA {
		t.Fatalf("expected least recently seen client to be evicted")
	}
}

func TestRateLimitIgnoresRotatingForwardedFor(t *testing.T) {
	limiter := newClientRateLimiter(1, 1)
	limiter.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	handler := rateLimitMiddleware(limiter, clientKey, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 200; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}

	if allowed != 1 {
		t.Fatalf("expected a single request through for one socket, got %d", allowed)
	}
	if got := limiter.tracked(); got != 1 {
		t.Fatalf("expected one tracked client, got %d", got)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := clientKey(req); got != "192.0.2.10" {
		t.Fatalf("expected remote host regardless of forwarded header, got %s", got)
	}

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = "unix-socket"
	if got := clientKey(bare); got != "unix-socket" {
		t.Fatalf("expected raw remote addr, got %s", got)
	}
}

func TestForwardedClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	if got := forwardedClientKey(req); got != "192.0.2.10" {
		t.Fatalf("expected remote host without header, got %s", got)
	}

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := forwardedClientKey(req); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %s", got)
	}
}
