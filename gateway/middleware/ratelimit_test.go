package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"sales": {RequestsPerMinute: 1, Burst: 1},
	})

	handler := limiter.Middleware("sales")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sales/events", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterUnknownKeyPassesThrough(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"sales": {RequestsPerMinute: 1, Burst: 1},
	})

	handler := limiter.Middleware("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/status", nil)
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected pass-through, got %d", i, res.Code)
		}
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"sales": {RequestsPerMinute: 1, Burst: 1},
	})

	handler := limiter.Middleware("sales")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	reqA := httptest.NewRequest(http.MethodGet, "/v1/sales/events", nil)
	reqA.Header.Set("X-Real-IP", "203.0.113.10")
	resA := httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	if resA.Code != http.StatusOK {
		t.Fatalf("expected client A request to succeed, got %d", resA.Code)
	}

	reqB := httptest.NewRequest(http.MethodGet, "/v1/sales/events", nil)
	reqB.Header.Set("X-Real-IP", "203.0.113.11")
	resB := httptest.NewRecorder()
	handler.ServeHTTP(resB, reqB)
	if resB.Code != http.StatusOK {
		t.Fatalf("expected client B request to succeed, got %d", resB.Code)
	}

	resA = httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	if resA.Code != http.StatusTooManyRequests {
		t.Fatalf("expected client A to exhaust its budget, got %d", resA.Code)
	}
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/sales/events", nil)
	req.RemoteAddr = "192.0.2.1:43210"
	if got := clientID(req); got != "192.0.2.1" {
		t.Fatalf("expected remote addr host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := clientID(req); got != "198.51.100.7" {
		t.Fatalf("expected first forwarded entry, got %q", got)
	}

	req.Header.Set("X-Real-IP", "203.0.113.99")
	if got := clientID(req); got != "203.0.113.99" {
		t.Fatalf("expected real ip to win, got %q", got)
	}
}
