package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestRateLimiterPerIPAndUser(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2, UserPerMinute: 1, UserBurst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip, user string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		req.RemoteAddr = ip + ":1234"
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send("10.0.0.1", "u1"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := send("10.0.0.2", "u1"); code != http.StatusTooManyRequests {
		t.Fatalf("user burst exhausted: expected 429, got %d", code)
	}
	if code := send("10.0.0.1", ""); code != http.StatusOK {
		t.Fatalf("second request from ip: %d", code)
	}
	if code := send("10.0.0.1", ""); code != http.StatusTooManyRequests {
		t.Fatalf("ip burst exhausted: expected 429, got %d", code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("unexpected ip %q", ip)
	}
}

func TestKeyedLimiterEvictsIdleKeys(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := newKeyedLimiter(60, 1)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("10.0.0.1") {
		t.Fatalf("first request should pass")
	}
	if limiter.allow("10.0.0.1") {
		t.Fatalf("burst of one should be exhausted")
	}
	for i := 2; i < 50; i++ {
		limiter.allow("10.0.1." + strconv.Itoa(i))
	}
	if got := limiter.size(); got != 49 {
		t.Fatalf("expected 49 tracked keys, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	if !limiter.allow("10.0.0.1") {
		t.Fatalf("refilled key should pass")
	}
	if got := limiter.size(); got != 1 {
		t.Fatalf("idle keys not evicted: %d tracked", got)
	}
}
