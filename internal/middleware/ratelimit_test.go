package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(path, remote, forwarded string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	return req
}

func TestRateLimiter_PerClient(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, "/health")
	rl.now = func() time.Time { return now }
	handler := rl.Middleware(okHandler())

	codes := func(req *http.Request) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, codes(request("/api/tasks", "10.0.0.1:5000", "")))
	assert.Equal(t, http.StatusOK, codes(request("/api/tasks", "10.0.0.1:5001", "")))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request("/api/tasks", "10.0.0.1:5002", ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Rate limit exceeded"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, codes(request("/api/tasks", "10.0.0.2:5000", "")), "other clients keep their own budget")
	assert.Equal(t, http.StatusOK, codes(request("/health", "10.0.0.1:5003", "")), "exempt paths are never limited")

	now = now.Add(31 * time.Second)
	assert.Equal(t, http.StatusOK, codes(request("/api/tasks", "10.0.0.1:5004", "")), "tokens refill over time")
}

func TestRateLimiter_ForwardedForIgnoredByDefault(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }
	handler := rl.Middleware(okHandler())

	allowed := 0
	for i := range 50 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request("/api/tasks", "10.0.0.1:5000", fmt.Sprintf("1.2.3.%d", i)))
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "a rotating X-Forwarded-For does not reset the budget")
}

func TestRateLimiter_TrustProxy(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1)
	rl.TrustProxy(true)
	rl.now = func() time.Time { return now }
	handler := rl.Middleware(okHandler())

	codes := func(forwarded string) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request("/api/tasks", "10.0.0.1:5000", forwarded))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, codes("203.0.113.7"))
	assert.Equal(t, http.StatusOK, codes("203.0.113.8"), "each forwarded client has its own budget")
	assert.Equal(t, http.StatusTooManyRequests, codes("203.0.113.7"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	handler := NewRateLimiter(0).Middleware(okHandler())

	for range 5 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request("/api/tasks", "10.0.0.1:5000", ""))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_SweepsIdleVisitors(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10)
	rl.now = func() time.Time { return now }

	rl.allow("10.0.0.1")
	now = now.Add(visitorIdleTimeout + time.Second)
	rl.allow("10.0.0.2")

	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		forwarded string
		trust     bool
		expected  string
	}{
		{name: "remote addr", remote: "192.168.1.5:4321", expected: "192.168.1.5"},
		{name: "forwarded chain trusted", remote: "10.0.0.1:80", forwarded: "203.0.113.7, 10.0.0.1", trust: true, expected: "203.0.113.7"},
		{name: "forwarded chain untrusted", remote: "10.0.0.1:80", forwarded: "203.0.113.7, 10.0.0.1", expected: "10.0.0.1"},
		{name: "empty forwarded entry", remote: "10.0.0.1:80", forwarded: " , 10.0.0.2", trust: true, expected: "10.0.0.1"},
		{name: "no port", remote: "192.168.1.5", expected: "192.168.1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clientIP(request("/", tt.remote, tt.forwarded), tt.trust))
		})
	}
}
