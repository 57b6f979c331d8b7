package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nadmax/nexcoach/internal/httputil"
	"github.com/nadmax/nexcoach/internal/metrics"
	"golang.org/x/time/rate"
)

const visitorIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows each client IP perMinute requests per minute with a
// burst of the same size.
type RateLimiter struct {
	mu         sync.Mutex
	visitors   map[string]*visitor
	limit      rate.Limit
	burst      int
	retryAfter string
	lastSweep  time.Time
	now        func() time.Time
	exempt     map[string]bool
	trustProxy bool
}

func NewRateLimiter(perMinute int, exemptPaths ...string) *RateLimiter {
	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}

	retryAfter := 60
	if perMinute > 0 {
		retryAfter = (60 + perMinute - 1) / perMinute
	}

	return &RateLimiter{
		visitors:   make(map[string]*visitor),
		limit:      rate.Limit(float64(perMinute) / 60),
		burst:      perMinute,
		retryAfter: strconv.Itoa(retryAfter),
		now:        time.Now,
		exempt:     exempt,
	}
}

// TrustProxy keys clients on the first X-Forwarded-For entry. Enable it only
// behind a proxy that overwrites the header.
func (rl *RateLimiter) TrustProxy(trust bool) {
	rl.trustProxy = trust
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.burst <= 0 || rl.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.allow(clientIP(r, rl.trustProxy)) {
			metrics.RecordRateLimited()
			w.Header().Set("Retry-After", rl.retryAfter)
			httputil.WriteJSONError(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > visitorIdleTimeout {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTimeout {
				delete(rl.visitors, key)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

func clientIP(r *http.Request, trustProxy bool) string {
	if fwd := r.Header.Get("X-Forwarded-For"); trustProxy && fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
