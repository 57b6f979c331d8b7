// Package middleware provides HTTP middleware for request metrics and
// per-client rate limiting.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nadmax/nexcoach/internal/metrics"
)

var recordHTTPRequest = metrics.RecordHTTPRequest

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// normalizeEndpoint replaces path ids so label cardinality stays bounded.
func normalizeEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/tasks/"):
		parts := strings.Split(strings.TrimPrefix(path, "/api/tasks/"), "/")
		if len(parts) == 2 && (parts[1] == "properties" || parts[1] == "analyze") {
			return "/api/tasks/:id/" + parts[1]
		}
		return path
	case strings.HasPrefix(path, "/api/insights/jobs/") && !strings.Contains(path[len("/api/insights/jobs/"):], "/"):
		return "/api/insights/jobs/:id"
	default:
		return path
	}
}
