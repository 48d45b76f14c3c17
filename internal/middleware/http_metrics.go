package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns to
// prevent cardinality explosion in metrics. This maps paths like
// /api/students/123 to /api/students/{id}.
func normalizePath(path string) string {
	staticRoutes := map[string]bool{
		"/":                       true,
		"/api/door-status":        true,
		"/api/recognition-status": true,
		"/api/stats":              true,
		"/api/attendance":         true,
		"/api/students":           true,
		"/api/login":              true,
		"/ws/events":              true,
		"/health":                 true,
		"/ready":                  true,
		"/metrics":                true,
	}

	if staticRoutes[path] {
		return path
	}

	if strings.HasPrefix(path, "/api/students/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] != "" {
			return "/api/students/{id}"
		}
	}

	if strings.HasPrefix(path, "/api/attendance/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] != "" {
			return "/api/attendance/{subject_id}"
		}
	}

	// Unknown patterns pass through unchanged so new routes keep
	// reporting until they are added here.
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code
// and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics: duration,
// response size, and request counts. Health check endpoints (/health,
// /ready) are excluded to avoid noise from probe traffic.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			next.ServeHTTP(mrw, r)

			duration := time.Since(start).Seconds()
			normalizedPath := normalizePath(r.URL.Path)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				mrw.size,
			)
		})
	}
}
