// Package middleware wraps the admin HTTP endpoints with request metrics,
// request IDs and timeouts.
package middleware

import (
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
)

// Metrics records a count per path and status and tracks in-flight admin
// requests.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.AdminRequest()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			done(normalizePath(r.URL.Path), sw.status)
		})
	}
}

// RequestID puts the X-Request-ID header, or a fresh id, on the request
// context and echoes it back.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = logger.WithRequestID(ctx, id)
		}
		ctx, id := logger.EnsureRequestID(ctx)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Chain applies mws so that the first one is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// normalizePath keeps metric label cardinality bounded: known admin routes
// keep their path, anything else is "other".
func normalizePath(path string) string {
	switch {
	case path == "/", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/health/"), strings.HasPrefix(path, "/debug/"):
		return path
	}
	return "other"
}
