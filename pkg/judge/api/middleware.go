package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// authMiddleware enforces spec.md §6's token check: header
// X-Auth-Token or query ?token must equal s.Token. A missing server
// token is a deployment error, not a client one, so it surfaces 500
// rather than rejecting every caller as unauthorized.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token == "" {
			writeError(w, http.StatusInternalServerError, "server is missing its auth token")
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.Token {
			writeError(w, http.StatusUnauthorized, "invalid or missing auth token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestSizeLimiter bounds request bodies the way
// pkg/common/validation/ratelimit.go's RequestSizeLimiter does: an
// early Content-Length check plus a streaming MaxBytesReader wrap.
func requestSizeLimiter(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxSize {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the status code a handler wrote so
// metricsMiddleware can label the request after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records one judge_http_requests_total observation
// per request, labeled by route template and status class.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.Metrics.HTTPRequests.WithLabelValues(route, statusClass(rec.status)).Inc()
	})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
