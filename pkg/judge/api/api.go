// Package api wires the HTTP surface from spec.md §6 on top of
// gorilla/mux: upload, compile/judge/run/interactive submission,
// task/cache polling, and the ambient /status and /metrics endpoints.
// Routing follows cmd/announce-webui/main.go's mux.NewRouter +
// Subrouter shape; the auth/size-limiting middleware chaining follows
// pkg/common/validation/ratelimit.go's Middleware/RequestSizeLimiter
// composition technique (rate limiting itself is not carried — an
// explicit spec.md Non-goal).
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/oimasterkafuu/judge-server/pkg/judge/cache"
	"github.com/oimasterkafuu/judge-server/pkg/judge/scheduler"
	"github.com/oimasterkafuu/judge-server/pkg/infrastructure/logging"
	"github.com/oimasterkafuu/judge-server/pkg/infrastructure/metrics"
)

const maxUploadSize = 100 << 20 // 100 MiB, per spec.md §6

// Server bundles the collaborators every handler needs.
type Server struct {
	Cache     *cache.Cache
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
	Token     string
	startedAt time.Time
}

// NewServer constructs a Server. token is the shared secret every
// non-health route requires; an empty token makes every non-health request 500,
// per spec.md §6's "missing server token -> 500 (misconfigured)" rule.
func NewServer(c *cache.Cache, s *scheduler.Scheduler, m *metrics.Metrics, log *logging.Logger, token string) *Server {
	return &Server{Cache: c, Scheduler: s, Metrics: m, Logger: log, Token: token, startedAt: time.Now()}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(s.authMiddleware)
	api.Use(requestSizeLimiter(maxUploadSize))
	api.Use(s.metricsMiddleware)

	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/compile", s.handleCompile).Methods(http.MethodPost)
	api.HandleFunc("/compile/checker", s.handleCompileChecker).Methods(http.MethodPost)
	api.HandleFunc("/judge", s.handleJudge).Methods(http.MethodPost)
	api.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/interactive", s.handleInteractive).Methods(http.MethodPost)
	api.HandleFunc("/task/{id}", s.handleGetTask).Methods(http.MethodGet)
	api.HandleFunc("/cache/{id}", s.handleGetCache).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.Metrics != nil {
		api.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	}

	return router
}
