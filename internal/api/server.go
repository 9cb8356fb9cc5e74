// Package api exposes the job pipeline over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/proofpulse/internal/jobstore"
	"github.com/ppiankov/proofpulse/internal/model"
	"github.com/ppiankov/proofpulse/internal/worker"
)

// formOverhead is the slack allowed on top of the upload limit for the
// multipart envelope and the other form fields.
const formOverhead int64 = 1 << 20

// Submitter queues background work without blocking
type Submitter interface {
	TrySubmit(job worker.Job) error
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	store  *jobstore.Store
	pool   Submitter
	runner worker.Runner
	cfg    model.ServerConfig
	// Default primary-scoring toggle reported for clients without settings
	primaryDefault bool
	logger         *zap.Logger
	now            func() time.Time
	mux            *http.ServeMux
}

// New creates a new API server.
func New(cfg *model.Config, store *jobstore.Store, pool Submitter, runner worker.Runner, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		store:          store,
		pool:           pool,
		runner:         runner,
		cfg:            cfg.Server,
		primaryDefault: cfg.Pipeline.PrimaryScoringEnabled,
		logger:         logger.Named("api"),
		now:            time.Now,
		mux:            http.NewServeMux(),
	}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.limitBody(jsonContent(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /ingest", s.handleIngest)
	s.mux.HandleFunc("POST /process", s.handleProcess)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /result", s.handleResult)
	s.mux.HandleFunc("GET /settings", s.handleGetSettings)
	s.mux.HandleFunc("POST /settings", s.handleUpdateSettings)
	s.mux.HandleFunc("POST /live", s.handleLive)
	s.mux.HandleFunc("DELETE /jobs/{id}", s.handleDeleteJob)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Client-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody caps the request body at the upload limit plus form overhead.
func (s *Server) limitBody(next http.Handler) http.Handler {
	limit := s.cfg.MaxUploadBytes + formOverhead
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers 500 with msg only
func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}
