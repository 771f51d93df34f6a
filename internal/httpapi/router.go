// Package httpapi is the thin net/http shell over the search engine and
// job queue: it parses requests, maps domain errors onto status codes
// via errors.AmanError.HTTPStatus/ToBody, and holds no business logic of
// its own (spec §6).
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	agentbrainerrors "github.com/agent-brain/agent-brain/internal/errors"
	"github.com/agent-brain/agent-brain/internal/graph"
	"github.com/agent-brain/agent-brain/internal/jobqueue"
	"github.com/agent-brain/agent-brain/internal/search"
	"github.com/agent-brain/agent-brain/internal/store"
	"github.com/agent-brain/agent-brain/pkg/version"
)

// Server wires the search engine, job queue, and graph store to HTTP
// handlers. It is a pure adapter — every method delegates to one of
// those three.
type Server struct {
	engine   *search.Engine
	queue    *jobqueue.Queue
	graph    *graph.Store
	metadata store.MetadataStore
	mode     string
	mux      *http.ServeMux
}

// New builds a Server and registers all routes.
func New(engine *search.Engine, queue *jobqueue.Queue, graphStore *graph.Store, metadata store.MetadataStore, mode string) *Server {
	s := &Server{engine: engine, queue: queue, graph: graphStore, metadata: metadata, mode: mode, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /health/status", s.handleHealthStatus)
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("POST /index", s.handleIndex)
	s.mux.HandleFunc("POST /index/add", s.handleIndexAdd)
	s.mux.HandleFunc("DELETE /index", s.handleIndexDelete)
	s.mux.HandleFunc("GET /index/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /index/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /index/jobs/{id}/cancel", s.handleCancelJob)
}

// ServeHTTP makes Server an http.Handler, logging each request's method,
// path, status, and latency the way the teacher's daemon logged RPCs.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rw, r)
	slog.Info("http request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rw.status),
		slog.Duration("duration", time.Since(start)))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError maps err onto the §7 status/body contract: an *AmanError
// carries its own HTTP status and {error_kind, message, hint} body;
// anything else is reported as a 500 Internal.
func writeError(w http.ResponseWriter, err error) {
	ae, ok := err.(*agentbrainerrors.AmanError)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, agentbrainerrors.ToBody(err))
		return
	}
	writeJSON(w, ae.HTTPStatus(), agentbrainerrors.ToBody(ae))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// buildInfo is exposed on /health as part of the liveness payload.
func buildInfo() string {
	return version.Version
}
