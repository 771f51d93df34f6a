package httpapi

import (
	"net/http"

	agentbrainerrors "github.com/agent-brain/agent-brain/internal/errors"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.queue.List()
	snaps := make([]any, 0, len(jobs))
	for _, j := range jobs {
		snaps = append(snaps, j.Snapshot())
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.queue.Get(id)
	if !ok {
		writeError(w, agentbrainerrors.NotFoundKind("no job with id "+id))
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.queue.Get(id); !ok {
		writeError(w, agentbrainerrors.NotFoundKind("no job with id "+id))
		return
	}

	// Cancellation is idempotent: cancelling an already-finished job is
	// not an error, it simply has no effect.
	if err := s.queue.Cancel(id); err != nil {
		job, _ := s.queue.Get(id)
		if job != nil && !job.IsRunning() {
			writeJSON(w, http.StatusOK, job.Snapshot())
			return
		}
		writeError(w, agentbrainerrors.Internal("cancel job", err))
		return
	}

	job, _ := s.queue.Get(id)
	writeJSON(w, http.StatusOK, job.Snapshot())
}
