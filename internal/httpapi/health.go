package httpapi

import (
	"net/http"
)

// healthResponse is the GET /health payload: liveness plus capability
// info a client needs before picking a query mode.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Mode    string `json:"mode"`
	Graph   bool   `json:"graph_enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: buildInfo(),
		Mode:    s.mode,
		Graph:   s.graph != nil,
	})
}

// healthStatusResponse is GET /health/status: counts and the currently
// running job, if any.
type healthStatusResponse struct {
	TotalChunks         int    `json:"total_chunks"`
	IndexingInProgress  bool   `json:"indexing_in_progress"`
	CurrentJobID        string `json:"current_job_id,omitempty"`
}

func (s *Server) handleHealthStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	resp := healthStatusResponse{}
	if stats != nil {
		resp.TotalChunks = stats.VectorCount
	}

	for _, job := range s.queue.List() {
		if job.IsRunning() {
			resp.IndexingInProgress = true
			resp.CurrentJobID = job.ID
			break
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
