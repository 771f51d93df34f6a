package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	agentbrainerrors "github.com/agent-brain/agent-brain/internal/errors"
	"github.com/agent-brain/agent-brain/internal/jobqueue"
)

// indexRequest is the POST /index and /index/add body.
type indexRequest struct {
	FolderPath    string `json:"folder_path"`
	Recursive     bool   `json:"recursive"`
	IncludeCode   bool   `json:"include_code"`
	ChunkSize     int    `json:"chunk_size"`
	ChunkOverlap  int    `json:"chunk_overlap"`
	Force         bool   `json:"force"`
}

type jobAcceptedResponse struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.enqueueIndexJob(w, r, jobqueue.KindReindexAll)
}

func (s *Server) handleIndexAdd(w http.ResponseWriter, r *http.Request) {
	for _, job := range s.queue.List() {
		if job.IsRunning() {
			writeError(w, agentbrainerrors.AlreadyRunning(""))
			return
		}
	}
	s.enqueueIndexJob(w, r, jobqueue.KindAddPath)
}

func (s *Server) handleIndexDelete(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Enqueue(jobqueue.KindDeleteAll, nil)
	if err != nil {
		writeError(w, agentbrainerrors.Internal("enqueue delete job", err))
		return
	}
	writeJSON(w, http.StatusAccepted, jobAcceptedResponse{JobID: job.ID})
}

func (s *Server) enqueueIndexJob(w http.ResponseWriter, r *http.Request, kind jobqueue.Kind) {
	var req indexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, agentbrainerrors.InvalidQuery("malformed request body: "+err.Error()))
		return
	}
	if req.FolderPath == "" {
		writeError(w, agentbrainerrors.InvalidQuery("folder_path is required"))
		return
	}

	params := map[string]string{
		"root_dir":      req.FolderPath,
		"recursive":     strconv.FormatBool(req.Recursive),
		"include_code":  strconv.FormatBool(req.IncludeCode),
		"chunk_size":    strconv.Itoa(req.ChunkSize),
		"chunk_overlap": strconv.Itoa(req.ChunkOverlap),
		"force":         strconv.FormatBool(req.Force),
	}

	job, err := s.queue.Enqueue(kind, params)
	if err != nil {
		writeError(w, agentbrainerrors.Internal(fmt.Sprintf("enqueue %s job", kind), err))
		return
	}

	writeJSON(w, http.StatusAccepted, jobAcceptedResponse{JobID: job.ID})
}
