// Package jobqueue implements a durable, append-only job log for
// long-running indexing work (index/reindex/add/delete), replacing the
// teacher's single-in-flight background indexer with a queue that
// survives process restarts and tracks more than one job kind.
package jobqueue

import (
	"context"
	"sync"
	"time"
)

// Kind identifies the operation a job performs.
type Kind string

const (
	KindIndexPath  Kind = "index_path"
	KindReindexAll Kind = "reindex_all"
	KindAddPath    Kind = "add_path"
	KindDeleteAll  Kind = "delete_index"
)

// Status is a job's current lifecycle state. Only the most recent Record
// for a job_id defines its current Status.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Stage mirrors the indexing pipeline's stage names, reused here so
// progress records and the old index.Stage enum agree on vocabulary.
const (
	StageScanning = "scanning"
	StageChunking = "chunking"
	StageEmbedding = "embedding"
	StageIndexing = "indexing"
)

// FailureReason distinguishes ordinary handler errors from jobs that were
// interrupted by a process restart or cancelled cooperatively.
type FailureReason string

const (
	FailureNone                 FailureReason = ""
	FailureCancelled            FailureReason = "cancelled"
	FailureInterruptedByRestart FailureReason = "interrupted_by_restart"
)

// Record is a single append-only log line: one state transition for one
// job. Records are never rewritten in place; the newest record for a
// job_id is authoritative (until compaction drops superseded records).
type Record struct {
	JobID          string            `json:"job_id"`
	Kind           Kind              `json:"kind,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
	Status         Status            `json:"status"`
	Timestamp      time.Time         `json:"timestamp"`
	Stage          string            `json:"stage,omitempty"`
	FilesTotal     int               `json:"files_total,omitempty"`
	FilesProcessed int               `json:"files_processed,omitempty"`
	ChunksBefore   int               `json:"chunks_before,omitempty"`
	ChunksAfter    int               `json:"chunks_after,omitempty"`
	ChunksIndexed  int               `json:"chunks_indexed,omitempty"`
	Error          string            `json:"error,omitempty"`
	FailureReason  FailureReason     `json:"failure_reason,omitempty"`
}

// Progress is the mutable, in-flight state a handler reports through
// while it runs; the worker turns each update into a Record.
type Progress struct {
	Stage          string
	FilesTotal     int
	FilesProcessed int
	ChunksIndexed  int
}

// Handler executes one job kind. update is called periodically (at file
// boundaries) to report progress and to check for cooperative
// cancellation via ctx.Err(). A handler may set ChunksBefore/ChunksAfter
// on the job; the worker does not read or check them.
type Handler func(ctx context.Context, job *Job, update func(Progress)) error

// Job is the queue's in-memory view of one job's latest state, derived
// by replaying its Records. It is safe for concurrent reads via the
// accessor methods; fields should not be mutated directly by callers.
type Job struct {
	mu sync.RWMutex

	ID             string
	Kind           Kind
	Params         map[string]string
	Status         Status
	Stage          string
	FilesTotal     int
	FilesProcessed int
	ChunksBefore   int
	ChunksAfter    int
	ChunksIndexed  int
	Error          string
	FailureReason  FailureReason
	CreatedAt      time.Time
	UpdatedAt      time.Time

	cancel func()
}

// Snapshot is the JSON-friendly read-only view of a Job, mirroring the
// teacher's IndexProgressSnapshot shape (progress_pct/elapsed computed on
// read) but keyed by job_id instead of being a singleton.
type Snapshot struct {
	JobID          string  `json:"job_id"`
	Kind           Kind    `json:"kind"`
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// snapshotStatus maps a job's Status onto the teacher's three-value
// indexing vocabulary ("indexing"/"ready"/"error") so API consumers
// written against the old shape keep working unchanged.
func snapshotStatus(s Status) string {
	switch s {
	case StatusPending, StatusRunning:
		return "indexing"
	case StatusFailed:
		return "error"
	case StatusDone:
		return "ready"
	default:
		return string(s)
	}
}

// Snapshot returns a consistent point-in-time copy of the job's state.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	pct := 0.0
	if j.FilesTotal > 0 {
		pct = float64(j.FilesProcessed) / float64(j.FilesTotal) * 100
	}
	if j.Status == StatusDone {
		pct = 100
	}

	return Snapshot{
		JobID:          j.ID,
		Kind:           j.Kind,
		Status:         snapshotStatus(j.Status),
		Stage:          j.Stage,
		FilesTotal:     j.FilesTotal,
		FilesProcessed: j.FilesProcessed,
		ChunksIndexed:  j.ChunksIndexed,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(j.CreatedAt).Seconds()),
		ErrorMessage:   j.Error,
	}
}

// IsRunning reports whether the job is pending or actively running,
// matching the teacher's IndexProgress.IsIndexing predicate.
func (j *Job) IsRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusPending || j.Status == StatusRunning
}

// IsIndexing is an alias for IsRunning, kept under the teacher's original
// name for call sites migrated from internal/async.
func (j *Job) IsIndexing() bool {
	return j.IsRunning()
}

func (j *Job) apply(r Record) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.Status = r.Status
	j.UpdatedAt = r.Timestamp
	if r.Stage != "" {
		j.Stage = r.Stage
	}
	if r.FilesTotal > 0 {
		j.FilesTotal = r.FilesTotal
	}
	if r.FilesProcessed > 0 {
		j.FilesProcessed = r.FilesProcessed
	}
	if r.ChunksBefore > 0 {
		j.ChunksBefore = r.ChunksBefore
	}
	if r.ChunksAfter > 0 {
		j.ChunksAfter = r.ChunksAfter
	}
	if r.ChunksIndexed > 0 {
		j.ChunksIndexed = r.ChunksIndexed
	}
	if r.Error != "" {
		j.Error = r.Error
	}
	if r.FailureReason != "" {
		j.FailureReason = r.FailureReason
	}
}
