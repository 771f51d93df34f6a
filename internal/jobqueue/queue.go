package jobqueue

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is a durable, replayable set of jobs backed by an append-only
// JSONL log. It replaces the teacher's single-in-flight background
// indexer: multiple jobs can exist across the log's lifetime (only one
// runs at a time, enforced by the worker), and a crash mid-job is
// recovered on the next OpenQueue rather than silently forgotten.
type Queue struct {
	mu       sync.RWMutex
	log      *Log
	jobs     map[string]*Job
	handlers map[Kind]Handler
}

// OpenQueue opens the job log at path, replays every record to
// reconstruct in-memory job state, and marks any job found RUNNING (an
// orphan left by a process that died mid-job) as FAILED with
// FailureInterruptedByRestart.
func OpenQueue(path string) (*Queue, error) {
	records, err := ReadAll(path)
	if err != nil {
		return nil, fmt.Errorf("replay job log: %w", err)
	}

	l, err := OpenLog(path)
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}

	q := &Queue{
		log:      l,
		jobs:     make(map[string]*Job),
		handlers: make(map[Kind]Handler),
	}

	for _, r := range records {
		job, ok := q.jobs[r.JobID]
		if !ok {
			job = &Job{ID: r.JobID, Kind: r.Kind, Params: r.Params, CreatedAt: r.Timestamp}
			q.jobs[r.JobID] = job
		}
		job.apply(r)
	}

	for _, job := range q.jobs {
		if job.Status == StatusRunning {
			rec := Record{
				JobID:         job.ID,
				Status:        StatusFailed,
				Timestamp:     recoveryTimestamp(),
				Error:         "job was running when the process exited",
				FailureReason: FailureInterruptedByRestart,
			}
			if err := l.Append(rec); err != nil {
				return nil, fmt.Errorf("record interrupted job %s: %w", job.ID, err)
			}
			job.apply(rec)
			slog.Warn("marking orphaned job as failed", slog.String("job_id", job.ID), slog.String("kind", string(job.Kind)))
		}
	}

	return q, nil
}

// recoveryTimestamp is a seam around time.Now so tests can freeze it;
// production always uses wall-clock time.
var recoveryTimestamp = time.Now

// RegisterHandler binds a Kind to the function that executes it. Must be
// called before Enqueue for that kind.
func (q *Queue) RegisterHandler(kind Kind, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// Enqueue appends a pending record for a new job and returns its
// in-memory handle. The caller (typically the worker loop) is
// responsible for actually starting execution.
func (q *Queue) Enqueue(kind Kind, params map[string]string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.handlers[kind]; !ok {
		return nil, fmt.Errorf("jobqueue: no handler registered for kind %q", kind)
	}

	id := uuid.NewString()
	now := time.Now()
	job := &Job{ID: id, Kind: kind, Params: params, Status: StatusPending, CreatedAt: now, UpdatedAt: now}

	if err := q.log.Append(Record{JobID: id, Kind: kind, Params: params, Status: StatusPending, Timestamp: now}); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	q.jobs[id] = job
	return job, nil
}

// Get returns the job with the given ID, if known.
func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	return j, ok
}

// List returns all known jobs, newest first.
func (q *Queue) List() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs
}

// Cancel requests cooperative cancellation of a running job. The worker
// checks ctx.Err() at file/chunk boundaries and stops there; Cancel does
// not interrupt mid-file work.
func (q *Queue) Cancel(id string) error {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("jobqueue: unknown job %q", id)
	}

	job.mu.RLock()
	cancel := job.cancel
	running := job.IsRunning()
	job.mu.RUnlock()

	if !running {
		return fmt.Errorf("jobqueue: job %q is not running", id)
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// appendAndApply is the shared path the worker uses to persist a
// transition and fold it into the in-memory job in one step.
func (q *Queue) appendAndApply(job *Job, r Record) error {
	if err := q.log.Append(r); err != nil {
		return fmt.Errorf("append job record: %w", err)
	}
	job.apply(r)
	return nil
}

// Close releases the underlying log file handle.
func (q *Queue) Close() error {
	return q.log.Close()
}
