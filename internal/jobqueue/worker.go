package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// pollInterval is how often the worker loop checks for a new pending job
// when idle. Enqueue does not wake the worker directly; this keeps the
// loop simple and matches the teacher's polling-based progress reporter.
const pollInterval = 250 * time.Millisecond

// Worker runs one job at a time, oldest-pending-first, until its context
// is cancelled. Only one Worker should run per Queue; the queue itself
// does not enforce mutual exclusion across processes (that is the
// project lock's job).
type Worker struct {
	queue *Queue
}

// NewWorker returns a worker bound to queue.
func NewWorker(queue *Queue) *Worker {
	return &Worker{queue: queue}
}

// Run blocks, executing pending jobs in order, until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := w.nextPending()
			if job == nil {
				continue
			}
			w.execute(ctx, job)
		}
	}
}

// nextPending returns the oldest job still in StatusPending, or nil.
func (w *Worker) nextPending() *Job {
	jobs := w.queue.List()
	var oldest *Job
	for _, j := range jobs {
		j.mu.RLock()
		pending := j.Status == StatusPending
		j.mu.RUnlock()
		if !pending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	return oldest
}

// execute runs one job: it records the transition to RUNNING, runs the
// handler with a progress callback that appends intermediate Records,
// then records DONE or FAILED. ChunksBefore/ChunksAfter that a handler
// sets on the Job are not written to these Records and are not checked
// against the job's kind.
func (w *Worker) execute(ctx context.Context, job *Job) {
	w.queue.mu.RLock()
	handler, ok := w.queue.handlers[job.Kind]
	w.queue.mu.RUnlock()
	if !ok {
		w.fail(job, fmt.Sprintf("no handler registered for kind %q", job.Kind), FailureNone)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job.mu.Lock()
	job.cancel = cancel
	job.mu.Unlock()
	defer cancel()

	if err := w.queue.appendAndApply(job, Record{
		JobID:     job.ID,
		Status:    StatusRunning,
		Timestamp: time.Now(),
	}); err != nil {
		slog.Error("failed to record job start", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}

	update := func(p Progress) {
		_ = w.queue.appendAndApply(job, Record{
			JobID:          job.ID,
			Status:         StatusRunning,
			Timestamp:      time.Now(),
			Stage:          p.Stage,
			FilesTotal:     p.FilesTotal,
			FilesProcessed: p.FilesProcessed,
			ChunksIndexed:  p.ChunksIndexed,
		})
	}

	err := handler(jobCtx, job, update)

	switch {
	case err != nil && jobCtx.Err() == context.Canceled:
		w.fail(job, "cancelled", FailureCancelled)
	case err != nil:
		w.fail(job, err.Error(), FailureNone)
	default:
		w.succeed(job)
	}
}

func (w *Worker) succeed(job *Job) {
	if err := w.queue.appendAndApply(job, Record{
		JobID:     job.ID,
		Status:    StatusDone,
		Timestamp: time.Now(),
	}); err != nil {
		slog.Error("failed to record job completion", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

func (w *Worker) fail(job *Job, message string, reason FailureReason) {
	if err := w.queue.appendAndApply(job, Record{
		JobID:         job.ID,
		Status:        StatusFailed,
		Timestamp:     time.Now(),
		Error:         message,
		FailureReason: reason,
	}); err != nil {
		slog.Error("failed to record job failure", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}
