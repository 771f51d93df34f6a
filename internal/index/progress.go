package index

import (
	"context"
	"time"
)

// Stage represents an indexing pipeline stage (spec §4.C/D: discover →
// split → summarize → embed → upsert).
type Stage int

const (
	StageScanning Stage = iota
	StageChunking
	StageContextual
	StageGraphExtraction
	StageEmbedding
	StageIndexing
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageChunking:
		return "Chunking"
	case StageContextual:
		return "Contextual"
	case StageGraphExtraction:
		return "GraphExtraction"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// ProgressEvent is a counter-only progress update (spec §4.I step 2: "the
// handler may emit progress records (counter fields only; no state change)").
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent reports a per-item failure that does not fail the job
// (spec §7 propagation policy: per-item errors are logged and counted).
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each indexing stage.
type StageTimings struct {
	Scan    time.Duration
	Chunk   time.Duration
	Context time.Duration
	Graph   time.Duration
	Embed   time.Duration
	Index   time.Duration
}

// EmbedderInfo describes the embedder backend used for a run.
type EmbedderInfo struct {
	Backend    string
	Model      string
	Dimensions int
}

// CompletionStats summarizes a completed indexing run.
type CompletionStats struct {
	Files    int
	Chunks   int
	Duration time.Duration
	Errors   int
	Warnings int
	Stages   StageTimings
	Embedder EmbedderInfo
}

// Renderer receives progress notifications from a Runner. The job worker
// (internal/jobqueue) implements this to translate stage progress into
// job-log progress records; tests use an in-memory fake.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// NoopRenderer discards all progress notifications.
type NoopRenderer struct{}

func (NoopRenderer) Start(ctx context.Context) error   { return nil }
func (NoopRenderer) UpdateProgress(event ProgressEvent) {}
func (NoopRenderer) AddError(event ErrorEvent)          {}
func (NoopRenderer) Complete(stats CompletionStats)     {}
func (NoopRenderer) Stop() error                        { return nil }
