package jobqueue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agent-brain/agent-brain/internal/index"
	"github.com/agent-brain/agent-brain/internal/store"
)

// IndexRunner is the subset of *index.Runner a job handler drives. An
// interface here keeps this package testable without a real runner.
type IndexRunner interface {
	Run(ctx context.Context, cfg index.RunnerConfig) (*index.RunnerResult, error)
	SetRenderer(renderer index.Renderer)
}

// progressRenderer adapts a job's update callback to index.Renderer, so
// Runner.Run's existing progress-reporting calls become job-log Records
// without Runner knowing anything about jobqueue.
type progressRenderer struct {
	update func(Progress)
}

func (r *progressRenderer) Start(ctx context.Context) error { return nil }

func (r *progressRenderer) UpdateProgress(event index.ProgressEvent) {
	r.update(Progress{
		Stage:          stageToString(event.Stage),
		FilesTotal:     event.Total,
		FilesProcessed: event.Current,
	})
}

func (r *progressRenderer) AddError(event index.ErrorEvent) {}

func (r *progressRenderer) Complete(stats index.CompletionStats) {
	r.update(Progress{
		Stage:          StageIndexing,
		FilesTotal:     stats.Files,
		FilesProcessed: stats.Files,
		ChunksIndexed:  stats.Chunks,
	})
}

func (r *progressRenderer) Stop() error { return nil }

func stageToString(s index.Stage) string {
	switch s {
	case index.StageScanning:
		return StageScanning
	case index.StageChunking:
		return StageChunking
	case index.StageEmbedding:
		return StageEmbedding
	case index.StageIndexing, index.StageContextual, index.StageGraphExtraction, index.StageComplete:
		return StageIndexing
	default:
		return StageScanning
	}
}

// NewIndexHandler builds a Handler for KindIndexPath/KindReindexAll/
// KindAddPath that drives runner and sets ChunksBefore/ChunksAfter on the
// job from chunk counts taken before and after the run. The counts stay
// on the in-memory Job; the queue does not log or check them.
func NewIndexHandler(runner IndexRunner, metadata store.MetadataStore) Handler {
	return func(ctx context.Context, job *Job, update func(Progress)) error {
		before, err := countChunks(ctx, metadata)
		if err != nil {
			return fmt.Errorf("count chunks before indexing: %w", err)
		}

		cfg := index.RunnerConfig{
			RootDir: job.Params["root_dir"],
			DataDir: job.Params["data_dir"],
			Offline: job.Params["offline"] == "true",
		}
		if v, ok := job.Params["resume_from_checkpoint"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.ResumeFromCheckpoint = n
			}
		}

		renderer := &progressRenderer{update: update}
		renderer.Start(ctx)
		runner.SetRenderer(renderer)

		result, err := runner.Run(ctx, cfg)
		if err != nil {
			return err
		}

		after, err := countChunks(ctx, metadata)
		if err != nil {
			return fmt.Errorf("count chunks after indexing: %w", err)
		}

		update(Progress{Stage: StageIndexing, FilesTotal: result.Files, FilesProcessed: result.Files, ChunksIndexed: result.Chunks})

		job.mu.Lock()
		job.ChunksBefore = before
		job.ChunksAfter = after
		job.mu.Unlock()

		return nil
	}
}

// NewDeleteAllHandler builds a Handler for KindDeleteAll that wipes every
// chunk/embedding from the metadata, BM25, and vector stores, used by
// DELETE /index.
func NewDeleteAllHandler(metadata store.MetadataStore, bm25 store.BM25Index, vector store.VectorStore) Handler {
	return func(ctx context.Context, job *Job, update func(Progress)) error {
		update(Progress{Stage: StageIndexing})

		vectorIDs := vector.AllIDs()
		if len(vectorIDs) > 0 {
			if err := vector.Delete(ctx, vectorIDs); err != nil {
				return fmt.Errorf("delete vectors: %w", err)
			}
		}

		bm25IDs, err := bm25.AllIDs()
		if err != nil {
			return fmt.Errorf("list bm25 documents: %w", err)
		}
		if len(bm25IDs) > 0 {
			if err := bm25.Delete(ctx, bm25IDs); err != nil {
				return fmt.Errorf("delete bm25 documents: %w", err)
			}
		}

		// A chunk may carry BM25 content without an embedding yet (or vice
		// versa), so the metadata wipe needs the union of both ID sets, not
		// just the vector store's.
		seen := make(map[string]struct{}, len(vectorIDs)+len(bm25IDs))
		allIDs := make([]string, 0, len(vectorIDs)+len(bm25IDs))
		for _, id := range vectorIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				allIDs = append(allIDs, id)
			}
		}
		for _, id := range bm25IDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				allIDs = append(allIDs, id)
			}
		}

		if err := metadata.DeleteChunks(ctx, allIDs); err != nil {
			return fmt.Errorf("delete chunk metadata: %w", err)
		}

		update(Progress{Stage: StageIndexing, ChunksIndexed: 0})
		return nil
	}
}

// countChunks approximates total indexed chunks from the embedding
// coverage counters, since MetadataStore has no project-agnostic chunk
// count and a job handler runs before a Project row necessarily exists.
func countChunks(ctx context.Context, metadata store.MetadataStore) (int, error) {
	withEmbedding, withoutEmbedding, err := metadata.GetEmbeddingStats(ctx)
	if err != nil {
		return 0, err
	}
	return withEmbedding + withoutEmbedding, nil
}
