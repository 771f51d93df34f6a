package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/agent-brain/agent-brain/internal/chunk"
	agentbrainconfig "github.com/agent-brain/agent-brain/internal/config"
	"github.com/agent-brain/agent-brain/internal/embed"
	"github.com/agent-brain/agent-brain/internal/graph"
	"github.com/agent-brain/agent-brain/internal/httpapi"
	"github.com/agent-brain/agent-brain/internal/index"
	"github.com/agent-brain/agent-brain/internal/jobqueue"
	"github.com/agent-brain/agent-brain/internal/lifecycle"
	"github.com/agent-brain/agent-brain/internal/search"
	"github.com/agent-brain/agent-brain/internal/store"
)

const stateDirName = ".agent-brain"

// app bundles every long-lived dependency constructed by serve/start so
// they can be closed together on shutdown.
type app struct {
	metadata   store.MetadataStore
	bm25       store.BM25Index
	vector     store.VectorStore
	embedder   embed.Embedder
	queue      *jobqueue.Queue
	engine     *search.Engine
	graph      *graph.Store
	server     *httpapi.Server
	stopWorker context.CancelFunc
}

// buildApp wires the embedded backend (SQLite metadata + SQLite/Bleve
// BM25 + HNSW vector store) into a search engine, job queue, and HTTP
// server, the way runServe in the teacher's cmd package wired the MCP
// server's dependencies before handing off to the protocol loop.
func buildApp(ctx context.Context, projectRoot string, offline bool) (*app, error) {
	cfg, err := agentbrainconfig.Load(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dataDir := filepath.Join(projectRoot, stateDirName)

	metadata, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	bm25, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "bm25"), store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		metadata.Close()
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}

	dimensions := cfg.Embeddings.Dimensions
	if dimensions == 0 {
		dimensions = 768
	}
	vectorCfg := store.DefaultVectorStoreConfig(dimensions)
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		bm25.Close()
		metadata.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	if err := vector.Load(filepath.Join(dataDir, "vectors.hnsw")); err != nil {
		// Missing on first run; Load returning an error for a brand-new
		// index is expected and non-fatal, mirroring the teacher's
		// first-index-run handling in internal/index/runner.go.
	}

	var embedder embed.Embedder
	if offline {
		embedder = embed.NewStaticEmbedder768()
	} else {
		embedder, err = embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model)
		if err != nil {
			vector.Close()
			bm25.Close()
			metadata.Close()
			return nil, fmt.Errorf("construct embedder: %w", err)
		}
	}

	graphStore := graph.NewStore()

	engineCfg := search.DefaultConfig()
	engineCfg.DefaultWeights = search.Weights{BM25: cfg.Search.BM25Weight, Semantic: cfg.Search.SemanticWeight}
	engineCfg.RRFConstant = cfg.Search.RRFConstant
	engine, err := search.NewEngine(bm25, vector, embedder, metadata, engineCfg, search.WithGraphStore(graphStore))
	if err != nil {
		vector.Close()
		bm25.Close()
		metadata.Close()
		return nil, fmt.Errorf("construct search engine: %w", err)
	}

	queuePath := filepath.Join(dataDir, "jobs.jsonl")
	queue, err := jobqueue.OpenQueue(queuePath)
	if err != nil {
		vector.Close()
		bm25.Close()
		metadata.Close()
		return nil, fmt.Errorf("open job queue: %w", err)
	}

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer:        index.NoopRenderer{},
		Config:          cfg,
		Metadata:        metadata,
		BM25:            bm25,
		Vector:          vector,
		Embedder:        embedder,
		CodeChunker:     chunk.NewCodeChunker(),
		MarkdownChunker: chunk.NewMarkdownChunker(),
	})
	if err != nil {
		queue.Close()
		vector.Close()
		bm25.Close()
		metadata.Close()
		return nil, fmt.Errorf("construct index runner: %w", err)
	}
	queue.RegisterHandler(jobqueue.KindReindexAll, jobqueue.NewIndexHandler(runner, metadata))
	queue.RegisterHandler(jobqueue.KindAddPath, jobqueue.NewIndexHandler(runner, metadata))
	queue.RegisterHandler(jobqueue.KindDeleteAll, jobqueue.NewDeleteAllHandler(metadata, bm25, vector))

	workerCtx, stopWorker := context.WithCancel(ctx)
	worker := jobqueue.NewWorker(queue)
	go worker.Run(workerCtx)

	server := httpapi.New(engine, queue, graphStore, metadata, string(lifecycle.ModeEmbedded))

	return &app{
		metadata:   metadata,
		bm25:       bm25,
		vector:     vector,
		embedder:   embedder,
		queue:      queue,
		engine:     engine,
		graph:      graphStore,
		server:     server,
		stopWorker: stopWorker,
	}, nil
}

// Close stops the worker loop and releases every store in reverse
// construction order.
func (a *app) Close() {
	a.stopWorker()
	a.queue.Close()
	a.embedder.Close()
	a.vector.Close()
	a.bm25.Close()
	a.metadata.Close()
}
