// Package relational implements the embedded backend's VectorStore and
// BM25Index contracts against a single Postgres table: a pgvector HNSW
// index answers vector_search, a tsvector GIN index answers
// keyword_search, so one schema serves both retrieval modes instead of
// the embedded backend's two separate on-disk indices.
package relational

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/agent-brain/agent-brain/internal/store"
)

// Config configures the connection pool and the HNSW index parameters.
type Config struct {
	DSN             string
	MaxConns        int32
	Dimension       int
	HNSWM           int // default 16
	HNSWEfConstruct int // default 64
}

// Store owns the connection pool and schema shared by VectorIndex and
// KeywordIndex below. store.VectorStore and store.BM25Index both declare
// a Search method with a different signature, so one type cannot
// implement both directly; Store holds the shared state and each
// interface is satisfied by a thin view onto it.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
}

// VectorIndex answers vector_search via pgvector's `<=>` cosine operator
// over an HNSW index.
type VectorIndex struct {
	*Store
}

// KeywordIndex answers keyword_search via Postgres full-text search
// (ts_rank over a generated tsvector column with a GIN index), reading
// and writing the same chunks table as VectorIndex.
type KeywordIndex struct {
	*Store
}

var (
	_ store.VectorStore = (*VectorIndex)(nil)
	_ store.BM25Index   = (*KeywordIndex)(nil)
)

// Vectors returns the store.VectorStore view onto this connection.
func (s *Store) Vectors() *VectorIndex { return &VectorIndex{s} }

// Keywords returns the store.BM25Index view onto this connection.
func (s *Store) Keywords() *KeywordIndex { return &KeywordIndex{s} }

// Open connects to Postgres and ensures the chunk table and its indexes
// exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	s := &Store{pool: pool, dimension: cfg.Dimension}
	if err := s.ensureSchema(ctx, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context, cfg Config) error {
	m, ef := cfg.HNSWM, cfg.HNSWEfConstruct
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 64
	}

	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id   TEXT PRIMARY KEY,
	content    TEXT NOT NULL DEFAULT '',
	embedding  vector(%d),
	content_ts tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
);

CREATE INDEX IF NOT EXISTS chunks_content_ts_idx ON chunks USING gin (content_ts);
`, cfg.Dimension)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure chunk table: %w", err)
	}

	// HNSW requires a fixed dimension and cannot be created inline with
	// a generated column above in one statement reliably across pgvector
	// versions, so it is created as a second idempotent step.
	hnswDDL := fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_indexes
		WHERE schemaname = current_schema() AND indexname = 'chunks_embedding_hnsw_idx'
	) THEN
		EXECUTE 'CREATE INDEX chunks_embedding_hnsw_idx ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)';
	END IF;
END
$$;
`, m, ef)
	if _, err := s.pool.Exec(ctx, hnswDDL); err != nil {
		return fmt.Errorf("ensure hnsw index: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Delete removes rows by ID. VectorStore and BM25Index both declare
// Delete with this exact signature, so one implementation serves both
// embedding views.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE chunk_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Save and Load are no-ops: Postgres itself is the persistence layer,
// unlike the embedded backend's gob-snapshot-to-disk HNSWStore. Shared
// by both embedding views since both interfaces declare the same
// signature.
func (s *Store) Save(path string) error { return nil }
func (s *Store) Load(path string) error { return nil }

// --- store.VectorStore (via VectorIndex) ---

// Add upserts the embedding for each chunk ID. Content is left
// unchanged for existing rows; keyword content arrives separately via
// KeywordIndex.Index, since both interfaces share one table.
func (v *VectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	s := v.Store
	if len(ids) != len(vectors) {
		return fmt.Errorf("relational: ids and vectors length mismatch")
	}

	batch := &pgxQueryBatch{}
	for i, id := range ids {
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("relational: vector dimension mismatch: expected %d got %d", s.dimension, len(vectors[i]))
		}
		batch.queue(
			`INSERT INTO chunks (chunk_id, embedding) VALUES ($1, $2)
			 ON CONFLICT (chunk_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
			id, pgvector.NewVector(vectors[i]),
		)
	}
	return batch.send(ctx, s.pool)
}

// Search returns the k nearest neighbors to query by cosine distance.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	s := v.Store
	if len(query) != s.dimension {
		return nil, fmt.Errorf("relational: query dimension mismatch: expected %d got %d", s.dimension, len(query))
	}

	rows, err := s.pool.Query(ctx, `
SELECT chunk_id, embedding <=> $1 AS distance
FROM chunks
WHERE embedding IS NOT NULL
ORDER BY embedding <=> $1
LIMIT $2`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []*store.VectorResult
	for rows.Next() {
		var id string
		var distance float32
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan vector result: %w", err)
		}
		results = append(results, &store.VectorResult{
			ID:       id,
			Distance: distance,
			Score:    1 - distance/2, // cosine distance in [0,2] -> similarity in [0,1]
		})
	}
	return results, rows.Err()
}

// AllIDs returns every chunk ID that has an embedding.
func (v *VectorIndex) AllIDs() []string {
	rows, err := v.pool.Query(context.Background(), `SELECT chunk_id FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Contains reports whether a chunk ID has an embedding.
func (v *VectorIndex) Contains(id string) bool {
	var exists bool
	err := v.pool.QueryRow(context.Background(), `SELECT EXISTS(SELECT 1 FROM chunks WHERE chunk_id = $1 AND embedding IS NOT NULL)`, id).Scan(&exists)
	return err == nil && exists
}

// Count returns the number of chunk rows with an embedding.
func (v *VectorIndex) Count() int {
	var n int
	if err := v.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// --- store.BM25Index (via KeywordIndex) ---

// Index upserts chunk content; content_ts (and therefore the full-text
// index) is maintained automatically as a generated column.
func (k *KeywordIndex) Index(ctx context.Context, docs []*store.Document) error {
	s := k.Store
	batch := &pgxQueryBatch{}
	for _, d := range docs {
		batch.queue(
			`INSERT INTO chunks (chunk_id, content) VALUES ($1, $2)
			 ON CONFLICT (chunk_id) DO UPDATE SET content = EXCLUDED.content`,
			d.ID, d.Content,
		)
	}
	return batch.send(ctx, s.pool)
}

// Search runs Postgres full-text search ranked by ts_rank, mirroring the
// embedded backend's BM25 ranking contract (higher score is more
// relevant) even though the underlying ranking function differs.
func (k *KeywordIndex) Search(ctx context.Context, query string, limit int) ([]*store.BM25Result, error) {
	rows, err := k.pool.Query(ctx, `
SELECT chunk_id, ts_rank(content_ts, plainto_tsquery('english', $1)) AS rank
FROM chunks
WHERE content_ts @@ plainto_tsquery('english', $1)
ORDER BY rank DESC
LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []*store.BM25Result
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scan keyword result: %w", err)
		}
		results = append(results, &store.BM25Result{DocID: id, Score: rank, MatchedTerms: strings.Fields(query)})
	}
	return results, rows.Err()
}

// AllIDs satisfies BM25Index.AllIDs, which returns an error unlike
// VectorStore.AllIDs.
func (k *KeywordIndex) AllIDs() ([]string, error) {
	rows, err := k.pool.Query(context.Background(), `SELECT chunk_id FROM chunks WHERE content != ''`)
	if err != nil {
		return nil, fmt.Errorf("list doc ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats reports document count. TermCount/AvgDocLength have no direct
// Postgres equivalent to the embedded backend's in-memory BM25
// statistics, so they are left zero rather than approximated.
func (k *KeywordIndex) Stats() *store.IndexStats {
	var count int
	if err := k.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM chunks WHERE content != ''`).Scan(&count); err != nil {
		return &store.IndexStats{}
	}
	return &store.IndexStats{DocumentCount: count}
}

// pgxQueryBatch is a minimal helper around pgx.Batch for the
// insert-or-update statements both interfaces issue, avoiding a
// round trip per row.
type pgxQueryBatch struct {
	stmts []string
	args  [][]any
}

func (b *pgxQueryBatch) queue(stmt string, args ...any) {
	b.stmts = append(b.stmts, stmt)
	b.args = append(b.args, args)
}

func (b *pgxQueryBatch) send(ctx context.Context, pool *pgxpool.Pool) error {
	if len(b.stmts) == 0 {
		return nil
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range b.stmts {
		if _, err := tx.Exec(ctx, stmt, b.args[i]...); err != nil {
			return fmt.Errorf("exec statement %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}
