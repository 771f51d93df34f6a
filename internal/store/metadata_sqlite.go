package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// StoreConfig configures the SQLite metadata store's pragmas.
type StoreConfig struct {
	// CacheSizeMB sets SQLite's page cache size (default 64MB). Mirrors
	// SQLiteBM25Index's own cache tuning knob.
	CacheSizeMB int
}

// DefaultStoreConfig returns the default metadata store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CacheSizeMB: 64}
}

// SQLiteStore implements MetadataStore over a SQLite database, using the
// same pure-Go driver and WAL-mode concurrency approach as
// SQLiteBM25Index so a single process can open both the metadata and
// BM25 databases without CGO.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) a metadata store at path
// using the default cache size.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultStoreConfig())
}

// NewSQLiteStoreWithConfig opens a metadata store with a configurable
// cache size. A zero CacheSizeMB falls back to the default.
func NewSQLiteStoreWithConfig(path string, cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = DefaultStoreConfig().CacheSizeMB
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create metadata directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer WAL access, mirrors SQLiteBM25Index

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA cache_size=-%d", cfg.CacheSizeMB*1024),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	root_path    TEXT NOT NULL,
	project_type TEXT NOT NULL DEFAULT '',
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	file_count   INTEGER NOT NULL DEFAULT 0,
	indexed_at   DATETIME NOT NULL,
	version      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS files (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	path         TEXT NOT NULL,
	size         INTEGER NOT NULL DEFAULT 0,
	mod_time     DATETIME NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	indexed_at   DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS files_project_path_idx ON files(project_id, path);
CREATE INDEX IF NOT EXISTS files_project_idx ON files(project_id);

CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	file_id       TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	file_path     TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	raw_content   TEXT NOT NULL DEFAULT '',
	context       TEXT NOT NULL DEFAULT '',
	content_type  TEXT NOT NULL DEFAULT '',
	language      TEXT NOT NULL DEFAULT '',
	start_line    INTEGER NOT NULL DEFAULT 0,
	end_line      INTEGER NOT NULL DEFAULT 0,
	symbols_json  TEXT NOT NULL DEFAULT '[]',
	metadata_json TEXT NOT NULL DEFAULT '{}',
	embedding     BLOB,
	embed_model   TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_file_idx ON chunks(file_id);

CREATE TABLE IF NOT EXISTS kv_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoint (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	stage          TEXT NOT NULL,
	total          INTEGER NOT NULL,
	embedded_count INTEGER NOT NULL,
	timestamp      DATETIME NOT NULL,
	embedder_model TEXT NOT NULL DEFAULT ''
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate metadata schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// --- Project operations ---

func (s *SQLiteStore) SaveProject(ctx context.Context, p *Project) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO projects (id, name, root_path, project_type, chunk_count, file_count, indexed_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, root_path = excluded.root_path, project_type = excluded.project_type,
	chunk_count = excluded.chunk_count, file_count = excluded.file_count,
	indexed_at = excluded.indexed_at, version = excluded.version`,
		p.ID, p.Name, p.RootPath, p.ProjectType, p.ChunkCount, p.FileCount, p.IndexedAt, p.Version)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, root_path, project_type, chunk_count, file_count, indexed_at, version
FROM projects WHERE id = ?`, id)

	p := &Project{}
	err := row.Scan(&p.ID, &p.Name, &p.RootPath, &p.ProjectType, &p.ChunkCount, &p.FileCount, &p.IndexedAt, &p.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) UpdateProjectStats(ctx context.Context, id string, fileCount, chunkCount int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE projects SET file_count = ?, chunk_count = ? WHERE id = ?`, fileCount, chunkCount, id)
	if err != nil {
		return fmt.Errorf("update project stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RefreshProjectStats(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE projects SET
	file_count = (SELECT COUNT(*) FROM files WHERE project_id = ?),
	chunk_count = (SELECT COUNT(*) FROM chunks c JOIN files f ON c.file_id = f.id WHERE f.project_id = ?),
	indexed_at = ?
WHERE id = ?`, id, id, time.Now(), id)
	if err != nil {
		return fmt.Errorf("refresh project stats: %w", err)
	}
	return nil
}

// --- File operations ---

func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save files: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO files (id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	path = excluded.path, size = excluded.size, mod_time = excluded.mod_time,
	content_hash = excluded.content_hash, language = excluded.language,
	content_type = excluded.content_type, indexed_at = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("prepare save files: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.ProjectID, f.Path, f.Size, f.ModTime, f.ContentHash, f.Language, f.ContentType, f.IndexedAt); err != nil {
			return fmt.Errorf("save file %s: %w", f.Path, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetFileByPath(ctx context.Context, projectID, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
FROM files WHERE project_id = ? AND path = ?`, projectID, path)

	f := &File{}
	err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &f.ModTime, &f.ContentHash, &f.Language, &f.ContentType, &f.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file by path: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) GetChangedFiles(ctx context.Context, projectID string, since time.Time) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
FROM files WHERE project_id = ? AND mod_time > ? ORDER BY path`, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("get changed files: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (s *SQLiteStore) ListFiles(ctx context.Context, projectID string, cursor string, limit int) ([]*File, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
FROM files WHERE project_id = ? AND path > ? ORDER BY path LIMIT ?`, projectID, cursor, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files, err := scanFiles(rows)
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(files) > limit {
		nextCursor = files[limit-1].Path
		files = files[:limit]
	}
	return files, nextCursor, nil
}

func scanFiles(rows *sql.Rows) ([]*File, error) {
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &f.ModTime, &f.ContentHash, &f.Language, &f.ContentType, &f.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) GetFilePathsByProject(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get file paths by project: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// GetFilesForReconciliation returns every tracked file for a project
// keyed by path, so a startup scan can diff it against the filesystem.
func (s *SQLiteStore) GetFilesForReconciliation(ctx context.Context, projectID string) (map[string]*File, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get files for reconciliation: %w", err)
	}
	defer rows.Close()

	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*File, len(files))
	for _, f := range files {
		result[f.Path] = f
	}
	return result, nil
}

// ListFilePathsUnder returns every path under dirPrefix (a directory, not
// a pattern), used by subtree-scoped gitignore resync.
func (s *SQLiteStore) ListFilePathsUnder(ctx context.Context, projectID, dirPrefix string) ([]string, error) {
	dirPrefix = strings.TrimSuffix(dirPrefix, "/")
	var rows *sql.Rows
	var err error
	if dirPrefix == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ?`, projectID)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ? AND (path = ? OR path LIKE ?)`,
			projectID, dirPrefix, dirPrefix+"/%")
	}
	if err != nil {
		return nil, fmt.Errorf("list file paths under: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan string: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	// ON DELETE CASCADE drops the file's chunks too (gitignore resync
	// removes both in one call).
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteFilesByProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("delete files by project: %w", err)
	}
	return nil
}

// --- Chunk operations ---

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save chunks: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, file_id, file_path, content, raw_content, context, content_type, language,
	start_line, end_line, symbols_json, metadata_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	file_id = excluded.file_id, file_path = excluded.file_path, content = excluded.content,
	raw_content = excluded.raw_content, context = excluded.context, content_type = excluded.content_type,
	language = excluded.language, start_line = excluded.start_line, end_line = excluded.end_line,
	symbols_json = excluded.symbols_json, metadata_json = excluded.metadata_json,
	updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare save chunks: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		symbolsJSON, err := json.Marshal(c.Symbols)
		if err != nil {
			return fmt.Errorf("marshal symbols for chunk %s: %w", c.ID, err)
		}
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.FileID, c.FilePath, c.Content, c.RawContent, c.Context,
			string(c.ContentType), c.Language, c.StartLine, c.EndLine, symbolsJSON, metaJSON, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelectColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		chunkSelectColumns+fmt.Sprintf(` FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, chunkSelectColumns+` FROM chunks WHERE file_id = ? ORDER BY start_line`, fileID)
	if err != nil {
		return nil, fmt.Errorf("get chunks by file: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("delete chunks by file: %w", err)
	}
	return nil
}

const chunkSelectColumns = `SELECT id, file_id, file_path, content, raw_content, context, content_type, language,
	start_line, end_line, symbols_json, metadata_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	c := &Chunk{}
	var contentType string
	var symbolsJSON, metaJSON string
	if err := row.Scan(&c.ID, &c.FileID, &c.FilePath, &c.Content, &c.RawContent, &c.Context, &contentType, &c.Language,
		&c.StartLine, &c.EndLine, &symbolsJSON, &metaJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	c.ContentType = ContentType(contentType)
	if err := json.Unmarshal([]byte(symbolsJSON), &c.Symbols); err != nil {
		return nil, fmt.Errorf("unmarshal symbols for chunk %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for chunk %s: %w", c.ID, err)
	}
	return c, nil
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// --- Symbol operations ---

// SearchSymbols does a substring match over each chunk's symbol names,
// since symbols are stored as a JSON array rather than a normalized
// table — acceptable for the interactive lookup this method serves, not
// a hot path like vector_search/keyword_search.
func (s *SQLiteStore) SearchSymbols(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT symbols_json FROM chunks WHERE symbols_json LIKE ?`, "%"+name+"%")
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()

	var matches []*Symbol
	for rows.Next() {
		var symbolsJSON string
		if err := rows.Scan(&symbolsJSON); err != nil {
			return nil, fmt.Errorf("scan symbols: %w", err)
		}
		var symbols []*Symbol
		if err := json.Unmarshal([]byte(symbolsJSON), &symbols); err != nil {
			continue
		}
		for _, sym := range symbols {
			if strings.Contains(sym.Name, name) {
				matches = append(matches, sym)
				if len(matches) >= limit {
					return matches, nil
				}
			}
		}
	}
	return matches, rows.Err()
}

// --- State operations ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv_state (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// --- Embedding operations ---

func (s *SQLiteStore) SaveChunkEmbeddings(ctx context.Context, chunkIDs []string, embeddings [][]float32, model string) error {
	if len(chunkIDs) != len(embeddings) {
		return fmt.Errorf("save chunk embeddings: ids/embeddings length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save embeddings: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET embedding = ?, embed_model = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare save embeddings: %w", err)
	}
	defer stmt.Close()

	for i, id := range chunkIDs {
		blob := encodeEmbedding(embeddings[i])
		if _, err := stmt.ExecContext(ctx, blob, model, id); err != nil {
			return fmt.Errorf("save embedding for chunk %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("get all embeddings: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		result[id] = decodeEmbedding(blob)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetEmbeddingStats(ctx context.Context) (withEmbedding, withoutEmbedding int, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*) FILTER (WHERE embedding IS NOT NULL),
	COUNT(*) FILTER (WHERE embedding IS NULL)
FROM chunks`)
	if err := row.Scan(&withEmbedding, &withoutEmbedding); err != nil {
		return 0, 0, fmt.Errorf("get embedding stats: %w", err)
	}
	return withEmbedding, withoutEmbedding, nil
}

// encodeEmbedding/decodeEmbedding pack a []float32 into a little-endian
// byte blob, avoiding a dependency on encoding/gob for a fixed-width
// numeric array that is write-once, read-many.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// --- Checkpoint operations ---

func (s *SQLiteStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkpoint (id, stage, total, embedded_count, timestamp, embedder_model)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	stage = excluded.stage, total = excluded.total, embedded_count = excluded.embedded_count,
	timestamp = excluded.timestamp, embedder_model = excluded.embedder_model`,
		stage, total, embeddedCount, time.Now(), embedderModel)
	if err != nil {
		return fmt.Errorf("save index checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT stage, total, embedded_count, timestamp, embedder_model FROM checkpoint WHERE id = 1`)
	cp := &IndexCheckpoint{}
	err := row.Scan(&cp.Stage, &cp.Total, &cp.EmbeddedCount, &cp.Timestamp, &cp.EmbedderModel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load index checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLiteStore) ClearIndexCheckpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoint WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("clear index checkpoint: %w", err)
	}
	return nil
}
