package jobqueue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// compactionThresholdBytes triggers an opportunistic compaction on
// startup when the log has grown past this size.
const compactionThresholdBytes = 8 * 1024 * 1024

// Log is the append-only JSONL job-transition log. One process owns the
// write handle; readers that need a snapshot use ReadAll.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenLog opens (creating if necessary) the job log at path for
// appending, compacting it first if it has grown past the threshold.
func OpenLog(path string) (*Log, error) {
	if info, err := os.Stat(path); err == nil && info.Size() > compactionThresholdBytes {
		if err := compactLog(path); err != nil {
			return nil, fmt.Errorf("compact job log: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create job log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}

	return &Log{path: path, file: f}, nil
}

// Append writes one record, syncing so it survives a crash immediately
// after the call returns.
func (l *Log) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("append job record: %w", err)
	}
	return l.file.Sync()
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReadAll replays every record in the log at path, in append order. A
// missing file yields no records, not an error — first-run behavior.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			// A partial last line from a crash mid-write is expected;
			// stop replay rather than failing the whole log.
			break
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan job log: %w", err)
	}
	return records, nil
}

// compactLog rewrites the log keeping only the latest record per job_id,
// via the same temp-file-then-rename pattern the embedded store uses for
// its snapshots, so a reader never observes a half-written log.
func compactLog(path string) error {
	records, err := ReadAll(path)
	if err != nil {
		return err
	}

	latest := make(map[string]Record, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if _, seen := latest[r.JobID]; !seen {
			order = append(order, r.JobID)
		}
		latest[r.JobID] = r
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jobqueue-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp job log: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, id := range order {
		data, err := json.Marshal(latest[id])
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshal compacted record: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("write compacted record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush compacted log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job log: %w", err)
	}
	return os.Rename(tmpPath, path)
}
