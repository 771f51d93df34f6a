// Package lifecycle manages one running instance per project: locating
// the project root, acquiring the state-directory lock, binding the HTTP
// listener, and publishing/discovering the runtime file clients use to
// find a live instance without an environment variable handoff.
package lifecycle

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	agentbrainerrors "github.com/agent-brain/agent-brain/internal/errors"
	"github.com/google/uuid"
)

const runtimeSchemaVersion = 1

// Mode distinguishes an embedded-backend instance from a relational one;
// published in the runtime file so clients can tell which storage
// backend answers their queries without a separate round trip.
type Mode string

const (
	ModeEmbedded   Mode = "embedded"
	ModeRelational Mode = "relational"
)

// RuntimeInfo is the JSON shape written to runtime.json and read back by
// client discovery.
type RuntimeInfo struct {
	SchemaVersion int    `json:"schema_version"`
	Mode          Mode   `json:"mode"`
	ProjectRoot   string `json:"project_root"`
	InstanceID    string `json:"instance_id"`
	BaseURL       string `json:"base_url"`
	Port          int    `json:"port"`
	PID           int    `json:"pid"`
	StartedAt     string `json:"started_at"`
}

// runtimeFilePath is {project_root}/{state_dir}/runtime.json.
func runtimeFilePath(projectRoot, stateDir string) string {
	return filepath.Join(projectRoot, stateDir, "runtime.json")
}

// writeRuntimeFile atomically publishes info via write-then-rename, the
// same idiom the embedded vector store uses for its snapshots.
func writeRuntimeFile(path string, info RuntimeInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runtime file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".runtime-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp runtime file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write runtime file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp runtime file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// readRuntimeFile reads back a previously published runtime file. A
// missing file is reported as NotFoundKind, distinct from other I/O
// errors, so discovery callers can treat "no instance" as a normal case.
func readRuntimeFile(path string) (RuntimeInfo, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return RuntimeInfo{}, agentbrainerrors.NotFoundKind("no runtime file for this project")
	}
	if err != nil {
		return RuntimeInfo{}, fmt.Errorf("read runtime file: %w", err)
	}

	var info RuntimeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return RuntimeInfo{}, fmt.Errorf("parse runtime file: %w", err)
	}
	return info, nil
}

// removeRuntimeFile deletes the runtime file; a missing file is not an
// error (already-clean shutdown, or a crash that never wrote one).
func removeRuntimeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove runtime file: %w", err)
	}
	return nil
}

// Discover reads {projectRoot}/{stateDir}/runtime.json and verifies the
// recorded instance is actually alive: the PID exists and its /health
// endpoint responds within healthCheckTimeout. A stale or absent runtime
// file is reported via NotFoundKind so callers can fall through to
// starting a new instance.
func Discover(projectRoot, stateDir string) (RuntimeInfo, error) {
	info, err := readRuntimeFile(runtimeFilePath(projectRoot, stateDir))
	if err != nil {
		return RuntimeInfo{}, err
	}

	if !processAlive(info.PID) {
		return RuntimeInfo{}, agentbrainerrors.NotFoundKind("runtime file refers to a dead process")
	}

	client := &http.Client{Timeout: healthCheckTimeout}
	resp, err := client.Get(info.BaseURL + "/health")
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		return RuntimeInfo{}, agentbrainerrors.NotFoundKind("runtime file's instance is not responding")
	}
	resp.Body.Close()

	return info, nil
}

const healthCheckTimeout = 2 * time.Second

// newInstanceID derives a short, stable-looking identifier for this
// process's lifetime; unlike the project root, it is not reused across
// restarts, so clients can detect "the instance behind this base_url
// changed" even if the port happens to be reused.
func newInstanceID() string {
	return uuid.NewString()
}
