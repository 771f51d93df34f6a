package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// DefaultDrainTimeout bounds graceful shutdown: how long Stop waits for
// the in-flight request (and, by extension, the job worker's current
// checkpoint) before giving up and closing the listener anyway.
const DefaultDrainTimeout = 30 * time.Second

// Config configures one Instance.
type Config struct {
	ProjectRoot  string
	StateDir     string // e.g. ".agent-brain", relative to ProjectRoot
	Mode         Mode
	Port         int // 0 lets the OS assign a free port
	DrainTimeout time.Duration
}

// Instance owns one project's running HTTP server: the acquired lock,
// the bound listener, and the published runtime file. Start performs the
// full §4.J startup sequence; Stop performs graceful shutdown.
type Instance struct {
	cfg      Config
	lock     *Lock
	listener net.Listener
	server   *http.Server
	info     RuntimeInfo
}

// Start resolves the project root's lock, binds the listener, writes the
// runtime file, and begins serving handler in the background. It returns
// once the listener is bound and the runtime file is published — callers
// that need to block until shutdown should call Wait.
func Start(cfg Config, handler http.Handler) (*Instance, error) {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	lock, err := Acquire(cfg.ProjectRoot, cfg.StateDir)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("bind listener: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	info := RuntimeInfo{
		SchemaVersion: runtimeSchemaVersion,
		Mode:          cfg.Mode,
		ProjectRoot:   cfg.ProjectRoot,
		InstanceID:    newInstanceID(),
		BaseURL:       baseURL,
		Port:          port,
		PID:           os.Getpid(),
		StartedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	if err := writeRuntimeFile(runtimeFilePath(cfg.ProjectRoot, cfg.StateDir), info); err != nil {
		listener.Close()
		lock.Release()
		return nil, fmt.Errorf("write runtime file: %w", err)
	}

	srv := &http.Server{Handler: handler}

	inst := &Instance{cfg: cfg, lock: lock, listener: listener, server: srv, info: info}

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("instance server stopped unexpectedly", slog.Any("error", err))
		}
	}()

	slog.Info("instance started", slog.String("base_url", baseURL), slog.Int("pid", info.PID))

	return inst, nil
}

// Info returns the published runtime information for this instance.
func (i *Instance) Info() RuntimeInfo {
	return i.info
}

// Stop performs graceful shutdown: stop accepting new connections, wait
// up to DrainTimeout for in-flight requests to finish, then delete the
// runtime and lock files regardless of whether the drain completed in
// time (a crash or SIGKILL is the only path that leaves them behind).
func (i *Instance) Stop(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, i.cfg.DrainTimeout)
	defer cancel()

	shutdownErr := i.server.Shutdown(drainCtx)

	if err := removeRuntimeFile(runtimeFilePath(i.cfg.ProjectRoot, i.cfg.StateDir)); err != nil {
		slog.Warn("failed to remove runtime file on shutdown", slog.Any("error", err))
	}
	if err := i.lock.Release(); err != nil {
		slog.Warn("failed to release instance lock on shutdown", slog.Any("error", err))
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown did not complete within drain timeout: %w", shutdownErr)
	}
	return nil
}
