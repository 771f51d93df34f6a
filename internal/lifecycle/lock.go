package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	agentbrainerrors "github.com/agent-brain/agent-brain/internal/errors"
	"github.com/gofrs/flock"
)

// Lock is the advisory exclusive lock on a project's state directory,
// replacing the teacher's PID-file-only liveness check with a real
// flock-based lock that also records the holder's PID for stale-lock
// eviction.
type Lock struct {
	path string
	fl   *flock.Flock
}

func lockFilePath(projectRoot, stateDir string) string {
	return filepath.Join(projectRoot, stateDir, "instance.lock")
}

// Acquire takes the exclusive lock for projectRoot's state directory. If
// the lock is already held by a live PID whose /health endpoint
// responds, Acquire returns *errors.AmanError(KindAlreadyRunning)
// wrapping the existing runtime info. If held by a dead process, the
// lock is broken (the OS releases it when that process exited, or flock
// simply succeeds once we can re-acquire it) and Acquire proceeds.
func Acquire(projectRoot, stateDir string) (*Lock, error) {
	path := lockFilePath(projectRoot, stateDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		if info, discErr := Discover(projectRoot, stateDir); discErr == nil {
			return nil, agentbrainerrors.AlreadyRunning(info.BaseURL)
		}
		return nil, agentbrainerrors.LockHeld(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("write lock holder PID: %w", err)
	}

	return &Lock{path: path, fl: fl}, nil
}

// Release unlocks and removes the lock file. Safe to call once; a
// process that crashes without calling Release leaves the lock file
// behind, which the next Acquire's flock.TryLock correctly reports as
// unlocked once the OS reclaims the dead process's file locks.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release instance lock: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// processAlive reports whether pid names a live process, using signal 0
// the same way the teacher's daemon.PIDFile.IsRunning does.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
