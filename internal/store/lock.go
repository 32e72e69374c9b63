package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/ledger/internal/errs"
)

// DefaultLockWait is how long Acquire waits for a live holder to release.
const DefaultLockWait = 5 * time.Second

const lockPollInterval = 50 * time.Millisecond

// PIDLock is an advisory lock file holding the PID of its owner. A lock whose
// PID no longer names a live process is considered stale and taken over.
type PIDLock struct {
	Path string
	Wait time.Duration
}

// NewPIDLock returns a PIDLock at path with the default wait.
func NewPIDLock(path string) *PIDLock {
	return &PIDLock{Path: path, Wait: DefaultLockWait}
}

// Acquire creates the lock file exclusively, retrying until Wait elapses or
// ctx is done. The returned func releases the lock.
func (l *PIDLock) Acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	deadline := time.Now().Add(l.Wait)
	for {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr = errors.Join(werr, cerr); werr != nil {
				_ = os.Remove(l.Path)
				return nil, fmt.Errorf("write lock file: %w", werr)
			}
			return func() { _ = os.Remove(l.Path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		pid, rerr := l.Read()
		if rerr == nil && !processAlive(pid) {
			// Stale: the holder exited without releasing.
			_ = os.Remove(l.Path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("ledger locked by PID %d (remove %s if the process is not running): %w",
				pid, l.Path, errs.ErrPreconditionFailed)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Holder returns the PID in the lock file and whether that process is alive.
func (l *PIDLock) Holder() (int, bool) {
	pid, err := l.Read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

// Read returns the PID stored in the lock file.
func (l *PIDLock) Read() (int, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid lock file content: %w", err)
	}
	return pid, nil
}
