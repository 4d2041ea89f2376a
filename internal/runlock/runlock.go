// Package runlock makes sure only one runner drives a shared application
// instance at a time.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"labrunner/pkg/logging"

	"github.com/gofrs/flock"
)

const retryDelay = 100 * time.Millisecond

// ErrLocked is returned when another runner holds the lock past the timeout.
var ErrLocked = errors.New("another run holds the lock")

// Lock is a held run lock.
type Lock struct {
	fileLock *flock.Flock
}

// DefaultPath is the lock file shared by runners on this machine.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "labrunner.lock")
}

// Acquire takes the exclusive lock at path, retrying until timeout elapses.
// A zero timeout tries exactly once.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fileLock := flock.New(path)
	if timeout <= 0 {
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return &Lock{fileLock: fileLock}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, retryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lockCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %s (waited %v)", ErrLocked, path, timeout)
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s (waited %v)", ErrLocked, path, timeout)
	}

	logging.Debug("RunLock", "Acquired %s", path)
	return &Lock{fileLock: fileLock}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fileLock.Path()
}

// Release drops the lock.
func (l *Lock) Release() error {
	if err := l.fileLock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.fileLock.Path(), err)
	}
	logging.Debug("RunLock", "Released %s", l.fileLock.Path())
	return nil
}
