package jobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrWatchInProgress is returned when another process already follows a job.
var ErrWatchInProgress = errors.New("another ispeak process is already watching a job")

// WatchLock serializes live status streams across processes.
type WatchLock struct {
	lock *flock.Flock
	path string
}

// AcquireWatchLock takes the lock at path without blocking.
func AcquireWatchLock(path string) (*WatchLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire watch lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrWatchInProgress, path)
	}
	return &WatchLock{lock: lock, path: path}, nil
}

// Path returns the lock file location.
func (l *WatchLock) Path() string {
	return l.path
}

// Release drops the lock. It is safe on a nil lock.
func (l *WatchLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
