// Package filelock serializes mutating access to a target root across
// processes. A run or undo holds the root's lock for its whole duration;
// distinct roots proceed in parallel.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName is the lock file inside the root's state directory.
const lockFileName = "run.lock"

// RootLock guards one target root against concurrent mutation.
type RootLock struct {
	flock *flock.Flock
	path  string
}

// New creates a lock for the given target root. The lock file lives in
// the root's .flatten state directory, which is created if missing.
func New(root string) (*RootLock, error) {
	dir := filepath.Join(root, ".flatten")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	path := filepath.Join(dir, lockFileName)
	return &RootLock{flock: flock.New(path), path: path}, nil
}

// TryLock attempts to acquire the root's exclusive lock without blocking.
// It returns false when another process holds the lock.
func (l *RootLock) TryLock() (bool, error) {
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock on %s: %w", l.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (l *RootLock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock on %s: %w", l.path, err)
	}
	return nil
}
