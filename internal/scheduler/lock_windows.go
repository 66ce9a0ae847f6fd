//go:build windows

package scheduler

import (
	"errors"
	"os"
	"path/filepath"
)

// FileLock keeps multiple gateway processes from running the same
// schedule. Windows has no flock, so ownership is an exclusive create
// of the lock file. A crashed holder leaves the file behind and the
// lock must be removed by hand.
type FileLock struct {
	path   string
	locked bool
}

// NewFileLock creates a lock on the given path. Nothing is acquired
// until TryLock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock acquires the lock without blocking. Returns false with a nil
// error when the lock file already exists.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(l.path)
		return false, err
	}
	l.locked = true
	return true, nil
}

// Unlock releases the lock and removes the file. Safe to call when the
// lock was never acquired.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
