//go:build !windows

package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileLock keeps multiple gateway processes from running the same
// schedule. Backed by flock(2), so a crashed holder releases it
// automatically.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock on the given path. Nothing is acquired
// until TryLock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock acquires the lock without blocking. Returns false with a nil
// error when another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}

	// The pid is informational only; ownership is the flock itself.
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())

	l.file = f
	return true, nil
}

// Unlock releases the lock and removes the file. Safe to call when the
// lock was never acquired.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		l.file = nil
		return err
	}
	name := l.file.Name()
	l.file.Close()
	l.file = nil
	_ = os.Remove(name)
	return nil
}
