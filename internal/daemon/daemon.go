package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the cycle lock.
var ErrLocked = errors.New("another threadwatch cycle is already running")

// Lock guards a lock file so only one process runs cycles at a time.
type Lock struct {
	path string
	lock *flock.Flock
	held atomic.Bool
}

// NewLock returns an unheld lock backed by path.
func NewLock(path string) *Lock {
	return &Lock{path: path, lock: flock.New(path)}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. It returns ErrLocked when another
// process holds it.
func (l *Lock) Acquire() error {
	if l.held.Load() {
		return errors.New("cycle lock already held by this process")
	}
	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure lock directory: %w", err)
		}
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	l.held.Store(true)
	return nil
}

// Held reports whether this Lock currently holds the file.
func (l *Lock) Held() bool {
	return l.held.Load()
}

// Release unlocks the file. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	if !l.held.Load() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.held.Store(false)
	return nil
}
