// Package lockfile provides the repo-wide advisory lock used around
// mutating operation-pipeline runs (spec.md §5: "at most one mutating
// operation executes at a time per repository"). Grounded on the
// teacher's cmd/bd/sync.go ".sync.lock" flock.New/TryLock/Unlock idiom,
// generalized from a sync-only lock to every mutation.
package lockfile

import (
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/untoldecay/jjg/internal/jjgerr"
)

// Name is the lock file's name within <repo>/.jjg/.
const Name = "lock"

// Lock wraps a gofrs/flock file lock scoped to one repository root.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock for the given repo root (typically <repo>/.jjg).
func New(jjgDir string) *Lock {
	return &Lock{fl: flock.New(filepath.Join(jjgDir, Name))}
}

// TryLock acquires the lock without blocking. It reports KindOperationCancelled
// when another operation already holds it, per spec.md §5's single-writer rule.
func (l *Lock) TryLock() error {
	locked, err := l.fl.TryLock()
	if err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "acquiring repository lock", err)
	}
	if !locked {
		return jjgerr.New(jjgerr.KindOperationCancelled, "another operation is already in progress on this repository")
	}
	return nil
}

// Lock blocks until the lock is acquired.
func (l *Lock) Lock() error {
	if err := l.fl.Lock(); err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "acquiring repository lock", err)
	}
	return nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	return l.fl.Unlock()
}
