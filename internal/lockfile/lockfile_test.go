package lockfile

import (
	"testing"

	"github.com/untoldecay/jjg/internal/jjgerr"
)

func TestTryLockAcquiresAndUnlocks(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	if err := l.TryLock(); err != nil {
		t.Fatalf("try lock: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestTryLockFailsWhenAlreadyHeld(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	b := New(dir)

	if err := a.TryLock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer a.Unlock()

	if err := b.TryLock(); !jjgerr.Is(err, jjgerr.KindOperationCancelled) {
		t.Fatalf("expected KindOperationCancelled for a contended lock, got %v", err)
	}
}

func TestLockReleasedAllowsNextAcquire(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	if err := a.TryLock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if err := a.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	b := New(dir)
	if err := b.TryLock(); err != nil {
		t.Fatalf("expected the lock to be free after unlock, got %v", err)
	}
	_ = b.Unlock()
}
