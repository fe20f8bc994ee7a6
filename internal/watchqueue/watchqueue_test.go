package watchqueue

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestQueueTriggersOnChangeAfterDebounce(t *testing.T) {
	root := t.TempDir()
	fired := make(chan struct{}, 1)

	q, err := New(root, 30*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer q.Close()

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected onChange to fire within the debounce window")
	}
}

func TestQueueIgnoresDotJjgSubtree(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".jjg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fired := make(chan struct{}, 1)
	q, err := New(root, 30*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer q.Close()

	if err := os.WriteFile(filepath.Join(root, ".jjg", "internal.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-fired:
		t.Fatalf("did not expect .jjg writes to trigger onChange")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseStopsWatching(t *testing.T) {
	root := t.TempDir()
	q, err := New(root, 30*time.Millisecond, func() {})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
