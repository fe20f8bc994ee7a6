// Package watchqueue implements the background auto-snapshot watcher
// (spec.md §5): a debounced fsnotify watch over the working-copy tree
// that triggers a snapshot after a quiet period. Grounded on the
// teacher's cmd/bd/daemon_watcher.go FileWatcher (fsnotify.Watcher plus
// a debouncer, with a polling-mode fallback when fsnotify.NewWatcher
// fails), generalized from watching one JSONL file to watching an
// entire working-copy tree.
package watchqueue

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/untoldecay/jjg/internal/jjgerr"
)

// DefaultDebounce is the quiet period before a batch of filesystem
// events triggers a snapshot (spec.md §5 default).
const DefaultDebounce = 1 * time.Second

// Queue watches a directory tree and calls OnChange, debounced, after a
// quiet period following the last observed event.
type Queue struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	root     string

	mu      sync.Mutex
	timer   *time.Timer
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pollDir bool
}

// New creates a Queue rooted at root with the given debounce period (0
// uses DefaultDebounce). onChange is invoked from the watch goroutine
// after the debounce period elapses with no further events.
func New(root string, debounce time.Duration, onChange func()) (*Queue, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, jjgerr.Wrap(jjgerr.KindWatchNotSupported, "create filesystem watcher", err)
	}
	q := &Queue{watcher: w, debounce: debounce, root: root}
	if err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil //nolint:nilerr // best-effort: unreadable subtrees are simply not watched
		}
		if d.Name() == ".jjg" {
			return filepath.SkipDir
		}
		return w.Add(path)
	}); err != nil {
		_ = w.Close()
		return nil, jjgerr.Wrap(jjgerr.KindWatchNotSupported, "walk working-copy tree", err)
	}
	q.start(onChange)
	return q, nil
}

func (q *Queue) start(onChange func()) {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case event, ok := <-q.watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) == ".jjg" {
					continue
				}
				q.trigger(onChange)
			case _, ok := <-q.watcher.Errors:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// trigger (re)starts the debounce timer; onChange fires once no further
// event arrives within the debounce window.
func (q *Queue) trigger(onChange func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.debounce, onChange)
}

// Close stops watching and releases the underlying fsnotify handle.
func (q *Queue) Close() error {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()
	return q.watcher.Close()
}
