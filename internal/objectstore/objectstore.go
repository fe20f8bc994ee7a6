// Package objectstore implements the Object Store Adapter (spec.md §2,
// §6): typed JSON/JSONL record I/O under a repository directory with
// atomic-rename durability, an in-memory cache, and a repo-wide advisory
// lock (delegated to internal/lockfile) for the duration of a
// mutate+record sequence, following the same write-then-rename
// discipline the teacher uses at its CLI sync layer (cmd/bd/sync.go's
// use of gofrs/flock) generalized into the storage layer itself.
package objectstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/lockfile"
)

// Store adapts a repository directory for typed record I/O.
type Store struct {
	root string

	mu    sync.RWMutex
	cache map[string][]byte
}

// New returns a Store rooted at dir. dir is created if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, jjgerr.Wrap(jjgerr.KindDirectoryCreateFailed, "create store root", err)
	}
	return &Store{
		root:  dir,
		cache: make(map[string][]byte),
	}, nil
}

// Root returns the repository directory this store is rooted at.
func (s *Store) Root() string { return s.root }

// Lock acquires the repo-wide advisory lock for the duration of a single
// mutate+record sequence (spec.md §5: "the engine assumes it owns the
// repository directory during a call"). The returned func releases it.
func (s *Store) Lock() (func() error, error) {
	l := lockfile.New(s.root)
	if err := l.Lock(); err != nil {
		return nil, err
	}
	return l.Unlock, nil
}

// ReadJSON reads and unmarshals the JSON record at relPath into v.
// Returns a *jjgerr.Error with KindFileNotFound if the file is absent.
func (s *Store) ReadJSON(relPath string, v any) error {
	data, err := s.readFile(relPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageCorrupt, "parse "+relPath, err)
	}
	return nil
}

// WriteJSON marshals v and writes it atomically (write to a temp file in
// the same directory, then rename) so concurrent readers always see a
// whole file, old or new.
func (s *Store) WriteJSON(relPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "marshal "+relPath, err)
	}
	return s.writeAtomic(relPath, data)
}

// ReadLines reads relPath as line-delimited records, invoking decode for
// each non-empty line in order.
func (s *Store) ReadLines(relPath string, decode func(line []byte) error) error {
	full := filepath.Join(s.root, relPath)
	f, err := os.Open(full) // #nosec G304 -- relPath is always an internal store-relative path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return jjgerr.Wrap(jjgerr.KindStorageReadFailed, "open "+relPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := decode(cp); err != nil {
			return jjgerr.Wrap(jjgerr.KindStorageCorrupt, fmt.Sprintf("%s line %d", relPath, lineNum), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageReadFailed, "scan "+relPath, err)
	}
	return nil
}

// AppendLine appends a single line (without trailing newline) to relPath,
// creating it if necessary. Used by the operation log, which must stay
// append-only.
func (s *Store) AppendLine(relPath string, line []byte) error {
	full := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return jjgerr.Wrap(jjgerr.KindDirectoryCreateFailed, "create parent dir for "+relPath, err)
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "open "+relPath+" for append", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "append to "+relPath, err)
	}
	s.cacheInvalidate(relPath)
	return f.Sync()
}

func (s *Store) readFile(relPath string) ([]byte, error) {
	if data, ok := s.cacheGet(relPath); ok {
		return data, nil
	}
	full := filepath.Join(s.root, relPath)
	data, err := os.ReadFile(full) // #nosec G304 -- relPath is always an internal store-relative path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, jjgerr.New(jjgerr.KindFileNotFound, relPath+" not found")
		}
		return nil, jjgerr.Wrap(jjgerr.KindStorageReadFailed, "read "+relPath, err)
	}
	s.cachePut(relPath, data)
	return data, nil
}

func (s *Store) cacheGet(relPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.cache[relPath]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true
}

func (s *Store) cachePut(relPath string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.cache[relPath] = cp
}

// cacheInvalidate drops a cached record so the next read picks up
// whatever AppendLine just appended straight to disk, rather than a
// cached copy that lacks the new line. (WriteLines goes through
// writeAtomic, which refreshes the cache itself.)
func (s *Store) cacheInvalidate(relPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, relPath)
}

// writeAtomic writes data to a temp file beside the destination and
// renames it into place, so readers never observe a partial write.
func (s *Store) writeAtomic(relPath string, data []byte) error {
	full := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return jjgerr.Wrap(jjgerr.KindDirectoryCreateFailed, "create parent dir for "+relPath, err)
	}
	tmp := full + fmt.Sprintf(".tmp.%d", os.Getpid())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) // #nosec G304
	if err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "create temp file for "+relPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "write temp file for "+relPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "fsync temp file for "+relPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "close temp file for "+relPath, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return jjgerr.Wrap(jjgerr.KindFileMoveFailed, "rename into place for "+relPath, err)
	}
	s.cachePut(relPath, data)
	return nil
}

// WithTransaction stages each of the given (relPath, encode) writes to a
// temp file, fsyncs them, then renames every staged file in sequence.
// Multi-file atomicity is NOT promised if a rename mid-sequence fails;
// only single-file atomicity is (spec.md §7: "records are coherent per
// file").
func (s *Store) WithTransaction(writes map[string]any) error {
	type staged struct {
		tmp  string
		full string
	}
	var done []staged
	for relPath, v := range writes {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "marshal "+relPath, err)
		}
		full := filepath.Join(s.root, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return jjgerr.Wrap(jjgerr.KindDirectoryCreateFailed, "create parent dir for "+relPath, err)
		}
		tmp := full + fmt.Sprintf(".tmp.%d", os.Getpid())
		f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) // #nosec G304
		if err != nil {
			return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "stage "+relPath, err)
		}
		_, err = f.Write(data)
		if err == nil {
			err = f.Sync()
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(tmp)
			return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "stage "+relPath, err)
		}
		done = append(done, staged{tmp: tmp, full: full})
	}
	for _, d := range done {
		if err := os.Rename(d.tmp, d.full); err != nil {
			return jjgerr.Wrap(jjgerr.KindFileMoveFailed, "rename "+d.full, err)
		}
	}
	return nil
}

// WriteLines atomically (over)writes relPath with one line per entry,
// newline-terminated. Used by operations that rewrite the operation log
// wholesale (abandon), unlike AppendLine's pure-append path.
func (s *Store) WriteLines(relPath string, lines [][]byte) error {
	var buf []byte
	for _, line := range lines {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return s.writeAtomic(relPath, buf)
}

// Copy writes the raw bytes stored at a relative path to w, for callers
// that need them unparsed (e.g. Open loading the graph record).
func (s *Store) Copy(relPath string, w io.Writer) error {
	data, err := s.readFile(relPath)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
