// Package workingcopy implements the per-workspace file-state tracker
// (spec.md §4.6): track/untrack, modification detection, and restoring a
// file tree from a change's snapshot. Grounded on the teacher's
// internal/git/worktree.go checkout bookkeeping, generalized from git
// worktrees to the engine's own file-snapshot restoration.
package workingcopy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// Tracker wraps a WorkingCopyState and the repository root it tracks.
type Tracker struct {
	Root  string
	State types.WorkingCopyState
}

// New returns a tracker with an empty file-state index.
func New(root, workspaceID string) *Tracker {
	return &Tracker{
		Root: root,
		State: types.WorkingCopyState{
			Version:     types.SchemaVersion,
			WorkspaceID: workspaceID,
			FileStates:  make(map[string]types.FileState),
		},
	}
}

// Track records the current on-disk state for path.
func (t *Tracker) Track(path string) error {
	st, err := t.stat(path)
	if err != nil {
		return err
	}
	t.State.FileStates[path] = st
	return nil
}

// Untrack removes path from the index.
func (t *Tracker) Untrack(path string) {
	delete(t.State.FileStates, path)
}

func (t *Tracker) stat(path string) (types.FileState, error) {
	full := filepath.Join(t.Root, path)
	info, err := os.Stat(full)
	if err != nil {
		return types.FileState{}, jjgerr.Wrap(jjgerr.KindTreeReadFailed, "stat "+path, err)
	}
	return types.FileState{
		Mtime: info.ModTime(),
		Size:  info.Size(),
		Mode:  uint32(info.Mode().Perm()),
	}, nil
}

// ModifiedFiles returns tracked paths whose on-disk mtime or size differ
// from the recorded state, or whose file has been deleted.
func (t *Tracker) ModifiedFiles() []string {
	var out []string
	for path, recorded := range t.State.FileStates {
		full := filepath.Join(t.Root, path)
		info, err := os.Stat(full)
		if err != nil {
			out = append(out, path) // deleted (or otherwise unreadable)
			continue
		}
		if info.Size() != recorded.Size || !info.ModTime().Equal(recorded.Mtime) {
			out = append(out, path)
		}
	}
	return out
}

// RestoreFrom writes every entry of a change's file-snapshot to disk,
// creating intermediate directories, and updates tracking to match.
func (t *Tracker) RestoreFrom(c *types.Change) error {
	for path, content := range c.FileSnapshot {
		full := filepath.Join(t.Root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return jjgerr.Wrap(jjgerr.KindDirectoryCreateFailed, "create parent dir for "+path, err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil { // #nosec G304
			return jjgerr.Wrap(jjgerr.KindFileRestoreFailed, "write "+path, err)
		}
		if err := t.Track(path); err != nil {
			return err
		}
	}
	// Paths tracked previously but absent from the new snapshot are
	// removed from disk and untracked.
	for path := range t.State.FileStates {
		if _, ok := c.FileSnapshot[path]; ok {
			continue
		}
		full := filepath.Join(t.Root, path)
		_ = os.Remove(full)
		t.Untrack(path)
	}
	t.State.ChangeID = c.ChangeID
	return nil
}

// MatchesSparse reports whether path is included under the tracker's
// sparse patterns: empty list means full checkout; otherwise true if any
// pattern matches (spec.md §4.6 glob semantics).
func (t *Tracker) MatchesSparse(path string) bool {
	return MatchesSparse(t.State.SparsePatterns, path)
}

// MatchesSparse is the standalone glob-matching primitive so revset/
// mergedriver callers can reuse it without a Tracker.
func MatchesSparse(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return true
	}
	path = filepath.ToSlash(path)
	for _, p := range patterns {
		if globMatch(p, path) {
			return true
		}
	}
	return false
}

// globMatch implements '*' (within a segment), '**' (across segments),
// '?' (one non-separator character), and directory-prefix patterns
// ending in '/' (match any descendant).
func globMatch(pattern, path string) bool {
	pattern = filepath.ToSlash(pattern)
	if strings.HasSuffix(pattern, "/") {
		prefix := strings.TrimSuffix(pattern, "/")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	if strings.Contains(pattern, "**") {
		idx := strings.Index(pattern, "**")
		prefix := strings.TrimSuffix(pattern[:idx], "/")
		suffix := strings.TrimPrefix(pattern[idx+2:], "/")
		if prefix != "" && path != prefix && !strings.HasPrefix(path, prefix+"/") {
			return false
		}
		if suffix == "" {
			return true
		}
		return segmentGlobMatch(suffix, path)
	}
	pparts := strings.Split(pattern, "/")
	sparts := strings.Split(path, "/")
	if len(pparts) != len(sparts) {
		return false
	}
	for i := range pparts {
		if !segmentMatch(pparts[i], sparts[i]) {
			return false
		}
	}
	return true
}

func segmentGlobMatch(pattern, s string) bool {
	pparts := strings.Split(pattern, "/")
	sparts := strings.Split(s, "/")
	if len(pparts) > len(sparts) {
		return false
	}
	tail := sparts[len(sparts)-len(pparts):]
	for i := range pparts {
		if !segmentMatch(pparts[i], tail[i]) {
			return false
		}
	}
	return true
}

func segmentMatch(pattern, s string) bool {
	// '?' matches exactly one non-separator rune; '*' matches a run of
	// zero or more non-separator runes.
	pr := []rune(pattern)
	sr := []rune(s)
	return matchRunes(pr, sr)
}

func matchRunes(p, s []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if matchRunes(p[1:], s[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return matchRunes(p[1:], s[1:])
	default:
		if len(s) == 0 || p[0] != s[0] {
			return false
		}
		return matchRunes(p[1:], s[1:])
	}
}
