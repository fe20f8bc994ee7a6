package repo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/untoldecay/jjg/internal/conflict"
	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// Merge creates a new change with two or more parents, three-way
// merging their file-snapshots against their nearest common ancestor
// and routing any per-path disagreement through the Merge Driver
// Registry (spec.md §4.5). Additional parents beyond the first two are
// folded in sequentially, each against the running merge result.
func (r *Repo) Merge(ctx context.Context, parentIDs []string, description string, author types.Signature) (types.Change, error) {
	var result types.Change
	_, err := r.runMutation("merge", map[string]any{"parents": parentIDs, "description": description}, func() error {
		if len(parentIDs) < 2 {
			return jjgerr.New(jjgerr.KindInvalidArgument, "merge requires at least two parents")
		}
		resolved := make([]string, len(parentIDs))
		for i, p := range parentIDs {
			id, err := r.resolveChangeID(p)
			if err != nil {
				return err
			}
			resolved[i] = id
		}

		merged := r.Graph.Get(resolved[0]).FileSnapshot
		for i := 1; i < len(resolved); i++ {
			base := r.commonAncestorID(resolved[i-1], resolved[i])
			var baseSnapshot map[string][]byte
			if base != "" {
				baseSnapshot = r.Graph.Get(base).FileSnapshot
			}
			var err error
			merged, err = r.mergeTrees(ctx, baseSnapshot, merged, r.Graph.Get(resolved[i]).FileSnapshot)
			if err != nil {
				return err
			}
		}

		c := types.Change{
			ChangeID:     newChangeID(),
			CommitID:     types.ZeroCommitID,
			Parents:      resolved,
			Author:       author,
			Committer:    author,
			Description:  description,
			Timestamp:    r.Now(),
			FileSnapshot: merged,
		}
		if err := r.Graph.Add(c); err != nil {
			return err
		}
		synced, err := r.sync.OnAdd(ctx, c)
		if err != nil {
			return err
		}
		if err := r.Graph.Update(synced); err != nil {
			return err
		}
		r.WC.State.ChangeID = synced.ChangeID
		result = synced
		return nil
	})
	return result, err
}

// commonAncestorID does a BFS outward from b over parents, returning
// the first change also found among a's ancestors (spec.md §4.4's
// common_ancestor() semantics, reused here for merge bases).
func (r *Repo) commonAncestorID(a, b string) string {
	ancA := map[string]bool{}
	for _, id := range r.Graph.Ancestors(a) {
		ancA[id] = true
	}
	seen := map[string]bool{}
	queue := []string{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if ancA[cur] {
			return cur
		}
		queue = append(queue, r.Graph.Parents(cur)...)
	}
	return ""
}

// mergeTrees three-way merges two file-snapshots against a base,
// path by path, recording a first-class Conflict for every path the
// Merge Driver Registry could not resolve cleanly.
func (r *Repo) mergeTrees(ctx context.Context, base, left, right map[string][]byte) (map[string][]byte, error) {
	out := map[string][]byte{}
	paths := map[string]bool{}
	for p := range base {
		paths[p] = true
	}
	for p := range left {
		paths[p] = true
	}
	for p := range right {
		paths[p] = true
	}
	for path := range paths {
		b, hasBase := base[path]
		l, hasLeft := left[path]
		rr, hasRight := right[path]

		resolved, c, ok := conflict.Detect(conflict.ThreeWayInput{
			Path: path, Base: b, Left: l, Right: rr,
			HasBase: hasBase, HasLeft: hasLeft, HasRight: hasRight,
		})
		if ok {
			if resolved != nil {
				out[path] = resolved
			}
			continue
		}

		res := r.Drivers.Merge(ctx, path, b, l, rr, nil)
		if !res.HasConflict && !res.DriverFailed {
			out[path] = res.Content
			continue
		}

		id := newChangeID()
		if err := r.Conflicts.Add(id, *c); err != nil {
			return nil, err
		}
		out[path] = res.Content // conflict markers (or driver's partial output)
	}
	return out, nil
}

// ResolveConflict applies a resolution carrying the already-computed
// content (from conflict.ResolveBySide / ResolveByContent / ApplyStrategy)
// to an unresolved conflict, writing it onto the working copy.
func (r *Repo) ResolveConflict(conflictID string, content []byte, resolution types.Resolution) error {
	resolution.Content = content
	_, err := r.runMutation("resolve-conflict", map[string]any{"conflictId": conflictID}, func() error {
		c, ok := r.Conflicts.Get(conflictID)
		if !ok {
			return jjgerr.New(jjgerr.KindConflictNotFound, "conflict not found: "+conflictID)
		}
		if err := r.Conflicts.Resolve(conflictID, resolution); err != nil {
			return err
		}
		return r.writeResolvedContent(c.Path, content)
	})
	return err
}

func (r *Repo) writeResolvedContent(path string, content []byte) error {
	full := filepath.Join(r.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return jjgerr.Wrap(jjgerr.KindDirectoryCreateFailed, "create parent dir for "+path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil { // #nosec G304
		return jjgerr.Wrap(jjgerr.KindFileRestoreFailed, "write "+path, err)
	}
	return r.WC.Track(path)
}
