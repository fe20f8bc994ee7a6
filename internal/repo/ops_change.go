package repo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// New creates a change with the given parents (defaulting to the
// current working-copy change when parents is empty) and moves the
// working copy onto it (spec.md §4.1, "new").
func (r *Repo) New(ctx context.Context, parents []string, description string, author types.Signature) (types.Change, error) {
	var result types.Change
	_, err := r.runMutation("new", map[string]any{"parents": parents, "description": description}, func() error {
		ps := parents
		if len(ps) == 0 {
			ps = []string{r.WC.State.ChangeID}
		}
		for i, p := range ps {
			resolved, err := r.resolveChangeID(p)
			if err != nil {
				return err
			}
			ps[i] = resolved
		}

		c := types.Change{
			ChangeID:    newChangeID(),
			CommitID:    types.ZeroCommitID,
			Parents:     ps,
			Author:      author,
			Committer:   author,
			Description: description,
			Timestamp:   r.Now(),
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

// Describe sets a change's description and captures the current
// working-copy tree as its file-snapshot (spec.md §4.1, "describe").
func (r *Repo) Describe(ctx context.Context, changeID, message string) (types.Change, error) {
	var result types.Change
	_, err := r.runMutation("describe", map[string]any{"changeId": changeID, "message": message}, func() error {
		id, err := r.resolveChangeID(changeID)
		if err != nil {
			return err
		}
		c := *r.Graph.Get(id)
		c.Description = message
		snapshot, err := r.materializeWorkingTree()
		if err != nil {
			return err
		}
		c.FileSnapshot = snapshot
		c.Timestamp = r.Now()
		return r.updateAndResync(ctx, c, &result)
	})
	return result, err
}

// Amend folds the current working-copy tree into an existing change
// without altering its description (spec.md §4.1, "amend"). The
// change-id is preserved; only its commit-id (and, transitively, its
// descendants' commit-ids) are regenerated.
func (r *Repo) Amend(ctx context.Context, changeID string) (types.Change, error) {
	var result types.Change
	_, err := r.runMutation("amend", map[string]any{"changeId": changeID}, func() error {
		id, err := r.resolveChangeID(changeID)
		if err != nil {
			return err
		}
		c := *r.Graph.Get(id)
		snapshot, err := r.materializeWorkingTree()
		if err != nil {
			return err
		}
		c.FileSnapshot = snapshot
		c.Timestamp = r.Now()
		return r.updateAndResync(ctx, c, &result)
	})
	return result, err
}

// updateAndResync persists c, resyncs it through the backend sync
// middleware, and then resyncs every descendant so their commit-ids
// reflect the new parent content (spec.md §9: descendant rebasing is a
// consequence of deterministic commit-id synthesis, not a separate
// change-id rewrite).
func (r *Repo) updateAndResync(ctx context.Context, c types.Change, out *types.Change) error {
	if err := r.Graph.Update(c); err != nil {
		return err
	}
	synced, err := r.sync.OnUpdate(ctx, c)
	if err != nil {
		return err
	}
	if err := r.Graph.Update(synced); err != nil {
		return err
	}
	*out = synced
	return r.resyncDescendants(ctx, synced.ChangeID)
}

// resyncDescendants walks the descendant set in graph.Descendants'
// BFS order (a valid processing order because a node's ancestors are
// always discovered at an earlier or equal BFS depth) and regenerates
// each one's commit-id.
func (r *Repo) resyncDescendants(ctx context.Context, changeID string) error {
	for _, id := range r.Graph.Descendants(changeID) {
		if id == changeID {
			continue
		}
		d := *r.Graph.Get(id)
		synced, err := r.sync.OnUpdate(ctx, d)
		if err != nil {
			return err
		}
		if err := r.Graph.Update(synced); err != nil {
			return err
		}
	}
	return nil
}

// Split divides changeID into two changes: the original change-id is
// kept for the first part (paths in keepPaths) so callers and
// bookmarks that reference it remain valid (spec.md §8: "split
// preserves identity"); a new change-id is created for the remainder,
// as a child of the first, and the original's children are re-parented
// onto it.
func (r *Repo) Split(ctx context.Context, changeID string, keepPaths []string, firstMsg, secondMsg string) (types.Change, types.Change, error) {
	var first, second types.Change
	_, err := r.runMutation("split", map[string]any{"changeId": changeID, "keepPaths": keepPaths}, func() error {
		id, err := r.resolveChangeID(changeID)
		if err != nil {
			return err
		}
		orig := *r.Graph.Get(id)
		keep := map[string]bool{}
		for _, p := range keepPaths {
			keep[p] = true
		}
		keptSnapshot := map[string][]byte{}
		restSnapshot := map[string][]byte{}
		for path, data := range orig.FileSnapshot {
			if keep[path] {
				keptSnapshot[path] = data
			} else {
				restSnapshot[path] = data
			}
		}

		children := r.Graph.Children(id)

		orig.FileSnapshot = keptSnapshot
		orig.Description = firstMsg
		orig.Timestamp = r.Now()
		if err := r.updateAndResync(ctx, orig, &first); err != nil {
			return err
		}

		second = types.Change{
			ChangeID:     newChangeID(),
			CommitID:     types.ZeroCommitID,
			Parents:      []string{first.ChangeID},
			Author:       orig.Author,
			Committer:    orig.Committer,
			Description:  secondMsg,
			Timestamp:    r.Now(),
			FileSnapshot: restSnapshot,
		}
		if err := r.Graph.Add(second); err != nil {
			return err
		}
		synced, err := r.sync.OnAdd(ctx, second)
		if err != nil {
			return err
		}
		if err := r.Graph.Update(synced); err != nil {
			return err
		}
		second = synced

		for _, childID := range children {
			child := *r.Graph.Get(childID)
			child.Parents = replaceParent(child.Parents, id, second.ChangeID)
			if err := r.updateAndResync(ctx, child, &child); err != nil {
				return err
			}
		}
		if r.WC.State.ChangeID == id {
			r.WC.State.ChangeID = second.ChangeID
		}
		return nil
	})
	return first, second, err
}

func replaceParent(parents []string, old, new string) []string {
	out := make([]string, len(parents))
	for i, p := range parents {
		if p == old {
			out[i] = new
		} else {
			out[i] = p
		}
	}
	return out
}

// Squash folds changeID into its single parent, preserving the
// parent's change-id identity: the parent's file-snapshot becomes the
// union of its own content and changeID's (changeID's content wins on
// overlapping paths), changeID is marked abandoned, and changeID's own
// children are re-parented onto the parent.
func (r *Repo) Squash(ctx context.Context, changeID, combinedMessage string) (types.Change, error) {
	var result types.Change
	_, err := r.runMutation("squash", map[string]any{"changeId": changeID}, func() error {
		id, err := r.resolveChangeID(changeID)
		if err != nil {
			return err
		}
		c := *r.Graph.Get(id)
		if len(c.Parents) != 1 {
			return jjgerr.New(jjgerr.KindInvalidArgument, "squash requires exactly one parent").WithContext("changeId", id)
		}
		parentID := c.Parents[0]
		parent := *r.Graph.Get(parentID)

		merged := map[string][]byte{}
		for k, v := range parent.FileSnapshot {
			merged[k] = v
		}
		for k, v := range c.FileSnapshot {
			merged[k] = v
		}
		parent.FileSnapshot = merged
		parent.Description = combinedMessage
		parent.Timestamp = r.Now()
		if err := r.updateAndResync(ctx, parent, &result); err != nil {
			return err
		}

		for _, childID := range r.Graph.Children(id) {
			child := *r.Graph.Get(childID)
			child.Parents = replaceParent(child.Parents, id, parentID)
			if err := r.updateAndResync(ctx, child, &child); err != nil {
				return err
			}
		}

		c.Abandoned = true
		if err := r.Graph.Update(c); err != nil {
			return err
		}
		if r.WC.State.ChangeID == id {
			r.WC.State.ChangeID = parentID
		}
		return nil
	})
	return result, err
}

// Abandon marks changeID abandoned and re-parents its children onto
// its own parents, per spec.md §4.1's "abandon" operation. Re-parenting
// discards changeID's content outright rather than three-way merging it
// against its children's edits: the abandonment is authoritative, the
// same deletion-wins rule the teacher's internal/merge.mergeIssue applies
// when one side of a merge closes an issue the other side edited.
func (r *Repo) Abandon(ctx context.Context, changeID string) error {
	_, err := r.runMutation("abandon", map[string]any{"changeId": changeID}, func() error {
		id, err := r.resolveChangeID(changeID)
		if err != nil {
			return err
		}
		c := *r.Graph.Get(id)
		if c.IsRoot() {
			return jjgerr.New(jjgerr.KindCannotAbandon, "cannot abandon the root change")
		}
		children := r.Graph.Children(id)
		for _, childID := range children {
			child := *r.Graph.Get(childID)
			newParents := make([]string, 0, len(child.Parents)+len(c.Parents)-1)
			for _, p := range child.Parents {
				if p == id {
					newParents = append(newParents, c.Parents...)
				} else {
					newParents = append(newParents, p)
				}
			}
			child.Parents = newParents
			var ignored types.Change
			if err := r.updateAndResync(ctx, child, &ignored); err != nil {
				return err
			}
		}
		c.Abandoned = true
		if err := r.Graph.Update(c); err != nil {
			return err
		}
		if r.WC.State.ChangeID == id {
			if len(c.Parents) > 0 {
				r.WC.State.ChangeID = c.Parents[0]
			}
		}
		return nil
	})
	return err
}

// Restore writes changeID's file-snapshot onto the working-copy tree
// and points the working copy at it (spec.md §4.1, "restore").
func (r *Repo) Restore(_ context.Context, changeID string) error {
	_, err := r.runMutation("restore", map[string]any{"changeId": changeID}, func() error {
		id, err := r.resolveChangeID(changeID)
		if err != nil {
			return err
		}
		c := r.Graph.Get(id)
		return r.WC.RestoreFrom(c)
	})
	return err
}

// Rebase moves changeID onto newParents, refusing to create a cycle.
func (r *Repo) Rebase(ctx context.Context, changeID string, newParents []string) (types.Change, error) {
	var result types.Change
	_, err := r.runMutation("rebase", map[string]any{"changeId": changeID, "newParents": newParents}, func() error {
		id, err := r.resolveChangeID(changeID)
		if err != nil {
			return err
		}
		resolved := make([]string, len(newParents))
		for i, p := range newParents {
			rid, err := r.resolveChangeID(p)
			if err != nil {
				return err
			}
			if r.Graph.WouldCreateCycle(id, rid) {
				return jjgerr.New(jjgerr.KindWouldCreateCycle, "rebasing "+id+" onto "+rid+" would create a cycle")
			}
			resolved[i] = rid
		}
		c := *r.Graph.Get(id)
		c.Parents = resolved
		c.Timestamp = r.Now()
		return r.updateAndResync(ctx, c, &result)
	})
	return result, err
}

// Edit moves the working copy onto changeID and materializes its
// file-snapshot onto disk (spec.md §4.1, "edit").
func (r *Repo) Edit(_ context.Context, changeID string) error {
	_, err := r.runMutation("edit", map[string]any{"changeId": changeID}, func() error {
		id, err := r.resolveChangeID(changeID)
		if err != nil {
			return err
		}
		c := r.Graph.Get(id)
		if err := r.WC.RestoreFrom(c); err != nil {
			return err
		}
		r.WC.State.ChangeID = id
		return nil
	})
	return err
}

// materializeWorkingTree reads every sparse-included file under root
// (skipping .jjg) into a snapshot map, tracking each path it captures.
// Both describe/amend (to set a change's own file-snapshot) and
// runMutation (to record an operation's resulting tree for undo) read
// the working tree through this single path, so "tracked" always means
// "covered by the last snapshot taken" rather than an index nothing
// else populates. Unreadable directory entries are skipped as
// best-effort traversal, but a tracked file that exists and can't be
// read raises SnapshotFailed (spec.md §4.1, §9) rather than being
// silently dropped.
func (r *Repo) materializeWorkingTree() (map[string][]byte, error) {
	out := map[string][]byte{}
	walkErr := filepath.WalkDir(r.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort traversal: unreadable directory entries are simply omitted
		}
		if d.IsDir() {
			if d.Name() == DirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return nil //nolint:nilerr
		}
		rel = filepath.ToSlash(rel)
		if !r.WC.MatchesSparse(rel) {
			return nil
		}
		data, err := os.ReadFile(path) // #nosec G304 -- path is walked from the repo's own working tree
		if err != nil {
			return jjgerr.Wrap(jjgerr.KindSnapshotFailed, "read "+rel, err)
		}
		out[rel] = data
		return r.WC.Track(rel)
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}
