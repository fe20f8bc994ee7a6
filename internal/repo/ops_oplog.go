package repo

import (
	"os"
	"path/filepath"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// applyView restores bookmarks, the working-copy pointer, the conflict
// set, and every file captured in an OperationView's FileSnapshot,
// deleting any currently-tracked path the view does not mention — the
// shared restoration logic behind Undo and RestoreOperation.
func (r *Repo) applyView(view types.OperationView) error {
	r.Bookmarks.Local = cloneStringMap(view.LocalBookmarks)
	r.Bookmarks.Remote = cloneRemoteMap(view.RemoteBookmarks)
	r.WC.State.ChangeID = view.WorkingCopy

	r.Conflicts.Conflicts = make(map[string]types.Conflict, len(view.ConflictsSnapshot))
	r.Conflicts.FileConflicts = make(map[string]string)
	for id, c := range view.ConflictsSnapshot {
		r.Conflicts.Conflicts[id] = c
		if !c.Resolved {
			r.Conflicts.FileConflicts[c.Path] = id
		}
	}

	for path := range r.WC.State.FileStates {
		if _, ok := view.FileSnapshot[path]; !ok {
			_ = os.Remove(filepath.Join(r.root, path))
			r.WC.Untrack(path)
		}
	}
	for path, data := range view.FileSnapshot {
		full := filepath.Join(r.root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return jjgerr.Wrap(jjgerr.KindDirectoryCreateFailed, "create parent dir for "+path, err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil { // #nosec G304
			return jjgerr.Wrap(jjgerr.KindFileRestoreFailed, "write "+path, err)
		}
		if err := r.WC.Track(path); err != nil {
			return err
		}
	}
	return nil
}

// Undo reverts the repository to the state recorded before the most
// recent operation (spec.md §4.3). Undo is itself recorded as a new
// operation, so it can in turn be undone.
func (r *Repo) Undo() (types.Operation, error) {
	return r.runMutation("undo", nil, func() error {
		view, err := r.Oplog.Undo()
		if err != nil {
			return err
		}
		return r.applyView(view)
	})
}

// RestoreOperation jumps the repository to the view recorded by a past
// operation (spec.md §4.3's "snapshot-at").
func (r *Repo) RestoreOperation(opID string) (types.Operation, error) {
	return r.runMutation("snapshot-at", map[string]any{"operationId": opID}, func() error {
		view, err := r.Oplog.SnapshotAt(opID)
		if err != nil {
			return err
		}
		return r.applyView(view)
	})
}

// AbandonOperation removes a past operation record and relinks its
// children to its parent (spec.md §4.3). Unlike the other mutations,
// this rewrites the oplog file wholesale rather than appending, since
// the log itself has shrunk.
func (r *Repo) AbandonOperation(opID string) error {
	unlock, err := r.store.Lock()
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	if err := r.events.FirePre("abandon-operation", map[string]any{"operationId": opID}); err != nil {
		return err
	}
	if err := r.Oplog.Abandon(opID); err != nil {
		return err
	}
	if err := r.store.WriteLines(fileOplog, r.Oplog.Lines()); err != nil {
		return err
	}
	r.events.FirePost("abandon-operation", map[string]any{"operationId": opID})
	return nil
}
