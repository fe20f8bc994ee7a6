// Package sync implements the Backend Sync Middleware (spec.md §4.8):
// it wraps Change Graph mutations with on-add/on-update hooks that
// synthesize real commits via a backend.CommitStore, resolving parent
// change-ids to their backend commit-ids and writing the resulting
// commit-id back onto the change without recursing into the hook
// again. Grounded on the teacher's internal/syncbranch package's role
// as an intermediary between local state and an external git remote,
// generalized from branch sync to per-change commit synthesis.
package sync

import (
	"context"

	"github.com/untoldecay/jjg/backend"
	"github.com/untoldecay/jjg/internal/graph"
	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// Middleware binds a Change Graph to an optional backend.CommitStore.
// When Store is nil, hooks are no-ops (spec.md: "if a backend is
// bound").
type Middleware struct {
	Graph *graph.Graph
	Store backend.CommitStore
}

// OnAdd runs the five-step sequence of spec.md §4.8 after a change has
// been added to the graph, returning the change with CommitID populated
// if a backend is attached (otherwise c is returned unchanged).
func (m *Middleware) OnAdd(ctx context.Context, c types.Change) (types.Change, error) {
	return m.sync(ctx, c)
}

// OnUpdate runs the same sequence after a change's content changed
// (describe/amend/split/squash), since its commit-id must be
// resynthesized from the new content.
func (m *Middleware) OnUpdate(ctx context.Context, c types.Change) (types.Change, error) {
	return m.sync(ctx, c)
}

func (m *Middleware) sync(ctx context.Context, c types.Change) (types.Change, error) {
	if m.Store == nil {
		return c, nil
	}

	parentCommitIDs := make([]string, 0, len(c.Parents))
	for _, pid := range c.Parents {
		parent := m.Graph.Get(pid)
		if parent == nil {
			continue
		}
		if parent.CommitID == "" || parent.CommitID == types.ZeroCommitID {
			continue // step 2: skip zero sentinels
		}
		parentCommitIDs = append(parentCommitIDs, parent.CommitID)
	}

	if err := m.Store.StageAll(ctx); err != nil {
		return c, jjgerr.Wrap(jjgerr.KindBackendSyncFailed, "stage working tree", err)
	}

	commitID, err := m.Store.CreateCommit(ctx, backend.CommitRequest{
		Message:   c.Description,
		Author:    backend.Signature{Name: c.Author.Name, Email: c.Author.Email},
		Committer: backend.Signature{Name: c.Committer.Name, Email: c.Committer.Email},
		Parents:   parentCommitIDs,
	})
	if err != nil {
		return c, jjgerr.Wrap(jjgerr.KindBackendSyncFailed, "synthesize commit for change "+c.ChangeID, err)
	}

	// Step 4: write the new commit-id directly onto the change record.
	// The caller (repo facade) persists this via graph.Update, which does
	// not re-invoke OnAdd/OnUpdate, so there is no recursion.
	c.CommitID = commitID
	return c, nil
}
