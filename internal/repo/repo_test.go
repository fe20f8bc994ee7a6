package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/untoldecay/jjg/internal/types"
)

func testUser() types.OperationUser {
	return types.OperationUser{Name: "Alice", Email: "alice@example.com", Hostname: "devbox"}
}

func testSig() types.Signature {
	return types.Signature{Name: "Alice", Email: "alice@example.com"}
}

func openRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	root := t.TempDir()
	r, err := Init(root, testUser())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	return r, root
}

func TestInitSeedsRootChangeAndRejectsDoubleInit(t *testing.T) {
	r, root := openRepo(t)
	if r.Graph.Root() == "" {
		t.Fatalf("expected a root change after Init")
	}
	if _, err := Init(root, testUser()); err == nil {
		t.Fatalf("expected re-initializing an existing repository to fail")
	}
}

func TestOpenRoundTripsPersistedState(t *testing.T) {
	r, root := openRepo(t)
	ctx := context.Background()
	c, err := r.New(ctx, nil, "first change", testSig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	reopened, err := Open(root, testUser())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if reopened.Graph.Get(c.ChangeID) == nil {
		t.Fatalf("expected the new change to survive a reopen")
	}
	if reopened.WC.State.ChangeID != c.ChangeID {
		t.Fatalf("expected the working copy pointer to survive a reopen")
	}
}

func TestOpenMissingRepositoryFails(t *testing.T) {
	if _, err := Open(t.TempDir(), testUser()); err == nil {
		t.Fatalf("expected opening a non-repository directory to fail")
	}
}

func TestNewMovesWorkingCopyOntoChild(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	root := r.WC.State.ChangeID

	c, err := r.New(ctx, nil, "child", testSig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != root {
		t.Fatalf("expected new change to default-parent onto the working copy, got %v", c.Parents)
	}
	if r.WC.State.ChangeID != c.ChangeID {
		t.Fatalf("expected working copy to move onto the new change")
	}
}

func TestDescribeCapturesWorkingTreeSnapshot(t *testing.T) {
	r, root := openRepo(t)
	ctx := context.Background()
	c, _ := r.New(ctx, nil, "wip", testSig())

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	updated, err := r.Describe(ctx, c.ChangeID, "described")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if updated.Description != "described" {
		t.Fatalf("expected description to update, got %q", updated.Description)
	}
	if string(updated.FileSnapshot["a.txt"]) != "hello" {
		t.Fatalf("expected a.txt captured in the snapshot, got %v", updated.FileSnapshot)
	}
}

func TestAmendPreservesChangeIDButStableIdentity(t *testing.T) {
	r, root := openRepo(t)
	ctx := context.Background()
	c, _ := r.New(ctx, nil, "wip", testSig())

	_ = os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1"), 0o644)
	amended, err := r.Amend(ctx, c.ChangeID)
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if amended.ChangeID != c.ChangeID {
		t.Fatalf("expected amend to preserve the change-id, got %s vs %s", amended.ChangeID, c.ChangeID)
	}
}

func TestSplitPreservesOriginalChangeIDForKeptPaths(t *testing.T) {
	r, root := openRepo(t)
	ctx := context.Background()
	c, _ := r.New(ctx, nil, "wip", testSig())
	_ = os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644)
	described, err := r.Describe(ctx, c.ChangeID, "two files")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}

	first, second, err := r.Split(ctx, described.ChangeID, []string{"a.txt"}, "first part", "second part")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if first.ChangeID != described.ChangeID {
		t.Fatalf("expected split to preserve the original change-id for the kept half, got %s", first.ChangeID)
	}
	if _, ok := first.FileSnapshot["b.txt"]; ok {
		t.Fatalf("expected b.txt to move to the second half")
	}
	if second.Parents[0] != first.ChangeID {
		t.Fatalf("expected the second half to parent onto the first")
	}
}

func TestSquashFoldsChildIntoParent(t *testing.T) {
	r, root := openRepo(t)
	ctx := context.Background()
	c, _ := r.New(ctx, nil, "child", testSig())
	_ = os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644)
	if _, err := r.Describe(ctx, c.ChangeID, "has a.txt"); err != nil {
		t.Fatalf("describe: %v", err)
	}

	result, err := r.Squash(ctx, c.ChangeID, "combined")
	if err != nil {
		t.Fatalf("squash: %v", err)
	}
	if result.ChangeID != c.Parents[0] {
		t.Fatalf("expected squash to preserve the parent's change-id")
	}
	if string(result.FileSnapshot["a.txt"]) != "a" {
		t.Fatalf("expected parent's snapshot to absorb a.txt")
	}
	if got := r.Graph.Get(c.ChangeID); !got.Abandoned {
		t.Fatalf("expected the squashed child to be marked abandoned")
	}
}

func TestAbandonReparentsChildrenOntoParents(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	root := r.WC.State.ChangeID
	mid, _ := r.New(ctx, nil, "mid", testSig())
	leaf, err := r.New(ctx, []string{mid.ChangeID}, "leaf", testSig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := r.Abandon(ctx, mid.ChangeID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	reloaded := r.Graph.Get(leaf.ChangeID)
	if len(reloaded.Parents) != 1 || reloaded.Parents[0] != root {
		t.Fatalf("expected leaf to be re-parented onto root after mid is abandoned, got %v", reloaded.Parents)
	}
}

func TestAbandonRootRejected(t *testing.T) {
	r, _ := openRepo(t)
	root := r.WC.State.ChangeID
	if err := r.Abandon(context.Background(), root); err == nil {
		t.Fatalf("expected abandoning the root change to fail")
	}
}

func TestRebaseRefusesCycle(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	a, _ := r.New(ctx, nil, "a", testSig())
	b, err := r.New(ctx, []string{a.ChangeID}, "b", testSig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := r.Rebase(ctx, a.ChangeID, []string{b.ChangeID}); err == nil {
		t.Fatalf("expected rebasing a onto its own descendant b to fail")
	}
}

func TestUndoRestoresPriorWorkingCopy(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	if _, err := r.New(ctx, nil, "mid", testSig()); err != nil {
		t.Fatalf("new: %v", err)
	}
	mid := r.WC.State.ChangeID
	if _, err := r.New(ctx, nil, "leaf", testSig()); err != nil {
		t.Fatalf("new: %v", err)
	}

	// Each operation's recorded view is the state mutate left behind, so
	// undoing the "leaf" new restores the view recorded by "mid"'s new —
	// the working copy as it stood right before "leaf" moved it again.
	if _, err := r.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if r.WC.State.ChangeID != mid {
		t.Fatalf("expected undo to restore the working copy to %s, got %s", mid, r.WC.State.ChangeID)
	}
}

func TestUndoOnFirstOperationIsANoOp(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	if _, err := r.New(ctx, nil, "child", testSig()); err != nil {
		t.Fatalf("new: %v", err)
	}
	child := r.WC.State.ChangeID

	// With nothing recorded before the repository's first operation,
	// undoing it falls back to its own (post-mutation) view: a no-op.
	if _, err := r.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if r.WC.State.ChangeID != child {
		t.Fatalf("expected undoing the first operation to be a no-op, got %s", r.WC.State.ChangeID)
	}
}

func TestBookmarkLifecycle(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	c, _ := r.New(ctx, nil, "target", testSig())

	if err := r.SetBookmark("main", c.ChangeID); err != nil {
		t.Fatalf("set bookmark: %v", err)
	}
	target, ok := r.Bookmarks.Get("main")
	if !ok || target != c.ChangeID {
		t.Fatalf("expected main to point at %s, got %s", c.ChangeID, target)
	}

	if err := r.DeleteBookmark("main"); err != nil {
		t.Fatalf("delete bookmark: %v", err)
	}
	if _, ok := r.Bookmarks.Get("main"); ok {
		t.Fatalf("expected main to be gone after delete")
	}
}

func TestTagLifecycle(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	c, _ := r.New(ctx, nil, "target", testSig())

	if err := r.CreateTag("v1.0.0", c.ChangeID); err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if err := r.DeleteTag("v1.0.0"); err != nil {
		t.Fatalf("delete tag: %v", err)
	}
}

func TestMergeThreeWayWithoutConflict(t *testing.T) {
	r, root := openRepo(t)
	ctx := context.Background()
	base := r.WC.State.ChangeID
	_ = os.WriteFile(filepath.Join(root, "shared.txt"), []byte("base"), 0o644)
	baseChange, err := r.Describe(ctx, base, "base content")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}

	left, _ := r.New(ctx, []string{baseChange.ChangeID}, "left", testSig())
	_ = os.WriteFile(filepath.Join(root, "left.txt"), []byte("left-only"), 0o644)
	leftChange, err := r.Describe(ctx, left.ChangeID, "left adds file")
	if err != nil {
		t.Fatalf("describe left: %v", err)
	}

	if err := r.Edit(ctx, baseChange.ChangeID); err != nil {
		t.Fatalf("edit: %v", err)
	}
	right, _ := r.New(ctx, []string{baseChange.ChangeID}, "right", testSig())
	_ = os.WriteFile(filepath.Join(root, "right.txt"), []byte("right-only"), 0o644)
	rightChange, err := r.Describe(ctx, right.ChangeID, "right adds file")
	if err != nil {
		t.Fatalf("describe right: %v", err)
	}

	merged, err := r.Merge(ctx, []string{leftChange.ChangeID, rightChange.ChangeID}, "merge", testSig())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if string(merged.FileSnapshot["left.txt"]) != "left-only" || string(merged.FileSnapshot["right.txt"]) != "right-only" {
		t.Fatalf("expected merge to include both sides' additions, got %v", merged.FileSnapshot)
	}
}

func TestMergeConflictingEditsRecordsConflict(t *testing.T) {
	r, root := openRepo(t)
	ctx := context.Background()
	base := r.WC.State.ChangeID
	_ = os.WriteFile(filepath.Join(root, "shared.txt"), []byte("base"), 0o644)
	baseChange, err := r.Describe(ctx, base, "base content")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}

	left, _ := r.New(ctx, []string{baseChange.ChangeID}, "left", testSig())
	_ = os.WriteFile(filepath.Join(root, "shared.txt"), []byte("left version"), 0o644)
	leftChange, err := r.Describe(ctx, left.ChangeID, "left edits shared")
	if err != nil {
		t.Fatalf("describe left: %v", err)
	}

	if err := r.Edit(ctx, baseChange.ChangeID); err != nil {
		t.Fatalf("edit: %v", err)
	}
	right, _ := r.New(ctx, []string{baseChange.ChangeID}, "right", testSig())
	_ = os.WriteFile(filepath.Join(root, "shared.txt"), []byte("right version"), 0o644)
	rightChange, err := r.Describe(ctx, right.ChangeID, "right edits shared")
	if err != nil {
		t.Fatalf("describe right: %v", err)
	}

	if _, err := r.Merge(ctx, []string{leftChange.ChangeID, rightChange.ChangeID}, "merge", testSig()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(r.Conflicts.Conflicts) != 1 {
		t.Fatalf("expected exactly one recorded conflict, got %d", len(r.Conflicts.Conflicts))
	}
}

func TestDoctorReportsHealthyOnFreshRepo(t *testing.T) {
	r, _ := openRepo(t)
	report := r.Doctor()
	if !report.Healthy() {
		t.Fatalf("expected a freshly initialized repo to be healthy, got %v", report.Issues)
	}
}

func TestDoctorDetectsDanglingBookmark(t *testing.T) {
	r, _ := openRepo(t)
	r.Bookmarks.Local["ghost"] = "does-not-exist-0000000000000000"

	report := r.Doctor()
	if report.Healthy() {
		t.Fatalf("expected a dangling bookmark to be reported")
	}
}
