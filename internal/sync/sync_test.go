package sync

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/untoldecay/jjg/backend"
	"github.com/untoldecay/jjg/internal/graph"
	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// fakeStore is a minimal in-memory backend.CommitStore stand-in: it
// mints sequential commit-ids and records the requests it was sent, so
// tests can assert on middleware behavior without shelling out to git.
type fakeStore struct {
	n          int
	staged     int
	lastReq    backend.CommitRequest
	createFail error
}

func (f *fakeStore) Init(context.Context, string) error   { return nil }
func (f *fakeStore) StageAll(context.Context) error        { f.staged++; return nil }
func (f *fakeStore) CreateCommit(_ context.Context, req backend.CommitRequest) (string, error) {
	if f.createFail != nil {
		return "", f.createFail
	}
	f.n++
	f.lastReq = req
	return "commit-" + strconv.Itoa(f.n), nil
}
func (f *fakeStore) ListRefs(context.Context, string) ([]backend.RefInfo, error) { return nil, nil }
func (f *fakeStore) UpdateRef(context.Context, string, string) error            { return nil }
func (f *fakeStore) Fetch(context.Context, backend.FetchOptions) error          { return nil }
func (f *fakeStore) Push(context.Context, backend.PushOptions) error            { return nil }
func (f *fakeStore) Clone(context.Context, backend.CloneOptions) error          { return nil }

func TestSyncNoopWithoutStore(t *testing.T) {
	m := &Middleware{Graph: graph.New()}
	c := types.Change{ChangeID: "a"}
	got, err := m.OnAdd(context.Background(), c)
	if err != nil {
		t.Fatalf("onadd: %v", err)
	}
	if got.CommitID != "" {
		t.Fatalf("expected no commit-id to be assigned without a backend, got %q", got.CommitID)
	}
}

func TestSyncAssignsCommitIDAndStages(t *testing.T) {
	g := graph.New()
	store := &fakeStore{}
	m := &Middleware{Graph: g, Store: store}

	c := types.Change{ChangeID: "a", Description: "first", Author: types.Signature{Name: "Alice", Email: "a@x.com"}}
	got, err := m.OnAdd(context.Background(), c)
	if err != nil {
		t.Fatalf("onadd: %v", err)
	}
	if got.CommitID != "commit-1" {
		t.Fatalf("expected commit-1, got %q", got.CommitID)
	}
	if store.staged != 1 {
		t.Fatalf("expected StageAll to be called once, got %d", store.staged)
	}
	if store.lastReq.Message != "first" {
		t.Fatalf("expected commit message to carry the change description, got %q", store.lastReq.Message)
	}
}

func TestSyncResolvesParentCommitIDsSkippingZeroSentinel(t *testing.T) {
	g := graph.New()
	root := types.Change{ChangeID: "root", CommitID: types.ZeroCommitID}
	mid := types.Change{ChangeID: "mid", Parents: []string{"root"}, CommitID: "commit-mid"}
	_ = g.Add(root)
	_ = g.Add(mid)

	store := &fakeStore{}
	m := &Middleware{Graph: g, Store: store}

	child := types.Change{ChangeID: "child", Parents: []string{"root", "mid"}}
	_, err := m.OnAdd(context.Background(), child)
	if err != nil {
		t.Fatalf("onadd: %v", err)
	}
	if len(store.lastReq.Parents) != 1 || store.lastReq.Parents[0] != "commit-mid" {
		t.Fatalf("expected only mid's real commit-id to be passed, got %v", store.lastReq.Parents)
	}
}

func TestSyncWrapsBackendFailure(t *testing.T) {
	g := graph.New()
	store := &fakeStore{createFail: errors.New("backend exploded")}
	m := &Middleware{Graph: g, Store: store}

	_, err := m.OnAdd(context.Background(), types.Change{ChangeID: "a"})
	if !jjgerr.Is(err, jjgerr.KindBackendSyncFailed) {
		t.Fatalf("expected KindBackendSyncFailed, got %v", err)
	}
}

func TestOnUpdateResynthesizesCommit(t *testing.T) {
	g := graph.New()
	store := &fakeStore{}
	m := &Middleware{Graph: g, Store: store}

	c := types.Change{ChangeID: "a", Description: "edited"}
	got, err := m.OnUpdate(context.Background(), c)
	if err != nil {
		t.Fatalf("onupdate: %v", err)
	}
	if got.CommitID == "" {
		t.Fatalf("expected a commit-id to be assigned on update")
	}
}
