package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

func change(id string, parents ...string) types.Change {
	return types.Change{ChangeID: id, CommitID: types.ZeroCommitID, Parents: parents}
}

func TestAddDuplicateRejected(t *testing.T) {
	g := New()
	if err := g.Add(change("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.Add(change("a"))
	if !jjgerr.Is(err, jjgerr.KindDuplicateChange) {
		t.Fatalf("expected KindDuplicateChange, got %v", err)
	}
}

func TestParentsChildrenIndex(t *testing.T) {
	g := New()
	_ = g.Add(change("root"))
	_ = g.Add(change("a", "root"))
	_ = g.Add(change("b", "root"))

	kids := g.Children("root")
	if len(kids) != 2 {
		t.Fatalf("expected 2 children, got %d: %v", len(kids), kids)
	}
	if got := g.Parents("a"); len(got) != 1 || got[0] != "root" {
		t.Fatalf("unexpected parents for a: %v", got)
	}
}

func TestUpdateRewiresChildIndex(t *testing.T) {
	g := New()
	_ = g.Add(change("root"))
	_ = g.Add(change("other"))
	_ = g.Add(change("a", "root"))

	c := *g.Get("a")
	c.Parents = []string{"other"}
	if err := g.Update(c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if kids := g.Children("root"); len(kids) != 0 {
		t.Fatalf("expected root to have no children after rewire, got %v", kids)
	}
	if kids := g.Children("other"); len(kids) != 1 || kids[0] != "a" {
		t.Fatalf("expected other to have child a, got %v", kids)
	}
}

func TestAncestorsDescendants(t *testing.T) {
	g := New()
	_ = g.Add(change("root"))
	_ = g.Add(change("a", "root"))
	_ = g.Add(change("b", "a"))

	anc := g.Ancestors("b")
	want := map[string]bool{"b": true, "a": true, "root": true}
	if len(anc) != len(want) {
		t.Fatalf("expected %d ancestors, got %v", len(want), anc)
	}
	for _, id := range anc {
		if !want[id] {
			t.Fatalf("unexpected ancestor %q", id)
		}
	}

	desc := g.Descendants("root")
	if len(desc) != 3 {
		t.Fatalf("expected 3 descendants (reflexive), got %v", desc)
	}
}

func TestWouldCreateCycle(t *testing.T) {
	g := New()
	_ = g.Add(change("root"))
	_ = g.Add(change("a", "root"))
	_ = g.Add(change("b", "a"))

	if !g.WouldCreateCycle("a", "b") {
		t.Fatalf("expected rebasing a onto its own descendant b to be rejected")
	}
	if g.WouldCreateCycle("b", "root") {
		t.Fatalf("did not expect a cycle rebasing b onto root")
	}
}

func TestRootTiebreaksOnOldestTimestamp(t *testing.T) {
	g := New()
	now := time.Now()
	older := change("older")
	older.Timestamp = now.Add(-time.Hour)
	newer := change("newer")
	newer.Timestamp = now

	_ = g.Add(newer)
	_ = g.Add(older)

	if got := g.Root(); got != "older" {
		t.Fatalf("expected older root change, got %q", got)
	}
}

func TestVisibleHeads(t *testing.T) {
	g := New()
	_ = g.Add(change("root"))
	_ = g.Add(change("a", "root"))
	_ = g.Add(change("b", "root"))

	heads := g.VisibleHeads()
	if len(heads) != 2 {
		t.Fatalf("expected 2 heads, got %v", heads)
	}
}

func TestMarshalLoadRoundTrip(t *testing.T) {
	g := New()
	_ = g.Add(change("root"))
	_ = g.Add(change("a", "root"))

	data, err := json.Marshal(g.Marshal())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	loaded, err := Load(data, json.Unmarshal)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Get("a") == nil {
		t.Fatalf("expected change a to survive round trip")
	}
	if kids := loaded.Children("root"); len(kids) != 1 || kids[0] != "a" {
		t.Fatalf("expected rebuilt child index, got %v", kids)
	}
}

func TestLoadEmpty(t *testing.T) {
	g, err := Load(nil, json.Unmarshal)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(g.All()) != 0 {
		t.Fatalf("expected empty graph")
	}
}
