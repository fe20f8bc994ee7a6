package conflict

import (
	"testing"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

func TestDetectNoConflictCases(t *testing.T) {
	cases := []struct {
		name string
		in   ThreeWayInput
		want string
	}{
		{"identical both sides", ThreeWayInput{HasLeft: true, HasRight: true, Left: []byte("x"), Right: []byte("x")}, "x"},
		{"only right changed", ThreeWayInput{HasBase: true, HasLeft: true, HasRight: true, Base: []byte("x"), Left: []byte("x"), Right: []byte("y")}, "y"},
		{"only left changed", ThreeWayInput{HasBase: true, HasLeft: true, HasRight: true, Base: []byte("x"), Left: []byte("y"), Right: []byte("x")}, "y"},
		{"deleted both sides", ThreeWayInput{HasBase: true}, ""},
		{"absent both sides", ThreeWayInput{}, ""},
		{"added only on the left", ThreeWayInput{HasLeft: true, Left: []byte("new")}, "new"},
		{"added only on the right", ThreeWayInput{HasRight: true, Right: []byte("new")}, "new"},
	}
	for _, c := range cases {
		resolved, conflict, ok := Detect(c.in)
		if !ok {
			t.Errorf("%s: expected no conflict, got %+v", c.name, conflict)
			continue
		}
		if string(resolved) != c.want {
			t.Errorf("%s: expected resolved %q, got %q", c.name, c.want, resolved)
		}
	}
}

func TestDetectConflictCases(t *testing.T) {
	cases := []struct {
		name     string
		in       ThreeWayInput
		wantType types.ConflictType
	}{
		{"add-add", ThreeWayInput{HasLeft: true, HasRight: true, Left: []byte("a"), Right: []byte("b")}, types.ConflictAddAdd},
		{"modify-delete", ThreeWayInput{HasBase: true, HasLeft: true, Base: []byte("a"), Left: []byte("b")}, types.ConflictModifyDelete},
		{"delete-modify", ThreeWayInput{HasBase: true, HasRight: true, Base: []byte("a"), Right: []byte("b")}, types.ConflictDeleteModify},
		{"content", ThreeWayInput{HasBase: true, HasLeft: true, HasRight: true, Base: []byte("a"), Left: []byte("b"), Right: []byte("c")}, types.ConflictContent},
	}
	for _, c := range cases {
		_, conflict, ok := Detect(c.in)
		if ok {
			t.Errorf("%s: expected a conflict, got none", c.name)
			continue
		}
		if conflict.Type != c.wantType {
			t.Errorf("%s: expected type %s, got %s", c.name, c.wantType, conflict.Type)
		}
	}
}

func TestMarkersRoundTrip(t *testing.T) {
	c := types.Conflict{
		Sides: map[types.ConflictSide][]byte{
			types.SideLeft:  []byte("left content"),
			types.SideBase:  []byte("base content"),
			types.SideRight: []byte("right content"),
		},
	}
	markers := GenerateMarkers(c)
	base, left, right, err := ParseMarkers(markers)
	if err != nil {
		t.Fatalf("parse markers: %v", err)
	}
	if string(base) != "base content\n" || string(left) != "left content\n" || string(right) != "right content\n" {
		t.Fatalf("round trip mismatch: base=%q left=%q right=%q", base, left, right)
	}
}

func TestParseMarkersRejectsNonConflictText(t *testing.T) {
	if _, _, _, err := ParseMarkers([]byte("just some text")); !jjgerr.Is(err, jjgerr.KindInvalidArgument) {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}

func TestStoreAddRejectsSecondActiveConflictOnSamePath(t *testing.T) {
	s := NewStore()
	c := types.Conflict{Path: "foo.txt", Type: types.ConflictContent}
	if err := s.Add("c1", c); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add("c2", c); err == nil {
		t.Fatalf("expected second active conflict on same path to be rejected")
	}
}

func TestStoreAddAllowsNewConflictAfterResolution(t *testing.T) {
	s := NewStore()
	c := types.Conflict{Path: "foo.txt", Type: types.ConflictContent}
	_ = s.Add("c1", c)
	if err := s.Resolve("c1", types.Resolution{Kind: types.ResolutionContent, Content: []byte("done")}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := s.Add("c2", c); err != nil {
		t.Fatalf("expected a new conflict to be allowed once the prior one resolved: %v", err)
	}
}

func TestStoreResolveAndRemove(t *testing.T) {
	s := NewStore()
	_ = s.Add("c1", types.Conflict{Path: "foo.txt"})

	if err := s.Remove("c1"); !jjgerr.Is(err, jjgerr.KindInvalidResolution) {
		t.Fatalf("expected removing an unresolved conflict to fail, got %v", err)
	}

	if err := s.Resolve("c1", types.Resolution{Kind: types.ResolutionSide, Side: types.SideLeft}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := s.ByPath("foo.txt"); ok {
		t.Fatalf("expected ByPath to no longer surface a resolved conflict")
	}
	if err := s.Remove("c1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestApplyStrategyUnion(t *testing.T) {
	c := types.Conflict{Sides: map[types.ConflictSide][]byte{
		types.SideLeft:  []byte("a"),
		types.SideRight: []byte("b"),
	}}
	content, res, err := ApplyStrategy(c, StrategyUnion)
	if err != nil {
		t.Fatalf("apply strategy: %v", err)
	}
	if string(content) != "ab" {
		t.Fatalf("expected union ab, got %q", content)
	}
	if res.Kind != types.ResolutionContent {
		t.Fatalf("expected ResolutionContent kind, got %s", res.Kind)
	}
}

func TestApplyStrategyUnknown(t *testing.T) {
	if _, _, err := ApplyStrategy(types.Conflict{}, Strategy("bogus")); !jjgerr.Is(err, jjgerr.KindInvalidResolution) {
		t.Fatalf("expected KindInvalidResolution, got %v", err)
	}
}
