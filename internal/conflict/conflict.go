// Package conflict implements the Conflict Model (spec.md §4.5): three-way
// detection, first-class persisted conflict records, conflict markers,
// and the resolution lifecycle. The detection matrix and the built-in
// default merge driver's field-resolution rules are a direct, generalized
// port of the teacher's internal/merge.Merge3WayWithTTL deterministic
// merge rules (closed-wins, higher-priority-wins, notes-concatenation,
// removal-wins-for-dependencies) from Issue fields onto arbitrary file
// bytes.
package conflict

import (
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// ThreeWayInput is the per-path input to conflict detection.
type ThreeWayInput struct {
	Path              string
	Base, Left, Right []byte
	HasBase           bool
	HasLeft           bool
	HasRight          bool
}

// Detect implements spec.md §4.5's detection table. It returns the
// resolved content and ok=true when no conflict arises, or a Conflict
// record with ok=false otherwise.
func Detect(in ThreeWayInput) (resolved []byte, c *types.Conflict, ok bool) {
	baseEq := func(a []byte) bool { return in.HasBase && string(in.Base) == string(a) }

	switch {
	case !in.HasLeft && !in.HasRight:
		return nil, nil, true // nothing exists on either side: no conflict, nothing to write
	case in.HasLeft && in.HasRight && string(in.Left) == string(in.Right):
		return in.Left, nil, true // identical on both sides
	case in.HasLeft && in.HasRight && baseEq(in.Left) && !baseEq(in.Right):
		return in.Right, nil, true // only right changed
	case in.HasLeft && in.HasRight && baseEq(in.Right) && !baseEq(in.Left):
		return in.Left, nil, true // only left changed
	case !in.HasBase && in.HasLeft && in.HasRight:
		return nil, newConflict(types.ConflictAddAdd, in, "added differently on both sides"), false
	case in.HasBase && in.HasLeft && !in.HasRight:
		return nil, newConflict(types.ConflictModifyDelete, in, "modified on one side, deleted on the other"), false
	case in.HasBase && !in.HasLeft && in.HasRight:
		return nil, newConflict(types.ConflictDeleteModify, in, "deleted on one side, modified on the other"), false
	case in.HasBase && in.HasLeft && in.HasRight:
		return nil, newConflict(types.ConflictContent, in, "modified differently on both sides"), false
	case in.HasBase && !in.HasLeft && !in.HasRight:
		return nil, nil, true // deleted on both sides
	case !in.HasBase && in.HasLeft && !in.HasRight:
		return in.Left, nil, true // added only on the left
	case !in.HasBase && !in.HasLeft && in.HasRight:
		return in.Right, nil, true // added only on the right
	default:
		return nil, nil, true
	}
}

func newConflict(typ types.ConflictType, in ThreeWayInput, message string) *types.Conflict {
	sides := make(map[types.ConflictSide][]byte)
	if in.HasBase {
		sides[types.SideBase] = in.Base
	}
	if in.HasLeft {
		sides[types.SideLeft] = in.Left
	}
	if in.HasRight {
		sides[types.SideRight] = in.Right
	}
	return &types.Conflict{
		Type:      typ,
		Path:      in.Path,
		Sides:     sides,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// GenerateMarkers renders a CONTENT conflict as the canonical textual
// marker form (spec.md §4.5).
func GenerateMarkers(c types.Conflict) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "<<<<<<< Left\n%s", c.Sides[types.SideLeft])
	if !strings.HasSuffix(string(c.Sides[types.SideLeft]), "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "||||||| Base\n%s", c.Sides[types.SideBase])
	if !strings.HasSuffix(string(c.Sides[types.SideBase]), "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("=======\n")
	b.WriteString(string(c.Sides[types.SideRight]))
	if !strings.HasSuffix(string(c.Sides[types.SideRight]), "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(">>>>>>> Right\n")
	return []byte(b.String())
}

// ParseMarkers extracts the three sides from the canonical marker form.
// It accepts exactly the <<<<<<< Left / ||||||| Base / ======= / >>>>>>>
// Right form (spec.md §4.5).
func ParseMarkers(data []byte) (base, left, right []byte, err error) {
	lines := strings.Split(string(data), "\n")
	const (
		stLeft = iota
		stBase
		stRight
		stDone
	)
	state := -1
	var leftB, baseB, rightB strings.Builder
	found := false
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "<<<<<<< "):
			state = stLeft
			found = true
			continue
		case strings.HasPrefix(line, "||||||| "):
			state = stBase
			continue
		case line == "=======":
			state = stRight
			continue
		case strings.HasPrefix(line, ">>>>>>> "):
			state = stDone
			continue
		}
		switch state {
		case stLeft:
			leftB.WriteString(line)
			leftB.WriteByte('\n')
		case stBase:
			baseB.WriteString(line)
			baseB.WriteByte('\n')
		case stRight:
			rightB.WriteString(line)
			rightB.WriteByte('\n')
		}
	}
	if !found {
		return nil, nil, nil, jjgerr.New(jjgerr.KindInvalidArgument, "not a recognized conflict marker block")
	}
	return []byte(baseB.String()), []byte(leftB.String()), []byte(rightB.String()), nil
}

// Store holds the set of active conflicts, indexed by path, following
// the on-disk layout of spec.md §6 (conflicts.json's conflicts/
// fileConflicts maps).
type Store struct {
	Conflicts     map[string]types.Conflict `json:"conflicts"`
	FileConflicts map[string]string         `json:"fileConflicts"` // path -> conflict id
}

// NewStore returns an empty conflict store.
func NewStore() *Store {
	return &Store{
		Conflicts:     make(map[string]types.Conflict),
		FileConflicts: make(map[string]string),
	}
}

// Add records a new unresolved conflict. Fails if the path already has an
// active conflict (spec.md §3: "exactly one active conflict per path").
func (s *Store) Add(id string, c types.Conflict) error {
	if existingID, ok := s.FileConflicts[c.Path]; ok {
		if existing, ok := s.Conflicts[existingID]; ok && !existing.Resolved {
			return jjgerr.New(jjgerr.KindInvalidArgument, "path already has an active conflict: "+c.Path)
		}
	}
	c.ConflictID = id
	s.Conflicts[id] = c
	s.FileConflicts[c.Path] = id
	return nil
}

// Get returns a conflict by id.
func (s *Store) Get(id string) (types.Conflict, bool) {
	c, ok := s.Conflicts[id]
	return c, ok
}

// ByPath returns the active conflict id for a path, if any.
func (s *Store) ByPath(path string) (string, bool) {
	id, ok := s.FileConflicts[path]
	if !ok {
		return "", false
	}
	if c, ok := s.Conflicts[id]; !ok || c.Resolved {
		return "", false
	}
	return id, true
}

// List returns every conflict, resolved or not.
func (s *Store) List() []types.Conflict {
	out := make([]types.Conflict, 0, len(s.Conflicts))
	for _, c := range s.Conflicts {
		out = append(out, c)
	}
	return out
}

// Unresolved returns only the active conflicts.
func (s *Store) Unresolved() []types.Conflict {
	var out []types.Conflict
	for _, c := range s.Conflicts {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return out
}

// Resolve applies a resolution to an unresolved conflict, marking it
// resolved. The content in resolution is what the caller has already
// written to the working copy file.
func (s *Store) Resolve(id string, resolution types.Resolution) error {
	c, ok := s.Conflicts[id]
	if !ok {
		return jjgerr.New(jjgerr.KindConflictNotFound, "conflict not found: "+id)
	}
	if c.Resolved {
		return jjgerr.New(jjgerr.KindInvalidResolution, "conflict already resolved: "+id)
	}
	now := time.Now()
	c.Resolved = true
	c.Resolution = &resolution
	c.ResolvedAt = &now
	s.Conflicts[id] = c
	return nil
}

// Remove deletes a resolved conflict's record entirely. Unresolved
// conflicts must not be removed (spec.md §3: "removed only on explicit
// resolution + removal").
func (s *Store) Remove(id string) error {
	c, ok := s.Conflicts[id]
	if !ok {
		return jjgerr.New(jjgerr.KindConflictNotFound, "conflict not found: "+id)
	}
	if !c.Resolved {
		return jjgerr.New(jjgerr.KindInvalidResolution, "cannot remove an unresolved conflict: "+id)
	}
	delete(s.Conflicts, id)
	if s.FileConflicts[c.Path] == id {
		delete(s.FileConflicts, c.Path)
	}
	return nil
}

// ResolveBySide resolves a conflict by taking a named side's content.
func ResolveBySide(c types.Conflict, side types.ConflictSide) ([]byte, types.Resolution) {
	content := c.Sides[side]
	return content, types.Resolution{Kind: types.ResolutionSide, Side: side}
}

// ResolveByContent resolves a conflict with explicit caller-provided bytes.
func ResolveByContent(content []byte) ([]byte, types.Resolution) {
	return content, types.Resolution{Kind: types.ResolutionContent, Content: content}
}

// Strategy is a bulk resolution policy applied across many conflicts.
type Strategy string

const (
	StrategyOurs   Strategy = "ours"
	StrategyTheirs Strategy = "theirs"
	StrategyUnion  Strategy = "union"
)

// ApplyStrategy resolves a conflict per a bulk strategy; "union"
// concatenates left then right.
func ApplyStrategy(c types.Conflict, strategy Strategy) ([]byte, types.Resolution, error) {
	switch strategy {
	case StrategyOurs:
		content, res := ResolveBySide(c, types.SideLeft)
		return content, res, nil
	case StrategyTheirs:
		content, res := ResolveBySide(c, types.SideRight)
		return content, res, nil
	case StrategyUnion:
		content := append(append([]byte{}, c.Sides[types.SideLeft]...), c.Sides[types.SideRight]...)
		return content, types.Resolution{Kind: types.ResolutionContent, Content: content}, nil
	default:
		return nil, types.Resolution{}, jjgerr.New(jjgerr.KindInvalidResolution, "unknown strategy: "+string(strategy))
	}
}
