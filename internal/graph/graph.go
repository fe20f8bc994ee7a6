// Package graph implements the Change Graph (spec.md §4.2): an in-memory
// DAG of changes keyed by change-id, persisted as a single record, with a
// child-index and commit-id-index rebuilt on load — the arena + index
// design spec.md §9 calls for, generalized from the teacher's
// internal/queries/graph.go dependency-graph traversal (parents/children/
// ancestors/descendants over issues) onto changes.
package graph

import (
	"sync"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// record is the single persisted JSON document for the whole graph.
type record struct {
	SchemaVersion int                     `json:"schemaVersion"`
	Changes       map[string]types.Change `json:"changes"`
}

// Graph is the in-memory change DAG plus its derived indices.
type Graph struct {
	mu sync.RWMutex

	changes  map[string]*types.Change // arena, keyed by change-id
	children map[string]map[string]struct{}
	byCommit map[string]string // commit-id -> change-id
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		changes:  make(map[string]*types.Change),
		children: make(map[string]map[string]struct{}),
		byCommit: make(map[string]string),
	}
}

// Load rebuilds a Graph from its persisted form.
func Load(data []byte, unmarshal func([]byte, any) error) (*Graph, error) {
	var rec record
	if len(data) > 0 {
		if err := unmarshal(data, &rec); err != nil {
			return nil, jjgerr.Wrap(jjgerr.KindStorageCorrupt, "parse graph record", err)
		}
	}
	g := New()
	for _, c := range rec.Changes {
		c := c
		g.insertLocked(&c)
	}
	return g, nil
}

// Marshal returns the persisted record for this graph.
func (g *Graph) Marshal() any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]types.Change, len(g.changes))
	for id, c := range g.changes {
		out[id] = *c
	}
	return record{SchemaVersion: types.SchemaVersion, Changes: out}
}

func (g *Graph) insertLocked(c *types.Change) {
	g.changes[c.ChangeID] = c
	if c.CommitID != "" && c.CommitID != types.ZeroCommitID {
		g.byCommit[c.CommitID] = c.ChangeID
	}
	for _, p := range c.Parents {
		if g.children[p] == nil {
			g.children[p] = make(map[string]struct{})
		}
		g.children[p][c.ChangeID] = struct{}{}
	}
}

// Add inserts a new change. Fails with KindDuplicateChange if the
// change-id already exists.
func (g *Graph) Add(c types.Change) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.changes[c.ChangeID]; exists {
		return jjgerr.New(jjgerr.KindDuplicateChange, "change already exists: "+c.ChangeID)
	}
	cp := c
	g.insertLocked(&cp)
	return nil
}

// Update replaces an existing change record. The change-id never changes.
func (g *Graph) Update(c types.Change) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	old, exists := g.changes[c.ChangeID]
	if !exists {
		return jjgerr.New(jjgerr.KindChangeNotFound, "change not found: "+c.ChangeID)
	}
	// Invalidate stale indices before rebuilding them for the new record.
	if old.CommitID != "" {
		delete(g.byCommit, old.CommitID)
	}
	for _, p := range old.Parents {
		if set := g.children[p]; set != nil {
			delete(set, c.ChangeID)
		}
	}
	cp := c
	g.insertLocked(&cp)
	return nil
}

// Get returns the change or nil if it does not exist.
func (g *Graph) Get(changeID string) *types.Change {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.changes[changeID]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// FindByCommitID is the reverse index lookup.
func (g *Graph) FindByCommitID(commitID string) *types.Change {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byCommit[commitID]
	if !ok {
		return nil
	}
	cp := *g.changes[id]
	return &cp
}

// Parents returns the direct parent change-ids of id.
func (g *Graph) Parents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.changes[id]
	if !ok {
		return nil
	}
	out := make([]string, len(c.Parents))
	copy(out, c.Parents)
	return out
}

// Children returns the direct child change-ids of id.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.children[id]
	out := make([]string, 0, len(set))
	for cid := range set {
		out = append(out, cid)
	}
	return out
}

// All returns every known change-id.
func (g *Graph) All() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.changes))
	for id := range g.changes {
		out = append(out, id)
	}
	return out
}

// Ancestors returns the reflexive transitive closure over parents,
// including id itself.
func (g *Graph) Ancestors(id string) []string {
	return g.bfs(id, g.Parents)
}

// Descendants returns the reflexive transitive closure over children.
// Per spec.md §4.4 the revset-level descendants(x) excludes x; this
// primitive is reflexive (includes the start) so higher layers can choose.
func (g *Graph) Descendants(id string) []string {
	return g.bfs(id, g.Children)
}

func (g *Graph) bfs(start string, neighbors func(string) []string) []string {
	if g.Get(start) == nil && start != "" {
		return nil
	}
	seen := map[string]struct{}{start: {}}
	queue := []string{start}
	order := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range neighbors(cur) {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			order = append(order, n)
			queue = append(queue, n)
		}
	}
	return order
}

// Root returns the oldest change with no parents, tie-broken by the
// oldest timestamp.
func (g *Graph) Root() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var best *types.Change
	for _, c := range g.changes {
		if len(c.Parents) != 0 {
			continue
		}
		if best == nil || c.Timestamp.Before(best.Timestamp) {
			best = c
		}
	}
	if best == nil {
		return ""
	}
	return best.ChangeID
}

// VisibleHeads returns the set of changes with no children.
func (g *Graph) VisibleHeads() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for id := range g.changes {
		if len(g.children[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// WouldCreateCycle reports whether setting newParent as an ancestor of id
// would create a cycle, i.e. whether newParent is already a descendant of
// id (spec.md §9: rebase must refuse this).
func (g *Graph) WouldCreateCycle(id, newParent string) bool {
	for _, d := range g.Descendants(id) {
		if d == newParent {
			return true
		}
	}
	return false
}
