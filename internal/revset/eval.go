package revset

import (
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/jjg/internal/graph"
	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/refs"
	"github.com/untoldecay/jjg/internal/types"
)

// set is an ordered, deduplicated collection of change-ids — every
// evaluation step returns one (spec.md §4.4: "result sets are
// deduplicated").
type set struct {
	order []string
	has   map[string]bool
}

func newSet() *set { return &set{has: make(map[string]bool)} }

func (s *set) add(id string) {
	if id == "" || s.has[id] {
		return
	}
	s.has[id] = true
	s.order = append(s.order, id)
}

func (s *set) addAll(ids []string) {
	for _, id := range ids {
		s.add(id)
	}
}

func fromSlice(ids []string) *set {
	s := newSet()
	s.addAll(ids)
	return s
}

// Evaluator walks a parsed revset AST against a Change Graph plus the
// auxiliary stores and context a handful of functions need (the current
// user, the working-copy change-id, and a date parser for since()/
// between()). Grounded on the teacher's internal/queries/
// search.go result-building idiom, generalized to graph traversal.
type Evaluator struct {
	Graph           *graph.Graph
	Bookmarks       *refs.BookmarkStore
	Tags            *refs.TagStore
	WorkingCopyID   string
	CurrentUserMail string
	Now             time.Time

	// ParseDate resolves a since()/between() literal to an absolute time.
	// Defaults to RFC3339/date-only parsing; SPEC_FULL §4.4 wires
	// github.com/olebedev/when as a natural-language fallback via
	// NewNaturalLanguageParser.
	ParseDate func(string) (time.Time, error)
}

// Eval parses and evaluates text, returning a deduplicated, insertion-
// ordered slice of change-ids.
func (e *Evaluator) Eval(text string) ([]string, error) {
	n, err := Parse(text)
	if err != nil {
		return nil, err
	}
	s, err := e.evalNode(n)
	if err != nil {
		return nil, err
	}
	return s.order, nil
}

func (e *Evaluator) parseDate(lit string) (time.Time, error) {
	if e.ParseDate != nil {
		return e.ParseDate(lit)
	}
	return defaultParseDate(lit)
}

func (e *Evaluator) evalNode(n *node) (*set, error) {
	switch n.kind {
	case exprWorkingCopy:
		return fromSlice([]string{e.WorkingCopyID}), nil
	case exprChangeID:
		id := n.changeID
		if id == "@" {
			id = e.WorkingCopyID
		}
		if e.Graph.Get(id) == nil {
			return nil, jjgerr.New(jjgerr.KindChangeNotFound, "no such change: "+id).WithContext("changeId", id)
		}
		return fromSlice([]string{id}), nil
	case exprAll:
		return fromSlice(e.Graph.All()), nil
	case exprNone, exprEmpty:
		return newSet(), nil
	case exprRoot:
		return fromSlice([]string{e.Graph.Root()}), nil
	case exprVisibleHeads:
		heads := e.Graph.VisibleHeads()
		sort.Strings(heads)
		return fromSlice(heads), nil
	case exprGitRefs:
		s := newSet()
		for _, b := range e.Bookmarks.List() {
			if b.Remote != "" {
				s.add(b.Target)
			}
		}
		return s, nil
	case exprGitHead:
		return fromSlice([]string{e.WorkingCopyID}), nil
	case exprMine:
		s := newSet()
		for _, id := range e.Graph.All() {
			c := e.Graph.Get(id)
			if c.Author.Email == e.CurrentUserMail {
				s.add(id)
			}
		}
		return s, nil
	case exprMerge:
		s := newSet()
		for _, id := range e.Graph.All() {
			if len(e.Graph.Get(id).Parents) > 1 {
				s.add(id)
			}
		}
		return s, nil
	case exprAncestors:
		id, err := e.resolveID(n.changeID)
		if err != nil {
			return nil, err
		}
		return fromSlice(e.Graph.Ancestors(id)), nil
	case exprDescendants:
		id, err := e.resolveID(n.changeID)
		if err != nil {
			return nil, err
		}
		all := e.Graph.Descendants(id)
		s := newSet()
		for _, d := range all {
			if d == id {
				continue // descendants(x) excludes x itself
			}
			if n.hasN && e.depth(id, d, e.Graph.Children) > n.n {
				continue
			}
			s.add(d)
		}
		return s, nil
	case exprParentsFn:
		src, err := e.evalNode(n.arg)
		if err != nil {
			return nil, err
		}
		s := newSet()
		for _, id := range src.order {
			s.addAll(e.Graph.Parents(id))
		}
		return s, nil
	case exprChildrenFn:
		src, err := e.evalNode(n.arg)
		if err != nil {
			return nil, err
		}
		s := newSet()
		for _, id := range src.order {
			s.addAll(e.Graph.Children(id))
		}
		return s, nil
	case exprRoots:
		src, err := e.evalNode(n.arg)
		if err != nil {
			return nil, err
		}
		s := newSet()
		for _, id := range src.order {
			noParentInSrc := true
			for _, p := range e.Graph.Parents(id) {
				if src.has[p] {
					noParentInSrc = false
					break
				}
			}
			if noParentInSrc {
				s.add(id)
			}
		}
		return s, nil
	case exprHeads:
		src, err := e.evalNode(n.arg)
		if err != nil {
			return nil, err
		}
		s := newSet()
		for _, id := range src.order {
			noChildInSrc := true
			for _, c := range e.Graph.Children(id) {
				if src.has[c] {
					noChildInSrc = false
					break
				}
			}
			if noChildInSrc {
				s.add(id)
			}
		}
		return s, nil
	case exprLatest:
		src, err := e.evalNode(n.arg)
		if err != nil {
			return nil, err
		}
		ids := append([]string(nil), src.order...)
		sort.Slice(ids, func(i, j int) bool {
			return e.Graph.Get(ids[i]).Committer.Timestamp.After(e.Graph.Get(ids[j]).Committer.Timestamp)
		})
		if n.n > 0 && n.n < len(ids) {
			ids = ids[:n.n]
		}
		return fromSlice(ids), nil
	case exprAuthor:
		return e.filter(func(c *types.Change) bool {
			return strings.Contains(strings.ToLower(c.Author.Name), strings.ToLower(n.text)) ||
				strings.Contains(strings.ToLower(c.Author.Email), strings.ToLower(n.text))
		}), nil
	case exprDescription:
		return e.filter(func(c *types.Change) bool {
			return strings.Contains(strings.ToLower(c.Description), strings.ToLower(n.text))
		}), nil
	case exprFile:
		return e.filter(func(c *types.Change) bool {
			for path := range c.FileSnapshot {
				if globLikeContains(n.text, path) {
					return true
				}
			}
			return false
		}), nil
	case exprTags:
		s := newSet()
		for _, t := range e.Tags.List(n.text) {
			s.add(t.ChangeID)
		}
		return s, nil
	case exprBookmarks:
		s := newSet()
		for _, b := range e.Bookmarks.List() {
			if n.text == "" || globLikeContains(n.text, b.Name) {
				s.add(b.Target)
			}
		}
		return s, nil
	case exprBookmark:
		target, ok := e.Bookmarks.Get(n.text)
		if !ok {
			return nil, jjgerr.New(jjgerr.KindBookmarkNotFound, "bookmark not found: "+n.text)
		}
		return fromSlice([]string{target}), nil
	case exprLast:
		if n.unit == "" {
			// Bare last(n) is a count, not a window (spec.md §4.4): the n
			// most recent changes by committer timestamp.
			ids := append([]string(nil), e.Graph.All()...)
			sort.Slice(ids, func(i, j int) bool {
				return e.Graph.Get(ids[i]).Committer.Timestamp.After(e.Graph.Get(ids[j]).Committer.Timestamp)
			})
			if n.n > 0 && n.n < len(ids) {
				ids = ids[:n.n]
			}
			return fromSlice(ids), nil
		}
		dur := time.Duration(n.n) * 24 * time.Hour
		if n.unit == "h" {
			dur = time.Duration(n.n) * time.Hour
		}
		cutoff := e.now().Add(-dur)
		return e.filter(func(c *types.Change) bool {
			return !c.Committer.Timestamp.Before(cutoff)
		}), nil
	case exprSince:
		t, err := e.parseDate(n.date)
		if err != nil {
			return nil, err
		}
		return e.filter(func(c *types.Change) bool { return !c.Timestamp.Before(t) }), nil
	case exprBetween:
		a, err := e.parseDate(n.date)
		if err != nil {
			return nil, err
		}
		b, err := e.parseDate(n.date2)
		if err != nil {
			return nil, err
		}
		return e.filter(func(c *types.Change) bool {
			return !c.Timestamp.Before(a) && c.Timestamp.Before(b)
		}), nil
	case exprCommonAncestor:
		a, err := e.resolveID(n.changeID)
		if err != nil {
			return nil, err
		}
		b, err := e.resolveID(n.text)
		if err != nil {
			return nil, err
		}
		return fromSlice([]string{e.commonAncestor(a, b)}), nil
	case exprDivergePoint:
		a, err := e.resolveID(n.changeID)
		if err != nil {
			return nil, err
		}
		b, err := e.resolveID(n.text)
		if err != nil {
			return nil, err
		}
		return fromSlice([]string{e.commonAncestor(a, b)}), nil
	case exprRange:
		a, err := e.resolveID(n.changeID)
		if err != nil {
			return nil, err
		}
		b, err := e.resolveID(n.text)
		if err != nil {
			return nil, err
		}
		ancB := fromSlice(e.Graph.Ancestors(b))
		ancA := fromSlice(e.Graph.Ancestors(a))
		s := newSet()
		for _, id := range ancB.order {
			if !ancA.has[id] {
				s.add(id)
			}
		}
		return s, nil
	case exprConnected:
		a, err := e.resolveID(n.changeID)
		if err != nil {
			return nil, err
		}
		b, err := e.resolveID(n.text)
		if err != nil {
			return nil, err
		}
		connected := contains(e.Graph.Ancestors(a), b) || contains(e.Graph.Ancestors(b), a)
		if connected {
			return fromSlice([]string{a, b}), nil
		}
		return newSet(), nil
	case exprUnion:
		l, err := e.evalNode(n.left)
		if err != nil {
			return nil, err
		}
		r, err := e.evalNode(n.right)
		if err != nil {
			return nil, err
		}
		s := newSet()
		s.addAll(l.order)
		s.addAll(r.order)
		return s, nil
	case exprIntersect:
		l, err := e.evalNode(n.left)
		if err != nil {
			return nil, err
		}
		r, err := e.evalNode(n.right)
		if err != nil {
			return nil, err
		}
		s := newSet()
		for _, id := range l.order {
			if r.has[id] {
				s.add(id)
			}
		}
		return s, nil
	case exprDifference:
		l, err := e.evalNode(n.left)
		if err != nil {
			return nil, err
		}
		r, err := e.evalNode(n.right)
		if err != nil {
			return nil, err
		}
		s := newSet()
		for _, id := range l.order {
			if !r.has[id] {
				s.add(id)
			}
		}
		return s, nil
	}
	return nil, jjgerr.New(jjgerr.KindInvalidRevset, "unhandled revset node")
}

func (e *Evaluator) resolveID(id string) (string, error) {
	if id == "@" {
		id = e.WorkingCopyID
	}
	if e.Graph.Get(id) == nil {
		return "", jjgerr.New(jjgerr.KindChangeNotFound, "no such change: "+id).WithContext("changeId", id)
	}
	return id, nil
}

func (e *Evaluator) filter(pred func(*types.Change) bool) *set {
	s := newSet()
	ids := e.Graph.All()
	sort.Strings(ids)
	for _, id := range ids {
		if pred(e.Graph.Get(id)) {
			s.add(id)
		}
	}
	return s
}

func (e *Evaluator) now() time.Time {
	if e.Now.IsZero() {
		return time.Now()
	}
	return e.Now
}

// depth returns the BFS distance from start to target along neighbors,
// or -1 if unreachable.
func (e *Evaluator) depth(start, target string, neighbors func(string) []string) int {
	if start == target {
		return 0
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	dist := 0
	for len(queue) > 0 {
		dist++
		var next []string
		for _, cur := range queue {
			for _, n := range neighbors(cur) {
				if seen[n] {
					continue
				}
				if n == target {
					return dist
				}
				seen[n] = true
				next = append(next, n)
			}
		}
		queue = next
	}
	return -1
}

// commonAncestor performs a BFS outward from b over parents, returning
// the first change also found among a's ancestors — spec.md §4.4's
// "BFS on b, first hit that is also an ancestor of a" semantics, shared
// by common_ancestor() and diverge_point().
func (e *Evaluator) commonAncestor(a, b string) string {
	ancA := fromSlice(e.Graph.Ancestors(a))
	seen := map[string]bool{}
	queue := []string{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if ancA.has[cur] {
			return cur
		}
		queue = append(queue, e.Graph.Parents(cur)...)
	}
	return ""
}

func contains(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// globLikeContains is the pattern test of the file()/bookmarks() filters:
// a pattern without '*' or '?' matches any path containing it as a
// substring; otherwise matchesGlob applies ('*' also crosses '/').
func globLikeContains(pattern, path string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return strings.Contains(path, pattern)
	}
	return matchesGlob(pattern, path)
}
