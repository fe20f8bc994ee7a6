// Package revset implements the Revset Engine (spec.md §4.4): a parser
// and evaluator for the small typed query language over the Change Graph.
// Grounded on the teacher's internal/queries/search.go and
// internal/queries/fuzzy.go query-building idiom, generalized from
// free-text issue search into a typed graph query language.
package revset

// exprKind tags the variant of a parsed expression node (spec.md §9:
// "tagged variants... turn many runtime dispatches into total matches").
type exprKind int

const (
	exprWorkingCopy exprKind = iota
	exprChangeID
	exprAll
	exprNone
	exprRoot
	exprVisibleHeads
	exprGitRefs
	exprGitHead
	exprEmpty
	exprMine
	exprMerge
	exprAncestors
	exprDescendants
	exprParentsFn
	exprChildrenFn
	exprRoots
	exprHeads
	exprLatest
	exprAuthor
	exprDescription
	exprFile
	exprTags
	exprBookmarks
	exprBookmark
	exprLast
	exprSince
	exprBetween
	exprCommonAncestor
	exprRange
	exprDivergePoint
	exprConnected

	exprUnion
	exprIntersect
	exprDifference
)

// node is a parsed revset AST node. Only the fields relevant to Kind are
// populated; Go has no sum types, so this is the idiomatic tagged-union
// encoding for a small, closed grammar.
type node struct {
	kind exprKind

	// leaf data
	changeID string
	text     string
	n        int
	hasN     bool
	unit     string // "d" or "h" for last(Nd/Nh)
	date     string
	date2    string

	// parent/child-chain sugar: x- / x+, repeated dashCount times
	dashCount int
	plusCount int

	// operands
	left, right *node
	arg         *node
}
