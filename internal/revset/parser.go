package revset

import (
	"strconv"
	"strings"

	"github.com/untoldecay/jjg/internal/jjgerr"
)

// Parse compiles a revset expression into an AST. Invalid expressions
// fail with KindInvalidRevset carrying the literal text (spec.md §4.4).
func Parse(text string) (*node, error) {
	p := &parser{text: text, toks: tokenize(text)}
	if len(p.toks) == 0 {
		return nil, invalid(text)
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, invalid(text)
	}
	return n, nil
}

func invalid(text string) error {
	return jjgerr.New(jjgerr.KindInvalidRevset, "invalid revset: "+text).WithContext("text", text)
}

// token kinds.
type tokKind int

const (
	tokIdent tokKind = iota // bareword / change-id / number
	tokString               // "quoted text"
	tokLParen
	tokRParen
	tokComma
	tokOp // & | ~
	tokDotDot
	tokDash
	tokPlus
	tokAt
)

type token struct {
	kind tokKind
	text string
}

// tokenize is a small hand-rolled lexer: whitespace-insensitive outside
// quoted strings, single-character operators, and "(" ")" "," ".." as
// their own tokens.
func tokenize(s string) []token {
	var toks []token
	r := []rune(s)
	i := 0
	for i < len(r) {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '&' || c == '|' || c == '~':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '@':
			toks = append(toks, token{tokAt, "@"})
			i++
		case c == '.' && i+1 < len(r) && r[i+1] == '.':
			toks = append(toks, token{tokDotDot, ".."})
			i += 2
		case c == '-':
			toks = append(toks, token{tokDash, "-"})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+"})
			i++
		case c == '"':
			j := i + 1
			var b strings.Builder
			for j < len(r) && r[j] != '"' {
				b.WriteRune(r[j])
				j++
			}
			toks = append(toks, token{tokString, b.String()})
			i = j + 1
		default:
			j := i
			for j < len(r) && !isDelim(r[j]) && !(r[j] == '.' && j+1 < len(r) && r[j+1] == '.') {
				j++
			}
			toks = append(toks, token{tokIdent, string(r[i:j])})
			i = j
		}
	}
	return toks
}

func isDelim(c rune) bool {
	switch c {
	case ' ', '\t', '\n', '(', ')', ',', '&', '|', '~', '-', '+':
		return true
	}
	return false
}

type parser struct {
	text string
	toks []token
	pos  int
}

func (p *parser) peek() *token {
	if p.pos >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos]
}

func (p *parser) next() *token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

// parseExpr implements the left-associative, equal-precedence set
// algebra: Primary (BinOp Primary)*.
func (p *parser) parseExpr() (*node, error) {
	left, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t == nil || t.kind != tokOp {
			return left, nil
		}
		op := p.next().text
		right, err := p.parseChain()
		if err != nil {
			return nil, err
		}
		switch op {
		case "&":
			left = &node{kind: exprIntersect, left: left, right: right}
		case "|":
			left = &node{kind: exprUnion, left: left, right: right}
		case "~":
			left = &node{kind: exprDifference, left: left, right: right}
		}
	}
}

// parseChain parses a Primary followed by any number of trailing '-'/'+'
// repeats (parents/children chain sugar).
func (p *parser) parseChain() (*node, error) {
	prim, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t == nil {
			return prim, nil
		}
		if t.kind == tokDash {
			p.next()
			prim = &node{kind: exprParentsFn, arg: prim}
		} else if t.kind == tokPlus {
			p.next()
			prim = &node{kind: exprChildrenFn, arg: prim}
		} else {
			return prim, nil
		}
	}
}

func (p *parser) parsePrimary() (*node, error) {
	t := p.peek()
	if t == nil {
		return nil, invalid(p.text)
	}
	switch t.kind {
	case tokAt:
		p.next()
		return &node{kind: exprWorkingCopy}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c == nil || c.kind != tokRParen {
			return nil, invalid(p.text)
		}
		return inner, nil
	case tokIdent:
		return p.parseIdentForm()
	}
	return nil, invalid(p.text)
}

func (p *parser) parseIdentForm() (*node, error) {
	name := p.next().text
	if p.peek() == nil || p.peek().kind != tokLParen {
		// bare identifier: a literal change-id.
		return &node{kind: exprChangeID, changeID: name}, nil
	}
	p.next() // consume '('
	n, err := p.parseCall(name)
	if err != nil {
		return nil, err
	}
	if c := p.next(); c == nil || c.kind != tokRParen {
		return nil, invalid(p.text)
	}
	return n, nil
}

func (p *parser) parseCall(name string) (*node, error) {
	switch name {
	case "all":
		return &node{kind: exprAll}, nil
	case "none":
		return &node{kind: exprNone}, nil
	case "root":
		return &node{kind: exprRoot}, nil
	case "visible_heads":
		return &node{kind: exprVisibleHeads}, nil
	case "git_refs":
		return &node{kind: exprGitRefs}, nil
	case "git_head":
		return &node{kind: exprGitHead}, nil
	case "empty":
		return &node{kind: exprEmpty}, nil
	case "mine":
		return &node{kind: exprMine}, nil
	case "merge":
		return &node{kind: exprMerge}, nil
	case "ancestors":
		id, err := p.parseChangeIDArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprAncestors, changeID: id}, nil
	case "descendants":
		id, err := p.parseChangeIDArg()
		if err != nil {
			return nil, err
		}
		n := &node{kind: exprDescendants, changeID: id}
		if p.peek() != nil && p.peek().kind == tokComma {
			p.next()
			depth, err := p.parseInt()
			if err != nil {
				return nil, err
			}
			n.n, n.hasN = depth, true
		}
		return n, nil
	case "parents":
		arg, err := p.parseExprArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprParentsFn, arg: arg}, nil
	case "children":
		arg, err := p.parseExprArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprChildrenFn, arg: arg}, nil
	case "roots":
		arg, err := p.parseExprArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprRoots, arg: arg}, nil
	case "heads":
		arg, err := p.parseExprArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprHeads, arg: arg}, nil
	case "latest":
		arg, err := p.parseExprArg()
		if err != nil {
			return nil, err
		}
		n := &node{kind: exprLatest, arg: arg, n: 1}
		if p.peek() != nil && p.peek().kind == tokComma {
			p.next()
			v, err := p.parseInt()
			if err != nil {
				return nil, err
			}
			n.n = v
		}
		return n, nil
	case "author":
		text, err := p.parseTextArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprAuthor, text: text}, nil
	case "description":
		text, err := p.parseTextArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprDescription, text: text}, nil
	case "file":
		text, err := p.parseTextArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprFile, text: text}, nil
	case "tags":
		n := &node{kind: exprTags}
		if p.peek() != nil && p.peek().kind != tokRParen {
			text, err := p.parseTextArg()
			if err != nil {
				return nil, err
			}
			n.text = text
		}
		return n, nil
	case "bookmarks":
		n := &node{kind: exprBookmarks}
		if p.peek() != nil && p.peek().kind != tokRParen {
			text, err := p.parseTextArg()
			if err != nil {
				return nil, err
			}
			n.text = text
		}
		return n, nil
	case "bookmark":
		text, err := p.parseTextArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprBookmark, text: text}, nil
	case "last":
		t := p.next()
		if t == nil || t.kind != tokIdent {
			return nil, invalid(p.text)
		}
		num, unit := t.text, ""
		if strings.HasSuffix(num, "d") || strings.HasSuffix(num, "h") {
			num, unit = num[:len(num)-1], num[len(num)-1:]
		}
		v, err := strconv.Atoi(num)
		if err != nil {
			return nil, invalid(p.text)
		}
		n := &node{kind: exprLast, n: v, unit: unit}
		if id := p.peek(); unit == "" && id != nil && id.kind == tokIdent && (id.text == "d" || id.text == "h") {
			n.unit = p.next().text
		}
		return n, nil
	case "since":
		d, err := p.parseTextArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprSince, date: d}, nil
	case "between":
		a, err := p.parseTextArg()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c == nil || c.kind != tokComma {
			return nil, invalid(p.text)
		}
		b, err := p.parseTextArg()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprBetween, date: a, date2: b}, nil
	case "common_ancestor", "diverge_point":
		a, b, err := p.parseTwoChangeIDs()
		if err != nil {
			return nil, err
		}
		kind := exprCommonAncestor
		if name == "diverge_point" {
			kind = exprDivergePoint
		}
		return &node{kind: kind, changeID: a, text: b}, nil
	case "connected":
		a, b, err := p.parseTwoChangeIDs()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprConnected, changeID: a, text: b}, nil
	case "range":
		a, err := p.parseChangeIDTokenOnly()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c == nil || c.kind != tokDotDot {
			return nil, invalid(p.text)
		}
		b, err := p.parseChangeIDTokenOnly()
		if err != nil {
			return nil, err
		}
		return &node{kind: exprRange, changeID: a, text: b}, nil
	}
	return nil, invalid(p.text)
}

func (p *parser) parseChangeIDArg() (string, error) {
	t := p.next()
	if t == nil || (t.kind != tokIdent && t.kind != tokAt) {
		return "", invalid(p.text)
	}
	if t.kind == tokAt {
		return "@", nil
	}
	return t.text, nil
}

func (p *parser) parseChangeIDTokenOnly() (string, error) {
	return p.parseChangeIDArg()
}

func (p *parser) parseTwoChangeIDs() (string, string, error) {
	a, err := p.parseChangeIDArg()
	if err != nil {
		return "", "", err
	}
	if c := p.next(); c == nil || c.kind != tokComma {
		return "", "", invalid(p.text)
	}
	b, err := p.parseChangeIDArg()
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func (p *parser) parseExprArg() (*node, error) {
	return p.parseExpr()
}

func (p *parser) parseTextArg() (string, error) {
	t := p.next()
	if t == nil || (t.kind != tokString && t.kind != tokIdent) {
		return "", invalid(p.text)
	}
	return t.text, nil
}

func (p *parser) parseInt() (int, error) {
	t := p.next()
	if t == nil || t.kind != tokIdent {
		return 0, invalid(p.text)
	}
	v, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, invalid(p.text)
	}
	return v, nil
}
