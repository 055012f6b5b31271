// Package ast implements Ankurah's predicate/selection AST, its parser, and
// the type resolver that coerces literals against path types at query time.
//
// Grounded on the teacher's internal/query package (Node interface,
// recursive-descent lexer/parser shape) generalized per
// _examples/original_source/ankql/src/grammar.rs (dotted paths, ORDER BY,
// LIMIT, IS NULL, IN, and the keyword-as-identifier case).
package ast

import (
	"fmt"
	"strings"

	"github.com/ankurah/ankurah/internal/value"
)

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
)

func (op Op) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpIn:
		return "IN"
	default:
		return "?"
	}
}

// PathExpr is an ordered sequence of property steps. A simple path has one
// step (e.g. "name"); a compound path has more than one (e.g.
// "licensing.territory") and is interpreted as JSON sub-field traversal.
type PathExpr struct {
	Steps []string
}

func NewPath(steps ...string) PathExpr { return PathExpr{Steps: steps} }

func ParsePath(dotted string) PathExpr {
	return PathExpr{Steps: strings.Split(dotted, ".")}
}

func (p PathExpr) IsSimple() bool { return len(p.Steps) == 1 }
func (p PathExpr) String() string { return strings.Join(p.Steps, ".") }

// Literal mirrors value.Value for AST positions; it additionally carries
// Placeholder, which is rejected by execution and exists only mid-parse.
type Literal struct {
	IsPlaceholder bool
	PlaceholderID string
	Val           value.Value
}

func Lit(v value.Value) Literal { return Literal{Val: v} }

func (l Literal) String() string {
	if l.IsPlaceholder {
		return "$" + l.PlaceholderID
	}
	return l.Val.String()
}

// Operand is either a Path or a Literal; exactly one is set.
type Operand struct {
	Path    *PathExpr
	Literal *Literal
}

func PathOperand(p PathExpr) Operand      { return Operand{Path: &p} }
func LiteralOperand(l Literal) Operand    { return Operand{Literal: &l} }
func (o Operand) IsPath() bool            { return o.Path != nil }
func (o Operand) String() string {
	if o.Path != nil {
		return o.Path.String()
	}
	return o.Literal.String()
}

// Node is a boolean-tree predicate node.
type Node interface {
	isNode()
	String() string
}

// Comparison is `left OP right`.
type Comparison struct {
	Left  Operand
	Op    Op
	Right Operand
}

func (n *Comparison) isNode() {}
func (n *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", n.Left.String(), n.Op.String(), n.Right.String())
}

type And struct{ Left, Right Node }

func (n *And) isNode() {}
func (n *And) String() string { return fmt.Sprintf("(%s AND %s)", n.Left.String(), n.Right.String()) }

type Or struct{ Left, Right Node }

func (n *Or) isNode() {}
func (n *Or) String() string { return fmt.Sprintf("(%s OR %s)", n.Left.String(), n.Right.String()) }

type Not struct{ Operand Node }

func (n *Not) isNode() {}
func (n *Not) String() string { return fmt.Sprintf("NOT %s", n.Operand.String()) }

// IsNull tests whether Path's value is absent (used for JSON sub-paths and
// optional properties).
type IsNull struct {
	Path   PathExpr
	Negate bool
}

func (n *IsNull) isNode() {}
func (n *IsNull) String() string {
	if n.Negate {
		return fmt.Sprintf("%s IS NOT NULL", n.Path.String())
	}
	return fmt.Sprintf("%s IS NULL", n.Path.String())
}

type True struct{}

func (n *True) isNode()        {}
func (n *True) String() string { return "TRUE" }

type False struct{}

func (n *False) isNode()        {}
func (n *False) String() string { return "FALSE" }

// Direction is an ORDER BY direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

type OrderByItem struct {
	Path      PathExpr
	Direction Direction
}

// Selection bundles a predicate with an optional ORDER BY list and LIMIT,
// the unit a live query registers with the reactor.
type Selection struct {
	Predicate Node
	OrderBy   []OrderByItem
	Limit     *int
}
