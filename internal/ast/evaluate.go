package ast

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ankurah/ankurah/internal/value"
)

// Filterable is implemented by anything a predicate can be evaluated
// against — entities and their views. Grounded on
// _examples/original_source/ankql/src/selection/filter.rs's Filterable
// trait and core/src/entity.rs's impl for Entity ("id" is special-cased;
// everything else is a property lookup).
type Filterable interface {
	Collection() string
	PathValue(steps []string) (value.Value, bool)
}

// Evaluate walks the full boolean tree against f. The predicate index
// (internal/reactor) is only ever a candidate filter; this function is the
// ground truth used to decide real membership.
func Evaluate(n Node, f Filterable) (bool, error) {
	switch node := n.(type) {
	case *True:
		return true, nil
	case *False:
		return false, nil
	case *And:
		l, err := Evaluate(node.Left, f)
		if err != nil {
			return false, err
		}
		if !l {
			return false, nil
		}
		return Evaluate(node.Right, f)
	case *Or:
		l, err := Evaluate(node.Left, f)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return Evaluate(node.Right, f)
	case *Not:
		r, err := Evaluate(node.Operand, f)
		if err != nil {
			return false, err
		}
		return !r, nil
	case *IsNull:
		_, ok := f.PathValue(node.Path.Steps)
		present := ok
		if node.Negate {
			return present, nil
		}
		return !present, nil
	case *Comparison:
		return evaluateComparison(node, f)
	default:
		return false, fmt.Errorf("ast: cannot evaluate node type %T", n)
	}
}

func evaluateComparison(c *Comparison, f Filterable) (bool, error) {
	left, lok, err := resolveOperand(c.Left, f)
	if err != nil {
		return false, err
	}
	right, rok, err := resolveOperand(c.Right, f)
	if err != nil {
		return false, err
	}
	if !lok || !rok {
		// Absent path: comparisons against a missing field never match,
		// except <>/!= which is vacuously true (nothing equals "absent").
		return c.Op == OpNe, nil
	}

	cmp := value.CompareBytes(value.ToBytes(left), value.ToBytes(right))
	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	case OpIn:
		return inSet(right, left), nil
	default:
		return false, fmt.Errorf("ast: unknown operator %v", c.Op)
	}
}

// inSet treats haystack (IN's right operand, a literal or a path) as a JSON
// array and reports whether needle equals one of its string or integer items;
// a haystack that is not Json, and items of other types, never match.
func inSet(haystack, needle value.Value) bool {
	raw, ok := haystack.AsJSON()
	if !ok {
		return false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return false
	}
	needleBytes := value.ToBytes(needle)
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if value.CompareBytes(value.ToBytes(value.String(s)), needleBytes) == 0 {
				return true
			}
			continue
		}
		var n int64
		if err := json.Unmarshal(item, &n); err == nil {
			if value.CompareBytes(value.ToBytes(value.I64(n)), needleBytes) == 0 {
				return true
			}
		}
	}
	return false
}

func resolveOperand(o Operand, f Filterable) (value.Value, bool, error) {
	if o.IsPath() {
		if o.Path.IsSimple() && o.Path.Steps[0] == "id" {
			v, ok := f.PathValue(o.Path.Steps)
			return v, ok, nil
		}
		v, ok := f.PathValue(o.Path.Steps)
		return v, ok, nil
	}
	if o.Literal.IsPlaceholder {
		return value.Value{}, false, fmt.Errorf("ast: placeholder $%s reached execution; placeholders must be bound before evaluation", o.Literal.PlaceholderID)
	}
	return o.Literal.Val, true, nil
}

// FieldsReferenced collects the key (Path.String()) of every path, simple or
// dotted, referenced by a comparison or IS NULL in n, each once, in the order
// first seen.
func FieldsReferenced(n Node) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch node := n.(type) {
		case *And:
			walk(node.Left)
			walk(node.Right)
		case *Or:
			walk(node.Left)
			walk(node.Right)
		case *Not:
			walk(node.Operand)
		case *IsNull:
			key := node.Path.String()
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		case *Comparison:
			for _, op := range []Operand{node.Left, node.Right} {
				if op.IsPath() {
					key := op.Path.String()
					if !seen[key] {
						seen[key] = true
						out = append(out, key)
					}
				}
			}
		}
	}
	walk(n)
	return out
}

// PathKey joins path steps into the canonical string key the reactor uses to
// look up a ComparisonIndex, shared here so both packages derive it
// identically.
func PathKey(steps []string) string { return strings.Join(steps, ".") }
