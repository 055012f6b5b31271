package ast

import "github.com/ankurah/ankurah/internal/value"

// Schema optionally supplies a field's declared ValueType; when absent the
// resolver falls back to heuristics. Grounded on
// _examples/original_source/core/src/value/cast_predicate.rs's
// CollectionSchema::field_type.
type Schema interface {
	FieldType(path PathExpr) (value.Type, bool)
}

// Resolver walks a Selection and coerces each comparison's literal operand
// against the ValueType of the path it is compared with. Grounded on
// _examples/original_source/core/src/type_resolver.rs: resolve_types walks
// the predicate tree; resolve_path supplies id -> EntityId, multi-step ->
// Json, otherwise falls back to the literal's own type (no rewrite). The
// resolver never evaluates or simplifies boolean structure — it only
// rewrites literals in place.
type Resolver struct {
	Schema Schema // optional; nil falls back to pure heuristics
}

// ResolveSelection mutates sel.Predicate in place, casting literals to match
// their comparison partner's resolved type. Coercion is query-time only: it
// never touches stored values, keeping replication byte-stable across
// heterogeneous storage backends.
func (r *Resolver) ResolveSelection(sel *Selection) error {
	return r.resolveNode(sel.Predicate)
}

func (r *Resolver) resolveNode(n Node) error {
	switch node := n.(type) {
	case *Comparison:
		return r.resolveComparison(node)
	case *And:
		if err := r.resolveNode(node.Left); err != nil {
			return err
		}
		return r.resolveNode(node.Right)
	case *Or:
		if err := r.resolveNode(node.Left); err != nil {
			return err
		}
		return r.resolveNode(node.Right)
	case *Not:
		return r.resolveNode(node.Operand)
	default:
		return nil // True, False, IsNull carry no literal to coerce
	}
}

func (r *Resolver) resolveComparison(c *Comparison) error {
	// Path-vs-path comparisons carry no literal to coerce.
	if c.Left.IsPath() && c.Right.IsPath() {
		return nil
	}
	if !c.Left.IsPath() && !c.Right.IsPath() {
		return nil
	}

	path, litOperand := c.Left.Path, &c.Right
	if c.Right.IsPath() {
		path, litOperand = c.Right.Path, &c.Left
	}

	target, ok := r.resolvePathType(*path, litOperand.Literal.Val)
	if !ok {
		return nil // unresolvable: leave literal unchanged, execution may signal a mismatch
	}

	cast, err := litOperand.Literal.Val.CastTo(target)
	if err != nil {
		return nil // non-total conversion: leave literal unchanged, per spec
	}
	litOperand.Literal.Val = cast
	return nil
}

// resolvePathType implements the distilled heuristic (spec.md §4.2): schema
// lookup first when available; otherwise id -> EntityId, multi-step path ->
// Json, simple path -> infer from the literal's own type (no rewrite needed).
func (r *Resolver) resolvePathType(path PathExpr, literal value.Value) (value.Type, bool) {
	if r.Schema != nil {
		if t, ok := r.Schema.FieldType(path); ok {
			return t, true
		}
	}
	if path.IsSimple() && path.Steps[0] == "id" {
		return value.TypeEntityID, true
	}
	if !path.IsSimple() {
		return value.TypeJSON, true
	}
	return literal.Type(), true
}
