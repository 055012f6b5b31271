package reactor

import (
	"context"

	"github.com/ankurah/ankurah/internal/ast"
	"github.com/ankurah/ankurah/internal/value"
)

// GapFetcher fetches entities to refill a LIMIT'd result set after a Remove
// drops it below the limit. Grounded on
// original_source/core/src/reactor/fetch_gap.rs's GapFetcher trait.
type GapFetcher interface {
	FetchGap(ctx context.Context, collection string, selection ast.Selection, lastEntity Member, gapSize int) ([]Member, error)
}

// BuildGapPredicate ANDs the original predicate with ORDER BY continuation
// conditions derived from lastEntity's field values (ASC -> >= lastValue,
// DESC -> <= lastValue) and excludes lastEntity's id, so the gap fetch picks
// up exactly where the result set left off. Grounded on
// original_source/core/src/reactor/fetch_gap.rs's build_gap_predicate.
func BuildGapPredicate(original ast.Node, orderBy []ast.OrderByItem, lastEntity Member) ast.Node {
	conditions := []ast.Node{original}

	for _, item := range orderBy {
		fieldValue, ok := lastEntity.PathValue(item.Path.Steps)
		if !ok {
			continue
		}
		op := ast.OpGe
		if item.Direction == ast.Desc {
			op = ast.OpLe
		}
		conditions = append(conditions, &ast.Comparison{
			Left:  ast.PathOperand(item.Path),
			Op:    op,
			Right: ast.LiteralOperand(ast.Lit(fieldValue)),
		})
	}

	idExclusion := &ast.Not{Operand: &ast.Comparison{
		Left:  ast.PathOperand(ast.NewPath("id")),
		Op:    ast.OpEq,
		Right: ast.LiteralOperand(ast.Lit(value.EntityIDValue(lastEntity.ID()))),
	}}
	conditions = append(conditions, idExclusion)

	result := conditions[0]
	for _, c := range conditions[1:] {
		result = &ast.And{Left: result, Right: c}
	}
	return result
}
