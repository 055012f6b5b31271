package reactor

import (
	"github.com/ankurah/ankurah/internal/ast"
)

// query is a registered live query: the predicate it watches, the ordered
// result set it maintains, and the gap-fill bookkeeping for ORDER BY+LIMIT.
// Grounded on original_source/core/src/reactor/subscription_state.rs's
// QueryState.
type query struct {
	id         QueryID
	collection string
	selection  ast.Selection
	resultset  *ResultSet
	gapFetcher GapFetcher
	gapDirty   bool
	subID      SubscriptionID
}

func (q *query) limit() (int, bool) {
	if q.selection.Limit == nil {
		return 0, false
	}
	return *q.selection.Limit, true
}
