package reactor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ankurah/ankurah/internal/ast"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// MembershipChange is the transition a reactor computes for one (query,
// entity) pair on each applied change, per spec.md §4.5.
type MembershipChange int

const (
	Add MembershipChange = iota
	Update
	Remove
)

func (m MembershipChange) String() string {
	switch m {
	case Add:
		return "Add"
	case Update:
		return "Update"
	case Remove:
		return "Remove"
	default:
		return "?"
	}
}

// UpdateItem is one entity's membership transition within a query, surfaced
// to the subscription's notification channel.
type UpdateItem struct {
	QueryID QueryID
	Entity  Member
	Events  []eventdag.EventID
	Change  MembershipChange
}

// Notification is the single coherent batch a subscription receives for one
// processed change, per spec.md §4.5's quiescence guarantee: exactly one
// notification per affected subscription, Removes ordered before their
// compensating gap-fill Adds.
type Notification struct {
	SubscriptionID SubscriptionID
	Items          []UpdateItem
}

// candidateMode records how precisely a query's predicate was decomposed
// into index entries at registration time.
type candidateMode int

const (
	modeIndexed    candidateMode = iota // top-level AND of simple comparisons; precise old/new probing
	modeAlwaysEval                      // OR/NOT present, or no probeable comparison; always re-evaluated, never pruned
)

// Reactor owns every registered live query's predicate index and result
// set, and turns a stream of applied entity changes into per-subscription
// notifications. Grounded on
// _examples/original_source/core/src/comparison_index.rs,
// core/src/resultset.rs, core/src/reactor/{fetch_gap,subscription_state}.rs.
//
// Candidate generation: a predicate that is a top-level AND of simple field
// comparisons is decomposed into ComparisonIndex entries and probed with
// both the entity's old and new value for each changed field (catching both
// the became-a-candidate and stopped-being-a-candidate directions). A
// predicate containing OR/NOT is registered as "always evaluate" instead of
// attempting to model OR/NOT index interactions precisely — the index is
// documented in spec.md §4.5 as conservative (false positives only, no false
// negatives), and always-candidate trivially satisfies that contract for the
// predicates the index can't decompose or probe.
type Reactor struct {
	mu            sync.Mutex
	nextQueryID   uint64
	nextSubID     uint64
	queries       map[QueryID]*query
	byCollection  map[string][]QueryID
	indexes       map[string]*ComparisonIndex // fieldKey -> index, only for modeIndexed queries
	queryMode     map[QueryID]candidateMode
	subscriptions map[SubscriptionID]*Subscription
}

type SubscriptionID uint64

func NewReactor() *Reactor {
	return &Reactor{
		queries:       map[QueryID]*query{},
		byCollection:  map[string][]QueryID{},
		indexes:       map[string]*ComparisonIndex{},
		queryMode:     map[QueryID]candidateMode{},
		subscriptions: map[SubscriptionID]*Subscription{},
	}
}

// NewSubscription allocates a subscription handle that queries can be
// attached to via RegisterQuery.
func (r *Reactor) NewSubscription() *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := SubscriptionID(atomic.AddUint64(&r.nextSubID, 1))
	s := &Subscription{id: id, reactor: r, entitySubs: map[value.EntityID]bool{}}
	r.subscriptions[id] = s
	return s
}

// RegisterQuery attaches a live query to sub, populates its result set from
// initial (the storage/peer fetch the caller already performed — "Initial
// population" per spec.md §4.5), and indexes the predicate for candidate
// generation. Returns the query's id for later unregistration.
func (r *Reactor) RegisterQuery(sub *Subscription, collection string, selection ast.Selection, initial []Member, gapFetcher GapFetcher) QueryID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := QueryID(atomic.AddUint64(&r.nextQueryID, 1))
	rs := NewResultSet()
	sorted := sortByOrderBy(initial, selection.OrderBy)
	if selection.Limit != nil && len(sorted) > *selection.Limit {
		sorted = sorted[:*selection.Limit]
	}
	rs.ReplaceAll(sorted)
	rs.SetLoaded(true)

	q := &query{id: id, collection: collection, selection: selection, resultset: rs, gapFetcher: gapFetcher, subID: sub.id}
	r.queries[id] = q
	r.byCollection[collection] = append(r.byCollection[collection], id)

	comparisons, ok := decomposeTopLevelAnd(selection.Predicate)
	// candidateQueries probes only top-level properties (never "id"), and IN
	// has no index bucket, so a conjunction is indexed only if at least one of
	// its comparisons can be found that way; otherwise it is always evaluated.
	probed := false
	for _, c := range comparisons {
		p := c.Left.Path
		if !c.Left.IsPath() {
			p = c.Right.Path
		}
		if _, _, lok := fieldLiteral(c); lok && c.Op != ast.OpIn && len(p.Steps) == 1 && p.Steps[0] != "id" {
			probed = true
		}
	}
	if !ok || !probed {
		r.queryMode[id] = modeAlwaysEval
	} else {
		r.queryMode[id] = modeIndexed
		for _, c := range comparisons {
			r.indexComparison(id, c)
		}
	}

	sub.mu.Lock()
	sub.queries = append(sub.queries, id)
	for _, e := range sorted {
		sub.entitySubs[e.ID()] = true
	}
	sub.mu.Unlock()
	return id
}

// UnregisterQuery removes a query and its index entries.
func (r *Reactor) UnregisterQuery(id QueryID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[id]
	if !ok {
		return
	}
	if comparisons, ok := decomposeTopLevelAnd(q.selection.Predicate); ok {
		for _, c := range comparisons {
			r.unindexComparison(id, c)
		}
	}
	delete(r.queries, id)
	delete(r.queryMode, id)
	ids := r.byCollection[q.collection]
	for i, qid := range ids {
		if qid == id {
			r.byCollection[q.collection] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func fieldIndexKey(path ast.PathExpr) string { return ast.PathKey(path.Steps) }

func (r *Reactor) indexKeyFor(field string) *ComparisonIndex {
	idx, ok := r.indexes[field]
	if !ok {
		idx = NewComparisonIndex()
		r.indexes[field] = idx
	}
	return idx
}

func (r *Reactor) indexComparison(id QueryID, c *ast.Comparison) {
	field, literal, ok := fieldLiteral(c)
	if !ok {
		return
	}
	idx := r.indexKeyFor(field)
	probe := predOrSuccFn(literal)
	idx.Add(c.Op, value.ToBytes(literal), probe, id)
}

func (r *Reactor) unindexComparison(id QueryID, c *ast.Comparison) {
	field, literal, ok := fieldLiteral(c)
	if !ok {
		return
	}
	if idx, ok := r.indexes[field]; ok {
		probe := predOrSuccFn(literal)
		idx.Remove(c.Op, value.ToBytes(literal), probe, id)
	}
}

func predOrSuccFn(literal value.Value) func(bool) []byte {
	return func(greaterOrEqual bool) []byte {
		if greaterOrEqual {
			return value.PredecessorBytes(literal)
		}
		return value.SuccessorBytes(literal)
	}
}

// fieldLiteral extracts (field key, literal value) from a simple-path-vs-
// literal comparison; returns ok=false for path-vs-path or placeholder
// comparisons, which can't be indexed.
func fieldLiteral(c *ast.Comparison) (string, value.Value, bool) {
	var path *ast.PathExpr
	var lit *ast.Literal
	if c.Left.IsPath() && !c.Right.IsPath() {
		path, lit = c.Left.Path, c.Right.Literal
	} else if c.Right.IsPath() && !c.Left.IsPath() {
		path, lit = c.Right.Path, c.Left.Literal
	} else {
		return "", value.Value{}, false
	}
	if lit == nil || lit.IsPlaceholder {
		return "", value.Value{}, false
	}
	return fieldIndexKey(*path), lit.Val, true
}

// decomposeTopLevelAnd flattens a chain of top-level ANDs into its leaf
// Comparisons; ok is false if the predicate contains OR/NOT/IsNull/True/
// False anywhere at the top level (those fall back to always-evaluate).
func decomposeTopLevelAnd(n ast.Node) ([]*ast.Comparison, bool) {
	switch node := n.(type) {
	case *ast.Comparison:
		return []*ast.Comparison{node}, true
	case *ast.And:
		left, ok := decomposeTopLevelAnd(node.Left)
		if !ok {
			return nil, false
		}
		right, ok := decomposeTopLevelAnd(node.Right)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	default:
		return nil, false
	}
}

// ApplyChange evaluates a single entity change against every registered
// query on its collection and returns the notifications to deliver. old may
// be nil (the entity didn't exist before, or wasn't in any result set).
func (r *Reactor) ApplyChange(ctx context.Context, old, current Member, collection string, events []eventdag.EventID) []Notification {
	r.mu.Lock()
	candidates := r.candidateQueries(old, current, collection)
	qs := make([]*query, 0, len(candidates))
	for _, id := range candidates {
		if q, ok := r.queries[id]; ok {
			qs = append(qs, q)
		}
	}
	r.mu.Unlock()

	type work struct {
		q      *query
		change MembershipChange
	}
	var transitions []work
	for _, q := range qs {
		wasMember := q.resultset.ContainsKey(current.ID())
		isMember, err := ast.Evaluate(q.selection.Predicate, current)
		if err != nil {
			isMember = false
		}
		switch {
		case !wasMember && isMember:
			if withinLimit(q) {
				q.resultset.Push(current)
			} else {
				q.gapDirty = true
				continue
			}
			transitions = append(transitions, work{q, Add})
		case wasMember && isMember:
			q.resultset.Remove(current.ID())
			q.resultset.Push(current)
			transitions = append(transitions, work{q, Update})
		case wasMember && !isMember:
			q.resultset.Remove(current.ID())
			if limit, ok := q.limit(); ok && q.resultset.Len() < limit {
				q.gapDirty = true
			}
			transitions = append(transitions, work{q, Remove})
		}
	}

	bySub := map[SubscriptionID][]UpdateItem{}
	for _, t := range transitions {
		item := UpdateItem{QueryID: t.q.id, Entity: current, Events: events, Change: t.change}
		bySub[t.q.subID] = append(bySub[t.q.subID], item)
	}

	var notifications []Notification
	for subID, items := range bySub {
		sortRemovesFirst(items)
		r.mu.Lock()
		sub := r.subscriptions[subID]
		r.mu.Unlock()
		if sub == nil {
			continue
		}
		items = r.fillGaps(ctx, sub, items)
		notifications = append(notifications, Notification{SubscriptionID: subID, Items: items})
	}
	return notifications
}

// candidateQueries must be called with r.mu held.
func (r *Reactor) candidateQueries(old, current Member, collection string) []QueryID {
	seen := map[QueryID]bool{}
	var out []QueryID
	add := func(id QueryID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range r.byCollection[collection] {
		if r.queryMode[id] == modeAlwaysEval {
			add(id)
		}
	}
	fields := map[string]bool{}
	for k := range current.PropertyValues() {
		if k != "" {
			fields[k] = true
		}
	}
	if old != nil {
		for k := range old.PropertyValues() {
			if k != "" {
				fields[k] = true
			}
		}
	}
	for field := range fields {
		idx, ok := r.indexes[field]
		if !ok {
			continue
		}
		if v, ok := current.PathValue([]string{field}); ok {
			for _, id := range idx.FindMatching(value.ToBytes(v)) {
				add(id)
			}
		}
		if old != nil {
			if v, ok := old.PathValue([]string{field}); ok {
				for _, id := range idx.FindMatching(value.ToBytes(v)) {
					add(id)
				}
			}
		}
	}
	return out
}

func withinLimit(q *query) bool {
	limit, ok := q.limit()
	if !ok {
		return true
	}
	return q.resultset.Len() < limit
}

// sortRemovesFirst reorders items so Removes precede Adds/Updates, per
// spec.md §5's ordering guarantee that a batch's Removes are internally
// sorted ahead of their compensating gap-fill Adds.
func sortRemovesFirst(items []UpdateItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Change == Remove && items[j].Change != Remove
	})
}

func (r *Reactor) fillGaps(ctx context.Context, sub *Subscription, items []UpdateItem) []UpdateItem {
	r.mu.Lock()
	var toFill []*query
	for _, id := range sub.queries {
		q, ok := r.queries[id]
		if !ok || !q.gapDirty || q.gapFetcher == nil {
			continue
		}
		limit, ok := q.limit()
		if !ok || q.resultset.Len() >= limit {
			q.gapDirty = false
			continue
		}
		toFill = append(toFill, q)
	}
	r.mu.Unlock()

	for _, q := range toFill {
		gapSize := mustLimit(q) - q.resultset.Len()
		last := q.resultset.Last()
		pred := q.selection.Predicate
		if last != nil {
			pred = BuildGapPredicate(pred, q.selection.OrderBy, last)
		}
		filled, err := q.gapFetcher.FetchGap(ctx, q.collection, ast.Selection{Predicate: pred, OrderBy: q.selection.OrderBy, Limit: q.selection.Limit}, last, gapSize)
		r.mu.Lock()
		q.gapDirty = false
		r.mu.Unlock()
		if err != nil {
			continue
		}
		for _, e := range filled {
			if q.resultset.Push(e) {
				items = append(items, UpdateItem{QueryID: q.id, Entity: e, Change: Add})
			}
		}
	}
	return items
}

func mustLimit(q *query) int {
	limit, _ := q.limit()
	return limit
}

func sortByOrderBy(entities []Member, orderBy []ast.OrderByItem) []Member {
	out := append([]Member(nil), entities...)
	if len(orderBy) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, item := range orderBy {
			vi, oki := out[i].PathValue(item.Path.Steps)
			vj, okj := out[j].PathValue(item.Path.Steps)
			if !oki || !okj {
				continue
			}
			cmp := value.CompareBytes(value.ToBytes(vi), value.ToBytes(vj))
			if item.Direction == ast.Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return out
}
