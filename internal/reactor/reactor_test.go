package reactor

import (
	"context"
	"testing"

	"github.com/ankurah/ankurah/internal/ast"
	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nextTaskSeed byte

func newTask(t *testing.T, status string) *entity.Entity {
	t.Helper()
	nextTaskSeed++
	var id value.EntityID
	id[0] = nextTaskSeed
	ent := entity.New(id, "tasks")
	lww := ent.Backend(entity.BackendLWW).(*entity.LWW)
	lww.Set("status", value.String(status))
	return ent
}

func statusEq(v string) ast.Selection {
	return ast.Selection{
		Predicate: &ast.Comparison{
			Left:  ast.PathOperand(ast.NewPath("status")),
			Op:    ast.OpEq,
			Right: ast.LiteralOperand(ast.Lit(value.String(v))),
		},
	}
}

func TestReactorAddUpdateRemoveTransitions(t *testing.T) {
	r := NewReactor()
	sub := r.NewSubscription()

	var notifications []Notification
	sub.OnNotify(func(n Notification) { notifications = append(notifications, n) })

	qid := r.RegisterQuery(sub, "tasks", statusEq("open"), nil, nil)
	require.NotZero(t, qid)

	open := newTask(t, "open")
	notes := r.ApplyChange(context.Background(), nil, open, "tasks", nil)
	r.Dispatch(notes)
	require.Len(t, notifications, 1)
	require.Len(t, notifications[0].Items, 1)
	assert.Equal(t, Add, notifications[0].Items[0].Change)

	notifications = nil
	before := open.Snapshot()
	open.Backend(entity.BackendLWW).(*entity.LWW).Set("priority", value.I64(5))
	notes = r.ApplyChange(context.Background(), before, open, "tasks", nil)
	r.Dispatch(notes)
	require.Len(t, notifications, 1)
	assert.Equal(t, Update, notifications[0].Items[0].Change)

	notifications = nil
	before = open.Snapshot()
	open.Backend(entity.BackendLWW).(*entity.LWW).Set("status", value.String("closed"))
	notes = r.ApplyChange(context.Background(), before, open, "tasks", nil)
	r.Dispatch(notes)
	require.Len(t, notifications, 1)
	assert.Equal(t, Remove, notifications[0].Items[0].Change)
}

func TestReactorOrPredicateFallsBackToAlwaysEvaluate(t *testing.T) {
	r := NewReactor()
	sub := r.NewSubscription()

	sel := ast.Selection{Predicate: &ast.Or{
		Left:  &ast.Comparison{Left: ast.PathOperand(ast.NewPath("status")), Op: ast.OpEq, Right: ast.LiteralOperand(ast.Lit(value.String("open")))},
		Right: &ast.Comparison{Left: ast.PathOperand(ast.NewPath("urgent")), Op: ast.OpEq, Right: ast.LiteralOperand(ast.Lit(value.Bool(true)))},
	}}
	r.RegisterQuery(sub, "tasks", sel, nil, nil)

	ent := entity.New(value.EntityID{}, "tasks")
	ent.Backend(entity.BackendLWW).(*entity.LWW).Set("urgent", value.Bool(true))

	var got []UpdateItem
	sub.OnNotify(func(n Notification) { got = append(got, n.Items...) })
	notes := r.ApplyChange(context.Background(), nil, ent, "tasks", nil)
	r.Dispatch(notes)
	require.Len(t, got, 1)
	assert.Equal(t, Add, got[0].Change)
}

type fakeGapFetcher struct {
	results []Member
}

func (f *fakeGapFetcher) FetchGap(ctx context.Context, collection string, selection ast.Selection, lastEntity Member, gapSize int) ([]Member, error) {
	if gapSize <= 0 || len(f.results) == 0 {
		return nil, nil
	}
	if gapSize > len(f.results) {
		gapSize = len(f.results)
	}
	out := f.results[:gapSize]
	f.results = f.results[gapSize:]
	return out, nil
}

func TestReactorGapFillAfterRemoveUnderLimit(t *testing.T) {
	r := NewReactor()
	sub := r.NewSubscription()

	limit := 1
	sel := statusEq("open")
	sel.Limit = &limit

	first := newTask(t, "open")
	fetcher := &fakeGapFetcher{results: []Member{newTask(t, "open")}}
	qid := r.RegisterQuery(sub, "tasks", sel, []Member{first}, fetcher)
	require.NotZero(t, qid)

	var items []UpdateItem
	sub.OnNotify(func(n Notification) { items = append(items, n.Items...) })

	before := first.Snapshot()
	first.Backend(entity.BackendLWW).(*entity.LWW).Set("status", value.String("closed"))
	notes := r.ApplyChange(context.Background(), before, first, "tasks", nil)
	r.Dispatch(notes)

	require.GreaterOrEqual(t, len(items), 1)
	assert.Equal(t, Remove, items[0].Change)
	foundAdd := false
	for _, it := range items[1:] {
		if it.Change == Add {
			foundAdd = true
		}
	}
	assert.True(t, foundAdd, "gap fill should have produced a compensating Add")
}
