package eventdag

import (
	"context"
	"errors"
	"fmt"
)

// Relation is the result of comparing two clocks on the same entity.
type Relation int

const (
	RelationEqual Relation = iota
	RelationDescends
	RelationDescendedBy
	RelationConcurrent
	RelationDiverged
)

func (r Relation) String() string {
	switch r {
	case RelationEqual:
		return "equal"
	case RelationDescends:
		return "descends"
	case RelationDescendedBy:
		return "descended-by"
	case RelationConcurrent:
		return "concurrent"
	case RelationDiverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// ErrBudgetExceeded is returned when lineage comparison could not complete
// within the retrieval budget. It is diagnostic, not fatal: operators can
// raise the budget rather than accept an arbitrary answer. Grounded on
// spec.md §9's "Retrieval budget over cyclic lookups" design note, which
// names this as the fix for pathological root-traversal on long linear
// histories intersected by a small concurrent branch.
type ErrBudgetExceeded struct {
	Subject, Other Clock
	Budget         int
}

func (e *ErrBudgetExceeded) Error() string {
	return fmt.Sprintf("eventdag: lineage comparison exceeded budget %d (subject=%v other=%v)", e.Budget, e.Subject.IDs(), e.Other.IDs())
}

// CompareLineage computes the relation between clocks a and b by parallel
// backward BFS, terminating as soon as either frontier's head lies in the
// other's visited set (a descends/descended-by case) or the frontier
// expansion is exhausted (concurrent/diverged). budget bounds the number of
// event fetches charged via getter; exceeding it returns *ErrBudgetExceeded
// rather than guessing.
func CompareLineage(ctx context.Context, collection string, a, b Clock, getter GetEvents, budget int) (Relation, error) {
	if a.Equal(b) {
		return RelationEqual, nil
	}

	visitedA := map[EventID]bool{}
	visitedB := map[EventID]bool{}
	for id := range a {
		visitedA[id] = true
	}
	for id := range b {
		visitedB[id] = true
	}

	frontierA := a.IDs()
	frontierB := b.IDs()
	spent := 0

	for len(frontierA) > 0 || len(frontierB) > 0 {
		if intersects(visitedA, b) && intersects(visitedB, a) {
			// Each side has absorbed some of the other's frontier but
			// neither wholly contains the other: diverged.
			return RelationDiverged, nil
		}
		if containsAll(visitedA, b) {
			return RelationDescends, nil
		}
		if containsAll(visitedB, a) {
			return RelationDescendedBy, nil
		}

		var err error
		frontierA, spent, err = expandFrontier(ctx, collection, frontierA, visitedA, getter, budget, &spent)
		if err != nil {
			if errors.Is(err, errBudget) {
				return 0, &ErrBudgetExceeded{Subject: a, Other: b, Budget: budget}
			}
			return 0, err
		}
		frontierB, spent, err = expandFrontier(ctx, collection, frontierB, visitedB, getter, budget, &spent)
		if err != nil {
			if errors.Is(err, errBudget) {
				return 0, &ErrBudgetExceeded{Subject: a, Other: b, Budget: budget}
			}
			return 0, err
		}

		if len(frontierA) == 0 && len(frontierB) == 0 {
			break
		}
	}

	if containsAll(visitedA, b) {
		return RelationDescends, nil
	}
	if containsAll(visitedB, a) {
		return RelationDescendedBy, nil
	}
	if intersects(visitedA, b) || intersects(visitedB, a) {
		return RelationDiverged, nil
	}
	return RelationConcurrent, nil
}

func expandFrontier(ctx context.Context, collection string, frontier []EventID, visited map[EventID]bool, getter GetEvents, budget int, spent *int) ([]EventID, int, error) {
	if len(frontier) == 0 {
		return nil, *spent, nil
	}
	cost, events, err := getter.Fetch(ctx, collection, frontier)
	if err != nil {
		return nil, *spent, err
	}
	*spent += cost
	if *spent > budget {
		return nil, *spent, errBudget
	}
	var next []EventID
	for _, id := range frontier {
		ev, ok := events[id]
		if !ok {
			continue // unknown event: treat as a dead end, per spec's "gap to be fetched from peers"
		}
		for _, p := range ev.Parent.IDs() {
			if !visited[p] {
				visited[p] = true
				next = append(next, p)
			}
		}
	}
	return next, *spent, nil
}

var errBudget = errors.New("eventdag: budget sentinel")

func containsAll(visited map[EventID]bool, c Clock) bool {
	for id := range c {
		if !visited[id] {
			return false
		}
	}
	return true
}

func intersects(visited map[EventID]bool, c Clock) bool {
	for id := range c {
		if visited[id] {
			return true
		}
	}
	return false
}
