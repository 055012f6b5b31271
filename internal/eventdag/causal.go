package eventdag

import "context"

// GetEvents retrieves events by id, charging a caller-defined cost against
// the retrieval budget. Grounded on
// _examples/original_source/core/src/lineage/getevents.rs: local reads cost
// 1; remote reads cost more, so the budget exhausts faster when lineage
// comparison has to cross the network.
type GetEvents interface {
	// EstimateCost returns the cost of fetching n events without fetching them.
	EstimateCost(n int) int
	// Fetch returns the requested events (missing ids are simply absent from
	// the result) and the cost actually charged.
	Fetch(ctx context.Context, collection string, ids []EventID) (cost int, events map[EventID]*Event, err error)
}

// LocalEventGetter reads only from a local event store, at cost 1 per event.
type LocalEventGetter struct {
	Store EventStore
}

// EventStore is the minimal per-collection event lookup the DAG needs;
// concrete storage backends (internal/storage) implement it.
type EventStore interface {
	GetEvent(ctx context.Context, collection string, id EventID) (*Event, bool, error)
}

func (g *LocalEventGetter) EstimateCost(n int) int { return n }

func (g *LocalEventGetter) Fetch(ctx context.Context, collection string, ids []EventID) (int, map[EventID]*Event, error) {
	out := make(map[EventID]*Event, len(ids))
	cost := 0
	for _, id := range ids {
		ev, ok, err := g.Store.GetEvent(ctx, collection, id)
		if err != nil {
			return cost, out, err
		}
		cost++
		if ok {
			out[id] = ev
		}
	}
	return cost, out, nil
}

// PeerFetcher is the retrieval interface LocalOrRemoteEventGetter falls back
// to when the local store is missing an id.
type PeerFetcher interface {
	RequestEvents(ctx context.Context, collection string, ids []EventID) (map[EventID]*Event, error)
}

// LocalOrRemoteEventGetter tries local storage first, then falls back to a
// peer for whatever is missing, charging remoteCost per peer-fetched event
// (default higher than the local cost of 1). Grounded on
// core/src/databroker.rs's NetworkDataBroker/NetworkEventGetter split.
type LocalOrRemoteEventGetter struct {
	Local      *LocalEventGetter
	Peer       PeerFetcher
	RemoteCost int
}

func (g *LocalOrRemoteEventGetter) EstimateCost(n int) int {
	if g.RemoteCost <= 0 {
		g.RemoteCost = 4
	}
	return n * g.RemoteCost
}

func (g *LocalOrRemoteEventGetter) Fetch(ctx context.Context, collection string, ids []EventID) (int, map[EventID]*Event, error) {
	cost, out, err := g.Local.Fetch(ctx, collection, ids)
	if err != nil {
		return cost, out, err
	}
	var missing []EventID
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 || g.Peer == nil {
		return cost, out, nil
	}
	remote, err := g.Peer.RequestEvents(ctx, collection, missing)
	if err != nil {
		return cost, out, err
	}
	remoteCost := g.RemoteCost
	if remoteCost <= 0 {
		remoteCost = 4
	}
	for id, ev := range remote {
		out[id] = ev
		cost += remoteCost
	}
	return cost, out, nil
}

// CausalContext answers "does descendant descend ancestor?" without
// necessarily doing I/O — an accumulated DAG fragment the reactor threads
// through LWW conflict resolution. Grounded on
// core/src/event_dag/causal_context.rs.
type CausalContext interface {
	// IsDescendant returns nil when the DAG fragment on hand is insufficient
	// to answer; callers must fetch more and retry.
	IsDescendant(descendant, ancestor EventID) *bool
	Contains(id EventID) bool
}

// DagCausalContext answers from an in-memory map of id -> parent ids,
// accumulated as events are fetched.
type DagCausalContext struct {
	parents   map[EventID][]EventID
	depthMemo map[EventID]int
}

func NewDagCausalContext() *DagCausalContext {
	return &DagCausalContext{parents: make(map[EventID][]EventID)}
}

func (d *DagCausalContext) Add(id EventID, parents []EventID) {
	d.parents[id] = parents
	// Adding a node can raise the depth of anything already memoized as a
	// leaf (depth 0) that is actually this id's as-yet-undiscovered parent;
	// safest to invalidate rather than track the dependency graph of the
	// memo itself.
	d.depthMemo = nil
}

func (d *DagCausalContext) Contains(id EventID) bool {
	_, ok := d.parents[id]
	return ok
}

// IsDescendant does a backward BFS from descendant looking for ancestor. If
// the BFS runs off the edge of known DAG fragment without finding ancestor,
// the answer is unknown (nil), not false — unlike Budgeted comparison this
// type never fetches on its own.
func (d *DagCausalContext) IsDescendant(descendant, ancestor EventID) *bool {
	if descendant == ancestor {
		t := true
		return &t
	}
	visited := map[EventID]bool{descendant: true}
	queue := []EventID{descendant}
	frontierUnknown := false
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		parents, ok := d.parents[cur]
		if !ok {
			if cur != descendant {
				frontierUnknown = true
			}
			continue
		}
		for _, p := range parents {
			if p == ancestor {
				t := true
				return &t
			}
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	if frontierUnknown {
		return nil
	}
	f := false
	return &f
}

// Depth returns id's distance from its deepest known root (a node with no
// known parents) in the accumulated fragment: roots are depth 0, every other
// node is one more than the max depth of its parents. Used by the LWW/json
// backends as the depth-from-common-ancestor tiebreak's practical
// approximation when the fragment doesn't extend back to a literal common
// ancestor: branches sharing a genesis event have identical depth offsets,
// so comparing absolute depth agrees with comparing depth-from-common
// -ancestor. Unknown ids are depth 0. Memoized per DagCausalContext.
func (d *DagCausalContext) Depth(id EventID) int {
	if d.depthMemo == nil {
		d.depthMemo = make(map[EventID]int)
	}
	return d.depth(id, map[EventID]bool{})
}

func (d *DagCausalContext) depth(id EventID, visiting map[EventID]bool) int {
	if v, ok := d.depthMemo[id]; ok {
		return v
	}
	parents, ok := d.parents[id]
	if !ok || len(parents) == 0 || visiting[id] {
		d.depthMemo[id] = 0
		return 0
	}
	visiting[id] = true
	max := -1
	for _, p := range parents {
		if pd := d.depth(p, visiting); pd > max {
			max = pd
		}
	}
	delete(visiting, id)
	result := max + 1
	d.depthMemo[id] = result
	return result
}

// NoCausalContext always answers unknown; used where no DAG fragment has
// been accumulated yet.
type NoCausalContext struct{}

func (NoCausalContext) IsDescendant(EventID, EventID) *bool { return nil }
func (NoCausalContext) Contains(EventID) bool                { return false }
