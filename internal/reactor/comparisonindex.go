// Package reactor implements Ankurah's live-query reactor: the predicate
// index that finds candidate subscriptions for a changed field, the ordered
// result sets live queries maintain, and the membership/gap-fill logic that
// turns a stream of entity changes into Add/Update/Remove notifications.
//
// Grounded on _examples/original_source/core/src/comparison_index.rs,
// core/src/resultset.rs, and core/src/reactor/{fetch_gap,subscription_state}.rs.
package reactor

import (
	"sort"

	"github.com/ankurah/ankurah/internal/ast"
)

// QueryID identifies one registered live query within a reactor.
type QueryID uint64

// ComparisonIndex is a conservative per-field candidate index: eq/ne/gt/lt
// buckets keyed by collated bytes. It never produces false negatives, only
// false positives — the full predicate is always re-evaluated against the
// real entity before a membership decision is made. Grounded on
// original_source/core/src/comparison_index.rs; the explicit `ne` bucket is
// spec.md's addition over the Rust source, which had no `<>` index and
// presumably treated `<>` as "matches everything, re-evaluate".
type ComparisonIndex struct {
	eq map[string][]QueryID
	ne map[string][]QueryID
	gt sortedBuckets
	lt sortedBuckets
}

// sortedBuckets is a small sorted-slice substitute for Rust's BTreeMap: the
// corpus has no off-the-shelf ordered map, and reactor field cardinality
// (distinct threshold values per field) is small enough that linear
// range-scan over a sorted slice is the right trade, matching the teacher's
// own preference for simple slices over a generic b-tree dependency.
type sortedBuckets struct {
	keys    [][]byte
	queries [][]QueryID
}

func (b *sortedBuckets) find(key []byte) int {
	return sort.Search(len(b.keys), func(i int) bool {
		return compareBytesLex(b.keys[i], key) >= 0
	})
}

func (b *sortedBuckets) entry(key []byte) *[]QueryID {
	i := b.find(key)
	if i < len(b.keys) && compareBytesLex(b.keys[i], key) == 0 {
		return &b.queries[i]
	}
	b.keys = append(b.keys, nil)
	b.queries = append(b.queries, nil)
	copy(b.keys[i+1:], b.keys[i:])
	copy(b.queries[i+1:], b.queries[i:])
	b.keys[i] = append([]byte(nil), key...)
	b.queries[i] = nil
	return &b.queries[i]
}

func compareBytesLex(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func NewComparisonIndex() *ComparisonIndex {
	return &ComparisonIndex{eq: map[string][]QueryID{}, ne: map[string][]QueryID{}}
}

func addTo(ids []QueryID, id QueryID) []QueryID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeFrom(ids []QueryID, id QueryID) []QueryID {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Add registers id as a candidate whenever a probe satisfies op against the
// collated bytes of value. >=/<= are normalized into gt/lt via
// predecessor_bytes/successor_bytes, matching the Rust source's for_entry.
func (c *ComparisonIndex) Add(op ast.Op, valueBytes []byte, predOrSucc func(greaterOrEqual bool) []byte, id QueryID) {
	switch op {
	case ast.OpEq:
		c.eq[string(valueBytes)] = addTo(c.eq[string(valueBytes)], id)
	case ast.OpNe:
		c.ne[string(valueBytes)] = addTo(c.ne[string(valueBytes)], id)
	case ast.OpGt:
		e := c.gt.entry(valueBytes)
		*e = addTo(*e, id)
	case ast.OpLt:
		e := c.lt.entry(valueBytes)
		*e = addTo(*e, id)
	case ast.OpGe:
		key := predOrSucc(true) // predecessor; nil means "matches everything" -> empty-key bucket
		e := c.gt.entry(key)
		*e = addTo(*e, id)
	case ast.OpLe:
		if key := predOrSucc(false); key != nil { // successor; nil means no match is possible
			e := c.lt.entry(key)
			*e = addTo(*e, id)
		}
	}
}

// Remove is the inverse of Add, called when a query unregisters or rewrites
// its predicate.
func (c *ComparisonIndex) Remove(op ast.Op, valueBytes []byte, predOrSucc func(greaterOrEqual bool) []byte, id QueryID) {
	switch op {
	case ast.OpEq:
		c.eq[string(valueBytes)] = removeFrom(c.eq[string(valueBytes)], id)
	case ast.OpNe:
		c.ne[string(valueBytes)] = removeFrom(c.ne[string(valueBytes)], id)
	case ast.OpGt:
		e := c.gt.entry(valueBytes)
		*e = removeFrom(*e, id)
	case ast.OpLt:
		e := c.lt.entry(valueBytes)
		*e = removeFrom(*e, id)
	case ast.OpGe:
		key := predOrSucc(true)
		e := c.gt.entry(key)
		*e = removeFrom(*e, id)
	case ast.OpLe:
		if key := predOrSucc(false); key != nil {
			e := c.lt.entry(key)
			*e = removeFrom(*e, id)
		}
	}
}

// FindMatching returns every query whose registered threshold could match
// probeBytes: exact eq hits, every ne bucket whose key differs from probe,
// every gt bucket strictly less than probe, every lt bucket strictly
// greater than probe.
func (c *ComparisonIndex) FindMatching(probeBytes []byte) []QueryID {
	seen := map[QueryID]bool{}
	var out []QueryID
	add := func(ids []QueryID) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	add(c.eq[string(probeBytes)])

	for key, ids := range c.ne {
		if key != string(probeBytes) {
			add(ids)
		}
	}

	i := c.gt.find(probeBytes)
	for j := 0; j < i; j++ {
		add(c.gt.queries[j])
	}
	// the bucket exactly equal to probe is also ">" probe's own threshold
	// only if probe is strictly greater, which `find` (first index >= probe)
	// already excludes by stopping at i.

	j := c.lt.find(probeBytes)
	if j < len(c.lt.keys) && compareBytesLex(c.lt.keys[j], probeBytes) == 0 {
		j++ // bucket threshold == probe: "< threshold" excludes probe itself
	}
	for ; j < len(c.lt.keys); j++ {
		add(c.lt.queries[j])
	}

	return out
}
