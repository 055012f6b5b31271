package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// JSONDoc is spec.md §4.3's JSON backend: the whole document is itself an
// LWW register (same conflict resolution as LWW, just applied to a single
// document value instead of per-property). Query paths like
// "licensing.territory" evaluate via GetPath; absent paths are (nil,false).
// Grounded on _examples/original_source/core/src/property/value/json.rs.
type JSONDoc struct {
	doc     json.RawMessage
	setBy   eventdag.EventID
	depth   int
	stamped bool
	dirty   json.RawMessage
	hasDoc  bool
}

func NewJSONDoc() *JSONDoc {
	return &JSONDoc{doc: json.RawMessage("null"), hasDoc: true}
}

func (j *JSONDoc) Name() string { return BackendJSON }

func (j *JSONDoc) Set(doc json.RawMessage) {
	j.dirty = append(json.RawMessage(nil), doc...)
}

// GetPath evaluates a dotted sub-path against the current document,
// preferring an uncommitted write if present.
func (j *JSONDoc) GetPath(steps []string) (value.Value, bool) {
	raw := j.doc
	if j.dirty != nil {
		raw = j.dirty
	}
	if raw == nil {
		return value.Value{}, false
	}
	var cur any
	if err := json.Unmarshal(raw, &cur); err != nil {
		return value.Value{}, false
	}
	for _, step := range steps {
		m, ok := cur.(map[string]any)
		if !ok {
			return value.Value{}, false
		}
		cur, ok = m[step]
		if !ok {
			return value.Value{}, false
		}
	}
	b, err := json.Marshal(cur)
	if err != nil {
		return value.Value{}, false
	}
	return value.JSON(b), true
}

func (j *JSONDoc) PropertyValue(name string) (value.Value, bool) {
	return j.GetPath(strings.Split(name, "."))
}

func (j *JSONDoc) PropertyValues() map[string]value.Value {
	raw := j.doc
	if j.dirty != nil {
		raw = j.dirty
	}
	return map[string]value.Value{"": value.JSON(raw)}
}

func (j *JSONDoc) ToOperations() ([]byte, bool) {
	if j.dirty == nil {
		return nil, false
	}
	return append([]byte(nil), j.dirty...), true
}

func (j *JSONDoc) Stamp(eventID eventdag.EventID, depth int) {
	if j.dirty == nil {
		return
	}
	j.doc = j.dirty
	j.hasDoc = true
	j.setBy = eventID
	j.depth = depth
	j.stamped = true
	j.dirty = nil
}

func (j *JSONDoc) ApplyOperations(diff []byte, ctx ApplyContext) error {
	if !json.Valid(diff) {
		return fmt.Errorf("entity: json backend: invalid diff payload")
	}
	if !j.hasDoc {
		j.doc = append(json.RawMessage(nil), diff...)
		j.hasDoc = true
		j.setBy = ctx.EventID
		j.depth = ctx.Depth(ctx.EventID)
		j.stamped = true
		return nil
	}
	if j.setBy == ctx.EventID {
		return nil
	}
	if desc := ctx.Descends(ctx.EventID, j.setBy); desc != nil && *desc {
		j.overwrite(diff, ctx)
		return nil
	}
	if desc := ctx.Descends(j.setBy, ctx.EventID); desc != nil && *desc {
		return nil
	}
	incomingDepth := ctx.Depth(ctx.EventID)
	switch {
	case incomingDepth > j.depth:
		j.overwrite(diff, ctx)
	case incomingDepth < j.depth:
		// existing wins
	default:
		if j.setBy.Less(ctx.EventID) {
			j.overwrite(diff, ctx)
		}
	}
	return nil
}

func (j *JSONDoc) overwrite(diff []byte, ctx ApplyContext) {
	j.doc = append(json.RawMessage(nil), diff...)
	j.setBy = ctx.EventID
	j.depth = ctx.Depth(ctx.EventID)
	j.stamped = true
}

func (j *JSONDoc) ToStateBuffer() ([]byte, error) {
	var buf []byte
	buf = append(buf, j.setBy[:]...)
	buf = appendUvarint(buf, uint64(j.depth))
	buf = append(buf, j.doc...)
	return buf, nil
}

func (j *JSONDoc) LoadStateBuffer(b []byte) error {
	if len(b) < 32 {
		return fmt.Errorf("entity: json state buffer too short")
	}
	var id eventdag.EventID
	copy(id[:], b[:32])
	depth, n := readUvarintFrom(b[32:])
	j.setBy = id
	j.depth = int(depth)
	j.doc = append(json.RawMessage(nil), b[32+n:]...)
	j.hasDoc = true
	j.stamped = true
	j.dirty = nil
	return nil
}

func (j *JSONDoc) Fork() Backend {
	cp := *j
	cp.doc = append(json.RawMessage(nil), j.doc...)
	if j.dirty != nil {
		cp.dirty = append(json.RawMessage(nil), j.dirty...)
	}
	return &cp
}

func appendUvarint(b []byte, n uint64) []byte {
	for n >= 0x80 {
		b = append(b, byte(n)|0x80)
		n >>= 7
	}
	return append(b, byte(n))
}

func readUvarintFrom(b []byte) (uint64, int) {
	var x uint64
	var s uint
	for i, c := range b {
		if c < 0x80 {
			return x | uint64(c)<<s, i + 1
		}
		x |= uint64(c&0x7f) << s
		s += 7
	}
	return 0, 0
}
