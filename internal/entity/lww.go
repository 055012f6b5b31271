package entity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// lwwEntry is the stored state of one property: its current value and the
// event that last won the conflict for it.
type lwwEntry struct {
	val    value.Value
	setBy  eventdag.EventID
	depth  int
	stamped bool // false while val was written locally and not yet committed
}

// LWW is spec.md §4.3's last-writer-wins register backend: a per-property
// store resolved by depth-from-common-ancestor, then lexicographically
// greatest EventId. Different properties never conflict with each other.
type LWW struct {
	entries map[string]*lwwEntry
	dirty   map[string]value.Value
}

func NewLWW() *LWW {
	return &LWW{entries: map[string]*lwwEntry{}, dirty: map[string]value.Value{}}
}

func (l *LWW) Name() string { return BackendLWW }

func (l *LWW) Set(property string, v value.Value) {
	l.dirty[property] = v
}

func (l *LWW) PropertyValue(name string) (value.Value, bool) {
	if v, ok := l.dirty[name]; ok {
		return v, true
	}
	if e, ok := l.entries[name]; ok {
		return e.val, true
	}
	return value.Value{}, false
}

func (l *LWW) PropertyValues() map[string]value.Value {
	out := make(map[string]value.Value, len(l.entries)+len(l.dirty))
	for k, e := range l.entries {
		out[k] = e.val
	}
	for k, v := range l.dirty {
		out[k] = v
	}
	return out
}

// ToOperations encodes the dirty set as: count, then per-property
// (len-prefixed name, type byte, len-prefixed value bytes). Properties are
// sorted so the diff is deterministic.
func (l *LWW) ToOperations() ([]byte, bool) {
	if len(l.dirty) == 0 {
		return nil, false
	}
	names := make([]string, 0, len(l.dirty))
	for k := range l.dirty {
		names = append(names, k)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(names)))
	for _, name := range names {
		writeBytes(&buf, []byte(name))
		v := l.dirty[name]
		buf.WriteByte(byte(v.Type()))
		writeBytes(&buf, encodeValue(v))
	}
	return buf.Bytes(), true
}

func (l *LWW) Stamp(eventID eventdag.EventID, depth int) {
	for name, v := range l.dirty {
		l.entries[name] = &lwwEntry{val: v, setBy: eventID, depth: depth, stamped: true}
	}
	l.dirty = map[string]value.Value{}
}

func (l *LWW) ApplyOperations(diff []byte, ctx ApplyContext) error {
	r := bytes.NewReader(diff)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return fmt.Errorf("entity: lww diff: %w", err)
	}
	for i := uint64(0); i < n; i++ {
		name, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("entity: lww diff property name: %w", err)
		}
		typByte, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("entity: lww diff type tag: %w", err)
		}
		raw, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("entity: lww diff value: %w", err)
		}
		v, err := decodeValue(value.Type(typByte), raw)
		if err != nil {
			return err
		}
		l.resolve(string(name), v, ctx)
	}
	return nil
}

// resolve applies spec.md §4.3's LWW semantics: descends -> overwrite,
// descended-by -> no-op, concurrent -> deeper depth wins, tie -> greater
// EventId wins.
func (l *LWW) resolve(name string, incoming value.Value, ctx ApplyContext) {
	existing, ok := l.entries[name]
	if !ok {
		l.entries[name] = &lwwEntry{val: incoming, setBy: ctx.EventID, depth: ctx.Depth(ctx.EventID), stamped: true}
		return
	}

	if existing.setBy == ctx.EventID {
		return // idempotent re-application of the same event
	}

	if desc := ctx.Descends(ctx.EventID, existing.setBy); desc != nil && *desc {
		l.entries[name] = &lwwEntry{val: incoming, setBy: ctx.EventID, depth: ctx.Depth(ctx.EventID), stamped: true}
		return
	}
	if desc := ctx.Descends(existing.setBy, ctx.EventID); desc != nil && *desc {
		return // historical: current entry already descends the incoming event
	}

	// Concurrent (or unknown -- treated as concurrent so we never silently
	// drop a write): deeper wins, lexicographically greater EventId breaks
	// ties.
	incomingDepth := ctx.Depth(ctx.EventID)
	switch {
	case incomingDepth > existing.depth:
		l.entries[name] = &lwwEntry{val: incoming, setBy: ctx.EventID, depth: incomingDepth, stamped: true}
	case incomingDepth < existing.depth:
		// existing wins, nothing to do
	default:
		if existing.setBy.Less(ctx.EventID) {
			l.entries[name] = &lwwEntry{val: incoming, setBy: ctx.EventID, depth: incomingDepth, stamped: true}
		}
	}
}

func (l *LWW) ToStateBuffer() ([]byte, error) {
	names := make([]string, 0, len(l.entries))
	for k := range l.entries {
		names = append(names, k)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(names)))
	for _, name := range names {
		e := l.entries[name]
		writeBytes(&buf, []byte(name))
		buf.WriteByte(byte(e.val.Type()))
		writeBytes(&buf, encodeValue(e.val))
		buf.Write(e.setBy[:])
		writeUvarint(&buf, uint64(e.depth))
	}
	return buf.Bytes(), nil
}

func (l *LWW) LoadStateBuffer(b []byte) error {
	r := bytes.NewReader(b)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return fmt.Errorf("entity: lww state: %w", err)
	}
	entries := make(map[string]*lwwEntry, n)
	for i := uint64(0); i < n; i++ {
		name, err := readBytes(r)
		if err != nil {
			return err
		}
		typByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		raw, err := readBytes(r)
		if err != nil {
			return err
		}
		v, err := decodeValue(value.Type(typByte), raw)
		if err != nil {
			return err
		}
		var id eventdag.EventID
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return fmt.Errorf("entity: lww state event id: %w", err)
		}
		depth, err := binary.ReadUvarint(r)
		if err != nil {
			return err
		}
		entries[string(name)] = &lwwEntry{val: v, setBy: id, depth: int(depth), stamped: true}
	}
	l.entries = entries
	l.dirty = map[string]value.Value{}
	return nil
}

func (l *LWW) Fork() Backend {
	entries := make(map[string]*lwwEntry, len(l.entries))
	for k, e := range l.entries {
		cp := *e
		entries[k] = &cp
	}
	dirty := make(map[string]value.Value, len(l.dirty))
	for k, v := range l.dirty {
		dirty[k] = v
	}
	return &LWW{entries: entries, dirty: dirty}
}
