package entity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// charID identifies one inserted character. Event is the sentinel
// pendingEvent while the insert is part of an uncommitted local edit; Stamp
// rewrites every pendingEvent occurrence to the real committed EventId.
type charID struct {
	Event eventdag.EventID
	Seq   uint32
}

var pendingEvent eventdag.EventID // zero value; never a valid content hash

func (a charID) less(b charID) bool {
	if a.Event != b.Event {
		return a.Event.Less(b.Event)
	}
	return a.Seq < b.Seq
}

type charElem struct {
	id      charID
	origin  *charID
	ch      rune
	deleted bool
}

type opKind byte

const (
	opInsert opKind = iota
	opDelete
)

type textOp struct {
	kind   opKind
	id     charID  // insert: new element id; delete: target id
	origin *charID // insert only
	ch     rune    // insert only
}

// Text is spec.md §4.3's "yrs" backend: a text-sequence CRDT supporting
// insert/delete/overwrite/replace, implemented as a from-scratch
// character-granularity RGA (no Go port of yrs exists in the example
// corpus). Concurrent inserts at the same position are both retained and
// ordered deterministically by charID, independent of delivery order, per
// spec.md §4.3/§8 invariant 4.
type Text struct {
	elems       []charElem
	localSeq    uint32
	pending     []textOp
	pendingTomb map[charID]bool // deletes that arrived before their insert
}

func NewText() *Text {
	return &Text{pendingTomb: map[charID]bool{}}
}

func (t *Text) Name() string { return BackendYrs }

func (t *Text) visibleLen() int {
	n := 0
	for _, e := range t.elems {
		if !e.deleted {
			n++
		}
	}
	return n
}

// visibleIndex returns the slice index of the nth visible element (n is
// 0-based); returns len(elems) if n == visible length.
func (t *Text) visibleIndex(n int) int {
	seen := 0
	for i, e := range t.elems {
		if e.deleted {
			continue
		}
		if seen == n {
			return i
		}
		seen++
	}
	return len(t.elems)
}

func (t *Text) String() string {
	var b []rune
	for _, e := range t.elems {
		if !e.deleted {
			b = append(b, e.ch)
		}
	}
	return string(b)
}

// Insert records an insertion of s at visible-character offset pos.
func (t *Text) Insert(pos int, s string) {
	idx := t.visibleIndex(pos)
	var origin *charID
	if idx > 0 {
		o := t.elems[idx-1].id
		origin = &o
	}
	for _, r := range s {
		id := charID{Event: pendingEvent, Seq: t.localSeq}
		t.localSeq++
		t.insertLocal(idx, origin, id, r)
		t.pending = append(t.pending, textOp{kind: opInsert, id: id, origin: origin, ch: r})
		origin = &id
		idx++
	}
}

func (t *Text) insertLocal(afterIdx int, origin *charID, id charID, ch rune) {
	pos := t.placement(afterIdx, origin, id)
	elem := charElem{id: id, origin: origin, ch: ch}
	t.elems = append(t.elems, charElem{})
	copy(t.elems[pos+1:], t.elems[pos:])
	t.elems[pos] = elem
}

// placement finds the RGA insertion point for a new element with the given
// origin and id: immediately after origin, skipping any existing sibling
// (same origin) whose id sorts higher, so concurrent inserts at the same
// position converge to the same order regardless of delivery order.
func (t *Text) placement(hint int, origin *charID, id charID) int {
	start := 0
	if origin != nil {
		for i, e := range t.elems {
			if e.id == *origin {
				start = i + 1
				break
			}
		}
	}
	idx := start
	for idx < len(t.elems) {
		e := t.elems[idx]
		sameOrigin := (e.origin == nil && origin == nil) || (e.origin != nil && origin != nil && *e.origin == *origin)
		if !sameOrigin {
			break
		}
		if id.less(e.id) {
			idx++
			continue
		}
		break
	}
	return idx
}

// Delete removes length visible characters starting at visible offset pos.
func (t *Text) Delete(pos, length int) {
	for i := 0; i < length; i++ {
		idx := t.visibleIndex(pos)
		if idx >= len(t.elems) {
			break
		}
		id := t.elems[idx].id
		t.elems[idx].deleted = true
		t.pending = append(t.pending, textOp{kind: opDelete, id: id})
	}
}

// Overwrite replaces oldLen visible characters at pos with new.
func (t *Text) Overwrite(pos, oldLen int, newText string) {
	t.Delete(pos, oldLen)
	t.Insert(pos, newText)
}

// Replace substitutes the entire document with new.
func (t *Text) Replace(newText string) {
	t.Delete(0, t.visibleLen())
	t.Insert(0, newText)
}

func (t *Text) PropertyValue(name string) (value.Value, bool) {
	return value.String(t.String()), true
}

func (t *Text) PropertyValues() map[string]value.Value {
	return map[string]value.Value{"": value.String(t.String())}
}

func (t *Text) ToOperations() ([]byte, bool) {
	if len(t.pending) == 0 {
		return nil, false
	}
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(t.pending)))
	for _, op := range t.pending {
		buf.WriteByte(byte(op.kind))
		writeCharID(&buf, op.id)
		if op.kind == opInsert {
			writeOptCharID(&buf, op.origin)
			var rb [4]byte
			n := utf8.EncodeRune(rb[:], op.ch)
			writeBytes(&buf, rb[:n])
		}
	}
	return buf.Bytes(), true
}

func (t *Text) Stamp(eventID eventdag.EventID, depth int) {
	if len(t.pending) == 0 {
		return
	}
	stamp := func(id charID) charID {
		if id.Event == pendingEvent {
			return charID{Event: eventID, Seq: id.Seq}
		}
		return id
	}
	for i := range t.elems {
		t.elems[i].id = stamp(t.elems[i].id)
		if t.elems[i].origin != nil {
			o := stamp(*t.elems[i].origin)
			t.elems[i].origin = &o
		}
	}
	t.pending = nil
}

func (t *Text) ApplyOperations(diff []byte, ctx ApplyContext) error {
	r := bytes.NewReader(diff)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return fmt.Errorf("entity: text diff: %w", err)
	}
	for i := uint64(0); i < n; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		id, err := readCharID(r, ctx.EventID)
		if err != nil {
			return err
		}
		switch opKind(kindByte) {
		case opInsert:
			origin, err := readOptCharID(r, ctx.EventID)
			if err != nil {
				return err
			}
			raw, err := readBytes(r)
			if err != nil {
				return err
			}
			ch, _ := utf8.DecodeRune(raw)
			t.applyRemoteInsert(origin, id, ch)
		case opDelete:
			t.applyRemoteDelete(id)
		default:
			return fmt.Errorf("entity: text diff: unknown op kind %d", kindByte)
		}
	}
	return nil
}

func (t *Text) applyRemoteInsert(origin *charID, id charID, ch rune) {
	for _, e := range t.elems {
		if e.id == id {
			return // idempotent re-application
		}
	}
	idx := t.placement(0, origin, id)
	elem := charElem{id: id, origin: origin, ch: ch, deleted: t.pendingTomb[id]}
	delete(t.pendingTomb, id)
	t.elems = append(t.elems, charElem{})
	copy(t.elems[idx+1:], t.elems[idx:])
	t.elems[idx] = elem
}

func (t *Text) applyRemoteDelete(id charID) {
	for i := range t.elems {
		if t.elems[i].id == id {
			t.elems[i].deleted = true
			return
		}
	}
	t.pendingTomb[id] = true
}

func (t *Text) ToStateBuffer() ([]byte, error) {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(t.elems)))
	for _, e := range t.elems {
		writeCharID(&buf, e.id)
		writeOptCharID(&buf, e.origin)
		var rb [4]byte
		n := utf8.EncodeRune(rb[:], e.ch)
		writeBytes(&buf, rb[:n])
		if e.deleted {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes(), nil
}

func (t *Text) LoadStateBuffer(b []byte) error {
	r := bytes.NewReader(b)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return fmt.Errorf("entity: text state: %w", err)
	}
	elems := make([]charElem, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := readCharID(r, pendingEvent)
		if err != nil {
			return err
		}
		origin, err := readOptCharID(r, pendingEvent)
		if err != nil {
			return err
		}
		raw, err := readBytes(r)
		if err != nil {
			return err
		}
		ch, _ := utf8.DecodeRune(raw)
		delByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		elems = append(elems, charElem{id: id, origin: origin, ch: ch, deleted: delByte == 1})
	}
	t.elems = elems
	t.pending = nil
	return nil
}

func (t *Text) Fork() Backend {
	elems := make([]charElem, len(t.elems))
	copy(elems, t.elems)
	pending := make([]textOp, len(t.pending))
	copy(pending, t.pending)
	tomb := make(map[charID]bool, len(t.pendingTomb))
	for k, v := range t.pendingTomb {
		tomb[k] = v
	}
	return &Text{elems: elems, localSeq: t.localSeq, pending: pending, pendingTomb: tomb}
}

func writeCharID(buf *bytes.Buffer, id charID) {
	buf.Write(id.Event[:])
	var sb [4]byte
	binary.BigEndian.PutUint32(sb[:], id.Seq)
	buf.Write(sb[:])
}

func readCharID(r *bytes.Reader, fallbackEvent eventdag.EventID) (charID, error) {
	var id charID
	if _, err := io.ReadFull(r, id.Event[:]); err != nil {
		return id, err
	}
	var sb [4]byte
	if _, err := io.ReadFull(r, sb[:]); err != nil {
		return id, err
	}
	id.Seq = binary.BigEndian.Uint32(sb[:])
	if id.Event == pendingEvent {
		id.Event = fallbackEvent
	}
	return id, nil
}

func writeOptCharID(buf *bytes.Buffer, id *charID) {
	if id == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeCharID(buf, *id)
}

func readOptCharID(r *bytes.Reader, fallbackEvent eventdag.EventID) (*charID, error) {
	has, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if has == 0 {
		return nil, nil
	}
	id, err := readCharID(r, fallbackEvent)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

