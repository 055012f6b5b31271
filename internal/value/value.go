// Package value implements Ankurah's tagged scalar value type: its variants,
// deterministic order-preserving byte collation, and the small set of total
// type conversions the query engine relies on.
//
// Grounded on _examples/original_source/core/src/value/collatable.rs (byte
// encodings) and _examples/original_source/ankql/src/collation.rs
// (successor/predecessor/range-bound semantics).
package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Type tags a Value's variant.
type Type int

const (
	TypeI16 Type = iota
	TypeI32
	TypeI64
	TypeF64
	TypeBool
	TypeString
	TypeEntityID
	TypeBinary
	TypeObject
	TypeJSON
)

func (t Type) String() string {
	switch t {
	case TypeI16:
		return "I16"
	case TypeI32:
		return "I32"
	case TypeI64:
		return "I64"
	case TypeF64:
		return "F64"
	case TypeBool:
		return "Bool"
	case TypeString:
		return "String"
	case TypeEntityID:
		return "EntityId"
	case TypeBinary:
		return "Binary"
	case TypeObject:
		return "Object"
	case TypeJSON:
		return "Json"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// EntityID is a 16-byte entity identifier.
type EntityID [16]byte

func (id EntityID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ParseEntityID parses the URL-safe base64 form produced by EntityID.String.
func ParseEntityID(s string) (EntityID, error) {
	var id EntityID
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("value: invalid entity id %q: %w", s, err)
	}
	if len(b) != 16 {
		return id, fmt.Errorf("value: entity id %q decodes to %d bytes, want 16", s, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Value is a tagged union over Ankurah's scalar and semi-structured types.
// Exactly one of the typed fields is meaningful, selected by Type.
type Value struct {
	typ   Type
	i     int64
	f     float64
	b     bool
	s     string
	bytes []byte
	eid   EntityID
	json  json.RawMessage
}

func (v Value) Type() Type { return v.typ }

func I16(n int16) Value  { return Value{typ: TypeI16, i: int64(n)} }
func I32(n int32) Value  { return Value{typ: TypeI32, i: int64(n)} }
func I64(n int64) Value  { return Value{typ: TypeI64, i: n} }
func F64(f float64) Value { return Value{typ: TypeF64, f: f} }
func Bool(b bool) Value  { return Value{typ: TypeBool, b: b} }
func String(s string) Value { return Value{typ: TypeString, s: s} }
func Binary(b []byte) Value { return Value{typ: TypeBinary, bytes: append([]byte(nil), b...)} }
func Object(b []byte) Value { return Value{typ: TypeObject, bytes: append([]byte(nil), b...)} }
func EntityIDValue(id EntityID) Value { return Value{typ: TypeEntityID, eid: id} }
func JSON(raw json.RawMessage) Value  { return Value{typ: TypeJSON, json: append(json.RawMessage(nil), raw...)} }

// AsI64 returns the integer payload, widening I16/I32 as signed.
func (v Value) AsI64() (int64, bool) {
	switch v.typ {
	case TypeI16, TypeI32, TypeI64:
		return v.i, true
	default:
		return 0, false
	}
}

func (v Value) AsF64() (float64, bool) {
	if v.typ == TypeF64 {
		return v.f, true
	}
	return 0, false
}

func (v Value) AsBool() (bool, bool) {
	if v.typ == TypeBool {
		return v.b, true
	}
	return false, false
}

func (v Value) AsString() (string, bool) {
	if v.typ == TypeString {
		return v.s, true
	}
	return "", false
}

func (v Value) AsEntityID() (EntityID, bool) {
	if v.typ == TypeEntityID {
		return v.eid, true
	}
	return EntityID{}, false
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.typ == TypeBinary || v.typ == TypeObject {
		return v.bytes, true
	}
	return nil, false
}

func (v Value) AsJSON() (json.RawMessage, bool) {
	if v.typ == TypeJSON {
		return v.json, true
	}
	return nil, false
}

// String renders a canonical textual form, used by cast_to(String) and by
// diagnostics.
func (v Value) String() string {
	switch v.typ {
	case TypeI16, TypeI32, TypeI64:
		return strconv.FormatInt(v.i, 10)
	case TypeF64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeBool:
		if v.b {
			return "true"
		}
		return "false"
	case TypeString:
		return v.s
	case TypeEntityID:
		return v.eid.String()
	case TypeBinary, TypeObject:
		return base64.StdEncoding.EncodeToString(v.bytes)
	case TypeJSON:
		return string(v.json)
	default:
		return ""
	}
}

// ErrInvalidVariant is returned by CastTo for non-total conversions.
type ErrInvalidVariant struct {
	From, To Type
}

func (e *ErrInvalidVariant) Error() string {
	return fmt.Sprintf("value: cannot cast %s to %s", e.From, e.To)
}

// CastTo performs the small set of conversions the type resolver relies on:
// integer<->integer, integer->f64, f64->integer when the value is whole, any
// value->string via its canonical textual form, string->integer and
// string->f64 by parsing, any value->Json by wrapping, and EntityId<->string
// via URL-safe base64 (no padding). String->Bool and Json->any other type are
// not converted; they and every other conversion return *ErrInvalidVariant.
func (v Value) CastTo(target Type) (Value, error) {
	if v.typ == target {
		return v, nil
	}

	switch target {
	case TypeI16, TypeI32, TypeI64:
		if n, ok := v.AsI64(); ok {
			return reinterpretInt(n, target), nil
		}
		if f, ok := v.AsF64(); ok && f == float64(int64(f)) {
			return reinterpretInt(int64(f), target), nil
		}
		if s, ok := v.AsString(); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return reinterpretInt(n, target), nil
			}
		}
	case TypeF64:
		if n, ok := v.AsI64(); ok {
			return F64(float64(n)), nil
		}
		if s, ok := v.AsString(); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return F64(f), nil
			}
		}
	case TypeString:
		return String(v.String()), nil
	case TypeJSON:
		b, err := json.Marshal(scalarForJSON(v))
		if err != nil {
			return Value{}, &ErrInvalidVariant{From: v.typ, To: target}
		}
		return JSON(b), nil
	case TypeEntityID:
		if s, ok := v.AsString(); ok {
			id, err := ParseEntityID(s)
			if err == nil {
				return EntityIDValue(id), nil
			}
		}
	}

	return Value{}, &ErrInvalidVariant{From: v.typ, To: target}
}

func reinterpretInt(n int64, t Type) Value {
	switch t {
	case TypeI16:
		return I16(int16(n))
	case TypeI32:
		return I32(int32(n))
	default:
		return I64(n)
	}
}

func scalarForJSON(v Value) any {
	switch v.typ {
	case TypeI16, TypeI32, TypeI64:
		n, _ := v.AsI64()
		return n
	case TypeF64:
		f, _ := v.AsF64()
		return f
	case TypeBool:
		b, _ := v.AsBool()
		return b
	case TypeString:
		s, _ := v.AsString()
		return s
	case TypeEntityID:
		return v.String()
	default:
		return v.String()
	}
}

// Equal reports whether two values are equal by byte collation (the only
// equality the engine needs: same type, same bytes).
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	return string(ToBytes(v)) == string(ToBytes(other))
}

// Encode produces a reversible byte representation (distinct from ToBytes,
// which is an order-preserving collation and not always reversible per
// type). Used by backend operation/state-buffer codecs and the event wire
// format's operation payloads.
func Encode(v Value) []byte {
	switch v.typ {
	case TypeI16, TypeI32, TypeI64:
		n, _ := v.AsI64()
		return encodeInt(n)
	case TypeF64:
		f, _ := v.AsF64()
		return encodeFloatBits(f)
	case TypeBool:
		if v.b {
			return []byte{1}
		}
		return []byte{0}
	case TypeString:
		return []byte(v.s)
	case TypeEntityID:
		b := make([]byte, 16)
		copy(b, v.eid[:])
		return b
	case TypeBinary, TypeObject:
		return append([]byte(nil), v.bytes...)
	case TypeJSON:
		return append([]byte(nil), v.json...)
	default:
		return nil
	}
}

// Decode is Encode's inverse for the given type tag.
func Decode(t Type, b []byte) (Value, error) {
	switch t {
	case TypeI16:
		if len(b) != 8 {
			return Value{}, fmt.Errorf("value: decode I16: want 8 bytes, got %d", len(b))
		}
		return I16(int16(decodeInt(b))), nil
	case TypeI32:
		if len(b) != 8 {
			return Value{}, fmt.Errorf("value: decode I32: want 8 bytes, got %d", len(b))
		}
		return I32(int32(decodeInt(b))), nil
	case TypeI64:
		if len(b) != 8 {
			return Value{}, fmt.Errorf("value: decode I64: want 8 bytes, got %d", len(b))
		}
		return I64(decodeInt(b)), nil
	case TypeF64:
		if len(b) != 8 {
			return Value{}, fmt.Errorf("value: decode F64: want 8 bytes, got %d", len(b))
		}
		return F64(decodeFloatBits(b)), nil
	case TypeBool:
		if len(b) != 1 {
			return Value{}, fmt.Errorf("value: decode Bool: want 1 byte, got %d", len(b))
		}
		return Bool(b[0] != 0), nil
	case TypeString:
		return String(string(b)), nil
	case TypeEntityID:
		if len(b) != 16 {
			return Value{}, fmt.Errorf("value: decode EntityId: want 16 bytes, got %d", len(b))
		}
		var id EntityID
		copy(id[:], b)
		return EntityIDValue(id), nil
	case TypeBinary:
		return Binary(b), nil
	case TypeObject:
		return Object(b), nil
	case TypeJSON:
		return JSON(append(json.RawMessage(nil), b...)), nil
	default:
		return Value{}, fmt.Errorf("value: decode: unknown type tag %d", t)
	}
}
