// Package value implements the virtual machine's 64-bit tagged value model
// (spec §3 "Tagged value"). A tagged value carries a 4-bit discriminant in
// the high nibble and a 60-bit payload: either an inline signed integer or
// a 32-bit heap arena handle.
package value

import "fmt"

// Tag discriminates the variant held by a Value.
type Tag uint8

const (
	TagInt Tag = iota
	TagNil
	TagFalse
	TagTrue
	TagString
	TagList
	TagMap
	TagFunction
	TagField
	TagProof
	TagNative
	TagClosure
	TagIterator
)

func (t Tag) String() string {
	switch t {
	case TagInt:
		return "int"
	case TagNil:
		return "nil"
	case TagFalse, TagTrue:
		return "bool"
	case TagString:
		return "string"
	case TagList:
		return "list"
	case TagMap:
		return "map"
	case TagFunction:
		return "function"
	case TagField:
		return "field"
	case TagProof:
		return "proof"
	case TagNative:
		return "function"
	case TagClosure:
		return "function"
	case TagIterator:
		return "iterator"
	default:
		return "unknown"
	}
}

const (
	tagShift   = 60
	tagMask    = uint64(0xF) << tagShift
	payloadBits = tagShift
	// MaxInt and MinInt bound the inline signed 60-bit integer range.
	MaxInt = int64(1)<<59 - 1
	MinInt = -(int64(1) << 59)
)

// Value is the VM's single 64-bit representation for every dynamic value.
type Value uint64

// Handle is a 32-bit arena index into one of the heap's typed arenas.
type Handle uint32

func withTag(tag Tag, payload uint64) Value {
	return Value(uint64(tag)<<tagShift | (payload & ((uint64(1) << payloadBits) - 1)))
}

// Nil is the nil literal.
func Nil() Value { return withTag(TagNil, 0) }

// Bool encodes a boolean.
func Bool(b bool) Value {
	if b {
		return withTag(TagTrue, 0)
	}
	return withTag(TagFalse, 0)
}

// NewInt encodes a signed integer in the inline 60-bit range. Exceeding the
// range is an IntegerOverflow, not silent truncation (spec §3, §8).
func NewInt(i int64) (Value, error) {
	if i < MinInt || i > MaxInt {
		return 0, fmt.Errorf("value: integer %d overflows 60-bit inline range", i)
	}
	// Store as 60 bits of two's-complement payload.
	return withTag(TagInt, uint64(i)&((uint64(1)<<payloadBits)-1)), nil
}

// FromHandle encodes a heap handle under the given tag.
func FromHandle(tag Tag, h Handle) Value {
	if tag == TagInt || tag == TagNil || tag == TagFalse || tag == TagTrue {
		panic("value: FromHandle called with an inline tag")
	}
	return withTag(tag, uint64(h))
}

// Tag returns the discriminant.
func (v Value) Tag() Tag { return Tag(uint64(v) >> tagShift) }

// IsInt reports whether v holds an inline integer.
func (v Value) IsInt() bool { return v.Tag() == TagInt }

// IsNil reports whether v is nil.
func (v Value) IsNil() bool { return v.Tag() == TagNil }

// IsBool reports whether v is a boolean.
func (v Value) IsBool() bool { return v.Tag() == TagTrue || v.Tag() == TagFalse }

// AsBool returns the boolean value; callers must check IsBool first.
func (v Value) AsBool() bool { return v.Tag() == TagTrue }

// AsInt decodes the inline signed 60-bit integer, sign-extending the
// payload back to a 64-bit int64.
func (v Value) AsInt() int64 {
	payload := uint64(v) &^ tagMask
	const signBit = uint64(1) << (payloadBits - 1)
	if payload&signBit != 0 {
		return int64(payload | tagMask) // sign-extend through the tag nibble
	}
	return int64(payload)
}

// AsHandle decodes the 32-bit heap handle. Callers must check the tag first.
func (v Value) AsHandle() Handle {
	return Handle(uint64(v) &^ tagMask)
}

// TypeName returns the name `typeof` exposes to the source language.
func (v Value) TypeName() string {
	if v.IsInt() {
		return "int"
	}
	return v.Tag().String()
}

// IsHeapAllocated reports whether v holds a handle into one of the heap's
// arenas, as opposed to an inline value.
func (v Value) IsHeapAllocated() bool {
	switch v.Tag() {
	case TagInt, TagNil, TagFalse, TagTrue:
		return false
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Tag() {
	case TagInt:
		return fmt.Sprintf("%d", v.AsInt())
	case TagNil:
		return "nil"
	case TagTrue:
		return "true"
	case TagFalse:
		return "false"
	default:
		return fmt.Sprintf("%s(#%d)", v.Tag(), v.AsHandle())
	}
}
