package compile

import (
	"fmt"

	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// ConstKind discriminates a compiled constant-pool entry before it has
// been materialized against a specific heap (spec §3 "Heap": arena
// handles only make sense for one Heap instance, so a compiled Program
// cannot bake them in directly; see Program.Load).
type ConstKind int

const (
	ConstNil ConstKind = iota
	ConstBool
	ConstInt
	ConstString
	ConstField
)

// Const is one constant-pool slot of a compiled prototype, in the neutral
// (not-yet-heap-allocated) representation Program carries until Load.
type Const struct {
	Kind    ConstKind
	Bool    bool
	Int     int64
	Str     string
	Decimal string // field element, decimal, for ConstField
}

func (c Const) key() string {
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstBool:
		return fmt.Sprintf("b:%v", c.Bool)
	case ConstInt:
		return fmt.Sprintf("i:%d", c.Int)
	case ConstString:
		return "s:" + c.Str
	case ConstField:
		return "f:" + c.Decimal
	default:
		return fmt.Sprintf("?:%d", c.Kind)
	}
}

// materialize allocates c's heap-backed representation (string and field
// constants each own an arena slot) against h and returns the resulting
// tagged value.
func (c Const) materialize(h *heap.Heap) (value.Value, error) {
	switch c.Kind {
	case ConstNil:
		return value.Nil(), nil
	case ConstBool:
		return value.Bool(c.Bool), nil
	case ConstInt:
		return value.NewInt(c.Int)
	case ConstString:
		hnd, err := h.AllocString(heap.String{Bytes: []byte(c.Str)})
		if err != nil {
			return 0, err
		}
		return value.FromHandle(value.TagString, hnd), nil
	case ConstField:
		fe, err := field.FromDecimal(c.Decimal)
		if err != nil {
			return 0, err
		}
		hnd, err := h.AllocField(heap.Field{Elem: fe})
		if err != nil {
			return 0, err
		}
		return value.FromHandle(value.TagField, hnd), nil
	default:
		return 0, fmt.Errorf("compile: unknown constant kind %d", c.Kind)
	}
}
