package passes

import (
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

// TestPropagateBooleansMarksKnownProducers pins spec §4.5's list of
// operators whose result is always boolean regardless of their operands.
func TestPropagateBooleansMarksKnownProducers(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"x": 0, "y": 1}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "x"},                    // 0
		{Op: ir.OpInput, Name: "y"},                     // 1
		{Op: ir.OpNot, Args: []ir.ID{0}},                 // 2: not
		{Op: ir.OpAnd, Args: []ir.ID{0, 1}},              // 3: and
		{Op: ir.OpOr, Args: []ir.ID{0, 1}},               // 4: or
		{Op: ir.OpIsEq, Args: []ir.ID{0, 1}},             // 5: is_eq
		{Op: ir.OpIsNeq, Args: []ir.ID{0, 1}},            // 6: is_neq
		{Op: ir.OpIsLt, Args: []ir.ID{0, 1}},             // 7: is_lt
		{Op: ir.OpIsLe, Args: []ir.ID{0, 1}},             // 8: is_le
		{Op: ir.OpAssert, Args: []ir.ID{0}},              // 9: assert
		{Op: ir.OpRangeCheck, Args: []ir.ID{0}, Bits: 1}, // 10: range_check(x, 1)
		{Op: ir.OpRangeCheck, Args: []ir.ID{0}, Bits: 8}, // 11: range_check(x, 8) - not boolean
		{Op: ir.OpConst, Const: field.Zero()},            // 12: 0
		{Op: ir.OpConst, Const: field.One()},              // 13: 1
		{Op: ir.OpConst, Const: field.FromUint64(2)},      // 14: 2 - not boolean
	}

	known := PropagateBooleans(p)

	for _, id := range []ir.ID{2, 3, 4, 5, 6, 7, 8, 9, 10, 12, 13} {
		if !known[id] {
			t.Errorf("id %d expected to be known-boolean, was not marked", id)
		}
	}
	for _, id := range []ir.ID{0, 1, 11, 14} {
		if known[id] {
			t.Errorf("id %d was marked known-boolean unexpectedly", id)
		}
	}
}

// TestPropagateBooleansThroughMux pins the Mux propagation rule: the
// result is known-boolean only when both branches already are.
func TestPropagateBooleansThroughMux(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"c": 0, "x": 1}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "c"},                     // 0: condition
		{Op: ir.OpInput, Name: "x"},                      // 1: non-boolean witness
		{Op: ir.OpConst, Const: field.Zero()},            // 2: 0
		{Op: ir.OpConst, Const: field.One()},              // 3: 1
		{Op: ir.OpMux, Args: []ir.ID{0, 2, 3}},           // 4: mux(c, 0, 1) - both boolean
		{Op: ir.OpMux, Args: []ir.ID{0, 1, 3}},           // 5: mux(c, x, 1) - x not boolean
	}

	known := PropagateBooleans(p)

	if !known[4] {
		t.Error("mux with two known-boolean branches should be known-boolean")
	}
	if known[5] {
		t.Error("mux with a non-boolean branch should not be known-boolean")
	}
}
