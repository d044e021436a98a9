package passes

import (
	"reflect"
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

func constProg(instrs ...ir.Instr) *ir.Program {
	return &ir.Program{Instrs: instrs, InputValue: map[string]ir.ID{}}
}

// TestFoldCollapsesConstantArithmetic pins spec §4.5: when every operand of
// an arithmetic instruction is constant, Fold replaces it in place with the
// folded OpConst, keeping SSA ids stable.
func TestFoldCollapsesConstantArithmetic(t *testing.T) {
	p := constProg(
		ir.Instr{Op: ir.OpConst, Const: field.FromUint64(3)},
		ir.Instr{Op: ir.OpConst, Const: field.FromUint64(4)},
		ir.Instr{Op: ir.OpAdd, Args: []ir.ID{0, 1}},
		ir.Instr{Op: ir.OpMul, Args: []ir.ID{2, 1}},
	)
	Fold(p)

	if p.Instrs[2].Op != ir.OpConst || !p.Instrs[2].Const.Equal(field.FromUint64(7)) {
		t.Fatalf("3+4 did not fold to 7: %+v", p.Instrs[2])
	}
	if p.Instrs[3].Op != ir.OpConst || !p.Instrs[3].Const.Equal(field.FromUint64(28)) {
		t.Fatalf("7*4 did not fold to 28: %+v", p.Instrs[3])
	}
}

// TestFoldIdentities pins the structural identities Fold recognizes
// independent of whether the other operand is constant: x+0, x*1, x*0,
// x-x, and Mux with equal branches.
func TestFoldIdentities(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"x": 0}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "x"},           // 0: x
		{Op: ir.OpConst, Const: field.Zero()}, // 1: 0
		{Op: ir.OpConst, Const: field.One()},  // 2: 1
		{Op: ir.OpAdd, Args: []ir.ID{0, 1}},   // 3: x+0
		{Op: ir.OpMul, Args: []ir.ID{0, 2}},   // 4: x*1
		{Op: ir.OpMul, Args: []ir.ID{0, 1}},   // 5: x*0
		{Op: ir.OpSub, Args: []ir.ID{0, 0}},   // 6: x-x
		{Op: ir.OpMux, Args: []ir.ID{2, 0, 0}}, // 7: mux(1, x, x)
	}
	Fold(p)

	if !reflect.DeepEqual(p.Instrs[3], p.Instrs[0]) {
		t.Fatalf("x+0 did not alias to x: %+v", p.Instrs[3])
	}
	if !reflect.DeepEqual(p.Instrs[4], p.Instrs[0]) {
		t.Fatalf("x*1 did not alias to x: %+v", p.Instrs[4])
	}
	if p.Instrs[5].Op != ir.OpConst || !p.Instrs[5].Const.IsZero() {
		t.Fatalf("x*0 did not fold to 0: %+v", p.Instrs[5])
	}
	if p.Instrs[6].Op != ir.OpConst || !p.Instrs[6].Const.IsZero() {
		t.Fatalf("x-x did not fold to 0: %+v", p.Instrs[6])
	}
	if !reflect.DeepEqual(p.Instrs[7], p.Instrs[0]) {
		t.Fatalf("mux(c, x, x) did not alias to x: %+v", p.Instrs[7])
	}
}

// TestFoldMuxRejectsNonBooleanConstantCondition pins spec §4.5/§9 open
// question 3: a fully-constant Mux condition outside {0,1} must not be
// silently resolved to either branch. Fold must leave the Mux untouched so
// ir.Evaluate rejects it with NonBooleanMuxCondition instead of a soundness
// divergence going unnoticed.
func TestFoldMuxRejectsNonBooleanConstantCondition(t *testing.T) {
	p := constProg(
		ir.Instr{Op: ir.OpConst, Const: field.FromUint64(2)}, // 0: condition = 2
		ir.Instr{Op: ir.OpConst, Const: field.FromUint64(10)}, // 1: then
		ir.Instr{Op: ir.OpConst, Const: field.FromUint64(20)}, // 2: else
		ir.Instr{Op: ir.OpMux, Args: []ir.ID{0, 1, 2}},
	)
	Fold(p)

	if p.Instrs[3].Op != ir.OpMux {
		t.Fatalf("Mux with a non-boolean constant condition was folded away: %+v", p.Instrs[3])
	}

	if _, err := ir.Evaluate(p, nil); err == nil {
		t.Fatal("expected ir.Evaluate to reject a non-boolean Mux condition")
	}
}

// TestFoldMuxWithBooleanConstantCondition is the companion positive case:
// conditions that actually are 0 or 1 still fold normally.
func TestFoldMuxWithBooleanConstantCondition(t *testing.T) {
	p := constProg(
		ir.Instr{Op: ir.OpConst, Const: field.One()},
		ir.Instr{Op: ir.OpConst, Const: field.FromUint64(10)},
		ir.Instr{Op: ir.OpConst, Const: field.FromUint64(20)},
		ir.Instr{Op: ir.OpMux, Args: []ir.ID{0, 1, 2}},
	)
	Fold(p)

	if p.Instrs[3].Op != ir.OpConst || !p.Instrs[3].Const.Equal(field.FromUint64(10)) {
		t.Fatalf("mux(1, 10, 20) did not fold to 10: %+v", p.Instrs[3])
	}
}
