package passes

import (
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

// TestEliminateDropsDeadComputation pins spec §4.5: a pure computation with
// no side-effecting consumer is removed, and surviving instructions are
// remapped to stay dense.
func TestEliminateDropsDeadComputation(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"x": 0}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "x"},           // 0: x            (live: witness)
		{Op: ir.OpConst, Const: field.One()},  // 1: 1            (live: feeds assert)
		{Op: ir.OpAdd, Args: []ir.ID{0, 0}},   // 2: x+x          (dead: unused)
		{Op: ir.OpAssertEq, Args: []ir.ID{0, 1}}, // 3: assert x==1
	}
	p.Witness = []ir.InputDecl{{Kind: ir.InputWitness, Name: "x"}}

	Eliminate(p)

	if len(p.Instrs) != 3 {
		t.Fatalf("expected dead x+x to be eliminated, got %d instructions: %+v", len(p.Instrs), p.Instrs)
	}
	for _, in := range p.Instrs {
		if in.Op == ir.OpAdd {
			t.Fatal("dead OpAdd survived elimination")
		}
	}
	if _, ok := p.InputValue["x"]; !ok {
		t.Fatal("InputValue mapping for a declared input must survive elimination")
	}
}

// TestEliminateKeepsDeclaredInputsEvenWhenUnused pins the other half of the
// contract: a declared witness that never reaches an assertion is still
// kept as an instruction (elimination only removes unreferenced pure
// computations, never the declared input/output interface itself), so
// AnalyzeTaint can still see and flag it.
func TestEliminateKeepsDeclaredInputsEvenWhenUnused(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"unused": 0, "used": 1}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "unused"},
		{Op: ir.OpInput, Name: "used"},
		{Op: ir.OpAssertEq, Args: []ir.ID{1, 1}},
	}
	p.Witness = []ir.InputDecl{{Kind: ir.InputWitness, Name: "unused"}, {Kind: ir.InputWitness, Name: "used"}}

	Eliminate(p)

	if len(p.Instrs) != 3 {
		t.Fatalf("declared-but-unused input should not be eliminated, got %d instructions", len(p.Instrs))
	}
}
