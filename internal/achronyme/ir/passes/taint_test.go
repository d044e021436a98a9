package passes

import (
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

func hasWarning(warnings []*errs.Error, kind errs.Kind, msg string) bool {
	for _, w := range warnings {
		if w.Kind == kind && w.Message == msg {
			return true
		}
	}
	return false
}

// TestAnalyzeTaintClassifiesProvenance pins spec §4.5's taint lattice:
// constants, public inputs, witness inputs, and values derived from them,
// including the dominance order at a non-Mux merge point.
func TestAnalyzeTaintClassifiesProvenance(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"pub": 0, "wit": 1}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "pub"},           // 0
		{Op: ir.OpInput, Name: "wit"},            // 1
		{Op: ir.OpConst, Const: field.One()},     // 2
		{Op: ir.OpAdd, Args: []ir.ID{0, 2}},      // 3: public + constant -> public
		{Op: ir.OpAdd, Args: []ir.ID{3, 1}},      // 4: public + witness -> witness (dominates)
		{Op: ir.OpAssertEq, Args: []ir.ID{4, 4}}, // 5: keeps everything reachable/constrained
	}
	p.Public = []ir.InputDecl{{Kind: ir.InputPublic, Name: "pub"}}
	p.Witness = []ir.InputDecl{{Kind: ir.InputWitness, Name: "wit"}}

	taint, warnings := AnalyzeTaint(p)

	if taint[0] != TaintPublic {
		t.Errorf("public input taint = %v, want TaintPublic", taint[0])
	}
	if taint[1] != TaintWitness {
		t.Errorf("witness input taint = %v, want TaintWitness", taint[1])
	}
	if taint[2] != TaintConstant {
		t.Errorf("literal taint = %v, want TaintConstant", taint[2])
	}
	if taint[3] != TaintPublic {
		t.Errorf("public+constant taint = %v, want TaintPublic", taint[3])
	}
	if taint[4] != TaintWitness {
		t.Errorf("public+witness taint = %v, want TaintWitness (witness dominates)", taint[4])
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings for a fully constrained, fully referenced program, got %v", warnings)
	}
}

// TestAnalyzeTaintMuxMergesOnlyBranches pins the Mux merge rule: only the
// then/else taints combine, the condition's taint is ignored.
func TestAnalyzeTaintMuxMergesOnlyBranches(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"secretCond": 0, "a": 1, "b": 2}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "secretCond"},       // 0: witness
		{Op: ir.OpInput, Name: "a"},                 // 1: public
		{Op: ir.OpInput, Name: "b"},                 // 2: public
		{Op: ir.OpMux, Args: []ir.ID{0, 1, 2}},      // 3: mux(witness-cond, public, public)
		{Op: ir.OpAssertEq, Args: []ir.ID{3, 3}},
		{Op: ir.OpAssert, Args: []ir.ID{0}},
	}
	p.Witness = []ir.InputDecl{{Kind: ir.InputWitness, Name: "secretCond"}}
	p.Public = []ir.InputDecl{{Kind: ir.InputPublic, Name: "a"}, {Kind: ir.InputPublic, Name: "b"}}

	taint, _ := AnalyzeTaint(p)

	if taint[3] != TaintPublic {
		t.Errorf("mux taint = %v, want TaintPublic (condition's witness taint must not leak into the merge)", taint[3])
	}
}

// TestAnalyzeTaintFlagsUnusedInput pins the UnusedInput warning: a
// declared input never referenced by any instruction.
func TestAnalyzeTaintFlagsUnusedInput(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"wit": 0, "other": 1}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "wit"},
		{Op: ir.OpInput, Name: "other"},
		{Op: ir.OpAssertEq, Args: []ir.ID{1, 1}},
	}
	p.Witness = []ir.InputDecl{{Kind: ir.InputWitness, Name: "wit"}, {Kind: ir.InputWitness, Name: "other"}}

	_, warnings := AnalyzeTaint(p)

	if !hasWarning(warnings, errs.KindUnusedInput, `witness input "wit" is never referenced`) {
		t.Fatalf("expected an UnusedInput warning for %q, got %v", "wit", warnings)
	}
}

// TestAnalyzeTaintFlagsUnderConstrainedWitness pins the
// UnderConstrainedWitness warning: a witness input that is referenced
// somewhere but never reaches an assertion.
func TestAnalyzeTaintFlagsUnderConstrainedWitness(t *testing.T) {
	p := &ir.Program{InputValue: map[string]ir.ID{"wit": 0, "pub": 1}}
	p.Instrs = []ir.Instr{
		{Op: ir.OpInput, Name: "wit"},             // 0
		{Op: ir.OpInput, Name: "pub"},              // 1
		{Op: ir.OpConst, Const: field.One()},       // 2
		{Op: ir.OpAdd, Args: []ir.ID{0, 2}},        // 3: references wit, but nothing asserts on it
		{Op: ir.OpAssertEq, Args: []ir.ID{1, 1}},   // 4: constrains pub, not wit
	}
	p.Witness = []ir.InputDecl{{Kind: ir.InputWitness, Name: "wit"}}
	p.Public = []ir.InputDecl{{Kind: ir.InputPublic, Name: "pub"}}

	_, warnings := AnalyzeTaint(p)

	if !hasWarning(warnings, errs.KindUnderConstrainedWitness, `witness input "wit" never reaches an assertion`) {
		t.Fatalf("expected an UnderConstrainedWitness warning for %q, got %v", "wit", warnings)
	}
	if hasWarning(warnings, errs.KindUnusedInput, `witness input "wit" is never referenced`) {
		t.Fatal("a referenced-but-unconstrained witness must not also be reported as unused")
	}
}
