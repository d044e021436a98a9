package witness

import (
	"bytes"
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/backend/r1cs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

func compileSquare(t *testing.T) (*r1cs.System, []field.Element) {
	t.Helper()
	prog := &ir.Program{
		Public:     []ir.InputDecl{{Kind: ir.InputPublic, Name: "x"}},
		InputValue: map[string]ir.ID{},
	}
	xID := ir.ID(len(prog.Instrs))
	prog.Instrs = append(prog.Instrs, ir.Instr{Op: ir.OpInput, Name: "x"})
	prog.InputValue["x"] = xID

	yID := ir.ID(len(prog.Instrs))
	prog.Instrs = append(prog.Instrs, ir.Instr{Op: ir.OpMul, Args: []ir.ID{xID, xID}})

	prog.Instrs = append(prog.Instrs, ir.Instr{Op: ir.OpAssertEq, Args: []ir.ID{yID, yID}})

	sys, w, err := r1cs.CompileWithWitness(prog, map[string]field.Element{"x": field.FromInt64(9)})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return sys, w
}

func TestWriteR1CSWritesMagicAndVersion(t *testing.T) {
	sys, _ := compileSquare(t)
	var buf bytes.Buffer
	if err := WriteR1CS(&buf, sys); err != nil {
		t.Fatalf("WriteR1CS: %v", err)
	}
	out := buf.Bytes()
	if string(out[:4]) != "r1cs" {
		t.Fatalf("bad magic: %q", out[:4])
	}
	if !bytes.Equal(out[4:8], []byte{1, 0, 0, 0}) {
		t.Fatalf("bad version: %v", out[4:8])
	}
}

func TestWriteAndReadWtns(t *testing.T) {
	sys, w := compileSquare(t)
	ordered := ReorderWitness(sys, w)

	var buf bytes.Buffer
	if err := WriteWtns(&buf, ordered); err != nil {
		t.Fatalf("WriteWtns: %v", err)
	}

	got, err := ReadWtns(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadWtns: %v", err)
	}
	if len(got) != len(ordered) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(ordered))
	}
	for i := range ordered {
		if !got[i].Equal(ordered[i]) {
			t.Fatalf("value %d mismatch: got %s, want %s", i, got[i].String(), ordered[i].String())
		}
	}
}

func TestExportOrderPutsPublicBeforeWitness(t *testing.T) {
	sys, _ := compileSquare(t)
	order := sys.ExportOrder()
	if order[0] != 0 {
		t.Fatalf("wire 0 must stay the constant wire, got %d", order[0])
	}
	for i, w := range sys.PublicWires {
		if order[1+i] != w {
			t.Fatalf("public wire %d should be at export position %d, order has %d", w, 1+i, order[1+i])
		}
	}
}

func TestReadWtnsRejectsWrongMagic(t *testing.T) {
	buf := bytes.NewBufferString("xxxx")
	if _, err := ReadWtns(buf); err == nil {
		t.Fatal("expected an error for a bad magic header")
	}
}

// evalLC evaluates a linear combination against an export-order witness vector.
func evalLC(lc r1cs.LC, w []field.Element) field.Element {
	acc := field.Zero()
	for _, t := range lc {
		acc = acc.Add(w[t.Wire].Mul(t.Coeff))
	}
	return acc
}

// TestRoundTripPreservesSatisfyingWitness pins §8 invariant 7: serializing a
// satisfying (system, witness) pair to the wtns binary format, deserializing
// it, and re-checking every constraint against the recovered values succeeds,
// and encoding the same witness twice yields identical bytes.
func TestRoundTripPreservesSatisfyingWitness(t *testing.T) {
	sys, w := compileSquare(t)
	remap := wireRemap(sys)
	ordered := ReorderWitness(sys, w)

	var buf bytes.Buffer
	if err := WriteWtns(&buf, ordered); err != nil {
		t.Fatalf("WriteWtns: %v", err)
	}
	got, err := ReadWtns(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadWtns: %v", err)
	}

	for _, c := range sys.Constraints {
		a := evalLC(remapLC(c.A, remap), got)
		b := evalLC(remapLC(c.B, remap), got)
		cv := evalLC(remapLC(c.C, remap), got)
		if !a.Mul(b).Equal(cv) {
			t.Fatal("constraint no longer satisfied after a serialize/deserialize round trip")
		}
	}

	var buf2 bytes.Buffer
	if err := WriteWtns(&buf2, ordered); err != nil {
		t.Fatalf("WriteWtns (second encode): %v", err)
	}
	if !bytes.Equal(buf.Bytes(), buf2.Bytes()) {
		t.Fatal("encoding the same witness twice produced different bytes")
	}
}

func remapLC(lc r1cs.LC, remap map[r1cs.Wire]r1cs.Wire) r1cs.LC {
	out := make(r1cs.LC, len(lc))
	for i, t := range lc {
		out[i] = r1cs.Term{Wire: remap[t.Wire], Coeff: t.Coeff}
	}
	return out
}
