package r1cs

import (
	"fmt"
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
	"github.com/achronyme/achronyme/internal/achronyme/poseidon"
)

// evalLC evaluates a linear combination against an assigned witness vector.
func evalLC(lc LC, w []field.Element) field.Element {
	acc := field.Zero()
	for _, t := range lc {
		acc = acc.Add(w[t.Wire].Mul(t.Coeff))
	}
	return acc
}

// satisfies pins §8 invariant 4: the constraint system compiled from a
// program and the witness produced by the trace replayer satisfy every
// rank-one constraint A·B=C.
func satisfies(sys *System, w []field.Element) bool {
	for _, c := range sys.Constraints {
		a := evalLC(c.A, w)
		b := evalLC(c.B, w)
		cv := evalLC(c.C, w)
		if !a.Mul(b).Equal(cv) {
			return false
		}
	}
	return true
}

// multiplicationGadgetProgram builds scenario §8.5.3: public output `out`,
// witnesses `a`, `b`, body `assert_eq(a*b, out)`.
func multiplicationGadgetProgram() *ir.Program {
	p := &ir.Program{InputValue: make(map[string]ir.ID)}
	a := ir.ID(len(p.Instrs))
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpInput, Name: "a"})
	p.InputValue["a"] = a
	b := ir.ID(len(p.Instrs))
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpInput, Name: "b"})
	p.InputValue["b"] = b
	out := ir.ID(len(p.Instrs))
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpInput, Name: "out"})
	p.InputValue["out"] = out
	prod := ir.ID(len(p.Instrs))
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpMul, Args: []ir.ID{a, b}})
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpAssertEq, Args: []ir.ID{prod, out}})

	p.Witness = []ir.InputDecl{{Kind: ir.InputWitness, Name: "a"}, {Kind: ir.InputWitness, Name: "b"}}
	p.Public = []ir.InputDecl{{Kind: ir.InputPublic, Name: "out"}}
	return p
}

func TestMultiplicationGadgetParity(t *testing.T) {
	prog := multiplicationGadgetProgram()
	inputs := map[string]field.Element{
		"a":   field.FromUint64(6),
		"b":   field.FromUint64(7),
		"out": field.FromUint64(42),
	}

	sys, w, err := CompileWithWitness(prog, inputs)
	if err != nil {
		t.Fatalf("CompileWithWitness: %v", err)
	}
	if !satisfies(sys, w) {
		t.Fatal("witness does not satisfy the compiled constraint system for a correct product")
	}

	bad := map[string]field.Element{
		"a":   field.FromUint64(6),
		"b":   field.FromUint64(7),
		"out": field.FromUint64(43),
	}
	if _, _, err := CompileWithWitness(prog, bad); err == nil {
		t.Fatal("expected a constraint violation for an incorrect product, got nil")
	}
}

// poseidonPreimageProgram builds scenario §8.5.1: public input `hash`,
// witness `secret`, body `assert_eq(poseidon(secret, 0), hash)`.
func poseidonPreimageProgram() *ir.Program {
	p := &ir.Program{InputValue: make(map[string]ir.ID)}
	secret := ir.ID(len(p.Instrs))
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpInput, Name: "secret"})
	p.InputValue["secret"] = secret
	zero := ir.ID(len(p.Instrs))
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpConst, Const: field.Zero()})
	hashed := ir.ID(len(p.Instrs))
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpPoseidonHash, Args: []ir.ID{secret, zero}})
	hash := ir.ID(len(p.Instrs))
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpInput, Name: "hash"})
	p.InputValue["hash"] = hash
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpAssertEq, Args: []ir.ID{hashed, hash}})

	p.Witness = []ir.InputDecl{{Kind: ir.InputWitness, Name: "secret"}}
	p.Public = []ir.InputDecl{{Kind: ir.InputPublic, Name: "hash"}}
	return p
}

// TestPoseidonPreimageScenario pins §8.5.1: with the correct preimage the
// compiled circuit verifies; with a different witness it fails. The
// expected hash is computed with the same out-of-circuit Poseidon package
// the gadget is built from, rather than a hardcoded external constant,
// since the spec itself only requires the value be the reference
// parameter set's output, not any specific literal.
func TestPoseidonPreimageScenario(t *testing.T) {
	prog := poseidonPreimageProgram()
	secret := field.FromUint64(1)
	expected := poseidon.Hash([]field.Element{secret, field.Zero()})

	sys, w, err := CompileWithWitness(prog, map[string]field.Element{
		"secret": secret,
		"hash":   expected,
	})
	if err != nil {
		t.Fatalf("CompileWithWitness: %v", err)
	}
	if !satisfies(sys, w) {
		t.Fatal("witness does not satisfy the compiled Poseidon preimage circuit")
	}
	if len(sys.Constraints) < 200 {
		t.Fatalf("Poseidon gadget produced only %d constraints, expected several hundred", len(sys.Constraints))
	}

	wrongSecret := field.FromUint64(2)
	if _, _, err := CompileWithWitness(prog, map[string]field.Element{
		"secret": wrongSecret,
		"hash":   expected,
	}); err == nil {
		t.Fatal("expected verification failure for a non-matching secret, got nil")
	}
}

// merkleMembershipProgram builds scenario §8.5.2: public input `root`,
// witnesses `leaf` and, per level, a sibling and an is-right bit. Each level
// orders (left, right) by mux-ing on the bit, the same way lowerMerkleVerify
// composes `merkle_verify` (ir/lower.go), then hashes with Poseidon; the
// final accumulator is asserted equal to the public root.
func merkleMembershipProgram(depth int) *ir.Program {
	p := &ir.Program{InputValue: make(map[string]ir.ID)}
	input := func(name string) ir.ID {
		id := ir.ID(len(p.Instrs))
		p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpInput, Name: name})
		p.InputValue[name] = id
		return id
	}

	cur := input("leaf")
	p.Witness = append(p.Witness, ir.InputDecl{Kind: ir.InputWitness, Name: "leaf"})

	for lvl := 0; lvl < depth; lvl++ {
		siblingName := fmt.Sprintf("path_%d", lvl)
		bitName := fmt.Sprintf("indices_%d", lvl)
		sibling := input(siblingName)
		bit := input(bitName)
		p.Witness = append(p.Witness,
			ir.InputDecl{Kind: ir.InputWitness, Name: siblingName},
			ir.InputDecl{Kind: ir.InputWitness, Name: bitName},
		)

		left := ir.ID(len(p.Instrs))
		p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpMux, Args: []ir.ID{bit, sibling, cur}})
		right := ir.ID(len(p.Instrs))
		p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpMux, Args: []ir.ID{bit, cur, sibling}})
		cur = ir.ID(len(p.Instrs))
		p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpPoseidonHash, Args: []ir.ID{left, right}})
	}

	root := input("root")
	p.Public = []ir.InputDecl{{Kind: ir.InputPublic, Name: "root"}}
	p.Instrs = append(p.Instrs, ir.Instr{Op: ir.OpAssertEq, Args: []ir.ID{cur, root}})
	return p
}

// merkleRoot computes the same level-by-level hash in Go, mirroring the
// mux(bit, then, els) = bit ? then : els contract compile.go's OpMux
// handling implements, to produce an expected root without hardcoding an
// external constant.
func merkleRoot(leaf field.Element, siblings []field.Element, bits []int) field.Element {
	cur := leaf
	for i, sib := range siblings {
		var left, right field.Element
		if bits[i] == 1 {
			left, right = sib, cur
		} else {
			left, right = cur, sib
		}
		cur = poseidon.Hash([]field.Element{left, right})
	}
	return cur
}

// TestMerkleMembershipScenario pins §8.5.2: leaf 42 at position 0b010 (depth
// 3, bit order level-0-to-level-2) verifies against its computed root, and a
// tampered sibling breaks the proof.
func TestMerkleMembershipScenario(t *testing.T) {
	prog := merkleMembershipProgram(3)

	leaf := field.FromUint64(42)
	siblings := []field.Element{field.FromUint64(11), field.FromUint64(22), field.FromUint64(33)}
	bits := []int{0, 1, 0} // 0b010, LSB-first per level
	root := merkleRoot(leaf, siblings, bits)

	inputs := map[string]field.Element{
		"leaf":      leaf,
		"path_0":    siblings[0],
		"indices_0": field.FromUint64(uint64(bits[0])),
		"path_1":    siblings[1],
		"indices_1": field.FromUint64(uint64(bits[1])),
		"path_2":    siblings[2],
		"indices_2": field.FromUint64(uint64(bits[2])),
		"root":      root,
	}

	sys, w, err := CompileWithWitness(prog, inputs)
	if err != nil {
		t.Fatalf("CompileWithWitness: %v", err)
	}
	if !satisfies(sys, w) {
		t.Fatal("witness does not satisfy the compiled Merkle membership circuit")
	}

	tampered := map[string]field.Element{}
	for k, v := range inputs {
		tampered[k] = v
	}
	tampered["path_1"] = field.FromUint64(999)
	if _, _, err := CompileWithWitness(prog, tampered); err == nil {
		t.Fatal("expected verification failure for a tampered sibling, got nil")
	}
}

// TestExportOrderPlacesPublicBeforeWitness pins the wire-ordering rule
// behind the binary export formats (spec §6.2): public inputs precede
// witnesses regardless of declaration order.
func TestExportOrderPlacesPublicBeforeWitness(t *testing.T) {
	prog := multiplicationGadgetProgram()
	sys, _, err := CompileWithWitness(prog, map[string]field.Element{
		"a": field.FromUint64(2), "b": field.FromUint64(3), "out": field.FromUint64(6),
	})
	if err != nil {
		t.Fatalf("CompileWithWitness: %v", err)
	}

	order := sys.ExportOrder()
	if order[0] != 0 {
		t.Fatal("export order must start with the constant wire")
	}
	publicPos := -1
	witnessPos := -1
	for i, w := range order[1:] {
		if w == sys.PublicWires[0] && publicPos == -1 {
			publicPos = i
		}
		if w == sys.WitnessWires[0] && witnessPos == -1 {
			witnessPos = i
		}
	}
	if publicPos == -1 || witnessPos == -1 {
		t.Fatal("export order is missing a declared input wire")
	}
	if publicPos > witnessPos {
		t.Fatalf("public wire at export position %d comes after witness wire at %d", publicPos, witnessPos)
	}
}
