package vm

import (
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// stubProver is a test double for the vm.Prover interface (spec §4.9).
type stubProver struct {
	verifiedOnly bool
	proof        *heap.Proof
}

func (s stubProver) Execute(h *heap.Heap, public, witness []string, body ast.Block, capture map[string]value.Value) (*heap.Proof, bool, error) {
	return s.proof, s.verifiedOnly, nil
}

func protoWithProveBlock() *heap.FunctionProto {
	return &heap.FunctionProto{
		Name:     "test",
		MaxSlots: 4,
		ProveBlocks: []heap.ProveBlock{
			{Public: []string{"h"}, Witness: []string{"secret"}},
		},
	}
}

// TestExecProveVerifiedOnlyWritesNil pins spec §4.9 step 5 / scenario §8.5:
// a verified-only prove result writes the nil tagged value into the
// destination register, never a boolean derived from proof != nil.
func TestExecProveVerifiedOnlyWritesNil(t *testing.T) {
	m := New()
	m.Prover = stubProver{verifiedOnly: true, proof: nil}
	proto := protoWithProveBlock()
	frame := &Frame{Base: 0}

	if err := m.execProve(frame, proto, Instr{Op: OpProve, A: 0, Arg: 0}); err != nil {
		t.Fatalf("execProve: %v", err)
	}

	got := m.Stack[0]
	if !got.IsNil() {
		t.Fatalf("destination register tag = %v, want TagNil", got.Tag())
	}
}

// TestExecProveWritesProofHandleWhenNotVerifiedOnly exercises the
// complementary branch: a full proof is wrapped as a heap.Proof object and
// the destination register receives a TagProof handle, not nil.
func TestExecProveWritesProofHandleWhenNotVerifiedOnly(t *testing.T) {
	m := New()
	proof := &heap.Proof{ProofJSON: `{"pi_a":[]}`, PublicInputsJSON: `["1"]`, VerifyingKeyJSON: `{}`}
	m.Prover = stubProver{verifiedOnly: false, proof: proof}
	proto := protoWithProveBlock()
	frame := &Frame{Base: 0}

	if err := m.execProve(frame, proto, Instr{Op: OpProve, A: 0, Arg: 0}); err != nil {
		t.Fatalf("execProve: %v", err)
	}

	got := m.Stack[0]
	if got.Tag() != value.TagProof {
		t.Fatalf("destination register tag = %v, want TagProof", got.Tag())
	}
	stored, ok := m.Heap.Proofs.Get(got.AsHandle())
	if !ok {
		t.Fatal("proof handle does not resolve to a live heap object")
	}
	if !stored.Equal(proof) {
		t.Fatal("stored proof does not match the one returned by the prover")
	}
}
