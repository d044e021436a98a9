package proofhandler

import (
	"github.com/achronyme/achronyme/internal/achronyme/backend/r1cs"
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
)

// Local is the no-external-prover fallback handler (spec §4.9 step 5: "If
// the back-end or its prerequisites are unavailable, the handler may
// return verified only"). It compiles the circuit and replays the
// witness trace to confirm every constraint, assertion, range check and
// division succeeds, but never produces a proof object.
type Local struct{}

// Prove checks witness satisfaction by compiling to R1CS and replaying the
// trace; it never returns a proof, only confirmation that one could be
// produced.
func (Local) Prove(req Request) (*Result, error) {
	if _, _, err := r1cs.CompileWithWitness(req.Prog, req.Inputs); err != nil {
		return nil, err
	}
	return &Result{VerifiedOnly: true}, nil
}

// Verify always fails: Local never issues proof objects, so there is
// nothing for it to check.
func (Local) Verify(p *heap.Proof) (bool, error) {
	return false, errs.New(errs.KindProveHandlerUnavailable, "local handler does not produce verifiable proofs")
}
