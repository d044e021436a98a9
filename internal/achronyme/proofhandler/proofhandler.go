// Package proofhandler defines the pluggable proof-handler interface the
// `prove { ... }` glue invokes (spec §4.9, §6.1 "Proof handler"): given a
// compiled circuit and its witness, perform setup (or reuse a cache),
// prove, and verify, or report that only witness satisfaction could be
// checked ("verified only") when no real back-end is configured.
package proofhandler

import (
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

// Request is everything a handler needs to prove one circuit instance.
type Request struct {
	Prog    *ir.Program
	Inputs  map[string]field.Element // both public and witness values, by declared name
	Public  []string
	Witness []string
}

// Result carries either a full proof (ProofJSON/PublicInputsJSON/
// VerifyingKeyJSON all set) or, when VerifiedOnly is true, nothing but the
// fact that the witness was checked to satisfy every constraint.
type Result struct {
	ProofJSON        string
	PublicInputsJSON string
	VerifyingKeyJSON string
	VerifiedOnly     bool
}

// Handler is the pluggable back-end the `prove` glue drives (spec §6.1).
type Handler interface {
	Prove(req Request) (*Result, error)
	Verify(p *heap.Proof) (bool, error)
}
