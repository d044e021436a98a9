// Package proveglue wires a `prove { ... }` block's captured runtime
// values through lowering, circuit compilation and the configured proof
// handler, and back into a heap.Proof object or a verified-only signal
// (spec §4.9's state machine: lower, analyze, compile, evaluate, prove,
// verify). It satisfies vm.Prover and vm.Verifier structurally, the same
// way the teacher's runtime keeps its subsystems decoupled by interface
// rather than by direct import.
package proveglue

import (
	"fmt"
	"os"

	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
	"github.com/achronyme/achronyme/internal/achronyme/ir/passes"
	"github.com/achronyme/achronyme/internal/achronyme/proofhandler"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// Glue drives one or more `prove { ... }` blocks against a single proof
// handler (spec §6.1). New substitutes proofhandler.Local for a nil
// handler so a build with no external prover configured still checks
// witness satisfaction instead of refusing every prove block. Execute and
// VerifyProof call Handler directly; a zero-value Glue has no Handler.
type Glue struct {
	Handler proofhandler.Handler
	Config  ir.Config

	// OnWarning receives every advisory finding AnalyzeTaint reports
	// (UnderConstrainedWitness, UnusedInput) as each prove block is lowered.
	// Defaults to printing to stderr, the way the reference examples report
	// non-fatal diagnostics via the standard logger.
	OnWarning func(*errs.Error)

	// Warnings accumulates every warning seen across calls to Execute, for
	// callers that want to inspect them programmatically instead of (or in
	// addition to) OnWarning.
	Warnings []*errs.Error
}

// New returns a Glue backed by handler. A nil handler yields a
// verified-only Glue (proofhandler.Local).
func New(handler proofhandler.Handler) *Glue {
	if handler == nil {
		handler = proofhandler.Local{}
	}
	return &Glue{
		Handler:   handler,
		Config:    ir.DefaultConfig(),
		OnWarning: func(e *errs.Error) { fmt.Fprintln(os.Stderr, e.Error()) },
	}
}

// Execute implements vm.Prover. It lowers body to SSA, runs the optimizer
// and analysis passes in sequence (spec §4.5: Fold, Eliminate,
// PropagateBooleans, AnalyzeTaint), resolves every declared public/witness
// input from capture, and asks the handler to prove (or, for
// proofhandler.Local, merely validate) the result.
func (g *Glue) Execute(h *heap.Heap, public, witness []string, body ast.Block, capture map[string]value.Value) (*heap.Proof, bool, error) {
	prog, err := ir.Lower(body, g.Config)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindProveBlockFailed, err, "prove block failed to lower to a circuit")
	}

	passes.Fold(prog)
	passes.Eliminate(prog)
	passes.PropagateBooleans(prog)
	_, warnings := passes.AnalyzeTaint(prog)
	for _, w := range warnings {
		g.Warnings = append(g.Warnings, w)
		if g.OnWarning != nil {
			g.OnWarning(w)
		}
	}

	inputs := make(map[string]field.Element, len(prog.InputValue))
	for name := range prog.InputValue {
		v, ok := capture[name]
		if !ok {
			return nil, false, errs.New(errs.KindUndefinedVariable, "prove block input %q has no captured value", name)
		}
		fe, err := toField(h, v)
		if err != nil {
			return nil, false, errs.Wrap(errs.KindProveBlockFailed, err, "prove block input %q", name)
		}
		inputs[name] = fe
	}

	req := proofhandler.Request{Prog: prog, Inputs: inputs, Public: public, Witness: witness}
	result, err := g.Handler.Prove(req)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindProveBlockFailed, err, "prove block failed")
	}
	if result.VerifiedOnly {
		return nil, true, nil
	}
	return &heap.Proof{
		ProofJSON:        result.ProofJSON,
		PublicInputsJSON: result.PublicInputsJSON,
		VerifyingKeyJSON: result.VerifyingKeyJSON,
	}, false, nil
}

// VerifyProof implements vm.Verifier by handing p straight to the
// configured handler.
func (g *Glue) VerifyProof(p *heap.Proof) (bool, error) {
	return g.Handler.Verify(p)
}

// toField converts a runtime value to its field representation: int
// values are reduced mod the field's modulus via field.FromInt64,
// booleans map to 0/1, and field values pass through their boxed
// element directly.
func toField(h *heap.Heap, v value.Value) (field.Element, error) {
	switch {
	case v.IsInt():
		return field.FromInt64(v.AsInt()), nil
	case v.IsBool():
		if v.AsBool() {
			return field.FromInt64(1), nil
		}
		return field.FromInt64(0), nil
	case v.Tag() == value.TagField:
		f, ok := h.Fields.Get(uint32(v.AsHandle()))
		if !ok {
			return field.Element{}, errs.New(errs.KindTypeMismatch, "stale field handle")
		}
		return f.Elem, nil
	default:
		return field.Element{}, errs.New(errs.KindTypeMismatch, "value of type %s cannot be used as a circuit input", v.TypeName())
	}
}
