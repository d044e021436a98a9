package plonk

import (
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

// Witness holds the filled advice columns for a compiled System, plus the
// fixed column it was compiled against.
type Witness struct {
	A, B, C, D, Fixed []field.Element
}

// CompileWithWitness is the Plonk back-end's top-level entry point,
// mirroring r1cs.CompileWithWitness (spec §4.7, §4.9 step 3): validate
// early by direct SSA evaluation, compile the gate/lookup/copy-constraint
// shape, then replay the trace to fill every advice cell.
func CompileWithWitness(prog *ir.Program, inputs map[string]field.Element) (*System, *Witness, error) {
	if _, err := ir.Evaluate(prog, inputs); err != nil {
		return nil, nil, err
	}

	sys, trace, err := Compile(prog)
	if err != nil {
		return nil, nil, err
	}

	adv, err := Replay(trace, sys.NumRows, sys.Fixed, sys.LookupTables, inputs)
	if err != nil {
		return nil, nil, err
	}

	return sys, &Witness{A: adv.a, B: adv.b, C: adv.c, D: adv.d, Fixed: sys.Fixed}, nil
}
