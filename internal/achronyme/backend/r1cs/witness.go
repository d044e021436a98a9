package r1cs

import (
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

// CompileWithWitness is the R1CS back-end's top-level entry point (spec
// §4.6): it evaluates the program directly to validate early, compiles
// the constraint system and witness trace, then replays the trace to
// assemble the full witness vector.
func CompileWithWitness(prog *ir.Program, inputs map[string]field.Element) (*System, []field.Element, error) {
	if _, err := ir.Evaluate(prog, inputs); err != nil {
		return nil, nil, err
	}

	sys, trace, err := Compile(prog)
	if err != nil {
		return nil, nil, err
	}

	w := make([]field.Element, sys.NumWires)
	w[0] = field.One()
	for name, wr := range sys.InputWire {
		if v, ok := inputs[name]; ok {
			w[wr] = v
		}
	}

	if err := Replay(trace, w); err != nil {
		return nil, nil, err
	}
	return sys, w, nil
}
