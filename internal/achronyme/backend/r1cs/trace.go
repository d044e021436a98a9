package r1cs

import (
	"math/big"

	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
)

// OpKind is one witness-trace primitive (spec §4.8).
type OpKind int

const (
	OpAssignLC OpKind = iota
	OpMul
	OpInverse
	OpBit
	OpIsZero
)

// TraceOp is one replayable witness-generation step: evaluate a linear
// combination under the witness built so far, and write the result to a
// fresh wire. The trace is independent of concrete input values; only
// Replay needs them (spec §3 "Witness operation trace").
type TraceOp struct {
	Kind  OpKind
	Dest  Wire
	A, B  LC
	Index int // bit position, for OpBit
	// IsZeroOther holds the companion "is_zero" output wire when Dest is
	// the "inv" wire of the is-zero gadget.
	IsZeroOther Wire
}

// Trace is the ordered sequence of witness-generation steps recorded
// during constraint emission.
type Trace struct {
	Ops []TraceOp
}

func evalLC(lc LC, w []field.Element) field.Element {
	acc := field.Zero()
	for _, t := range lc {
		acc = acc.Add(w[t.Wire].Mul(t.Coeff))
	}
	return acc
}

// Replay fills the witness vector by executing the trace in order, given
// the public and witness input values already placed in w by wire index
// (spec §4.8).
func Replay(tr *Trace, w []field.Element) error {
	for _, op := range tr.Ops {
		switch op.Kind {
		case OpAssignLC:
			w[op.Dest] = evalLC(op.A, w)
		case OpMul:
			w[op.Dest] = evalLC(op.A, w).Mul(evalLC(op.B, w))
		case OpInverse:
			v := evalLC(op.A, w)
			if v.IsZero() {
				return errs.New(errs.KindDivisionByZero, "division by zero while generating witness")
			}
			inv, err := v.Inverse()
			if err != nil {
				return errs.Wrap(errs.KindDivisionByZero, err, "failed to invert witness value")
			}
			w[op.Dest] = inv
		case OpIsZero:
			v := evalLC(op.A, w)
			if v.IsZero() {
				w[op.Dest] = field.Zero()
				w[op.IsZeroOther] = field.One()
			} else {
				inv, _ := v.Inverse()
				w[op.Dest] = inv
				w[op.IsZeroOther] = field.Zero()
			}
		case OpBit:
			v := evalLC(op.A, w)
			bi := new(big.Int).SetUint64(uint64(v.Bit(op.Index)))
			w[op.Dest] = field.FromBigIntReduced(bi)
		}
	}
	return nil
}
