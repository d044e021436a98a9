package plonk

import (
	"math/big"

	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
)

// OpKind identifies one witness-assembly step. Unlike Constraints (which
// describe the circuit's shape independent of any input), a Trace
// describes how to fill every advice cell once concrete inputs are known
// — the Plonk-backend analogue of the r1cs package's Trace.
type OpKind int

const (
	OpConst OpKind = iota
	OpInputAssign
	OpCopy
	OpCombine
	OpMul
	OpInverse
	OpIsZero
	OpBit
	OpLookupCheck
)

// TraceOp is one witness-assembly step.
type TraceOp struct {
	Kind  OpKind
	Dest  Cell
	Other Cell // secondary destination, used by OpIsZero
	Src   Expr // operand for OpCopy/OpInverse/OpBit/OpLookupCheck
	A, B  Expr // operands for OpMul/OpCombine
	Const field.Element
	Name  string // input name, for OpInputAssign
	Index int    // bit index, for OpBit
	Table string // lookup table name, for OpLookupCheck
}

// Trace is the ordered list of witness-assembly steps a compiled System
// carries alongside its gate structure.
type Trace struct {
	Ops []TraceOp
}

type advice struct {
	a, b, c, d []field.Element
}

func newAdvice(n int) *advice {
	return &advice{
		a: make([]field.Element, n),
		b: make([]field.Element, n),
		c: make([]field.Element, n),
		d: make([]field.Element, n),
	}
}

func (w *advice) at(c Cell) field.Element {
	switch c.Col {
	case ColA:
		return w.a[c.Row]
	case ColB:
		return w.b[c.Row]
	case ColC:
		return w.c[c.Row]
	case ColD:
		return w.d[c.Row]
	}
	return field.Zero()
}

func (w *advice) set(c Cell, v field.Element) {
	switch c.Col {
	case ColA:
		w.a[c.Row] = v
	case ColB:
		w.b[c.Row] = v
	case ColC:
		w.c[c.Row] = v
	case ColD:
		w.d[c.Row] = v
	}
}

// evalExpr resolves a deferred expression against the partially filled
// advice columns and the compile-time-fixed column.
func evalExpr(expr Expr, w *advice, fixed []field.Element) field.Element {
	acc := field.Zero()
	for _, t := range expr {
		var v field.Element
		if t.Cell.Col == ColFixed {
			v = fixed[t.Cell.Row]
		} else {
			v = w.at(t.Cell)
		}
		acc = acc.Add(v.Mul(t.Coeff))
	}
	return acc
}

// Replay executes trace against a fresh set of advice columns sized for
// numRows, given concrete values for every declared input.
func Replay(trace *Trace, numRows int, fixed []field.Element, lookupTables map[string][]field.Element, inputs map[string]field.Element) (*advice, error) {
	w := newAdvice(numRows)
	for _, op := range trace.Ops {
		switch op.Kind {
		case OpConst:
			w.set(op.Dest, op.Const)
		case OpInputAssign:
			v, ok := inputs[op.Name]
			if !ok {
				return nil, errs.New(errs.KindUndefinedVariable, "no value supplied for input %q", op.Name)
			}
			w.set(op.Dest, v)
		case OpCopy:
			w.set(op.Dest, evalExpr(op.Src, w, fixed))
		case OpCombine:
			w.set(op.Dest, evalExpr(op.A, w, fixed).Add(evalExpr(op.B, w, fixed)))
		case OpMul:
			w.set(op.Dest, evalExpr(op.A, w, fixed).Mul(evalExpr(op.B, w, fixed)))
		case OpInverse:
			v := evalExpr(op.Src, w, fixed)
			if v.IsZero() {
				return nil, errs.New(errs.KindDivisionByZero, "division by zero")
			}
			inv, err := v.Inverse()
			if err != nil {
				return nil, errs.Wrap(errs.KindDivisionByZero, err, "failed to invert witness value")
			}
			w.set(op.Dest, inv)
		case OpIsZero:
			v := evalExpr(op.Src, w, fixed)
			if v.IsZero() {
				w.set(op.Dest, field.Zero())
				w.set(op.Other, field.One())
			} else {
				inv, _ := v.Inverse()
				w.set(op.Dest, inv)
				w.set(op.Other, field.Zero())
			}
		case OpBit:
			v := evalExpr(op.Src, w, fixed)
			bi := new(big.Int).SetUint64(uint64(v.Bit(op.Index)))
			w.set(op.Dest, field.FromBigIntReduced(bi))
		case OpLookupCheck:
			v := evalExpr(op.Src, w, fixed)
			found := false
			for _, cand := range lookupTables[op.Table] {
				if cand.Equal(v) {
					found = true
					break
				}
			}
			if !found {
				return nil, errs.New(errs.KindConstraintViolation, "value not present in lookup table %q", op.Table)
			}
			w.set(op.Dest, v)
		}
	}
	return w, nil
}
