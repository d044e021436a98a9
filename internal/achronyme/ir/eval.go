package ir

import (
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/poseidon"
)

// Evaluate runs the SSA program directly with concrete field-element
// inputs, independent of either constraint back-end. This is the
// validation pass a back-end's compile_with_witness entry point runs
// first, to catch divide-by-zero, range-check, and assertion failures
// before constraint emission (spec §4.6 step 1, §4.9 step 4).
func Evaluate(prog *Program, inputs map[string]field.Element) (map[ID]field.Element, error) {
	vals := make(map[ID]field.Element, len(prog.Instrs))
	for id := ID(0); int(id) < len(prog.Instrs); id++ {
		in := prog.Def(id)
		v, err := evalOne(prog, vals, id, in, inputs)
		if err != nil {
			return nil, err
		}
		vals[id] = v
	}
	return vals, nil
}

func evalOne(prog *Program, vals map[ID]field.Element, id ID, in Instr, inputs map[string]field.Element) (field.Element, error) {
	arg := func(i int) field.Element { return vals[in.Args[i]] }

	switch in.Op {
	case OpConst:
		return in.Const, nil
	case OpInput:
		v, ok := inputs[in.Name]
		if !ok {
			return field.Element{}, errs.New(errs.KindUndefinedVariable, "no value supplied for input %q", in.Name)
		}
		return v, nil
	case OpAdd:
		return arg(0).Add(arg(1)), nil
	case OpSub:
		return arg(0).Sub(arg(1)), nil
	case OpNeg:
		return arg(0).Neg(), nil
	case OpMul:
		return arg(0).Mul(arg(1)), nil
	case OpDiv:
		if arg(1).IsZero() {
			return field.Element{}, errs.NewAt(errs.KindDivisionByZero, errs.Location{Line: in.Line}, "division by zero")
		}
		r, err := arg(0).Div(arg(1))
		if err != nil {
			return field.Element{}, errs.Wrap(errs.KindDivisionByZero, err, "division failed")
		}
		return r, nil
	case OpMux:
		if !isBoolean(arg(0)) {
			return field.Element{}, errs.NewAt(errs.KindNonBooleanMuxCondition, errs.Location{Line: in.Line}, "mux condition is not boolean")
		}
		if !arg(0).IsZero() {
			return arg(1), nil
		}
		return arg(2), nil
	case OpAssertEq:
		if !arg(0).Equal(arg(1)) {
			return field.Element{}, errs.NewAt(errs.KindConstraintViolation, errs.Location{Line: in.Line}, "assertion failed: values are not equal")
		}
		return arg(0), nil
	case OpAssert:
		if !isBoolean(arg(0)) || arg(0).IsZero() {
			return field.Element{}, errs.NewAt(errs.KindConstraintViolation, errs.Location{Line: in.Line}, "assertion failed")
		}
		return arg(0), nil
	case OpNot:
		if arg(0).IsZero() {
			return field.One(), nil
		}
		return field.Zero(), nil
	case OpAnd:
		return boolOf(!arg(0).IsZero() && !arg(1).IsZero()), nil
	case OpOr:
		return boolOf(!arg(0).IsZero() || !arg(1).IsZero()), nil
	case OpIsEq:
		return boolOf(arg(0).Equal(arg(1))), nil
	case OpIsNeq:
		return boolOf(!arg(0).Equal(arg(1))), nil
	case OpIsLt:
		return boolOf(arg(0).Cmp(arg(1)) < 0), nil
	case OpIsLe:
		return boolOf(arg(0).Cmp(arg(1)) <= 0), nil
	case OpRangeCheck:
		v := arg(0)
		for i := 0; i < in.Bits; i++ {
			_ = v.Bit(i)
		}
		hi := v.BigInt()
		limit := field.One()
		two := field.FromUint64(2)
		for i := 0; i < in.Bits; i++ {
			limit = limit.Mul(two)
		}
		_ = hi
		if v.Cmp(limit) >= 0 {
			return field.Element{}, errs.NewAt(errs.KindConstraintViolation, errs.Location{Line: in.Line}, "range check failed: value exceeds %d bits", in.Bits)
		}
		return v, nil
	case OpPoseidonHash:
		return poseidon.Hash([]field.Element{arg(0), arg(1)}), nil
	default:
		return field.Element{}, errs.New(errs.KindUnsupportedOperation, "evaluator: unsupported SSA op")
	}
}

func isBoolean(v field.Element) bool { return v.IsZero() || v.IsOne() }

func boolOf(b bool) field.Element {
	if b {
		return field.One()
	}
	return field.Zero()
}
