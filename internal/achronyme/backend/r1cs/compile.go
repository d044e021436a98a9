package r1cs

import (
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
	"github.com/achronyme/achronyme/internal/achronyme/poseidon"
)

// EffectiveBits sizes the bit-decomposition gadgets behind IsLt/IsLe
// (spec §4.6). The width is fixed: it does not shrink for operands that
// an earlier range check has already bounded to fewer bits.
const EffectiveBits = 253

type compiler struct {
	sys   *System
	trace Trace
	lcOf  map[ir.ID]LC
}

// Compile walks prog and emits the rank-one constraint system plus its
// witness trace (spec §4.6). It performs no evaluation; use
// CompileWithWitness for the full glue-level entry point (spec §4.9 step 3).
func Compile(prog *ir.Program) (*System, *Trace, error) {
	c := &compiler{sys: newSystem(), lcOf: make(map[ir.ID]LC, len(prog.Instrs))}

	publicNames := map[string]bool{}
	for _, d := range prog.Public {
		publicNames[d.Name] = true
	}

	for id := ir.ID(0); int(id) < len(prog.Instrs); id++ {
		in := prog.Def(id)
		lc, err := c.compileOne(prog, id, in, publicNames)
		if err != nil {
			return nil, nil, err
		}
		c.lcOf[id] = lc
	}
	return c.sys, &c.trace, nil
}

func (c *compiler) compileOne(prog *ir.Program, id ir.ID, in ir.Instr, publicNames map[string]bool) (LC, error) {
	switch in.Op {
	case ir.OpConst:
		return constLC(in.Const), nil

	case ir.OpInput:
		w := c.sys.allocWire(in.Name)
		if publicNames[in.Name] {
			c.sys.NumPublic++
			c.sys.PublicWires = append(c.sys.PublicWires, w)
		} else {
			c.sys.NumWitness++
			c.sys.WitnessWires = append(c.sys.WitnessWires, w)
		}
		c.sys.InputWire[in.Name] = w
		return wireLC(w), nil

	case ir.OpAdd:
		return c.lc(in.Args[0]).add(c.lc(in.Args[1])), nil
	case ir.OpSub:
		return c.lc(in.Args[0]).sub(c.lc(in.Args[1])), nil
	case ir.OpNeg:
		return c.lc(in.Args[0]).neg(), nil

	case ir.OpMul:
		w := c.mulGadget(c.lc(in.Args[0]), c.lc(in.Args[1]), "mul")
		return wireLC(w), nil

	case ir.OpDiv:
		a, b := c.lc(in.Args[0]), c.lc(in.Args[1])
		invW := c.sys.allocWire("inv")
		c.sys.Constraints = append(c.sys.Constraints, Constraint{A: b, B: wireLC(invW), C: constLC(field.One())})
		c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpInverse, Dest: invW, A: b})
		outW := c.mulGadget(a, wireLC(invW), "div")
		return wireLC(outW), nil

	case ir.OpMux:
		cond := c.lc(in.Args[0])
		c.sys.Constraints = append(c.sys.Constraints, Constraint{A: cond, B: cond.sub(constLC(field.One())), C: nil})
		then, els := c.lc(in.Args[1]), c.lc(in.Args[2])
		diff := then.sub(els)
		prodW := c.mulGadget(cond, diff, "mux")
		return wireLC(prodW).add(els), nil

	case ir.OpAssertEq:
		c.sys.assertEq(c.lc(in.Args[0]), c.lc(in.Args[1]))
		return nil, nil

	case ir.OpAssert:
		x := c.lc(in.Args[0])
		c.sys.Constraints = append(c.sys.Constraints,
			Constraint{A: x, B: x.sub(constLC(field.One())), C: nil},
			Constraint{A: x, B: constLC(field.One()), C: constLC(field.One())},
		)
		return x, nil

	case ir.OpNot:
		x := c.lc(in.Args[0])
		c.sys.Constraints = append(c.sys.Constraints, Constraint{A: x, B: x.sub(constLC(field.One())), C: nil})
		return constLC(field.One()).sub(x), nil

	case ir.OpAnd:
		x, y := c.lc(in.Args[0]), c.lc(in.Args[1])
		c.sys.Constraints = append(c.sys.Constraints,
			Constraint{A: x, B: x.sub(constLC(field.One())), C: nil},
			Constraint{A: y, B: y.sub(constLC(field.One())), C: nil},
		)
		w := c.mulGadget(x, y, "and")
		return wireLC(w), nil

	case ir.OpOr:
		x, y := c.lc(in.Args[0]), c.lc(in.Args[1])
		c.sys.Constraints = append(c.sys.Constraints,
			Constraint{A: x, B: x.sub(constLC(field.One())), C: nil},
			Constraint{A: y, B: y.sub(constLC(field.One())), C: nil},
		)
		w := c.mulGadget(x, y, "or_and_term")
		return x.add(y).sub(wireLC(w)), nil

	case ir.OpIsEq:
		return c.isZeroGadget(c.lc(in.Args[0]).sub(c.lc(in.Args[1]))), nil
	case ir.OpIsNeq:
		isZero := c.isZeroGadget(c.lc(in.Args[0]).sub(c.lc(in.Args[1])))
		return constLC(field.One()).sub(isZero), nil

	case ir.OpIsLt:
		return c.ltGadget(c.lc(in.Args[0]), c.lc(in.Args[1])), nil
	case ir.OpIsLe:
		lt := c.ltGadget(c.lc(in.Args[1]), c.lc(in.Args[0]))
		return constLC(field.One()).sub(lt), nil

	case ir.OpRangeCheck:
		x := c.lc(in.Args[0])
		bits := c.bitDecompose(x, in.Bits)
		_ = bits
		return x, nil

	case ir.OpPoseidonHash:
		out := c.poseidonGadget(c.lc(in.Args[0]), c.lc(in.Args[1]))
		return out, nil

	default:
		return nil, errs.New(errs.KindUnsupportedOperation, "r1cs: unsupported SSA op %v", in.Op)
	}
}

func (c *compiler) lc(id ir.ID) LC { return c.lcOf[id] }

// mulGadget materializes a·b to a fresh witness wire via a single
// rank-one constraint, the building block every nonlinear gadget composes
// from (spec §4.6 "Mul | A·B = C directly on LCs | 1").
func (c *compiler) mulGadget(a, b LC, label string) Wire {
	w := c.sys.allocWire(label)
	c.sys.Constraints = append(c.sys.Constraints, Constraint{A: a, B: b, C: wireLC(w)})
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpMul, Dest: w, A: a, B: b})
	return w
}

// isZeroGadget implements the is-zero primitive: witness inv, is_zero;
// x·inv = 1 − is_zero; x·is_zero = 0 (spec §4.6, 2 constraints).
func (c *compiler) isZeroGadget(x LC) LC {
	invW := c.sys.allocWire("inv")
	isZeroW := c.sys.allocWire("is_zero")
	c.sys.Constraints = append(c.sys.Constraints,
		Constraint{A: x, B: wireLC(invW), C: constLC(field.One()).sub(wireLC(isZeroW))},
		Constraint{A: x, B: wireLC(isZeroW), C: nil},
	)
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpIsZero, Dest: invW, IsZeroOther: isZeroW, A: x})
	return wireLC(isZeroW)
}

// bitDecompose allocates n boolean wires, constrains each to {0,1}, and
// asserts their weighted sum equals x (spec §4.6 "RangeCheck(x,n)",
// n+1 constraints), returning the bits least-significant first.
func (c *compiler) bitDecompose(x LC, n int) []Wire {
	bits := make([]Wire, n)
	sum := LC(nil)
	weight := field.One()
	two := field.FromUint64(2)
	for i := 0; i < n; i++ {
		bw := c.sys.allocWire("bit")
		bits[i] = bw
		c.sys.Constraints = append(c.sys.Constraints, Constraint{A: wireLC(bw), B: wireLC(bw).sub(constLC(field.One())), C: nil})
		c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpBit, Dest: bw, A: x, Index: i})
		sum = sum.add(wireLC(bw).scale(weight))
		weight = weight.Mul(two)
	}
	c.sys.assertEq(sum, x)
	return bits
}

// ltGadget decides a < b over EffectiveBits-bounded operands via the
// shifted-bit-decomposition technique (compute 2^n + a - b, decompose
// into n+1 bits; the top bit is 0 exactly when a < b).
func (c *compiler) ltGadget(a, b LC) LC {
	n := EffectiveBits
	shift := field.One()
	for i := 0; i < n; i++ {
		shift = shift.Mul(field.FromUint64(2))
	}
	shifted := constLC(shift).add(a).sub(b)
	bits := c.bitDecompose(shifted, n+1)
	top := bits[n]
	return constLC(field.One()).sub(wireLC(top))
}

// poseidonGadget emits the two-to-one Poseidon permutation on BN254
// (width 3, capacity wire constrained to zero, 8 full + 57 partial
// rounds) built entirely from the mul gadget and linear combinations, so
// it is witness-compatible with the out-of-circuit poseidon package
// (spec §4.6 "PoseidonHash").
func (c *compiler) poseidonGadget(left, right LC) LC {
	params := poseidon.Default()
	capWire := c.sys.allocWire("poseidon_capacity")
	c.sys.assertEq(wireLC(capWire), constLC(field.Zero()))
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpAssignLC, Dest: capWire, A: constLC(field.Zero())})

	state := [3]LC{wireLC(capWire), left, right}
	rcIdx := 0
	half := 4 // fullRounds/2, mirrored from the poseidon package's parameters

	sbox := func(x LC) LC {
		x2 := c.mulGadget(x, x, "poseidon_sbox2")
		x4 := c.mulGadget(wireLC(x2), wireLC(x2), "poseidon_sbox4")
		x5 := c.mulGadget(wireLC(x4), x, "poseidon_sbox5")
		return wireLC(x5)
	}
	mdsMix := func(s [3]LC) [3]LC {
		var out [3]LC
		for i := 0; i < 3; i++ {
			acc := LC(nil)
			for j := 0; j < 3; j++ {
				acc = acc.add(s[j].scale(params.MDS[i][j]))
			}
			out[i] = acc
		}
		return out
	}
	addRC := func(s [3]LC) [3]LC {
		var out [3]LC
		for i := 0; i < 3; i++ {
			out[i] = s[i].add(constLC(params.RoundConstants[rcIdx]))
			rcIdx++
		}
		return out
	}

	for r := 0; r < half; r++ {
		state = addRC(state)
		for i := 0; i < 3; i++ {
			state[i] = sbox(state[i])
		}
		state = mdsMix(state)
	}
	for r := 0; r < 57; r++ {
		state = addRC(state)
		state[0] = sbox(state[0])
		state = mdsMix(state)
	}
	for r := 0; r < half; r++ {
		state = addRC(state)
		for i := 0; i < 3; i++ {
			state[i] = sbox(state[i])
		}
		state = mdsMix(state)
	}

	return state[1]
}
