// Package passes implements the IR optimizer and analysis passes that run
// in sequence over a lowered SSA program (spec §4.5): constant folding,
// dead-code elimination, boolean propagation, and taint analysis.
package passes

import (
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

// Fold evaluates arithmetic, comparisons, and boolean operators when all
// operands are constant, and collapses identity patterns (x+0, x·1, x·0,
// x−x, x/x where x≠0, Mux with equal branches). Instructions are folded
// in place, keeping every SSA id stable so later instructions' operand
// references remain valid (spec §4.5).
func Fold(p *ir.Program) {
	for id := ir.ID(0); int(id) < len(p.Instrs); id++ {
		in := p.Instrs[id]
		if identity, of, ok := identityFold(p, in); ok {
			p.Instrs[id] = aliasTo(p, of, identity)
			continue
		}
		if folded, ok := tryConstFold(p, in); ok {
			p.Instrs[id] = folded
		}
	}
}

func isConstZero(p *ir.Program, id ir.ID) bool {
	in := p.Instrs[id]
	return in.Op == ir.OpConst && in.Const.IsZero()
}

func isConstOne(p *ir.Program, id ir.ID) bool {
	in := p.Instrs[id]
	return in.Op == ir.OpConst && in.Const.IsOne()
}

// identityFold recognizes structural identities that hold regardless of
// whether the non-trivial operand is itself constant.
// identityFold recognizes structural identities that hold regardless of
// whether the non-trivial operand is itself constant. of is only
// meaningful when it is >= 0 (alias to an earlier definition); a negative
// of signals that value itself is the literal replacement — of can't
// double as that signal, since 0 is both OpConst's zero value and a valid
// wire id.
func identityFold(p *ir.Program, in ir.Instr) (value ir.Instr, of ir.ID, ok bool) {
	switch in.Op {
	case ir.OpAdd:
		if isConstZero(p, in.Args[0]) {
			return ir.Instr{}, in.Args[1], true
		}
		if isConstZero(p, in.Args[1]) {
			return ir.Instr{}, in.Args[0], true
		}
	case ir.OpSub:
		if in.Args[0] == in.Args[1] {
			return ir.Instr{Op: ir.OpConst, Const: field.Zero()}, -1, true
		}
		if isConstZero(p, in.Args[1]) {
			return ir.Instr{}, in.Args[0], true
		}
	case ir.OpMul:
		if isConstOne(p, in.Args[0]) {
			return ir.Instr{}, in.Args[1], true
		}
		if isConstOne(p, in.Args[1]) {
			return ir.Instr{}, in.Args[0], true
		}
		if isConstZero(p, in.Args[0]) || isConstZero(p, in.Args[1]) {
			return ir.Instr{Op: ir.OpConst, Const: field.Zero()}, -1, true
		}
	case ir.OpDiv:
		// x/x only folds when x is a nonzero constant; otherwise the
		// division's own x≠0 check must stay in the circuit.
		if in.Args[0] == in.Args[1] && p.Instrs[in.Args[0]].Op == ir.OpConst && !isConstZero(p, in.Args[0]) {
			return ir.Instr{Op: ir.OpConst, Const: field.One()}, -1, true
		}
	case ir.OpMux:
		if in.Args[1] == in.Args[2] {
			return ir.Instr{}, in.Args[1], true
		}
	}
	return ir.Instr{}, 0, false
}

// aliasTo resolves an identity fold into a concrete replacement
// instruction: either the literal itself (of < 0) or a copy of the earlier
// definition of aliases (of >= 0), preserving that definition's diagnostics.
func aliasTo(p *ir.Program, of ir.ID, literal ir.Instr) ir.Instr {
	if of < 0 {
		return literal
	}
	return p.Instrs[of]
}

func tryConstFold(p *ir.Program, in ir.Instr) (ir.Instr, bool) {
	args := make([]field.Element, len(in.Args))
	for i, a := range in.Args {
		def := p.Instrs[a]
		if def.Op != ir.OpConst {
			return ir.Instr{}, false
		}
		args[i] = def.Const
	}

	boolConst := func(b bool) ir.Instr {
		if b {
			return ir.Instr{Op: ir.OpConst, Const: field.One()}
		}
		return ir.Instr{Op: ir.OpConst, Const: field.Zero()}
	}

	switch in.Op {
	case ir.OpAdd:
		return ir.Instr{Op: ir.OpConst, Const: args[0].Add(args[1])}, true
	case ir.OpSub:
		return ir.Instr{Op: ir.OpConst, Const: args[0].Sub(args[1])}, true
	case ir.OpNeg:
		return ir.Instr{Op: ir.OpConst, Const: args[0].Neg()}, true
	case ir.OpMul:
		return ir.Instr{Op: ir.OpConst, Const: args[0].Mul(args[1])}, true
	case ir.OpDiv:
		if args[1].IsZero() {
			return ir.Instr{}, false // let witness-time evaluation raise DivisionByZero
		}
		r, err := args[0].Div(args[1])
		if err != nil {
			return ir.Instr{}, false
		}
		return ir.Instr{Op: ir.OpConst, Const: r}, true
	case ir.OpNot:
		return boolConst(args[0].IsZero()), true
	case ir.OpAnd:
		return boolConst(!args[0].IsZero() && !args[1].IsZero()), true
	case ir.OpOr:
		return boolConst(!args[0].IsZero() || !args[1].IsZero()), true
	case ir.OpIsEq:
		return boolConst(args[0].Equal(args[1])), true
	case ir.OpIsNeq:
		return boolConst(!args[0].Equal(args[1])), true
	case ir.OpIsLt:
		// Folded against canonical (non-Montgomery) order, per §4.5.
		return boolConst(args[0].Cmp(args[1]) < 0), true
	case ir.OpIsLe:
		return boolConst(args[0].Cmp(args[1]) <= 0), true
	case ir.OpMux:
		// A fully-constant non-boolean condition must not silently pick a
		// branch (spec §4.5/§9 open question 3); leave the Mux in place so
		// ir.Evaluate rejects it with NonBooleanMuxCondition instead.
		if !args[0].IsZero() && !args[0].IsOne() {
			return ir.Instr{}, false
		}
		if !args[0].IsZero() {
			return ir.Instr{Op: ir.OpConst, Const: args[1]}, true
		}
		return ir.Instr{Op: ir.OpConst, Const: args[2]}, true
	default:
		return ir.Instr{}, false
	}
}
