package plonk

import (
	"fmt"

	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
	"github.com/achronyme/achronyme/internal/achronyme/poseidon"
)

// EffectiveBits bounds the bit-decomposition fallback behind IsLt/IsLe,
// mirroring the r1cs back-end (spec §4.6).
const EffectiveBits = 253

// MaxLookupBits is the largest width RangeCheck services with a lookup
// table (spec §4.7 "lookup table of 2^n rows, n ≤ 16"); wider checks fall
// back to bit decomposition.
const MaxLookupBits = 16

type compiler struct {
	sys    *System
	trace  Trace
	exprOf map[ir.ID]Expr
}

// Compile walks prog and emits the gated constraint system plus its
// witness trace (spec §4.7). Mirrors r1cs.Compile's structure: pure
// shape derivation, no evaluation.
func Compile(prog *ir.Program) (*System, *Trace, error) {
	c := &compiler{sys: newSystem(), exprOf: make(map[ir.ID]Expr, len(prog.Instrs))}

	publicNames := map[string]bool{}
	for _, d := range prog.Public {
		publicNames[d.Name] = true
	}

	for id := ir.ID(0); int(id) < len(prog.Instrs); id++ {
		in := prog.Def(id)
		e, err := c.compileOne(prog, id, in, publicNames)
		if err != nil {
			return nil, nil, err
		}
		c.exprOf[id] = e
	}
	return c.sys, &c.trace, nil
}

func (c *compiler) expr(id ir.ID) Expr { return c.exprOf[id] }

func (c *compiler) constExpr(v field.Element) Expr { return exprOfCell(c.constCellFor(v)) }

// constCellFor returns a cached advice cell holding v, backed by a fixed-
// column anchor the cell is copy-constrained to (spec §4.7: "a constant
// written into an advice cell must be copy-constrained to a fixed-column
// cell that holds the same value").
func (c *compiler) constCellFor(v field.Element) Cell {
	key := v.String()
	if cell, ok := c.sys.constCache[key]; ok {
		return cell
	}
	row := c.sys.newRow("const")
	c.sys.Fixed[row] = v
	cell := Cell{Col: ColA, Row: row}
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpConst, Dest: cell, Const: v})
	c.sys.CopyConstraints = append(c.sys.CopyConstraints, CopyConstraint{A: cell, B: Cell{Col: ColFixed, Row: row}})
	c.sys.constCache[key] = cell
	return cell
}

// scaleCell materializes coeff·cell into a fresh gate row, unless coeff is
// 1 (no row needed).
func (c *compiler) scaleCell(t Term) Cell {
	if t.Coeff.IsOne() {
		return t.Cell
	}
	coeffCell := c.constCellFor(t.Coeff)
	row := c.sys.newRow("scale")
	c.sys.SArith[row] = true
	dest := Cell{Col: ColD, Row: row}
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpMul, Dest: dest, A: exprOfCell(t.Cell), B: exprOfCell(coeffCell)})
	return dest
}

func (c *compiler) combineCells(x, y Cell) Cell {
	row := c.sys.newRow("combine")
	c.sys.SArith[row] = true
	dest := Cell{Col: ColD, Row: row}
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpCombine, Dest: dest, A: exprOfCell(x), B: exprOfCell(y)})
	return dest
}

// materialize folds a deferred expression down to a single advice cell,
// only when something actually needs to read its concrete value (spec
// §4.7's deferred-materialization rule). A bare single-term, unit-
// coefficient expression is returned as-is — no row spent.
func (c *compiler) materialize(e Expr) Cell {
	if len(e) == 0 {
		return c.constCellFor(field.Zero())
	}
	acc := c.scaleCell(e[0])
	for _, t := range e[1:] {
		acc = c.combineCells(acc, c.scaleCell(t))
	}
	return acc
}

// mulGadget is the one place every nonlinear gadget routes through: one
// arithmetic-gate row computing a·b.
func (c *compiler) mulGadget(a, b Expr, label string) Cell {
	ca, cb := c.materialize(a), c.materialize(b)
	row := c.sys.newRow(label)
	c.sys.SArith[row] = true
	dest := Cell{Col: ColD, Row: row}
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpMul, Dest: dest, A: exprOfCell(ca), B: exprOfCell(cb)})
	return dest
}

// assertBoolean enforces x·x = x via a copy constraint between the
// squared cell and x itself, rather than a dedicated boolean opcode.
func (c *compiler) assertBoolean(x Cell) {
	sq := c.mulGadget(exprOfCell(x), exprOfCell(x), "bool_sq")
	c.sys.CopyConstraints = append(c.sys.CopyConstraints, CopyConstraint{A: sq, B: x})
}

// assertEqExpr materializes both sides and ties them with a copy
// constraint — AssertEq needs no gate row of its own.
func (c *compiler) assertEqExpr(a, b Expr) {
	ca, cb := c.materialize(a), c.materialize(b)
	c.sys.CopyConstraints = append(c.sys.CopyConstraints, CopyConstraint{A: ca, B: cb})
}

func (c *compiler) divGadget(a, b Expr) Cell {
	cb := c.materialize(b)
	row := c.sys.newRow("inv")
	c.sys.SArith[row] = true
	invCell := Cell{Col: ColD, Row: row}
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpInverse, Dest: invCell, Src: exprOfCell(cb)})
	return c.mulGadget(a, exprOfCell(invCell), "div")
}

func (c *compiler) isZeroGadget(x Expr) Cell {
	cx := c.materialize(x)
	row := c.sys.newRow("is_zero")
	c.sys.SArith[row] = true
	invCell := Cell{Col: ColC, Row: row}
	isZeroCell := Cell{Col: ColD, Row: row}
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpIsZero, Dest: invCell, Other: isZeroCell, Src: exprOfCell(cx)})
	return isZeroCell
}

// bitDecompose allocates n bit cells and asserts their weighted sum
// equals x via a copy constraint, each bit itself boolean-enforced.
func (c *compiler) bitDecompose(x Expr, n int) []Cell {
	cx := c.materialize(x)
	bits := make([]Cell, n)
	sum := Expr(nil)
	weight := field.One()
	two := field.FromUint64(2)
	for i := 0; i < n; i++ {
		row := c.sys.newRow("bit")
		bitCell := Cell{Col: ColD, Row: row}
		c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpBit, Dest: bitCell, Src: exprOfCell(cx), Index: i})
		c.assertBoolean(bitCell)
		bits[i] = bitCell
		sum = exprAdd(sum, Expr{{Cell: bitCell, Coeff: weight}})
		weight = weight.Mul(two)
	}
	c.assertEqExpr(sum, exprOfCell(cx))
	return bits
}

func (c *compiler) ltGadget(a, b Expr) Cell {
	n := EffectiveBits
	shift := field.One()
	for i := 0; i < n; i++ {
		shift = shift.Mul(field.FromUint64(2))
	}
	shifted := exprAdd(exprAdd(c.constExpr(shift), a), exprNeg(b))
	bits := c.bitDecompose(shifted, n+1)
	top := bits[n]
	oneCell := c.constCellFor(field.One())
	return c.combineCells(oneCell, c.scaleCell(Term{Cell: top, Coeff: field.FromInt64(-1)}))
}

// rangeCheckLookup enforces 0 ≤ x < 2^n via membership in a precomputed
// table of every n-bit value (spec §4.7). Falls back to bit
// decomposition above MaxLookupBits.
func (c *compiler) rangeCheckLookup(x Expr, n int) Cell {
	if n > MaxLookupBits {
		bits := c.bitDecompose(x, n)
		_ = bits
		return c.materialize(x)
	}
	table := fmt.Sprintf("range_%d", n)
	if _, ok := c.sys.LookupTables[table]; !ok {
		size := 1 << uint(n)
		values := make([]field.Element, size)
		for i := 0; i < size; i++ {
			values[i] = field.FromUint64(uint64(i))
		}
		c.sys.LookupTables[table] = values
		c.sys.LookupSelectors[table] = map[int]bool{}
	}
	cx := c.materialize(x)
	row := c.sys.newRow("range_lookup")
	dest := Cell{Col: ColA, Row: row}
	c.sys.markLookup(table, c.sys.LookupTables[table], row)
	c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpLookupCheck, Dest: dest, Src: exprOfCell(cx), Table: table})
	c.sys.CopyConstraints = append(c.sys.CopyConstraints, CopyConstraint{A: dest, B: cx})
	return dest
}

func (c *compiler) compileOne(prog *ir.Program, id ir.ID, in ir.Instr, publicNames map[string]bool) (Expr, error) {
	switch in.Op {
	case ir.OpConst:
		return c.constExpr(in.Const), nil

	case ir.OpInput:
		row := c.sys.newRow(in.Name)
		cell := Cell{Col: ColD, Row: row}
		c.trace.Ops = append(c.trace.Ops, TraceOp{Kind: OpInputAssign, Dest: cell, Name: in.Name})
		c.sys.InputCell[in.Name] = cell
		if publicNames[in.Name] {
			c.sys.NumPublic++
		} else {
			c.sys.NumWitness++
		}
		return exprOfCell(cell), nil

	case ir.OpAdd:
		return exprAdd(c.expr(in.Args[0]), c.expr(in.Args[1])), nil
	case ir.OpSub:
		return exprSub(c.expr(in.Args[0]), c.expr(in.Args[1])), nil
	case ir.OpNeg:
		return exprNeg(c.expr(in.Args[0])), nil

	case ir.OpMul:
		return exprOfCell(c.mulGadget(c.expr(in.Args[0]), c.expr(in.Args[1]), "mul")), nil

	case ir.OpDiv:
		return exprOfCell(c.divGadget(c.expr(in.Args[0]), c.expr(in.Args[1]))), nil

	case ir.OpMux:
		cond := c.materialize(c.expr(in.Args[0]))
		c.assertBoolean(cond)
		then, els := c.expr(in.Args[1]), c.expr(in.Args[2])
		diff := exprSub(then, els)
		prod := c.mulGadget(exprOfCell(cond), diff, "mux")
		return exprAdd(exprOfCell(prod), els), nil

	case ir.OpAssertEq:
		c.assertEqExpr(c.expr(in.Args[0]), c.expr(in.Args[1]))
		return nil, nil

	case ir.OpAssert:
		x := c.materialize(c.expr(in.Args[0]))
		c.assertBoolean(x)
		c.sys.CopyConstraints = append(c.sys.CopyConstraints, CopyConstraint{A: x, B: c.constCellFor(field.One())})
		return exprOfCell(x), nil

	case ir.OpNot:
		x := c.materialize(c.expr(in.Args[0]))
		c.assertBoolean(x)
		return exprSub(c.constExpr(field.One()), exprOfCell(x)), nil

	case ir.OpAnd:
		x := c.materialize(c.expr(in.Args[0]))
		y := c.materialize(c.expr(in.Args[1]))
		c.assertBoolean(x)
		c.assertBoolean(y)
		return exprOfCell(c.mulGadget(exprOfCell(x), exprOfCell(y), "and")), nil

	case ir.OpOr:
		x := c.materialize(c.expr(in.Args[0]))
		y := c.materialize(c.expr(in.Args[1]))
		c.assertBoolean(x)
		c.assertBoolean(y)
		prod := c.mulGadget(exprOfCell(x), exprOfCell(y), "or_and_term")
		return exprSub(exprAdd(exprOfCell(x), exprOfCell(y)), exprOfCell(prod)), nil

	case ir.OpIsEq:
		return exprOfCell(c.isZeroGadget(exprSub(c.expr(in.Args[0]), c.expr(in.Args[1])))), nil
	case ir.OpIsNeq:
		isZero := c.isZeroGadget(exprSub(c.expr(in.Args[0]), c.expr(in.Args[1])))
		return exprSub(c.constExpr(field.One()), exprOfCell(isZero)), nil

	case ir.OpIsLt:
		return exprOfCell(c.ltGadget(c.expr(in.Args[0]), c.expr(in.Args[1]))), nil
	case ir.OpIsLe:
		lt := c.ltGadget(c.expr(in.Args[1]), c.expr(in.Args[0]))
		return exprSub(c.constExpr(field.One()), exprOfCell(lt)), nil

	case ir.OpRangeCheck:
		x := c.expr(in.Args[0])
		c.rangeCheckLookup(x, in.Bits)
		return x, nil

	case ir.OpPoseidonHash:
		return exprOfCell(c.poseidonGadget(c.expr(in.Args[0]), c.expr(in.Args[1]))), nil

	default:
		return nil, errs.New(errs.KindUnsupportedOperation, "plonk: unsupported SSA op %v", in.Op)
	}
}

// poseidonGadget mirrors the r1cs back-end's gadget of the same name,
// routed through mulGadget so both back-ends reuse the identical
// poseidon.Default() round-constant/MDS data (spec §4.7, §4.6).
func (c *compiler) poseidonGadget(left, right Expr) Cell {
	params := poseidon.Default()
	zero := c.constCellFor(field.Zero())

	state := [3]Expr{exprOfCell(zero), left, right}
	rcIdx := 0
	half := 4

	sbox := func(x Expr) Expr {
		x2 := c.mulGadget(x, x, "poseidon_sbox2")
		x4 := c.mulGadget(exprOfCell(x2), exprOfCell(x2), "poseidon_sbox4")
		x5 := c.mulGadget(exprOfCell(x4), x, "poseidon_sbox5")
		return exprOfCell(x5)
	}
	mdsMix := func(s [3]Expr) [3]Expr {
		var out [3]Expr
		for i := 0; i < 3; i++ {
			acc := Expr(nil)
			for j := 0; j < 3; j++ {
				scaled := make(Expr, len(s[j]))
				for k, t := range s[j] {
					scaled[k] = Term{Cell: t.Cell, Coeff: t.Coeff.Mul(params.MDS[i][j])}
				}
				acc = exprAdd(acc, scaled)
			}
			out[i] = acc
		}
		return out
	}
	addRC := func(s [3]Expr) [3]Expr {
		var out [3]Expr
		for i := 0; i < 3; i++ {
			out[i] = exprAdd(s[i], c.constExpr(params.RoundConstants[rcIdx]))
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

	return c.materialize(state[1])
}
