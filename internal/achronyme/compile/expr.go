package compile

import (
	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/vm"
)

var binOps = map[ast.BinOp]Opcode{
	ast.OpAdd: opAdd, ast.OpSub: opSub, ast.OpMul: opMul, ast.OpDiv: opDiv,
	ast.OpEq: opEq, ast.OpNeq: opNeq, ast.OpLt: opLt, ast.OpLe: opLe,
	ast.OpGt: opGt, ast.OpGe: opGe, ast.OpAnd: opAnd, ast.OpOr: opOr,
}

// compileExprInto emits instructions computing e into register dest,
// using any register above dest as scratch (dest itself is always
// already reserved by the caller, so this is always safe).
func (c *compiler) compileExprInto(p *proto, e ast.Expr, dest int) error {
	switch n := e.(type) {
	case *ast.IntLit:
		idx := p.addConst(Const{Kind: ConstInt, Int: n.Value})
		p.emit(Instr{Op: opLoadConst, A: dest, Arg: idx, Line: n.Span.Line})
		return nil

	case *ast.FieldLit:
		idx := p.addConst(Const{Kind: ConstField, Decimal: n.Decimal})
		p.emit(Instr{Op: opLoadConst, A: dest, Arg: idx, Line: n.Span.Line})
		return nil

	case *ast.BoolLit:
		v := 0
		if n.Value {
			v = 1
		}
		p.emit(Instr{Op: opLoadBool, A: dest, Arg: v, Line: n.Span.Line})
		return nil

	case *ast.StringLit:
		idx := p.addConst(Const{Kind: ConstString, Str: n.Value})
		p.emit(Instr{Op: opLoadConst, A: dest, Arg: idx, Line: n.Span.Line})
		return nil

	case *ast.Ident:
		return c.compileIdentInto(p, n, dest)

	case *ast.UnaryExpr:
		m := p.mark()
		src := p.alloc()
		if err := c.compileExprInto(p, n.X, src); err != nil {
			return err
		}
		op := opNeg
		if n.Op == ast.OpNot {
			op = opNot
		}
		p.emit(Instr{Op: op, A: dest, B: src, Line: n.Span.Line})
		p.freeTo(m)
		return nil

	case *ast.BinaryExpr:
		m := p.mark()
		l := p.alloc()
		if err := c.compileExprInto(p, n.Left, l); err != nil {
			return err
		}
		r := p.alloc()
		if err := c.compileExprInto(p, n.Right, r); err != nil {
			return err
		}
		op, ok := binOps[n.Op]
		if !ok {
			return errAt(errs.KindUnsupportedOperation, p.name, n.Span, "unsupported binary operator")
		}
		p.emit(Instr{Op: op, A: dest, B: l, C: r, Line: n.Span.Line})
		p.freeTo(m)
		return nil

	case *ast.IfExpr:
		m := p.mark()
		cond := p.alloc()
		if err := c.compileExprInto(p, n.Cond, cond); err != nil {
			return err
		}
		jf := p.emit(Instr{Op: opJumpIfFalse, A: cond, Line: n.Span.Line})
		p.freeTo(m)
		if err := c.compileExprInto(p, n.Then, dest); err != nil {
			return err
		}
		jend := p.emit(Instr{Op: opJump, Line: n.Span.Line})
		p.patchJumpHere(jf)
		if err := c.compileExprInto(p, n.Else, dest); err != nil {
			return err
		}
		p.patchJumpHere(jend)
		return nil

	case *ast.CallExpr:
		return c.compileCallInto(p, n, dest)

	case *ast.ArrayLit:
		return c.compileElemsInto(p, n.Elems, dest, n.Span, opBuildList)

	case *ast.ListLit:
		return c.compileElemsInto(p, n.Elems, dest, n.Span, opBuildList)

	case *ast.MapLit:
		return c.compileMapInto(p, n, dest)

	case *ast.IndexExpr:
		m := p.mark()
		arr := p.alloc()
		if err := c.compileExprInto(p, n.Array, arr); err != nil {
			return err
		}
		idx := p.alloc()
		if err := c.compileExprInto(p, n.Index, idx); err != nil {
			return err
		}
		p.emit(Instr{Op: opGetIndex, A: dest, B: arr, C: idx, Line: n.Span.Line})
		p.freeTo(m)
		return nil

	case *ast.FuncLit:
		return c.compileFuncLitInto(p, "<anonymous>", n.Params, n.Body, dest, n.Span)

	default:
		return errAt(errs.KindUnsupportedOperation, p.name, ast.Span{}, "unsupported expression node %T", e)
	}
}

func (c *compiler) compileIdentInto(p *proto, n *ast.Ident, dest int) error {
	res := resolveVariable(p, n.Name)
	if !res.found {
		return errAt(errs.KindUndefinedVariable, p.name, n.Span, "undefined variable %q", n.Name)
	}
	if res.isLocal {
		if res.reg != dest {
			p.emit(Instr{Op: opMove, A: dest, B: res.reg, Line: n.Span.Line})
		}
		return nil
	}
	p.emit(Instr{Op: opGetUpvalue, A: dest, B: res.upval, Line: n.Span.Line})
	return nil
}

func (c *compiler) compileElemsInto(p *proto, elems []ast.Expr, dest int, span ast.Span, op Opcode) error {
	m := p.mark()
	base := p.nextReg
	for _, e := range elems {
		r := p.alloc()
		if err := c.compileExprInto(p, e, r); err != nil {
			return err
		}
	}
	p.emit(Instr{Op: op, A: dest, B: base, Arg: len(elems), Line: span.Line})
	p.freeTo(m)
	return nil
}

func (c *compiler) compileMapInto(p *proto, n *ast.MapLit, dest int) error {
	m := p.mark()
	base := p.nextReg
	for i := range n.Keys {
		kr := p.alloc()
		if err := c.compileExprInto(p, n.Keys[i], kr); err != nil {
			return err
		}
		vr := p.alloc()
		if err := c.compileExprInto(p, n.Values[i], vr); err != nil {
			return err
		}
	}
	p.emit(Instr{Op: opBuildMap, A: dest, B: base, Arg: len(n.Keys), Line: n.Span.Line})
	p.freeTo(m)
	return nil
}

// compileCallInto compiles a call site, preferring a lexically resolvable
// function value (local or upvalue) over a builtin native of the same
// name, so a user binding can shadow a builtin (spec §4.3 "Native
// functions" are a fixed table, not reserved words).
func (c *compiler) compileCallInto(p *proto, n *ast.CallExpr, dest int) error {
	if res := resolveVariable(p, n.Callee); res.found {
		m := p.mark()
		callee := p.alloc()
		if res.isLocal {
			p.emit(Instr{Op: opMove, A: callee, B: res.reg, Line: n.Span.Line})
		} else {
			p.emit(Instr{Op: opGetUpvalue, A: callee, B: res.upval, Line: n.Span.Line})
		}
		for _, a := range n.Args {
			r := p.alloc()
			if err := c.compileExprInto(p, a, r); err != nil {
				return err
			}
		}
		p.emit(Instr{Op: opCall, A: dest, B: callee, C: len(n.Args), Line: n.Span.Line})
		p.freeTo(m)
		return nil
	}

	idx, ok := vm.NativeIndex(n.Callee)
	if !ok {
		return errAt(errs.KindUndefinedVariable, p.name, n.Span, "unknown function %q", n.Callee)
	}
	m := p.mark()
	base := p.nextReg
	for _, a := range n.Args {
		r := p.alloc()
		if err := c.compileExprInto(p, a, r); err != nil {
			return err
		}
	}
	p.emit(Instr{Op: opCallNative, A: dest, B: base, C: len(n.Args), Arg: idx, Line: n.Span.Line})
	p.freeTo(m)
	return nil
}
