package compile

import (
	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
)

func (c *compiler) compileStmt(p *proto, stmt ast.Stmt) error {
	switch n := stmt.(type) {
	case *ast.LetStmt:
		p.line = n.Span.Line
		reg := p.declareLocal(n.Name, n.Mutable)
		return c.compileExprInto(p, n.Value, reg)

	case *ast.AssignStmt:
		p.line = n.Span.Line
		return c.compileAssign(p, n)

	case *ast.ExprStmt:
		p.line = n.Span.Line
		m := p.mark()
		r := p.alloc()
		if err := c.compileExprInto(p, n.X, r); err != nil {
			return err
		}
		p.freeTo(m)
		return nil

	case *ast.IfStmt:
		return c.compileIf(p, n)

	case *ast.ForStmt:
		return c.compileFor(p, n)

	case *ast.WhileStmt:
		return c.compileWhile(p, n)

	case *ast.BreakStmt:
		if len(p.loops) == 0 {
			return errAt(errs.KindUnsupportedOperation, p.name, n.Span, "break outside a loop")
		}
		lp := p.loops[len(p.loops)-1]
		idx := p.emit(Instr{Op: opJump, Line: n.Span.Line})
		lp.breakJumps = append(lp.breakJumps, idx)
		return nil

	case *ast.ContinueStmt:
		if len(p.loops) == 0 {
			return errAt(errs.KindUnsupportedOperation, p.name, n.Span, "continue outside a loop")
		}
		lp := p.loops[len(p.loops)-1]
		idx := p.emit(Instr{Op: opJump, Line: n.Span.Line})
		lp.continueJumps = append(lp.continueJumps, idx)
		return nil

	case *ast.ReturnStmt:
		p.line = n.Span.Line
		if n.Value == nil {
			p.emit(Instr{Op: opReturn, Arg: 0, Line: n.Span.Line})
			return nil
		}
		m := p.mark()
		r := p.alloc()
		if err := c.compileExprInto(p, n.Value, r); err != nil {
			return err
		}
		p.emit(Instr{Op: opReturn, A: r, Arg: 1, Line: n.Span.Line})
		p.freeTo(m)
		return nil

	case *ast.FuncDecl:
		reg := p.declareLocal(n.Name, false)
		return c.compileFuncLitInto(p, n.Name, n.Params, n.Body, reg, n.Span)

	case *ast.InputDecl:
		return errAt(errs.KindUnsupportedOperation, p.name, n.Span,
			"public/witness declarations are only valid inside a prove block")

	case *ast.ProveStmt:
		return c.compileProve(p, n)

	default:
		return errAt(errs.KindUnsupportedOperation, p.name, ast.Span{}, "unsupported statement node %T", stmt)
	}
}

func (c *compiler) compileAssign(p *proto, n *ast.AssignStmt) error {
	switch target := n.Target.(type) {
	case *ast.Ident:
		res := resolveVariable(p, target.Name)
		if !res.found {
			return errAt(errs.KindUndefinedVariable, p.name, n.Span, "undefined variable %q", target.Name)
		}
		if !res.mutable {
			return errAt(errs.KindTypeMismatch, p.name, n.Span, "cannot assign to immutable binding %q", target.Name)
		}
		if res.isLocal {
			return c.compileExprInto(p, n.Value, res.reg)
		}
		m := p.mark()
		tmp := p.alloc()
		if err := c.compileExprInto(p, n.Value, tmp); err != nil {
			return err
		}
		p.emit(Instr{Op: opSetUpvalue, A: res.upval, B: tmp, Line: n.Span.Line})
		p.freeTo(m)
		return nil

	case *ast.IndexExpr:
		m := p.mark()
		coll := p.alloc()
		if err := c.compileExprInto(p, target.Array, coll); err != nil {
			return err
		}
		idx := p.alloc()
		if err := c.compileExprInto(p, target.Index, idx); err != nil {
			return err
		}
		val := p.alloc()
		if err := c.compileExprInto(p, n.Value, val); err != nil {
			return err
		}
		p.emit(Instr{Op: opSetIndex, A: coll, B: idx, C: val, Line: n.Span.Line})
		p.freeTo(m)
		return nil

	default:
		return errAt(errs.KindUnsupportedOperation, p.name, n.Span, "unsupported assignment target %T", n.Target)
	}
}

func (c *compiler) compileIf(p *proto, n *ast.IfStmt) error {
	m := p.mark()
	cond := p.alloc()
	if err := c.compileExprInto(p, n.Cond, cond); err != nil {
		return err
	}
	jf := p.emit(Instr{Op: opJumpIfFalse, A: cond, Line: n.Span.Line})
	p.freeTo(m)

	if err := c.compileBlock(p, n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		p.patchJumpHere(jf)
		return nil
	}
	jend := p.emit(Instr{Op: opJump, Line: n.Span.Line})
	p.patchJumpHere(jf)
	if err := c.compileBlock(p, *n.Else); err != nil {
		return err
	}
	p.patchJumpHere(jend)
	return nil
}

func (c *compiler) compileWhile(p *proto, n *ast.WhileStmt) error {
	start := len(p.code)
	m := p.mark()
	cond := p.alloc()
	if err := c.compileExprInto(p, n.Cond, cond); err != nil {
		return err
	}
	jf := p.emit(Instr{Op: opJumpIfFalse, A: cond, Line: n.Span.Line})
	p.freeTo(m)

	lp := &loopCtx{}
	p.loops = append(p.loops, lp)
	if err := c.compileBlock(p, n.Body); err != nil {
		p.loops = p.loops[:len(p.loops)-1]
		return err
	}
	p.loops = p.loops[:len(p.loops)-1]

	p.emit(Instr{Op: opJump, Arg: start, Line: n.Span.Line})
	end := len(p.code)
	p.patchJumpHere(jf)
	for _, idx := range lp.continueJumps {
		p.code[idx].Arg = start
	}
	for _, idx := range lp.breakJumps {
		p.code[idx].Arg = end
	}
	return nil
}

// compileFor lowers a bounded `for Var in Lo..Hi { Body }` to an actual
// runtime loop (unlike ir.Lower's compile-time unrolling for the circuit
// rail, spec §4.4 — plain execution has no unroll ceiling to respect).
func (c *compiler) compileFor(p *proto, n *ast.ForStmt) error {
	p.pushScope()
	loVar := p.declareLocal(n.Var, true)
	if err := c.compileExprInto(p, n.Lo, loVar); err != nil {
		p.popScope()
		return err
	}
	hi := p.alloc()
	if err := c.compileExprInto(p, n.Hi, hi); err != nil {
		p.popScope()
		return err
	}

	start := len(p.code)
	cond := p.alloc()
	p.emit(Instr{Op: opLt, A: cond, B: loVar, C: hi, Line: n.Span.Line})
	jf := p.emit(Instr{Op: opJumpIfFalse, A: cond, Line: n.Span.Line})
	p.freeTo(cond)

	lp := &loopCtx{}
	p.loops = append(p.loops, lp)
	if err := c.compileBlock(p, n.Body); err != nil {
		p.loops = p.loops[:len(p.loops)-1]
		p.popScope()
		return err
	}
	p.loops = p.loops[:len(p.loops)-1]

	incrStart := len(p.code)
	oneIdx := p.addConst(Const{Kind: ConstInt, Int: 1})
	one := p.alloc()
	p.emit(Instr{Op: opLoadConst, A: one, Arg: oneIdx, Line: n.Span.Line})
	p.emit(Instr{Op: opAdd, A: loVar, B: loVar, C: one, Line: n.Span.Line})
	p.freeTo(one)

	for _, idx := range lp.continueJumps {
		p.code[idx].Arg = incrStart
	}
	p.emit(Instr{Op: opJump, Arg: start, Line: n.Span.Line})
	end := len(p.code)
	p.patchJumpHere(jf)
	for _, idx := range lp.breakJumps {
		p.code[idx].Arg = end
	}

	p.popScope()
	return nil
}

func (c *compiler) compileProve(p *proto, n *ast.ProveStmt) error {
	names := dedupeNames(n.Public, n.Witness)
	captureRegs := make([]int, len(names))
	for i, name := range names {
		res := resolveVariable(p, name)
		if !res.found {
			return errAt(errs.KindUndefinedVariable, p.name, n.Span,
				"prove block input %q is not bound in the enclosing scope", name)
		}
		if res.isLocal {
			captureRegs[i] = res.reg
			continue
		}
		tmp := p.alloc()
		p.emit(Instr{Op: opGetUpvalue, A: tmp, B: res.upval, Line: n.Span.Line})
		captureRegs[i] = tmp
	}

	blockIdx := len(p.proveBlks)
	p.proveBlks = append(p.proveBlks, heap.ProveBlock{
		Public:       n.Public,
		Witness:      n.Witness,
		Body:         n.Body,
		CaptureNames: names,
		CaptureRegs:  captureRegs,
	})

	if n.Result != "" {
		dest := p.declareLocal(n.Result, true)
		p.emit(Instr{Op: opProve, A: dest, Arg: blockIdx, Line: n.Span.Line})
		return nil
	}
	m := p.mark()
	dest := p.alloc()
	p.emit(Instr{Op: opProve, A: dest, Arg: blockIdx, Line: n.Span.Line})
	p.freeTo(m)
	return nil
}

func dedupeNames(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, n := range l {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}
