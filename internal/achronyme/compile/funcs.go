package compile

import (
	"github.com/achronyme/achronyme/internal/achronyme/ast"
)

// compileFuncLitInto compiles a nested function body into its own proto
// and emits the enclosing OpMakeClosure into dest. Used for both named
// declarations (FuncDecl, whose name is already bound to dest by the
// caller, enabling self-recursion) and anonymous literals (FuncLit).
func (c *compiler) compileFuncLitInto(p *proto, name string, params []string, body ast.Block, dest int, span ast.Span) error {
	child := c.newChildProto(name, p)
	child.arity = len(params)
	child.pushScope()
	for _, param := range params {
		child.declareLocal(param, true)
	}
	for _, stmt := range body.Stmts {
		if err := c.compileStmt(child, stmt); err != nil {
			return err
		}
	}
	child.popScope()
	child.emit(Instr{Op: opReturn, Arg: 0, Line: span.Line})

	idx := c.protoIndex(child)
	p.emit(Instr{Op: opMakeClosure, A: dest, Arg: idx, Upvalues: child.upvalSrcs, Line: span.Line})
	return nil
}
