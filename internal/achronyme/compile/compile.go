// Package compile implements the bytecode compiler: the pipeline's other
// rail alongside ir.Lower (spec §2's diagram splits a typed syntax tree
// into "Bytecode compiler" and "IR lowering (SSA)"). It turns an ast.Block
// of statements into one or more heap.FunctionProto-shaped prototypes
// ready to load into a vm.VM, the same register-allocating, upvalue-
// resolving single pass a small Lua-style compiler uses, generalized to
// this language's statement and expression set.
//
// A `prove { ... }` block is compiled as a single OpProve instruction
// referencing a stored heap.ProveBlock; the block's own body is never
// walked by this compiler; it is handed untouched to package ir at
// runtime, by package proveglue, exactly as the block's enclosing
// function left it (spec §4.9).
package compile

import (
	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/bytecode"
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
)

type (
	Opcode = bytecode.Opcode
	Instr  = bytecode.Instr
)

const (
	opLoadConst = bytecode.OpLoadConst
	opLoadNil   = bytecode.OpLoadNil
	opLoadBool  = bytecode.OpLoadBool
	opMove      = bytecode.OpMove

	opAdd = bytecode.OpAdd
	opSub = bytecode.OpSub
	opMul = bytecode.OpMul
	opDiv = bytecode.OpDiv
	opNeg = bytecode.OpNeg

	opEq  = bytecode.OpEq
	opNeq = bytecode.OpNeq
	opLt  = bytecode.OpLt
	opLe  = bytecode.OpLe
	opGt  = bytecode.OpGt
	opGe  = bytecode.OpGe

	opNot = bytecode.OpNot
	opAnd = bytecode.OpAnd
	opOr  = bytecode.OpOr

	opBuildList = bytecode.OpBuildList
	opBuildMap  = bytecode.OpBuildMap
	opGetIndex  = bytecode.OpGetIndex
	opSetIndex  = bytecode.OpSetIndex

	opMakeClosure    = bytecode.OpMakeClosure
	opGetUpvalue     = bytecode.OpGetUpvalue
	opSetUpvalue     = bytecode.OpSetUpvalue
	opCloseUpvalues  = bytecode.OpCloseUpvalues

	opJump        = bytecode.OpJump
	opJumpIfFalse = bytecode.OpJumpIfFalse

	opCall       = bytecode.OpCall
	opCallNative = bytecode.OpCallNative
	opReturn     = bytecode.OpReturn

	opGetIter = bytecode.OpGetIter
	opForIter = bytecode.OpForIter

	opProve = bytecode.OpProve
)

// local records one name bound in a scope: its register and whether
// assignment to it is permitted.
type local struct {
	reg     int
	mutable bool
}

// loopCtx tracks a single enclosing loop's patch lists, so nested
// break/continue statements can find the right jump to backpatch.
type loopCtx struct {
	breakJumps    []int
	continueJumps []int
	continueTo    int // patched once the loop's increment/condition point is known
}

// proto is one prototype under construction. Each proto is a node in the
// lexical nesting tree via parent; resolveVariable walks that chain to
// decide whether a name is a local, an upvalue, or undefined.
type proto struct {
	name   string
	parent *proto

	code   []Instr
	line   int
	consts []Const
	cidx   map[string]int

	arity      int
	nextReg    int
	maxSlots   int
	scopes     []map[string]local
	scopeMarks []int
	loops      []*loopCtx
	upvalSrcs  []bytecode.UpvalueSource
	upvalNames []string
	debug      []heap.DebugSymbol
	proveBlks  []heap.ProveBlock
}

func newProto(name string, parent *proto) *proto {
	return &proto{name: name, parent: parent, cidx: make(map[string]int)}
}

// pushScope opens a new lexical scope, remembering the register mark so
// popScope can reclaim every register allocated since — named locals and
// anonymous temporaries alike (spec §4.3 register VM: a scope's registers
// are contiguous, but not every one backs a named binding).
func (p *proto) pushScope() {
	p.scopes = append(p.scopes, map[string]local{})
	p.scopeMarks = append(p.scopeMarks, p.nextReg)
}

// popScope closes any upvalues captured from this scope's registers and
// reclaims them for reuse (mirrors a Lua compiler's CLOSE instruction).
func (p *proto) popScope() {
	n := len(p.scopes)
	base := p.scopeMarks[n-1]
	p.scopes = p.scopes[:n-1]
	p.scopeMarks = p.scopeMarks[:n-1]
	p.emit(Instr{Op: opCloseUpvalues, A: base, Line: p.line})
	p.nextReg = base
}

func (p *proto) declareLocal(name string, mutable bool) int {
	reg := p.alloc()
	p.scopes[len(p.scopes)-1][name] = local{reg: reg, mutable: mutable}
	return reg
}

func (p *proto) alloc() int {
	r := p.nextReg
	p.nextReg++
	if p.nextReg > p.maxSlots {
		p.maxSlots = p.nextReg
	}
	return r
}

func (p *proto) mark() int     { return p.nextReg }
func (p *proto) freeTo(m int)  { p.nextReg = m }

func (p *proto) emit(in Instr) int {
	p.code = append(p.code, in)
	return len(p.code) - 1
}

func (p *proto) patchJumpHere(idx int) { p.code[idx].Arg = len(p.code) }

// findLocal looks in this proto's own scopes only (innermost first).
func (p *proto) findLocal(name string) (local, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if l, ok := p.scopes[i][name]; ok {
			return l, true
		}
	}
	return local{}, false
}

// addUpvalue records (or reuses) an upvalue slot capturing src, returning
// its index into this proto's upvalue list.
func (p *proto) addUpvalue(name string, src bytecode.UpvalueSource) int {
	for i, n := range p.upvalNames {
		if n == name {
			return i
		}
	}
	p.upvalSrcs = append(p.upvalSrcs, src)
	p.upvalNames = append(p.upvalNames, name)
	return len(p.upvalSrcs) - 1
}

// resolution is what resolveVariable found for a name.
type resolution struct {
	found   bool
	isLocal bool
	mutable bool
	reg     int // valid if isLocal
	upval   int // valid if !isLocal
}

// resolveVariable implements the standard nested-closure lookup: a local
// in this proto, or (recursively) a local or upvalue of an enclosing
// proto promoted into an upvalue here.
func resolveVariable(p *proto, name string) resolution {
	if l, ok := p.findLocal(name); ok {
		return resolution{found: true, isLocal: true, reg: l.reg, mutable: l.mutable}
	}
	if p.parent == nil {
		return resolution{}
	}
	parentRes := resolveVariable(p.parent, name)
	if !parentRes.found {
		return resolution{}
	}
	var src bytecode.UpvalueSource
	if parentRes.isLocal {
		src = bytecode.UpvalueSource{FromParentLocal: true, Index: parentRes.reg}
	} else {
		src = bytecode.UpvalueSource{FromParentLocal: false, Index: parentRes.upval}
	}
	idx := p.addUpvalue(name, src)
	return resolution{found: true, isLocal: false, upval: idx, mutable: parentRes.mutable}
}

// addConst interns c into this proto's constant pool, returning its index.
func (p *proto) addConst(c Const) int {
	key := c.key()
	if i, ok := p.cidx[key]; ok {
		return i
	}
	idx := len(p.consts)
	p.consts = append(p.consts, c)
	p.cidx[key] = idx
	return idx
}

// compiler drives compilation of a whole ast.Program, collecting every
// proto it builds (in creation order; order doubles as the eventual
// proto-index space OpMakeClosure's Arg refers to).
type compiler struct {
	protos []*proto
}

func (c *compiler) newChildProto(name string, parent *proto) *proto {
	p := newProto(name, parent)
	c.protos = append(c.protos, p)
	return p
}

func (c *compiler) protoIndex(p *proto) int {
	for i, q := range c.protos {
		if q == p {
			return i
		}
	}
	return -1
}

// Compile lowers prog's top-level statements into a main prototype plus
// one prototype per nested function literal/declaration (spec §2's
// "Bytecode compiler" box; §4.3 register VM consumes the result).
func Compile(prog ast.Program) (*Program, error) {
	c := &compiler{}
	main := c.newChildProto("<main>", nil)
	main.pushScope()

	for _, stmt := range prog.Stmts {
		if err := c.compileStmt(main, stmt); err != nil {
			return nil, err
		}
	}
	main.popScope()
	main.emit(Instr{Op: opReturn, Arg: 0})

	out := &Program{Entry: c.protoIndex(main)}
	for _, p := range c.protos {
		out.Protos = append(out.Protos, Proto{
			Name:        p.name,
			Code:        p.code,
			Constants:   p.consts,
			Debug:       p.debug,
			Arity:       p.arity,
			MaxSlots:    p.maxSlots,
			UpvalueCnt:  len(p.upvalSrcs),
			ProveBlocks: p.proveBlks,
		})
	}
	return out, nil
}

func (c *compiler) compileBlock(p *proto, b ast.Block) error {
	p.pushScope()
	for _, stmt := range b.Stmts {
		if err := c.compileStmt(p, stmt); err != nil {
			p.popScope()
			return err
		}
	}
	p.popScope()
	return nil
}

func errAt(kind errs.Kind, name string, span ast.Span, format string, args ...any) error {
	return errs.NewAt(kind, errs.Location{Function: name, Line: span.Line}, format, args...)
}
