package ir

import (
	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
)

// Config bounds the lowering pass's unbounded operations.
type Config struct {
	// UnrollCeiling caps the iteration count of any single `for` loop
	// (spec §4.4: "bounded by a configurable ceiling").
	UnrollCeiling int
}

// DefaultConfig matches the reference implementation's default ceiling.
func DefaultConfig() Config { return Config{UnrollCeiling: 4096} }

// lval is a lowered binding's value: either a single SSA id or, for an
// array binding, its flattened element ids (spec §4.4 "Arrays are lowered
// to fixed-size flat vectors of SSA identifiers").
type lval struct {
	id  ID
	arr []ID
}

func scalar(id ID) lval { return lval{id: id} }

type lowerer struct {
	cfg     Config
	prog    *Program
	env     map[string]lval
	funcs   map[string]*ast.FuncDecl
	inlining map[string]bool
	declared map[string]bool // input names already declared, for DuplicateInput
	lastLine int
}

// Lower consumes a typed syntax tree block (the body of a `prove { }`
// construct, or any other circuit-lowering context) and produces a flat
// SSA program (spec §4.4).
func Lower(body ast.Block, cfg Config) (*Program, error) {
	l := &lowerer{
		cfg:      cfg,
		prog:     &Program{InputValue: make(map[string]ID)},
		env:      make(map[string]lval),
		funcs:    make(map[string]*ast.FuncDecl),
		inlining: make(map[string]bool),
		declared: make(map[string]bool),
	}
	if err := l.lowerStmts(body.Stmts); err != nil {
		return nil, err
	}
	return l.prog, nil
}

func (l *lowerer) emit(in Instr) ID {
	in.Line = l.lastLine
	id := ID(len(l.prog.Instrs))
	l.prog.Instrs = append(l.prog.Instrs, in)
	return id
}

func (l *lowerer) lowerStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := l.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) lowerStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.InputDecl:
		l.lastLine = n.Span.Line
		return l.declareInput(n)

	case *ast.FuncDecl:
		l.funcs[n.Name] = n
		return nil

	case *ast.LetStmt:
		l.lastLine = n.Span.Line
		v, err := l.lowerExprVal(n.Value)
		if err != nil {
			return err
		}
		// A let binding is an environment alias; no instruction is
		// emitted for the binding itself (spec §4.4).
		l.env[n.Name] = v
		return nil

	case *ast.AssignStmt:
		l.lastLine = n.Span.Line
		id, ok := n.Target.(*ast.Ident)
		if !ok {
			return errs.New(errs.KindUnsupportedOperation, "assignment target must be a plain variable in circuit context")
		}
		v, err := l.lowerExprVal(n.Value)
		if err != nil {
			return err
		}
		l.env[id.Name] = v
		return nil

	case *ast.ExprStmt:
		l.lastLine = n.Span.Line
		_, err := l.lowerExprVal(n.X)
		return err

	case *ast.IfStmt:
		l.lastLine = n.Span.Line
		return l.lowerIfStmt(n)

	case *ast.ForStmt:
		l.lastLine = n.Span.Line
		return l.lowerForStmt(n)

	case *ast.WhileStmt:
		return errs.New(errs.KindUnsupportedOperation, "while loops are not supported in circuit context")
	case *ast.BreakStmt:
		return errs.New(errs.KindUnsupportedOperation, "break is not supported in circuit context")
	case *ast.ContinueStmt:
		return errs.New(errs.KindUnsupportedOperation, "continue is not supported in circuit context")
	case *ast.ReturnStmt:
		return errs.New(errs.KindUnsupportedOperation, "return is not supported in circuit context")

	default:
		return errs.New(errs.KindUnsupportedOperation, "unsupported statement in circuit context")
	}
}

func (l *lowerer) declareInput(n *ast.InputDecl) error {
	if l.declared[n.Name] {
		return errs.New(errs.KindDuplicateInput, "%q is declared more than once", n.Name)
	}
	l.declared[n.Name] = true

	count := n.Count
	if count < 1 {
		count = 1
	}
	if count == 1 {
		id := l.emit(Instr{Op: OpInput, Name: n.Name, SourceID: n.Name})
		l.env[n.Name] = scalar(id)
		l.prog.InputValue[n.Name] = id
		l.recordDecl(n, n.Name, false, 0)
		return nil
	}

	ids := make([]ID, count)
	for i := 0; i < count; i++ {
		flat := flattenName(n.Name, i)
		id := l.emit(Instr{Op: OpInput, Name: flat, SourceID: n.Name})
		ids[i] = id
		l.prog.InputValue[flat] = id
		l.recordDecl(n, flat, true, i)
	}
	l.env[n.Name] = lval{arr: ids}
	return nil
}

func flattenName(base string, i int) string {
	return base + "_" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func (l *lowerer) recordDecl(n *ast.InputDecl, flat string, isArr bool, idx int) {
	d := InputDecl{Name: flat, IsArr: isArr, Base: n.Name, Index: idx}
	switch n.Kind {
	case ast.InputPublic:
		d.Kind = InputPublic
		l.prog.Public = append(l.prog.Public, d)
	default:
		d.Kind = InputWitness
		l.prog.Witness = append(l.prog.Witness, d)
	}
}

func (l *lowerer) lowerIfStmt(n *ast.IfStmt) error {
	cond, err := l.lowerExpr(n.Cond)
	if err != nil {
		return err
	}
	// Snapshot, lower both branches independently against copies of the
	// environment, then merge each rebound name with Mux (spec §4.4).
	before := cloneEnv(l.env)

	thenEnv, err := l.lowerBranch(n.Then, before)
	if err != nil {
		return err
	}
	elseEnv := before
	if n.Else != nil {
		elseEnv, err = l.lowerBranch(*n.Else, before)
		if err != nil {
			return err
		}
	}

	merged := cloneEnv(before)
	for name, tv := range thenEnv {
		ev, ok := elseEnv[name]
		if !ok {
			ev = tv
		}
		merged[name], err = l.mergeVal(cond, tv, ev)
		if err != nil {
			return err
		}
	}
	for name, ev := range elseEnv {
		if _, done := thenEnv[name]; done {
			continue
		}
		tv, ok := before[name]
		if !ok {
			tv = ev
		}
		merged[name], err = l.mergeVal(cond, tv, ev)
		if err != nil {
			return err
		}
	}
	l.env = merged
	return nil
}

func (l *lowerer) lowerBranch(b ast.Block, base map[string]lval) (map[string]lval, error) {
	saved := l.env
	l.env = cloneEnv(base)
	err := l.lowerStmts(b.Stmts)
	out := l.env
	l.env = saved
	return out, err
}

func (l *lowerer) mergeVal(cond ID, then, els lval) (lval, error) {
	if then.arr != nil || els.arr != nil {
		if len(then.arr) != len(els.arr) {
			return lval{}, errs.New(errs.KindTypeMismatch, "if/else branches bind an array of mismatched length")
		}
		out := make([]ID, len(then.arr))
		for i := range out {
			out[i] = l.emit(Instr{Op: OpMux, Args: []ID{cond, then.arr[i], els.arr[i]}})
		}
		return lval{arr: out}, nil
	}
	return scalar(l.emit(Instr{Op: OpMux, Args: []ID{cond, then.id, els.id}})), nil
}

func cloneEnv(m map[string]lval) map[string]lval {
	out := make(map[string]lval, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (l *lowerer) lowerForStmt(n *ast.ForStmt) error {
	lo, err := l.lowerExpr(n.Lo)
	if err != nil {
		return err
	}
	hi, err := l.lowerExpr(n.Hi)
	if err != nil {
		return err
	}
	loInstr, hiInstr := l.prog.Instrs[lo], l.prog.Instrs[hi]
	if loInstr.Op != OpConst || hiInstr.Op != OpConst {
		return errs.New(errs.KindUnsupportedOperation, "for-loop bounds must be compile-time constants")
	}
	loN := loInstr.Const.BigInt().Int64()
	hiN := hiInstr.Const.BigInt().Int64()
	if hiN < loN {
		return nil
	}
	count := hiN - loN
	if count > int64(l.cfg.UnrollCeiling) {
		return errs.New(errs.KindExcessiveUnroll, "for-loop unrolls to %d iterations, exceeding the ceiling of %d", count, l.cfg.UnrollCeiling)
	}
	for i := loN; i < hiN; i++ {
		id := l.emit(Instr{Op: OpConst, Const: field.FromInt64(i)})
		saved, had := l.env[n.Var]
		l.env[n.Var] = scalar(id)
		if err := l.lowerStmts(n.Body.Stmts); err != nil {
			return err
		}
		if had {
			l.env[n.Var] = saved
		} else {
			delete(l.env, n.Var)
		}
	}
	return nil
}

// lowerExprVal lowers an expression that may be array-valued (an Ident
// bound to an array, or an ArrayLit), returning its full lval.
func (l *lowerer) lowerExprVal(e ast.Expr) (lval, error) {
	switch n := e.(type) {
	case *ast.Ident:
		v, ok := l.env[n.Name]
		if !ok {
			return lval{}, errs.New(errs.KindUndefinedVariable, "undefined variable %q", n.Name)
		}
		return v, nil
	case *ast.ArrayLit:
		ids := make([]ID, len(n.Elems))
		for i, el := range n.Elems {
			if _, isArr := el.(*ast.ArrayLit); isArr {
				return lval{}, errs.New(errs.KindNestedArrayInCircuit, "nested array literals are not supported in circuit context")
			}
			id, err := l.lowerExpr(el)
			if err != nil {
				return lval{}, err
			}
			ids[i] = id
		}
		return lval{arr: ids}, nil
	default:
		id, err := l.lowerExpr(e)
		if err != nil {
			return lval{}, err
		}
		return scalar(id), nil
	}
}

// lowerExpr lowers a scalar-valued expression, fixing left-before-right
// evaluation order for binary operators (spec §4.4).
func (l *lowerer) lowerExpr(e ast.Expr) (ID, error) {
	switch n := e.(type) {
	case *ast.IntLit:
		return l.emit(Instr{Op: OpConst, Const: field.FromInt64(n.Value)}), nil

	case *ast.FieldLit:
		fe, err := field.FromDecimal(n.Decimal)
		if err != nil {
			return 0, errs.Wrap(errs.KindParseError, err, "invalid field literal %q", n.Decimal)
		}
		return l.emit(Instr{Op: OpConst, Const: fe}), nil

	case *ast.BoolLit:
		v := int64(0)
		if n.Value {
			v = 1
		}
		return l.emit(Instr{Op: OpConst, Const: field.FromInt64(v)}), nil

	case *ast.Ident:
		v, ok := l.env[n.Name]
		if !ok {
			return 0, errs.New(errs.KindUndefinedVariable, "undefined variable %q", n.Name)
		}
		if v.arr != nil {
			return 0, errs.New(errs.KindTypeMismatch, "%q is an array; index it before use", n.Name)
		}
		return v.id, nil

	case *ast.IndexExpr:
		return l.lowerIndex(n)

	case *ast.UnaryExpr:
		x, err := l.lowerExpr(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case ast.OpNeg:
			return l.emit(Instr{Op: OpNeg, Args: []ID{x}}), nil
		case ast.OpNot:
			return l.emit(Instr{Op: OpNot, Args: []ID{x}}), nil
		}
		return 0, errs.New(errs.KindUnsupportedOperation, "unknown unary operator")

	case *ast.BinaryExpr:
		lhs, err := l.lowerExpr(n.Left)
		if err != nil {
			return 0, err
		}
		rhs, err := l.lowerExpr(n.Right)
		if err != nil {
			return 0, err
		}
		// Gt/Ge have no dedicated SSA op (spec §3 lists only IsLt/IsLe);
		// rewrite as the operand-swapped Lt/Le.
		switch n.Op {
		case ast.OpGt:
			return l.emit(Instr{Op: OpIsLt, Args: []ID{rhs, lhs}}), nil
		case ast.OpGe:
			return l.emit(Instr{Op: OpIsLe, Args: []ID{rhs, lhs}}), nil
		}
		op, err := binOp(n.Op)
		if err != nil {
			return 0, err
		}
		return l.emit(Instr{Op: op, Args: []ID{lhs, rhs}}), nil

	case *ast.IfExpr:
		cond, err := l.lowerExpr(n.Cond)
		if err != nil {
			return 0, err
		}
		then, err := l.lowerExpr(n.Then)
		if err != nil {
			return 0, err
		}
		els, err := l.lowerExpr(n.Else)
		if err != nil {
			return 0, err
		}
		return l.emit(Instr{Op: OpMux, Args: []ID{cond, then, els}}), nil

	case *ast.CallExpr:
		return l.lowerCall(n)

	default:
		return 0, errs.New(errs.KindUnsupportedOperation, "unsupported expression in circuit context")
	}
}

func binOp(op ast.BinOp) (Op, error) {
	switch op {
	case ast.OpAdd:
		return OpAdd, nil
	case ast.OpSub:
		return OpSub, nil
	case ast.OpMul:
		return OpMul, nil
	case ast.OpDiv:
		return OpDiv, nil
	case ast.OpEq:
		return OpIsEq, nil
	case ast.OpNeq:
		return OpIsNeq, nil
	case ast.OpLt:
		return OpIsLt, nil
	case ast.OpLe:
		return OpIsLe, nil
	case ast.OpAnd:
		return OpAnd, nil
	case ast.OpOr:
		return OpOr, nil
	default:
		return 0, errs.New(errs.KindUnsupportedOperation, "unknown binary operator")
	}
}

func (l *lowerer) lowerIndex(n *ast.IndexExpr) (ID, error) {
	id, ok := n.Array.(*ast.Ident)
	if !ok {
		return 0, errs.New(errs.KindUnsupportedOperation, "index target must be a plain array variable")
	}
	v, ok := l.env[id.Name]
	if !ok {
		return 0, errs.New(errs.KindUndefinedVariable, "undefined variable %q", id.Name)
	}
	if v.arr == nil {
		return 0, errs.New(errs.KindTypeMismatch, "%q is not an array", id.Name)
	}
	idxID, err := l.lowerExpr(n.Index)
	if err != nil {
		return 0, err
	}
	idxInstr := l.prog.Instrs[idxID]
	if idxInstr.Op != OpConst {
		return 0, errs.New(errs.KindUnsupportedOperation, "array index must be a compile-time constant in circuit context")
	}
	idx := int(idxInstr.Const.BigInt().Int64())
	if idx < 0 || idx >= len(v.arr) {
		return 0, errs.New(errs.KindIndexOutOfRange, "index %d out of range [0, %d)", idx, len(v.arr))
	}
	return v.arr[idx], nil
}

func (l *lowerer) lowerCall(n *ast.CallExpr) (ID, error) {
	if fn, ok := l.funcs[n.Callee]; ok {
		return l.inlineCall(fn, n.Args)
	}
	return l.lowerBuiltin(n)
}

// inlineCall inlines fn's body with parameters bound to argument SSA ids,
// guarded against self-recursion (spec §4.4).
func (l *lowerer) inlineCall(fn *ast.FuncDecl, args []ast.Expr) (ID, error) {
	if l.inlining[fn.Name] {
		return 0, errs.New(errs.KindRecursionInCircuit, "function %q recurses into itself", fn.Name)
	}
	if len(args) != len(fn.Params) {
		return 0, errs.New(errs.KindTypeMismatch, "function %q expects %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	argVals := make([]lval, len(args))
	for i, a := range args {
		v, err := l.lowerExprVal(a)
		if err != nil {
			return 0, err
		}
		argVals[i] = v
	}

	saved := l.env
	l.env = cloneEnv(saved)
	for i, p := range fn.Params {
		l.env[p] = argVals[i]
	}
	l.inlining[fn.Name] = true

	var result ID
	var resultSet bool
	for _, s := range fn.Body.Stmts {
		if ret, ok := s.(*ast.ReturnStmt); ok {
			if ret.Value != nil {
				v, err := l.lowerExpr(ret.Value)
				if err != nil {
					l.inlining[fn.Name] = false
					l.env = saved
					return 0, err
				}
				result, resultSet = v, true
			}
			break
		}
		if err := l.lowerStmt(s); err != nil {
			l.inlining[fn.Name] = false
			l.env = saved
			return 0, err
		}
	}
	l.inlining[fn.Name] = false
	l.env = saved
	if !resultSet {
		return 0, errs.New(errs.KindUnsupportedOperation, "function %q does not return a value", fn.Name)
	}
	return result, nil
}

// lowerBuiltin dispatches a builtin call by name (spec §4.4): assert_eq,
// assert, poseidon, poseidon_many, mux, range_check, merkle_verify, len.
func (l *lowerer) lowerBuiltin(n *ast.CallExpr) (ID, error) {
	switch n.Callee {
	case "assert_eq":
		return l.builtin2(n, OpAssertEq)
	case "assert":
		return l.builtin1(n, OpAssert)
	case "poseidon":
		return l.builtin2(n, OpPoseidonHash)
	case "poseidon_many":
		return l.lowerPoseidonMany(n)
	case "mux":
		return l.builtinMux(n)
	case "range_check":
		return l.lowerRangeCheck(n)
	case "merkle_verify":
		return l.lowerMerkleVerify(n)
	case "len":
		return l.lowerLen(n)
	default:
		return 0, errs.New(errs.KindUnsupportedOperation, "unknown builtin %q", n.Callee)
	}
}

func (l *lowerer) builtin1(n *ast.CallExpr, op Op) (ID, error) {
	if len(n.Args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "%s: expected 1 argument", n.Callee)
	}
	x, err := l.lowerExpr(n.Args[0])
	if err != nil {
		return 0, err
	}
	return l.emit(Instr{Op: op, Args: []ID{x}}), nil
}

func (l *lowerer) builtin2(n *ast.CallExpr, op Op) (ID, error) {
	if len(n.Args) != 2 {
		return 0, errs.New(errs.KindTypeMismatch, "%s: expected 2 arguments", n.Callee)
	}
	a, err := l.lowerExpr(n.Args[0])
	if err != nil {
		return 0, err
	}
	b, err := l.lowerExpr(n.Args[1])
	if err != nil {
		return 0, err
	}
	return l.emit(Instr{Op: op, Args: []ID{a, b}}), nil
}

func (l *lowerer) builtinMux(n *ast.CallExpr) (ID, error) {
	if len(n.Args) != 3 {
		return 0, errs.New(errs.KindTypeMismatch, "mux: expected 3 arguments")
	}
	cond, err := l.lowerExpr(n.Args[0])
	if err != nil {
		return 0, err
	}
	then, err := l.lowerExpr(n.Args[1])
	if err != nil {
		return 0, err
	}
	els, err := l.lowerExpr(n.Args[2])
	if err != nil {
		return 0, err
	}
	return l.emit(Instr{Op: OpMux, Args: []ID{cond, then, els}}), nil
}

func (l *lowerer) lowerRangeCheck(n *ast.CallExpr) (ID, error) {
	if len(n.Args) != 2 {
		return 0, errs.New(errs.KindTypeMismatch, "range_check: expected (value, bits)")
	}
	x, err := l.lowerExpr(n.Args[0])
	if err != nil {
		return 0, err
	}
	bitsLit, ok := n.Args[1].(*ast.IntLit)
	if !ok {
		return 0, errs.New(errs.KindUnsupportedOperation, "range_check: bit width must be a compile-time integer literal")
	}
	return l.emit(Instr{Op: OpRangeCheck, Args: []ID{x}, Bits: int(bitsLit.Value)}), nil
}

// lowerPoseidonMany composes the two-to-one PoseidonHash instruction over a
// variadic input list, folding left-to-right, backing the `poseidon_many`
// builtin with the same primitive the R1CS/Plonk gadgets use.
func (l *lowerer) lowerPoseidonMany(n *ast.CallExpr) (ID, error) {
	if len(n.Args) < 2 {
		return 0, errs.New(errs.KindTypeMismatch, "poseidon_many: expected at least 2 arguments")
	}
	acc, err := l.lowerExpr(n.Args[0])
	if err != nil {
		return 0, err
	}
	for _, a := range n.Args[1:] {
		next, err := l.lowerExpr(a)
		if err != nil {
			return 0, err
		}
		acc = l.emit(Instr{Op: OpPoseidonHash, Args: []ID{acc, next}})
	}
	return acc, nil
}

// lowerMerkleVerify composes a Merkle-path membership check as a chain of
// PoseidonHash + Mux (choosing sibling order by the path-bit) instructions,
// terminated by an AssertEq against the claimed root.
func (l *lowerer) lowerMerkleVerify(n *ast.CallExpr) (ID, error) {
	if len(n.Args) < 3 {
		return 0, errs.New(errs.KindTypeMismatch, "merkle_verify: expected (leaf, root, path_bits...)")
	}
	leaf, err := l.lowerExpr(n.Args[0])
	if err != nil {
		return 0, err
	}
	root, err := l.lowerExpr(n.Args[1])
	if err != nil {
		return 0, err
	}
	cur := leaf
	for _, pathArg := range n.Args[2:] {
		pairLit, ok := pathArg.(*ast.ArrayLit)
		if !ok || len(pairLit.Elems) != 2 {
			return 0, errs.New(errs.KindTypeMismatch, "merkle_verify: each path step must be [sibling, is_right]")
		}
		sibling, err := l.lowerExpr(pairLit.Elems[0])
		if err != nil {
			return 0, err
		}
		isRight, err := l.lowerExpr(pairLit.Elems[1])
		if err != nil {
			return 0, err
		}
		left := l.emit(Instr{Op: OpMux, Args: []ID{isRight, sibling, cur}})
		right := l.emit(Instr{Op: OpMux, Args: []ID{isRight, cur, sibling}})
		cur = l.emit(Instr{Op: OpPoseidonHash, Args: []ID{left, right}})
	}
	return l.emit(Instr{Op: OpAssertEq, Args: []ID{cur, root}}), nil
}

func (l *lowerer) lowerLen(n *ast.CallExpr) (ID, error) {
	if len(n.Args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "len: expected 1 argument")
	}
	v, err := l.lowerExprVal(n.Args[0])
	if err != nil {
		return 0, err
	}
	if v.arr == nil {
		return 0, errs.New(errs.KindTypeMismatch, "len: argument is not an array")
	}
	return l.emit(Instr{Op: OpConst, Const: field.FromInt64(int64(len(v.arr)))}), nil
}
