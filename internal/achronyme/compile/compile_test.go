package compile

import (
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/value"
	"github.com/achronyme/achronyme/internal/achronyme/vm"
)

func runProgram(t *testing.T, prog ast.Program) value.Value {
	t.Helper()
	compiled, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m := vm.New()
	protoHandles, entryHandle, err := compiled.LoadEntry(m.Heap)
	if err != nil {
		t.Fatalf("LoadEntry: %v", err)
	}
	m.Protos = protoHandles
	entry := value.FromHandle(value.TagClosure, value.Handle(entryHandle))
	result, err := m.Call(entry, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	return result
}

// TestClosureCapturesPerCallFrame pins the OpMakeClosure regression: two
// separate calls to the same factory function must each capture their own
// parameter, not whichever stack slot happened to be live at the second
// call's frame base. Before the fix, a closure's captured-local upvalue
// source carried a frame-relative register index straight into
// captureUpvalue, which indexes the VM's stack absolutely — correct only
// by accident for a call whose frame happened to start at offset 0.
func TestClosureCapturesPerCallFrame(t *testing.T) {
	adder := &ast.FuncDecl{
		Name:   "adder",
		Params: []string{"x"},
		Body: ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.FuncLit{
				Params: []string{"y"},
				Body: ast.Block{Stmts: []ast.Stmt{
					&ast.ReturnStmt{Value: &ast.BinaryExpr{
						Op:    ast.OpAdd,
						Left:  &ast.Ident{Name: "x"},
						Right: &ast.Ident{Name: "y"},
					}},
				}},
			}},
		}},
	}

	prog := ast.Program{Stmts: []ast.Stmt{
		adder,
		&ast.LetStmt{Name: "f1", Value: &ast.CallExpr{Callee: "adder", Args: []ast.Expr{&ast.IntLit{Value: 10}}}},
		&ast.LetStmt{Name: "f2", Value: &ast.CallExpr{Callee: "adder", Args: []ast.Expr{&ast.IntLit{Value: 100}}}},
		&ast.ReturnStmt{Value: &ast.BinaryExpr{
			Op:    ast.OpAdd,
			Left:  &ast.CallExpr{Callee: "f1", Args: []ast.Expr{&ast.IntLit{Value: 1}}},
			Right: &ast.CallExpr{Callee: "f2", Args: []ast.Expr{&ast.IntLit{Value: 1}}},
		}},
	}}

	result := runProgram(t, prog)
	if !result.IsInt() || result.AsInt() != 112 {
		t.Fatalf("got %v, want 112 (f1(1)=11, f2(1)=101)", result)
	}
}

// TestForLoopAccumulates exercises ForStmt's runtime loop (not unrolled —
// unrolling is ir.Lower's circuit-only concern) together with AssignStmt
// against a mutable outer local, which depends on popScope reclaiming only
// the loop body's own registers and not the accumulator's.
func TestForLoopAccumulates(t *testing.T) {
	prog := ast.Program{Stmts: []ast.Stmt{
		&ast.LetStmt{Name: "total", Mutable: true, Value: &ast.IntLit{Value: 0}},
		&ast.ForStmt{
			Var: "i",
			Lo:  &ast.IntLit{Value: 0},
			Hi:  &ast.IntLit{Value: 5},
			Body: ast.Block{Stmts: []ast.Stmt{
				&ast.AssignStmt{
					Target: &ast.Ident{Name: "total"},
					Value: &ast.BinaryExpr{
						Op:    ast.OpAdd,
						Left:  &ast.Ident{Name: "total"},
						Right: &ast.Ident{Name: "i"},
					},
				},
			}},
		},
		&ast.ReturnStmt{Value: &ast.Ident{Name: "total"}},
	}}

	result := runProgram(t, prog)
	if !result.IsInt() || result.AsInt() != 10 {
		t.Fatalf("got %v, want 10 (0+1+2+3+4)", result)
	}
}

// TestImmutableAssignRejected checks that assigning to a `let` (non-mut)
// binding is a compile error, not a silent write.
func TestImmutableAssignRejected(t *testing.T) {
	prog := ast.Program{Stmts: []ast.Stmt{
		&ast.LetStmt{Name: "x", Mutable: false, Value: &ast.IntLit{Value: 1}},
		&ast.AssignStmt{Target: &ast.Ident{Name: "x"}, Value: &ast.IntLit{Value: 2}},
	}}

	if _, err := Compile(prog); err == nil {
		t.Fatal("expected an error assigning to an immutable binding, got nil")
	}
}
