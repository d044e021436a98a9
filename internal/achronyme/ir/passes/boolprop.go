package passes

import "github.com/achronyme/achronyme/internal/achronyme/ir"

// PropagateBooleans runs a forward pass marking SSA identifiers known to
// be boolean: RangeCheck(x, 1), Not, And, Or, IsEq, IsNeq, IsLt, IsLe,
// Assert, and OpConst 0/1. Downstream boolean enforcement (the backends'
// Mux/And/Or gadgets) may skip re-enforcing inputs already known boolean
// (spec §4.5).
func PropagateBooleans(p *ir.Program) map[ir.ID]bool {
	known := make(map[ir.ID]bool, len(p.Instrs))
	for id, in := range p.Instrs {
		switch in.Op {
		case ir.OpNot, ir.OpAnd, ir.OpOr, ir.OpIsEq, ir.OpIsNeq, ir.OpIsLt, ir.OpIsLe, ir.OpAssert:
			known[ir.ID(id)] = true
		case ir.OpRangeCheck:
			if in.Bits == 1 {
				known[ir.ID(id)] = true
			}
		case ir.OpConst:
			if in.Const.IsZero() || in.Const.IsOne() {
				known[ir.ID(id)] = true
			}
		case ir.OpMux:
			// A Mux between two already-known-boolean branches yields a
			// boolean result.
			if known[in.Args[1]] && known[in.Args[2]] {
				known[ir.ID(id)] = true
			}
		}
	}
	return known
}
