package passes

import (
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
)

// Taint classifies an SSA identifier's provenance.
type Taint int

const (
	TaintConstant Taint = iota
	TaintPublic
	TaintWitness
	TaintDerived
)

// merge conservatively unions two taints (spec §4.5 "Taint merges at Mux
// are conservative"): Witness dominates Public dominates Derived
// dominates Constant, since a consumer must assume the more sensitive
// provenance could flow through.
func merge(a, b Taint) Taint {
	if a == TaintWitness || b == TaintWitness {
		return TaintWitness
	}
	if a == TaintPublic || b == TaintPublic {
		return TaintPublic
	}
	if a == TaintDerived || b == TaintDerived {
		return TaintDerived
	}
	return TaintConstant
}

// AnalyzeTaint classifies every SSA id's provenance, then seeds a
// "constrained" set backward from every AssertEq and Assert, reporting declared
// witness inputs that never reach it as UnderConstrainedWitness, and
// declared inputs that appear in no reachable instruction as UnusedInput
// (spec §4.5). Both are warnings (errs.Kind.IsWarning()).
func AnalyzeTaint(p *ir.Program) (map[ir.ID]Taint, []*errs.Error) {
	taint := make(map[ir.ID]Taint, len(p.Instrs))
	isPublic := make(map[string]bool)
	isWitness := make(map[string]bool)
	for _, d := range p.Public {
		isPublic[d.Name] = true
	}
	for _, d := range p.Witness {
		isWitness[d.Name] = true
	}

	for id, in := range p.Instrs {
		switch in.Op {
		case ir.OpConst:
			taint[ir.ID(id)] = TaintConstant
		case ir.OpInput:
			switch {
			case isWitness[in.Name]:
				taint[ir.ID(id)] = TaintWitness
			case isPublic[in.Name]:
				taint[ir.ID(id)] = TaintPublic
			default:
				taint[ir.ID(id)] = TaintDerived
			}
		case ir.OpMux:
			taint[ir.ID(id)] = merge(taint[in.Args[1]], taint[in.Args[2]])
		default:
			t := TaintConstant
			for _, a := range in.Args {
				t = merge(t, taint[a])
			}
			taint[ir.ID(id)] = t
		}
	}

	constrained := make([]bool, len(p.Instrs))
	for id, in := range p.Instrs {
		if in.Op == ir.OpAssertEq || in.Op == ir.OpAssert {
			markConstrained(p, ir.ID(id), constrained)
		}
	}

	var warnings []*errs.Error
	reachable := make([]bool, len(p.Instrs))
	for _, in := range p.Instrs {
		for _, a := range in.Args {
			reachable[a] = true
		}
	}

	for _, d := range p.Witness {
		id, ok := p.InputValue[d.Name]
		if !ok {
			continue
		}
		if !reachable[id] {
			warnings = append(warnings, errs.New(errs.KindUnusedInput, "witness input %q is never referenced", d.Name))
			continue
		}
		if !constrained[id] {
			warnings = append(warnings, errs.New(errs.KindUnderConstrainedWitness, "witness input %q never reaches an assertion", d.Name))
		}
	}
	for _, d := range p.Public {
		id, ok := p.InputValue[d.Name]
		if !ok {
			continue
		}
		if !reachable[id] {
			warnings = append(warnings, errs.New(errs.KindUnusedInput, "public input %q is never referenced", d.Name))
		}
	}

	return taint, warnings
}

func markConstrained(p *ir.Program, id ir.ID, constrained []bool) {
	if constrained[id] {
		return
	}
	constrained[id] = true
	for _, a := range p.Instrs[id].Args {
		markConstrained(p, a, constrained)
	}
}
