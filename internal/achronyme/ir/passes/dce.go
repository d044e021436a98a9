package passes

import "github.com/achronyme/achronyme/internal/achronyme/ir"

// Eliminate removes every non-side-effecting instruction with no
// surviving user, via a backward walk rooted at side-effecting
// instructions (assertions, range checks, boolean-enforcing ops). SSA ids
// are remapped to keep the remaining program dense (spec §4.5).
func Eliminate(p *ir.Program) {
	n := len(p.Instrs)
	live := make([]bool, n)
	for id, in := range p.Instrs {
		if in.Op.SideEffecting() {
			markLive(p, ir.ID(id), live)
		}
	}
	for _, decl := range p.Public {
		if id, ok := p.InputValue[decl.Name]; ok {
			markLive(p, id, live)
		}
	}
	for _, decl := range p.Witness {
		if id, ok := p.InputValue[decl.Name]; ok {
			markLive(p, id, live)
		}
	}

	remap := make([]ir.ID, n)
	newInstrs := make([]ir.Instr, 0, n)
	for id := 0; id < n; id++ {
		if !live[id] {
			continue
		}
		in := p.Instrs[id]
		newArgs := make([]ir.ID, len(in.Args))
		for i, a := range in.Args {
			newArgs[i] = remap[a]
		}
		in.Args = newArgs
		remap[id] = ir.ID(len(newInstrs))
		newInstrs = append(newInstrs, in)
	}

	for name, id := range p.InputValue {
		p.InputValue[name] = remap[id]
	}
	p.Instrs = newInstrs
}

func markLive(p *ir.Program, id ir.ID, live []bool) {
	if live[id] {
		return
	}
	live[id] = true
	for _, a := range p.Instrs[id].Args {
		markLive(p, a, live)
	}
}
