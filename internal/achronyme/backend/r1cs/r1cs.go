// Package r1cs compiles a lowered SSA program (package ir) into a
// rank-one constraint system, Groth16-compatible (spec §3 "Constraint
// system (rank-one)", §4.6).
package r1cs

import "github.com/achronyme/achronyme/internal/achronyme/field"

// Wire indexes the flat witness vector. Wire 0 is always the constant 1.
type Wire int

// Term is one sparse entry of a linear combination.
type Term struct {
	Wire  Wire
	Coeff field.Element
}

// LC is a linear combination over wires, sparse by construction.
type LC []Term

// constLC returns the linear combination representing a bare field constant.
func constLC(v field.Element) LC {
	if v.IsZero() {
		return nil
	}
	return LC{{Wire: 0, Coeff: v}}
}

func wireLC(w Wire) LC { return LC{{Wire: w, Coeff: field.One()}} }

func (a LC) add(b LC) LC {
	coeffs := map[Wire]field.Element{}
	order := []Wire{}
	apply := func(lc LC, sign field.Element) {
		for _, t := range lc {
			c, ok := coeffs[t.Wire]
			if !ok {
				order = append(order, t.Wire)
				c = field.Zero()
			}
			coeffs[t.Wire] = c.Add(t.Coeff.Mul(sign))
		}
	}
	apply(a, field.One())
	apply(b, field.One())
	return compact(order, coeffs)
}

func (a LC) sub(b LC) LC {
	coeffs := map[Wire]field.Element{}
	order := []Wire{}
	apply := func(lc LC, sign field.Element) {
		for _, t := range lc {
			c, ok := coeffs[t.Wire]
			if !ok {
				order = append(order, t.Wire)
				c = field.Zero()
			}
			coeffs[t.Wire] = c.Add(t.Coeff.Mul(sign))
		}
	}
	apply(a, field.One())
	apply(b, field.FromInt64(-1))
	return compact(order, coeffs)
}

func (a LC) neg() LC {
	out := make(LC, len(a))
	for i, t := range a {
		out[i] = Term{Wire: t.Wire, Coeff: t.Coeff.Neg()}
	}
	return out
}

func (a LC) scale(k field.Element) LC {
	out := make(LC, len(a))
	for i, t := range a {
		out[i] = Term{Wire: t.Wire, Coeff: t.Coeff.Mul(k)}
	}
	return out
}

func compact(order []Wire, coeffs map[Wire]field.Element) LC {
	out := make(LC, 0, len(order))
	for _, w := range order {
		c := coeffs[w]
		if !c.IsZero() {
			out = append(out, Term{Wire: w, Coeff: c})
		}
	}
	return out
}

// Constraint is one rank-one triple A·B=C over linear combinations.
type Constraint struct {
	A, B, C LC
}

// System is the complete rank-one constraint system plus its wire
// bookkeeping (spec §3): wire 0 is the constant 1; every other wire is
// numbered in allocation order (an input gets its wire when its OpInput is
// compiled), and ExportOrder gives the public-before-witness order used
// for export.
type System struct {
	Constraints []Constraint
	NumWires    int
	NumPublic   int
	NumWitness  int
	WireLabels  map[Wire]string
	InputWire   map[string]Wire

	// PublicWires and WitnessWires record declared input wires in the
	// order they were allocated, independent of whether the source
	// happened to interleave public/witness declarations; the exporter
	// uses these to place public inputs before witnesses on the wire
	// (spec §6.2), regardless of in-program declaration order.
	PublicWires  []Wire
	WitnessWires []Wire
}

// ExportOrder returns, for each export-position wire index, the original
// Wire it corresponds to: position 0 is always the constant wire, then
// every public input (in declaration order), then every witness input (in
// declaration order), then every remaining intermediate wire (in
// allocation order). This is the permutation the binary exporter applies
// so public inputs always precede witnesses on the wire, independent of
// how the source interleaved their declarations (spec §6.2).
func (s *System) ExportOrder() []Wire {
	order := make([]Wire, 0, s.NumWires)
	order = append(order, 0)
	isInput := make(map[Wire]bool, len(s.PublicWires)+len(s.WitnessWires))
	for _, w := range s.PublicWires {
		order = append(order, w)
		isInput[w] = true
	}
	for _, w := range s.WitnessWires {
		order = append(order, w)
		isInput[w] = true
	}
	for w := 1; w < s.NumWires; w++ {
		wire := Wire(w)
		if isInput[wire] {
			continue
		}
		order = append(order, wire)
	}
	return order
}

func newSystem() *System {
	return &System{NumWires: 1, WireLabels: map[Wire]string{0: "one"}, InputWire: map[string]Wire{}}
}

func (s *System) allocWire(label string) Wire {
	w := Wire(s.NumWires)
	s.NumWires++
	if label != "" {
		s.WireLabels[w] = label
	}
	return w
}

func (s *System) assertEq(a, b LC) {
	s.Constraints = append(s.Constraints, Constraint{A: a.sub(b), B: constLC(field.One()), C: nil})
}
