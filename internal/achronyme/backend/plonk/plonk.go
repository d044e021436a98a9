// Package plonk compiles a lowered SSA program into a Plonk-style gated
// constraint system: advice/fixed columns, a single arithmetic gate,
// lookup tables, and copy constraints (spec §3 "Gated constraint system
// (Plonk-style)", §4.7).
package plonk

import "github.com/achronyme/achronyme/internal/achronyme/field"

// Column identifies one of the system's advice columns, or the fixed
// constant column.
type Column int

const (
	ColA Column = iota
	ColB
	ColC
	ColD
	ColFixed
)

// Cell addresses one (column, row) witness position.
type Cell struct {
	Col Column
	Row int
}

// CopyConstraint asserts that two cells hold equal values; the verifier
// checks every cell in an equivalence class holds the same value (spec
// §3). Used here to tie constants written into advice cells to their
// fixed-column anchor, and also to tie the cells of boolean checks,
// asserted equalities, bit-decomposition sums and range lookups.
type CopyConstraint struct{ A, B Cell }

// Term is one entry of a deferred expression: a cell read, scaled by a
// coefficient.
type Term struct {
	Cell  Cell
	Coeff field.Element
}

// Expr is a deferred linear expression over cells — the "symbolic
// sum-of-products" Add/Sub build without allocating a row, materialized
// only when a product-requiring operation consumes it (spec §4.7).
type Expr []Term

func exprAdd(a, b Expr) Expr { return append(append(Expr{}, a...), b...) }

func exprSub(a, b Expr) Expr {
	out := append(Expr{}, a...)
	for _, t := range b {
		out = append(out, Term{Cell: t.Cell, Coeff: t.Coeff.Neg()})
	}
	return out
}

func exprNeg(a Expr) Expr {
	out := make(Expr, len(a))
	for i, t := range a {
		out[i] = Term{Cell: t.Cell, Coeff: t.Coeff.Neg()}
	}
	return out
}

// System is the complete gated constraint system plus its witness
// bookkeeping. Advice values are populated at witness-generation time;
// compilation fixes the shape (gate selectors, lookup tables, copy
// constraints) and the Fixed column's constant anchors, independent of
// concrete inputs.
type System struct {
	NumRows int
	SArith  []bool          // per-row arithmetic-gate selector
	Fixed   []field.Element // per-row fixed-column value, zero unless an anchor row

	LookupTables    map[string][]field.Element // registered table contents, by table name
	LookupSelectors map[string]map[int]bool    // table name -> set of rows where the lookup applies

	CopyConstraints []CopyConstraint

	InputCell  map[string]Cell // input name -> the cell holding its value
	NumPublic  int
	NumWitness int

	RowLabels map[int]string

	constCache map[string]Cell // canonical decimal -> cached constant anchor cell
}

func newSystem() *System {
	return &System{
		LookupTables:    map[string][]field.Element{},
		LookupSelectors: map[string]map[int]bool{},
		InputCell:       map[string]Cell{},
		RowLabels:       map[int]string{},
		constCache:      map[string]Cell{},
	}
}

func (s *System) newRow(label string) int {
	row := s.NumRows
	s.NumRows++
	s.SArith = append(s.SArith, false)
	s.Fixed = append(s.Fixed, field.Zero())
	if label != "" {
		s.RowLabels[row] = label
	}
	return row
}

func exprOfCell(c Cell) Expr { return Expr{{Cell: c, Coeff: field.One()}} }

// markLookup registers row as participating in the named lookup table,
// creating the table (and its selector set) on first use.
func (s *System) markLookup(table string, contents []field.Element, row int) {
	if _, ok := s.LookupTables[table]; !ok {
		s.LookupTables[table] = contents
		s.LookupSelectors[table] = map[int]bool{}
	}
	s.LookupSelectors[table][row] = true
}
