// Package ir implements the single-static-assignment program lowered from
// a typed syntax tree (spec §3 "Single Static Assignment program", §4.4).
package ir

import "github.com/achronyme/achronyme/internal/achronyme/field"

// ID is an SSA identifier: the integer that is the unique producer of a
// value, in definition order.
type ID int

// Op is one SSA instruction opcode.
type Op int

const (
	OpConst Op = iota
	OpInput
	OpAdd
	OpSub
	OpNeg
	OpMul
	OpDiv
	OpMux
	OpAssertEq
	OpAssert
	OpPoseidonHash
	OpRangeCheck
	OpNot
	OpAnd
	OpOr
	OpIsEq
	OpIsNeq
	OpIsLt
	OpIsLe
)

// SideEffecting reports whether op carries the declared side-effect flag
// (spec §3): assertions and range checks, plus boolean enforcement on
// Not/And/Or.
func (op Op) SideEffecting() bool {
	switch op {
	case OpAssertEq, OpAssert, OpRangeCheck, OpNot, OpAnd, OpOr:
		return true
	default:
		return false
	}
}

// Instr is one SSA definition: a stable operand list plus whatever extra
// scalar operand a given op needs (Bits for RangeCheck, Const for OpConst).
type Instr struct {
	Op       Op
	Args     []ID
	Const    field.Element // meaningful for OpConst
	Name     string        // meaningful for OpInput
	Bits     int           // meaningful for OpRangeCheck
	SourceID string        // source variable name, for diagnostics
	Line     int
}

// InputKind distinguishes a declared circuit input's visibility.
type InputKind int

const (
	InputPublic InputKind = iota
	InputWitness
)

// InputDecl is one declared (possibly array-flattened) input.
type InputDecl struct {
	Kind  InputKind
	Name  string // flattened name, e.g. "leaf_0"
	IsArr bool
	Base  string // the original array name, equal to Name if scalar
	Index int    // position within the array, 0 if scalar
}

// Program is a flat SSA program: a single basic block of numbered
// definitions plus its declared input interface.
type Program struct {
	Instrs  []Instr
	Public  []InputDecl
	Witness []InputDecl

	// InputValue maps a flattened input name to the SSA id that produces
	// it (an OpInput instruction).
	InputValue map[string]ID
}

// Def returns the instruction defining id.
func (p *Program) Def(id ID) Instr { return p.Instrs[id] }

// NumDefs returns the number of SSA definitions.
func (p *Program) NumDefs() int { return len(p.Instrs) }
