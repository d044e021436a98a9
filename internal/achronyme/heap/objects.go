package heap

import (
	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/bytecode"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// String is a UTF-8 byte buffer.
type String struct {
	Bytes []byte
}

// List is a vector of tagged values.
type List struct {
	Items []value.Value
}

// Map is a string-keyed mapping; insertion order is not preserved.
type Map struct {
	Entries map[string]value.Value
}

// DebugSymbol is one entry of a function prototype's debug-symbol sidecar,
// used to recover (function name, line) for runtime error locations (§4.3).
type DebugSymbol struct {
	Instruction int
	Line        int
}

// FunctionProto holds a compiled function's bytecode and metadata.
type FunctionProto struct {
	Name        string
	Code        []bytecode.Instr
	Constants   []value.Value
	Debug       []DebugSymbol
	Arity       int
	MaxSlots    int
	UpvalueCnt  int
	ProveBlocks []ProveBlock
}

// ProveBlock is one `prove { ... }` construct compiled alongside its
// enclosing function (spec §4.9). The bytecode compiler emits one entry
// per source-level prove block and an OpProve instruction referencing it
// by index; CaptureRegs names the enclosing frame's registers (parallel
// to CaptureNames) whose live values become the sub-circuit's witness.
type ProveBlock struct {
	Public       []string
	Witness      []string
	Body         ast.Block
	CaptureNames []string
	CaptureRegs  []int
}

// UpvalueLocation is either Open (an index into the VM stack) or Closed (an
// owned tagged value), never a raw pointer into the stack (spec §9).
type UpvalueLocation struct {
	Open       bool
	StackIndex int
	Closed     value.Value
}

// Closure pairs a prototype index with its captured upvalue handles.
type Closure struct {
	ProtoIndex int
	Upvalues   []Handle // handles into the Upvalue arena
}

// Iterator snapshots a collection at creation time so that later mutation
// of the source does not change what the iterator yields (spec §3, §8
// invariant 2).
type Iterator struct {
	Items  []value.Value
	Cursor int
}

// Field wraps a single field element.
type Field struct {
	Elem field.Element
}

// Proof holds the three UTF-8 JSON components of a proof object. Immutable
// after creation; structurally equal iff all three strings are byte-equal.
type Proof struct {
	ProofJSON        string
	PublicInputsJSON string
	VerifyingKeyJSON string
}

// Equal implements structural equality for proof objects (spec §8 invariant 8).
func (p *Proof) Equal(o *Proof) bool {
	return p.ProofJSON == o.ProofJSON &&
		p.PublicInputsJSON == o.PublicInputsJSON &&
		p.VerifyingKeyJSON == o.VerifyingKeyJSON
}
