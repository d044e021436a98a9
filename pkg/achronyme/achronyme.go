// Package achronyme is the toolchain's stable public API surface (mirrors
// the teacher's pkg/vybium-starks-vm split): a single VM type wrapping
// compilation, execution and the inline-proof glue, so a caller never
// needs to import anything under internal/achronyme directly.
package achronyme

import (
	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/compile"
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
	"github.com/achronyme/achronyme/internal/achronyme/proofhandler"
	"github.com/achronyme/achronyme/internal/achronyme/proofhandler/gnarkhandler"
	"github.com/achronyme/achronyme/internal/achronyme/proveglue"
	"github.com/achronyme/achronyme/internal/achronyme/value"
	"github.com/achronyme/achronyme/internal/achronyme/vm"
)

// Error and Kind re-export the toolchain's single error taxonomy (spec
// §7) so callers never need to import internal/achronyme/errs directly.
type (
	Error = errs.Error
	Kind  = errs.Kind
)

// These mirror errs.Kind's exported constants one-for-one.
const (
	KindUnknown                = errs.KindUnknown
	KindParseError              = errs.KindParseError
	KindIntegerOverflow         = errs.KindIntegerOverflow
	KindTypeMismatch            = errs.KindTypeMismatch
	KindDivisionByZero          = errs.KindDivisionByZero
	KindIndexOutOfRange         = errs.KindIndexOutOfRange
	KindUndefinedVariable       = errs.KindUndefinedVariable
	KindStackOverflow           = errs.KindStackOverflow
	KindNotCallable             = errs.KindNotCallable
	KindDuplicateInput          = errs.KindDuplicateInput
	KindUnsupportedOperation    = errs.KindUnsupportedOperation
	KindExcessiveUnroll         = errs.KindExcessiveUnroll
	KindNestedArrayInCircuit    = errs.KindNestedArrayInCircuit
	KindRecursionInCircuit      = errs.KindRecursionInCircuit
	KindNonBooleanMuxCondition  = errs.KindNonBooleanMuxCondition
	KindUnderConstrainedWitness = errs.KindUnderConstrainedWitness
	KindUnusedInput             = errs.KindUnusedInput
	KindConstraintViolation     = errs.KindConstraintViolation
	KindProveHandlerUnavailable = errs.KindProveHandlerUnavailable
	KindProveBlockFailed        = errs.KindProveBlockFailed
	KindFieldNotCanonical       = errs.KindFieldNotCanonical
	KindFieldNotReduced         = errs.KindFieldNotReduced
	KindHeapOverflow            = errs.KindHeapOverflow
)

// ProofHandlerKind selects which back-end a VM's `prove { ... }` blocks
// are compiled against.
type ProofHandlerKind int

const (
	// ProofHandlerLocal replays the witness trace and reports only
	// whether it satisfies the circuit (spec §4.9 step 5's fallback);
	// it never configures, proves with, or depends on the gnark/gnark-
	// crypto stack, so it has no CacheDir and no setup cost.
	ProofHandlerLocal ProofHandlerKind = iota

	// ProofHandlerGnark compiles each circuit to a gnark R1CS and
	// produces real Groth16 proofs over BN254, via gnarkhandler.
	ProofHandlerGnark
)

// Config configures a VM's compilation and proving behavior. The zero
// Config is valid: ProofHandlerLocal, the reference unroll ceiling, and
// GC left to its default threshold.
type Config struct {
	// ProofHandler selects the back-end `prove { ... }` blocks run
	// against.
	ProofHandler ProofHandlerKind

	// CacheDir is where ProofHandlerGnark persists its per-circuit
	// proving/verifying keys (ignored for ProofHandlerLocal). Empty
	// disables on-disk caching — every prove re-runs trusted setup.
	CacheDir string

	// UnrollCeiling caps how many iterations ir.Lower will unroll a
	// single `for` loop inside a prove block (spec §4.4).
	UnrollCeiling int

	// StressGC forces the heap to collect before every allocation
	// instead of only when a threshold is crossed, for exercising GC
	// correctness under test rather than for production use.
	StressGC bool
}

// DefaultConfig returns the reference toolchain's defaults: the local
// verified-only handler and the standard 4096-iteration unroll ceiling.
func DefaultConfig() Config {
	return Config{
		ProofHandler:  ProofHandlerLocal,
		UnrollCeiling: ir.DefaultConfig().UnrollCeiling,
	}
}

// VM is a ready-to-run Achronyme virtual machine: a register-based
// bytecode interpreter plus the inline-proof glue that lowers and proves
// `prove { ... }` blocks against the configured handler.
type VM struct {
	inner *vm.VM
	cfg   Config
}

// New builds a VM from cfg. A zero Config behaves like DefaultConfig.
func New(cfg Config) (*VM, error) {
	if cfg.UnrollCeiling == 0 {
		cfg.UnrollCeiling = ir.DefaultConfig().UnrollCeiling
	}

	var handler proofhandler.Handler
	switch cfg.ProofHandler {
	case ProofHandlerGnark:
		handler = gnarkhandler.New(cfg.CacheDir)
	default:
		handler = proofhandler.Local{}
	}

	glue := proveglue.New(handler)
	glue.Config = ir.Config{UnrollCeiling: cfg.UnrollCeiling}

	m := vm.New()
	m.Prover = glue
	m.Verifier = glue
	m.Heap.SetStressMode(cfg.StressGC)

	return &VM{inner: m, cfg: cfg}, nil
}

// Program is a compiled, loaded unit of bytecode ready to Run. Compile
// produces one from a typed syntax tree (spec §2's "Bytecode compiler"
// box; lexing and parsing text into that tree is this module's one
// external collaborator, per spec §1).
type Program struct {
	entry value.Value
}

// Compile lowers prog to bytecode and installs every resulting
// prototype into v's heap, returning a Program ready to Run.
func (v *VM) Compile(prog ast.Program) (*Program, error) {
	compiled, err := compile.Compile(prog)
	if err != nil {
		return nil, err
	}
	return v.LoadCompiled(compiled)
}

// LoadCompiled installs an already-compiled Program's prototypes into v's
// heap directly, skipping the ast.Program -> bytecode step (for callers,
// such as cmd/achronymec's run command, that hold bytecode rather than a
// syntax tree).
func (v *VM) LoadCompiled(compiled *compile.Program) (*Program, error) {
	protoHandles, entryHandle, err := compiled.LoadEntry(v.inner.Heap)
	if err != nil {
		return nil, err
	}
	v.inner.Protos = protoHandles
	return &Program{entry: value.FromHandle(value.TagClosure, value.Handle(entryHandle))}, nil
}

// Run invokes p's entry point with args, returning whatever its top-level
// statements compute (an explicit `return` at top level, or nil).
func (v *VM) Run(p *Program, args ...value.Value) (value.Value, error) {
	return v.inner.Call(p.entry, args)
}

// Heap exposes the VM's underlying heap, for callers that need to box or
// unbox value.Value arguments and results directly.
func (v *VM) Heap() *heap.Heap { return v.inner.Heap }
