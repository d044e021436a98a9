package vm

import (
	"fmt"
	"time"

	"github.com/achronyme/achronyme/internal/achronyme/ast"
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// StackSize is the VM's fixed, contiguous register stack size (§4.3).
const StackSize = 65536

// Global is one entry of the VM's compile-time-indexed global table.
type Global struct {
	Name    string
	Value   value.Value
	Mutable bool
}

// openUpvalue is one node of the singly-linked list of open upvalues,
// kept ordered by stack index so capture and close-until can terminate
// early (spec §4.3).
type openUpvalue struct {
	stackIndex int
	handle     uint32
	next       *openUpvalue
}

// Prover executes a `prove { ... }` block (spec §4.9). Implemented by
// package proveglue; declared here, not imported, so vm and proveglue do
// not form an import cycle — proveglue satisfies this interface
// structurally.
type Prover interface {
	Execute(h *heap.Heap, public, witness []string, body ast.Block, capture map[string]value.Value) (proof *heap.Proof, verifiedOnly bool, err error)
}

// Verifier checks a previously produced proof object against its own
// embedded verifying key and public inputs, backing the `verify_proof`
// native independently of whichever handler produced the proof.
type Verifier interface {
	VerifyProof(p *heap.Proof) (bool, error)
}

// NativeFunc is a fixed-table-indexed builtin (spec §4.3).
type NativeFunc func(vm *VM, args []value.Value) (value.Value, error)

// VM is the register-based virtual machine's complete execution state.
type VM struct {
	Stack [StackSize]value.Value
	SP    int // logical top: index of the first unused slot

	Frames []Frame

	Globals     []Global
	GlobalIndex map[string]int

	Protos []uint32 // handles into Heap.Functions, indexed by prototype index

	Heap *heap.Heap

	openUpvalues *openUpvalue

	Natives     []NativeFunc
	NativeNames map[string]int

	Prover   Prover
	Verifier Verifier

	Stdout func(string)  // defaults to writing to os.Stdout; overridable for tests
	Clock  func() int64  // defaults to time.Now().Unix(); overridable for tests
}

// New creates a VM with an empty heap and the native table installed.
func New() *VM {
	m := &VM{
		Heap:        heap.New(),
		GlobalIndex: make(map[string]int),
		NativeNames: make(map[string]int),
		Stdout:      func(s string) { fmt.Print(s) },
		Clock:       func() int64 { return time.Now().Unix() },
	}
	installNatives(m)
	return m
}

// push writes v to the logical top and advances SP. Bounds-checked against
// the fixed stack size; the caller is responsible for the frame's
// max-slots check (StackOverflow is raised at call time, per §4.3).
func (m *VM) push(v value.Value) error {
	if m.SP >= StackSize {
		return errs.New(errs.KindStackOverflow, "stack exhausted")
	}
	m.Stack[m.SP] = v
	m.SP++
	return nil
}

func (m *VM) pop() (value.Value, error) {
	if m.SP == 0 {
		return 0, errs.New(errs.KindStackOverflow, "stack underflow")
	}
	m.SP--
	return m.Stack[m.SP], nil
}

// reg validates a register index against the current frame's declared
// maximum slot use before every read or write (spec §4.3).
func (m *VM) reg(frame *Frame, proto *heap.FunctionProto, i int) (int, error) {
	if i < 0 || i >= proto.MaxSlots {
		return 0, errs.NewAt(errs.KindIndexOutOfRange, m.location(frame, proto),
			"register %d out of range [0, %d)", i, proto.MaxSlots)
	}
	idx := frame.Base + i
	if idx >= StackSize {
		return 0, errs.NewAt(errs.KindStackOverflow, m.location(frame, proto), "register address exceeds stack size")
	}
	return idx, nil
}

func (m *VM) location(frame *Frame, proto *heap.FunctionProto) errs.Location {
	line := 0
	for _, d := range proto.Debug {
		if d.Instruction <= frame.IP {
			line = d.Line
		}
	}
	return errs.Location{Function: proto.Name, Line: line}
}

func (m *VM) proto(h uint32) (*heap.FunctionProto, error) {
	p, ok := m.Heap.Functions.Get(h)
	if !ok {
		return nil, errs.New(errs.KindNotCallable, "prototype handle %d is not live", h)
	}
	return p, nil
}

// checkCall enforces base+max_slots < StackSize before pushing a new frame
// (spec §4.3 "Call frames").
func (m *VM) checkCall(base int, proto *heap.FunctionProto) error {
	if base+proto.MaxSlots >= StackSize {
		return errs.New(errs.KindStackOverflow, "call to %q would exceed the 65536-slot stack", proto.Name)
	}
	return nil
}

// MaybeCollect runs the garbage collector if the heap's allocator has
// requested one, at the current safe point (never inside a live borrow,
// per §4.2/§5). Called between top-level instruction dispatches.
func (m *VM) MaybeCollect(captureInProgress []value.Value) {
	if !m.Heap.CollectRequested() {
		return
	}
	m.Heap.Collect(heap.Roots{
		Stack:        m.Stack[:m.SP],
		Globals:      m.globalValues(),
		OpenUpvalues: m.openHandles(),
		LoadedProtos: append([]uint32(nil), m.Protos...),
		ProveCapture: captureInProgress,
	})
}

func (m *VM) globalValues() []value.Value {
	out := make([]value.Value, len(m.Globals))
	for i, g := range m.Globals {
		out[i] = g.Value
	}
	return out
}

func (m *VM) openHandles() []uint32 {
	var out []uint32
	for n := m.openUpvalues; n != nil; n = n.next {
		out = append(out, n.handle)
	}
	return out
}
