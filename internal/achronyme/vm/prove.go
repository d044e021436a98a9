package vm

import (
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// execProve handles OpProve (spec §4.9): it gathers the live register
// values the prototype recorded as this prove block's captures, hands the
// block off to the installed Prover, and writes the resulting proof object
// (or, in verified-only mode, nil — step 5) into the destination register.
func (m *VM) execProve(frame *Frame, proto *heap.FunctionProto, in Instr) error {
	loc := m.location(frame, proto)
	if m.Prover == nil {
		return errs.NewAt(errs.KindProveHandlerUnavailable, loc, "prove block encountered with no proof handler installed")
	}
	if in.Arg < 0 || in.Arg >= len(proto.ProveBlocks) {
		return errs.NewAt(errs.KindIndexOutOfRange, loc, "prove block index %d out of range", in.Arg)
	}
	block := proto.ProveBlocks[in.Arg]

	capture := make(map[string]value.Value, len(block.CaptureNames))
	for i, name := range block.CaptureNames {
		if i >= len(block.CaptureRegs) {
			return errs.NewAt(errs.KindIndexOutOfRange, loc, "prove block: capture %q has no register mapping", name)
		}
		idx, err := m.reg(frame, proto, block.CaptureRegs[i])
		if err != nil {
			return err
		}
		capture[name] = m.Stack[idx]
	}

	m.MaybeCollect(valuesOf(capture))

	proof, verifiedOnly, err := m.Prover.Execute(m.Heap, block.Public, block.Witness, block.Body, capture)
	if err != nil {
		return errs.NewAt(errs.KindProveBlockFailed, loc, "prove block failed: %v", err)
	}

	di, err := m.reg(frame, proto, in.A)
	if err != nil {
		return err
	}
	if verifiedOnly {
		m.Stack[di] = value.Nil()
		return nil
	}
	hnd, err := m.Heap.AllocProof(*proof)
	if err != nil {
		return err
	}
	m.Stack[di] = value.FromHandle(value.TagProof, value.Handle(hnd))
	return nil
}

func valuesOf(capture map[string]value.Value) []value.Value {
	out := make([]value.Value, 0, len(capture))
	for _, v := range capture {
		out = append(out, v)
	}
	return out
}
