package compile

import (
	"github.com/achronyme/achronyme/internal/achronyme/bytecode"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// Proto is one compiled prototype, heap-instance-agnostic until Load
// materializes its constant pool.
type Proto struct {
	Name        string
	Code        []bytecode.Instr
	Constants   []Const
	Debug       []heap.DebugSymbol
	Arity       int
	MaxSlots    int
	UpvalueCnt  int
	ProveBlocks []heap.ProveBlock
}

// Program is the compiler's output: every prototype reachable from Entry,
// indexed the way OpMakeClosure's Arg (and vm.VM.Protos) expects.
type Program struct {
	Protos []Proto
	Entry  int
}

// Load materializes every prototype's constant pool against h and
// allocates each as a heap.FunctionProto, returning their handles in the
// same order as p.Protos — the slice to install as vm.VM.Protos.
func (p *Program) Load(h *heap.Heap) ([]uint32, error) {
	handles := make([]uint32, len(p.Protos))
	for i, proto := range p.Protos {
		consts := make([]value.Value, len(proto.Constants))
		for j, c := range proto.Constants {
			v, err := c.materialize(h)
			if err != nil {
				return nil, err
			}
			consts[j] = v
		}
		hnd, err := h.AllocFunction(heap.FunctionProto{
			Name:        proto.Name,
			Code:        proto.Code,
			Constants:   consts,
			Debug:       proto.Debug,
			Arity:       proto.Arity,
			MaxSlots:    proto.MaxSlots,
			UpvalueCnt:  proto.UpvalueCnt,
			ProveBlocks: proto.ProveBlocks,
		})
		if err != nil {
			return nil, err
		}
		handles[i] = hnd
	}
	return handles, nil
}

// LoadEntry loads every prototype, then allocates the top-level entry
// point as a zero-upvalue closure ready to vm.VM.Call.
func (p *Program) LoadEntry(h *heap.Heap) (protoHandles []uint32, entry uint32, err error) {
	protoHandles, err = p.Load(h)
	if err != nil {
		return nil, 0, err
	}
	hnd, err := h.AllocClosure(heap.Closure{ProtoIndex: p.Entry})
	if err != nil {
		return nil, 0, err
	}
	return protoHandles, hnd, nil
}
