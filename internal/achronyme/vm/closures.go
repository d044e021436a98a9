package vm

import "github.com/achronyme/achronyme/internal/achronyme/heap"

// captureUpvalue finds or creates the open upvalue for stackIndex, keeping
// the list ordered by stack index (descending from head) so insertion and
// close-until can stop early (spec §4.3).
func (m *VM) captureUpvalue(stackIndex int) (uint32, error) {
	var prev *openUpvalue
	cur := m.openUpvalues
	for cur != nil && cur.stackIndex > stackIndex {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.stackIndex == stackIndex {
		return cur.handle, nil
	}

	hnd, err := m.Heap.AllocUpvalue(heap.UpvalueLocation{Open: true, StackIndex: stackIndex})
	if err != nil {
		return 0, err
	}
	node := &openUpvalue{stackIndex: stackIndex, handle: hnd, next: cur}
	if prev == nil {
		m.openUpvalues = node
	} else {
		prev.next = node
	}
	return hnd, nil
}

// closeUpvalues closes every open upvalue at or above untilIndex by
// copying the current stack slot into the upvalue and removing it from
// the open list; integer comparison on stack indices suffices, no raw
// pointers are ever held (spec §4.3, §9).
func (m *VM) closeUpvalues(untilIndex int) error {
	for m.openUpvalues != nil && m.openUpvalues.stackIndex >= untilIndex {
		node := m.openUpvalues
		slot, ok := m.Heap.Upvalues.Get(node.handle)
		if !ok {
			m.openUpvalues = node.next
			continue
		}
		slot.Open = false
		slot.Closed = m.Stack[node.stackIndex]
		m.openUpvalues = node.next
	}
	return nil
}

func (m *VM) makeClosure(protoIndex int, sources []UpvalueSource, enclosing *heap.Closure) (heap.Closure, error) {
	upvalues := make([]uint32, len(sources))
	for i, src := range sources {
		if src.FromParentLocal {
			hnd, err := m.captureUpvalue(src.Index)
			if err != nil {
				return heap.Closure{}, err
			}
			upvalues[i] = hnd
		} else {
			upvalues[i] = enclosing.Upvalues[src.Index]
		}
	}
	return heap.Closure{ProtoIndex: protoIndex, Upvalues: upvalues}, nil
}
