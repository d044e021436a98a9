// Package heap implements the virtual machine's typed arenas and tracing
// garbage collector (spec §4.2). Each heap variant (string, list, map,
// function prototype, closure, upvalue, iterator, field, proof) gets its
// own dense arena with O(1) free-slot reuse, tracked with a bitset the way
// go-corset's register/module packages track live register indices rather
// than a hand-rolled free map.
package heap

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Handle is a 32-bit arena index. Re-declared here (rather than imported
// from value) to keep heap free of a dependency on the VM's tagged-value
// encoding; the vm package is responsible for pairing Handles with a Tag.
type Handle = uint32

// arena is a dense, typed object pool with free-slot reuse.
type arena[T any] struct {
	slots []T
	live  *bitset.BitSet
	free  []Handle
	kind  string
}

func newArena[T any](kind string) *arena[T] {
	return &arena[T]{live: bitset.New(64), kind: kind}
}

// alloc reserves a slot and stores v in it, returning its handle.
// HeapOverflow is returned once 2^32-1 live objects of this kind exist.
func (a *arena[T]) alloc(v T) (Handle, error) {
	if len(a.free) > 0 {
		h := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		a.slots[h] = v
		a.live.Set(uint(h))
		return h, nil
	}
	if uint64(len(a.slots)) >= uint64(^Handle(0)) {
		return 0, &OverflowError{Kind: a.kind}
	}
	h := Handle(len(a.slots))
	a.slots = append(a.slots, v)
	a.live.Set(uint(h))
	return h, nil
}

// Get returns a pointer to the live value at h, or false if h is stale or
// out of range. Exported so callers outside this package (the VM, which
// pairs Handles with a value.Tag) can dereference a handle directly.
func (a *arena[T]) Get(h Handle) (*T, bool) {
	if int(h) >= len(a.slots) || !a.live.Test(uint(h)) {
		return nil, false
	}
	return &a.slots[h], true
}

// sweepKeep releases every slot whose handle is not in keep, returning the
// freed handles so the caller can deduct their byte charges.
func (a *arena[T]) sweepKeep(keep *bitset.BitSet) []Handle {
	var freed []Handle
	for i, ok := a.live.NextSet(0); ok; i, ok = a.live.NextSet(i + 1) {
		h := Handle(i)
		if !keep.Test(i) {
			var zero T
			a.slots[h] = zero
			a.live.Clear(i)
			a.free = append(a.free, h)
			freed = append(freed, h)
		}
	}
	return freed
}

func (a *arena[T]) liveCount() int { return int(a.live.Count()) }

// OverflowError is HeapOverflow from spec §7.
type OverflowError struct{ Kind string }

func (e *OverflowError) Error() string {
	return fmt.Sprintf("heap: arena %q exhausted its 32-bit handle space", e.Kind)
}
