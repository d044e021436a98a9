package heap

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/achronyme/achronyme/internal/achronyme/value"
)

const (
	baseObjectCost = 32 // per-allocation fixed overhead charged to bytesAllocated
	floorThreshold = 1 << 20
)

// Heap owns every typed arena plus the byte-accounted allocation threshold
// that drives collection timing (§4.2).
type Heap struct {
	Strings   arena[String]
	Lists     arena[List]
	Maps      arena[Map]
	Functions arena[FunctionProto]
	Closures  arena[Closure]
	Upvalues  arena[UpvalueLocation]
	Iterators arena[Iterator]
	Fields    arena[Field]
	Proofs    arena[Proof]

	bytesAllocated   uint64
	threshold        uint64
	collectRequested bool
	stress           bool // force a collection on every allocation; testing only

	charge map[chargeKey]uint64 // bytes charged per (kind, handle), deducted exactly on sweep
}

type kind uint8

const (
	kString kind = iota
	kList
	kMap
	kFunction
	kClosure
	kUpvalue
	kIterator
	kField
	kProof
)

type chargeKey struct {
	k kind
	h Handle
}

// New creates an empty heap with the floor collection threshold.
func New() *Heap {
	return &Heap{
		Strings:   *newArena[String]("string"),
		Lists:     *newArena[List]("list"),
		Maps:      *newArena[Map]("map"),
		Functions: *newArena[FunctionProto]("function"),
		Closures:  *newArena[Closure]("closure"),
		Upvalues:  *newArena[UpvalueLocation]("upvalue"),
		Iterators: *newArena[Iterator]("iterator"),
		Fields:    *newArena[Field]("field"),
		Proofs:    *newArena[Proof]("proof"),
		threshold: floorThreshold,
		charge:    make(map[chargeKey]uint64),
	}
}

// BytesAllocated returns the live byte count.
func (h *Heap) BytesAllocated() uint64 { return h.bytesAllocated }

// CollectRequested reports whether the allocator has asked the VM to
// collect at the next safe point.
func (h *Heap) CollectRequested() bool { return h.collectRequested }

// SetStressMode forces a collection on every subsequent allocation;
// testing only (§4.2).
func (h *Heap) SetStressMode(on bool) { h.stress = on }

func (h *Heap) enter(k kind, hnd Handle, bytes uint64) {
	h.bytesAllocated += bytes
	h.charge[chargeKey{k, hnd}] = bytes
	if h.stress || h.bytesAllocated >= h.threshold {
		h.collectRequested = true
	}
}

// AllocString charges baseObjectCost plus the buffer's byte capacity.
func (h *Heap) AllocString(s String) (Handle, error) {
	hnd, err := h.Strings.alloc(s)
	if err != nil {
		return 0, err
	}
	h.enter(kString, hnd, uint64(baseObjectCost+cap(s.Bytes)))
	return hnd, nil
}

// AllocList charges baseObjectCost; element storage for a list of heap
// values is accounted through the handles it, in turn, references.
func (h *Heap) AllocList(l List) (Handle, error) {
	hnd, err := h.Lists.alloc(l)
	if err != nil {
		return 0, err
	}
	h.enter(kList, hnd, baseObjectCost)
	return hnd, nil
}

// AllocMap charges baseObjectCost.
func (h *Heap) AllocMap(m Map) (Handle, error) {
	hnd, err := h.Maps.alloc(m)
	if err != nil {
		return 0, err
	}
	h.enter(kMap, hnd, baseObjectCost)
	return hnd, nil
}

// AllocFunction charges baseObjectCost plus the bytecode size.
func (h *Heap) AllocFunction(f FunctionProto) (Handle, error) {
	hnd, err := h.Functions.alloc(f)
	if err != nil {
		return 0, err
	}
	h.enter(kFunction, hnd, uint64(baseObjectCost+8*len(f.Code)))
	return hnd, nil
}

// AllocClosure charges baseObjectCost.
func (h *Heap) AllocClosure(c Closure) (Handle, error) {
	hnd, err := h.Closures.alloc(c)
	if err != nil {
		return 0, err
	}
	h.enter(kClosure, hnd, baseObjectCost)
	return hnd, nil
}

// AllocUpvalue charges baseObjectCost.
func (h *Heap) AllocUpvalue(u UpvalueLocation) (Handle, error) {
	hnd, err := h.Upvalues.alloc(u)
	if err != nil {
		return 0, err
	}
	h.enter(kUpvalue, hnd, baseObjectCost)
	return hnd, nil
}

// AllocIterator charges baseObjectCost plus the snapshot size.
func (h *Heap) AllocIterator(it Iterator) (Handle, error) {
	hnd, err := h.Iterators.alloc(it)
	if err != nil {
		return 0, err
	}
	h.enter(kIterator, hnd, uint64(baseObjectCost+8*len(it.Items)))
	return hnd, nil
}

// AllocField charges baseObjectCost.
func (h *Heap) AllocField(f Field) (Handle, error) {
	hnd, err := h.Fields.alloc(f)
	if err != nil {
		return 0, err
	}
	h.enter(kField, hnd, baseObjectCost)
	return hnd, nil
}

// AllocProof charges baseObjectCost plus all three JSON component capacities.
func (h *Heap) AllocProof(p Proof) (Handle, error) {
	hnd, err := h.Proofs.alloc(p)
	if err != nil {
		return 0, err
	}
	cost := baseObjectCost + len(p.ProofJSON) + len(p.PublicInputsJSON) + len(p.VerifyingKeyJSON)
	h.enter(kProof, hnd, uint64(cost))
	return hnd, nil
}

// Roots is the precise root set traced during collection (§4.2): the
// occupied VM stack up to its logical top, globals, open upvalues,
// constants referenced by loaded prototypes, and — during prove{}
// execution — the in-progress captured-variable map.
type Roots struct {
	Stack          []value.Value
	Globals        []value.Value
	OpenUpvalues   []Handle
	LoadedProtos   []Handle
	ProveCapture   []value.Value
}

// Collect performs mark-and-sweep over the precise root set, then grows
// the threshold per §4.2's hysteresis rule. It returns the number of bytes
// reclaimed.
func (h *Heap) Collect(r Roots) uint64 {
	before := h.bytesAllocated
	m := newMarker(h)
	for _, v := range r.Stack {
		m.markValue(v)
	}
	for _, v := range r.Globals {
		m.markValue(v)
	}
	for _, hnd := range r.OpenUpvalues {
		m.markUpvalue(hnd)
	}
	for _, hnd := range r.LoadedProtos {
		m.markFunction(hnd)
	}
	for _, v := range r.ProveCapture {
		m.markValue(v)
	}

	h.sweep(m)
	h.collectRequested = false

	grown := h.bytesAllocated * 2
	if g := uint64(float64(h.threshold) * 1.5); g > grown {
		grown = g
	}
	if floorThreshold > grown {
		grown = floorThreshold
	}
	h.threshold = grown

	if before > h.bytesAllocated {
		return before - h.bytesAllocated
	}
	return 0
}

func (h *Heap) sweep(m *marker) {
	for _, hnd := range h.Strings.sweepKeep(m.strings) {
		h.deduct(kString, hnd)
	}
	for _, hnd := range h.Lists.sweepKeep(m.lists) {
		h.deduct(kList, hnd)
	}
	for _, hnd := range h.Maps.sweepKeep(m.maps) {
		h.deduct(kMap, hnd)
	}
	for _, hnd := range h.Functions.sweepKeep(m.functions) {
		h.deduct(kFunction, hnd)
	}
	for _, hnd := range h.Closures.sweepKeep(m.closures) {
		h.deduct(kClosure, hnd)
	}
	for _, hnd := range h.Upvalues.sweepKeep(m.upvalues) {
		h.deduct(kUpvalue, hnd)
	}
	for _, hnd := range h.Iterators.sweepKeep(m.iterators) {
		h.deduct(kIterator, hnd)
	}
	for _, hnd := range h.Fields.sweepKeep(m.fields) {
		h.deduct(kField, hnd)
	}
	for _, hnd := range h.Proofs.sweepKeep(m.proofs) {
		h.deduct(kProof, hnd)
	}
}

func (h *Heap) deduct(k kind, hnd Handle) {
	key := chargeKey{k, hnd}
	h.bytesAllocated -= h.charge[key]
	delete(h.charge, key)
}

// marker accumulates the set of reachable handles per arena during tracing.
type marker struct {
	h         *Heap
	strings   *bitset.BitSet
	lists     *bitset.BitSet
	maps      *bitset.BitSet
	functions *bitset.BitSet
	closures  *bitset.BitSet
	upvalues  *bitset.BitSet
	iterators *bitset.BitSet
	fields    *bitset.BitSet
	proofs    *bitset.BitSet
}

func newMarker(h *Heap) *marker {
	return &marker{
		h:         h,
		strings:   bitset.New(64),
		lists:     bitset.New(64),
		maps:      bitset.New(64),
		functions: bitset.New(64),
		closures:  bitset.New(64),
		upvalues:  bitset.New(64),
		iterators: bitset.New(64),
		fields:    bitset.New(64),
		proofs:    bitset.New(64),
	}
}

func (m *marker) markValue(v value.Value) {
	if !v.IsHeapAllocated() {
		return
	}
	hnd := uint32(v.AsHandle())
	switch v.Tag() {
	case value.TagString:
		if m.strings.Test(uint(hnd)) {
			return
		}
		m.strings.Set(uint(hnd))
	case value.TagList:
		if m.lists.Test(uint(hnd)) {
			return
		}
		m.lists.Set(uint(hnd))
		if l, ok := m.h.Lists.Get(hnd); ok {
			for _, item := range l.Items {
				m.markValue(item)
			}
		}
	case value.TagMap:
		if m.maps.Test(uint(hnd)) {
			return
		}
		m.maps.Set(uint(hnd))
		if mp, ok := m.h.Maps.Get(hnd); ok {
			for _, item := range mp.Entries {
				m.markValue(item)
			}
		}
	case value.TagClosure:
		m.markClosure(hnd)
	case value.TagFunction:
		m.markFunction(hnd)
	case value.TagIterator:
		if m.iterators.Test(uint(hnd)) {
			return
		}
		m.iterators.Set(uint(hnd))
		if it, ok := m.h.Iterators.Get(hnd); ok {
			for _, item := range it.Items {
				m.markValue(item)
			}
		}
	case value.TagField:
		m.fields.Set(uint(hnd))
	case value.TagProof:
		m.proofs.Set(uint(hnd))
	}
}

func (m *marker) markClosure(hnd Handle) {
	if m.closures.Test(uint(hnd)) {
		return
	}
	m.closures.Set(uint(hnd))
	c, ok := m.h.Closures.Get(hnd)
	if !ok {
		return
	}
	for _, uv := range c.Upvalues {
		m.markUpvalue(uv)
	}
	if c.ProtoIndex >= 0 {
		m.markFunction(Handle(c.ProtoIndex))
	}
}

func (m *marker) markUpvalue(hnd Handle) {
	if m.upvalues.Test(uint(hnd)) {
		return
	}
	m.upvalues.Set(uint(hnd))
	uv, ok := m.h.Upvalues.Get(hnd)
	if !ok {
		return
	}
	if !uv.Open {
		m.markValue(uv.Closed)
	}
}

func (m *marker) markFunction(hnd Handle) {
	if m.functions.Test(uint(hnd)) {
		return
	}
	m.functions.Set(uint(hnd))
	fn, ok := m.h.Functions.Get(hnd)
	if !ok {
		return
	}
	for _, c := range fn.Constants {
		m.markValue(c)
	}
}
