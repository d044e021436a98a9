package vm

import (
	"sort"

	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// getIter creates an iterator by snapshotting the referenced list (or its
// keys, for a map) into a new heap object, so that mutation of the source
// after snapshot time never changes what the iterator yields (spec §3,
// §8 invariant 2).
func (m *VM) getIter(v value.Value) (value.Value, error) {
	switch v.Tag() {
	case value.TagList:
		l, ok := m.Heap.Lists.Get(uint32(v.AsHandle()))
		if !ok {
			return 0, errs.New(errs.KindTypeMismatch, "get_iter: stale list handle")
		}
		items := append([]value.Value(nil), l.Items...)
		hnd, err := m.Heap.AllocIterator(heap.Iterator{Items: items})
		if err != nil {
			return 0, err
		}
		return value.FromHandle(value.TagIterator, value.Handle(hnd)), nil
	case value.TagMap:
		mp, ok := m.Heap.Maps.Get(uint32(v.AsHandle()))
		if !ok {
			return 0, errs.New(errs.KindTypeMismatch, "get_iter: stale map handle")
		}
		keys := make([]string, 0, len(mp.Entries))
		for k := range mp.Entries {
			keys = append(keys, k)
		}
		sort.Strings(keys) // deterministic order over an unordered map
		items := make([]value.Value, len(keys))
		for i, k := range keys {
			sh, err := m.Heap.AllocString(heap.String{Bytes: []byte(k)})
			if err != nil {
				return 0, err
			}
			items[i] = value.FromHandle(value.TagString, value.Handle(sh))
		}
		hnd, err := m.Heap.AllocIterator(heap.Iterator{Items: items})
		if err != nil {
			return 0, err
		}
		return value.FromHandle(value.TagIterator, value.Handle(hnd)), nil
	default:
		return 0, errs.New(errs.KindTypeMismatch, "get_iter: expected list or map, got %s", v.TypeName())
	}
}

// forIter advances an iterator's cursor, returning the next element and
// true, or an exhausted flag once the snapshot is consumed.
func (m *VM) forIter(v value.Value) (elem value.Value, exhausted bool, err error) {
	if v.Tag() != value.TagIterator {
		return 0, false, errs.New(errs.KindTypeMismatch, "for_iter: expected iterator, got %s", v.TypeName())
	}
	it, ok := m.Heap.Iterators.Get(uint32(v.AsHandle()))
	if !ok {
		return 0, false, errs.New(errs.KindTypeMismatch, "for_iter: stale iterator handle")
	}
	if it.Cursor >= len(it.Items) {
		return 0, true, nil
	}
	elem = it.Items[it.Cursor]
	it.Cursor++
	return elem, false, nil
}
