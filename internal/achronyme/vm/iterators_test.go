package vm

import (
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// TestIteratorSnapshotIgnoresLaterMutation pins §8 invariant 2: for a
// snapshot iterator created at time t over list L, mutating L afterward
// must not change what the iterator yields.
func TestIteratorSnapshotIgnoresLaterMutation(t *testing.T) {
	m := New()

	one, _ := value.NewInt(1)
	two, _ := value.NewInt(2)
	three, _ := value.NewInt(3)

	listHandle, err := m.Heap.AllocList(heap.List{Items: []value.Value{one, two}})
	if err != nil {
		t.Fatalf("AllocList: %v", err)
	}
	listVal := value.FromHandle(value.TagList, value.Handle(listHandle))

	iter, err := m.getIter(listVal)
	if err != nil {
		t.Fatalf("getIter: %v", err)
	}

	// Mutate the source list after the snapshot was taken.
	l, ok := m.Heap.Lists.Get(listHandle)
	if !ok {
		t.Fatal("stale list handle")
	}
	l.Items = append(l.Items, three)
	l.Items[0] = three

	var got []int64
	for {
		elem, exhausted, err := m.forIter(iter)
		if err != nil {
			t.Fatalf("forIter: %v", err)
		}
		if exhausted {
			break
		}
		got = append(got, elem.AsInt())
	}

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("iterator yielded %v after mutation, want snapshot [1 2]", got)
	}
}

// TestIteratorOverMapSnapshotsKeysSorted exercises the map variant of
// get_iter: keys are snapshotted in sorted order, independent of the
// underlying map's iteration order.
func TestIteratorOverMapSnapshotsKeysSorted(t *testing.T) {
	m := New()

	one, _ := value.NewInt(1)
	mapHandle, err := m.Heap.AllocMap(heap.Map{Entries: map[string]value.Value{
		"zeta": one, "alpha": one, "mid": one,
	}})
	if err != nil {
		t.Fatalf("AllocMap: %v", err)
	}
	mapVal := value.FromHandle(value.TagMap, value.Handle(mapHandle))

	iter, err := m.getIter(mapVal)
	if err != nil {
		t.Fatalf("getIter: %v", err)
	}

	var keys []string
	for {
		elem, exhausted, err := m.forIter(iter)
		if err != nil {
			t.Fatalf("forIter: %v", err)
		}
		if exhausted {
			break
		}
		s, ok := m.Heap.Strings.Get(elem.AsHandle())
		if !ok {
			t.Fatal("stale string handle in iterator output")
		}
		keys = append(keys, string(s.Bytes))
	}

	want := []string{"alpha", "mid", "zeta"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}
