package heap

import (
	"testing"

	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// TestBytesAllocatedMatchesLiveCharges pins §8 invariant 3: after a
// collection, bytes_allocated equals the sum of live-object charges, and
// no live tagged value references a swept slot.
func TestBytesAllocatedMatchesLiveCharges(t *testing.T) {
	h := New()

	one, err := value.NewInt(1)
	if err != nil {
		t.Fatalf("NewInt: %v", err)
	}
	two, err := value.NewInt(2)
	if err != nil {
		t.Fatalf("NewInt: %v", err)
	}
	rootHandle, err := h.AllocList(List{Items: []value.Value{one}})
	if err != nil {
		t.Fatalf("AllocList: %v", err)
	}
	garbageHandle, err := h.AllocList(List{Items: []value.Value{two}})
	if err != nil {
		t.Fatalf("AllocList: %v", err)
	}

	root := value.FromHandle(value.TagList, value.Handle(rootHandle))
	h.Collect(Roots{Stack: []value.Value{root}})

	var wantCharge uint64
	for k, v := range h.charge {
		if k.k != kList {
			continue
		}
		wantCharge += v
	}
	if h.bytesAllocated != wantCharge {
		t.Fatalf("bytesAllocated=%d, want sum of live charges=%d", h.bytesAllocated, wantCharge)
	}

	if _, ok := h.Lists.Get(rootHandle); !ok {
		t.Fatal("root list was swept despite being reachable from the stack")
	}
	if _, ok := h.Lists.Get(garbageHandle); ok {
		t.Fatal("unreachable list survived collection")
	}
}

// TestCollectReclaimsTransitively checks that an object kept alive only
// through a reachable list's elements is not swept, and that once the
// list is dropped from the root set the chain is fully reclaimed.
func TestCollectReclaimsTransitively(t *testing.T) {
	h := New()

	strHandle, err := h.AllocString(String{Bytes: []byte("hello")})
	if err != nil {
		t.Fatalf("AllocString: %v", err)
	}
	strVal := value.FromHandle(value.TagString, value.Handle(strHandle))

	listHandle, err := h.AllocList(List{Items: []value.Value{strVal}})
	if err != nil {
		t.Fatalf("AllocList: %v", err)
	}
	listVal := value.FromHandle(value.TagList, value.Handle(listHandle))

	h.Collect(Roots{Stack: []value.Value{listVal}})
	if _, ok := h.Strings.Get(strHandle); !ok {
		t.Fatal("string reachable only via a live list's elements was swept")
	}

	h.Collect(Roots{}) // nothing rooted now
	if _, ok := h.Lists.Get(listHandle); ok {
		t.Fatal("list survived collection with an empty root set")
	}
	if _, ok := h.Strings.Get(strHandle); ok {
		t.Fatal("string survived once its only referencing list was swept")
	}
}

// TestProofEqualIsStructural pins §8 invariant 8: two proof objects compare
// equal exactly when their three JSON fields match, regardless of identity.
func TestProofEqualIsStructural(t *testing.T) {
	a := &Proof{ProofJSON: `{"pi_a":[1,2]}`, PublicInputsJSON: `["3"]`, VerifyingKeyJSON: `{"vk":1}`}
	b := &Proof{ProofJSON: `{"pi_a":[1,2]}`, PublicInputsJSON: `["3"]`, VerifyingKeyJSON: `{"vk":1}`}
	if !a.Equal(b) {
		t.Fatal("proofs with identical fields compared unequal")
	}

	c := &Proof{ProofJSON: `{"pi_a":[1,2]}`, PublicInputsJSON: `["4"]`, VerifyingKeyJSON: `{"vk":1}`}
	if a.Equal(c) {
		t.Fatal("proofs with differing public inputs compared equal")
	}
}

// TestStressModeCollectsEveryAllocation exercises Config.StressGC's
// underlying hook: with stress mode on, every allocation requests a
// collection.
func TestStressModeCollectsEveryAllocation(t *testing.T) {
	h := New()
	h.SetStressMode(true)
	if _, err := h.AllocString(String{Bytes: []byte("x")}); err != nil {
		t.Fatalf("AllocString: %v", err)
	}
	if !h.CollectRequested() {
		t.Fatal("stress mode did not request a collection on allocation")
	}
}
