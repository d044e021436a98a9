package field

import "testing"

// TestInverseLaw pins §8 invariant 1: for every nonzero x, x·x^-1 = 1.
func TestInverseLaw(t *testing.T) {
	for _, u := range []uint64{1, 2, 3, 42, 12345, 1 << 32} {
		x := FromUint64(u)
		inv, err := x.Inverse()
		if err != nil {
			t.Fatalf("Inverse(%d): %v", u, err)
		}
		if !x.Mul(inv).IsOne() {
			t.Fatalf("%d * %d^-1 != 1", u, u)
		}
	}
}

func TestInverseOfZeroFails(t *testing.T) {
	if _, err := Zero().Inverse(); err == nil {
		t.Fatal("expected an error inverting zero")
	}
}

// TestDistributivity pins §8 invariant 1's second clause: (x+y)*z = x*z + y*z.
func TestDistributivity(t *testing.T) {
	xs := []uint64{0, 1, 7, 99, 1 << 40}
	ys := []uint64{0, 2, 11, 1000, 1 << 50}
	zs := []uint64{1, 3, 5, 123456789}
	for _, xu := range xs {
		for _, yu := range ys {
			for _, zu := range zs {
				x, y, z := FromUint64(xu), FromUint64(yu), FromUint64(zu)
				lhs := x.Add(y).Mul(z)
				rhs := x.Mul(z).Add(y.Mul(z))
				if !lhs.Equal(rhs) {
					t.Fatalf("(%d+%d)*%d != %d*%d + %d*%d", xu, yu, zu, xu, zu, yu, zu)
				}
			}
		}
	}
}

// TestBytesRoundTrip checks the canonical little-endian encoding inverts.
func TestBytesRoundTrip(t *testing.T) {
	for _, u := range []uint64{0, 1, 255, 65536, 1 << 40} {
		x := FromUint64(u)
		b := x.Bytes()
		got, err := FromBytesLE(b[:])
		if err != nil {
			t.Fatalf("FromBytesLE: %v", err)
		}
		if !got.Equal(x) {
			t.Fatalf("round trip mismatch for %d", u)
		}
	}
}

// TestFromBytesLERejectsNonCanonical checks the modulus-or-above boundary
// a decoder must reject (FieldError::NotCanonical, spec §4.1).
func TestFromBytesLERejectsNonCanonical(t *testing.T) {
	be := Modulus().Bytes() // big-endian encoding of the modulus itself
	le := make([]byte, ByteLen)
	pad := ByteLen - len(be)
	for i, c := range be {
		le[ByteLen-1-pad-i] = c
	}
	if _, err := FromBytesLE(le); err == nil {
		t.Fatal("expected NotCanonical decoding the modulus itself")
	}
}

func TestDivIsMulByInverse(t *testing.T) {
	a := FromUint64(10)
	b := FromUint64(4)
	q, err := a.Div(b)
	if err != nil {
		t.Fatalf("Div: %v", err)
	}
	if !q.Mul(b).Equal(a) {
		t.Fatal("(a/b)*b != a")
	}
}
