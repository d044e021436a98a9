// Package field implements scalar arithmetic over the BN254 scalar field.
//
// Values are stored in Montgomery form via gnark-crypto's fr.Element, the
// same representation the rest of the retrieved ecosystem (go-corset,
// HamzaZF-PPEM, ExpanderCompilerCollection) uses for this exact curve.
// We do not reimplement Montgomery CIOS multiplication by hand; fr.Element
// already is that implementation, and the point of reaching for it is to
// avoid a second, divergent one.
package field

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Element is an immutable BN254 scalar field element.
type Element struct {
	v fr.Element
}

// ByteLen is the canonical little-endian encoding length in bytes.
const ByteLen = fr.Bytes

// Modulus returns p, the BN254 scalar field modulus.
func Modulus() *big.Int {
	return fr.Modulus()
}

// Zero is the additive identity.
func Zero() Element { return Element{} }

// One is the multiplicative identity.
func One() Element {
	var e Element
	e.v.SetOne()
	return e
}

// FromUint64 builds an element from a small unsigned integer.
func FromUint64(u uint64) Element {
	var e Element
	e.v.SetUint64(u)
	return e
}

// FromInt64 builds an element from a signed integer, wrapping negative
// values into the field.
func FromInt64(i int64) Element {
	var e Element
	var b big.Int
	b.SetInt64(i)
	e.v.SetBigInt(&b)
	return e
}

// FromDecimal parses an arbitrary-length base-10 string.
func FromDecimal(s string) (Element, error) {
	var e Element
	if _, err := e.v.SetString(s); err != nil {
		return Element{}, fmt.Errorf("field: %q is not a valid decimal literal", s)
	}
	return e, nil
}

// FromHex parses a hexadecimal string, with or without a leading "0x".
func FromHex(s string) (Element, error) {
	b, ok := new(big.Int).SetString(trimHexPrefix(s), 16)
	if !ok {
		return Element{}, fmt.Errorf("field: %q is not a valid hex literal", s)
	}
	return FromBigIntReduced(b), nil
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}

// FromBigIntReduced builds an element from a big.Int, reducing it modulo p.
// Used by callers that have already validated canonicality elsewhere (the
// VM's field() native promotes arbitrary integers this way).
func FromBigIntReduced(b *big.Int) Element {
	var e Element
	e.v.SetBigInt(b)
	return e
}

// FromBytesLE decodes a little-endian byte array into an element. It fails
// with a NotCanonical error if the encoded value is not strictly less than
// the field modulus, per the field layer's §4.1 invariant.
func FromBytesLE(b []byte) (Element, error) {
	if len(b) != ByteLen {
		return Element{}, &NotCanonicalError{Reason: fmt.Sprintf("expected %d bytes, got %d", ByteLen, len(b))}
	}
	be := make([]byte, ByteLen)
	for i, c := range b {
		be[ByteLen-1-i] = c
	}
	asInt := new(big.Int).SetBytes(be)
	if asInt.Cmp(Modulus()) >= 0 {
		return Element{}, &NotCanonicalError{Reason: "value is not less than the field modulus"}
	}
	var e Element
	e.v.SetBigInt(asInt)
	return e, nil
}

// NotCanonicalError is FieldError::NotCanonical from spec §4.1.
type NotCanonicalError struct{ Reason string }

func (e *NotCanonicalError) Error() string { return "field: not canonical: " + e.Reason }

// Add returns e + o.
func (e Element) Add(o Element) Element {
	var r Element
	r.v.Add(&e.v, &o.v)
	return r
}

// Sub returns e - o.
func (e Element) Sub(o Element) Element {
	var r Element
	r.v.Sub(&e.v, &o.v)
	return r
}

// Neg returns -e.
func (e Element) Neg() Element {
	var r Element
	r.v.Neg(&e.v)
	return r
}

// Mul returns e * o, using Montgomery (CIOS) multiplication.
func (e Element) Mul(o Element) Element {
	var r Element
	r.v.Mul(&e.v, &o.v)
	return r
}

// Square returns e * e.
func (e Element) Square() Element {
	var r Element
	r.v.Square(&e.v)
	return r
}

// Inverse computes e^-1 via exponentiation by p-2 (square-and-multiply),
// per §4.1: deliberately slower than an extended-GCD inverse, in exchange
// for a computation whose control flow does not branch on e's value.
// Callers needing an actual constant-time guarantee still must not branch
// on whether e is zero before calling this.
func (e Element) Inverse() (Element, error) {
	if e.v.IsZero() {
		return Element{}, fmt.Errorf("field: cannot invert zero")
	}
	exp := new(big.Int).Sub(Modulus(), big.NewInt(2))
	var r Element
	r.v.Exp(e.v, exp)
	return r, nil
}

// Div returns e / o.
func (e Element) Div(o Element) (Element, error) {
	inv, err := o.Inverse()
	if err != nil {
		return Element{}, fmt.Errorf("field: division failed: %w", err)
	}
	return e.Mul(inv), nil
}

// Equal is exact limb comparison.
func (e Element) Equal(o Element) bool { return e.v.Equal(&o.v) }

// IsZero reports whether e is the additive identity.
func (e Element) IsZero() bool { return e.v.IsZero() }

// IsOne reports whether e is the multiplicative identity.
func (e Element) IsOne() bool { return e.v.IsOne() }

// Cmp returns -1, 0 or 1 comparing the canonical (non-Montgomery) integer
// values of e and o. Used by the optimizer's constant folding for IsLt/IsLe
// so that folds happen on canonical order rather than Montgomery limb order.
func (e Element) Cmp(o Element) int {
	var be, bo big.Int
	e.v.BigInt(&be)
	o.v.BigInt(&bo)
	return be.Cmp(&bo)
}

// Bytes returns the canonical little-endian encoding.
func (e Element) Bytes() [ByteLen]byte {
	be := e.v.Bytes()
	var le [ByteLen]byte
	for i, c := range be {
		le[ByteLen-1-i] = c
	}
	return le
}

// BigInt returns the canonical (non-Montgomery) integer value.
func (e Element) BigInt() *big.Int {
	var b big.Int
	e.v.BigInt(&b)
	return &b
}

// Bit returns bit i (0-indexed, least significant first) of the canonical
// representation. Guaranteed defined for i < 256 per §4.8.
func (e Element) Bit(i int) uint {
	return uint(e.BigInt().Bit(i))
}

// String renders the canonical decimal value.
func (e Element) String() string { return e.v.String() }
