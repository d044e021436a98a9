// Package witness serializes compiled constraint systems and their filled
// witnesses to the two binary formats spec §6.2 defines, matching the
// iden3 r1cs/wtns reference layout byte-for-byte so external Groth16
// provers can consume them directly.
package witness

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/achronyme/achronyme/internal/achronyme/backend/r1cs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
)

const (
	r1csMagic   = "r1cs"
	r1csVersion = uint32(1)
	wtnsMagic   = "wtns"
	wtnsVersion = uint32(2)

	sectionHeader      = uint32(1)
	sectionConstraints = uint32(2)
	sectionLabels      = uint32(3)
)

// primeLE returns the BN254 scalar modulus as canonical little-endian bytes,
// padded to field.ByteLen.
func primeLE() []byte {
	m := field.Modulus().Bytes() // big-endian
	out := make([]byte, field.ByteLen)
	for i, c := range m {
		out[len(m)-1-i] = c
	}
	return out
}

// wireRemap builds the old-wire→export-wire mapping from sys.ExportOrder
// (public inputs, then witnesses, then intermediates — spec §6.2, Open
// Question 2).
func wireRemap(sys *r1cs.System) map[r1cs.Wire]r1cs.Wire {
	order := sys.ExportOrder()
	remap := make(map[r1cs.Wire]r1cs.Wire, len(order))
	for newIdx, old := range order {
		remap[old] = r1cs.Wire(newIdx)
	}
	return remap
}

// ReorderWitness permutes a witness vector indexed by original wire into
// export order, matching the permutation WriteR1CS applies to constraints
// and labels.
func ReorderWitness(sys *r1cs.System, values []field.Element) []field.Element {
	order := sys.ExportOrder()
	out := make([]field.Element, len(order))
	for newIdx, old := range order {
		out[newIdx] = values[old]
	}
	return out
}

// WriteR1CS encodes sys as an iden3-compatible rank-one constraint file
// (spec §6.2). Constraint wires are written with their coefficients in
// canonical little-endian field encoding, remapped so public inputs
// precede witnesses regardless of source declaration order.
func WriteR1CS(w io.Writer, sys *r1cs.System) error {
	remap := wireRemap(sys)

	var buf bytes.Buffer
	buf.WriteString(r1csMagic)
	binary.Write(&buf, binary.LittleEndian, r1csVersion)
	binary.Write(&buf, binary.LittleEndian, uint32(3)) // 3 sections

	writeSection(&buf, sectionHeader, encodeR1CSHeader(sys))
	writeSection(&buf, sectionConstraints, encodeR1CSConstraints(sys, remap))
	writeSection(&buf, sectionLabels, encodeWireLabels(sys))

	_, err := w.Write(buf.Bytes())
	return err
}

func writeSection(buf *bytes.Buffer, typ uint32, payload []byte) {
	binary.Write(buf, binary.LittleEndian, typ)
	binary.Write(buf, binary.LittleEndian, uint64(len(payload)))
	buf.Write(payload)
}

func encodeR1CSHeader(sys *r1cs.System) []byte {
	var b bytes.Buffer
	prime := primeLE()
	binary.Write(&b, binary.LittleEndian, uint32(field.ByteLen))
	b.Write(prime)
	binary.Write(&b, binary.LittleEndian, uint32(sys.NumWires))
	binary.Write(&b, binary.LittleEndian, uint32(0)) // n_pub_out: always 0 (§6.2)
	binary.Write(&b, binary.LittleEndian, uint32(sys.NumPublic))
	binary.Write(&b, binary.LittleEndian, uint32(sys.NumWitness))
	binary.Write(&b, binary.LittleEndian, uint64(len(sys.WireLabels)))
	binary.Write(&b, binary.LittleEndian, uint32(len(sys.Constraints)))
	return b.Bytes()
}

func encodeR1CSConstraints(sys *r1cs.System, remap map[r1cs.Wire]r1cs.Wire) []byte {
	var b bytes.Buffer
	for _, c := range sys.Constraints {
		encodeLC(&b, c.A, remap)
		encodeLC(&b, c.B, remap)
		encodeLC(&b, c.C, remap)
	}
	return b.Bytes()
}

func encodeLC(b *bytes.Buffer, lc r1cs.LC, remap map[r1cs.Wire]r1cs.Wire) {
	binary.Write(b, binary.LittleEndian, uint32(len(lc)))
	for _, t := range lc {
		binary.Write(b, binary.LittleEndian, uint32(remap[t.Wire]))
		be := t.Coeff.Bytes()
		b.Write(be[:])
	}
}

// encodeWireLabels writes one label hash per wire in export order, so the
// label map lines up positionally with the reordered constraint and
// witness sections.
func encodeWireLabels(sys *r1cs.System) []byte {
	var b bytes.Buffer
	for _, old := range sys.ExportOrder() {
		label := sys.WireLabels[old]
		binary.Write(&b, binary.LittleEndian, uint64(labelHash(label)))
	}
	return b.Bytes()
}

// labelHash folds a wire's debug label into a stable 64-bit identifier;
// the label map exists purely for tooling/debugging, never for circuit
// semantics, so a collision-tolerant FNV-1a fold is sufficient here.
func labelHash(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// WriteWtns encodes a filled witness vector as an iden3-compatible wtns
// file (spec §6.2). values[0] must be the constant wire (value 1).
func WriteWtns(w io.Writer, values []field.Element) error {
	var buf bytes.Buffer
	buf.WriteString(wtnsMagic)
	binary.Write(&buf, binary.LittleEndian, wtnsVersion)

	prime := primeLE()
	binary.Write(&buf, binary.LittleEndian, uint32(field.ByteLen))
	buf.Write(prime)

	for _, v := range values {
		be := v.Bytes()
		buf.Write(be[:])
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadWtns decodes a wtns file back into a witness vector, validating the
// magic, version and field size match this build's field.
func ReadWtns(r io.Reader) ([]field.Element, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("witness: read magic: %w", err)
	}
	if string(magic[:]) != wtnsMagic {
		return nil, fmt.Errorf("witness: bad magic %q", magic)
	}
	var version, fieldSize uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("witness: read version: %w", err)
	}
	if version != wtnsVersion {
		return nil, fmt.Errorf("witness: unsupported version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &fieldSize); err != nil {
		return nil, fmt.Errorf("witness: read field size: %w", err)
	}
	if int(fieldSize) != field.ByteLen {
		return nil, fmt.Errorf("witness: field size %d does not match this build's %d", fieldSize, field.ByteLen)
	}
	prime := make([]byte, fieldSize)
	if _, err := io.ReadFull(r, prime); err != nil {
		return nil, fmt.Errorf("witness: read prime: %w", err)
	}

	var values []field.Element
	for {
		buf := make([]byte, fieldSize)
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("witness: read value: %w", err)
		}
		// field bytes are little-endian already; FromBytesLE expects that.
		v, err := fieldFromLE(buf)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func fieldFromLE(b []byte) (field.Element, error) {
	v, err := field.FromBytesLE(b)
	if err != nil {
		return field.Element{}, fmt.Errorf("witness: %w", err)
	}
	return v, nil
}
