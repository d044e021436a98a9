// Package poseidon implements the Poseidon permutation over the BN254
// scalar field (state width 3, 8 full rounds, 57 partial rounds), shared by
// the `poseidon`/`poseidon_many` native functions (spec §4.3) and both
// constraint backends' PoseidonHash gadget (spec §4.6, §4.7).
package poseidon

import (
	"math/big"

	"github.com/achronyme/achronyme/internal/achronyme/field"
)

const (
	width         = 3
	fullRounds    = 8
	partialRounds = 57
	rate          = width - 1
	fieldBits     = 254 // bit length of the BN254 scalar field modulus
)

// Params holds the permutation's round constants and MDS matrix, generated
// once at package init time and shared by every call.
type Params struct {
	RoundConstants []field.Element // width * (fullRounds+partialRounds)
	MDS            [width][width]field.Element
}

var defaultParams = generateParams()

// Default returns the shared BN254 Poseidon parameter set.
func Default() *Params { return defaultParams }

// grainLFSR is the Grain self-shrinking generator the Poseidon paper
// (Grassi et al.) specifies for deriving round constants and MDS
// matrices from nothing but a field/width/round-count tuple, so any two
// implementations targeting the same parameters derive identical
// constants without shipping a table — the same construction the
// iden3/circomlibjs reference parameter generator runs.
type grainLFSR struct {
	state [80]uint8
}

func newGrainLFSR(n, t, fullR, partialR int) *grainLFSR {
	bits := make([]uint8, 0, 80)
	bits = append(bits, 1)       // field identifier: prime field
	bits = append(bits, 0, 0, 0) // S-box identifier: x^alpha (non-inverse)
	bits = append(bits, toBits(n, 12)...)
	bits = append(bits, toBits(t, 12)...)
	bits = append(bits, toBits(fullR, 10)...)
	bits = append(bits, toBits(partialR, 10)...)
	for len(bits) < 80 {
		bits = append(bits, 1)
	}

	g := &grainLFSR{}
	copy(g.state[:], bits[:80])
	for i := 0; i < 160; i++ {
		g.next()
	}
	return g
}

func toBits(v, width int) []uint8 {
	out := make([]uint8, width)
	for i := 0; i < width; i++ {
		out[width-1-i] = uint8((v >> uint(i)) & 1)
	}
	return out
}

// next advances the 80-bit LFSR by one step, using the reference
// generator's tap positions, and returns the bit shifted out.
func (g *grainLFSR) next() uint8 {
	newBit := g.state[62] ^ g.state[51] ^ g.state[38] ^ g.state[23] ^ g.state[13] ^ g.state[0]
	out := g.state[0]
	copy(g.state[:79], g.state[1:])
	g.state[79] = newBit
	return out
}

// bit implements the self-shrinking extraction: two LFSR bits are
// consumed per output bit, and the pair is discarded unless the first
// of the two is 1.
func (g *grainLFSR) bit() uint8 {
	for {
		b1 := g.next()
		b2 := g.next()
		if b1 == 1 {
			return b2
		}
	}
}

// element draws an n-bit big-endian field element from the generator,
// rejecting (and redrawing) any draw landing outside the field.
func (g *grainLFSR) element(n int, modulus *big.Int) *big.Int {
	for {
		v := new(big.Int)
		for i := 0; i < n; i++ {
			v.Lsh(v, 1)
			if g.bit() == 1 {
				v.SetBit(v, 0, 1)
			}
		}
		if v.Cmp(modulus) < 0 {
			return v
		}
	}
}

func generateParams() *Params {
	total := fullRounds + partialRounds
	modulus := field.Modulus()
	g := newGrainLFSR(fieldBits, width, fullRounds, partialRounds)

	rcs := make([]field.Element, width*total)
	for i := range rcs {
		rcs[i] = field.FromBigIntReduced(g.element(fieldBits, modulus))
	}

	return &Params{RoundConstants: rcs, MDS: cauchyMDS(g, modulus)}
}

// cauchyMDS draws 2*width distinct field elements from g and builds the
// Cauchy matrix M[i][j] = 1/(x_i + y_j): MDS whenever every x_i+y_j is
// nonzero and the draws are pairwise distinct, the construction the
// Poseidon reference generator uses for its mixing layer.
func cauchyMDS(g *grainLFSR, modulus *big.Int) [width][width]field.Element {
	seen := make(map[string]bool, 2*width)
	draw := func() *big.Int {
		for {
			v := g.element(fieldBits, modulus)
			key := v.String()
			if !seen[key] {
				seen[key] = true
				return v
			}
		}
	}

	xs := make([]*big.Int, width)
	ys := make([]*big.Int, width)
	for i := range xs {
		xs[i] = draw()
	}
	for i := range ys {
		ys[i] = draw()
	}

	var mds [width][width]field.Element
	for i := 0; i < width; i++ {
		for j := 0; j < width; j++ {
			sum := new(big.Int).Add(xs[i], ys[j])
			sum.Mod(sum, modulus)
			inv := new(big.Int).ModInverse(sum, modulus)
			if inv == nil {
				panic("poseidon: degenerate Cauchy MDS draw")
			}
			mds[i][j] = field.FromBigIntReduced(inv)
		}
	}
	return mds
}

func sbox(x field.Element) field.Element {
	x2 := x.Square()
	x4 := x2.Square()
	return x4.Mul(x)
}

func mdsMul(state [width]field.Element, mds *[width][width]field.Element) [width]field.Element {
	var out [width]field.Element
	for i := 0; i < width; i++ {
		acc := field.Zero()
		for j := 0; j < width; j++ {
			acc = acc.Add(mds[i][j].Mul(state[j]))
		}
		out[i] = acc
	}
	return out
}

// Permute runs the full Poseidon permutation over a width-3 state in place.
func Permute(p *Params, state [width]field.Element) [width]field.Element {
	rcIdx := 0
	half := fullRounds / 2

	applyFull := func() {
		for i := 0; i < width; i++ {
			state[i] = state[i].Add(p.RoundConstants[rcIdx])
			rcIdx++
		}
		for i := 0; i < width; i++ {
			state[i] = sbox(state[i])
		}
		state = mdsMul(state, &p.MDS)
	}
	applyPartial := func() {
		for i := 0; i < width; i++ {
			state[i] = state[i].Add(p.RoundConstants[rcIdx])
			rcIdx++
		}
		state[0] = sbox(state[0])
		state = mdsMul(state, &p.MDS)
	}

	for r := 0; r < half; r++ {
		applyFull()
	}
	for r := 0; r < partialRounds; r++ {
		applyPartial()
	}
	for r := 0; r < half; r++ {
		applyFull()
	}
	return state
}

// Hash absorbs inputs (rate 2, capacity 1) and squeezes a single output
// element, matching the `poseidon` native's single-output contract.
func Hash(inputs []field.Element) field.Element {
	return HashMany(inputs, 1)[0]
}

// HashMany absorbs inputs and squeezes count output elements, backing the
// `poseidon_many` native.
func HashMany(inputs []field.Element, count int) []field.Element {
	p := Default()
	var state [width]field.Element
	for i := range state {
		state[i] = field.Zero()
	}

	if len(inputs) == 0 {
		state = Permute(p, state)
	}
	for i := 0; i < len(inputs); i += rate {
		for j := 0; j < rate && i+j < len(inputs); j++ {
			state[j+1] = state[j+1].Add(inputs[i+j])
		}
		state = Permute(p, state)
	}

	out := make([]field.Element, 0, count)
	for len(out) < count {
		for j := 1; j <= rate && len(out) < count; j++ {
			out = append(out, state[j])
		}
		if len(out) < count {
			state = Permute(p, state)
		}
	}
	return out
}
