package gnarkhandler

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/ir"
	"github.com/achronyme/achronyme/internal/achronyme/proofhandler"
)

var curve = ecc.BN254

// Handler drives real Groth16 setup/prove/verify via gnark, replaying the
// lowered SSA program through frontend.API (see circuit.go) rather than
// consuming our own R1CS backend's System/Trace, so gnark's own compiler
// is solely responsible for the constraint system's soundness.
//
// Setup artifacts are expensive (proportional to circuit size) and
// deterministic for a fixed program shape, so they are cached on disk
// under CacheDir, keyed by a hash of the program's instruction stream and
// input declarations (spec §6.1: proving/verifying keys may be cached
// keyed by a hash of the compiled circuit).
type Handler struct {
	CacheDir string

	mu    sync.Mutex
	ready map[string]*setupArtifacts
}

type setupArtifacts struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// New returns a Handler that caches setup artifacts under dir (created on
// first use if absent). An empty dir disables the disk cache.
func New(dir string) *Handler {
	return &Handler{CacheDir: dir, ready: make(map[string]*setupArtifacts)}
}

// circuitKey hashes a program's instruction stream plus its input
// declarations, so the same circuit shape always reuses the same setup
// artifacts and a changed program always triggers a fresh setup. Uses
// sha3 (golang.org/x/crypto) rather than the standard library's sha256,
// matching the rest of the toolchain's reach for x/crypto primitives.
func circuitKey(prog *ir.Program, public, witness []string) string {
	h := sha3.New256()
	for _, in := range prog.Instrs {
		binary.Write(h, binary.LittleEndian, uint8(in.Op))
		for _, a := range in.Args {
			binary.Write(h, binary.LittleEndian, uint32(a))
		}
		io.WriteString(h, in.Name)
		b := in.Const.Bytes()
		h.Write(b[:])
		binary.Write(h, binary.LittleEndian, uint32(in.Bits))
	}
	for _, n := range public {
		io.WriteString(h, "pub:"+n)
	}
	for _, n := range witness {
		io.WriteString(h, "wit:"+n)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func newCircuit(prog *ir.Program, public, witness []string) *circuit {
	return &circuit{
		Public:      make([]frontend.Variable, len(public)),
		Witness:     make([]frontend.Variable, len(witness)),
		prog:        prog,
		publicName:  public,
		witnessName: witness,
	}
}

func (h *Handler) setupFor(key string, prog *ir.Program, public, witness []string) (*setupArtifacts, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sa, ok := h.ready[key]; ok {
		return sa, nil
	}

	ccs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, newCircuit(prog, public, witness))
	if err != nil {
		return nil, errs.Wrap(errs.KindProveBlockFailed, err, "gnark circuit compilation failed")
	}

	if pk, vk, err := h.loadKeysFromDisk(key); err == nil {
		sa := &setupArtifacts{ccs: ccs, pk: pk, vk: vk}
		h.ready[key] = sa
		return sa, nil
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, errs.Wrap(errs.KindProveBlockFailed, err, "groth16 setup failed")
	}
	sa := &setupArtifacts{ccs: ccs, pk: pk, vk: vk}
	h.ready[key] = sa
	h.saveKeysToDisk(key, sa)
	return sa, nil
}

// Prove compiles (or reuses a cached compilation of) req.Prog, runs Groth16
// setup if needed, proves the supplied witness, and self-verifies before
// returning — a proof the handler itself cannot verify is treated as a
// failed prove block, not a successful one (spec §4.9).
func (h *Handler) Prove(req proofhandler.Request) (*proofhandler.Result, error) {
	key := circuitKey(req.Prog, req.Public, req.Witness)
	sa, err := h.setupFor(key, req.Prog, req.Public, req.Witness)
	if err != nil {
		return nil, err
	}

	assign := newCircuit(req.Prog, req.Public, req.Witness)
	for i, n := range req.Public {
		v, ok := req.Inputs[n]
		if !ok {
			return nil, errs.New(errs.KindUndefinedVariable, "missing public input %q", n)
		}
		assign.Public[i] = v.BigInt()
	}
	for i, n := range req.Witness {
		v, ok := req.Inputs[n]
		if !ok {
			return nil, errs.New(errs.KindUndefinedVariable, "missing witness input %q", n)
		}
		assign.Witness[i] = v.BigInt()
	}

	w, err := frontend.NewWitness(assign, curve.ScalarField())
	if err != nil {
		return nil, errs.Wrap(errs.KindProveBlockFailed, err, "witness assignment failed")
	}
	proof, err := groth16.Prove(sa.ccs, sa.pk, w)
	if err != nil {
		return nil, errs.Wrap(errs.KindProveBlockFailed, err, "groth16 proving failed")
	}
	publicWitness, err := w.Public()
	if err != nil {
		return nil, errs.Wrap(errs.KindProveBlockFailed, err, "public witness extraction failed")
	}
	if err := groth16.Verify(proof, sa.vk, publicWitness); err != nil {
		return nil, errs.Wrap(errs.KindProveBlockFailed, err, "self-verification failed")
	}

	proofJSON, err := encodeBinary(proof)
	if err != nil {
		return nil, err
	}
	vkJSON, err := encodeBinary(sa.vk)
	if err != nil {
		return nil, err
	}
	pubJSON, err := encodeBinary(publicWitness)
	if err != nil {
		return nil, err
	}
	return &proofhandler.Result{
		ProofJSON:        proofJSON,
		PublicInputsJSON: pubJSON,
		VerifyingKeyJSON: vkJSON,
	}, nil
}

// Verify decodes p's three components and re-runs groth16.Verify, so a
// Proof object can be validated again later without any prior state.
func (h *Handler) Verify(p *heap.Proof) (bool, error) {
	proof := groth16.NewProof(curve)
	if err := decodeBinary(p.ProofJSON, proof); err != nil {
		return false, err
	}
	vk := groth16.NewVerifyingKey(curve)
	if err := decodeBinary(p.VerifyingKeyJSON, vk); err != nil {
		return false, err
	}
	pub, err := frontend.NewWitness(nil, curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, errs.Wrap(errs.KindProveBlockFailed, err, "public witness allocation failed")
	}
	if err := decodeBinary(p.PublicInputsJSON, pub); err != nil {
		return false, err
	}
	if err := groth16.Verify(proof, vk, pub); err != nil {
		return false, nil
	}
	return true, nil
}

// encodeBinary base64-encodes v's gnark binary serialization (every
// gnark proof/key/witness type implements io.WriterTo).
func encodeBinary(v io.WriterTo) (string, error) {
	var buf bytes.Buffer
	if _, err := v.WriteTo(&buf); err != nil {
		return "", errs.Wrap(errs.KindProveBlockFailed, err, "serialization failed")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeBinary is encodeBinary's inverse (every gnark proof/key/witness
// type also implements io.ReaderFrom).
func decodeBinary(s string, v io.ReaderFrom) error {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return errs.Wrap(errs.KindProveBlockFailed, err, "invalid proof encoding")
	}
	if _, err := v.ReadFrom(bytes.NewReader(raw)); err != nil {
		return errs.Wrap(errs.KindProveBlockFailed, err, "deserialization failed")
	}
	return nil
}

// diskArtifacts is the on-disk cache entry for one circuit shape's Groth16
// proving/verifying keys, keyed by circuitKey and stored under
// Handler.CacheDir. The compiled constraint system itself is never
// persisted — recompiling it from the SSA program is cheap and
// deterministic, and avoids pinning this cache format to gnark's internal
// constraint-system encoding.
type diskArtifacts struct {
	PK []byte
	VK []byte
}

func (h *Handler) saveKeysToDisk(key string, sa *setupArtifacts) {
	if h.CacheDir == "" {
		return
	}
	pkB, err1 := marshalBinary(sa.pk)
	vkB, err2 := marshalBinary(sa.vk)
	if err1 != nil || err2 != nil {
		return
	}
	body, err := json.Marshal(diskArtifacts{PK: pkB, VK: vkB})
	if err != nil {
		return
	}
	os.MkdirAll(h.CacheDir, 0o755)
	_ = os.WriteFile(filepath.Join(h.CacheDir, key+".json"), body, 0o644)
}

func (h *Handler) loadKeysFromDisk(key string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	if h.CacheDir == "" {
		return nil, nil, fmt.Errorf("gnarkhandler: no cache directory configured")
	}
	body, err := os.ReadFile(filepath.Join(h.CacheDir, key+".json"))
	if err != nil {
		return nil, nil, err
	}
	var da diskArtifacts
	if err := json.Unmarshal(body, &da); err != nil {
		return nil, nil, err
	}
	pk := groth16.NewProvingKey(curve)
	vk := groth16.NewVerifyingKey(curve)
	if _, err := pk.ReadFrom(bytes.NewReader(da.PK)); err != nil {
		return nil, nil, err
	}
	if _, err := vk.ReadFrom(bytes.NewReader(da.VK)); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}

func marshalBinary(v io.WriterTo) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := v.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
