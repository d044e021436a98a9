package vm

import (
	"math/big"

	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/poseidon"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// nativeOrder is the fixed registration order behind the native table's
// compile-time-indexed dispatch (spec §4.3 "Native functions",
// OpCallNative). It lives at package level, not inlined into
// installNatives, so the bytecode compiler can resolve a call site's
// native index via NativeIndex against the exact same order without
// constructing a VM.
var nativeOrder = []struct {
	name string
	fn   NativeFunc
}{
	{"print", nativePrint},
	{"type-of", nativeTypeOf},
	{"length", nativeLength},
	{"assert", nativeAssert},
	{"time", nativeTime},

	{"list_push", nativeListPush},
	{"list_pop", nativeListPop},
	{"list_set", nativeListSet},
	{"map_set", nativeMapSet},
	{"map_get", nativeMapGet},
	{"map_delete", nativeMapDelete},

	{"string_concat", nativeStringConcat},
	{"string_slice", nativeStringSlice},
	{"string_len", nativeLength},

	{"poseidon", nativePoseidon},
	{"poseidon_many", nativePoseidonMany},

	{"proof_json", nativeProofJSON},
	{"proof_public", nativeProofPublic},
	{"proof_vkey", nativeProofVkey},
	{"verify_proof", nativeVerifyProof},

	{"field", nativeField},
}

// installNatives fills the VM's fixed, compile-time-indexed native table
// (spec §4.3 "Native functions"). The table is built once at construction
// and is immutable thereafter (spec §9 "per-process registration").
func installNatives(m *VM) {
	for _, n := range nativeOrder {
		m.NativeNames[n.name] = len(m.Natives)
		m.Natives = append(m.Natives, n.fn)
	}
}

// NativeIndex reports the compile-time index a call to the named native
// resolves to, mirroring installNatives' registration order so the
// bytecode compiler can emit OpCallNative without a live VM.
func NativeIndex(name string) (int, bool) {
	for i, n := range nativeOrder {
		if n.name == name {
			return i, true
		}
	}
	return 0, false
}

func nativePrint(m *VM, args []value.Value) (value.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = m.displayString(a)
	}
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += " "
		}
		s += p
	}
	if m.Stdout != nil {
		m.Stdout(s + "\n")
	}
	return value.Nil(), nil
}

// displayString renders a value for print, resolving heap strings rather
// than falling back to Value.String's handle-number placeholder.
func (m *VM) displayString(v value.Value) string {
	if v.Tag() == value.TagString {
		if s, ok := m.Heap.Strings.Get(uint32(v.AsHandle())); ok {
			return string(s.Bytes)
		}
	}
	return v.String()
}

func nativeTypeOf(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "type-of: expected 1 argument, got %d", len(args))
	}
	s, err := m.allocString(args[0].TypeName())
	if err != nil {
		return 0, err
	}
	return value.FromHandle(value.TagString, value.Handle(s)), nil
}

func nativeLength(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "length: expected 1 argument, got %d", len(args))
	}
	v := args[0]
	switch v.Tag() {
	case value.TagString:
		s, ok := m.Heap.Strings.Get(uint32(v.AsHandle()))
		if !ok {
			return 0, errs.New(errs.KindTypeMismatch, "length: stale string handle")
		}
		return value.NewInt(int64(len(s.Bytes)))
	case value.TagList:
		l, ok := m.Heap.Lists.Get(uint32(v.AsHandle()))
		if !ok {
			return 0, errs.New(errs.KindTypeMismatch, "length: stale list handle")
		}
		return value.NewInt(int64(len(l.Items)))
	case value.TagMap:
		mp, ok := m.Heap.Maps.Get(uint32(v.AsHandle()))
		if !ok {
			return 0, errs.New(errs.KindTypeMismatch, "length: stale map handle")
		}
		return value.NewInt(int64(len(mp.Entries)))
	default:
		return 0, errs.New(errs.KindTypeMismatch, "length: expected string, list or map, got %s", v.TypeName())
	}
}

func nativeAssert(m *VM, args []value.Value) (value.Value, error) {
	if len(args) < 1 || !args[0].IsBool() {
		return 0, errs.New(errs.KindTypeMismatch, "assert: expected a boolean condition")
	}
	if !args[0].AsBool() {
		msg := "assertion failed"
		if len(args) > 1 {
			msg = m.displayString(args[1])
		}
		return 0, errs.New(errs.KindConstraintViolation, "%s", msg)
	}
	return value.Nil(), nil
}

func nativeTime(m *VM, args []value.Value) (value.Value, error) {
	return value.NewInt(m.Clock())
}

func (m *VM) allocString(s string) (uint32, error) {
	return m.Heap.AllocString(heap.String{Bytes: []byte(s)})
}

func nativeListPush(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Tag() != value.TagList {
		return 0, errs.New(errs.KindTypeMismatch, "list_push: expected (list, value)")
	}
	l, ok := m.Heap.Lists.Get(uint32(args[0].AsHandle()))
	if !ok {
		return 0, errs.New(errs.KindTypeMismatch, "list_push: stale list handle")
	}
	l.Items = append(l.Items, args[1])
	return value.Nil(), nil
}

func nativeListPop(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Tag() != value.TagList {
		return 0, errs.New(errs.KindTypeMismatch, "list_pop: expected (list)")
	}
	l, ok := m.Heap.Lists.Get(uint32(args[0].AsHandle()))
	if !ok {
		return 0, errs.New(errs.KindTypeMismatch, "list_pop: stale list handle")
	}
	if len(l.Items) == 0 {
		return 0, errs.New(errs.KindIndexOutOfRange, "list_pop: list is empty")
	}
	last := l.Items[len(l.Items)-1]
	l.Items = l.Items[:len(l.Items)-1]
	return last, nil
}

func nativeListSet(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 3 || args[0].Tag() != value.TagList || !args[1].IsInt() {
		return 0, errs.New(errs.KindTypeMismatch, "list_set: expected (list, index, value)")
	}
	l, ok := m.Heap.Lists.Get(uint32(args[0].AsHandle()))
	if !ok {
		return 0, errs.New(errs.KindTypeMismatch, "list_set: stale list handle")
	}
	idx := args[1].AsInt()
	if idx < 0 || idx >= int64(len(l.Items)) {
		return 0, errs.New(errs.KindIndexOutOfRange, "list_set: index %d out of range [0, %d)", idx, len(l.Items))
	}
	l.Items[idx] = args[2]
	return value.Nil(), nil
}

func mapKey(m *VM, v value.Value) (string, error) {
	if v.Tag() != value.TagString {
		return "", errs.New(errs.KindTypeMismatch, "map key must be a string, got %s", v.TypeName())
	}
	s, ok := m.Heap.Strings.Get(uint32(v.AsHandle()))
	if !ok {
		return "", errs.New(errs.KindTypeMismatch, "map key: stale string handle")
	}
	return string(s.Bytes), nil
}

func nativeMapSet(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 3 || args[0].Tag() != value.TagMap {
		return 0, errs.New(errs.KindTypeMismatch, "map_set: expected (map, key, value)")
	}
	mp, ok := m.Heap.Maps.Get(uint32(args[0].AsHandle()))
	if !ok {
		return 0, errs.New(errs.KindTypeMismatch, "map_set: stale map handle")
	}
	k, err := mapKey(m, args[1])
	if err != nil {
		return 0, err
	}
	mp.Entries[k] = args[2]
	return value.Nil(), nil
}

func nativeMapGet(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Tag() != value.TagMap {
		return 0, errs.New(errs.KindTypeMismatch, "map_get: expected (map, key)")
	}
	mp, ok := m.Heap.Maps.Get(uint32(args[0].AsHandle()))
	if !ok {
		return 0, errs.New(errs.KindTypeMismatch, "map_get: stale map handle")
	}
	k, err := mapKey(m, args[1])
	if err != nil {
		return 0, err
	}
	v, ok := mp.Entries[k]
	if !ok {
		return value.Nil(), nil
	}
	return v, nil
}

func nativeMapDelete(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Tag() != value.TagMap {
		return 0, errs.New(errs.KindTypeMismatch, "map_delete: expected (map, key)")
	}
	mp, ok := m.Heap.Maps.Get(uint32(args[0].AsHandle()))
	if !ok {
		return 0, errs.New(errs.KindTypeMismatch, "map_delete: stale map handle")
	}
	k, err := mapKey(m, args[1])
	if err != nil {
		return 0, err
	}
	delete(mp.Entries, k)
	return value.Nil(), nil
}

func (m *VM) stringBytes(v value.Value) ([]byte, error) {
	if v.Tag() != value.TagString {
		return nil, errs.New(errs.KindTypeMismatch, "expected a string, got %s", v.TypeName())
	}
	s, ok := m.Heap.Strings.Get(uint32(v.AsHandle()))
	if !ok {
		return nil, errs.New(errs.KindTypeMismatch, "stale string handle")
	}
	return s.Bytes, nil
}

func nativeStringConcat(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return 0, errs.New(errs.KindTypeMismatch, "string_concat: expected (string, string)")
	}
	a, err := m.stringBytes(args[0])
	if err != nil {
		return 0, err
	}
	b, err := m.stringBytes(args[1])
	if err != nil {
		return 0, err
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	hnd, err := m.Heap.AllocString(heap.String{Bytes: out})
	if err != nil {
		return 0, err
	}
	return value.FromHandle(value.TagString, value.Handle(hnd)), nil
}

func nativeStringSlice(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 3 || !args[1].IsInt() || !args[2].IsInt() {
		return 0, errs.New(errs.KindTypeMismatch, "string_slice: expected (string, start, end)")
	}
	b, err := m.stringBytes(args[0])
	if err != nil {
		return 0, err
	}
	start, end := args[1].AsInt(), args[2].AsInt()
	if start < 0 || end > int64(len(b)) || start > end {
		return 0, errs.New(errs.KindIndexOutOfRange, "string_slice: range [%d, %d) out of bounds for length %d", start, end, len(b))
	}
	out := append([]byte(nil), b[start:end]...)
	hnd, err := m.Heap.AllocString(heap.String{Bytes: out})
	if err != nil {
		return 0, err
	}
	return value.FromHandle(value.TagString, value.Handle(hnd)), nil
}

func (m *VM) fieldElement(v value.Value) (field.Element, error) {
	if v.Tag() != value.TagField {
		return field.Element{}, errs.New(errs.KindTypeMismatch, "expected a field element, got %s", v.TypeName())
	}
	f, ok := m.Heap.Fields.Get(uint32(v.AsHandle()))
	if !ok {
		return field.Element{}, errs.New(errs.KindTypeMismatch, "stale field handle")
	}
	return f.Elem, nil
}

func (m *VM) allocFieldValue(e field.Element) (value.Value, error) {
	hnd, err := m.Heap.AllocField(heap.Field{Elem: e})
	if err != nil {
		return 0, err
	}
	return value.FromHandle(value.TagField, value.Handle(hnd)), nil
}

func nativePoseidon(m *VM, args []value.Value) (value.Value, error) {
	elems := make([]field.Element, len(args))
	for i, a := range args {
		e, err := m.fieldElement(a)
		if err != nil {
			return 0, err
		}
		elems[i] = e
	}
	return m.allocFieldValue(poseidon.Hash(elems))
}

func nativePoseidonMany(m *VM, args []value.Value) (value.Value, error) {
	if len(args) < 1 || !args[0].IsInt() {
		return 0, errs.New(errs.KindTypeMismatch, "poseidon_many: expected an output count as the first argument")
	}
	count := int(args[0].AsInt())
	if count < 1 {
		return 0, errs.New(errs.KindTypeMismatch, "poseidon_many: output count must be positive")
	}
	elems := make([]field.Element, len(args)-1)
	for i, a := range args[1:] {
		e, err := m.fieldElement(a)
		if err != nil {
			return 0, err
		}
		elems[i] = e
	}
	outs := poseidon.HashMany(elems, count)
	items := make([]value.Value, count)
	for i, e := range outs {
		v, err := m.allocFieldValue(e)
		if err != nil {
			return 0, err
		}
		items[i] = v
	}
	hnd, err := m.Heap.AllocList(heap.List{Items: items})
	if err != nil {
		return 0, err
	}
	return value.FromHandle(value.TagList, value.Handle(hnd)), nil
}

func (m *VM) proofObject(v value.Value) (*heap.Proof, error) {
	if v.Tag() != value.TagProof {
		return nil, errs.New(errs.KindTypeMismatch, "expected a proof object, got %s", v.TypeName())
	}
	p, ok := m.Heap.Proofs.Get(uint32(v.AsHandle()))
	if !ok {
		return nil, errs.New(errs.KindTypeMismatch, "stale proof handle")
	}
	return p, nil
}

func nativeProofJSON(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "proof_json: expected (proof)")
	}
	p, err := m.proofObject(args[0])
	if err != nil {
		return 0, err
	}
	hnd, err := m.allocString(p.ProofJSON)
	if err != nil {
		return 0, err
	}
	return value.FromHandle(value.TagString, value.Handle(hnd)), nil
}

func nativeProofPublic(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "proof_public: expected (proof)")
	}
	p, err := m.proofObject(args[0])
	if err != nil {
		return 0, err
	}
	hnd, err := m.allocString(p.PublicInputsJSON)
	if err != nil {
		return 0, err
	}
	return value.FromHandle(value.TagString, value.Handle(hnd)), nil
}

func nativeProofVkey(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "proof_vkey: expected (proof)")
	}
	p, err := m.proofObject(args[0])
	if err != nil {
		return 0, err
	}
	hnd, err := m.allocString(p.VerifyingKeyJSON)
	if err != nil {
		return 0, err
	}
	return value.FromHandle(value.TagString, value.Handle(hnd)), nil
}

func nativeVerifyProof(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "verify_proof: expected (proof)")
	}
	p, err := m.proofObject(args[0])
	if err != nil {
		return 0, err
	}
	if m.Verifier == nil {
		return 0, errs.New(errs.KindProveHandlerUnavailable, "verify_proof: no proof handler is installed")
	}
	ok, err := m.Verifier.VerifyProof(p)
	if err != nil {
		return 0, errs.Wrap(errs.KindProveBlockFailed, err, "verify_proof failed")
	}
	return value.Bool(ok), nil
}

// nativeField builds a field element from an integer, a decimal string, or
// an existing field element (a no-op pass-through), matching the `field`
// constructor's role as the required explicit int-to-field conversion
// (spec §3: "mixing integer and field values is a hard type error").
func nativeField(m *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return 0, errs.New(errs.KindTypeMismatch, "field: expected 1 argument, got %d", len(args))
	}
	v := args[0]
	switch v.Tag() {
	case value.TagField:
		return v, nil
	case value.TagInt:
		return m.allocFieldValue(field.FromInt64(v.AsInt()))
	case value.TagString:
		b, err := m.stringBytes(v)
		if err != nil {
			return 0, err
		}
		n, ok := new(big.Int).SetString(string(b), 10)
		if !ok {
			return 0, errs.New(errs.KindTypeMismatch, "field: %q is not a valid decimal literal", string(b))
		}
		return m.allocFieldValue(field.FromBigIntReduced(n))
	default:
		return 0, errs.New(errs.KindTypeMismatch, "field: cannot construct a field element from %s", v.TypeName())
	}
}
