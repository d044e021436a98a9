package vm

import (
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/field"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// execArith dispatches Add/Sub/Mul/Div across the two numeric value kinds
// the language distinguishes (inline integer, heap field element);
// mixing them is a hard type error (spec §3).
func (m *VM) execArith(frame *Frame, proto *heap.FunctionProto, in Instr) error {
	loc := m.location(frame, proto)
	li, err := m.reg(frame, proto, in.B)
	if err != nil {
		return err
	}
	ri, err := m.reg(frame, proto, in.C)
	if err != nil {
		return err
	}
	l, r := m.Stack[li], m.Stack[ri]

	var result value.Value
	switch {
	case l.IsInt() && r.IsInt():
		result, err = m.intArith(loc, in.Op, l.AsInt(), r.AsInt())
	case l.Tag() == value.TagField && r.Tag() == value.TagField:
		result, err = m.fieldArith(in.Op, l, r)
	default:
		return errs.NewAt(errs.KindTypeMismatch, loc,
			"arithmetic requires matching int or field operands, got %s and %s", l.TypeName(), r.TypeName())
	}
	if err != nil {
		return err
	}
	di, err := m.reg(frame, proto, in.A)
	if err != nil {
		return err
	}
	m.Stack[di] = result
	return nil
}

func (m *VM) intArith(loc errs.Location, op Opcode, a, b int64) (value.Value, error) {
	switch op {
	case OpAdd:
		return checkedInt(loc, a+b)
	case OpSub:
		return checkedInt(loc, a-b)
	case OpMul:
		return checkedInt(loc, a*b)
	case OpDiv:
		if b == 0 {
			return 0, errs.NewAt(errs.KindDivisionByZero, loc, "division by zero")
		}
		return checkedInt(loc, a/b)
	}
	return 0, errs.NewAt(errs.KindUnsupportedOperation, loc, "not an arithmetic opcode")
}

func checkedInt(loc errs.Location, i int64) (value.Value, error) {
	v, err := value.NewInt(i)
	if err != nil {
		return 0, errs.NewAt(errs.KindIntegerOverflow, loc, "%v", err)
	}
	return v, nil
}

func (m *VM) fieldArith(op Opcode, l, r value.Value) (value.Value, error) {
	lf, err := m.fieldElement(l)
	if err != nil {
		return 0, err
	}
	rf, err := m.fieldElement(r)
	if err != nil {
		return 0, err
	}
	var out field.Element
	switch op {
	case OpAdd:
		out = lf.Add(rf)
	case OpSub:
		out = lf.Sub(rf)
	case OpMul:
		out = lf.Mul(rf)
	case OpDiv:
		if rf.IsZero() {
			return 0, errs.New(errs.KindDivisionByZero, "division by zero")
		}
		out, err = lf.Div(rf)
		if err != nil {
			return 0, errs.Wrap(errs.KindDivisionByZero, err, "field division failed")
		}
	default:
		return 0, errs.New(errs.KindUnsupportedOperation, "not an arithmetic opcode")
	}
	return m.allocFieldValue(out)
}

func (m *VM) negValue(loc errs.Location, v value.Value) (value.Value, error) {
	switch {
	case v.IsInt():
		return checkedInt(loc, -v.AsInt())
	case v.Tag() == value.TagField:
		f, err := m.fieldElement(v)
		if err != nil {
			return 0, err
		}
		return m.allocFieldValue(f.Neg())
	default:
		return 0, errs.NewAt(errs.KindTypeMismatch, loc, "neg: expected int or field, got %s", v.TypeName())
	}
}

// execCompare dispatches Eq/Neq/Lt/Le/Gt/Ge. Equality is defined over any
// matching pair of comparable types; ordering is defined only for
// integers and field elements (canonical order, spec §4.5).
func (m *VM) execCompare(frame *Frame, proto *heap.FunctionProto, in Instr) error {
	loc := m.location(frame, proto)
	li, err := m.reg(frame, proto, in.B)
	if err != nil {
		return err
	}
	ri, err := m.reg(frame, proto, in.C)
	if err != nil {
		return err
	}
	l, r := m.Stack[li], m.Stack[ri]

	var out bool
	switch in.Op {
	case OpEq, OpNeq:
		eq, err := m.valuesEqual(l, r)
		if err != nil {
			return err
		}
		out = eq
		if in.Op == OpNeq {
			out = !out
		}
	default:
		cmp, err := m.orderCompare(loc, l, r)
		if err != nil {
			return err
		}
		switch in.Op {
		case OpLt:
			out = cmp < 0
		case OpLe:
			out = cmp <= 0
		case OpGt:
			out = cmp > 0
		case OpGe:
			out = cmp >= 0
		}
	}

	di, err := m.reg(frame, proto, in.A)
	if err != nil {
		return err
	}
	m.Stack[di] = value.Bool(out)
	return nil
}

func (m *VM) valuesEqual(l, r value.Value) (bool, error) {
	if l.Tag() != r.Tag() {
		if l.IsInt() != r.IsInt() {
			return false, nil
		}
	}
	switch {
	case l.IsInt() && r.IsInt():
		return l.AsInt() == r.AsInt(), nil
	case l.Tag() == value.TagField && r.Tag() == value.TagField:
		lf, err := m.fieldElement(l)
		if err != nil {
			return false, err
		}
		rf, err := m.fieldElement(r)
		if err != nil {
			return false, err
		}
		return lf.Equal(rf), nil
	case l.Tag() == value.TagString && r.Tag() == value.TagString:
		lb, err := m.stringBytes(l)
		if err != nil {
			return false, err
		}
		rb, err := m.stringBytes(r)
		if err != nil {
			return false, err
		}
		return string(lb) == string(rb), nil
	default:
		return l == r, nil
	}
}

func (m *VM) orderCompare(loc errs.Location, l, r value.Value) (int, error) {
	switch {
	case l.IsInt() && r.IsInt():
		a, b := l.AsInt(), r.AsInt()
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		default:
			return 0, nil
		}
	case l.Tag() == value.TagField && r.Tag() == value.TagField:
		lf, err := m.fieldElement(l)
		if err != nil {
			return 0, err
		}
		rf, err := m.fieldElement(r)
		if err != nil {
			return 0, err
		}
		return lf.Cmp(rf), nil
	default:
		return 0, errs.NewAt(errs.KindTypeMismatch, loc, "comparison requires matching int or field operands, got %s and %s", l.TypeName(), r.TypeName())
	}
}

func (m *VM) getIndex(loc errs.Location, coll, idx value.Value) (value.Value, error) {
	switch coll.Tag() {
	case value.TagList:
		if !idx.IsInt() {
			return 0, errs.NewAt(errs.KindTypeMismatch, loc, "get_index: list index must be an int")
		}
		l, ok := m.Heap.Lists.Get(uint32(coll.AsHandle()))
		if !ok {
			return 0, errs.NewAt(errs.KindTypeMismatch, loc, "get_index: stale list handle")
		}
		i := idx.AsInt()
		if i < 0 || i >= int64(len(l.Items)) {
			return 0, errs.NewAt(errs.KindIndexOutOfRange, loc, "get_index: index %d out of range [0, %d)", i, len(l.Items))
		}
		return l.Items[i], nil
	case value.TagMap:
		mp, ok := m.Heap.Maps.Get(uint32(coll.AsHandle()))
		if !ok {
			return 0, errs.NewAt(errs.KindTypeMismatch, loc, "get_index: stale map handle")
		}
		k, err := mapKey(m, idx)
		if err != nil {
			return 0, err
		}
		v, ok := mp.Entries[k]
		if !ok {
			return value.Nil(), nil
		}
		return v, nil
	default:
		return 0, errs.NewAt(errs.KindTypeMismatch, loc, "get_index: expected list or map, got %s", coll.TypeName())
	}
}

func (m *VM) setIndex(loc errs.Location, coll, idx, v value.Value) error {
	switch coll.Tag() {
	case value.TagList:
		if !idx.IsInt() {
			return errs.NewAt(errs.KindTypeMismatch, loc, "set_index: list index must be an int")
		}
		l, ok := m.Heap.Lists.Get(uint32(coll.AsHandle()))
		if !ok {
			return errs.NewAt(errs.KindTypeMismatch, loc, "set_index: stale list handle")
		}
		i := idx.AsInt()
		if i < 0 || i >= int64(len(l.Items)) {
			return errs.NewAt(errs.KindIndexOutOfRange, loc, "set_index: index %d out of range [0, %d)", i, len(l.Items))
		}
		l.Items[i] = v
		return nil
	case value.TagMap:
		mp, ok := m.Heap.Maps.Get(uint32(coll.AsHandle()))
		if !ok {
			return errs.NewAt(errs.KindTypeMismatch, loc, "set_index: stale map handle")
		}
		k, err := mapKey(m, idx)
		if err != nil {
			return err
		}
		mp.Entries[k] = v
		return nil
	default:
		return errs.NewAt(errs.KindTypeMismatch, loc, "set_index: expected list or map, got %s", coll.TypeName())
	}
}

func (m *VM) readUpvalue(hnd uint32) (value.Value, error) {
	uv, ok := m.Heap.Upvalues.Get(hnd)
	if !ok {
		return 0, errs.New(errs.KindIndexOutOfRange, "read upvalue: stale handle")
	}
	if uv.Open {
		return m.Stack[uv.StackIndex], nil
	}
	return uv.Closed, nil
}

func (m *VM) writeUpvalue(hnd uint32, v value.Value) error {
	uv, ok := m.Heap.Upvalues.Get(hnd)
	if !ok {
		return errs.New(errs.KindIndexOutOfRange, "write upvalue: stale handle")
	}
	if uv.Open {
		m.Stack[uv.StackIndex] = v
	} else {
		uv.Closed = v
	}
	return nil
}
