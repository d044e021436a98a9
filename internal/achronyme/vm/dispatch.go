package vm

import (
	"github.com/achronyme/achronyme/internal/achronyme/errs"
	"github.com/achronyme/achronyme/internal/achronyme/heap"
	"github.com/achronyme/achronyme/internal/achronyme/value"
)

// Call invokes a closure or native value with args, running the dispatch
// loop until that call returns (spec §4.3). This is the VM's single
// public entry point; top-level program execution is simply a Call
// against the program's entry closure.
func (m *VM) Call(callee value.Value, args []value.Value) (value.Value, error) {
	startDepth := len(m.Frames)
	result, err := m.call(callee, args, -1)
	if err != nil {
		return 0, err
	}
	if len(m.Frames) != startDepth {
		// Defensive: a native or prove block unwound frames unexpectedly.
		m.Frames = m.Frames[:startDepth]
	}
	return result, nil
}

// call pushes one new frame for callee (or invokes it directly if it is a
// native) and runs the dispatch loop until that frame — and everything it
// transitively calls — returns. destHint is unused beyond documentation;
// the returned value is always handed back to the caller in Go, never
// written through a register here.
func (m *VM) call(callee value.Value, args []value.Value, destHint int) (value.Value, error) {
	switch callee.Tag() {
	case value.TagNative:
		idx := int(callee.AsHandle())
		if idx < 0 || idx >= len(m.Natives) {
			return 0, errs.New(errs.KindNotCallable, "native index %d out of range", idx)
		}
		return m.Natives[idx](m, args)

	case value.TagClosure:
		closureHandle := uint32(callee.AsHandle())
		cl, ok := m.Heap.Closures.Get(uint32(callee.AsHandle()))
		if !ok {
			return 0, errs.New(errs.KindNotCallable, "stale closure handle")
		}
		proto, err := m.proto(heap.Handle(cl.ProtoIndex))
		if err != nil {
			return 0, err
		}
		return m.callProto(proto, heap.Handle(cl.ProtoIndex), closureHandle, args)

	default:
		return 0, errs.New(errs.KindNotCallable, "value of type %s is not callable", callee.TypeName())
	}
}

// callProto pushes a frame for proto, copies args into its registers, and
// runs the dispatch loop until that frame returns. closureHandle is the
// already-live handle of the closure being invoked (0 for a bare, non-
// closure top-level call) — callProto never allocates a new closure object
// of its own.
func (m *VM) callProto(proto *heap.FunctionProto, protoHandle uint32, closureHandle uint32, args []value.Value) (value.Value, error) {
	if len(args) != proto.Arity {
		return 0, errs.New(errs.KindTypeMismatch, "%s: expected %d arguments, got %d", proto.Name, proto.Arity, len(args))
	}
	base := m.SP
	if err := m.checkCall(base, proto); err != nil {
		return 0, err
	}
	for i := 0; i < proto.MaxSlots; i++ {
		var v value.Value
		if i < len(args) {
			v = args[i]
		} else {
			v = value.Nil()
		}
		if err := m.push(v); err != nil {
			return 0, err
		}
	}

	m.Frames = append(m.Frames, Frame{ProtoIndex: int(protoHandle), Base: base, ClosureHandle: closureHandle})
	result, err := m.run()
	if err != nil {
		return 0, err
	}
	return result, nil
}

// run executes instructions for the top frame until it returns, handling
// nested calls by recursing into call/callProto for the duration of the
// callee's own frame (spec §4.3 dispatch loop).
func (m *VM) run() (value.Value, error) {
	frameIndex := len(m.Frames) - 1

	for {
		frame := &m.Frames[frameIndex]
		proto, err := m.proto(uint32(frame.ProtoIndex))
		if err != nil {
			return 0, err
		}
		closure, _ := m.Heap.Closures.Get(frame.ClosureHandle)

		if frame.IP >= len(proto.Code) {
			m.popFrame(frame.Base)
			return value.Nil(), nil
		}

		instr := proto.Code[frame.IP]
		frame.IP++

		ret, done, err := m.exec(frame, proto, closure, instr)
		if err != nil {
			return 0, err
		}
		if done {
			m.popFrame(frame.Base)
			return ret, nil
		}

		m.MaybeCollect(nil)
	}
}

func (m *VM) popFrame(base int) {
	m.closeUpvalues(base)
	m.SP = base
	m.Frames = m.Frames[:len(m.Frames)-1]
}

// exec runs one instruction against frame. done reports whether the frame
// returned (ret is then its return value).
func (m *VM) exec(frame *Frame, proto *heap.FunctionProto, closure *heap.Closure, in Instr) (ret value.Value, done bool, err error) {
	reg := func(i int) (int, error) { return m.reg(frame, proto, i) }
	get := func(i int) (value.Value, error) {
		idx, err := reg(i)
		if err != nil {
			return 0, err
		}
		return m.Stack[idx], nil
	}
	set := func(i int, v value.Value) error {
		idx, err := reg(i)
		if err != nil {
			return err
		}
		m.Stack[idx] = v
		return nil
	}
	loc := func() errs.Location { return m.location(frame, proto) }

	switch in.Op {
	case OpLoadConst:
		if in.Arg < 0 || in.Arg >= len(proto.Constants) {
			return 0, false, errs.NewAt(errs.KindIndexOutOfRange, loc(), "constant index %d out of range", in.Arg)
		}
		return 0, false, set(in.A, proto.Constants[in.Arg])

	case OpLoadNil:
		return 0, false, set(in.A, value.Nil())

	case OpLoadBool:
		return 0, false, set(in.A, value.Bool(in.Arg != 0))

	case OpMove:
		v, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, v)

	case OpAdd, OpSub, OpMul, OpDiv:
		return 0, false, m.execArith(frame, proto, in)

	case OpNeg:
		v, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		r, err := m.negValue(loc(), v)
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, r)

	case OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe:
		return 0, false, m.execCompare(frame, proto, in)

	case OpNot:
		v, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		if !v.IsBool() {
			return 0, false, errs.NewAt(errs.KindTypeMismatch, loc(), "not: expected a boolean")
		}
		return 0, false, set(in.A, value.Bool(!v.AsBool()))

	case OpAnd, OpOr:
		l, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		r, err := get(in.C)
		if err != nil {
			return 0, false, err
		}
		if !l.IsBool() || !r.IsBool() {
			return 0, false, errs.NewAt(errs.KindTypeMismatch, loc(), "expected boolean operands")
		}
		var out bool
		if in.Op == OpAnd {
			out = l.AsBool() && r.AsBool()
		} else {
			out = l.AsBool() || r.AsBool()
		}
		return 0, false, set(in.A, value.Bool(out))

	case OpBuildList:
		items := make([]value.Value, in.Arg)
		for i := 0; i < in.Arg; i++ {
			v, err := get(in.B + i)
			if err != nil {
				return 0, false, err
			}
			items[i] = v
		}
		hnd, err := m.Heap.AllocList(heap.List{Items: items})
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, value.FromHandle(value.TagList, value.Handle(hnd)))

	case OpBuildMap:
		entries := make(map[string]value.Value, in.Arg)
		for i := 0; i < in.Arg; i++ {
			k, err := get(in.B + 2*i)
			if err != nil {
				return 0, false, err
			}
			v, err := get(in.B + 2*i + 1)
			if err != nil {
				return 0, false, err
			}
			key, err := mapKey(m, k)
			if err != nil {
				return 0, false, err
			}
			entries[key] = v
		}
		hnd, err := m.Heap.AllocMap(heap.Map{Entries: entries})
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, value.FromHandle(value.TagMap, value.Handle(hnd)))

	case OpGetIndex:
		coll, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		idx, err := get(in.C)
		if err != nil {
			return 0, false, err
		}
		v, err := m.getIndex(loc(), coll, idx)
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, v)

	case OpSetIndex:
		coll, err := get(in.A)
		if err != nil {
			return 0, false, err
		}
		idx, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		v, err := get(in.C)
		if err != nil {
			return 0, false, err
		}
		return 0, false, m.setIndex(loc(), coll, idx, v)

	case OpGetGlobal:
		if in.Arg < 0 || in.Arg >= len(m.Globals) {
			return 0, false, errs.NewAt(errs.KindUndefinedVariable, loc(), "global index %d out of range", in.Arg)
		}
		return 0, false, set(in.A, m.Globals[in.Arg].Value)

	case OpSetGlobal:
		if in.Arg < 0 || in.Arg >= len(m.Globals) {
			return 0, false, errs.NewAt(errs.KindUndefinedVariable, loc(), "global index %d out of range", in.Arg)
		}
		if !m.Globals[in.Arg].Mutable {
			return 0, false, errs.NewAt(errs.KindTypeMismatch, loc(), "global %q is immutable", m.Globals[in.Arg].Name)
		}
		v, err := get(in.A)
		if err != nil {
			return 0, false, err
		}
		m.Globals[in.Arg].Value = v
		return 0, false, nil

	case OpDefineGlobalMut, OpDefineGlobalImm:
		if in.Arg < 0 || in.Arg >= len(proto.Constants) || proto.Constants[in.Arg].Tag() != value.TagString {
			return 0, false, errs.NewAt(errs.KindTypeMismatch, loc(), "define_global: name constant %d is not a string", in.Arg)
		}
		nameVal := proto.Constants[in.Arg]
		s, ok := m.Heap.Strings.Get(uint32(nameVal.AsHandle()))
		if !ok {
			return 0, false, errs.NewAt(errs.KindTypeMismatch, loc(), "define_global: stale name string")
		}
		name := string(s.Bytes)
		v, err := get(in.A)
		if err != nil {
			return 0, false, err
		}
		if idx, exists := m.GlobalIndex[name]; exists {
			m.Globals[idx].Value = v
			return 0, false, nil
		}
		m.GlobalIndex[name] = len(m.Globals)
		m.Globals = append(m.Globals, Global{Name: name, Value: v, Mutable: in.Op == OpDefineGlobalMut})
		return 0, false, nil

	case OpMakeClosure:
		if in.Arg < 0 || in.Arg >= len(m.Protos) {
			return 0, false, errs.NewAt(errs.KindNotCallable, loc(), "prototype index %d out of range", in.Arg)
		}
		// UpvalueSource.Index for a parent-local capture is a register index
		// relative to this frame (as the compiler emits it); rebase it to an
		// absolute stack index before handing it to captureUpvalue, which
		// tracks open upvalues by absolute m.Stack position.
		sources := in.Upvalues
		if len(sources) > 0 {
			rebased := make([]UpvalueSource, len(sources))
			for i, src := range sources {
				if src.FromParentLocal {
					idx, err := reg(src.Index)
					if err != nil {
						return 0, false, err
					}
					src.Index = idx
				}
				rebased[i] = src
			}
			sources = rebased
		}
		cl, err := m.makeClosure(in.Arg, sources, closure)
		if err != nil {
			return 0, false, err
		}
		hnd, err := m.Heap.AllocClosure(cl)
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, value.FromHandle(value.TagClosure, value.Handle(hnd)))

	case OpGetUpvalue:
		if closure == nil || in.B < 0 || in.B >= len(closure.Upvalues) {
			return 0, false, errs.NewAt(errs.KindIndexOutOfRange, loc(), "upvalue index %d out of range", in.B)
		}
		v, err := m.readUpvalue(closure.Upvalues[in.B])
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, v)

	case OpSetUpvalue:
		if closure == nil || in.A < 0 || in.A >= len(closure.Upvalues) {
			return 0, false, errs.NewAt(errs.KindIndexOutOfRange, loc(), "upvalue index %d out of range", in.A)
		}
		v, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		return 0, false, m.writeUpvalue(closure.Upvalues[in.A], v)

	case OpCloseUpvalues:
		idx, err := reg(in.A)
		if err != nil {
			return 0, false, err
		}
		return 0, false, m.closeUpvalues(idx)

	case OpJump:
		frame.IP = in.Arg
		return 0, false, nil

	case OpJumpIfFalse:
		cond, err := get(in.A)
		if err != nil {
			return 0, false, err
		}
		if !cond.IsBool() {
			return 0, false, errs.NewAt(errs.KindTypeMismatch, loc(), "jump_if_false: expected a boolean condition")
		}
		if !cond.AsBool() {
			frame.IP = in.Arg
		}
		return 0, false, nil

	case OpCall:
		callee, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		args := make([]value.Value, in.C)
		for i := 0; i < in.C; i++ {
			args[i], err = get(in.B + 1 + i)
			if err != nil {
				return 0, false, err
			}
		}
		result, err := m.call(callee, args, in.A)
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, result)

	case OpCallNative:
		if in.Arg < 0 || in.Arg >= len(m.Natives) {
			return 0, false, errs.NewAt(errs.KindNotCallable, loc(), "native index %d out of range", in.Arg)
		}
		args := make([]value.Value, in.C)
		for i := 0; i < in.C; i++ {
			v, err := get(in.B + i)
			if err != nil {
				return 0, false, err
			}
			args[i] = v
		}
		result, err := m.Natives[in.Arg](m, args)
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, result)

	case OpReturn:
		if in.Arg == 0 {
			return value.Nil(), true, nil
		}
		v, err := get(in.A)
		if err != nil {
			return 0, false, err
		}
		return v, true, nil

	case OpGetIter:
		v, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		it, err := m.getIter(v)
		if err != nil {
			return 0, false, err
		}
		return 0, false, set(in.A, it)

	case OpForIter:
		v, err := get(in.B)
		if err != nil {
			return 0, false, err
		}
		elem, exhausted, err := m.forIter(v)
		if err != nil {
			return 0, false, err
		}
		if exhausted {
			frame.IP = in.Arg
			return 0, false, nil
		}
		return 0, false, set(in.A, elem)

	case OpProve:
		return 0, false, m.execProve(frame, proto, in)

	default:
		return 0, false, errs.NewAt(errs.KindUnsupportedOperation, loc(), "unimplemented opcode %s", in.Op)
	}
}

