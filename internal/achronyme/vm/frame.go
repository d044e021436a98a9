package vm

// Frame is one call frame: the prototype being executed, this call's base
// register (its register 0's index in the VM stack), the destination
// register the return value is written to, and the instruction pointer.
type Frame struct {
	ProtoIndex int
	Base       int
	Dest       int
	IP         int
	ClosureHandle uint32
}
