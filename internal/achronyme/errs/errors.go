// Package errs implements the single error taxonomy shared by every stage
// of the toolchain (spec §7), in the shape of the teacher's VMError: one
// struct with a Kind enum, a Location, a Message and a wrapped Cause,
// rather than a distinct error type per package.
package errs

import "fmt"

// Kind enumerates every row of spec.md §7's error table.
type Kind int

const (
	KindUnknown Kind = iota

	// Front-end
	KindParseError

	// Virtual machine
	KindIntegerOverflow
	KindTypeMismatch
	KindDivisionByZero
	KindIndexOutOfRange
	KindUndefinedVariable
	KindStackOverflow
	KindNotCallable

	// Intermediate lowering
	KindDuplicateInput
	KindUnsupportedOperation
	KindExcessiveUnroll
	KindNestedArrayInCircuit
	KindRecursionInCircuit

	// Analyses
	KindNonBooleanMuxCondition
	KindUnderConstrainedWitness // warning
	KindUnusedInput             // warning

	// Evaluator / witness generator
	KindConstraintViolation

	// Inline-proof glue
	KindProveHandlerUnavailable
	KindProveBlockFailed

	// Field layer
	KindFieldNotCanonical
	KindFieldNotReduced

	// Heap
	KindHeapOverflow
)

func (k Kind) String() string {
	switch k {
	case KindParseError:
		return "ParseError"
	case KindIntegerOverflow:
		return "IntegerOverflow"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindDivisionByZero:
		return "DivisionByZero"
	case KindIndexOutOfRange:
		return "IndexOutOfRange"
	case KindUndefinedVariable:
		return "UndefinedVariable"
	case KindStackOverflow:
		return "StackOverflow"
	case KindNotCallable:
		return "NotCallable"
	case KindDuplicateInput:
		return "DuplicateInput"
	case KindUnsupportedOperation:
		return "UnsupportedOperation"
	case KindExcessiveUnroll:
		return "ExcessiveUnroll"
	case KindNestedArrayInCircuit:
		return "NestedArrayInCircuit"
	case KindRecursionInCircuit:
		return "RecursionInCircuit"
	case KindNonBooleanMuxCondition:
		return "NonBooleanMuxCondition"
	case KindUnderConstrainedWitness:
		return "UnderConstrainedWitness"
	case KindUnusedInput:
		return "UnusedInput"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindProveHandlerUnavailable:
		return "ProveHandlerUnavailable"
	case KindProveBlockFailed:
		return "ProveBlockFailed"
	case KindFieldNotCanonical:
		return "FieldError::NotCanonical"
	case KindFieldNotReduced:
		return "FieldError::NotReduced"
	case KindHeapOverflow:
		return "HeapOverflow"
	default:
		return "Unknown"
	}
}

// IsWarning reports whether this kind is advisory rather than fatal
// (spec §7: UnderConstrainedWitness and UnusedInput are warnings).
func (k Kind) IsWarning() bool {
	return k == KindUnderConstrainedWitness || k == KindUnusedInput
}

// Location recovers (function name, line) from a prototype's debug-symbol
// sidecar, never a raw memory address (spec §7: "must not leak ... raw
// memory addresses").
type Location struct {
	Function string
	Line     int
}

func (l Location) String() string {
	if l.Function == "" && l.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", l.Function, l.Line)
}

// Error is the toolchain's single exported error type.
type Error struct {
	Kind     Kind
	Location Location
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	loc := e.Location.String()
	if loc != "" {
		loc = " at " + loc
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s%s: %s (caused by: %v)", e.Kind, loc, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s%s: %s", e.Kind, loc, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is compares by Kind, matching the teacher's VMError.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error with no location, for layers (IR, backends) that
// have no source line attached.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewAt builds an Error carrying a source location, for VM runtime faults.
func NewAt(kind Kind, loc Location, format string, args ...any) *Error {
	return &Error{Kind: kind, Location: loc, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error of the given kind.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
