// Package value implements the tagged-union runtime value type of the
// Mussel VM: the thing that lives on the evaluation stack, in local
// slots, and in global slots.
package value

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kristofer/mussel/pkg/object"
)

// Tag identifies which case of Value is populated.
type Tag byte

const (
	// Nil is the absence of a value.
	Nil Tag = iota
	// Boolean holds a bool.
	Boolean
	// Number holds a float64.
	Number
	// String holds a reference to an interned heap string.
	String
	// Function holds a reference to a bare function pointer.
	Function
	// Closure holds a reference to a closure object.
	Closure
	// Upvalue holds a reference to a boxed, mutable cell. Upvalue is
	// transparent: reads that want a plain value dereference through
	// it, but it never participates in arithmetic directly.
	Upvalue
)

// epsilon is the machine-epsilon threshold used for Number equality,
// matching the Rust reference VM's `(n1 - n2).abs() < f64::EPSILON`.
const epsilon = 2.2204460492503131e-16

// Value is the tagged union of every runtime value the VM manipulates.
// It is small and Copy-like by design: reference-carrying cases hold a
// thin *object.Reference, never an owned payload.
type Value struct {
	tag    Tag
	num    float64
	b      bool
	ref    *object.Reference
}

// Tag reports which case of Value is populated.
func (v Value) Tag() Tag { return v.tag }

// NewNil returns the nil value.
func NewNil() Value { return Value{tag: Nil} }

// NewBoolean returns a Boolean value.
func NewBoolean(b bool) Value { return Value{tag: Boolean, b: b} }

// NewNumber returns a Number value.
func NewNumber(n float64) Value { return Value{tag: Number, num: n} }

// NewString wraps a reference to an interned string.
func NewString(ref *object.Reference) Value { return Value{tag: String, ref: ref} }

// NewFunction wraps a reference to a function pointer object.
func NewFunction(ref *object.Reference) Value { return Value{tag: Function, ref: ref} }

// NewClosure wraps a reference to a closure object.
func NewClosure(ref *object.Reference) Value { return Value{tag: Closure, ref: ref} }

// NewUpvalue wraps a reference to an upvalue cell. Only the interpreter's
// Capture opcode ever constructs one of these: Upvalue never boxes a
// second Upvalue.
func NewUpvalue(ref *object.Reference) Value { return Value{tag: Upvalue, ref: ref} }

// Bool returns the payload of a Boolean value. Only meaningful when
// Tag() == Boolean.
func (v Value) Bool() bool { return v.b }

// Num returns the payload of a Number value. Only meaningful when
// Tag() == Number.
func (v Value) Num() float64 { return v.num }

// Ref returns the heap reference carried by String, Function, Closure
// or Upvalue values. Only meaningful for those tags.
func (v Value) Ref() *object.Reference { return v.ref }

// IsUpvalue reports whether this value is a boxed upvalue cell.
func (v Value) IsUpvalue() bool { return v.tag == Upvalue }

// Truthy implements the language's truthiness rule: Nil and
// Boolean(false) are falsey, everything else — including numeric
// zero, the empty string, and any reference — is truthy.
func (v Value) Truthy() bool {
	switch v.tag {
	case Nil:
		return false
	case Boolean:
		return v.b
	default:
		return true
	}
}

// Equal implements same-tag structural equality. Numbers compare
// within an epsilon threshold (so NaN != NaN, 0.0 == -0.0); strings
// compare by referent content (interning makes this also a pointer
// comparison in practice, but the content comparison is the contract);
// function pointers compare by {position, arity}; cross-tag comparisons
// are always false. Equal never dereferences an Upvalue — by the time a
// Value reaches Equal, upvalues have already been unboxed by the read
// path (see the variable-access protocol in package vm).
func (v Value) Equal(other Value) bool {
	if v.tag != other.tag {
		return false
	}
	switch v.tag {
	case Nil:
		return true
	case Boolean:
		return v.b == other.b
	case Number:
		return math.Abs(v.num-other.num) < epsilon
	case String:
		if v.ref == other.ref {
			return true
		}
		return v.ref.String() == other.ref.String()
	case Function:
		if v.ref == other.ref {
			return true
		}
		a, b := v.ref.Function(), other.ref.Function()
		return a.Position == b.Position && a.Arity == b.Arity
	case Closure:
		return v.ref == other.ref
	case Upvalue:
		return v.ref == other.ref
	default:
		return false
	}
}

// String renders the value per the VM's Print format: shortest
// round-trip decimal for numbers, true/false for booleans, nil for
// Nil, raw UTF-8 for strings, and `<fun position=0xHHHH arity=N>` for
// callables.
func (v Value) String() string {
	switch v.tag {
	case Nil:
		return "nil"
	case Boolean:
		if v.b {
			return "true"
		}
		return "false"
	case Number:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case String:
		return v.ref.String()
	case Function, Closure:
		return v.ref.Describe()
	case Upvalue:
		return fmt.Sprintf("<upvalue %s>", v.ref.Describe())
	default:
		return "<invalid>"
	}
}
