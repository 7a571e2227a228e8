// Package bytecode defines the wire format the Mussel VM executes: a
// byte stream of opcodes interleaved with little-endian inline
// operands, plus the constant pool those opcodes index into.
//
// Architecture:
//
// Unlike a decoded-instruction representation, this bytecode is a raw
// byte stream — the same shape a reader/writer would produce for a
// real on-disk format, even though persistence itself is out of scope
// here. The Reader and Writer types in this package are the only code
// that touches that stream directly; the VM fetches one opcode and its
// operands at a time through a Reader and never indexes Code itself.
//
// Instruction format:
//
//	[opcode: u8][operand(s), each little-endian, width fixed per opcode]
//
// There is no padding or alignment. A jump offset is relative to the
// position immediately after the offset field, not to the opcode byte.
package bytecode

import "math"

// Opcode is a single-byte instruction tag.
type Opcode byte

const (
	// OpConstant pushes the constant at the following u16 pool index.
	OpConstant Opcode = iota

	// OpNil pushes the nil value.
	OpNil

	// OpTrue pushes the boolean true.
	OpTrue

	// OpFalse pushes the boolean false.
	OpFalse

	// OpFun allocates a bare function pointer {position, arity} from
	// the following u16 code position and u8 arity, and pushes it.
	// The allocated function captures no environment; like a closure
	// it is called through Invoke, but it carries no upvalues and is
	// never the target of Capture.
	OpFun

	// OpNegate pops a number and pushes its arithmetic negation.
	// Faults on any other tag.
	OpNegate

	// OpNot pops any value and pushes the boolean negation of its
	// truthiness. Never faults: every tag has a truthiness.
	OpNot

	// OpAdd pops two numbers and pushes their sum, or pops two strings
	// and pushes a freshly interned concatenation. Any other operand
	// pairing faults. Both operands must remain on the stack until the
	// result is computed and pushed (see the object manager's
	// dereference-safety contract).
	OpAdd

	// OpSubtract pops two numbers and pushes their difference. Faults
	// on non-numbers.
	OpSubtract

	// OpMultiply pops two numbers and pushes their product. Faults on
	// non-numbers.
	OpMultiply

	// OpDivide pops two numbers and pushes their quotient. Division by
	// zero yields IEEE-754 infinity or NaN and is not itself a fault.
	OpDivide

	// OpEqual pops two values of any tag and pushes whether they are
	// equal per the value package's same-tag structural equality.
	// Cross-tag operands are never equal but never fault either.
	OpEqual

	// OpGreater pops two numbers and pushes whether the first
	// (pushed earlier, so second-from-top) is greater than the
	// second. Faults on non-numbers.
	OpGreater

	// OpLess is OpGreater's mirror image. Faults on non-numbers.
	OpLess

	// OpGetGlobal reads the global at the following u8 index,
	// transparently dereferencing an upvalue box, and pushes the
	// plain value.
	OpGetGlobal

	// OpSetGlobal peeks the top of the stack (does not pop it) and
	// writes it into the global at the following u8 index. If that
	// global already holds an upvalue box, the box's cell is
	// overwritten in place rather than replacing the slot.
	OpSetGlobal

	// OpGetLocal reads the local at frame+offset (the following u8),
	// transparently dereferencing an upvalue box, and pushes the
	// plain value.
	OpGetLocal

	// OpSetLocal peeks the top of the stack and writes it into the
	// local at frame+offset. Same upvalue-preserving overwrite rule
	// as OpSetGlobal.
	OpSetLocal

	// OpPop discards the top of the stack.
	OpPop

	// OpClosure allocates a Closure{position, arity, upvalues: []}
	// from the following u16 position and u8 arity, and pushes it.
	// Capture instructions that follow grow its upvalue list in place.
	OpClosure

	// OpCapture inspects the closure at the top of the stack (left in
	// place, not popped) and the local at frame+offset (the following
	// u8). If that local already boxes an upvalue, the existing box is
	// appended to the closure's list; otherwise a fresh upvalue is
	// allocated from the local's current value, the local slot is
	// replaced with the box, and the new box is appended.
	OpCapture

	// OpGetUpvalue reads upvalue slot offset (the following u8) of the
	// executing closure, dereferences it, and pushes the plain value.
	// Faults if there is no active closure.
	OpGetUpvalue

	// OpSetUpvalue peeks the top of the stack and writes it into
	// upvalue slot offset of the executing closure's cell. Faults if
	// there is no active closure.
	OpSetUpvalue

	// OpJumpIfFalse peeks the top of the stack (does not pop) and, if
	// it is falsey, adds the following i16 offset to the reader
	// position (measured from just after the offset field).
	OpJumpIfFalse

	// OpJump unconditionally adds the following i16 offset to the
	// reader position (measured from just after the offset field).
	OpJump

	// OpCall pushes a call frame and jumps to the following u16
	// position, treating the following u8 as the argument count
	// already pushed. See the interpreter's frame-switch discipline.
	OpCall

	// OpInvoke pops the callee (a FunctionPointer or Closure) from the
	// top of the stack and performs the same frame switch as OpCall,
	// using the callee's own position and arity. Invoking any other
	// tag faults.
	OpInvoke

	// OpReturn copies the top of the stack into the callee's slot
	// zero, discards the rest of its locals, and restores the caller's
	// frame, closure, and reader position. With an empty call stack
	// this terminates the program instead.
	OpReturn

	// OpPrint pops one value and writes its formatted representation
	// followed by a newline.
	OpPrint

	// opCount is one past the last valid opcode; any byte at or above
	// it is an invalid opcode and fatal to fetch.
	opCount
)

// opcodeNames mirrors the const block above for String and tracing.
var opcodeNames = [opCount]string{
	OpConstant:    "CONSTANT",
	OpNil:         "NIL",
	OpTrue:        "TRUE",
	OpFalse:       "FALSE",
	OpFun:         "FUN",
	OpNegate:      "NEGATE",
	OpNot:         "NOT",
	OpAdd:         "ADD",
	OpSubtract:    "SUBTRACT",
	OpMultiply:    "MULTIPLY",
	OpDivide:      "DIVIDE",
	OpEqual:       "EQUAL",
	OpGreater:     "GREATER",
	OpLess:        "LESS",
	OpGetGlobal:   "GET_GLOBAL",
	OpSetGlobal:   "SET_GLOBAL",
	OpGetLocal:    "GET_LOCAL",
	OpSetLocal:    "SET_LOCAL",
	OpPop:         "POP",
	OpClosure:     "CLOSURE",
	OpCapture:     "CAPTURE",
	OpGetUpvalue:  "GET_UPVALUE",
	OpSetUpvalue:  "SET_UPVALUE",
	OpJumpIfFalse: "JUMP_IF_FALSE",
	OpJump:        "JUMP",
	OpCall:        "CALL",
	OpInvoke:      "INVOKE",
	OpReturn:      "RETURN",
	OpPrint:       "PRINT",
}

// Valid reports whether op is a recognized opcode.
func (op Opcode) Valid() bool { return op < opCount }

// String renders a human-readable mnemonic, used by tracing and the
// mussel CLI's disassemble command.
func (op Opcode) String() string {
	if !op.Valid() {
		return "INVALID"
	}
	return opcodeNames[op]
}

// constantKind tags which case of Constant is populated.
type constantKind byte

const (
	constantNumber constantKind = iota
	constantString
)

// Constant is a pool literal: a number or a string. Constant is
// comparable (all fields are plain value types) so it can key the
// writer's deduplication cache directly.
type Constant struct {
	kind constantKind
	num  float64
	str  string
}

// constantEpsilon is the threshold used to compare Number constants,
// matching the equality rule Value.Equal uses for runtime numbers.
const constantEpsilon = 2.2204460492503131e-16

// Number builds a Number constant.
func Number(n float64) Constant { return Constant{kind: constantNumber, num: n} }

// String builds a String constant.
func String(s string) Constant { return Constant{kind: constantString, str: s} }

// IsNumber reports whether this constant is a Number.
func (c Constant) IsNumber() bool { return c.kind == constantNumber }

// IsString reports whether this constant is a String.
func (c Constant) IsString() bool { return c.kind == constantString }

// Num returns the Number payload; only meaningful when IsNumber.
func (c Constant) Num() float64 { return c.num }

// Str returns the String payload; only meaningful when IsString.
func (c Constant) Str() string { return c.str }

// Equal compares two constants: numbers within an epsilon threshold,
// strings by byte equality, never equal across kinds.
func (c Constant) Equal(other Constant) bool {
	if c.kind != other.kind {
		return false
	}
	if c.kind == constantNumber {
		return math.Abs(c.num-other.num) < constantEpsilon
	}
	return c.str == other.str
}

// Bytecode is a complete, externally-owned, read-only program: an
// inline-operand byte stream plus the constant pool its Constant
// opcodes index into.
type Bytecode struct {
	Code      []byte
	Constants []Constant
}
