package bytecode

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// maxConstants is the hard cap on constant pool size: a u16 index can
// address at most this many distinct entries.
const maxConstants = 65536

// ErrConstantPoolFull is returned by Define once the pool already holds
// maxConstants entries and a genuinely new constant is defined.
var ErrConstantPoolFull = errors.New("constant pool is full")

// Writer builds a Bytecode incrementally: emit opcodes and operands to
// grow the code stream, define constants to grow the pool. It is the
// only way outside this package to construct a Bytecode's Code field
// byte-by-byte; callers that already have a complete artifact can build
// Bytecode{Code, Constants} directly.
type Writer struct {
	code      []byte
	constants []Constant
	cache     map[Constant]uint16
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{
		cache: make(map[Constant]uint16),
	}
}

// EmitOpcode appends one opcode byte.
func (w *Writer) EmitOpcode(op Opcode) {
	w.code = append(w.code, byte(op))
}

// EmitU8 appends one byte.
func (w *Writer) EmitU8(v uint8) {
	w.code = append(w.code, v)
}

// EmitU16 appends the little-endian encoding of v.
func (w *Writer) EmitU16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.code = append(w.code, buf[:]...)
}

// EmitI16 appends the little-endian encoding of v.
func (w *Writer) EmitI16(v int16) {
	w.EmitU16(uint16(v))
}

// Define appends constant to the pool if no equal entry already exists,
// returning the index of the (possibly pre-existing) entry. Fails with
// ErrConstantPoolFull rather than grow past maxConstants entries.
func (w *Writer) Define(constant Constant) (uint16, error) {
	if idx, ok := w.cache[constant]; ok {
		return idx, nil
	}
	if len(w.constants) >= maxConstants {
		return 0, ErrConstantPoolFull
	}
	idx := uint16(len(w.constants))
	w.constants = append(w.constants, constant)
	w.cache[constant] = idx
	return idx, nil
}

// Position reports the current length of the code stream, i.e. the
// byte offset the next Emit call will write to. Useful for recording
// jump targets before they are known and patching them in later.
func (w *Writer) Position() int {
	return len(w.code)
}

// PatchI16 overwrites the i16 operand at byte offset pos with v. Used
// to back-patch a forward jump once its target position is known.
func (w *Writer) PatchI16(pos int, v int16) {
	binary.LittleEndian.PutUint16(w.code[pos:pos+2], uint16(v))
}

// PatchU16 overwrites the u16 operand at byte offset pos with v. Used
// to back-patch a Call/Fun/Closure position operand once the target
// it refers to has actually been emitted.
func (w *Writer) PatchU16(pos int, v uint16) {
	binary.LittleEndian.PutUint16(w.code[pos:pos+2], v)
}

// Bytecode finalizes the writer's accumulated code and constants into
// an immutable Bytecode value. The Writer remains usable afterward;
// each call returns an independent snapshot copy.
func (w *Writer) Bytecode() Bytecode {
	code := make([]byte, len(w.code))
	copy(code, w.code)
	constants := make([]Constant, len(w.constants))
	copy(constants, w.constants)
	return Bytecode{Code: code, Constants: constants}
}
