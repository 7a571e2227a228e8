package bytecode

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncated is returned when a fetch would read past the end of the
// code stream.
var ErrTruncated = errors.New("truncated bytecode operand")

// ErrInvalidOpcode is returned when a fetched byte does not name a
// known opcode.
var ErrInvalidOpcode = errors.New("invalid opcode")

// ErrConstantOutOfRange is returned by Load when index is not a valid
// pool entry.
var ErrConstantOutOfRange = errors.New("constant index out of range")

// Reader wraps a borrowed Bytecode with a mutable byte cursor. It is
// the only way the interpreter touches the code stream: every opcode
// and operand fetch, and every jump, goes through it.
type Reader struct {
	code      []byte
	constants []Constant
	pos       int
}

// NewReader positions a fresh reader at offset 0 of bc.
func NewReader(bc *Bytecode) *Reader {
	return &Reader{code: bc.Code, constants: bc.Constants}
}

// Position reports the current cursor offset.
func (r *Reader) Position() int { return r.pos }

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(pos int) { r.pos = pos }

// Jump adds a signed offset to the cursor, relative to its current
// position (the position immediately after a jump's operand field, by
// construction of the fetch/dispatch loop).
func (r *Reader) Jump(offset int16) { r.pos += int(offset) }

// AtEnd reports whether the cursor has consumed the entire code
// stream.
func (r *Reader) AtEnd() bool { return r.pos >= len(r.code) }

// FetchOpcode reads one byte, validates it names a known opcode, and
// advances the cursor. An unrecognized byte is fatal and leaves the
// cursor unadvanced.
func (r *Reader) FetchOpcode() (Opcode, error) {
	if r.pos >= len(r.code) {
		return 0, errors.WithStack(ErrTruncated)
	}
	op := Opcode(r.code[r.pos])
	if !op.Valid() {
		return 0, errors.Wrapf(ErrInvalidOpcode, "byte 0x%02X at position %d", byte(op), r.pos)
	}
	r.pos++
	return op, nil
}

// FetchU8 reads one byte and advances the cursor.
func (r *Reader) FetchU8() (uint8, error) {
	if r.pos >= len(r.code) {
		return 0, errors.WithStack(ErrTruncated)
	}
	v := r.code[r.pos]
	r.pos++
	return v, nil
}

// FetchU16 reads a little-endian u16 and advances the cursor.
func (r *Reader) FetchU16() (uint16, error) {
	if r.pos+2 > len(r.code) {
		return 0, errors.WithStack(ErrTruncated)
	}
	v := binary.LittleEndian.Uint16(r.code[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

// FetchI16 reads a little-endian i16 and advances the cursor.
func (r *Reader) FetchI16() (int16, error) {
	v, err := r.FetchU16()
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

// Load returns the constant at index. Out-of-range indices are fatal.
func (r *Reader) Load(index uint16) (Constant, error) {
	if int(index) >= len(r.constants) {
		return Constant{}, errors.Wrapf(ErrConstantOutOfRange, "index %d (pool size %d)", index, len(r.constants))
	}
	return r.constants[index], nil
}
