package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineRoundTripsAndDeduplicates(t *testing.T) {
	w := NewWriter()

	idx, err := w.Define(Number(42))
	require.NoError(t, err)

	again, err := w.Define(Number(42))
	require.NoError(t, err)
	assert.Equal(t, idx, again, "defining an equal constant twice returns the same index")

	other, err := w.Define(String("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, idx, other)

	bc := w.Bytecode()
	loaded, err := NewReader(&bc).Load(idx)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(Number(42)))
}

func TestConstantPoolFull(t *testing.T) {
	w := NewWriter()
	for i := 0; i < maxConstants; i++ {
		_, err := w.Define(Number(float64(i)))
		require.NoError(t, err)
	}
	_, err := w.Define(Number(float64(maxConstants)))
	assert.ErrorIs(t, err, ErrConstantPoolFull)
}

func TestEmitAndFetchRoundTrip(t *testing.T) {
	w := NewWriter()
	w.EmitOpcode(OpConstant)
	w.EmitU16(7)
	w.EmitU8(3)
	w.EmitI16(-5)

	bc := w.Bytecode()
	r := NewReader(&bc)

	op, err := r.FetchOpcode()
	require.NoError(t, err)
	assert.Equal(t, OpConstant, op)

	u16, err := r.FetchU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(7), u16)

	u8, err := r.FetchU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), u8)

	i16, err := r.FetchI16()
	require.NoError(t, err)
	assert.Equal(t, int16(-5), i16)

	assert.True(t, r.AtEnd())
}

func TestFetchInvalidOpcodeFaults(t *testing.T) {
	bc := Bytecode{Code: []byte{byte(opCount)}}
	r := NewReader(&bc)
	_, err := r.FetchOpcode()
	assert.ErrorIs(t, err, ErrInvalidOpcode)
}

func TestFetchTruncatedOperandFaults(t *testing.T) {
	bc := Bytecode{Code: []byte{byte(OpConstant), 0x01}}
	r := NewReader(&bc)
	_, err := r.FetchOpcode()
	require.NoError(t, err)
	_, err = r.FetchU16()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestLoadOutOfRangeFaults(t *testing.T) {
	bc := Bytecode{Constants: []Constant{Number(1)}}
	r := NewReader(&bc)
	_, err := r.Load(5)
	assert.ErrorIs(t, err, ErrConstantOutOfRange)
}

func TestJumpIsRelativeToPostOperandPosition(t *testing.T) {
	w := NewWriter()
	w.EmitOpcode(OpJump)
	operandPos := w.Position()
	w.EmitI16(10)
	w.EmitOpcode(OpReturn)

	bc := w.Bytecode()
	r := NewReader(&bc)
	_, err := r.FetchOpcode()
	require.NoError(t, err)
	off, err := r.FetchI16()
	require.NoError(t, err)
	r.Jump(off)

	assert.Equal(t, operandPos+2+10, r.Position())
}

func TestConstantEquality(t *testing.T) {
	assert.True(t, Number(1.0).Equal(Number(1.0)))
	assert.False(t, Number(1.0).Equal(Number(2.0)))
	assert.False(t, Number(1.0).Equal(String("1")))
	assert.True(t, String("a").Equal(String("a")))
}

func TestOpcodeValidAndString(t *testing.T) {
	assert.True(t, OpReturn.Valid())
	assert.False(t, Opcode(255).Valid())
	assert.Equal(t, "RETURN", OpReturn.String())
	assert.Equal(t, "INVALID", Opcode(255).String())
}
