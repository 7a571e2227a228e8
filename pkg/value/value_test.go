package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/mussel/pkg/object"
)

func TestTruthy(t *testing.T) {
	assert.False(t, NewNil().Truthy())
	assert.False(t, NewBoolean(false).Truthy())
	assert.True(t, NewBoolean(true).Truthy())
	assert.True(t, NewNumber(0).Truthy(), "numeric zero is truthy")

	m := object.NewManager()
	assert.True(t, NewString(m.AllocateString("")).Truthy(), "the empty string is truthy")
}

func TestNumberEqualityUsesEpsilon(t *testing.T) {
	assert.True(t, NewNumber(0.0).Equal(NewNumber(-0.0)))
	assert.False(t, NewNumber(math.NaN()).Equal(NewNumber(math.NaN())), "NaN != NaN")
	assert.True(t, NewNumber(1.5).Equal(NewNumber(1.5)))
}

func TestStringEqualityByReferent(t *testing.T) {
	m := object.NewManager()
	a := NewString(m.AllocateString("hi"))
	b := NewString(m.AllocateString("hi"))
	c := NewString(m.AllocateString("bye"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestCrossTagNeverEqual(t *testing.T) {
	assert.False(t, NewNil().Equal(NewBoolean(false)))
	assert.False(t, NewNumber(0).Equal(NewBoolean(false)))
}

func TestFunctionEqualityByPositionAndArity(t *testing.T) {
	m := object.NewManager()
	a := NewFunction(m.AllocateFunction(10, 2))
	b := NewFunction(m.AllocateFunction(10, 2))
	c := NewFunction(m.AllocateFunction(10, 3))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestStringRepresentation(t *testing.T) {
	m := object.NewManager()
	assert.Equal(t, "nil", NewNil().String())
	assert.Equal(t, "true", NewBoolean(true).String())
	assert.Equal(t, "false", NewBoolean(false).String())
	assert.Equal(t, "3.5", NewNumber(3.5).String())
	assert.Equal(t, "hello", NewString(m.AllocateString("hello")).String())
	assert.Equal(t, "<fun position=0x000C arity=2>", NewFunction(m.AllocateFunction(12, 2)).String())
}
