package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateStringInterns(t *testing.T) {
	m := NewManager()

	a := m.AllocateString("beignets")
	b := m.AllocateString("beignets")
	c := m.AllocateString("cafe au lait")

	assert.Same(t, a, b, "equal strings must alias the same allocation")
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, m.Count())
}

func TestAllocateFunctionIsUnconditional(t *testing.T) {
	m := NewManager()

	a := m.AllocateFunction(10, 2)
	b := m.AllocateFunction(10, 2)

	assert.NotSame(t, a, b, "two allocations with identical payloads are still distinct objects")
	assert.Equal(t, 2, m.Count())
}

func TestAllocateClosureGrowsUpvalues(t *testing.T) {
	m := NewManager()

	closure := m.AllocateClosure(4, 1)
	require.Equal(t, KindClosure, closure.Kind())
	assert.Empty(t, closure.Closure().Upvalues)

	upval := m.AllocateUpvalue(nil)
	closure.Closure().Upvalues = append(closure.Closure().Upvalues, upval)
	assert.Len(t, closure.Closure().Upvalues, 1)
}

func TestDescribe(t *testing.T) {
	m := NewManager()

	str := m.AllocateString("hi")
	assert.Equal(t, "hi", str.Describe())

	fn := m.AllocateFunction(0x10, 3)
	assert.Equal(t, "<fun position=0x0010 arity=3>", fn.Describe())

	closure := m.AllocateClosure(0x20, 1)
	assert.Equal(t, "<fun position=0x0020 arity=1>", closure.Describe())

	upval := m.AllocateUpvalue(5)
	assert.Equal(t, "<upvalue>", upval.Describe())
}

func TestFinalizeClearsAllocations(t *testing.T) {
	m := NewManager()
	m.AllocateString("a")
	m.AllocateFunction(0, 0)
	require.Equal(t, 2, m.Count())

	m.Finalize()
	assert.Equal(t, 0, m.Count())
}
