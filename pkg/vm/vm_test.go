package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/mussel/pkg/bytecode"
	"github.com/kristofer/mussel/pkg/object"
	"github.com/kristofer/mussel/pkg/samples"
	"github.com/kristofer/mussel/pkg/value"
)

func runSample(t *testing.T, name samples.Name) string {
	t.Helper()
	bc, ok := samples.Build(name)
	require.True(t, ok)

	objects := object.NewManager()
	defer objects.Finalize()

	var out bytes.Buffer
	machine := New(objects, WithStdout(&out))
	require.NoError(t, machine.Run(&bc))
	return out.String()
}

func TestArithmeticPrecedenceProducesNoOutput(t *testing.T) {
	assert.Empty(t, runSample(t, samples.ArithmeticPrecedence))
}

func TestStringConcatenationAndInterning(t *testing.T) {
	objects := object.NewManager()
	defer objects.Finalize()

	bc, ok := samples.Build(samples.StringConcatenation)
	require.True(t, ok)

	var out bytes.Buffer
	machine := New(objects, WithStdout(&out))
	require.NoError(t, machine.Run(&bc))
	assert.Equal(t, "Hello, World!\n", out.String())

	concatenated := objects.AllocateString("Hello, World!")
	again := objects.AllocateString("Hello, World!")
	assert.Same(t, concatenated, again)
}

func TestGlobalsAndMutation(t *testing.T) {
	assert.Equal(t, "beignets with cafe au lait\n", runSample(t, samples.GlobalsAndMutation))
}

func TestFunctionCall(t *testing.T) {
	assert.Equal(t, "628\n", runSample(t, samples.FunctionCall))
}

func TestClosureCounter(t *testing.T) {
	assert.Equal(t, "114514\n114513\n", runSample(t, samples.ClosureCounter))
}

func TestConditionalBranch(t *testing.T) {
	assert.Equal(t, "OK\n", runSample(t, samples.ConditionalBranch))
}

func TestDivideByZeroDoesNotFault(t *testing.T) {
	w := bytecode.NewWriter()
	c1, _ := w.Define(bytecode.Number(1))
	c0, _ := w.Define(bytecode.Number(0))
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c1)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c0)
	w.EmitOpcode(bytecode.OpDivide)
	w.EmitOpcode(bytecode.OpPrint)
	w.EmitOpcode(bytecode.OpReturn)
	bc := w.Bytecode()

	objects := object.NewManager()
	defer objects.Finalize()

	var out bytes.Buffer
	machine := New(objects, WithStdout(&out))
	require.NoError(t, machine.Run(&bc))
	assert.Equal(t, "+Inf\n", out.String())
}

func TestNotNeverFaults(t *testing.T) {
	w := bytecode.NewWriter()
	w.EmitOpcode(bytecode.OpNil)
	w.EmitOpcode(bytecode.OpNot)
	w.EmitOpcode(bytecode.OpPrint)
	w.EmitOpcode(bytecode.OpReturn)
	bc := w.Bytecode()

	objects := object.NewManager()
	defer objects.Finalize()

	var out bytes.Buffer
	machine := New(objects, WithStdout(&out))
	require.NoError(t, machine.Run(&bc))
	assert.Equal(t, "true\n", out.String())
}

func TestStackOverflowFaults(t *testing.T) {
	w := bytecode.NewWriter()
	c0, _ := w.Define(bytecode.Number(1))
	for i := 0; i <= 256; i++ {
		w.EmitOpcode(bytecode.OpConstant)
		w.EmitU16(c0)
	}
	w.EmitOpcode(bytecode.OpReturn)
	bc := w.Bytecode()

	objects := object.NewManager()
	defer objects.Finalize()

	machine := New(objects)
	err := machine.Run(&bc)
	require.Error(t, err)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, StackError, fault.Kind)
}

func TestInvokingNonCallableFaults(t *testing.T) {
	w := bytecode.NewWriter()
	w.EmitOpcode(bytecode.OpNil)
	w.EmitOpcode(bytecode.OpInvoke)
	bc := w.Bytecode()

	objects := object.NewManager()
	defer objects.Finalize()

	machine := New(objects)
	err := machine.Run(&bc)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, TypeError, fault.Kind)
}

func TestInvokingBareFunctionPointer(t *testing.T) {
	// main: Constant(20); Constant(22); Fun add; Invoke; Print; Return.
	// add (no captured upvalues): GetLocal 0; GetLocal 1; Add; Return.
	w := bytecode.NewWriter()
	c20, _ := w.Define(bytecode.Number(20))
	c22, _ := w.Define(bytecode.Number(22))

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c20)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c22)

	w.EmitOpcode(bytecode.OpFun)
	addTarget := w.Position()
	w.EmitU16(0)
	w.EmitU8(2)

	w.EmitOpcode(bytecode.OpInvoke)
	w.EmitOpcode(bytecode.OpPrint)
	w.EmitOpcode(bytecode.OpReturn)

	addPos := w.Position()
	w.PatchU16(addTarget, uint16(addPos))
	w.EmitOpcode(bytecode.OpGetLocal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpGetLocal)
	w.EmitU8(1)
	w.EmitOpcode(bytecode.OpAdd)
	w.EmitOpcode(bytecode.OpReturn)

	bc := w.Bytecode()
	objects := object.NewManager()
	defer objects.Finalize()

	var out bytes.Buffer
	machine := New(objects, WithStdout(&out))
	require.NoError(t, machine.Run(&bc))
	assert.Equal(t, "42\n", out.String(), "Invoke on a bare Fun value needs no captured closure state")
}

func TestResetPreservesObjectManager(t *testing.T) {
	objects := object.NewManager()
	defer objects.Finalize()

	bc, ok := samples.Build(samples.StringConcatenation)
	require.True(t, ok)

	var out bytes.Buffer
	machine := New(objects, WithStdout(&out))
	require.NoError(t, machine.Run(&bc))
	countAfterFirst := objects.Count()

	machine.Reset()
	out.Reset()
	require.NoError(t, machine.Run(&bc))
	assert.Equal(t, "Hello, World!\n", out.String())
	assert.Equal(t, countAfterFirst, objects.Count(), "interning means the second run allocates nothing new")
}

func TestUpvalueTransparentWriteVisibleThroughLocal(t *testing.T) {
	// main: Constant(1) (local 0); Closure theworld; Capture 0; Invoke;
	// Print; GetLocal 0; Print; Return.
	// theworld: Constant(99); SetUpvalue 0; Return.
	// theworld overwrites the captured cell with 99 and returns it;
	// main's own GetLocal 0 afterwards must observe the same 99,
	// since Capture boxed local 0 and theworld wrote through the box.
	w := bytecode.NewWriter()
	c1, _ := w.Define(bytecode.Number(1))
	c99, _ := w.Define(bytecode.Number(99))

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c1)

	w.EmitOpcode(bytecode.OpClosure)
	closureTarget := w.Position()
	w.EmitU16(0)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpCapture)
	w.EmitU8(0)

	w.EmitOpcode(bytecode.OpInvoke)
	w.EmitOpcode(bytecode.OpPrint)

	w.EmitOpcode(bytecode.OpGetLocal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpPrint)
	w.EmitOpcode(bytecode.OpReturn)

	closurePos := w.Position()
	w.PatchU16(closureTarget, uint16(closurePos))
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c99)
	w.EmitOpcode(bytecode.OpSetUpvalue)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpReturn)

	bc := w.Bytecode()
	objects := object.NewManager()
	defer objects.Finalize()

	var out bytes.Buffer
	machine := New(objects, WithStdout(&out))
	require.NoError(t, machine.Run(&bc))
	assert.Equal(t, "99\n99\n", out.String(), "a write through the upvalue is visible through the aliased local")
}

func TestDerefUpvalueOnPlainValueIsIdentity(t *testing.T) {
	machine := New(object.NewManager())
	n := value.NewNumber(3)
	assert.Equal(t, n, machine.derefUpvalue(n))
}
