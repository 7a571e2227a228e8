// Package samples hand-assembles a handful of worked example programs
// using bytecode.Writer the same way a compiler backend would — it
// plays the role a compiler's emission pass would play, just without
// a parser in front of it, since building bytecode from source text
// stays out of scope for this module.
package samples

import "github.com/kristofer/mussel/pkg/bytecode"

// Name identifies one of the worked scenarios.
type Name string

const (
	ArithmeticPrecedence Name = "arithmetic-precedence"
	StringConcatenation  Name = "string-concatenation"
	GlobalsAndMutation   Name = "globals-and-mutation"
	FunctionCall         Name = "function-call"
	ClosureCounter       Name = "closure-counter"
	ConditionalBranch    Name = "conditional-branch"
)

// All lists every sample name, in scenario order.
var All = []Name{
	ArithmeticPrecedence,
	StringConcatenation,
	GlobalsAndMutation,
	FunctionCall,
	ClosureCounter,
	ConditionalBranch,
}

// Build assembles the named sample, or reports false if name is
// unrecognized.
func Build(name Name) (bytecode.Bytecode, bool) {
	switch name {
	case ArithmeticPrecedence:
		return arithmeticPrecedence(), true
	case StringConcatenation:
		return stringConcatenation(), true
	case GlobalsAndMutation:
		return globalsAndMutation(), true
	case FunctionCall:
		return functionCall(), true
	case ClosureCounter:
		return closureCounter(), true
	case ConditionalBranch:
		return conditionalBranch(), true
	default:
		return bytecode.Bytecode{}, false
	}
}

// arithmeticPrecedence computes !((5-4) > (3*2) == !nil) per
// left-to-right bytecode order: 1 > 6 is false, !nil is true, false ==
// true is false, and the final Not makes it true. Leaves Boolean(true)
// on the stack and produces no output.
func arithmeticPrecedence() bytecode.Bytecode {
	w := bytecode.NewWriter()
	c5, _ := w.Define(bytecode.Number(5))
	c4, _ := w.Define(bytecode.Number(4))
	c3, _ := w.Define(bytecode.Number(3))
	c2, _ := w.Define(bytecode.Number(2))

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c5)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c4)
	w.EmitOpcode(bytecode.OpSubtract)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c3)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c2)
	w.EmitOpcode(bytecode.OpMultiply)
	w.EmitOpcode(bytecode.OpGreater)
	w.EmitOpcode(bytecode.OpNil)
	w.EmitOpcode(bytecode.OpNot)
	w.EmitOpcode(bytecode.OpEqual)
	w.EmitOpcode(bytecode.OpNot)
	w.EmitOpcode(bytecode.OpReturn)
	return w.Bytecode()
}

// stringConcatenation prints the interned concatenation of two string
// constants.
func stringConcatenation() bytecode.Bytecode {
	w := bytecode.NewWriter()
	c0, _ := w.Define(bytecode.String("Hello, "))
	c1, _ := w.Define(bytecode.String("World!"))

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c0)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c1)
	w.EmitOpcode(bytecode.OpAdd)
	w.EmitOpcode(bytecode.OpPrint)
	w.EmitOpcode(bytecode.OpReturn)
	return w.Bytecode()
}

// globalsAndMutation seeds two globals, mutates one from the other,
// and prints the result.
func globalsAndMutation() bytecode.Bytecode {
	w := bytecode.NewWriter()
	c0, _ := w.Define(bytecode.String("beignets"))
	c1, _ := w.Define(bytecode.String("cafe au lait"))
	c2, _ := w.Define(bytecode.String("beignets with "))

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c0)
	w.EmitOpcode(bytecode.OpSetGlobal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpPop)

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c1)
	w.EmitOpcode(bytecode.OpSetGlobal)
	w.EmitU8(1)
	w.EmitOpcode(bytecode.OpPop)

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c2)
	w.EmitOpcode(bytecode.OpGetGlobal)
	w.EmitU8(1)
	w.EmitOpcode(bytecode.OpAdd)
	w.EmitOpcode(bytecode.OpSetGlobal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpPop)
	w.EmitOpcode(bytecode.OpGetGlobal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpPrint)
	w.EmitOpcode(bytecode.OpReturn)
	return w.Bytecode()
}

// functionCall calls a two-argument function and prints its result.
// The callee's code position is computed from where it actually ends
// up in the stream rather than hardcoded, though it lands at the same
// offset (12) the scenario names.
func functionCall() bytecode.Bytecode {
	w := bytecode.NewWriter()
	c0, _ := w.Define(bytecode.Number(114))
	c1, _ := w.Define(bytecode.Number(514))

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c0)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c1)
	w.EmitOpcode(bytecode.OpCall)
	callTarget := w.Position()
	w.EmitU16(0) // patched below
	w.EmitU8(2)  // arity
	w.EmitOpcode(bytecode.OpPrint)
	w.EmitOpcode(bytecode.OpReturn)

	funPos := w.Position()
	w.PatchU16(callTarget, uint16(funPos))

	w.EmitOpcode(bytecode.OpGetLocal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpGetLocal)
	w.EmitU8(1)
	w.EmitOpcode(bytecode.OpAdd)
	w.EmitOpcode(bytecode.OpReturn)
	return w.Bytecode()
}

// closureCounter builds a closure over a mutable counter seeded at
// 1+114514, stores it in global 0, and invokes it twice, printing the
// decremented value each time.
func closureCounter() bytecode.Bytecode {
	w := bytecode.NewWriter()
	cOne, _ := w.Define(bytecode.Number(1))
	cSeed, _ := w.Define(bytecode.Number(114514))

	// main
	w.EmitOpcode(bytecode.OpCall)
	helloTarget := w.Position()
	w.EmitU16(0) // patched: hello's position
	w.EmitU8(0)  // arity
	w.EmitOpcode(bytecode.OpSetGlobal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpPop)

	w.EmitOpcode(bytecode.OpGetGlobal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpInvoke)
	w.EmitOpcode(bytecode.OpPrint)

	w.EmitOpcode(bytecode.OpGetGlobal)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpInvoke)
	w.EmitOpcode(bytecode.OpPrint)

	w.EmitOpcode(bytecode.OpReturn)

	// hello(): locals[0] = 1 + 114514; push closure over theworld;
	// capture locals[0]; return the closure.
	helloPos := w.Position()
	w.PatchU16(helloTarget, uint16(helloPos))

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(cOne)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(cSeed)
	w.EmitOpcode(bytecode.OpAdd)

	w.EmitOpcode(bytecode.OpClosure)
	theworldTarget := w.Position()
	w.EmitU16(0) // patched: theworld's position
	w.EmitU8(0)  // arity
	w.EmitOpcode(bytecode.OpCapture)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpReturn)

	// theworld(): read the upvalue, decrement it, write the decremented
	// value back through the upvalue cell, and return that same
	// decremented value (SetUpvalue peeks, so the top of stack after it
	// is still the value just written).
	theworldPos := w.Position()
	w.PatchU16(theworldTarget, uint16(theworldPos))

	w.EmitOpcode(bytecode.OpGetUpvalue)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(cOne)
	w.EmitOpcode(bytecode.OpSubtract)
	w.EmitOpcode(bytecode.OpSetUpvalue)
	w.EmitU8(0)
	w.EmitOpcode(bytecode.OpReturn)

	return w.Bytecode()
}

// conditionalBranch prints "OK" when 114+514 < 1919810 and "WTF"
// otherwise.
func conditionalBranch() bytecode.Bytecode {
	w := bytecode.NewWriter()
	c0, _ := w.Define(bytecode.Number(114))
	c1, _ := w.Define(bytecode.Number(514))
	c2, _ := w.Define(bytecode.Number(1919810))
	cOK, _ := w.Define(bytecode.String("OK"))
	cWTF, _ := w.Define(bytecode.String("WTF"))

	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c0)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c1)
	w.EmitOpcode(bytecode.OpAdd)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(c2)
	w.EmitOpcode(bytecode.OpLess)

	w.EmitOpcode(bytecode.OpJumpIfFalse)
	elseTarget := w.Position()
	w.EmitI16(0) // patched below

	w.EmitOpcode(bytecode.OpPop)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(cOK)
	w.EmitOpcode(bytecode.OpPrint)

	w.EmitOpcode(bytecode.OpJump)
	endTarget := w.Position()
	w.EmitI16(0) // patched below

	elsePos := w.Position()
	w.PatchI16(elseTarget, int16(elsePos-(elseTarget+2)))

	w.EmitOpcode(bytecode.OpPop)
	w.EmitOpcode(bytecode.OpConstant)
	w.EmitU16(cWTF)
	w.EmitOpcode(bytecode.OpPrint)

	endPos := w.Position()
	w.PatchI16(endTarget, int16(endPos-(endTarget+2)))

	w.EmitOpcode(bytecode.OpReturn)
	return w.Bytecode()
}
