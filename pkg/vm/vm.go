// Package vm implements the Mussel bytecode virtual machine.
//
// The VM is a fetch-decode-dispatch interpreter over the byte stream a
// bytecode.Reader exposes. It owns three pieces of state beyond the
// reader itself: a fixed-capacity evaluation stack, an array of global
// slots, and a call stack of saved frames. Heap allocation for
// strings, function pointers, closures, and upvalues is delegated
// entirely to an object.Manager the VM does not own the lifetime of —
// the caller constructs one, hands it to New, and finalizes it only
// after the VM is done with it.
//
// Execution model:
//
// Run drives the loop to completion: fetch one opcode, dispatch on it,
// repeat, until an outer Return executes with an empty call stack or a
// fault occurs. There is no cooperative suspension — no opcode yields
// control back to the caller mid-instruction — so a single Run call
// either finishes the program or returns a *Fault explaining why it
// couldn't.
//
// Variable access and closures:
//
// Local and global slots hold either a plain value.Value or a
// value.Value tagged Upvalue boxing a cell shared with other closures.
// Reads transparently dereference the box; writes peek rather than pop
// their operand (so assignment remains usable as an expression) and,
// when the target already boxes an upvalue, write through the box
// instead of replacing the slot. Capture is the only place a plain
// slot is promoted to a box, and it only ever promotes once.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/kristofer/mussel/pkg/bytecode"
	"github.com/kristofer/mussel/pkg/object"
	"github.com/kristofer/mussel/pkg/stack"
	"github.com/kristofer/mussel/pkg/value"
)

// globalSlots is the fixed number of global variable slots, matching
// the u8 width of a global index operand.
const globalSlots = 256

// callFrame is one saved entry of the call stack: everything Call or
// Invoke must restore when the callee's Return executes.
type callFrame struct {
	returnPosition int
	frame          int
	closure        *object.Reference
}

// VM is one execution context: an evaluation stack, global storage,
// and the frame/closure/call-stack bookkeeping the interpreter loop
// needs. A VM is reusable across multiple Bytecode programs via Reset,
// which is why it holds its object.Manager by reference rather than
// owning one outright.
type VM struct {
	objects   *object.Manager
	stack     *stack.Stack
	globals   [globalSlots]value.Value
	frame     int
	closure   *object.Reference
	callstack []callFrame
	reader    *bytecode.Reader

	stdout io.Writer
	tracer *Tracer
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithStdout redirects Print output away from os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(v *VM) { v.stdout = w }
}

// WithLogger attaches a structured logger, traced on every opcode by
// default (step mode on). A nil tracer (the default with no option
// supplied) disables tracing entirely. Use WithTracer instead for
// breakpoint-scoped tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(v *VM) {
		t := NewTracer(logger)
		t.SetStepMode(true)
		v.tracer = t
	}
}

// WithTracer attaches a pre-configured Tracer, letting the caller
// restrict tracing to specific breakpoints instead of every opcode.
func WithTracer(t *Tracer) Option {
	return func(v *VM) { v.tracer = t }
}

// New constructs a VM bound to objects. objects is not owned by the
// VM: the caller finalizes it after the VM (and any other value still
// holding references into it) is done.
func New(objects *object.Manager, opts ...Option) *VM {
	v := &VM{
		objects: objects,
		stack:   stack.New(),
		stdout:  os.Stdout,
	}
	for i := range v.globals {
		v.globals[i] = value.NewNil()
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Reset clears the stack, globals, frame, closure, and call stack back
// to a fresh VM's state, without touching the object manager: heap
// allocations from prior runs remain valid and interned strings stay
// interned. This lets one long-lived VM and one growing heap execute
// several Bytecode programs in sequence.
func (v *VM) Reset() {
	v.stack.Clear()
	for i := range v.globals {
		v.globals[i] = value.NewNil()
	}
	v.frame = 0
	v.closure = nil
	v.callstack = nil
}

// Run executes bc to completion: to an outer Return, or to the first
// fault. The reader is repositioned to offset 0 regardless of any
// prior Run call's ending position.
func (v *VM) Run(bc *bytecode.Bytecode) error {
	v.reader = bytecode.NewReader(bc)
	for {
		done, err := v.step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// step fetches and dispatches exactly one opcode. The returned bool is
// true once the program has terminated (an outer Return executed).
func (v *VM) step() (bool, error) {
	position := v.reader.Position()
	op, err := v.reader.FetchOpcode()
	if err != nil {
		return false, v.fault(DecodeError, op, position, err)
	}

	if v.tracer != nil {
		v.tracer.dispatch(op, position, v.stack.Len())
	}

	switch op {
	case bytecode.OpConstant:
		idx, err := v.reader.FetchU16()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		c, err := v.reader.Load(idx)
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		val := v.loadConstant(c)
		if err := v.push(val); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpNil:
		if err := v.push(value.NewNil()); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpTrue:
		if err := v.push(value.NewBoolean(true)); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpFalse:
		if err := v.push(value.NewBoolean(false)); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpFun:
		pos, err := v.reader.FetchU16()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		arity, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		ref := v.objects.AllocateFunction(pos, arity)
		if err := v.push(value.NewFunction(ref)); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpNegate:
		a, err := v.pop()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if a.Tag() != value.Number {
			return false, v.fault(TypeError, op, position, fmt.Errorf("negate on non-number"))
		}
		if err := v.push(value.NewNumber(-a.Num())); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpNot:
		a, err := v.pop()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if err := v.push(value.NewBoolean(!a.Truthy())); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpAdd:
		b, err := v.peek(0)
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		a, err := v.peek(1)
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		result, err := v.add(a, b)
		if err != nil {
			return false, v.fault(TypeError, op, position, err)
		}
		v.discard(2)
		if err := v.push(result); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
		b, a, ferr := v.popNumberPair(op, position)
		if ferr != nil {
			return false, ferr
		}
		var r float64
		switch op {
		case bytecode.OpSubtract:
			r = a - b
		case bytecode.OpMultiply:
			r = a * b
		case bytecode.OpDivide:
			r = a / b
		}
		if err := v.push(value.NewNumber(r)); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpEqual:
		b, err := v.pop()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		a, err := v.pop()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if err := v.push(value.NewBoolean(a.Equal(b))); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpGreater, bytecode.OpLess:
		b, a, ferr := v.popNumberPair(op, position)
		if ferr != nil {
			return false, ferr
		}
		var r bool
		if op == bytecode.OpGreater {
			r = a > b
		} else {
			r = a < b
		}
		if err := v.push(value.NewBoolean(r)); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpGetGlobal:
		idx, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		val := v.derefUpvalue(v.globals[idx])
		if err := v.push(val); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpSetGlobal:
		idx, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		top, err := v.top()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if cur := v.globals[idx]; cur.IsUpvalue() {
			cur.Ref().Upvalue().Value = top
		} else {
			v.globals[idx] = top
		}

	case bytecode.OpGetLocal:
		off, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		slot, err := v.stack.At(v.frame + int(off))
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if err := v.push(v.derefUpvalue(slot)); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpSetLocal:
		off, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		pos := v.frame + int(off)
		top, err := v.top()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		cur, err := v.stack.At(pos)
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if cur.IsUpvalue() {
			cur.Ref().Upvalue().Value = top
		} else if err := v.stack.SetAt(pos, top); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpPop:
		if _, err := v.pop(); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpClosure:
		pos, err := v.reader.FetchU16()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		arity, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		ref := v.objects.AllocateClosure(pos, arity)
		if err := v.push(value.NewClosure(ref)); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpCapture:
		off, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		top, err := v.top()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if top.Tag() != value.Closure {
			return false, v.fault(TypeError, op, position, fmt.Errorf("capture on non-closure"))
		}
		slotPos := v.frame + int(off)
		local, err := v.stack.At(slotPos)
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		var upvalRef *object.Reference
		if local.IsUpvalue() {
			upvalRef = local.Ref()
		} else {
			upvalRef = v.objects.AllocateUpvalue(local)
			if err := v.stack.SetAt(slotPos, value.NewUpvalue(upvalRef)); err != nil {
				return false, v.fault(StackError, op, position, err)
			}
		}
		c := top.Ref().Closure()
		c.Upvalues = append(c.Upvalues, upvalRef)

	case bytecode.OpGetUpvalue:
		off, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		if v.closure == nil {
			return false, v.fault(TypeError, op, position, fmt.Errorf("get upvalue with no active closure"))
		}
		cell := v.closure.Closure().Upvalues[off]
		val := cell.Upvalue().Value.(value.Value)
		if err := v.push(val); err != nil {
			return false, v.fault(StackError, op, position, err)
		}

	case bytecode.OpSetUpvalue:
		off, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		if v.closure == nil {
			return false, v.fault(TypeError, op, position, fmt.Errorf("set upvalue with no active closure"))
		}
		top, err := v.top()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		v.closure.Closure().Upvalues[off].Upvalue().Value = top

	case bytecode.OpJumpIfFalse:
		off, err := v.reader.FetchI16()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		top, err := v.top()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if !top.Truthy() {
			v.reader.Jump(off)
		}

	case bytecode.OpJump:
		off, err := v.reader.FetchI16()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		v.reader.Jump(off)

	case bytecode.OpCall:
		pos, err := v.reader.FetchU16()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		arity, err := v.reader.FetchU8()
		if err != nil {
			return false, v.fault(DecodeError, op, position, err)
		}
		v.pushFrame(int(arity), nil)
		v.reader.Seek(int(pos))
		if v.tracer != nil {
			v.tracer.frame("call", int(pos), int(arity))
		}

	case bytecode.OpInvoke:
		callee, err := v.pop()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		var calleePos uint16
		var arity uint8
		var closure *object.Reference
		switch callee.Tag() {
		case value.Function:
			f := callee.Ref().Function()
			calleePos, arity = f.Position, f.Arity
		case value.Closure:
			c := callee.Ref().Closure()
			calleePos, arity = c.Position, c.Arity
			closure = callee.Ref()
		default:
			return false, v.fault(TypeError, op, position, fmt.Errorf("invoking non-callable"))
		}
		v.pushFrame(int(arity), closure)
		v.reader.Seek(int(calleePos))
		if v.tracer != nil {
			v.tracer.frame("invoke", int(calleePos), int(arity))
		}

	case bytecode.OpReturn:
		if len(v.callstack) == 0 {
			if v.tracer != nil {
				v.tracer.terminate()
			}
			return true, nil
		}
		ret, err := v.top()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		if err := v.stack.SetAt(v.frame, ret); err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		v.stack.Truncate(v.frame + 1)
		saved := v.callstack[len(v.callstack)-1]
		v.callstack = v.callstack[:len(v.callstack)-1]
		v.frame = saved.frame
		v.closure = saved.closure
		v.reader.Seek(saved.returnPosition)
		if v.tracer != nil {
			v.tracer.ret(saved.returnPosition)
		}

	case bytecode.OpPrint:
		val, err := v.pop()
		if err != nil {
			return false, v.fault(StackError, op, position, err)
		}
		fmt.Fprintf(v.stdout, "%s\n", val.String())

	default:
		return false, v.fault(DecodeError, op, position, fmt.Errorf("unhandled opcode"))
	}

	return false, nil
}

// pushFrame saves the current frame/closure/position onto the call
// stack and switches to a new frame of the given arity, matching
// frame = stack.len() - arity so local slot 0 is the callee's first
// argument.
func (v *VM) pushFrame(arity int, closure *object.Reference) {
	v.callstack = append(v.callstack, callFrame{
		returnPosition: v.reader.Position(),
		frame:          v.frame,
		closure:        v.closure,
	})
	v.frame = v.stack.Len() - arity
	v.closure = closure
}

// loadConstant clones a pool Constant into a runtime Value, interning
// strings through the object manager.
func (v *VM) loadConstant(c bytecode.Constant) value.Value {
	if c.IsNumber() {
		return value.NewNumber(c.Num())
	}
	ref := v.objects.AllocateString(c.Str())
	return value.NewString(ref)
}

// add implements Add's dispatch on operand tags: number+number or
// string+string, new interned allocation in the string case.
func (v *VM) add(a, b value.Value) (value.Value, error) {
	if a.Tag() == value.Number && b.Tag() == value.Number {
		return value.NewNumber(a.Num() + b.Num()), nil
	}
	if a.Tag() == value.String && b.Tag() == value.String {
		ref := v.objects.AllocateString(a.Ref().String() + b.Ref().String())
		return value.NewString(ref), nil
	}
	return value.Value{}, fmt.Errorf("add on incompatible operands")
}

// popNumberPair pops two operands for a binary numeric opcode and
// returns them as (top, second-from-top) floats, or a ready-to-return
// *Fault if either is missing or not a number.
func (v *VM) popNumberPair(op bytecode.Opcode, position int) (float64, float64, error) {
	b, err := v.pop()
	if err != nil {
		return 0, 0, v.fault(StackError, op, position, err)
	}
	a, err := v.pop()
	if err != nil {
		return 0, 0, v.fault(StackError, op, position, err)
	}
	if a.Tag() != value.Number || b.Tag() != value.Number {
		return 0, 0, v.fault(TypeError, op, position, fmt.Errorf("arithmetic on non-number operand"))
	}
	return b.Num(), a.Num(), nil
}

// derefUpvalue unboxes val if it is an upvalue cell, otherwise returns
// it unchanged.
func (v *VM) derefUpvalue(val value.Value) value.Value {
	if val.IsUpvalue() {
		return val.Ref().Upvalue().Value.(value.Value)
	}
	return val
}

func (v *VM) push(val value.Value) error     { return v.stack.Push(val) }
func (v *VM) pop() (value.Value, error)      { return v.stack.Pop() }
func (v *VM) top() (value.Value, error)      { return v.stack.Top() }
func (v *VM) peek(n int) (value.Value, error) { return v.stack.Peek(n) }

// discard drops the top n stack entries without returning them, used
// after operations (like Add) that had to peek both operands before
// computing a result from them.
func (v *VM) discard(n int) {
	v.stack.Truncate(v.stack.Len() - n)
}

// fault builds a *Fault for the current opcode/position/call-stack and
// logs it if tracing is enabled.
func (v *VM) fault(kind FaultKind, op bytecode.Opcode, position int, cause error) *Fault {
	frames := make([]Frame, len(v.callstack))
	for i, f := range v.callstack {
		frames[i] = Frame{ReturnPosition: f.returnPosition, Frame: f.frame}
	}
	f := newFault(kind, op, position, frames, cause)
	if v.tracer != nil {
		v.tracer.fault(op, position, cause)
	}
	return f
}
