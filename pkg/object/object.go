// Package object implements the heap object subsystem for the Mussel VM.
//
// Every heap-allocated value a running program can touch — strings,
// function pointers, closures, upvalues — is owned by exactly one
// Manager. The manager is the sole allocator: no other package mints a
// Reference. It performs no reclamation while a program runs; garbage
// accumulates until the Manager itself is torn down, at which point it
// finalizes every tracked object in the order it was allocated.
//
// This trades memory footprint for two guarantees the interpreter
// leans on heavily: a Reference is valid for as long as the Manager
// that produced it is alive, and peeking a reference-bearing value on
// the evaluation stack never risks it being collected out from under
// the peek.
package object

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// Kind identifies which variant of heap object a Reference points to.
type Kind byte

const (
	// KindString is interned UTF-8 text.
	KindString Kind = iota
	// KindFunction is a {position, arity} callable with no captured state.
	KindFunction
	// KindClosure is a callable combining a code position, arity, and
	// upvalue references.
	KindClosure
	// KindUpvalue is a single mutable cell shared by every closure that
	// captured the same variable.
	KindUpvalue
)

// Function is the payload of a KindFunction object: a bare code
// position and arity, with no captured environment.
type Function struct {
	Position uint16
	Arity    uint8
}

// Closure is the payload of a KindClosure object: a code position and
// arity like Function, plus the ordered list of upvalues it captured.
type Closure struct {
	Position uint16
	Arity    uint8
	Upvalues []*Reference
}

// Upvalue is the payload of a KindUpvalue object: a single boxed cell.
// The cell's content type is left to the caller (it holds a
// value.Value, but this package does not import value to avoid a
// cycle — see value.Value's Upvalue case for the dereferencing side).
type Upvalue struct {
	Value any
}

// Reference is a thin, bitwise-copyable handle to a heap object owned
// by a Manager. Equality on two References is pointer identity: two
// References refer to the same object if and only if they are the same
// Reference value.
type Reference struct {
	kind    Kind
	payload any
}

// Kind reports which variant of heap object this reference points to.
func (r *Reference) Kind() Kind { return r.kind }

// String returns the referenced string. Panics if Kind() != KindString;
// callers that dereference a Reference are expected to already know its
// kind from the Value tag that carries it.
func (r *Reference) String() string { return r.payload.(string) }

// Function returns the referenced function pointer payload.
func (r *Reference) Function() *Function { return r.payload.(*Function) }

// Closure returns the referenced closure payload.
func (r *Reference) Closure() *Closure { return r.payload.(*Closure) }

// Upvalue returns the referenced upvalue payload.
func (r *Reference) Upvalue() *Upvalue { return r.payload.(*Upvalue) }

// Manager owns every heap-allocated object created during a VM's
// lifetime. It is the sole allocator and the sole reclaimer: no object
// is released until Finalize runs, and Finalize only ever runs once,
// at teardown.
type Manager struct {
	allocations []*Reference
	strings     *swiss.Map[string, int]
}

// NewManager creates an empty object manager.
func NewManager() *Manager {
	return &Manager{
		allocations: make([]*Reference, 0, 64),
		strings:     swiss.NewMap[string, int](64),
	}
}

// AllocateString interns s: if an equal string has already been
// allocated, its existing Reference is returned and no new allocation
// happens. Otherwise a fresh Reference is appended and tracked.
func (m *Manager) AllocateString(s string) *Reference {
	if idx, ok := m.strings.Get(s); ok {
		return m.allocations[idx]
	}
	ref := &Reference{kind: KindString, payload: s}
	m.strings.Put(s, len(m.allocations))
	m.allocations = append(m.allocations, ref)
	return ref
}

// AllocateFunction appends a new, unconditional allocation for a bare
// function pointer.
func (m *Manager) AllocateFunction(position uint16, arity uint8) *Reference {
	ref := &Reference{kind: KindFunction, payload: &Function{Position: position, Arity: arity}}
	m.allocations = append(m.allocations, ref)
	return ref
}

// AllocateClosure appends a new, unconditional allocation for a closure
// with no upvalues yet captured; Capture grows its Upvalues list
// in place after this call.
func (m *Manager) AllocateClosure(position uint16, arity uint8) *Reference {
	ref := &Reference{kind: KindClosure, payload: &Closure{Position: position, Arity: arity}}
	m.allocations = append(m.allocations, ref)
	return ref
}

// AllocateUpvalue appends a new, unconditional allocation boxing value
// as a mutable cell.
func (m *Manager) AllocateUpvalue(value any) *Reference {
	ref := &Reference{kind: KindUpvalue, payload: &Upvalue{Value: value}}
	m.allocations = append(m.allocations, ref)
	return ref
}

// Count reports the number of live (tracked, unreleased) allocations.
// Used by tests and tracing to observe heap growth; it is not part of
// the execution contract.
func (m *Manager) Count() int { return len(m.allocations) }

// Finalize releases every tracked object in insertion order. This is
// the only reclamation point in the system: it must run exactly once,
// when the owning VM is torn down, and never while a program might
// still dereference a Reference. After Finalize, the Manager must not
// be used again.
func (m *Manager) Finalize() {
	for _, ref := range m.allocations {
		switch ref.kind {
		case KindString:
			ref.payload = nil
		case KindFunction:
			ref.payload = nil
		case KindClosure:
			ref.payload = nil
		case KindUpvalue:
			ref.payload = nil
		}
	}
	m.allocations = nil
	m.strings = nil
}

// Describe renders a short, human-readable tag for a reference,
// matching the `<fun position=0xHHHH arity=N>` shape the VM's Print
// opcode uses for callables.
func (r *Reference) Describe() string {
	switch r.kind {
	case KindString:
		return r.String()
	case KindFunction:
		f := r.Function()
		return fmt.Sprintf("<fun position=0x%04X arity=%d>", f.Position, f.Arity)
	case KindClosure:
		c := r.Closure()
		return fmt.Sprintf("<fun position=0x%04X arity=%d>", c.Position, c.Arity)
	case KindUpvalue:
		return "<upvalue>"
	default:
		return "<object>"
	}
}
