package vm

import (
	"github.com/rs/zerolog"

	"github.com/kristofer/mussel/pkg/bytecode"
)

// Tracer is a passive, non-interactive observer of execution: the VM
// has no suspension points to pause at, so rather than blocking on a
// stdin prompt at a breakpoint, a Tracer just decides whether the
// current position is interesting and, if so, emits a structured
// zerolog event instead of printing to stdout directly. Breakpoints
// and step mode act as trace filters rather than pause points.
type Tracer struct {
	logger      zerolog.Logger
	breakpoints map[int]bool
	stepMode    bool
}

// NewTracer wraps logger. With no breakpoints and step mode off, a
// fresh Tracer traces nothing; Call/Invoke/Return/fault events are
// always logged regardless, since they are low-volume and valuable on
// their own.
func NewTracer(logger zerolog.Logger) *Tracer {
	return &Tracer{logger: logger, breakpoints: make(map[int]bool)}
}

// SetStepMode traces every dispatched opcode when enabled.
func (t *Tracer) SetStepMode(enabled bool) { t.stepMode = enabled }

// AddBreakpoint traces dispatch at the given code position.
func (t *Tracer) AddBreakpoint(position int) { t.breakpoints[position] = true }

// RemoveBreakpoint stops tracing dispatch at the given code position.
func (t *Tracer) RemoveBreakpoint(position int) { delete(t.breakpoints, position) }

// ClearBreakpoints removes every breakpoint.
func (t *Tracer) ClearBreakpoints() { t.breakpoints = make(map[int]bool) }

func (t *Tracer) shouldTrace(position int) bool {
	return t.stepMode || t.breakpoints[position]
}

// dispatch logs one fetched opcode, if the position is being traced.
func (t *Tracer) dispatch(op bytecode.Opcode, position, depth int) {
	if !t.shouldTrace(position) {
		return
	}
	t.logger.Debug().Str("op", op.String()).Int("pos", position).Int("sp", depth).Msg("dispatch")
}

// frame logs a Call or Invoke frame switch.
func (t *Tracer) frame(kind string, target int, arity int) {
	t.logger.Debug().Str("kind", kind).Int("target", target).Int("arity", arity).Msg("frame")
}

// ret logs a Return that restores the caller's position.
func (t *Tracer) ret(position int) {
	t.logger.Debug().Int("pos", position).Msg("return")
}

// terminate logs the outer Return that ends the program.
func (t *Tracer) terminate() {
	t.logger.Debug().Msg("terminate")
}

// fault logs a fault at the point it was raised.
func (t *Tracer) fault(op bytecode.Opcode, position int, cause error) {
	t.logger.Error().Str("op", op.String()).Int("pos", position).Err(cause).Msg("fault")
}
