package interp

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/errors"
)

type frame struct {
	code *Code
	pc   int
	sp   int // stack index of the first parameter
}

func (f *frame) localsEnd() int {
	return f.sp + f.code.NumLocals()
}

type activation struct {
	fp int // frame count at entry
	sp int // stack height at entry
}

// ExceptionResult tells the host how an exception was handled.
type ExceptionResult uint8

const (
	// ExceptionHandled means execution can continue inside the activation.
	ExceptionHandled ExceptionResult = iota
	// ExceptionUnwound means the current activation was unwound.
	ExceptionUnwound
)

func (r ExceptionResult) String() string {
	if r == ExceptionHandled {
		return "handled"
	}
	return "unwound"
}

// Thread executes functions of one instance on its own value, frame and
// activation stacks. A Thread must not be used from more than one goroutine
// at a time.
type Thread struct {
	interp *Interpreter
	log    *zap.Logger

	stack       []Value
	frames      []frame
	activations []activation

	unwound error // cause of the last host-side unwind
	runErr  error // fatal error raised by the last Run

	trapFunc  uint32
	trapPC    int
	breakFunc uint32
	breakPC   int // -1 unless paused at a breakpoint

	calls uint64

	state          State
	trapReason     TrapReason
	breakFlags     BreakFlag
	nondeterminism bool
}

func newThread(i *Interpreter) *Thread {
	return &Thread{
		interp:  i,
		log:     i.cfg.Logger,
		stack:   make([]Value, 0, i.cfg.InitialStackSlots),
		breakPC: -1,
	}
}

// State returns the run state.
func (t *Thread) State() State {
	return t.state
}

func (t *Thread) currentActivation() activation {
	if len(t.activations) == 0 {
		return activation{}
	}
	return t.activations[len(t.activations)-1]
}

// InitFrame pushes args and a frame for funcIdx. The current activation must
// not have frames of its own. A frame that does not fit MaxStackBytes traps
// the thread with a stack overflow and the trap is returned.
func (t *Thread) InitFrame(funcIdx uint32, args []Value) error {
	if act := t.currentActivation(); act.fp != len(t.frames) {
		return errors.InvalidState("activation already has %d frames", len(t.frames)-act.fp)
	}
	code, err := t.interp.codes.Get(funcIdx)
	if err != nil {
		return err
	}
	if code.Imported {
		return errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("function %d is imported and has no interpreter frame", funcIdx))
	}
	params := code.Type.Params
	if len(args) != len(params) {
		return errors.TypeMismatch(errors.PhaseRuntime, []string{"func", fmt.Sprint(funcIdx)},
			fmt.Sprintf("%d arguments", len(params)), fmt.Sprintf("%d", len(args)))
	}
	for i, a := range args {
		if a.typ != params[i] {
			return errors.TypeMismatch(errors.PhaseRuntime,
				[]string{"func", fmt.Sprint(funcIdx), "arg", fmt.Sprint(i)},
				params[i].String(), a.typ.String())
		}
	}
	t.stack = append(t.stack, args...)
	t.pushFrame(code)
	if !t.stackCheck() {
		return t.Err()
	}
	return nil
}

// pushFrame enters code with its arguments already on the stack.
func (t *Thread) pushFrame(code *Code) {
	t.stack = slices.Grow(t.stack, len(code.Locals)+code.Side.MaxStackHeight)
	t.calls++
	t.frames = append(t.frames, frame{code: code, sp: len(t.stack) - len(code.Type.Params)})
	for _, lt := range code.Locals {
		t.stack = append(t.stack, Zero(lt))
	}
}

// Run executes until the activation finishes, traps, pauses or steps run
// out. A negative steps means no limit. Traps are reported through the
// returned state and Err; the error is reserved for misuse, malformed code
// and context cancellation.
func (t *Thread) Run(ctx context.Context, steps int) (State, error) {
	if t.state != StateStopped && t.state != StatePaused {
		return t.state, errors.InvalidState("cannot run a %s thread", t.state)
	}
	if len(t.frames) == t.currentActivation().fp {
		return t.state, errors.InvalidState("no frame to run")
	}
	t.runErr = nil
	t.state = StateRunning
	t.execute(ctx, steps)
	return t.state, t.runErr
}

// Step executes a single instruction.
func (t *Thread) Step(ctx context.Context) (State, error) {
	return t.Run(ctx, 1)
}

// Pause is not supported: threads only pause at step limits, breakpoints
// and break flags.
func (t *Thread) Pause() error {
	return errors.Unsupported(errors.PhaseRuntime, "asynchronous pause")
}

// Reset discards all stacks and returns the thread to StateStopped.
func (t *Thread) Reset() {
	t.log.Debug("thread reset", zap.Int("frames", len(t.frames)), zap.Int("activations", len(t.activations)))
	t.stack = t.stack[:0]
	t.frames = t.frames[:0]
	t.activations = t.activations[:0]
	t.state = StateStopped
	t.trapReason = TrapNone
	t.breakPC = -1
	t.nondeterminism = false
	t.unwound = nil
	t.runErr = nil
}

// GetReturnValue returns result i of the finished activation.
func (t *Thread) GetReturnValue(i int) (Value, error) {
	if t.state != StateFinished {
		return Value{}, errors.InvalidState("no return value in state %s", t.state)
	}
	act := t.currentActivation()
	if act.fp != len(t.frames) {
		return Value{}, errors.InvalidState("activation has not finished")
	}
	idx := act.sp + i
	if i < 0 || idx >= len(t.stack) {
		return Value{}, errors.OutOfBounds(errors.PhaseRuntime, []string{"result"}, i, len(t.stack)-act.sp)
	}
	return t.stack[idx], nil
}

// StackHeight returns the number of values on the stack.
func (t *Thread) StackHeight() int {
	return len(t.stack)
}

// GetStackValue returns the value at absolute stack index i.
func (t *Thread) GetStackValue(i int) (Value, error) {
	if i < 0 || i >= len(t.stack) {
		return Value{}, errors.OutOfBounds(errors.PhaseRuntime, []string{"stack"}, i, len(t.stack))
	}
	return t.stack[i], nil
}

// SetStackValue overwrites the value at absolute stack index i. The type of
// the slot must not change.
func (t *Thread) SetStackValue(i int, v Value) error {
	if i < 0 || i >= len(t.stack) {
		return errors.OutOfBounds(errors.PhaseRuntime, []string{"stack"}, i, len(t.stack))
	}
	if old := t.stack[i]; old.typ != v.typ {
		return errors.TypeMismatch(errors.PhaseRuntime, []string{"stack", fmt.Sprint(i)},
			old.typ.String(), v.typ.String())
	}
	t.stack[i] = v
	return nil
}

// TrapReason returns the reason of the active trap, TrapNone otherwise.
func (t *Thread) TrapReason() TrapReason {
	if t.state != StateTrapped {
		return TrapNone
	}
	return t.trapReason
}

// Err returns the active trap as an error, nil when not trapped.
func (t *Thread) Err() error {
	if t.state != StateTrapped {
		return nil
	}
	return errors.Trap(t.trapReason, t.trapFunc, t.trapPC)
}

// Unwound returns the host error that caused the last unwind.
func (t *Thread) Unwound() error {
	return t.unwound
}

// BreakpointPC returns the location of the breakpoint or break flag the
// thread is paused at.
func (t *Thread) BreakpointPC() (funcIdx uint32, pc int, ok bool) {
	if t.state != StatePaused || t.breakPC < 0 {
		return 0, 0, false
	}
	return t.breakFunc, t.breakPC, true
}

// PossibleNondeterminism reports whether a float operation produced a NaN
// since the last Reset. NaN sign and payload bits may differ across
// backends.
func (t *Thread) PossibleNondeterminism() bool {
	return t.nondeterminism
}

// NumInterpretedCalls returns the number of interpreter frames entered.
func (t *Thread) NumInterpretedCalls() uint64 {
	return t.calls
}

// AddBreakFlags requests pauses after the given classes of instructions.
func (t *Thread) AddBreakFlags(f BreakFlag) {
	t.breakFlags |= f
}

// ClearBreakFlags removes all break flags.
func (t *Thread) ClearBreakFlags() {
	t.breakFlags = BreakNone
}

// BreakFlags returns the active break flags.
func (t *Thread) BreakFlags() BreakFlag {
	return t.breakFlags
}

// NumActivations returns the depth of the activation stack.
func (t *Thread) NumActivations() int {
	return len(t.activations)
}

// StartActivation records the current frame and stack height as the base of
// a new activation and stops the thread so a frame can be initialized.
func (t *Thread) StartActivation() int {
	if len(t.activations) == 0 && (len(t.frames) != 0 || len(t.stack) != 0) {
		t.log.Warn("activation started over a non-empty thread",
			zap.Int("frames", len(t.frames)), zap.Int("stack", len(t.stack)))
	}
	id := len(t.activations)
	t.activations = append(t.activations, activation{fp: len(t.frames), sp: len(t.stack)})
	t.state = StateStopped
	t.log.Debug("activation started", zap.Int("id", id), zap.Int("fp", len(t.frames)), zap.Int("sp", len(t.stack)))
	return id
}

// FinishActivation pops activation id. It must be the innermost one and
// must have no frames left; results are dropped from the stack.
func (t *Thread) FinishActivation(id int) error {
	if len(t.activations) == 0 || id != len(t.activations)-1 {
		return errors.InvalidState("activation %d is not the innermost of %d", id, len(t.activations))
	}
	act := t.activations[id]
	if act.fp != len(t.frames) {
		return errors.InvalidState("activation %d still has %d frames", id, len(t.frames)-act.fp)
	}
	if act.sp > len(t.stack) {
		return errors.InvalidState("activation %d stack underflow", id)
	}
	t.stack = t.stack[:act.sp]
	t.activations = t.activations[:id]
	t.log.Debug("activation finished", zap.Int("id", id))
	return nil
}

// ActivationFrameBase returns the frame count recorded at the start of
// activation id.
func (t *Thread) ActivationFrameBase(id int) (int, error) {
	if id < 0 || id >= len(t.activations) {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, []string{"activation"}, id, len(t.activations))
	}
	return t.activations[id].fp, nil
}

// HandleException unwinds the innermost activation after a failure raised
// outside interpreted code. There is no in-module exception handling, so
// the result is always ExceptionUnwound.
func (t *Thread) HandleException(err error) ExceptionResult {
	act := t.currentActivation()
	t.log.Debug("unwinding activation",
		zap.Int("activation", len(t.activations)-1),
		zap.Int("frames", len(t.frames)-act.fp),
		zap.Error(err))
	if act.fp < len(t.frames) {
		t.frames = t.frames[:act.fp]
	}
	if act.sp < len(t.stack) {
		t.stack = t.stack[:act.sp]
	}
	t.state = StateStopped
	return ExceptionUnwound
}

// Call runs funcIdx to completion in a fresh activation and returns its
// results. It is the entry point for hosts and for host functions
// re-entering the interpreter.
func (t *Thread) Call(ctx context.Context, funcIdx uint32, args ...Value) ([]Value, error) {
	outer, breakFunc, breakPC := t.state, t.breakFunc, t.breakPC
	id := t.StartActivation()
	finish := func(err error) ([]Value, error) {
		if ferr := t.FinishActivation(id); ferr != nil && err == nil {
			err = ferr
		}
		switch outer {
		case StateRunning:
			t.state = StateRunning
		case StatePaused:
			t.state = StatePaused
			t.breakFunc, t.breakPC = breakFunc, breakPC
		}
		return nil, err
	}

	if err := t.InitFrame(funcIdx, args); err != nil {
		t.HandleException(err)
		return finish(err)
	}
	state, err := t.Run(ctx, -1)
	if err != nil {
		t.HandleException(err)
		return finish(err)
	}
	switch state {
	case StateFinished:
		n := len(t.interp.module.GetFuncType(funcIdx).Results)
		act := t.currentActivation()
		results := slices.Clone(t.stack[act.sp : act.sp+n])
		if _, err := finish(nil); err != nil {
			return nil, err
		}
		return results, nil
	case StateTrapped:
		terr := t.Err()
		t.HandleException(terr)
		return finish(terr)
	case StatePaused:
		t.HandleException(nil)
		fn, pc, _ := t.BreakpointPC()
		return finish(errors.InvalidState("call paused at func %d pc %d", fn, pc))
	default:
		return finish(errors.Unwound(t.unwound))
	}
}
