package interp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// ctxCheckInterval is the number of instructions between context checks.
const ctxCheckInterval = 1024

func (t *Thread) push(v Value) {
	t.stack = append(t.stack, v)
}

func (t *Thread) pop() Value {
	n := len(t.stack) - 1
	v := t.stack[n]
	t.stack = t.stack[:n]
	return v
}

func (t *Thread) peek() *Value {
	return &t.stack[len(t.stack)-1]
}

// operandHeight is the operand stack height of the top frame.
func (t *Thread) operandHeight() int {
	if len(t.frames) == 0 {
		return len(t.stack)
	}
	return len(t.stack) - t.frames[len(t.frames)-1].localsEnd()
}

func (t *Thread) commitPC(pc int) {
	if len(t.frames) > t.currentActivation().fp {
		t.frames[len(t.frames)-1].pc = pc
	}
}

func (t *Thread) trace(kind TraceKind, fn uint32, pc int, op byte) {
	tr := t.interp.cfg.Tracer
	if tr == nil {
		return
	}
	ev := TraceEvent{
		Kind:   kind,
		Func:   fn,
		PC:     pc,
		Opcode: op,
		Depth:  len(t.frames),
		Height: t.operandHeight(),
	}
	if kind == TraceTrap {
		ev.Trap = t.trapReason
	}
	tr.Trace(ev)
}

// stackTransfer moves the top arity values down to dest and drops
// everything above them.
func (t *Thread) stackTransfer(dest, arity int) {
	if arity > 0 {
		copy(t.stack[dest:], t.stack[len(t.stack)-arity:])
	}
	t.stack = t.stack[:dest+arity]
}

// doBreak performs the control transfer recorded for the branch site at pc
// and returns the pc delta.
func (t *Thread) doBreak(code *Code, pc int) int {
	ct := code.Side.Lookup(pc)
	t.stackTransfer(len(t.stack)-ct.SPDiff, ct.Arity)
	return ct.PCDiff
}

func (t *Thread) doTrap(reason TrapReason, code *Code, pc int) {
	t.state = StateTrapped
	t.trapReason = reason
	t.trapFunc = code.Func
	t.trapPC = pc
	t.commitPC(pc)
	t.log.Debug("trap", zap.Stringer("reason", reason), zap.Uint32("func", code.Func), zap.Int("pc", pc))
	t.trace(TraceTrap, code.Func, pc, code.Orig[pc])
}

// abort stops the activation on a fatal construction error.
func (t *Thread) abort(err error) {
	t.log.Warn("activation aborted", zap.Error(err))
	t.runErr = err
	t.HandleException(err)
}

// doReturn pops the top frame, keeping its results at the frame base. It
// reports false when the activation has no frames left.
func (t *Thread) doReturn(code **Code, pc *int) bool {
	top := t.frames[len(t.frames)-1]
	t.stackTransfer(top.sp, len(top.code.Type.Results))
	t.frames = t.frames[:len(t.frames)-1]
	t.trace(TraceReturn, top.code.Func, len(top.code.Orig), wasm.OpReturn)
	if len(t.frames) <= t.currentActivation().fp {
		t.state = StateFinished
		return false
	}
	caller := &t.frames[len(t.frames)-1]
	in, err := wasm.DecodeInstruction(caller.code.Orig, caller.pc)
	if err != nil {
		t.abort(err)
		return false
	}
	*code = caller.code
	*pc = caller.pc + in.Len
	return true
}

// doCall enters an interpreted function whose arguments are on the stack.
func (t *Thread) doCall(target *Code, code **Code, pc *int) bool {
	t.commitPC(*pc)
	t.pushFrame(target)
	t.trace(TraceCall, target.Func, 0, wasm.OpCall)
	if !t.stackCheck() {
		return false
	}
	*code = target
	*pc = 0
	return true
}

// stackCheck enforces MaxStackBytes after a frame push. On overflow the
// thread traps at the call site that pushed the top frame and the
// activation is unwound. A frame without a caller in its activation traps
// at its own entry.
func (t *Thread) stackCheck() bool {
	used := len(t.stack)*valueBytes + len(t.frames)*frameBytes
	if used <= t.interp.cfg.MaxStackBytes {
		return true
	}
	n := len(t.frames)
	fn, pc, op := t.frames[n-1].code.Func, 0, wasm.OpCall
	if n-1 > t.currentActivation().fp {
		caller := t.frames[n-2]
		fn, pc, op = caller.code.Func, caller.pc, caller.code.Orig[caller.pc]
	}
	t.trapReason = TrapStackOverflow
	t.trapFunc, t.trapPC = fn, pc
	t.log.Debug("stack overflow",
		zap.Uint32("func", fn), zap.Int("pc", pc), zap.Int("frames", n), zap.Int("bytes", used))
	t.trace(TraceTrap, fn, pc, op)
	t.HandleException(nil)
	t.state = StateTrapped
	return false
}

// execute runs the top frame until the activation finishes, traps, unwinds
// or pauses.
func (t *Thread) execute(ctx context.Context, steps int) {
	fr := &t.frames[len(t.frames)-1]
	code, pc := fr.code, fr.pc
	resumeAtBreak := t.breakPC == pc && t.breakFunc == code.Func
	t.breakPC = -1
	hitBreak := false
	debug := t.interp.cfg.Debug
	tracing := t.interp.cfg.Tracer != nil
	host := t.interp.host
	tick := 0

loop:
	for {
		if code.Body[pc] == wasm.OpBreakpoint && !resumeAtBreak {
			hitBreak = true
			t.log.Debug("breakpoint hit", zap.Uint32("func", code.Func), zap.Int("pc", pc))
			t.trace(TraceBreak, code.Func, pc, code.Orig[pc])
			break
		}
		resumeAtBreak = false
		if steps == 0 {
			break
		}
		if steps > 0 {
			steps--
		}
		if tick++; tick == ctxCheckInterval {
			tick = 0
			if err := ctx.Err(); err != nil {
				t.runErr = err
				break
			}
		}

		in, err := wasm.DecodeInstruction(code.Orig, pc)
		if err != nil {
			t.abort(errors.New(errors.PhaseRuntime, errors.KindMalformed).At(code.Func, pc).Cause(err).Build())
			return
		}
		if tracing {
			t.trace(TraceStep, code.Func, pc, in.Opcode)
		}
		expect := -1
		if debug && !isControl(in.Opcode) {
			pop, push, _ := stackEffect(t.interp.module, &in)
			expect = len(t.stack) - pop + push
		}
		n := in.Len

		switch op := in.Opcode; op {
		case wasm.OpUnreachable:
			t.doTrap(TrapUnreachable, code, pc)
			return
		case wasm.OpNop, wasm.OpBlock, wasm.OpLoop, wasm.OpEnd:
		case wasm.OpIf:
			if t.pop().U32() == 0 {
				n = code.Side.Lookup(pc).PCDiff
			}
		case wasm.OpElse:
			n = code.Side.Lookup(pc).PCDiff
		case wasm.OpBr:
			n = t.doBreak(code, pc)
		case wasm.OpBrIf:
			if t.pop().U32() != 0 {
				n = t.doBreak(code, pc)
			}
		case wasm.OpBrTable:
			key := t.pop().U32()
			if last := uint32(len(in.Imm.Labels) - 1); key > last {
				key = last
			}
			n = int(key) + t.doBreak(code, pc+int(key))
		case wasm.OpReturn:
			if !t.doReturn(&code, &pc) {
				return
			}
			if t.breakFlags&BreakAfterReturn != 0 {
				hitBreak, steps = true, 0
			}
			continue
		case wasm.OpCall:
			target, err := t.interp.codes.Get(in.Imm.Index)
			if err != nil {
				t.abort(err)
				return
			}
			if !target.Imported {
				if !t.doCall(target, &code, &pc) {
					return
				}
				if t.breakFlags&BreakAfterCall != 0 {
					hitBreak, steps = true, 0
				}
				continue
			}
			t.commitPC(pc)
			if t.callExternal(ctx, target) == callExternalUnwound {
				return
			}
			if t.breakFlags&BreakAfterCall != 0 {
				hitBreak, steps = true, 0
			}
		case wasm.OpCallIndirect:
			entry := t.pop().U32()
			t.commitPC(pc)
			outcome, target := t.callIndirect(ctx, entry, in.Imm.Index)
			switch outcome {
			case callInternal:
				if !t.doCall(target, &code, &pc) {
					return
				}
				if t.breakFlags&BreakAfterCall != 0 {
					hitBreak, steps = true, 0
				}
				continue loop
			case callInvalidFunc:
				t.doTrap(TrapFuncInvalid, code, pc)
				return
			case callSigMismatch:
				t.doTrap(TrapFuncSigMismatch, code, pc)
				return
			case callExternalUnwound:
				return
			case callExternalReturned:
				if t.breakFlags&BreakAfterCall != 0 {
					hitBreak, steps = true, 0
				}
			}
		case wasm.OpDrop:
			t.stack = t.stack[:len(t.stack)-1]
		case wasm.OpSelect, wasm.OpSelectType:
			cond := t.pop().U32()
			b := t.pop()
			if cond == 0 {
				*t.peek() = b
			}
		case wasm.OpLocalGet:
			t.push(t.stack[t.frames[len(t.frames)-1].sp+int(in.Imm.Index)])
		case wasm.OpLocalSet:
			v := t.pop()
			t.stack[t.frames[len(t.frames)-1].sp+int(in.Imm.Index)] = v
		case wasm.OpLocalTee:
			t.stack[t.frames[len(t.frames)-1].sp+int(in.Imm.Index)] = *t.peek()
		case wasm.OpGlobalGet:
			g := host.Global(in.Imm.Index)
			t.push(Value{typ: g.Type.ValType, lo: g.Lo, hi: g.Hi})
		case wasm.OpGlobalSet:
			v := t.pop()
			g := host.Global(in.Imm.Index)
			g.Lo, g.Hi = v.lo, v.hi
		case wasm.OpI32Const:
			t.push(I32(int32(in.Imm.Value)))
		case wasm.OpI64Const:
			t.push(I64(int64(in.Imm.Value)))
		case wasm.OpF32Const:
			t.push(F32Bits(uint32(in.Imm.Value)))
		case wasm.OpF64Const:
			t.push(F64Bits(in.Imm.Value))
		case wasm.OpMemorySize:
			var pages uint32
			if mem := host.Memory(); mem != nil {
				pages = mem.Pages()
			}
			t.push(U32(pages))
		case wasm.OpMemoryGrow:
			t.push(I32(t.memoryGrow(t.pop().U32())))
			if steps > 0 {
				steps = max(0, steps-t.interp.cfg.GrowMemoryCost)
			}
		default:
			var r TrapReason
			switch {
			case op >= wasm.OpI32Load && op <= wasm.OpI64Store32:
				r = t.execMemory(&in)
			case op >= wasm.OpI32Eqz && op <= wasm.OpI64Extend32S:
				r = t.execNumeric(op)
			case op == wasm.OpPrefixMisc:
				r = t.execMisc(&in)
			case op == wasm.OpPrefixAtomic:
				r = t.execAtomic(&in)
			case op == wasm.OpPrefixSIMD:
				r = t.execSIMD(&in)
			default:
				t.abort(errors.Malformed(code.Func, pc, "unsupported instruction %s", in.Name()))
				return
			}
			if r != TrapNone {
				t.doTrap(r, code, pc)
				return
			}
		}

		if expect >= 0 && len(t.stack) != expect {
			panic(fmt.Sprintf("interp: %s at func %d pc %d left stack height %d, want %d",
				in.Name(), code.Func, pc, len(t.stack), expect))
		}

		pc += n
		if pc == len(code.Orig) {
			if !t.doReturn(&code, &pc) {
				return
			}
			if t.breakFlags&BreakAfterReturn != 0 {
				hitBreak, steps = true, 0
			}
		}
	}

	t.state = StatePaused
	if hitBreak {
		t.breakFunc, t.breakPC = code.Func, pc
	}
	t.commitPC(pc)
}
