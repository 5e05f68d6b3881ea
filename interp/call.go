package interp

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/wasm"
)

// callOutcome classifies the result of dispatching a call.
type callOutcome uint8

const (
	callInternal         callOutcome = iota // interpret the resolved target
	callInvalidFunc                         // table index out of range
	callSigMismatch                         // null entry or wrong signature
	callExternalReturned                    // host call returned, results pushed
	callExternalUnwound                     // host call failed, activation unwound
)

func (o callOutcome) String() string {
	switch o {
	case callInternal:
		return "internal"
	case callInvalidFunc:
		return "invalid_func"
	case callSigMismatch:
		return "signature_mismatch"
	case callExternalReturned:
		return "external_returned"
	case callExternalUnwound:
		return "external_unwound"
	default:
		return "unknown"
	}
}

// callIndirect resolves entry through the table and checks it against the
// expected type. Imported targets are invoked here; interpreted targets are
// returned for the caller to enter.
func (t *Thread) callIndirect(ctx context.Context, entry, typeIdx uint32) (callOutcome, *Code) {
	host := t.interp.host
	tab := host.Table()
	if tab == nil || entry >= tab.Size() {
		return callInvalidFunc, nil
	}
	fn, ok := tab.Get(entry)
	if !ok {
		return callSigMismatch, nil
	}
	calleeType, ok := t.interp.module.FuncTypeIndex(fn)
	if !ok {
		return callInvalidFunc, nil
	}
	if calleeType != typeIdx && host.CanonicalSig(calleeType) != host.CanonicalSig(typeIdx) {
		return callSigMismatch, nil
	}
	code, err := t.interp.codes.Get(fn)
	if err != nil {
		t.abort(err)
		return callExternalUnwound, nil
	}
	if code.Imported {
		return t.callExternal(ctx, code), nil
	}
	return callInternal, code
}

// callExternal invokes an imported function. Arguments are taken from the
// stack and encoded one slot per scalar, two per v128; results come back in
// the same buffer. A host error unwinds the current activation.
func (t *Thread) callExternal(ctx context.Context, code *Code) callOutcome {
	ft := code.Type
	base := len(t.stack) - len(ft.Params)
	buf := make([]uint64, 0, max(slotCount(ft.Params), slotCount(ft.Results)))
	for _, v := range t.stack[base:] {
		buf = v.AppendSlots(buf)
	}
	buf = buf[:cap(buf)]
	t.stack = t.stack[:base]

	t.trace(TraceHostCall, code.Func, 0, wasm.OpCall)
	if err := t.interp.host.CallImport(WithThread(ctx, t), code.Func, buf); err != nil {
		t.log.Debug("host call failed", zap.Uint32("func", code.Func), zap.Error(err))
		t.unwound = err
		t.HandleException(err)
		return callExternalUnwound
	}

	off := 0
	for _, rt := range ft.Results {
		v, n := ValueFromSlots(rt, buf[off:])
		t.push(v)
		off += n
	}
	// A re-entrant call may have left the thread finished.
	t.state = StateRunning
	return callExternalReturned
}

func slotCount(types []wasm.ValType) int {
	n := 0
	for _, vt := range types {
		n += vt.Slots()
	}
	return n
}
