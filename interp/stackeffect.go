package interp

import "github.com/wippyai/wasm-interp/wasm"

// stackEffect returns how many operands an instruction pops and pushes.
// Structured control instructions report (0,0) except for the consumed
// condition or key; block parameters stay on the stack and are accounted
// for by the label heights. ok is false for instructions the interpreter
// does not execute.
func stackEffect(m *wasm.Module, in *wasm.Instruction) (pop, push int, ok bool) {
	switch op := in.Opcode; {
	case op == wasm.OpUnreachable, op == wasm.OpNop, op == wasm.OpBlock,
		op == wasm.OpLoop, op == wasm.OpElse, op == wasm.OpEnd,
		op == wasm.OpBr, op == wasm.OpReturn:
		return 0, 0, true
	case op == wasm.OpIf, op == wasm.OpBrIf, op == wasm.OpBrTable:
		return 1, 0, true
	case op == wasm.OpCall:
		ft := m.GetFuncType(in.Imm.Index)
		if ft == nil {
			return 0, 0, false
		}
		return len(ft.Params), len(ft.Results), true
	case op == wasm.OpCallIndirect:
		if int(in.Imm.Index) >= len(m.Types) {
			return 0, 0, false
		}
		ft := &m.Types[in.Imm.Index]
		return len(ft.Params) + 1, len(ft.Results), true
	case op == wasm.OpDrop:
		return 1, 0, true
	case op == wasm.OpSelect, op == wasm.OpSelectType:
		return 3, 1, true
	case op == wasm.OpLocalGet, op == wasm.OpGlobalGet:
		return 0, 1, true
	case op == wasm.OpLocalSet, op == wasm.OpGlobalSet:
		return 1, 0, true
	case op == wasm.OpLocalTee:
		return 1, 1, true
	case op >= wasm.OpI32Load && op <= wasm.OpI64Load32U:
		return 1, 1, true
	case op >= wasm.OpI32Store && op <= wasm.OpI64Store32:
		return 2, 0, true
	case op == wasm.OpMemorySize:
		return 0, 1, true
	case op == wasm.OpMemoryGrow:
		return 1, 1, true
	case op >= wasm.OpI32Const && op <= wasm.OpF64Const:
		return 0, 1, true
	case op == wasm.OpI32Eqz, op == wasm.OpI64Eqz:
		return 1, 1, true
	case op >= wasm.OpI32Eq && op <= wasm.OpF64Ge:
		return 2, 1, true
	case op >= wasm.OpI32Clz && op <= wasm.OpI32Popcnt,
		op >= wasm.OpI64Clz && op <= wasm.OpI64Popcnt,
		op >= wasm.OpF32Abs && op <= wasm.OpF32Sqrt,
		op >= wasm.OpF64Abs && op <= wasm.OpF64Sqrt:
		return 1, 1, true
	case op >= wasm.OpI32Add && op <= wasm.OpI32Rotr,
		op >= wasm.OpI64Add && op <= wasm.OpI64Rotr,
		op >= wasm.OpF32Add && op <= wasm.OpF32Copysign,
		op >= wasm.OpF64Add && op <= wasm.OpF64Copysign:
		return 2, 1, true
	case op >= wasm.OpI32WrapI64 && op <= wasm.OpI64Extend32S:
		return 1, 1, true
	case op == wasm.OpPrefixMisc:
		return miscStackEffect(in.Sub)
	case op == wasm.OpPrefixAtomic:
		return atomicStackEffect(in.Sub)
	case op == wasm.OpPrefixSIMD:
		return simdStackEffect(in.Sub)
	}
	return 0, 0, false
}

func miscStackEffect(sub uint32) (int, int, bool) {
	switch {
	case sub <= wasm.MiscI64TruncSatF64U:
		return 1, 1, true
	case sub == wasm.MiscMemoryInit, sub == wasm.MiscMemoryCopy, sub == wasm.MiscMemoryFill:
		return 3, 0, true
	case sub == wasm.MiscDataDrop:
		return 0, 0, true
	}
	return 0, 0, false
}

func atomicStackEffect(sub uint32) (int, int, bool) {
	switch {
	case sub == wasm.AtomicNotify:
		return 2, 1, true
	case sub == wasm.AtomicWait32, sub == wasm.AtomicWait64:
		return 3, 1, true
	case sub == wasm.AtomicFence:
		return 0, 0, true
	case sub >= wasm.AtomicI32Load && sub <= wasm.AtomicI64Load32U:
		return 1, 1, true
	case sub >= wasm.AtomicI32Store && sub <= wasm.AtomicI64Store32:
		return 2, 0, true
	case sub >= wasm.AtomicRmwAdd && sub < wasm.AtomicRmwCmpxchg:
		return 2, 1, true
	case sub >= wasm.AtomicRmwCmpxchg && sub < wasm.AtomicRmwEnd:
		return 3, 1, true
	}
	return 0, 0, false
}

func simdStackEffect(sub uint32) (int, int, bool) {
	switch sub {
	case wasm.SimdV128Load, wasm.SimdV128Load8x8S, wasm.SimdV128Load8x8U,
		wasm.SimdV128Load16x4S, wasm.SimdV128Load16x4U, wasm.SimdV128Load32x2S,
		wasm.SimdV128Load32x2U, wasm.SimdV128Load8Splat, wasm.SimdV128Load16Splat,
		wasm.SimdV128Load32Splat, wasm.SimdV128Load64Splat,
		wasm.SimdV128Load32Zero, wasm.SimdV128Load64Zero:
		return 1, 1, true
	case wasm.SimdV128Store:
		return 2, 0, true
	case wasm.SimdV128Const:
		return 0, 1, true
	case wasm.SimdI8x16Shuffle, wasm.SimdI8x16Swizzle:
		return 2, 1, true
	case wasm.SimdI8x16Splat, wasm.SimdI16x8Splat, wasm.SimdI32x4Splat,
		wasm.SimdI64x2Splat, wasm.SimdF32x4Splat, wasm.SimdF64x2Splat:
		return 1, 1, true
	case wasm.SimdI8x16ExtractLaneS, wasm.SimdI8x16ExtractLaneU,
		wasm.SimdI16x8ExtractLaneS, wasm.SimdI16x8ExtractLaneU,
		wasm.SimdI32x4ExtractLane, wasm.SimdI64x2ExtractLane,
		wasm.SimdF32x4ExtractLane, wasm.SimdF64x2ExtractLane:
		return 1, 1, true
	case wasm.SimdI8x16ReplaceLane, wasm.SimdI16x8ReplaceLane,
		wasm.SimdI32x4ReplaceLane, wasm.SimdI64x2ReplaceLane,
		wasm.SimdF32x4ReplaceLane, wasm.SimdF64x2ReplaceLane:
		return 2, 1, true
	case wasm.SimdV128Bitselect:
		return 3, 1, true
	case wasm.SimdV128Not, wasm.SimdV128AnyTrue,
		wasm.SimdI8x16Abs, wasm.SimdI8x16Neg, wasm.SimdI8x16AllTrue, wasm.SimdI8x16Bitmask,
		wasm.SimdI16x8Abs, wasm.SimdI16x8Neg, wasm.SimdI16x8AllTrue, wasm.SimdI16x8Bitmask,
		wasm.SimdI32x4Abs, wasm.SimdI32x4Neg, wasm.SimdI32x4AllTrue, wasm.SimdI32x4Bitmask,
		wasm.SimdI64x2Abs, wasm.SimdI64x2Neg, wasm.SimdI64x2AllTrue, wasm.SimdI64x2Bitmask,
		wasm.SimdF32x4Abs, wasm.SimdF32x4Neg, wasm.SimdF32x4Sqrt,
		wasm.SimdF64x2Abs, wasm.SimdF64x2Neg, wasm.SimdF64x2Sqrt:
		return 1, 1, true
	case wasm.SimdI32x4Eq, wasm.SimdI32x4Ne,
		wasm.SimdV128And, wasm.SimdV128AndNot, wasm.SimdV128Or, wasm.SimdV128Xor,
		wasm.SimdI8x16Add, wasm.SimdI8x16Sub,
		wasm.SimdI16x8Add, wasm.SimdI16x8Sub, wasm.SimdI16x8Mul,
		wasm.SimdI32x4Shl, wasm.SimdI32x4ShrS, wasm.SimdI32x4ShrU,
		wasm.SimdI32x4Add, wasm.SimdI32x4Sub, wasm.SimdI32x4Mul,
		wasm.SimdI64x2Shl, wasm.SimdI64x2ShrS, wasm.SimdI64x2ShrU,
		wasm.SimdI64x2Add, wasm.SimdI64x2Sub, wasm.SimdI64x2Mul,
		wasm.SimdF32x4Add, wasm.SimdF32x4Sub, wasm.SimdF32x4Mul, wasm.SimdF32x4Div,
		wasm.SimdF32x4Min, wasm.SimdF32x4Max,
		wasm.SimdF64x2Add, wasm.SimdF64x2Sub, wasm.SimdF64x2Mul, wasm.SimdF64x2Div,
		wasm.SimdF64x2Min, wasm.SimdF64x2Max:
		return 2, 1, true
	}
	return 0, 0, false
}

// isControl reports whether an instruction transfers control or changes
// frames, so its effect on the operand stack is not local.
func isControl(op byte) bool {
	return op <= wasm.OpCallIndirect
}
