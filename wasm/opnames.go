package wasm

import "fmt"

var opNames = map[byte]string{
	OpUnreachable: "unreachable", OpNop: "nop", OpBlock: "block", OpLoop: "loop",
	OpIf: "if", OpElse: "else", OpEnd: "end", OpBr: "br", OpBrIf: "br_if",
	OpBrTable: "br_table", OpReturn: "return", OpCall: "call", OpCallIndirect: "call_indirect",

	OpDrop: "drop", OpSelect: "select", OpSelectType: "select",
	OpLocalGet: "local.get", OpLocalSet: "local.set", OpLocalTee: "local.tee",
	OpGlobalGet: "global.get", OpGlobalSet: "global.set",

	OpI32Load: "i32.load", OpI64Load: "i64.load", OpF32Load: "f32.load", OpF64Load: "f64.load",
	OpI32Load8S: "i32.load8_s", OpI32Load8U: "i32.load8_u", OpI32Load16S: "i32.load16_s",
	OpI32Load16U: "i32.load16_u", OpI64Load8S: "i64.load8_s", OpI64Load8U: "i64.load8_u",
	OpI64Load16S: "i64.load16_s", OpI64Load16U: "i64.load16_u", OpI64Load32S: "i64.load32_s",
	OpI64Load32U: "i64.load32_u", OpI32Store: "i32.store", OpI64Store: "i64.store",
	OpF32Store: "f32.store", OpF64Store: "f64.store", OpI32Store8: "i32.store8",
	OpI32Store16: "i32.store16", OpI64Store8: "i64.store8", OpI64Store16: "i64.store16",
	OpI64Store32: "i64.store32", OpMemorySize: "memory.size", OpMemoryGrow: "memory.grow",

	OpI32Const: "i32.const", OpI64Const: "i64.const", OpF32Const: "f32.const", OpF64Const: "f64.const",

	OpI32Eqz: "i32.eqz", OpI32Eq: "i32.eq", OpI32Ne: "i32.ne", OpI32LtS: "i32.lt_s",
	OpI32LtU: "i32.lt_u", OpI32GtS: "i32.gt_s", OpI32GtU: "i32.gt_u", OpI32LeS: "i32.le_s",
	OpI32LeU: "i32.le_u", OpI32GeS: "i32.ge_s", OpI32GeU: "i32.ge_u",
	OpI64Eqz: "i64.eqz", OpI64Eq: "i64.eq", OpI64Ne: "i64.ne", OpI64LtS: "i64.lt_s",
	OpI64LtU: "i64.lt_u", OpI64GtS: "i64.gt_s", OpI64GtU: "i64.gt_u", OpI64LeS: "i64.le_s",
	OpI64LeU: "i64.le_u", OpI64GeS: "i64.ge_s", OpI64GeU: "i64.ge_u",
	OpF32Eq: "f32.eq", OpF32Ne: "f32.ne", OpF32Lt: "f32.lt", OpF32Gt: "f32.gt",
	OpF32Le: "f32.le", OpF32Ge: "f32.ge",
	OpF64Eq: "f64.eq", OpF64Ne: "f64.ne", OpF64Lt: "f64.lt", OpF64Gt: "f64.gt",
	OpF64Le: "f64.le", OpF64Ge: "f64.ge",

	OpI32Clz: "i32.clz", OpI32Ctz: "i32.ctz", OpI32Popcnt: "i32.popcnt", OpI32Add: "i32.add",
	OpI32Sub: "i32.sub", OpI32Mul: "i32.mul", OpI32DivS: "i32.div_s", OpI32DivU: "i32.div_u",
	OpI32RemS: "i32.rem_s", OpI32RemU: "i32.rem_u", OpI32And: "i32.and", OpI32Or: "i32.or",
	OpI32Xor: "i32.xor", OpI32Shl: "i32.shl", OpI32ShrS: "i32.shr_s", OpI32ShrU: "i32.shr_u",
	OpI32Rotl: "i32.rotl", OpI32Rotr: "i32.rotr",
	OpI64Clz: "i64.clz", OpI64Ctz: "i64.ctz", OpI64Popcnt: "i64.popcnt", OpI64Add: "i64.add",
	OpI64Sub: "i64.sub", OpI64Mul: "i64.mul", OpI64DivS: "i64.div_s", OpI64DivU: "i64.div_u",
	OpI64RemS: "i64.rem_s", OpI64RemU: "i64.rem_u", OpI64And: "i64.and", OpI64Or: "i64.or",
	OpI64Xor: "i64.xor", OpI64Shl: "i64.shl", OpI64ShrS: "i64.shr_s", OpI64ShrU: "i64.shr_u",
	OpI64Rotl: "i64.rotl", OpI64Rotr: "i64.rotr",

	OpF32Abs: "f32.abs", OpF32Neg: "f32.neg", OpF32Ceil: "f32.ceil", OpF32Floor: "f32.floor",
	OpF32Trunc: "f32.trunc", OpF32Nearest: "f32.nearest", OpF32Sqrt: "f32.sqrt",
	OpF32Add: "f32.add", OpF32Sub: "f32.sub", OpF32Mul: "f32.mul", OpF32Div: "f32.div",
	OpF32Min: "f32.min", OpF32Max: "f32.max", OpF32Copysign: "f32.copysign",
	OpF64Abs: "f64.abs", OpF64Neg: "f64.neg", OpF64Ceil: "f64.ceil", OpF64Floor: "f64.floor",
	OpF64Trunc: "f64.trunc", OpF64Nearest: "f64.nearest", OpF64Sqrt: "f64.sqrt",
	OpF64Add: "f64.add", OpF64Sub: "f64.sub", OpF64Mul: "f64.mul", OpF64Div: "f64.div",
	OpF64Min: "f64.min", OpF64Max: "f64.max", OpF64Copysign: "f64.copysign",

	OpI32WrapI64: "i32.wrap_i64", OpI32TruncF32S: "i32.trunc_f32_s", OpI32TruncF32U: "i32.trunc_f32_u",
	OpI32TruncF64S: "i32.trunc_f64_s", OpI32TruncF64U: "i32.trunc_f64_u",
	OpI64ExtendI32S: "i64.extend_i32_s", OpI64ExtendI32U: "i64.extend_i32_u",
	OpI64TruncF32S: "i64.trunc_f32_s", OpI64TruncF32U: "i64.trunc_f32_u",
	OpI64TruncF64S: "i64.trunc_f64_s", OpI64TruncF64U: "i64.trunc_f64_u",
	OpF32ConvertI32S: "f32.convert_i32_s", OpF32ConvertI32U: "f32.convert_i32_u",
	OpF32ConvertI64S: "f32.convert_i64_s", OpF32ConvertI64U: "f32.convert_i64_u",
	OpF32DemoteF64: "f32.demote_f64", OpF64ConvertI32S: "f64.convert_i32_s",
	OpF64ConvertI32U: "f64.convert_i32_u", OpF64ConvertI64S: "f64.convert_i64_s",
	OpF64ConvertI64U: "f64.convert_i64_u", OpF64PromoteF32: "f64.promote_f32",
	OpI32ReinterpretF32: "i32.reinterpret_f32", OpI64ReinterpretF64: "i64.reinterpret_f64",
	OpF32ReinterpretI32: "f32.reinterpret_i32", OpF64ReinterpretI64: "f64.reinterpret_i64",
	OpI32Extend8S: "i32.extend8_s", OpI32Extend16S: "i32.extend16_s", OpI64Extend8S: "i64.extend8_s",
	OpI64Extend16S: "i64.extend16_s", OpI64Extend32S: "i64.extend32_s",

	OpBreakpoint: "breakpoint",
}

var miscNames = map[uint32]string{
	MiscI32TruncSatF32S: "i32.trunc_sat_f32_s", MiscI32TruncSatF32U: "i32.trunc_sat_f32_u",
	MiscI32TruncSatF64S: "i32.trunc_sat_f64_s", MiscI32TruncSatF64U: "i32.trunc_sat_f64_u",
	MiscI64TruncSatF32S: "i64.trunc_sat_f32_s", MiscI64TruncSatF32U: "i64.trunc_sat_f32_u",
	MiscI64TruncSatF64S: "i64.trunc_sat_f64_s", MiscI64TruncSatF64U: "i64.trunc_sat_f64_u",
	MiscMemoryInit: "memory.init", MiscDataDrop: "data.drop",
	MiscMemoryCopy: "memory.copy", MiscMemoryFill: "memory.fill",
}

var simdNames = map[uint32]string{
	SimdV128Load: "v128.load", SimdV128Load8x8S: "v128.load8x8_s", SimdV128Load8x8U: "v128.load8x8_u",
	SimdV128Load16x4S: "v128.load16x4_s", SimdV128Load16x4U: "v128.load16x4_u",
	SimdV128Load32x2S: "v128.load32x2_s", SimdV128Load32x2U: "v128.load32x2_u",
	SimdV128Load8Splat: "v128.load8_splat", SimdV128Load16Splat: "v128.load16_splat",
	SimdV128Load32Splat: "v128.load32_splat", SimdV128Load64Splat: "v128.load64_splat",
	SimdV128Store: "v128.store", SimdV128Const: "v128.const", SimdI8x16Shuffle: "i8x16.shuffle",
	SimdI8x16Swizzle: "i8x16.swizzle", SimdI8x16Splat: "i8x16.splat", SimdI16x8Splat: "i16x8.splat",
	SimdI32x4Splat: "i32x4.splat", SimdI64x2Splat: "i64x2.splat", SimdF32x4Splat: "f32x4.splat",
	SimdF64x2Splat:        "f64x2.splat",
	SimdI8x16ExtractLaneS: "i8x16.extract_lane_s", SimdI8x16ExtractLaneU: "i8x16.extract_lane_u",
	SimdI8x16ReplaceLane: "i8x16.replace_lane", SimdI16x8ExtractLaneS: "i16x8.extract_lane_s",
	SimdI16x8ExtractLaneU: "i16x8.extract_lane_u", SimdI16x8ReplaceLane: "i16x8.replace_lane",
	SimdI32x4ExtractLane: "i32x4.extract_lane", SimdI32x4ReplaceLane: "i32x4.replace_lane",
	SimdI64x2ExtractLane: "i64x2.extract_lane", SimdI64x2ReplaceLane: "i64x2.replace_lane",
	SimdF32x4ExtractLane: "f32x4.extract_lane", SimdF32x4ReplaceLane: "f32x4.replace_lane",
	SimdF64x2ExtractLane: "f64x2.extract_lane", SimdF64x2ReplaceLane: "f64x2.replace_lane",
	SimdI32x4Eq: "i32x4.eq", SimdI32x4Ne: "i32x4.ne",
	SimdV128Not: "v128.not", SimdV128And: "v128.and", SimdV128AndNot: "v128.andnot",
	SimdV128Or: "v128.or", SimdV128Xor: "v128.xor", SimdV128Bitselect: "v128.bitselect",
	SimdV128AnyTrue: "v128.any_true", SimdV128Load32Zero: "v128.load32_zero",
	SimdV128Load64Zero: "v128.load64_zero",
	SimdI8x16Abs:       "i8x16.abs", SimdI8x16Neg: "i8x16.neg", SimdI8x16AllTrue: "i8x16.all_true",
	SimdI8x16Bitmask: "i8x16.bitmask", SimdI8x16Add: "i8x16.add", SimdI8x16Sub: "i8x16.sub",
	SimdI16x8Abs: "i16x8.abs", SimdI16x8Neg: "i16x8.neg", SimdI16x8AllTrue: "i16x8.all_true",
	SimdI16x8Bitmask: "i16x8.bitmask", SimdI16x8Add: "i16x8.add", SimdI16x8Sub: "i16x8.sub",
	SimdI16x8Mul: "i16x8.mul",
	SimdI32x4Abs: "i32x4.abs", SimdI32x4Neg: "i32x4.neg", SimdI32x4AllTrue: "i32x4.all_true",
	SimdI32x4Bitmask: "i32x4.bitmask", SimdI32x4Shl: "i32x4.shl", SimdI32x4ShrS: "i32x4.shr_s",
	SimdI32x4ShrU: "i32x4.shr_u", SimdI32x4Add: "i32x4.add", SimdI32x4Sub: "i32x4.sub",
	SimdI32x4Mul: "i32x4.mul",
	SimdI64x2Abs: "i64x2.abs", SimdI64x2Neg: "i64x2.neg", SimdI64x2AllTrue: "i64x2.all_true",
	SimdI64x2Bitmask: "i64x2.bitmask", SimdI64x2Shl: "i64x2.shl", SimdI64x2ShrS: "i64x2.shr_s",
	SimdI64x2ShrU: "i64x2.shr_u", SimdI64x2Add: "i64x2.add", SimdI64x2Sub: "i64x2.sub",
	SimdI64x2Mul: "i64x2.mul",
	SimdF32x4Abs: "f32x4.abs", SimdF32x4Neg: "f32x4.neg", SimdF32x4Sqrt: "f32x4.sqrt",
	SimdF32x4Add: "f32x4.add", SimdF32x4Sub: "f32x4.sub", SimdF32x4Mul: "f32x4.mul",
	SimdF32x4Div: "f32x4.div", SimdF32x4Min: "f32x4.min", SimdF32x4Max: "f32x4.max",
	SimdF64x2Abs: "f64x2.abs", SimdF64x2Neg: "f64x2.neg", SimdF64x2Sqrt: "f64x2.sqrt",
	SimdF64x2Add: "f64x2.add", SimdF64x2Sub: "f64x2.sub", SimdF64x2Mul: "f64x2.mul",
	SimdF64x2Div: "f64x2.div", SimdF64x2Min: "f64x2.min", SimdF64x2Max: "f64x2.max",
}

var atomicLoadStoreNames = map[uint32]string{
	AtomicNotify: "memory.atomic.notify", AtomicWait32: "memory.atomic.wait32",
	AtomicWait64: "memory.atomic.wait64", AtomicFence: "atomic.fence",
	AtomicI32Load: "i32.atomic.load", AtomicI64Load: "i64.atomic.load",
	AtomicI32Load8U: "i32.atomic.load8_u", AtomicI32Load16U: "i32.atomic.load16_u",
	AtomicI64Load8U: "i64.atomic.load8_u", AtomicI64Load16U: "i64.atomic.load16_u",
	AtomicI64Load32U: "i64.atomic.load32_u", AtomicI32Store: "i32.atomic.store",
	AtomicI64Store: "i64.atomic.store", AtomicI32Store8: "i32.atomic.store8",
	AtomicI32Store16: "i32.atomic.store16", AtomicI64Store8: "i64.atomic.store8",
	AtomicI64Store16: "i64.atomic.store16", AtomicI64Store32: "i64.atomic.store32",
}

var rmwVariants = [AtomicRmwGroup]string{
	"i32.atomic.rmw.", "i64.atomic.rmw.", "i32.atomic.rmw8.", "i32.atomic.rmw16.",
	"i64.atomic.rmw8.", "i64.atomic.rmw16.", "i64.atomic.rmw32.",
}

var rmwOps = [...]string{"add", "sub", "and", "or", "xor", "xchg", "cmpxchg"}

func atomicName(sub uint32) string {
	if n, ok := atomicLoadStoreNames[sub]; ok {
		return n
	}
	if sub >= AtomicRmwAdd && sub < AtomicRmwEnd {
		rel := sub - AtomicRmwAdd
		op, variant := rel/AtomicRmwGroup, rel%AtomicRmwGroup
		name := rmwVariants[variant] + rmwOps[op]
		if variant >= 2 {
			name += "_u"
		}
		return name
	}
	return fmt.Sprintf("atomic.0x%02x", sub)
}
