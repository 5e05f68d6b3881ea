package interp

import (
	"math"

	"github.com/wippyai/wasm-interp/wasm"
)

type v128 = [16]byte

func (t *Thread) pushV128(b v128) {
	t.push(V128Bytes(b))
}

// lanewise applies f to each width-byte lane of a and b.
func lanewise(a, b v128, width uint64, f func(x, y uint64) uint64) v128 {
	var out v128
	for i := uint64(0); i < 16; i += width {
		writeN(out[i:], width, f(readN(a[i:], width), readN(b[i:], width)))
	}
	return out
}

func laneMap(a v128, width uint64, f func(x uint64) uint64) v128 {
	return lanewise(a, a, width, func(x, _ uint64) uint64 { return f(x) })
}

func splat(width, v uint64) v128 {
	var out v128
	for i := uint64(0); i < 16; i += width {
		writeN(out[i:], width, v)
	}
	return out
}

// simdLaneWidth maps integer lane instruction groups to their lane width.
func simdLaneWidth(sub uint32) uint64 {
	switch {
	case sub >= wasm.SimdI8x16Abs && sub < wasm.SimdI16x8Abs:
		return 1
	case sub >= wasm.SimdI16x8Abs && sub < wasm.SimdI32x4Abs:
		return 2
	case sub >= wasm.SimdI32x4Abs && sub < wasm.SimdI64x2Abs:
		return 4
	default:
		return 8
	}
}

// execSIMD executes the supported subset of the 0xFD prefix.
func (t *Thread) execSIMD(in *wasm.Instruction) TrapReason {
	sub := in.Sub
	switch sub {
	case wasm.SimdV128Load, wasm.SimdV128Load8x8S, wasm.SimdV128Load8x8U,
		wasm.SimdV128Load16x4S, wasm.SimdV128Load16x4U, wasm.SimdV128Load32x2S,
		wasm.SimdV128Load32x2U, wasm.SimdV128Load8Splat, wasm.SimdV128Load16Splat,
		wasm.SimdV128Load32Splat, wasm.SimdV128Load64Splat,
		wasm.SimdV128Load32Zero, wasm.SimdV128Load64Zero:
		return t.simdLoad(in)
	case wasm.SimdV128Store:
		v := t.pop().Bytes16()
		mem := t.interp.host.Memory()
		addr, ok := boundsCheck(mem, in.Imm.Offset, t.pop().U32(), 16)
		if !ok {
			return TrapMemOutOfBounds
		}
		copy(mem.Bytes()[addr:addr+16], v[:])
	case wasm.SimdV128Const:
		t.pushV128(in.Imm.V128)
	case wasm.SimdI8x16Shuffle:
		b, a := t.pop().Bytes16(), t.pop().Bytes16()
		var out v128
		for i, l := range in.Imm.V128 {
			if l < 16 {
				out[i] = a[l]
			} else {
				out[i] = b[l&15]
			}
		}
		t.pushV128(out)
	case wasm.SimdI8x16Swizzle:
		s, a := t.pop().Bytes16(), t.pop().Bytes16()
		var out v128
		for i, l := range s {
			if l < 16 {
				out[i] = a[l]
			}
		}
		t.pushV128(out)
	case wasm.SimdI8x16Splat:
		t.pushV128(splat(1, t.pop().lo))
	case wasm.SimdI16x8Splat:
		t.pushV128(splat(2, t.pop().lo))
	case wasm.SimdI32x4Splat, wasm.SimdF32x4Splat:
		t.pushV128(splat(4, t.pop().lo))
	case wasm.SimdI64x2Splat, wasm.SimdF64x2Splat:
		t.pushV128(splat(8, t.pop().lo))
	case wasm.SimdI8x16ExtractLaneS, wasm.SimdI8x16ExtractLaneU,
		wasm.SimdI16x8ExtractLaneS, wasm.SimdI16x8ExtractLaneU,
		wasm.SimdI32x4ExtractLane, wasm.SimdI64x2ExtractLane,
		wasm.SimdF32x4ExtractLane, wasm.SimdF64x2ExtractLane:
		t.simdExtract(sub, uint64(in.Imm.Lane))
	case wasm.SimdI8x16ReplaceLane, wasm.SimdI16x8ReplaceLane,
		wasm.SimdI32x4ReplaceLane, wasm.SimdI64x2ReplaceLane,
		wasm.SimdF32x4ReplaceLane, wasm.SimdF64x2ReplaceLane:
		t.simdReplace(sub, uint64(in.Imm.Lane))
	case wasm.SimdI32x4Eq, wasm.SimdI32x4Ne:
		b, a := t.pop().Bytes16(), t.pop().Bytes16()
		eq := sub == wasm.SimdI32x4Eq
		t.pushV128(lanewise(a, b, 4, func(x, y uint64) uint64 {
			if (x == y) == eq {
				return math.MaxUint32
			}
			return 0
		}))
	case wasm.SimdV128Not:
		lo, hi := t.pop().V128()
		t.push(V128(^lo, ^hi))
	case wasm.SimdV128And, wasm.SimdV128AndNot, wasm.SimdV128Or, wasm.SimdV128Xor:
		blo, bhi := t.pop().V128()
		alo, ahi := t.pop().V128()
		switch sub {
		case wasm.SimdV128And:
			t.push(V128(alo&blo, ahi&bhi))
		case wasm.SimdV128AndNot:
			t.push(V128(alo&^blo, ahi&^bhi))
		case wasm.SimdV128Or:
			t.push(V128(alo|blo, ahi|bhi))
		default:
			t.push(V128(alo^blo, ahi^bhi))
		}
	case wasm.SimdV128Bitselect:
		clo, chi := t.pop().V128()
		blo, bhi := t.pop().V128()
		alo, ahi := t.pop().V128()
		t.push(V128(alo&clo|blo&^clo, ahi&chi|bhi&^chi))
	case wasm.SimdV128AnyTrue:
		lo, hi := t.pop().V128()
		t.push(U32(b2i(lo|hi != 0)))
	default:
		if sub >= wasm.SimdF32x4Abs {
			t.simdFloat(sub)
		} else {
			t.simdInt(sub)
		}
	}
	return TrapNone
}

func (t *Thread) simdLoad(in *wasm.Instruction) TrapReason {
	var width uint64
	switch in.Sub {
	case wasm.SimdV128Load:
		width = 16
	case wasm.SimdV128Load8Splat:
		width = 1
	case wasm.SimdV128Load16Splat:
		width = 2
	case wasm.SimdV128Load32Splat, wasm.SimdV128Load32Zero:
		width = 4
	default:
		width = 8
	}
	mem := t.interp.host.Memory()
	addr, ok := boundsCheck(mem, in.Imm.Offset, t.pop().U32(), width)
	if !ok {
		return TrapMemOutOfBounds
	}
	src := mem.Bytes()[addr : addr+width]
	var out v128
	switch in.Sub {
	case wasm.SimdV128Load:
		copy(out[:], src)
	case wasm.SimdV128Load8Splat, wasm.SimdV128Load16Splat,
		wasm.SimdV128Load32Splat, wasm.SimdV128Load64Splat:
		out = splat(width, readN(src, width))
	case wasm.SimdV128Load32Zero, wasm.SimdV128Load64Zero:
		copy(out[:], src)
	default:
		// 8x8, 16x4 and 32x2 widen each half-width element.
		half := uint64(1) << ((in.Sub - wasm.SimdV128Load8x8S) / 2)
		signed := (in.Sub-wasm.SimdV128Load8x8S)%2 == 0
		for i := uint64(0); i < 8/half; i++ {
			v := readN(src[i*half:], half)
			if signed {
				v = signExtend(v, half)
			}
			writeN(out[i*half*2:], half*2, v)
		}
	}
	t.pushV128(out)
	return TrapNone
}

func (t *Thread) simdExtract(sub uint32, lane uint64) {
	v := t.pop().Bytes16()
	switch sub {
	case wasm.SimdI8x16ExtractLaneS:
		t.push(U32(uint32(signExtend(uint64(v[lane]), 1))))
	case wasm.SimdI8x16ExtractLaneU:
		t.push(U32(uint32(v[lane])))
	case wasm.SimdI16x8ExtractLaneS:
		t.push(U32(uint32(signExtend(readN(v[lane*2:], 2), 2))))
	case wasm.SimdI16x8ExtractLaneU:
		t.push(U32(uint32(readN(v[lane*2:], 2))))
	case wasm.SimdI32x4ExtractLane:
		t.push(U32(uint32(readN(v[lane*4:], 4))))
	case wasm.SimdI64x2ExtractLane:
		t.push(U64(readN(v[lane*8:], 8)))
	case wasm.SimdF32x4ExtractLane:
		t.push(F32Bits(uint32(readN(v[lane*4:], 4))))
	default:
		t.push(F64Bits(readN(v[lane*8:], 8)))
	}
}

func (t *Thread) simdReplace(sub uint32, lane uint64) {
	x := t.pop().lo
	v := t.pop().Bytes16()
	var width uint64
	switch sub {
	case wasm.SimdI8x16ReplaceLane:
		width = 1
	case wasm.SimdI16x8ReplaceLane:
		width = 2
	case wasm.SimdI32x4ReplaceLane, wasm.SimdF32x4ReplaceLane:
		width = 4
	default:
		width = 8
	}
	writeN(v[lane*width:], width, x)
	t.pushV128(v)
}

func (t *Thread) simdInt(sub uint32) {
	w := simdLaneWidth(sub)
	bitsPerLane := 8 * w
	switch sub {
	case wasm.SimdI8x16Abs, wasm.SimdI16x8Abs, wasm.SimdI32x4Abs, wasm.SimdI64x2Abs:
		t.pushV128(laneMap(t.pop().Bytes16(), w, func(x uint64) uint64 {
			if int64(signExtend(x, w)) < 0 {
				return -x
			}
			return x
		}))
	case wasm.SimdI8x16Neg, wasm.SimdI16x8Neg, wasm.SimdI32x4Neg, wasm.SimdI64x2Neg:
		t.pushV128(laneMap(t.pop().Bytes16(), w, func(x uint64) uint64 { return -x }))
	case wasm.SimdI8x16AllTrue, wasm.SimdI16x8AllTrue, wasm.SimdI32x4AllTrue, wasm.SimdI64x2AllTrue:
		v := t.pop().Bytes16()
		all := true
		for i := uint64(0); i < 16; i += w {
			all = all && readN(v[i:], w) != 0
		}
		t.push(U32(b2i(all)))
	case wasm.SimdI8x16Bitmask, wasm.SimdI16x8Bitmask, wasm.SimdI32x4Bitmask, wasm.SimdI64x2Bitmask:
		v := t.pop().Bytes16()
		var mask uint32
		for i := uint64(0); i < 16/w; i++ {
			if readN(v[i*w:], w)>>(bitsPerLane-1) != 0 {
				mask |= 1 << i
			}
		}
		t.push(U32(mask))
	case wasm.SimdI32x4Shl, wasm.SimdI64x2Shl,
		wasm.SimdI32x4ShrS, wasm.SimdI64x2ShrS,
		wasm.SimdI32x4ShrU, wasm.SimdI64x2ShrU:
		s := t.pop().U64() % bitsPerLane
		v := t.pop().Bytes16()
		t.pushV128(laneMap(v, w, func(x uint64) uint64 {
			switch sub {
			case wasm.SimdI32x4Shl, wasm.SimdI64x2Shl:
				return x << s
			case wasm.SimdI32x4ShrS, wasm.SimdI64x2ShrS:
				return uint64(int64(signExtend(x, w)) >> s)
			default:
				return x >> s
			}
		}))
	default:
		b, a := t.pop().Bytes16(), t.pop().Bytes16()
		t.pushV128(lanewise(a, b, w, func(x, y uint64) uint64 {
			switch sub {
			case wasm.SimdI8x16Add, wasm.SimdI16x8Add, wasm.SimdI32x4Add, wasm.SimdI64x2Add:
				return x + y
			case wasm.SimdI8x16Sub, wasm.SimdI16x8Sub, wasm.SimdI32x4Sub, wasm.SimdI64x2Sub:
				return x - y
			default:
				return x * y
			}
		}))
	}
}

func (t *Thread) simdFloat(sub uint32) {
	if sub >= wasm.SimdF64x2Abs {
		t.simdF64(sub)
		return
	}
	f := func(x uint64) float32 { return math.Float32frombits(uint32(x)) }
	bitsOf := func(r float32) uint64 {
		if r != r {
			t.nondeterminism = true
		}
		return uint64(math.Float32bits(r))
	}
	switch sub {
	case wasm.SimdF32x4Abs:
		t.pushV128(laneMap(t.pop().Bytes16(), 4, func(x uint64) uint64 { return x &^ uint64(f32SignBit) }))
	case wasm.SimdF32x4Neg:
		t.pushV128(laneMap(t.pop().Bytes16(), 4, func(x uint64) uint64 { return x ^ uint64(f32SignBit) }))
	case wasm.SimdF32x4Sqrt:
		t.pushV128(laneMap(t.pop().Bytes16(), 4, func(x uint64) uint64 {
			return bitsOf(float32(math.Sqrt(float64(f(x)))))
		}))
	default:
		b, a := t.pop().Bytes16(), t.pop().Bytes16()
		t.pushV128(lanewise(a, b, 4, func(x, y uint64) uint64 {
			p, q := f(x), f(y)
			switch sub {
			case wasm.SimdF32x4Add:
				return bitsOf(p + q)
			case wasm.SimdF32x4Sub:
				return bitsOf(p - q)
			case wasm.SimdF32x4Mul:
				return bitsOf(p * q)
			case wasm.SimdF32x4Div:
				return bitsOf(p / q)
			case wasm.SimdF32x4Min:
				return bitsOf(min(p, q))
			default:
				return bitsOf(max(p, q))
			}
		}))
	}
}

func (t *Thread) simdF64(sub uint32) {
	bitsOf := func(r float64) uint64 {
		if r != r {
			t.nondeterminism = true
		}
		return math.Float64bits(r)
	}
	switch sub {
	case wasm.SimdF64x2Abs:
		t.pushV128(laneMap(t.pop().Bytes16(), 8, func(x uint64) uint64 { return x &^ f64SignBit }))
	case wasm.SimdF64x2Neg:
		t.pushV128(laneMap(t.pop().Bytes16(), 8, func(x uint64) uint64 { return x ^ f64SignBit }))
	case wasm.SimdF64x2Sqrt:
		t.pushV128(laneMap(t.pop().Bytes16(), 8, func(x uint64) uint64 {
			return bitsOf(math.Sqrt(math.Float64frombits(x)))
		}))
	default:
		b, a := t.pop().Bytes16(), t.pop().Bytes16()
		t.pushV128(lanewise(a, b, 8, func(x, y uint64) uint64 {
			p, q := math.Float64frombits(x), math.Float64frombits(y)
			switch sub {
			case wasm.SimdF64x2Add:
				return bitsOf(p + q)
			case wasm.SimdF64x2Sub:
				return bitsOf(p - q)
			case wasm.SimdF64x2Mul:
				return bitsOf(p * q)
			case wasm.SimdF64x2Div:
				return bitsOf(p / q)
			case wasm.SimdF64x2Min:
				return bitsOf(min(p, q))
			default:
				return bitsOf(max(p, q))
			}
		}))
	}
}
