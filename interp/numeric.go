package interp

import (
	"math"
	"math/bits"

	"github.com/wippyai/wasm-interp/wasm"
)

func b2i(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// pushF32 pushes an arithmetic result and records NaNs as possible
// nondeterminism.
func (t *Thread) pushF32(v float32) {
	if v != v {
		t.nondeterminism = true
	}
	t.push(F32(v))
}

func (t *Thread) pushF64(v float64) {
	if v != v {
		t.nondeterminism = true
	}
	t.push(F64(v))
}

// execNumeric executes comparison, arithmetic and conversion instructions.
func (t *Thread) execNumeric(op byte) TrapReason {
	switch {
	case op == wasm.OpI32Eqz:
		t.push(U32(b2i(t.pop().U32() == 0)))
	case op == wasm.OpI64Eqz:
		t.push(U32(b2i(t.pop().U64() == 0)))
	case op >= wasm.OpI32Eq && op <= wasm.OpI32GeU:
		b, a := t.pop().U32(), t.pop().U32()
		t.push(U32(b2i(cmpI32(op, a, b))))
	case op >= wasm.OpI64Eq && op <= wasm.OpI64GeU:
		b, a := t.pop().U64(), t.pop().U64()
		t.push(U32(b2i(cmpI64(op, a, b))))
	case op >= wasm.OpF32Eq && op <= wasm.OpF32Ge:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(U32(b2i(cmpF(op-wasm.OpF32Eq, float64(a), float64(b)))))
	case op >= wasm.OpF64Eq && op <= wasm.OpF64Ge:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(U32(b2i(cmpF(op-wasm.OpF64Eq, a, b))))
	case op >= wasm.OpI32Clz && op <= wasm.OpI32Popcnt:
		a := t.pop().U32()
		switch op {
		case wasm.OpI32Clz:
			t.push(U32(uint32(bits.LeadingZeros32(a))))
		case wasm.OpI32Ctz:
			t.push(U32(uint32(bits.TrailingZeros32(a))))
		default:
			t.push(U32(uint32(bits.OnesCount32(a))))
		}
	case op >= wasm.OpI32Add && op <= wasm.OpI32Rotr:
		b, a := t.pop().U32(), t.pop().U32()
		r, trap := binI32(op, a, b)
		if trap != TrapNone {
			return trap
		}
		t.push(U32(r))
	case op >= wasm.OpI64Clz && op <= wasm.OpI64Popcnt:
		a := t.pop().U64()
		switch op {
		case wasm.OpI64Clz:
			t.push(U64(uint64(bits.LeadingZeros64(a))))
		case wasm.OpI64Ctz:
			t.push(U64(uint64(bits.TrailingZeros64(a))))
		default:
			t.push(U64(uint64(bits.OnesCount64(a))))
		}
	case op >= wasm.OpI64Add && op <= wasm.OpI64Rotr:
		b, a := t.pop().U64(), t.pop().U64()
		r, trap := binI64(op, a, b)
		if trap != TrapNone {
			return trap
		}
		t.push(U64(r))
	case op >= wasm.OpF32Abs && op <= wasm.OpF32Copysign:
		t.execF32(op)
	case op >= wasm.OpF64Abs && op <= wasm.OpF64Copysign:
		t.execF64(op)
	default:
		return t.execConversion(op)
	}
	return TrapNone
}

func cmpI32(op byte, a, b uint32) bool {
	switch op {
	case wasm.OpI32Eq:
		return a == b
	case wasm.OpI32Ne:
		return a != b
	case wasm.OpI32LtS:
		return int32(a) < int32(b)
	case wasm.OpI32LtU:
		return a < b
	case wasm.OpI32GtS:
		return int32(a) > int32(b)
	case wasm.OpI32GtU:
		return a > b
	case wasm.OpI32LeS:
		return int32(a) <= int32(b)
	case wasm.OpI32LeU:
		return a <= b
	case wasm.OpI32GeS:
		return int32(a) >= int32(b)
	default:
		return a >= b
	}
}

func cmpI64(op byte, a, b uint64) bool {
	switch op {
	case wasm.OpI64Eq:
		return a == b
	case wasm.OpI64Ne:
		return a != b
	case wasm.OpI64LtS:
		return int64(a) < int64(b)
	case wasm.OpI64LtU:
		return a < b
	case wasm.OpI64GtS:
		return int64(a) > int64(b)
	case wasm.OpI64GtU:
		return a > b
	case wasm.OpI64LeS:
		return int64(a) <= int64(b)
	case wasm.OpI64LeU:
		return a <= b
	case wasm.OpI64GeS:
		return int64(a) >= int64(b)
	default:
		return a >= b
	}
}

// cmpF evaluates eq, ne, lt, gt, le, ge selected by their offset from eq.
func cmpF(rel byte, a, b float64) bool {
	switch rel {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a > b
	case 4:
		return a <= b
	default:
		return a >= b
	}
}

func binI32(op byte, a, b uint32) (uint32, TrapReason) {
	switch op {
	case wasm.OpI32Add:
		return a + b, TrapNone
	case wasm.OpI32Sub:
		return a - b, TrapNone
	case wasm.OpI32Mul:
		return a * b, TrapNone
	case wasm.OpI32DivS:
		if b == 0 {
			return 0, TrapDivByZero
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0, TrapDivUnrepresentable
		}
		return uint32(int32(a) / int32(b)), TrapNone
	case wasm.OpI32DivU:
		if b == 0 {
			return 0, TrapDivByZero
		}
		return a / b, TrapNone
	case wasm.OpI32RemS:
		if b == 0 {
			return 0, TrapRemByZero
		}
		if int32(b) == -1 {
			return 0, TrapNone
		}
		return uint32(int32(a) % int32(b)), TrapNone
	case wasm.OpI32RemU:
		if b == 0 {
			return 0, TrapRemByZero
		}
		return a % b, TrapNone
	case wasm.OpI32And:
		return a & b, TrapNone
	case wasm.OpI32Or:
		return a | b, TrapNone
	case wasm.OpI32Xor:
		return a ^ b, TrapNone
	case wasm.OpI32Shl:
		return a << (b & 31), TrapNone
	case wasm.OpI32ShrS:
		return uint32(int32(a) >> (b & 31)), TrapNone
	case wasm.OpI32ShrU:
		return a >> (b & 31), TrapNone
	case wasm.OpI32Rotl:
		return bits.RotateLeft32(a, int(b&31)), TrapNone
	default:
		return bits.RotateLeft32(a, -int(b&31)), TrapNone
	}
}

func binI64(op byte, a, b uint64) (uint64, TrapReason) {
	switch op {
	case wasm.OpI64Add:
		return a + b, TrapNone
	case wasm.OpI64Sub:
		return a - b, TrapNone
	case wasm.OpI64Mul:
		return a * b, TrapNone
	case wasm.OpI64DivS:
		if b == 0 {
			return 0, TrapDivByZero
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			return 0, TrapDivUnrepresentable
		}
		return uint64(int64(a) / int64(b)), TrapNone
	case wasm.OpI64DivU:
		if b == 0 {
			return 0, TrapDivByZero
		}
		return a / b, TrapNone
	case wasm.OpI64RemS:
		if b == 0 {
			return 0, TrapRemByZero
		}
		if int64(b) == -1 {
			return 0, TrapNone
		}
		return uint64(int64(a) % int64(b)), TrapNone
	case wasm.OpI64RemU:
		if b == 0 {
			return 0, TrapRemByZero
		}
		return a % b, TrapNone
	case wasm.OpI64And:
		return a & b, TrapNone
	case wasm.OpI64Or:
		return a | b, TrapNone
	case wasm.OpI64Xor:
		return a ^ b, TrapNone
	case wasm.OpI64Shl:
		return a << (b & 63), TrapNone
	case wasm.OpI64ShrS:
		return uint64(int64(a) >> (b & 63)), TrapNone
	case wasm.OpI64ShrU:
		return a >> (b & 63), TrapNone
	case wasm.OpI64Rotl:
		return bits.RotateLeft64(a, int(b&63)), TrapNone
	default:
		return bits.RotateLeft64(a, -int(b&63)), TrapNone
	}
}

const (
	f32SignBit = uint32(1) << 31
	f64SignBit = uint64(1) << 63
)

func (t *Thread) execF32(op byte) {
	switch op {
	case wasm.OpF32Abs:
		t.push(F32Bits(t.pop().F32Bits() &^ f32SignBit))
		return
	case wasm.OpF32Neg:
		t.push(F32Bits(t.pop().F32Bits() ^ f32SignBit))
		return
	case wasm.OpF32Ceil:
		t.pushF32(float32(math.Ceil(float64(t.pop().F32()))))
		return
	case wasm.OpF32Floor:
		t.pushF32(float32(math.Floor(float64(t.pop().F32()))))
		return
	case wasm.OpF32Trunc:
		t.pushF32(float32(math.Trunc(float64(t.pop().F32()))))
		return
	case wasm.OpF32Nearest:
		t.pushF32(float32(math.RoundToEven(float64(t.pop().F32()))))
		return
	case wasm.OpF32Sqrt:
		t.pushF32(float32(math.Sqrt(float64(t.pop().F32()))))
		return
	}
	b, a := t.pop(), t.pop()
	x, y := a.F32(), b.F32()
	switch op {
	case wasm.OpF32Add:
		t.pushF32(x + y)
	case wasm.OpF32Sub:
		t.pushF32(x - y)
	case wasm.OpF32Mul:
		t.pushF32(x * y)
	case wasm.OpF32Div:
		t.pushF32(x / y)
	case wasm.OpF32Min:
		t.pushF32(min(x, y))
	case wasm.OpF32Max:
		t.pushF32(max(x, y))
	case wasm.OpF32Copysign:
		t.push(F32Bits(a.F32Bits()&^f32SignBit | b.F32Bits()&f32SignBit))
	}
}

func (t *Thread) execF64(op byte) {
	switch op {
	case wasm.OpF64Abs:
		t.push(F64Bits(t.pop().F64Bits() &^ f64SignBit))
		return
	case wasm.OpF64Neg:
		t.push(F64Bits(t.pop().F64Bits() ^ f64SignBit))
		return
	case wasm.OpF64Ceil:
		t.pushF64(math.Ceil(t.pop().F64()))
		return
	case wasm.OpF64Floor:
		t.pushF64(math.Floor(t.pop().F64()))
		return
	case wasm.OpF64Trunc:
		t.pushF64(math.Trunc(t.pop().F64()))
		return
	case wasm.OpF64Nearest:
		t.pushF64(math.RoundToEven(t.pop().F64()))
		return
	case wasm.OpF64Sqrt:
		t.pushF64(math.Sqrt(t.pop().F64()))
		return
	}
	b, a := t.pop(), t.pop()
	x, y := a.F64(), b.F64()
	switch op {
	case wasm.OpF64Add:
		t.pushF64(x + y)
	case wasm.OpF64Sub:
		t.pushF64(x - y)
	case wasm.OpF64Mul:
		t.pushF64(x * y)
	case wasm.OpF64Div:
		t.pushF64(x / y)
	case wasm.OpF64Min:
		t.pushF64(min(x, y))
	case wasm.OpF64Max:
		t.pushF64(max(x, y))
	case wasm.OpF64Copysign:
		t.push(F64Bits(a.F64Bits()&^f64SignBit | b.F64Bits()&f64SignBit))
	}
}

// Truncation is defined when the operand lies strictly inside these open
// intervals (or the half-open ones for signed lower bounds that are exactly
// representable).
func truncI32(a float64) (int32, bool) {
	if a > -2147483649.0 && a < 2147483648.0 {
		return int32(a), true
	}
	return 0, false
}

func truncU32(a float64) (uint32, bool) {
	if a > -1.0 && a < 4294967296.0 {
		return uint32(a), true
	}
	return 0, false
}

func truncI64(a float64) (int64, bool) {
	if a >= -9223372036854775808.0 && a < 9223372036854775808.0 {
		return int64(a), true
	}
	return 0, false
}

func truncU64(a float64) (uint64, bool) {
	if a > -1.0 && a < 18446744073709551616.0 {
		return uint64(a), true
	}
	return 0, false
}

func (t *Thread) execConversion(op byte) TrapReason {
	switch op {
	case wasm.OpI32WrapI64:
		t.push(U32(uint32(t.pop().U64())))
	case wasm.OpI32TruncF32S, wasm.OpI32TruncF64S:
		v, ok := truncI32(floatOperand(t.pop()))
		if !ok {
			return TrapFloatUnrepresentable
		}
		t.push(I32(v))
	case wasm.OpI32TruncF32U, wasm.OpI32TruncF64U:
		v, ok := truncU32(floatOperand(t.pop()))
		if !ok {
			return TrapFloatUnrepresentable
		}
		t.push(U32(v))
	case wasm.OpI64ExtendI32S:
		t.push(I64(int64(t.pop().I32())))
	case wasm.OpI64ExtendI32U:
		t.push(U64(uint64(t.pop().U32())))
	case wasm.OpI64TruncF32S, wasm.OpI64TruncF64S:
		v, ok := truncI64(floatOperand(t.pop()))
		if !ok {
			return TrapFloatUnrepresentable
		}
		t.push(I64(v))
	case wasm.OpI64TruncF32U, wasm.OpI64TruncF64U:
		v, ok := truncU64(floatOperand(t.pop()))
		if !ok {
			return TrapFloatUnrepresentable
		}
		t.push(U64(v))
	case wasm.OpF32ConvertI32S:
		t.push(F32(float32(t.pop().I32())))
	case wasm.OpF32ConvertI32U:
		t.push(F32(float32(t.pop().U32())))
	case wasm.OpF32ConvertI64S:
		t.push(F32(float32(t.pop().I64())))
	case wasm.OpF32ConvertI64U:
		t.push(F32(float32(t.pop().U64())))
	case wasm.OpF32DemoteF64:
		t.pushF32(float32(t.pop().F64()))
	case wasm.OpF64ConvertI32S:
		t.push(F64(float64(t.pop().I32())))
	case wasm.OpF64ConvertI32U:
		t.push(F64(float64(t.pop().U32())))
	case wasm.OpF64ConvertI64S:
		t.push(F64(float64(t.pop().I64())))
	case wasm.OpF64ConvertI64U:
		t.push(F64(float64(t.pop().U64())))
	case wasm.OpF64PromoteF32:
		t.pushF64(float64(t.pop().F32()))
	case wasm.OpI32ReinterpretF32:
		t.push(U32(t.pop().F32Bits()))
	case wasm.OpI64ReinterpretF64:
		t.push(U64(t.pop().F64Bits()))
	case wasm.OpF32ReinterpretI32:
		t.push(F32Bits(t.pop().U32()))
	case wasm.OpF64ReinterpretI64:
		t.push(F64Bits(t.pop().U64()))
	case wasm.OpI32Extend8S:
		t.push(I32(int32(int8(t.pop().U32()))))
	case wasm.OpI32Extend16S:
		t.push(I32(int32(int16(t.pop().U32()))))
	case wasm.OpI64Extend8S:
		t.push(I64(int64(int8(t.pop().U64()))))
	case wasm.OpI64Extend16S:
		t.push(I64(int64(int16(t.pop().U64()))))
	case wasm.OpI64Extend32S:
		t.push(I64(int64(int32(t.pop().U64()))))
	}
	return TrapNone
}

// floatOperand widens an f32 or f64 operand. The conversion is exact.
func floatOperand(v Value) float64 {
	if v.typ == wasm.ValF32 {
		return float64(v.F32())
	}
	return v.F64()
}

// satTrunc implements the saturating truncations of the 0xFC prefix.
func satTrunc(sub uint32, a float64) Value {
	switch sub {
	case wasm.MiscI32TruncSatF32S, wasm.MiscI32TruncSatF64S:
		switch {
		case a != a:
			return I32(0)
		case a <= math.MinInt32:
			return I32(math.MinInt32)
		case a >= math.MaxInt32:
			return I32(math.MaxInt32)
		}
		return I32(int32(a))
	case wasm.MiscI32TruncSatF32U, wasm.MiscI32TruncSatF64U:
		switch {
		case a != a, a <= 0:
			return U32(0)
		case a >= math.MaxUint32:
			return U32(math.MaxUint32)
		}
		return U32(uint32(a))
	case wasm.MiscI64TruncSatF32S, wasm.MiscI64TruncSatF64S:
		switch {
		case a != a:
			return I64(0)
		case a <= math.MinInt64:
			return I64(math.MinInt64)
		case a >= math.MaxInt64:
			return I64(math.MaxInt64)
		}
		return I64(int64(a))
	default:
		switch {
		case a != a, a <= 0:
			return U64(0)
		case a >= math.MaxUint64:
			return U64(math.MaxUint64)
		}
		return U64(uint64(a))
	}
}
