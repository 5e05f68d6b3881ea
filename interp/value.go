package interp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wippyai/wasm-interp/wasm"
)

// Value is a typed WebAssembly value. Scalars are stored as raw bits in the
// low word; v128 uses both words with lanes 0-7 in the low word.
type Value struct {
	typ wasm.ValType
	lo  uint64
	hi  uint64
}

// I32 makes an i32 value.
func I32(v int32) Value { return Value{typ: wasm.ValI32, lo: uint64(uint32(v))} }

// U32 makes an i32 value from its unsigned bits.
func U32(v uint32) Value { return Value{typ: wasm.ValI32, lo: uint64(v)} }

// I64 makes an i64 value.
func I64(v int64) Value { return Value{typ: wasm.ValI64, lo: uint64(v)} }

// U64 makes an i64 value from its unsigned bits.
func U64(v uint64) Value { return Value{typ: wasm.ValI64, lo: v} }

// F32 makes an f32 value.
func F32(v float32) Value { return F32Bits(math.Float32bits(v)) }

// F32Bits makes an f32 value from its IEEE bits.
func F32Bits(b uint32) Value { return Value{typ: wasm.ValF32, lo: uint64(b)} }

// F64 makes an f64 value.
func F64(v float64) Value { return F64Bits(math.Float64bits(v)) }

// F64Bits makes an f64 value from its IEEE bits.
func F64Bits(b uint64) Value { return Value{typ: wasm.ValF64, lo: b} }

// V128 makes a v128 value from its two halves.
func V128(lo, hi uint64) Value { return Value{typ: wasm.ValV128, lo: lo, hi: hi} }

// V128Bytes makes a v128 value from little-endian bytes.
func V128Bytes(b [16]byte) Value {
	return V128(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:]))
}

// Zero returns the zero value of t.
func Zero(t wasm.ValType) Value { return Value{typ: t} }

// Type returns the value type.
func (v Value) Type() wasm.ValType { return v.typ }

func (v Value) I32() int32            { return int32(uint32(v.lo)) }
func (v Value) U32() uint32           { return uint32(v.lo) }
func (v Value) I64() int64            { return int64(v.lo) }
func (v Value) U64() uint64           { return v.lo }
func (v Value) F32() float32          { return math.Float32frombits(uint32(v.lo)) }
func (v Value) F32Bits() uint32       { return uint32(v.lo) }
func (v Value) F64() float64          { return math.Float64frombits(v.lo) }
func (v Value) F64Bits() uint64       { return v.lo }
func (v Value) V128() (lo, hi uint64) { return v.lo, v.hi }

// Bytes16 returns a v128 value as little-endian bytes.
func (v Value) Bytes16() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], v.lo)
	binary.LittleEndian.PutUint64(b[8:], v.hi)
	return b
}

// Equal reports bitwise equality. NaNs compare equal only when their bits do.
func (v Value) Equal(o Value) bool {
	return v.typ == o.typ && v.lo == o.lo && v.hi == o.hi
}

func (v Value) String() string {
	switch v.typ {
	case wasm.ValI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case wasm.ValI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case wasm.ValF32:
		return fmt.Sprintf("f32:%g", v.F32())
	case wasm.ValF64:
		return fmt.Sprintf("f64:%g", v.F64())
	case wasm.ValV128:
		return fmt.Sprintf("v128:%016x%016x", v.hi, v.lo)
	default:
		return "<invalid>"
	}
}

// AppendSlots appends the host-call encoding of v: one slot per scalar,
// two for v128.
func (v Value) AppendSlots(dst []uint64) []uint64 {
	if v.typ == wasm.ValV128 {
		return append(dst, v.lo, v.hi)
	}
	return append(dst, v.lo)
}

// ValueFromSlots decodes a value of type t from host-call slots and returns
// it with the number of slots consumed.
func ValueFromSlots(t wasm.ValType, slots []uint64) (Value, int) {
	switch t {
	case wasm.ValV128:
		return V128(slots[0], slots[1]), 2
	case wasm.ValI32, wasm.ValF32:
		return Value{typ: t, lo: slots[0] & 0xFFFFFFFF}, 1
	default:
		return Value{typ: t, lo: slots[0]}, 1
	}
}

// ValuesToSlots encodes values for a host call.
func ValuesToSlots(vals []Value) []uint64 {
	out := make([]uint64, 0, len(vals))
	for _, v := range vals {
		out = v.AppendSlots(out)
	}
	return out
}

// ValuesFromSlots decodes a sequence of typed values.
func ValuesFromSlots(types []wasm.ValType, slots []uint64) []Value {
	out := make([]Value, 0, len(types))
	off := 0
	for _, t := range types {
		v, n := ValueFromSlots(t, slots[off:])
		out = append(out, v)
		off += n
	}
	return out
}
