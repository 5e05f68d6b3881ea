package wasm

import (
	"encoding/binary"
	"math"
)

// CodeBuilder assembles a function body one instruction at a time.
// Methods return the builder so instructions can be chained.
type CodeBuilder struct {
	buf []byte
}

// NewCode returns an empty builder.
func NewCode() *CodeBuilder {
	return &CodeBuilder{}
}

// Bytes returns the assembled code.
func (c *CodeBuilder) Bytes() []byte {
	return c.buf
}

// Len returns the current code length, which is the pc of the next instruction.
func (c *CodeBuilder) Len() int {
	return len(c.buf)
}

// Op appends an opcode without immediates.
func (c *CodeBuilder) Op(ops ...byte) *CodeBuilder {
	c.buf = append(c.buf, ops...)
	return c
}

// Raw appends arbitrary bytes.
func (c *CodeBuilder) Raw(b ...byte) *CodeBuilder {
	c.buf = append(c.buf, b...)
	return c
}

// U32 appends an unsigned LEB128 immediate.
func (c *CodeBuilder) U32(v uint32) *CodeBuilder {
	c.buf = AppendU32(c.buf, v)
	return c
}

func (c *CodeBuilder) blockOp(op byte, bt int64) *CodeBuilder {
	c.buf = append(c.buf, op)
	c.buf = AppendS64(c.buf, bt)
	return c
}

// Block opens a block with block type bt (BlockType* or a type index).
func (c *CodeBuilder) Block(bt int64) *CodeBuilder { return c.blockOp(OpBlock, bt) }

// Loop opens a loop.
func (c *CodeBuilder) Loop(bt int64) *CodeBuilder { return c.blockOp(OpLoop, bt) }

// If opens an if.
func (c *CodeBuilder) If(bt int64) *CodeBuilder { return c.blockOp(OpIf, bt) }

// Else appends else.
func (c *CodeBuilder) Else() *CodeBuilder { return c.Op(OpElse) }

// End appends end.
func (c *CodeBuilder) End() *CodeBuilder { return c.Op(OpEnd) }

// Br appends br depth.
func (c *CodeBuilder) Br(depth uint32) *CodeBuilder { return c.Op(OpBr).U32(depth) }

// BrIf appends br_if depth.
func (c *CodeBuilder) BrIf(depth uint32) *CodeBuilder { return c.Op(OpBrIf).U32(depth) }

// BrTable appends br_table; the last depth is the default target.
func (c *CodeBuilder) BrTable(depths ...uint32) *CodeBuilder {
	c.Op(OpBrTable).U32(uint32(len(depths) - 1))
	for _, d := range depths {
		c.U32(d)
	}
	return c
}

// Call appends call funcIdx.
func (c *CodeBuilder) Call(funcIdx uint32) *CodeBuilder { return c.Op(OpCall).U32(funcIdx) }

// CallIndirect appends call_indirect through table 0.
func (c *CodeBuilder) CallIndirect(typeIdx uint32) *CodeBuilder {
	return c.Op(OpCallIndirect).U32(typeIdx).U32(0)
}

// LocalGet appends local.get.
func (c *CodeBuilder) LocalGet(idx uint32) *CodeBuilder { return c.Op(OpLocalGet).U32(idx) }

// LocalSet appends local.set.
func (c *CodeBuilder) LocalSet(idx uint32) *CodeBuilder { return c.Op(OpLocalSet).U32(idx) }

// LocalTee appends local.tee.
func (c *CodeBuilder) LocalTee(idx uint32) *CodeBuilder { return c.Op(OpLocalTee).U32(idx) }

// GlobalGet appends global.get.
func (c *CodeBuilder) GlobalGet(idx uint32) *CodeBuilder { return c.Op(OpGlobalGet).U32(idx) }

// GlobalSet appends global.set.
func (c *CodeBuilder) GlobalSet(idx uint32) *CodeBuilder { return c.Op(OpGlobalSet).U32(idx) }

// Mem appends a load or store with the given alignment exponent and offset.
func (c *CodeBuilder) Mem(op byte, align, offset uint32) *CodeBuilder {
	return c.Op(op).U32(align).U32(offset)
}

// MemorySize appends memory.size.
func (c *CodeBuilder) MemorySize() *CodeBuilder { return c.Op(OpMemorySize, 0) }

// MemoryGrow appends memory.grow.
func (c *CodeBuilder) MemoryGrow() *CodeBuilder { return c.Op(OpMemoryGrow, 0) }

// I32Const appends i32.const.
func (c *CodeBuilder) I32Const(v int32) *CodeBuilder {
	c.buf = AppendS32(append(c.buf, OpI32Const), v)
	return c
}

// I64Const appends i64.const.
func (c *CodeBuilder) I64Const(v int64) *CodeBuilder {
	c.buf = AppendS64(append(c.buf, OpI64Const), v)
	return c
}

// F32Const appends f32.const.
func (c *CodeBuilder) F32Const(v float32) *CodeBuilder {
	return c.F32Bits(math.Float32bits(v))
}

// F32Bits appends f32.const with an exact bit pattern.
func (c *CodeBuilder) F32Bits(bits uint32) *CodeBuilder {
	c.buf = binary.LittleEndian.AppendUint32(append(c.buf, OpF32Const), bits)
	return c
}

// F64Const appends f64.const.
func (c *CodeBuilder) F64Const(v float64) *CodeBuilder {
	return c.F64Bits(math.Float64bits(v))
}

// F64Bits appends f64.const with an exact bit pattern.
func (c *CodeBuilder) F64Bits(bits uint64) *CodeBuilder {
	c.buf = binary.LittleEndian.AppendUint64(append(c.buf, OpF64Const), bits)
	return c
}

// Misc appends a 0xFC-prefixed instruction followed by u32 immediates.
func (c *CodeBuilder) Misc(sub uint32, imms ...uint32) *CodeBuilder {
	c.Op(OpPrefixMisc).U32(sub)
	for _, v := range imms {
		c.U32(v)
	}
	return c
}

// Atomic appends a 0xFE-prefixed memory instruction.
func (c *CodeBuilder) Atomic(sub uint32, align, offset uint32) *CodeBuilder {
	c.Op(OpPrefixAtomic).U32(sub)
	if sub == AtomicFence {
		return c.Op(0)
	}
	return c.U32(align).U32(offset)
}

// SIMD appends a 0xFD-prefixed instruction followed by raw immediate bytes.
func (c *CodeBuilder) SIMD(sub uint32, imm ...byte) *CodeBuilder {
	return c.Op(OpPrefixSIMD).U32(sub).Raw(imm...)
}

// SIMDMem appends a 0xFD-prefixed memory instruction.
func (c *CodeBuilder) SIMDMem(sub uint32, align, offset uint32) *CodeBuilder {
	return c.Op(OpPrefixSIMD).U32(sub).U32(align).U32(offset)
}

// V128Const appends v128.const.
func (c *CodeBuilder) V128Const(b [16]byte) *CodeBuilder {
	return c.SIMD(SimdV128Const, b[:]...)
}
