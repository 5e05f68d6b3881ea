package interp

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

var le = binary.LittleEndian

// boundsCheck returns the effective address of a width-byte access at
// offset+index. The index is masked with the allocation mask even when the
// checks pass.
func boundsCheck(mem *runtime.Memory, offset, index uint32, width uint64) (uint64, bool) {
	if mem == nil {
		return 0, false
	}
	size := mem.Size()
	if width > size || uint64(offset) > size-width || uint64(index) > size-width-uint64(offset) {
		return 0, false
	}
	return uint64(offset) + (uint64(index) & mem.Mask()), true
}

// rangeCheck validates [start, start+n) for bulk operations.
func rangeCheck(size uint64, start, n uint32) bool {
	return uint64(start)+uint64(n) <= size
}

func (t *Thread) memoryGrow(delta uint32) int32 {
	mem := t.interp.host.Memory()
	if mem == nil {
		return -1
	}
	prev, ok := mem.Grow(delta)
	if !ok {
		return -1
	}
	return int32(prev)
}

type memAccess struct {
	width  uint64
	typ    wasm.ValType
	signed bool
}

var loadAccess = map[byte]memAccess{
	wasm.OpI32Load:    {4, wasm.ValI32, false},
	wasm.OpI64Load:    {8, wasm.ValI64, false},
	wasm.OpF32Load:    {4, wasm.ValF32, false},
	wasm.OpF64Load:    {8, wasm.ValF64, false},
	wasm.OpI32Load8S:  {1, wasm.ValI32, true},
	wasm.OpI32Load8U:  {1, wasm.ValI32, false},
	wasm.OpI32Load16S: {2, wasm.ValI32, true},
	wasm.OpI32Load16U: {2, wasm.ValI32, false},
	wasm.OpI64Load8S:  {1, wasm.ValI64, true},
	wasm.OpI64Load8U:  {1, wasm.ValI64, false},
	wasm.OpI64Load16S: {2, wasm.ValI64, true},
	wasm.OpI64Load16U: {2, wasm.ValI64, false},
	wasm.OpI64Load32S: {4, wasm.ValI64, true},
	wasm.OpI64Load32U: {4, wasm.ValI64, false},
}

var storeWidth = map[byte]uint64{
	wasm.OpI32Store:   4,
	wasm.OpI64Store:   8,
	wasm.OpF32Store:   4,
	wasm.OpF64Store:   8,
	wasm.OpI32Store8:  1,
	wasm.OpI32Store16: 2,
	wasm.OpI64Store8:  1,
	wasm.OpI64Store16: 2,
	wasm.OpI64Store32: 4,
}

// readN reads a little-endian value of width bytes.
func readN(b []byte, width uint64) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(le.Uint16(b))
	case 4:
		return uint64(le.Uint32(b))
	default:
		return le.Uint64(b)
	}
}

func writeN(b []byte, width, v uint64) {
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		le.PutUint16(b, uint16(v))
	case 4:
		le.PutUint32(b, uint32(v))
	default:
		le.PutUint64(b, v)
	}
}

// signExtend sign-extends the low width bytes of v to 64 bits.
func signExtend(v, width uint64) uint64 {
	shift := 64 - 8*width
	return uint64(int64(v<<shift) >> shift)
}

// execMemory executes the plain loads and stores.
func (t *Thread) execMemory(in *wasm.Instruction) TrapReason {
	mem := t.interp.host.Memory()
	if acc, ok := loadAccess[in.Opcode]; ok {
		index := t.pop().U32()
		addr, ok := boundsCheck(mem, in.Imm.Offset, index, acc.width)
		if !ok {
			return TrapMemOutOfBounds
		}
		raw := readN(mem.Bytes()[addr:], acc.width)
		if acc.signed {
			raw = signExtend(raw, acc.width)
		}
		if acc.typ == wasm.ValI32 || acc.typ == wasm.ValF32 {
			raw &= math.MaxUint32
		}
		t.push(Value{typ: acc.typ, lo: raw})
		return TrapNone
	}
	width := storeWidth[in.Opcode]
	v := t.pop()
	index := t.pop().U32()
	addr, ok := boundsCheck(mem, in.Imm.Offset, index, width)
	if !ok {
		return TrapMemOutOfBounds
	}
	writeN(mem.Bytes()[addr:], width, v.lo)
	return TrapNone
}

// execMisc executes the 0xFC prefix: saturating truncation and bulk memory.
func (t *Thread) execMisc(in *wasm.Instruction) TrapReason {
	if in.Sub <= wasm.MiscI64TruncSatF64U {
		t.push(satTrunc(in.Sub, floatOperand(t.pop())))
		return TrapNone
	}
	host := t.interp.host
	mem := host.Memory()
	switch in.Sub {
	case wasm.MiscMemoryInit:
		n, src, dst := t.pop().U32(), t.pop().U32(), t.pop().U32()
		seg := host.DataSegment(in.Imm.Index)
		if mem == nil || !rangeCheck(uint64(len(seg)), src, n) || !rangeCheck(mem.Size(), dst, n) {
			return TrapMemOutOfBounds
		}
		copy(mem.Bytes()[dst:uint64(dst)+uint64(n)], seg[src:])
	case wasm.MiscDataDrop:
		host.DropData(in.Imm.Index)
	case wasm.MiscMemoryCopy:
		n, src, dst := t.pop().U32(), t.pop().U32(), t.pop().U32()
		if mem == nil || !rangeCheck(mem.Size(), src, n) || !rangeCheck(mem.Size(), dst, n) {
			return TrapMemOutOfBounds
		}
		b := mem.Bytes()
		copy(b[dst:uint64(dst)+uint64(n)], b[src:uint64(src)+uint64(n)])
	case wasm.MiscMemoryFill:
		n, val, dst := t.pop().U32(), t.pop().U32(), t.pop().U32()
		if mem == nil || !rangeCheck(mem.Size(), dst, n) {
			return TrapMemOutOfBounds
		}
		region := mem.Bytes()[dst : uint64(dst)+uint64(n)]
		for i := range region {
			region[i] = byte(val)
		}
	}
	return TrapNone
}
