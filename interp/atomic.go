package interp

import (
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

// Results of memory.atomic.wait.
const (
	waitNotEqual = 1
	waitTimedOut = 2
)

var atomicLoadAccess = map[uint32]memAccess{
	wasm.AtomicI32Load:    {4, wasm.ValI32, false},
	wasm.AtomicI64Load:    {8, wasm.ValI64, false},
	wasm.AtomicI32Load8U:  {1, wasm.ValI32, false},
	wasm.AtomicI32Load16U: {2, wasm.ValI32, false},
	wasm.AtomicI64Load8U:  {1, wasm.ValI64, false},
	wasm.AtomicI64Load16U: {2, wasm.ValI64, false},
	wasm.AtomicI64Load32U: {4, wasm.ValI64, false},
}

var atomicStoreWidth = map[uint32]uint64{
	wasm.AtomicI32Store:   4,
	wasm.AtomicI64Store:   8,
	wasm.AtomicI32Store8:  1,
	wasm.AtomicI32Store16: 2,
	wasm.AtomicI64Store8:  1,
	wasm.AtomicI64Store16: 2,
	wasm.AtomicI64Store32: 4,
}

// rmwVariants lists the operand shape of each member of a read-modify-write
// group, in encoding order.
var rmwVariants = [wasm.AtomicRmwGroup]memAccess{
	{4, wasm.ValI32, false},
	{8, wasm.ValI64, false},
	{1, wasm.ValI32, false},
	{2, wasm.ValI32, false},
	{1, wasm.ValI64, false},
	{2, wasm.ValI64, false},
	{4, wasm.ValI64, false},
}

// atomicAddr bounds-checks first, then requires natural alignment.
func atomicAddr(mem *runtime.Memory, offset, index uint32, width uint64) (uint64, TrapReason) {
	addr, ok := boundsCheck(mem, offset, index, width)
	if !ok {
		return 0, TrapMemOutOfBounds
	}
	if addr%width != 0 {
		return 0, TrapUnalignedAtomic
	}
	return addr, TrapNone
}

func widthMask(width uint64) uint64 {
	if width == 8 {
		return ^uint64(0)
	}
	return 1<<(8*width) - 1
}

// execAtomic executes the 0xFE prefix. Threads of one instance never run in
// parallel, so every access is trivially atomic; wait never blocks.
func (t *Thread) execAtomic(in *wasm.Instruction) TrapReason {
	mem := t.interp.host.Memory()
	sub := in.Sub
	off := in.Imm.Offset

	switch {
	case sub == wasm.AtomicFence:
		return TrapNone

	case sub == wasm.AtomicNotify:
		t.pop() // waiter count
		index := t.pop().U32()
		if _, r := atomicAddr(mem, off, index, 4); r != TrapNone {
			return r
		}
		t.push(U32(0))

	case sub == wasm.AtomicWait32, sub == wasm.AtomicWait64:
		width := uint64(4)
		if sub == wasm.AtomicWait64 {
			width = 8
		}
		t.pop() // timeout
		expected := t.pop().lo
		index := t.pop().U32()
		addr, r := atomicAddr(mem, off, index, width)
		if r != TrapNone {
			return r
		}
		if !mem.Shared() {
			return TrapWaitOnUnshared
		}
		if readN(mem.Bytes()[addr:], width) != expected&widthMask(width) {
			t.push(U32(waitNotEqual))
		} else {
			t.push(U32(waitTimedOut))
		}

	case sub >= wasm.AtomicI32Load && sub <= wasm.AtomicI64Load32U:
		acc := atomicLoadAccess[sub]
		addr, r := atomicAddr(mem, off, t.pop().U32(), acc.width)
		if r != TrapNone {
			return r
		}
		t.push(Value{typ: acc.typ, lo: readN(mem.Bytes()[addr:], acc.width)})

	case sub >= wasm.AtomicI32Store && sub <= wasm.AtomicI64Store32:
		width := atomicStoreWidth[sub]
		v := t.pop()
		addr, r := atomicAddr(mem, off, t.pop().U32(), width)
		if r != TrapNone {
			return r
		}
		writeN(mem.Bytes()[addr:], width, v.lo)

	case sub >= wasm.AtomicRmwAdd && sub < wasm.AtomicRmwCmpxchg:
		acc := rmwVariants[(sub-wasm.AtomicRmwAdd)%wasm.AtomicRmwGroup]
		group := (sub - wasm.AtomicRmwAdd) / wasm.AtomicRmwGroup
		operand := t.pop().lo
		addr, r := atomicAddr(mem, off, t.pop().U32(), acc.width)
		if r != TrapNone {
			return r
		}
		b := mem.Bytes()[addr:]
		old := readN(b, acc.width)
		var next uint64
		switch group {
		case 0:
			next = old + operand
		case 1:
			next = old - operand
		case 2:
			next = old & operand
		case 3:
			next = old | operand
		case 4:
			next = old ^ operand
		default:
			next = operand
		}
		writeN(b, acc.width, next&widthMask(acc.width))
		t.push(Value{typ: acc.typ, lo: old})

	case sub >= wasm.AtomicRmwCmpxchg && sub < wasm.AtomicRmwEnd:
		acc := rmwVariants[sub-wasm.AtomicRmwCmpxchg]
		replacement := t.pop().lo
		expected := t.pop().lo
		addr, r := atomicAddr(mem, off, t.pop().U32(), acc.width)
		if r != TrapNone {
			return r
		}
		b := mem.Bytes()[addr:]
		old := readN(b, acc.width)
		if old == expected&widthMask(acc.width) {
			writeN(b, acc.width, replacement)
		}
		t.push(Value{typ: acc.typ, lo: old})
	}
	return TrapNone
}
