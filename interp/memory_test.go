package interp

import (
	"context"
	"math"
	"testing"

	"github.com/wippyai/wasm-interp/wasm"
)

// withMemory builds a one-function module over a single page of memory.
func withMemory(t *testing.T, shared bool, ft wasm.FuncType, code *wasm.CodeBuilder) *Interpreter {
	t.Helper()
	b := newModule().memory(1, shared)
	b.fn(ft, nil, code)
	return instantiate(t, b.module(), nil, DefaultConfig())
}

func runTrap(t *testing.T, it *Interpreter, args ...Value) TrapReason {
	t.Helper()
	th := start(t, it, 0, args...)
	if _, err := th.Run(context.Background(), -1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return th.TrapReason()
}

func TestMemory_Bounds(t *testing.T) {
	i32 := wasm.ValI32
	tests := []struct {
		name   string
		op     byte
		offset uint32
		index  int32
		trap   bool
	}{
		{"i32 at last word", wasm.OpI32Load, 0, 65532, false},
		{"i32 one past", wasm.OpI32Load, 0, 65533, true},
		{"i64 at last word", wasm.OpI64Load, 0, 65528, false},
		{"i64 one past", wasm.OpI64Load, 0, 65529, true},
		{"byte at end", wasm.OpI32Load8U, 0, 65535, false},
		{"byte past end", wasm.OpI32Load8U, 0, 65536, true},
		{"offset carries address", wasm.OpI32Load, 65532, 0, false},
		{"offset past end", wasm.OpI32Load, 65533, 0, true},
		{"offset plus index overflow", wasm.OpI32Load, math.MaxUint32, 1, true},
		{"negative index", wasm.OpI32Load, 0, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := wasm.ValI32
			if tt.op == wasm.OpI64Load {
				res = wasm.ValI64
			}
			it := withMemory(t, false, sig(vals(i32), res), wasm.NewCode().LocalGet(0).Mem(tt.op, 0, tt.offset))
			got := runTrap(t, it, I32(tt.index))
			if tt.trap && got != TrapMemOutOfBounds {
				t.Errorf("trap = %s, want out of bounds", got)
			}
			if !tt.trap && got != TrapNone {
				t.Errorf("trap = %s, want none", got)
			}
		})
	}
}

func TestMemory_StoreOutOfBoundsLeavesMemory(t *testing.T) {
	it := withMemory(t, false, sig(nil), wasm.NewCode().
		I32Const(65534).I32Const(-1).Mem(wasm.OpI32Store, 2, 0))
	if got := runTrap(t, it); got != TrapMemOutOfBounds {
		t.Fatalf("trap = %s", got)
	}
	b := it.Host().Memory().Bytes()
	if b[65534] != 0 || b[65535] != 0 {
		t.Error("partial store reached memory")
	}
}

func TestMemory_LoadStoreWidths(t *testing.T) {
	i32, i64 := wasm.ValI32, wasm.ValI64
	tests := []struct {
		name  string
		store *wasm.CodeBuilder
		load  byte
		typ   wasm.ValType
		want  Value
	}{
		{"load8_s", wasm.NewCode().I32Const(0).I32Const(0x1FF).Mem(wasm.OpI32Store8, 0, 0), wasm.OpI32Load8S, i32, I32(-1)},
		{"load8_u", wasm.NewCode().I32Const(0).I32Const(0x1FF).Mem(wasm.OpI32Store8, 0, 0), wasm.OpI32Load8U, i32, I32(255)},
		{"load16_s", wasm.NewCode().I32Const(0).I32Const(0x8000).Mem(wasm.OpI32Store16, 1, 0), wasm.OpI32Load16S, i32, I32(-32768)},
		{"i64 load32_s", wasm.NewCode().I32Const(0).I64Const(0x80000000).Mem(wasm.OpI64Store32, 2, 0), wasm.OpI64Load32S, i64, I64(-2147483648)},
		{"i64 load32_u", wasm.NewCode().I32Const(0).I64Const(-1).Mem(wasm.OpI64Store, 3, 0), wasm.OpI64Load32U, i64, I64(0xFFFFFFFF)},
		{"f32 round trip", wasm.NewCode().I32Const(0).F32Const(1.5).Mem(wasm.OpF32Store, 2, 0), wasm.OpF32Load, wasm.ValF32, F32(1.5)},
		{"f64 round trip", wasm.NewCode().I32Const(0).F64Const(-2.25).Mem(wasm.OpF64Store, 3, 0), wasm.OpF64Load, wasm.ValF64, F64(-2.25)},
		{"little endian", wasm.NewCode().I32Const(0).I32Const(0x04030201).Mem(wasm.OpI32Store, 2, 0), wasm.OpI32Load16U, i32, I32(0x0201)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := tt.store.I32Const(0).Mem(tt.load, 0, 0)
			it := withMemory(t, false, sig(nil, tt.typ), code)
			if got := call(t, it, 0)[0]; !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemory_SizeAndGrow(t *testing.T) {
	limit := uint64(3)
	b := newModule()
	b.m.Memories = append(b.m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: 1, Max: &limit}})
	grow := b.fn(sig(vals(wasm.ValI32), wasm.ValI32), nil, wasm.NewCode().LocalGet(0).MemoryGrow())
	size := b.fn(sig(nil, wasm.ValI32), nil, wasm.NewCode().MemorySize())
	it := instantiate(t, b.module(), nil, DefaultConfig())

	steps := []struct {
		fn   uint32
		arg  []Value
		want int32
	}{
		{size, nil, 1},
		{grow, []Value{I32(1)}, 1},
		{grow, []Value{I32(0)}, 2},
		{grow, []Value{I32(2)}, -1},
		{grow, []Value{I32(1)}, 2},
		{size, nil, 3},
	}
	for i, s := range steps {
		if got := call(t, it, s.fn, s.arg...)[0]; got.I32() != s.want {
			t.Errorf("step %d: got %v, want %d", i, got, s.want)
		}
	}
	if mask := it.Host().Memory().Mask(); mask != 4*wasm.PageSize-1 {
		t.Errorf("mask = %#x", mask)
	}
}

func TestMemory_Bulk(t *testing.T) {
	i32 := wasm.ValI32
	b := newModule().memory(1, false).passiveData([]byte("hello"))
	fill := b.fn(sig(vals(i32, i32, i32)), nil, wasm.NewCode().
		LocalGet(0).LocalGet(1).LocalGet(2).Misc(wasm.MiscMemoryFill, 0))
	cp := b.fn(sig(vals(i32, i32, i32)), nil, wasm.NewCode().
		LocalGet(0).LocalGet(1).LocalGet(2).Misc(wasm.MiscMemoryCopy, 0, 0))
	initSeg := b.fn(sig(vals(i32, i32, i32)), nil, wasm.NewCode().
		LocalGet(0).LocalGet(1).LocalGet(2).Misc(wasm.MiscMemoryInit, 0, 0))
	drop := b.fn(sig(nil), nil, wasm.NewCode().Misc(wasm.MiscDataDrop, 0))
	it := instantiate(t, b.module(), nil, DefaultConfig())
	mem := it.Host().Memory()

	call(t, it, fill, I32(10), I32(0xAB), I32(4))
	if got := mem.Bytes()[9:15]; string(got) != "\x00\xab\xab\xab\xab\x00" {
		t.Errorf("after fill: %x", got)
	}

	call(t, it, initSeg, I32(100), I32(1), I32(4))
	if got := string(mem.Bytes()[100:104]); got != "ello" {
		t.Errorf("after init: %q", got)
	}

	// Overlapping copy behaves like memmove.
	call(t, it, cp, I32(102), I32(100), I32(4))
	if got := string(mem.Bytes()[100:106]); got != "elello" {
		t.Errorf("after copy: %q", got)
	}

	traps := []struct {
		name string
		fn   uint32
		args []Value
	}{
		{"fill past end", fill, []Value{I32(65535), I32(0), I32(2)}},
		{"copy source past end", cp, []Value{I32(0), I32(65535), I32(2)}},
		{"init past segment", initSeg, []Value{I32(0), I32(3), I32(3)}},
	}
	for _, tt := range traps {
		t.Run(tt.name, func(t *testing.T) {
			th := start(t, it, tt.fn, tt.args...)
			if _, err := th.Run(context.Background(), -1); err != nil {
				t.Fatal(err)
			}
			if th.TrapReason() != TrapMemOutOfBounds {
				t.Errorf("trap = %s", th.TrapReason())
			}
		})
	}

	call(t, it, drop)
	call(t, it, initSeg, I32(0), I32(0), I32(0))
	th := start(t, it, initSeg, I32(0), I32(0), I32(1))
	if _, err := th.Run(context.Background(), -1); err != nil {
		t.Fatal(err)
	}
	if th.TrapReason() != TrapMemOutOfBounds {
		t.Errorf("init from dropped segment: trap = %s", th.TrapReason())
	}
}

func TestAtomic_ReadModifyWrite(t *testing.T) {
	i32, i64 := wasm.ValI32, wasm.ValI64
	tests := []struct {
		name    string
		ft      wasm.FuncType
		code    *wasm.CodeBuilder
		want    Value
		memory  []byte
		initial []byte
	}{
		{
			name:    "i32 add returns old value",
			ft:      sig(nil, i32),
			code:    wasm.NewCode().I32Const(0).I32Const(3).Atomic(wasm.AtomicRmwAdd, 2, 0),
			initial: []byte{5, 0, 0, 0},
			want:    I32(5),
			memory:  []byte{8, 0, 0, 0},
		},
		{
			name:    "i32 rmw8 add wraps in lane",
			ft:      sig(nil, i32),
			code:    wasm.NewCode().I32Const(0).I32Const(1).Atomic(wasm.AtomicRmwAdd+2, 0, 0),
			initial: []byte{0xFF, 7},
			want:    I32(255),
			memory:  []byte{0, 7},
		},
		{
			name:    "i64 sub",
			ft:      sig(nil, i64),
			code:    wasm.NewCode().I32Const(8).I64Const(1).Atomic(wasm.AtomicRmwSub+1, 3, 0),
			initial: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0},
			want:    I64(0),
			memory:  []byte{0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			name:    "i32 xchg",
			ft:      sig(nil, i32),
			code:    wasm.NewCode().I32Const(4).I32Const(9).Atomic(wasm.AtomicRmwXchg, 2, 0),
			initial: []byte{0, 0, 0, 0, 2},
			want:    I32(2),
			memory:  []byte{0, 0, 0, 0, 9},
		},
		{
			name:    "cmpxchg swaps on match",
			ft:      sig(nil, i32),
			code:    wasm.NewCode().I32Const(0).I32Const(5).I32Const(6).Atomic(wasm.AtomicRmwCmpxchg, 2, 0),
			initial: []byte{5},
			want:    I32(5),
			memory:  []byte{6},
		},
		{
			name:    "cmpxchg keeps on mismatch",
			ft:      sig(nil, i32),
			code:    wasm.NewCode().I32Const(0).I32Const(4).I32Const(6).Atomic(wasm.AtomicRmwCmpxchg, 2, 0),
			initial: []byte{5},
			want:    I32(5),
			memory:  []byte{5},
		},
		{
			name: "atomic store and load",
			ft:   sig(nil, i64),
			code: wasm.NewCode().I32Const(16).I64Const(-2).Atomic(wasm.AtomicI64Store, 3, 0).I32Const(16).Atomic(wasm.AtomicI64Load32U, 2, 0),
			want: I64(0xFFFFFFFE),
		},
		{
			name: "notify without waiters",
			ft:   sig(nil, i32),
			code: wasm.NewCode().I32Const(0).I32Const(1).Atomic(wasm.AtomicNotify, 2, 0),
			want: I32(0),
		},
		{
			name: "fence",
			ft:   sig(nil, i32),
			code: wasm.NewCode().Atomic(wasm.AtomicFence, 0, 0).I32Const(1),
			want: I32(1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := withMemory(t, true, tt.ft, tt.code)
			mem := it.Host().Memory().Bytes()
			copy(mem, tt.initial)
			if got := call(t, it, 0)[0]; !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			for i, b := range tt.memory {
				if mem[i] != b {
					t.Errorf("memory[%d] = %#x, want %#x", i, mem[i], b)
				}
			}
		})
	}
}

func TestAtomic_Traps(t *testing.T) {
	i32 := wasm.ValI32
	tests := []struct {
		name   string
		shared bool
		code   *wasm.CodeBuilder
		want   TrapReason
	}{
		{"unaligned load", true, wasm.NewCode().I32Const(2).Atomic(wasm.AtomicI32Load, 2, 0), TrapUnalignedAtomic},
		{"unaligned through offset", true, wasm.NewCode().I32Const(0).Atomic(wasm.AtomicI32Load, 2, 1), TrapUnalignedAtomic},
		{"bounds before alignment", true, wasm.NewCode().I32Const(65534).Atomic(wasm.AtomicI32Load, 2, 0), TrapMemOutOfBounds},
		{"wait on unshared", false, wasm.NewCode().I32Const(0).I32Const(0).I64Const(-1).Atomic(wasm.AtomicWait32, 2, 0), TrapWaitOnUnshared},
		{"unaligned notify", true, wasm.NewCode().I32Const(1).I32Const(1).Atomic(wasm.AtomicNotify, 2, 0), TrapUnalignedAtomic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := withMemory(t, tt.shared, sig(nil, i32), tt.code)
			if got := runTrap(t, it); got != tt.want {
				t.Errorf("trap = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAtomic_Wait(t *testing.T) {
	i32 := wasm.ValI32
	it := withMemory(t, true, sig(vals(i32), i32), wasm.NewCode().
		I32Const(0).LocalGet(0).I64Const(0).Atomic(wasm.AtomicWait32, 2, 0))
	it.Host().Memory().Bytes()[0] = 7
	if got := call(t, it, 0, I32(7))[0]; got.I32() != 2 {
		t.Errorf("wait on equal value = %v, want timed out (2)", got)
	}
	if got := call(t, it, 0, I32(8))[0]; got.I32() != 1 {
		t.Errorf("wait on different value = %v, want not-equal (1)", got)
	}
}

func lanes32(a, b, c, d uint32) [16]byte {
	var v [16]byte
	for i, x := range []uint32{a, b, c, d} {
		le.PutUint32(v[i*4:], x)
	}
	return v
}

func TestSIMD(t *testing.T) {
	v128, i32 := wasm.ValV128, wasm.ValI32
	seq := [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	tests := []struct {
		name string
		typ  wasm.ValType
		code *wasm.CodeBuilder
		want Value
	}{
		{
			name: "i32x4 add wraps per lane",
			typ:  v128,
			code: wasm.NewCode().V128Const(lanes32(1, 2, math.MaxUint32, 4)).V128Const(lanes32(10, 20, 1, 40)).SIMD(wasm.SimdI32x4Add),
			want: V128Bytes(lanes32(11, 22, 0, 44)),
		},
		{
			name: "extract lane",
			typ:  i32,
			code: wasm.NewCode().V128Const(lanes32(1, 2, 3, 4)).SIMD(wasm.SimdI32x4ExtractLane, 2),
			want: I32(3),
		},
		{
			name: "i8 extract sign extends",
			typ:  i32,
			code: wasm.NewCode().I32Const(0x80).SIMD(wasm.SimdI8x16Splat).SIMD(wasm.SimdI8x16ExtractLaneS, 5),
			want: I32(-128),
		},
		{
			name: "replace lane",
			typ:  v128,
			code: wasm.NewCode().V128Const(lanes32(1, 2, 3, 4)).I32Const(9).SIMD(wasm.SimdI32x4ReplaceLane, 0),
			want: V128Bytes(lanes32(9, 2, 3, 4)),
		},
		{
			name: "shuffle selects from both operands",
			typ:  v128,
			code: wasm.NewCode().V128Const(seq).V128Const(splat(1, 0xEE)).
				SIMD(wasm.SimdI8x16Shuffle, 15, 16, 0, 31, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1),
			want: V128Bytes([16]byte{15, 0xEE, 0, 0xEE, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}),
		},
		{
			name: "swizzle zeroes out of range",
			typ:  v128,
			code: wasm.NewCode().V128Const(seq).V128Const([16]byte{3, 200, 0}).SIMD(wasm.SimdI8x16Swizzle),
			want: V128Bytes([16]byte{3, 0, 0}),
		},
		{
			name: "bitmask",
			typ:  i32,
			code: wasm.NewCode().V128Const(lanes32(0x80000000, 1, 0xFFFFFFFF, 0)).SIMD(wasm.SimdI32x4Bitmask),
			want: I32(0b0101),
		},
		{
			name: "all true",
			typ:  i32,
			code: wasm.NewCode().V128Const(lanes32(1, 2, 0, 4)).SIMD(wasm.SimdI32x4AllTrue),
			want: I32(0),
		},
		{
			name: "shift right signed",
			typ:  v128,
			code: wasm.NewCode().V128Const(lanes32(0x80000000, 8, 0, 0)).I32Const(35).SIMD(wasm.SimdI32x4ShrS),
			want: V128Bytes(lanes32(0xF0000000, 1, 0, 0)),
		},
		{
			name: "bitselect",
			typ:  v128,
			code: wasm.NewCode().V128Const(splat(1, 0xF0)).V128Const(splat(1, 0x0F)).V128Const(splat(1, 0xCC)).SIMD(wasm.SimdV128Bitselect),
			want: V128Bytes(splat(1, 0xC3)),
		},
		{
			name: "f32x4 add",
			typ:  v128,
			code: wasm.NewCode().F32Const(1.5).SIMD(wasm.SimdF32x4Splat).F32Const(2).SIMD(wasm.SimdF32x4Splat).SIMD(wasm.SimdF32x4Add),
			want: V128Bytes(splat(4, uint64(math.Float32bits(3.5)))),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := single(t, sig(nil, tt.typ), nil, tt.code)
			if got := call(t, it, 0)[0]; !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSIMD_Memory(t *testing.T) {
	it := withMemory(t, false, sig(nil, wasm.ValV128), wasm.NewCode().
		I32Const(32).V128Const(lanes32(1, 2, 3, 4)).SIMDMem(wasm.SimdV128Store, 4, 0).
		I32Const(36).SIMDMem(wasm.SimdV128Load32Zero, 2, 0))
	if got := call(t, it, 0)[0]; !got.Equal(V128Bytes(lanes32(2, 0, 0, 0))) {
		t.Errorf("load32_zero = %v", got)
	}

	widen := withMemory(t, false, sig(nil, wasm.ValV128), wasm.NewCode().
		I32Const(0).I32Const(-2).Mem(wasm.OpI32Store, 2, 0).
		I32Const(0).SIMDMem(wasm.SimdV128Load16x4S, 3, 0))
	if got := call(t, widen, 0)[0]; !got.Equal(V128Bytes(lanes32(0xFFFFFFFE, 0xFFFFFFFF, 0, 0))) {
		t.Errorf("load16x4_s = %v", got)
	}

	oob := withMemory(t, false, sig(nil, wasm.ValV128), wasm.NewCode().
		I32Const(65521).SIMDMem(wasm.SimdV128Load, 4, 0))
	if got := runTrap(t, oob); got != TrapMemOutOfBounds {
		t.Errorf("trap = %s", got)
	}
}

func TestSIMD_NaNSetsNondeterminism(t *testing.T) {
	it := single(t, sig(nil, wasm.ValV128), nil, wasm.NewCode().
		F32Bits(0x7FC00000).SIMD(wasm.SimdF32x4Splat).
		F32Const(1).SIMD(wasm.SimdF32x4Splat).
		SIMD(wasm.SimdF32x4Mul))
	th := it.NewThread()
	if _, err := th.Call(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if !th.PossibleNondeterminism() {
		t.Error("nan lane not recorded")
	}
}
