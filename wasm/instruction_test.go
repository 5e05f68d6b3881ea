package wasm_test

import (
	"errors"
	"testing"

	"github.com/wippyai/wasm-interp/wasm"
)

func TestDecodeInstructionLengths(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int
	}{
		{"nop", wasm.NewCode().Op(wasm.OpNop).Bytes(), 1},
		{"block void", wasm.NewCode().Block(wasm.BlockTypeVoid).Bytes(), 2},
		{"block type index", wasm.NewCode().Block(200).Bytes(), 3},
		{"br_table", wasm.NewCode().BrTable(0, 1, 2).Bytes(), 5},
		{"i32.const negative", wasm.NewCode().I32Const(-1).Bytes(), 2},
		{"i64.const large", wasm.NewCode().I64Const(1 << 40).Bytes(), 7},
		{"f32.const", wasm.NewCode().F32Const(1.5).Bytes(), 5},
		{"f64.const", wasm.NewCode().F64Const(1.5).Bytes(), 9},
		{"load", wasm.NewCode().Mem(wasm.OpI32Load, 2, 300).Bytes(), 4},
		{"memory.grow", wasm.NewCode().MemoryGrow().Bytes(), 2},
		{"call_indirect", wasm.NewCode().CallIndirect(1).Bytes(), 3},
		{"sat trunc", wasm.NewCode().Misc(wasm.MiscI32TruncSatF32S).Bytes(), 2},
		{"memory.copy", wasm.NewCode().Misc(wasm.MiscMemoryCopy, 0, 0).Bytes(), 4},
		{"atomic fence", wasm.NewCode().Atomic(wasm.AtomicFence, 0, 0).Bytes(), 3},
		{"atomic rmw", wasm.NewCode().Atomic(wasm.AtomicRmwAdd, 2, 0).Bytes(), 4},
		{"v128.const", wasm.NewCode().V128Const([16]byte{}).Bytes(), 18},
		{"extract lane", wasm.NewCode().SIMD(wasm.SimdI32x4ExtractLane, 3).Bytes(), 3},
		{"simd sub-opcode two bytes", wasm.NewCode().SIMD(wasm.SimdI32x4Add).Bytes(), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := wasm.DecodeInstruction(tt.code, 0)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if in.Len != tt.want {
				t.Errorf("Len = %d, want %d", in.Len, tt.want)
			}
		})
	}
}

func TestDecodeInstructionImmediates(t *testing.T) {
	code := wasm.NewCode().Op(wasm.OpNop).BrTable(3, 1, 0).Bytes()
	in, err := wasm.DecodeInstruction(code, 1)
	if err != nil {
		t.Fatal(err)
	}
	if in.PC != 1 || in.Opcode != wasm.OpBrTable {
		t.Fatalf("unexpected instruction %+v", in)
	}
	want := []uint32{3, 1, 0}
	if len(in.Imm.Labels) != len(want) {
		t.Fatalf("labels = %v, want %v", in.Imm.Labels, want)
	}
	for i := range want {
		if in.Imm.Labels[i] != want[i] {
			t.Errorf("label %d = %d, want %d", i, in.Imm.Labels[i], want[i])
		}
	}

	in, err = wasm.DecodeInstruction(wasm.NewCode().I32Const(-7).Bytes(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if int32(in.Imm.Value) != -7 {
		t.Errorf("i32.const = %d, want -7", int32(in.Imm.Value))
	}
}

func TestDecodeInstructionErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"unknown opcode", []byte{0x06}},
		{"breakpoint marker", []byte{wasm.OpBreakpoint}},
		{"truncated immediate", []byte{wasm.OpI32Const, 0x80}},
		{"truncated f64", []byte{wasm.OpF64Const, 0, 0}},
		{"unknown misc", []byte{wasm.OpPrefixMisc, 0x11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.DecodeInstruction(tt.code, 0)
			var de *wasm.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
		})
	}
}

func TestInstructionNames(t *testing.T) {
	tests := []struct {
		code []byte
		want string
	}{
		{wasm.NewCode().Op(wasm.OpI32Add).Bytes(), "i32.add"},
		{wasm.NewCode().Misc(wasm.MiscMemoryFill, 0).Bytes(), "memory.fill"},
		{wasm.NewCode().Atomic(wasm.AtomicRmwCmpxchg+4, 0, 0).Bytes(), "i64.atomic.rmw8.cmpxchg_u"},
		{wasm.NewCode().Atomic(wasm.AtomicRmwSub+1, 3, 0).Bytes(), "i64.atomic.rmw.sub"},
		{wasm.NewCode().SIMD(wasm.SimdF64x2Mul).Bytes(), "f64x2.mul"},
	}
	for _, tt := range tests {
		in, err := wasm.DecodeInstruction(tt.code, 0)
		if err != nil {
			t.Fatal(err)
		}
		if got := in.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}
