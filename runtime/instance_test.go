package runtime

import (
	"context"
	stderrors "errors"
	"testing"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

func i32Sig() wasm.FuncType {
	return wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
}

func testModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{i32Sig(), {}, i32Sig()},
		Imports: []wasm.Import{
			{Module: "env", Name: "double", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
			{Module: "env", Name: "base", Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValI32}}},
		},
		Funcs:    []uint32{1},
		Tables:   []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 4}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: wasm.NewCode().GlobalGet(0).End().Bytes()},
			{Type: wasm.GlobalType{ValType: wasm.ValF64}, Init: wasm.NewCode().F64Const(1.5).End().Bytes()},
		},
		Elements: []wasm.Element{
			{Offset: wasm.NewCode().I32Const(1).End().Bytes(), FuncIdxs: []uint32{1, 0}},
		},
		Code: []wasm.FuncBody{{Code: wasm.NewCode().End().Bytes()}},
		Data: []wasm.DataSegment{
			{Offset: wasm.NewCode().I32Const(8).End().Bytes(), Init: []byte("hello")},
			{Flags: 1, Init: []byte("passive")},
		},
	}
}

func testRegistry(t *testing.T) *HostRegistry {
	t.Helper()
	reg := NewHostRegistry()
	err := reg.Register("env", "double", i32Sig(), func(_ context.Context, _ wasminterp.Memory, stack []uint64) error {
		stack[0] = uint64(uint32(stack[0]) * 2)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	reg.DefineGlobal("env", "base", NewGlobal(wasm.ValI32, false, 40))
	return reg
}

func TestInstantiate(t *testing.T) {
	inst, err := Instantiate(context.Background(), testModule(), testRegistry(t))
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	if inst.NumGlobals() != 3 {
		t.Fatalf("NumGlobals = %d", inst.NumGlobals())
	}
	if g := inst.Global(1); g.Lo != 40 || !g.Type.Mutable {
		t.Errorf("global 1 = %+v", g)
	}
	if g := inst.Global(2); g.Lo != 0x3FF8000000000000 {
		t.Errorf("global 2 = %#x", g.Lo)
	}

	b, err := inst.Memory().Read(8, 5)
	if err != nil || string(b) != "hello" {
		t.Errorf("active data = %q, %v", b, err)
	}
	if inst.DataSegment(0) != nil {
		t.Error("active segment not dropped")
	}
	if string(inst.DataSegment(1)) != "passive" {
		t.Errorf("passive segment = %q", inst.DataSegment(1))
	}
	inst.DropData(1)
	if inst.DataSegment(1) != nil || inst.DataSegment(9) != nil {
		t.Error("dropped segment still readable")
	}

	wantTable := []struct {
		fn uint32
		ok bool
	}{{0, false}, {1, true}, {0, true}, {0, false}}
	for i, w := range wantTable {
		fn, ok := inst.Table().Get(uint32(i))
		if ok != w.ok || (ok && fn != w.fn) {
			t.Errorf("table[%d] = %d, %v", i, fn, ok)
		}
	}

	if inst.CanonicalSig(0) != inst.CanonicalSig(2) || inst.CanonicalSig(0) == inst.CanonicalSig(1) {
		t.Errorf("canonical ids = %d %d %d", inst.CanonicalSig(0), inst.CanonicalSig(1), inst.CanonicalSig(2))
	}

	stack := []uint64{21}
	if err := inst.CallImport(context.Background(), 0, stack); err != nil || stack[0] != 42 {
		t.Errorf("CallImport = %d, %v", stack[0], err)
	}
	if err := inst.CallImport(context.Background(), 1, stack); err == nil {
		t.Error("CallImport on a defined function succeeded")
	}
}

func TestInstantiate_V128Global(t *testing.T) {
	var lanes [16]byte
	for i := range lanes {
		lanes[i] = byte(i)
	}
	m := &wasm.Module{
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValV128}, Init: wasm.NewCode().V128Const(lanes).End().Bytes()},
		},
	}
	inst, err := Instantiate(context.Background(), m, NewHostRegistry())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	g := inst.Global(0)
	if g.Lo != 0x0706050403020100 || g.Hi != 0x0F0E0D0C0B0A0908 {
		t.Errorf("v128 global = %#x %#x", g.Lo, g.Hi)
	}
}

func TestInstantiate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *wasm.Module, reg *HostRegistry)
		kind   errors.Kind
	}{
		{
			name:   "missing function import",
			mutate: func(m *wasm.Module, _ *HostRegistry) { m.Imports[0].Name = "triple" },
			kind:   errors.KindMissingImport,
		},
		{
			name: "function signature mismatch",
			mutate: func(m *wasm.Module, _ *HostRegistry) {
				m.Types[0] = wasm.FuncType{Params: []wasm.ValType{wasm.ValI64}}
			},
			kind: errors.KindTypeMismatch,
		},
		{
			name: "global type mismatch",
			mutate: func(m *wasm.Module, _ *HostRegistry) {
				m.Imports[1].Desc.Global = &wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}
			},
			kind: errors.KindTypeMismatch,
		},
		{
			name: "element segment past table",
			mutate: func(m *wasm.Module, _ *HostRegistry) {
				m.Elements[0].Offset = wasm.NewCode().I32Const(3).End().Bytes()
			},
			kind: errors.KindOutOfBounds,
		},
		{
			name: "data segment past memory",
			mutate: func(m *wasm.Module, _ *HostRegistry) {
				m.Data[0].Offset = wasm.NewCode().I32Const(65534).End().Bytes()
			},
			kind: errors.KindOutOfBounds,
		},
		{
			name: "non-constant initializer",
			mutate: func(m *wasm.Module, _ *HostRegistry) {
				m.Globals[1].Init = wasm.NewCode().I32Const(1).I32Const(2).Op(wasm.OpI32Add).End().Bytes()
			},
			kind: errors.KindInvalidData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModule()
			reg := testRegistry(t)
			tt.mutate(m, reg)
			_, err := Instantiate(context.Background(), m, reg)
			if err == nil {
				t.Fatal("expected error")
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != tt.kind {
				t.Errorf("got %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestInstantiate_ImportedMemory(t *testing.T) {
	shared := NewMemory(2, 4, false)
	reg := NewHostRegistry()
	reg.DefineMemory("env", "memory", shared)
	m := &wasm.Module{
		Imports: []wasm.Import{{Module: "env", Name: "memory", Desc: wasm.ImportDesc{
			Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1}},
		}}},
		Data: []wasm.DataSegment{{Offset: wasm.NewCode().I32Const(0).End().Bytes(), Init: []byte{7}}},
	}
	inst, err := Instantiate(context.Background(), m, reg)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if inst.Memory() != shared {
		t.Fatal("imported memory not bound")
	}
	if v, _ := shared.ReadU8(0); v != 7 {
		t.Errorf("data not written through import: %d", v)
	}

	m.Imports[0].Desc.Memory.Limits.Min = 3
	if _, err := Instantiate(context.Background(), m, reg); err == nil {
		t.Error("undersized imported memory accepted")
	}
}

func TestInstantiate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Instantiate(ctx, &wasm.Module{}, nil); !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
