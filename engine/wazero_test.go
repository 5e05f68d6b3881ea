package engine

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{EnableThreads: true}, "threads"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWazeroEngineWithConfig failed: %v", err)
			}
			defer engine.Close(ctx)

			if engine.runtime == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

var (
	i32      = wasm.ValI32
	unaryI32 = wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}
)

// testModule imports env.double and exports:
//
//	twice(x) = double(x)
//	div(x)   = 100 / x
//	store(x) = mem[0] = x; returns mem[0]
func testModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{unaryI32},
		Imports: []wasm.Import{
			{Module: "env", Name: "double", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{0, 0, 0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "twice", Kind: wasm.KindFunc, Idx: 1},
			{Name: "div", Kind: wasm.KindFunc, Idx: 2},
			{Name: "store", Kind: wasm.KindFunc, Idx: 3},
		},
		Code: []wasm.FuncBody{
			{Code: wasm.NewCode().LocalGet(0).Call(0).End().Bytes()},
			{Code: wasm.NewCode().I32Const(100).LocalGet(0).Op(wasm.OpI32DivS).End().Bytes()},
			{Code: wasm.NewCode().
				I32Const(0).LocalGet(0).Mem(wasm.OpI32Store, 2, 0).
				I32Const(0).Mem(wasm.OpI32Load, 2, 0).
				End().Bytes()},
		},
	}
}

func testRegistry(t *testing.T, fn runtime.HostFunc) *runtime.HostRegistry {
	t.Helper()
	reg := runtime.NewHostRegistry()
	if err := reg.Register("env", "double", unaryI32, fn); err != nil {
		t.Fatal(err)
	}
	return reg
}

func double(_ context.Context, _ wasminterp.Memory, stack []uint64) error {
	stack[0] = uint64(uint32(stack[0]) * 2)
	return nil
}

func TestWazeroInstance_Call(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	inst, err := engine.Instantiate(ctx, testModule(), testRegistry(t, double))
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	tests := []struct {
		export string
		arg    uint64
		want   uint64
	}{
		{"twice", 21, 42},
		{"div", 7, 14},
		{"div", uint64(uint32(math.MaxUint32)), uint64(uint32(0xFFFFFF9C))},
		{"store", 0xCAFE, 0xCAFE},
	}
	for _, tt := range tests {
		got, err := inst.Call(ctx, tt.export, tt.arg)
		if err != nil {
			t.Errorf("%s(%d): %v", tt.export, tt.arg, err)
			continue
		}
		if len(got) != 1 || uint32(got[0]) != uint32(tt.want) {
			t.Errorf("%s(%d) = %v, want %d", tt.export, tt.arg, got, tt.want)
		}
	}

	if v, err := inst.Memory().ReadU32(0); err != nil || v != 0xCAFE {
		t.Errorf("memory[0] = %#x, %v", v, err)
	}
	if names := inst.ExportNames(); len(names) != 3 || names[0] != "div" {
		t.Errorf("ExportNames = %v", names)
	}
}

func TestWazeroInstance_Trap(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	inst, err := engine.Instantiate(ctx, testModule(), testRegistry(t, double))
	if err != nil {
		t.Fatal(err)
	}
	_, err = inst.Call(ctx, "div", 0)
	if !stderrors.Is(err, errors.ErrTrap) {
		t.Fatalf("err = %v, want trap", err)
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Detail != "integer divide by zero" {
		t.Errorf("detail = %q", e.Detail)
	}

	if _, err := inst.Call(ctx, "missing"); err == nil {
		t.Error("call to missing export succeeded")
	}
}

func TestWazeroInstance_HostError(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	boom := stderrors.New("boom")
	reg := testRegistry(t, func(context.Context, wasminterp.Memory, []uint64) error { return boom })
	inst, err := engine.Instantiate(ctx, testModule(), reg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = inst.Call(ctx, "twice", 1)
	if !stderrors.Is(err, errors.ErrUnwound) {
		t.Fatalf("err = %v, want unwound", err)
	}
	if !stderrors.Is(err, boom) {
		t.Errorf("unwound error does not carry its cause: %v", err)
	}
}

func TestWazeroEngine_ImportBinding(t *testing.T) {
	ctx := context.Background()

	t.Run("missing import", func(t *testing.T) {
		engine, _ := NewWazeroEngine(ctx)
		defer engine.Close(ctx)
		_, err := engine.Instantiate(ctx, testModule(), nil)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindMissingImport {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("v128 host function", func(t *testing.T) {
		engine, _ := NewWazeroEngine(ctx)
		defer engine.Close(ctx)
		v128 := wasm.FuncType{Params: []wasm.ValType{wasm.ValV128}}
		reg := runtime.NewHostRegistry()
		if err := reg.Register("env", "vec", v128, double); err != nil {
			t.Fatal(err)
		}
		m := &wasm.Module{
			Types:   []wasm.FuncType{v128},
			Imports: []wasm.Import{{Module: "env", Name: "vec", Desc: wasm.ImportDesc{Kind: wasm.KindFunc}}},
		}
		_, err := engine.Instantiate(ctx, m, reg)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindUnsupported {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("imported memory", func(t *testing.T) {
		engine, _ := NewWazeroEngine(ctx)
		defer engine.Close(ctx)
		m := &wasm.Module{Imports: []wasm.Import{{Module: "env", Name: "memory", Desc: wasm.ImportDesc{
			Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1}},
		}}}}
		if _, err := engine.Instantiate(ctx, m, nil); err == nil {
			t.Error("imported memory accepted")
		}
	})

	t.Run("second instance reuses host module", func(t *testing.T) {
		engine, _ := NewWazeroEngine(ctx)
		defer engine.Close(ctx)
		reg := testRegistry(t, double)
		for i := 0; i < 2; i++ {
			inst, err := engine.Instantiate(ctx, testModule(), reg)
			if err != nil {
				t.Fatalf("instance %d: %v", i, err)
			}
			if got, err := inst.Call(ctx, "twice", 5); err != nil || uint32(got[0]) != 10 {
				t.Errorf("instance %d: twice(5) = %v, %v", i, got, err)
			}
		}
		other := testRegistry(t, double)
		if _, err := engine.Instantiate(ctx, testModule(), other); err == nil {
			t.Error("conflicting registry accepted")
		}
	})
}
