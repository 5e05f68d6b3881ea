package crosscheck

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/interp"
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

var (
	i32 = wasm.ValI32
	f32 = wasm.ValF32
)

// exports builds a module with one exported function per entry, each of
// type ft.
func exports(ft wasm.FuncType, imports []wasm.Import, bodies map[string]*wasm.CodeBuilder) *wasm.Module {
	m := &wasm.Module{Types: []wasm.FuncType{ft}, Imports: imports}
	base := uint32(len(imports))
	for name, code := range bodies {
		idx := base + uint32(len(m.Funcs))
		m.Funcs = append(m.Funcs, 0)
		m.Code = append(m.Code, wasm.FuncBody{Code: code.End().Bytes()})
		m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: wasm.KindFunc, Idx: idx})
	}
	return m
}

func TestRun_Agreement(t *testing.T) {
	ctx := context.Background()
	ft := wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}
	m := exports(ft, nil, map[string]*wasm.CodeBuilder{
		"mul":  wasm.NewCode().LocalGet(0).I32Const(-3).Op(wasm.OpI32Mul),
		"div":  wasm.NewCode().I32Const(100).LocalGet(0).Op(wasm.OpI32DivU),
		"rotl": wasm.NewCode().LocalGet(0).I32Const(33).Op(wasm.OpI32Rotl),
	})

	tests := []struct {
		export string
		arg    int32
		kind   OutcomeKind
	}{
		{"mul", 7, Returned},
		{"mul", math.MaxInt32, Returned},
		{"div", 3, Returned},
		{"div", 0, Trapped},
		{"rotl", math.MinInt32, Returned},
	}
	for _, tt := range tests {
		t.Run(tt.export, func(t *testing.T) {
			r, err := Run(ctx, m, nil, tt.export, []interp.Value{interp.I32(tt.arg)}, DefaultOptions())
			require.NoError(t, err)
			require.True(t, r.Match, r.String())
			require.Equal(t, tt.kind, r.Interp.Kind)
			require.Equal(t, tt.kind, r.Engine.Kind)
			require.Empty(t, r.Mismatches)
		})
	}
}

func TestRun_NaN(t *testing.T) {
	ft := wasm.FuncType{Results: []wasm.ValType{f32}}
	m := exports(ft, nil, map[string]*wasm.CodeBuilder{
		"nan": wasm.NewCode().F32Const(float32(math.NaN())).F32Const(1).Op(wasm.OpF32Add),
		"one": wasm.NewCode().F32Const(0.5).F32Const(0.5).Op(wasm.OpF32Add),
	})

	r, err := Run(context.Background(), m, nil, "nan", nil, DefaultOptions())
	require.NoError(t, err)
	require.True(t, r.Nondeterministic)
	require.True(t, r.Match, r.String())
	require.True(t, math.IsNaN(float64(r.Interp.Results[0].F32())))

	r, err = Run(context.Background(), m, nil, "one", nil, DefaultOptions())
	require.NoError(t, err)
	require.False(t, r.Nondeterministic)
	require.True(t, r.Match)
	require.Equal(t, float32(1), r.Engine.Results[0].F32())
}

func TestRun_HostFunctions(t *testing.T) {
	ctx := context.Background()
	ft := wasm.FuncType{Results: []wasm.ValType{i32}}
	imports := []wasm.Import{{Module: "env", Name: "tick", Desc: wasm.ImportDesc{Kind: wasm.KindFunc}}}
	m := exports(ft, imports, map[string]*wasm.CodeBuilder{
		"tick": wasm.NewCode().Call(0),
	})

	t.Run("stateful host diverges", func(t *testing.T) {
		var n uint64
		reg := runtime.NewHostRegistry()
		require.NoError(t, reg.Register("env", "tick", ft, func(_ context.Context, _ wasminterp.Memory, stack []uint64) error {
			n++
			stack[0] = n
			return nil
		}))
		r, err := Run(ctx, m, reg, "tick", nil, DefaultOptions())
		require.NoError(t, err)
		require.False(t, r.Match)
		require.Len(t, r.Mismatches, 1)
		require.Equal(t, int32(1), r.Mismatches[0].Interp.I32())
		require.Equal(t, int32(2), r.Mismatches[0].Engine.I32())
	})

	t.Run("failing host unwinds both", func(t *testing.T) {
		boom := stderrors.New("boom")
		reg := runtime.NewHostRegistry()
		require.NoError(t, reg.Register("env", "tick", ft, func(context.Context, wasminterp.Memory, []uint64) error {
			return boom
		}))
		r, err := Run(ctx, m, reg, "tick", nil, DefaultOptions())
		require.NoError(t, err)
		require.True(t, r.Match, r.String())
		require.Equal(t, Unwound, r.Interp.Kind)
		require.ErrorIs(t, r.Interp.Err, boom)
		require.ErrorIs(t, r.Engine.Err, boom)
	})
}

func TestRun_SetupErrors(t *testing.T) {
	ft := wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}
	m := exports(ft, nil, map[string]*wasm.CodeBuilder{"id": wasm.NewCode().LocalGet(0)})

	_, err := Run(context.Background(), m, nil, "missing", nil, DefaultOptions())
	require.Error(t, err)

	_, err = Run(context.Background(), m, nil, "id", []interp.Value{interp.I64(1)}, DefaultOptions())
	require.Error(t, err)
}

func TestValuesMatch(t *testing.T) {
	nan1 := interp.F32Bits(0x7FC00000)
	nan2 := interp.F32Bits(0xFFC00001)
	dnan1 := interp.F64Bits(0x7FF8000000000000)
	dnan2 := interp.F64Bits(0xFFF8000000000001)

	tests := []struct {
		name   string
		a, b   interp.Value
		nondet bool
		want   bool
	}{
		{"equal ints", interp.I32(5), interp.I32(5), false, true},
		{"different ints", interp.I32(5), interp.I32(6), true, false},
		{"type differs", interp.I32(0), interp.F32(0), true, false},
		{"f32 NaN bits differ, flagged", nan1, nan2, true, true},
		{"f32 NaN bits differ, unflagged", nan1, nan2, false, false},
		{"f32 NaN vs number", nan1, interp.F32(1), true, false},
		{"f64 NaN bits differ, flagged", dnan1, dnan2, true, true},
		{"signed zeros differ", interp.F64(0), interp.F64(math.Copysign(0, -1)), true, false},
		{"v128 f32 lanes", interp.V128(0x7FC00000_3F800000, 0), interp.V128(0xFFC00000_3F800000, 0), true, true},
		{"v128 f64 lanes", interp.V128(0x7FF8000000000000, 1), interp.V128(0xFFF8000000000000, 1), true, true},
		{"v128 lane differs", interp.V128(0x7FC00000_3F800000, 0), interp.V128(0x7FC00000_40000000, 0), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, valuesMatch(tt.a, tt.b, tt.nondet))
		})
	}
}
