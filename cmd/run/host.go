package main

import (
	"context"
	"fmt"
	"io"
	"math"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

// newHostRegistry provides the "env" functions test programs import:
//
//	print_i32(i32) print_i64(i64) print_f32(f32) print_f64(f64)
//	print(ptr i32, len i32)   writes len bytes of memory at ptr
//	abort(code i32)           fails the call, unwinding the activation
func newHostRegistry(out io.Writer) (*runtime.HostRegistry, error) {
	reg := runtime.NewHostRegistry()
	sig := func(params ...wasm.ValType) wasm.FuncType { return wasm.FuncType{Params: params} }

	funcs := []struct {
		name string
		ft   wasm.FuncType
		fn   runtime.HostFunc
	}{
		{"print_i32", sig(wasm.ValI32), func(_ context.Context, _ wasminterp.Memory, stack []uint64) error {
			_, err := fmt.Fprintln(out, int32(uint32(stack[0])))
			return err
		}},
		{"print_i64", sig(wasm.ValI64), func(_ context.Context, _ wasminterp.Memory, stack []uint64) error {
			_, err := fmt.Fprintln(out, int64(stack[0]))
			return err
		}},
		{"print_f32", sig(wasm.ValF32), func(_ context.Context, _ wasminterp.Memory, stack []uint64) error {
			_, err := fmt.Fprintln(out, math.Float32frombits(uint32(stack[0])))
			return err
		}},
		{"print_f64", sig(wasm.ValF64), func(_ context.Context, _ wasminterp.Memory, stack []uint64) error {
			_, err := fmt.Fprintln(out, math.Float64frombits(stack[0]))
			return err
		}},
		{"print", sig(wasm.ValI32, wasm.ValI32), func(_ context.Context, mem wasminterp.Memory, stack []uint64) error {
			if mem == nil {
				return fmt.Errorf("print: module has no memory")
			}
			b, err := mem.Read(uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				return fmt.Errorf("print: %w", err)
			}
			_, err = out.Write(b)
			return err
		}},
		{"abort", sig(wasm.ValI32), func(_ context.Context, _ wasminterp.Memory, stack []uint64) error {
			return fmt.Errorf("abort(%d)", int32(uint32(stack[0])))
		}},
	}
	for _, f := range funcs {
		if err := reg.Register("env", f.name, f.ft, f.fn); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
