package interp

import (
	"context"
	"testing"

	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

// modBuilder assembles small modules for tests. Imports must be added
// before defined functions so function indices stay stable.
type modBuilder struct {
	m wasm.Module
}

func newModule() *modBuilder {
	return &modBuilder{}
}

func sig(params []wasm.ValType, results ...wasm.ValType) wasm.FuncType {
	return wasm.FuncType{Params: params, Results: results}
}

func vals(ts ...wasm.ValType) []wasm.ValType { return ts }

func (b *modBuilder) typ(ft wasm.FuncType) uint32 {
	for i := range b.m.Types {
		if b.m.Types[i].Equal(&ft) {
			return uint32(i)
		}
	}
	b.m.Types = append(b.m.Types, ft)
	return uint32(len(b.m.Types) - 1)
}

func (b *modBuilder) importFunc(module, name string, ft wasm.FuncType) uint32 {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: b.typ(ft)},
	})
	return uint32(b.m.NumImportedFuncs() - 1)
}

// fn defines a function. The closing end is appended to code.
func (b *modBuilder) fn(ft wasm.FuncType, locals []wasm.ValType, code *wasm.CodeBuilder) uint32 {
	b.m.Funcs = append(b.m.Funcs, b.typ(ft))
	var entries []wasm.LocalEntry
	for _, l := range locals {
		entries = append(entries, wasm.LocalEntry{Count: 1, ValType: l})
	}
	b.m.Code = append(b.m.Code, wasm.FuncBody{Locals: entries, Code: code.End().Bytes()})
	return uint32(b.m.NumImportedFuncs() + len(b.m.Funcs) - 1)
}

func (b *modBuilder) memory(min uint64, shared bool) *modBuilder {
	b.m.Memories = append(b.m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: min, Shared: shared}})
	return b
}

func (b *modBuilder) table(size uint64, funcs ...uint32) *modBuilder {
	b.m.Tables = append(b.m.Tables, wasm.TableType{Limits: wasm.Limits{Min: size}, ElemType: wasm.ValFuncRef})
	if len(funcs) > 0 {
		b.m.Elements = append(b.m.Elements, wasm.Element{
			Offset:   wasm.NewCode().I32Const(0).End().Bytes(),
			FuncIdxs: funcs,
		})
	}
	return b
}

func (b *modBuilder) global(vt wasm.ValType, mutable bool, init *wasm.CodeBuilder) *modBuilder {
	b.m.Globals = append(b.m.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: vt, Mutable: mutable},
		Init: init.End().Bytes(),
	})
	return b
}

func (b *modBuilder) passiveData(init []byte) *modBuilder {
	b.m.Data = append(b.m.Data, wasm.DataSegment{Init: init, Flags: 1})
	n := uint32(len(b.m.Data))
	b.m.DataCount = &n
	return b
}

func (b *modBuilder) module() *wasm.Module {
	return &b.m
}

func instantiate(t *testing.T, m *wasm.Module, reg *runtime.HostRegistry, cfg Config) *Interpreter {
	t.Helper()
	inst, err := runtime.Instantiate(context.Background(), m, reg)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return New(inst, cfg)
}

// call runs fn on a fresh thread and fails the test on error.
func call(t *testing.T, it *Interpreter, fn uint32, args ...Value) []Value {
	t.Helper()
	res, err := it.NewThread().Call(context.Background(), fn, args...)
	if err != nil {
		t.Fatalf("Call(%d): %v", fn, err)
	}
	return res
}

// single builds a one-function module and returns its interpreter.
func single(t *testing.T, ft wasm.FuncType, locals []wasm.ValType, code *wasm.CodeBuilder) *Interpreter {
	t.Helper()
	b := newModule()
	b.fn(ft, locals, code)
	return instantiate(t, b.module(), nil, DefaultConfig())
}

// start initializes fn on a fresh thread without running it.
func start(t *testing.T, it *Interpreter, fn uint32, args ...Value) *Thread {
	t.Helper()
	th := it.NewThread()
	th.StartActivation()
	if err := th.InitFrame(fn, args); err != nil {
		t.Fatalf("InitFrame(%d): %v", fn, err)
	}
	return th
}
