package runtime

import (
	"cmp"
	"context"
	"slices"
	"sync"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// HostFunc implements an imported function.
//
// stack carries the arguments on entry and receives the results on return,
// one 64-bit slot per scalar value and two for v128 (low half first). i32 and
// f32 values occupy the low 32 bits of their slot. This is the same layout
// wazero uses for api.GoModuleFunc, so a HostFunc can back either engine.
//
// mem is nil when the instance has no memory. A returned error unwinds the
// calling activation.
type HostFunc func(ctx context.Context, mem wasminterp.Memory, stack []uint64) error

// HostFuncDef pairs a host function with its signature.
type HostFuncDef struct {
	Fn     HostFunc
	Module string
	Name   string
	Type   wasm.FuncType
}

// StackSize returns the slot count the host stack needs for this signature.
func (d *HostFuncDef) StackSize() int {
	return max(slotCount(d.Type.Params), slotCount(d.Type.Results))
}

func slotCount(types []wasm.ValType) int {
	n := 0
	for _, t := range types {
		n += t.Slots()
	}
	return n
}

// HostRegistry maps import names to host definitions.
type HostRegistry struct {
	funcs    map[string]map[string]*HostFuncDef
	globals  map[string]map[string]*Global
	memories map[string]map[string]*Memory
	mu       sync.RWMutex
}

// NewHostRegistry creates an empty registry.
func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs:    make(map[string]map[string]*HostFuncDef),
		globals:  make(map[string]map[string]*Global),
		memories: make(map[string]map[string]*Memory),
	}
}

// Register adds a host function. Registering the same name twice replaces it.
func (r *HostRegistry) Register(module, name string, ft wasm.FuncType, fn HostFunc) error {
	if module == "" || name == "" {
		return errors.InvalidInput(errors.PhaseHost, "module and name cannot be empty")
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseHost, "host function cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[module] == nil {
		r.funcs[module] = make(map[string]*HostFuncDef)
	}
	r.funcs[module][name] = &HostFuncDef{Module: module, Name: name, Type: ft, Fn: fn}
	return nil
}

// DefineGlobal exposes a global for import.
func (r *HostRegistry) DefineGlobal(module, name string, g *Global) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.globals[module] == nil {
		r.globals[module] = make(map[string]*Global)
	}
	r.globals[module][name] = g
}

// DefineMemory exposes a memory for import.
func (r *HostRegistry) DefineMemory(module, name string, m *Memory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.memories[module] == nil {
		r.memories[module] = make(map[string]*Memory)
	}
	r.memories[module][name] = m
}

// Func looks up a host function.
func (r *HostRegistry) Func(module, name string) (*HostFuncDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.funcs[module][name]
	return def, ok
}

// Funcs returns all registered host functions ordered by module and name.
func (r *HostRegistry) Funcs() []*HostFuncDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*HostFuncDef
	for _, byName := range r.funcs {
		for _, def := range byName {
			out = append(out, def)
		}
	}
	slices.SortFunc(out, func(a, b *HostFuncDef) int {
		return cmp.Or(cmp.Compare(a.Module, b.Module), cmp.Compare(a.Name, b.Name))
	})
	return out
}

func (r *HostRegistry) global(module, name string) (*Global, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.globals[module][name]
	return g, ok
}

func (r *HostRegistry) memory(module, name string) (*Memory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.memories[module][name]
	return m, ok
}
