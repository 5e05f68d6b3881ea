package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

// WazeroEngine runs modules on a wazero runtime.
type WazeroEngine struct {
	runtime  wazero.Runtime
	hostMods map[string]map[string]*runtime.HostFuncDef
	hostMu   sync.Mutex
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	// This allows atomic operations and shared memory within WASM modules.
	EnableThreads bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
	}

	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{
		runtime:  rt,
		hostMods: make(map[string]map[string]*runtime.HostFuncDef),
	}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Instantiate encodes m, binds its function imports to host functions from
// reg and instantiates it. The start section runs; exports named _start do
// not.
func (e *WazeroEngine) Instantiate(ctx context.Context, m *wasm.Module, reg *runtime.HostRegistry) (*WazeroInstance, error) {
	if m == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "nil module")
	}
	if reg == nil {
		reg = runtime.NewHostRegistry()
	}
	if err := e.bindImports(ctx, m, reg); err != nil {
		return nil, err
	}

	compiled, err := e.runtime.CompileModule(ctx, m.Encode())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "compile failed")
	}

	// anonymous for parallel instantiation
	modConfig := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	instance, err := e.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "instantiate failed")
	}

	inst := &WazeroInstance{
		compiled:  compiled,
		instance:  instance,
		funcCache: make(map[string]api.Function),
	}
	if mem := instance.Memory(); mem != nil {
		inst.memory = &WazeroMemory{mem: mem}
	}
	return inst, nil
}

// bindImports makes sure every import module name has a host module.
func (e *WazeroEngine) bindImports(ctx context.Context, m *wasm.Module, reg *runtime.HostRegistry) error {
	needed := make(map[string][]string)
	var order []string
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			return errors.Unsupported(errors.PhaseEngine,
				fmt.Sprintf("import %s.%s: only function imports are bridged", imp.Module, imp.Name))
		}
		if _, ok := reg.Func(imp.Module, imp.Name); !ok {
			return errors.MissingImport(imp.Module, imp.Name)
		}
		if _, ok := needed[imp.Module]; !ok {
			order = append(order, imp.Module)
		}
		needed[imp.Module] = append(needed[imp.Module], imp.Name)
	}

	e.hostMu.Lock()
	defer e.hostMu.Unlock()
	for _, name := range order {
		if bound, ok := e.hostMods[name]; ok {
			for _, fn := range needed[name] {
				def, _ := reg.Func(name, fn)
				if bound[fn] != def {
					return errors.New(errors.PhaseEngine, errors.KindInvalidInput).
						Path(name, fn).Detail("host module already bound to a different definition").Build()
				}
			}
			continue
		}
		if err := e.buildHostModule(ctx, name, needed[name], reg); err != nil {
			return err
		}
	}
	return nil
}

func (e *WazeroEngine) buildHostModule(ctx context.Context, name string, required []string, reg *runtime.HostRegistry) error {
	builder := e.runtime.NewHostModuleBuilder(name)
	bound := make(map[string]*runtime.HostFuncDef)
	for _, def := range reg.Funcs() {
		if def.Module != name {
			continue
		}
		params, ok1 := apiTypes(def.Type.Params)
		results, ok2 := apiTypes(def.Type.Results)
		if !ok1 || !ok2 {
			if slices.Contains(required, def.Name) {
				return errors.Unsupported(errors.PhaseEngine,
					fmt.Sprintf("host function %s.%s %s: v128 is not supported by wazero host functions", name, def.Name, def.Type.String()))
			}
			continue
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(bridge(def), params, results).
			Export(def.Name)
		bound[def.Name] = def
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "instantiate host module "+name)
	}
	e.hostMods[name] = bound
	Logger().Debug("host module bound", zap.String("module", name), zap.Int("funcs", len(bound)))
	return nil
}

func apiTypes(types []wasm.ValType) ([]api.ValueType, bool) {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		switch t {
		case wasm.ValI32:
			out[i] = api.ValueTypeI32
		case wasm.ValI64:
			out[i] = api.ValueTypeI64
		case wasm.ValF32:
			out[i] = api.ValueTypeF32
		case wasm.ValF64:
			out[i] = api.ValueTypeF64
		default:
			return nil, false
		}
	}
	return out, true
}

type callStateKey struct{}

// callState carries the host failure of one Call out of wazero.
type callState struct {
	hostErr error
}

// bridge adapts a host function to wazero. Both use one uint64 slot per
// value, so the stack is passed through untouched.
func bridge(def *runtime.HostFuncDef) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		var mem wasminterp.Memory
		if m := mod.Memory(); m != nil {
			mem = &WazeroMemory{mem: m}
		}
		if err := def.Fn(ctx, mem, stack); err != nil {
			if cs, ok := ctx.Value(callStateKey{}).(*callState); ok && cs.hostErr == nil {
				cs.hostErr = err
			}
			panic(err)
		}
	}
}

// WazeroInstance is a running WASM instance.
// It is NOT safe for concurrent use from multiple goroutines.
type WazeroInstance struct {
	compiled  wazero.CompiledModule
	instance  api.Module
	memory    *WazeroMemory
	funcCache map[string]api.Function
}

// GetExportedFunction returns an exported function by name, or nil.
func (i *WazeroInstance) GetExportedFunction(name string) api.Function {
	if fn, ok := i.funcCache[name]; ok {
		return fn
	}
	fn := i.instance.ExportedFunction(name)
	if fn != nil {
		i.funcCache[name] = fn
	}
	return fn
}

// ExportNames returns the exported function names in sorted order.
func (i *WazeroInstance) ExportNames() []string {
	defs := i.instance.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Memory returns the instance memory, or nil if it has none.
func (i *WazeroInstance) Memory() wasminterp.Memory {
	if i.memory == nil {
		return nil
	}
	return i.memory
}

// Call invokes an exported function. Arguments and results use one slot
// per scalar and two per v128. A trap is returned as a runtime trap error;
// a failing host function as an unwound error carrying its cause.
func (i *WazeroInstance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.GetExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseEngine, "export", name)
	}
	cs := &callState{}
	results, err := fn.Call(context.WithValue(ctx, callStateKey{}, cs), params...)
	if err == nil {
		return results, nil
	}
	if cs.hostErr != nil {
		return nil, errors.Unwound(cs.hostErr)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, errors.New(errors.PhaseRuntime, errors.KindTrap).
		Path(name).Detail("%s", trapMessage(err)).Cause(err).Build()
}

// trapMessage strips wazero's prefix and stack trace from a trap error.
func trapMessage(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimPrefix(msg, "wasm error: ")
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	var firstErr error
	if i.instance != nil {
		if err := i.instance.Close(ctx); err != nil {
			firstErr = err
		}
		i.instance = nil
	}
	if i.compiled != nil {
		if err := i.compiled.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		i.compiled = nil
	}
	i.funcCache = nil
	i.memory = nil
	return firstErr
}
