package runtime

import (
	"context"
	"encoding/binary"
	"fmt"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// Instance is a module instantiated against a host registry.
type Instance struct {
	module  *wasm.Module
	memory  *Memory
	table   *Table
	globals []*Global
	imports []*HostFuncDef // indexed by imported function index
	sigIDs  []uint32
	data    [][]byte // nil once dropped
}

// Instantiate resolves imports, allocates memory, table and globals, and
// applies active data and element segments. The start function is not run.
func Instantiate(ctx context.Context, m *wasm.Module, reg *HostRegistry) (*Instance, error) {
	if m == nil {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, "nil module")
	}
	if reg == nil {
		reg = NewHostRegistry()
	}
	inst := &Instance{module: m, sigIDs: m.CanonicalTypeIDs()}

	if err := inst.resolveImports(reg); err != nil {
		return nil, err
	}
	if inst.memory == nil && len(m.Memories) > 0 {
		l := m.Memories[0].Limits
		inst.memory = NewMemory(uint32(l.Min), maxPages(l), l.Shared)
	}
	if len(m.Tables) > 0 {
		inst.table = NewTable(uint32(m.Tables[0].Limits.Min), m.Tables[0].Limits.Max)
	}
	for i := range m.Globals {
		lo, hi, err := inst.evalConst(m.Globals[i].Init)
		if err != nil {
			return nil, errors.New(errors.PhaseInstantiate, errors.KindInvalidData).
				Path("global", fmt.Sprint(i)).Cause(err).Build()
		}
		inst.globals = append(inst.globals, &Global{Type: m.Globals[i].Type, Lo: lo, Hi: hi})
	}
	if err := inst.initElements(); err != nil {
		return nil, err
	}
	if err := inst.initData(); err != nil {
		return nil, err
	}
	return inst, ctx.Err()
}

func maxPages(l wasm.Limits) uint32 {
	if l.Max == nil || *l.Max > wasm.MaxPages {
		return wasm.MaxPages
	}
	return uint32(*l.Max)
}

func (i *Instance) resolveImports(reg *HostRegistry) error {
	for _, imp := range i.module.Imports {
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			def, ok := reg.Func(imp.Module, imp.Name)
			if !ok {
				return errors.MissingImport(imp.Module, imp.Name)
			}
			if int(imp.Desc.TypeIdx) >= len(i.module.Types) {
				return errors.OutOfBounds(errors.PhaseInstantiate, []string{imp.Module, imp.Name}, int(imp.Desc.TypeIdx), len(i.module.Types))
			}
			want := &i.module.Types[imp.Desc.TypeIdx]
			if !want.Equal(&def.Type) {
				return errors.TypeMismatch(errors.PhaseInstantiate, []string{imp.Module, imp.Name}, want.String(), def.Type.String())
			}
			i.imports = append(i.imports, def)
		case wasm.KindGlobal:
			g, ok := reg.global(imp.Module, imp.Name)
			if !ok {
				return errors.MissingImport(imp.Module, imp.Name)
			}
			if g.Type != *imp.Desc.Global {
				return errors.TypeMismatch(errors.PhaseInstantiate, []string{imp.Module, imp.Name},
					imp.Desc.Global.ValType.String(), g.Type.ValType.String())
			}
			i.globals = append(i.globals, g)
		case wasm.KindMemory:
			mem, ok := reg.memory(imp.Module, imp.Name)
			if !ok {
				return errors.MissingImport(imp.Module, imp.Name)
			}
			if uint64(mem.Pages()) < imp.Desc.Memory.Limits.Min {
				return errors.New(errors.PhaseInstantiate, errors.KindTypeMismatch).
					Path(imp.Module, imp.Name).Detail("memory has %d pages, need %d", mem.Pages(), imp.Desc.Memory.Limits.Min).Build()
			}
			i.memory = mem
		default:
			return errors.Unsupported(errors.PhaseInstantiate, fmt.Sprintf("import %s.%s of kind %d", imp.Module, imp.Name, imp.Desc.Kind))
		}
	}
	return nil
}

// evalConst evaluates a constant initializer expression.
func (i *Instance) evalConst(expr []byte) (lo, hi uint64, err error) {
	in, err := wasm.DecodeInstruction(expr, 0)
	if err != nil {
		return 0, 0, err
	}
	if in.Len >= len(expr) || expr[in.Len] != wasm.OpEnd {
		return 0, 0, fmt.Errorf("constant expression must be a single instruction")
	}
	switch in.Opcode {
	case wasm.OpI32Const:
		return uint64(uint32(in.Imm.Value)), 0, nil
	case wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const:
		return in.Imm.Value, 0, nil
	case wasm.OpGlobalGet:
		if int(in.Imm.Index) >= len(i.globals) {
			return 0, 0, fmt.Errorf("global.get %d: not yet defined", in.Imm.Index)
		}
		g := i.globals[in.Imm.Index]
		return g.Lo, g.Hi, nil
	case wasm.OpPrefixSIMD:
		if in.Sub == wasm.SimdV128Const {
			v := in.Imm.V128
			return binary.LittleEndian.Uint64(v[:8]), binary.LittleEndian.Uint64(v[8:]), nil
		}
	}
	return 0, 0, fmt.Errorf("unsupported constant instruction %s", in.Name())
}

func (i *Instance) initElements() error {
	for idx := range i.module.Elements {
		e := &i.module.Elements[idx]
		if !e.Active() {
			continue
		}
		if i.table == nil || e.TableIdx != 0 {
			return errors.New(errors.PhaseInstantiate, errors.KindNotFound).
				Path("elem", fmt.Sprint(idx)).Detail("table %d not defined", e.TableIdx).Build()
		}
		off, _, err := i.evalConst(e.Offset)
		if err != nil {
			return errors.New(errors.PhaseInstantiate, errors.KindInvalidData).
				Path("elem", fmt.Sprint(idx)).Cause(err).Build()
		}
		start := uint64(uint32(off))
		if start+uint64(len(e.FuncIdxs)) > uint64(i.table.Size()) {
			return errors.OutOfBounds(errors.PhaseInstantiate, []string{"elem", fmt.Sprint(idx)},
				int(start)+len(e.FuncIdxs), int(i.table.Size()))
		}
		for k, fn := range e.FuncIdxs {
			if err := i.table.Set(uint32(start)+uint32(k), fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (i *Instance) initData() error {
	i.data = make([][]byte, len(i.module.Data))
	for idx := range i.module.Data {
		d := &i.module.Data[idx]
		if !d.Active() {
			i.data[idx] = d.Init
			continue
		}
		if i.memory == nil {
			return errors.New(errors.PhaseInstantiate, errors.KindNotFound).
				Path("data", fmt.Sprint(idx)).Detail("memory %d not defined", d.MemIdx).Build()
		}
		off, _, err := i.evalConst(d.Offset)
		if err != nil {
			return errors.New(errors.PhaseInstantiate, errors.KindInvalidData).
				Path("data", fmt.Sprint(idx)).Cause(err).Build()
		}
		if err := i.memory.Write(uint32(off), d.Init); err != nil {
			return errors.Wrap(errors.PhaseInstantiate, errors.KindOutOfBounds, err, fmt.Sprintf("data segment %d", idx))
		}
	}
	return nil
}

// Module returns the instantiated module description.
func (i *Instance) Module() *wasm.Module {
	return i.module
}

// Memory returns memory 0, or nil if the module has none.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// Table returns table 0, or nil if the module has none.
func (i *Instance) Table() *Table {
	return i.table
}

// Global returns a global by index in the global index space.
func (i *Instance) Global(idx uint32) *Global {
	return i.globals[idx]
}

// NumGlobals returns the size of the global index space.
func (i *Instance) NumGlobals() int {
	return len(i.globals)
}

// CanonicalSig returns the canonical signature id of a type index.
func (i *Instance) CanonicalSig(typeIdx uint32) uint32 {
	return i.sigIDs[typeIdx]
}

// DataSegment returns the bytes of a passive data segment, or nil once the
// segment has been dropped. Active segments are dropped after instantiation.
func (i *Instance) DataSegment(idx uint32) []byte {
	if int(idx) >= len(i.data) {
		return nil
	}
	return i.data[idx]
}

// DropData discards a data segment.
func (i *Instance) DropData(idx uint32) {
	if int(idx) < len(i.data) {
		i.data[idx] = nil
	}
}

// HostFunc returns the host definition bound to an imported function.
func (i *Instance) HostFunc(funcIdx uint32) (*HostFuncDef, bool) {
	if int(funcIdx) >= len(i.imports) {
		return nil, false
	}
	return i.imports[funcIdx], true
}

// CallImport invokes the host function bound to an imported function index.
func (i *Instance) CallImport(ctx context.Context, funcIdx uint32, stack []uint64) error {
	def, ok := i.HostFunc(funcIdx)
	if !ok {
		return errors.NotFound(errors.PhaseHost, "imported function", fmt.Sprint(funcIdx))
	}
	var mem wasminterp.Memory
	if i.memory != nil {
		mem = i.memory
	}
	return def.Fn(ctx, mem, stack)
}
