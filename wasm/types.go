package wasm

// Module is the read-only description of a validated core module.
// Function bodies are stored undecoded; the interpreter reads them in place.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type index per defined function
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// DataCount is set when the binary carries a data count section.
	DataCount *uint32
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports structural equality of two signatures.
func (f *FuncType) Equal(o *FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

func (f *FuncType) String() string {
	s := "("
	for i, p := range f.Params {
		if i > 0 {
			s += " "
		}
		s += p.String()
	}
	s += ") -> ("
	for i, r := range f.Results {
		if i > 0 {
			s += " "
		}
		s += r.String()
	}
	return s + ")"
}

// ValType is a value type byte as encoded in the binary format.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// Slots is the number of 64-bit host slots a value of this type occupies
// when marshalled across the host boundary.
func (v ValType) Slots() int {
	if v == ValV128 {
		return 2
	}
	return 1
}

// Import is an imported function, table, memory or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item. Kind is one of the Kind* constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
}

// Limits bound a table or memory. Memory limits are in 64 KiB pages.
type Limits struct {
	Max    *uint64
	Min    uint64
	Shared bool
}

// GlobalType describes a global's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a defined global with its constant initializer.
type Global struct {
	Type GlobalType
	Init []byte // constant expression including the terminating end
}

// Export is an exported item. Kind is one of the Kind* constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element is an element segment holding function indices.
//   - Flags 0/2: active at Offset in TableIdx
//   - Flags 1: passive
//   - Flags 3: declarative
type Element struct {
	Offset   []byte
	FuncIdxs []uint32
	Flags    uint32
	TableIdx uint32
}

// Active reports whether the segment is applied at instantiation.
func (e *Element) Active() bool {
	return e.Flags&1 == 0
}

// FuncBody is a function's local declarations and bytecode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // instruction bytes including the final end
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment is a data segment.
//   - Flags 0/2: active at Offset in memory MemIdx
//   - Flags 1: passive
type DataSegment struct {
	Offset []byte
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

// Active reports whether the segment is applied at instantiation.
func (d *DataSegment) Active() bool {
	return d.Flags != 1
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	return m.numImported(KindFunc)
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	return m.numImported(KindGlobal)
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

func (m *Module) numImported(kind byte) int {
	n := 0
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind == kind {
			n++
		}
	}
	return n
}

// FuncTypeIndex returns the type index of a function in the function index space.
func (m *Module) FuncTypeIndex(funcIdx uint32) (uint32, bool) {
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind != KindFunc {
			continue
		}
		if funcIdx == 0 {
			return m.Imports[i].Desc.TypeIdx, true
		}
		funcIdx--
	}
	if int(funcIdx) >= len(m.Funcs) {
		return 0, false
	}
	return m.Funcs[funcIdx], true
}

// GetFuncType returns the signature of a function, or nil if out of range.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	typeIdx, ok := m.FuncTypeIndex(funcIdx)
	if !ok || int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// ImportedFunc returns the import entry for an imported function index.
func (m *Module) ImportedFunc(funcIdx uint32) (*Import, bool) {
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind != KindFunc {
			continue
		}
		if funcIdx == 0 {
			return &m.Imports[i], true
		}
		funcIdx--
	}
	return nil, false
}

// GlobalType returns the type of a global in the global index space.
func (m *Module) GlobalType(globalIdx uint32) (GlobalType, bool) {
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind != KindGlobal {
			continue
		}
		if globalIdx == 0 {
			return *m.Imports[i].Desc.Global, true
		}
		globalIdx--
	}
	if int(globalIdx) >= len(m.Globals) {
		return GlobalType{}, false
	}
	return m.Globals[globalIdx].Type, true
}

// ExportedFunc looks up an exported function by name.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, e := range m.Exports {
		if e.Kind == KindFunc && e.Name == name {
			return e.Idx, true
		}
	}
	return 0, false
}

// CanonicalTypeIDs maps every type index to the smallest index of a
// structurally equal signature. Two indirect-call signatures match when
// their canonical ids are equal.
func (m *Module) CanonicalTypeIDs() []uint32 {
	ids := make([]uint32, len(m.Types))
	for i := range m.Types {
		ids[i] = uint32(i)
		for j := 0; j < i; j++ {
			if m.Types[j].Equal(&m.Types[i]) {
				ids[i] = ids[j]
				break
			}
		}
	}
	return ids
}

// ExpandLocals flattens a body's local declarations into one type per local.
func (b *FuncBody) ExpandLocals() []ValType {
	var n uint32
	for _, e := range b.Locals {
		n += e.Count
	}
	out := make([]ValType, 0, n)
	for _, e := range b.Locals {
		for i := uint32(0); i < e.Count; i++ {
			out = append(out, e.ValType)
		}
	}
	return out
}
