package wasm

import (
	"github.com/wippyai/wasm-interp/wasm/internal/binary"
)

// Encode serializes the module to the binary format. Sections are emitted in
// canonical order and empty sections are omitted.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	vecSection(w, SectionType, len(m.Types), func(sec *binary.Writer, i int) {
		sec.Byte(FuncTypeByte)
		writeValTypes(sec, m.Types[i].Params)
		writeValTypes(sec, m.Types[i].Results)
	})
	vecSection(w, SectionImport, len(m.Imports), func(sec *binary.Writer, i int) {
		imp := &m.Imports[i]
		sec.WriteName(imp.Module)
		sec.WriteName(imp.Name)
		sec.Byte(imp.Desc.Kind)
		switch imp.Desc.Kind {
		case KindFunc:
			sec.WriteU32(imp.Desc.TypeIdx)
		case KindTable:
			writeTableType(sec, *imp.Desc.Table)
		case KindMemory:
			writeLimits(sec, imp.Desc.Memory.Limits)
		case KindGlobal:
			writeGlobalType(sec, *imp.Desc.Global)
		}
	})
	vecSection(w, SectionFunction, len(m.Funcs), func(sec *binary.Writer, i int) {
		sec.WriteU32(m.Funcs[i])
	})
	vecSection(w, SectionTable, len(m.Tables), func(sec *binary.Writer, i int) {
		writeTableType(sec, m.Tables[i])
	})
	vecSection(w, SectionMemory, len(m.Memories), func(sec *binary.Writer, i int) {
		writeLimits(sec, m.Memories[i].Limits)
	})
	vecSection(w, SectionGlobal, len(m.Globals), func(sec *binary.Writer, i int) {
		writeGlobalType(sec, m.Globals[i].Type)
		sec.WriteBytes(m.Globals[i].Init)
	})
	vecSection(w, SectionExport, len(m.Exports), func(sec *binary.Writer, i int) {
		sec.WriteName(m.Exports[i].Name)
		sec.Byte(m.Exports[i].Kind)
		sec.WriteU32(m.Exports[i].Idx)
	})
	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		writeSection(w, SectionStart, sec.Bytes())
	}
	vecSection(w, SectionElement, len(m.Elements), func(sec *binary.Writer, i int) {
		e := &m.Elements[i]
		sec.WriteU32(e.Flags)
		if e.Flags == 2 {
			sec.WriteU32(e.TableIdx)
		}
		if e.Flags&1 == 0 {
			sec.WriteBytes(e.Offset)
		}
		if e.Flags != 0 {
			sec.Byte(0) // elemkind funcref
		}
		sec.WriteU32(uint32(len(e.FuncIdxs)))
		for _, idx := range e.FuncIdxs {
			sec.WriteU32(idx)
		}
	})
	if m.DataCount != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.DataCount)
		writeSection(w, SectionDataCount, sec.Bytes())
	}
	vecSection(w, SectionCode, len(m.Code), func(sec *binary.Writer, i int) {
		body := binary.NewWriter()
		body.WriteU32(uint32(len(m.Code[i].Locals)))
		for _, l := range m.Code[i].Locals {
			body.WriteU32(l.Count)
			body.Byte(byte(l.ValType))
		}
		body.WriteBytes(m.Code[i].Code)
		sec.WriteU32(uint32(body.Len()))
		sec.WriteBytes(body.Bytes())
	})
	vecSection(w, SectionData, len(m.Data), func(sec *binary.Writer, i int) {
		d := &m.Data[i]
		sec.WriteU32(d.Flags)
		if d.Flags == 2 {
			sec.WriteU32(d.MemIdx)
		}
		if d.Flags != 1 {
			sec.WriteBytes(d.Offset)
		}
		sec.WriteU32(uint32(len(d.Init)))
		sec.WriteBytes(d.Init)
	})
	return w.Bytes()
}

func vecSection(w *binary.Writer, id byte, n int, item func(sec *binary.Writer, i int)) {
	if n == 0 {
		return
	}
	sec := binary.NewWriter()
	sec.WriteU32(uint32(n))
	for i := 0; i < n; i++ {
		item(sec, i)
	}
	writeSection(w, id, sec.Bytes())
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.Max != nil {
		flags |= 1
	}
	if l.Shared {
		flags |= 2
	}
	w.Byte(flags)
	w.WriteU64(l.Min)
	if l.Max != nil {
		w.WriteU64(*l.Max)
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}
