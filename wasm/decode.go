package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-interp/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule decodes a core module binary. It performs structural decoding
// only; type checking of function bodies is left to the producer.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var last byte
	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section header", err)
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError("section header", err)
		}
		if id != SectionCustom {
			if sectionOrder(id) <= sectionOrder(last) {
				return nil, fmt.Errorf("section %d out of order", id)
			}
			last = id
		}
		sr := binary.NewReader(payload)
		if err := parseSection(sr, id, m); err != nil {
			return nil, sr.WrapError(sectionName(id), err)
		}
		if id != SectionCustom && sr.Len() != 0 {
			return nil, fmt.Errorf("%s: %d trailing bytes", sectionName(id), sr.Len())
		}
	}
	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("function and code section counts differ: %d != %d", len(m.Funcs), len(m.Code))
	}
	return m, nil
}

// DataCount sits between Element and Code in the canonical order.
func sectionOrder(id byte) int {
	switch id {
	case SectionDataCount:
		return int(SectionElement)*2 + 1
	case SectionCode, SectionData:
		return int(id)*2 + 1
	default:
		return int(id) * 2
	}
}

func sectionName(id byte) string {
	names := [...]string{"custom", "type", "import", "function", "table", "memory",
		"global", "export", "start", "element", "code", "data", "datacount"}
	if int(id) < len(names) {
		return names[id]
	}
	return fmt.Sprintf("section %d", id)
}

func parseSection(r *binary.Reader, id byte, m *Module) error {
	switch id {
	case SectionCustom:
		return nil
	case SectionType:
		return readVec(r, func() error {
			form, err := r.ReadByte()
			if err != nil {
				return err
			}
			if form != FuncTypeByte {
				return fmt.Errorf("unsupported type form 0x%02x", form)
			}
			var ft FuncType
			if ft.Params, err = readValTypes(r); err != nil {
				return err
			}
			if ft.Results, err = readValTypes(r); err != nil {
				return err
			}
			m.Types = append(m.Types, ft)
			return nil
		})
	case SectionImport:
		return readVec(r, func() error {
			imp, err := readImport(r)
			if err != nil {
				return err
			}
			m.Imports = append(m.Imports, imp)
			return nil
		})
	case SectionFunction:
		return readVec(r, func() error {
			idx, err := r.ReadU32()
			m.Funcs = append(m.Funcs, idx)
			return err
		})
	case SectionTable:
		return readVec(r, func() error {
			tt, err := readTableType(r)
			m.Tables = append(m.Tables, tt)
			return err
		})
	case SectionMemory:
		return readVec(r, func() error {
			l, err := readLimits(r)
			m.Memories = append(m.Memories, MemoryType{Limits: l})
			return err
		})
	case SectionGlobal:
		return readVec(r, func() error {
			gt, err := readGlobalType(r)
			if err != nil {
				return err
			}
			init, err := readConstExpr(r)
			m.Globals = append(m.Globals, Global{Type: gt, Init: init})
			return err
		})
	case SectionExport:
		return readVec(r, func() error {
			name, err := r.ReadName()
			if err != nil {
				return err
			}
			kind, err := r.ReadByte()
			if err != nil {
				return err
			}
			idx, err := r.ReadU32()
			m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
			return err
		})
	case SectionStart:
		idx, err := r.ReadU32()
		m.Start = &idx
		return err
	case SectionElement:
		return readVec(r, func() error {
			e, err := readElement(r)
			m.Elements = append(m.Elements, e)
			return err
		})
	case SectionCode:
		return readVec(r, func() error {
			b, err := readFuncBody(r)
			m.Code = append(m.Code, b)
			return err
		})
	case SectionData:
		return readVec(r, func() error {
			d, err := readDataSegment(r)
			m.Data = append(m.Data, d)
			return err
		})
	case SectionDataCount:
		n, err := r.ReadU32()
		m.DataCount = &n
		return err
	default:
		return fmt.Errorf("unknown section id %d", id)
	}
}

func readVec(r *binary.Reader, item func() error) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(n) > r.Len() {
		return io.ErrUnexpectedEOF
	}
	for i := uint32(0); i < n; i++ {
		if err := item(); err != nil {
			return err
		}
	}
	return nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch vt := ValType(b); vt {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return vt, nil
	default:
		return 0, fmt.Errorf("invalid value type 0x%02x", b)
	}
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	var out []ValType
	err := readVec(r, func() error {
		vt, err := readValType(r)
		out = append(out, vt)
		return err
	})
	return out, err
}

func readImport(r *binary.Reader) (Import, error) {
	var imp Import
	var err error
	if imp.Module, err = r.ReadName(); err != nil {
		return imp, err
	}
	if imp.Name, err = r.ReadName(); err != nil {
		return imp, err
	}
	if imp.Desc.Kind, err = r.ReadByte(); err != nil {
		return imp, err
	}
	switch imp.Desc.Kind {
	case KindFunc:
		imp.Desc.TypeIdx, err = r.ReadU32()
	case KindTable:
		var tt TableType
		tt, err = readTableType(r)
		imp.Desc.Table = &tt
	case KindMemory:
		var l Limits
		l, err = readLimits(r)
		imp.Desc.Memory = &MemoryType{Limits: l}
	case KindGlobal:
		var gt GlobalType
		gt, err = readGlobalType(r)
		imp.Desc.Global = &gt
	default:
		err = fmt.Errorf("unknown import kind 0x%02x", imp.Desc.Kind)
	}
	return imp, err
}

func readLimits(r *binary.Reader) (Limits, error) {
	var l Limits
	flags, err := r.ReadByte()
	if err != nil {
		return l, err
	}
	if flags > 3 {
		return l, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}
	l.Shared = flags&2 != 0
	if l.Min, err = r.ReadU64(); err != nil {
		return l, err
	}
	if flags&1 != 0 {
		max, err := r.ReadU64()
		if err != nil {
			return l, err
		}
		l.Max = &max
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	var tt TableType
	var err error
	if tt.ElemType, err = readValType(r); err != nil {
		return tt, err
	}
	tt.Limits, err = readLimits(r)
	return tt, err
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	var gt GlobalType
	var err error
	if gt.ValType, err = readValType(r); err != nil {
		return gt, err
	}
	mut, err := r.ReadByte()
	gt.Mutable = mut == 1
	return gt, err
}

// readConstExpr returns the raw bytes of a constant expression up to and
// including its end opcode.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case OpEnd:
			end := r.Position()
			if err := r.Reset(start); err != nil {
				return nil, err
			}
			return r.ReadBytes(end - start)
		case OpI32Const, OpI64Const:
			_, err = r.ReadS64()
		case OpF32Const:
			_, err = r.ReadBytes(4)
		case OpF64Const:
			_, err = r.ReadBytes(8)
		case OpGlobalGet, 0xD2: // global.get, ref.func
			_, err = r.ReadU32()
		case 0xD0: // ref.null
			_, err = r.ReadByte()
		case OpPrefixSIMD:
			var sub uint32
			if sub, err = r.ReadU32(); err == nil && sub != SimdV128Const {
				err = fmt.Errorf("unsupported constant instruction simd 0x%02x", sub)
			}
			if err == nil {
				_, err = r.ReadBytes(16)
			}
		default:
			err = fmt.Errorf("unsupported constant instruction 0x%02x", op)
		}
		if err != nil {
			return nil, err
		}
	}
}

func readElement(r *binary.Reader) (Element, error) {
	var e Element
	var err error
	if e.Flags, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.Flags > 3 {
		return e, fmt.Errorf("unsupported element segment flags %d", e.Flags)
	}
	if e.Flags == 2 {
		if e.TableIdx, err = r.ReadU32(); err != nil {
			return e, err
		}
	}
	if e.Flags&1 == 0 {
		if e.Offset, err = readConstExpr(r); err != nil {
			return e, err
		}
	}
	if e.Flags != 0 {
		kind, err := r.ReadByte()
		if err != nil {
			return e, err
		}
		if kind != 0 {
			return e, fmt.Errorf("unsupported element kind 0x%02x", kind)
		}
	}
	err = readVec(r, func() error {
		idx, err := r.ReadU32()
		e.FuncIdxs = append(e.FuncIdxs, idx)
		return err
	})
	return e, err
}

func readFuncBody(r *binary.Reader) (FuncBody, error) {
	var b FuncBody
	size, err := r.ReadU32()
	if err != nil {
		return b, err
	}
	body, err := r.ReadBytes(int(size))
	if err != nil {
		return b, err
	}
	br := binary.NewReader(body)
	var total uint64
	err = readVec(br, func() error {
		count, err := br.ReadU32()
		if err != nil {
			return err
		}
		total += uint64(count)
		if total > 50000 {
			return fmt.Errorf("too many locals: %d", total)
		}
		vt, err := readValType(br)
		b.Locals = append(b.Locals, LocalEntry{Count: count, ValType: vt})
		return err
	})
	if err != nil {
		return b, err
	}
	b.Code, err = br.ReadBytes(br.Len())
	if err == nil && (len(b.Code) == 0 || b.Code[len(b.Code)-1] != OpEnd) {
		err = errors.New("function body does not end with end opcode")
	}
	return b, err
}

func readDataSegment(r *binary.Reader) (DataSegment, error) {
	var d DataSegment
	var err error
	if d.Flags, err = r.ReadU32(); err != nil {
		return d, err
	}
	switch d.Flags {
	case 0:
	case 1:
	case 2:
		if d.MemIdx, err = r.ReadU32(); err != nil {
			return d, err
		}
	default:
		return d, fmt.Errorf("unsupported data segment flags %d", d.Flags)
	}
	if d.Flags != 1 {
		if d.Offset, err = readConstExpr(r); err != nil {
			return d, err
		}
	}
	n, err := r.ReadU32()
	if err != nil {
		return d, err
	}
	d.Init, err = r.ReadBytes(int(n))
	return d, err
}
