package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Instruction is one decoded instruction at a byte offset of a function body.
type Instruction struct {
	Imm    Immediate
	PC     int    // offset of the opcode byte
	Len    int    // encoded length including prefix and immediates
	Sub    uint32 // sub-opcode for the 0xFC, 0xFD and 0xFE families
	Opcode byte
}

// Immediate holds the decoded immediates. Which fields are meaningful
// depends on the opcode.
type Immediate struct {
	Labels    []uint32 // br_table targets; the last entry is the default
	V128      [16]byte // v128.const bytes or i8x16.shuffle lanes
	BlockType int64    // s33: negative for void/value types, otherwise a type index
	Value     uint64   // constants: two's complement integers or IEEE bits
	Offset    uint32
	Align     uint32
	Index     uint32 // label, local, global, func, type or data index
	Index2    uint32 // table index for call_indirect, memory index for bulk ops
	Lane      byte
}

// DecodeError reports an undecodable instruction.
type DecodeError struct {
	Cause  error
	PC     int
	Opcode byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode opcode 0x%02x at pc %d: %v", e.Opcode, e.PC, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ErrUnknownOpcode is the cause of a DecodeError for opcodes outside the
// supported instruction set.
var ErrUnknownOpcode = errors.New("unknown opcode")

// DecodeInstruction decodes the instruction starting at code[pc].
func DecodeInstruction(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, &DecodeError{PC: pc, Cause: ErrTruncated}
	}
	d := decoder{code: code, pos: pc + 1}
	in := Instruction{PC: pc, Opcode: code[pc]}
	d.instruction(&in)
	if d.err != nil {
		return Instruction{}, &DecodeError{PC: pc, Opcode: in.Opcode, Cause: d.err}
	}
	in.Len = d.pos - pc
	return in, nil
}

type decoder struct {
	err  error
	code []byte
	pos  int
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	v, n, err := DecodeU32(d.code[d.pos:])
	if err != nil {
		d.err = err
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) s64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := DecodeS64(d.code[d.pos:])
	if err != nil {
		d.err = err
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.pos+n > len(d.code) {
		d.err = ErrTruncated
		return nil
	}
	b := d.code[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) memarg(imm *Immediate) {
	imm.Align = d.u32()
	imm.Offset = d.u32()
}

func (d *decoder) instruction(in *Instruction) {
	imm := &in.Imm
	switch op := in.Opcode; {
	case op == OpBlock || op == OpLoop || op == OpIf:
		imm.BlockType = d.s64()
	case op == OpBr || op == OpBrIf || op == OpCall ||
		(op >= OpLocalGet && op <= OpGlobalSet):
		imm.Index = d.u32()
	case op == OpBrTable:
		n := d.u32()
		if d.err == nil && int(n) > len(d.code)-d.pos {
			d.err = ErrTruncated
			return
		}
		imm.Labels = make([]uint32, 0, n+1)
		for i := uint32(0); i <= n && d.err == nil; i++ {
			imm.Labels = append(imm.Labels, d.u32())
		}
	case op == OpCallIndirect:
		imm.Index = d.u32()
		imm.Index2 = d.u32()
	case op == OpSelectType:
		n := d.u32()
		d.bytes(int(n))
	case op >= OpI32Load && op <= OpI64Store32:
		d.memarg(imm)
	case op == OpMemorySize || op == OpMemoryGrow:
		imm.Index2 = d.u32()
	case op == OpI32Const || op == OpI64Const:
		imm.Value = uint64(d.s64())
	case op == OpF32Const:
		if b := d.bytes(4); b != nil {
			imm.Value = uint64(binary.LittleEndian.Uint32(b))
		}
	case op == OpF64Const:
		if b := d.bytes(8); b != nil {
			imm.Value = binary.LittleEndian.Uint64(b)
		}
	case op == OpPrefixMisc:
		in.Sub = d.u32()
		d.misc(in)
	case op == OpPrefixAtomic:
		in.Sub = d.u32()
		if in.Sub == AtomicFence {
			d.bytes(1)
		} else {
			d.memarg(imm)
		}
	case op == OpPrefixSIMD:
		in.Sub = d.u32()
		d.simd(in)
	case op <= OpI64Extend32S:
		if _, ok := opNames[op]; !ok {
			d.err = ErrUnknownOpcode
		}
	default:
		d.err = ErrUnknownOpcode
	}
}

func (d *decoder) misc(in *Instruction) {
	switch in.Sub {
	case MiscMemoryInit:
		in.Imm.Index = d.u32()
		in.Imm.Index2 = d.u32()
	case MiscDataDrop:
		in.Imm.Index = d.u32()
	case MiscMemoryCopy:
		in.Imm.Index = d.u32()
		in.Imm.Index2 = d.u32()
	case MiscMemoryFill:
		in.Imm.Index2 = d.u32()
	default:
		if in.Sub > MiscI64TruncSatF64U {
			d.err = ErrUnknownOpcode
		}
	}
}

func (d *decoder) simd(in *Instruction) {
	switch sub := in.Sub; {
	case sub <= SimdV128Store, sub == SimdV128Load32Zero, sub == SimdV128Load64Zero:
		d.memarg(&in.Imm)
	case sub >= 0x54 && sub <= 0x5B:
		d.memarg(&in.Imm)
		if b := d.bytes(1); b != nil {
			in.Imm.Lane = b[0]
		}
	case sub == SimdV128Const || sub == SimdI8x16Shuffle:
		if b := d.bytes(16); b != nil {
			copy(in.Imm.V128[:], b)
		}
	case sub >= SimdI8x16ExtractLaneS && sub <= SimdF64x2ReplaceLane:
		if b := d.bytes(1); b != nil {
			in.Imm.Lane = b[0]
		}
	}
}

// Name returns the instruction's mnemonic.
func (in Instruction) Name() string {
	switch in.Opcode {
	case OpPrefixMisc:
		if n, ok := miscNames[in.Sub]; ok {
			return n
		}
	case OpPrefixAtomic:
		return atomicName(in.Sub)
	case OpPrefixSIMD:
		if n, ok := simdNames[in.Sub]; ok {
			return n
		}
		return fmt.Sprintf("simd.0x%02x", in.Sub)
	default:
		if n, ok := opNames[in.Opcode]; ok {
			return n
		}
	}
	return fmt.Sprintf("0x%02x", in.Opcode)
}

func (in Instruction) String() string {
	switch op := in.Opcode; {
	case op == OpBlock || op == OpLoop || op == OpIf:
		if in.Imm.BlockType == BlockTypeVoid {
			return in.Name()
		}
		if in.Imm.BlockType >= 0 {
			return fmt.Sprintf("%s (type %d)", in.Name(), in.Imm.BlockType)
		}
		return fmt.Sprintf("%s (result %s)", in.Name(), ValType(byte(in.Imm.BlockType&0x7f)))
	case op == OpBrTable:
		return fmt.Sprintf("%s %v", in.Name(), in.Imm.Labels)
	case op == OpBr || op == OpBrIf || op == OpCall || (op >= OpLocalGet && op <= OpGlobalSet):
		return fmt.Sprintf("%s %d", in.Name(), in.Imm.Index)
	case op == OpCallIndirect:
		return fmt.Sprintf("%s (type %d)", in.Name(), in.Imm.Index)
	case op >= OpI32Load && op <= OpI64Store32:
		return fmt.Sprintf("%s offset=%d", in.Name(), in.Imm.Offset)
	case op == OpI32Const:
		return fmt.Sprintf("%s %d", in.Name(), int32(in.Imm.Value))
	case op == OpI64Const:
		return fmt.Sprintf("%s %d", in.Name(), int64(in.Imm.Value))
	}
	return in.Name()
}
