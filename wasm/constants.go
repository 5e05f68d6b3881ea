package wasm

// Binary header.
const (
	Magic   uint32 = 0x6D736100 // "\0asm"
	Version uint32 = 0x01
)

// Section ids.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// Import and export kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Value types.
const (
	ValI32     ValType = 0x7F
	ValI64     ValType = 0x7E
	ValF32     ValType = 0x7D
	ValF64     ValType = 0x7C
	ValV128    ValType = 0x7B
	ValFuncRef ValType = 0x70
	ValExtern  ValType = 0x6F
)

// FuncTypeByte introduces a function type in the type section.
const FuncTypeByte byte = 0x60

// Block types as decoded s33 values. Non-negative values are type indices.
const (
	BlockTypeVoid int64 = -64
	BlockTypeI32  int64 = -1
	BlockTypeI64  int64 = -2
	BlockTypeF32  int64 = -3
	BlockTypeF64  int64 = -4
	BlockTypeV128 int64 = -5
)

// PageSize is the linear memory page size in bytes.
const PageSize = 65536

// MaxPages is the largest page count a 32-bit memory can hold.
const MaxPages = 65536

// Control.
const (
	OpUnreachable  byte = 0x00
	OpNop          byte = 0x01
	OpBlock        byte = 0x02
	OpLoop         byte = 0x03
	OpIf           byte = 0x04
	OpElse         byte = 0x05
	OpEnd          byte = 0x0B
	OpBr           byte = 0x0C
	OpBrIf         byte = 0x0D
	OpBrTable      byte = 0x0E
	OpReturn       byte = 0x0F
	OpCall         byte = 0x10
	OpCallIndirect byte = 0x11
)

// Parametric and variable access.
const (
	OpDrop       byte = 0x1A
	OpSelect     byte = 0x1B
	OpSelectType byte = 0x1C
	OpLocalGet   byte = 0x20
	OpLocalSet   byte = 0x21
	OpLocalTee   byte = 0x22
	OpGlobalGet  byte = 0x23
	OpGlobalSet  byte = 0x24
)

// Memory access.
const (
	OpI32Load    byte = 0x28
	OpI64Load    byte = 0x29
	OpF32Load    byte = 0x2A
	OpF64Load    byte = 0x2B
	OpI32Load8S  byte = 0x2C
	OpI32Load8U  byte = 0x2D
	OpI32Load16S byte = 0x2E
	OpI32Load16U byte = 0x2F
	OpI64Load8S  byte = 0x30
	OpI64Load8U  byte = 0x31
	OpI64Load16S byte = 0x32
	OpI64Load16U byte = 0x33
	OpI64Load32S byte = 0x34
	OpI64Load32U byte = 0x35
	OpI32Store   byte = 0x36
	OpI64Store   byte = 0x37
	OpF32Store   byte = 0x38
	OpF64Store   byte = 0x39
	OpI32Store8  byte = 0x3A
	OpI32Store16 byte = 0x3B
	OpI64Store8  byte = 0x3C
	OpI64Store16 byte = 0x3D
	OpI64Store32 byte = 0x3E
	OpMemorySize byte = 0x3F
	OpMemoryGrow byte = 0x40
)

// Constants.
const (
	OpI32Const byte = 0x41
	OpI64Const byte = 0x42
	OpF32Const byte = 0x43
	OpF64Const byte = 0x44
)

// Comparisons.
const (
	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtS byte = 0x48
	OpI32LtU byte = 0x49
	OpI32GtS byte = 0x4A
	OpI32GtU byte = 0x4B
	OpI32LeS byte = 0x4C
	OpI32LeU byte = 0x4D
	OpI32GeS byte = 0x4E
	OpI32GeU byte = 0x4F
	OpI64Eqz byte = 0x50
	OpI64Eq  byte = 0x51
	OpI64Ne  byte = 0x52
	OpI64LtS byte = 0x53
	OpI64LtU byte = 0x54
	OpI64GtS byte = 0x55
	OpI64GtU byte = 0x56
	OpI64LeS byte = 0x57
	OpI64LeU byte = 0x58
	OpI64GeS byte = 0x59
	OpI64GeU byte = 0x5A
	OpF32Eq  byte = 0x5B
	OpF32Ne  byte = 0x5C
	OpF32Lt  byte = 0x5D
	OpF32Gt  byte = 0x5E
	OpF32Le  byte = 0x5F
	OpF32Ge  byte = 0x60
	OpF64Eq  byte = 0x61
	OpF64Ne  byte = 0x62
	OpF64Lt  byte = 0x63
	OpF64Gt  byte = 0x64
	OpF64Le  byte = 0x65
	OpF64Ge  byte = 0x66
)

// Integer arithmetic.
const (
	OpI32Clz    byte = 0x67
	OpI32Ctz    byte = 0x68
	OpI32Popcnt byte = 0x69
	OpI32Add    byte = 0x6A
	OpI32Sub    byte = 0x6B
	OpI32Mul    byte = 0x6C
	OpI32DivS   byte = 0x6D
	OpI32DivU   byte = 0x6E
	OpI32RemS   byte = 0x6F
	OpI32RemU   byte = 0x70
	OpI32And    byte = 0x71
	OpI32Or     byte = 0x72
	OpI32Xor    byte = 0x73
	OpI32Shl    byte = 0x74
	OpI32ShrS   byte = 0x75
	OpI32ShrU   byte = 0x76
	OpI32Rotl   byte = 0x77
	OpI32Rotr   byte = 0x78
	OpI64Clz    byte = 0x79
	OpI64Ctz    byte = 0x7A
	OpI64Popcnt byte = 0x7B
	OpI64Add    byte = 0x7C
	OpI64Sub    byte = 0x7D
	OpI64Mul    byte = 0x7E
	OpI64DivS   byte = 0x7F
	OpI64DivU   byte = 0x80
	OpI64RemS   byte = 0x81
	OpI64RemU   byte = 0x82
	OpI64And    byte = 0x83
	OpI64Or     byte = 0x84
	OpI64Xor    byte = 0x85
	OpI64Shl    byte = 0x86
	OpI64ShrS   byte = 0x87
	OpI64ShrU   byte = 0x88
	OpI64Rotl   byte = 0x89
	OpI64Rotr   byte = 0x8A
)

// Float arithmetic.
const (
	OpF32Abs      byte = 0x8B
	OpF32Neg      byte = 0x8C
	OpF32Ceil     byte = 0x8D
	OpF32Floor    byte = 0x8E
	OpF32Trunc    byte = 0x8F
	OpF32Nearest  byte = 0x90
	OpF32Sqrt     byte = 0x91
	OpF32Add      byte = 0x92
	OpF32Sub      byte = 0x93
	OpF32Mul      byte = 0x94
	OpF32Div      byte = 0x95
	OpF32Min      byte = 0x96
	OpF32Max      byte = 0x97
	OpF32Copysign byte = 0x98
	OpF64Abs      byte = 0x99
	OpF64Neg      byte = 0x9A
	OpF64Ceil     byte = 0x9B
	OpF64Floor    byte = 0x9C
	OpF64Trunc    byte = 0x9D
	OpF64Nearest  byte = 0x9E
	OpF64Sqrt     byte = 0x9F
	OpF64Add      byte = 0xA0
	OpF64Sub      byte = 0xA1
	OpF64Mul      byte = 0xA2
	OpF64Div      byte = 0xA3
	OpF64Min      byte = 0xA4
	OpF64Max      byte = 0xA5
	OpF64Copysign byte = 0xA6
)

// Conversions and sign extension.
const (
	OpI32WrapI64        byte = 0xA7
	OpI32TruncF32S      byte = 0xA8
	OpI32TruncF32U      byte = 0xA9
	OpI32TruncF64S      byte = 0xAA
	OpI32TruncF64U      byte = 0xAB
	OpI64ExtendI32S     byte = 0xAC
	OpI64ExtendI32U     byte = 0xAD
	OpI64TruncF32S      byte = 0xAE
	OpI64TruncF32U      byte = 0xAF
	OpI64TruncF64S      byte = 0xB0
	OpI64TruncF64U      byte = 0xB1
	OpF32ConvertI32S    byte = 0xB2
	OpF32ConvertI32U    byte = 0xB3
	OpF32ConvertI64S    byte = 0xB4
	OpF32ConvertI64U    byte = 0xB5
	OpF32DemoteF64      byte = 0xB6
	OpF64ConvertI32S    byte = 0xB7
	OpF64ConvertI32U    byte = 0xB8
	OpF64ConvertI64S    byte = 0xB9
	OpF64ConvertI64U    byte = 0xBA
	OpF64PromoteF32     byte = 0xBB
	OpI32ReinterpretF32 byte = 0xBC
	OpI64ReinterpretF64 byte = 0xBD
	OpF32ReinterpretI32 byte = 0xBE
	OpF64ReinterpretI64 byte = 0xBF
	OpI32Extend8S       byte = 0xC0
	OpI32Extend16S      byte = 0xC1
	OpI64Extend8S       byte = 0xC2
	OpI64Extend16S      byte = 0xC3
	OpI64Extend32S      byte = 0xC4
)

// Prefixes. The sub-opcode that follows is a LEB128 u32.
const (
	OpPrefixMisc   byte = 0xFC
	OpPrefixSIMD   byte = 0xFD
	OpPrefixAtomic byte = 0xFE
)

// OpBreakpoint is never emitted by producers. The interpreter overlays it on
// a private copy of a function body to mark an armed breakpoint.
const OpBreakpoint byte = 0xFF

// 0xFC sub-opcodes.
const (
	MiscI32TruncSatF32S uint32 = 0x00
	MiscI32TruncSatF32U uint32 = 0x01
	MiscI32TruncSatF64S uint32 = 0x02
	MiscI32TruncSatF64U uint32 = 0x03
	MiscI64TruncSatF32S uint32 = 0x04
	MiscI64TruncSatF32U uint32 = 0x05
	MiscI64TruncSatF64S uint32 = 0x06
	MiscI64TruncSatF64U uint32 = 0x07
	MiscMemoryInit      uint32 = 0x08
	MiscDataDrop        uint32 = 0x09
	MiscMemoryCopy      uint32 = 0x0A
	MiscMemoryFill      uint32 = 0x0B
)

// 0xFE sub-opcodes. Read-modify-write operators come in groups of seven
// (i32, i64, i32 8u, i32 16u, i64 8u, i64 16u, i64 32u) starting at
// AtomicRmwAdd and spaced AtomicRmwGroup apart.
const (
	AtomicNotify     uint32 = 0x00
	AtomicWait32     uint32 = 0x01
	AtomicWait64     uint32 = 0x02
	AtomicFence      uint32 = 0x03
	AtomicI32Load    uint32 = 0x10
	AtomicI64Load    uint32 = 0x11
	AtomicI32Load8U  uint32 = 0x12
	AtomicI32Load16U uint32 = 0x13
	AtomicI64Load8U  uint32 = 0x14
	AtomicI64Load16U uint32 = 0x15
	AtomicI64Load32U uint32 = 0x16
	AtomicI32Store   uint32 = 0x17
	AtomicI64Store   uint32 = 0x18
	AtomicI32Store8  uint32 = 0x19
	AtomicI32Store16 uint32 = 0x1A
	AtomicI64Store8  uint32 = 0x1B
	AtomicI64Store16 uint32 = 0x1C
	AtomicI64Store32 uint32 = 0x1D

	AtomicRmwAdd     uint32 = 0x1E
	AtomicRmwSub     uint32 = 0x25
	AtomicRmwAnd     uint32 = 0x2C
	AtomicRmwOr      uint32 = 0x33
	AtomicRmwXor     uint32 = 0x3A
	AtomicRmwXchg    uint32 = 0x41
	AtomicRmwCmpxchg uint32 = 0x48
	AtomicRmwEnd     uint32 = 0x4F
	AtomicRmwGroup   uint32 = 7
)

// 0xFD sub-opcodes supported by the interpreter.
const (
	SimdV128Load        uint32 = 0x00
	SimdV128Load8x8S    uint32 = 0x01
	SimdV128Load8x8U    uint32 = 0x02
	SimdV128Load16x4S   uint32 = 0x03
	SimdV128Load16x4U   uint32 = 0x04
	SimdV128Load32x2S   uint32 = 0x05
	SimdV128Load32x2U   uint32 = 0x06
	SimdV128Load8Splat  uint32 = 0x07
	SimdV128Load16Splat uint32 = 0x08
	SimdV128Load32Splat uint32 = 0x09
	SimdV128Load64Splat uint32 = 0x0A
	SimdV128Store       uint32 = 0x0B
	SimdV128Const       uint32 = 0x0C
	SimdI8x16Shuffle    uint32 = 0x0D
	SimdI8x16Swizzle    uint32 = 0x0E
	SimdI8x16Splat      uint32 = 0x0F
	SimdI16x8Splat      uint32 = 0x10
	SimdI32x4Splat      uint32 = 0x11
	SimdI64x2Splat      uint32 = 0x12
	SimdF32x4Splat      uint32 = 0x13
	SimdF64x2Splat      uint32 = 0x14

	SimdI8x16ExtractLaneS uint32 = 0x15
	SimdI8x16ExtractLaneU uint32 = 0x16
	SimdI8x16ReplaceLane  uint32 = 0x17
	SimdI16x8ExtractLaneS uint32 = 0x18
	SimdI16x8ExtractLaneU uint32 = 0x19
	SimdI16x8ReplaceLane  uint32 = 0x1A
	SimdI32x4ExtractLane  uint32 = 0x1B
	SimdI32x4ReplaceLane  uint32 = 0x1C
	SimdI64x2ExtractLane  uint32 = 0x1D
	SimdI64x2ReplaceLane  uint32 = 0x1E
	SimdF32x4ExtractLane  uint32 = 0x1F
	SimdF32x4ReplaceLane  uint32 = 0x20
	SimdF64x2ExtractLane  uint32 = 0x21
	SimdF64x2ReplaceLane  uint32 = 0x22

	SimdI32x4Eq uint32 = 0x37
	SimdI32x4Ne uint32 = 0x38

	SimdV128Not       uint32 = 0x4D
	SimdV128And       uint32 = 0x4E
	SimdV128AndNot    uint32 = 0x4F
	SimdV128Or        uint32 = 0x50
	SimdV128Xor       uint32 = 0x51
	SimdV128Bitselect uint32 = 0x52
	SimdV128AnyTrue   uint32 = 0x53

	SimdV128Load32Zero uint32 = 0x5C
	SimdV128Load64Zero uint32 = 0x5D

	SimdI8x16Abs     uint32 = 0x60
	SimdI8x16Neg     uint32 = 0x61
	SimdI8x16AllTrue uint32 = 0x63
	SimdI8x16Bitmask uint32 = 0x64
	SimdI8x16Add     uint32 = 0x6E
	SimdI8x16Sub     uint32 = 0x71

	SimdI16x8Abs     uint32 = 0x80
	SimdI16x8Neg     uint32 = 0x81
	SimdI16x8AllTrue uint32 = 0x83
	SimdI16x8Bitmask uint32 = 0x84
	SimdI16x8Add     uint32 = 0x8E
	SimdI16x8Sub     uint32 = 0x91
	SimdI16x8Mul     uint32 = 0x95

	SimdI32x4Abs     uint32 = 0xA0
	SimdI32x4Neg     uint32 = 0xA1
	SimdI32x4AllTrue uint32 = 0xA3
	SimdI32x4Bitmask uint32 = 0xA4
	SimdI32x4Shl     uint32 = 0xAB
	SimdI32x4ShrS    uint32 = 0xAC
	SimdI32x4ShrU    uint32 = 0xAD
	SimdI32x4Add     uint32 = 0xAE
	SimdI32x4Sub     uint32 = 0xB1
	SimdI32x4Mul     uint32 = 0xB5

	SimdI64x2Abs     uint32 = 0xC0
	SimdI64x2Neg     uint32 = 0xC1
	SimdI64x2AllTrue uint32 = 0xC3
	SimdI64x2Bitmask uint32 = 0xC4
	SimdI64x2Shl     uint32 = 0xCB
	SimdI64x2ShrS    uint32 = 0xCC
	SimdI64x2ShrU    uint32 = 0xCD
	SimdI64x2Add     uint32 = 0xCE
	SimdI64x2Sub     uint32 = 0xD1
	SimdI64x2Mul     uint32 = 0xD5

	SimdF32x4Abs  uint32 = 0xE0
	SimdF32x4Neg  uint32 = 0xE1
	SimdF32x4Sqrt uint32 = 0xE3
	SimdF32x4Add  uint32 = 0xE4
	SimdF32x4Sub  uint32 = 0xE5
	SimdF32x4Mul  uint32 = 0xE6
	SimdF32x4Div  uint32 = 0xE7
	SimdF32x4Min  uint32 = 0xE8
	SimdF32x4Max  uint32 = 0xE9

	SimdF64x2Abs  uint32 = 0xEC
	SimdF64x2Neg  uint32 = 0xED
	SimdF64x2Sqrt uint32 = 0xEF
	SimdF64x2Add  uint32 = 0xF0
	SimdF64x2Sub  uint32 = 0xF1
	SimdF64x2Mul  uint32 = 0xF2
	SimdF64x2Div  uint32 = 0xF3
	SimdF64x2Min  uint32 = 0xF4
	SimdF64x2Max  uint32 = 0xF5
)
