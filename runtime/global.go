package runtime

import "github.com/wippyai/wasm-interp/wasm"

// Global is a global variable instance. Scalars live in Lo; v128 uses both
// halves, low lanes in Lo.
type Global struct {
	Type wasm.GlobalType
	Lo   uint64
	Hi   uint64
}

// NewGlobal creates a global holding a scalar value.
func NewGlobal(vt wasm.ValType, mutable bool, bits uint64) *Global {
	return &Global{Type: wasm.GlobalType{ValType: vt, Mutable: mutable}, Lo: bits}
}
