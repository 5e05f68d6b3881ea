package interp

import (
	"context"

	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

// Host is the live instance a Thread executes against. *runtime.Instance
// implements it.
type Host interface {
	// Module returns the read-only module description.
	Module() *wasm.Module

	// Memory returns linear memory 0, or nil when the module has none.
	Memory() *runtime.Memory

	// Global returns a global by index in the global index space.
	Global(idx uint32) *runtime.Global

	// Table returns the indirect-call table, or nil when the module has none.
	Table() *runtime.Table

	// CanonicalSig maps a type index to an id shared by structurally equal
	// signatures.
	CanonicalSig(typeIdx uint32) uint32

	// DataSegment returns a passive data segment, nil once dropped.
	DataSegment(idx uint32) []byte

	// DropData discards a data segment.
	DropData(idx uint32)

	// CallImport invokes an imported function. Parameters are read from and
	// results written to stack using one slot per scalar and two per v128.
	CallImport(ctx context.Context, funcIdx uint32, stack []uint64) error
}

var _ Host = (*runtime.Instance)(nil)
