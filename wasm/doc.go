// Package wasm describes core WebAssembly modules: types, opcodes, and the
// binary format.
//
// The interpreter treats a Module as read-only input. Function bodies are kept
// as raw bytes and decoded in place; DecodeInstruction decodes a single
// instruction at a byte offset and is what control-flow analysis and
// disassembly build on.
//
// # Parsing
//
//	m, err := wasm.ParseModule(data)
//	if err != nil {
//		return err
//	}
//
// # Encoding
//
//	bin := m.Encode()
//
// # Assembling bytecode
//
// CodeBuilder assembles function bodies without a text-format frontend:
//
//	code := wasm.NewCode().
//		LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).
//		End().Bytes()
//
// Supported instruction set: the 1.0 core, sign extension, saturating
// truncation, bulk memory, atomics, multi-value blocks, and a SIMD subset.
package wasm
