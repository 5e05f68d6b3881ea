// Package wasminterp is a WebAssembly bytecode interpreter.
//
// Function bodies execute directly from their binary encoding. A one-time
// pass per function builds a control-transfer table that resolves every
// branch to a pc delta, an operand-stack adjustment and an arity, so the
// execution loop never scans for matching block ends.
//
// # Architecture Overview
//
//	wasminterp/          Root package with the host-facing Memory interface
//	├── wasm/            Module description, opcodes, binary format, bytecode builder
//	├── runtime/         Live instance: memory, globals, table, host functions
//	├── interp/          Interpreter core: threads, frames, activations, breakpoints
//	├── trace/           Deterministic execution traces (CBOR, optional zstd)
//	├── engine/          wazero execution backend
//	├── crosscheck/      Runs both backends and compares results
//	├── errors/          Structured error types
//	└── cmd/run/         CLI and interactive step debugger
//
// # Quick Start
//
//	m, err := wasm.ParseModule(bin)
//	if err != nil {
//		log.Fatal(err)
//	}
//	inst, err := runtime.Instantiate(ctx, m, runtime.NewHostRegistry())
//	if err != nil {
//		log.Fatal(err)
//	}
//	it := interp.New(inst, interp.DefaultConfig())
//	th := it.NewThread()
//	results, err := th.Call(ctx, fnIdx, interp.I32(20), interp.I32(22))
//
// # Threads and Activations
//
// A Thread owns an operand stack and a frame stack. Each host entry into the
// interpreter opens an activation; re-entrant calls from host functions stack
// further activations on the same thread. Traps stop the thread with a
// reason code; host failures unwind the current activation.
package wasminterp
