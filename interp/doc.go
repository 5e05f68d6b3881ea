// Package interp is a WebAssembly bytecode interpreter.
//
// Function bodies are executed in place. Before a function first runs, a
// single forward scan resolves its structured control flow into a
// SideTable keyed by branch-site offset, so the execution loop never keeps a
// control stack: branches look up their pc delta, the number of operands to
// discard and the number to keep.
//
// A Thread owns a value stack shared by all of its frames (parameters,
// locals and operands), a frame stack and an activation stack. Activations
// scope unwinding: a failing host call truncates exactly the innermost
// activation and leaves outer ones intact, which makes host functions free
// to re-enter the interpreter through Thread.Call.
//
//	in := interp.New(instance, interp.DefaultConfig())
//	th := in.NewThread()
//	results, err := th.Call(ctx, fn, interp.I32(7))
//
// Traps leave the thread in StateTrapped with pc frozen at the faulting
// instruction; Err reports the reason and location. Malformed bodies are
// rejected when their side table is built and never surface as traps.
package interp
