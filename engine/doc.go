// Package engine runs core modules on wazero. It is the second execution
// backend the interpreter is checked against.
//
// # Architecture
//
//	WazeroEngine   - owns a wazero runtime and the host modules bound into it
//	WazeroInstance - one instantiated module with callable exports
//
// # Host Functions
//
// Host functions come from the same runtime.HostRegistry the interpreter
// uses. Each import module name becomes one wazero host module, built once
// per engine. A runtime.HostFunc uses wazero's stack layout, so the bridge
// only swaps the memory view:
//
//	reg := runtime.NewHostRegistry()
//	reg.Register("env", "double", sig, double)
//	eng, _ := engine.NewWazeroEngine(ctx)
//	inst, _ := eng.Instantiate(ctx, module, reg)
//	out, err := inst.Call(ctx, "run", 21)
//
// Imported globals, memories and tables are not bridged. Host functions
// with v128 parameters or results cannot be expressed in wazero's host
// function API and are rejected.
//
// # Experimental Features
//
// Threads/Atomics: enable via Config.EnableThreads. This turns on the
// threads proposal (shared memory, atomic operations) in wazero.
//
// # Thread Safety
//
// WazeroEngine is safe for concurrent use. WazeroInstance is not and should
// be used by a single goroutine.
package engine
