// Package runtime holds the live state of an instantiated module: linear
// memory, globals, the function table and the host functions bound to the
// module's imports.
//
// An Instance is what the interpreter executes against. It never runs code
// itself; the start function, if any, is left to the caller.
//
//	reg := runtime.NewHostRegistry()
//	reg.Register("env", "log", wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}, logFn)
//	inst, err := runtime.Instantiate(ctx, module, reg)
package runtime
