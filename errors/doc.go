// Package errors provides structured error types for the interpreter.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Runtime errors carry the function index and byte offset of the
// faulting instruction.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCompile, errors.KindMalformed).
//		At(fn, pc).
//		Detail("operand stack underflow").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Trap(reason, fn, pc)
//	err := errors.MissingImport("env", "log")
//
// Matching by phase and kind works through the standard library:
//
//	if errors.Is(err, wasmerrors.ErrTrap) { ... }
package errors
