// Package vm implements the horn Prolog engine.
//
// This package contains:
//   - Tagged word representation and the global, local and trail stacks
//   - Unification and standard order comparison
//   - The clause compiler and the bytecode interpreter
//   - Frames, choice points, cut and last call optimization
//   - catch/throw, cleanup handlers and resource limits
//   - The foreign predicate bridge and the builtin library
//   - Port tracing, profiling and disassembly
package vm
