// Package asyncgraph compiles typed dataflow graphs into WebAssembly modules
// whose definitions can suspend and resume.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	asyncgraph/          Root package: the Build pipeline
//	├── graph/           Typed dataflow graphs, structures and traversal
//	├── types/           Data types, layouts and trait queries
//	├── primitive/       Primitive operations and their signatures
//	├── registry/        Yielding and may-panic facts per call target
//	├── decompose/       Rewrites of yielding calls and panicking operations
//	├── asyncgroup/      Async state groups and function id assignment
//	├── valuesource/     Where each variable lives at run time
//	├── compiler/        Code generation and the suspend/resume protocol
//	├── wasm/            Core wasm module model and binary encoder
//	├── runtime/         wazero host: runtime surface and scheduler
//	├── config/          HCL configuration
//	├── samples/         Built-in programs
//	└── errors/          Structured error types
//
// # Quick Start
//
// Build a program and run one of its definitions:
//
//	m, err := asyncgraph.Build(ctx, program, asyncgraph.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	rt, err := runtime.New(ctx, runtime.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer rt.Close(ctx)
//	res, err := rt.Run(ctx, m, "main")
//
// # Pipeline
//
// Build analyzes the program into a registry, then for every definition
// decomposes yielding calls into create/await pairs and panicking operations
// into explicit checks, groups the traversal into async state groups, and
// assigns function ids. The compiler then emits one wasm function per
// synchronous definition, or an init function plus one function per function
// id for definitions that may suspend.
//
// Prepare stops before code generation so callers can examine the groups.
package asyncgraph
