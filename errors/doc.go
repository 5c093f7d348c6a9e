// Package errors provides structured error types for the asyncgraph compiler.
//
// Errors are categorized by Phase (the pipeline stage) and Kind (error category).
// The Error type carries context: location path, graph node id, type name, and
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecompose, errors.KindUnsupported).
//		Node(12).
//		Detail("decomposing non-call node with %d outputs", 2).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingTrait("Clone", "vec[i32]")
//	err := errors.InoutNotReference("value", "i32")
//
// All errors implement the standard error interface and support errors.Is/As.
// Two errors match under errors.Is when their phase and kind match.
package errors
