// Package wasm models and encodes the WebAssembly modules produced by the
// asyncgraph compiler.
//
// The model covers the MVP sections plus the bulk memory instructions
// (memory.copy, memory.fill, memory.init, data.drop) the compiler relies on
// for aggregate copies and zero initialization.
//
// # Encoding
//
//	m := &wasm.Module{}
//	sig := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
//	m.Funcs = append(m.Funcs, sig)
//	m.Code = append(m.Code, wasm.FuncBody{Code: body})
//	data := m.Encode()
//
// # Decoding
//
// DecodeInstructions decodes a function body back into instructions. It
// recognizes the instruction subset the compiler emits and is used by tests to
// inspect generated code.
package wasm
