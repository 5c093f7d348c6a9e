package compiler

import (
	"github.com/wippyai/asyncgraph/internal/codegen"
	"github.com/wippyai/asyncgraph/wasm"
)

// labelKind names the structured control labels that generated code
// branches to by name rather than by depth.
type labelKind uint8

const (
	labelPlain labelKind = iota
	labelExit
	labelDispatch
	labelBreak
	labelContinue
)

// funcBuilder emits one function body. Every block, loop and if goes
// through it so that branch depths to named labels can be computed.
type funcBuilder struct {
	name    string
	idx     uint32
	params  []wasm.ValType
	results []wasm.ValType
	locals  []wasm.ValType
	labels  []labelKind
	e       *codegen.Emitter
}

func newFuncBuilder(name string, idx uint32, ft wasm.FuncType) *funcBuilder {
	return &funcBuilder{
		name:    name,
		idx:     idx,
		params:  ft.Params,
		results: ft.Results,
		e:       codegen.NewEmitter(),
	}
}

// local declares a fresh local and returns its index.
func (f *funcBuilder) local(t wasm.ValType) uint32 {
	f.locals = append(f.locals, t)
	return uint32(len(f.params) + len(f.locals) - 1)
}

func (f *funcBuilder) block(kind labelKind) {
	f.labels = append(f.labels, kind)
	f.e.Block(codegen.BlockVoid)
}

func (f *funcBuilder) loop(kind labelKind) {
	f.labels = append(f.labels, kind)
	f.e.Loop(codegen.BlockVoid)
}

// ifThen opens an if on the i32 at the top of the stack.
func (f *funcBuilder) ifThen() {
	f.labels = append(f.labels, labelPlain)
	f.e.If(codegen.BlockVoid)
}

func (f *funcBuilder) elseThen() { f.e.Else() }

func (f *funcBuilder) end() {
	f.labels = f.labels[:len(f.labels)-1]
	f.e.End()
}

// depth returns the branch depth of the innermost open label of kind.
func (f *funcBuilder) depth(kind labelKind) uint32 {
	for i := len(f.labels) - 1; i >= 0; i-- {
		if f.labels[i] == kind {
			return uint32(len(f.labels) - 1 - i)
		}
	}
	panic("compiler: branch to a label that is not open: " + f.name)
}

func (f *funcBuilder) br(kind labelKind)   { f.e.Br(f.depth(kind)) }
func (f *funcBuilder) brIf(kind labelKind) { f.e.BrIf(f.depth(kind)) }

// body assembles the function: prologue, emitted code, and the final end.
func (f *funcBuilder) body(prologue []byte) *wasm.FuncBody {
	var entries []wasm.LocalEntry
	for _, t := range f.locals {
		if n := len(entries); n > 0 && entries[n-1].ValType == t {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, wasm.LocalEntry{Count: 1, ValType: t})
	}
	code := make([]byte, 0, len(prologue)+f.e.Len()+1)
	code = append(code, prologue...)
	code = append(code, f.e.Bytes()...)
	code = append(code, wasm.OpEnd)
	return &wasm.FuncBody{Locals: entries, Code: code}
}

// forEach emits a loop running body once for every i in [0, n), where n
// is a local.
func (f *funcBuilder) forEach(n uint32, body func(i uint32) error) error {
	e := f.e
	i := f.local(wasm.ValI32)
	e.I32Const(0).LocalSet(i)
	f.block(labelBreak)
	f.loop(labelContinue)
	e.LocalGet(i).LocalGet(n).I32GeU()
	f.brIf(labelBreak)
	if err := body(i); err != nil {
		return err
	}
	e.LocalGet(i).I32Const(1).I32Add().LocalSet(i)
	f.br(labelContinue)
	f.end()
	f.end()
	return nil
}
