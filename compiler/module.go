package compiler

import (
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

// staticsBase is the first address handed out for static data. Address 0
// stays unused so a zero pointer never aliases data.
const staticsBase = 8

// moduleBuilder accumulates the module while definitions are compiled.
// Imports are fixed before the first defined function is declared so that
// function indices are stable.
type moduleBuilder struct {
	m wasm.Module

	imports map[string]uint32 // "module.name" -> function index
	// defined function slots, index relative to the first defined function
	bodies   []*wasm.FuncBody
	funcName []string

	table []uint32 // function indices; table index = position + 1

	statics []byte
	data    []wasm.DataSegment

	globals     []wasm.Global
	globalNames map[string]uint32
}

func newModuleBuilder() *moduleBuilder {
	return &moduleBuilder{
		imports:     make(map[string]uint32),
		globalNames: make(map[string]uint32),
		statics:     make([]byte, 0, 64),
	}
}

// importFunc declares an imported function. All imports must be declared
// before defineFunc is called.
func (mb *moduleBuilder) importFunc(module, name string, ft wasm.FuncType) uint32 {
	key := module + "." + name
	if idx, ok := mb.imports[key]; ok {
		return idx
	}
	idx := uint32(len(mb.imports))
	mb.m.Imports = append(mb.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: mb.m.AddType(ft)},
	})
	mb.imports[key] = idx
	return idx
}

func (mb *moduleBuilder) runtimeFunc(name string) uint32 {
	return mb.imports[RuntimeModule+"."+name]
}

// declareFunc reserves a function index for a function whose body is
// supplied later with setBody.
func (mb *moduleBuilder) declareFunc(name string, ft wasm.FuncType) uint32 {
	mb.m.Funcs = append(mb.m.Funcs, mb.m.AddType(ft))
	mb.bodies = append(mb.bodies, nil)
	mb.funcName = append(mb.funcName, name)
	return uint32(len(mb.imports) + len(mb.bodies) - 1)
}

func (mb *moduleBuilder) setBody(idx uint32, body *wasm.FuncBody) {
	mb.bodies[int(idx)-len(mb.imports)] = body
}

func (mb *moduleBuilder) funcType(idx uint32) wasm.FuncType {
	if int(idx) < len(mb.imports) {
		return mb.m.Types[mb.m.Imports[idx].Desc.TypeIdx]
	}
	return mb.m.Types[mb.m.Funcs[int(idx)-len(mb.imports)]]
}

// tableSlot places a function in the function table and returns its table
// index. Index 0 is never used, so a zero function reference means none.
func (mb *moduleBuilder) tableSlot(funcIdx uint32) uint32 {
	mb.table = append(mb.table, funcIdx)
	return uint32(len(mb.table))
}

// static reserves size bytes of zeroed static memory.
func (mb *moduleBuilder) static(size, align uint32) uint32 {
	off := types.AlignUp(uint32(len(mb.statics)), max(align, 1))
	end := off + max(size, 1)
	for uint32(len(mb.statics)) < end {
		mb.statics = append(mb.statics, 0)
	}
	return staticsBase + off
}

// staticBytes places initialized bytes in static memory.
func (mb *moduleBuilder) staticBytes(b []byte) uint32 {
	addr := mb.static(uint32(len(b)), 1)
	mb.data = append(mb.data, wasm.DataSegment{Offset: wasm.ConstI32(int32(addr)), Init: b})
	return addr
}

func (mb *moduleBuilder) global(name string, t wasm.ValType, mutable bool, init []byte) uint32 {
	idx := uint32(len(mb.globals))
	mb.globals = append(mb.globals, wasm.Global{Type: wasm.GlobalType{ValType: t, Mutable: mutable}, Init: init})
	if name != "" {
		mb.globalNames[name] = idx
	}
	return idx
}

func (mb *moduleBuilder) export(name string, kind byte, idx uint32) {
	mb.m.Exports = append(mb.m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
}

// finish lays out memory and returns the module. The stack sits above the
// statics and grows down; the heap starts at the top of the stack.
func (mb *moduleBuilder) finish(opts Options, stackPointer, heapBase uint32) *wasm.Module {
	staticsEnd := staticsBase + uint32(len(mb.statics))
	stackTop := types.AlignUp(staticsEnd, 16) + opts.StackSize
	pages := max(opts.MemoryPages, (stackTop+0xffff)/0x10000+1)

	mb.globals[stackPointer].Init = wasm.ConstI32(int32(stackTop))
	mb.globals[heapBase].Init = wasm.ConstI32(int32(stackTop))

	mb.m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: pages}}}
	mb.m.Globals = mb.globals
	mb.m.Data = mb.data
	mb.m.Code = make([]wasm.FuncBody, len(mb.bodies))
	for i, b := range mb.bodies {
		mb.m.Code[i] = *b
	}
	if len(mb.table) > 0 {
		n := uint32(len(mb.table) + 1)
		mb.m.Tables = []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: n, Max: &n}}}
		mb.m.Elements = []wasm.Element{{Offset: wasm.ConstI32(1), FuncIdxs: mb.table}}
	}
	mb.export(ExportMemory, wasm.KindMemory, 0)
	return &mb.m
}
