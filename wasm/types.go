package wasm

import "slices"

// Module is the in-memory form of a WebAssembly module produced by the
// compiler. Only function imports, a single table and memory, active
// segments and the bulk memory data count are modeled.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type index per defined function
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// DataCount is required when memory.init or data.drop appear in code.
	DataCount *uint32
}

type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) Equal(o FuncType) bool {
	return slices.Equal(f.Params, o.Params) && slices.Equal(f.Results, o.Results)
}

// ValType is a WebAssembly value type byte.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	default:
		return "unknown"
	}
}

// Import is an imported function. Desc.Kind is always KindFunc.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

type ImportDesc struct {
	TypeIdx uint32
	Kind    byte
}

type TableType struct {
	Limits   Limits
	ElemType ValType
}

type MemoryType struct {
	Limits Limits
}

// Limits bounds a table or memory. A nil Max leaves it unbounded.
type Limits struct {
	Max *uint32
	Min uint32
}

type GlobalType struct {
	ValType ValType
	Mutable bool
}

type Global struct {
	Type GlobalType
	Init []byte // constant expression, including end
}

type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element is an active element segment for table 0.
type Element struct {
	Offset   []byte
	FuncIdxs []uint32
}

type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // including the final end
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment is an active data segment for memory 0.
type DataSegment struct {
	Offset []byte
	Init   []byte
}

// NumImportedFuncs returns the number of imported functions, which precede
// the defined ones in the function index space.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			n++
		}
	}
	return n
}

// AddType returns the index of ft in the type section, appending it if needed.
func (m *Module) AddType(ft FuncType) uint32 {
	if i := slices.IndexFunc(m.Types, ft.Equal); i >= 0 {
		return uint32(i)
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ExportIndex returns the export with the given name.
func (m *Module) ExportIndex(name string) (Export, bool) {
	i := slices.IndexFunc(m.Exports, func(e Export) bool { return e.Name == name })
	if i < 0 {
		return Export{}, false
	}
	return m.Exports[i], true
}

// ConstI32 returns a constant expression producing v.
func ConstI32(v int32) []byte {
	return append(AppendSLEB128([]byte{OpI32Const}, int64(v)), OpEnd)
}

// ConstI64 returns a constant expression producing v.
func ConstI64(v int64) []byte {
	return append(AppendSLEB128([]byte{OpI64Const}, v), OpEnd)
}
