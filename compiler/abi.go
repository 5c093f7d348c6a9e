package compiler

import (
	"strconv"

	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

// RuntimeModule is the import module of the fixed runtime surface.
const RuntimeModule = "rt"

// ExternalModule is the import module of non-yielding external targets.
const ExternalModule = "ext"

// Runtime surface symbols.
const (
	SymAlloc                   = "alloc"
	SymFree                    = "free"
	SymSchedule                = "schedule"
	SymFakeDrop                = "fake_drop"
	SymOutputBool              = "output_bool"
	SymOutputInt8              = "output_int8"
	SymOutputUInt8             = "output_uint8"
	SymOutputInt16             = "output_int16"
	SymOutputUInt16            = "output_uint16"
	SymOutputInt32             = "output_int32"
	SymOutputUInt32            = "output_uint32"
	SymOutputInt64             = "output_int64"
	SymOutputUInt64            = "output_uint64"
	SymOutputString            = "output_string"
	SymStringFromSlice         = "string_from_slice"
	SymStringConcat            = "string_concat"
	SymStringAppend            = "string_append"
	SymStringClone             = "string_clone"
	SymStringDrop              = "string_drop"
	SymStringSplitIteratorNext = "string_split_iterator_next"
	SymRangeIteratorNext       = "range_iterator_next"
	SymOpenFileHandle          = "open_file_handle"
	SymReadLine                = "read_line_from_file_handle"
	SymWriteString             = "write_string_to_file_handle"
	SymDropFileHandle          = "drop_file_handle"
)

// RuntimeImport is one function of the runtime surface.
type RuntimeImport struct {
	Name string
	Type wasm.FuncType
}

func i32s(n int) []wasm.ValType {
	out := make([]wasm.ValType, n)
	for i := range out {
		out[i] = wasm.ValI32
	}
	return out
}

// RuntimeImports lists the runtime surface in import order. Pointers are
// i32 addresses in the module's memory. A string slice argument is the
// address of its {ptr, len} pair; an out argument is the address the callee
// writes its result to.
var RuntimeImports = []RuntimeImport{
	{SymAlloc, wasm.FuncType{Params: i32s(2), Results: i32s(1)}},     // (size, align) -> ptr
	{SymFree, wasm.FuncType{Params: i32s(1)}},                        // (ptr)
	{SymSchedule, wasm.FuncType{Params: i32s(2)}},                    // (fn, state)
	{SymFakeDrop, wasm.FuncType{Params: i32s(1)}},                    // (id)
	{SymOutputBool, wasm.FuncType{Params: i32s(1)}},                  // (value)
	{SymOutputInt8, wasm.FuncType{Params: i32s(1)}},                  // (value)
	{SymOutputUInt8, wasm.FuncType{Params: i32s(1)}},                 // (value)
	{SymOutputInt16, wasm.FuncType{Params: i32s(1)}},                 // (value)
	{SymOutputUInt16, wasm.FuncType{Params: i32s(1)}},                // (value)
	{SymOutputInt32, wasm.FuncType{Params: i32s(1)}},                 // (value)
	{SymOutputUInt32, wasm.FuncType{Params: i32s(1)}},                // (value)
	{SymOutputInt64, wasm.FuncType{Params: []wasm.ValType{wasm.ValI64}}}, // (value)
	{SymOutputUInt64, wasm.FuncType{Params: []wasm.ValType{wasm.ValI64}}},
	{SymOutputString, wasm.FuncType{Params: i32s(2)}},           // (ptr, len)
	{SymStringFromSlice, wasm.FuncType{Params: i32s(2)}},        // (slice, out string)
	{SymStringConcat, wasm.FuncType{Params: i32s(3)}},           // (slice, slice, out string)
	{SymStringAppend, wasm.FuncType{Params: i32s(2)}},           // (string, slice)
	{SymStringClone, wasm.FuncType{Params: i32s(2)}},            // (src string, dst string)
	{SymStringDrop, wasm.FuncType{Params: i32s(1)}},             // (string)
	{SymStringSplitIteratorNext, wasm.FuncType{Params: i32s(2)}}, // (iterator, out option[str])
	{SymRangeIteratorNext, wasm.FuncType{Params: i32s(2)}},      // (iterator, out option[i32])
	{SymOpenFileHandle, wasm.FuncType{Params: i32s(2)}},         // (path slice, out option[filehandle])
	{SymReadLine, wasm.FuncType{Params: i32s(2)}},               // (handle ref, out option[string])
	{SymWriteString, wasm.FuncType{Params: i32s(2)}},            // (handle ref, slice)
	{SymDropFileHandle, wasm.FuncType{Params: i32s(1)}},         // (handle)
}

// Continuation record header of an asynchronous activation.
const (
	RecordStatusOffset     = 0
	RecordWakerFnOffset    = 4
	RecordWakerStateOffset = 8
	RecordPanickedOffset   = 12
	RecordResultPtrOffset  = 16
	RecordHeaderSize       = 20
)

// Activation status values.
const (
	StatusNotStarted = 0
	StatusRunning    = 1
	StatusDone       = 2
)

// Notifier cell status values.
const (
	NotifierEmpty   = 0
	NotifierSet     = 1
	NotifierDropped = 2
	NotifierTaken   = 3
)

// Exported symbols of a built module.
const (
	ExportMemory   = "memory"
	ExportInvoke   = "__invoke"
	ExportHeapBase = "__heap_base"
	ExportPanicked = "__panicked"
)

// Names of the exports of definition name.
func InitExport(name string) string  { return name + "::init" }
func EntryExport(name string) string { return name + "::entry" }

// InspectExport is the global holding the address of an inspect slot.
func InspectExport(nodeID int) string {
	return "inspect_" + strconv.Itoa(nodeID)
}

// QualifiedInspectExport disambiguates inspect slots of definitions that
// share node ids.
func QualifiedInspectExport(definition string, nodeID int) string {
	return definition + "::" + InspectExport(nodeID)
}

// outputSymbol returns the output function for a displayable type.
func outputSymbol(t *types.Type) (string, bool) {
	switch t.Kind() {
	case types.KindBool:
		return SymOutputBool, true
	case types.KindInt8:
		return SymOutputInt8, true
	case types.KindUInt8:
		return SymOutputUInt8, true
	case types.KindInt16:
		return SymOutputInt16, true
	case types.KindUInt16:
		return SymOutputUInt16, true
	case types.KindInt32:
		return SymOutputInt32, true
	case types.KindUInt32:
		return SymOutputUInt32, true
	case types.KindInt64:
		return SymOutputInt64, true
	case types.KindUInt64:
		return SymOutputUInt64, true
	case types.KindString, types.KindStringSlice:
		return SymOutputString, true
	}
	return "", false
}

// valType is the wasm type a value of t travels as. Aggregates travel by
// address.
func valType(t *types.Type) wasm.ValType {
	if t.Scalar() == types.ScalarI64 {
		return wasm.ValI64
	}
	return wasm.ValI32
}

// CallResultType is the value a call of a definition with the given
// outputs produces: Bool for none, the output itself for one, a cluster
// otherwise. Definitions that may panic wrap it in a PanicResult.
func CallResultType(outputs []*types.Type, mayPanic bool) *types.Type {
	var result *types.Type
	switch len(outputs) {
	case 0:
		result = types.Bool
	case 1:
		result = outputs[0]
	default:
		result = types.Cluster(outputs...)
	}
	if mayPanic {
		return types.PanicResult(result)
	}
	return result
}
