package wasm_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/asyncgraph/wasm"
)

func TestEncodeEmptyModule(t *testing.T) {
	m := &wasm.Module{}
	data := m.Encode()

	if !bytes.Equal(data, []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}) {
		t.Errorf("unexpected header %v", data)
	}
}

func TestEncodeTypeSection(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI64}},
		},
	}
	data := m.Encode()
	want := []byte{wasm.SectionType, 6, 1, wasm.FuncTypeByte, 1, 0x7F, 1, 0x7E}
	if !bytes.Equal(data[8:], want) {
		t.Errorf("type section = %v, want %v", data[8:], want)
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &wasm.Module{}
	a := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	b := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	c := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	if a != c || a == b || len(m.Types) != 2 {
		t.Errorf("AddType: a=%d b=%d c=%d types=%d", a, b, c, len(m.Types))
	}
}

// A module using every section the compiler emits must be accepted by wazero.
func TestEncodeCompiles(t *testing.T) {
	max := uint32(4)
	m := &wasm.Module{}
	voidI32 := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	retI32 := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	m.Imports = []wasm.Import{
		{Module: "rt", Name: "sink", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: voidI32}},
	}
	m.Funcs = []uint32{retI32}
	m.Tables = []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 2, Max: &max}}}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Globals = []wasm.Global{
		{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: wasm.ConstI32(1024)},
	}
	m.Exports = []wasm.Export{
		{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		{Name: "answer", Kind: wasm.KindFunc, Idx: 1},
	}
	m.Elements = []wasm.Element{{Offset: wasm.ConstI32(0), FuncIdxs: []uint32{1}}}
	count := uint32(1)
	m.DataCount = &count
	m.Code = []wasm.FuncBody{{
		Locals: []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI32}},
		Code: []byte{
			wasm.OpI32Const, 16, wasm.OpI32Const, 0, wasm.OpI32Const, 4,
			wasm.OpPrefixMisc, byte(wasm.MiscMemoryCopy), 0, 0,
			wasm.OpI32Const, 42, wasm.OpEnd,
		},
	}}
	m.Data = []wasm.DataSegment{{Offset: wasm.ConstI32(0), Init: []byte("abcd")}}

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	if _, err := r.CompileModule(ctx, m.Encode()); err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
}
