package codegen

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

func decode(t *testing.T, e *Emitter) []wasm.Instruction {
	t.Helper()
	instrs, err := wasm.DecodeInstructions(e.Bytes())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return instrs
}

func opcodes(instrs []wasm.Instruction) []byte {
	out := make([]byte, len(instrs))
	for i, in := range instrs {
		out[i] = in.Opcode
	}
	return out
}

func TestEmitter_ResetAndCopy(t *testing.T) {
	e := NewEmitter()
	if e.Len() != 0 {
		t.Fatalf("new emitter len = %d, want 0", e.Len())
	}
	e.I32Const(42)
	snapshot := e.Copy()
	e.I32Const(100)
	if len(snapshot) == e.Len() {
		t.Error("Copy should be independent of later writes")
	}
	e.Reset()
	if e.Len() != 0 {
		t.Errorf("len after reset = %d, want 0", e.Len())
	}
}

func TestEmitter_Sequences(t *testing.T) {
	tests := []struct {
		emit func(e *Emitter)
		name string
		want []byte
	}{
		{
			name: "dispatch loop skeleton",
			emit: func(e *Emitter) {
				e.Loop(BlockVoid).
					LocalGet(0).I64Eqz().If(BlockVoid).Return().End().
					LocalGet(0).I64Ctz().I32WrapI64().LocalSet(1).
					Br(0).
					End()
			},
			want: []byte{
				wasm.OpLoop,
				wasm.OpLocalGet, wasm.OpI64Eqz, wasm.OpIf, wasm.OpReturn, wasm.OpEnd,
				wasm.OpLocalGet, wasm.OpI64Ctz, wasm.OpI32WrapI64, wasm.OpLocalSet,
				wasm.OpBr,
				wasm.OpEnd,
			},
		},
		{
			name: "indirect call",
			emit: func(e *Emitter) {
				e.LocalGet(1).LocalGet(0).CallIndirect(3, 0)
			},
			want: []byte{wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpCallIndirect},
		},
		{
			name: "copy and fill",
			emit: func(e *Emitter) {
				e.LocalGet(0).LocalGet(1).CopyBytes(12)
				e.LocalGet(0).ZeroBytes(8)
			},
			want: []byte{
				wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpI32Const, wasm.OpPrefixMisc,
				wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Const, wasm.OpPrefixMisc,
			},
		},
		{
			name: "zero sized copy drops operands",
			emit: func(e *Emitter) {
				e.LocalGet(0).LocalGet(1).CopyBytes(0)
			},
			want: []byte{wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpDrop, wasm.OpDrop},
		},
		{
			name: "add offset zero is a no-op",
			emit: func(e *Emitter) {
				e.LocalGet(0).AddOffset(0).AddOffset(4)
			},
			want: []byte{wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Add},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter()
			tt.emit(e)
			if diff := cmp.Diff(tt.want, opcodes(decode(t, e))); diff != "" {
				t.Errorf("opcodes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmitter_BrTable(t *testing.T) {
	e := NewEmitter()
	e.BrTable([]uint32{0, 1, 2}, 3)
	instrs := decode(t, e)
	if len(instrs) != 1 {
		t.Fatalf("got %d instrs, want 1", len(instrs))
	}
	want := wasm.BrTableImm{Labels: []uint32{0, 1, 2}, Default: 3}
	if diff := cmp.Diff(want, instrs[0].Imm); diff != "" {
		t.Errorf("br_table mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitter_TypedAccess(t *testing.T) {
	tests := []struct {
		typ       *types.Type
		name      string
		wantLoad  wasm.Instruction
		wantStore byte
	}{
		{
			name:      "bool",
			typ:       types.Bool,
			wantLoad:  wasm.Instruction{Opcode: wasm.OpI32Load8U, Imm: wasm.MemoryImm{Offset: 4}},
			wantStore: wasm.OpI32Store8,
		},
		{
			name:      "int8",
			typ:       types.Int8,
			wantLoad:  wasm.Instruction{Opcode: wasm.OpI32Load8S, Imm: wasm.MemoryImm{Offset: 4}},
			wantStore: wasm.OpI32Store8,
		},
		{
			name:      "uint16",
			typ:       types.UInt16,
			wantLoad:  wasm.Instruction{Opcode: wasm.OpI32Load16U, Imm: wasm.MemoryImm{Offset: 4, Align: 1}},
			wantStore: wasm.OpI32Store16,
		},
		{
			name:      "int32",
			typ:       types.Int32,
			wantLoad:  wasm.Instruction{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Offset: 4, Align: 2}},
			wantStore: wasm.OpI32Store,
		},
		{
			name:      "int64",
			typ:       types.Int64,
			wantLoad:  wasm.Instruction{Opcode: wasm.OpI64Load, Imm: wasm.MemoryImm{Offset: 4, Align: 3}},
			wantStore: wasm.OpI64Store,
		},
		{
			name:      "reference",
			typ:       types.ImmutableRef(types.String, ""),
			wantLoad:  wasm.Instruction{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Offset: 4, Align: 2}},
			wantStore: wasm.OpI32Store,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter()
			e.Load(tt.typ, 4)
			got := decode(t, e)
			if diff := cmp.Diff([]wasm.Instruction{tt.wantLoad}, got); diff != "" {
				t.Errorf("load mismatch (-want +got):\n%s", diff)
			}

			e.Reset()
			e.Store(tt.typ, 0)
			if op := decode(t, e)[0].Opcode; op != tt.wantStore {
				t.Errorf("store opcode = %#x, want %#x", op, tt.wantStore)
			}
		})
	}
}

func TestEmitter_Normalize(t *testing.T) {
	tests := []struct {
		typ  *types.Type
		name string
		want []byte
	}{
		{name: "int8", typ: types.Int8, want: []byte{wasm.OpI32Extend8S}},
		{name: "uint8", typ: types.UInt8, want: []byte{wasm.OpI32Const, wasm.OpI32And}},
		{name: "int16", typ: types.Int16, want: []byte{wasm.OpI32Extend16S}},
		{name: "int32", typ: types.Int32, want: []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter()
			e.Normalize(tt.typ)
			if diff := cmp.Diff(tt.want, opcodes(decode(t, e))); diff != "" {
				t.Errorf("normalize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmitter_EmitInstrRoundTrip(t *testing.T) {
	src := NewEmitter()
	src.Block(BlockI32).
		LocalGet(2).I32Load(2, 16).
		I64Const(-7).Drop().
		GlobalGet(0).BrIf(0).
		Call(5).
		LocalGet(0).LocalGet(1).I32Const(4).MemoryCopy().
		End()

	dst := NewEmitter()
	dst.EmitInstrs(decode(t, src))
	if diff := cmp.Diff(src.Bytes(), dst.Bytes()); diff != "" {
		t.Errorf("re-encoded bytes differ (-want +got):\n%s", diff)
	}
}
