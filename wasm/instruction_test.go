package wasm_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/asyncgraph/wasm"
)

func TestDecodeInstructions(t *testing.T) {
	code := []byte{
		wasm.OpBlock, 0x40,
		wasm.OpLocalGet, 3,
		wasm.OpBrTable, 2, 0, 1, 0,
		wasm.OpI32Const, 0x7f,
		wasm.OpI32Load8U, 0, 12,
		wasm.OpPrefixMisc, byte(wasm.MiscMemoryFill), 0,
		wasm.OpCallIndirect, 5, 0,
		wasm.OpEnd,
	}

	got, err := wasm.DecodeInstructions(code)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	want := []wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 3}},
		{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: []uint32{0, 1}, Default: 0}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: -1}},
		{Opcode: wasm.OpI32Load8U, Imm: wasm.MemoryImm{Align: 0, Offset: 12}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryFill, Operands: []uint32{0}}},
		{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: 5, TableIdx: 0}},
		{Opcode: wasm.OpEnd},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded instructions mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeInstructionsUnknownOpcode(t *testing.T) {
	if _, err := wasm.DecodeInstructions([]byte{0xF0}); err == nil {
		t.Error("expected error for unknown opcode")
	}
}

func TestCallTarget(t *testing.T) {
	instrs, err := wasm.DecodeInstructions([]byte{wasm.OpCall, 7})
	if err != nil {
		t.Fatal(err)
	}
	if idx, ok := instrs[0].CallTarget(); !ok || idx != 7 {
		t.Errorf("CallTarget = %d, %v", idx, ok)
	}
}
