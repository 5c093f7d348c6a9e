package wasm

import (
	"bytes"
	"fmt"
)

// Instruction is a decoded instruction of a function body.
type Instruction struct {
	Imm    any
	Opcode byte
}

// BlockImm holds the block type for block, loop and if.
type BlockImm struct {
	Type int32
}

// BranchImm holds the label index for br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Offset uint32
	Align  uint32
}

// I32Imm holds the constant of i32.const.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant of i64.const.
type I64Imm struct {
	Value int64
}

// MiscImm holds the sub-opcode and immediates of a 0xFC instruction.
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// CallTarget returns the callee of a direct call.
func (i Instruction) CallTarget() (uint32, bool) {
	if i.Opcode == OpCall {
		if imm, ok := i.Imm.(CallImm); ok {
			return imm.FuncIdx, true
		}
	}
	return 0, false
}

// DecodeInstructions decodes a sequence of instructions from raw bytes.
// Only the instruction subset produced by the compiler is recognized.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := bytes.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)

	u32 := func() (uint32, error) { return ReadLEB128u(r) }

	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			break
		}
		instr := Instruction{Opcode: op}

		switch {
		case op == OpBlock || op == OpLoop || op == OpIf:
			bt, err := ReadLEB128s64(r)
			if err != nil {
				return nil, err
			}
			instr.Imm = BlockImm{Type: int32(bt)}

		case op == OpBr || op == OpBrIf:
			l, err := u32()
			if err != nil {
				return nil, err
			}
			instr.Imm = BranchImm{LabelIdx: l}

		case op == OpBrTable:
			n, err := u32()
			if err != nil {
				return nil, err
			}
			labels := make([]uint32, n)
			for i := range labels {
				if labels[i], err = u32(); err != nil {
					return nil, err
				}
			}
			def, err := u32()
			if err != nil {
				return nil, err
			}
			instr.Imm = BrTableImm{Labels: labels, Default: def}

		case op == OpCall:
			f, err := u32()
			if err != nil {
				return nil, err
			}
			instr.Imm = CallImm{FuncIdx: f}

		case op == OpCallIndirect:
			t, err := u32()
			if err != nil {
				return nil, err
			}
			tbl, err := u32()
			if err != nil {
				return nil, err
			}
			instr.Imm = CallIndirectImm{TypeIdx: t, TableIdx: tbl}

		case op >= OpLocalGet && op <= OpLocalTee:
			l, err := u32()
			if err != nil {
				return nil, err
			}
			instr.Imm = LocalImm{LocalIdx: l}

		case op == OpGlobalGet || op == OpGlobalSet:
			g, err := u32()
			if err != nil {
				return nil, err
			}
			instr.Imm = GlobalImm{GlobalIdx: g}

		case op >= OpI32Load && op <= OpI64Store32:
			a, err := u32()
			if err != nil {
				return nil, err
			}
			off, err := u32()
			if err != nil {
				return nil, err
			}
			instr.Imm = MemoryImm{Align: a, Offset: off}

		case op == OpMemorySize || op == OpMemoryGrow:
			if _, err := r.ReadByte(); err != nil {
				return nil, err
			}

		case op == OpI32Const:
			v, err := ReadLEB128s64(r)
			if err != nil {
				return nil, err
			}
			instr.Imm = I32Imm{Value: int32(v)}

		case op == OpI64Const:
			v, err := ReadLEB128s64(r)
			if err != nil {
				return nil, err
			}
			instr.Imm = I64Imm{Value: v}

		case op == OpPrefixMisc:
			sub, err := u32()
			if err != nil {
				return nil, err
			}
			imm := MiscImm{SubOpcode: sub}
			var n int
			switch sub {
			case MiscMemoryInit, MiscMemoryCopy:
				n = 2
			case MiscDataDrop, MiscMemoryFill:
				n = 1
			default:
				return nil, fmt.Errorf("unknown misc opcode: %d", sub)
			}
			for range n {
				v, err := u32()
				if err != nil {
					return nil, err
				}
				imm.Operands = append(imm.Operands, v)
			}
			instr.Imm = imm

		case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd, op == OpReturn,
			op == OpDrop, op == OpSelect,
			op >= OpI32Eqz && op <= OpI64GeU,
			op >= OpI32Clz && op <= OpI32ShrU,
			op >= OpI64Clz && op <= OpI64ShrU,
			op == OpI32WrapI64, op == OpI64ExtendI32S, op == OpI64ExtendI32U,
			op == OpI32Extend8S, op == OpI32Extend16S:

		default:
			return nil, fmt.Errorf("unknown opcode: 0x%02x", op)
		}

		instrs = append(instrs, instr)
	}

	return instrs, nil
}
