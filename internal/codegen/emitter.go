// Package codegen emits WebAssembly bytecode for the compiler.
//
// Emitter is a chaining byte builder over the instruction subset the
// compiler produces. Typed helpers pick the load and store width from a
// types.Type so callers never deal with raw opcodes for values.
package codegen

import (
	"bytes"

	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

// Block types for block, loop and if.
const (
	BlockVoid = wasm.BlockTypeVoid
	BlockI32  = wasm.BlockTypeI32
	BlockI64  = wasm.BlockTypeI64
)

// Emitter accumulates the code of one function body.
type Emitter struct {
	buf bytes.Buffer
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Bytes returns the emitted code. The slice aliases the emitter's buffer.
func (e *Emitter) Bytes() []byte { return e.buf.Bytes() }

// Copy returns a copy of the emitted code.
func (e *Emitter) Copy() []byte {
	return bytes.Clone(e.buf.Bytes())
}

// Len returns the number of emitted bytes.
func (e *Emitter) Len() int { return e.buf.Len() }

// Reset discards the emitted code.
func (e *Emitter) Reset() { e.buf.Reset() }

// Raw appends raw bytes.
func (e *Emitter) Raw(b []byte) *Emitter {
	e.buf.Write(b)
	return e
}

func (e *Emitter) op(op byte) *Emitter {
	e.buf.WriteByte(op)
	return e
}

func (e *Emitter) opU32(op byte, v uint32) *Emitter {
	e.buf.WriteByte(op)
	wasm.WriteLEB128u(&e.buf, v)
	return e
}

func (e *Emitter) blockOp(op byte, bt int32) *Emitter {
	e.buf.WriteByte(op)
	wasm.WriteLEB128s(&e.buf, bt)
	return e
}

func (e *Emitter) memOp(op byte, align, offset uint32) *Emitter {
	e.buf.WriteByte(op)
	wasm.WriteLEB128u(&e.buf, align)
	wasm.WriteLEB128u(&e.buf, offset)
	return e
}

// Control flow

func (e *Emitter) Block(bt int32) *Emitter { return e.blockOp(wasm.OpBlock, bt) }
func (e *Emitter) Loop(bt int32) *Emitter  { return e.blockOp(wasm.OpLoop, bt) }
func (e *Emitter) If(bt int32) *Emitter    { return e.blockOp(wasm.OpIf, bt) }
func (e *Emitter) Else() *Emitter          { return e.op(wasm.OpElse) }
func (e *Emitter) End() *Emitter           { return e.op(wasm.OpEnd) }
func (e *Emitter) Br(depth uint32) *Emitter {
	return e.opU32(wasm.OpBr, depth)
}
func (e *Emitter) BrIf(depth uint32) *Emitter {
	return e.opU32(wasm.OpBrIf, depth)
}
func (e *Emitter) Return() *Emitter      { return e.op(wasm.OpReturn) }
func (e *Emitter) Unreachable() *Emitter { return e.op(wasm.OpUnreachable) }
func (e *Emitter) Nop() *Emitter         { return e.op(wasm.OpNop) }
func (e *Emitter) Drop() *Emitter        { return e.op(wasm.OpDrop) }
func (e *Emitter) Select() *Emitter      { return e.op(wasm.OpSelect) }

// BrTable branches to labels[i] for the index on the stack, or to def when
// the index is out of range.
func (e *Emitter) BrTable(labels []uint32, def uint32) *Emitter {
	e.buf.WriteByte(wasm.OpBrTable)
	wasm.WriteLEB128u(&e.buf, uint32(len(labels)))
	for _, l := range labels {
		wasm.WriteLEB128u(&e.buf, l)
	}
	wasm.WriteLEB128u(&e.buf, def)
	return e
}

func (e *Emitter) Call(funcIdx uint32) *Emitter { return e.opU32(wasm.OpCall, funcIdx) }

func (e *Emitter) CallIndirect(typeIdx, tableIdx uint32) *Emitter {
	e.buf.WriteByte(wasm.OpCallIndirect)
	wasm.WriteLEB128u(&e.buf, typeIdx)
	wasm.WriteLEB128u(&e.buf, tableIdx)
	return e
}

// Variables

func (e *Emitter) LocalGet(idx uint32) *Emitter  { return e.opU32(wasm.OpLocalGet, idx) }
func (e *Emitter) LocalSet(idx uint32) *Emitter  { return e.opU32(wasm.OpLocalSet, idx) }
func (e *Emitter) LocalTee(idx uint32) *Emitter  { return e.opU32(wasm.OpLocalTee, idx) }
func (e *Emitter) GlobalGet(idx uint32) *Emitter { return e.opU32(wasm.OpGlobalGet, idx) }
func (e *Emitter) GlobalSet(idx uint32) *Emitter { return e.opU32(wasm.OpGlobalSet, idx) }

// Constants

func (e *Emitter) I32Const(v int32) *Emitter {
	e.buf.WriteByte(wasm.OpI32Const)
	wasm.WriteLEB128s(&e.buf, v)
	return e
}

func (e *Emitter) I64Const(v int64) *Emitter {
	e.buf.WriteByte(wasm.OpI64Const)
	wasm.WriteLEB128s64(&e.buf, v)
	return e
}

// Memory

func (e *Emitter) I32Load(align, offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Load, align, offset)
}
func (e *Emitter) I64Load(align, offset uint32) *Emitter {
	return e.memOp(wasm.OpI64Load, align, offset)
}
func (e *Emitter) I32Load8U(offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Load8U, 0, offset)
}
func (e *Emitter) I32Load8S(offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Load8S, 0, offset)
}
func (e *Emitter) I32Load16U(offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Load16U, 1, offset)
}
func (e *Emitter) I32Load16S(offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Load16S, 1, offset)
}
func (e *Emitter) I32Store(align, offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Store, align, offset)
}
func (e *Emitter) I64Store(align, offset uint32) *Emitter {
	return e.memOp(wasm.OpI64Store, align, offset)
}
func (e *Emitter) I32Store8(offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Store8, 0, offset)
}
func (e *Emitter) I32Store16(offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Store16, 1, offset)
}

// MemoryCopy copies n bytes: [dst, src, n] -> [].
func (e *Emitter) MemoryCopy() *Emitter {
	e.buf.WriteByte(wasm.OpPrefixMisc)
	wasm.WriteLEB128u(&e.buf, wasm.MiscMemoryCopy)
	e.buf.WriteByte(0)
	e.buf.WriteByte(0)
	return e
}

// MemoryFill fills n bytes: [dst, value, n] -> [].
func (e *Emitter) MemoryFill() *Emitter {
	e.buf.WriteByte(wasm.OpPrefixMisc)
	wasm.WriteLEB128u(&e.buf, wasm.MiscMemoryFill)
	e.buf.WriteByte(0)
	return e
}

// i32 arithmetic and comparison

func (e *Emitter) I32Add() *Emitter     { return e.op(wasm.OpI32Add) }
func (e *Emitter) I32Sub() *Emitter     { return e.op(wasm.OpI32Sub) }
func (e *Emitter) I32Mul() *Emitter     { return e.op(wasm.OpI32Mul) }
func (e *Emitter) I32DivS() *Emitter    { return e.op(wasm.OpI32DivS) }
func (e *Emitter) I32DivU() *Emitter    { return e.op(wasm.OpI32DivU) }
func (e *Emitter) I32RemS() *Emitter    { return e.op(wasm.OpI32RemS) }
func (e *Emitter) I32RemU() *Emitter    { return e.op(wasm.OpI32RemU) }
func (e *Emitter) I32And() *Emitter     { return e.op(wasm.OpI32And) }
func (e *Emitter) I32Or() *Emitter      { return e.op(wasm.OpI32Or) }
func (e *Emitter) I32Xor() *Emitter     { return e.op(wasm.OpI32Xor) }
func (e *Emitter) I32Shl() *Emitter     { return e.op(wasm.OpI32Shl) }
func (e *Emitter) I32Eqz() *Emitter     { return e.op(wasm.OpI32Eqz) }
func (e *Emitter) I32Eq() *Emitter      { return e.op(wasm.OpI32Eq) }
func (e *Emitter) I32Ne() *Emitter      { return e.op(wasm.OpI32Ne) }
func (e *Emitter) I32LtS() *Emitter     { return e.op(wasm.OpI32LtS) }
func (e *Emitter) I32LtU() *Emitter     { return e.op(wasm.OpI32LtU) }
func (e *Emitter) I32GtS() *Emitter     { return e.op(wasm.OpI32GtS) }
func (e *Emitter) I32GeU() *Emitter     { return e.op(wasm.OpI32GeU) }
func (e *Emitter) I32Extend8S() *Emitter  { return e.op(wasm.OpI32Extend8S) }
func (e *Emitter) I32Extend16S() *Emitter { return e.op(wasm.OpI32Extend16S) }
func (e *Emitter) I32WrapI64() *Emitter   { return e.op(wasm.OpI32WrapI64) }

// i64 arithmetic and comparison

func (e *Emitter) I64Add() *Emitter  { return e.op(wasm.OpI64Add) }
func (e *Emitter) I64Sub() *Emitter  { return e.op(wasm.OpI64Sub) }
func (e *Emitter) I64Mul() *Emitter  { return e.op(wasm.OpI64Mul) }
func (e *Emitter) I64And() *Emitter  { return e.op(wasm.OpI64And) }
func (e *Emitter) I64Or() *Emitter   { return e.op(wasm.OpI64Or) }
func (e *Emitter) I64Xor() *Emitter  { return e.op(wasm.OpI64Xor) }
func (e *Emitter) I64Shl() *Emitter  { return e.op(wasm.OpI64Shl) }
func (e *Emitter) I64Ctz() *Emitter  { return e.op(wasm.OpI64Ctz) }
func (e *Emitter) I64Eqz() *Emitter  { return e.op(wasm.OpI64Eqz) }
func (e *Emitter) I64Eq() *Emitter   { return e.op(wasm.OpI64Eq) }
func (e *Emitter) I64Ne() *Emitter   { return e.op(wasm.OpI64Ne) }
func (e *Emitter) I64ExtendI32U() *Emitter {
	return e.op(wasm.OpI64ExtendI32U)
}

// EmitRawOpcode appends a single opcode without immediates.
func (e *Emitter) EmitRawOpcode(op byte) *Emitter { return e.op(op) }

// EmitInstr re-encodes a decoded instruction.
func (e *Emitter) EmitInstr(instr wasm.Instruction) *Emitter {
	switch imm := instr.Imm.(type) {
	case wasm.BlockImm:
		return e.blockOp(instr.Opcode, imm.Type)
	case wasm.BranchImm:
		return e.opU32(instr.Opcode, imm.LabelIdx)
	case wasm.BrTableImm:
		return e.BrTable(imm.Labels, imm.Default)
	case wasm.CallImm:
		return e.Call(imm.FuncIdx)
	case wasm.CallIndirectImm:
		return e.CallIndirect(imm.TypeIdx, imm.TableIdx)
	case wasm.LocalImm:
		return e.opU32(instr.Opcode, imm.LocalIdx)
	case wasm.GlobalImm:
		return e.opU32(instr.Opcode, imm.GlobalIdx)
	case wasm.MemoryImm:
		return e.memOp(instr.Opcode, imm.Align, imm.Offset)
	case wasm.I32Imm:
		return e.I32Const(imm.Value)
	case wasm.I64Imm:
		return e.I64Const(imm.Value)
	case wasm.MiscImm:
		e.buf.WriteByte(wasm.OpPrefixMisc)
		wasm.WriteLEB128u(&e.buf, imm.SubOpcode)
		for _, o := range imm.Operands {
			wasm.WriteLEB128u(&e.buf, o)
		}
		return e
	}
	return e.op(instr.Opcode)
}

// EmitInstrs re-encodes a sequence of decoded instructions.
func (e *Emitter) EmitInstrs(instrs []wasm.Instruction) *Emitter {
	for _, in := range instrs {
		e.EmitInstr(in)
	}
	return e
}

// Typed helpers

// Load reads a scalar of type t from [addr + offset]: [addr] -> [value].
// Narrow integers are sign or zero extended to i32.
func (e *Emitter) Load(t *types.Type, offset uint32) *Emitter {
	switch t.Size() {
	case 1:
		if t.IsSigned() {
			return e.I32Load8S(offset)
		}
		return e.I32Load8U(offset)
	case 2:
		if t.IsSigned() {
			return e.I32Load16S(offset)
		}
		return e.I32Load16U(offset)
	}
	if t.Scalar() == types.ScalarI64 {
		return e.I64Load(3, offset)
	}
	return e.I32Load(2, offset)
}

// Store writes a scalar of type t to [addr + offset]: [addr, value] -> [].
func (e *Emitter) Store(t *types.Type, offset uint32) *Emitter {
	switch t.Size() {
	case 1:
		return e.I32Store8(offset)
	case 2:
		return e.I32Store16(offset)
	}
	if t.Scalar() == types.ScalarI64 {
		return e.I64Store(3, offset)
	}
	return e.I32Store(2, offset)
}

// AddOffset adds a constant to the address on the stack.
func (e *Emitter) AddOffset(offset uint32) *Emitter {
	if offset == 0 {
		return e
	}
	return e.I32Const(int32(offset)).I32Add()
}

// CopyBytes copies n bytes between two addresses: [dst, src] -> [].
func (e *Emitter) CopyBytes(n uint32) *Emitter {
	if n == 0 {
		return e.Drop().Drop()
	}
	return e.I32Const(int32(n)).MemoryCopy()
}

// ZeroBytes clears n bytes: [dst] -> [].
func (e *Emitter) ZeroBytes(n uint32) *Emitter {
	if n == 0 {
		return e.Drop()
	}
	return e.I32Const(0).I32Const(int32(n)).MemoryFill()
}

// Normalize wraps the i32 on the stack to the width of integer type t.
func (e *Emitter) Normalize(t *types.Type) *Emitter {
	switch t.Kind() {
	case types.KindInt8:
		return e.I32Extend8S()
	case types.KindUInt8:
		return e.I32Const(0xff).I32And()
	case types.KindInt16:
		return e.I32Extend16S()
	case types.KindUInt16:
		return e.I32Const(0xffff).I32And()
	case types.KindBool:
		return e.I32Const(1).I32And()
	}
	return e
}
