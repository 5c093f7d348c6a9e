package wasm

import "encoding/binary"

// encoder appends sections to a module image. Each section body is built in
// scratch and length-prefixed when closed.
type encoder struct {
	out     []byte
	scratch []byte
}

func (e *encoder) u32(v uint32)    { e.scratch = AppendULEB128(e.scratch, v) }
func (e *encoder) putByte(b byte)  { e.scratch = append(e.scratch, b) }
func (e *encoder) raw(data []byte) { e.scratch = append(e.scratch, data...) }

func (e *encoder) name(s string) {
	e.u32(uint32(len(s)))
	e.scratch = append(e.scratch, s...)
}

func (e *encoder) limits(l Limits) {
	if l.Max == nil {
		e.putByte(0)
		e.u32(l.Min)
		return
	}
	e.putByte(LimitsHasMax)
	e.u32(l.Min)
	e.u32(*l.Max)
}

func (e *encoder) valTypes(ts []ValType) {
	e.u32(uint32(len(ts)))
	for _, t := range ts {
		e.putByte(byte(t))
	}
}

// section runs body when n > 0 and emits the result as section id, prefixed
// by the item count n.
func (e *encoder) section(id byte, n int, body func()) {
	if n == 0 {
		return
	}
	e.scratch = e.scratch[:0]
	e.u32(uint32(n))
	body()
	e.out = append(e.out, id)
	e.out = AppendULEB128(e.out, uint32(len(e.scratch)))
	e.out = append(e.out, e.scratch...)
}

// Encode returns the module in WebAssembly binary format. Sections are
// written in the order the format requires, data count before code.
func (m *Module) Encode() []byte {
	e := &encoder{out: make([]byte, 0, 8)}
	e.out = binary.LittleEndian.AppendUint32(e.out, Magic)
	e.out = binary.LittleEndian.AppendUint32(e.out, Version)

	e.section(SectionType, len(m.Types), func() {
		for _, ft := range m.Types {
			e.putByte(FuncTypeByte)
			e.valTypes(ft.Params)
			e.valTypes(ft.Results)
		}
	})
	e.section(SectionImport, len(m.Imports), func() {
		for _, imp := range m.Imports {
			e.name(imp.Module)
			e.name(imp.Name)
			e.putByte(KindFunc)
			e.u32(imp.Desc.TypeIdx)
		}
	})
	e.section(SectionFunction, len(m.Funcs), func() {
		for _, idx := range m.Funcs {
			e.u32(idx)
		}
	})
	e.section(SectionTable, len(m.Tables), func() {
		for _, t := range m.Tables {
			elem := t.ElemType
			if elem == 0 {
				elem = ValFuncRef
			}
			e.putByte(byte(elem))
			e.limits(t.Limits)
		}
	})
	e.section(SectionMemory, len(m.Memories), func() {
		for _, mem := range m.Memories {
			e.limits(mem.Limits)
		}
	})
	e.section(SectionGlobal, len(m.Globals), func() {
		for _, g := range m.Globals {
			e.putByte(byte(g.Type.ValType))
			if g.Type.Mutable {
				e.putByte(1)
			} else {
				e.putByte(0)
			}
			e.raw(g.Init)
		}
	})
	e.section(SectionExport, len(m.Exports), func() {
		for _, exp := range m.Exports {
			e.name(exp.Name)
			e.putByte(exp.Kind)
			e.u32(exp.Idx)
		}
	})
	e.section(SectionElement, len(m.Elements), func() {
		for _, el := range m.Elements {
			e.u32(0)
			e.raw(el.Offset)
			e.u32(uint32(len(el.FuncIdxs)))
			for _, idx := range el.FuncIdxs {
				e.u32(idx)
			}
		}
	})
	if m.DataCount != nil {
		e.out = append(e.out, SectionDataCount)
		body := AppendULEB128(nil, *m.DataCount)
		e.out = AppendULEB128(e.out, uint32(len(body)))
		e.out = append(e.out, body...)
	}
	e.section(SectionCode, len(m.Code), func() {
		for _, fb := range m.Code {
			var body []byte
			body = AppendULEB128(body, uint32(len(fb.Locals)))
			for _, l := range fb.Locals {
				body = AppendULEB128(body, l.Count)
				body = append(body, byte(l.ValType))
			}
			body = append(body, fb.Code...)
			e.u32(uint32(len(body)))
			e.raw(body)
		}
	})
	e.section(SectionData, len(m.Data), func() {
		for _, d := range m.Data {
			e.u32(0)
			e.raw(d.Offset)
			e.u32(uint32(len(d.Init)))
			e.raw(d.Init)
		}
	})
	return e.out
}
