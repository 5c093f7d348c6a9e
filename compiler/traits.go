package compiler

import (
	"go.uber.org/zap"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/internal/codegen"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

var (
	addrType  = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	pairType  = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}}
	paramAddr = local(0)
)

// helper returns the generated function called name, building it on first
// use. The index is recorded before the body is built so helpers may call
// themselves.
func (c *compiler) helper(name string, ft wasm.FuncType, build func(fb *funcBuilder) error) (uint32, error) {
	if idx, ok := c.helpers[name]; ok {
		return idx, nil
	}
	idx := c.mb.declareFunc(name, ft)
	c.helpers[name] = idx
	fb := newFuncBuilder(name, idx, ft)
	if err := build(fb); err != nil {
		return 0, err
	}
	c.mb.setBody(idx, fb.body(nil))
	Logger().Debug("generated helper", zap.String("helper", name))
	return idx, nil
}

// at pushes base+off.
func at(base valueFn, off uint32) valueFn {
	return func(e *codegen.Emitter) error {
		if err := base(e); err != nil {
			return err
		}
		e.AddOffset(off)
		return nil
	}
}

// element pushes the address of element i of a buffer of elem.
func element(buf, i uint32, elem *types.Type) valueFn {
	return func(e *codegen.Emitter) error {
		e.LocalGet(buf).LocalGet(i).I32Const(int32(elem.Size())).I32Mul().I32Add()
		return nil
	}
}

// drop emits the drop of the value of type t stored at addr.
func (c *compiler) drop(e *codegen.Emitter, t *types.Type, addr valueFn) error {
	if !t.Has(types.TraitDrop) {
		return nil
	}
	switch t.Kind() {
	case types.KindString:
		if err := addr(e); err != nil {
			return err
		}
		e.Call(c.mb.runtimeFunc(SymStringDrop))
		return nil
	case types.KindFileHandle, types.KindFakeDrop:
		sym := SymDropFileHandle
		if t.Kind() == types.KindFakeDrop {
			sym = SymFakeDrop
		}
		if err := addr(e); err != nil {
			return err
		}
		e.I32Load(2, 0).Call(c.mb.runtimeFunc(sym))
		return nil
	}
	fn, ok, err := c.dropHelper(t)
	if err != nil || !ok {
		return err
	}
	if err := addr(e); err != nil {
		return err
	}
	e.Call(fn)
	return nil
}

func (c *compiler) dropHelper(t *types.Type) (uint32, bool, error) {
	switch t.Kind() {
	case types.KindShared, types.KindVector, types.KindOption, types.KindPanicResult,
		types.KindYieldPromise, types.KindCluster, types.KindVariant,
		types.KindNotifierReader, types.KindNotifierReaderPromise, types.KindNotifierWriter:
	case types.KindValueClass:
		// value classes without droppable fields own nothing to release
		owns := false
		for _, f := range t.Fields() {
			owns = owns || f.Has(types.TraitDrop)
		}
		if !owns {
			return 0, false, nil
		}
	default:
		return 0, false, nil
	}
	fn, err := c.helper(types.Monomorphize("drop", t), addrType, func(fb *funcBuilder) error {
		return c.buildDrop(fb, t)
	})
	return fn, err == nil, err
}

func (c *compiler) buildDrop(fb *funcBuilder, t *types.Type) error {
	e := fb.e
	switch t.Kind() {
	case types.KindShared:
		p := fb.local(wasm.ValI32)
		rc := fb.local(wasm.ValI32)
		e.LocalGet(0).I32Load(2, 0).LocalTee(p).I32Eqz()
		fb.ifThen()
		e.Return()
		fb.end()
		e.LocalGet(p).I32Load(2, types.SharedRefCountOffset).I32Const(1).I32Sub().LocalTee(rc)
		fb.ifThen()
		e.LocalGet(p).LocalGet(rc).I32Store(2, types.SharedRefCountOffset)
		e.Return()
		fb.end()
		if err := c.drop(e, t.Elem(), at(local(p), t.SharedValueOffset())); err != nil {
			return err
		}
		e.LocalGet(p).Call(c.mb.runtimeFunc(SymFree))

	case types.KindVector:
		elem := t.Elem()
		ptr := fb.local(wasm.ValI32)
		e.LocalGet(0).I32Load(2, types.BufferPtrOffset).LocalSet(ptr)
		if elem.Has(types.TraitDrop) {
			n := fb.local(wasm.ValI32)
			e.LocalGet(0).I32Load(2, types.BufferLenOffset).LocalSet(n)
			err := fb.forEach(n, func(i uint32) error {
				return c.drop(e, elem, element(ptr, i, elem))
			})
			if err != nil {
				return err
			}
		}
		e.LocalGet(ptr)
		fb.ifThen()
		e.LocalGet(ptr).Call(c.mb.runtimeFunc(SymFree))
		fb.end()

	case types.KindOption, types.KindPanicResult, types.KindYieldPromise:
		e.LocalGet(0).I32Load8U(types.TagOffset)
		fb.ifThen()
		if err := c.drop(e, t.Elem(), at(paramAddr, t.PayloadOffset())); err != nil {
			return err
		}
		fb.end()

	case types.KindCluster, types.KindValueClass:
		for i, f := range t.Fields() {
			if err := c.drop(e, f, at(paramAddr, t.FieldOffset(i))); err != nil {
				return err
			}
		}

	case types.KindVariant:
		for i, f := range t.Fields() {
			if !f.Has(types.TraitDrop) {
				continue
			}
			e.LocalGet(0).I32Load8U(types.TagOffset).I32Const(int32(i)).I32Eq()
			fb.ifThen()
			if err := c.drop(e, f, at(paramAddr, t.PayloadOffset())); err != nil {
				return err
			}
			fb.end()
		}

	case types.KindNotifierReader, types.KindNotifierReaderPromise, types.KindNotifierWriter:
		cell := fb.local(wasm.ValI32)
		e.LocalGet(0).I32Load(2, 0).LocalTee(cell).I32Eqz()
		fb.ifThen()
		e.Return()
		fb.end()
		if t.Kind() == types.KindNotifierWriter {
			// a writer dropped before setting a value closes the channel
			e.LocalGet(cell).I32Load(2, types.NotifierStatusOffset).I32Eqz()
			fb.ifThen()
			e.LocalGet(cell).I32Const(NotifierDropped).I32Store(2, types.NotifierStatusOffset)
			c.wakeNotifier(fb, cell)
			fb.end()
		}
		return c.releaseNotifier(fb, t.Elem(), cell)
	}
	return nil
}

// wakeNotifier schedules the waker registered on the notifier cell, if any,
// and clears it.
func (c *compiler) wakeNotifier(fb *funcBuilder, cell uint32) {
	e := fb.e
	w := fb.local(wasm.ValI32)
	e.LocalGet(cell).I32Load(2, types.NotifierWakerFnOffset).LocalTee(w)
	fb.ifThen()
	e.LocalGet(w).LocalGet(cell).I32Load(2, types.NotifierWakerStateOffset).Call(c.mb.runtimeFunc(SymSchedule))
	e.LocalGet(cell).I32Const(0).I32Store(2, types.NotifierWakerFnOffset)
	fb.end()
}

// releaseNotifier gives up one reference to a notifier cell of elem. The
// last reference drops a value nobody took and frees the cell.
func (c *compiler) releaseNotifier(fb *funcBuilder, elem *types.Type, cell uint32) error {
	e := fb.e
	rc := fb.local(wasm.ValI32)
	e.LocalGet(cell).I32Load(2, types.NotifierRefCountOffset).I32Const(1).I32Sub().LocalTee(rc)
	fb.ifThen()
	e.LocalGet(cell).LocalGet(rc).I32Store(2, types.NotifierRefCountOffset)
	fb.elseThen()
	if elem.Has(types.TraitDrop) {
		e.LocalGet(cell).I32Load(2, types.NotifierStatusOffset).I32Const(NotifierSet).I32Eq()
		fb.ifThen()
		if err := c.drop(e, elem, at(local(cell), types.NotifierReader(elem).NotifierValueOffset())); err != nil {
			return err
		}
		fb.end()
	}
	e.LocalGet(cell).Call(c.mb.runtimeFunc(SymFree))
	fb.end()
	return nil
}

// clone emits a deep copy of the value of type t at src into dst.
func (c *compiler) clone(e *codegen.Emitter, t *types.Type, src, dst valueFn) error {
	if t.Has(types.TraitCopy) {
		if err := dst(e); err != nil {
			return err
		}
		if err := src(e); err != nil {
			return err
		}
		e.CopyBytes(t.Size())
		return nil
	}
	if !t.Has(types.TraitClone) {
		return errors.MissingTrait("Clone", t.String())
	}
	var fn uint32
	switch t.Kind() {
	case types.KindString:
		fn = c.mb.runtimeFunc(SymStringClone)
	case types.KindShared, types.KindVector, types.KindOption, types.KindCluster:
		var err error
		fn, err = c.helper(types.Monomorphize("clone", t), pairType, func(fb *funcBuilder) error {
			return c.buildClone(fb, t)
		})
		if err != nil {
			return err
		}
	default:
		return errors.MissingTrait("Clone", t.String())
	}
	if err := src(e); err != nil {
		return err
	}
	if err := dst(e); err != nil {
		return err
	}
	e.Call(fn)
	return nil
}

func (c *compiler) buildClone(fb *funcBuilder, t *types.Type) error {
	e := fb.e
	src, dst := local(0), local(1)
	switch t.Kind() {
	case types.KindShared:
		p := fb.local(wasm.ValI32)
		e.LocalGet(1).LocalGet(0).I32Load(2, 0).LocalTee(p).I32Store(2, 0)
		e.LocalGet(p)
		fb.ifThen()
		e.LocalGet(p).LocalGet(p).I32Load(2, types.SharedRefCountOffset).I32Const(1).I32Add().
			I32Store(2, types.SharedRefCountOffset)
		fb.end()

	case types.KindVector:
		elem := t.Elem()
		n, buf, sp := fb.local(wasm.ValI32), fb.local(wasm.ValI32), fb.local(wasm.ValI32)
		e.LocalGet(0).I32Load(2, types.BufferLenOffset).LocalSet(n)
		e.LocalGet(0).I32Load(2, types.BufferPtrOffset).LocalSet(sp)
		e.LocalGet(n).I32Const(int32(elem.Size())).I32Mul().
			I32Const(int32(max(elem.Align(), 4))).Call(c.mb.runtimeFunc(SymAlloc)).LocalSet(buf)
		e.LocalGet(1).LocalGet(buf).I32Store(2, types.BufferPtrOffset)
		e.LocalGet(1).LocalGet(n).I32Store(2, types.BufferLenOffset)
		e.LocalGet(1).LocalGet(n).I32Store(2, types.BufferCapOffset)
		if elem.Has(types.TraitCopy) {
			e.LocalGet(buf).LocalGet(sp).LocalGet(n).I32Const(int32(elem.Size())).I32Mul().MemoryCopy()
			return nil
		}
		return fb.forEach(n, func(i uint32) error {
			return c.clone(e, elem, element(sp, i, elem), element(buf, i, elem))
		})

	case types.KindOption:
		e.LocalGet(0).I32Load8U(types.TagOffset)
		fb.ifThen()
		e.LocalGet(1).I32Const(1).I32Store8(types.TagOffset)
		if err := c.clone(e, t.Elem(), at(src, t.PayloadOffset()), at(dst, t.PayloadOffset())); err != nil {
			return err
		}
		fb.elseThen()
		e.LocalGet(1).ZeroBytes(t.Size())
		fb.end()

	case types.KindCluster:
		for i, f := range t.Fields() {
			off := t.FieldOffset(i)
			if err := c.clone(e, f, at(src, off), at(dst, off)); err != nil {
				return err
			}
		}
	}
	return nil
}
