package compiler

import (
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

func helperType(params ...wasm.ValType) wasm.FuncType {
	return wasm.FuncType{Params: params}
}

// storeParam writes parameter p, a value of t, to the address pushed by
// addr.
func storeParam(fb *funcBuilder, t *types.Type, addr valueFn, p uint32) error {
	return storeAt(fb.e, t, addr, 0, local(p))
}

// reserveOne makes room for one more element in the vector at local vec,
// doubling the capacity with a minimum of four.
func (c *compiler) reserveOne(fb *funcBuilder, vec uint32, elem *types.Type) {
	e := fb.e
	esz := int32(elem.Size())
	n, capacity, buf := fb.local(wasm.ValI32), fb.local(wasm.ValI32), fb.local(wasm.ValI32)

	e.LocalGet(vec).I32Load(2, types.BufferLenOffset).LocalTee(n)
	e.LocalGet(vec).I32Load(2, types.BufferCapOffset).LocalTee(capacity).I32Eq()
	fb.ifThen()
	// capacity = max(4, capacity*2)
	e.LocalGet(capacity).I32Const(1).I32Shl().LocalTee(capacity).I32Const(4).
		LocalGet(capacity).I32Const(4).I32GeU().Select().LocalSet(capacity)
	e.LocalGet(capacity).I32Const(esz).I32Mul().I32Const(int32(max(elem.Align(), 4))).
		Call(c.mb.runtimeFunc(SymAlloc)).LocalSet(buf)
	e.LocalGet(buf).LocalGet(vec).I32Load(2, types.BufferPtrOffset).
		LocalGet(n).I32Const(esz).I32Mul().MemoryCopy()
	e.LocalGet(vec).I32Load(2, types.BufferPtrOffset)
	fb.ifThen()
	e.LocalGet(vec).I32Load(2, types.BufferPtrOffset).Call(c.mb.runtimeFunc(SymFree))
	fb.end()
	e.LocalGet(vec).LocalGet(buf).I32Store(2, types.BufferPtrOffset)
	e.LocalGet(vec).LocalGet(capacity).I32Store(2, types.BufferCapOffset)
	fb.end()
}

// vectorInitialize builds (element, size, out): a vector of size clones of
// element. The element itself fills the first slot, or is dropped when
// size is zero.
func (c *compiler) vectorInitialize(t *types.Type) (uint32, error) {
	ft := helperType(valType(t), wasm.ValI32, wasm.ValI32)
	return c.helper(types.Monomorphize("VectorInitialize", t), ft, func(fb *funcBuilder) error {
		e := fb.e
		esz := int32(t.Size())
		capacity, buf := fb.local(wasm.ValI32), fb.local(wasm.ValI32)

		e.LocalGet(1).I32Const(1).LocalGet(1).Select().LocalSet(capacity)
		e.LocalGet(capacity).I32Const(esz).I32Mul().I32Const(int32(max(t.Align(), 4))).
			Call(c.mb.runtimeFunc(SymAlloc)).LocalSet(buf)
		if err := storeParam(fb, t, local(buf), 0); err != nil {
			return err
		}

		e.LocalGet(1).I32Eqz()
		fb.ifThen()
		if err := c.drop(e, t, local(buf)); err != nil {
			return err
		}
		fb.end()

		i := fb.local(wasm.ValI32)
		e.I32Const(1).LocalSet(i)
		fb.block(labelBreak)
		fb.loop(labelContinue)
		e.LocalGet(i).LocalGet(1).EmitRawOpcode(wasm.OpI32GeS)
		fb.brIf(labelBreak)
		if err := c.clone(e, t, local(buf), element(buf, i, t)); err != nil {
			return err
		}
		e.LocalGet(i).I32Const(1).I32Add().LocalSet(i)
		fb.br(labelContinue)
		fb.end()
		fb.end()

		e.LocalGet(2).LocalGet(buf).I32Store(2, types.BufferPtrOffset)
		e.LocalGet(2).LocalGet(1).I32Store(2, types.BufferLenOffset)
		e.LocalGet(2).LocalGet(capacity).I32Store(2, types.BufferCapOffset)
		return nil
	})
}

// vectorAppend builds (vector, element).
func (c *compiler) vectorAppend(t *types.Type) (uint32, error) {
	ft := helperType(wasm.ValI32, valType(t))
	return c.helper(types.Monomorphize("VectorAppend", t), ft, func(fb *funcBuilder) error {
		e := fb.e
		c.reserveOne(fb, 0, t)
		n, buf := fb.local(wasm.ValI32), fb.local(wasm.ValI32)
		e.LocalGet(0).I32Load(2, types.BufferLenOffset).LocalSet(n)
		e.LocalGet(0).I32Load(2, types.BufferPtrOffset).LocalSet(buf)
		if err := storeParam(fb, t, element(buf, n, t), 1); err != nil {
			return err
		}
		e.LocalGet(0).LocalGet(n).I32Const(1).I32Add().I32Store(2, types.BufferLenOffset)
		return nil
	})
}

// vectorInsert builds (vector, index ref, element). An index past the end
// traps.
func (c *compiler) vectorInsert(t *types.Type) (uint32, error) {
	ft := helperType(wasm.ValI32, wasm.ValI32, valType(t))
	return c.helper(types.Monomorphize("VectorInsert", t), ft, func(fb *funcBuilder) error {
		e := fb.e
		esz := int32(t.Size())
		idx, n, buf := fb.local(wasm.ValI32), fb.local(wasm.ValI32), fb.local(wasm.ValI32)
		e.LocalGet(1).I32Load(2, 0).LocalSet(idx)
		e.LocalGet(idx).LocalGet(0).I32Load(2, types.BufferLenOffset).EmitRawOpcode(wasm.OpI32GtU)
		fb.ifThen()
		e.Unreachable()
		fb.end()

		c.reserveOne(fb, 0, t)
		e.LocalGet(0).I32Load(2, types.BufferLenOffset).LocalSet(n)
		e.LocalGet(0).I32Load(2, types.BufferPtrOffset).LocalSet(buf)

		// shift [idx, n) up by one element
		one := fb.local(wasm.ValI32)
		e.LocalGet(idx).I32Const(1).I32Add().LocalSet(one)
		if err := element(buf, one, t)(e); err != nil {
			return err
		}
		if err := element(buf, idx, t)(e); err != nil {
			return err
		}
		e.LocalGet(n).LocalGet(idx).I32Sub().I32Const(esz).I32Mul().MemoryCopy()

		if err := storeParam(fb, t, element(buf, idx, t), 2); err != nil {
			return err
		}
		e.LocalGet(0).LocalGet(n).I32Const(1).I32Add().I32Store(2, types.BufferLenOffset)
		return nil
	})
}

// vectorRemoveLast builds (vector, out option).
func (c *compiler) vectorRemoveLast(t *types.Type) (uint32, error) {
	opt := types.Option(t)
	return c.helper(types.Monomorphize("VectorRemoveLast", t), pairType, func(fb *funcBuilder) error {
		e := fb.e
		n, buf := fb.local(wasm.ValI32), fb.local(wasm.ValI32)
		e.LocalGet(0).I32Load(2, types.BufferLenOffset).LocalTee(n).I32Eqz()
		fb.ifThen()
		e.LocalGet(1).ZeroBytes(opt.Size())
		e.Return()
		fb.end()

		e.LocalGet(0).LocalGet(n).I32Const(1).I32Sub().LocalTee(n).I32Store(2, types.BufferLenOffset)
		e.LocalGet(0).I32Load(2, types.BufferPtrOffset).LocalSet(buf)
		e.LocalGet(1).I32Const(1).I32Store8(types.TagOffset)
		e.LocalGet(1).AddOffset(opt.PayloadOffset())
		if err := element(buf, n, t)(e); err != nil {
			return err
		}
		e.CopyBytes(t.Size())
		return nil
	})
}

// sliceIndex builds (index ref, slice ref, out option of element ref).
func (c *compiler) sliceIndex(t *types.Type) (uint32, error) {
	opt := types.Option(types.ImmutableRef(t, ""))
	ft := helperType(wasm.ValI32, wasm.ValI32, wasm.ValI32)
	return c.helper(types.Monomorphize("SliceIndex", t), ft, func(fb *funcBuilder) error {
		e := fb.e
		idx, buf := fb.local(wasm.ValI32), fb.local(wasm.ValI32)
		e.LocalGet(0).I32Load(2, 0).LocalTee(idx)
		e.LocalGet(1).I32Load(2, types.FatLenOffset).I32LtU()
		fb.ifThen()
		e.LocalGet(1).I32Load(2, types.FatPtrOffset).LocalSet(buf)
		e.LocalGet(2).I32Const(1).I32Store8(types.TagOffset)
		e.LocalGet(2)
		if err := element(buf, idx, t)(e); err != nil {
			return err
		}
		e.I32Store(2, opt.PayloadOffset())
		fb.elseThen()
		e.LocalGet(2).ZeroBytes(opt.Size())
		fb.end()
		return nil
	})
}

// pollHelper returns poll_T (promise, waker fn, waker state, out option).
// It writes Some(value) to out when the promise is ready. Otherwise it
// arranges for the waker to be scheduled and writes None.
func (c *compiler) pollHelper(promise *types.Type) (uint32, error) {
	ft := helperType(wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32)
	out := types.Option(promise.PromiseValue())
	var build func(fb *funcBuilder) error
	switch promise.Kind() {
	case types.KindYieldPromise:
		build = func(fb *funcBuilder) error { return c.pollYield(fb, promise, out) }
	case types.KindMethodCallPromise:
		build = func(fb *funcBuilder) error { return c.pollMethodCall(fb, promise, out) }
	case types.KindNotifierReaderPromise:
		build = func(fb *funcBuilder) error { return c.pollNotifier(fb, promise, out) }
	default:
		return 0, errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
			Type(promise.String()).Detail("not a promise").Build()
	}
	return c.helper(types.Monomorphize("poll", promise), ft, build)
}

// pollYield is pending on the first poll and ready on the next.
func (c *compiler) pollYield(fb *funcBuilder, promise, out *types.Type) error {
	e := fb.e
	e.LocalGet(0).I32Load8U(types.TagOffset).I32Eqz()
	fb.ifThen()
	e.LocalGet(0).I32Const(1).I32Store8(types.TagOffset)
	e.LocalGet(1).LocalGet(2).Call(c.mb.runtimeFunc(SymSchedule))
	e.LocalGet(3).I32Const(0).I32Store8(types.TagOffset)
	e.Return()
	fb.end()
	e.LocalGet(3).I32Const(1).I32Store8(types.TagOffset)
	e.LocalGet(3).AddOffset(out.PayloadOffset())
	e.LocalGet(0).AddOffset(promise.PayloadOffset())
	e.CopyBytes(promise.Elem().Size())
	return nil
}

// pollMethodCall starts the callee on the first poll and registers the
// waker it signals on completion.
func (c *compiler) pollMethodCall(fb *funcBuilder, promise, out *types.Type) error {
	e := fb.e
	state, status := fb.local(wasm.ValI32), fb.local(wasm.ValI32)
	e.LocalGet(0).I32Load(2, types.PromiseStateOffset).LocalTee(state).
		I32Load(2, RecordStatusOffset).LocalTee(status).I32Const(StatusDone).I32Eq()
	fb.ifThen()
	e.LocalGet(3).I32Const(1).I32Store8(types.TagOffset)
	e.LocalGet(3).AddOffset(out.PayloadOffset())
	e.LocalGet(0).AddOffset(promise.PayloadOffset())
	e.CopyBytes(promise.Elem().Size())
	e.Return()
	fb.end()

	e.LocalGet(state).LocalGet(1).I32Store(2, RecordWakerFnOffset)
	e.LocalGet(state).LocalGet(2).I32Store(2, RecordWakerStateOffset)
	e.LocalGet(status).I32Eqz()
	fb.ifThen()
	e.LocalGet(state).I32Const(StatusRunning).I32Store(2, RecordStatusOffset)
	e.LocalGet(0).I32Load(2, types.PromiseFnOffset).LocalGet(state).Call(c.mb.runtimeFunc(SymSchedule))
	fb.end()
	e.LocalGet(3).I32Const(0).I32Store8(types.TagOffset)
	return nil
}

// pollNotifier resolves to Some(value) once the writer set one, to None
// when the writer went away, and waits otherwise.
func (c *compiler) pollNotifier(fb *funcBuilder, promise, out *types.Type) error {
	e := fb.e
	elem := promise.Elem()
	inner := out.Elem() // Option(elem)
	valueOff := types.NotifierReader(elem).NotifierValueOffset()
	status := fb.local(wasm.ValI32)

	e.LocalGet(0).I32Load(2, types.NotifierStatusOffset).LocalTee(status).I32Eqz()
	fb.ifThen()
	e.LocalGet(0).LocalGet(1).I32Store(2, types.NotifierWakerFnOffset)
	e.LocalGet(0).LocalGet(2).I32Store(2, types.NotifierWakerStateOffset)
	e.LocalGet(3).I32Const(0).I32Store8(types.TagOffset)
	e.Return()
	fb.end()

	e.LocalGet(3).I32Const(1).I32Store8(types.TagOffset)
	e.LocalGet(3).AddOffset(out.PayloadOffset()).ZeroBytes(inner.Size())
	e.LocalGet(status).I32Const(NotifierSet).I32Eq()
	fb.ifThen()
	e.LocalGet(3).I32Const(1).I32Store8(out.PayloadOffset() + types.TagOffset)
	e.LocalGet(3).AddOffset(out.PayloadOffset() + inner.PayloadOffset())
	e.LocalGet(0).AddOffset(valueOff)
	e.CopyBytes(elem.Size())
	e.LocalGet(0).I32Const(NotifierTaken).I32Store(2, types.NotifierStatusOffset)
	fb.end()
	return nil
}
