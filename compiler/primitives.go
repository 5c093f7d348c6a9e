package compiler

import (
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/internal/codegen"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/valuesource"
	"github.com/wippyai/asyncgraph/wasm"
)

// nodeCtx is what a strategy sees of the functional node it lowers.
type nodeCtx struct {
	d *defCompiler
	n *graph.Node
	t *types.Type // type argument, nil for non-generic operations
	e *codegen.Emitter
}

func (x *nodeCtx) in(i int) *graph.Terminal  { return x.d.g.Terminal(x.n.Inputs[i]) }
func (x *nodeCtx) out(i int) *graph.Terminal { return x.d.g.Terminal(x.n.Outputs[i]) }

// value pushes the value input i refers to.
func (x *nodeCtx) value(i int) valueFn { return x.d.valueOf(x.in(i)) }

// operand pushes input i as a call argument.
func (x *nodeCtx) operand(i int) valueFn { return x.d.operand(x.in(i)) }

// produced returns the k-th output that is not a passthrough.
func (x *nodeCtx) produced(k int) *valuesource.Source {
	for _, id := range x.n.Outputs {
		t := x.d.g.Terminal(id)
		if t.Passthrough >= 0 {
			continue
		}
		if k == 0 {
			return x.d.source(t)
		}
		k--
	}
	return nil
}

// inPlace initializes the k-th produced output in place and returns a
// local holding its address.
func (x *nodeCtx) inPlace(k int) (uint32, error) {
	p := x.d.fb.local(wasm.ValI32)
	if err := x.produced(k).InitializeAddress(x.e); err != nil {
		return 0, err
	}
	x.e.LocalSet(p)
	return p, nil
}

func (x *nodeCtx) runtime(sym string) uint32 { return x.d.c.mb.runtimeFunc(sym) }

// storeAt writes a value of type t, pushed by value, to addr+off.
func storeAt(e *codegen.Emitter, t *types.Type, addr valueFn, off uint32, value valueFn) error {
	if err := addr(e); err != nil {
		return err
	}
	if t.IsScalar() {
		if err := value(e); err != nil {
			return err
		}
		e.Store(t, off)
		return nil
	}
	e.AddOffset(off)
	if err := value(e); err != nil {
		return err
	}
	e.CopyBytes(t.Size())
	return nil
}

// strategy lowers one primitive operation.
type strategy interface {
	lower(x *nodeCtx) error
}

// strategyFunc adapts an ordinary function to a strategy.
type strategyFunc func(x *nodeCtx) error

func (f strategyFunc) lower(x *nodeCtx) error { return f(x) }

type passthrough struct{}

func (passthrough) lower(*nodeCtx) error { return nil }

// runtimeCall passes the inputs and the addresses of the produced outputs
// to a runtime function.
type runtimeCall struct{ symbol string }

func (r runtimeCall) lower(x *nodeCtx) error {
	if err := x.d.callArgs(x.n); err != nil {
		return err
	}
	x.e.Call(x.runtime(r.symbol))
	return nil
}

// helperCall does the same for a helper generated per type argument.
type helperCall func(c *compiler, t *types.Type) (uint32, error)

func (h helperCall) lower(x *nodeCtx) error {
	fn, err := h(x.d.c, x.t)
	if err != nil {
		return err
	}
	if err := x.d.callArgs(x.n); err != nil {
		return err
	}
	x.e.Call(fn)
	return nil
}

// decomposed marks operations that never reach code generation because
// the decomposition rewrites them.
type decomposed struct{}

func (decomposed) lower(x *nodeCtx) error {
	return errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(x.d.g.Name, x.n.Op.String()).
		Node(int(x.n.ID)).
		Detail("%s must be decomposed before compilation", x.n.Op).
		Build()
}

var strategies [primitive.NumOps]strategy

func init() {
	s := &strategies
	s[primitive.ImmutPass] = passthrough{}
	s[primitive.MutPass] = passthrough{}
	s[primitive.Assign] = strategyFunc(assign)
	s[primitive.Exchange] = strategyFunc(exchange)
	s[primitive.CreateCopy] = strategyFunc(createCopy)
	s[primitive.Drop] = strategyFunc(dropValue)
	s[primitive.Output] = strategyFunc(output)
	s[primitive.Inspect] = strategyFunc(inspect)
	s[primitive.FakeDropCreate] = strategyFunc(moveFirst)
	s[primitive.SelectReference] = strategyFunc(selectReference)
	s[primitive.Range] = strategyFunc(rangeIterator)
	s[primitive.Some] = strategyFunc(some)
	s[primitive.None] = strategyFunc(zeroResult)
	s[primitive.UnwrapOption] = decomposed{}
	s[primitive.OptionToPanicResult] = strategyFunc(moveFirst)

	for op := primitive.Add; op <= primitive.Increment; op++ {
		s[op] = strategyFunc(arithmetic)
	}
	for op := primitive.AccumulateAdd; op <= primitive.AccumulateNot; op++ {
		s[op] = strategyFunc(accumulate)
	}
	for op := primitive.Equal; op <= primitive.GreaterEqual; op++ {
		s[op] = strategyFunc(compare)
	}

	s[primitive.StringFromSlice] = runtimeCall{SymStringFromSlice}
	s[primitive.StringToSlice] = strategyFunc(stringToSlice)
	s[primitive.StringConcat] = runtimeCall{SymStringConcat}
	s[primitive.StringAppend] = runtimeCall{SymStringAppend}
	s[primitive.StringSliceToStringSplitIterator] = strategyFunc(moveFirst)

	s[primitive.VectorCreate] = strategyFunc(zeroResult)
	s[primitive.VectorInitialize] = helperCall((*compiler).vectorInitialize)
	s[primitive.VectorToSlice] = strategyFunc(moveFirst)
	s[primitive.VectorAppend] = helperCall((*compiler).vectorAppend)
	s[primitive.VectorInsert] = helperCall((*compiler).vectorInsert)
	s[primitive.VectorRemoveLast] = helperCall((*compiler).vectorRemoveLast)
	s[primitive.SliceIndex] = helperCall((*compiler).sliceIndex)

	s[primitive.SharedCreate] = strategyFunc(sharedCreate)
	s[primitive.SharedGetValue] = strategyFunc(sharedGetValue)

	s[primitive.OpenFileHandle] = runtimeCall{SymOpenFileHandle}
	s[primitive.ReadLineFromFileHandle] = runtimeCall{SymReadLine}
	s[primitive.WriteStringToFileHandle] = runtimeCall{SymWriteString}

	s[primitive.Yield] = decomposed{}
	s[primitive.CreateYieldPromise] = strategyFunc(createYieldPromise)
	s[primitive.CreateNotifierPair] = strategyFunc(createNotifierPair)
	s[primitive.GetNotifierValue] = decomposed{}
	s[primitive.GetReaderPromise] = strategyFunc(moveFirst)
	s[primitive.SetNotifierValue] = strategyFunc(setNotifierValue)
}

// MissingStrategies returns the operations the compiler cannot lower.
func MissingStrategies() []primitive.Op {
	var out []primitive.Op
	for _, op := range primitive.All() {
		if strategies[op] == nil {
			out = append(out, op)
		}
	}
	return out
}

// moveFirst initializes the produced output with the bytes of the first
// input. Used where the output shares the input's layout or a prefix of it.
func moveFirst(x *nodeCtx) error {
	return x.produced(0).InitializeValue(x.e, x.operand(0))
}

func zeroResult(x *nodeCtx) error {
	return x.produced(0).ZeroValue(x.e)
}

func assign(x *nodeCtx) error {
	target := x.operand(0)
	if x.t.Has(types.TraitDrop) {
		if err := x.d.c.drop(x.e, x.t, target); err != nil {
			return err
		}
	}
	return storeAt(x.e, x.t, target, 0, x.value(1))
}

func exchange(x *nodeCtx) error {
	e, t := x.e, x.t
	tmp := x.d.temp("exchange", t)
	a, b := x.operand(0), x.operand(1)
	copyInto := func(dst, src valueFn) error {
		if err := dst(e); err != nil {
			return err
		}
		if err := src(e); err != nil {
			return err
		}
		e.CopyBytes(t.Size())
		return nil
	}
	if err := copyInto(tmp.GetAddress, a); err != nil {
		return err
	}
	if err := copyInto(a, b); err != nil {
		return err
	}
	return copyInto(b, tmp.GetAddress)
}

func createCopy(x *nodeCtx) error {
	dst := x.produced(0)
	if x.t.IsScalar() && x.t.Has(types.TraitCopy) {
		return dst.InitializeValue(x.e, x.value(0))
	}
	return x.d.c.clone(x.e, x.t, x.operand(0), dst.InitializeAddress)
}

func dropValue(x *nodeCtx) error {
	in := x.in(0)
	if x.d.unwired(in) || !x.t.Has(types.TraitDrop) {
		return nil
	}
	return x.d.c.drop(x.e, x.t, x.d.source(in).GetAddress)
}

func output(x *nodeCtx) error {
	e := x.e
	sym, ok := outputSymbol(x.t)
	if !ok {
		return errors.MissingTrait("Display", x.t.String())
	}
	if sym == SymOutputString {
		addr := x.operand(0)
		if err := addr(e); err != nil {
			return err
		}
		e.I32Load(2, types.BufferPtrOffset)
		if err := addr(e); err != nil {
			return err
		}
		e.I32Load(2, types.BufferLenOffset)
	} else if err := x.value(0)(e); err != nil {
		return err
	}
	e.Call(x.runtime(sym))
	return nil
}

// inspect copies the value into a static slot the host reads after the
// run.
func inspect(x *nodeCtx) error {
	e, t := x.e, x.t
	size := t.Size()
	if t.IsUnsized() {
		size = types.FatSize
	}
	c := x.d.c
	addr := c.mb.static(size, max(t.Align(), 4))
	c.addInspect(InspectSlot{
		Type:       t,
		Definition: x.d.g.Name,
		Export:     c.inspectExport(x.d.g.Name, x.n.ID),
		Node:       x.n.ID,
		Address:    addr,
		Size:       size,
	})
	e.I32Const(int32(addr))
	if err := x.operand(0)(e); err != nil {
		return err
	}
	e.CopyBytes(size)
	return nil
}

func selectReference(x *nodeCtx) error {
	return x.produced(0).InitializeValue(x.e, func(e *codegen.Emitter) error {
		if err := x.operand(1)(e); err != nil {
			return err
		}
		if err := x.operand(2)(e); err != nil {
			return err
		}
		if err := x.value(0)(e); err != nil {
			return err
		}
		e.Select()
		return nil
	})
}

func rangeIterator(x *nodeCtx) error {
	e := x.e
	p, err := x.inPlace(0)
	if err != nil {
		return err
	}
	if err := storeAt(e, types.Int32, local(p), types.RangeCurrentOffset, x.value(0)); err != nil {
		return err
	}
	return storeAt(e, types.Int32, local(p), types.RangeHighOffset, x.value(1))
}

func some(x *nodeCtx) error {
	e := x.e
	p, err := x.inPlace(0)
	if err != nil {
		return err
	}
	e.LocalGet(p).I32Const(1).I32Store8(types.TagOffset)
	return storeAt(e, x.t, local(p), types.Option(x.t).PayloadOffset(), x.value(0))
}

func widthOps(t *types.Type) (wide bool, signed bool) {
	return t.Scalar() == types.ScalarI64, t.IsSigned()
}

// binaryOp emits the pure arithmetic op for two operands of t.
func binaryOp(e *codegen.Emitter, op primitive.Op, t *types.Type) {
	wide, signed := widthOps(t)
	pick := func(narrow, long byte) {
		if wide {
			e.EmitRawOpcode(long)
		} else {
			e.EmitRawOpcode(narrow)
		}
	}
	switch op {
	case primitive.Add:
		pick(wasm.OpI32Add, wasm.OpI64Add)
	case primitive.Subtract:
		pick(wasm.OpI32Sub, wasm.OpI64Sub)
	case primitive.Multiply:
		pick(wasm.OpI32Mul, wasm.OpI64Mul)
	case primitive.Divide:
		if signed {
			pick(wasm.OpI32DivS, wasm.OpI64DivS)
		} else {
			pick(wasm.OpI32DivU, wasm.OpI64DivU)
		}
	case primitive.Modulus:
		if signed {
			pick(wasm.OpI32RemS, wasm.OpI64RemS)
		} else {
			pick(wasm.OpI32RemU, wasm.OpI64RemU)
		}
	case primitive.And:
		pick(wasm.OpI32And, wasm.OpI64And)
	case primitive.Or:
		pick(wasm.OpI32Or, wasm.OpI64Or)
	case primitive.Xor:
		pick(wasm.OpI32Xor, wasm.OpI64Xor)
	}
}

// unaryOp emits Not or Increment on the value at the top of the stack.
func unaryOp(e *codegen.Emitter, op primitive.Op, t *types.Type) {
	wide, _ := widthOps(t)
	switch {
	case op == primitive.Not && t.Kind() == types.KindBool:
		e.I32Const(1).I32Xor()
	case op == primitive.Not && wide:
		e.I64Const(-1).I64Xor()
	case op == primitive.Not:
		e.I32Const(-1).I32Xor()
	case wide:
		e.I64Const(1).I64Add()
	default:
		e.I32Const(1).I32Add()
	}
}

// arithmeticValue pushes the result of a pure arithmetic op on the
// referents of the node's inputs.
func arithmeticValue(x *nodeCtx, op primitive.Op) valueFn {
	return func(e *codegen.Emitter) error {
		if err := x.value(0)(e); err != nil {
			return err
		}
		if op.IsUnary() {
			unaryOp(e, op, x.t)
		} else {
			if err := x.value(1)(e); err != nil {
				return err
			}
			binaryOp(e, op, x.t)
		}
		e.Normalize(x.t)
		return nil
	}
}

func arithmetic(x *nodeCtx) error {
	return x.produced(0).InitializeValue(x.e, arithmeticValue(x, x.n.Op))
}

// accumulate writes through the mutable reference of its first operand.
func accumulate(x *nodeCtx) error {
	return storeAt(x.e, x.t, x.operand(0), 0, arithmeticValue(x, x.n.Op.Accumulated()))
}

var comparisons = map[primitive.Op][4]byte{
	// i32 signed, i32 unsigned, i64 signed, i64 unsigned
	primitive.Equal:        {wasm.OpI32Eq, wasm.OpI32Eq, wasm.OpI64Eq, wasm.OpI64Eq},
	primitive.NotEqual:     {wasm.OpI32Ne, wasm.OpI32Ne, wasm.OpI64Ne, wasm.OpI64Ne},
	primitive.LessThan:     {wasm.OpI32LtS, wasm.OpI32LtU, wasm.OpI64LtS, wasm.OpI64LtU},
	primitive.LessEqual:    {wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI64LeS, wasm.OpI64LeU},
	primitive.GreaterThan:  {wasm.OpI32GtS, wasm.OpI32GtU, wasm.OpI64GtS, wasm.OpI64GtU},
	primitive.GreaterEqual: {wasm.OpI32GeS, wasm.OpI32GeU, wasm.OpI64GeS, wasm.OpI64GeU},
}

func compare(x *nodeCtx) error {
	ops := comparisons[x.n.Op]
	wide, signed := widthOps(x.t)
	i := 1
	if signed {
		i = 0
	}
	if wide {
		i += 2
	}
	return x.produced(0).InitializeValue(x.e, func(e *codegen.Emitter) error {
		if err := x.value(0)(e); err != nil {
			return err
		}
		if err := x.value(1)(e); err != nil {
			return err
		}
		e.EmitRawOpcode(ops[i])
		return nil
	})
}

func stringToSlice(x *nodeCtx) error {
	e := x.e
	p, err := x.inPlace(0)
	if err != nil {
		return err
	}
	str := x.operand(0)
	for _, off := range []uint32{types.BufferPtrOffset, types.BufferLenOffset} {
		err := storeAt(e, types.Int32, local(p), off, func(e *codegen.Emitter) error {
			if err := str(e); err != nil {
				return err
			}
			e.I32Load(2, off)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func sharedCreate(x *nodeCtx) error {
	e, t := x.e, x.t
	shared := types.Shared(t)
	cell := x.d.fb.local(wasm.ValI32)
	e.I32Const(int32(shared.SharedCellSize())).I32Const(int32(max(t.Align(), 4))).
		Call(x.runtime(SymAlloc)).LocalSet(cell)
	e.LocalGet(cell).I32Const(1).I32Store(2, types.SharedRefCountOffset)
	if err := storeAt(e, t, local(cell), shared.SharedValueOffset(), x.value(0)); err != nil {
		return err
	}
	return x.produced(0).InitializeValue(e, local(cell))
}

func sharedGetValue(x *nodeCtx) error {
	off := types.Shared(x.t).SharedValueOffset()
	return x.produced(0).InitializeValue(x.e, func(e *codegen.Emitter) error {
		if err := x.value(0)(e); err != nil {
			return err
		}
		e.AddOffset(off)
		return nil
	})
}

func createYieldPromise(x *nodeCtx) error {
	e := x.e
	ref := x.in(0).Type
	p, err := x.inPlace(0)
	if err != nil {
		return err
	}
	e.LocalGet(p).I32Const(0).I32Store8(types.TagOffset)
	return storeAt(e, ref, local(p), types.YieldPromise(ref).PayloadOffset(), x.operand(0))
}

func createNotifierPair(x *nodeCtx) error {
	e, t := x.e, x.t
	reader := types.NotifierReader(t)
	cell := x.d.fb.local(wasm.ValI32)
	size := reader.NotifierCellSize()
	e.I32Const(int32(size)).I32Const(int32(max(t.Align(), 4))).
		Call(x.runtime(SymAlloc)).LocalTee(cell)
	e.ZeroBytes(size)
	e.LocalGet(cell).I32Const(2).I32Store(2, types.NotifierRefCountOffset)
	if err := x.produced(0).InitializeValue(e, local(cell)); err != nil {
		return err
	}
	return x.produced(1).InitializeValue(e, local(cell))
}

// setNotifierValue stores the value, wakes a waiting reader and releases
// the writer.
func setNotifierValue(x *nodeCtx) error {
	e, t := x.e, x.t
	fb := x.d.fb
	reader := types.NotifierReader(t)
	cell := fb.local(wasm.ValI32)
	if err := x.value(0)(e); err != nil {
		return err
	}
	e.LocalSet(cell)
	if err := storeAt(e, t, local(cell), reader.NotifierValueOffset(), x.value(1)); err != nil {
		return err
	}
	e.LocalGet(cell).I32Const(NotifierSet).I32Store(2, types.NotifierStatusOffset)
	x.d.c.wakeNotifier(fb, cell)
	return x.d.c.releaseNotifier(fb, t, cell)
}
