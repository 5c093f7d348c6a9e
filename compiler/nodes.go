package compiler

import (
	"encoding/binary"

	"github.com/wippyai/asyncgraph/asyncgroup"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/internal/codegen"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/valuesource"
	"github.com/wippyai/asyncgraph/wasm"
)

func (d *defCompiler) visit(grp *asyncgroup.Group, v asyncgroup.Visitation) error {
	switch v.Kind {
	case asyncgroup.VisitNode:
		n := d.g.Node(v.Node)
		if n.Kind == graph.KindBorder {
			return d.visitBorder(n)
		}
		return d.visitNode(grp, n)
	case asyncgroup.VisitStructure:
		return d.visitStructure(d.g.Node(v.Node), v.Diagram, v.Point)
	}
	return nil
}

// valueOf pushes the value t refers to: the value itself for owned
// terminals, the referent for references. Aggregates push their address.
func (d *defCompiler) valueOf(t *graph.Terminal) valueFn {
	src := d.source(t)
	if !t.Type.IsReference() || d.g.IsAutoBorrow(t.ID) {
		return src.GetValue
	}
	elem := t.Type.Elem()
	return func(e *codegen.Emitter) error {
		if err := src.GetValue(e); err != nil {
			return err
		}
		if elem.IsScalar() {
			e.Load(elem, 0)
		}
		return nil
	}
}

// operand pushes t the way calls receive it: references as a pointer to
// the referent, owned values by value or address.
func (d *defCompiler) operand(t *graph.Terminal) valueFn {
	src := d.source(t)
	if t.Type.IsReference() && d.g.IsAutoBorrow(t.ID) {
		return src.GetAddress
	}
	return src.GetValue
}

// loadFrom reads a value of type t at addr+off.
func loadFrom(t *types.Type, addr valueFn, off uint32) valueFn {
	return func(e *codegen.Emitter) error {
		if err := addr(e); err != nil {
			return err
		}
		if t.IsScalar() {
			e.Load(t, off)
		} else {
			e.AddOffset(off)
		}
		return nil
	}
}

func i32(v int32) valueFn {
	return func(e *codegen.Emitter) error {
		e.I32Const(v)
		return nil
	}
}

func local(idx uint32) valueFn {
	return func(e *codegen.Emitter) error {
		e.LocalGet(idx)
		return nil
	}
}

// unwired reports whether input t has no source and owns the zero variable
// created for it.
func (d *defCompiler) unwired(t *graph.Terminal) bool {
	return d.g.Source(t.ID) == nil && d.g.Variable(t.Var).Def == t.ID
}

func (d *defCompiler) zeroUnwired(n *graph.Node) error {
	for _, id := range n.Inputs {
		t := d.g.Terminal(id)
		if d.unwired(t) {
			if err := d.source(t).ZeroValue(d.fb.e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *defCompiler) nodeError(n *graph.Node, kind errors.Kind, detail string) error {
	return errors.New(errors.PhaseCompile, kind).
		Path(d.g.Name, n.Name()).
		Node(int(n.ID)).
		Detail("%s", detail).
		Build()
}

func (d *defCompiler) visitNode(grp *asyncgroup.Group, n *graph.Node) error {
	if err := d.zeroUnwired(n); err != nil {
		return err
	}
	switch n.Kind {
	case graph.KindConstant:
		return d.constant(n)
	case graph.KindFunctional:
		return d.functional(n)
	case graph.KindMethodCall:
		return d.methodCall(n)
	case graph.KindCreateMethodCallPromise:
		return d.createPromise(n)
	case graph.KindAwait:
		return d.await(n)
	case graph.KindPanicOrContinue:
		return d.panicOrContinue(grp, n)
	case graph.KindDecomposeTuple:
		return d.decomposeTuple(n)
	case graph.KindDrop:
		return d.dropNode(n)
	case graph.KindParameter:
		return d.parameter(n)
	}
	return d.nodeError(n, errors.KindUnsupported, "node kind "+n.Kind.String())
}

func (d *defCompiler) constant(n *graph.Node) error {
	e := d.fb.e
	out := d.g.Terminal(n.Outputs[0])
	dst := d.source(out)
	switch v := n.Value.(type) {
	case bool:
		b := int32(0)
		if v {
			b = 1
		}
		return dst.InitializeValue(e, i32(b))
	case int64:
		if out.Type.Scalar() == types.ScalarI64 {
			return dst.InitializeValue(e, func(e *codegen.Emitter) error {
				e.I64Const(v)
				return nil
			})
		}
		return dst.InitializeValue(e, func(e *codegen.Emitter) error {
			e.I32Const(int32(v))
			e.Normalize(out.Type)
			return nil
		})
	case string:
		pair := d.c.stringPair(v)
		switch {
		case out.Type.Kind() == types.KindString:
			e.I32Const(int32(pair))
			if err := dst.InitializeAddress(e); err != nil {
				return err
			}
			e.Call(d.c.mb.runtimeFunc(SymStringFromSlice))
			return nil
		case out.Type.IsReference() && out.Type.Elem().Kind() == types.KindStringSlice:
			return dst.InitializeValue(e, i32(int32(pair)))
		}
	}
	return d.nodeError(n, errors.KindTypeMismatch, "constant of type "+out.Type.String())
}

// stringPair places s in static memory and returns the address of a
// {ptr, len} pair describing it.
func (c *compiler) stringPair(s string) uint32 {
	ptr := c.mb.static(1, 1)
	if len(s) > 0 {
		ptr = c.mb.staticBytes([]byte(s))
	}
	pair := make([]byte, types.FatSize)
	binary.LittleEndian.PutUint32(pair[types.FatPtrOffset:], ptr)
	binary.LittleEndian.PutUint32(pair[types.FatLenOffset:], uint32(len(s)))
	return c.mb.staticBytes(pair)
}

func (d *defCompiler) functional(n *graph.Node) error {
	s := strategies[n.Op]
	if s == nil {
		return errors.New(errors.PhaseCompile, errors.KindMissingStrategy).
			Path(d.g.Name, n.Op.String()).
			Node(int(n.ID)).
			Detail("no code generation strategy for %s", n.Op).
			Build()
	}
	return s.lower(&nodeCtx{d: d, n: n, t: n.TypeArg, e: d.fb.e})
}

// callArgs pushes the inputs of n followed by the addresses of its
// non-passthrough outputs.
func (d *defCompiler) callArgs(n *graph.Node) error {
	e := d.fb.e
	for _, id := range n.Inputs {
		if err := d.operand(d.g.Terminal(id))(e); err != nil {
			return err
		}
	}
	for _, id := range n.Outputs {
		t := d.g.Terminal(id)
		if t.Passthrough >= 0 {
			continue
		}
		if err := d.source(t).InitializeAddress(e); err != nil {
			return err
		}
	}
	return nil
}

func (d *defCompiler) methodCall(n *graph.Node) error {
	var fn uint32
	if target, ok := d.c.defs[n.Target]; ok {
		if target.info.Async {
			return d.nodeError(n, errors.KindUnsupported, "direct call of suspending definition "+n.Target)
		}
		fn = target.fn
	} else if ext, ok := d.c.externals[n.Target]; ok {
		if ext.Yields {
			return errors.Unsupported(errors.PhaseCompile, "calling yielding external "+n.Target)
		}
		fn = d.c.mb.importFunc(ExternalModule, ext.Name, callType(ext.Inputs, ext.Outputs))
	} else {
		return errors.NotFound(errors.PhaseCompile, "call target", n.Target)
	}
	if err := d.callArgs(n); err != nil {
		return err
	}
	d.fb.e.Call(fn)
	return nil
}

// createPromise allocates the callee's continuation record and builds a
// method call promise pointing at it. The callee writes its result into
// the promise payload.
func (d *defCompiler) createPromise(n *graph.Node) error {
	target, ok := d.c.defs[n.Target]
	if !ok {
		if _, ext := d.c.externals[n.Target]; ext {
			return errors.Unsupported(errors.PhaseCompile, "calling yielding external "+n.Target)
		}
		return errors.NotFound(errors.PhaseCompile, "call target", n.Target)
	}
	if !target.info.Async {
		return d.nodeError(n, errors.KindInvalidInput, "promise of non-suspending definition "+n.Target)
	}
	fb, e := d.fb, d.fb.e
	out := d.g.Terminal(n.Outputs[0])
	p := d.source(out)

	for _, id := range n.Inputs {
		if err := d.operand(d.g.Terminal(id))(e); err != nil {
			return err
		}
	}
	state := fb.local(wasm.ValI32)
	e.Call(target.init).LocalSet(state)

	if err := p.InitializeAddress(e); err != nil {
		return err
	}
	e.I32Const(int32(target.table[0])).I32Store(2, types.PromiseFnOffset)
	if err := p.GetAddress(e); err != nil {
		return err
	}
	e.LocalGet(state).I32Store(2, types.PromiseStateOffset)

	e.LocalGet(state)
	if err := p.GetAddress(e); err != nil {
		return err
	}
	e.AddOffset(out.Type.PayloadOffset()).I32Store(2, RecordResultPtrOffset)
	return nil
}

// await polls the promise once. When it is not ready the activation
// returns and the group runs again on wake.
func (d *defCompiler) await(n *graph.Node) error {
	if !d.async {
		return d.nodeError(n, errors.KindInvalidInput, "await in a definition that does not suspend")
	}
	fb, e := d.fb, d.fb.e
	in := d.g.Terminal(n.Inputs[0])
	out := d.g.Terminal(n.Outputs[0])
	promise := d.source(in)
	poll := d.vars[d.g.PollVariable(n.ID)]

	pollFn, err := d.c.pollHelper(in.Type)
	if err != nil {
		return err
	}
	if err := promise.GetValue(e); err != nil {
		return err
	}
	e.I32Const(int32(d.sym.table[d.fid])).LocalGet(0)
	if err := poll.GetAddress(e); err != nil {
		return err
	}
	e.Call(pollFn)

	if err := poll.GetAddress(e); err != nil {
		return err
	}
	e.I32Load8U(types.TagOffset).I32Eqz()
	fb.ifThen()
	e.Return()
	fb.end()

	switch in.Type.Kind() {
	case types.KindMethodCallPromise:
		if err := promise.GetAddress(e); err != nil {
			return err
		}
		e.I32Load(2, types.PromiseStateOffset).Call(d.c.mb.runtimeFunc(SymFree))
	case types.KindNotifierReaderPromise:
		if err := d.c.drop(e, in.Type, promise.GetAddress); err != nil {
			return err
		}
	}
	return d.source(out).InitializeValue(e, loadFrom(out.Type, poll.GetAddress, poll.Type.PayloadOffset()))
}

// panicOrContinue unwraps a panic result. On panic it raises the panicked
// flag and forwards to the skip successors of the group.
func (d *defCompiler) panicOrContinue(grp *asyncgroup.Group, n *graph.Node) error {
	fb, e := d.fb, d.fb.e
	in := d.g.Terminal(n.Inputs[0])
	out := d.g.Terminal(n.Outputs[0])
	addr := d.valueOf(in)

	if err := addr(e); err != nil {
		return err
	}
	e.I32Load8U(types.TagOffset).I32Eqz()
	fb.ifThen()
	d.setPanicked()
	if err := d.signal(grp, grp.SkipSuccessors()); err != nil {
		return err
	}
	d.groupEnd(grp)
	fb.end()

	return d.source(out).InitializeValue(e, loadFrom(out.Type, addr, in.Type.Deref().PayloadOffset()))
}

func (d *defCompiler) decomposeTuple(n *graph.Node) error {
	e := d.fb.e
	in := d.g.Terminal(n.Inputs[0])
	cluster := in.Type.Deref()
	addr := d.valueOf(in)
	for i, id := range n.Outputs {
		out := d.g.Terminal(id)
		if err := d.source(out).InitializeValue(e, loadFrom(out.Type, addr, cluster.FieldOffset(i))); err != nil {
			return err
		}
	}
	return nil
}

func (d *defCompiler) dropNode(n *graph.Node) error {
	in := d.g.Terminal(n.Inputs[0])
	if d.unwired(in) || !in.Type.Has(types.TraitDrop) {
		return nil
	}
	return d.c.drop(d.fb.e, in.Type, d.source(in).GetAddress)
}

// parameter moves a parameter between the caller and the definition's
// variables.
func (d *defCompiler) parameter(n *graph.Node) error {
	fb, e := d.fb, d.fb.e
	if n.Dir != primitive.Out {
		if d.async {
			return nil
		}
		s := d.vars[d.g.Terminal(n.Outputs[0]).Var]
		if s.Kind == valuesource.Register {
			return nil
		}
		return s.InitializeValue(e, local(d.paramLocal[n.ID]))
	}

	in := d.g.Terminal(n.Inputs[0])
	t := in.Type
	value := d.source(in).GetValue
	store := func() error {
		if err := value(e); err != nil {
			return err
		}
		if t.IsScalar() {
			e.Store(t, 0)
		} else {
			e.CopyBytes(t.Size())
		}
		return nil
	}
	if !d.async {
		e.LocalGet(d.paramLocal[n.ID])
		return store()
	}
	rp := fb.local(wasm.ValI32)
	e.LocalGet(0).I32Load(2, RecordResultPtrOffset).LocalTee(rp)
	fb.ifThen()
	e.LocalGet(rp).AddOffset(d.resultOffset(d.outputIndex(n)))
	if err := store(); err != nil {
		return err
	}
	fb.end()
	return nil
}

// outputIndex is the position of output parameter n among the outputs.
func (d *defCompiler) outputIndex(n *graph.Node) int {
	for i, p := range d.g.OutputParams() {
		if p.ID == n.ID {
			return i
		}
	}
	return 0
}
