package compiler

import (
	"strconv"

	"github.com/wippyai/asyncgraph/asyncgroup"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/internal/codegen"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/valuesource"
	"github.com/wippyai/asyncgraph/wasm"
)

// valueFn pushes a value, or the address of an aggregate.
type valueFn = func(*codegen.Emitter) error

// defCompiler compiles one definition.
type defCompiler struct {
	c     *compiler
	sym   *symbols
	g     *graph.Graph
	gs    *asyncgroup.Groups
	async bool

	alloc  *valuesource.Allocator
	vars   []*valuesource.Source
	usages []valuesource.Usage
	temps  map[string]*valuesource.Source
	// async: fire count fields of groups signaled more than once
	fireFields map[*asyncgroup.Group]*valuesource.Source

	// per function
	fb         *funcBuilder
	fid        int
	groupIndex map[*asyncgroup.Group]int
	fireLocals map[*asyncgroup.Group]uint32
	ready      uint32
	cond       uint32
	panicked   uint32 // sync only
	paramLocal map[graph.NodeID]uint32
}

func newDefCompiler(c *compiler, sym *symbols) *defCompiler {
	return &defCompiler{
		c:          c,
		sym:        sym,
		g:          sym.unit.Graph,
		gs:         sym.unit.Groups,
		async:      sym.info.Async,
		temps:      make(map[string]*valuesource.Source),
		fireFields: make(map[*asyncgroup.Group]*valuesource.Source),
		paramLocal: make(map[graph.NodeID]uint32),
	}
}

func (d *defCompiler) compile() error {
	d.analyze()
	if d.async {
		return d.compileAsync()
	}
	return d.compileSync()
}

// analyze computes how every variable is used and assigns its storage.
func (d *defCompiler) analyze() {
	g, gs := d.g, d.gs
	mode, start := valuesource.ModeFrame, uint32(0)
	if d.async {
		mode, start = valuesource.ModeRecord, RecordHeaderSize
	}
	d.alloc = valuesource.NewAllocator(mode, start)

	// A pseudo group shared by every variable a structure touches outside
	// its own group.
	shared := len(gs.List)

	d.usages = make([]valuesource.Usage, g.NumVariables())
	for _, v := range g.Variables() {
		u := valuesource.Usage{
			Type:      v.Type,
			Name:      "v" + strconv.Itoa(int(v.ID)),
			Addressed: v.Type.Has(types.TraitDrop),
			Groups:    valuesource.NewBitSet(shared + 1),
		}
		for _, tid := range v.Terminals {
			t := g.Terminal(tid)
			n := g.Node(t.Node)
			if grp := gs.NodeGroup[n.ID]; grp != nil {
				u.Groups.Set(grp.ID)
			}
			if g.IsAutoBorrow(tid) {
				u.Addressed = true
			}
			switch n.Kind {
			case graph.KindBorder:
				u.Groups.Set(shared)
			case graph.KindMethodCall:
				if t.Dir == graph.Output {
					u.Addressed = true
				}
			case graph.KindParameter:
				if d.async && n.Dir == primitive.In {
					u.Groups.Set(shared)
				}
			}
		}
		d.usages[v.ID] = u
	}

	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.KindAwait:
			poll := g.PollVariable(n.ID)
			u := &d.usages[poll]
			u.Addressed = true
			if grp := gs.NodeGroup[n.ID]; grp != nil {
				u.Groups.Set(grp.ID)
			}
		case graph.KindStructure:
			for _, b := range g.RightBorders(n.ID) {
				d.usages[g.OuterTerminal(b.ID).Var].Updated = true
			}
			if n.Struct == graph.Loop {
				d.usages[g.OuterTerminal(n.Borders[0]).Var].Updated = true
				for _, b := range g.LeftBorders(n.ID) {
					if b.Border == graph.IterateTunnel {
						d.usages[g.OuterTerminal(b.ID).Var].Addressed = true
					}
				}
			}
		}
	}

	if d.async {
		for _, grp := range gs.List {
			if grp.MaxFireCount() > 1 {
				d.fireFields[grp] = d.alloc.Field(grp.Label+"FireCount", types.Int32)
			}
		}
	}

	d.vars = make([]*valuesource.Source, g.NumVariables())
	for id := 1; id < len(d.usages); id++ {
		d.vars[id] = d.alloc.Place(d.usages[id])
	}
}

// temp returns a scratch memory slot of type t, shared by every use of
// the same name within the definition.
func (d *defCompiler) temp(name string, t *types.Type) *valuesource.Source {
	key := name + ":" + t.String()
	if s, ok := d.temps[key]; ok {
		return s
	}
	s := d.alloc.Field(name, t)
	d.temps[key] = s
	return s
}

func (d *defCompiler) source(t *graph.Terminal) *valuesource.Source {
	return d.vars[t.Var]
}

// bindRegisters gives every register used by groups a local of the current
// function.
func (d *defCompiler) bindRegisters(groups []*asyncgroup.Group) {
	for id := 1; id < len(d.vars); id++ {
		s := d.vars[id]
		if s.Kind != valuesource.Register {
			continue
		}
		if _, bound := s.Local(); bound && !d.async {
			continue
		}
		used := false
		for _, grp := range groups {
			if d.usages[id].Groups.Has(grp.ID) {
				used = true
				break
			}
		}
		if used || !d.async {
			s.Bind(d.fb.local(valType(s.Type)))
		}
	}
}

func (d *defCompiler) compileSync() error {
	g := d.g
	ft := callType(d.sym.info.Inputs, d.sym.info.Outputs)
	d.fb = newFuncBuilder(g.Name, d.sym.fn, ft)
	fb := d.fb

	ins, outs := g.InputParams(), g.OutputParams()
	for i, p := range ins {
		d.paramLocal[p.ID] = uint32(i)
		if s := d.vars[g.Terminal(p.Outputs[0]).Var]; s.Kind == valuesource.Register {
			s.Bind(uint32(i))
		}
	}
	for i, p := range outs {
		d.paramLocal[p.ID] = uint32(len(ins) + i)
	}

	fp := fb.local(wasm.ValI32)
	d.alloc.Base().Local = fp
	d.panicked = fb.local(wasm.ValI32)

	groups := make([]*asyncgroup.Group, 0, len(d.gs.List))
	groups = append(groups, d.gs.Initial)
	for _, grp := range d.gs.List {
		if grp != d.gs.Initial {
			groups = append(groups, grp)
		}
	}
	d.bindRegisters(groups)
	d.fireLocals = make(map[*asyncgroup.Group]uint32)
	for _, grp := range groups {
		if grp.MaxFireCount() > 1 {
			d.fireLocals[grp] = fb.local(wasm.ValI32)
		}
	}

	if err := d.dispatch(groups); err != nil {
		return err
	}

	frame := types.AlignUp(d.alloc.Size(), 16)
	d.sym.info.FrameSize = frame

	e := fb.e
	e.LocalGet(d.panicked).GlobalSet(d.c.panicked)
	e.LocalGet(fp).I32Const(int32(frame)).I32Add().GlobalSet(d.c.stackPointer)

	pro := codegen.NewEmitter()
	pro.GlobalGet(d.c.stackPointer).I32Const(int32(frame)).I32Sub().LocalTee(fp).GlobalSet(d.c.stackPointer)
	if frame > 0 {
		pro.LocalGet(fp).ZeroBytes(frame)
	}
	for grp, l := range d.fireLocals {
		pro.I32Const(int32(grp.MaxFireCount())).LocalSet(l)
	}
	pro.I64Const(1).LocalSet(d.ready)

	d.c.mb.setBody(d.sym.fn, fb.body(pro.Bytes()))
	return nil
}

func (d *defCompiler) compileAsync() error {
	g := d.g
	stateType := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	for fid := range d.gs.NumFunctions {
		d.fid = fid
		idx := d.sym.funcs[fid]
		d.fb = newFuncBuilder(g.Name+"::"+strconv.Itoa(fid), idx, stateType)
		d.alloc.Base().Local = 0

		groups := d.gs.Function(fid)
		d.bindRegisters(groups)
		if err := d.dispatch(groups); err != nil {
			return err
		}
		pro := codegen.NewEmitter()
		pro.I64Const(1).LocalSet(d.ready)
		d.c.mb.setBody(idx, d.fb.body(pro.Bytes()))
	}
	return d.compileInit()
}

// compileInit builds {name}::init, which allocates and fills the
// continuation record. It runs last so the record layout is final.
func (d *defCompiler) compileInit() error {
	g := d.g
	ins := g.InputParams()
	ft := d.c.mb.funcType(d.sym.init)
	d.fb = newFuncBuilder(InitExport(g.Name), d.sym.init, ft)
	fb, e := d.fb, d.fb.e

	size := d.alloc.Size()
	d.sym.info.RecordSize = size
	state := fb.local(wasm.ValI32)
	d.alloc.Base().Local = state

	e.I32Const(int32(size)).I32Const(8).Call(d.c.mb.runtimeFunc(SymAlloc)).LocalTee(state)
	e.ZeroBytes(size)

	for i, p := range ins {
		s := d.vars[g.Terminal(p.Outputs[0]).Var]
		param := uint32(i)
		err := s.InitializeValue(e, func(e *codegen.Emitter) error {
			e.LocalGet(param)
			return nil
		})
		if err != nil {
			return err
		}
	}
	for grp, fc := range d.fireFields {
		max := int32(grp.MaxFireCount())
		err := fc.UpdateValue(e, func(e *codegen.Emitter) error {
			e.I32Const(max)
			return nil
		})
		if err != nil {
			return err
		}
	}
	e.LocalGet(state)
	d.c.mb.setBody(d.sym.init, fb.body(nil))
	return nil
}

// dispatch emits the dispatch loop over groups. Group i runs when bit i of
// the ready mask is set; the lowest set bit runs first.
//
//	block $exit
//	  loop $dispatch
//	    br_if $exit (ready == 0)
//	    idx = ctz(ready); ready &= ready-1
//	    block ... block
//	      br_table idx
//	    end  group 0; br $dispatch
//	    ...
func (d *defCompiler) dispatch(groups []*asyncgroup.Group) error {
	if len(groups) > asyncgroup.MaxGroupsPerFunction {
		return errors.Limit(errors.PhaseCompile, "groups in function "+d.fb.name, len(groups), asyncgroup.MaxGroupsPerFunction)
	}
	fb, e := d.fb, d.fb.e
	d.groupIndex = make(map[*asyncgroup.Group]int, len(groups))
	for i, grp := range groups {
		d.groupIndex[grp] = i
	}
	d.ready = fb.local(wasm.ValI64)
	idx := fb.local(wasm.ValI32)
	d.cond = fb.local(wasm.ValI32)

	fb.block(labelExit)
	fb.loop(labelDispatch)
	e.LocalGet(d.ready).I64Eqz()
	fb.brIf(labelExit)
	e.LocalGet(d.ready).I64Ctz().I32WrapI64().LocalSet(idx)
	e.LocalGet(d.ready).LocalGet(d.ready).I64Const(1).I64Sub().I64And().LocalSet(d.ready)

	n := len(groups)
	for range n {
		fb.block(labelPlain)
	}
	targets := make([]uint32, n)
	for i := range targets {
		targets[i] = uint32(i)
	}
	e.LocalGet(idx).BrTable(targets, uint32(n-1))

	for _, grp := range groups {
		fb.end()
		if err := d.emitGroup(grp); err != nil {
			return err
		}
	}
	fb.end() // loop
	fb.end() // exit
	return nil
}

func (d *defCompiler) emitGroup(grp *asyncgroup.Group) error {
	fb := d.fb
	if grp.Skippable {
		d.loadPanicked()
		fb.ifThen()
		if err := d.signal(grp, grp.SkipSuccessors()); err != nil {
			return err
		}
		d.groupEnd(grp)
		fb.end()
	}
	for _, v := range grp.Visitations {
		if err := d.visit(grp, v); err != nil {
			return err
		}
	}
	return d.finishGroup(grp)
}

// finishGroup signals the continuation of grp. A conditional continuation
// picks its alternative from the cond local.
func (d *defCompiler) finishGroup(grp *asyncgroup.Group) error {
	fb, e := d.fb, d.fb.e
	c := grp.Continuation
	if !c.Conditional || len(c.Alternatives) == 0 {
		if err := d.signal(grp, c.Successors); err != nil {
			return err
		}
		d.groupEnd(grp)
		return nil
	}
	k := len(c.Alternatives)
	for range k {
		fb.block(labelPlain)
	}
	targets := make([]uint32, k)
	for i := range targets {
		targets[i] = uint32(i)
	}
	e.LocalGet(d.cond).BrTable(targets, uint32(k-1))
	for _, alt := range c.Alternatives {
		fb.end()
		if err := d.signal(grp, alt); err != nil {
			return err
		}
		d.groupEnd(grp)
	}
	return nil
}

// groupEnd leaves the current group: back to the dispatch loop, or out of
// the activation for the exit group of an async definition.
func (d *defCompiler) groupEnd(grp *asyncgroup.Group) {
	if d.async && grp == d.gs.Exit {
		d.asyncEpilogue()
		d.fb.e.Return()
		return
	}
	d.fb.br(labelDispatch)
}

// signal marks targets ready. Groups of the current function are set in
// the ready mask; groups of other functions are their function's entry and
// are handed to the scheduler.
func (d *defCompiler) signal(from *asyncgroup.Group, targets []*asyncgroup.Group) error {
	fb, e := d.fb, d.fb.e
	for _, s := range targets {
		local := !d.async || s.FunctionID == d.fid
		if !local && !d.gs.IsEntry(s) {
			return errors.New(errors.PhaseCompile, errors.KindInvalidInput).
				Path(d.g.Name, from.Label, s.Label).
				Detail("cross-function successor is not a function entry").
				Build()
		}
		bit, ok := d.groupIndex[s]
		if local && !ok {
			return d.unknownTarget(from, s, "not in the current function")
		}
		fire := func() {
			if local {
				e.LocalGet(d.ready).I64Const(int64(1) << bit).I64Or().LocalSet(d.ready)
				return
			}
			e.I32Const(int32(d.sym.table[s.FunctionID])).LocalGet(0).Call(d.c.mb.runtimeFunc(SymSchedule))
		}
		max := s.MaxFireCount()
		if max <= 1 {
			fire()
			continue
		}
		if !d.async {
			l, ok := d.fireLocals[s]
			if !ok {
				return d.unknownTarget(from, s, "has no fire count")
			}
			e.LocalGet(l).I32Const(1).I32Sub().LocalTee(l).I32Eqz()
			fb.ifThen()
			e.I32Const(int32(max)).LocalSet(l)
			fire()
			fb.end()
			continue
		}
		fc, ok := d.fireFields[s]
		if !ok {
			return d.unknownTarget(from, s, "has no fire count")
		}
		err := fc.UpdateValue(e, func(e *codegen.Emitter) error {
			if err := fc.GetValue(e); err != nil {
				return err
			}
			e.I32Const(1).I32Sub()
			return nil
		})
		if err != nil {
			return err
		}
		if err := fc.GetValue(e); err != nil {
			return err
		}
		e.I32Eqz()
		fb.ifThen()
		err = fc.UpdateValue(e, func(e *codegen.Emitter) error {
			e.I32Const(int32(max))
			return nil
		})
		if err != nil {
			return err
		}
		fire()
		fb.end()
	}
	return nil
}

func (d *defCompiler) unknownTarget(from, to *asyncgroup.Group, why string) error {
	return errors.New(errors.PhaseCompile, errors.KindInvalidInput).
		Path(d.g.Name, from.Label, to.Label).
		Detail("successor %s", why).
		Build()
}

func (d *defCompiler) loadPanicked() {
	if d.async {
		d.fb.e.LocalGet(0).I32Load(2, RecordPanickedOffset)
		return
	}
	d.fb.e.LocalGet(d.panicked)
}

func (d *defCompiler) setPanicked() {
	if d.async {
		d.fb.e.LocalGet(0).I32Const(1).I32Store(2, RecordPanickedOffset)
		return
	}
	d.fb.e.I32Const(1).LocalSet(d.panicked)
}

// resultLayout returns where output i is written inside the caller's
// result value.
func (d *defCompiler) resultOffset(i int) uint32 {
	info := d.sym.info
	r := info.Result
	var off uint32
	if info.MayPanic {
		off = r.PayloadOffset()
		r = r.Elem()
	}
	if len(info.Outputs) > 1 {
		off += r.FieldOffset(i)
	}
	return off
}

// asyncEpilogue completes the activation: the result tag, the done status,
// and a wake of whoever awaits it.
func (d *defCompiler) asyncEpilogue() {
	fb, e := d.fb, d.fb.e
	info := d.sym.info
	rp := fb.local(wasm.ValI32)
	e.LocalGet(0).I32Load(2, RecordResultPtrOffset).LocalTee(rp)
	fb.ifThen()
	if info.MayPanic {
		e.LocalGet(rp)
		d.loadPanicked()
		e.I32Eqz().I32Store8(0)
	}
	if len(info.Outputs) == 0 {
		e.LocalGet(rp).I32Const(1).I32Store8(d.resultOffset(0))
	}
	fb.end()

	e.LocalGet(0).I32Const(StatusDone).I32Store(2, RecordStatusOffset)
	waker := fb.local(wasm.ValI32)
	e.LocalGet(0).I32Load(2, RecordWakerFnOffset).LocalTee(waker)
	fb.ifThen()
	e.LocalGet(waker).LocalGet(0).I32Load(2, RecordWakerStateOffset).Call(d.c.mb.runtimeFunc(SymSchedule))
	fb.end()
}
