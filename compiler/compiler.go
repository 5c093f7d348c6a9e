// Package compiler lowers grouped graphs to a WebAssembly module.
//
// Each definition becomes either one ordinary function, when it never
// suspends, or a set of group functions sharing a continuation record, one
// per function id of its grouping. A group function runs a dispatch loop
// over a ready mask of its groups; groups of other functions are resumed
// through the runtime scheduler.
//
// Calls into the runtime go through the fixed "rt" import module. Calls to
// non-yielding externals go through the "ext" module.
package compiler

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/asyncgraph/asyncgroup"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

// Options tunes code generation.
type Options struct {
	// MemoryPages is the minimum initial memory size in 64KiB pages.
	MemoryPages uint32
	// StackSize is the byte size of the shadow stack used by synchronous
	// frames.
	StackSize uint32
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{MemoryPages: 4, StackSize: 64 << 10}
}

// Facts answers whether a call target yields or may panic.
type Facts interface {
	Yields(name string) bool
	MayPanic(name string) bool
}

// Unit is a decomposed definition together with its grouping.
type Unit struct {
	Graph  *graph.Graph
	Groups *asyncgroup.Groups
}

// DefinitionInfo describes the compiled form of one definition.
type DefinitionInfo struct {
	Name     string
	Inputs   []*types.Type
	Outputs  []*types.Type
	Result   *types.Type
	Async    bool
	MayPanic bool
	// Functions is the number of group functions of an async definition.
	Functions int
	// FrameSize is the stack frame of a synchronous definition,
	// RecordSize the continuation record of an asynchronous one.
	FrameSize  uint32
	RecordSize uint32
}

// InspectSlot is the static memory an inspect node writes to.
type InspectSlot struct {
	Type       *types.Type
	Definition string
	Export     string
	Node       graph.NodeID
	Address    uint32
	Size       uint32
}

// Module is the result of compilation.
type Module struct {
	Wasm        *wasm.Module
	Definitions []DefinitionInfo
	Inspects    []InspectSlot
	// Helpers lists every defined function by name, in index order.
	Helpers []string
}

// Definition returns the compiled definition called name.
func (m *Module) Definition(name string) (DefinitionInfo, bool) {
	for _, d := range m.Definitions {
		if d.Name == name {
			return d, true
		}
	}
	return DefinitionInfo{}, false
}

// Inspect returns the inspect slot of node in definition def.
func (m *Module) Inspect(def string, node graph.NodeID) (InspectSlot, bool) {
	for _, s := range m.Inspects {
		if s.Definition == def && s.Node == node {
			return s, true
		}
	}
	return InspectSlot{}, false
}

// symbols holds the function indices declared for a definition.
type symbols struct {
	info  DefinitionInfo
	fn    uint32   // synchronous function
	init  uint32   // async init
	funcs []uint32 // async group functions by function id
	table []uint32 // table index by function id
	unit  Unit
}

type compiler struct {
	opts      Options
	facts     Facts
	mb        *moduleBuilder
	defs      map[string]*symbols
	order     []string
	externals map[string]graph.External
	helpers   map[string]uint32

	stackPointer uint32
	heapBase     uint32
	panicked     uint32

	inspects      []InspectSlot
	inspectCounts map[graph.NodeID]int
}

// Compile generates the module for units. Every unit must be decomposed
// and grouped; externals lists the call targets implemented by the host.
func Compile(units []Unit, externals []graph.External, facts Facts, opts Options) (*Module, error) {
	if opts.StackSize == 0 {
		opts.StackSize = DefaultOptions().StackSize
	}
	c := &compiler{
		opts:          opts,
		facts:         facts,
		mb:            newModuleBuilder(),
		defs:          make(map[string]*symbols, len(units)),
		externals:     make(map[string]graph.External, len(externals)),
		helpers:       make(map[string]uint32),
		inspectCounts: make(map[graph.NodeID]int),
	}

	for _, imp := range RuntimeImports {
		c.mb.importFunc(RuntimeModule, imp.Name, imp.Type)
	}
	for _, ext := range externals {
		c.externals[ext.Name] = ext
		if ext.Yields {
			continue
		}
		c.mb.importFunc(ExternalModule, ext.Name, callType(ext.Inputs, ext.Outputs))
	}

	c.stackPointer = c.mb.global("__stack_pointer", wasm.ValI32, true, wasm.ConstI32(0))
	c.heapBase = c.mb.global(ExportHeapBase, wasm.ValI32, false, wasm.ConstI32(0))
	c.panicked = c.mb.global(ExportPanicked, wasm.ValI32, true, wasm.ConstI32(0))

	for _, u := range units {
		if err := c.declare(u); err != nil {
			return nil, err
		}
	}
	if len(c.mb.table) > 0 {
		c.declareInvoke()
	}

	for _, name := range c.order {
		sym := c.defs[name]
		dc := newDefCompiler(c, sym)
		if err := dc.compile(); err != nil {
			return nil, err
		}
		Logger().Debug("compiled definition",
			zap.String("definition", name),
			zap.Bool("async", sym.info.Async),
			zap.Int("functions", sym.info.Functions))
	}

	for _, slot := range c.inspects {
		idx := c.mb.global("", wasm.ValI32, false, wasm.ConstI32(int32(slot.Address)))
		c.mb.export(slot.Export, wasm.KindGlobal, idx)
	}
	c.mb.export(ExportHeapBase, wasm.KindGlobal, c.heapBase)
	c.mb.export(ExportPanicked, wasm.KindGlobal, c.panicked)

	m := &Module{Inspects: c.inspects}
	m.Wasm = c.mb.finish(c.opts, c.stackPointer, c.heapBase)
	for _, name := range c.order {
		m.Definitions = append(m.Definitions, c.defs[name].info)
	}
	m.Helpers = append(m.Helpers, c.mb.funcName...)
	return m, nil
}

// callType is the signature of a synchronous call: inputs by value or by
// address, then one out pointer per output.
func callType(inputs, outputs []*types.Type) wasm.FuncType {
	ft := wasm.FuncType{}
	for _, t := range inputs {
		ft.Params = append(ft.Params, valType(t))
	}
	for range outputs {
		ft.Params = append(ft.Params, wasm.ValI32)
	}
	return ft
}

// declare assigns function indices to a definition and records its
// exports.
func (c *compiler) declare(u Unit) error {
	g := u.Graph
	if _, dup := c.defs[g.Name]; dup {
		return errors.New(errors.PhaseCompile, errors.KindInvalidInput).
			Path(g.Name).Detail("duplicate definition").Build()
	}
	info := DefinitionInfo{
		Name:     g.Name,
		Inputs:   parameterTypes(g, g.InputParams()),
		Outputs:  parameterTypes(g, g.OutputParams()),
		Async:    c.facts != nil && c.facts.Yields(g.Name),
		MayPanic: c.facts != nil && c.facts.MayPanic(g.Name),
	}
	info.Result = CallResultType(info.Outputs, info.MayPanic)
	sym := &symbols{info: info, unit: u}

	if !info.Async {
		sym.fn = c.mb.declareFunc(g.Name, callType(info.Inputs, info.Outputs))
		c.mb.export(g.Name, wasm.KindFunc, sym.fn)
	} else {
		n := u.Groups.NumFunctions
		sym.info.Functions = n
		state := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
		for fid := range n {
			idx := c.mb.declareFunc(g.Name+"::"+strconv.Itoa(fid), state)
			sym.funcs = append(sym.funcs, idx)
			sym.table = append(sym.table, c.mb.tableSlot(idx))
		}
		initType := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
		for _, t := range info.Inputs {
			initType.Params = append(initType.Params, valType(t))
		}
		sym.init = c.mb.declareFunc(InitExport(g.Name), initType)
		c.mb.export(InitExport(g.Name), wasm.KindFunc, sym.init)
		entry := c.mb.global("", wasm.ValI32, false, wasm.ConstI32(int32(sym.table[0])))
		c.mb.export(EntryExport(g.Name), wasm.KindGlobal, entry)
	}

	for _, n := range g.Nodes() {
		if n.Kind == graph.KindFunctional && n.Op == primitive.Inspect {
			c.inspectCounts[n.ID]++
		}
	}
	c.defs[g.Name] = sym
	c.order = append(c.order, g.Name)
	return nil
}

// declareInvoke adds the trampoline the scheduler uses to resume a group
// function by table index.
func (c *compiler) declareInvoke() {
	ft := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}}
	idx := c.mb.declareFunc(ExportInvoke, ft)
	fb := newFuncBuilder(ExportInvoke, idx, ft)
	stateType := c.mb.m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	fb.e.LocalGet(1).LocalGet(0).CallIndirect(stateType, 0)
	c.mb.setBody(idx, fb.body(nil))
	c.mb.export(ExportInvoke, wasm.KindFunc, idx)
}

func parameterTypes(g *graph.Graph, params []*graph.Node) []*types.Type {
	out := make([]*types.Type, len(params))
	for i, n := range params {
		if n.Dir == primitive.Out {
			out[i] = g.Terminal(n.Inputs[0]).Type
		} else {
			out[i] = g.Terminal(n.Outputs[0]).Type
		}
	}
	return out
}

// inspectExport names the global of an inspect slot, qualifying it when
// several definitions use the same node id.
func (c *compiler) inspectExport(def string, node graph.NodeID) string {
	if c.inspectCounts[node] > 1 {
		return QualifiedInspectExport(def, int(node))
	}
	return InspectExport(int(node))
}

func (c *compiler) addInspect(slot InspectSlot) {
	c.inspects = append(c.inspects, slot)
}
