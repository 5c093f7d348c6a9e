package compiler

import (
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/internal/codegen"
	"github.com/wippyai/asyncgraph/types"
)

func (d *defCompiler) visitStructure(s *graph.Node, diagram graph.DiagramID, p graph.TraversalPoint) error {
	switch p {
	case graph.BeforeLeftBorderNodes:
		return d.beforeLeft(s)
	case graph.AfterLeftBorderNodesAndBeforeDiagram:
		return d.afterLeft(s, diagram)
	case graph.AfterDiagram:
		if s.Struct == graph.OptionPattern || s.Struct == graph.VariantPattern {
			return d.mergeDiagram(s, diagram)
		}
	}
	return nil
}

// conditionVar is the loop's continue condition, shared by the body
// through the condition tunnel.
func (d *defCompiler) conditionVar(loop *graph.Node) *graph.Terminal {
	return d.g.OuterTerminal(loop.Borders[0])
}

// beforeLeft prepares a structure: output tunnels start zeroed, unwired
// inputs get their default, and cond is seeded for the structure kind.
func (d *defCompiler) beforeLeft(s *graph.Node) error {
	g, e := d.g, d.fb.e
	for _, b := range g.RightBorders(s.ID) {
		if err := d.source(g.OuterTerminal(b.ID)).ZeroValue(e); err != nil {
			return err
		}
	}
	for _, b := range g.LeftBorders(s.ID) {
		outer := g.OuterTerminal(b.ID)
		if !d.unwired(outer) {
			continue
		}
		var err error
		if b.Border == graph.LoopConditionTunnel {
			err = d.source(outer).InitializeValue(e, i32(1))
		} else {
			err = d.source(outer).ZeroValue(e)
		}
		if err != nil {
			return err
		}
	}

	switch s.Struct {
	case graph.Frame:
		if g.IsConditionalFrame(s.ID) {
			e.I32Const(1).LocalSet(d.cond)
		}
	case graph.OptionPattern, graph.VariantPattern:
		sel := g.OuterTerminal(s.Borders[0])
		if err := d.valueOf(sel)(e); err != nil {
			return err
		}
		e.I32Load8U(types.TagOffset)
		if s.Struct == graph.OptionPattern {
			// diagram 0 matches Some
			e.I32Eqz()
		}
		e.LocalSet(d.cond)
	}
	return nil
}

func (d *defCompiler) visitBorder(b *graph.Node) error {
	g, e := d.g, d.fb.e
	s := g.Node(b.Owner)
	outer := g.OuterTerminal(b.ID)

	if b.Side == graph.Left {
		switch b.Border {
		case graph.UnwrapOptionTunnel:
			opt := outer.Type.Deref()
			addr := d.valueOf(outer)
			e.LocalGet(d.cond)
			if err := addr(e); err != nil {
				return err
			}
			e.I32Load8U(types.TagOffset).I32And().LocalSet(d.cond)
			inner := g.InnerTerminal(b.ID, s.Diagrams[0])
			return d.source(inner).InitializeValue(e, loadFrom(inner.Type, addr, opt.PayloadOffset()))

		case graph.IterateTunnel:
			return d.iterate(s, b)
		}
		return nil
	}

	if s.Struct == graph.OptionPattern || s.Struct == graph.VariantPattern {
		return nil
	}
	inner := g.InnerTerminal(b.ID, s.Diagrams[0])
	if inner == nil || d.unwired(inner) {
		return nil
	}
	dst := d.source(outer)
	if s.Struct == graph.Loop && outer.Type.Has(types.TraitDrop) {
		if err := d.c.drop(e, outer.Type, dst.GetAddress); err != nil {
			return err
		}
	}
	return dst.UpdateValue(e, d.valueOf(inner))
}

// iterate advances the iterator of an iterate tunnel and clears the loop
// condition once it is exhausted.
func (d *defCompiler) iterate(loop, b *graph.Node) error {
	g, e := d.g, d.fb.e
	outer := g.OuterTerminal(b.ID)
	inner := g.InnerTerminal(b.ID, loop.Diagrams[0])
	iter := outer.Type.Deref()
	item := graph.IteratorItem(iter)

	var next string
	switch iter.Kind() {
	case types.KindRangeIterator:
		next = SymRangeIteratorNext
	case types.KindStringSplitIterator:
		next = SymStringSplitIteratorNext
	default:
		return d.nodeError(b, errors.KindUnsupported, "iterate over "+iter.String())
	}

	opt := types.Option(item)
	slot := d.temp("next", opt)
	if err := d.operandAddress(outer)(e); err != nil {
		return err
	}
	if err := slot.GetAddress(e); err != nil {
		return err
	}
	e.Call(d.c.mb.runtimeFunc(next))

	cond := d.source(d.conditionVar(loop))
	err := cond.UpdateValue(e, func(e *codegen.Emitter) error {
		if err := cond.GetValue(e); err != nil {
			return err
		}
		if err := slot.GetAddress(e); err != nil {
			return err
		}
		e.I32Load8U(types.TagOffset).I32And()
		return nil
	})
	if err != nil {
		return err
	}
	return d.source(inner).InitializeValue(e, loadFrom(inner.Type, slot.GetAddress, opt.PayloadOffset()))
}

// operandAddress pushes the address of the value t refers to or holds.
func (d *defCompiler) operandAddress(t *graph.Terminal) valueFn {
	src := d.source(t)
	if t.Type.IsReference() && !d.g.IsAutoBorrow(t.ID) {
		return src.GetValue
	}
	return src.GetAddress
}

func (d *defCompiler) afterLeft(s *graph.Node, diagram graph.DiagramID) error {
	g, e := d.g, d.fb.e
	switch s.Struct {
	case graph.Loop:
		if err := d.source(d.conditionVar(s)).GetValue(e); err != nil {
			return err
		}
		e.LocalSet(d.cond)

	case graph.OptionPattern, graph.VariantPattern:
		sel := g.Node(s.Borders[0])
		outer := g.OuterTerminal(sel.ID)
		inner := g.InnerTerminal(sel.ID, diagram)
		if inner == nil {
			return nil
		}
		t := outer.Type.Deref()
		return d.source(inner).InitializeValue(e, loadFrom(inner.Type, d.valueOf(outer), t.PayloadOffset()))
	}
	return nil
}

// mergeDiagram copies the output tunnel values of the diagram that ran to
// the pattern's outputs.
func (d *defCompiler) mergeDiagram(s *graph.Node, diagram graph.DiagramID) error {
	g, e := d.g, d.fb.e
	for _, b := range g.RightBorders(s.ID) {
		inner := g.InnerTerminal(b.ID, diagram)
		if inner == nil || d.unwired(inner) {
			continue
		}
		if err := d.source(g.OuterTerminal(b.ID)).UpdateValue(e, d.valueOf(inner)); err != nil {
			return err
		}
	}
	return nil
}
