package graph

import (
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
)

// Builder constructs a Graph. The first error is kept and returned by Build;
// later calls after an error are no-ops returning zero ids.
type Builder struct {
	g   *Graph
	err error
}

// NewBuilder starts a graph for the definition name.
func NewBuilder(name string) *Builder {
	return &Builder{g: New(name)}
}

// Graph exposes the graph under construction.
func (b *Builder) Graph() *Graph { return b.g }

// Root returns the top-level diagram.
func (b *Builder) Root() DiagramID { return b.g.root }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// In returns input terminal i of node n.
func (b *Builder) In(n NodeID, i int) TerminalID {
	if b.err != nil {
		return 0
	}
	node := b.g.nodes[n]
	if i >= len(node.Inputs) {
		b.fail(errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Node(int(n)).Detail("node has no input %d", i).Build())
		return 0
	}
	return node.Inputs[i]
}

// Out returns output terminal i of node n.
func (b *Builder) Out(n NodeID, i int) TerminalID {
	if b.err != nil {
		return 0
	}
	node := b.g.nodes[n]
	if i >= len(node.Outputs) {
		b.fail(errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Node(int(n)).Detail("node has no output %d", i).Build())
		return 0
	}
	return node.Outputs[i]
}

// Constant adds a constant and returns its output terminal.
func (b *Builder) Constant(d DiagramID, t *types.Type, value any) TerminalID {
	if b.err != nil {
		return 0
	}
	switch value.(type) {
	case bool, int64, string:
	case int:
		value = int64(value.(int))
	default:
		b.fail(errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Type(t.String()).Detail("unsupported constant %v", value).Build())
		return 0
	}
	n := b.g.AddConstant(d, t, value)
	return b.g.nodes[n].Outputs[0]
}

// Functional adds a primitive operation node.
func (b *Builder) Functional(d DiagramID, op primitive.Op, typeArg *types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	id, err := b.g.AddFunctional(d, op, typeArg)
	if err != nil {
		b.fail(err)
	}
	return id
}

// MethodCall adds a call node.
func (b *Builder) MethodCall(d DiagramID, target string, inputs, outputs []*types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	return b.g.AddMethodCall(d, target, inputs, outputs)
}

// Await adds an await node.
func (b *Builder) Await(d DiagramID, promise *types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	id, err := b.g.AddAwait(d, promise)
	if err != nil {
		b.fail(err)
	}
	return id
}

// Drop adds an explicit drop node.
func (b *Builder) Drop(d DiagramID, t *types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	return b.g.AddDrop(d, t)
}

// Parameter adds a definition parameter and returns its data terminal.
func (b *Builder) Parameter(dir primitive.Direction, t *types.Type) TerminalID {
	if b.err != nil {
		return 0
	}
	if dir == primitive.InOut {
		b.fail(errors.InoutNotReference("parameter", t.String()))
		return 0
	}
	n := b.g.AddParameter(dir, t)
	node := b.g.nodes[n]
	if dir == primitive.Out {
		return node.Inputs[0]
	}
	return node.Outputs[0]
}

// Connect wires src to dst.
func (b *Builder) Connect(src, dst TerminalID) {
	if b.err != nil {
		return
	}
	if err := b.g.Connect(src, dst); err != nil {
		b.fail(err)
	}
}

// Frame adds a frame with one nested diagram.
func (b *Builder) Frame(d DiagramID) NodeID { return b.structure(d, Frame, 1) }

// Loop adds a loop. Its condition tunnel is border 0.
func (b *Builder) Loop(d DiagramID) NodeID { return b.structure(d, Loop, 1) }

// OptionPattern adds an option match over Option[elem]. Diagram 0 runs for
// Some and receives the payload from the selector, diagram 1 runs for None.
func (b *Builder) OptionPattern(d DiagramID, elem *types.Type) NodeID {
	s := b.structure(d, OptionPattern, 2)
	if b.err != nil {
		return 0
	}
	b.g.AddBorder(s, OptionPatternSelector, Left, types.Option(elem), []*types.Type{elem, nil})
	return s
}

// VariantPattern adds a match over a variant type with one diagram per case.
func (b *Builder) VariantPattern(d DiagramID, variant *types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	if variant.Kind() != types.KindVariant {
		b.fail(errors.New(errors.PhaseGraph, errors.KindTypeMismatch).
			Type(variant.String()).Detail("variant pattern requires a variant").Build())
		return 0
	}
	s := b.structure(d, VariantPattern, len(variant.Fields()))
	b.g.AddBorder(s, VariantSelector, Left, variant, variant.Fields())
	return s
}

func (b *Builder) structure(d DiagramID, kind StructureKind, diagrams int) NodeID {
	if b.err != nil {
		return 0
	}
	return b.g.AddStructure(d, kind, diagrams)
}

// Body returns nested diagram i of structure s.
func (b *Builder) Body(s NodeID, i int) DiagramID {
	if b.err != nil {
		return 0
	}
	return b.g.nodes[s].Diagrams[i]
}

// Selector returns the border node carrying a loop condition or a pattern's
// matched value.
func (b *Builder) Selector(s NodeID) NodeID {
	if b.err != nil {
		return 0
	}
	return b.g.nodes[s].Borders[0]
}

func (b *Builder) sameForEachDiagram(s NodeID, t *types.Type) []*types.Type {
	inner := make([]*types.Type, len(b.g.nodes[s].Diagrams))
	for i := range inner {
		inner[i] = t
	}
	return inner
}

// Tunnel adds an input tunnel carrying t into every nested diagram.
func (b *Builder) Tunnel(s NodeID, t *types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	return b.g.AddBorder(s, Tunnel, Left, t, b.sameForEachDiagram(s, t))
}

// UnwrapOptionTunnel adds a frame input that makes the frame conditional on
// the option being Some.
func (b *Builder) UnwrapOptionTunnel(frame NodeID, elem *types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	if b.g.nodes[frame].Struct != Frame {
		b.fail(errors.Unsupported(errors.PhaseGraph, "unwrap option tunnel outside a frame"))
		return 0
	}
	return b.g.AddBorder(frame, UnwrapOptionTunnel, Left, types.Option(elem), []*types.Type{elem})
}

// IterateTunnel adds a loop input over an iterator; the loop stops when the
// iterator is exhausted.
func (b *Builder) IterateTunnel(loop NodeID, iterator *types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	if b.g.nodes[loop].Struct != Loop {
		b.fail(errors.Unsupported(errors.PhaseGraph, "iterate tunnel outside a loop"))
		return 0
	}
	item := IteratorItem(iterator)
	if item == nil {
		b.fail(errors.New(errors.PhaseGraph, errors.KindTypeMismatch).
			Type(iterator.String()).Detail("not an iterator").Build())
		return 0
	}
	return b.g.AddBorder(loop, IterateTunnel, Left, iterator, []*types.Type{item})
}

// IteratorItem returns the element type produced by an iterator type.
func IteratorItem(iterator *types.Type) *types.Type {
	switch iterator.Kind() {
	case types.KindRangeIterator:
		return types.Int32
	case types.KindStringSplitIterator:
		return types.ImmutableRef(types.StringSlice, "")
	}
	return nil
}

// OutputTunnel adds an output tunnel carrying t out of every nested diagram.
func (b *Builder) OutputTunnel(s NodeID, t *types.Type) NodeID {
	if b.err != nil {
		return 0
	}
	return b.g.AddBorder(s, Tunnel, Right, t, b.sameForEachDiagram(s, t))
}

// Outer returns the outer terminal of border node bn.
func (b *Builder) Outer(bn NodeID) TerminalID {
	if b.err != nil {
		return 0
	}
	return b.g.OuterTerminal(bn).ID
}

// Inner returns the terminal of border node bn on nested diagram i.
func (b *Builder) Inner(bn NodeID, i int) TerminalID {
	if b.err != nil {
		return 0
	}
	s := b.g.nodes[b.g.nodes[bn].Owner]
	t := b.g.InnerTerminal(bn, s.Diagrams[i])
	if t == nil {
		b.fail(errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Node(int(bn)).Detail("border has no terminal on diagram %d", i).Build())
		return 0
	}
	return t.ID
}

// Build resolves variables and returns the finished graph.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.g.ResolveVariables(); err != nil {
		return nil, err
	}
	return b.g, nil
}
