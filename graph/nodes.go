package graph

import (
	"slices"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
)

func (g *Graph) newDiagram(parent NodeID) DiagramID {
	id := DiagramID(len(g.diagrams))
	g.diagrams = append(g.diagrams, &Diagram{ID: id, Parent: parent})
	return id
}

func (g *Graph) newNode(d DiagramID, kind NodeKind) *Node {
	n := &Node{ID: NodeID(len(g.nodes)), Diagram: d, Kind: kind}
	g.nodes = append(g.nodes, n)
	if kind != KindBorder {
		g.diagrams[d].Nodes = append(g.diagrams[d].Nodes, n.ID)
	}
	return n
}

func (g *Graph) newTerminal(n *Node, dir TerminalDir, d DiagramID, t *types.Type) TerminalID {
	term := &Terminal{
		ID:          TerminalID(len(g.terminals)),
		Node:        n.ID,
		Diagram:     d,
		Type:        t,
		Dir:         dir,
		Passthrough: -1,
	}
	g.terminals = append(g.terminals, term)
	if dir == Input {
		term.Index = len(n.Inputs)
		n.Inputs = append(n.Inputs, term.ID)
	} else {
		term.Index = len(n.Outputs)
		n.Outputs = append(n.Outputs, term.ID)
	}
	return term.ID
}

// AddConstant adds a constant node with one output. Value is a bool, an
// int64 or, for string slice references, a string.
func (g *Graph) AddConstant(d DiagramID, t *types.Type, value any) NodeID {
	n := g.newNode(d, KindConstant)
	n.Value = value
	g.newTerminal(n, Output, d, t)
	return n.ID
}

// AddFunctional adds a primitive operation node with terminals derived from
// the operation's signature.
func (g *Graph) AddFunctional(d DiagramID, op primitive.Op, typeArg *types.Type) (NodeID, error) {
	sig, err := primitive.Instantiate(op, typeArg)
	if err != nil {
		return 0, err
	}
	n := g.newNode(d, KindFunctional)
	n.Op = op
	n.TypeArg = typeArg
	for _, p := range sig.Inputs() {
		g.newTerminal(n, Input, d, p.Type)
	}
	for i, p := range sig.Outputs() {
		id := g.newTerminal(n, Output, d, p.Type)
		g.terminals[id].Passthrough = sig.PassthroughInput(i)
	}
	return n.ID, nil
}

// AddMethodCall adds a call to another definition or to an external.
func (g *Graph) AddMethodCall(d DiagramID, target string, inputs, outputs []*types.Type) NodeID {
	n := g.newNode(d, KindMethodCall)
	n.Target = target
	for _, t := range inputs {
		g.newTerminal(n, Input, d, t)
	}
	for _, t := range outputs {
		g.newTerminal(n, Output, d, t)
	}
	return n.ID
}

// AddCreateMethodCallPromise adds a node that starts nothing but returns a
// promise for a call of target. result is the promised value type.
func (g *Graph) AddCreateMethodCallPromise(d DiagramID, target string, inputs []*types.Type, result *types.Type) NodeID {
	n := g.newNode(d, KindCreateMethodCallPromise)
	n.Target = target
	for _, t := range inputs {
		g.newTerminal(n, Input, d, t)
	}
	g.newTerminal(n, Output, d, types.MethodCallPromise(result))
	return n.ID
}

// AddAwait adds an await node polling a promise of the given type.
func (g *Graph) AddAwait(d DiagramID, promise *types.Type) (NodeID, error) {
	if !promise.IsPromise() {
		return 0, errors.New(errors.PhaseGraph, errors.KindTypeMismatch).
			Type(promise.String()).
			Detail("await input must be a promise").
			Build()
	}
	n := g.newNode(d, KindAwait)
	g.newTerminal(n, Input, d, promise)
	g.newTerminal(n, Output, d, promise.PromiseValue())
	return n.ID, nil
}

// AddPanicOrContinue adds a node unwrapping a PanicResult of elem.
func (g *Graph) AddPanicOrContinue(d DiagramID, elem *types.Type) NodeID {
	n := g.newNode(d, KindPanicOrContinue)
	g.newTerminal(n, Input, d, types.PanicResult(elem))
	g.newTerminal(n, Output, d, elem)
	return n.ID
}

// AddDecomposeTuple adds a node splitting a cluster into its fields.
func (g *Graph) AddDecomposeTuple(d DiagramID, cluster *types.Type) NodeID {
	n := g.newNode(d, KindDecomposeTuple)
	g.newTerminal(n, Input, d, cluster)
	for _, f := range cluster.Fields() {
		g.newTerminal(n, Output, d, f)
	}
	return n.ID
}

// AddDrop adds a node that ends the lifetime of its input.
func (g *Graph) AddDrop(d DiagramID, t *types.Type) NodeID {
	n := g.newNode(d, KindDrop)
	g.newTerminal(n, Input, d, t)
	return n.ID
}

// AddParameter adds a data accessor for a definition parameter on the root
// diagram. An In parameter produces a value, an Out parameter consumes one.
func (g *Graph) AddParameter(dir primitive.Direction, t *types.Type) NodeID {
	n := g.newNode(g.root, KindParameter)
	n.Dir = dir
	n.Index = len(g.params)
	if dir == primitive.Out {
		g.newTerminal(n, Input, g.root, t)
	} else {
		g.newTerminal(n, Output, g.root, t)
	}
	g.params = append(g.params, n.ID)
	return n.ID
}

// AddStructure adds a structure with the given number of nested diagrams.
// Loops receive their condition tunnel as border 0.
func (g *Graph) AddStructure(d DiagramID, kind StructureKind, diagrams int) NodeID {
	n := g.newNode(d, KindStructure)
	n.Struct = kind
	for range diagrams {
		n.Diagrams = append(n.Diagrams, g.newDiagram(n.ID))
	}
	if kind == Loop {
		g.AddBorder(n.ID, LoopConditionTunnel, Left, types.Bool, []*types.Type{types.MutableRef(types.Bool, "")})
	}
	return n.ID
}

// AddBorder adds a border node to structure s. inner holds the inner
// terminal type per nested diagram; a nil entry omits that terminal.
func (g *Graph) AddBorder(s NodeID, kind BorderKind, side Side, outer *types.Type, inner []*types.Type) NodeID {
	st := g.nodes[s]
	n := g.newNode(st.Diagram, KindBorder)
	n.Border = kind
	n.Side = side
	n.Owner = s
	st.Borders = append(st.Borders, n.ID)

	if side == Left {
		g.newTerminal(n, Input, st.Diagram, outer)
	}
	for i, d := range st.Diagrams {
		if i >= len(inner) || inner[i] == nil {
			continue
		}
		if side == Left {
			g.newTerminal(n, Output, d, inner[i])
		} else {
			g.newTerminal(n, Input, d, inner[i])
		}
	}
	if side == Right {
		g.newTerminal(n, Output, st.Diagram, outer)
	}
	return n.ID
}

// Connect wires output src to input dst. Both must lie on the same diagram
// and dst must be unwired. A reference input accepts an owned source of the
// referenced type (an auto-borrow).
func (g *Graph) Connect(src, dst TerminalID) error {
	s, t := g.terminals[src], g.terminals[dst]
	if s.Dir != Output || t.Dir != Input {
		return errors.InvalidInput(errors.PhaseGraph, "connect requires an output source and an input sink")
	}
	if s.Diagram != t.Diagram {
		return errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Node(int(t.Node)).
			Detail("terminals %d and %d are on different diagrams", src, dst).
			Build()
	}
	if t.Wire != 0 {
		return errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Node(int(t.Node)).
			Detail("input terminal %d is already wired", dst).
			Build()
	}
	if !assignable(s.Type, t.Type) {
		return errors.New(errors.PhaseGraph, errors.KindTypeMismatch).
			Node(int(t.Node)).
			Type(s.Type.String()).
			Detail("cannot wire to %s", t.Type).
			Build()
	}

	if s.Wire == 0 {
		w := &Wire{ID: WireID(len(g.wires)), Diagram: s.Diagram, Source: src}
		g.wires = append(g.wires, w)
		s.Wire = w.ID
	}
	w := g.wires[s.Wire]
	w.Sinks = append(w.Sinks, dst)
	t.Wire = w.ID
	return nil
}

func assignable(src, dst *types.Type) bool {
	if types.Equal(src, dst) {
		return true
	}
	if !dst.IsReference() {
		return false
	}
	if !src.IsReference() {
		return types.Equal(src, dst.Elem())
	}
	// &mut T coerces to &T
	return dst.Mutability() != types.Mutable && types.Equal(src.Elem(), dst.Elem())
}

// Disconnect removes terminal t from its wire. A wire left without sinks, or
// whose source is disconnected, is deleted.
func (g *Graph) Disconnect(t TerminalID) {
	term := g.terminals[t]
	if term.Wire == 0 {
		return
	}
	w := g.wires[term.Wire]
	term.Wire = 0
	if term.Dir == Output {
		for _, s := range w.Sinks {
			g.terminals[s].Wire = 0
		}
		g.wires[w.ID] = nil
		return
	}
	w.Sinks = slices.DeleteFunc(w.Sinks, func(s TerminalID) bool { return s == t })
	if len(w.Sinks) == 0 {
		g.terminals[w.Source].Wire = 0
		g.wires[w.ID] = nil
	}
}

// MoveSink rewires input old so that its source feeds input replacement
// instead.
func (g *Graph) MoveSink(old, replacement TerminalID) error {
	src := g.Source(old)
	if src == nil {
		return nil
	}
	g.Disconnect(old)
	return g.Connect(src.ID, replacement)
}

// MoveSources rewires every sink of output old to output replacement.
func (g *Graph) MoveSources(old, replacement TerminalID) error {
	sinks := g.Sinks(old)
	g.Disconnect(old)
	for _, s := range sinks {
		if err := g.Connect(replacement, s.ID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveNode detaches a node from its wires and its diagram. Its id stays
// reserved.
func (g *Graph) RemoveNode(id NodeID) {
	n := g.nodes[id]
	for _, t := range n.Inputs {
		g.Disconnect(t)
	}
	for _, t := range n.Outputs {
		g.Disconnect(t)
	}
	d := g.diagrams[n.Diagram]
	d.Nodes = slices.DeleteFunc(d.Nodes, func(x NodeID) bool { return x == id })
	n.Removed = true
}
