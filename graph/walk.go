package graph

import (
	"slices"

	"github.com/wippyai/asyncgraph/errors"
)

// TraversalPoint marks where in a structure's traversal a visit happens.
type TraversalPoint uint8

const (
	BeforeLeftBorderNodes TraversalPoint = iota
	AfterLeftBorderNodesAndBeforeDiagram
	AfterDiagram
	AfterAllDiagramsAndBeforeRightBorderNodes
	AfterRightBorderNodes
)

func (p TraversalPoint) String() string {
	switch p {
	case BeforeLeftBorderNodes:
		return "BeforeLeftBorderNodes"
	case AfterLeftBorderNodesAndBeforeDiagram:
		return "AfterLeftBorderNodesAndBeforeDiagram"
	case AfterDiagram:
		return "AfterDiagram"
	case AfterAllDiagramsAndBeforeRightBorderNodes:
		return "AfterAllDiagramsAndBeforeRightBorderNodes"
	case AfterRightBorderNodes:
		return "AfterRightBorderNodes"
	}
	return "TraversalPoint(?)"
}

// Visitor receives the canonical traversal of a graph.
//
// VisitStructure gets the nested diagram for AfterLeftBorderNodesAndBeforeDiagram
// and AfterDiagram, and nil for the other points.
type Visitor interface {
	VisitNode(n *Node) error
	VisitWire(w *Wire) error
	VisitBorderNode(n *Node) error
	VisitStructure(s *Node, d *Diagram, p TraversalPoint) error
}

// Walk traverses g: nodes of a diagram in topological order, each followed by
// the wires leaving it, and structures expanded in place at their traversal
// points.
func Walk(g *Graph, v Visitor) error {
	return g.walkDiagram(g.root, v)
}

func (g *Graph) walkDiagram(d DiagramID, v Visitor) error {
	order, err := g.TopoOrder(d)
	if err != nil {
		return err
	}
	for _, id := range order {
		n := g.nodes[id]
		if n.Kind == KindStructure {
			if err := g.walkStructure(n, v); err != nil {
				return err
			}
			continue
		}
		if err := v.VisitNode(n); err != nil {
			return err
		}
		if err := g.visitWires(n.Outputs, v); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) walkStructure(s *Node, v Visitor) error {
	if err := v.VisitStructure(s, nil, BeforeLeftBorderNodes); err != nil {
		return err
	}
	left, right := g.LeftBorders(s.ID), g.RightBorders(s.ID)
	for _, b := range left {
		if err := v.VisitBorderNode(b); err != nil {
			return err
		}
	}
	for _, d := range s.Diagrams {
		diagram := g.diagrams[d]
		if err := v.VisitStructure(s, diagram, AfterLeftBorderNodesAndBeforeDiagram); err != nil {
			return err
		}
		for _, b := range left {
			if t := g.InnerTerminal(b.ID, d); t != nil {
				if err := g.visitWires([]TerminalID{t.ID}, v); err != nil {
					return err
				}
			}
		}
		if err := g.walkDiagram(d, v); err != nil {
			return err
		}
		if err := v.VisitStructure(s, diagram, AfterDiagram); err != nil {
			return err
		}
	}
	if err := v.VisitStructure(s, nil, AfterAllDiagramsAndBeforeRightBorderNodes); err != nil {
		return err
	}
	for _, b := range right {
		if err := v.VisitBorderNode(b); err != nil {
			return err
		}
	}
	if err := v.VisitStructure(s, nil, AfterRightBorderNodes); err != nil {
		return err
	}
	for _, b := range right {
		if err := g.visitWires(b.Outputs, v); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) visitWires(outputs []TerminalID, v Visitor) error {
	for _, t := range outputs {
		if w := g.terminals[t].Wire; w != 0 {
			if err := v.VisitWire(g.wires[w]); err != nil {
				return err
			}
		}
	}
	return nil
}

// level maps terminal t to the node that represents it on t's diagram: the
// structure for outer terminals of border nodes, 0 for inner terminals.
func (g *Graph) level(t *Terminal) NodeID {
	n := g.nodes[t.Node]
	if n.Kind != KindBorder {
		return n.ID
	}
	if t.Diagram == n.Diagram {
		return n.Owner
	}
	return 0
}

// Upstream returns the distinct nodes on n's diagram that feed n, in id
// order. For a structure these are the sources of its left border nodes.
func (g *Graph) Upstream(n NodeID) []NodeID {
	var out []NodeID
	for _, t := range g.StructureInputs(n) {
		src := g.Source(t.ID)
		if src == nil {
			continue
		}
		if up := g.level(src); up != 0 && !slices.Contains(out, up) {
			out = append(out, up)
		}
	}
	slices.Sort(out)
	return out
}

// Downstream returns the distinct nodes on n's diagram fed by n, in id order.
func (g *Graph) Downstream(n NodeID) []NodeID {
	var out []NodeID
	for _, t := range g.StructureOutputs(n) {
		for _, sink := range g.Sinks(t.ID) {
			if down := g.level(sink); down != 0 && !slices.Contains(out, down) {
				out = append(out, down)
			}
		}
	}
	slices.Sort(out)
	return out
}

// TopoOrder returns the nodes of diagram d in dependency order, breaking ties
// by the smallest node id so the order is reproducible.
func (g *Graph) TopoOrder(d DiagramID) ([]NodeID, error) {
	nodes := g.diagrams[d].Nodes
	pending := make(map[NodeID]int, len(nodes))
	for _, id := range nodes {
		pending[id] = len(g.Upstream(id))
	}

	var ready []NodeID
	for _, id := range nodes {
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]NodeID, 0, len(nodes))
	for len(ready) > 0 {
		slices.Sort(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, down := range g.Downstream(id) {
			if _, ok := pending[down]; !ok {
				continue
			}
			pending[down]--
			if pending[down] == 0 {
				ready = append(ready, down)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Detail("diagram %d contains a cycle", d).
			Build()
	}
	return order, nil
}
