package graph

import (
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
)

// Ids are dense, start at 1 and are never reused within a Graph. The zero
// value of every id type means "none".
type (
	NodeID     int32
	TerminalID int32
	WireID     int32
	DiagramID  int32
	VariableID int32
)

// NodeKind identifies the variant of a Node.
type NodeKind uint8

const (
	KindInvalid NodeKind = iota
	KindConstant
	KindFunctional
	KindMethodCall
	KindCreateMethodCallPromise
	KindAwait
	KindPanicOrContinue
	KindDecomposeTuple
	KindDrop
	KindParameter
	KindBorder
	KindStructure
)

var nodeKindNames = [...]string{
	KindInvalid:                 "Invalid",
	KindConstant:                "Constant",
	KindFunctional:              "Functional",
	KindMethodCall:              "MethodCall",
	KindCreateMethodCallPromise: "CreateMethodCallPromise",
	KindAwait:                   "Await",
	KindPanicOrContinue:         "PanicOrContinue",
	KindDecomposeTuple:          "DecomposeTuple",
	KindDrop:                    "Drop",
	KindParameter:               "Parameter",
	KindBorder:                  "Border",
	KindStructure:               "Structure",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "NodeKind(?)"
}

// StructureKind identifies the variant of a structure node.
type StructureKind uint8

const (
	Frame StructureKind = iota + 1
	Loop
	OptionPattern
	VariantPattern
)

func (k StructureKind) String() string {
	switch k {
	case Frame:
		return "Frame"
	case Loop:
		return "Loop"
	case OptionPattern:
		return "OptionPatternStructure"
	case VariantPattern:
		return "VariantPatternStructure"
	}
	return "Structure"
}

// Label is the lower camel prefix used in group labels.
func (k StructureKind) Label() string {
	switch k {
	case Frame:
		return "frame"
	case Loop:
		return "loop"
	case OptionPattern:
		return "optionPatternStructure"
	case VariantPattern:
		return "variantPatternStructure"
	}
	return "structure"
}

// BorderKind identifies the variant of a border node.
type BorderKind uint8

const (
	Tunnel BorderKind = iota + 1
	UnwrapOptionTunnel
	LoopConditionTunnel
	IterateTunnel
	OptionPatternSelector
	VariantSelector
)

func (k BorderKind) String() string {
	switch k {
	case Tunnel:
		return "Tunnel"
	case UnwrapOptionTunnel:
		return "UnwrapOptionTunnel"
	case LoopConditionTunnel:
		return "LoopConditionTunnel"
	case IterateTunnel:
		return "IterateTunnel"
	case OptionPatternSelector:
		return "OptionPatternSelector"
	case VariantSelector:
		return "VariantSelector"
	}
	return "Border"
}

// Side tells whether a border node feeds a structure (Left) or drains it
// (Right).
type Side uint8

const (
	Left Side = iota
	Right
)

// TerminalDir is the direction of a terminal relative to its node.
type TerminalDir uint8

const (
	Input TerminalDir = iota
	Output
)

// Node is a vertex of a diagram. The fields that apply depend on Kind.
type Node struct {
	Value    any         // Constant: bool, int64 or string
	TypeArg  *types.Type // Functional
	Target   string      // MethodCall, CreateMethodCallPromise
	Inputs   []TerminalID
	Outputs  []TerminalID
	Diagrams []DiagramID // Structure
	Borders  []NodeID    // Structure, creation order

	ID      NodeID
	Diagram DiagramID
	// Owner is the structure a border node belongs to.
	Owner NodeID
	// Index is the position of a parameter in its definition's signature.
	Index   int
	Kind    NodeKind
	Op      primitive.Op
	Border  BorderKind
	Struct  StructureKind
	Side    Side
	Dir     primitive.Direction // Parameter: In or Out
	Removed bool
}

// Name is the display name used when printing groups.
func (n *Node) Name() string {
	switch n.Kind {
	case KindFunctional:
		return n.Op.String()
	case KindBorder:
		return n.Border.String()
	case KindStructure:
		return n.Struct.String()
	case KindMethodCall, KindCreateMethodCallPromise:
		return n.Kind.String() + "[" + n.Target + "]"
	}
	return n.Kind.String()
}

// Terminal is a typed port of a node.
type Terminal struct {
	Type *types.Type

	ID      TerminalID
	Node    NodeID
	Diagram DiagramID
	Var     VariableID
	Wire    WireID
	Index   int
	// Passthrough is the input index an output terminal aliases, or -1.
	Passthrough int
	Dir         TerminalDir
}

// Wire connects one source output terminal to any number of sink inputs.
type Wire struct {
	Sinks   []TerminalID
	ID      WireID
	Diagram DiagramID
	Source  TerminalID
}

// Diagram is a list of nodes. Nested diagrams belong to a structure.
type Diagram struct {
	Nodes  []NodeID
	ID     DiagramID
	Parent NodeID // owning structure, 0 for the root diagram
}

// Variable is the storage identity shared by every terminal bound to it.
type Variable struct {
	Type      *types.Type
	Terminals []TerminalID
	ID        VariableID
	// Def is the terminal that defines the variable.
	Def TerminalID
}

// Graph is an arena of nodes, terminals, wires, diagrams and variables for one
// compiled definition.
type Graph struct {
	Name string

	nodes     []*Node
	terminals []*Terminal
	wires     []*Wire
	diagrams  []*Diagram
	vars      []*Variable
	params    []NodeID
	pollVars  map[NodeID]VariableID
	root      DiagramID
}

// New returns an empty graph with a root diagram.
func New(name string) *Graph {
	g := &Graph{
		Name:      name,
		nodes:     []*Node{nil},
		terminals: []*Terminal{nil},
		wires:     []*Wire{nil},
		diagrams:  []*Diagram{nil},
		vars:      []*Variable{nil},
	}
	g.root = g.newDiagram(0)
	return g
}

// Root returns the top-level diagram.
func (g *Graph) Root() DiagramID { return g.root }

func (g *Graph) Node(id NodeID) *Node             { return g.nodes[id] }
func (g *Graph) Terminal(id TerminalID) *Terminal { return g.terminals[id] }
func (g *Graph) Wire(id WireID) *Wire             { return g.wires[id] }
func (g *Graph) Diagram(id DiagramID) *Diagram    { return g.diagrams[id] }
func (g *Graph) Variable(id VariableID) *Variable { return g.vars[id] }

// NumNodes returns one past the largest node id, for sizing id-indexed tables.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumVariables returns one past the largest variable id.
func (g *Graph) NumVariables() int { return len(g.vars) }

// NumDiagrams returns one past the largest diagram id.
func (g *Graph) NumDiagrams() int { return len(g.diagrams) }

// Nodes returns every live node in id order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes[1:] {
		if !n.Removed {
			out = append(out, n)
		}
	}
	return out
}

// Wires returns every live wire in id order.
func (g *Graph) Wires() []*Wire {
	out := make([]*Wire, 0, len(g.wires))
	for _, w := range g.wires[1:] {
		if w != nil {
			out = append(out, w)
		}
	}
	return out
}

// Variables returns every resolved variable in id order.
func (g *Graph) Variables() []*Variable { return g.vars[1:] }

// Params returns the parameter nodes ordered by signature position.
func (g *Graph) Params() []*Node {
	out := make([]*Node, 0, len(g.params))
	for _, id := range g.params {
		out = append(out, g.nodes[id])
	}
	return out
}

// InputParams returns the In parameters in signature order.
func (g *Graph) InputParams() []*Node { return g.paramsWithDir(primitive.In) }

// OutputParams returns the Out parameters in signature order.
func (g *Graph) OutputParams() []*Node { return g.paramsWithDir(primitive.Out) }

func (g *Graph) paramsWithDir(d primitive.Direction) []*Node {
	var out []*Node
	for _, n := range g.Params() {
		if n.Dir == d {
			out = append(out, n)
		}
	}
	return out
}

// PollVariable returns the variable holding an await node's poll result.
func (g *Graph) PollVariable(await NodeID) VariableID { return g.pollVars[await] }

// Input returns input terminal i of node n.
func (g *Graph) Input(n NodeID, i int) *Terminal { return g.terminals[g.nodes[n].Inputs[i]] }

// Output returns output terminal i of node n.
func (g *Graph) Output(n NodeID, i int) *Terminal { return g.terminals[g.nodes[n].Outputs[i]] }

// Source returns the terminal feeding input t, or nil when t is unwired.
func (g *Graph) Source(t TerminalID) *Terminal {
	term := g.terminals[t]
	if term.Wire == 0 {
		return nil
	}
	return g.terminals[g.wires[term.Wire].Source]
}

// Sinks returns the terminals fed by output t.
func (g *Graph) Sinks(t TerminalID) []*Terminal {
	term := g.terminals[t]
	if term.Wire == 0 {
		return nil
	}
	w := g.wires[term.Wire]
	out := make([]*Terminal, len(w.Sinks))
	for i, s := range w.Sinks {
		out[i] = g.terminals[s]
	}
	return out
}

// VarOf returns the variable bound to terminal t.
func (g *Graph) VarOf(t TerminalID) *Variable { return g.vars[g.terminals[t].Var] }

// IsAutoBorrow reports whether a reference-typed terminal is bound to an
// owned variable, so the variable's address is taken.
func (g *Graph) IsAutoBorrow(t TerminalID) bool {
	term := g.terminals[t]
	if !term.Type.IsReference() || term.Var == 0 {
		return false
	}
	return !g.vars[term.Var].Type.IsReference()
}

// LeftBorders returns a structure's input border nodes in creation order.
func (g *Graph) LeftBorders(s NodeID) []*Node { return g.borders(s, Left) }

// RightBorders returns a structure's output border nodes in creation order.
func (g *Graph) RightBorders(s NodeID) []*Node { return g.borders(s, Right) }

func (g *Graph) borders(s NodeID, side Side) []*Node {
	var out []*Node
	for _, b := range g.nodes[s].Borders {
		if n := g.nodes[b]; n.Side == side {
			out = append(out, n)
		}
	}
	return out
}

// InnerTerminal returns the terminal of border node b on nested diagram d,
// or nil when the border has none there.
func (g *Graph) InnerTerminal(b NodeID, d DiagramID) *Terminal {
	n := g.nodes[b]
	list := n.Outputs
	if n.Side == Right {
		list = n.Inputs
	}
	for _, id := range list {
		if t := g.terminals[id]; t.Diagram == d {
			return t
		}
	}
	return nil
}

// OuterTerminal returns the terminal of border node b on the structure's
// parent diagram.
func (g *Graph) OuterTerminal(b NodeID) *Terminal {
	n := g.nodes[b]
	if n.Side == Left {
		return g.terminals[n.Inputs[0]]
	}
	return g.terminals[n.Outputs[0]]
}

// DiagramIndex returns the position of nested diagram d in structure s.
func (g *Graph) DiagramIndex(s NodeID, d DiagramID) int {
	for i, id := range g.nodes[s].Diagrams {
		if id == d {
			return i
		}
	}
	return -1
}

// IsConditionalFrame reports whether a frame may skip its body, which is the
// case when any of its input tunnels unwraps an option.
func (g *Graph) IsConditionalFrame(s NodeID) bool {
	n := g.nodes[s]
	if n.Kind != KindStructure || n.Struct != Frame {
		return false
	}
	for _, b := range g.LeftBorders(s) {
		if b.Border == UnwrapOptionTunnel {
			return true
		}
	}
	return false
}

// StructureInputs returns the outer input terminals of a structure's left
// border nodes, or a node's own inputs otherwise.
func (g *Graph) StructureInputs(n NodeID) []*Terminal {
	node := g.nodes[n]
	if node.Kind != KindStructure {
		out := make([]*Terminal, len(node.Inputs))
		for i, t := range node.Inputs {
			out[i] = g.terminals[t]
		}
		return out
	}
	var out []*Terminal
	for _, b := range g.LeftBorders(n) {
		out = append(out, g.OuterTerminal(b.ID))
	}
	return out
}

// StructureOutputs is the output counterpart of StructureInputs.
func (g *Graph) StructureOutputs(n NodeID) []*Terminal {
	node := g.nodes[n]
	if node.Kind != KindStructure {
		out := make([]*Terminal, len(node.Outputs))
		for i, t := range node.Outputs {
			out[i] = g.terminals[t]
		}
		return out
	}
	var out []*Terminal
	for _, b := range g.RightBorders(n) {
		out = append(out, g.OuterTerminal(b.ID))
	}
	return out
}
