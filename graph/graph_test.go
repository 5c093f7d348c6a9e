package graph

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
)

type trace struct {
	g     *Graph
	steps []string
}

func (t *trace) VisitNode(n *Node) error {
	t.steps = append(t.steps, fmt.Sprintf("%s(%d)", n.Name(), n.ID))
	return nil
}

func (t *trace) VisitWire(w *Wire) error {
	t.steps = append(t.steps, fmt.Sprintf("Wire(%d)", w.ID))
	return nil
}

func (t *trace) VisitBorderNode(n *Node) error {
	t.steps = append(t.steps, fmt.Sprintf("%s(%d)", n.Name(), n.ID))
	return nil
}

func (t *trace) VisitStructure(s *Node, d *Diagram, p TraversalPoint) error {
	if d != nil {
		t.steps = append(t.steps, fmt.Sprintf("%s(%d) Diagram(%d) %s", s.Name(), s.ID, d.ID, p))
		return nil
	}
	t.steps = append(t.steps, fmt.Sprintf("%s(%d) %s", s.Name(), s.ID, p))
	return nil
}

func TestWalkOrder(t *testing.T) {
	b := NewBuilder("walk")
	root := b.Root()
	five := b.Constant(root, types.Int32, 5)
	inspect := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(five, b.In(inspect, 0))

	frame := b.Frame(root)
	tunnel := b.Tunnel(frame, types.Int32)
	b.Connect(five, b.Outer(tunnel))
	body := b.Body(frame, 0)
	pass := b.Functional(body, primitive.ImmutPass, types.Int32)
	b.Connect(b.Inner(tunnel, 0), b.In(pass, 0))

	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	tr := &trace{g: g}
	if err := Walk(g, tr); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"Constant(1)",
		"Wire(1)",
		"Inspect(2)",
		"Frame(3) BeforeLeftBorderNodes",
		"Tunnel(4)",
		"Frame(3) Diagram(2) AfterLeftBorderNodesAndBeforeDiagram",
		"Wire(2)",
		"ImmutPass(5)",
		"Frame(3) Diagram(2) AfterDiagram",
		"Frame(3) AfterAllDiagramsAndBeforeRightBorderNodes",
		"Frame(3) AfterRightBorderNodes",
	}
	if diff := cmp.Diff(want, tr.steps); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestTopoOrderFollowsWires(t *testing.T) {
	b := NewBuilder("topo")
	root := b.Root()
	add := b.Functional(root, primitive.Add, types.Int32)
	one := b.Constant(root, types.Int32, 1)
	two := b.Constant(root, types.Int32, 2)
	b.Connect(one, b.In(add, 0))
	b.Connect(two, b.In(add, 1))
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	order, err := g.TopoOrder(g.Root())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]NodeID{2, 3, 1}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestVariables(t *testing.T) {
	b := NewBuilder("vars")
	root := b.Root()
	c := b.Constant(root, types.Int32, 7)
	add := b.Functional(root, primitive.Add, types.Int32)
	b.Connect(c, b.In(add, 0))
	b.Connect(c, b.In(add, 1))
	inspect := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(b.Out(add, 2), b.In(inspect, 0))
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	constVar := g.Terminal(c).Var
	tests := []struct {
		name       string
		terminal   TerminalID
		wantVar    VariableID
		autoBorrow bool
	}{
		{"operand 1", g.Input(add, 0).ID, constVar, true},
		{"passthrough 1", g.Output(add, 0).ID, constVar, true},
		{"passthrough 2", g.Output(add, 1).ID, constVar, true},
		{"result", g.Output(add, 2).ID, g.Output(add, 2).Var, false},
		{"inspect input", g.Input(inspect, 0).ID, g.Output(add, 2).Var, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Terminal(tt.terminal).Var; got != tt.wantVar {
				t.Errorf("var = %d, want %d", got, tt.wantVar)
			}
			if got := g.IsAutoBorrow(tt.terminal); got != tt.autoBorrow {
				t.Errorf("auto-borrow = %v, want %v", got, tt.autoBorrow)
			}
		})
	}
	if g.Output(add, 2).Var == constVar {
		t.Error("result must define its own variable")
	}
}

func TestTunnelAliasesVariable(t *testing.T) {
	b := NewBuilder("tunnel")
	root := b.Root()
	c := b.Constant(root, types.Int32, 1)
	frame := b.Frame(root)
	tun := b.Tunnel(frame, types.Int32)
	b.Connect(c, b.Outer(tun))
	unwrap := b.UnwrapOptionTunnel(frame, types.Int32)
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if g.InnerTerminal(tun, g.Node(frame).Diagrams[0]).Var != g.Terminal(c).Var {
		t.Error("tunnel inner output must alias the outer variable")
	}
	inner := g.InnerTerminal(unwrap, g.Node(frame).Diagrams[0])
	if inner.Var == g.OuterTerminal(unwrap).Var {
		t.Error("unwrap tunnel must define the payload variable")
	}
	if !types.Equal(g.Variable(inner.Var).Type, types.Int32) {
		t.Errorf("payload type = %s", g.Variable(inner.Var).Type)
	}
	if !g.IsConditionalFrame(frame) {
		t.Error("frame with unwrap tunnel must be conditional")
	}
}

func TestLoopCondition(t *testing.T) {
	b := NewBuilder("loop")
	loop := b.Loop(b.Root())
	cond := b.Selector(loop)
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	n := g.Node(cond)
	if n.Border != LoopConditionTunnel {
		t.Fatalf("border 0 = %s", n.Border)
	}
	inner := g.InnerTerminal(cond, g.Node(loop).Diagrams[0])
	if !inner.Type.IsMutableReference() {
		t.Errorf("inner condition type = %s", inner.Type)
	}
	if inner.Var != g.OuterTerminal(cond).Var {
		t.Error("condition inner output must alias the condition variable")
	}
}

func TestOptionPatternSelector(t *testing.T) {
	b := NewBuilder("match")
	s := b.OptionPattern(b.Root(), types.Int32)
	sel := b.Selector(s)
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	some, none := g.Node(s).Diagrams[0], g.Node(s).Diagrams[1]
	if g.InnerTerminal(sel, some) == nil {
		t.Error("Some diagram must receive the payload")
	}
	if g.InnerTerminal(sel, none) != nil {
		t.Error("None diagram must not receive a payload")
	}
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{"type mismatch", func(b *Builder) {
			c := b.Constant(b.Root(), types.Bool, true)
			n := b.Functional(b.Root(), primitive.Inspect, types.Int32)
			b.Connect(c, b.In(n, 0))
		}},
		{"double wired", func(b *Builder) {
			c := b.Constant(b.Root(), types.Int32, 1)
			n := b.Functional(b.Root(), primitive.Inspect, types.Int32)
			b.Connect(c, b.In(n, 0))
			b.Connect(c, b.In(n, 0))
		}},
		{"across diagrams", func(b *Builder) {
			c := b.Constant(b.Root(), types.Int32, 1)
			f := b.Frame(b.Root())
			n := b.Functional(b.Body(f, 0), primitive.Inspect, types.Int32)
			b.Connect(c, b.In(n, 0))
		}},
		{"mutable from immutable", func(b *Builder) {
			c := b.Constant(b.Root(), types.ImmutableRef(types.Int32, ""), int64(1))
			n := b.Functional(b.Root(), primitive.MutPass, types.Int32)
			b.Connect(c, b.In(n, 0))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("bad")
			tt.build(b)
			if _, err := b.Build(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRemoveNodeAndRewire(t *testing.T) {
	b := NewBuilder("rewire")
	root := b.Root()
	c := b.Constant(root, types.Int32, 1)
	old := b.Functional(root, primitive.ImmutPass, types.Int32)
	b.Connect(c, b.In(old, 0))
	sink := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(b.Out(old, 0), b.In(sink, 0))
	g := b.Graph()

	repl, err := g.AddFunctional(root, primitive.ImmutPass, types.Int32)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.MoveSink(g.Input(old, 0).ID, g.Input(repl, 0).ID); err != nil {
		t.Fatal(err)
	}
	if err := g.MoveSources(g.Output(old, 0).ID, g.Output(repl, 0).ID); err != nil {
		t.Fatal(err)
	}
	g.RemoveNode(old)
	if err := g.ResolveVariables(); err != nil {
		t.Fatal(err)
	}

	if src := g.Source(g.Input(sink, 0).ID); src == nil || src.Node != repl {
		t.Fatalf("sink source = %v", src)
	}
	if got := g.Input(sink, 0).Var; got != g.Terminal(c).Var {
		t.Errorf("sink var = %d, want constant var %d", got, g.Terminal(c).Var)
	}
	for _, n := range g.Nodes() {
		if n.ID == old {
			t.Error("removed node still listed")
		}
	}
}

func TestProgramValidate(t *testing.T) {
	callee := NewBuilder("callee")
	callee.Parameter(primitive.In, types.Int32)
	calleeGraph, err := callee.Build()
	if err != nil {
		t.Fatal(err)
	}

	caller := NewBuilder("caller")
	caller.MethodCall(caller.Root(), "callee", []*types.Type{types.Int32}, nil)
	callerGraph, err := caller.Build()
	if err != nil {
		t.Fatal(err)
	}

	p := &Program{Definitions: []*Graph{calleeGraph, callerGraph}}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	missing := NewBuilder("missing")
	missing.MethodCall(missing.Root(), "nowhere", nil, nil)
	mg, _ := missing.Build()
	p.Definitions = append(p.Definitions, mg)
	if err := p.Validate(); err == nil {
		t.Error("expected unresolved target error")
	}
}
