package graph

import (
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/types"
)

// ResolveVariables binds every terminal to a variable. It discards any
// previous binding, so it can run again after the graph is rewritten.
//
// Outputs define variables, except passthrough outputs and the inner outputs
// of plain input tunnels and loop condition tunnels, which alias the variable
// of the input they mirror. Wired inputs take their source's variable; an
// unwired input gets a fresh zero-initialized variable of the owned type.
func (g *Graph) ResolveVariables() error {
	g.vars = g.vars[:1]
	g.pollVars = make(map[NodeID]VariableID)
	for _, t := range g.terminals[1:] {
		t.Var = 0
	}

	for _, n := range g.nodes[1:] {
		if n.Removed {
			continue
		}
		for _, t := range n.Outputs {
			if _, err := g.resolve(t, 0); err != nil {
				return err
			}
		}
		for _, t := range n.Inputs {
			if _, err := g.resolve(t, 0); err != nil {
				return err
			}
		}
		if n.Kind == KindAwait {
			value := g.terminals[n.Outputs[0]].Type
			g.pollVars[n.ID] = g.newVariable(types.Option(value), 0)
		}
	}
	return nil
}

func (g *Graph) newVariable(t *types.Type, def TerminalID) VariableID {
	v := &Variable{ID: VariableID(len(g.vars)), Type: t, Def: def}
	g.vars = append(g.vars, v)
	return v.ID
}

func (g *Graph) bind(t *Terminal, v VariableID) VariableID {
	t.Var = v
	g.vars[v].Terminals = append(g.vars[v].Terminals, t.ID)
	return v
}

func (g *Graph) resolve(id TerminalID, depth int) (VariableID, error) {
	t := g.terminals[id]
	if t.Var != 0 {
		return t.Var, nil
	}
	if depth > len(g.terminals) {
		return 0, errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Node(int(t.Node)).Detail("variable aliasing cycle").Build()
	}
	n := g.nodes[t.Node]

	if t.Dir == Input {
		if src := g.Source(id); src != nil {
			v, err := g.resolve(src.ID, depth+1)
			if err != nil {
				return 0, err
			}
			return g.bind(t, v), nil
		}
		return g.bind(t, g.newVariable(t.Type.Deref(), id)), nil
	}

	var alias TerminalID
	switch {
	case t.Passthrough >= 0:
		alias = n.Inputs[t.Passthrough]
	case n.Kind == KindBorder && n.Side == Left && (n.Border == Tunnel || n.Border == LoopConditionTunnel):
		alias = n.Inputs[0]
	}
	if alias != 0 {
		v, err := g.resolve(alias, depth+1)
		if err != nil {
			return 0, err
		}
		return g.bind(t, v), nil
	}
	return g.bind(t, g.newVariable(t.Type, id)), nil
}
