// Package decompose rewrites suspending and panicking operations into
// promise creation, await and panic-or-continue nodes.
//
// A call to a yielding definition becomes
//
//	CreateMethodCallPromise -> Await [-> PanicOrContinue] [-> DecomposeTuple]
//
// with the call's outputs rewired from the last node. Yield and
// GetNotifierValue become a promise-creating primitive followed by an Await;
// UnwrapOption becomes OptionToPanicResult followed by PanicOrContinue.
package decompose

import (
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/registry"
	"github.com/wippyai/asyncgraph/types"
)

// Facts answers the yielding and may-panic questions for call targets.
// *registry.Registry implements it.
type Facts interface {
	Yields(name string) bool
	MayPanic(name string) bool
	CheckCall(caller, target string) error
}

var _ Facts = (*registry.Registry)(nil)

// Apply decomposes every eligible node of g in place and re-resolves its
// variables.
func Apply(g *graph.Graph, facts Facts) error {
	var todo []*graph.Node
	for _, n := range g.Nodes() {
		ok, err := eligible(g, n, facts)
		if err != nil {
			return err
		}
		if ok {
			todo = append(todo, n)
		}
	}

	for _, n := range todo {
		var err error
		if n.Kind == graph.KindMethodCall {
			err = decomposeMethodCall(g, n, facts)
		} else if _, panics := primitive.Panicking(n.Op); panics {
			err = decomposePanicking(g, n)
		} else {
			err = decomposeYielding(g, n)
		}
		if err != nil {
			return err
		}
	}
	return g.ResolveVariables()
}

func eligible(g *graph.Graph, n *graph.Node, facts Facts) (bool, error) {
	switch n.Kind {
	case graph.KindMethodCall:
		yields, panics := facts.Yields(n.Target), facts.MayPanic(n.Target)
		if panics && !yields {
			return false, errors.New(errors.PhaseDecompose, errors.KindNotImplemented).
				Path(g.Name, n.Target).
				Node(int(n.ID)).
				Detail("calling a non-yielding method that may panic").
				Build()
		}
		if !yields {
			return false, nil
		}
		return true, facts.CheckCall(g.Name, n.Target)

	case graph.KindFunctional:
		_, yields := primitive.Yielding(n.Op)
		_, panics := primitive.Panicking(n.Op)
		if yields && panics {
			return false, errors.New(errors.PhaseDecompose, errors.KindNotImplemented).
				Path(g.Name).
				Node(int(n.ID)).
				Detail("%s both yields and panics", n.Op).
				Build()
		}
		if (yields || panics) && len(n.Outputs) > 1 {
			return false, errors.New(errors.PhaseDecompose, errors.KindUnsupported).
				Path(g.Name).
				Node(int(n.ID)).
				Detail("decomposing %s with multiple outputs", n.Op).
				Build()
		}
		return yields || panics, nil
	}
	return false, nil
}

func decomposeMethodCall(g *graph.Graph, call *graph.Node, facts Facts) error {
	d := call.Diagram
	outputs := make([]*types.Type, len(call.Outputs))
	for i := range call.Outputs {
		outputs[i] = g.Output(call.ID, i).Type
	}

	var result *types.Type
	switch len(outputs) {
	case 0:
		result = types.Bool
	case 1:
		result = outputs[0]
	default:
		result = types.Cluster(outputs...)
	}

	mayPanic := facts.MayPanic(call.Target)
	awaited := result
	if mayPanic {
		awaited = types.PanicResult(result)
	}

	inputs := make([]*types.Type, len(call.Inputs))
	for i := range call.Inputs {
		inputs[i] = g.Input(call.ID, i).Type
	}
	create := g.AddCreateMethodCallPromise(d, call.Target, inputs, awaited)
	for i := range call.Inputs {
		if err := g.MoveSink(call.Inputs[i], g.Node(create).Inputs[i]); err != nil {
			return err
		}
	}

	last, err := chain(g, create, func() (graph.NodeID, error) {
		return g.AddAwait(d, g.Output(create, 0).Type)
	})
	if err != nil {
		return err
	}
	if mayPanic {
		if last, err = chain(g, last, func() (graph.NodeID, error) {
			return g.AddPanicOrContinue(d, result), nil
		}); err != nil {
			return err
		}
	}

	final := g.Output(last, 0).ID
	switch len(outputs) {
	case 0:
		err = dropOutput(g, final)
	case 1:
		err = moveOrDrop(g, call.Outputs[0], final)
	default:
		tuple, cerr := chain(g, last, func() (graph.NodeID, error) {
			return g.AddDecomposeTuple(d, result), nil
		})
		if cerr != nil {
			return cerr
		}
		for i, out := range call.Outputs {
			if err = moveOrDrop(g, out, g.Node(tuple).Outputs[i]); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}
	g.RemoveNode(call.ID)
	return nil
}

func decomposeYielding(g *graph.Graph, n *graph.Node) error {
	op, _ := primitive.Yielding(n.Op)
	create, err := replaceInputs(g, n, op)
	if err != nil {
		return err
	}
	await, err := chain(g, create, func() (graph.NodeID, error) {
		return g.AddAwait(n.Diagram, g.Output(create, 0).Type)
	})
	if err != nil {
		return err
	}
	if err := moveOrDrop(g, n.Outputs[0], g.Output(await, 0).ID); err != nil {
		return err
	}
	g.RemoveNode(n.ID)
	return nil
}

func decomposePanicking(g *graph.Graph, n *graph.Node) error {
	op, _ := primitive.Panicking(n.Op)
	create, err := replaceInputs(g, n, op)
	if err != nil {
		return err
	}
	orContinue, err := chain(g, create, func() (graph.NodeID, error) {
		return g.AddPanicOrContinue(n.Diagram, g.Output(create, 0).Type.Elem()), nil
	})
	if err != nil {
		return err
	}
	if err := moveOrDrop(g, n.Outputs[0], g.Output(orContinue, 0).ID); err != nil {
		return err
	}
	g.RemoveNode(n.ID)
	return nil
}

// replaceInputs adds a functional node for op with n's type argument and
// moves n's input wiring onto it.
func replaceInputs(g *graph.Graph, n *graph.Node, op primitive.Op) (graph.NodeID, error) {
	repl, err := g.AddFunctional(n.Diagram, op, n.TypeArg)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseDecompose, errors.KindUnsupported, err, "instantiate "+op.String())
	}
	for i, in := range n.Inputs {
		if err := g.MoveSink(in, g.Node(repl).Inputs[i]); err != nil {
			return 0, err
		}
	}
	return repl, nil
}

// chain adds a node with add and wires from's first output into its first
// input.
func chain(g *graph.Graph, from graph.NodeID, add func() (graph.NodeID, error)) (graph.NodeID, error) {
	next, err := add()
	if err != nil {
		return 0, err
	}
	if err := g.Connect(g.Node(from).Outputs[0], g.Node(next).Inputs[0]); err != nil {
		return 0, err
	}
	return next, nil
}

// moveOrDrop transfers the sinks of old to replacement, or drops
// replacement's value when old was unconnected.
func moveOrDrop(g *graph.Graph, old, replacement graph.TerminalID) error {
	if g.Terminal(old).Wire == 0 {
		return dropOutput(g, replacement)
	}
	return g.MoveSources(old, replacement)
}

func dropOutput(g *graph.Graph, out graph.TerminalID) error {
	t := g.Terminal(out)
	drop := g.AddDrop(t.Diagram, t.Type)
	return g.Connect(out, g.Node(drop).Inputs[0])
}
