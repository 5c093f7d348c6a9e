package decompose

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
)

type facts map[string][2]bool // name -> {yields, mayPanic}

func (f facts) Yields(name string) bool   { return f[name][0] }
func (f facts) MayPanic(name string) bool { return f[name][1] }
func (f facts) CheckCall(caller, target string) error {
	if _, ok := f[target]; !ok {
		return errors.NotFound(errors.PhaseDecompose, "call target", target)
	}
	return nil
}

func kinds(g *graph.Graph) []string {
	var out []string
	for _, n := range g.Nodes() {
		out = append(out, n.Name())
	}
	return out
}

// A call to a yielding target with two outputs becomes
// CreateMethodCallPromise -> Await -> DecomposeTuple with the outputs
// rewired in order.
func TestMethodCallTwoOutputs(t *testing.T) {
	b := graph.NewBuilder("caller")
	root := b.Root()
	call := b.MethodCall(root, "callee", nil, []*types.Type{types.Int32, types.Bool})
	first := b.Functional(root, primitive.Inspect, types.Int32)
	second := b.Functional(root, primitive.Inspect, types.Bool)
	b.Connect(b.Out(call, 0), b.In(first, 0))
	b.Connect(b.Out(call, 1), b.In(second, 0))
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	if err := Apply(g, facts{"callee": {true, false}}); err != nil {
		t.Fatal(err)
	}

	want := []string{"Inspect", "Inspect", "CreateMethodCallPromise[callee]", "Await", "DecomposeTuple"}
	if diff := cmp.Diff(want, kinds(g)); diff != "" {
		t.Fatalf("nodes mismatch (-want +got):\n%s", diff)
	}

	var create, await, tuple *graph.Node
	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.KindCreateMethodCallPromise:
			create = n
		case graph.KindAwait:
			await = n
		case graph.KindDecomposeTuple:
			tuple = n
		}
	}
	promise := g.Output(create.ID, 0).Type
	if got := promise.String(); got != "methodCallPromise[{i32,bool}]" {
		t.Errorf("promise type = %s", got)
	}
	if src := g.Source(g.Input(await.ID, 0).ID); src.Node != create.ID {
		t.Error("await must poll the created promise")
	}
	if src := g.Source(g.Input(tuple.ID, 0).ID); src.Node != await.ID {
		t.Error("tuple must decompose the await result")
	}
	for i, sink := range []graph.NodeID{first, second} {
		src := g.Source(g.Input(sink, 0).ID)
		if src == nil || src.Node != tuple.ID || src.Index != i {
			t.Errorf("output %d not rewired from tuple field %d", i, i)
		}
	}
	if g.PollVariable(await.ID) == 0 {
		t.Error("await must have a poll result variable")
	}
}

func TestMethodCallShapes(t *testing.T) {
	tests := []struct {
		name    string
		outputs []*types.Type
		panics  bool
		want    []string
	}{
		{
			name: "no outputs drops the result",
			want: []string{"CreateMethodCallPromise[callee]", "Await", "Drop"},
		},
		{
			name:    "single unconnected output is dropped",
			outputs: []*types.Type{types.Int32},
			want:    []string{"CreateMethodCallPromise[callee]", "Await", "Drop"},
		},
		{
			name:    "may panic adds panic or continue",
			outputs: []*types.Type{types.Int32},
			panics:  true,
			want:    []string{"CreateMethodCallPromise[callee]", "Await", "PanicOrContinue", "Drop"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := graph.NewBuilder("caller")
			b.MethodCall(b.Root(), "callee", nil, tt.outputs)
			g, err := b.Build()
			if err != nil {
				t.Fatal(err)
			}
			if err := Apply(g, facts{"callee": {true, tt.panics}}); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, kinds(g)); diff != "" {
				t.Errorf("nodes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPanicResultType(t *testing.T) {
	b := graph.NewBuilder("caller")
	b.MethodCall(b.Root(), "callee", nil, []*types.Type{types.Int32})
	g, _ := b.Build()
	if err := Apply(g, facts{"callee": {true, true}}); err != nil {
		t.Fatal(err)
	}
	for _, n := range g.Nodes() {
		if n.Kind == graph.KindAwait {
			if got := g.Output(n.ID, 0).Type.String(); got != "panicResult[i32]" {
				t.Errorf("await output = %s", got)
			}
		}
	}
}

func TestFunctionalNodes(t *testing.T) {
	tests := []struct {
		name string
		op   primitive.Op
		want []string
	}{
		{"yield", primitive.Yield, []string{"Constant", "Inspect", "CreateYieldPromise", "Await"}},
		{"unwrap", primitive.UnwrapOption, []string{"None", "Inspect", "OptionToPanicResult", "PanicOrContinue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := graph.NewBuilder("f")
			root := b.Root()
			var src graph.TerminalID
			if tt.op == primitive.UnwrapOption {
				none := b.Functional(root, primitive.None, types.Int32)
				src = b.Out(none, 0)
			} else {
				src = b.Constant(root, types.Int32, 3)
			}
			n := b.Functional(root, tt.op, types.Int32)
			b.Connect(src, b.In(n, 0))
			inspect := b.Functional(root, primitive.Inspect, types.Int32)
			b.Connect(b.Out(n, 0), b.In(inspect, 0))
			g, err := b.Build()
			if err != nil {
				t.Fatal(err)
			}
			if err := Apply(g, facts{}); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, kinds(g)); diff != "" {
				t.Errorf("nodes mismatch (-want +got):\n%s", diff)
			}
			if src := g.Source(g.Input(inspect, 0).ID); g.Node(src.Node).Kind == graph.KindFunctional {
				t.Error("inspect must be fed by the decomposed tail")
			}
		})
	}
}

func TestErrors(t *testing.T) {
	b := graph.NewBuilder("caller")
	b.MethodCall(b.Root(), "sync", nil, nil)
	g, _ := b.Build()
	err := Apply(g, facts{"sync": {false, true}})
	if !stderrors.Is(err, errors.New(errors.PhaseDecompose, errors.KindNotImplemented).Build()) {
		t.Errorf("err = %v", err)
	}
}
