package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
)

func definition(t *testing.T, name string, build func(b *graph.Builder)) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(name)
	build(b)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("build %s: %v", name, err)
	}
	return g
}

func call(target string) func(b *graph.Builder) {
	return func(b *graph.Builder) {
		b.MethodCall(b.Root(), target, nil, nil)
	}
}

func testProgram(t *testing.T) *graph.Program {
	leafYield := definition(t, "leafYield", func(b *graph.Builder) {
		c := b.Constant(b.Root(), types.Int32, 1)
		y := b.Functional(b.Root(), primitive.Yield, types.Int32)
		b.Connect(c, b.In(y, 0))
	})
	leafPanic := definition(t, "leafPanic", func(b *graph.Builder) {
		b.Functional(b.Root(), primitive.UnwrapOption, types.Int32)
	})
	plain := definition(t, "plain", func(b *graph.Builder) {
		b.Constant(b.Root(), types.Int32, 1)
	})
	return &graph.Program{
		Definitions: []*graph.Graph{
			leafYield,
			leafPanic,
			plain,
			definition(t, "mid", call("leafYield")),
			definition(t, "top", call("mid")),
			definition(t, "panicker", call("leafPanic")),
			definition(t, "usesExt", call("ext")),
		},
		Externals: []graph.External{{Name: "ext", MayPanic: true, Yields: true}},
	}
}

func TestAnalyze(t *testing.T) {
	r, err := Analyze(testProgram(t))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name     string
		yields   bool
		mayPanic bool
	}{
		{"leafYield", true, false},
		{"leafPanic", false, true},
		{"plain", false, false},
		{"mid", true, false},
		{"top", true, false},
		{"panicker", false, true},
		{"usesExt", true, true},
		{"ext", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Yields(tt.name); got != tt.yields {
				t.Errorf("Yields = %v, want %v", got, tt.yields)
			}
			if got := r.MayPanic(tt.name); got != tt.mayPanic {
				t.Errorf("MayPanic = %v, want %v", got, tt.mayPanic)
			}
		})
	}
}

func TestReachable(t *testing.T) {
	r, err := Analyze(testProgram(t))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"leafYield", "mid", "top"}
	if diff := cmp.Diff(want, r.Reachable("top")); diff != "" {
		t.Errorf("reachable mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckCall(t *testing.T) {
	r, err := Analyze(testProgram(t))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		target  string
		wantErr bool
	}{
		{"mid", false},
		{"plain", false},
		{"leafPanic", true},
		{"ext", true},
		{"missing", true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			err := r.CheckCall("caller", tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckCall(%s) err = %v, wantErr %v", tt.target, err, tt.wantErr)
			}
		})
	}
}

func TestTransitiveCallers(t *testing.T) {
	cg := CallGraph{
		"a": {"b"},
		"b": {"c"},
		"d": {"a"},
		"e": nil,
	}
	got := cg.TransitiveCallers(map[string]bool{"c": true})
	want := map[string]bool{"a": true, "b": true, "c": true, "d": true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("callers mismatch (-want +got):\n%s", diff)
	}
}
