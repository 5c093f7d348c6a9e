package compiler_test

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/asyncgraph"
	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/samples"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

func compileSample(t *testing.T, name string) *compiler.Module {
	t.Helper()
	s, ok := samples.Lookup(name)
	if !ok {
		t.Fatalf("unknown sample %q", name)
	}
	p, err := s.Program()
	if err != nil {
		t.Fatalf("build program: %v", err)
	}
	m, err := asyncgraph.Build(context.Background(), p, asyncgraph.DefaultOptions())
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return m
}

func exportNames(m *wasm.Module) []string {
	out := make([]string, len(m.Exports))
	for i, e := range m.Exports {
		out[i] = e.Name
	}
	return out
}

func TestCompile_AllSamplesValidate(t *testing.T) {
	ctx := context.Background()
	wz := wazero.NewRuntime(ctx)
	defer wz.Close(ctx)

	for _, s := range samples.All() {
		t.Run(s.Name, func(t *testing.T) {
			m := compileSample(t, s.Name)
			compiled, err := wz.CompileModule(ctx, m.Wasm.Encode())
			if err != nil {
				t.Fatalf("wazero rejected module: %v", err)
			}
			defer compiled.Close(ctx)

			imports := compiled.ImportedFunctions()
			for _, f := range imports {
				mod, name, _ := f.Import()
				if mod != compiler.RuntimeModule && mod != compiler.ExternalModule {
					t.Errorf("unexpected import module %s.%s", mod, name)
				}
			}
		})
	}
}

func TestCompile_Exports(t *testing.T) {
	tests := []struct {
		sample  string
		present []string
		absent  []string
	}{
		{
			sample:  "constant",
			present: []string{"constant", compiler.ExportMemory, compiler.ExportHeapBase, compiler.ExportPanicked},
			absent:  []string{compiler.ExportInvoke, compiler.InitExport("constant")},
		},
		{
			sample: "yield",
			present: []string{
				compiler.InitExport("yield"), compiler.EntryExport("yield"),
				compiler.ExportInvoke, compiler.ExportMemory,
			},
			absent: []string{"yield"},
		},
		{
			sample:  "asyncCall",
			present: []string{compiler.InitExport("caller"), compiler.InitExport("callee"), compiler.ExportInvoke},
		},
		{
			sample:  "syncCall",
			present: []string{"double", "main"},
			absent:  []string{compiler.ExportInvoke},
		},
	}

	for _, tt := range tests {
		t.Run(tt.sample, func(t *testing.T) {
			names := exportNames(compileSample(t, tt.sample).Wasm)
			for _, want := range tt.present {
				if !slices.Contains(names, want) {
					t.Errorf("missing export %q in %v", want, names)
				}
			}
			for _, unwanted := range tt.absent {
				if slices.Contains(names, unwanted) {
					t.Errorf("unexpected export %q", unwanted)
				}
			}
		})
	}
}

func TestCompile_DefinitionInfo(t *testing.T) {
	m := compileSample(t, "asyncCall")

	callee, ok := m.Definition("callee")
	if !ok {
		t.Fatal("callee not compiled")
	}
	if !callee.Async || callee.Functions < 2 {
		t.Errorf("callee async=%v functions=%d, want async with at least 2 functions", callee.Async, callee.Functions)
	}
	if callee.RecordSize < compiler.RecordHeaderSize {
		t.Errorf("record size %d smaller than header", callee.RecordSize)
	}
	want := types.Cluster(types.Int32, types.Bool)
	if !types.Equal(callee.Result, want) {
		t.Errorf("result = %v, want %v", callee.Result, want)
	}

	sync := compileSample(t, "syncCall")
	double, _ := sync.Definition("double")
	if double.Async || double.Functions != 0 {
		t.Errorf("double async=%v functions=%d", double.Async, double.Functions)
	}
	if !types.Equal(double.Result, types.Int32) {
		t.Errorf("double result = %v", double.Result)
	}
}

func TestCompile_MultipleEnds(t *testing.T) {
	yields, _ := compileSample(t, "parallelYields").Definition("parallelYields")
	// The initial function, one per resumed await and the shared exit.
	if !yields.Async || yields.Functions != 4 {
		t.Errorf("parallelYields async=%v functions=%d, want async with 4 functions", yields.Async, yields.Functions)
	}

	unwraps, _ := compileSample(t, "parallelUnwraps").Definition("parallelUnwraps")
	if unwraps.Async || !unwraps.MayPanic {
		t.Errorf("parallelUnwraps async=%v may-panic=%v, want sync and may-panic", unwraps.Async, unwraps.MayPanic)
	}
}

func TestCompile_PanicResult(t *testing.T) {
	m := compileSample(t, "asyncPanic")
	callee, _ := m.Definition("callee")
	if !callee.MayPanic {
		t.Fatal("callee should be marked may-panic")
	}
	if callee.Result.Kind() != types.KindPanicResult {
		t.Errorf("result kind = %v, want panic result", callee.Result.Kind())
	}
	caller, _ := m.Definition("caller")
	if !caller.MayPanic || !caller.Async {
		t.Errorf("caller may-panic=%v async=%v", caller.MayPanic, caller.Async)
	}
}

func TestCompile_SyncCallTarget(t *testing.T) {
	m := compileSample(t, "syncCall")
	base := m.Wasm.NumImportedFuncs()
	mainIdx := slices.Index(m.Helpers, "main")
	doubleIdx := slices.Index(m.Helpers, "double")
	if mainIdx < 0 || doubleIdx < 0 {
		t.Fatalf("helpers %v lack main or double", m.Helpers)
	}
	instrs, err := wasm.DecodeInstructions(m.Wasm.Code[mainIdx].Code)
	if err != nil {
		t.Fatalf("decode main: %v", err)
	}
	found := false
	for _, in := range instrs {
		if target, ok := in.CallTarget(); ok && int(target) == base+doubleIdx {
			found = true
		}
	}
	if !found {
		t.Error("main does not call double directly")
	}
}

func TestCompile_Helpers(t *testing.T) {
	tests := []struct {
		sample string
		prefix string
	}{
		{"yield", "poll_"},
		{"asyncCall", "poll_"},
		{"notifier", "poll_"},
		{"vector", "VectorAppend_"},
	}
	for _, tt := range tests {
		t.Run(tt.sample, func(t *testing.T) {
			m := compileSample(t, tt.sample)
			if !slices.ContainsFunc(m.Helpers, func(h string) bool { return strings.HasPrefix(h, tt.prefix) }) {
				t.Errorf("no helper with prefix %q in %v", tt.prefix, m.Helpers)
			}
			seen := make(map[string]bool)
			for _, h := range m.Helpers {
				if seen[h] {
					t.Errorf("helper %q emitted twice", h)
				}
				seen[h] = true
			}
		})
	}
}

func TestCompile_InspectSlots(t *testing.T) {
	m := compileSample(t, "vector")
	if len(m.Inspects) != 2 {
		t.Fatalf("inspects = %d, want 2", len(m.Inspects))
	}
	names := exportNames(m.Wasm)
	for _, slot := range m.Inspects {
		if slot.Export != compiler.InspectExport(int(slot.Node)) {
			t.Errorf("slot export %q for node %d", slot.Export, slot.Node)
		}
		if !slices.Contains(names, slot.Export) {
			t.Errorf("slot %q not exported", slot.Export)
		}
		if slot.Address%slot.Type.Align() != 0 {
			t.Errorf("slot %q misaligned at %#x", slot.Export, slot.Address)
		}
	}
}

func inspectConstant(name string) (*graph.Graph, error) {
	b := graph.NewBuilder(name)
	root := b.Root()
	c := b.Constant(root, types.Int32, 1)
	inspect := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(c, b.In(inspect, 0))
	return b.Build()
}

func TestCompile_QualifiedInspectExports(t *testing.T) {
	var p graph.Program
	for _, name := range []string{"a", "b"} {
		g, err := inspectConstant(name)
		if err != nil {
			t.Fatalf("build %s: %v", name, err)
		}
		p.Definitions = append(p.Definitions, g)
	}
	m, err := asyncgraph.Build(context.Background(), &p, asyncgraph.DefaultOptions())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var got []string
	for _, slot := range m.Inspects {
		got = append(got, slot.Export)
	}
	node := int(m.Inspects[0].Node)
	want := []string{compiler.QualifiedInspectExport("a", node), compiler.QualifiedInspectExport("b", node)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exports mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_DuplicateDefinition(t *testing.T) {
	g, err := inspectConstant("twice")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	plan, err := asyncgraph.Prepare(context.Background(), &graph.Program{Definitions: []*graph.Graph{g}}, asyncgraph.DefaultOptions())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	units := append(slices.Clone(plan.Units), plan.Units[0])
	_, err = compiler.Compile(units, nil, plan.Registry, compiler.DefaultOptions())
	if e, ok := err.(*errors.Error); !ok || e.Kind != errors.KindInvalidInput {
		t.Errorf("got %v, want invalid input", err)
	}
}

func TestCompile_MemoryLayout(t *testing.T) {
	opts := compiler.DefaultOptions()
	opts.StackSize = 1 << 20
	opts.MemoryPages = 1

	g, err := inspectConstant("layout")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m, err := asyncgraph.Build(context.Background(), &graph.Program{Definitions: []*graph.Graph{g}},
		asyncgraph.Options{Group: asyncgraph.DefaultOptions().Group, Compile: opts})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := m.Wasm.Memories[0].Limits.Min; got*0x10000 <= opts.StackSize {
		t.Errorf("memory of %d pages cannot hold a %d byte stack", got, opts.StackSize)
	}
}

func TestMissingStrategies(t *testing.T) {
	if missing := compiler.MissingStrategies(); len(missing) != 0 {
		t.Errorf("operations without a lowering strategy: %v", missing)
	}
}

func TestCallResultType(t *testing.T) {
	tests := []struct {
		name     string
		outputs  []*types.Type
		mayPanic bool
		want     *types.Type
	}{
		{"none", nil, false, types.Bool},
		{"one", []*types.Type{types.Int64}, false, types.Int64},
		{"many", []*types.Type{types.Int32, types.Bool}, false, types.Cluster(types.Int32, types.Bool)},
		{"panicking", []*types.Type{types.Int32}, true, types.PanicResult(types.Int32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compiler.CallResultType(tt.outputs, tt.mayPanic)
			if !types.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
