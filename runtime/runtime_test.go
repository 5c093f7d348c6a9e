package runtime_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/asyncgraph"
	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/runtime"
	"github.com/wippyai/asyncgraph/samples"
	"github.com/wippyai/asyncgraph/types"
)

func buildSample(t *testing.T, name string) (samples.Sample, *compiler.Module) {
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
	return s, m
}

func newRuntime(t *testing.T, cfg runtime.Config) *runtime.Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func runSample(t *testing.T, name string) *runtime.Result {
	t.Helper()
	s, m := buildSample(t, name)
	cfg := runtime.DefaultConfig()
	if len(s.Files) > 0 {
		dir := t.TempDir()
		for file, content := range s.Files {
			if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o600); err != nil {
				t.Fatalf("write %s: %v", file, err)
			}
		}
		cfg.FileRoot = dir
	}
	res, err := newRuntime(t, cfg).Run(context.Background(), m, s.Entry, s.Args...)
	if err != nil {
		t.Fatalf("run %s: %v", name, err)
	}
	return res
}

func inspectTexts(res *runtime.Result) []string {
	out := make([]string, len(res.Inspects))
	for i, in := range res.Inspects {
		out[i] = in.Value.Text
	}
	slices.Sort(out)
	return out
}

func kindOf(err error) errors.Kind {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func TestRun_Samples(t *testing.T) {
	tests := []struct {
		sample   string
		outputs  []string
		inspects []string
		panicked bool
		// unordered compares outputs as a set; independent chains may run
		// in either order.
		unordered bool
	}{
		{sample: "constant", inspects: []string{"5"}},
		{sample: "assign", inspects: []string{"2"}},
		{sample: "frameNone", inspects: []string{"0"}},
		{sample: "frameSome", outputs: []string{"5"}, inspects: []string{"5"}},
		{sample: "rangeLoop", outputs: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}},
		{sample: "countdown", outputs: []string{"2", "1", "0"}},
		{sample: "optionPattern", outputs: []string{"0", "6"}, unordered: true},
		{sample: "arithmetic", inspects: []string{"true"}},
		{sample: "yield", inspects: []string{"3"}},
		{sample: "notifier", inspects: []string{"9"}},
		{sample: "asyncCall", inspects: []string{"4", "true"}},
		{sample: "asyncPanic", inspects: []string{"0"}, panicked: true},
		{sample: "panic", outputs: []string{"1"}, panicked: true},
		{sample: "parallelYields", outputs: []string{"1", "2"}, unordered: true},
		{sample: "parallelUnwraps", outputs: []string{"7", "8"}, unordered: true},
		{sample: "strings", outputs: []string{"ab", "hello world"}, unordered: true},
		{sample: "split", outputs: []string{"one", "two", "three"}},
		{sample: "vector", inspects: []string{"2", "7"}},
		{sample: "shared", inspects: []string{"5"}},
		{sample: "fakeDrops"},
		{sample: "readFile", outputs: []string{"first line"}},
		{sample: "syncCall", inspects: []string{"42"}},
	}

	for _, tt := range tests {
		t.Run(tt.sample, func(t *testing.T) {
			res := runSample(t, tt.sample)
			outputs := res.Outputs
			if tt.unordered {
				outputs = slices.Clone(outputs)
				slices.Sort(outputs)
			}
			if diff := cmp.Diff(tt.outputs, outputs, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("outputs mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.inspects, inspectTexts(res), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("inspects mismatch (-want +got):\n%s", diff)
			}
			if res.Panicked != tt.panicked {
				t.Errorf("panicked = %v, want %v", res.Panicked, tt.panicked)
			}
		})
	}
}

func TestRun_Returns(t *testing.T) {
	res := runSample(t, "arithmetic")
	if len(res.Returns) != 1 {
		t.Fatalf("returns = %d, want 1", len(res.Returns))
	}
	if got := res.Returns[0].Int(); got != 42 {
		t.Errorf("sum = %d, want 42", got)
	}
}

func TestRun_FakeDrops(t *testing.T) {
	res := runSample(t, "fakeDrops")
	got := slices.Clone(res.FakeDrops)
	slices.Sort(got)
	if diff := cmp.Diff([]int32{1, 2}, got); diff != "" {
		t.Errorf("fake drops mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_AsyncUsesScheduler(t *testing.T) {
	for _, name := range []string{"yield", "asyncCall", "notifier"} {
		t.Run(name, func(t *testing.T) {
			res := runSample(t, name)
			if res.Tasks < 1 {
				t.Errorf("tasks = %d, want at least 1", res.Tasks)
			}
		})
	}
}

func TestRun_SyncHasNoTasks(t *testing.T) {
	res := runSample(t, "constant")
	if res.Tasks != 0 {
		t.Errorf("tasks = %d, want 0", res.Tasks)
	}
}

func TestRun_Stdout(t *testing.T) {
	_, m := buildSample(t, "countdown")
	var buf bytes.Buffer
	cfg := runtime.DefaultConfig()
	cfg.Stdout = &buf
	if _, err := newRuntime(t, cfg).Run(context.Background(), m, "countdown"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := buf.String(); got != "2\n1\n0\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestRun_MissingFileYieldsNone(t *testing.T) {
	_, m := buildSample(t, "readFile")
	cfg := runtime.DefaultConfig()
	cfg.FileRoot = t.TempDir()
	res, err := newRuntime(t, cfg).Run(context.Background(), m, "readFile")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Outputs) != 0 {
		t.Errorf("outputs = %v, want none", res.Outputs)
	}
}

func TestInstance_Reuse(t *testing.T) {
	ctx := context.Background()
	_, m := buildSample(t, "yield")
	rt := newRuntime(t, runtime.DefaultConfig())
	mod, err := rt.Load(ctx, m)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer mod.Close(ctx)
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer inst.Close(ctx)

	for i := range 3 {
		res, err := inst.Run(ctx, "yield")
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if diff := cmp.Diff([]string{"3"}, inspectTexts(res)); diff != "" {
			t.Errorf("run %d inspects mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		sample string
		entry  string
		args   []uint64
		cfg    func(*runtime.Config)
		want   errors.Kind
	}{
		{name: "unknown entry", sample: "constant", entry: "missing", want: errors.KindNotFound},
		{name: "argument count", sample: "arithmetic", entry: "arithmetic", args: []uint64{1}, want: errors.KindInvalidInput},
		{
			name: "task limit", sample: "yield", entry: "yield",
			cfg:  func(c *runtime.Config) { c.MaxTasks = 1 },
			want: errors.KindLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, m := buildSample(t, tt.sample)
			cfg := runtime.DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			_, err := newRuntime(t, cfg).Run(ctx, m, tt.entry, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := kindOf(err); got != tt.want {
				t.Errorf("kind = %q, want %q (%v)", got, tt.want, err)
			}
		})
	}
}

func tripleProgram(t *testing.T) (*graph.Program, graph.External) {
	t.Helper()
	ext := graph.External{Name: "triple", Inputs: []*types.Type{types.Int32}, Outputs: []*types.Type{types.Int32}}
	b := graph.NewBuilder("main")
	root := b.Root()
	call := b.MethodCall(root, ext.Name, ext.Inputs, ext.Outputs)
	b.Connect(b.Constant(root, types.Int32, 14), b.In(call, 0))
	inspect := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(b.Out(call, 0), b.In(inspect, 0))
	g, err := b.Build()
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return &graph.Program{Definitions: []*graph.Graph{g}, Externals: []graph.External{ext}}, ext
}

func TestRun_External(t *testing.T) {
	ctx := context.Background()
	p, ext := tripleProgram(t)
	m, err := asyncgraph.Build(ctx, p, asyncgraph.DefaultOptions())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	rt := newRuntime(t, runtime.DefaultConfig())
	err = rt.RegisterExternal(ext, func(_ context.Context, mem api.Memory, stack []uint64) {
		x := api.DecodeI32(stack[0])
		mem.WriteUint32Le(api.DecodeU32(stack[1]), uint32(3*x))
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	res, err := rt.Run(ctx, m, "main")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{"42"}, inspectTexts(res)); diff != "" {
		t.Errorf("inspects mismatch (-want +got):\n%s", diff)
	}

	if err := rt.RegisterExternal(graph.External{Name: "late"}, nil); kindOf(err) != errors.KindInvalidInput {
		t.Errorf("register after load: got %v", err)
	}
}

func TestRegisterExternal_Rejects(t *testing.T) {
	rt := newRuntime(t, runtime.DefaultConfig())
	noop := func(context.Context, api.Memory, []uint64) {}

	if err := rt.RegisterExternal(graph.External{Name: "wait", Yields: true}, noop); kindOf(err) != errors.KindUnsupported {
		t.Errorf("yielding external: got %v", err)
	}
	if err := rt.RegisterExternal(graph.External{}, noop); kindOf(err) != errors.KindInvalidInput {
		t.Errorf("empty name: got %v", err)
	}
	if err := rt.RegisterExternal(graph.External{Name: "f"}, noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := rt.RegisterExternal(graph.External{Name: "f"}, noop); kindOf(err) != errors.KindInvalidInput {
		t.Errorf("duplicate: got %v", err)
	}
}

func TestResult_Inspect(t *testing.T) {
	res := runSample(t, "constant")
	if len(res.Inspects) != 1 {
		t.Fatalf("inspects = %d, want 1", len(res.Inspects))
	}
	in := res.Inspects[0]
	v, ok := res.Inspect(in.Node)
	if !ok || v.Int() != 5 {
		t.Errorf("Inspect(%d) = %v, %v", in.Node, v, ok)
	}
	if _, ok := res.InspectIn("constant", in.Node); !ok {
		t.Error("InspectIn did not find the slot")
	}
	if _, ok := res.InspectIn("other", in.Node); ok {
		t.Error("InspectIn matched another definition")
	}
}

func TestLoad_Nil(t *testing.T) {
	rt := newRuntime(t, runtime.DefaultConfig())
	if _, err := rt.Load(context.Background(), nil); kindOf(err) != errors.KindInvalidInput {
		t.Errorf("got %v", err)
	}
}
