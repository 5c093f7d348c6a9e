// Package samples holds small built-in programs. The CLI lists, builds and
// runs them; the compiler and runtime tests execute them end to end.
package samples

import (
	"slices"

	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/primitive"
	"github.com/wippyai/asyncgraph/types"
)

// Sample is one built-in program.
type Sample struct {
	Name        string
	Description string
	// Entry is the definition to run. Empty for samples that only build,
	// such as those whose entry takes aggregate arguments.
	Entry string
	// Args are the entry's scalar arguments.
	Args []uint64
	// Files are created under the runtime file root before running.
	Files map[string]string

	build func() (*graph.Program, error)
}

// Program builds a fresh copy of the sample's program. Compilation
// rewrites graphs in place, so every build starts over.
func (s Sample) Program() (*graph.Program, error) {
	return s.build()
}

var all = []Sample{
	{Name: "constant", Entry: "constant", Description: "inspects a constant", build: single(constant)},
	{Name: "assign", Entry: "assign", Description: "assigns through a mutable reference, then inspects", build: single(assign)},
	{Name: "frameNone", Entry: "frameNone", Description: "conditional frame fed None skips its body", build: single(frame("frameNone", false))},
	{Name: "frameSome", Entry: "frameSome", Description: "conditional frame fed Some runs its body", build: single(frame("frameSome", true))},
	{Name: "rangeLoop", Entry: "rangeLoop", Description: "outputs every item of the range 0..10", build: single(rangeLoop)},
	{Name: "countdown", Entry: "countdown", Description: "loop stopped through its condition tunnel", build: single(countdown)},
	{Name: "optionPattern", Entry: "optionPattern", Description: "matches Some and None", build: single(optionPattern)},
	{Name: "variantPattern", Description: "matches the cases of a variant parameter", build: single(variantPattern)},
	{Name: "arithmetic", Entry: "arithmetic", Description: "adds its two parameters and compares the sum", Args: []uint64{40, 2}, build: single(arithmetic)},
	{Name: "yield", Entry: "yield", Description: "suspends once, then inspects the yielded value", build: single(yield)},
	{Name: "notifier", Entry: "notifier", Description: "awaits a value set through a notifier", build: single(notifier)},
	{Name: "asyncCall", Entry: "caller", Description: "awaits a suspending call with two outputs", build: asyncCall},
	{Name: "asyncPanic", Entry: "caller", Description: "a suspending callee panics", build: asyncPanic},
	{Name: "panic", Entry: "panic", Description: "unwraps None", build: single(panicking)},
	{Name: "parallelYields", Entry: "parallelYields", Description: "two independent yields, each outputting its value", build: single(parallelYields)},
	{Name: "parallelUnwraps", Entry: "parallelUnwraps", Description: "two independent unwraps of Some, each outputting its value", build: single(parallelUnwraps)},
	{Name: "strings", Entry: "strings", Description: "builds and outputs a string", build: single(strings)},
	{Name: "split", Entry: "split", Description: "iterates the words of a string", build: single(split)},
	{Name: "vector", Entry: "vector", Description: "appends, inserts, removes and indexes", build: single(vector)},
	{Name: "shared", Entry: "shared", Description: "reads a shared value", build: single(shared)},
	{Name: "fakeDrops", Entry: "fakeDrops", Description: "drops two fake drop values", build: single(fakeDrops)},
	{Name: "readFile", Entry: "readFile", Description: "outputs the first line of a file",
		Files: map[string]string{"input.txt": "first line\nsecond line\n"}, build: single(readFile)},
	{Name: "syncCall", Entry: "main", Description: "calls a definition that does not suspend", build: syncCall},
}

// All returns every sample, sorted by name.
func All() []Sample {
	out := slices.Clone(all)
	slices.SortFunc(out, func(a, b Sample) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

// Lookup returns the sample called name.
func Lookup(name string) (Sample, bool) {
	for _, s := range all {
		if s.Name == name {
			return s, true
		}
	}
	return Sample{}, false
}

func single(build func() (*graph.Graph, error)) func() (*graph.Program, error) {
	return func() (*graph.Program, error) {
		g, err := build()
		if err != nil {
			return nil, err
		}
		return &graph.Program{Definitions: []*graph.Graph{g}}, nil
	}
}

func program(defs ...func() (*graph.Graph, error)) (*graph.Program, error) {
	p := &graph.Program{}
	for _, build := range defs {
		g, err := build()
		if err != nil {
			return nil, err
		}
		p.Definitions = append(p.Definitions, g)
	}
	return p, nil
}

func constant() (*graph.Graph, error) {
	b := graph.NewBuilder("constant")
	root := b.Root()
	c := b.Constant(root, types.Int32, 5)
	inspect := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(c, b.In(inspect, 0))
	return b.Build()
}

func assign() (*graph.Graph, error) {
	b := graph.NewBuilder("assign")
	root := b.Root()
	v := b.Constant(root, types.Int32, 1)
	two := b.Constant(root, types.Int32, 2)
	set := b.Functional(root, primitive.Assign, types.Int32)
	b.Connect(v, b.In(set, 0))
	b.Connect(two, b.In(set, 1))
	inspect := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(b.Out(set, 0), b.In(inspect, 0))
	return b.Build()
}

// frame unwraps an option into a frame whose body increments the payload
// and passes it out through an output tunnel.
func frame(name string, some bool) func() (*graph.Graph, error) {
	return func() (*graph.Graph, error) {
		b := graph.NewBuilder(name)
		root := b.Root()
		var opt graph.TerminalID
		if some {
			s := b.Functional(root, primitive.Some, types.Int32)
			b.Connect(b.Constant(root, types.Int32, 4), b.In(s, 0))
			opt = b.Out(s, 0)
		} else {
			opt = b.Out(b.Functional(root, primitive.None, types.Int32), 0)
		}
		f := b.Frame(root)
		unwrap := b.UnwrapOptionTunnel(f, types.Int32)
		b.Connect(opt, b.Outer(unwrap))

		body := b.Body(f, 0)
		inc := b.Functional(body, primitive.Increment, types.Int32)
		b.Connect(b.Inner(unwrap, 0), b.In(inc, 0))
		out := b.Functional(body, primitive.Output, types.Int32)
		b.Connect(b.Out(inc, 1), b.In(out, 0))
		tunnel := b.OutputTunnel(f, types.Int32)
		b.Connect(b.Out(inc, 1), b.Inner(tunnel, 0))

		inspect := b.Functional(root, primitive.Inspect, types.Int32)
		b.Connect(b.Outer(tunnel), b.In(inspect, 0))
		return b.Build()
	}
}

func rangeLoop() (*graph.Graph, error) {
	b := graph.NewBuilder("rangeLoop")
	root := b.Root()
	r := b.Functional(root, primitive.Range, nil)
	b.Connect(b.Constant(root, types.Int32, 0), b.In(r, 0))
	b.Connect(b.Constant(root, types.Int32, 10), b.In(r, 1))
	loop := b.Loop(root)
	it := b.IterateTunnel(loop, types.RangeIterator)
	b.Connect(b.Out(r, 0), b.Outer(it))
	out := b.Functional(b.Body(loop, 0), primitive.Output, types.Int32)
	b.Connect(b.Inner(it, 0), b.In(out, 0))
	return b.Build()
}

// countdown decrements a counter each iteration and continues while it
// stays positive.
func countdown() (*graph.Graph, error) {
	b := graph.NewBuilder("countdown")
	root := b.Root()
	counter := b.Constant(root, types.Int32, 3)
	loop := b.Loop(root)
	cond := b.Selector(loop)
	tunnel := b.Tunnel(loop, types.MutableRef(types.Int32, ""))
	b.Connect(counter, b.Outer(tunnel))

	body := b.Body(loop, 0)
	dec := b.Functional(body, primitive.AccumulateSubtract, types.Int32)
	b.Connect(b.Inner(tunnel, 0), b.In(dec, 0))
	b.Connect(b.Constant(body, types.Int32, 1), b.In(dec, 1))
	out := b.Functional(body, primitive.Output, types.Int32)
	b.Connect(b.Out(dec, 0), b.In(out, 0))
	gt := b.Functional(body, primitive.GreaterThan, types.Int32)
	b.Connect(b.Out(out, 0), b.In(gt, 0))
	b.Connect(b.Constant(body, types.Int32, 0), b.In(gt, 1))
	set := b.Functional(body, primitive.Assign, types.Bool)
	b.Connect(b.Inner(cond, 0), b.In(set, 0))
	b.Connect(b.Out(gt, 2), b.In(set, 1))
	return b.Build()
}

// optionPattern matches Some(6) and None, outputting the payload for Some
// and 0 for None.
func optionPattern() (*graph.Graph, error) {
	b := graph.NewBuilder("optionPattern")
	root := b.Root()
	s := b.Functional(root, primitive.Some, types.Int32)
	b.Connect(b.Constant(root, types.Int32, 6), b.In(s, 0))
	none := b.Functional(root, primitive.None, types.Int32)
	for _, opt := range []graph.TerminalID{b.Out(s, 0), b.Out(none, 0)} {
		pattern := b.OptionPattern(root, types.Int32)
		sel := b.Selector(pattern)
		b.Connect(opt, b.Outer(sel))
		some := b.Functional(b.Body(pattern, 0), primitive.Output, types.Int32)
		b.Connect(b.Inner(sel, 0), b.In(some, 0))
		empty := b.Functional(b.Body(pattern, 1), primitive.Output, types.Int32)
		b.Connect(b.Constant(b.Body(pattern, 1), types.Int32, 0), b.In(empty, 0))
	}
	return b.Build()
}

// Shape is the variant matched by the variantPattern sample.
var Shape = types.Variant("Shape", types.Int32, types.Bool)

func variantPattern() (*graph.Graph, error) {
	b := graph.NewBuilder("variantPattern")
	root := b.Root()
	param := b.Parameter(primitive.In, Shape)
	pattern := b.VariantPattern(root, Shape)
	sel := b.Selector(pattern)
	b.Connect(param, b.Outer(sel))
	inspect := b.Functional(b.Body(pattern, 0), primitive.Inspect, types.Int32)
	b.Connect(b.Inner(sel, 0), b.In(inspect, 0))
	out := b.Functional(b.Body(pattern, 1), primitive.Output, types.Bool)
	b.Connect(b.Inner(sel, 1), b.In(out, 0))
	return b.Build()
}

func arithmetic() (*graph.Graph, error) {
	b := graph.NewBuilder("arithmetic")
	root := b.Root()
	x := b.Parameter(primitive.In, types.Int32)
	y := b.Parameter(primitive.In, types.Int32)
	add := b.Functional(root, primitive.Add, types.Int32)
	b.Connect(x, b.In(add, 0))
	b.Connect(y, b.In(add, 1))
	sum := b.Parameter(primitive.Out, types.Int32)
	cmp := b.Functional(root, primitive.Equal, types.Int32)
	b.Connect(b.Out(add, 2), b.In(cmp, 0))
	b.Connect(b.Constant(root, types.Int32, 42), b.In(cmp, 1))
	inspect := b.Functional(root, primitive.Inspect, types.Bool)
	b.Connect(b.Out(cmp, 2), b.In(inspect, 0))
	cp := b.Functional(root, primitive.CreateCopy, types.Int32)
	b.Connect(b.Out(cmp, 0), b.In(cp, 0))
	b.Connect(b.Out(cp, 1), sum)
	return b.Build()
}

func yield() (*graph.Graph, error) {
	b := graph.NewBuilder("yield")
	root := b.Root()
	y := b.Functional(root, primitive.Yield, types.Int32)
	b.Connect(b.Constant(root, types.Int32, 3), b.In(y, 0))
	inspect := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(b.Out(y, 0), b.In(inspect, 0))
	return b.Build()
}

func notifier() (*graph.Graph, error) {
	b := graph.NewBuilder("notifier")
	root := b.Root()
	pair := b.Functional(root, primitive.CreateNotifierPair, types.Int32)
	set := b.Functional(root, primitive.SetNotifierValue, types.Int32)
	b.Connect(b.Out(pair, 1), b.In(set, 0))
	b.Connect(b.Constant(root, types.Int32, 9), b.In(set, 1))

	get := b.Functional(root, primitive.GetNotifierValue, types.Int32)
	b.Connect(b.Out(pair, 0), b.In(get, 0))
	pattern := b.OptionPattern(root, types.Int32)
	sel := b.Selector(pattern)
	b.Connect(b.Out(get, 0), b.Outer(sel))
	inspect := b.Functional(b.Body(pattern, 0), primitive.Inspect, types.Int32)
	b.Connect(b.Inner(sel, 0), b.In(inspect, 0))
	return b.Build()
}

// callee yields, then returns 4 and true.
func callee() (*graph.Graph, error) {
	b := graph.NewBuilder("callee")
	root := b.Root()
	first := b.Parameter(primitive.Out, types.Int32)
	second := b.Parameter(primitive.Out, types.Bool)
	y := b.Functional(root, primitive.Yield, types.Int32)
	b.Connect(b.Constant(root, types.Int32, 4), b.In(y, 0))
	cp := b.Functional(root, primitive.CreateCopy, types.Int32)
	b.Connect(b.Out(y, 0), b.In(cp, 0))
	b.Connect(b.Out(cp, 1), first)
	b.Connect(b.Constant(root, types.Bool, true), second)
	return b.Build()
}

func caller(outputs ...*types.Type) func() (*graph.Graph, error) {
	return func() (*graph.Graph, error) {
		b := graph.NewBuilder("caller")
		root := b.Root()
		call := b.MethodCall(root, "callee", nil, outputs)
		for i, t := range outputs {
			inspect := b.Functional(root, primitive.Inspect, t)
			b.Connect(b.Out(call, i), b.In(inspect, 0))
		}
		return b.Build()
	}
}

func asyncCall() (*graph.Program, error) {
	return program(callee, caller(types.Int32, types.Bool))
}

func asyncPanic() (*graph.Program, error) {
	panickingCallee := func() (*graph.Graph, error) {
		b := graph.NewBuilder("callee")
		root := b.Root()
		result := b.Parameter(primitive.Out, types.Int32)
		y := b.Functional(root, primitive.Yield, types.Int32)
		b.Connect(b.Constant(root, types.Int32, 1), b.In(y, 0))
		none := b.Functional(root, primitive.None, types.Int32)
		unwrap := b.Functional(root, primitive.UnwrapOption, types.Int32)
		b.Connect(b.Out(none, 0), b.In(unwrap, 0))
		b.Connect(b.Out(unwrap, 0), result)
		return b.Build()
	}
	return program(panickingCallee, caller(types.Int32))
}

func panicking() (*graph.Graph, error) {
	b := graph.NewBuilder("panic")
	root := b.Root()
	out := b.Functional(root, primitive.Output, types.Int32)
	b.Connect(b.Constant(root, types.Int32, 1), b.In(out, 0))
	none := b.Functional(root, primitive.None, types.Int32)
	unwrap := b.Functional(root, primitive.UnwrapOption, types.Int32)
	b.Connect(b.Out(none, 0), b.In(unwrap, 0))
	after := b.Functional(root, primitive.Output, types.Int32)
	b.Connect(b.Out(unwrap, 0), b.In(after, 0))
	return b.Build()
}

// parallelYields ends in two groups of different functions; they meet in
// the synthesized exit.
func parallelYields() (*graph.Graph, error) {
	b := graph.NewBuilder("parallelYields")
	root := b.Root()
	for i := range 2 {
		y := b.Functional(root, primitive.Yield, types.Int32)
		b.Connect(b.Constant(root, types.Int32, i+1), b.In(y, 0))
		out := b.Functional(root, primitive.Output, types.Int32)
		b.Connect(b.Out(y, 0), b.In(out, 0))
	}
	return b.Build()
}

func parallelUnwraps() (*graph.Graph, error) {
	b := graph.NewBuilder("parallelUnwraps")
	root := b.Root()
	for i := range 2 {
		some := b.Functional(root, primitive.Some, types.Int32)
		b.Connect(b.Constant(root, types.Int32, 7+i), b.In(some, 0))
		unwrap := b.Functional(root, primitive.UnwrapOption, types.Int32)
		b.Connect(b.Out(some, 0), b.In(unwrap, 0))
		out := b.Functional(root, primitive.Output, types.Int32)
		b.Connect(b.Out(unwrap, 0), b.In(out, 0))
	}
	return b.Build()
}

var str = types.ImmutableRef(types.StringSlice, "")

func strings() (*graph.Graph, error) {
	b := graph.NewBuilder("strings")
	root := b.Root()
	from := b.Functional(root, primitive.StringFromSlice, nil)
	b.Connect(b.Constant(root, str, "hello"), b.In(from, 0))
	app := b.Functional(root, primitive.StringAppend, nil)
	b.Connect(b.Out(from, 1), b.In(app, 0))
	b.Connect(b.Constant(root, str, " world"), b.In(app, 1))
	out := b.Functional(root, primitive.Output, types.String)
	b.Connect(b.Out(app, 0), b.In(out, 0))

	concat := b.Functional(root, primitive.StringConcat, nil)
	b.Connect(b.Constant(root, str, "a"), b.In(concat, 0))
	b.Connect(b.Constant(root, str, "b"), b.In(concat, 1))
	joined := b.Functional(root, primitive.Output, types.String)
	b.Connect(b.Out(concat, 2), b.In(joined, 0))
	return b.Build()
}

func split() (*graph.Graph, error) {
	b := graph.NewBuilder("split")
	root := b.Root()
	it := b.Functional(root, primitive.StringSliceToStringSplitIterator, nil)
	b.Connect(b.Constant(root, str, "one two  three"), b.In(it, 0))
	loop := b.Loop(root)
	tunnel := b.IterateTunnel(loop, types.StringSplitIterator)
	b.Connect(b.Out(it, 0), b.Outer(tunnel))
	out := b.Functional(b.Body(loop, 0), primitive.Output, types.StringSlice)
	b.Connect(b.Inner(tunnel, 0), b.In(out, 0))
	return b.Build()
}

// vector builds [7, 1, 2], removes the last element and reads index 0.
func vector() (*graph.Graph, error) {
	b := graph.NewBuilder("vector")
	root := b.Root()
	v := b.Functional(root, primitive.VectorCreate, types.Int32)
	prev := b.Out(v, 0)
	for _, x := range []int{1, 2} {
		app := b.Functional(root, primitive.VectorAppend, types.Int32)
		b.Connect(prev, b.In(app, 0))
		b.Connect(b.Constant(root, types.Int32, x), b.In(app, 1))
		prev = b.Out(app, 0)
	}
	zero := b.Constant(root, types.Int32, 0)
	ins := b.Functional(root, primitive.VectorInsert, types.Int32)
	b.Connect(prev, b.In(ins, 0))
	b.Connect(zero, b.In(ins, 1))
	b.Connect(b.Constant(root, types.Int32, 7), b.In(ins, 2))

	rm := b.Functional(root, primitive.VectorRemoveLast, types.Int32)
	b.Connect(b.Out(ins, 0), b.In(rm, 0))
	last := b.OptionPattern(root, types.Int32)
	b.Connect(b.Out(rm, 1), b.Outer(b.Selector(last)))
	inspectLast := b.Functional(b.Body(last, 0), primitive.Inspect, types.Int32)
	b.Connect(b.Inner(b.Selector(last), 0), b.In(inspectLast, 0))

	slice := b.Functional(root, primitive.VectorToSlice, types.Int32)
	b.Connect(b.Out(rm, 0), b.In(slice, 0))
	idx := b.Functional(root, primitive.SliceIndex, types.Int32)
	b.Connect(b.Out(ins, 1), b.In(idx, 0))
	b.Connect(b.Out(slice, 0), b.In(idx, 1))
	first := b.OptionPattern(root, types.ImmutableRef(types.Int32, ""))
	b.Connect(b.Out(idx, 1), b.Outer(b.Selector(first)))
	inspectFirst := b.Functional(b.Body(first, 0), primitive.Inspect, types.Int32)
	b.Connect(b.Inner(b.Selector(first), 0), b.In(inspectFirst, 0))
	return b.Build()
}

func shared() (*graph.Graph, error) {
	b := graph.NewBuilder("shared")
	root := b.Root()
	s := b.Functional(root, primitive.SharedCreate, types.Int32)
	b.Connect(b.Constant(root, types.Int32, 5), b.In(s, 0))
	get := b.Functional(root, primitive.SharedGetValue, types.Int32)
	b.Connect(b.Out(s, 0), b.In(get, 0))
	inspect := b.Functional(root, primitive.Inspect, types.Int32)
	b.Connect(b.Out(get, 0), b.In(inspect, 0))
	return b.Build()
}

func fakeDrops() (*graph.Graph, error) {
	b := graph.NewBuilder("fakeDrops")
	root := b.Root()
	for _, id := range []int{1, 2} {
		fd := b.Functional(root, primitive.FakeDropCreate, nil)
		b.Connect(b.Constant(root, types.Int32, id), b.In(fd, 0))
		drop := b.Functional(root, primitive.Drop, types.FakeDrop)
		b.Connect(b.Out(fd, 0), b.In(drop, 0))
	}
	return b.Build()
}

func readFile() (*graph.Graph, error) {
	b := graph.NewBuilder("readFile")
	root := b.Root()
	open := b.Functional(root, primitive.OpenFileHandle, nil)
	b.Connect(b.Constant(root, str, "input.txt"), b.In(open, 0))
	file := b.OptionPattern(root, types.FileHandle)
	b.Connect(b.Out(open, 1), b.Outer(b.Selector(file)))

	body := b.Body(file, 0)
	read := b.Functional(body, primitive.ReadLineFromFileHandle, nil)
	b.Connect(b.Inner(b.Selector(file), 0), b.In(read, 0))
	line := b.OptionPattern(body, types.String)
	b.Connect(b.Out(read, 1), b.Outer(b.Selector(line)))
	out := b.Functional(b.Body(line, 0), primitive.Output, types.String)
	b.Connect(b.Inner(b.Selector(line), 0), b.In(out, 0))
	return b.Build()
}

// syncCall calls double, a definition that never suspends, through the
// ordinary calling convention.
func syncCall() (*graph.Program, error) {
	double := func() (*graph.Graph, error) {
		b := graph.NewBuilder("double")
		root := b.Root()
		x := b.Parameter(primitive.In, types.Int32)
		result := b.Parameter(primitive.Out, types.Int32)
		add := b.Functional(root, primitive.Add, types.Int32)
		b.Connect(x, b.In(add, 0))
		b.Connect(x, b.In(add, 1))
		b.Connect(b.Out(add, 2), result)
		return b.Build()
	}
	main := func() (*graph.Graph, error) {
		b := graph.NewBuilder("main")
		root := b.Root()
		call := b.MethodCall(root, "double", []*types.Type{types.Int32}, []*types.Type{types.Int32})
		b.Connect(b.Constant(root, types.Int32, 21), b.In(call, 0))
		inspect := b.Functional(root, primitive.Inspect, types.Int32)
		b.Connect(b.Out(call, 0), b.In(inspect, 0))
		return b.Build()
	}
	return program(double, main)
}
