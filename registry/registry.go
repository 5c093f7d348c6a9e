// Package registry records which call targets suspend and which may panic.
//
// Facts come from two places: declared externals, and an analysis of the
// program's definitions. A definition yields if it contains a yielding
// operation or an await, or transitively calls a yielding target. It may
// panic if it contains a panicking operation, or transitively calls a target
// that may panic.
package registry

import (
	"maps"
	"slices"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/primitive"
)

// Info is what the registry knows about one target.
type Info struct {
	Yields   bool
	MayPanic bool
	External bool
}

// Registry answers yielding and may-panic queries by target name.
type Registry struct {
	info  map[string]Info
	calls CallGraph
}

// Analyze builds the registry for p.
func Analyze(p *graph.Program) (*Registry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		info:  make(map[string]Info, len(p.Definitions)+len(p.Externals)),
		calls: BuildCallGraph(p),
	}

	yields := make(map[string]bool)
	panics := make(map[string]bool)
	for _, e := range p.Externals {
		r.info[e.Name] = Info{Yields: e.Yields, MayPanic: e.MayPanic, External: true}
		yields[e.Name] = e.Yields
		panics[e.Name] = e.MayPanic
	}
	for _, g := range p.Definitions {
		y, pn := localFacts(g)
		yields[g.Name] = y
		panics[g.Name] = pn
	}

	yields = r.calls.TransitiveCallers(trueKeys(yields))
	panics = r.calls.TransitiveCallers(trueKeys(panics))
	for _, g := range p.Definitions {
		r.info[g.Name] = Info{Yields: yields[g.Name], MayPanic: panics[g.Name]}
	}
	return r, nil
}

func localFacts(g *graph.Graph) (yields, panics bool) {
	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.KindAwait:
			yields = true
		case graph.KindPanicOrContinue:
			panics = true
		case graph.KindFunctional:
			if _, ok := primitive.Yielding(n.Op); ok {
				yields = true
			}
			if _, ok := primitive.Panicking(n.Op); ok {
				panics = true
			}
		}
	}
	return yields, panics
}

func trueKeys(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		if v {
			out[k] = true
		}
	}
	return out
}

// Lookup returns the facts for target name.
func (r *Registry) Lookup(name string) (Info, bool) {
	info, ok := r.info[name]
	return info, ok
}

// Yields reports whether calling name must suspend.
func (r *Registry) Yields(name string) bool { return r.info[name].Yields }

// MayPanic reports whether calling name may panic.
func (r *Registry) MayPanic(name string) bool { return r.info[name].MayPanic }

// Reachable returns the definitions and externals reachable from roots, in
// sorted order.
func (r *Registry) Reachable(roots ...string) []string {
	start := make(map[string]bool, len(roots))
	for _, name := range roots {
		start[name] = true
	}
	return slices.Sorted(maps.Keys(r.calls.TransitiveCallees(start)))
}

// CheckCall rejects call shapes the compiler cannot lower.
func (r *Registry) CheckCall(caller, target string) error {
	info, ok := r.info[target]
	if !ok {
		return errors.NotFound(errors.PhaseDecompose, "call target", target)
	}
	if info.External && info.Yields {
		return errors.New(errors.PhaseDecompose, errors.KindUnsupported).
			Path(caller, target).
			Detail("yielding external targets cannot be awaited").
			Build()
	}
	if info.MayPanic && !info.Yields {
		return errors.New(errors.PhaseDecompose, errors.KindUnsupported).
			Path(caller, target).
			Detail("target may panic but does not yield").
			Build()
	}
	return nil
}
