package registry

import (
	"slices"

	"github.com/wippyai/asyncgraph/graph"
)

// CallGraph maps each definition name to the targets it calls directly.
type CallGraph map[string][]string

// BuildCallGraph collects the call targets of every definition in p.
// Promise-creating nodes count as calls.
func BuildCallGraph(p *graph.Program) CallGraph {
	cg := make(CallGraph, len(p.Definitions))
	for _, g := range p.Definitions {
		cg[g.Name] = nil
		for _, n := range g.Nodes() {
			if n.Kind == graph.KindMethodCall || n.Kind == graph.KindCreateMethodCallPromise {
				cg[g.Name] = appendUnique(cg[g.Name], n.Target)
			}
		}
	}
	return cg
}

// TransitiveCallers finds all definitions that transitively call any of the
// targets. The targets themselves are included.
func (cg CallGraph) TransitiveCallers(targets map[string]bool) map[string]bool {
	result := make(map[string]bool, len(targets))
	for t := range targets {
		result[t] = true
	}

	changed := true
	for changed {
		changed = false
		for caller, callees := range cg {
			if result[caller] {
				continue
			}
			for _, callee := range callees {
				if result[callee] {
					result[caller] = true
					changed = true
					break
				}
			}
		}
	}
	return result
}

// TransitiveCallees finds all targets reachable from the sources, sources
// included.
func (cg CallGraph) TransitiveCallees(sources map[string]bool) map[string]bool {
	result := make(map[string]bool, len(sources))
	for s := range sources {
		result[s] = true
	}

	changed := true
	for changed {
		changed = false
		for caller := range result {
			for _, callee := range cg[caller] {
				if !result[callee] {
					result[callee] = true
					changed = true
				}
			}
		}
	}
	return result
}

func appendUnique(slice []string, val string) []string {
	if slices.Contains(slice, val) {
		return slice
	}
	return append(slice, val)
}
