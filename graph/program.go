package graph

import (
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/types"
)

// External declares a call target implemented outside the program. Yielding
// externals are unsupported by the compiler; non-yielding ones are imported
// from the host.
type External struct {
	Name     string
	Inputs   []*types.Type
	Outputs  []*types.Type
	Yields   bool
	MayPanic bool
}

// Program is the set of definitions compiled together.
type Program struct {
	Definitions []*Graph
	Externals   []External
}

// Definition returns the definition with the given name.
func (p *Program) Definition(name string) (*Graph, bool) {
	for _, g := range p.Definitions {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// External returns the external with the given name.
func (p *Program) External(name string) (External, bool) {
	for _, e := range p.Externals {
		if e.Name == name {
			return e, true
		}
	}
	return External{}, false
}

// Validate checks that definition names are unique and every call target
// resolves with a matching arity.
func (p *Program) Validate() error {
	seen := make(map[string]bool, len(p.Definitions))
	for _, g := range p.Definitions {
		if seen[g.Name] {
			return errors.New(errors.PhaseGraph, errors.KindInvalidInput).
				Path(g.Name).Detail("duplicate definition").Build()
		}
		seen[g.Name] = true
	}
	for _, g := range p.Definitions {
		for _, n := range g.Nodes() {
			if n.Kind != KindMethodCall && n.Kind != KindCreateMethodCallPromise {
				continue
			}
			ins, ok := p.targetInputs(n.Target)
			if !ok {
				return errors.New(errors.PhaseGraph, errors.KindNotFound).
					Path(g.Name).Node(int(n.ID)).
					Detail("call target %q not found", n.Target).Build()
			}
			if ins != len(n.Inputs) {
				return errors.New(errors.PhaseGraph, errors.KindInvalidInput).
					Path(g.Name).Node(int(n.ID)).
					Detail("call to %q has %d inputs, target takes %d", n.Target, len(n.Inputs), ins).Build()
			}
		}
	}
	return nil
}

func (p *Program) targetInputs(name string) (int, bool) {
	if g, ok := p.Definition(name); ok {
		return len(g.InputParams()), true
	}
	if e, ok := p.External(name); ok {
		return len(e.Inputs), true
	}
	return 0, false
}
