package asyncgraph

import (
	"context"

	"github.com/wippyai/asyncgraph/asyncgroup"
	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/decompose"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/registry"
)

// Options tunes the whole pipeline.
type Options struct {
	Group   asyncgroup.Options
	Compile compiler.Options
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Group:   asyncgroup.DefaultOptions(),
		Compile: compiler.DefaultOptions(),
	}
}

// Plan is a program after decomposition and grouping, ready to compile.
type Plan struct {
	Program  *graph.Program
	Registry *registry.Registry
	Units    []compiler.Unit
}

// Prepare analyzes p, decomposes every definition and groups it. The
// definitions of p are rewritten in place.
func Prepare(ctx context.Context, p *graph.Program, opts Options) (*Plan, error) {
	if p == nil {
		return nil, errors.InvalidInput(errors.PhaseGraph, "nil program")
	}
	reg, err := registry.Analyze(p)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Program: p, Registry: reg}
	for _, g := range p.Definitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := decompose.Apply(g, reg); err != nil {
			return nil, err
		}
		groups, err := asyncgroup.Build(g, opts.Group)
		if err != nil {
			return nil, err
		}
		plan.Units = append(plan.Units, compiler.Unit{Graph: g, Groups: groups})
	}
	return plan, nil
}

// Unit returns the unit of the definition called name.
func (p *Plan) Unit(name string) (compiler.Unit, bool) {
	for _, u := range p.Units {
		if u.Graph.Name == name {
			return u, true
		}
	}
	return compiler.Unit{}, false
}

// Compile generates the module of a prepared program.
func (p *Plan) Compile(opts compiler.Options) (*compiler.Module, error) {
	return compiler.Compile(p.Units, p.Program.Externals, p.Registry, opts)
}

// Build runs the whole pipeline over p.
func Build(ctx context.Context, p *graph.Program, opts Options) (*compiler.Module, error) {
	plan, err := Prepare(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	return plan.Compile(opts.Compile)
}
