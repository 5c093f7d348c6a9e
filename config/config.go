// Package config loads pipeline and runtime settings from HCL.
//
// A file holds at most one compile block, at most one runtime block, and any
// number of external declarations:
//
//	compile {
//	  coalesce_frames = true
//	  memory_pages    = 4
//	  stack_size      = 64 * kib
//	}
//
//	runtime {
//	  file_root          = env("DATA_DIR")
//	  memory_limit_pages = 256
//	  max_tasks          = 100000
//	}
//
//	external "triple" {
//	  inputs  = ["i32"]
//	  outputs = ["i32"]
//	}
//
// Attributes left out keep their defaults.
package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/wippyai/asyncgraph"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/runtime"
	"github.com/wippyai/asyncgraph/types"
)

// Config is a loaded configuration.
type Config struct {
	Pipeline  asyncgraph.Options
	Runtime   runtime.Config
	Externals []graph.External
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pipeline: asyncgraph.DefaultOptions(),
		Runtime:  runtime.DefaultConfig(),
	}
}

type fileRoot struct {
	Compile   *compileBlock    `hcl:"compile,block"`
	Runtime   *runtimeBlock    `hcl:"runtime,block"`
	Externals []*externalBlock `hcl:"external,block"`
}

type compileBlock struct {
	CoalesceFrames *bool   `hcl:"coalesce_frames,optional"`
	MemoryPages    *uint32 `hcl:"memory_pages,optional"`
	StackSize      *uint32 `hcl:"stack_size,optional"`
}

type runtimeBlock struct {
	FileRoot         *string `hcl:"file_root,optional"`
	MemoryLimitPages *uint32 `hcl:"memory_limit_pages,optional"`
	MaxTasks         *int    `hcl:"max_tasks,optional"`
}

type externalBlock struct {
	Name     string   `hcl:"name,label"`
	Inputs   []string `hcl:"inputs,optional"`
	Outputs  []string `hcl:"outputs,optional"`
	Yields   bool     `hcl:"yields,optional"`
	MayPanic bool     `hcl:"may_panic,optional"`
}

const maxPages = 65536

// Load reads the HCL file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. filename is used in diagnostics.
func Parse(src []byte, filename string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, diags, "parse "+filename)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &root); diags.HasErrors() {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, diags, "decode "+filename)
	}

	cfg := Default()
	if c := root.Compile; c != nil {
		if c.CoalesceFrames != nil {
			cfg.Pipeline.Group.CoalesceFrames = *c.CoalesceFrames
		}
		if c.MemoryPages != nil {
			cfg.Pipeline.Compile.MemoryPages = *c.MemoryPages
		}
		if c.StackSize != nil {
			cfg.Pipeline.Compile.StackSize = *c.StackSize
		}
	}
	if r := root.Runtime; r != nil {
		if r.FileRoot != nil {
			cfg.Runtime.FileRoot = *r.FileRoot
		}
		if r.MemoryLimitPages != nil {
			cfg.Runtime.MemoryLimitPages = *r.MemoryLimitPages
		}
		if r.MaxTasks != nil {
			cfg.Runtime.MaxTasks = *r.MaxTasks
		}
	}

	seen := make(map[string]bool)
	for _, b := range root.Externals {
		if seen[b.Name] {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(b.Name).Detail("external declared twice").Build()
		}
		seen[b.Name] = true
		ext, err := b.external()
		if err != nil {
			return nil, err
		}
		cfg.Externals = append(cfg.Externals, ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (b *externalBlock) external() (graph.External, error) {
	ext := graph.External{Name: b.Name, Yields: b.Yields, MayPanic: b.MayPanic}
	var err error
	if ext.Inputs, err = parseTypes(b.Name, b.Inputs); err != nil {
		return ext, err
	}
	if ext.Outputs, err = parseTypes(b.Name, b.Outputs); err != nil {
		return ext, err
	}
	return ext, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	invalid := func(path, format string, args ...any) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path).Detail(format, args...).Build()
	}
	comp := c.Pipeline.Compile
	switch {
	case comp.MemoryPages > maxPages:
		return invalid("compile.memory_pages", "%d exceeds %d pages", comp.MemoryPages, maxPages)
	case comp.StackSize == 0 || comp.StackSize%16 != 0:
		return invalid("compile.stack_size", "%d is not a positive multiple of 16", comp.StackSize)
	case c.Runtime.MemoryLimitPages > maxPages:
		return invalid("runtime.memory_limit_pages", "%d exceeds %d pages", c.Runtime.MemoryLimitPages, maxPages)
	case c.Runtime.MaxTasks < 0:
		return invalid("runtime.max_tasks", "%d is negative", c.Runtime.MaxTasks)
	}
	for _, ext := range c.Externals {
		if ext.Name == "" {
			return invalid("external", "name cannot be empty")
		}
	}
	return nil
}

var typeNames = map[string]*types.Type{
	"bool":   types.Bool,
	"i8":     types.Int8,
	"u8":     types.UInt8,
	"i16":    types.Int16,
	"u16":    types.UInt16,
	"i32":    types.Int32,
	"u32":    types.UInt32,
	"i64":    types.Int64,
	"u64":    types.UInt64,
	"string": types.String,
	"&str":   types.ImmutableRef(types.StringSlice, ""),
}

func parseTypes(external string, names []string) ([]*types.Type, error) {
	out := make([]*types.Type, len(names))
	for i, n := range names {
		t, ok := typeNames[n]
		if !ok {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(external).Type(n).Detail("unknown type %q", n).Build()
		}
		out[i] = t
	}
	return out, nil
}

// String renders the configuration for display.
func (c *Config) String() string {
	return fmt.Sprintf("coalesce_frames=%v memory_pages=%d stack_size=%d file_root=%q memory_limit_pages=%d max_tasks=%d externals=%d",
		c.Pipeline.Group.CoalesceFrames, c.Pipeline.Compile.MemoryPages, c.Pipeline.Compile.StackSize,
		c.Runtime.FileRoot, c.Runtime.MemoryLimitPages, c.Runtime.MaxTasks, len(c.Externals))
}

// Declare adds the configured externals to p. Externals p already declares
// are kept.
func (c *Config) Declare(p *graph.Program) {
	for _, ext := range c.Externals {
		if !slices.ContainsFunc(p.Externals, func(e graph.External) bool { return e.Name == ext.Name }) {
			p.Externals = append(p.Externals, ext)
		}
	}
}
