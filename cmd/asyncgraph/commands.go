package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/asyncgraph"
	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/runtime"
	"github.com/wippyai/asyncgraph/samples"
)

func lookupSample(name string) (samples.Sample, error) {
	s, ok := samples.Lookup(name)
	if !ok {
		return s, errors.NotFound(errors.PhaseConfig, "sample", name)
	}
	return s, nil
}

// prepare builds the sample's program with the configured externals and
// runs it up to grouping.
func (c *cli) prepare(ctx context.Context, s samples.Sample) (*asyncgraph.Plan, error) {
	p, err := s.Program()
	if err != nil {
		return nil, err
	}
	c.cfg.Declare(p)
	return asyncgraph.Prepare(ctx, p, c.cfg.Pipeline)
}

func (c *cli) build(ctx context.Context, s samples.Sample) (*compiler.Module, error) {
	plan, err := c.prepare(ctx, s)
	if err != nil {
		return nil, err
	}
	return plan.Compile(c.cfg.Pipeline.Compile)
}

func newSamplesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List the built-in samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.New().
				Border(lipgloss.HiddenBorder()).
				Headers("NAME", "ENTRY", "DESCRIPTION")
			for _, s := range samples.All() {
				entry := s.Entry
				if entry == "" {
					entry = "-"
				}
				t.Row(s.Name, entry, s.Description)
			}
			fmt.Fprintln(c.out, t.Render())
			return nil
		},
	}
}

func newGroupsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "groups <sample>",
		Short: "Print the async state groups of every definition of a sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := lookupSample(args[0])
			if err != nil {
				return err
			}
			plan, err := c.prepare(cmd.Context(), s)
			if err != nil {
				return err
			}
			c.printGroups(plan)
			return nil
		},
	}
}

func (c *cli) printGroups(plan *asyncgraph.Plan) {
	for i, u := range plan.Units {
		if i > 0 {
			fmt.Fprintln(c.out)
		}
		gs := u.Groups
		fmt.Fprintf(c.out, "Definition %s: %d groups, %d functions\n", u.Graph.Name, len(gs.List), gs.NumFunctions)
		for fid := range gs.NumFunctions {
			var labels []string
			for _, g := range gs.Function(fid) {
				labels = append(labels, g.Label)
			}
			fmt.Fprintf(c.out, "  function %d: %s\n", fid, strings.Join(labels, " "))
		}
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, gs.String())
	}
}

func newBuildCommand(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "build <sample>",
		Short: "Compile a sample to a WebAssembly module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := lookupSample(args[0])
			if err != nil {
				return err
			}
			m, err := c.build(cmd.Context(), s)
			if err != nil {
				return err
			}
			if output == "" {
				output = s.Name + ".wasm"
			}
			bin := m.Wasm.Encode()
			if err := os.WriteFile(output, bin, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "wrote %s (%d bytes, %d functions)\n", output, len(bin), len(m.Helpers))
			for _, d := range m.Definitions {
				kind := "sync"
				if d.Async {
					kind = fmt.Sprintf("async, %d functions, record %d bytes", d.Functions, d.RecordSize)
				}
				fmt.Fprintf(c.out, "  %s (%s)\n", d.Name, kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <sample>.wasm)")
	return cmd
}

func newRunCommand(c *cli) *cobra.Command {
	var args []string
	cmd := &cobra.Command{
		Use:   "run <sample>",
		Short: "Build a sample and run its entry definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			s, err := lookupSample(pos[0])
			if err != nil {
				return err
			}
			if s.Entry == "" {
				return errors.New(errors.PhaseRuntime, errors.KindUnsupported).
					Path(s.Name).Detail("sample has no runnable entry").Build()
			}
			values := s.Args
			if len(args) > 0 {
				if values, err = parseArgs(args); err != nil {
					return err
				}
			}
			res, err := c.run(cmd.Context(), s, values)
			if err != nil {
				return err
			}
			c.printResult(res)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&args, "arg", "a", nil, "Entry arguments, overriding the sample's")
	return cmd
}

func parseArgs(args []string) ([]uint64, error) {
	out := make([]uint64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "argument "+a)
		}
		out[i] = uint64(v)
	}
	return out, nil
}

func (c *cli) run(ctx context.Context, s samples.Sample, args []uint64) (*runtime.Result, error) {
	m, err := c.build(ctx, s)
	if err != nil {
		return nil, err
	}
	cfg := c.cfg.Runtime
	cfg.Stdout = c.out
	if cfg.FileRoot == "" && len(s.Files) > 0 {
		dir, err := os.MkdirTemp("", "asyncgraph-"+s.Name)
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		for name, content := range s.Files {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
				return nil, err
			}
		}
		cfg.FileRoot = dir
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer rt.Close(ctx)
	for _, ext := range c.cfg.Externals {
		if ext.Yields {
			continue
		}
		if err := rt.RegisterExternal(ext, unimplemented(ext.Name)); err != nil {
			return nil, err
		}
	}
	c.log.Debug("running sample", zap.String("sample", s.Name), zap.String("entry", s.Entry))
	return rt.Run(ctx, m, s.Entry, args...)
}

// unimplemented stands in for externals declared in the configuration. The
// CLI has no implementations; calling one stops the run.
func unimplemented(name string) runtime.ExternalFunc {
	return func(context.Context, api.Memory, []uint64) {
		panic(errors.NotImplemented(errors.PhaseHost, "external "+name))
	}
}

func (c *cli) printResult(res *runtime.Result) {
	for _, in := range res.Inspects {
		fmt.Fprintf(c.out, "inspect %s = %s\n", in.Export, in.Value)
	}
	for i, v := range res.Returns {
		fmt.Fprintf(c.out, "return %d = %s\n", i, v)
	}
	if len(res.FakeDrops) > 0 {
		fmt.Fprintf(c.out, "fake drops: %v\n", res.FakeDrops)
	}
	if res.Panicked {
		fmt.Fprintln(c.out, "panicked")
	}
	fmt.Fprintf(c.out, "tasks: %d\n", res.Tasks)
}
