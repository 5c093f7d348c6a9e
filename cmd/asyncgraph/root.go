package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/asyncgraph/asyncgroup"
	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/config"
	"github.com/wippyai/asyncgraph/runtime"
)

// cli is the state shared by all commands.
type cli struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	debug      bool

	cfg *config.Config
	log *zap.Logger
}

func newCLI(out, errOut io.Writer) *cli {
	return &cli{out: out, errOut: errOut, cfg: config.Default(), log: zap.NewNop()}
}

func newRootCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asyncgraph",
		Short: "Compile typed dataflow graphs into suspendable WebAssembly",
		Long: "asyncgraph compiles the built-in sample graphs into WebAssembly modules\n" +
			"whose definitions suspend and resume, and runs them on wazero.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = c.log.Sync()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetOut(c.out)
	cmd.SetErr(c.errOut)
	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "HCL configuration file")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "Log pipeline and scheduler events")

	cmd.AddCommand(
		newSamplesCommand(c),
		newGroupsCommand(c),
		newBuildCommand(c),
		newRunCommand(c),
		newInspectCommand(c),
	)
	return cmd
}

// setup loads the configuration and installs the loggers.
func (c *cli) setup() error {
	if c.configPath != "" {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		c.cfg = cfg
	}

	var zc zap.Config
	if c.debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		zc.Encoding = "console"
	}
	zc.OutputPaths = []string{"stderr"}
	log, err := zc.Build()
	if err != nil {
		return err
	}
	c.log = log
	asyncgroup.SetLogger(log)
	compiler.SetLogger(log)
	runtime.SetLogger(log)
	log.Debug("configuration", zap.Stringer("config", c.cfg))
	return nil
}

// interactive reports whether out is a terminal.
func (c *cli) interactive() bool {
	f, ok := c.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
