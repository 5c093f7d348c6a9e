package runtime

import (
	"context"
	"io"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/types"
)

// Config tunes the runtime.
type Config struct {
	// FileRoot is the directory file handles are opened in. Empty disables
	// file access; opening then yields None.
	FileRoot string
	// MemoryLimitPages caps the memory of every instance in 64KiB pages.
	// 0 means the wazero default.
	MemoryLimitPages uint32
	// MaxTasks bounds the scheduler tasks of a single run. 0 means no
	// limit.
	MaxTasks int
	// Stdout, when set, receives every output line as it is produced.
	Stdout io.Writer
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{MaxTasks: 1 << 20}
}

// ExternalFunc implements a non-yielding external call target. stack holds
// the call's arguments: inputs, then one out pointer per output.
type ExternalFunc func(ctx context.Context, mem api.Memory, stack []uint64)

type external struct {
	decl graph.External
	fn   ExternalFunc
}

// Runtime owns the wazero runtime and its host modules.
type Runtime struct {
	wz  wazero.Runtime
	cfg Config

	mu        sync.Mutex
	externals []external
	extBound  bool
}

// New creates a runtime and instantiates the "rt" host module.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	wz := wazero.NewRuntimeWithConfig(ctx, rc)
	if err := instantiateHost(ctx, wz); err != nil {
		_ = wz.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate runtime surface")
	}
	return &Runtime{wz: wz, cfg: cfg}, nil
}

// Close releases the runtime and every module loaded into it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.wz.Close(ctx)
}

// RegisterExternal provides the implementation of a non-yielding external.
// Externals must be registered before the first Load.
func (r *Runtime) RegisterExternal(decl graph.External, fn ExternalFunc) error {
	if decl.Yields {
		return errors.Unsupported(errors.PhaseHost, "yielding external "+decl.Name)
	}
	if decl.Name == "" {
		return errors.InvalidInput(errors.PhaseHost, "external name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extBound {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Path(decl.Name).Detail("externals are fixed once a module is loaded").Build()
	}
	for _, e := range r.externals {
		if e.decl.Name == decl.Name {
			return errors.New(errors.PhaseHost, errors.KindInvalidInput).
				Path(decl.Name).Detail("external registered twice").Build()
		}
	}
	r.externals = append(r.externals, external{decl: decl, fn: fn})
	return nil
}

// bindExternals instantiates the "ext" host module once.
func (r *Runtime) bindExternals(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extBound {
		return nil
	}
	r.extBound = true
	if len(r.externals) == 0 {
		return nil
	}
	b := r.wz.NewHostModuleBuilder(compiler.ExternalModule)
	for _, e := range r.externals {
		fn := e.fn
		b = b.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				fn(ctx, mod.Memory(), stack)
			}), externalParams(e.decl), nil).
			Export(e.decl.Name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate externals")
	}
	return nil
}

func externalParams(decl graph.External) []api.ValueType {
	var out []api.ValueType
	for _, t := range decl.Inputs {
		if t.Scalar() == types.ScalarI64 {
			out = append(out, api.ValueTypeI64)
		} else {
			out = append(out, api.ValueTypeI32)
		}
	}
	for range decl.Outputs {
		out = append(out, api.ValueTypeI32)
	}
	return out
}

// Load validates and compiles a built module.
func (r *Runtime) Load(ctx context.Context, m *compiler.Module) (*Module, error) {
	if m == nil || m.Wasm == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "nil module")
	}
	if err := r.bindExternals(ctx); err != nil {
		return nil, err
	}
	bin := m.Wasm.Encode()
	compiled, err := r.wz.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInstantiation, err, "compile module")
	}
	Logger().Debug("loaded module",
		zap.Int("bytes", len(bin)),
		zap.Int("definitions", len(m.Definitions)))
	return &Module{runtime: r, compiled: compiled, info: m}, nil
}

// Run loads m, runs entry once on a fresh instance and releases both.
func (r *Runtime) Run(ctx context.Context, m *compiler.Module, entry string, args ...uint64) (*Result, error) {
	mod, err := r.Load(ctx, m)
	if err != nil {
		return nil, err
	}
	defer mod.Close(ctx)
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	defer inst.Close(ctx)
	return inst.Run(ctx, entry, args...)
}
