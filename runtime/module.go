package runtime

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/errors"
)

// Module is a compiled module ready for instantiation.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	info     *compiler.Module
}

// Info returns the compiler's description of the module.
func (m *Module) Info() *compiler.Module { return m.info }

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instantiate creates an instance with its own memory, heap and task queue.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := m.runtime.wz.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	heapBase := mod.ExportedGlobal(compiler.ExportHeapBase)
	panicked, ok := mod.ExportedGlobal(compiler.ExportPanicked).(api.MutableGlobal)
	if heapBase == nil || !ok || mod.Memory() == nil {
		_ = mod.Close(ctx)
		return nil, errors.New(errors.PhaseRuntime, errors.KindInstantiation).
			Detail("module lacks the runtime exports").Build()
	}
	return &Instance{
		module:   m,
		mod:      mod,
		s:        newSession(m.runtime.cfg, uint32(heapBase.Get())),
		invoke:   mod.ExportedFunction(compiler.ExportInvoke),
		panicked: panicked,
	}, nil
}
