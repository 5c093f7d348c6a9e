package runtime

import (
	"context"
	stderrors "errors"
	"slices"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/errors"
)

// Instance is one instantiation of a module. It is not safe for concurrent
// use.
type Instance struct {
	module   *Module
	mod      api.Module
	s        *session
	invoke   api.Function
	panicked api.MutableGlobal
}

// Close releases the instance and the files it opened.
func (i *Instance) Close(ctx context.Context) error {
	return stderrors.Join(i.s.close(), i.mod.Close(ctx))
}

// Run calls the definition entry with args and drives it to completion.
// Scalar inputs are passed by value; aggregate inputs are guest addresses.
func (i *Instance) Run(ctx context.Context, entry string, args ...uint64) (*Result, error) {
	info, ok := i.module.info.Definition(entry)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "definition", entry)
	}
	if len(args) != len(info.Inputs) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(entry).Detail("expected %d arguments, got %d", len(info.Inputs), len(args)).Build()
	}

	i.s.reset()
	ctx = withSession(ctx, i.s)
	var (
		res *Result
		err error
	)
	if info.Async {
		res, err = i.runAsync(ctx, info, args)
	} else {
		res, err = i.runSync(ctx, info, args)
	}
	if err != nil {
		return nil, err
	}

	res.Outputs = slices.Clone(i.s.outputs)
	res.FakeDrops = slices.Clone(i.s.fakeDrops)
	res.Tasks = i.s.tasks
	res.Allocations = i.s.heap.inUse()
	res.Inspects = i.inspects()
	Logger().Debug("run complete",
		zap.String("entry", entry),
		zap.Int("outputs", len(res.Outputs)),
		zap.Int("tasks", res.Tasks),
		zap.Bool("panicked", res.Panicked))
	return res, nil
}

func (i *Instance) guest() *guest {
	return &guest{mem: i.mod.Memory(), s: i.s}
}

func (i *Instance) runSync(ctx context.Context, info compiler.DefinitionInfo, args []uint64) (*Result, error) {
	fn := i.mod.ExportedFunction(info.Name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", info.Name)
	}
	g := i.guest()
	outs := make([]uint32, len(info.Outputs))
	params := slices.Clone(args)
	for k, t := range info.Outputs {
		outs[k] = g.alloc(t.Size(), t.Align())
		g.write(outs[k], make([]byte, t.Size()))
		params = append(params, uint64(outs[k]))
	}
	if g.err != nil {
		return nil, g.err
	}

	i.panicked.Set(0)
	if _, err := fn.Call(ctx, params...); err != nil {
		return nil, i.s.failure(err)
	}
	res := &Result{Panicked: i.panicked.Get() != 0}
	if !res.Panicked {
		for k, t := range info.Outputs {
			res.Returns = append(res.Returns, g.value(t, outs[k]))
		}
	}
	for _, p := range outs {
		g.free(p)
	}
	return res, g.err
}

func (i *Instance) runAsync(ctx context.Context, info compiler.DefinitionInfo, args []uint64) (*Result, error) {
	init := i.mod.ExportedFunction(compiler.InitExport(info.Name))
	entry := i.mod.ExportedGlobal(compiler.EntryExport(info.Name))
	if init == nil || entry == nil || i.invoke == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "async entry", info.Name)
	}
	ret, err := init.Call(ctx, args...)
	if err != nil {
		return nil, i.s.failure(err)
	}
	state := api.DecodeU32(ret[0])

	g := i.guest()
	rt := info.Result
	rp := g.alloc(rt.Size(), rt.Align())
	g.write(rp, make([]byte, rt.Size()))
	g.putU32(state+compiler.RecordResultPtrOffset, rp)
	g.putU32(state+compiler.RecordStatusOffset, compiler.StatusRunning)
	if g.err != nil {
		return nil, g.err
	}

	i.s.schedule(uint32(entry.Get()), state)
	if err := i.s.drain(ctx, i.invoke); err != nil {
		return nil, err
	}
	if g.u32(state+compiler.RecordStatusOffset) != compiler.StatusDone {
		return nil, errors.Stalled(info.Name)
	}

	res := &Result{Panicked: g.u32(state+compiler.RecordPanickedOffset) != 0}
	payload := rp
	if info.MayPanic {
		payload += rt.PayloadOffset()
		rt = rt.Elem()
	}
	if !res.Panicked {
		switch len(info.Outputs) {
		case 0:
		case 1:
			res.Returns = append(res.Returns, g.value(info.Outputs[0], payload))
		default:
			for k, t := range info.Outputs {
				res.Returns = append(res.Returns, g.value(t, payload+rt.FieldOffset(k)))
			}
		}
	}
	g.free(rp)
	return res, g.err
}

func (i *Instance) inspects() []Inspection {
	g := i.guest()
	slots := i.module.info.Inspects
	out := make([]Inspection, 0, len(slots))
	for _, slot := range slots {
		out = append(out, Inspection{
			Definition: slot.Definition,
			Node:       slot.Node,
			Export:     slot.Export,
			Value:      g.value(slot.Type, slot.Address),
		})
	}
	return out
}
