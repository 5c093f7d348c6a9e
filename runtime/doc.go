// Package runtime executes compiled graph modules with wazero.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, compiled)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	res, err := inst.Run(ctx, "main")
//	fmt.Println(res.Outputs)
//
// # Runtime Surface
//
// Compiled modules import the fixed "rt" host module: memory management,
// task scheduling, output, strings, iterators and file handles. The
// runtime implements it in Go against the guest's exported memory.
//
// Allocation is tracked on the host side: a bump pointer above the
// module's __heap_base, with per-size free lists. Memory grows on demand.
//
// # Scheduling
//
// An asynchronous definition runs as group functions sharing one
// continuation record. The guest enqueues (table index, state) pairs with
// schedule; the runtime drains the queue in FIFO order, resuming each task
// through the exported __invoke trampoline. A run finishes when the entry
// record reports done. If the queue empties first the run has stalled.
//
// # Externals
//
// Non-yielding external call targets are imported from the "ext" module.
// Register their implementations with RegisterExternal before loading a
// module that needs them.
package runtime
