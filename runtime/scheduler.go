package runtime

import (
	"context"
	"io"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/asyncgraph/errors"
)

// task resumes a group function, identified by its table index, on a
// continuation record.
type task struct {
	fn    uint32
	state uint32
}

// session is the host state of one instance. Host functions find it
// through the call context.
type session struct {
	cfg   Config
	heap  *allocator
	queue []task
	tasks int

	outputs   []string
	fakeDrops []int32
	files     *fileTable

	// fault is the first host-side failure of the current run.
	fault error
}

func newSession(cfg Config, heapBase uint32) *session {
	return &session{
		cfg:   cfg,
		heap:  newAllocator(heapBase),
		files: newFileTable(cfg.FileRoot),
	}
}

type sessionKey struct{}

func withSession(ctx context.Context, s *session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFrom(ctx context.Context) *session {
	if s, ok := ctx.Value(sessionKey{}).(*session); ok {
		return s
	}
	return nil
}

// reset clears the per-run state. Allocations and open files survive.
func (s *session) reset() {
	s.queue = s.queue[:0]
	s.tasks = 0
	s.outputs = nil
	s.fakeDrops = nil
	s.fault = nil
}

func (s *session) schedule(fn, state uint32) {
	s.queue = append(s.queue, task{fn: fn, state: state})
}

// drain resumes queued tasks in FIFO order until none are left.
func (s *session) drain(ctx context.Context, invoke api.Function) error {
	for len(s.queue) > 0 {
		if s.cfg.MaxTasks > 0 && s.tasks >= s.cfg.MaxTasks {
			return errors.Limit(errors.PhaseRuntime, "scheduler tasks", s.tasks+1, s.cfg.MaxTasks)
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.tasks++
		Logger().Debug("resume", zap.Uint32("fn", t.fn), zap.Uint32("state", t.state))
		if _, err := invoke.Call(ctx, uint64(t.fn), uint64(t.state)); err != nil {
			return s.failure(err)
		}
	}
	return nil
}

// failure prefers a recorded host fault over the error it caused.
func (s *session) failure(err error) error {
	if s.fault != nil {
		return s.fault
	}
	return errors.Wrap(errors.PhaseRuntime, errors.KindTrap, err, "guest trapped")
}

// abort records err and stops the guest.
func (s *session) abort(ctx context.Context, mod api.Module, err error) {
	if s.fault == nil {
		s.fault = err
	}
	_ = mod.CloseWithExitCode(ctx, 1)
}

func (s *session) output(line string) {
	s.outputs = append(s.outputs, line)
	if s.cfg.Stdout != nil {
		_, _ = io.WriteString(s.cfg.Stdout, line+"\n")
	}
}

func (s *session) close() error {
	return s.files.closeAll()
}
