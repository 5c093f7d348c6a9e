package valuesource

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/internal/codegen"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

func groups(ids ...int) *BitSet {
	b := NewBitSet(8)
	for _, id := range ids {
		b.Set(id)
	}
	return b
}

func opcodes(t *testing.T, e *codegen.Emitter) []byte {
	t.Helper()
	instrs, err := wasm.DecodeInstructions(e.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := make([]byte, len(instrs))
	for i, in := range instrs {
		out[i] = in.Opcode
	}
	return out
}

func TestBitSet(t *testing.T) {
	b := NewBitSet(4)
	for _, v := range []int{3, 70, 0, 64} {
		b.Set(v)
	}
	if got, want := b.Slice(), []int{0, 3, 64, 70}; !cmp.Equal(got, want) {
		t.Errorf("Slice() = %v, want %v", got, want)
	}
	if b.Count() != 4 {
		t.Errorf("Count() = %d, want 4", b.Count())
	}
	b.Clear(0)
	if b.Has(0) || !b.Has(3) || b.Has(200) {
		t.Error("membership after Clear is wrong")
	}
	if b.First() != 3 {
		t.Errorf("First() = %d, want 3", b.First())
	}

	other := NewBitSet(1)
	other.Set(130)
	b.Union(other)
	if !b.Has(130) {
		t.Error("Union did not add 130")
	}

	var empty *BitSet
	if empty.Count() != 0 || empty.First() != -1 || empty.Has(1) {
		t.Error("nil set should behave as empty")
	}
}

func TestPlace(t *testing.T) {
	tests := []struct {
		usage Usage
		name  string
		mode  Mode
		want  Kind
	}{
		{
			name:  "frame scalar",
			mode:  ModeFrame,
			usage: Usage{Type: types.Int32, Groups: groups(0)},
			want:  Register,
		},
		{
			name:  "frame aggregate",
			mode:  ModeFrame,
			usage: Usage{Type: types.String, Groups: groups(0)},
			want:  StackLocal,
		},
		{
			name:  "frame borrowed scalar",
			mode:  ModeFrame,
			usage: Usage{Type: types.Int32, Addressed: true, Groups: groups(0)},
			want:  StackLocal,
		},
		{
			name:  "frame scalar across groups",
			mode:  ModeFrame,
			usage: Usage{Type: types.Int32, Groups: groups(0, 1)},
			want:  Register,
		},
		{
			name:  "record scalar in one group",
			mode:  ModeRecord,
			usage: Usage{Type: types.Int64, Groups: groups(2)},
			want:  Register,
		},
		{
			name:  "record scalar across groups",
			mode:  ModeRecord,
			usage: Usage{Type: types.Int64, Groups: groups(0, 2)},
			want:  StateField,
		},
		{
			name:  "record updated scalar",
			mode:  ModeRecord,
			usage: Usage{Type: types.Bool, Updated: true, Groups: groups(1)},
			want:  StateField,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAllocator(tt.mode, 0)
			s := a.Place(tt.usage)
			if s.Kind != tt.want {
				t.Errorf("kind = %s, want %s", s.Kind, tt.want)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	a := NewAllocator(ModeRecord, 20)
	b := a.Place(Usage{Name: "b", Type: types.Bool, Updated: true})
	i := a.Place(Usage{Name: "i", Type: types.Int64, Updated: true})
	s := a.Place(Usage{Name: "s", Type: types.String})
	fc := a.Field("node3FireCount", types.Int32)

	got := map[string]uint32{"b": b.Offset, "i": i.Offset, "s": s.Offset, "fc": fc.Offset}
	want := map[string]uint32{"b": 20, "i": 24, "s": 32, "fc": 44}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
	if a.Size() != 48 {
		t.Errorf("Size() = %d, want 48", a.Size())
	}
	if len(a.Fields()) != 4 {
		t.Errorf("got %d fields, want 4", len(a.Fields()))
	}
}

func TestCapabilities(t *testing.T) {
	a := NewAllocator(ModeFrame, 0)
	a.Base().Local = 7
	reg := a.Place(Usage{Name: "r", Type: types.Int32})
	mem := a.Place(Usage{Name: "m", Type: types.Int32, Updated: true})
	reg.Bind(2)

	e := codegen.NewEmitter()
	push := func(e *codegen.Emitter) error {
		e.I32Const(1)
		return nil
	}

	if err := reg.GetAddress(e); !stderrors.Is(err, ErrNotAddressable) {
		t.Errorf("register GetAddress error = %v, want ErrNotAddressable", err)
	}
	if err := reg.UpdateValue(e, push); !stderrors.Is(err, ErrNotUpdateable) {
		t.Errorf("register UpdateValue error = %v, want ErrNotUpdateable", err)
	}
	var structured *errors.Error
	err := reg.UpdateValue(e, push)
	if !stderrors.As(err, &structured) || structured.Kind != errors.KindCapability {
		t.Errorf("capability errors should be structured, got %v", err)
	}

	if err := reg.InitializeValue(e, push); err != nil {
		t.Fatalf("first InitializeValue: %v", err)
	}
	if err := reg.InitializeValue(e, push); !stderrors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second InitializeValue error = %v, want ErrAlreadyInitialized", err)
	}
	reg.Reset()
	if err := reg.InitializeValue(e, push); err != nil {
		t.Errorf("InitializeValue after Reset: %v", err)
	}

	if err := mem.GetAddress(e); err != nil {
		t.Errorf("memory GetAddress: %v", err)
	}
	if err := mem.UpdateValue(e, push); err != nil {
		t.Errorf("memory UpdateValue: %v", err)
	}

	unbound := a.Place(Usage{Name: "u", Type: types.Int32})
	if err := unbound.GetValue(e); !stderrors.Is(err, ErrUnboundRegister) {
		t.Errorf("unbound GetValue error = %v, want ErrUnboundRegister", err)
	}
}

func TestEmittedShapes(t *testing.T) {
	a := NewAllocator(ModeRecord, 20)
	a.Base().Local = 0
	scalar := a.Place(Usage{Name: "x", Type: types.Int32, Groups: groups(0, 1)})
	str := a.Place(Usage{Name: "s", Type: types.String, Updated: true})

	tests := []struct {
		emit func(e *codegen.Emitter) error
		name string
		want []byte
	}{
		{
			name: "scalar field get",
			emit: scalar.GetValue,
			want: []byte{wasm.OpLocalGet, wasm.OpI32Load},
		},
		{
			name: "aggregate get pushes address",
			emit: str.GetValue,
			want: []byte{wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Add},
		},
		{
			name: "scalar initialize",
			emit: func(e *codegen.Emitter) error {
				return scalar.InitializeValue(e, func(e *codegen.Emitter) error {
					e.I32Const(5)
					return nil
				})
			},
			want: []byte{wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Store},
		},
		{
			name: "aggregate update copies bytes",
			emit: func(e *codegen.Emitter) error {
				return str.UpdateValue(e, func(e *codegen.Emitter) error {
					e.LocalGet(3)
					return nil
				})
			},
			want: []byte{
				wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Add,
				wasm.OpLocalGet, wasm.OpI32Const, wasm.OpPrefixMisc,
			},
		},
		{
			name: "aggregate zero fill",
			emit: str.ZeroValue,
			want: []byte{
				wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Add,
				wasm.OpI32Const, wasm.OpI32Const, wasm.OpPrefixMisc,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := codegen.NewEmitter()
			if err := tt.emit(e); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, opcodes(t, e)); diff != "" {
				t.Errorf("opcodes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
