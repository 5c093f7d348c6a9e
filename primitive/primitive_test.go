package primitive

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/types"
)

func TestLookupRoundTrip(t *testing.T) {
	for _, op := range All() {
		got, ok := Lookup(op.String())
		if !ok || got != op {
			t.Errorf("Lookup(%q) = %v, %v", op.String(), got, ok)
		}
	}
	if _, ok := Lookup("Invalid"); ok {
		t.Error("Invalid must not be looked up")
	}
	if _, ok := Lookup("NoSuchOp"); ok {
		t.Error("unknown name resolved")
	}
}

func TestReplacements(t *testing.T) {
	tests := []struct {
		op       Op
		yielding Op
		panics   Op
	}{
		{Yield, CreateYieldPromise, Invalid},
		{GetNotifierValue, GetReaderPromise, Invalid},
		{UnwrapOption, Invalid, OptionToPanicResult},
		{Add, Invalid, Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			y, _ := Yielding(tt.op)
			if y != tt.yielding {
				t.Errorf("Yielding = %v, want %v", y, tt.yielding)
			}
			p, _ := Panicking(tt.op)
			if p != tt.panics {
				t.Errorf("Panicking = %v, want %v", p, tt.panics)
			}
		})
	}
}

func TestAccumulated(t *testing.T) {
	tests := map[Op]Op{
		AccumulateAdd:       Add,
		AccumulateDivide:    Divide,
		AccumulateXor:       Xor,
		AccumulateIncrement: Increment,
		AccumulateNot:       Not,
		Add:                 Add,
	}
	for in, want := range tests {
		if got := in.Accumulated(); got != want {
			t.Errorf("%v.Accumulated() = %v, want %v", in, got, want)
		}
	}
}

type shape struct {
	Name string
	Type string
	Dir  string
}

func shapes(s Signature) []shape {
	out := make([]shape, len(s.Params))
	for i, p := range s.Params {
		out[i] = shape{Name: p.Name, Type: p.Type.String(), Dir: p.Dir.String()}
	}
	return out
}

func TestInstantiate(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		arg  *types.Type
		want []shape
	}{
		{"add", Add, types.Int32, []shape{
			{"operand1Ref", "ref[i32]", "inout"},
			{"operand2Ref", "ref[i32]", "inout"},
			{"result", "i32", "out"},
		}},
		{"accumulate increment", AccumulateIncrement, types.UInt8, []shape{
			{"operandRef", "ref[u8]", "inout"},
		}},
		{"compare", LessThan, types.Int64, []shape{
			{"operand1Ref", "ref[i64]", "inout"},
			{"operand2Ref", "ref[i64]", "inout"},
			{"result", "bool", "out"},
		}},
		{"drop", Drop, types.String, []shape{
			{"value", "string", "in"},
		}},
		{"range", Range, nil, []shape{
			{"lowValue", "i32", "in"},
			{"highValue", "i32", "in"},
			{"range", "rangeiterator", "out"},
		}},
		{"string concat", StringConcat, nil, []shape{
			{"slice1", "str", "inout"},
			{"slice2", "str", "inout"},
			{"combined", "string", "out"},
		}},
		{"slice index", SliceIndex, types.Int32, []shape{
			{"indexRef", "ref[i32]", "inout"},
			{"sliceRef", "ref[slice[i32]]", "in"},
			{"elementRef", "option[ref[i32]]", "out"},
		}},
		{"yield promise", CreateYieldPromise, types.Int32, []shape{
			{"valueRef", "ref[i32]", "in"},
			{"promise", "yieldPromise[ref[i32]]", "out"},
		}},
		{"notifier pair", CreateNotifierPair, types.Int32, []shape{
			{"reader", "notifierReader[i32]", "out"},
			{"writer", "notifierWriter[i32]", "out"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Instantiate(tt.op, tt.arg)
			if err != nil {
				t.Fatalf("Instantiate: %v", err)
			}
			if diff := cmp.Diff(tt.want, shapes(sig)); diff != "" {
				t.Errorf("signature mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInstantiateEveryOp(t *testing.T) {
	for _, op := range All() {
		arg := types.Int32
		if op == And || op == Or || op == Xor || op == Not {
			arg = types.Bool
		}
		sig, err := Instantiate(op, arg)
		if err != nil {
			t.Errorf("%v: %v", op, err)
			continue
		}
		if len(sig.Params) == 0 {
			t.Errorf("%v: empty signature", op)
		}
	}
}

func TestInstantiateErrors(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		arg  *types.Type
		kind errors.Kind
	}{
		{"missing type argument", Add, nil, errors.KindInvalidInput},
		{"invalid op", Invalid, types.Int32, errors.KindInvalidInput},
		{"add on string", Add, types.String, errors.KindTypeMismatch},
		{"less than on bool", LessThan, types.Bool, errors.KindTypeMismatch},
		{"output vector", Output, types.Vector(types.Int32), errors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Instantiate(tt.op, tt.arg)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("expected *errors.Error, got %v", err)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", e.Kind, tt.kind)
			}
		})
	}
}

func TestPassthroughInput(t *testing.T) {
	sig, err := Instantiate(VectorInsert, types.Int32)
	if err != nil {
		t.Fatal(err)
	}
	// vectorRef(inout) indexRef(inout) element(in)
	if got := sig.PassthroughInput(0); got != 0 {
		t.Errorf("output 0 passes through %d", got)
	}
	if got := sig.PassthroughInput(1); got != 1 {
		t.Errorf("output 1 passes through %d", got)
	}

	sig, _ = Instantiate(Add, types.Int32)
	if got := sig.PassthroughInput(2); got != -1 {
		t.Errorf("result output passes through %d", got)
	}
	if len(sig.Inputs()) != 2 || len(sig.Outputs()) != 3 {
		t.Errorf("inputs=%d outputs=%d", len(sig.Inputs()), len(sig.Outputs()))
	}
}
