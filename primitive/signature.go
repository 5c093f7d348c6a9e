package primitive

import (
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/types"
)

// Direction is the data direction of a signature parameter.
type Direction uint8

const (
	In Direction = iota
	Out
	// InOut parameters are passed through: the node exposes both an input
	// and an output terminal for them and the output aliases the input.
	InOut
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return "inout"
	}
}

// Param is one parameter of an instantiated signature.
type Param struct {
	Type *types.Type
	Name string
	Dir  Direction
}

// Signature is the concrete parameter list of an operation.
type Signature struct {
	Params []Param
	Op     Op
}

// Inputs returns the parameters that have an input terminal, in order.
func (s Signature) Inputs() []Param {
	var out []Param
	for _, p := range s.Params {
		if p.Dir != Out {
			out = append(out, p)
		}
	}
	return out
}

// Outputs returns the parameters that have an output terminal, in order.
func (s Signature) Outputs() []Param {
	var out []Param
	for _, p := range s.Params {
		if p.Dir != In {
			out = append(out, p)
		}
	}
	return out
}

// PassthroughInput returns, for output terminal i, the index of the input
// terminal it passes through, or -1.
func (s Signature) PassthroughInput(i int) int {
	in, out := 0, 0
	for _, p := range s.Params {
		switch p.Dir {
		case In:
			in++
		case Out:
			if out == i {
				return -1
			}
			out++
		case InOut:
			if out == i {
				return in
			}
			in++
			out++
		}
	}
	return -1
}

func in(name string, t *types.Type) Param    { return Param{Name: name, Type: t, Dir: In} }
func out(name string, t *types.Type) Param   { return Param{Name: name, Type: t, Dir: Out} }
func inout(name string, t *types.Type) Param { return Param{Name: name, Type: t, Dir: InOut} }

// Generic reports whether op takes a data type argument.
func (o Op) Generic() bool {
	switch o {
	case FakeDropCreate, Range, StringFromSlice, StringToSlice, StringConcat, StringAppend,
		StringSliceToStringSplitIterator, OpenFileHandle, ReadLineFromFileHandle, WriteStringToFileHandle:
		return false
	}
	return o.Valid()
}

// Instantiate returns the signature of op for the data type argument t.
// Non-generic operations ignore t.
func Instantiate(op Op, t *types.Type) (Signature, error) {
	if !op.Valid() {
		return Signature{}, errors.InvalidInput(errors.PhaseGraph, "invalid primitive operation")
	}
	if op.Generic() && t == nil {
		return Signature{}, errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Detail("%s requires a type argument", op).
			Build()
	}
	if err := checkConstraint(op, t); err != nil {
		return Signature{}, err
	}

	strRef := ref(types.StringSlice)
	var ps []Param
	switch {
	case op.IsArithmetic() && op.IsUnary():
		ps = []Param{inout("operandRef", ref(t)), out("result", t)}
	case op.IsArithmetic():
		ps = []Param{inout("operand1Ref", ref(t)), inout("operand2Ref", ref(t)), out("result", t)}
	case op.IsAccumulate() && op.IsUnary():
		ps = []Param{inout("operandRef", mutRef(t))}
	case op.IsAccumulate():
		ps = []Param{inout("operand1Ref", mutRef(t)), inout("operand2Ref", ref(t))}
	case op.IsComparison():
		ps = []Param{inout("operand1Ref", ref(t)), inout("operand2Ref", ref(t)), out("result", types.Bool)}
	}
	if ps != nil {
		return Signature{Op: op, Params: ps}, nil
	}

	switch op {
	case ImmutPass, Inspect, Output:
		ps = []Param{inout("valueRef", ref(t))}
	case MutPass:
		ps = []Param{inout("valueRef", mutRef(t))}
	case Assign:
		ps = []Param{inout("assigneeRef", mutRef(t)), in("value", t)}
	case Exchange:
		ps = []Param{inout("value1Ref", mutRef(t)), inout("value2Ref", mutRef(t))}
	case CreateCopy:
		ps = []Param{inout("valueRef", ref(t)), out("copy", t)}
	case Drop:
		ps = []Param{in("value", t)}
	case FakeDropCreate:
		ps = []Param{in("id", types.Int32), out("fakeDrop", types.FakeDrop)}
	case SelectReference:
		ps = []Param{
			inout("selectorRef", ref(types.Bool)),
			in("trueValueRef", ref(t)),
			in("falseValueRef", ref(t)),
			out("selectedValueRef", ref(t)),
		}
	case Range:
		ps = []Param{in("lowValue", types.Int32), in("highValue", types.Int32), out("range", types.RangeIterator)}
	case Some:
		ps = []Param{in("value", t), out("option", types.Option(t))}
	case None:
		ps = []Param{out("option", types.Option(t))}
	case UnwrapOption:
		ps = []Param{in("option", types.Option(t)), out("value", t)}
	case OptionToPanicResult:
		ps = []Param{in("option", types.Option(t)), out("panicResult", types.PanicResult(t))}
	case StringFromSlice:
		ps = []Param{inout("slice", strRef), out("string", types.String)}
	case StringToSlice:
		ps = []Param{in("string", ref(types.String)), out("slice", strRef)}
	case StringConcat:
		ps = []Param{inout("slice1", strRef), inout("slice2", strRef), out("combined", types.String)}
	case StringAppend:
		ps = []Param{inout("stringRef", mutRef(types.String)), inout("sliceRef", strRef)}
	case StringSliceToStringSplitIterator:
		ps = []Param{in("stringSlice", strRef), out("stringSplitIterator", types.StringSplitIterator)}
	case VectorCreate:
		ps = []Param{out("vector", types.Vector(t))}
	case VectorInitialize:
		ps = []Param{in("element", t), in("size", types.Int32), out("vector", types.Vector(t))}
	case VectorToSlice:
		ps = []Param{in("vectorRef", ref(types.Vector(t))), out("slice", ref(types.Slice(t)))}
	case VectorAppend:
		ps = []Param{inout("vectorRef", mutRef(types.Vector(t))), in("element", t)}
	case VectorInsert:
		ps = []Param{inout("vectorRef", mutRef(types.Vector(t))), inout("indexRef", ref(types.Int32)), in("element", t)}
	case VectorRemoveLast:
		ps = []Param{inout("vectorRef", mutRef(types.Vector(t))), out("element", types.Option(t))}
	case SliceIndex:
		ps = []Param{
			inout("indexRef", ref(types.Int32)),
			in("sliceRef", ref(types.Slice(t))),
			out("elementRef", types.Option(ref(t))),
		}
	case SharedCreate:
		ps = []Param{in("value", t), out("shared", types.Shared(t))}
	case SharedGetValue:
		ps = []Param{in("sharedRef", ref(types.Shared(t))), out("valueRef", ref(t))}
	case OpenFileHandle:
		ps = []Param{inout("filePathRef", strRef), out("fileHandle", types.Option(types.FileHandle))}
	case ReadLineFromFileHandle:
		ps = []Param{inout("fileHandleRef", mutRef(types.FileHandle)), out("line", types.Option(types.String))}
	case WriteStringToFileHandle:
		ps = []Param{inout("fileHandleRef", mutRef(types.FileHandle)), inout("dataRef", strRef)}
	case Yield:
		ps = []Param{inout("valueRef", ref(t))}
	case CreateYieldPromise:
		ps = []Param{in("valueRef", ref(t)), out("promise", types.YieldPromise(ref(t)))}
	case CreateNotifierPair:
		ps = []Param{out("reader", types.NotifierReader(t)), out("writer", types.NotifierWriter(t))}
	case GetNotifierValue:
		ps = []Param{in("reader", types.NotifierReader(t)), out("value", types.Option(t))}
	case GetReaderPromise:
		ps = []Param{in("reader", types.NotifierReader(t)), out("promise", types.NotifierReaderPromise(t))}
	case SetNotifierValue:
		ps = []Param{in("writer", types.NotifierWriter(t)), in("value", t)}
	}
	return Signature{Op: op, Params: ps}, nil
}

func checkConstraint(op Op, t *types.Type) error {
	bad := func(constraint string) error {
		return errors.New(errors.PhaseGraph, errors.KindTypeMismatch).
			Type(t.String()).
			Detail("%s requires %s operand", op, constraint).
			Build()
	}
	switch {
	case op == Output && !t.Has(types.TraitDisplay):
		return bad("a Display")
	case op.IsArithmetic() || op.IsAccumulate():
		isLogic := op == And || op == Or || op == Xor || op == Not ||
			op == AccumulateAnd || op == AccumulateOr || op == AccumulateXor || op == AccumulateNot
		if !t.IsInteger() && !(isLogic && t.Kind() == types.KindBool) {
			return bad("an integer")
		}
	case op.IsComparison():
		eq := op == Equal || op == NotEqual
		if !t.IsInteger() && !(eq && t.Kind() == types.KindBool) {
			return bad("an integer")
		}
	}
	return nil
}
