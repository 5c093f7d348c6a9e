// Package primitive defines the closed set of primitive functional operations
// a graph may contain, together with their names and parameter signatures.
package primitive

import "github.com/wippyai/asyncgraph/types"

// Op identifies a primitive operation. The zero value is invalid.
type Op uint8

const (
	Invalid Op = iota

	ImmutPass
	MutPass
	Assign
	Exchange
	CreateCopy
	Drop
	Output
	Inspect
	FakeDropCreate
	SelectReference
	Range
	Some
	None
	UnwrapOption
	OptionToPanicResult

	Add
	Subtract
	Multiply
	Divide
	Modulus
	And
	Or
	Xor
	Not
	Increment

	AccumulateAdd
	AccumulateSubtract
	AccumulateMultiply
	AccumulateDivide
	AccumulateAnd
	AccumulateOr
	AccumulateXor
	AccumulateIncrement
	AccumulateNot

	Equal
	NotEqual
	LessThan
	LessEqual
	GreaterThan
	GreaterEqual

	StringFromSlice
	StringToSlice
	StringConcat
	StringAppend
	StringSliceToStringSplitIterator

	VectorCreate
	VectorInitialize
	VectorToSlice
	VectorAppend
	VectorInsert
	VectorRemoveLast
	SliceIndex

	SharedCreate
	SharedGetValue

	OpenFileHandle
	ReadLineFromFileHandle
	WriteStringToFileHandle

	Yield
	CreateYieldPromise
	CreateNotifierPair
	GetNotifierValue
	GetReaderPromise
	SetNotifierValue

	NumOps
)

var names = [NumOps]string{
	Invalid:                          "Invalid",
	ImmutPass:                        "ImmutPass",
	MutPass:                          "MutPass",
	Assign:                           "Assign",
	Exchange:                         "Exchange",
	CreateCopy:                       "CreateCopy",
	Drop:                             "Drop",
	Output:                           "Output",
	Inspect:                          "Inspect",
	FakeDropCreate:                   "FakeDropCreate",
	SelectReference:                  "SelectReference",
	Range:                            "Range",
	Some:                             "Some",
	None:                             "None",
	UnwrapOption:                     "UnwrapOption",
	OptionToPanicResult:              "OptionToPanicResult",
	Add:                              "Add",
	Subtract:                         "Subtract",
	Multiply:                         "Multiply",
	Divide:                           "Divide",
	Modulus:                          "Modulus",
	And:                              "And",
	Or:                               "Or",
	Xor:                              "Xor",
	Not:                              "Not",
	Increment:                        "Increment",
	AccumulateAdd:                    "AccumulateAdd",
	AccumulateSubtract:               "AccumulateSubtract",
	AccumulateMultiply:               "AccumulateMultiply",
	AccumulateDivide:                 "AccumulateDivide",
	AccumulateAnd:                    "AccumulateAnd",
	AccumulateOr:                     "AccumulateOr",
	AccumulateXor:                    "AccumulateXor",
	AccumulateIncrement:              "AccumulateIncrement",
	AccumulateNot:                    "AccumulateNot",
	Equal:                            "Equal",
	NotEqual:                         "NotEqual",
	LessThan:                         "LessThan",
	LessEqual:                        "LessEqual",
	GreaterThan:                      "GreaterThan",
	GreaterEqual:                     "GreaterEqual",
	StringFromSlice:                  "StringFromSlice",
	StringToSlice:                    "StringToSlice",
	StringConcat:                     "StringConcat",
	StringAppend:                     "StringAppend",
	StringSliceToStringSplitIterator: "StringSliceToStringSplitIterator",
	VectorCreate:                     "VectorCreate",
	VectorInitialize:                 "VectorInitialize",
	VectorToSlice:                    "VectorToSlice",
	VectorAppend:                     "VectorAppend",
	VectorInsert:                     "VectorInsert",
	VectorRemoveLast:                 "VectorRemoveLast",
	SliceIndex:                       "SliceIndex",
	SharedCreate:                     "SharedCreate",
	SharedGetValue:                   "SharedGetValue",
	OpenFileHandle:                   "OpenFileHandle",
	ReadLineFromFileHandle:           "ReadLineFromFileHandle",
	WriteStringToFileHandle:          "WriteStringToFileHandle",
	Yield:                            "Yield",
	CreateYieldPromise:               "CreateYieldPromise",
	CreateNotifierPair:               "CreateNotifierPair",
	GetNotifierValue:                 "GetNotifierValue",
	GetReaderPromise:                 "GetReaderPromise",
	SetNotifierValue:                 "SetNotifierValue",
}

var byName = func() map[string]Op {
	m := make(map[string]Op, NumOps)
	for op := Invalid + 1; op < NumOps; op++ {
		m[names[op]] = op
	}
	return m
}()

func (o Op) String() string {
	if o < NumOps {
		return names[o]
	}
	return "Op(?)"
}

// Valid reports whether o names a primitive operation.
func (o Op) Valid() bool { return o > Invalid && o < NumOps }

// Lookup returns the operation with the given name.
func Lookup(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

// All returns every valid operation in declaration order.
func All() []Op {
	out := make([]Op, 0, NumOps-1)
	for op := Invalid + 1; op < NumOps; op++ {
		out = append(out, op)
	}
	return out
}

var yielding = map[Op]Op{
	Yield:            CreateYieldPromise,
	GetNotifierValue: GetReaderPromise,
}

var panicking = map[Op]Op{
	UnwrapOption: OptionToPanicResult,
}

// Yielding returns the promise-creating replacement of an operation that
// must suspend.
func Yielding(o Op) (Op, bool) {
	r, ok := yielding[o]
	return r, ok
}

// Panicking returns the panic-result-producing replacement of an operation
// that may panic.
func Panicking(o Op) (Op, bool) {
	r, ok := panicking[o]
	return r, ok
}

// IsArithmetic reports whether o is a pure unary or binary numeric/logical op.
func (o Op) IsArithmetic() bool { return o >= Add && o <= Increment }

// IsAccumulate reports whether o mutates its first operand in place.
func (o Op) IsAccumulate() bool { return o >= AccumulateAdd && o <= AccumulateNot }

// IsComparison reports whether o compares two operands.
func (o Op) IsComparison() bool { return o >= Equal && o <= GreaterEqual }

// IsUnary reports whether an arithmetic or accumulate op takes one operand.
func (o Op) IsUnary() bool {
	switch o {
	case Not, Increment, AccumulateNot, AccumulateIncrement:
		return true
	}
	return false
}

var accumulated = map[Op]Op{
	AccumulateAdd:       Add,
	AccumulateSubtract:  Subtract,
	AccumulateMultiply:  Multiply,
	AccumulateDivide:    Divide,
	AccumulateAnd:       And,
	AccumulateOr:        Or,
	AccumulateXor:       Xor,
	AccumulateIncrement: Increment,
	AccumulateNot:       Not,
}

// Accumulated maps an accumulate op to its pure counterpart.
func (o Op) Accumulated() Op {
	if p, ok := accumulated[o]; ok {
		return p
	}
	return o
}

// convenience for signature construction
var (
	ref    = func(t *types.Type) *types.Type { return types.ImmutableRef(t, "") }
	mutRef = func(t *types.Type) *types.Type { return types.MutableRef(t, "") }
)
