package types

// Scalar is the wasm value type a scalar type travels as.
type Scalar uint8

const (
	ScalarNone Scalar = iota // aggregate: handled by address
	ScalarI32
	ScalarI64
)

// Fixed layout of runtime-managed records.
const (
	// String, Vector: {ptr, len, cap}
	BufferPtrOffset = 0
	BufferLenOffset = 4
	BufferCapOffset = 8
	BufferSize      = 12

	// fat references to StringSlice and Slice: {ptr, len}
	FatPtrOffset = 0
	FatLenOffset = 4
	FatSize      = 8

	// RangeIterator: {current, high}
	RangeCurrentOffset = 0
	RangeHighOffset    = 4

	// Waker: {fn, state}
	WakerFnOffset    = 0
	WakerStateOffset = 4

	// MethodCallPromise: {fn, state, output}
	PromiseFnOffset    = 0
	PromiseStateOffset = 4
	promiseHeaderSize  = 8

	// Shared cell: {refcount, value}
	SharedRefCountOffset = 0
	sharedHeaderSize     = 4

	// Notifier cell: {status, waker fn, waker state, refcount, value}
	NotifierStatusOffset      = 0
	NotifierWakerFnOffset     = 4
	NotifierWakerStateOffset  = 8
	NotifierRefCountOffset    = 12
	notifierHeaderSize        = 16
	TagOffset                 = 0
	tagSize                   = 1
	pointerSize               = 4
	pointerAlign              = 4
)

// AlignUp rounds v up to a multiple of align.
func AlignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// Size returns the number of bytes a value of t occupies in linear memory.
// Unsized types report 0.
func (t *Type) Size() uint32 {
	switch t.kind {
	case KindBool, KindInt8, KindUInt8:
		return 1
	case KindInt16, KindUInt16:
		return 2
	case KindInt32, KindUInt32:
		return 4
	case KindInt64, KindUInt64:
		return 8
	case KindString, KindVector:
		return BufferSize
	case KindStringSlice, KindSlice:
		return 0
	case KindReference:
		if t.elem.IsUnsized() {
			return FatSize
		}
		return pointerSize
	case KindShared, KindFileHandle, KindFakeDrop, KindNotifierReader,
		KindNotifierWriter, KindNotifierReaderPromise:
		return pointerSize
	case KindRangeIterator, KindStringSplitIterator, KindWaker:
		return 8
	case KindOption, KindPanicResult, KindYieldPromise:
		return AlignUp(t.PayloadOffset()+t.elem.Size(), t.Align())
	case KindMethodCallPromise:
		return AlignUp(t.PayloadOffset()+t.elem.Size(), t.Align())
	case KindCluster, KindValueClass:
		if len(t.fields) == 0 {
			return 0
		}
		last := len(t.fields) - 1
		return AlignUp(t.FieldOffset(last)+t.fields[last].Size(), t.Align())
	case KindVariant:
		var payload uint32
		for _, f := range t.fields {
			if s := f.Size(); s > payload {
				payload = s
			}
		}
		return AlignUp(t.PayloadOffset()+payload, t.Align())
	}
	return 0
}

// Align returns the alignment of t in linear memory.
func (t *Type) Align() uint32 {
	switch t.kind {
	case KindBool, KindInt8, KindUInt8, KindStringSlice:
		return 1
	case KindInt16, KindUInt16:
		return 2
	case KindInt64, KindUInt64:
		return 8
	case KindOption, KindPanicResult, KindYieldPromise:
		return max(1, t.elem.Align())
	case KindMethodCallPromise:
		return max(pointerAlign, t.elem.Align())
	case KindSlice:
		return t.elem.Align()
	case KindCluster, KindValueClass, KindVariant:
		var a uint32 = 1
		for _, f := range t.fields {
			a = max(a, f.Align())
		}
		return a
	}
	return pointerAlign
}

// Scalar returns how a value of t travels on the wasm operand stack.
func (t *Type) Scalar() Scalar {
	switch t.kind {
	case KindBool, KindInt8, KindUInt8, KindInt16, KindUInt16, KindInt32, KindUInt32,
		KindShared, KindFileHandle, KindFakeDrop, KindNotifierReader, KindNotifierWriter,
		KindNotifierReaderPromise:
		return ScalarI32
	case KindInt64, KindUInt64:
		return ScalarI64
	case KindReference:
		if t.elem.IsUnsized() {
			return ScalarNone
		}
		return ScalarI32
	}
	return ScalarNone
}

// IsScalar reports whether values of t fit on the operand stack.
func (t *Type) IsScalar() bool { return t.Scalar() != ScalarNone }

// PayloadOffset returns the offset of the payload of option-like, variant and
// promise types.
func (t *Type) PayloadOffset() uint32 {
	switch t.kind {
	case KindOption, KindPanicResult, KindYieldPromise:
		return AlignUp(tagSize, t.elem.Align())
	case KindMethodCallPromise:
		return AlignUp(promiseHeaderSize, t.elem.Align())
	case KindVariant:
		return AlignUp(tagSize, t.Align())
	}
	return 0
}

// FieldOffset returns the offset of field i of a cluster or value class.
func (t *Type) FieldOffset(i int) uint32 {
	var off uint32
	for j, f := range t.fields {
		off = AlignUp(off, f.Align())
		if j == i {
			return off
		}
		off += f.Size()
	}
	return off
}

// SharedValueOffset returns the offset of the value inside a shared cell of t.
func (t *Type) SharedValueOffset() uint32 {
	return AlignUp(sharedHeaderSize, t.elem.Align())
}

// SharedCellSize returns the allocation size of a shared cell of t.
func (t *Type) SharedCellSize() uint32 {
	return AlignUp(t.SharedValueOffset()+t.elem.Size(), max(pointerAlign, t.elem.Align()))
}

// NotifierValueOffset returns the offset of the value inside a notifier cell.
func (t *Type) NotifierValueOffset() uint32 {
	return AlignUp(notifierHeaderSize, t.elem.Align())
}

// NotifierCellSize returns the allocation size of a notifier cell.
func (t *Type) NotifierCellSize() uint32 {
	return AlignUp(t.NotifierValueOffset()+t.elem.Size(), max(pointerAlign, t.elem.Align()))
}
