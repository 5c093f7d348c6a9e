package types

import "testing"

func TestLayout(t *testing.T) {
	tests := []struct {
		typ    *Type
		size   uint32
		align  uint32
		scalar Scalar
	}{
		{Bool, 1, 1, ScalarI32},
		{Int16, 2, 2, ScalarI32},
		{UInt32, 4, 4, ScalarI32},
		{Int64, 8, 8, ScalarI64},
		{String, 12, 4, ScalarNone},
		{Vector(Int64), 12, 4, ScalarNone},
		{ImmutableRef(Int32, ""), 4, 4, ScalarI32},
		{ImmutableRef(StringSlice, ""), 8, 4, ScalarNone},
		{Option(Int32), 8, 4, ScalarNone},
		{Option(Bool), 2, 1, ScalarNone},
		{Option(Int64), 16, 8, ScalarNone},
		{PanicResult(String), 16, 4, ScalarNone},
		{YieldPromise(Int32), 8, 4, ScalarNone},
		{MethodCallPromise(Bool), 12, 4, ScalarNone},
		{MethodCallPromise(Int64), 16, 8, ScalarNone},
		{Cluster(Bool, Int64, Int16), 24, 8, ScalarNone},
		{Cluster(), 0, 1, ScalarNone},
		{Variant("V", Int32, nil), 8, 4, ScalarNone},
		{RangeIterator, 8, 4, ScalarNone},
		{Shared(String), 4, 4, ScalarI32},
		{FileHandle, 4, 4, ScalarI32},
		{NotifierReader(Int32), 4, 4, ScalarI32},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.Size(); got != tt.size {
				t.Errorf("Size = %d, want %d", got, tt.size)
			}
			if got := tt.typ.Align(); got != tt.align {
				t.Errorf("Align = %d, want %d", got, tt.align)
			}
			if got := tt.typ.Scalar(); got != tt.scalar {
				t.Errorf("Scalar = %d, want %d", got, tt.scalar)
			}
		})
	}
}

func TestFieldOffsets(t *testing.T) {
	c := Cluster(Bool, Int64, Int16, Int32)
	want := []uint32{0, 8, 16, 20}
	for i, w := range want {
		if got := c.FieldOffset(i); got != w {
			t.Errorf("FieldOffset(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestPayloadOffsets(t *testing.T) {
	tests := []struct {
		typ  *Type
		want uint32
	}{
		{Option(Bool), 1},
		{Option(Int32), 4},
		{Option(Int64), 8},
		{MethodCallPromise(Bool), 8},
		{Variant("V", Int16, Int64), 8},
	}
	for _, tt := range tests {
		if got := tt.typ.PayloadOffset(); got != tt.want {
			t.Errorf("%s.PayloadOffset() = %d, want %d", tt.typ, got, tt.want)
		}
	}
}

func TestCellLayout(t *testing.T) {
	if got := Shared(Int64).SharedValueOffset(); got != 8 {
		t.Errorf("shared value offset = %d, want 8", got)
	}
	if got := Shared(Int32).SharedCellSize(); got != 8 {
		t.Errorf("shared cell size = %d, want 8", got)
	}
	if got := NotifierReader(Int32).NotifierValueOffset(); got != 16 {
		t.Errorf("notifier value offset = %d, want 16", got)
	}
	if got := NotifierReader(Int32).NotifierCellSize(); got != 20 {
		t.Errorf("notifier cell size = %d, want 20", got)
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ v, align, want uint32 }{
		{0, 4, 0}, {1, 4, 4}, {4, 4, 4}, {5, 8, 8}, {3, 1, 3}, {3, 0, 3},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.v, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
}
