package types

import "testing"

func TestString(t *testing.T) {
	tests := []struct {
		typ  *Type
		want string
	}{
		{Int32, "i32"},
		{UInt8, "u8"},
		{Bool, "bool"},
		{String, "string"},
		{ImmutableRef(StringSlice, ""), "str"},
		{MutableRef(String, ""), "ref[string]"},
		{Slice(UInt8), "slice[u8]"},
		{Option(ImmutableRef(StringSlice, "")), "option[str]"},
		{PanicResult(Int64), "panicResult[i64]"},
		{Vector(Option(Int16)), "vec[option[i16]]"},
		{Shared(Vector(String)), "shared[vec[string]]"},
		{Cluster(Int8, UInt64), "{i8,u64}"},
		{Cluster(), "{}"},
		{Variant("V", Int32, nil), "variant[i32|{}]"},
		{ValueClass([]string{"app", "Point"}, 0), "app::Point"},
		{YieldPromise(Int32), "yieldPromise[i32]"},
		{MethodCallPromise(Cluster(Int32, Bool)), "methodCallPromise[{i32,bool}]"},
		{NotifierReader(Int32), "notifierReader[i32]"},
		{NotifierWriter(Int32), "notifierWriter[i32]"},
		{NotifierReaderPromise(Int32), "notifierReaderPromise[i32]"},
		{FileHandle, "filehandle"},
		{FakeDrop, "fakedrop"},
		{RangeIterator, "rangeiterator"},
		{StringSplitIterator, "stringsplititerator"},
		{Waker, "waker"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonomorphize(t *testing.T) {
	got := Monomorphize("vector_append", Vector(Int32), Int32)
	if want := "vector_append_vec[i32]_i32"; got != want {
		t.Errorf("Monomorphize = %q, want %q", got, want)
	}
	if got := Monomorphize("drop"); got != "drop" {
		t.Errorf("Monomorphize without args = %q", got)
	}
	// stable across independently constructed types
	a := Monomorphize("clone", Option(Cluster(String, Int32)))
	b := Monomorphize("clone", Option(Cluster(String, Int32)))
	if a != b {
		t.Errorf("unstable mangling: %q vs %q", a, b)
	}
}
