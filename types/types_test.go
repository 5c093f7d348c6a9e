package types

import "testing"

func TestTraits(t *testing.T) {
	vc := ValueClass([]string{"app", "Point"}, TraitCopy|TraitClone, Int32, Int32)
	tests := []struct {
		typ   *Type
		name  string
		trait Trait
		want  bool
	}{
		{Int32, "int is copy", TraitCopy, true},
		{Bool, "bool is display", TraitDisplay, true},
		{String, "string is not copy", TraitCopy, false},
		{String, "string is clone", TraitClone, true},
		{String, "string is drop", TraitDrop, true},
		{ImmutableRef(Int32, ""), "immutable ref is copy", TraitCopy, true},
		{MutableRef(Int32, ""), "mutable ref is not copy", TraitCopy, false},
		{Vector(String), "vector of clone is clone", TraitClone, true},
		{Vector(FileHandle), "vector of file is not clone", TraitClone, false},
		{Option(Int32), "option of int has no drop", TraitDrop, false},
		{Option(String), "option of string drops", TraitDrop, true},
		{Cluster(Int32, String), "cluster with string drops", TraitDrop, true},
		{Cluster(Int32, Bool), "cluster of copies clones", TraitClone, true},
		{FakeDrop, "fake drop drops", TraitDrop, true},
		{Shared(Int32), "shared is clone", TraitClone, true},
		{NotifierReader(Int32), "reader drops", TraitDrop, true},
		{vc, "declared copy", TraitCopy, true},
		{vc, "undeclared drop", TraitDrop, false},
		{Vector(Int32), "vector is not display", TraitDisplay, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.Has(tt.trait); got != tt.want {
				t.Errorf("%s.Has(%s) = %v, want %v", tt.typ, tt.trait, got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	if !Equal(MutableRef(Int32, "'a"), MutableRef(Int32, "'b")) {
		t.Error("lifetimes should not affect equality")
	}
	if Equal(MutableRef(Int32, ""), ImmutableRef(Int32, "")) {
		t.Error("mutability must affect equality")
	}
	if !Equal(Cluster(Int32, Option(String)), Cluster(Int32, Option(String))) {
		t.Error("structurally equal clusters differ")
	}
	if Equal(Cluster(Int32), Cluster(Int32, Int32)) {
		t.Error("clusters of different arity are equal")
	}
	if Equal(ValueClass([]string{"a"}, 0), ValueClass([]string{"b"}, 0)) {
		t.Error("value classes with different names are equal")
	}
}

func TestReferenceCarriesLifetime(t *testing.T) {
	r := PolymorphicRef(String, "")
	if r.Lifetime() != DefaultLifetime {
		t.Errorf("Lifetime = %q, want %q", r.Lifetime(), DefaultLifetime)
	}
	if r.Deref() != String {
		t.Error("Deref should return referent")
	}
	if r.Mutability() != Polymorphic {
		t.Errorf("Mutability = %s", r.Mutability())
	}
}

func TestPromiseValue(t *testing.T) {
	if got := NotifierReaderPromise(Int32).PromiseValue(); !Equal(got, Option(Int32)) {
		t.Errorf("reader promise value = %s", got)
	}
	if got := MethodCallPromise(Cluster(Int32, Bool)).PromiseValue(); !Equal(got, Cluster(Int32, Bool)) {
		t.Errorf("method call promise value = %s", got)
	}
	if !YieldPromise(Int32).IsPromise() || Option(Int32).IsPromise() {
		t.Error("IsPromise misclassifies")
	}
}
