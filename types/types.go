package types

import "strings"

// Kind identifies the shape of a Type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindUInt8
	KindInt16
	KindUInt16
	KindInt32
	KindUInt32
	KindInt64
	KindUInt64
	KindString
	KindStringSlice
	KindReference
	KindOption
	KindPanicResult
	KindVector
	KindSlice
	KindShared
	KindCluster
	KindVariant
	KindFileHandle
	KindFakeDrop
	KindRangeIterator
	KindStringSplitIterator
	KindYieldPromise
	KindMethodCallPromise
	KindNotifierReader
	KindNotifierWriter
	KindNotifierReaderPromise
	KindWaker
	KindValueClass
)

// Mutability is the ownership shape of a reference type.
type Mutability uint8

const (
	Owned Mutability = iota
	Immutable
	Mutable
	Polymorphic
)

func (m Mutability) String() string {
	switch m {
	case Immutable:
		return "immutable"
	case Mutable:
		return "mutable"
	case Polymorphic:
		return "polymorphic"
	default:
		return "owned"
	}
}

// Type is an ownership-annotated type. Types are immutable once built and may
// be shared freely; compare them with Equal, not by pointer.
type Type struct {
	elem     *Type
	name     []string
	fields   []*Type
	lifetime string
	traits   Trait
	kind     Kind
	mut      Mutability
}

// Primitive and built-in nominal types.
var (
	Bool                = &Type{kind: KindBool}
	Int8                = &Type{kind: KindInt8}
	UInt8               = &Type{kind: KindUInt8}
	Int16               = &Type{kind: KindInt16}
	UInt16              = &Type{kind: KindUInt16}
	Int32               = &Type{kind: KindInt32}
	UInt32              = &Type{kind: KindUInt32}
	Int64               = &Type{kind: KindInt64}
	UInt64              = &Type{kind: KindUInt64}
	String              = &Type{kind: KindString}
	StringSlice         = &Type{kind: KindStringSlice}
	FileHandle          = &Type{kind: KindFileHandle}
	FakeDrop            = &Type{kind: KindFakeDrop}
	RangeIterator       = &Type{kind: KindRangeIterator}
	StringSplitIterator = &Type{kind: KindStringSplitIterator}
	Waker               = &Type{kind: KindWaker}
)

// DefaultLifetime is used for references whose lifetime the caller does not name.
const DefaultLifetime = "'0"

func reference(elem *Type, mut Mutability, lifetime string) *Type {
	if elem == nil {
		panic("types: reference without referent")
	}
	if lifetime == "" {
		lifetime = DefaultLifetime
	}
	return &Type{kind: KindReference, elem: elem, mut: mut, lifetime: lifetime}
}

// MutableRef returns a mutable reference to elem.
func MutableRef(elem *Type, lifetime string) *Type { return reference(elem, Mutable, lifetime) }

// ImmutableRef returns an immutable reference to elem.
func ImmutableRef(elem *Type, lifetime string) *Type { return reference(elem, Immutable, lifetime) }

// PolymorphicRef returns a reference whose mutability is decided by the caller.
func PolymorphicRef(elem *Type, lifetime string) *Type { return reference(elem, Polymorphic, lifetime) }

func wrap(kind Kind, elem *Type) *Type {
	if elem == nil {
		panic("types: wrapper without inner type")
	}
	return &Type{kind: kind, elem: elem}
}

func Option(elem *Type) *Type                { return wrap(KindOption, elem) }
func PanicResult(elem *Type) *Type           { return wrap(KindPanicResult, elem) }
func Vector(elem *Type) *Type                { return wrap(KindVector, elem) }
func Slice(elem *Type) *Type                 { return wrap(KindSlice, elem) }
func Shared(elem *Type) *Type                { return wrap(KindShared, elem) }
func YieldPromise(elem *Type) *Type          { return wrap(KindYieldPromise, elem) }
func MethodCallPromise(elem *Type) *Type     { return wrap(KindMethodCallPromise, elem) }
func NotifierReader(elem *Type) *Type        { return wrap(KindNotifierReader, elem) }
func NotifierWriter(elem *Type) *Type        { return wrap(KindNotifierWriter, elem) }
func NotifierReaderPromise(elem *Type) *Type { return wrap(KindNotifierReaderPromise, elem) }

// Cluster returns a tuple type with the given fields.
func Cluster(fields ...*Type) *Type {
	return &Type{kind: KindCluster, fields: append([]*Type(nil), fields...)}
}

// Variant returns a tagged union. Case i has payload cases[i]; a nil payload
// is stored as an empty cluster.
func Variant(name string, cases ...*Type) *Type {
	cs := make([]*Type, len(cases))
	for i, c := range cases {
		if c == nil {
			c = Cluster()
		}
		cs[i] = c
	}
	return &Type{kind: KindVariant, name: []string{name}, fields: cs}
}

// ValueClass returns a named struct type with declared trait facts.
func ValueClass(qualifiedName []string, traits Trait, fields ...*Type) *Type {
	return &Type{
		kind:   KindValueClass,
		name:   append([]string(nil), qualifiedName...),
		fields: append([]*Type(nil), fields...),
		traits: traits,
	}
}

func (t *Type) Kind() Kind { return t.kind }

// Elem returns the referent or wrapped type.
func (t *Type) Elem() *Type { return t.elem }

func (t *Type) Mutability() Mutability { return t.mut }

func (t *Type) Lifetime() string { return t.lifetime }

// Fields returns cluster and value class fields, or variant case payloads.
func (t *Type) Fields() []*Type { return t.fields }

// QualifiedName returns the name of a value class or variant.
func (t *Type) QualifiedName() string { return strings.Join(t.name, "::") }

func (t *Type) IsReference() bool { return t.kind == KindReference }

func (t *Type) IsMutableReference() bool { return t.kind == KindReference && t.mut == Mutable }

// Deref returns the referent of a reference, or t itself.
func (t *Type) Deref() *Type {
	if t.kind == KindReference {
		return t.elem
	}
	return t
}

// IsInteger reports whether t is one of the fixed-width integer types.
func (t *Type) IsInteger() bool {
	return t.kind >= KindInt8 && t.kind <= KindUInt64
}

// IsSigned reports whether t is a signed integer type.
func (t *Type) IsSigned() bool {
	switch t.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// BitWidth returns the width of bool and integer types, or 0.
func (t *Type) BitWidth() int {
	switch t.kind {
	case KindBool, KindInt8, KindUInt8:
		return 8
	case KindInt16, KindUInt16:
		return 16
	case KindInt32, KindUInt32:
		return 32
	case KindInt64, KindUInt64:
		return 64
	}
	return 0
}

// IsPromise reports whether t can be polled by an await node.
func (t *Type) IsPromise() bool {
	switch t.kind {
	case KindYieldPromise, KindMethodCallPromise, KindNotifierReaderPromise:
		return true
	}
	return false
}

// PromiseValue returns the type a promise resolves to.
func (t *Type) PromiseValue() *Type {
	if t.kind == KindNotifierReaderPromise {
		return Option(t.elem)
	}
	return t.elem
}

// IsUnsized reports whether t can only be used behind a reference.
func (t *Type) IsUnsized() bool {
	return t.kind == KindStringSlice || t.kind == KindSlice
}

// Equal reports structural equality. Lifetimes are ignored.
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.kind != b.kind || a.mut != b.mut {
		return false
	}
	if (a.elem == nil) != (b.elem == nil) || (a.elem != nil && !Equal(a.elem, b.elem)) {
		return false
	}
	if len(a.fields) != len(b.fields) || strings.Join(a.name, "::") != strings.Join(b.name, "::") {
		return false
	}
	for i := range a.fields {
		if !Equal(a.fields[i], b.fields[i]) {
			return false
		}
	}
	return true
}
