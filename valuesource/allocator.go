package valuesource

import "github.com/wippyai/asyncgraph/types"

// Mode selects the storage an Allocator hands out for memory variables.
type Mode uint8

const (
	// ModeFrame places memory variables in the invocation's stack frame.
	// Used when a definition compiles to a single synchronous function.
	ModeFrame Mode = iota
	// ModeRecord places memory variables, and every variable that outlives
	// its defining group, in the continuation record.
	ModeRecord
)

// Usage describes how a variable is used by the compiled code.
type Usage struct {
	Type *types.Type
	Name string
	// Addressed variables have their address taken.
	Addressed bool
	// Updated variables are written after initialization.
	Updated bool
	// Groups holds the ids of the groups that read or write the variable.
	Groups *BitSet
}

// Allocator assigns a Source to each variable of one definition.
type Allocator struct {
	base   Base
	fields []*Source
	all    []*Source
	size   uint32
	align  uint32
	mode   Mode
}

// NewAllocator returns an allocator whose memory slots start at offset
// start, after any fixed header.
func NewAllocator(mode Mode, start uint32) *Allocator {
	return &Allocator{mode: mode, size: start, align: 4}
}

// Mode returns the placement mode.
func (a *Allocator) Mode() Mode { return a.mode }

// Base returns the base shared by every memory source of the allocator.
// Set its Local before emitting code that touches memory sources.
func (a *Allocator) Base() *Base { return &a.base }

// NeedsMemory reports whether a variable must live in linear memory no
// matter the mode.
func NeedsMemory(u Usage) bool {
	return !u.Type.IsScalar() || u.Addressed || u.Updated
}

// Place picks the storage of a variable.
func (a *Allocator) Place(u Usage) *Source {
	kind := Register
	switch {
	case NeedsMemory(u) && a.mode == ModeFrame:
		kind = StackLocal
	case NeedsMemory(u), a.mode == ModeRecord && u.Groups.Count() > 1:
		kind = StateField
	}
	s := &Source{Type: u.Type, Name: u.Name, Kind: kind, mutable: u.Updated}
	if kind != Register {
		s.base = &a.base
		s.Offset = a.reserve(u.Type.Size(), u.Type.Align())
		a.fields = append(a.fields, s)
	}
	a.all = append(a.all, s)
	return s
}

// Field reserves a mutable memory slot of type t that is not a graph
// variable, such as a fire counter.
func (a *Allocator) Field(name string, t *types.Type) *Source {
	kind := StackLocal
	if a.mode == ModeRecord {
		kind = StateField
	}
	s := &Source{Type: t, Name: name, Kind: kind, mutable: true, base: &a.base}
	s.Offset = a.reserve(t.Size(), t.Align())
	a.fields = append(a.fields, s)
	a.all = append(a.all, s)
	return s
}

func (a *Allocator) reserve(size, align uint32) uint32 {
	align = max(align, 1)
	off := types.AlignUp(a.size, align)
	a.size = off + max(size, 1)
	a.align = max(a.align, align)
	return off
}

// Size returns the byte size of the frame or record, aligned to 8.
func (a *Allocator) Size() uint32 {
	return types.AlignUp(a.size, max(a.align, 8))
}

// Fields returns the memory sources in layout order.
func (a *Allocator) Fields() []*Source { return a.fields }

// Sources returns every source handed out, in placement order.
func (a *Allocator) Sources() []*Source { return a.all }

// ResetInitialization clears the initialized mark of every source.
func (a *Allocator) ResetInitialization() {
	for _, s := range a.all {
		s.Reset()
	}
}
