package runtime

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/wippyai/asyncgraph/graph"
	"github.com/wippyai/asyncgraph/types"
)

// Result is what one run produced.
type Result struct {
	// Outputs holds the output lines in emission order.
	Outputs []string
	// Returns holds the definition's outputs; empty when it panicked.
	Returns  []Value
	Inspects []Inspection
	Panicked bool
	// Tasks is the number of scheduler tasks resumed.
	Tasks     int
	FakeDrops []int32
	// Allocations is the number of heap blocks still live after the run.
	Allocations int
}

// Inspection is the content of an inspect slot after a run.
type Inspection struct {
	Definition string
	Node       graph.NodeID
	Export     string
	Value      Value
}

// Inspect returns the value of the first inspect slot of node.
func (r *Result) Inspect(node graph.NodeID) (Value, bool) {
	for _, in := range r.Inspects {
		if in.Node == node {
			return in.Value, true
		}
	}
	return Value{}, false
}

// InspectIn returns the value of the inspect slot of node in definition def.
func (r *Result) InspectIn(def string, node graph.NodeID) (Value, bool) {
	for _, in := range r.Inspects {
		if in.Definition == def && in.Node == node {
			return in.Value, true
		}
	}
	return Value{}, false
}

// Value is a copy of a value read out of guest memory.
type Value struct {
	Type  *types.Type
	Bytes []byte
	// Text renders the value, following the references it holds.
	Text string
}

// Int interprets the value as a signed integer of its type's width.
func (v Value) Int() int64 {
	u := v.Uint()
	switch w := v.Type.BitWidth(); w {
	case 8, 16, 32:
		shift := 64 - w
		return int64(u<<shift) >> shift
	}
	return int64(u)
}

// Uint interprets the value as an unsigned integer of its type's width.
func (v Value) Uint() uint64 {
	var buf [8]byte
	copy(buf[:], v.Bytes)
	u := binary.LittleEndian.Uint64(buf[:])
	if w := v.Type.BitWidth(); w > 0 && w < 64 {
		u &= 1<<w - 1
	}
	return u
}

func (v Value) Bool() bool { return len(v.Bytes) > 0 && v.Bytes[0] != 0 }

func (v Value) String() string { return v.Text }

const maxRenderDepth = 8

func (g *guest) value(t *types.Type, addr uint32) Value {
	return Value{Type: t, Bytes: g.bytes(addr, t.Size()), Text: g.render(t, addr, 0)}
}

// render formats the value of type t at addr.
func (g *guest) render(t *types.Type, addr uint32, depth int) string {
	if depth > maxRenderDepth || g.err != nil {
		return "..."
	}
	v := Value{Type: t, Bytes: g.bytes(addr, t.Size())}
	switch t.Kind() {
	case types.KindBool:
		return strconv.FormatBool(v.Bool())
	case types.KindString:
		return strconv.Quote(string(g.str(addr)))
	case types.KindOption:
		if v.Bool() {
			return "Some(" + g.render(t.Elem(), addr+t.PayloadOffset(), depth+1) + ")"
		}
		return "None"
	case types.KindVector:
		ptr := g.u32(addr + types.BufferPtrOffset)
		n := g.u32(addr + types.BufferLenOffset)
		return g.renderElems(t.Elem(), ptr, n, depth)
	case types.KindCluster:
		parts := make([]string, len(t.Fields()))
		for k, f := range t.Fields() {
			parts[k] = g.render(f, addr+t.FieldOffset(k), depth+1)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case types.KindReference:
		elem := t.Elem()
		switch elem.Kind() {
		case types.KindStringSlice:
			return strconv.Quote(string(g.slice(addr)))
		case types.KindSlice:
			ptr := g.u32(addr + types.FatPtrOffset)
			n := g.u32(addr + types.FatLenOffset)
			return g.renderElems(elem.Elem(), ptr, n, depth)
		}
		return "&" + g.render(elem, g.u32(addr), depth+1)
	}
	if t.IsInteger() {
		if t.IsSigned() {
			return strconv.FormatInt(v.Int(), 10)
		}
		return strconv.FormatUint(v.Uint(), 10)
	}
	return t.String() + "{" + hex.EncodeToString(v.Bytes) + "}"
}

func (g *guest) renderElems(elem *types.Type, ptr, n uint32, depth int) string {
	stride := types.AlignUp(elem.Size(), elem.Align())
	parts := make([]string, 0, n)
	for k := range n {
		parts = append(parts, g.render(elem, ptr+k*stride, depth+1))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
