// Package asyncgroup partitions a graph's traversal into async state groups.
//
// A group is a run of visitations that executes without suspending. Groups
// are linked by continuations: unconditional successor sets, or conditional
// alternatives of which exactly one is signaled. Every await starts a new
// group so a suspension always happens at a group boundary.
//
// Groups are also assigned to functions. A function owns one entry group,
// and all groups reachable from it without crossing another entry run inside
// the same invocation of that function.
package asyncgroup

import (
	"fmt"
	"strings"

	"github.com/wippyai/asyncgraph/graph"
)

// VisitKind identifies what a visitation refers to.
type VisitKind uint8

const (
	VisitNode VisitKind = iota
	VisitWire
	VisitStructure
	// VisitFrameSkipped runs when a conditional frame does not enter its
	// body.
	VisitFrameSkipped
)

// Visitation is one step of the traversal assigned to a group.
type Visitation struct {
	Kind    VisitKind
	Node    graph.NodeID // node, border node or structure
	Wire    graph.WireID
	Diagram graph.DiagramID // VisitStructure at per-diagram points
	Point   graph.TraversalPoint
}

// Continuation describes what a group signals when it finishes.
type Continuation struct {
	Successors   []*Group
	Alternatives [][]*Group
	Conditional  bool
	// skip overrides the successors signaled when the group is skipped.
	skip []*Group
}

// Group is one async state group.
type Group struct {
	Label        string
	Visitations  []Visitation
	Predecessors []*Group
	Continuation Continuation

	ID         int
	Diagram    graph.DiagramID
	FunctionID int

	// SignaledConditionally is set when at most one predecessor signals the
	// group on any path, so it runs on the first signal.
	SignaledConditionally     bool
	StartsWithPanicOrContinue bool
	IsDiagramInitial          bool
	// Skippable groups check the panicked flag on entry and forward to their
	// skip successors instead of running.
	Skippable bool

	forcedEntry bool
}

// MaxFireCount is the number of signals the group waits for before it runs.
func (g *Group) MaxFireCount() int {
	if g.SignaledConditionally {
		return 1
	}
	return len(g.Predecessors)
}

// HasSuccessors reports whether the group signals anything when done.
func (g *Group) HasSuccessors() bool {
	if g.Continuation.Conditional {
		for _, alt := range g.Continuation.Alternatives {
			if len(alt) > 0 {
				return true
			}
		}
		return false
	}
	return len(g.Continuation.Successors) > 0
}

// AllSuccessors returns every group the group may signal, without duplicates.
func (g *Group) AllSuccessors() []*Group {
	if !g.Continuation.Conditional {
		return g.Continuation.Successors
	}
	var out []*Group
	for _, alt := range g.Continuation.Alternatives {
		for _, s := range alt {
			out = appendGroup(out, s)
		}
	}
	return out
}

// SkipSuccessors returns the groups signaled when the group is skipped after
// a panic.
func (g *Group) SkipSuccessors() []*Group {
	c := g.Continuation
	switch {
	case c.skip != nil:
		return c.skip
	case c.Conditional && len(c.Alternatives) > 0:
		return c.Alternatives[0]
	case c.Conditional:
		return nil
	}
	return c.Successors
}

// HasAwait reports whether the group contains an await node.
func (g *Group) HasAwait(gr *graph.Graph) bool {
	for _, v := range g.Visitations {
		if v.Kind == VisitNode && gr.Node(v.Node).Kind == graph.KindAwait {
			return true
		}
	}
	return false
}

func (g *Group) addPredecessor(p *Group) {
	g.Predecessors = appendGroup(g.Predecessors, p)
}

func appendGroup(list []*Group, g *Group) []*Group {
	for _, x := range list {
		if x == g {
			return list
		}
	}
	return append(list, g)
}

func labels(groups []*Group) string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Label
	}
	return strings.Join(names, " ")
}

// Groups is the grouping of one graph.
type Groups struct {
	List    []*Group
	Initial *Group
	Exit    *Group
	// NodeGroup is the group each node ran in, indexed by node id. For a
	// structure it is the group that finishes the structure.
	NodeGroup []*Group

	NumFunctions int
	graph        *graph.Graph
}

// Graph returns the graph the groups were built from.
func (gs *Groups) Graph() *graph.Graph { return gs.graph }

// Function returns the groups assigned to function fid, entry group first.
func (gs *Groups) Function(fid int) []*Group {
	var out []*Group
	for _, g := range gs.List {
		if g.FunctionID != fid {
			continue
		}
		if g.forcedEntry {
			out = append([]*Group{g}, out...)
		} else {
			out = append(out, g)
		}
	}
	return out
}

// Entry returns the entry group of function fid.
func (gs *Groups) Entry(fid int) *Group {
	for _, g := range gs.List {
		if g.FunctionID == fid && g.forcedEntry {
			return g
		}
	}
	return nil
}

// IsEntry reports whether g starts its function.
func (gs *Groups) IsEntry(g *Group) bool { return g.forcedEntry }

// String renders every group with its predecessors, visitations and
// successors.
func (gs *Groups) String() string {
	var sb strings.Builder
	for i, g := range gs.List {
		if i > 0 {
			sb.WriteByte('\n')
		}
		gs.writeGroup(&sb, g)
	}
	return sb.String()
}

// Describe renders a single group the way String does.
func (gs *Groups) Describe(g *Group) string {
	var sb strings.Builder
	gs.writeGroup(&sb, g)
	return sb.String()
}

func (gs *Groups) writeGroup(sb *strings.Builder, g *Group) {
	fmt.Fprintf(sb, "Group %s\n", g.Label)
	writeLine(sb, "Predecessors:", labels(g.Predecessors))
	for _, v := range g.Visitations {
		sb.WriteString("    ")
		sb.WriteString(gs.describe(v))
		sb.WriteByte('\n')
	}
	if g.Continuation.Conditional {
		alts := make([]string, len(g.Continuation.Alternatives))
		for i, alt := range g.Continuation.Alternatives {
			alts[i] = fmt.Sprintf("(%d: %s)", i, labels(alt))
		}
		writeLine(sb, "Successors:", strings.Join(alts, ", "))
	} else {
		writeLine(sb, "Successors:", labels(g.Continuation.Successors))
	}
}

func writeLine(sb *strings.Builder, prefix, rest string) {
	sb.WriteString(prefix)
	if rest != "" {
		sb.WriteByte(' ')
		sb.WriteString(rest)
	}
	sb.WriteByte('\n')
}

func (gs *Groups) describe(v Visitation) string {
	switch v.Kind {
	case VisitWire:
		return fmt.Sprintf("Wire(%d)", v.Wire)
	case VisitStructure:
		s := gs.graph.Node(v.Node)
		if v.Diagram != 0 {
			return fmt.Sprintf("%s(%d) Diagram(%d) %s", s.Struct, s.ID, v.Diagram, v.Point)
		}
		return fmt.Sprintf("%s(%d) %s", s.Struct, s.ID, v.Point)
	case VisitFrameSkipped:
		return fmt.Sprintf("FrameSkipped(%d)", v.Node)
	}
	return fmt.Sprintf("%s(%d)", gs.graph.Node(v.Node).Name(), v.Node)
}
