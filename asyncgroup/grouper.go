package asyncgroup

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/graph"
)

// Options tunes grouping.
type Options struct {
	// CoalesceFrames keeps a conditional frame in its enclosing function when
	// its body is a single group.
	CoalesceFrames bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{CoalesceFrames: true}
}

// structureGroups tracks the groups of one structure while it is walked.
type structureGroups struct {
	inputBN  *Group // left border nodes
	outputBN *Group // right border nodes
	terminal *Group // finishes the structure
	// diagram terminals by diagram, for the per-diagram visitations
	diagramTerminal map[graph.DiagramID]*Group
	// conditional frames only
	frameInitial *Group
	skipped      *Group
	body         *Group
}

type grouper struct {
	g      *graph.Graph
	opts   Options
	groups []*Group

	nodeGroups     []*Group
	diagramInitial map[graph.DiagramID]*Group
	structures     map[graph.NodeID]*structureGroups
	initial        *Group
	// conditional frames in traversal order
	frames []*structureGroups
}

var _ graph.Visitor = (*grouper)(nil)

// Build groups g's traversal. g must have resolved variables.
func Build(g *graph.Graph, opts Options) (*Groups, error) {
	gr := &grouper{
		g:              g,
		opts:           opts,
		nodeGroups:     make([]*Group, g.NumNodes()),
		diagramInitial: make(map[graph.DiagramID]*Group),
		structures:     make(map[graph.NodeID]*structureGroups),
	}
	gr.initial = gr.newGroup("initialGroup", g.Root())
	gr.initial.IsDiagramInitial = true
	gr.initial.forcedEntry = true
	gr.diagramInitial[g.Root()] = gr.initial

	if err := graph.Walk(g, gr); err != nil {
		return nil, err
	}

	// finish may append the synthesized exit, so List is taken after it.
	exit := gr.finish()
	gs := &Groups{
		List:      gr.groups,
		Initial:   gr.initial,
		Exit:      exit,
		NodeGroup: gr.nodeGroups,
		graph:     g,
	}
	markSkippable(gs.List)
	n, err := assignFunctions(gs, gr.frames, opts)
	if err != nil {
		return nil, err
	}
	gs.NumFunctions = n

	Logger().Debug("grouped graph",
		zap.String("graph", g.Name),
		zap.Int("groups", len(gs.List)),
		zap.Int("functions", gs.NumFunctions))
	return gs, nil
}

func (gr *grouper) newGroup(label string, d graph.DiagramID) *Group {
	grp := &Group{Label: label, ID: len(gr.groups), Diagram: d}
	gr.groups = append(gr.groups, grp)
	return grp
}

func (gr *grouper) newGroupWithPreds(label string, d graph.DiagramID, preds []*Group) *Group {
	grp := gr.newGroup(label, d)
	for _, p := range preds {
		addUnconditional(p, grp)
	}
	return grp
}

// join returns the group that runs after all of preds: a fresh group when
// there are several, the diagram's initial group when there are none.
func (gr *grouper) join(label string, d graph.DiagramID, preds []*Group) *Group {
	switch len(preds) {
	case 0:
		return gr.diagramInitial[d]
	case 1:
		return preds[0]
	}
	return gr.newGroupWithPreds(label, d, preds)
}

func addUnconditional(from, to *Group) {
	from.Continuation.Successors = appendGroup(from.Continuation.Successors, to)
	to.addPredecessor(from)
}

// addConditional appends one alternative to from's conditional continuation.
func addConditional(from *Group, alt ...*Group) {
	from.Continuation.Conditional = true
	from.Continuation.Alternatives = append(from.Continuation.Alternatives, alt)
	for _, s := range alt {
		s.addPredecessor(from)
		s.SignaledConditionally = true
	}
}

// sourceGroup is the group in which the value on terminal src is produced.
func (gr *grouper) sourceGroup(src *graph.Terminal) *Group {
	n := gr.g.Node(src.Node)
	if n.Kind == graph.KindBorder {
		if src.Diagram == n.Diagram {
			return gr.nodeGroups[n.Owner]
		}
		return gr.diagramInitial[src.Diagram]
	}
	return gr.nodeGroups[n.ID]
}

func (gr *grouper) predecessors(inputs []*graph.Terminal) []*Group {
	var preds []*Group
	for _, t := range inputs {
		src := gr.g.Source(t.ID)
		if src == nil {
			continue
		}
		if grp := gr.sourceGroup(src); grp != nil {
			preds = appendGroup(preds, grp)
		}
	}
	return preds
}

func (gr *grouper) visit(grp *Group, v Visitation) {
	grp.Visitations = append(grp.Visitations, v)
}

func (gr *grouper) VisitNode(n *graph.Node) error {
	preds := gr.predecessors(gr.g.StructureInputs(n.ID))
	label := fmt.Sprintf("node%d", n.ID)
	var grp *Group
	switch n.Kind {
	case graph.KindAwait:
		grp = gr.newGroupWithPreds(label, n.Diagram, preds)
	case graph.KindPanicOrContinue:
		grp = gr.newGroupWithPreds(label, n.Diagram, preds)
		grp.StartsWithPanicOrContinue = true
	default:
		grp = gr.join(label, n.Diagram, preds)
	}
	gr.nodeGroups[n.ID] = grp
	gr.visit(grp, Visitation{Kind: VisitNode, Node: n.ID})
	return nil
}

func (gr *grouper) VisitWire(w *graph.Wire) error {
	grp := gr.sourceGroup(gr.g.Terminal(w.Source))
	if grp == nil {
		return errors.New(errors.PhaseGroup, errors.KindInvalidInput).
			Path(gr.g.Name).
			Detail("wire %d visited before its source", w.ID).
			Build()
	}
	gr.visit(grp, Visitation{Kind: VisitWire, Wire: w.ID})
	return nil
}

func (gr *grouper) VisitBorderNode(n *graph.Node) error {
	sg := gr.structures[n.Owner]
	grp := sg.inputBN
	if n.Side == graph.Right {
		grp = sg.outputBN
	}
	gr.nodeGroups[n.ID] = grp
	gr.visit(grp, Visitation{Kind: VisitNode, Node: n.ID})
	return nil
}

func (gr *grouper) VisitStructure(s *graph.Node, d *graph.Diagram, p graph.TraversalPoint) error {
	var did graph.DiagramID
	if d != nil {
		did = d.ID
	}
	if p == graph.BeforeLeftBorderNodes {
		gr.structures[s.ID] = &structureGroups{diagramTerminal: make(map[graph.DiagramID]*Group)}
	}
	sg := gr.structures[s.ID]

	var grp *Group
	switch s.Struct {
	case graph.Frame:
		if gr.g.IsConditionalFrame(s.ID) {
			grp = gr.conditionalFrame(s, sg, did, p)
		} else {
			grp = gr.frame(s, sg, did, p)
		}
	case graph.Loop:
		grp = gr.loop(s, sg, did, p)
	case graph.OptionPattern, graph.VariantPattern:
		grp = gr.pattern(s, sg, did, p)
	default:
		return errors.Unsupported(errors.PhaseGroup, "structure "+s.Struct.String())
	}
	gr.visit(grp, Visitation{Kind: VisitStructure, Node: s.ID, Diagram: did, Point: p})
	return nil
}

func (gr *grouper) structureLabel(s *graph.Node, suffix string) string {
	return fmt.Sprintf("%s%d_%s", s.Struct.Label(), s.ID, suffix)
}

// diagramTerminal joins everything that finishes diagram d: the producers
// of values leaving through right border nodes and the nodes with no
// downstream.
func (gr *grouper) diagramTerminal(s *graph.Node, d graph.DiagramID, label string) *Group {
	var inner []*graph.Terminal
	for _, b := range gr.g.RightBorders(s.ID) {
		if t := gr.g.InnerTerminal(b.ID, d); t != nil {
			inner = append(inner, t)
		}
	}
	preds := gr.predecessors(inner)
	for _, id := range gr.g.Diagram(d).Nodes {
		if len(gr.g.Downstream(id)) == 0 && gr.nodeGroups[id] != nil {
			preds = appendGroup(preds, gr.nodeGroups[id])
		}
	}
	return gr.join(label, d, preds)
}

func (gr *grouper) frame(s *graph.Node, sg *structureGroups, d graph.DiagramID, p graph.TraversalPoint) *Group {
	switch p {
	case graph.BeforeLeftBorderNodes:
		preds := gr.predecessors(gr.g.StructureInputs(s.ID))
		initial := gr.join(gr.structureLabel(s, "initialGroup"), s.Diagram, preds)
		sg.inputBN = initial
		gr.diagramInitial[s.Diagrams[0]] = initial
		return initial
	case graph.AfterLeftBorderNodesAndBeforeDiagram:
		return sg.inputBN
	case graph.AfterDiagram:
		dt := gr.diagramTerminal(s, d, gr.structureLabel(s, "diagramTerminalGroup"))
		sg.diagramTerminal[d] = dt
		sg.outputBN = dt
		sg.terminal = dt
		gr.nodeGroups[s.ID] = dt
		return dt
	}
	return sg.terminal
}

// conditionalFrame groups a frame whose body is skipped when an unwrapped
// option is None. Alternative 0 of the initial group skips, alternative 1
// enters the body.
func (gr *grouper) conditionalFrame(s *graph.Node, sg *structureGroups, d graph.DiagramID, p graph.TraversalPoint) *Group {
	switch p {
	case graph.BeforeLeftBorderNodes:
		preds := gr.predecessors(gr.g.StructureInputs(s.ID))
		initial := gr.newGroupWithPreds(gr.structureLabel(s, "initialGroup"), s.Diagram, preds)
		skipped := gr.newGroup(gr.structureLabel(s, "skippedGroup"), s.Diagram)
		body := gr.newGroup(gr.structureLabel(s, "diagramInitialGroup"), s.Diagrams[0])
		body.IsDiagramInitial = true
		terminal := gr.newGroup(gr.structureLabel(s, "terminalGroup"), s.Diagram)
		terminal.SignaledConditionally = true

		addConditional(initial, skipped)
		addConditional(initial, body)
		addUnconditional(skipped, terminal)
		gr.visit(skipped, Visitation{Kind: VisitFrameSkipped, Node: s.ID})

		gr.diagramInitial[s.Diagrams[0]] = body
		gr.nodeGroups[s.ID] = terminal
		sg.frameInitial = initial
		sg.inputBN = initial
		sg.skipped = skipped
		sg.body = body
		sg.terminal = terminal
		gr.frames = append(gr.frames, sg)
		return initial
	case graph.AfterLeftBorderNodesAndBeforeDiagram:
		return sg.inputBN
	case graph.AfterDiagram:
		dt := gr.diagramTerminal(s, d, gr.structureLabel(s, "diagramTerminalGroup"))
		addUnconditional(dt, sg.terminal)
		sg.diagramTerminal[d] = dt
		sg.outputBN = dt
		return dt
	case graph.AfterAllDiagramsAndBeforeRightBorderNodes:
		return sg.outputBN
	}
	return sg.terminal
}

// loop groups a loop as
//
//	initial -> inputBN -(0)-> terminal
//	                   -(1)-> diagramInitial ... diagramTerminal -> inputBN
func (gr *grouper) loop(s *graph.Node, sg *structureGroups, d graph.DiagramID, p graph.TraversalPoint) *Group {
	switch p {
	case graph.BeforeLeftBorderNodes:
		preds := gr.predecessors(gr.g.StructureInputs(s.ID))
		initial := gr.join(gr.structureLabel(s, "initialGroup"), s.Diagram, preds)
		inputBN := gr.newGroup(gr.structureLabel(s, "inputBNGroup"), s.Diagram)
		inputBN.SignaledConditionally = true
		inputBN.Continuation.Conditional = true
		addUnconditional(initial, inputBN)
		sg.inputBN = inputBN
		return initial
	case graph.AfterLeftBorderNodesAndBeforeDiagram:
		body := gr.newGroup(gr.structureLabel(s, "diagramInitialGroup"), d)
		body.IsDiagramInitial = true
		terminal := gr.newGroup(gr.structureLabel(s, "terminalGroup"), s.Diagram)
		addConditional(sg.inputBN, terminal)
		addConditional(sg.inputBN, body)
		gr.diagramInitial[d] = body
		gr.nodeGroups[s.ID] = terminal
		sg.terminal = terminal
		return sg.inputBN
	case graph.AfterDiagram:
		dt := gr.diagramTerminal(s, d, gr.structureLabel(s, "diagramTerminalGroup"))
		addUnconditional(dt, sg.inputBN)
		sg.diagramTerminal[d] = dt
		sg.outputBN = dt
		return dt
	case graph.AfterAllDiagramsAndBeforeRightBorderNodes:
		return sg.outputBN
	}
	return sg.terminal
}

// pattern groups an option or variant pattern structure. The input border
// group selects one diagram by alternative index; every diagram's terminal
// signals the structure terminal.
func (gr *grouper) pattern(s *graph.Node, sg *structureGroups, d graph.DiagramID, p graph.TraversalPoint) *Group {
	switch p {
	case graph.BeforeLeftBorderNodes:
		preds := gr.predecessors(gr.g.StructureInputs(s.ID))
		initial := gr.join(gr.structureLabel(s, "initialGroup"), s.Diagram, preds)
		inputBN := gr.newGroup(gr.structureLabel(s, "inputBNGroup"), s.Diagram)
		inputBN.Continuation.Conditional = true
		addUnconditional(initial, inputBN)
		terminal := gr.newGroup(gr.structureLabel(s, "terminalGroup"), s.Diagram)
		terminal.SignaledConditionally = true
		inputBN.Continuation.skip = []*Group{terminal}

		gr.nodeGroups[s.ID] = terminal
		sg.inputBN = inputBN
		sg.outputBN = terminal
		sg.terminal = terminal
		return inputBN
	case graph.AfterLeftBorderNodesAndBeforeDiagram:
		di := gr.newGroup(fmt.Sprintf("diagram%d_initialGroup", d), d)
		di.IsDiagramInitial = true
		addConditional(sg.inputBN, di)
		gr.diagramInitial[d] = di
		return di
	case graph.AfterDiagram:
		dt := gr.diagramTerminal(s, d, fmt.Sprintf("diagram%d_terminalGroup", d))
		addUnconditional(dt, sg.terminal)
		sg.diagramTerminal[d] = dt
		return dt
	}
	return sg.terminal
}

// finish adds a single exit group when several groups end the graph and
// returns the exit group.
func (gr *grouper) finish() *Group {
	var ends []*Group
	for _, grp := range gr.groups {
		if !grp.HasSuccessors() {
			ends = append(ends, grp)
		}
	}
	if len(ends) == 1 {
		return ends[0]
	}
	return gr.newGroupWithPreds("terminalGroup", gr.g.Root(), ends)
}
