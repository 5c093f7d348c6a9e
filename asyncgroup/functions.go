package asyncgroup

import (
	"slices"

	"github.com/wippyai/asyncgraph/errors"
)

// MaxGroupsPerFunction bounds the ready mask of a generated function.
const MaxGroupsPerFunction = 64

// markSkippable computes which groups may run after a panic. A group is
// skippable when it starts with a panic-or-continue, or when a predecessor
// or a group that skips into it is skippable. Diagram initial groups are
// only entered by a structure that already checked the flag.
func markSkippable(groups []*Group) {
	skipSources := make(map[*Group][]*Group)
	for _, g := range groups {
		for _, s := range g.Continuation.skip {
			skipSources[s] = append(skipSources[s], g)
		}
	}
	isSkippable := func(list []*Group) bool {
		return slices.ContainsFunc(list, func(g *Group) bool { return g.Skippable })
	}

	for changed := true; changed; {
		changed = false
		for _, g := range groups {
			if g.Skippable || g.IsDiagramInitial {
				continue
			}
			if g.StartsWithPanicOrContinue || isSkippable(g.Predecessors) || isSkippable(skipSources[g]) {
				g.Skippable = true
				changed = true
			}
		}
	}
}

// assignFunctions gives every group a function id and returns the number of
// functions. Entry groups start a function: the initial group, await groups,
// uncoalesced conditional frame bodies and terminals, and any group whose
// predecessors live in more than one function. Every other group joins the
// function of its predecessors.
func assignFunctions(gs *Groups, frames []*structureGroups, opts Options) (int, error) {
	g := gs.graph
	for _, grp := range gs.List {
		grp.FunctionID = -1
		if grp.HasAwait(g) {
			grp.forcedEntry = true
		}
	}
	gs.Initial.forcedEntry = true
	for _, f := range frames {
		if !opts.CoalesceFrames || f.body != f.outputBN {
			f.body.forcedEntry = true
			f.terminal.forcedEntry = true
		}
	}

	own := make(map[*Group]int)
	maxRounds := 4*len(gs.List) + 8
	for round, changed := 0, true; changed; round++ {
		if round > maxRounds {
			return 0, errors.New(errors.PhaseGroup, errors.KindInvalidInput).
				Path(g.Name).
				Detail("function assignment did not converge").
				Build()
		}
		changed = false
		for _, grp := range gs.List {
			want := -1
			if !grp.forcedEntry {
				var fids []int
				for _, p := range grp.Predecessors {
					if p.FunctionID >= 0 && !slices.Contains(fids, p.FunctionID) {
						fids = append(fids, p.FunctionID)
					}
				}
				switch len(fids) {
				case 0:
				case 1:
					want = fids[0]
				default:
					grp.forcedEntry = true
					changed = true
				}
			}
			if grp.forcedEntry {
				if _, ok := own[grp]; !ok {
					own[grp] = len(own)
				}
				want = own[grp]
			}
			if want >= 0 && grp.FunctionID != want {
				grp.FunctionID = want
				changed = true
			}
		}
	}

	// renumber by first appearance
	renumber := make(map[int]int)
	counts := make(map[int]int)
	for _, grp := range gs.List {
		if grp.FunctionID < 0 {
			return 0, errors.New(errors.PhaseGroup, errors.KindInvalidInput).
				Path(g.Name).
				Detail("group %s is unreachable", grp.Label).
				Build()
		}
		id, ok := renumber[grp.FunctionID]
		if !ok {
			id = len(renumber)
			renumber[grp.FunctionID] = id
		}
		grp.FunctionID = id
		counts[id]++
	}
	for id, n := range counts {
		if n > MaxGroupsPerFunction {
			return 0, errors.Limit(errors.PhaseGroup, "groups in function "+gs.Entry(id).Label, n, MaxGroupsPerFunction)
		}
	}
	return len(renumber), nil
}
