// Package graph holds the typed dataflow graph compiled by asyncgraph.
//
// A Graph is an arena: nodes, terminals, wires, diagrams and variables are
// addressed by dense integer ids assigned at creation, and every table built
// by later passes is keyed by those ids.
//
// Structures (frames, loops, option and variant patterns) own nested
// diagrams and are connected to them through border nodes. A Left border node
// has one outer input and an inner output per nested diagram; a Right border
// node has an inner input per nested diagram and one outer output.
//
// Walk drives the traversal shared by the grouper and the compiler.
package graph
