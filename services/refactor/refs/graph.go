// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned by TopoOrder when the graph is not acyclic.
var ErrCycle = errors.New("cycle detected")

// Edge is a directed edge between two node indices.
type Edge struct {
	From int
	To   int
}

// Graph is a directed graph stored as a node arena plus an edge list.
//
// Nodes are named and addressed by their index in the arena. Duplicate
// edges and self-loops are ignored.
//
// # Thread Safety
//
// Not safe for concurrent mutation.
type Graph struct {
	names []string
	index map[string]int
	edges []Edge
	seen  map[Edge]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index: make(map[string]int),
		seen:  make(map[Edge]struct{}),
	}
}

// Node returns the index of name, adding it when absent.
func (g *Graph) Node(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	g.names = append(g.names, name)
	g.index[name] = len(g.names) - 1
	return len(g.names) - 1
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Name returns the name of node i.
func (g *Graph) Name(i int) string {
	return g.names[i]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.names)
}

// Edges returns the edge list.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// AddEdge adds from -> to, creating both nodes as needed.
func (g *Graph) AddEdge(from, to string) {
	g.addEdge(Edge{From: g.Node(from), To: g.Node(to)})
}

func (g *Graph) addEdge(e Edge) {
	if e.From == e.To {
		return
	}
	if _, ok := g.seen[e]; ok {
		return
	}
	g.seen[e] = struct{}{}
	g.edges = append(g.edges, e)
}

// Contract merges node from into node into: every edge touching from is
// redirected to into and self-loops created by the merge are dropped.
// from stays in the arena with no edges.
func (g *Graph) Contract(from, into string) {
	f, t := g.Node(from), g.Node(into)
	old := g.edges
	g.edges = nil
	g.seen = make(map[Edge]struct{}, len(old))
	for _, e := range old {
		if e.From == f {
			e.From = t
		}
		if e.To == f {
			e.To = t
		}
		g.addEdge(e)
	}
}

func (g *Graph) adjacency() [][]int {
	adj := make([][]int, len(g.names))
	for _, e := range g.edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	for _, out := range adj {
		sort.Ints(out)
	}
	return adj
}

const (
	white = iota
	gray
	black
)

// Cycles returns the cycles found by a three-colour depth-first search,
// each as node names starting and ending at the same node. Every back edge
// yields one cycle; the result is deterministic for a given graph.
func (g *Graph) Cycles() [][]string {
	adj := g.adjacency()
	color := make([]int, len(g.names))
	var stack []int
	var cycles [][]string

	var visit func(n int)
	visit = func(n int) {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				start := len(stack) - 1
				for stack[start] != next {
					start--
				}
				cycle := make([]string, 0, len(stack)-start+1)
				for _, i := range stack[start:] {
					cycle = append(cycle, g.names[i])
				}
				cycles = append(cycles, append(cycle, g.names[next]))
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
	}

	for n := range g.names {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

// CyclesThrough returns the cycles that contain name.
func (g *Graph) CyclesThrough(name string) [][]string {
	var out [][]string
	for _, c := range g.Cycles() {
		for _, n := range c {
			if n == name {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// TopoOrder returns node names so that for every edge a -> b, a comes
// before b. Ties keep arena order. A cyclic graph returns ErrCycle naming
// one cycle.
func (g *Graph) TopoOrder() ([]string, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrCycle, FormatCycle(cycles[0]))
	}
	adj := g.adjacency()
	indegree := make([]int, len(g.names))
	for _, e := range g.edges {
		indegree[e.To]++
	}
	var ready []int
	for n := range g.names {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	out := make([]string, 0, len(g.names))
	for len(ready) > 0 {
		sort.Ints(ready)
		n := ready[0]
		ready = ready[1:]
		out = append(out, g.names[n])
		for _, next := range adj[n] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return out, nil
}

// FormatCycle renders a cycle as "a -> b -> a".
func FormatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
