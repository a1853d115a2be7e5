// Package dag orders tables by their foreign-key dependencies.
//
// An edge runs from a parent table to the child table that references it, so
// parents always sort before their dependents. Every query returns names in a
// deterministic order.
package dag

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// CycleError reports a dependency cycle. Path starts and ends with the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

type set map[string]struct{}

func (s set) sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Graph is a dependency graph keyed by table name.
type Graph struct {
	data     map[string]any
	children map[string]set // parent -> dependents
	parents  map[string]set // child -> dependencies
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		data:     map[string]any{},
		children: map[string]set{},
		parents:  map[string]set{},
	}
}

// AddNode registers id, replacing the payload if it is already present.
func (g *Graph) AddNode(id string, data any) {
	g.data[id] = data
	if g.children[id] == nil {
		g.children[id] = set{}
		g.parents[id] = set{}
	}
}

// Node returns the payload stored for id.
func (g *Graph) Node(id string) (any, bool) {
	d, ok := g.data[id]
	return d, ok
}

// AddEdge records that child depends on parent. Repeated edges are ignored.
func (g *Graph) AddEdge(parent, child string) error {
	for _, id := range []string{parent, child} {
		if _, ok := g.data[id]; !ok {
			return fmt.Errorf("unknown node %q", id)
		}
	}
	if parent == child {
		return &CycleError{Path: []string{parent, child}}
	}
	g.children[parent][child] = struct{}{}
	g.parents[child][parent] = struct{}{}
	return nil
}

// Parents returns the direct dependencies of id.
func (g *Graph) Parents(id string) []string { return g.parents[id].sorted() }

// Children returns the direct dependents of id.
func (g *Graph) Children(id string) []string { return g.children[id].sorted() }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.data) }

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, c := range g.children {
		n += len(c)
	}
	return n
}

func (g *Graph) ids() []string {
	return slices.Sorted(maps.Keys(g.data))
}

// HasCycle walks the graph in name order and returns the first cycle found.
func (g *Graph) HasCycle() (bool, []string) {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(g.data))
	var stack, cycle []string

	var walk func(id string) bool
	walk = func(id string) bool {
		colour[id] = grey
		stack = append(stack, id)
		for _, next := range g.Children(id) {
			switch colour[next] {
			case grey:
				start := slices.Index(stack, next)
				cycle = append(slices.Clone(stack[start:]), next)
				return true
			case white:
				if walk(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[id] = black
		return false
	}

	for _, id := range g.ids() {
		if colour[id] == white && walk(id) {
			return true, cycle
		}
	}
	return false, nil
}

func (g *Graph) acyclic() error {
	if found, path := g.HasCycle(); found {
		return &CycleError{Path: path}
	}
	return nil
}

// Levels groups nodes into waves: level 0 has no dependencies and every
// node sits one level below its deepest parent.
func (g *Graph) Levels() ([][]string, error) {
	if err := g.acyclic(); err != nil {
		return nil, err
	}

	pending := make(map[string]int, len(g.data))
	var wave []string
	for _, id := range g.ids() {
		pending[id] = len(g.parents[id])
		if pending[id] == 0 {
			wave = append(wave, id)
		}
	}

	var levels [][]string
	for len(wave) > 0 {
		levels = append(levels, wave)
		var next []string
		for _, id := range wave {
			for child := range g.children[id] {
				if pending[child]--; pending[child] == 0 {
					next = append(next, child)
				}
			}
		}
		slices.Sort(next)
		wave = next
	}
	return levels, nil
}

// Order returns every node with parents ahead of their dependents, level by
// level and alphabetically within a level.
func (g *Graph) Order() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	return slices.Concat(levels...), nil
}

func (g *Graph) closure(start []string, step map[string]set, self bool) []string {
	seen := set{}
	queue := []string{}
	for _, id := range start {
		if _, ok := g.data[id]; !ok {
			continue
		}
		if self {
			seen[id] = struct{}{}
		}
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for next := range step[id] {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return seen.sorted()
}

// Descendants returns ids and every node that depends on them, directly or
// transitively. Unknown ids are skipped.
func (g *Graph) Descendants(ids ...string) []string {
	return g.closure(ids, g.children, true)
}

// Ancestors returns every node that id depends on, excluding id itself.
func (g *Graph) Ancestors(id string) []string {
	return g.closure([]string{id}, g.parents, false)
}

// Roots returns the nodes with no dependencies.
func (g *Graph) Roots() []string {
	var out []string
	for _, id := range g.ids() {
		if len(g.parents[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}
