// Package lifetime builds the regst-desc lifetime-intersection graph (C1)
// and colors it: two regst-descs sharing an edge have overlapping
// lifetimes and can never alias the same physical buffer, so each color
// class is a group of regst-descs that are pairwise safe to consider for
// memory sharing. The graph and its coloring are structured the same way
// as a compiler's register-interference graph, down to the adjacency-map
// shape and the plain greedy coloring walk.
package lifetime

import "sort"

// Graph is a lifetime-intersection graph: nodes are regst-desc ids, and an
// edge between two ids means their lifetimes intersect.
type Graph struct {
	order []int64 // insertion order, preserved for deterministic coloring
	edges map[int64]map[int64]bool
}

// New returns an empty lifetime graph.
func New() *Graph {
	return &Graph{edges: make(map[int64]map[int64]bool)}
}

// AddNode registers a regst-desc id with no interference edges, if not
// already present. Nodes must be added before Color is called even if they
// end up with no edges, so regst-descs without edges still appear in a
// color class.
func (g *Graph) AddNode(id int64) {
	if _, ok := g.edges[id]; ok {
		return
	}
	g.edges[id] = make(map[int64]bool)
	g.order = append(g.order, id)
}

// AddEdge records that id1 and id2's lifetimes intersect.
func (g *Graph) AddEdge(id1, id2 int64) {
	if id1 == id2 {
		return
	}
	g.AddNode(id1)
	g.AddNode(id2)
	g.edges[id1][id2] = true
	g.edges[id2][id1] = true
}

// HasEdge reports whether id1 and id2 interfere.
func (g *Graph) HasEdge(id1, id2 int64) bool {
	return g.edges[id1][id2]
}

// Neighbors returns the sorted interfering neighbors of id.
func (g *Graph) Neighbors(id int64) []int64 {
	ns := make([]int64, 0, len(g.edges[id]))
	for n := range g.edges[id] {
		ns = append(ns, n)
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
	return ns
}

// Degree returns the number of neighbors of id.
func (g *Graph) Degree(id int64) int {
	return len(g.edges[id])
}

// Color assigns each node a color class (a small non-negative int) such
// that no two adjacent nodes share a color, using a deterministic greedy
// walk in node-insertion order: each node takes the lowest-numbered color
// not already used by one of its already-colored neighbors. The result is
// returned as color classes, each a slice of regst-desc ids in ascending
// id order; the class slice itself is ordered by first-node insertion
// order, so repeated calls on the same graph always produce the same
// grouping.
func (g *Graph) Color() [][]int64 {
	color := make(map[int64]int, len(g.order))
	var classes [][]int64

	for _, id := range g.order {
		used := make(map[int]bool)
		for n := range g.edges[id] {
			if c, ok := color[n]; ok {
				used[c] = true
			}
		}
		c := 0
		for used[c] {
			c++
		}
		color[id] = c
		for len(classes) <= c {
			classes = append(classes, nil)
		}
		classes[c] = append(classes[c], id)
	}

	for _, class := range classes {
		sort.Slice(class, func(i, j int) bool { return class[i] < class[j] })
	}
	return classes
}
