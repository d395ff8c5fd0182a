// Package network builds the trust network that traders are placed on.
//
// A Graph is a plain directed graph of string node ids. An edge u->v means v
// trusts u: v's quotes are influenced by u's previous state. Populate turns a
// Graph into a Network whose nodes are traders with an index of trusted
// neighbors per trader.
package network

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
)

// Edge is a directed trust edge. Target trusts Source.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a directed graph without edge weights. Nodes keep insertion
// order; duplicate edges and duplicate nodes are ignored.
type Graph struct {
	nodes []string
	index map[string]int
	edges []Edge
	seen  map[Edge]bool
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index: make(map[string]int),
		seen:  make(map[Edge]bool),
	}
}

// AddNode adds id if it is not already present and reports whether it was added.
func (g *Graph) AddNode(id string) bool {
	if _, ok := g.index[id]; ok {
		return false
	}
	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, id)
	return true
}

// AddEdge adds source->target. Both endpoints must already exist.
func (g *Graph) AddEdge(source, target string) error {
	if _, ok := g.index[source]; !ok {
		return fmt.Errorf("add edge %s -> %s: %w %q", source, target, ErrUnknownNode, source)
	}
	if _, ok := g.index[target]; !ok {
		return fmt.Errorf("add edge %s -> %s: %w %q", source, target, ErrUnknownNode, target)
	}
	e := Edge{Source: source, Target: target}
	if g.seen[e] {
		return nil
	}
	g.seen[e] = true
	g.edges = append(g.edges, e)
	return nil
}

// Nodes returns the node ids in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.nodes)
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// HasEdge reports whether source->target exists.
func (g *Graph) HasEdge(source, target string) bool {
	return g.seen[Edge{Source: source, Target: target}]
}

// Index returns the insertion position of id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// RandomGraph returns a directed G(n, p) graph: every ordered pair of
// distinct nodes is connected independently with probability p. Nodes are
// named "0" through "n-1".
func RandomGraph(n int, p float64, rng *rand.Rand) *Graph {
	g := numbered(n)
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			if u == v {
				continue
			}
			if rng.Float64() < p {
				g.addEdgeUnchecked(u, v)
			}
		}
	}
	return g
}

// PathGraph returns the directed path 0 -> 1 -> ... -> n-1.
func PathGraph(n int) *Graph {
	g := numbered(n)
	for i := 0; i+1 < n; i++ {
		g.addEdgeUnchecked(i, i+1)
	}
	return g
}

func numbered(n int) *Graph {
	g := NewGraph()
	for i := 0; i < n; i++ {
		g.AddNode(strconv.Itoa(i))
	}
	return g
}

func (g *Graph) addEdgeUnchecked(u, v int) {
	e := Edge{Source: g.nodes[u], Target: g.nodes[v]}
	g.seen[e] = true
	g.edges = append(g.edges, e)
}

// FromEdges rebuilds a graph from its node list and edge list, for example
// from a stored run. Every edge endpoint must be among nodes.
func FromEdges(nodes []string, edges []Edge) (*Graph, error) {
	g := NewGraph()
	for _, id := range nodes {
		g.AddNode(id)
	}
	for _, e := range edges {
		if err := g.AddEdge(e.Source, e.Target); err != nil {
			return nil, err
		}
	}
	return g, nil
}
