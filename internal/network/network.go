package network

import (
	"github.com/nvandessel/tradernet/internal/trader"
)

// Network is a population of traders placed on a Graph. Agents are held in
// graph node order; for each agent the network keeps the positions of the
// agents it trusts (the sources of its inbound edges).
//
// The neighbor slices returned by Neighbors are shared and must not be
// modified by callers.
type Network struct {
	graph     *Graph
	agents    []*trader.Trader
	trusted   [][]int
	neighbors [][]*trader.Trader
}

func newNetwork(g *Graph, agents []*trader.Trader) *Network {
	trusted := make([][]int, len(agents))
	for _, e := range g.edges {
		src := g.index[e.Source]
		dst := g.index[e.Target]
		trusted[dst] = append(trusted[dst], src)
	}

	neighbors := make([][]*trader.Trader, len(agents))
	for i, idxs := range trusted {
		ns := make([]*trader.Trader, len(idxs))
		for j, k := range idxs {
			ns[j] = agents[k]
		}
		neighbors[i] = ns
	}

	return &Network{
		graph:     g,
		agents:    agents,
		trusted:   trusted,
		neighbors: neighbors,
	}
}

// Len returns the number of agents.
func (n *Network) Len() int { return len(n.agents) }

// Agent returns the agent at position i.
func (n *Network) Agent(i int) *trader.Trader { return n.agents[i] }

// Agents returns all agents in network order.
func (n *Network) Agents() []*trader.Trader { return n.agents }

// Neighbors returns the agents trusted by agent i.
func (n *Network) Neighbors(i int) []*trader.Trader { return n.neighbors[i] }

// TrustedIndices returns the positions of the agents trusted by agent i.
func (n *Network) TrustedIndices(i int) []int { return n.trusted[i] }

// ID returns the graph node id of agent i.
func (n *Network) ID(i int) string { return n.graph.nodes[i] }

// Graph returns the underlying graph.
func (n *Network) Graph() *Graph { return n.graph }

// States returns every agent's state at step t keyed by node id.
func (n *Network) States(t int) map[string]trader.State {
	states := make(map[string]trader.State, len(n.agents))
	for i, a := range n.agents {
		states[n.ID(i)] = a.State(t)
	}
	return states
}
