package network

import (
	"fmt"
	"strings"

	"github.com/nvandessel/tradernet/internal/trader"
)

// stateColors maps trader states to DOT fill colors.
var stateColors = map[trader.State]string{
	trader.Buy:  "mediumseagreen",
	trader.Hold: "lightgray",
	trader.Sell: "tomato",
}

// RenderDOT produces a Graphviz DOT representation of the network with each
// trader colored by its state at step t.
func RenderDOT(net *Network, t int) string {
	return renderDOT(net.graph, net.States(t))
}

// RenderGraphDOT renders a bare trust graph.
func RenderGraphDOT(g *Graph) string {
	return renderDOT(g, nil)
}

func renderDOT(g *Graph, states map[string]trader.State) string {
	var b strings.Builder
	b.WriteString("digraph tradernet {\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [arrowsize=0.5];\n\n")

	for _, id := range g.nodes {
		color := "white"
		tooltip := ""
		if s, ok := states[id]; ok {
			color = stateColors[s]
			tooltip = s.String()
		}
		fmt.Fprintf(&b, "  %q [fillcolor=%q, tooltip=%q];\n", id, color, tooltip)
	}
	b.WriteString("\n")

	for _, e := range g.edges {
		fmt.Fprintf(&b, "  %q -> %q;\n", e.Source, e.Target)
	}

	b.WriteString("}\n")
	return b.String()
}
