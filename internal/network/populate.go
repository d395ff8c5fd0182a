package network

import (
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/nvandessel/tradernet/internal/trader"
)

// ParamSpec says how one trader parameter is assigned across a population.
// A fixed spec hands the same trader.Param to every agent, so a Constant
// gives all agents the same value and a Sampler is drawn independently per
// agent. A sequence spec consumes one Param per agent in node order.
type ParamSpec struct {
	param trader.Param
	seq   iter.Seq[trader.Param]
}

// Fixed assigns p to every agent.
func Fixed(p trader.Param) ParamSpec {
	return ParamSpec{param: p}
}

// FromSequence consumes seq once per agent. Values may themselves be
// samplers. Populate fails with ErrGeneratorExhausted if seq ends early.
func FromSequence(seq iter.Seq[trader.Param]) ParamSpec {
	return ParamSpec{seq: seq}
}

// FromValues is FromSequence over constants.
func FromValues(values ...float64) ParamSpec {
	return FromSequence(func(yield func(trader.Param) bool) {
		for _, v := range values {
			if !yield(trader.Constant(v)) {
				return
			}
		}
	})
}

// Specs configures Populate.
type Specs struct {
	A, B, C, D   ParamSpec
	S            ParamSpec
	Epsilon      ParamSpec
	MemoryLength int
}

// DefaultSpecs returns the published model's parameter distributions,
// sampled per agent from rng.
func DefaultSpecs(rng *rand.Rand) Specs {
	p := trader.DefaultParams(rng)
	return Specs{
		A:            Fixed(p.A),
		B:            Fixed(p.B),
		C:            Fixed(p.C),
		D:            Fixed(p.D),
		S:            Fixed(p.S),
		Epsilon:      Fixed(p.Epsilon),
		MemoryLength: p.MemoryLength,
	}
}

// cursor hands out one Param per agent for a spec.
type cursor struct {
	name  string
	fixed trader.Param
	next  func() (trader.Param, bool)
	stop  func()
}

func (c *cursor) take() (trader.Param, bool) {
	if c.next == nil {
		return c.fixed, true
	}
	return c.next()
}

// Populate creates one trader per graph node, in node order, and returns the
// network together with a map from node id to agent position. Each trader is
// named after its node. The graph is not modified.
func Populate(g *Graph, specs Specs) (*Network, map[string]int, error) {
	memory := specs.MemoryLength
	if memory == 0 {
		memory = 1
	}

	named := []struct {
		name string
		spec ParamSpec
	}{
		{"A", specs.A}, {"B", specs.B}, {"C", specs.C}, {"D", specs.D},
		{"S", specs.S}, {"epsilon", specs.Epsilon},
	}
	cursors := make([]*cursor, len(named))
	for i, ns := range named {
		c := &cursor{name: ns.name, fixed: ns.spec.param}
		if ns.spec.seq != nil {
			c.next, c.stop = iter.Pull(ns.spec.seq)
		}
		cursors[i] = c
	}
	defer func() {
		for _, c := range cursors {
			if c.stop != nil {
				c.stop()
			}
		}
	}()

	agents := make([]*trader.Trader, 0, g.Len())
	ids := make(map[string]int, g.Len())
	for i, id := range g.nodes {
		var vals [6]trader.Param
		for j, c := range cursors {
			p, ok := c.take()
			if !ok {
				return nil, nil, fmt.Errorf("populate: %w: %s ran out at node %d of %d",
					ErrGeneratorExhausted, c.name, i, g.Len())
			}
			vals[j] = p
		}

		tr, err := trader.New(trader.Params{
			A:            vals[0],
			B:            vals[1],
			C:            vals[2],
			D:            vals[3],
			S:            vals[4],
			Epsilon:      vals[5],
			MemoryLength: memory,
			Name:         id,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("populate node %s: %w", id, err)
		}
		agents = append(agents, tr)
		ids[id] = i
	}

	return newNetwork(g, agents), ids, nil
}
