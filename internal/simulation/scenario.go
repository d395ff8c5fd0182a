package simulation

import (
	"math/rand/v2"

	"github.com/nvandessel/tradernet/internal/network"
	"github.com/nvandessel/tradernet/internal/trader"
)

// Scenario defines a complete market experiment.
type Scenario struct {
	Name string

	// Graph builds the trust graph. Nil draws G(Nodes, EdgeProbability).
	Graph           func(rng *rand.Rand) *network.Graph
	Nodes           int
	EdgeProbability float64

	// Specs assigns trader parameters. Nil uses network.DefaultSpecs.
	Specs func(rng *rand.Rand) network.Specs

	Seed      uint64
	StartStep int
	Steps     int
	Workers   int

	// BeforeStep, when non-nil, is called before step t executes. Use it to
	// inspect the network between steps.
	BeforeStep func(t int, net *network.Network)
}

// StepResult is one step of a scenario run.
type StepResult struct {
	StepReport

	// States holds every agent's state after the step, keyed by node id.
	States map[string]trader.State
}

// SimulationResult holds everything a scenario produced.
type SimulationResult struct {
	Steps     []StepResult
	Network   *network.Network
	Anomalies int
}

// Prices returns the clearing price of every step.
func (r SimulationResult) Prices() []float64 {
	prices := make([]float64, len(r.Steps))
	for i, s := range r.Steps {
		prices[i] = s.Price
	}
	return prices
}

// ConstantSpecs gives every agent the same coefficients, a hold initial
// state and no error term.
func ConstantSpecs(a, b, c, d float64) network.Specs {
	return network.Specs{
		A:       network.Fixed(trader.Constant(a)),
		B:       network.Fixed(trader.Constant(b)),
		C:       network.Fixed(trader.Constant(c)),
		D:       network.Fixed(trader.Constant(d)),
		S:       network.Fixed(trader.Constant(0)),
		Epsilon: network.Fixed(trader.Constant(0)),
	}
}

// scenarioRand returns the generator a scenario with the given seed uses.
func scenarioRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}
