package simulation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nvandessel/tradernet/internal/logging"
	"github.com/nvandessel/tradernet/internal/market"
	"github.com/nvandessel/tradernet/internal/network"
)

// Runner executes scenarios in tests with an isolated anomaly log.
type Runner struct {
	t   *testing.T
	dir string
}

// NewRunner creates a runner whose anomaly log lives in a temp directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{t: t, dir: t.TempDir()}
}

// Run executes the scenario and returns the collected results. Any step
// error fails the test.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	// Phase 1: Build the network.
	rng := scenarioRand(scenario.Seed)
	var g *network.Graph
	if scenario.Graph != nil {
		g = scenario.Graph(rng)
	} else {
		g = network.RandomGraph(scenario.Nodes, scenario.EdgeProbability, rng)
	}
	specs := network.DefaultSpecs(rng)
	if scenario.Specs != nil {
		specs = scenario.Specs(rng)
	}
	net, _, err := network.Populate(g, specs)
	if err != nil {
		r.t.Fatalf("%s: Populate: %v", scenario.Name, err)
	}

	// Phase 2: Configure the driver.
	anomalies := logging.NewAnomalyLogger(r.dir, "debug")
	defer anomalies.Close()
	d := NewDriver(Config{Workers: scenario.Workers, Anomalies: anomalies})
	tracker := market.NewPriceTracker()

	// Phase 3: Run steps.
	steps := make([]StepResult, 0, scenario.Steps)
	for _, t := range Steps(scenario.StartStep, scenario.Steps) {
		if scenario.BeforeStep != nil {
			scenario.BeforeStep(t, net)
		}
		report, err := d.Step(ctx, t, net, tracker)
		if err != nil {
			r.t.Fatalf("%s: %v", scenario.Name, err)
		}
		steps = append(steps, StepResult{StepReport: report, States: net.States(t)})
	}

	return SimulationResult{
		Steps:     steps,
		Network:   net,
		Anomalies: anomalies.Count(),
	}
}

// FormatSteps renders a result as one line per step for debugging output.
func FormatSteps(result SimulationResult) string {
	var b strings.Builder
	for _, s := range result.Steps {
		fmt.Fprintf(&b, "t=%d price=%.6f buy=%d hold=%d sell=%d inverted=%d\n",
			s.T, s.Price, s.Buyers, s.Holders, s.Sellers, s.Inverted)
	}
	return b.String()
}
