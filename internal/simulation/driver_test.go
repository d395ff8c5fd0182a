package simulation

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/tradernet/internal/logging"
	"github.com/nvandessel/tradernet/internal/market"
	"github.com/nvandessel/tradernet/internal/network"
	"github.com/nvandessel/tradernet/internal/trader"
)

// randomNetwork builds a G(n, p) network populated with the default
// parameter distributions, fully determined by seed.
func randomNetwork(t *testing.T, n int, p float64, seed uint64) *network.Network {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	g := network.RandomGraph(n, p, rng)
	net, _, err := network.Populate(g, network.DefaultSpecs(rng))
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	return net
}

// constNetwork builds a path network where every agent has the given
// coefficients, zero error and a hold initial state.
func constNetwork(t *testing.T, n int, a, b, c, d float64) *network.Network {
	t.Helper()
	net, _, err := network.Populate(network.PathGraph(n), network.Specs{
		A:       network.Fixed(trader.Constant(a)),
		B:       network.Fixed(trader.Constant(b)),
		C:       network.Fixed(trader.Constant(c)),
		D:       network.Fixed(trader.Constant(d)),
		S:       network.Fixed(trader.Constant(0)),
		Epsilon: network.Fixed(trader.Constant(0)),
	})
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	return net
}

func TestStep_SingleTrader(t *testing.T) {
	net := constNetwork(t, 1, 1, 0, 0, 0)
	d := NewDriver(Config{})

	report, err := d.Step(context.Background(), 0, net, market.NewPriceTracker())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if report.Price != 0 {
		t.Errorf("Price = %v, want 0", report.Price)
	}
	if report.Holders != 1 || report.Buyers != 0 || report.Sellers != 0 {
		t.Errorf("counts = %+v, want one holder", report)
	}
}

func TestStep_StateSumIsZero(t *testing.T) {
	net := randomNetwork(t, 1000, 0.03, 42)
	d := NewDriver(Config{})
	tracker := market.NewPriceTracker()

	for _, step := range Steps(0, 10) {
		report, err := d.Step(context.Background(), step, net, tracker)
		if err != nil {
			t.Fatalf("Step(%d): %v", step, err)
		}

		sum := 0
		for _, a := range net.Agents() {
			sum += int(a.State(step))
		}
		if sum != 0 {
			t.Fatalf("step %d: sum of states = %d, want 0", step, sum)
		}
		if report.Buyers != report.Sellers {
			t.Errorf("step %d: %d buyers vs %d sellers", step, report.Buyers, report.Sellers)
		}
		if report.Buyers+report.Holders+report.Sellers != net.Len() {
			t.Errorf("step %d: counts do not cover the population: %+v", step, report)
		}
		if report.Price != tracker.Price() {
			t.Errorf("step %d: report price %v, tracker price %v", step, report.Price, tracker.Price())
		}
	}
}

func TestStep_WorkersAreDeterministic(t *testing.T) {
	steps := Steps(0, 15)

	serial, err := NewDriver(Config{Workers: 1}).
		SimulatePrices(context.Background(), randomNetwork(t, 400, 0.05, 7), steps, nil)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	parallel, err := NewDriver(Config{Workers: 4}).
		SimulatePrices(context.Background(), randomNetwork(t, 400, 0.05, 7), steps, nil)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}

	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("step %d: serial price %v, parallel price %v", i, serial[i], parallel[i])
		}
	}
}

func TestStep_CountsInvertedQuotes(t *testing.T) {
	dir := t.TempDir()
	anomalies := logging.NewAnomalyLogger(dir, "debug")
	defer anomalies.Close()

	// A+B < 0 inverts every quote.
	net := constNetwork(t, 3, 1, -2, 0, 0)
	d := NewDriver(Config{Anomalies: anomalies})

	report, err := d.Step(context.Background(), 0, net, market.NewPriceTracker())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if report.Inverted != 3 {
		t.Errorf("Inverted = %d, want 3", report.Inverted)
	}
	if anomalies.Count() != 3 {
		t.Errorf("anomaly events = %d, want 3", anomalies.Count())
	}
}

func TestStep_EmptyNetwork(t *testing.T) {
	net, _, err := network.Populate(network.NewGraph(), network.Specs{})
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}

	_, err = NewDriver(Config{}).Step(context.Background(), 0, net, market.NewPriceTracker())
	if !errors.Is(err, market.ErrEmptyTracker) {
		t.Fatalf("expected ErrEmptyTracker, got %v", err)
	}
}

func TestEvolve_StopsAfterError(t *testing.T) {
	net, _, err := network.Populate(network.NewGraph(), network.Specs{})
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}

	var errs int
	for _, err := range NewDriver(Config{}).Evolve(context.Background(), net, Steps(0, 5), nil) {
		if err == nil {
			t.Fatal("expected every step of an empty network to fail")
		}
		errs++
	}
	if errs != 1 {
		t.Errorf("yielded %d errors, want 1", errs)
	}
}

func TestEvolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	net := constNetwork(t, 2, 1, 0, 0, 0)
	_, err := NewDriver(Config{}).Simulate(ctx, net, Steps(0, 3), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEvolve_EarlyBreak(t *testing.T) {
	net := constNetwork(t, 2, 1, 0, 0, 0)
	tracker := market.NewPriceTracker()

	seen := 0
	for _, err := range NewDriver(Config{}).Evolve(context.Background(), net, Steps(0, 10), tracker) {
		if err != nil {
			t.Fatalf("Evolve: %v", err)
		}
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Errorf("consumed %d steps, want 2", seen)
	}
}

func TestSimulateAndDistill(t *testing.T) {
	tests := []struct {
		name      string
		netFn     NetworkDistiller
		trackerFn TrackerDistiller
		wantCols  int
	}{
		{"no distillers", nil, nil, 0},
		{"network only", StateSum, nil, 1},
		{"tracker only", nil, ClearingPrice, 1},
		{"both", StateSum, QuoteSpread, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := randomNetwork(t, 100, 0.05, 3)
			rows, err := NewDriver(Config{}).SimulateAndDistill(
				context.Background(), net, Steps(0, 5), nil, tt.netFn, tt.trackerFn)
			if err != nil {
				t.Fatalf("SimulateAndDistill: %v", err)
			}
			if len(rows) != 5 {
				t.Fatalf("got %d rows, want 5", len(rows))
			}
			for i, row := range rows {
				if len(row) != tt.wantCols {
					t.Errorf("row %d has %d columns, want %d", i, len(row), tt.wantCols)
				}
				if tt.netFn != nil && row[0] != 0 {
					t.Errorf("row %d: state sum = %v, want 0", i, row[0])
				}
			}
		})
	}
}

func TestSimulatePrices_UsesGivenTracker(t *testing.T) {
	net := constNetwork(t, 1, 1, 0, 0, 0)
	tracker := market.NewPriceTracker()

	prices, err := NewDriver(Config{}).SimulatePrices(context.Background(), net, Steps(0, 3), tracker)
	if err != nil {
		t.Fatalf("SimulatePrices: %v", err)
	}
	if len(prices) != 3 {
		t.Fatalf("got %d prices, want 3", len(prices))
	}
	if tracker.Len() != 1 {
		t.Errorf("tracker holds %d quotes, want the last step's 1", tracker.Len())
	}
}

func TestSteps(t *testing.T) {
	got := Steps(3, 4)
	want := []int{3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("Steps(3, 4) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Steps(3, 4)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if Steps(0, 0) != nil {
		t.Error("Steps(0, 0) should be nil")
	}
}
