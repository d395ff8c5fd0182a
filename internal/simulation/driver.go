package simulation

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/tradernet/internal/logging"
	"github.com/nvandessel/tradernet/internal/market"
	"github.com/nvandessel/tradernet/internal/network"
	"github.com/nvandessel/tradernet/internal/trader"
)

// Config configures a Driver.
type Config struct {
	// Workers is the number of goroutines used for the quote and update
	// passes. Values below 2 run both passes on the calling goroutine.
	Workers int

	// Logger receives per-step debug output. Nil discards.
	Logger *slog.Logger

	// Anomalies receives inverted quotes and, at trace level, step summaries.
	// Nil disables.
	Anomalies *logging.AnomalyLogger
}

// StepReport summarizes one completed step.
type StepReport struct {
	T        int     `json:"t"`
	Price    float64 `json:"price"`
	Buyers   int     `json:"buyers"`
	Holders  int     `json:"holders"`
	Sellers  int     `json:"sellers"`
	Inverted int     `json:"inverted"`
}

// Driver advances a network through time.
type Driver struct {
	workers   int
	logger    *slog.Logger
	anomalies *logging.AnomalyLogger
}

// NewDriver creates a driver from cfg.
func NewDriver(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Driver{
		workers:   cfg.Workers,
		logger:    logger,
		anomalies: cfg.Anomalies,
	}
}

// Step performs time step t on net using tracker and returns the clearing
// price together with the resulting state counts.
//
// Error terms are drawn sequentially in network order so that a seeded run
// is reproducible for any worker count. Quotes are inserted in network order
// for the same reason.
func (d *Driver) Step(ctx context.Context, t int, net *network.Network, tracker *market.PriceTracker) (StepReport, error) {
	report := StepReport{T: t}
	agents := net.Agents()

	tracker.Clear()
	for _, a := range agents {
		a.RefreshError(t)
	}

	quotes := make([]market.Quote, len(agents))
	err := d.forEach(ctx, len(agents), func(i int) {
		quotes[i] = agents[i].Quote(t, net.Neighbors(i))
	})
	if err != nil {
		return report, fmt.Errorf("step %d: quote: %w", t, err)
	}

	for i, q := range quotes {
		if err := tracker.InsertQuote(q); err != nil {
			return report, fmt.Errorf("step %d: agent %s: %w", t, net.ID(i), err)
		}
		if q.Inverted() {
			report.Inverted++
			d.logger.Debug("inverted quote", "t", t, "agent", net.ID(i), "sell", q.Sell, "buy", q.Buy)
			d.anomalies.Log(map[string]any{
				"event": "inverted_quote",
				"t":     t,
				"agent": net.ID(i),
				"sell":  q.Sell,
				"buy":   q.Buy,
			})
		}
	}

	price, err := tracker.Solve()
	if err != nil {
		return report, fmt.Errorf("step %d: %w", t, err)
	}
	report.Price = price

	// Updates write slot t and read slot t-1, so agents can be updated in
	// any order once the price is known.
	err = d.forEach(ctx, len(agents), func(i int) {
		agents[i].UpdateState(t, price, net.Neighbors(i))
	})
	if err != nil {
		return report, fmt.Errorf("step %d: update: %w", t, err)
	}

	report.Buyers, report.Holders, report.Sellers = StateCounts(net, t)

	d.logger.Debug("step complete",
		"t", t,
		"price", price,
		"buyers", report.Buyers,
		"holders", report.Holders,
		"sellers", report.Sellers,
		"inverted", report.Inverted)

	if d.anomalies.Tracing() {
		d.anomalies.Log(map[string]any{
			"event":    "step",
			"t":        t,
			"price":    price,
			"buyers":   report.Buyers,
			"holders":  report.Holders,
			"sellers":  report.Sellers,
			"inverted": report.Inverted,
		})
	}

	return report, nil
}

// forEach calls fn for every index in [0, n), split across the configured
// number of workers. Each index is visited exactly once.
func (d *Driver) forEach(ctx context.Context, n int, fn func(i int)) error {
	if d.workers < 2 || n < 2*d.workers {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (n + d.workers - 1) / d.workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}

// Evolve returns a lazy sequence of step reports, one per entry of steps.
// The sequence stops after the first error, which is yielded once. A nil
// tracker is replaced by a new one. Cancellation of ctx is checked before
// every step.
func (d *Driver) Evolve(ctx context.Context, net *network.Network, steps []int, tracker *market.PriceTracker) iter.Seq2[StepReport, error] {
	if tracker == nil {
		tracker = market.NewPriceTracker()
	}
	return func(yield func(StepReport, error) bool) {
		for _, t := range steps {
			if err := ctx.Err(); err != nil {
				yield(StepReport{T: t}, err)
				return
			}
			report, err := d.Step(ctx, t, net, tracker)
			if err != nil {
				yield(report, err)
				return
			}
			if !yield(report, nil) {
				return
			}
		}
	}
}

// Simulate runs every step and collects the reports.
func (d *Driver) Simulate(ctx context.Context, net *network.Network, steps []int, tracker *market.PriceTracker) ([]StepReport, error) {
	reports := make([]StepReport, 0, len(steps))
	for report, err := range d.Evolve(ctx, net, steps, tracker) {
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// SimulatePrices runs every step and returns the clearing prices.
func (d *Driver) SimulatePrices(ctx context.Context, net *network.Network, steps []int, tracker *market.PriceTracker) ([]float64, error) {
	prices := make([]float64, 0, len(steps))
	for report, err := range d.Evolve(ctx, net, steps, tracker) {
		if err != nil {
			return prices, err
		}
		prices = append(prices, report.Price)
	}
	return prices, nil
}

// Steps returns the dense step sequence from, from+1, ..., from+n-1.
func Steps(from, n int) []int {
	if n <= 0 {
		return nil
	}
	steps := make([]int, n)
	for i := range steps {
		steps[i] = from + i
	}
	return steps
}

// StateCounts tallies the agents' states at step t.
func StateCounts(net *network.Network, t int) (buyers, holders, sellers int) {
	for _, a := range net.Agents() {
		switch a.State(t) {
		case trader.Buy:
			buyers++
		case trader.Sell:
			sellers++
		default:
			holders++
		}
	}
	return buyers, holders, sellers
}
