package simulation

import (
	"context"

	"github.com/nvandessel/tradernet/internal/market"
	"github.com/nvandessel/tradernet/internal/network"
)

// NetworkDistiller extracts a value from the network after step t.
type NetworkDistiller func(t int, net *network.Network) any

// TrackerDistiller extracts a value from the price tracker after step t.
type TrackerDistiller func(t int, tracker *market.PriceTracker) any

// SimulateAndDistill runs every step and after each one records a row with
// the network value followed by the tracker value. Nil distillers are
// skipped, so every row has as many columns as there are non-nil
// distillers. A nil tracker is replaced by a new one.
func (d *Driver) SimulateAndDistill(
	ctx context.Context,
	net *network.Network,
	steps []int,
	tracker *market.PriceTracker,
	netFn NetworkDistiller,
	trackerFn TrackerDistiller,
) ([][]any, error) {
	if tracker == nil {
		tracker = market.NewPriceTracker()
	}

	rows := make([][]any, 0, len(steps))
	for report, err := range d.Evolve(ctx, net, steps, tracker) {
		if err != nil {
			return rows, err
		}
		row := make([]any, 0, 2)
		if netFn != nil {
			row = append(row, netFn(report.T, net))
		}
		if trackerFn != nil {
			row = append(row, trackerFn(report.T, tracker))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// StateSum is a NetworkDistiller returning the sum of all agent states,
// which is zero after every step.
func StateSum(t int, net *network.Network) any {
	buyers, _, sellers := StateCounts(net, t)
	return sellers - buyers
}

// ClearingPrice is a TrackerDistiller returning the solved price.
func ClearingPrice(_ int, tracker *market.PriceTracker) any {
	return tracker.Price()
}

// QuoteSpread is a TrackerDistiller returning the lowest and highest quoted
// price of the step as a two-element slice.
func QuoteSpread(_ int, tracker *market.PriceTracker) any {
	prices := tracker.Prices()
	if len(prices) == 0 {
		return []float64{}
	}
	return []float64{prices[0], prices[len(prices)-1]}
}
