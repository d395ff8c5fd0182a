// Package market implements the clearing-price search used by the trust
// network simulation.
//
// A PriceTracker collects the sell/buy quote pairs emitted by every trader in
// one step and searches for a price at which the number of implied buyers
// equals the number of implied sellers. The search is anchored at the
// previous clearing price and walks outward, so a price that drifts slowly
// between steps is found in time proportional to the drift rather than the
// number of quotes.
package market

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// PriceTracker is an incremental structure over inserted quote pairs.
//
// It keeps every inserted price in ascending order together with the signed
// balance change incurred when the reference price moves upward past it.
// The balance is (#buyers - #sellers) evaluated at the reference price, where
// a pair with weight w contributes -w while the reference is at or below
// both of its prices and +w once the reference is above both.
//
// A PriceTracker is not safe for concurrent use.
type PriceTracker struct {
	prices    []float64
	deltas    []int
	quotes    []Quote
	balance   int
	reference float64
}

// NewPriceTracker creates an empty tracker anchored at price 0.
func NewPriceTracker() *PriceTracker {
	return &PriceTracker{}
}

// Insert registers one trader's sell and buy quote.
// Non-finite quotes are rejected with ErrInvalidQuote before any state changes.
func (pt *PriceTracker) Insert(sell, buy float64) error {
	if !isFinite(sell) || !isFinite(buy) {
		return fmt.Errorf("%w: sell=%v buy=%v", ErrInvalidQuote, sell, buy)
	}

	q := Quote{Sell: sell, Buy: buy}
	w := q.weight()
	pt.insertPrice(sell, w)
	pt.insertPrice(buy, w)
	pt.quotes = append(pt.quotes, q)

	// The pair is placed relative to the fixed reference as a whole.
	pt.balance += q.contribution(pt.reference)
	return nil
}

// InsertQuote is Insert for a Quote value.
func (pt *PriceTracker) InsertQuote(q Quote) error {
	return pt.Insert(q.Sell, q.Buy)
}

// insertPrice places p after any equal prices already present.
func (pt *PriceTracker) insertPrice(p float64, w int) {
	i := sort.Search(len(pt.prices), func(i int) bool { return pt.prices[i] > p })
	pt.prices = slices.Insert(pt.prices, i, p)
	pt.deltas = slices.Insert(pt.deltas, i, w)
}

// Clear drops all quotes and resets the balance. The reference price is kept
// so the next search starts from the last clearing price.
func (pt *PriceTracker) Clear() {
	pt.prices = pt.prices[:0]
	pt.deltas = pt.deltas[:0]
	pt.quotes = pt.quotes[:0]
	pt.balance = 0
}

// Solve finds the balancing price nearest to the current reference price,
// makes it the new reference and returns it.
func (pt *PriceTracker) Solve() (float64, error) {
	n := len(pt.prices)
	if n == 0 {
		return 0, ErrEmptyTracker
	}

	idx := sort.SearchFloat64s(pt.prices, pt.reference)

	if pt.balance == 0 {
		switch {
		case idx == 0:
			return pt.settle(math.Min(pt.reference, below(pt.prices[0]))), nil
		case idx == n:
			return pt.settle(pt.reference), nil
		default:
			return pt.settle(midpoint(pt.prices[idx-1], pt.prices[idx])), nil
		}
	}

	down, okDown := pt.searchDown(idx)
	up, okUp := pt.searchUp(idx)
	if !okDown && !okUp {
		return 0, fmt.Errorf("%w among %d quotes", ErrNoSolutionFound, len(pt.quotes))
	}

	distDown, distUp := math.Inf(1), math.Inf(1)
	if okDown {
		distDown = math.Abs(down - pt.reference)
	}
	if okUp {
		distUp = math.Abs(up - pt.reference)
	}

	if distUp < distDown {
		return pt.settle(up), nil
	}
	return pt.settle(down), nil
}

// searchDown walks toward lower prices from idx and returns the midpoint of
// the first interval where the running balance reaches zero.
func (pt *PriceTracker) searchDown(idx int) (float64, bool) {
	running := pt.balance
	for i := idx - 1; i >= 0; i-- {
		running -= pt.deltas[i]
		if running != 0 {
			continue
		}
		if i == 0 {
			return below(pt.prices[0]), true
		}
		// Zero-width gaps between duplicate quotes hold no price.
		if pt.prices[i-1] < pt.prices[i] {
			return midpoint(pt.prices[i-1], pt.prices[i]), true
		}
	}
	return 0, false
}

// searchUp walks toward higher prices from idx and returns the midpoint of
// the first interval where the running balance reaches zero.
func (pt *PriceTracker) searchUp(idx int) (float64, bool) {
	running := pt.balance
	n := len(pt.prices)
	for i := idx; i < n; i++ {
		running += pt.deltas[i]
		if running != 0 {
			continue
		}
		if i == n-1 {
			return above(pt.prices[n-1]), true
		}
		if pt.prices[i] < pt.prices[i+1] {
			return midpoint(pt.prices[i], pt.prices[i+1]), true
		}
	}
	return 0, false
}

func (pt *PriceTracker) settle(p float64) float64 {
	pt.reference = p
	pt.balance = 0
	return p
}

// Price returns the reference price: the last clearing price, or the value
// set with SetPrice.
func (pt *PriceTracker) Price() float64 {
	return pt.reference
}

// SetPrice moves the reference price and recomputes the balance against the
// quotes currently held.
func (pt *PriceTracker) SetPrice(p float64) {
	pt.reference = p
	pt.balance = pt.balanceAt(p)
}

// balanceAt evaluates (#buyers - #sellers) at p from the stored quotes.
func (pt *PriceTracker) balanceAt(p float64) int {
	balance := 0
	for _, q := range pt.quotes {
		balance += q.contribution(p)
	}
	return balance
}

// Balance returns (#buyers - #sellers) at the reference price.
func (pt *PriceTracker) Balance() int {
	return pt.balance
}

// Len returns the number of quote pairs inserted since the last Clear.
func (pt *PriceTracker) Len() int {
	return len(pt.quotes)
}

// Quotes returns a copy of the inserted quote pairs in insertion order.
func (pt *PriceTracker) Quotes() []Quote {
	return slices.Clone(pt.quotes)
}

// Prices returns a copy of all inserted prices in ascending order.
func (pt *PriceTracker) Prices() []float64 {
	return slices.Clone(pt.prices)
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func midpoint(lo, hi float64) float64 {
	return (lo + hi) / 2
}

// below and above pick a price strictly outside the quoted range so that no
// quote sits exactly on the clearing price.
func below(p float64) float64 { return math.Nextafter(p, math.Inf(-1)) }
func above(p float64) float64 { return math.Nextafter(p, math.Inf(1)) }
