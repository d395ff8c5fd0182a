package market

import "fmt"

// Quote is the pair of prices a trader emits for one step: the price it
// demands to sell and the price it offers to buy.
type Quote struct {
	Sell float64 `json:"sell"`
	Buy  float64 `json:"buy"`
}

// Inverted reports whether the buy price is not below the sell price.
// Inverted quotes are legal; they flip the sign of the pair's contribution
// to the balance.
func (q Quote) Inverted() bool {
	return !(q.Buy < q.Sell)
}

// weight is the change in (#buyers - #sellers) caused by the reference price
// crossing one of the quote's two prices upward.
func (q Quote) weight() int {
	if q.Inverted() {
		return 1
	}
	return -1
}

// contribution is the quote's share of the balance at reference price p.
func (q Quote) contribution(p float64) int {
	w := q.weight()
	lo, hi := q.Buy, q.Sell
	if lo > hi {
		lo, hi = hi, lo
	}
	switch {
	case p > hi:
		return w
	case p <= lo:
		return -w
	default:
		return 0
	}
}

func (q Quote) String() string {
	return fmt.Sprintf("sell=%g buy=%g", q.Sell, q.Buy)
}
