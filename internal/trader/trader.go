// Package trader implements the agents of the trust network market.
//
// Every trader carries four fixed sensitivities A, B, C and D, a per-step
// error term epsilon, and a short circular memory of its own perceived prices
// and buy/hold/sell states. At step t it quotes a buy and a sell price from
// its step t-1 memory and the step t-1 states of the neighbors it trusts; once
// a clearing price is known it moves to a new state.
package trader

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/tradernet/internal/market"
)

// State is a trader's position for one step.
type State int8

const (
	Buy  State = -1
	Hold State = 0
	Sell State = 1
)

func (s State) String() string {
	switch s {
	case Buy:
		return "buy"
	case Hold:
		return "hold"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("State(%d)", int8(s))
	}
}

// Params describes how a trader is constructed. A, B, C, D and S are resolved
// once by New; Epsilon is resolved once per step by RefreshError and once at
// construction to seed the error memory.
type Params struct {
	A, B, C, D   Param
	S            Param
	Epsilon      Param
	MemoryLength int
	Name         string
}

// DefaultParams returns the parameter distributions of the published model:
// A=1, B~N(0,1), C~N(5,2), D~N(0,1), S uniform over {-1,0,1},
// epsilon~N(0,0.33) and a memory of one step.
func DefaultParams(rng *rand.Rand) Params {
	return Params{
		A:            Constant(1),
		B:            Normal(rng, 0, 1),
		C:            Normal(rng, 5, 2),
		D:            Normal(rng, 0, 1),
		S:            Choice(rng, -1, 0, 1),
		Epsilon:      Normal(rng, 0, 0.33),
		MemoryLength: 1,
	}
}

// Trader is one market participant.
//
// A Trader is not safe for concurrent mutation. Quote only reads and may run
// concurrently with other Quote calls once RefreshError has been called for
// the step.
type Trader struct {
	name          string
	a, b, c, d    float64
	epsilonSource Param

	state     history[State]
	epsilon   history[float64]
	perceived history[float64]
}

// New resolves p into a Trader. Each history holds MemoryLength+1 steps: the
// current step plus the remembered ones.
func New(p Params) (*Trader, error) {
	if p.MemoryLength < 1 {
		return nil, fmt.Errorf("%w: memory length %d", ErrInvalidParams, p.MemoryLength)
	}

	a, b, c, d := p.A.Resolve(), p.B.Resolve(), p.C.Resolve(), p.D.Resolve()
	if a+b == 0 {
		return nil, fmt.Errorf("%w (A=%v, B=%v)", ErrDegenerateSensitivity, a, b)
	}

	s := p.S.Resolve()
	initial, ok := stateOf(s)
	if !ok {
		return nil, fmt.Errorf("%w: initial state %v", ErrInvalidParams, s)
	}

	capacity := p.MemoryLength + 1
	return &Trader{
		name:          p.Name,
		a:             a,
		b:             b,
		c:             c,
		d:             d,
		epsilonSource: p.Epsilon,
		state:         newHistory(capacity, initial),
		epsilon:       newHistory(capacity, p.Epsilon.Resolve()),
		perceived:     newHistory(capacity, 0.0),
	}, nil
}

func stateOf(v float64) (State, bool) {
	switch v {
	case -1:
		return Buy, true
	case 0:
		return Hold, true
	case 1:
		return Sell, true
	}
	return Hold, false
}

// RefreshError draws this step's error term.
func (tr *Trader) RefreshError(t int) {
	tr.epsilon.set(t, tr.epsilonSource.Resolve())
}

// Quote returns the trader's sell and buy price for step t given the
// neighbors it trusts. It reads eps[t], the trader's perceived price at t-1
// and the neighbors' states at t-1.
func (tr *Trader) Quote(t int, neighbors []*Trader) market.Quote {
	k := tr.offset(t, neighbors)
	ab := tr.a + tr.b
	return market.Quote{
		Sell: (1 - k) / ab,
		Buy:  (-1 - k) / ab,
	}
}

// UpdateState records the perceived price for step t and moves the trader to
// the state implied by the clearing price. The neighbor term uses states from
// t-1, so the order in which traders are updated within a step does not matter.
func (tr *Trader) UpdateState(t int, price float64, neighbors []*Trader) {
	tr.perceived.set(t, price+tr.epsilon.at(t))

	l := (tr.a+tr.b)*price + tr.offset(t, neighbors)
	switch {
	case l < -1:
		tr.state.set(t, Buy)
	case l > 1:
		tr.state.set(t, Sell)
	default:
		tr.state.set(t, Hold)
	}
}

// offset is K = (A+B)eps[t] - B*perceived[t-1] + C*influence + D.
func (tr *Trader) offset(t int, neighbors []*Trader) float64 {
	return (tr.a+tr.b)*tr.epsilon.at(t) -
		tr.b*tr.perceived.at(t-1) +
		tr.c*Influence(t-1, neighbors) +
		tr.d
}

// Influence sums the states of traders at step t.
func Influence(t int, traders []*Trader) float64 {
	var sum float64
	for _, n := range traders {
		sum += float64(n.state.at(t))
	}
	return sum
}

// State returns the state recorded for step t.
func (tr *Trader) State(t int) State { return tr.state.at(t) }

// Epsilon returns the error term recorded for step t.
func (tr *Trader) Epsilon(t int) float64 { return tr.epsilon.at(t) }

// PerceivedPrice returns the perceived price recorded for step t.
func (tr *Trader) PerceivedPrice(t int) float64 { return tr.perceived.at(t) }

// Coefficients returns the resolved A, B, C and D.
func (tr *Trader) Coefficients() (a, b, c, d float64) {
	return tr.a, tr.b, tr.c, tr.d
}

// MemoryLength returns how many past steps the trader remembers.
func (tr *Trader) MemoryLength() int { return tr.state.capacity() - 1 }

func (tr *Trader) Name() string { return tr.name }

func (tr *Trader) String() string {
	if tr.name != "" {
		return fmt.Sprintf("Trader(%s)", tr.name)
	}
	return fmt.Sprintf("Trader(A=%.3g B=%.3g C=%.3g D=%.3g)", tr.a, tr.b, tr.c, tr.d)
}
