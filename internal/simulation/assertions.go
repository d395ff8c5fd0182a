package simulation

import (
	"math"
	"testing"

	"github.com/nvandessel/tradernet/internal/trader"
)

// AssertBalancedBook asserts that every step cleared with as many buyers as
// sellers and that the agents' states sum to zero.
func AssertBalancedBook(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, s := range result.Steps {
		if s.Buyers != s.Sellers {
			t.Errorf("AssertBalancedBook: t=%d: %d buyers vs %d sellers", s.T, s.Buyers, s.Sellers)
		}
		sum := 0
		for _, st := range s.States {
			sum += int(st)
		}
		if sum != 0 {
			t.Errorf("AssertBalancedBook: t=%d: states sum to %d", s.T, sum)
		}
	}
}

// AssertPopulationConserved asserts that the state counts of every step
// cover the whole network.
func AssertPopulationConserved(t *testing.T, result SimulationResult) {
	t.Helper()
	n := result.Network.Len()
	for _, s := range result.Steps {
		if got := s.Buyers + s.Holders + s.Sellers; got != n {
			t.Errorf("AssertPopulationConserved: t=%d: counts cover %d of %d agents", s.T, got, n)
		}
		if len(s.States) != n {
			t.Errorf("AssertPopulationConserved: t=%d: %d states recorded for %d agents", s.T, len(s.States), n)
		}
	}
}

// AssertPricesFinite asserts that no clearing price is NaN or infinite.
func AssertPricesFinite(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, s := range result.Steps {
		if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
			t.Errorf("AssertPricesFinite: t=%d: price %v", s.T, s.Price)
		}
	}
}

// AssertStepsContiguous asserts that steps run from start without gaps.
func AssertStepsContiguous(t *testing.T, result SimulationResult, start int) {
	t.Helper()
	for i, s := range result.Steps {
		if s.T != start+i {
			t.Errorf("AssertStepsContiguous: position %d has t=%d, want %d", i, s.T, start+i)
		}
	}
}

// AssertPriceConstant asserts that every step after afterStep cleared within
// tol of want.
func AssertPriceConstant(t *testing.T, result SimulationResult, want, tol float64, afterStep int) {
	t.Helper()
	for _, s := range result.Steps {
		if s.T < afterStep {
			continue
		}
		if math.Abs(s.Price-want) > tol {
			t.Errorf("AssertPriceConstant: t=%d: price %.6f, want %.6f±%g", s.T, s.Price, want, tol)
		}
	}
}

// AssertAllInState asserts that every agent holds state st after every step.
func AssertAllInState(t *testing.T, result SimulationResult, st trader.State) {
	t.Helper()
	for _, s := range result.Steps {
		for id, got := range s.States {
			if got != st {
				t.Errorf("AssertAllInState: t=%d: agent %s is %v, want %v", s.T, id, got, st)
				return
			}
		}
	}
}

// AssertSameTrajectory asserts that two results cleared at identical prices
// with identical counts.
func AssertSameTrajectory(t *testing.T, a, b SimulationResult) {
	t.Helper()
	if len(a.Steps) != len(b.Steps) {
		t.Fatalf("AssertSameTrajectory: %d steps vs %d", len(a.Steps), len(b.Steps))
	}
	for i := range a.Steps {
		if a.Steps[i].StepReport != b.Steps[i].StepReport {
			t.Fatalf("AssertSameTrajectory: step %d: %+v vs %+v", i, a.Steps[i].StepReport, b.Steps[i].StepReport)
		}
	}
}

// CountActiveSteps returns how many steps had at least one buyer.
func CountActiveSteps(result SimulationResult) int {
	n := 0
	for _, s := range result.Steps {
		if s.Buyers > 0 {
			n++
		}
	}
	return n
}
