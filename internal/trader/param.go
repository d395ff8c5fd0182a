package trader

import "math/rand/v2"

// Param is a behavioral parameter that is either a fixed value or a sampler
// drawn each time it is resolved. The zero Param is the constant 0.
type Param struct {
	value  float64
	sample func() float64
}

// Constant returns a Param that always resolves to v.
func Constant(v float64) Param {
	return Param{value: v}
}

// Sampler returns a Param that calls fn on every Resolve.
// A nil fn behaves as Constant(0).
func Sampler(fn func() float64) Param {
	return Param{sample: fn}
}

// Resolve returns the constant value or a fresh sample.
func (p Param) Resolve() float64 {
	if p.sample != nil {
		return p.sample()
	}
	return p.value
}

// IsSampler reports whether p draws a new value on each Resolve.
func (p Param) IsSampler() bool {
	return p.sample != nil
}

// Normal samples a normal distribution with the given mean and standard
// deviation from rng.
func Normal(rng *rand.Rand, mean, stddev float64) Param {
	return Sampler(func() float64 {
		return mean + stddev*rng.NormFloat64()
	})
}

// Uniform samples [lo, hi) uniformly from rng.
func Uniform(rng *rand.Rand, lo, hi float64) Param {
	return Sampler(func() float64 {
		return lo + (hi-lo)*rng.Float64()
	})
}

// Choice picks one of values with equal probability.
func Choice(rng *rand.Rand, values ...float64) Param {
	if len(values) == 0 {
		return Constant(0)
	}
	return Sampler(func() float64 {
		return values[rng.IntN(len(values))]
	})
}
