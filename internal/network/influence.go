package network

import (
	"cmp"
	"math"
	"slices"
)

// InfluenceConfig holds configuration for influence ranking.
type InfluenceConfig struct {
	// DampingFactor (d) is the probability of following a trust edge vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// MaxIterations is the maximum number of power iteration steps. Default: 100.
	MaxIterations int

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64
}

// DefaultInfluenceConfig returns the default influence configuration.
func DefaultInfluenceConfig() InfluenceConfig {
	return InfluenceConfig{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// ComputeInfluence ranks nodes by how much trust flows to them.
// Returns a map of node id to score (0.0-1.0, normalized).
//
// Algorithm: PageRank by power iteration where each node links to the nodes
// it trusts, i.e. against the direction of the trust edge.
//  1. Initialize all nodes with score = 1/N
//  2. For each iteration:
//     R(u) = (1-d)/N + d * sum(R(v)/trustCount(v)) for all v trusting u
//  3. Converge when max change < Tolerance
//  4. Normalize to [0, 1] range
func ComputeInfluence(g *Graph, config InfluenceConfig) map[string]float64 {
	n := g.Len()
	if n == 0 {
		return make(map[string]float64)
	}

	// trustedBy[u] = nodes v with an edge u->v.
	trustedBy := make([][]int, n)
	trustCount := make([]int, n)
	for _, e := range g.edges {
		u, v := g.index[e.Source], g.index[e.Target]
		trustedBy[u] = append(trustedBy[u], v)
		trustCount[v]++
	}

	d := config.DampingFactor
	nf := float64(n)
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / nf
	}

	next := make([]float64, n)
	for iter := 0; iter < config.MaxIterations; iter++ {
		maxDelta := 0.0
		for u := 0; u < n; u++ {
			sum := 0.0
			for _, v := range trustedBy[u] {
				sum += scores[v] / float64(trustCount[v])
			}
			next[u] = (1.0-d)/nf + d*sum
			maxDelta = math.Max(maxDelta, math.Abs(next[u]-scores[u]))
		}
		scores, next = next, scores

		if maxDelta < config.Tolerance {
			break
		}
	}

	maxScore := slices.Max(scores)
	result := make(map[string]float64, n)
	for i, id := range g.nodes {
		if maxScore > 0 {
			result[id] = scores[i] / maxScore
		} else {
			result[id] = scores[i]
		}
	}
	return result
}

// Ranked is one entry of an influence ranking.
type Ranked struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// TopInfluencers returns the k highest scores, ties broken by id.
// k <= 0 returns every node.
func TopInfluencers(scores map[string]float64, k int) []Ranked {
	ranked := make([]Ranked, 0, len(scores))
	for id, s := range scores {
		ranked = append(ranked, Ranked{ID: id, Score: s})
	}
	slices.SortFunc(ranked, func(a, b Ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}
