package session

import (
	"fmt"

	"github.com/nvandessel/tradernet/internal/config"
)

// Upper bounds for runs requested over MCP or HTTP.
const (
	MaxRemoteNodes = 20000
	MaxRemoteSteps = 10000
)

// Overrides adjusts the simulation section of a base configuration. Zero
// fields keep the base value, so an edge probability of exactly 0 cannot be
// requested this way.
type Overrides struct {
	Nodes           int     `json:"nodes,omitempty" form:"nodes"`
	EdgeProbability float64 `json:"edge_probability,omitempty" form:"edge_probability"`
	Steps           int     `json:"steps,omitempty" form:"steps"`
	Seed            uint64  `json:"seed,omitempty" form:"seed"`
	Workers         int     `json:"workers,omitempty" form:"workers"`
	MemoryLength    int     `json:"memory_length,omitempty" form:"memory_length"`
}

// Apply returns a copy of base with o applied. The copy is validated and
// checked against the remote size limits.
func (o Overrides) Apply(base *config.Config) (*config.Config, error) {
	cfg := *base
	sim := &cfg.Simulation
	if o.Nodes != 0 {
		sim.Nodes = o.Nodes
	}
	if o.EdgeProbability != 0 {
		sim.EdgeProbability = o.EdgeProbability
	}
	if o.Steps != 0 {
		sim.Steps = o.Steps
	}
	if o.Seed != 0 {
		sim.Seed = o.Seed
	}
	if o.Workers != 0 {
		sim.Workers = o.Workers
	}
	if o.MemoryLength != 0 {
		sim.MemoryLength = o.MemoryLength
	}

	if sim.Nodes > MaxRemoteNodes {
		return nil, fmt.Errorf("nodes must be at most %d, got %d", MaxRemoteNodes, sim.Nodes)
	}
	if sim.Steps > MaxRemoteSteps {
		return nil, fmt.Errorf("steps must be at most %d, got %d", MaxRemoteSteps, sim.Steps)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
