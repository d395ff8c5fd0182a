package mcp

import (
	"github.com/nvandessel/tradernet/internal/network"
	"github.com/nvandessel/tradernet/internal/store"
)

// SimulateInput defines the input for the tradernet_simulate tool.
type SimulateInput struct {
	Nodes           int     `json:"nodes,omitempty" jsonschema:"Number of traders (default from config)"`
	EdgeProbability float64 `json:"edge_probability,omitempty" jsonschema:"Probability of each directed trust edge"`
	Steps           int     `json:"steps,omitempty" jsonschema:"Number of time steps to simulate"`
	Seed            uint64  `json:"seed,omitempty" jsonschema:"Random seed; 0 picks one and reports it"`
	Workers         int     `json:"workers,omitempty" jsonschema:"Goroutines for the quote and update passes"`
	MemoryLength    int     `json:"memory_length,omitempty" jsonschema:"Steps of history each trader keeps"`
}

// SimulateOutput defines the output for the tradernet_simulate tool.
type SimulateOutput struct {
	Run    store.RunSummary `json:"run" jsonschema:"Summary of the stored run"`
	Prices []float64        `json:"prices" jsonschema:"Clearing price of every step"`
}

// RunsInput defines the input for the tradernet_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return, newest first"`
}

// RunsOutput defines the output for the tradernet_runs tool.
type RunsOutput struct {
	Runs  []store.RunSummary `json:"runs" jsonschema:"Stored runs"`
	Count int                `json:"count" jsonschema:"Number of runs returned"`
}

// RunInput defines the input for the tradernet_run tool.
type RunInput struct {
	ID string `json:"id" jsonschema:"Run id"`
}

// RunOutput defines the output for the tradernet_run tool.
type RunOutput struct {
	Run   store.RunSummary `json:"run" jsonschema:"Run summary"`
	Steps []store.Step     `json:"steps" jsonschema:"Per-step prices and state counts"`
}

// InfluenceInput defines the input for the tradernet_influence tool.
type InfluenceInput struct {
	ID  string `json:"id" jsonschema:"Run id"`
	Top int    `json:"top,omitempty" jsonschema:"Number of traders to return (default 10)"`
}

// InfluenceOutput defines the output for the tradernet_influence tool.
type InfluenceOutput struct {
	Traders []network.Ranked `json:"traders" jsonschema:"Most trusted traders by PageRank over the trust network"`
}
