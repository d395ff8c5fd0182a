// Package session assembles a runnable simulation from configuration: it
// seeds the random source, builds the trust network, populates it with
// traders and advances it step by step while recording the results.
//
// All public methods are safe for concurrent use.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/nvandessel/tradernet/internal/config"
	"github.com/nvandessel/tradernet/internal/logging"
	"github.com/nvandessel/tradernet/internal/market"
	"github.com/nvandessel/tradernet/internal/network"
	"github.com/nvandessel/tradernet/internal/simulation"
	"github.com/nvandessel/tradernet/internal/store"
)

// Options carries the ambient dependencies of a Session.
type Options struct {
	Logger    *slog.Logger
	Anomalies *logging.AnomalyLogger
}

// Session is one seeded network and its progress through time.
type Session struct {
	mu      sync.Mutex
	cfg     config.Config
	seed    uint64
	net     *network.Network
	driver  *simulation.Driver
	tracker *market.PriceTracker
	next    int
	reports []simulation.StepReport
	logger  *slog.Logger
}

// New validates cfg and builds the network it describes. A zero seed is
// replaced by a random one, available from Seed.
func New(cfg *config.Config, opts Options) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	seed := cfg.Simulation.Seed
	for seed == 0 {
		seed = rand.Uint64()
	}
	rng := NewRand(seed)

	sim := cfg.Simulation
	g := network.RandomGraph(sim.Nodes, sim.EdgeProbability, rng)
	net, _, err := network.Populate(g, Specs(cfg, rng))
	if err != nil {
		return nil, fmt.Errorf("building network: %w", err)
	}

	logger.Info("network built",
		"nodes", g.Len(), "edges", len(g.Edges()), "seed", seed)

	return &Session{
		cfg:  *cfg,
		seed: seed,
		net:  net,
		driver: simulation.NewDriver(simulation.Config{
			Workers:   sim.Workers,
			Logger:    logger,
			Anomalies: opts.Anomalies,
		}),
		tracker: market.NewPriceTracker(),
		next:    sim.StartStep,
		logger:  logger,
	}, nil
}

// NewRand returns the deterministic random source used for a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Specs converts the configured parameter distributions into population
// specs drawing from rng.
func Specs(cfg *config.Config, rng *rand.Rand) network.Specs {
	p := cfg.Params
	return network.Specs{
		A:            network.Fixed(p.A.Param(rng)),
		B:            network.Fixed(p.B.Param(rng)),
		C:            network.Fixed(p.C.Param(rng)),
		D:            network.Fixed(p.D.Param(rng)),
		S:            network.Fixed(p.S.Param(rng)),
		Epsilon:      network.Fixed(p.Epsilon.Param(rng)),
		MemoryLength: cfg.Simulation.MemoryLength,
	}
}

// Seed returns the seed the session was built from.
func (s *Session) Seed() uint64 { return s.seed }

// Network returns the populated network.
func (s *Session) Network() *network.Network { return s.net }

// NextStep returns the time step the next Advance will start at.
func (s *Session) NextStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Reports returns a copy of every step report recorded so far.
func (s *Session) Reports() []simulation.StepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]simulation.StepReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// Stream advances n steps lazily, recording each report before yielding
// it. The session stays locked until the sequence finishes or the caller
// stops ranging over it.
func (s *Session) Stream(ctx context.Context, n int) iter.Seq2[simulation.StepReport, error] {
	return func(yield func(simulation.StepReport, error) bool) {
		s.mu.Lock()
		defer s.mu.Unlock()

		steps := simulation.Steps(s.next, n)
		for report, err := range s.driver.Evolve(ctx, s.net, steps, s.tracker) {
			if err != nil {
				yield(report, err)
				return
			}
			s.reports = append(s.reports, report)
			s.next = report.T + 1
			if !yield(report, nil) {
				return
			}
		}
	}
}

// Advance runs n steps and returns their reports. On error the reports of
// the steps that completed are returned with it.
func (s *Session) Advance(ctx context.Context, n int) ([]simulation.StepReport, error) {
	reports := make([]simulation.StepReport, 0, max(n, 0))
	for report, err := range s.Stream(ctx, n) {
		if err != nil {
			return reports, fmt.Errorf("step %d: %w", report.T, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Run advances the configured number of steps.
func (s *Session) Run(ctx context.Context) ([]simulation.StepReport, error) {
	reports, err := s.Advance(ctx, s.cfg.Simulation.Steps)
	if err != nil {
		return reports, err
	}
	if len(reports) > 0 {
		last := reports[len(reports)-1]
		s.logger.Info("simulation finished",
			"steps", len(reports), "final_price", last.Price)
	}
	return reports, nil
}

// snapshot is the part of the configuration stored with a run.
type snapshot struct {
	Simulation config.SimulationConfig `json:"simulation"`
	Params     config.ParamsConfig     `json:"params"`
}

// Record converts the session into a persistable run. The seed recorded is
// the one actually used, so the run can be reproduced from its snapshot.
func (s *Session) Record() (*store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{Simulation: s.cfg.Simulation, Params: s.cfg.Params}
	snap.Simulation.Seed = s.seed
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding config snapshot: %w", err)
	}

	run := &store.Run{
		Seed:      s.seed,
		Nodes:     s.net.Len(),
		StartStep: s.cfg.Simulation.StartStep,
		Config:    raw,
	}

	for i, a := range s.net.Agents() {
		ca, cb, cc, cd := a.Coefficients()
		run.Agents = append(run.Agents, store.Agent{
			Index: i, Name: a.Name(), A: ca, B: cb, C: cc, D: cd,
		})
	}
	for _, e := range s.net.Graph().Edges() {
		run.Edges = append(run.Edges, store.Edge{Source: e.Source, Target: e.Target})
	}
	for _, r := range s.reports {
		run.Steps = append(run.Steps, StepRecord(r))
	}
	return run, nil
}

// StepRecord converts a step report into its stored form.
func StepRecord(r simulation.StepReport) store.Step {
	return store.Step{
		T:        r.T,
		Price:    r.Price,
		Buyers:   r.Buyers,
		Holders:  r.Holders,
		Sellers:  r.Sellers,
		Inverted: r.Inverted,
	}
}

// RunAndSave builds a session from cfg, runs it and saves the result to rs.
func RunAndSave(ctx context.Context, cfg *config.Config, rs store.RunStore, opts Options) (*store.Run, error) {
	s, err := New(cfg, opts)
	if err != nil {
		return nil, err
	}
	if _, err := s.Run(ctx); err != nil {
		return nil, err
	}
	run, err := s.Record()
	if err != nil {
		return nil, err
	}
	if _, err := rs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}
	return run, nil
}

// RunGraph rebuilds the trust network of a stored run.
func RunGraph(run *store.Run) (*network.Graph, error) {
	nodes := make([]string, len(run.Agents))
	for i, a := range run.Agents {
		nodes[i] = a.Name
	}
	edges := make([]network.Edge, len(run.Edges))
	for i, e := range run.Edges {
		edges[i] = network.Edge{Source: e.Source, Target: e.Target}
	}
	g, err := network.FromEdges(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("rebuilding network of run %s: %w", run.ID, err)
	}
	return g, nil
}
