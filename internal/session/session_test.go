package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nvandessel/tradernet/internal/config"
	"github.com/nvandessel/tradernet/internal/store"
)

func smallConfig(seed uint64) *config.Config {
	cfg := config.Default()
	cfg.Simulation.Nodes = 60
	cfg.Simulation.EdgeProbability = 0.1
	cfg.Simulation.Steps = 8
	cfg.Simulation.Seed = seed
	cfg.Storage.Driver = "memory"
	return cfg
}

func TestSession_Deterministic(t *testing.T) {
	ctx := context.Background()

	run := func() []float64 {
		t.Helper()
		s, err := New(smallConfig(42), Options{})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		reports, err := s.Run(ctx)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		prices := make([]float64, len(reports))
		for i, r := range reports {
			prices[i] = r.Price
		}
		return prices
	}

	first, second := run(), run()
	if len(first) != 8 {
		t.Fatalf("expected 8 steps, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("step %d: %v vs %v for the same seed", i, first[i], second[i])
		}
	}
}

func TestSession_ZeroSeedIsReplaced(t *testing.T) {
	s, err := New(smallConfig(0), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Seed() == 0 {
		t.Error("expected a random non-zero seed")
	}

	run, err := s.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	var snap struct {
		Simulation config.SimulationConfig `json:"simulation"`
	}
	if err := json.Unmarshal(run.Config, &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap.Simulation.Seed != s.Seed() {
		t.Errorf("snapshot seed = %d, want %d", snap.Simulation.Seed, s.Seed())
	}
}

func TestSession_AdvanceContinues(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig(7)
	cfg.Simulation.StartStep = 10

	s, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := s.Advance(ctx, 3)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	second, err := s.Advance(ctx, 2)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if first[0].T != 10 || first[2].T != 12 {
		t.Errorf("first batch steps = %d..%d, want 10..12", first[0].T, first[2].T)
	}
	if second[0].T != 13 || second[1].T != 14 {
		t.Errorf("second batch steps = %d..%d, want 13..14", second[0].T, second[1].T)
	}
	if s.NextStep() != 15 {
		t.Errorf("NextStep() = %d, want 15", s.NextStep())
	}
	if got := len(s.Reports()); got != 5 {
		t.Errorf("Reports() has %d entries, want 5", got)
	}
}

func TestSession_StreamEarlyStop(t *testing.T) {
	s, err := New(smallConfig(3), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := 0
	for _, err := range s.Stream(context.Background(), 10) {
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
		seen++
		if seen == 2 {
			break
		}
	}
	if len(s.Reports()) != 2 {
		t.Errorf("expected 2 recorded reports, got %d", len(s.Reports()))
	}
	if s.NextStep() != 2 {
		t.Errorf("NextStep() = %d, want 2", s.NextStep())
	}
}

func TestSession_Cancelled(t *testing.T) {
	s, err := New(smallConfig(5), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := s.Advance(ctx, 4)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("expected no reports, got %d", len(reports))
	}
}

func TestSession_Record(t *testing.T) {
	s, err := New(smallConfig(11), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := s.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if run.Nodes != 60 || len(run.Agents) != 60 {
		t.Errorf("nodes = %d, agents = %d, want 60", run.Nodes, len(run.Agents))
	}
	if len(run.Edges) != len(s.Network().Graph().Edges()) {
		t.Errorf("edges = %d, want %d", len(run.Edges), len(s.Network().Graph().Edges()))
	}
	if len(run.Steps) != 8 {
		t.Errorf("steps = %d, want 8", len(run.Steps))
	}
	for _, a := range run.Agents {
		if a.A != 1 {
			t.Errorf("agent %s: A = %v, want 1", a.Name, a.A)
		}
	}
	for _, st := range run.Steps {
		if st.Buyers+st.Holders+st.Sellers != 60 {
			t.Errorf("step %d: counts sum to %d", st.T, st.Buyers+st.Holders+st.Sellers)
		}
		if st.Buyers != st.Sellers {
			t.Errorf("step %d: %d buyers, %d sellers", st.T, st.Buyers, st.Sellers)
		}
	}
}

func TestRunAndSave(t *testing.T) {
	ctx := context.Background()
	rs := store.NewInMemoryRunStore()
	defer rs.Close()

	run, err := RunAndSave(ctx, smallConfig(9), rs, Options{})
	if err != nil {
		t.Fatalf("RunAndSave: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run id to be assigned")
	}

	steps, err := rs.GetSteps(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetSteps: %v", err)
	}
	if len(steps) != 8 {
		t.Errorf("stored %d steps, want 8", len(steps))
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{"nil config", nil},
		{"no nodes", func() *config.Config {
			c := smallConfig(1)
			c.Simulation.Nodes = 0
			return c
		}()},
		{"degenerate sensitivity", func() *config.Config {
			c := smallConfig(1)
			c.Params.A = config.Fixed(1)
			c.Params.B = config.Fixed(-1)
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, Options{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunGraph(t *testing.T) {
	s, err := New(smallConfig(21), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run, err := s.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	g, err := RunGraph(run)
	if err != nil {
		t.Fatalf("RunGraph: %v", err)
	}
	orig := s.Network().Graph()
	if g.Len() != orig.Len() || len(g.Edges()) != len(orig.Edges()) {
		t.Fatalf("rebuilt %d nodes/%d edges, want %d/%d", g.Len(), len(g.Edges()), orig.Len(), len(orig.Edges()))
	}
	for _, e := range orig.Edges() {
		if !g.HasEdge(e.Source, e.Target) {
			t.Errorf("missing edge %s -> %s", e.Source, e.Target)
		}
	}

	run.Edges = append(run.Edges, store.Edge{Source: "0", Target: "missing"})
	if _, err := RunGraph(run); err == nil {
		t.Error("expected error for edge to unknown node")
	}
}
